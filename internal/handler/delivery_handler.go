package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hookrelay/relay-engine/internal/deliverer"
	"github.com/hookrelay/relay-engine/internal/domain"
	"github.com/hookrelay/relay-engine/internal/repository"
	"github.com/hookrelay/relay-engine/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100

	defaultStatsWindowHours = 24
	maxStatsWindowHours     = 24 * 90
)

// Pipeline is the fresh-delivery side of the service layer.
type Pipeline interface {
	Send(ctx context.Context, input service.SendInput) (deliverer.Outcome, int64, error)
	Statistics(ctx context.Context, sourceID string, window time.Duration) (*service.Statistics, error)
}

// Retrier re-issues previously failed deliveries.
type Retrier interface {
	Retry(ctx context.Context, logID int64) (*domain.Delivery, error)
}

type DeliveryHandler struct {
	pipeline   Pipeline
	retrier    Retrier
	deliveries repository.DeliveryRepository
}

func NewDeliveryHandler(pipeline Pipeline, retrier Retrier, deliveries repository.DeliveryRepository) (*DeliveryHandler, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("delivery pipeline is required")
	}
	if retrier == nil {
		return nil, fmt.Errorf("retrier is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	return &DeliveryHandler{pipeline: pipeline, retrier: retrier, deliveries: deliveries}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, pipeline Pipeline, retrier Retrier, deliveries repository.DeliveryRepository) error {
	h, err := NewDeliveryHandler(pipeline, retrier, deliveries)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/deliveries", h.SendDelivery)
	v1.Post("/deliveries/:id/retry", h.RetryDelivery)
	v1.Get("/deliveries", h.ListDeliveries)
	v1.Get("/deliveries/:id", h.GetDelivery)
	v1.Delete("/deliveries", h.PurgeDeliveries)
	v1.Get("/stats", h.GetStatistics)

	return nil
}

type sendDeliveryRequest struct {
	SourceID       string            `json:"sourceId"`
	Endpoint       string            `json:"endpoint"`
	Method         string            `json:"method"`
	Payload        map[string]any    `json:"payload"`
	Headers        map[string]string `json:"headers"`
	TimeoutSeconds int               `json:"timeoutSeconds"`
}

type sendDeliveryResponse struct {
	LogID        int64  `json:"logId"`
	Status       string `json:"status"`
	ResponseCode *int   `json:"responseCode,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	LatencyMs    int64  `json:"latencyMs"`
}

type deliveryResponse struct {
	ID              int64     `json:"id"`
	SourceID        string    `json:"sourceId,omitempty"`
	CorrelationID   string    `json:"correlationId"`
	Endpoint        string    `json:"endpoint"`
	Method          string    `json:"method"`
	Status          string    `json:"status"`
	RequestPayload  string    `json:"requestPayload,omitempty"`
	RequestHeaders  string    `json:"requestHeaders,omitempty"`
	ResponseCode    *int      `json:"responseCode,omitempty"`
	ResponsePayload *string   `json:"responsePayload,omitempty"`
	ErrorMessage    *string   `json:"errorMessage,omitempty"`
	ExecutionTimeMs *float64  `json:"executionTimeMs,omitempty"`
	RetryCount      int       `json:"retryCount"`
	RetryOf         *int64    `json:"retryOf,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type listDeliveriesResponse struct {
	Data []deliveryResponse `json:"data"`
}

type statisticsResponse struct {
	Count        int64              `json:"count"`
	SuccessRate  float64            `json:"successRate"`
	AvgLatencyMs float64            `json:"avgLatencyMs"`
	RecentErrors []deliveryResponse `json:"recentErrors"`
}

func (h *DeliveryHandler) SendDelivery(c *fiber.Ctx) error {
	var req sendDeliveryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	outcome, logID, err := h.pipeline.Send(c.Context(), service.SendInput{
		SourceID: req.SourceID,
		Endpoint: req.Endpoint,
		Method:   req.Method,
		Payload:  req.Payload,
		Headers:  req.Headers,
		Timeout:  time.Duration(req.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return err
	}

	resp := sendDeliveryResponse{
		LogID:        logID,
		Status:       outcome.Status.String(),
		ErrorMessage: outcome.ErrorMessage,
		LatencyMs:    outcome.Latency.Milliseconds(),
	}
	if outcome.IsHTTP() {
		code := outcome.Code
		resp.ResponseCode = &code
		resp.ResponseBody = outcome.Body
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *DeliveryHandler) RetryDelivery(c *fiber.Ctx) error {
	logID, err := parseLogID(c)
	if err != nil {
		return err
	}

	retried, err := h.retrier.Retry(c.Context(), logID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(retried))
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	logID, err := parseLogID(c)
	if err != nil {
		return err
	}

	record, err := h.deliveries.GetByID(c.Context(), logID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(record))
}

func (h *DeliveryHandler) ListDeliveries(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxListLimit)
	}
	sourceID := strings.TrimSpace(c.Query("sourceId"))

	records, err := h.deliveries.ListRecent(c.Context(), sourceID, limit)
	if err != nil {
		return err
	}

	data := make([]deliveryResponse, 0, len(records))
	for i := range records {
		data = append(data, toDeliveryResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(listDeliveriesResponse{Data: data})
}

func (h *DeliveryHandler) PurgeDeliveries(c *fiber.Ctx) error {
	days := c.QueryInt("olderThanDays", 0)
	if days < 1 {
		return fmt.Errorf("%w: olderThanDays must be >= 1", domain.ErrValidation)
	}

	deleted, err := h.deliveries.PurgeOlderThan(c.Context(), time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deleted": deleted,
	})
}

func (h *DeliveryHandler) GetStatistics(c *fiber.Ctx) error {
	hours := c.QueryInt("windowHours", defaultStatsWindowHours)
	if hours < 1 || hours > maxStatsWindowHours {
		return fmt.Errorf("%w: windowHours must be between 1 and %d", domain.ErrValidation, maxStatsWindowHours)
	}

	stats, err := h.pipeline.Statistics(c.Context(), c.Query("sourceId"), time.Duration(hours)*time.Hour)
	if err != nil {
		return err
	}

	recent := make([]deliveryResponse, 0, len(stats.RecentErrors))
	for i := range stats.RecentErrors {
		recent = append(recent, toDeliveryResponse(&stats.RecentErrors[i]))
	}

	return c.Status(fiber.StatusOK).JSON(statisticsResponse{
		Count:        stats.Count,
		SuccessRate:  stats.SuccessRate,
		AvgLatencyMs: stats.AvgLatencyMs,
		RecentErrors: recent,
	})
}

func parseLogID(c *fiber.Ctx) (int64, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: id must be a positive integer", domain.ErrValidation)
	}
	return int64(id), nil
}

func toDeliveryResponse(d *domain.Delivery) deliveryResponse {
	if d == nil {
		return deliveryResponse{}
	}

	resp := deliveryResponse{
		ID:              d.ID,
		SourceID:        d.SourceID,
		CorrelationID:   d.CorrelationID,
		Endpoint:        d.Endpoint,
		Method:          d.Method,
		Status:          d.Status.String(),
		RequestPayload:  d.RequestPayload,
		RequestHeaders:  d.RequestHeaders,
		ResponseCode:    d.ResponseCode,
		ResponsePayload: d.ResponsePayload,
		ErrorMessage:    d.ErrorMessage,
		RetryCount:      d.RetryCount,
		RetryOf:         d.RetryOf,
		CreatedAt:       d.CreatedAt,
	}
	if d.ExecutionTime != nil {
		ms := *d.ExecutionTime * 1000
		resp.ExecutionTimeMs = &ms
	}
	return resp
}
