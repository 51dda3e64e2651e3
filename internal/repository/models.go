package repository

import (
	"time"

	"github.com/hookrelay/relay-engine/internal/domain"
)

// DeliveryModel is the persistence model for the delivery_logs table.
type DeliveryModel struct {
	ID            int64         `gorm:"primaryKey;autoIncrement"`
	SourceID      string        `gorm:"type:varchar(64);not null"`
	CorrelationID string        `gorm:"type:varchar(36);not null"`
	Endpoint      string        `gorm:"type:text;not null"`
	Method        string        `gorm:"type:varchar(10);not null"`
	Status        domain.Status `gorm:"type:varchar(20);not null"`

	RequestPayload string `gorm:"type:text"`
	RequestHeaders string `gorm:"type:text"`

	ResponseCode    *int     `gorm:"type:int"`
	ResponsePayload *string  `gorm:"type:text"`
	ResponseHeaders *string  `gorm:"type:text"`
	ErrorMessage    *string  `gorm:"type:text"`
	ExecutionTime   *float64 `gorm:"type:double precision"`

	RetryCount int    `gorm:"not null;default:0"`
	RetryOf    *int64 `gorm:"type:bigint"`

	CreatedAt time.Time
}

func (DeliveryModel) TableName() string {
	return "delivery_logs"
}

func deliveryModelFromDomain(d *domain.Delivery) *DeliveryModel {
	if d == nil {
		return nil
	}

	return &DeliveryModel{
		ID:              d.ID,
		SourceID:        d.SourceID,
		CorrelationID:   d.CorrelationID,
		Endpoint:        d.Endpoint,
		Method:          d.Method,
		Status:          d.Status,
		RequestPayload:  d.RequestPayload,
		RequestHeaders:  d.RequestHeaders,
		ResponseCode:    d.ResponseCode,
		ResponsePayload: d.ResponsePayload,
		ResponseHeaders: d.ResponseHeaders,
		ErrorMessage:    d.ErrorMessage,
		ExecutionTime:   d.ExecutionTime,
		RetryCount:      d.RetryCount,
		RetryOf:         d.RetryOf,
		CreatedAt:       d.CreatedAt,
	}
}

func deliveryModelToDomain(m *DeliveryModel) *domain.Delivery {
	if m == nil {
		return nil
	}

	return &domain.Delivery{
		ID:              m.ID,
		SourceID:        m.SourceID,
		CorrelationID:   m.CorrelationID,
		Endpoint:        m.Endpoint,
		Method:          m.Method,
		Status:          m.Status,
		RequestPayload:  m.RequestPayload,
		RequestHeaders:  m.RequestHeaders,
		ResponseCode:    m.ResponseCode,
		ResponsePayload: m.ResponsePayload,
		ResponseHeaders: m.ResponseHeaders,
		ErrorMessage:    m.ErrorMessage,
		ExecutionTime:   m.ExecutionTime,
		RetryCount:      m.RetryCount,
		RetryOf:         m.RetryOf,
		CreatedAt:       m.CreatedAt,
	}
}
