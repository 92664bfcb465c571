package models

import (
	"time"
)

type QuoteStatus string

const (
	QuoteStatusDraft    QuoteStatus = "draft"
	QuoteStatusSent     QuoteStatus = "sent"
	QuoteStatusAccepted QuoteStatus = "accepted"
	QuoteStatusDeclined QuoteStatus = "declined"
)

func (s QuoteStatus) IsValid() bool {
	switch s {
	case QuoteStatusDraft, QuoteStatusSent, QuoteStatusAccepted, QuoteStatusDeclined:
		return true
	default:
		return false
	}
}

type Quote struct {
	ID           uint        `json:"id" gorm:"primaryKey"`
	Reference    string      `json:"reference" gorm:"size:50;uniqueIndex;not null"`
	CustomerName string      `json:"customer_name" gorm:"size:255;not null"`
	Status       QuoteStatus `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"`
	Total        float64     `json:"total" gorm:"default:0"`
	CreatedAt    time.Time   `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (Quote) TableName() string {
	return "quotes"
}

type InvoiceStatus string

const (
	InvoiceStatusDraft InvoiceStatus = "draft"
	InvoiceStatusSent  InvoiceStatus = "sent"
	InvoiceStatusPaid  InvoiceStatus = "paid"
)

type Invoice struct {
	ID           uint          `json:"id" gorm:"primaryKey"`
	Reference    string        `json:"reference" gorm:"size:50;uniqueIndex;not null"`
	CustomerName string        `json:"customer_name" gorm:"size:255;not null"`
	Status       InvoiceStatus `json:"status" gorm:"type:varchar(20);not null;default:'draft';index"`
	Total        float64       `json:"total" gorm:"default:0"`
	PaidAt       *time.Time    `json:"paid_at"`
	CreatedAt    time.Time     `json:"created_at" gorm:"index"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}
