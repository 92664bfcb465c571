package models

import (
	"time"
)

// DailyStats is one aggregated row per calendar date. Rows are upserted by
// the aggregation job and never hand-edited.
type DailyStats struct {
	ID   uint      `json:"id" gorm:"primaryKey"`
	Date time.Time `json:"date" gorm:"type:date;uniqueIndex;not null"`

	// Lead metrics
	NewLeadsWebsite  int `json:"new_leads_website" gorm:"default:0"`
	NewLeadsLocalAds int `json:"new_leads_local_ads" gorm:"default:0"`
	LeadsContacted   int `json:"leads_contacted" gorm:"default:0"`
	LeadsConverted   int `json:"leads_converted" gorm:"default:0"`

	// Quote metrics
	QuotesCreated    int     `json:"quotes_created" gorm:"default:0"`
	QuotesSent       int     `json:"quotes_sent" gorm:"default:0"`
	QuotesAccepted   int     `json:"quotes_accepted" gorm:"default:0"`
	QuotesTotalValue float64 `json:"quotes_total_value" gorm:"default:0"`

	// Invoice metrics
	InvoicesCreated   int     `json:"invoices_created" gorm:"default:0"`
	InvoicesPaid      int     `json:"invoices_paid" gorm:"default:0"`
	InvoicesPaidValue float64 `json:"invoices_paid_value" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (DailyStats) TableName() string {
	return "daily_stats"
}

// TotalNewLeads sums both lead sources for the day.
func (s *DailyStats) TotalNewLeads() int {
	return s.NewLeadsWebsite + s.NewLeadsLocalAds
}
