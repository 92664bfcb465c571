package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"tile-ops-server/models"
)

// StatsService rolls daily business counters (leads, quotes, invoices) into
// DailyStats rows and computes the same shape on demand for dashboards.
type StatsService struct {
	db *gorm.DB
}

func NewStatsService(db *gorm.DB) *StatsService {
	return &StatsService{db: db}
}

// DayMetrics is one day's worth of business counters.
type DayMetrics struct {
	Date              string  `json:"date"`
	NewLeadsWebsite   int     `json:"new_leads_website"`
	NewLeadsLocalAds  int     `json:"new_leads_local_ads"`
	LeadsContacted    int     `json:"leads_contacted"`
	LeadsConverted    int     `json:"leads_converted"`
	QuotesCreated     int     `json:"quotes_created"`
	QuotesSent        int     `json:"quotes_sent"`
	QuotesAccepted    int     `json:"quotes_accepted"`
	QuotesTotalValue  float64 `json:"quotes_total_value"`
	InvoicesCreated   int     `json:"invoices_created"`
	InvoicesPaid      int     `json:"invoices_paid"`
	InvoicesPaidValue float64 `json:"invoices_paid_value"`
}

// StatsTotals sums a window of day metrics.
type StatsTotals struct {
	TotalLeadsWebsite      int     `json:"total_leads_website"`
	TotalLeadsLocalAds     int     `json:"total_leads_local_ads"`
	TotalLeads             int     `json:"total_leads"`
	TotalContacted         int     `json:"total_contacted"`
	TotalConverted         int     `json:"total_converted"`
	TotalQuotesCreated     int     `json:"total_quotes_created"`
	TotalQuotesSent        int     `json:"total_quotes_sent"`
	TotalQuotesAccepted    int     `json:"total_quotes_accepted"`
	TotalQuotesValue       float64 `json:"total_quotes_value"`
	TotalInvoicesCreated   int     `json:"total_invoices_created"`
	TotalInvoicesPaid      int     `json:"total_invoices_paid"`
	TotalInvoicesPaidValue float64 `json:"total_invoices_paid_value"`
}

// StatsWindow is the dashboard response: per-day metrics, totals and the
// covered period.
type StatsWindow struct {
	Days   []DayMetrics `json:"days"`
	Totals StatsTotals  `json:"totals"`
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
		Days  int    `json:"days"`
	} `json:"period"`
}

// AggregateDate computes the counters for one calendar date and upserts the
// DailyStats row keyed by that date.
func (s *StatsService) AggregateDate(date time.Time) (*models.DailyStats, error) {
	day := truncateToDay(date)
	metrics, err := s.computeDay(day)
	if err != nil {
		return nil, err
	}

	var stats models.DailyStats
	err = s.db.Where("date = ?", day).First(&stats).Error
	created := false
	if errors.Is(err, gorm.ErrRecordNotFound) {
		stats = models.DailyStats{Date: day}
		created = true
	} else if err != nil {
		return nil, err
	}

	stats.NewLeadsWebsite = metrics.NewLeadsWebsite
	stats.NewLeadsLocalAds = metrics.NewLeadsLocalAds
	stats.LeadsContacted = metrics.LeadsContacted
	stats.LeadsConverted = metrics.LeadsConverted
	stats.QuotesCreated = metrics.QuotesCreated
	stats.QuotesSent = metrics.QuotesSent
	stats.QuotesAccepted = metrics.QuotesAccepted
	stats.QuotesTotalValue = metrics.QuotesTotalValue
	stats.InvoicesCreated = metrics.InvoicesCreated
	stats.InvoicesPaid = metrics.InvoicesPaid
	stats.InvoicesPaidValue = metrics.InvoicesPaidValue

	if err := s.db.Save(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to save daily stats for %s: %w", day.Format("2006-01-02"), err)
	}

	action := "Updated"
	if created {
		action = "Created"
	}
	log.Printf("📈 %s daily stats for %s", action, day.Format("2006-01-02"))
	return &stats, nil
}

// Backfill re-aggregates each of the past N days and returns how many days
// were processed.
func (s *StatsService) Backfill(days int) (int, error) {
	today := truncateToDay(time.Now())
	processed := 0
	for i := 1; i <= days; i++ {
		if _, err := s.AggregateDate(today.AddDate(0, 0, -i)); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// Window recomputes day metrics for the last N days directly from the
// live tables. It intentionally bypasses DailyStats: dashboards always see
// current data, at the cost of recomputing on every call.
func (s *StatsService) Window(days int) (*StatsWindow, error) {
	if days < 1 {
		days = 1
	}
	if days > 365 {
		days = 365
	}

	end := truncateToDay(time.Now())
	start := end.AddDate(0, 0, -(days - 1))

	window := &StatsWindow{Days: make([]DayMetrics, 0, days)}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		metrics, err := s.computeDay(day)
		if err != nil {
			return nil, err
		}
		window.Days = append(window.Days, metrics)

		window.Totals.TotalLeadsWebsite += metrics.NewLeadsWebsite
		window.Totals.TotalLeadsLocalAds += metrics.NewLeadsLocalAds
		window.Totals.TotalLeads += metrics.NewLeadsWebsite + metrics.NewLeadsLocalAds
		window.Totals.TotalContacted += metrics.LeadsContacted
		window.Totals.TotalConverted += metrics.LeadsConverted
		window.Totals.TotalQuotesCreated += metrics.QuotesCreated
		window.Totals.TotalQuotesSent += metrics.QuotesSent
		window.Totals.TotalQuotesAccepted += metrics.QuotesAccepted
		window.Totals.TotalQuotesValue += metrics.QuotesTotalValue
		window.Totals.TotalInvoicesCreated += metrics.InvoicesCreated
		window.Totals.TotalInvoicesPaid += metrics.InvoicesPaid
		window.Totals.TotalInvoicesPaidValue += metrics.InvoicesPaidValue
	}

	window.Period.Start = start.Format("2006-01-02")
	window.Period.End = end.Format("2006-01-02")
	window.Period.Days = days
	return window, nil
}

// computeDay runs the counting queries for one calendar day.
func (s *StatsService) computeDay(day time.Time) (DayMetrics, error) {
	start := day
	end := day.AddDate(0, 0, 1)
	metrics := DayMetrics{Date: day.Format("2006-01-02")}

	var count int64

	if err := s.db.Model(&models.Lead{}).
		Where("source = ? AND created_at >= ? AND created_at < ?", models.SourceWebsite, start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.NewLeadsWebsite = int(count)

	if err := s.db.Model(&models.Lead{}).
		Where("source = ? AND created_at >= ? AND created_at < ?", models.SourceLocalAds, start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.NewLeadsLocalAds = int(count)

	if err := s.db.Model(&models.Lead{}).
		Where("status = ? AND updated_at >= ? AND updated_at < ?", models.LeadStatusContacted, start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.LeadsContacted = int(count)

	if err := s.db.Model(&models.Lead{}).
		Where("status = ? AND updated_at >= ? AND updated_at < ?", models.LeadStatusConverted, start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.LeadsConverted = int(count)

	if err := s.db.Model(&models.Quote{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.QuotesCreated = int(count)

	var value float64
	if err := s.db.Model(&models.Quote{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Select("COALESCE(SUM(total), 0)").
		Scan(&value).Error; err != nil {
		return metrics, err
	}
	metrics.QuotesTotalValue = value

	if err := s.db.Model(&models.Quote{}).
		Where("status = ? AND updated_at >= ? AND updated_at < ?", models.QuoteStatusSent, start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.QuotesSent = int(count)

	if err := s.db.Model(&models.Quote{}).
		Where("status = ? AND updated_at >= ? AND updated_at < ?", models.QuoteStatusAccepted, start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.QuotesAccepted = int(count)

	if err := s.db.Model(&models.Invoice{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.InvoicesCreated = int(count)

	if err := s.db.Model(&models.Invoice{}).
		Where("status = ? AND paid_at >= ? AND paid_at < ?", models.InvoiceStatusPaid, start, end).
		Count(&count).Error; err != nil {
		return metrics, err
	}
	metrics.InvoicesPaid = int(count)

	if err := s.db.Model(&models.Invoice{}).
		Where("status = ? AND paid_at >= ? AND paid_at < ?", models.InvoiceStatusPaid, start, end).
		Select("COALESCE(SUM(total), 0)").
		Scan(&value).Error; err != nil {
		return metrics, err
	}
	metrics.InvoicesPaidValue = value

	return metrics, nil
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
