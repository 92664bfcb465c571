package models

import (
	"time"
)

type LeadSource string

const (
	SourceWebsite  LeadSource = "website"
	SourceLocalAds LeadSource = "local_ads"
)

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusClosed    LeadStatus = "closed"
)

func (s LeadStatus) IsValid() bool {
	switch s {
	case LeadStatusNew, LeadStatusContacted, LeadStatusConverted, LeadStatusClosed:
		return true
	default:
		return false
	}
}

// Lead is a contact/lead captured from the website form or synced from
// Local Services Ads. Notifications reference leads by id only.
type Lead struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Name      string     `json:"name" gorm:"size:255;not null"`
	Email     string     `json:"email" gorm:"size:255"`
	Phone     string     `json:"phone" gorm:"size:50"`
	Message   string     `json:"message" gorm:"type:text"`
	Source    LeadSource `json:"source" gorm:"type:varchar(20);not null;default:'website'"`
	Status    LeadStatus `json:"status" gorm:"type:varchar(20);not null;default:'new';index"`
	CreatedAt time.Time  `json:"created_at" gorm:"index"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Lead) TableName() string {
	return "leads"
}
