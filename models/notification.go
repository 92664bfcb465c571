package models

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	TypeNewLead     NotificationType = "new_lead"
	TypeLeadStatus  NotificationType = "lead_status"
	TypeQuoteStatus NotificationType = "quote_status"
	TypeInvoicePaid NotificationType = "invoice_paid"
	TypeSystem      NotificationType = "system"
)

// IsValid reports whether t is one of the fixed notification types.
func (t NotificationType) IsValid() bool {
	switch t {
	case TypeNewLead, TypeLeadStatus, TypeQuoteStatus, TypeInvoicePaid, TypeSystem:
		return true
	default:
		return false
	}
}

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

func (p NotificationPriority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh:
		return true
	default:
		return false
	}
}

// EntityKind tags the optional back-reference from a notification to the
// domain entity that triggered it. It is a lookup-only relation: deleting
// the entity never deletes the notification.
type EntityKind string

const (
	KindLead    EntityKind = "lead"
	KindQuote   EntityKind = "quote"
	KindInvoice EntityKind = "invoice"
)

type Notification struct {
	ID       uint                 `json:"id" gorm:"primaryKey"`
	UserID   uint                 `json:"user_id" gorm:"not null;index:idx_notifications_user_read,priority:1;index:idx_notifications_user_created,priority:1"`
	Type     NotificationType     `json:"type" gorm:"type:varchar(50);not null;index"`
	Title    string               `json:"title" gorm:"size:255;not null"`
	Message  string               `json:"message" gorm:"type:text;not null"`
	Priority NotificationPriority `json:"priority" gorm:"type:varchar(20);not null;default:'normal'"`

	// Tagged back-reference to an arbitrary domain entity. No foreign key:
	// the referenced row may be deleted independently.
	RelatedKind *EntityKind `json:"related_kind" gorm:"type:varchar(20)"`
	RelatedID   *uint       `json:"related_id"`

	// Read status
	IsRead bool       `json:"is_read" gorm:"default:false;index:idx_notifications_user_read,priority:2"`
	ReadAt *time.Time `json:"read_at"`

	// Delivery tracking. Each flag is set only after a successful attempt
	// on that channel and never unset.
	DeliveredViaLive bool `json:"delivered_via_live" gorm:"default:false"`
	DeliveredViaPush bool `json:"delivered_via_push" gorm:"default:false"`

	// Additional data as JSON
	Data string `json:"-" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_notifications_user_created,priority:2"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (Notification) TableName() string {
	return "notifications"
}

// DataMap decodes the JSON data payload. Returns an empty map on empty or
// malformed data.
func (n *Notification) DataMap() map[string]interface{} {
	out := map[string]interface{}{}
	if n.Data == "" {
		return out
	}
	if err := json.Unmarshal([]byte(n.Data), &out); err != nil {
		return map[string]interface{}{}
	}
	return out
}

// SetData encodes a payload map into the JSON data column.
func (n *Notification) SetData(data map[string]interface{}) {
	if data == nil {
		n.Data = "{}"
		return
	}
	raw, err := json.Marshal(data)
	if err != nil {
		n.Data = "{}"
		return
	}
	n.Data = string(raw)
}

// PushSubscription is a registered web-push endpoint plus the device keys
// needed to encrypt payloads for it. The endpoint URL is the natural key:
// re-subscribing the same endpoint updates the existing row.
type PushSubscription struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	UserID    uint   `json:"user_id" gorm:"not null;index:idx_push_subscriptions_user_active,priority:1"`
	Endpoint  string `json:"endpoint" gorm:"size:500;uniqueIndex;not null"`
	P256dhKey string `json:"p256dh_key" gorm:"size:200;not null"`
	AuthKey   string `json:"auth_key" gorm:"size:100;not null"`

	// Device info
	DeviceName string `json:"device_name" gorm:"size:100"`
	UserAgent  string `json:"user_agent" gorm:"size:500"`

	// Status tracking
	IsActive    bool       `json:"is_active" gorm:"default:true;index:idx_push_subscriptions_user_active,priority:2"`
	FailedCount int        `json:"failed_count" gorm:"default:0"`
	LastUsedAt  *time.Time `json:"last_used_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (PushSubscription) TableName() string {
	return "push_subscriptions"
}

// NotificationPreference holds a user's per-type and per-channel gates.
// The row is created lazily on first access; a missing row means
// everything enabled.
type NotificationPreference struct {
	ID     uint `json:"id" gorm:"primaryKey"`
	UserID uint `json:"user_id" gorm:"uniqueIndex;not null"`

	// Notification type preferences
	NewLeadEnabled     bool `json:"new_lead_enabled" gorm:"default:true"`
	LeadStatusEnabled  bool `json:"lead_status_enabled" gorm:"default:true"`
	QuoteStatusEnabled bool `json:"quote_status_enabled" gorm:"default:true"`
	InvoicePaidEnabled bool `json:"invoice_paid_enabled" gorm:"default:true"`
	SystemEnabled      bool `json:"system_enabled" gorm:"default:true"`

	// Delivery method preferences
	PushEnabled  bool `json:"push_enabled" gorm:"default:true"`
	SoundEnabled bool `json:"sound_enabled" gorm:"default:true"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	User User `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (NotificationPreference) TableName() string {
	return "notification_preferences"
}

// TypeEnabled maps a notification type to its boolean gate. Unknown types
// fall through to enabled so a typo can't silently drop notifications.
func (p *NotificationPreference) TypeEnabled(t NotificationType) bool {
	switch t {
	case TypeNewLead:
		return p.NewLeadEnabled
	case TypeLeadStatus:
		return p.LeadStatusEnabled
	case TypeQuoteStatus:
		return p.QuoteStatusEnabled
	case TypeInvoicePaid:
		return p.InvoicePaidEnabled
	case TypeSystem:
		return p.SystemEnabled
	default:
		return true
	}
}
