package domain

import "time"

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusExpired   Status = "expired"
)

// Priority controls provider-side delivery urgency hints.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Category is the closed set of notification categories. Device tokens carry
// a per-category opt-out map keyed by these values.
type Category string

const (
	CategoryOrder     Category = "order"
	CategoryDelivery  Category = "delivery"
	CategoryPayment   Category = "payment"
	CategoryPromotion Category = "promotion"
	CategoryProduct   Category = "product"
	CategoryAccount   Category = "account"
	CategorySupport   Category = "support"
	CategorySystem    Category = "system"
	CategoryMarketing Category = "marketing"
	CategoryReminder  Category = "reminder"
)

// Categories lists every valid category, in a stable order.
var Categories = []Category{
	CategoryOrder, CategoryDelivery, CategoryPayment, CategoryPromotion,
	CategoryProduct, CategoryAccount, CategorySupport, CategorySystem,
	CategoryMarketing, CategoryReminder,
}

// ValidCategory reports whether c is one of the enumerated categories.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ValidPriority reports whether p is one of the enumerated priorities.
func ValidPriority(p Priority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// ActionKind tags an action button entry.
type ActionKind string

const (
	ActionOpenURL  ActionKind = "open_url"
	ActionDeepLink ActionKind = "deep_link"
	ActionDismiss  ActionKind = "dismiss"
)

// Action is a structured action button attached to a notification.
type Action struct {
	Kind  ActionKind `json:"kind" dynamodbav:"kind"`
	Label string     `json:"label" dynamodbav:"label"`
	Value string     `json:"value,omitempty" dynamodbav:"value,omitempty"`
}

// Refs holds optional foreign references back into the business domain.
type Refs struct {
	OrderID   string `json:"order_id,omitempty" dynamodbav:"order_id,omitempty"`
	ProductID string `json:"product_id,omitempty" dynamodbav:"product_id,omitempty"`
	CouponID  string `json:"coupon_id,omitempty" dynamodbav:"coupon_id,omitempty"`
	TicketID  string `json:"ticket_id,omitempty" dynamodbav:"ticket_id,omitempty"`
}

// Notification is the durable record of one logical notification and its
// delivery lifecycle. Broadcast batches share a BatchID and carry their
// recipient subset in Recipients; single-recipient rows use UserID alone.
type Notification struct {
	NotificationID string            `json:"id" dynamodbav:"notification_id"`
	TenantID       string            `json:"tenant_id" dynamodbav:"tenant_id"`
	UserID         string            `json:"user_id,omitempty" dynamodbav:"user_id"`
	Recipients     []string          `json:"recipients,omitempty" dynamodbav:"recipients,omitempty"`
	BatchID        string            `json:"batch_id,omitempty" dynamodbav:"batch_id,omitempty"`
	CampaignID     string            `json:"campaign_id,omitempty" dynamodbav:"campaign_id,omitempty"`
	Type           string            `json:"type" dynamodbav:"type"`
	Category       Category          `json:"category" dynamodbav:"category"`
	Priority       Priority          `json:"priority" dynamodbav:"priority"`
	Title          string            `json:"title" dynamodbav:"title"`
	Body           string            `json:"body" dynamodbav:"body"`
	Data           map[string]string `json:"data,omitempty" dynamodbav:"data,omitempty"`
	ImageURL       string            `json:"image_url,omitempty" dynamodbav:"image_url,omitempty"`
	Icon           string            `json:"icon,omitempty" dynamodbav:"icon,omitempty"`
	Sound          string            `json:"sound,omitempty" dynamodbav:"sound,omitempty"`
	ActionURL      string            `json:"action_url,omitempty" dynamodbav:"action_url,omitempty"`
	Actions        []Action          `json:"actions,omitempty" dynamodbav:"actions,omitempty"`
	Refs           Refs              `json:"refs,omitempty" dynamodbav:"refs,omitempty"`
	Status         Status            `json:"status" dynamodbav:"status"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty" dynamodbav:"scheduled_at,omitempty"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"`
	SentAt         *time.Time        `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty" dynamodbav:"delivered_at,omitempty"`
	ReadAt         *time.Time        `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
	Clicked        bool              `json:"clicked" dynamodbav:"clicked"`
	ClickCount     int               `json:"click_count" dynamodbav:"click_count"`
	FailReason     string            `json:"fail_reason,omitempty" dynamodbav:"fail_reason,omitempty"`
	Details        []ProviderReport  `json:"delivery_details,omitempty" dynamodbav:"delivery_details,omitempty"`
	CreatedBy      string            `json:"created_by,omitempty" dynamodbav:"created_by,omitempty"`
	CreatedAt      time.Time         `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time         `json:"updated" dynamodbav:"updated_at"`
}

// transitions is the closed set of legal lifecycle edges.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusSending},
	StatusScheduled: {StatusSending, StatusExpired},
	StatusSending:   {StatusSent, StatusFailed},
	StatusSent:      {StatusDelivered},
	StatusDelivered: {StatusRead},
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RecipientIDs returns the user ids this row targets: the batch subset for
// broadcast rows, otherwise the single recipient.
func (n *Notification) RecipientIDs() []string {
	if len(n.Recipients) > 0 {
		return n.Recipients
	}
	if n.UserID == "" {
		return nil
	}
	return []string{n.UserID}
}

// IsRecipient reports whether userID is one of the row's recipients.
func (n *Notification) IsRecipient(userID string) bool {
	if n.UserID == userID {
		return true
	}
	for _, r := range n.Recipients {
		if r == userID {
			return true
		}
	}
	return false
}

// IsScheduled reports whether the row is still waiting on its schedule window.
func (n *Notification) IsScheduled() bool {
	return n.ScheduledAt != nil && n.Status == StatusScheduled
}

// ExpiredBy reports whether the row's delivery window has closed at now.
func (n *Notification) ExpiredBy(now time.Time) bool {
	return n.ExpiresAt != nil && !n.ExpiresAt.After(now)
}
