package domain

import "time"

// MaxRecipients caps the recipient list of one record. The validate tag on
// Recipients carries the same literal, and broadcast batch sizing clamps to
// it so batch rows always pass creation.
const MaxRecipients = 1000

// CreateNotificationRequest is the validated input for creating a
// notification row. Exactly one of UserID or Recipients must be set.
type CreateNotificationRequest struct {
	TenantID    string            `json:"-" validate:"required"`
	UserID      string            `json:"user_id" validate:"required_without=Recipients"`
	Recipients  []string          `json:"recipients,omitempty" validate:"required_without=UserID,max=1000,dive,required"`
	Type        string            `json:"type" validate:"required"`
	Category    Category          `json:"category" validate:"required"`
	Priority    Priority          `json:"priority,omitempty"`
	Title       string            `json:"title" validate:"required"`
	Body        string            `json:"body" validate:"required"`
	Data        map[string]string `json:"data,omitempty"`
	ImageURL    string            `json:"image_url,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	Sound       string            `json:"sound,omitempty"`
	ActionURL   string            `json:"action_url,omitempty"`
	Actions     []Action          `json:"actions,omitempty" validate:"dive"`
	Refs        Refs              `json:"refs,omitempty"`
	BatchID     string            `json:"batch_id,omitempty"`
	CampaignID  string            `json:"campaign_id,omitempty"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	CreatedBy   string            `json:"-"`
}

// RegisterTokenRequest is the validated input for device token registration.
type RegisterTokenRequest struct {
	TenantID      string            `json:"-" validate:"required"`
	UserID        string            `json:"-" validate:"required"`
	DeviceID      string            `json:"device_id" validate:"required"`
	Token         string            `json:"token" validate:"required"`
	Channel       Channel           `json:"channel" validate:"required"`
	Platform      Platform          `json:"platform" validate:"required"`
	Locale        string            `json:"locale,omitempty"`
	Timezone      string            `json:"timezone,omitempty"`
	UserRole      string            `json:"-"`
	Enabled       *bool             `json:"notifications_enabled,omitempty"`
	CategoryPrefs map[Category]bool `json:"category_prefs,omitempty"`
}

// TargetCriteria selects the audience of a broadcast from the token registry.
type TargetCriteria struct {
	Platform        Platform   `json:"platform,omitempty"`
	Roles           []string   `json:"roles,omitempty"`
	Locale          string     `json:"locale,omitempty"`
	LastActiveAfter *time.Time `json:"last_active_after,omitempty"`
}

// BroadcastRequest fans one notification out to every matching user, sliced
// into bounded batches.
type BroadcastRequest struct {
	TenantID   string            `json:"-" validate:"required"`
	Type       string            `json:"type" validate:"required"`
	Category   Category          `json:"category" validate:"required"`
	Priority   Priority          `json:"priority,omitempty"`
	Title      string            `json:"title" validate:"required"`
	Body       string            `json:"body" validate:"required"`
	Data       map[string]string `json:"data,omitempty"`
	ImageURL   string            `json:"image_url,omitempty"`
	ActionURL  string            `json:"action_url,omitempty"`
	CampaignID string            `json:"campaign_id,omitempty"`
	ExpiresAt  *time.Time        `json:"expires_at,omitempty"`
	Target     TargetCriteria    `json:"target_criteria"`
	CreatedBy  string            `json:"-"`
}

// TokenCriteria narrows an active-token lookup.
type TokenCriteria struct {
	Platform Platform
	Locale   string
	Category Category
}

// ListNotificationsQuery is the paginated read-model filter.
type ListNotificationsQuery struct {
	Category   Category
	UnreadOnly bool
	Limit      int
	Cursor     string
}

// InteractionKind distinguishes user interaction endpoints.
type InteractionKind string

const (
	InteractionRead  InteractionKind = "read"
	InteractionClick InteractionKind = "click"
)
