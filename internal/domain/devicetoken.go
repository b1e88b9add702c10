package domain

import "time"

// Channel identifies which third-party provider a token belongs to.
type Channel string

const (
	ChannelFCM       Channel = "fcm"
	ChannelOneSignal Channel = "onesignal"
	ChannelAPNS      Channel = "apns"
)

// Platform is the client platform the token was issued for.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

// ValidChannel reports whether c is a known delivery channel.
func ValidChannel(c Channel) bool {
	switch c {
	case ChannelFCM, ChannelOneSignal, ChannelAPNS:
		return true
	}
	return false
}

// ValidPlatform reports whether p is a known client platform.
func ValidPlatform(p Platform) bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	}
	return false
}

// DeviceToken maps a user's device to a provider-specific delivery address.
// At most one token per (user_id, device_id) is active; superseded and
// invalidated rows are kept deactivated for audit, never deleted.
type DeviceToken struct {
	TokenID        string            `json:"id" dynamodbav:"token_id"`
	TenantID       string            `json:"tenant_id" dynamodbav:"tenant_id"`
	UserID         string            `json:"user_id" dynamodbav:"user_id"`
	DeviceID       string            `json:"device_id" dynamodbav:"device_id"`
	UserDevice     string            `json:"-" dynamodbav:"user_device"`
	Token          string            `json:"token" dynamodbav:"token"`
	Channel        Channel           `json:"channel" dynamodbav:"channel"`
	Platform       Platform          `json:"platform" dynamodbav:"platform"`
	Locale         string            `json:"locale,omitempty" dynamodbav:"locale,omitempty"`
	Timezone       string            `json:"timezone,omitempty" dynamodbav:"timezone,omitempty"`
	UserRole       string            `json:"user_role,omitempty" dynamodbav:"user_role,omitempty"`
	Enabled        bool              `json:"notifications_enabled" dynamodbav:"notifications_enabled"`
	CategoryPrefs  map[Category]bool `json:"category_prefs,omitempty" dynamodbav:"category_prefs,omitempty"`
	Active         bool              `json:"active" dynamodbav:"active"`
	FailedAttempts int               `json:"failed_attempts" dynamodbav:"failed_attempts"`
	CreatedAt      time.Time         `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time         `json:"updated" dynamodbav:"updated_at"`
}

// UserDeviceKey builds the composite attribute used by the user_device GSI.
func UserDeviceKey(userID, deviceID string) string {
	return userID + "#" + deviceID
}

// AllowsCategory reports whether the token's preferences accept the given
// category. Absent entries default to allowed; only an explicit false opts out.
func (t *DeviceToken) AllowsCategory(c Category) bool {
	if t.CategoryPrefs == nil {
		return true
	}
	allowed, ok := t.CategoryPrefs[c]
	if !ok {
		return true
	}
	return allowed
}
