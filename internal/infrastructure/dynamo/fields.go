package dynamo

// DynamoDB attribute names used in update and condition expressions across
// the repos. Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldStatus         = "status"
	fieldUpdatedAt      = "updated_at"
	fieldSentAt         = "sent_at"
	fieldDeliveredAt    = "delivered_at"
	fieldReadAt         = "read_at"
	fieldClicked        = "clicked"
	fieldClickCount     = "click_count"
	fieldFailReason     = "fail_reason"
	fieldDetails        = "delivery_details"
	fieldActive         = "active"
	fieldEnabled        = "notifications_enabled"
	fieldCategoryPrefs  = "category_prefs"
	fieldFailedAttempts = "failed_attempts"
	fieldTenantID       = "tenant_id"
)
