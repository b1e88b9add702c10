package domain

// Role names carried on JWT claims and denormalized onto device tokens for
// audience targeting.
const (
	RoleAdmin   = "admin"
	RoleService = "service"
	RoleUser    = "user"
)
