package model

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Caller is the verified identity forwarded by the gateway. It is trusted as given.
type Caller struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Role   string `json:"role" validate:"required,oneof=admin user"`
}

func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
