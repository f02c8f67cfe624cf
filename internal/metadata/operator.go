package metadata

// Operator is the authenticated back-office user, set by auth middleware.
// SessionID scopes per-session caches such as relation options.
type Operator struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Roles     []string `json:"roles"`
}

// HasRole checks whether the operator has a specific role.
func (o *Operator) HasRole(role string) bool {
	for _, r := range o.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks whether the operator has at least one of roles.
func (o *Operator) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if o.HasRole(role) {
			return true
		}
	}
	return false
}
