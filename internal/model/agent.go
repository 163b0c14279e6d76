package model

import "github.com/google/uuid"

// Role is the RBAC role carried in JWT claims.
type Role string

// Roles, least to most privileged. Readers query brains, agents additionally
// submit insights, operators manage brain lifecycle and seeding, admins
// manage credentials.
const (
	RoleReader   Role = "reader"
	RoleAgent    Role = "agent"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleRank = map[Role]int{
	RoleReader:   0,
	RoleAgent:    1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// ValidRole reports whether r is a recognized role.
func ValidRole(r Role) bool {
	_, ok := roleRank[r]
	return ok
}

// RoleAtLeast reports whether role meets or exceeds min.
func RoleAtLeast(role, min Role) bool {
	rr, ok := roleRank[role]
	if !ok {
		return false
	}
	mr, ok := roleRank[min]
	if !ok {
		return false
	}
	return rr >= mr
}

// Agent is an authenticated API caller.
type Agent struct {
	ID      uuid.UUID `json:"id"`
	AgentID string    `json:"agent_id"`
	Role    Role      `json:"role"`
}
