package models

import "time"

// Roles carried by an operation context
const (
	RoleOperator = "operator"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
)

// SystemActor attributes mutations made by the engine itself.
const SystemActor = "system"

// OpContext carries per-operation attribution and limits. It is passed explicitly
// to every mutating operation instead of being read from ambient state.
type OpContext struct {
	Actor      string        `json:"actor"`
	ClientHost string        `json:"client_host,omitempty"`
	Role       string        `json:"role,omitempty"`
	LockWait   time.Duration `json:"-"` // zero means the configured default
}

// SystemOp is the context used by scheduled sweeps and cascades.
func SystemOp() OpContext {
	return OpContext{Actor: SystemActor, Role: RoleSystem}
}

// IsAdmin reports whether the actor may run administrative operations.
func (o OpContext) IsAdmin() bool {
	return o.Role == RoleAdmin
}
