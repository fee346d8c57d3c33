package domain

import "time"

type SessionID string
type EventID string

// Role is the speaker of a turn as understood by the completion API.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Phase is the mode a session is in.
type Phase string

const (
	PhaseOuter Phase = "outer" // setup and guidance
	PhaseInner Phase = "inner" // active play
)

// UserRole is the seat the human takes at the table.
type UserRole string

const (
	UserRolePL UserRole = "PL"
	UserRoleDM UserRole = "DM"
)

// ParseUserRole maps free text onto a UserRole, defaulting to PL.
func ParseUserRole(s string) UserRole {
	if UserRole(s) == UserRoleDM {
		return UserRoleDM
	}
	return UserRolePL
}

type Timestamp = time.Time
