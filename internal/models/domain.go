package models

import (
	"fmt"
	"strings"
)

// LogType defines the kinds of records written to the logs collection.
type LogType string

const (
	LogStartup LogType = "startup"
	LogError   LogType = "error"
)

// UserRole defines account roles.
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// IdleState is a collaborator presence state.
type IdleState string

const (
	IdleActive IdleState = "active"
	IdleIdle   IdleState = "idle"
	IdleAway   IdleState = "away"
)

const (
	BoardTitleMaxRunes = 200
	DefaultBoardTitle  = "Untitled board"
)

var validLogTypes = map[LogType]struct{}{
	LogStartup: {},
	LogError:   {},
}

var validRoles = map[UserRole]struct{}{
	RoleAdmin:  {},
	RoleMember: {},
}

var validIdleStates = map[IdleState]struct{}{
	IdleActive: {},
	IdleIdle:   {},
	IdleAway:   {},
}

func IsValidLogType(t LogType) bool {
	_, ok := validLogTypes[t]
	return ok
}

func IsValidRole(role UserRole) bool {
	_, ok := validRoles[role]
	return ok
}

func IsValidIdleState(state IdleState) bool {
	_, ok := validIdleStates[state]
	return ok
}

// ParseLogType normalizes and validates a log type string.
func ParseLogType(raw string) (LogType, error) {
	t := LogType(strings.ToLower(strings.TrimSpace(raw)))
	if !IsValidLogType(t) {
		return "", fmt.Errorf("invalid log type: %s", raw)
	}
	return t, nil
}

// ParseRole normalizes and validates a role string.
func ParseRole(raw string) (UserRole, error) {
	role := UserRole(strings.ToLower(strings.TrimSpace(raw)))
	if !IsValidRole(role) {
		return "", fmt.Errorf("invalid role: %s", raw)
	}
	return role, nil
}
