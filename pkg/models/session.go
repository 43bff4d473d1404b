// Package models contains domain models for notionstamp.
package models

import "time"

// Session is the logging period bound to one Notion database.
// The zero value is an inactive session.
type Session struct {
	Active     bool   `json:"active"`
	DatabaseID string `json:"databaseId"`
	StartTime  int64  `json:"startTime"` // epoch milliseconds, 0 when unset
}

// Reset returns the session to its inactive zero state.
func (s *Session) Reset() {
	*s = Session{}
}

// StatusLevel mirrors the host's instance status indicator.
type StatusLevel string

const (
	StatusOK           StatusLevel = "ok"
	StatusConnecting   StatusLevel = "connecting"
	StatusBadConfig    StatusLevel = "bad_config"
	StatusUnknownError StatusLevel = "unknown_error"
)

// Status is the last health report of the relay.
type Status struct {
	Level      StatusLevel `json:"level"`
	Message    string      `json:"message,omitempty"`
	Code       string      `json:"code,omitempty"`
	HTTPStatus int         `json:"httpStatus,omitempty"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Healthy reports whether the status is ok.
func (s Status) Healthy() bool {
	return s.Level == StatusOK
}

// Snapshot is a point-in-time copy of session and status.
type Snapshot struct {
	Session Session `json:"session"`
	Status  Status  `json:"status"`
}
