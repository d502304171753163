// Package domain contains entities without logic, just meta-data and the
// invariants their keys carry.
package domain

import "errors"

const (
	MaxUserIDLen = 64
)

var (
	ErrUserIDTooLong = errors.New("user id too long")
	ErrUserIDEmpty   = errors.New("user id empty")
)

type (
	UserID  string
	QueueID string
)

// ParseUserID validates an identifier coming from a session or a request.
func ParseUserID(raw string) (UserID, error) {
	if len(raw) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(raw), nil
}
