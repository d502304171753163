package janus

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Error is an error reported by the media server, either by the core
// ({"janus":"error"}) or by a plugin (error_code inside plugin data).
type Error struct {
	Code   int    `json:"code"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("janus error %d: %s", e.Code, e.Reason)
}

func pluginError(data json.RawMessage) *Error {
	if len(data) == 0 {
		return nil
	}
	var body struct {
		ErrorCode int    `json:"error_code"`
		Error     string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.ErrorCode == 0 {
		return nil
	}
	return &Error{Code: body.ErrorCode, Reason: body.Error}
}

// ErrCodeNoSuchSession is reported for a connection the server no longer knows.
const ErrCodeNoSuchSession = 458

// IsNoSuchSession reports whether err says the connection is already gone.
func IsNoSuchSession(err error) bool {
	var jerr *Error
	return errors.As(err, &jerr) && jerr.Code == ErrCodeNoSuchSession
}
