// Package rpc defines the method table services expose to remote callers.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"inkboard/internal/models"
)

// ErrInvalidParams is returned when a call's params cannot be decoded.
var ErrInvalidParams = errors.New("invalid params")

// ErrLoginRequired is returned by methods that need an authenticated caller.
var ErrLoginRequired = errors.New("login required")

// Call is one remote invocation. User is nil for anonymous callers.
// SessionToken is the caller's session cookie value, when there is one.
type Call struct {
	User         *models.User
	SessionToken string
	Params       json.RawMessage
}

// Method handles one named remote call.
type Method func(ctx context.Context, call Call) (any, error)

// Provider is implemented by services that expose remote methods.
type Provider interface {
	Methods() map[string]Method
}

// Decode unmarshals params into dst. Empty params leave dst untouched.
func (c Call) Decode(dst any) error {
	trimmed := bytes.TrimSpace(c.Params)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// RequireUser returns the caller or ErrLoginRequired.
func (c Call) RequireUser() (*models.User, error) {
	if c.User == nil {
		return nil, ErrLoginRequired
	}
	return c.User, nil
}
