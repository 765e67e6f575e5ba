package broker

import (
	"errors"
	"fmt"

	"github.com/pithecene-io/playdl/authflow"
	"github.com/pithecene-io/playdl/ipc"
	"github.com/pithecene-io/playdl/types"
)

var (
	// ErrAuthFailed matches every *AuthError.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrInteractionIncomplete matches every *InteractionError.
	ErrInteractionIncomplete = errors.New("interaction not completed")
	// ErrConnectTimeout is returned when binding to the broker exceeds its
	// bound. It is not retried.
	ErrConnectTimeout = errors.New("broker connection timed out")
	// ErrNoCredential is returned when no credential exists after login.
	ErrNoCredential = errors.New("could not get credentials")
)

// AuthError is a login or validation failure.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string { return "Login failed: " + e.Message }

// Is reports ErrAuthFailed.
func (e *AuthError) Is(target error) bool { return target == ErrAuthFailed }

// InteractionError is a login the user dismissed or that never reached a
// terminal state.
type InteractionError struct {
	// Code is the login result code.
	Code    int
	Message string
}

func (e *InteractionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("interaction not completed (result code %d)", e.Code)
	}
	return fmt.Sprintf("interaction not completed (result code %d): %s", e.Code, e.Message)
}

// Is reports ErrInteractionIncomplete.
func (e *InteractionError) Is(target error) bool { return target == ErrInteractionIncomplete }

// ConnectError is a failure to reach the broker socket.
type ConnectError struct {
	Socket string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to broker at %s: %v", e.Socket, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// ContractError is a broker speaking an incompatible contract version.
type ContractError struct {
	Remote string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("broker speaks contract %q, client speaks %q", e.Remote, types.ContractVersion)
}

// outcomeError maps a login outcome to the broker error taxonomy.
func outcomeError(o authflow.Outcome) error {
	switch o.Code {
	case authflow.ResultOK:
		return nil
	case authflow.ResultFailed:
		return &AuthError{Message: o.Message()}
	default:
		return &InteractionError{Code: int(o.Code), Message: o.Message()}
	}
}

// toWire classifies err for the socket.
func toWire(err error) *ipc.WireError {
	var ae *AuthError
	if errors.As(err, &ae) {
		return &ipc.WireError{Kind: ipc.ErrorKindAuth, Message: ae.Message}
	}
	var ie *InteractionError
	if errors.As(err, &ie) {
		return &ipc.WireError{Kind: ipc.ErrorKindInteraction, Message: ie.Message, Code: ie.Code}
	}
	return &ipc.WireError{Kind: ipc.ErrorKindInternal, Message: err.Error()}
}

// fromWire restores a typed error from the socket.
func fromWire(w *ipc.WireError) error {
	switch w.Kind {
	case ipc.ErrorKindAuth:
		return &AuthError{Message: w.Message}
	case ipc.ErrorKindInteraction:
		return &InteractionError{Code: w.Code, Message: w.Message}
	}
	return fmt.Errorf("broker: %s", w.Message)
}
