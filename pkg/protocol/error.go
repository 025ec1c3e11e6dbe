// Package protocol defines the error taxonomy shared by the DroneMobile client packages.
package protocol

import (
	"errors"
	"fmt"
	"net/http"
)

// Error exposes methods useful for categorizing errors.
type Error interface {
	error

	// MayHaveSucceeded returns true if the Error was triggered by a command that might have been
	// executed. For example, if a client times out while waiting for a response, then the client
	// cannot tell if the command was received. (Not all timeouts mean the command MayHaveSucceeded,
	// so the common Timeout() error interface is not appropriate here).
	MayHaveSucceeded() bool

	// Temporary returns true if the Error might be the result of a transient condition. For
	// example, the API returns rate-limit errors that resolve on their own after a cool-down
	// period.
	Temporary() bool
}

var (
	// ErrInvalidCredentials indicates the account email or password was rejected.
	ErrInvalidCredentials = NewError("invalid username or password", false, false)
	// ErrTokenExpired indicates no refresh token is available and a full login is required.
	ErrTokenExpired = NewError("no refresh token available", false, false)
	// ErrVehicleNotFound indicates the account has no vehicle with the requested ID.
	ErrVehicleNotFound = NewError("vehicle not found", false, false)
	// ErrRateLimited indicates the API rejected a request because the client sent too many.
	ErrRateLimited = NewError("API rate limit exceeded", false, true)
	// ErrInvalidCommand indicates a command name the DroneMobile API does not recognize. The
	// client rejects these before sending any network traffic.
	ErrInvalidCommand = errors.New("unrecognized command")
)

// CommandError wraps an error encountered while issuing a command to the API or a vehicle.
type CommandError struct {
	Err               error
	PossibleSuccess   bool
	PossibleTemporary bool
}

func NewError(message string, mayHaveSucceeded bool, temporary bool) error {
	return &CommandError{Err: errors.New(message), PossibleSuccess: mayHaveSucceeded, PossibleTemporary: temporary}
}

func (e *CommandError) Error() string {
	return e.Err.Error()
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func (e *CommandError) MayHaveSucceeded() bool {
	return e.PossibleSuccess
}

func (e *CommandError) Temporary() bool {
	return e.PossibleTemporary
}

// HTTPError represents an API response with a status code the client does not map to a more
// specific error.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return http.StatusText(e.Code)
	}
	return e.Message
}

func (e *HTTPError) MayHaveSucceeded() bool {
	if e.Code >= 400 && e.Code < 500 {
		return false
	}
	return e.Code != http.StatusServiceUnavailable
}

func (e *HTTPError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests
}

// FailedCommandError indicates the API accepted a command but the device could not execute it.
// The Detail string is reported by the server.
type FailedCommandError struct {
	Command string
	Detail  string
}

func (e *FailedCommandError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("command %s failed", e.Command)
	}
	return fmt.Sprintf("command %s failed: %s", e.Command, e.Detail)
}

func (e *FailedCommandError) MayHaveSucceeded() bool {
	return false
}

func (e *FailedCommandError) Temporary() bool {
	return false
}

// AuthenticationError indicates a failure obtaining or refreshing a token that is not attributable
// to bad credentials.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Err.Error()
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

func (e *AuthenticationError) MayHaveSucceeded() bool {
	return false
}

func (e *AuthenticationError) Temporary() bool {
	return Temporary(e.Err)
}

// MayHaveSucceeded returns true if err indicates the command may have been executed but the client
// did not receive a confirmation.
func MayHaveSucceeded(err error) bool {
	if commErr, ok := err.(Error); ok && commErr.MayHaveSucceeded() {
		return true
	}
	return false
}

// Temporary returns true if err indicates the command failed due to possibly transient conditions
// that do not require user action to resolve.
func Temporary(err error) bool {
	if commErr, ok := err.(Error); ok && commErr.Temporary() {
		return true
	}
	return false
}

// ShouldRetry returns true if the client should retry to issue the command that triggered an error.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if e, ok := err.(Error); ok {
		if e.MayHaveSucceeded() {
			return false
		}
		if e.Temporary() {
			return true
		}
	}
	return false
}
