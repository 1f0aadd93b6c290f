// Package errors defines the closed error surface of the upstream access
// layer. Callers receive one of these kinds per failed fetch, never a raw
// upstream status code.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failed upstream fetch.
type Kind int

const (
	// KindQuarantined: the community is quarantined and the caller did not
	// opt in to viewing it.
	KindQuarantined Kind = iota + 1
	// KindGated: the community requires an age/content acknowledgment that
	// cannot be supplied through the API.
	KindGated
	// KindPrivate: the community is private.
	KindPrivate
	// KindBanned: the community has been banned.
	KindBanned
	// KindNotFound: the resource does not exist.
	KindNotFound
	// KindRateLimited: upstream throttled the request and the retry budget
	// was exhausted.
	KindRateLimited
	// KindUpstream: unclassified non-2xx response after retries.
	KindUpstream
	// KindDecode: a 2xx response carried a malformed or non-JSON body.
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindQuarantined:
		return "quarantined"
	case KindGated:
		return "gated"
	case KindPrivate:
		return "private"
	case KindBanned:
		return "banned"
	case KindNotFound:
		return "not found"
	case KindRateLimited:
		return "rate limited"
	case KindUpstream:
		return "upstream"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// FetchError is returned for every failed upstream fetch. StatusCode is the
// last observed upstream status, zero when the failure happened before a
// response arrived.
type FetchError struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "fetch error (%s)", e.Kind)
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status code %d", e.StatusCode)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is (or wraps) a FetchError of the given kind.
func IsKind(err error, k Kind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == k
}

// IsNotFound reports whether err classifies as a missing resource.
func IsNotFound(err error) bool { return IsKind(err, KindNotFound) }

// IsQuarantined reports whether err classifies as a quarantined community.
func IsQuarantined(err error) bool { return IsKind(err, KindQuarantined) }

// AuthError indicates that credential acquisition or refresh failed. The
// token store surfaces the same AuthError to every caller waiting on the
// failed refresh; the store itself remains usable for a later retry.
type AuthError struct {
	StatusCode int
	// Body contains the raw response body from the server, which may hold more details.
	Body string
	// Err is the underlying error that occurred, e.g., a network or JSON parsing error.
	Err error
}

func (e *AuthError) Error() string {
	var sb strings.Builder
	sb.WriteString("auth error")
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, ": status code %d", e.StatusCode)
	}
	if e.Body != "" {
		fmt.Fprintf(&sb, ", body: %q", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ", err: %v", e.Err)
	}
	return sb.String()
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuth reports whether err is (or wraps) an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// ConfigError indicates a problem with the client configuration or with a
// caller-supplied parameter.
type ConfigError struct {
	// Field contains the name of the configuration field that caused the error
	Field string
	// Message contains the detailed error message
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}
