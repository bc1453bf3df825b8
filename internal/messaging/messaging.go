// Package messaging delivers outbound text to candidates and interviewers.
//
// Handles are either E.164 phone numbers (chat channel) or email addresses.
// Router picks the transport from the handle's shape.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnsupportedHandle is returned when no transport accepts a handle.
var ErrUnsupportedHandle = errors.New("messaging: unsupported handle")

// Sender delivers text to a handle. Implementations must honour ctx deadlines.
type Sender interface {
	Send(ctx context.Context, handle, text string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, handle, text string) error

// Send implements Sender.
func (f SenderFunc) Send(ctx context.Context, handle, text string) error {
	return f(ctx, handle, text)
}

// DeliveryError wraps a transport failure with the handle it was addressed to.
type DeliveryError struct {
	Transport string
	Handle    string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery to %s: %v", e.Transport, e.Handle, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsEmail reports whether handle looks like an email address.
func IsEmail(handle string) bool {
	at := strings.LastIndex(handle, "@")
	return at > 0 && at < len(handle)-1
}

// NormalizeHandle canonicalizes an inbound or stored handle. Email addresses
// are lower-cased. Phone numbers lose the chat channel prefix and every
// non-digit; ten digit national numbers get the default country code.
func NormalizeHandle(raw, defaultCountryCode string) (string, bool) {
	handle := strings.TrimSpace(raw)
	if len(handle) >= 9 && strings.EqualFold(handle[:9], "whatsapp:") {
		handle = strings.TrimSpace(handle[9:])
	}
	if handle == "" {
		return "", false
	}
	if IsEmail(handle) {
		return strings.ToLower(handle), true
	}

	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, handle)

	switch {
	case len(digits) == 10:
		cc := strings.TrimPrefix(strings.TrimSpace(defaultCountryCode), "+")
		return "+" + cc + digits, true
	case len(digits) > 10:
		return "+" + digits, true
	default:
		return "", false
	}
}

// Router sends email handles through Email and everything else through Chat.
type Router struct {
	Chat  Sender
	Email Sender
}

// Send implements Sender.
func (r Router) Send(ctx context.Context, handle, text string) error {
	target := r.Chat
	if IsEmail(handle) {
		target = r.Email
	}
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnsupportedHandle, handle)
	}
	return target.Send(ctx, handle, text)
}
