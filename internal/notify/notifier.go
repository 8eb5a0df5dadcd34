// Package notify delivers best-effort notifications about new contact
// messages. Failures are returned to the caller for logging; nothing here
// retries or queues.
package notify

import (
	"context"
	"errors"
	"strings"

	"portfolioapi/pkg/domain"
)

// Notifier announces a persisted contact message to the site owner.
type Notifier interface {
	NotifyContact(ctx context.Context, msg domain.ContactMessage) error
	// Name identifies the transport in logs.
	Name() string
}

// Noop is used when no transport is configured.
type Noop struct{}

func (Noop) NotifyContact(context.Context, domain.ContactMessage) error { return nil }
func (Noop) Name() string                                              { return "none" }

// Multi fans a notification out to every transport and joins their errors.
type Multi []Notifier

func (m Multi) NotifyContact(ctx context.Context, msg domain.ContactMessage) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyContact(ctx, msg); err != nil {
			errs = append(errs, &TransportError{Transport: n.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n.Name())
	}
	return strings.Join(names, "+")
}

// Combine drops nil and Noop entries and returns the simplest Notifier for
// the rest.
func Combine(notifiers ...Notifier) Notifier {
	var live Multi
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		if _, ok := n.(Noop); ok {
			continue
		}
		live = append(live, n)
	}
	switch len(live) {
	case 0:
		return Noop{}
	case 1:
		return live[0]
	default:
		return live
	}
}

// TransportError tags a failure with the transport that produced it.
type TransportError struct {
	Transport string
	Err       error
}

func (e *TransportError) Error() string { return e.Transport + ": " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }
