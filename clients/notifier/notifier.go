package notifier

import (
	"context"
	"errors"
)

// Notification is one message with an optional attached image.
type Notification struct {
	Content  string
	Image    []byte // PNG bytes, may be nil
	FileName string

	// Title and URL are set for announcements rather than trades.
	Title string
	URL   string
}

// Notifier is the interface for delivering notifications to a channel.
type Notifier interface {
	// Send delivers the notification. Delivery is attempted once.
	Send(ctx context.Context, n Notification) error

	// Close cleans up any resources.
	Close() error
}

// MultiNotifier broadcasts notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a new MultiNotifier with the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	// Filter out nil notifiers
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &MultiNotifier{notifiers: active}
}

// Send delivers to every registered notifier and joins their errors.
func (m *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if len(m.notifiers) == 0 {
		return ErrNoChannels
	}

	var errs []error
	for _, nt := range m.notifiers {
		if err := nt.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all registered notifiers.
func (m *MultiNotifier) Close() error {
	var lastErr error
	for _, n := range m.notifiers {
		if err := n.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Count returns the number of active notifiers.
func (m *MultiNotifier) Count() int {
	return len(m.notifiers)
}

// ErrNoChannels is returned when a MultiNotifier has nothing to deliver to.
var ErrNoChannels = errors.New("no notification channels configured")

// Truncate cuts s to at most limit runes. A non-positive limit disables it.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
