// Package notifier provides the channel transports that deliver alerts.
// Each transport implements Sender for one channel kind and reads its
// settings from the channel on every send.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/good-yellow-bee/beacon/internal/channels"
	"github.com/good-yellow-bee/beacon/internal/models"
)

// ErrMisconfigured marks errors caused by channel configuration. Such
// failures are not retried.
var ErrMisconfigured = errors.New("channel misconfigured")

// misconfigured wraps ErrMisconfigured with details.
func misconfigured(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMisconfigured, fmt.Sprintf(format, args...))
}

// Sender delivers alerts over one channel kind.
type Sender interface {
	// Kind returns the channel kind this sender serves.
	Kind() models.ChannelKind
	// Send delivers alert through ch.
	Send(ctx context.Context, alert *models.Alert, ch channels.Channel) error
}

// HealthChecker is implemented by senders that can report reachability.
type HealthChecker interface {
	Check(ctx context.Context, ch channels.Channel) error
}

// Senders maps channel kinds to senders.
type Senders struct {
	mu      sync.RWMutex
	senders map[models.ChannelKind]Sender
}

// NewSenders creates a set with the given senders registered.
func NewSenders(senders ...Sender) *Senders {
	s := &Senders{senders: make(map[models.ChannelKind]Sender)}
	for _, sender := range senders {
		s.Register(sender)
	}
	return s
}

// Register adds a sender, replacing any sender of the same kind.
func (s *Senders) Register(sender Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.senders[sender.Kind()] = sender
}

// Get returns the sender for kind.
func (s *Senders) Get(kind models.ChannelKind) (Sender, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sender, ok := s.senders[kind]
	return sender, ok
}

// Kinds returns the registered kinds, sorted.
func (s *Senders) Kinds() []models.ChannelKind {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]models.ChannelKind, 0, len(s.senders))
	for kind := range s.senders {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Close closes every sender that holds resources.
func (s *Senders) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for kind, sender := range s.senders {
		if c, ok := sender.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			}
		}
	}
	return errors.Join(errs...)
}
