package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/freightdesk/loadboard/internal/directory"
	"github.com/freightdesk/loadboard/internal/notifier"
)

// Shared fakes for the external collaborators.

type fakeLoads struct {
	known map[string]bool
	err   error
}

func (f *fakeLoads) LoadExists(ctx context.Context, loadID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[loadID], nil
}

type fakeCarriers struct {
	carriers map[string]*directory.Carrier
	err      error
}

func (f *fakeCarriers) GetCarrier(ctx context.Context, carrierID string) (*directory.Carrier, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.carriers[carrierID], nil
}

// fakeDistance answers WithinRadius from a static pair table keyed by the
// target city.
type fakeDistance struct {
	within map[string]bool
	err    error
}

func (f *fakeDistance) WithinRadius(ctx context.Context, fromCity, fromState, toCity, toState string, miles float64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.within[toCity], nil
}

// recordingNotifier captures events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (r *recordingNotifier) Notify(ctx context.Context, event notifier.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) byType(eventType string) []notifier.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []notifier.Event
	for _, e := range r.events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

var errDirectoryDown = errors.New("directory down")

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }
