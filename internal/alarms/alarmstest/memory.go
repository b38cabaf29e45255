// Package alarmstest provides an in-memory alarm store for tests.
package alarmstest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/tareqmamari/credit-alarms/internal/alarms"
)

// Call is one recorded store call.
type Call struct {
	Op    string
	Names []string
}

// Store is an in-memory alarms.Store. Set the *Err fields to inject failures.
type Store struct {
	mu        sync.Mutex
	metric    map[string]alarms.MetricAlarm
	composite map[string]alarms.CompositeAlarm
	calls     []Call

	PutMetricErr    error
	PutCompositeErr error
	FindErr         error
	ListErr         error
	DeleteErr       error
}

var _ alarms.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		metric:    map[string]alarms.MetricAlarm{},
		composite: map[string]alarms.CompositeAlarm{},
	}
}

func (s *Store) record(op string, names ...string) {
	s.calls = append(s.calls, Call{Op: op, Names: append([]string(nil), names...)})
}

// PutMetricAlarm implements alarms.Store.
func (s *Store) PutMetricAlarm(_ context.Context, a alarms.MetricAlarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PutMetricAlarm", a.Name)
	if s.PutMetricErr != nil {
		return s.PutMetricErr
	}
	s.metric[a.Name] = a
	return nil
}

// PutCompositeAlarm implements alarms.Store.
func (s *Store) PutCompositeAlarm(_ context.Context, a alarms.CompositeAlarm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PutCompositeAlarm", a.Name)
	if s.PutCompositeErr != nil {
		return s.PutCompositeErr
	}
	s.composite[a.Name] = a
	return nil
}

// FindCompositeAlarm implements alarms.Store.
func (s *Store) FindCompositeAlarm(_ context.Context, name string) (*alarms.CompositeAlarm, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FindCompositeAlarm", name)
	if s.FindErr != nil {
		return nil, false, s.FindErr
	}
	a, ok := s.composite[name]
	if !ok {
		return nil, false, nil
	}
	return &a, true, nil
}

// ListAlarmsByPrefix implements alarms.Store.
func (s *Store) ListAlarmsByPrefix(_ context.Context, prefix string) (alarms.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListAlarmsByPrefix", prefix)
	if s.ListErr != nil {
		return alarms.Listing{}, s.ListErr
	}
	var l alarms.Listing
	for name := range s.composite {
		if strings.HasPrefix(name, prefix) {
			l.Composite = append(l.Composite, name)
		}
	}
	for name := range s.metric {
		if strings.HasPrefix(name, prefix) {
			l.Metric = append(l.Metric, name)
		}
	}
	sort.Strings(l.Composite)
	sort.Strings(l.Metric)
	return l, nil
}

// DeleteAlarms implements alarms.Store.
func (s *Store) DeleteAlarms(_ context.Context, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeleteAlarms", names...)
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	for _, n := range names {
		delete(s.metric, n)
		delete(s.composite, n)
	}
	return nil
}

// Metric returns a stored metric alarm.
func (s *Store) Metric(name string) (alarms.MetricAlarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.metric[name]
	return a, ok
}

// Composite returns a stored composite alarm.
func (s *Store) Composite(name string) (alarms.CompositeAlarm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.composite[name]
	return a, ok
}

// CompositeCount is the number of stored composite alarms.
func (s *Store) CompositeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.composite)
}

// Calls returns the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsTo returns the recorded calls of one operation.
func (s *Store) CallsTo(op string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}
