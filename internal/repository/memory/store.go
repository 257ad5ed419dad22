// Package memory is an in-process implementation of every repository used by
// the services. Transactions hold a store-wide lock and roll back by restoring
// a snapshot, so concurrent callers observe serializable behaviour.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kirinyoku/classgo/internal/domain"
)

type txKey struct{ s *Store }

type state struct {
	studios     map[int64]domain.Studio
	seats       map[int64]domain.Seat
	classes     map[int64]domain.Class
	instructors map[int64]domain.Instructor
	certs       map[[2]int64]bool
	sessions    map[int64]domain.ClassSession
	assignments map[int64]domain.SeatAssignment
	waitlist    map[int64]domain.WaitlistEntry
	nextID      int64
	tick        int64
}

func newState() state {
	return state{
		studios:     map[int64]domain.Studio{},
		seats:       map[int64]domain.Seat{},
		classes:     map[int64]domain.Class{},
		instructors: map[int64]domain.Instructor{},
		certs:       map[[2]int64]bool{},
		sessions:    map[int64]domain.ClassSession{},
		assignments: map[int64]domain.SeatAssignment{},
		waitlist:    map[int64]domain.WaitlistEntry{},
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (st state) clone() state {
	return state{
		studios:     cloneMap(st.studios),
		seats:       cloneMap(st.seats),
		classes:     cloneMap(st.classes),
		instructors: cloneMap(st.instructors),
		certs:       cloneMap(st.certs),
		sessions:    cloneMap(st.sessions),
		assignments: cloneMap(st.assignments),
		waitlist:    cloneMap(st.waitlist),
		nextID:      st.nextID,
		tick:        st.tick,
	}
}

type Store struct {
	mu   sync.Mutex
	data state
	now  func() time.Time
}

func New() *Store {
	return &Store{
		data: newState(),
		now:  time.Now,
	}
}

// WithClock sets the clock used for updated_at and created_at columns.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// RunTx runs fn while holding the store lock. Any error restores the state
// observed when the transaction began.
func (s *Store) RunTx(ctx context.Context, _ *pgx.TxOptions, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{s: s}, true)); err != nil {
		s.data = snapshot
		return err
	}

	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{s: s}).(bool)
	return ok
}

// lock acquires the store lock unless ctx already runs inside a transaction
// of this store.
func (s *Store) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

// stamp returns the store clock plus a strictly increasing offset so rows
// created within the same instant keep their insertion order.
func (s *Store) stamp() time.Time {
	s.data.tick++
	return s.now().Add(time.Duration(s.data.tick) * time.Nanosecond)
}

// AddStudio inserts a studio and returns its ID.
func (s *Store) AddStudio(st domain.Studio) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.ID = s.id()
	s.data.studios[st.ID] = st
	return st.ID
}

func (s *Store) AddClass(c domain.Class) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.id()
	s.data.classes[c.ID] = c
	return c.ID
}

func (s *Store) AddInstructor(i domain.Instructor) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	i.ID = s.id()
	s.data.instructors[i.ID] = i
	return i.ID
}

// Certify records that the instructor may teach the discipline.
func (s *Store) Certify(instructorID, disciplineID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.certs[[2]int64{instructorID, disciplineID}] = true
}

// SetAssignment overwrites an assignment row. Counters are not resynced.
func (s *Store) SetAssignment(a domain.SeatAssignment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data.assignments[a.ID] = a
}
