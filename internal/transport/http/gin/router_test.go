package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/classgo/internal/domain"
	"github.com/kirinyoku/classgo/internal/repository/memory"
	redisrepo "github.com/kirinyoku/classgo/internal/repository/redis"
	"github.com/kirinyoku/classgo/internal/service"
	"github.com/kirinyoku/classgo/internal/service/conflict"
	"github.com/kirinyoku/classgo/internal/service/importer"
	"github.com/kirinyoku/classgo/internal/service/inventory"
	"github.com/kirinyoku/classgo/internal/service/ledger"
	"github.com/kirinyoku/classgo/internal/service/query"
	"github.com/kirinyoku/classgo/internal/service/reaper"
	"github.com/kirinyoku/classgo/internal/service/waitlist"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, domain.SeatEvent) {}

type fakeIdempotency struct {
	mu      sync.Mutex
	results map[string]string
	locked  map[string]bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{results: map[string]string{}, locked: map[string]bool{}}
}

func (f *fakeIdempotency) Begin(_ context.Context, key string, _ time.Duration) (string, redisrepo.IdemState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.results[key]; ok {
		return p, redisrepo.IdemReplay, nil
	}
	if f.locked[key] {
		return "", redisrepo.IdemInProgress, nil
	}
	f.locked[key] = true
	return "", redisrepo.IdemAcquired, nil
}

func (f *fakeIdempotency) SaveResult(_ context.Context, key, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[key] = payload
	delete(f.locked, key)
	return nil
}

func (f *fakeIdempotency) Release(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locked, key)
	return nil
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (redisrepo.Decision, error) {
	return redisrepo.Decision{Allowed: false, Current: 10, RetryAfter: 1500 * time.Millisecond}, nil
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (redisrepo.Decision, error) {
	return redisrepo.Decision{}, errors.New("dial tcp: connection refused")
}

type fixture struct {
	router      *gin.Engine
	store       *memory.Store
	studioID    int64
	sessionID   int64
	assignments []int64
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.New()
	events := nopDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	layout := domain.Layout{Rows: 1, Columns: 3, Addressing: domain.AddressingRowMajor}
	studioID := store.AddStudio(domain.Studio{Name: "Sala A", Layout: layout, Active: true})
	_, err := store.ReplaceSeats(ctx, studioID, domain.BuildSeatGrid(studioID, layout))
	require.NoError(t, err)

	start := time.Date(2030, 6, 15, 9, 0, 0, 0, time.UTC)
	sessionID, err := store.CreateSession(ctx, &domain.ClassSession{
		StudioID:    studioID,
		Date:        time.Date(2030, 6, 15, 0, 0, 0, 0, time.UTC),
		StartsAt:    start,
		EndsAt:      start.Add(time.Hour),
		MaxCapacity: 3,
		Status:      domain.SessionScheduled,
	})
	require.NoError(t, err)
	_, err = store.InitAssignments(ctx, sessionID)
	require.NoError(t, err)
	_, err = store.SyncCounters(ctx, sessionID)
	require.NoError(t, err)

	led := ledger.New(store, store, store, store, events, ledger.Config{})
	conflicts := conflict.New(store)
	wl := waitlist.New(store, store, store, store, led, events, waitlist.Config{}, logger)
	led.OnSeatFreed(wl.HandleSeatFreed)

	svcs := &service.Services{
		Ledger:    led,
		Inventory: inventory.New(store, store, store, store, events),
		Conflicts: conflicts,
		Importer: importer.New(store, importer.NewValidator(store, conflicts, time.UTC),
			store, store, events, logger),
		Reaper:   reaper.New(store, led, 0, logger),
		Waitlist: wl,
		Query:    query.New(store, store, nil, nil, query.Config{}),
	}

	views, err := store.ListAssignments(ctx, sessionID)
	require.NoError(t, err)

	f := &fixture{
		router:    NewRouter(svcs, opts, logger),
		store:     store,
		studioID:  studioID,
		sessionID: sessionID,
	}
	for _, v := range views {
		f.assignments = append(f.assignments, v.ID)
	}
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestReserveConfirmRelease(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.assignments[0]

	w := f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/reserve", id), `{"user_id": 7}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var a domain.SeatAssignment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &a))
	assert.Equal(t, domain.AssignmentReserved, a.Status)
	require.NotNil(t, a.UserID)
	assert.Equal(t, int64(7), *a.UserID)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/reserve", id), `{"user_id": 8}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "seat unavailable")

	w = f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/confirm", id), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"occupied"`)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/release", id), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"available"`)
}

func TestReserveIdempotencyReplay(t *testing.T) {
	idem := newFakeIdempotency()
	f := newFixture(t, Options{Idempotency: idem})
	path := fmt.Sprintf("/assignments/%d/reserve", f.assignments[1])
	headers := map[string]string{"Idempotency-Key": "abc"}

	first := f.do(t, http.MethodPost, path, `{"user_id": 7}`, headers)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := f.do(t, http.MethodPost, path, `{"user_id": 7}`, headers)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "abc", second.Header().Get("Idempotency-Key"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestReserveRateLimited(t *testing.T) {
	f := newFixture(t, Options{Limiter: denyLimiter{}})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/reserve", f.assignments[0]), `{"user_id": 7}`, nil)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

func TestReserveWhenLimiterFails(t *testing.T) {
	f := newFixture(t, Options{Limiter: brokenLimiter{}})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/reserve", f.assignments[0]), `{"user_id": 7}`, nil)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Empty(t, w.Header().Get("X-RateLimit-Remaining"))
}

func TestReserveBadRequest(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodPost, "/assignments/abc/reserve", `{"user_id": 7}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/reserve", f.assignments[0]), `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConfirmWithoutReservation(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/confirm", f.assignments[2]), "", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAvailabilityETag(t *testing.T) {
	f := newFixture(t, Options{})
	path := fmt.Sprintf("/sessions/%d/availability", f.sessionID)

	w := f.do(t, http.MethodGet, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"available":3`)

	tag := w.Header().Get("ETag")
	require.NotEmpty(t, tag)

	w = f.do(t, http.MethodGet, path, "", map[string]string{"If-None-Match": tag})
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestSessionNotFound(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodGet, "/sessions/999", "", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "session not found")
}

func TestEventsWithoutSubscriber(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodGet, fmt.Sprintf("/sessions/%d/events", f.sessionID), "", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestJoinWaitlistWithFreeSpots(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/sessions/%d/waitlist", f.sessionID), `{"user_id": 7}`, nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "available spots")
}

func TestUpdateLayout(t *testing.T) {
	f := newFixture(t, Options{})
	path := fmt.Sprintf("/admin/studios/%d/layout", f.studioID)

	w := f.do(t, http.MethodPut, path, `{"rows": 2, "columns": 2}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp UpdateLayoutResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Regenerated)
	assert.Equal(t, int64(4), resp.Seats)

	w = f.do(t, http.MethodPut, path, `{"rows": 2, "columns": 2, "addressing": "row_major"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Regenerated)

	w = f.do(t, http.MethodPut, path, `{"rows": 0, "columns": 2}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestImportRejectsInvalidRows(t *testing.T) {
	f := newFixture(t, Options{})

	body := `{"rows": [{"class": "", "instructor_document": "1", "studio": "Sala A",
		"date": "2030-06-20", "start_time": "09:00", "end_time": "10:00", "capacity": 3}]}`

	w := f.do(t, http.MethodPost, "/admin/imports?dry_run=true", body, nil)

	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	var report importer.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Errors, 1)
	assert.True(t, strings.HasPrefix(report.Errors[0], "ROW 1: "))
	assert.True(t, report.DryRun)
}

func TestCancelSession(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/reserve", f.assignments[0]), `{"user_id": 7}`, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/admin/sessions/%d/cancel", f.sessionID), "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"released":1`)

	w = f.do(t, http.MethodPost, fmt.Sprintf("/assignments/%d/reserve", f.assignments[1]), `{"user_id": 8}`, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "booking closed")
}

func TestExpirySweepEndpoint(t *testing.T) {
	f := newFixture(t, Options{})

	w := f.do(t, http.MethodPost, "/admin/jobs/expiry-sweep", "", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"scanned":0`)
}

func TestEtagMatches(t *testing.T) {
	assert.True(t, etagMatches(`"a", W/"b"`, `W/"b"`))
	assert.True(t, etagMatches(`"b"`, `W/"b"`))
	assert.True(t, etagMatches(`*`, `"b"`))
	assert.False(t, etagMatches(``, `"b"`))
	assert.False(t, etagMatches(`"c"`, `"b"`))
}
