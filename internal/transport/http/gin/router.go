package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/kirinyoku/classgo/internal/domain"
	redisrepo "github.com/kirinyoku/classgo/internal/repository/redis"
	"github.com/kirinyoku/classgo/internal/service"
)

const idempotencyLockTTL = 60 * time.Second

type Idempotency interface {
	Begin(ctx context.Context, key string, lockTTL time.Duration) (string, redisrepo.IdemState, error)
	SaveResult(ctx context.Context, key string, jsonPayload string) error
	Release(ctx context.Context, key string) error
}

type RateLimiter interface {
	Allow(ctx context.Context, suffix string) (redisrepo.Decision, error)
}

// Options holds the optional collaborators of the router. Nil fields turn the
// matching feature off.
type Options struct {
	Idempotency Idempotency
	Limiter     RateLimiter
	Gatherer    prometheus.Gatherer
	Middlewares []gin.HandlerFunc
}

func NewRouter(
	svcs *service.Services,
	opts Options,
	logger *slog.Logger,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), RequestIDMiddleware(), LoggingMiddleware(logger), CORS())
	for _, m := range opts.Middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	// Public API
	r.GET("/sessions", handleListSessions(svcs))
	r.GET("/sessions/:id", handleGetSession(svcs))
	r.GET("/sessions/:id/availability", handleGetAvailability(svcs))
	r.GET("/sessions/:id/seats", handleSeatMap(svcs))
	r.GET("/sessions/:id/events", handleSessionEvents(svcs, logger))
	r.POST("/sessions/:id/waitlist", handleJoinWaitlist(svcs))

	r.POST("/assignments/:id/reserve", handleReserve(svcs, opts.Idempotency, opts.Limiter, logger))
	r.POST("/assignments/:id/confirm", handleConfirm(svcs))
	r.POST("/assignments/:id/release", handleRelease(svcs))

	// Admin-API
	// TODO: add admin middleware
	admin := r.Group("/admin")
	{
		admin.PUT("/studios/:id/layout", handleUpdateLayout(svcs))
		admin.POST("/studios/:id/seats/regenerate", handleRegenerateSeats(svcs))
		admin.PATCH("/seats/:id", handleSetSeatActive(svcs))
		admin.POST("/sessions/:id/assignments", handleGenerateAssignments(svcs))
		admin.POST("/sessions/:id/cancel", handleCancelSession(svcs))
		admin.POST("/sessions/:id/waitlist/promote", handlePromoteWaitlist(svcs))
		admin.POST("/assignments/:id/block", handleBlock(svcs))
		admin.POST("/assignments/:id/complete", handleComplete(svcs))
		admin.POST("/imports", handleImport(svcs))
		admin.POST("/jobs/expiry-sweep", handleExpirySweep(svcs))
		admin.POST("/jobs/waitlist-sweep", handleWaitlistSweep(svcs))
	}

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  List sessions
// @Param    studio_id      query  int     false  "Studio ID"
// @Param    instructor_id  query  int     false  "Instructor ID"
// @Param    from           query  string  false  "RFC3339 lower bound of starts_at"
// @Param    to             query  string  false  "RFC3339 upper bound of starts_at"
// @Param    status         query  string  false  "scheduled, in_progress, completed, cancelled, postponed"
// @Param    limit          query  int     false  "page size"
// @Param    offset         query  int     false  "offset"
// @Success  200  {array}   domain.ClassSession
// @Failure  400  {object}  ErrorResponse
// @Router   /sessions [get]
func handleListSessions(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var f domain.SessionFilter

		for name, dst := range map[string]**int64{
			"studio_id":     &f.StudioID,
			"instructor_id": &f.InstructorID,
		} {
			if s := c.Query(name); s != "" {
				v, err := strconv.ParseInt(s, 10, 64)
				if err != nil {
					badRequest(c, "invalid "+name)
					return
				}
				*dst = &v
			}
		}

		for name, dst := range map[string]**time.Time{
			"from": &f.From,
			"to":   &f.To,
		} {
			if s := c.Query(name); s != "" {
				t, err := parseRFC3339(s)
				if err != nil {
					badRequest(c, "invalid "+name+" (RFC3339)")
					return
				}
				*dst = &t
			}
		}

		if s := c.Query("status"); s != "" {
			st := domain.SessionStatus(s)
			if !st.Valid() {
				badRequest(c, "invalid status")
				return
			}
			f.Status = &st
		}

		f.Limit = parseIntDefault(c.Query("limit"), 0)
		f.Offset = parseIntDefault(c.Query("offset"), 0)

		sessions, err := svcs.Query.ListSessions(c.Request.Context(), f)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, sessions, "public, max-age=15", true)
	}
}

// @Summary  Get session
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  domain.ClassSession
// @Failure  404  {object}  ErrorResponse
// @Router   /sessions/{id} [get]
func handleGetSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		s, err := svcs.Query.GetSession(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, s, "public, max-age=60", true)
	}
}

// @Summary  Get availability counters
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  query.Availability
// @Failure  404  {object}  ErrorResponse
// @Router   /sessions/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Query.Availability(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, a, "public, max-age=5", true)
	}
}

// @Summary  Seat map of a session
// @Param    id  path  int  true  "Session ID"
// @Success  200  {array}   domain.SeatAssignmentView
// @Failure  404  {object}  ErrorResponse
// @Router   /sessions/{id}/seats [get]
func handleSeatMap(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seats, err := svcs.Query.SeatMap(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, seats, "public, max-age=5", true)
	}
}

// @Summary  Stream seat events of a session (server-sent events)
// @Param    id  path  int  true  "Session ID"
// @Produce  text/event-stream
// @Success  200  {object}  domain.SeatEvent
// @Failure  503  {object}  ErrorResponse
// @Router   /sessions/{id}/events [get]
func handleSessionEvents(svcs *service.Services, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if _, err := svcs.Query.GetSession(c.Request.Context(), sessionID); err != nil {
			respondErr(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		err := svcs.Query.Stream(c.Request.Context(), sessionID, func(ev domain.SeatEvent) {
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
		})
		if err != nil {
			if !c.Writer.Written() {
				respondErr(c, err)
				return
			}
			logger.Warn("event stream ended", slog.Int64("session_id", sessionID), slog.String("error", err.Error()))
		}
	}
}

// @Summary  Join the waitlist of a full session
// @Param    id   path  int                  true  "Session ID"
// @Param    req  body  JoinWaitlistRequest  true  "payload"
// @Success  201  {object}  domain.WaitlistEntry
// @Failure  409  {object}  ErrorResponse
// @Router   /sessions/{id}/waitlist [post]
func handleJoinWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req JoinWaitlistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		entry, err := svcs.Waitlist.Join(c.Request.Context(), sessionID, req.UserID, req.PackageID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

// @Summary  Reserve a seat (idempotent)
// @Param    id   path  int             true  "Assignment ID"
// @Param    req  body  ReserveRequest  true  "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201  {object}  domain.SeatAssignment
// @Failure  400  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse "seat unavailable / idem in progress"
// @Failure  429  {object}  ErrorResponse "rate limited"
// @Router   /assignments/{id}/reserve [post]
func handleReserve(
	svcs *service.Services,
	idem Idempotency,
	limiter RateLimiter,
	logger *slog.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignmentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req ReserveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		ctx := c.Request.Context()

		if limiter != nil {
			d, err := limiter.Allow(ctx, c.ClientIP())
			if err != nil {
				// An unreachable limiter does not block reservations.
				logger.Warn("rate limiter unavailable",
					slog.String("client_ip", c.ClientIP()),
					slog.String("error", err.Error()),
				)
				d = redisrepo.Decision{Allowed: true, Remaining: -1}
			}
			if d.Remaining >= 0 {
				c.Header("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			}
			if !d.Allowed {
				retry := int(d.RetryAfter.Round(time.Second).Seconds())
				if retry < 1 {
					retry = 1
				}
				c.Header("Retry-After", strconv.Itoa(retry))
				c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: "rate limited"})
				return
			}
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemReserve(assignmentID, idemKey)

			payload, state, err := idem.Begin(ctx, idemStorageKey, idempotencyLockTTL)
			if err != nil {
				respondErr(c, err)
				return
			}
			switch state {
			case redisrepo.IdemReplay:
				c.Header("Idempotency-Key", idemKey)
				c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(payload))
				return
			case redisrepo.IdemInProgress:
				c.Header("Retry-After", "1")
				c.JSON(http.StatusConflict, ErrorResponse{Error: "idempotency key in progress"})
				return
			case redisrepo.IdemAcquired:
			}
		}

		ttl := time.Duration(req.TTLSec) * time.Second

		a, err := svcs.Ledger.Reserve(ctx, assignmentID, req.UserID, ttl)
		if err != nil {
			if idemStorageKey != "" {
				_ = idem.Release(ctx, idemStorageKey)
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" {
			b, _ := json.Marshal(a)
			_ = idem.SaveResult(ctx, idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, a)
	}
}

// @Summary  Confirm a reserved seat
// @Param    id   path  int             true   "Assignment ID"
// @Param    req  body  ConfirmRequest  false  "payload"
// @Success  200  {object}  domain.SeatAssignment
// @Failure  409  {object}  ErrorResponse
// @Router   /assignments/{id}/confirm [post]
func handleConfirm(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignmentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req ConfirmRequest
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
		}
		final := domain.AssignmentOccupied
		if req.Final != "" {
			final = domain.AssignmentStatus(req.Final)
		}
		a, err := svcs.Ledger.Confirm(c.Request.Context(), assignmentID, final)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// @Summary  Release a seat
// @Param    id  path  int  true  "Assignment ID"
// @Success  200  {object}  domain.SeatAssignment
// @Failure  409  {object}  ErrorResponse
// @Router   /assignments/{id}/release [post]
func handleRelease(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignmentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Ledger.Release(c.Request.Context(), assignmentID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func isClientGone(err error) bool {
	return errors.Is(err, context.Canceled)
}
