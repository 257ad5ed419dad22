package httpgin

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/classgo/internal/service/conflict"
	"github.com/kirinyoku/classgo/internal/service/importer"
	"github.com/kirinyoku/classgo/internal/service/inventory"
	"github.com/kirinyoku/classgo/internal/service/ledger"
	"github.com/kirinyoku/classgo/internal/service/query"
	"github.com/kirinyoku/classgo/internal/service/waitlist"
)

// statusClientClosed is the nginx convention for a client that went away.
const statusClientClosed = 499

type errorMapping struct {
	target error
	status int
	msg    string
}

var errorMappings = []errorMapping{
	// ledger service
	{ledger.ErrAssignmentNotFound, http.StatusNotFound, "seat assignment not found"},
	{ledger.ErrSessionNotFound, http.StatusNotFound, "session not found"},
	{ledger.ErrSeatUnavailable, http.StatusConflict, "seat unavailable"},
	{ledger.ErrReservationExpired, http.StatusConflict, "reservation expired"},
	{ledger.ErrBookingClosed, http.StatusConflict, "booking closed"},
	{ledger.ErrSessionClosed, http.StatusConflict, "session already completed"},
	// inventory service
	{inventory.ErrStudioNotFound, http.StatusNotFound, "studio not found"},
	{inventory.ErrSessionNotFound, http.StatusNotFound, "session not found"},
	{inventory.ErrSeatNotFound, http.StatusNotFound, "seat not found"},
	{inventory.ErrSessionCancelled, http.StatusConflict, "session is cancelled"},
	// waitlist service
	{waitlist.ErrSessionNotFound, http.StatusNotFound, "session not found"},
	{waitlist.ErrWaitlistClosed, http.StatusConflict, "waitlist closed"},
	{waitlist.ErrSpotsAvailable, http.StatusConflict, "session still has available spots"},
	{waitlist.ErrAlreadyWaiting, http.StatusConflict, "already on the waitlist"},
	{waitlist.ErrAlreadyHoldsSeat, http.StatusConflict, "already holds a seat"},
	// query service
	{query.ErrSessionNotFound, http.StatusNotFound, "session not found"},
	{query.ErrStreamUnavailable, http.StatusServiceUnavailable, "event stream unavailable"},
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	_ = c.Error(err)

	if isClientGone(err) {
		c.AbortWithStatus(statusClientClosed)
		return
	}

	// messages of these errors are meant for the caller
	var (
		transition ledger.TransitionError
		layout     inventory.LayoutError
		sched      *conflict.ConflictError
		ref        *importer.ReferenceNotFoundError
	)
	switch {
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: transition.Error()})
		return
	case errors.As(err, &layout):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: layout.Error()})
		return
	case errors.As(err, &sched):
		c.JSON(http.StatusConflict, ErrorResponse{Error: sched.Error()})
		return
	case errors.As(err, &ref):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: ref.Error(), Suggestions: ref.Suggestions})
		return
	case errors.Is(err, ledger.ErrInvalidTransition):
		c.JSON(http.StatusConflict, ErrorResponse{Error: "invalid seat transition"})
		return
	case errors.Is(err, inventory.ErrInvalidLayout):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid studio layout"})
		return
	case errors.Is(err, importer.ErrValidation), errors.Is(err, importer.ErrBusinessRule):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error()})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			c.JSON(m.status, ErrorResponse{Error: m.msg})
			return
		}
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}
