package httpgin

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kirinyoku/classgo/internal/service"
	"github.com/kirinyoku/classgo/internal/service/importer"
)

// @Summary  Update studio layout
// @Param    id   path  int            true  "Studio ID"
// @Param    req  body  LayoutRequest  true  "payload"
// @Success  200  {object}  UpdateLayoutResponse
// @Failure  400  {object}  ErrorResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/studios/{id}/layout [put]
func handleUpdateLayout(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		studioID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req LayoutRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		report, changed, err := svcs.Inventory.UpdateLayout(c.Request.Context(), studioID, req.toDomain())
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, UpdateLayoutResponse{
			Regenerated:        changed,
			Seats:              report.Seats,
			OrphansPurged:      report.OrphansPurged,
			SessionsUpdated:    report.SessionsUpdated,
			AssignmentsCreated: report.AssignmentsCreated,
		})
	}
}

// @Summary  Regenerate studio seats from its layout
// @Param    id  path  int  true  "Studio ID"
// @Success  200  {object}  inventory.GenerationReport
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/studios/{id}/seats/regenerate [post]
func handleRegenerateSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		studioID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		report, err := svcs.Inventory.GenerateSeats(c.Request.Context(), studioID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// @Summary  Activate or deactivate a seat
// @Param    id   path  int                   true  "Seat ID"
// @Param    req  body  SetSeatActiveRequest  true  "payload"
// @Success  200  {object}  domain.Seat
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/seats/{id} [patch]
func handleSetSeatActive(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		seatID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req SetSeatActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		seat, err := svcs.Inventory.SetSeatActive(c.Request.Context(), seatID, *req.Active)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, seat)
	}
}

// @Summary  Generate missing seat assignments of a session
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  CreatedResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/sessions/{id}/assignments [post]
func handleGenerateAssignments(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		n, err := svcs.Inventory.GenerateAssignmentsForSession(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, CreatedResponse{Created: n})
	}
}

// @Summary  Cancel a session
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  ledger.CancelReport
// @Failure  404  {object}  ErrorResponse
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/sessions/{id}/cancel [post]
func handleCancelSession(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		report, err := svcs.Ledger.CancelSession(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// @Summary  Reconcile the waitlist of a started session
// @Param    id  path  int  true  "Session ID"
// @Success  200  {object}  waitlist.PromotionReport
// @Failure  404  {object}  ErrorResponse
// @Router   /admin/sessions/{id}/waitlist/promote [post]
func handlePromoteWaitlist(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		report, err := svcs.Waitlist.PromoteWaitlistForSession(c.Request.Context(), sessionID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// @Summary  Block a seat
// @Param    id  path  int  true  "Assignment ID"
// @Success  200  {object}  domain.SeatAssignment
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/assignments/{id}/block [post]
func handleBlock(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignmentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Ledger.Block(c.Request.Context(), assignmentID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// @Summary  Mark an occupied seat as completed
// @Param    id  path  int  true  "Assignment ID"
// @Success  200  {object}  domain.SeatAssignment
// @Failure  409  {object}  ErrorResponse
// @Router   /admin/assignments/{id}/complete [post]
func handleComplete(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignmentID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		a, err := svcs.Ledger.Complete(c.Request.Context(), assignmentID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// @Summary  Import a class schedule
// @Description Accepts text/csv with a header line or JSON {"rows": [...]}.
// @Accept   json,text/csv
// @Param    dry_run  query  bool           false  "validate only"
// @Param    req      body   ImportRequest  true   "payload"
// @Success  200  {object}  importer.Report "dry run"
// @Success  201  {object}  importer.Report
// @Failure  422  {object}  importer.Report "rows rejected"
// @Router   /admin/imports [post]
func handleImport(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var rows []importer.Row

		mediaType, _, _ := mime.ParseMediaType(c.ContentType())
		switch mediaType {
		case "text/csv", "application/csv":
			parsed, err := importer.ReadCSV(c.Request.Body)
			if err != nil {
				badRequest(c, err.Error())
				return
			}
			rows = parsed
		default:
			var req ImportRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				badRequest(c, err.Error())
				return
			}
			rows = req.Rows
		}

		if len(rows) == 0 {
			badRequest(c, "no rows to import")
			return
		}

		opts := importer.Options{DryRun: c.Query("dry_run") == "true"}

		report, err := svcs.Importer.Import(c.Request.Context(), rows, opts)
		switch {
		case errors.Is(err, importer.ErrRowsRejected):
			c.JSON(http.StatusUnprocessableEntity, report)
		case err != nil:
			respondErr(c, err)
		case opts.DryRun:
			c.JSON(http.StatusOK, report)
		default:
			c.JSON(http.StatusCreated, report)
		}
	}
}

// @Summary  Run the expired reservation sweep now
// @Success  200  {object}  reaper.SweepReport
// @Router   /admin/jobs/expiry-sweep [post]
func handleExpirySweep(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svcs.Reaper.SweepExpiredReservations(c.Request.Context())
		if err != nil && report.Scanned == 0 {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}

// @Summary  Run the started session waitlist sweep now
// @Success  200  {object}  waitlist.SweepReport
// @Router   /admin/jobs/waitlist-sweep [post]
func handleWaitlistSweep(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		report, err := svcs.Waitlist.SweepStartedSessions(c.Request.Context())
		if err != nil && report.Sessions == 0 {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	}
}
