package web

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"officehours/internal/engine"
	appLog "officehours/internal/log"
	"officehours/internal/model"
	"officehours/internal/timeutil"
)

// clockTime is a date plus 12-hour clock time as users type it.
type clockTime struct {
	Year   int  `json:"year" binding:"min=0,max=9999"`
	Month  int  `json:"month" binding:"required,min=1,max=12"`
	Day    int  `json:"day" binding:"required,min=1,max=31"`
	Hour   int  `json:"hour" binding:"required,min=1,max=12"`
	Minute int  `json:"minute" binding:"min=0,max=59"`
	PM     bool `json:"pm"`
}

func (c clockTime) in(loc *time.Location) (time.Time, error) {
	return timeutil.Clock12{
		Year:   c.Year,
		Month:  c.Month,
		Day:    c.Day,
		Hour:   c.Hour,
		Minute: c.Minute,
		PM:     c.PM,
	}.In(loc)
}

type ownerFields struct {
	OwnerID   uint64 `json:"owner_id" binding:"required"`
	OwnerName string `json:"owner_name" binding:"required"`
}

func (o ownerFields) owner() model.Owner {
	return model.Owner{ID: o.OwnerID, Name: o.OwnerName}
}

type createRequest struct {
	ownerFields
	Start           clockTime `json:"start"`
	DurationHours   int       `json:"duration_hours" binding:"min=0"`
	DurationMinutes int       `json:"duration_minutes" binding:"min=0"`
	Weeks           int       `json:"weeks" binding:"min=0"`
}

type editRequest struct {
	ownerFields
	From            clockTime `json:"from"`
	To              clockTime `json:"to"`
	DurationHours   int       `json:"duration_hours" binding:"min=0"`
	DurationMinutes int       `json:"duration_minutes" binding:"min=0"`
	Weeks           int       `json:"weeks" binding:"min=0"`
}

type deleteRequest struct {
	ownerFields
	Start clockTime `json:"start"`
	Weeks int       `json:"weeks" binding:"min=0"`
}

type listQuery struct {
	Name  string `form:"name" binding:"required"`
	Weeks int    `form:"weeks,default=1" binding:"min=1"`
}

type pruneRequest struct {
	// Before defaults to now minus the configured retention. It is required
	// when retention is disabled.
	Before *time.Time `json:"before"`
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "failed to bind JSON", err)
		return
	}

	start, err := req.Start.in(s.commands.Location())
	if err != nil {
		s.fail(c, "create", err)
		return
	}

	res, err := s.commands.Create(c.Request.Context(), engine.CreateRequest{
		Owner:           req.owner(),
		Start:           start,
		DurationHours:   req.DurationHours,
		DurationMinutes: req.DurationMinutes,
		Weeks:           req.Weeks,
	})
	if err != nil {
		s.fail(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) handleList(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("owner_id"), 10, 64)
	if err != nil {
		s.badRequest(c, "parameter 'owner_id' must be a number", err)
		return
	}

	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		s.badRequest(c, "invalid query", err)
		return
	}

	res, err := s.commands.List(c.Request.Context(), engine.ListRequest{
		Owner: model.Owner{ID: id, Name: q.Name},
		Weeks: q.Weeks,
	})
	if err != nil {
		s.fail(c, "list", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleEdit(c *gin.Context) {
	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "failed to bind JSON", err)
		return
	}

	loc := s.commands.Location()
	from, err := req.From.in(loc)
	if err != nil {
		s.fail(c, "edit", err)
		return
	}
	to, err := req.To.in(loc)
	if err != nil {
		s.fail(c, "edit", err)
		return
	}

	res, err := s.commands.Edit(c.Request.Context(), engine.EditRequest{
		Owner:           req.owner(),
		From:            from,
		To:              to,
		DurationHours:   req.DurationHours,
		DurationMinutes: req.DurationMinutes,
		Weeks:           req.Weeks,
	})
	if err != nil {
		s.fail(c, "edit", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleDelete(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "failed to bind JSON", err)
		return
	}

	start, err := req.Start.in(s.commands.Location())
	if err != nil {
		s.fail(c, "delete", err)
		return
	}

	res, err := s.commands.Delete(c.Request.Context(), engine.DeleteRequest{
		Owner: req.owner(),
		Start: start,
		Weeks: req.Weeks,
	})
	if err != nil {
		s.fail(c, "delete", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePrune(c *gin.Context) {
	var req pruneRequest
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		// An empty body, chunked or not, decodes to io.EOF.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			s.badRequest(c, "failed to bind JSON", err)
			return
		}
	}

	var before time.Time
	switch {
	case req.Before != nil:
		before = *req.Before
	case s.cfg.Retention() > 0:
		before = s.now().Add(-s.cfg.Retention())
	default:
		s.badRequest(c, "'before' is required when retention_days is 0", nil)
		return
	}

	res, err := s.commands.Prune(c.Request.Context(), before)
	if err != nil {
		s.fail(c, "prune", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) badRequest(c *gin.Context, msg string, err error) {
	appLog.Debug("rejected request", "path", c.FullPath(), "reason", msg, "err", err)
	c.AbortWithStatusJSON(http.StatusBadRequest, NewError(msg, err))
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		appLog.Error(op+" failed", err)
	} else {
		appLog.Debug(op+" rejected", "err", err)
	}
	c.AbortWithStatusJSON(status, NewError(msg, err))
}
