package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	commands "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Commands"
	logger "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Logger"
	mqtmodels "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Models"
	query "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Query"
	interfaces "gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.Repository/Interfaces"
	"gitlab.com/maplesense1/mpt.locker_server/src/production/MQT.ApiService/middleware"
)

// LockerQuery is the read side used by the locker routes.
type LockerQuery interface {
	ListLockers(ctx context.Context) ([]string, error)
	RecentMessages(ctx context.Context, limit int) ([]mqtmodels.Message, error)
	LockerEvents(ctx context.Context, lockerID string, limit int) ([]mqtmodels.Message, error)
	LockerMessages(ctx context.Context, lockerID string, kind mqtmodels.Kind, limit int) ([]mqtmodels.Message, error)
	LockerState(ctx context.Context, lockerID string) (*mqtmodels.LockerState, error)
}

// UnlockDispatcher publishes unlock commands.
type UnlockDispatcher interface {
	Dispatch(lockerID string, durationMs int, cmdID string) (*mqtmodels.DispatchResult, error)
}

// UnlockRequest is the optional body of POST /lockers/:id/unlock.
type UnlockRequest struct {
	DurationMs *int   `json:"duration_ms"`
	CmdID      string `json:"cmd_id"`
}

// LockerController handles locker history, state and command requests
type LockerController struct {
	query           LockerQuery
	dispatcher      UnlockDispatcher
	defaultUnlockMs int
	logger          *logger.Logger
}

// NewLockerController creates a new locker controller
func NewLockerController(q LockerQuery, d UnlockDispatcher, defaultUnlockMs int, logger *logger.Logger) *LockerController {
	return &LockerController{
		query:           q,
		dispatcher:      d,
		defaultUnlockMs: defaultUnlockMs,
		logger:          logger,
	}
}

// RegisterRoutes registers the locker routes with Gin
func (c *LockerController) RegisterRoutes(router *gin.Engine) {
	router.GET("/messages", c.GetMessages)

	lockers := router.Group("/lockers")
	{
		lockers.GET("", c.ListLockers)
		lockers.GET("/:id/events", c.GetEvents)
		lockers.GET("/:id/messages", c.GetLockerMessages)
		lockers.GET("/:id/state", c.GetState)
		lockers.POST("/:id/unlock", c.Unlock)
	}
}

func (c *LockerController) ListLockers(ctx *gin.Context) {
	ids, err := c.query.ListLockers(ctx.Request.Context())
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"lockers": ids})
}

func (c *LockerController) GetMessages(ctx *gin.Context) {
	limit, ok := parseLimit(ctx)
	if !ok {
		return
	}
	msgs, err := c.query.RecentMessages(ctx.Request.Context(), limit)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (c *LockerController) GetEvents(ctx *gin.Context) {
	limit, ok := parseLimit(ctx)
	if !ok {
		return
	}
	events, err := c.query.LockerEvents(ctx.Request.Context(), ctx.Param("id"), limit)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"events": events})
}

func (c *LockerController) GetLockerMessages(ctx *gin.Context) {
	kind := ctx.Query("kind")
	if kind == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "kind is required"})
		return
	}
	limit, ok := parseLimit(ctx)
	if !ok {
		return
	}
	msgs, err := c.query.LockerMessages(ctx.Request.Context(), ctx.Param("id"), mqtmodels.Kind(kind), limit)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (c *LockerController) GetState(ctx *gin.Context) {
	state, err := c.query.LockerState(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, state)
}

func (c *LockerController) Unlock(ctx *gin.Context) {
	var req UnlockRequest
	if err := ctx.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	duration := c.defaultUnlockMs
	if req.DurationMs != nil {
		duration = *req.DurationMs
	}

	result, err := c.dispatcher.Dispatch(ctx.Param("id"), duration, req.CmdID)
	if err != nil {
		c.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, result)
}

func (c *LockerController) respondError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, commands.ErrInvalidDuration), errors.Is(err, commands.ErrInvalidLocker):
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, commands.ErrTransportUnavailable):
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "MQTT not connected"})
	case errors.Is(err, query.ErrLockerUnknown):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "locker not found"})
	default:
		c.logger.WithRequestID(middleware.GetRequestID(ctx)).ErrorWithError(err, "Request failed")
		_ = ctx.Error(err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// parseLimit reads ?limit, defaulting to interfaces.DefaultLimit. Range
// clamping is left to the query layer.
func parseLimit(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("limit")
	if raw == "" {
		return interfaces.DefaultLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return 0, false
	}
	return limit, true
}
