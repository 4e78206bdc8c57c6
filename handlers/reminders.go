package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/crm-reminders/middleware"
	"github.com/yourusername/crm-reminders/reminders"
)

const defaultWindowDays = 30

type ReminderService interface {
	ListUpcoming(ctx context.Context, orgID string) (reminders.UpcomingSet, error)
	Statistics(ctx context.Context, orgID string, windowDays int) (reminders.Stats, error)
	Dashboard(ctx context.Context, orgID string, windowDays int) (reminders.Dashboard, error)
	Dispatch(ctx context.Context, req reminders.DispatchRequest) (reminders.RunSummary, error)
}

type ReminderHandler struct {
	service ReminderService
}

func NewReminderHandler(service ReminderService) *ReminderHandler {
	return &ReminderHandler{service: service}
}

type DispatchRemindersRequest struct {
	Type   string `json:"type"`
	DryRun bool   `json:"dry_run"`
}

func (h *ReminderHandler) ListUpcoming(c *gin.Context) {
	set, err := h.service.ListUpcoming(c.Request.Context(), middleware.OrganisationID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, set)
}

func (h *ReminderHandler) Statistics(c *gin.Context) {
	days, ok := windowDays(c)
	if !ok {
		return
	}

	stats, err := h.service.Statistics(c.Request.Context(), middleware.OrganisationID(c), days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *ReminderHandler) Dashboard(c *gin.Context) {
	days, ok := windowDays(c)
	if !ok {
		return
	}

	dash, err := h.service.Dashboard(c.Request.Context(), middleware.OrganisationID(c), days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dash)
}

// Dispatch triggers send-reminders for the caller's organisation.
func (h *ReminderHandler) Dispatch(c *gin.Context) {
	var req DispatchRemindersRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	summary, err := h.service.Dispatch(c.Request.Context(), reminders.DispatchRequest{
		OrganizationID: middleware.OrganisationID(c),
		Type:           req.Type,
		DryRun:         req.DryRun,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

func windowDays(c *gin.Context) (int, bool) {
	raw := c.Query("days")
	if raw == "" {
		return defaultWindowDays, true
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be a positive integer"})
		return 0, false
	}
	return days, true
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var validationErr *reminders.ValidationError
	var dataErr *reminders.DataError
	var dispatchErr *reminders.DispatchError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &dispatchErr), errors.As(err, &dataErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
