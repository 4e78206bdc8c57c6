package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/crm-reminders/middleware"
	"github.com/yourusername/crm-reminders/reminders"
)

// Function is an action served under /functions/v1/:name.
type Function func(ctx context.Context, body json.RawMessage) (any, error)

// FunctionHandler exposes actions with the same wire format as the hosted
// backend's edge functions.
type FunctionHandler struct {
	functions map[string]Function
}

func NewFunctionHandler() *FunctionHandler {
	return &FunctionHandler{functions: make(map[string]Function)}
}

func (h *FunctionHandler) Register(name string, fn Function) {
	h.functions[name] = fn
}

func (h *FunctionHandler) Invoke(c *gin.Context) {
	fn, ok := h.functions[c.Param("name")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "function not found"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// organisation tokens may only act on their own organisation
	if orgID := middleware.OrganisationID(c); orgID != "" {
		body, err = scopeToOrganisation(body, orgID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := fn(c.Request.Context(), body)
	if err != nil {
		_ = c.Error(err)
		var validationErr *reminders.ValidationError
		if errors.As(err, &validationErr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func scopeToOrganisation(body []byte, orgID string) ([]byte, error) {
	fields := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
	}
	fields["organizationId"] = orgID
	return json.Marshal(fields)
}
