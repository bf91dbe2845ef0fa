package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openscience/moderation/internal/application/machines"
	"github.com/openscience/moderation/internal/application/service"
	"github.com/openscience/moderation/internal/domain/entity"
	"github.com/openscience/moderation/internal/domain/workflow"
	"github.com/openscience/moderation/pkg/utils"
)

// actorHeader carries the authenticated user id. Authentication itself is
// terminated upstream; the moderation service trusts the gateway.
const actorHeader = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	machines Machines
	queues   *service.QueueService
	exports  *service.ExportService
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(m Machines, queues *service.QueueService, exports *service.ExportService, logger Logger) *Handlers {
	return &Handlers{machines: m, queues: queues, exports: exports, logger: logger}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// TriggerRequest is the body of every trigger endpoint
type TriggerRequest struct {
	Trigger string `json:"trigger" binding:"required"`
	Comment string `json:"comment"`
}

// InitiateSanctionRequest is the body of POST /sanctions
type InitiateSanctionRequest struct {
	Type           string     `json:"type" binding:"required"`
	RegistrationID string     `json:"registration_id" binding:"required"`
	Justification  string     `json:"justification"`
	EmbargoEndDate *time.Time `json:"embargo_end_date"`
}

// TokenDecisionRequest carries an emailed decision token
type TokenDecisionRequest struct {
	Token string `json:"token" binding:"required"`
}

// WithdrawRequest is the body of POST /registrations/:id/withdraw
type WithdrawRequest struct {
	Comment string `json:"comment"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

func (h *Handlers) actor(c *gin.Context) (string, bool) {
	actorID := c.GetHeader(actorHeader)
	if actorID == "" {
		c.JSON(http.StatusUnauthorized, Response{
			Success: false,
			Error:   fmt.Sprintf("%s header is required", actorHeader),
		})
		return "", false
	}
	return actorID, true
}

// FirePreprintTrigger handles POST /api/preprints/:id/actions
func (h *Handlers) FirePreprintTrigger(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	preprint, err := h.machines.Reviews.Run(c.Request.Context(), c.Param("id"),
		workflow.Trigger(req.Trigger), fireInput(actorID, req.Comment))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: preprint})
}

// FireNodeRequestTrigger handles POST /api/node-requests/:id/actions
func (h *Handlers) FireNodeRequestTrigger(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	request, err := h.machines.NodeRequests.Run(c.Request.Context(), c.Param("id"),
		workflow.Trigger(req.Trigger), fireInput(actorID, req.Comment))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: request})
}

// FirePreprintRequestTrigger handles POST /api/preprint-requests/:id/actions
func (h *Handlers) FirePreprintRequestTrigger(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	request, err := h.machines.PreprintRequests.Run(c.Request.Context(), c.Param("id"),
		workflow.Trigger(req.Trigger), fireInput(actorID, req.Comment))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: request})
}

// FireCollectionTrigger handles POST /api/collection-submissions/:id/actions
func (h *Handlers) FireCollectionTrigger(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	submission, err := h.machines.Collections.Run(c.Request.Context(), c.Param("id"),
		workflow.Trigger(req.Trigger), fireInput(actorID, req.Comment))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: submission})
}

// InitiateSanction handles POST /api/sanctions
func (h *Handlers) InitiateSanction(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req InitiateSanctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sanction, err := h.machines.Sanctions.Initiate(c.Request.Context(), machines.InitiateInput{
		Type:           workflow.SanctionType(req.Type),
		RegistrationID: req.RegistrationID,
		InitiatorID:    actorID,
		Justification:  req.Justification,
		EmbargoEndDate: req.EmbargoEndDate,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: sanction})
}

// ApproveSanction handles POST /api/sanctions/:id/approve
func (h *Handlers) ApproveSanction(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req TokenDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sanction, err := h.machines.Sanctions.ApproveWithToken(c.Request.Context(), c.Param("id"), actorID, req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sanction})
}

// RejectSanction handles POST /api/sanctions/:id/reject
func (h *Handlers) RejectSanction(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req TokenDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sanction, err := h.machines.Sanctions.RejectWithToken(c.Request.Context(), c.Param("id"), actorID, req.Token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sanction})
}

// FireSanctionTrigger handles POST /api/sanctions/:id/actions: the
// moderator's accept/reject on a pending-moderation sanction.
func (h *Handlers) FireSanctionTrigger(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	var (
		sanction interface{}
		err      error
	)
	switch workflow.Trigger(req.Trigger) {
	case workflow.TriggerAccept:
		sanction, err = h.machines.Sanctions.Accept(c.Request.Context(), c.Param("id"), fireInput(actorID, req.Comment))
	case workflow.TriggerReject:
		sanction, err = h.machines.Sanctions.Reject(c.Request.Context(), c.Param("id"), fireInput(actorID, req.Comment))
	default:
		h.badRequest(c, fmt.Errorf("trigger %q is not a moderator sanction trigger", req.Trigger))
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sanction})
}

// ForceWithdrawRegistration handles POST /api/registrations/:id/withdraw
func (h *Handlers) ForceWithdrawRegistration(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	var req WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	sanction, err := h.machines.Sanctions.ForceWithdraw(c.Request.Context(), c.Param("id"), actorID, req.Comment)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: sanction})
}

// ListProviderPreprints handles GET /api/providers/:id/preprints
func (h *Handlers) ListProviderPreprints(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	preprints, err := h.queues.PendingPreprints(c.Request.Context(), actorID, c.Param("id"), pageFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: preprints})
}

// ListProviderRegistrations handles GET /api/providers/:id/registrations
func (h *Handlers) ListProviderRegistrations(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	state := workflow.State(c.DefaultQuery("state", workflow.StatePending.String()))
	registrations, err := h.queues.RegistrationsInState(c.Request.Context(), actorID, c.Param("id"), state, pageFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: registrations})
}

// ListProviderCollectionSubmissions handles GET /api/providers/:id/collection-submissions
func (h *Handlers) ListProviderCollectionSubmissions(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	submissions, err := h.queues.PendingCollectionSubmissions(c.Request.Context(), actorID, c.Param("id"), pageFrom(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: submissions})
}

// ListProviderActions handles GET /api/providers/:id/actions
func (h *Handlers) ListProviderActions(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	since, ok := h.sinceFrom(c)
	if !ok {
		return
	}
	actions, err := h.queues.ProviderActivity(c.Request.Context(), actorID, c.Param("id"), since)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: actions})
}

// ExportProviderActions handles GET /api/providers/:id/actions/export
func (h *Handlers) ExportProviderActions(c *gin.Context) {
	actorID, ok := h.actor(c)
	if !ok {
		return
	}
	since, ok := h.sinceFrom(c)
	if !ok {
		return
	}

	filename := fmt.Sprintf("moderation-activity-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := h.exports.ExportProviderActions(c.Request.Context(), actorID, c.Param("id"), since, c.Writer); err != nil {
		h.writeError(c, err)
		return
	}
}

// ListTargetActions handles GET /api/targets/:kind/:id/actions
func (h *Handlers) ListTargetActions(c *gin.Context) {
	target := entity.TargetRef{
		Kind: entity.TargetKind(c.Param("kind")),
		ID:   c.Param("id"),
	}
	actions, err := h.queues.TargetHistory(c.Request.Context(), target)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: actions})
}

func (h *Handlers) sinceFrom(c *gin.Context) (time.Time, bool) {
	raw := c.Query("since")
	if raw == "" {
		return time.Now().UTC().AddDate(0, -1, 0), true
	}
	since, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.badRequest(c, fmt.Errorf("since must be RFC3339: %w", err))
		return time.Time{}, false
	}
	return since, true
}

func (h *Handlers) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
}

// writeError maps domain errors to HTTP statuses: permission failures are
// 403, invalid triggers and machine conflicts 409, validation problems
// 400, missing entities 404.
func (h *Handlers) writeError(c *gin.Context, err error) {
	var permErr *workflow.PermissionsError
	var triggerErr *workflow.InvalidTriggerError
	var machineErr *workflow.MachineError
	var validationErr *workflow.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &permErr):
		status = http.StatusForbidden
	case errors.As(err, &triggerErr):
		status = http.StatusConflict
	case errors.As(err, &machineErr):
		status = http.StatusConflict
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case strings.Contains(err.Error(), "not found"):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err, "path", c.Request.URL.Path)
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

func fireInput(actorID, comment string) machines.FireInput {
	return machines.FireInput{ActorID: actorID, Comment: utils.SanitizeString(comment)}
}

func pageFrom(c *gin.Context) service.Page {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return service.Page{Limit: limit, Offset: offset}
}
