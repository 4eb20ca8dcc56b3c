// Package handler exposes the inbox bounded context over HTTP.
package handler

import (
	"net/http"
	"strconv"

	"salesdesk_backend/internal/inbox/service"
	"salesdesk_backend/internal/inbox/transport"
	"salesdesk_backend/internal/store"
	"salesdesk_backend/platform/httpkit"
	"salesdesk_backend/platform/logger"
	"salesdesk_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	svc        *service.Service
	subscriber store.Subscriber
	validate   *validator.Validator
	log        *logger.Logger
}

func New(svc *service.Service, subscriber store.Subscriber, validate *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{svc: svc, subscriber: subscriber, validate: validate, log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/inbox", h.List)
	rg.GET("/inbox/stream", h.Stream)
	rg.POST("/conversations/:id/escalate", h.Escalate)
	rg.POST("/conversations/:id/release", h.Release)
	rg.POST("/conversations/:id/prolong", h.Prolong)
	rg.POST("/conversations/:id/read", h.MarkRead)
	rg.GET("/conversations/:id/remaining", h.TimeRemaining)
	rg.GET("/conversations/:id/messages", h.Messages)
	rg.DELETE("/leads/:id", h.DeleteLead)
	rg.GET("/settings/hitl", h.GetHITLSettings)
	rg.PUT("/settings/hitl", h.UpdateHITLSettings)
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	var query transport.InboxQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(query); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	merged, err := h.svc.GetMergedView(c.Request.Context(), identity.OrganizationID(), query.Filters())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewInboxResponse(merged))
}

func (h *Handler) Escalate(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	sessionID, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.EscalateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	session, err := h.svc.Escalate(c.Request.Context(), identity.OrganizationID(), sessionID, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewSessionResponse(session))
}

func (h *Handler) Release(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	sessionID, ok := parseID(c)
	if !ok {
		return
	}

	session, err := h.svc.Release(c.Request.Context(), identity.OrganizationID(), sessionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewSessionResponse(session))
}

func (h *Handler) Prolong(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	sessionID, ok := parseID(c)
	if !ok {
		return
	}

	session, err := h.svc.Prolong(c.Request.Context(), identity.OrganizationID(), sessionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewSessionResponse(session))
}

func (h *Handler) MarkRead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	sessionID, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.svc.MarkRead(c.Request.Context(), identity.OrganizationID(), sessionID); httpkit.HandleError(c, err) {
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) TimeRemaining(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	sessionID, ok := parseID(c)
	if !ok {
		return
	}

	remaining, err := h.svc.TimeRemaining(c.Request.Context(), identity.OrganizationID(), sessionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewTimeRemainingResponse(remaining))
}

func (h *Handler) Messages(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	sessionID, ok := parseID(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	messages, err := h.svc.Messages(c.Request.Context(), identity.OrganizationID(), sessionID, limit)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.NewMessagesResponse(messages))
}

func (h *Handler) DeleteLead(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	leadID, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.DeleteLeadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
			return
		}
	}

	target := service.DeleteTarget{
		LeadID:    leadID,
		Phone:     req.Phone,
		SessionID: req.SessionID,
		Virtual:   req.Virtual,
	}

	result, err := h.svc.DeleteLead(c.Request.Context(), identity.OrganizationID(), target)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.DeleteLeadResponse{LeadDeleted: result.LeadDeleted, Warnings: result.Warnings})
}

func (h *Handler) GetHITLSettings(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	hours, err := h.svc.AutoReleaseHours(c.Request.Context(), identity.OrganizationID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.HITLSettingsResponse{AutoReleaseHours: hours})
}

func (h *Handler) UpdateHITLSettings(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)

	var req transport.UpdateHITLSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if err := h.svc.SetAutoReleaseHours(c.Request.Context(), identity.OrganizationID(), req.AutoReleaseHours); httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.HITLSettingsResponse{AutoReleaseHours: req.AutoReleaseHours})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
