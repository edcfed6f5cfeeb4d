package handler

import (
	"payment-session-reconciler/internal/adapter/http/dto"
	"payment-session-reconciler/internal/core/ports"
	"payment-session-reconciler/pkg/apperror"
	"payment-session-reconciler/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SessionHandler serves the payment session endpoints.
type SessionHandler struct {
	sessionSvc ports.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionSvc ports.SessionService) *SessionHandler {
	return &SessionHandler{sessionSvc: sessionSvc}
}

// Create handles POST /api/v1/sessions.
func (h *SessionHandler) Create(c *gin.Context) {
	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	session, err := h.sessionSvc.CreateSession(c.Request.Context(), ports.CreateSessionRequest{
		TransactionID:    req.TransactionID,
		RecipientAddress: req.RecipientAddress,
		ExpectedAmount:   req.ExpectedAmount,
		VendorEmail:      req.VendorEmail,
		CustomerEmail:    req.CustomerEmail,
		ExpiresInMinutes: req.ExpiresInMinutes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.NewSessionResponse(session))
}

// Get handles GET /api/v1/sessions/:id.
func (h *SessionHandler) Get(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	session, err := h.sessionSvc.GetSession(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewSessionResponse(session))
}

// Cancel handles POST /api/v1/sessions/:id/cancel.
func (h *SessionHandler) Cancel(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	session, err := h.sessionSvc.CancelSession(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewSessionResponse(session))
}

func sessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidSessionID())
		return uuid.Nil, false
	}
	return id, true
}
