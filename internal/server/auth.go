package server

import (
	"net/http"
	"strings"

	auditdomain "github.com/adsboard/adsboard/internal/audit/domain"
	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	"github.com/gin-gonic/gin"
)

// Login starts the authorization-code flow and redirects the browser to the
// Amazon consent page.
func (s *Server) Login(c *gin.Context) {
	redirect, err := s.credentialSvc.BeginAuthorization(c.Request.Context(), c.Query("redirect_uri"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.Redirect(http.StatusFound, redirect.URL)
}

// Callback completes the flow: validates the state nonce, exchanges the code,
// and installs the new credential.
func (s *Server) Callback(c *gin.Context) {
	if providerErr := c.Query("error"); providerErr != "" {
		// The operator denied consent or the provider rejected the request
		// before issuing a code.
		c.JSON(http.StatusBadRequest, errorResponse{Error: errorPayload{
			Type:    "authorization_denied",
			Message: providerErr,
		}})
		return
	}

	cred, err := s.credentialSvc.CompleteAuthorization(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "connected",
		"expires_at": cred.ExpiresAt,
		"scope":      cred.Scopes(),
	})
}

// AuthStatus reports the credential state for the dashboard.
func (s *Server) AuthStatus(c *gin.Context) {
	status, err := s.credentialSvc.Status(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// RefreshToken forces a refresh of the active credential.
func (s *Server) RefreshToken(c *gin.Context) {
	result, err := s.credentialSvc.Refresh(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Revoke deactivates the active credential.
func (s *Server) Revoke(c *gin.Context) {
	result, err := s.credentialSvc.Revoke(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type listAuditQuery struct {
	Limit     int    `form:"limit"`
	Offset    int    `form:"offset"`
	EventType string `form:"event_type"`
	Status    string `form:"status"`
}

// ListAuditEvents pages through the lifecycle audit trail, newest first.
func (s *Server) ListAuditEvents(c *gin.Context) {
	var query listAuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, credentialdomain.ErrInvalidRequest)
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Limit:     query.Limit,
		Offset:    query.Offset,
		EventType: auditdomain.EventType(strings.TrimSpace(query.EventType)),
		Status:    auditdomain.EventStatus(strings.TrimSpace(query.Status)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
