package server

import (
	"net/http"

	credentialdomain "github.com/adsboard/adsboard/internal/credential/domain"
	"github.com/gin-gonic/gin"
)

// ListProfiles proxies the Advertising API profile listing so the dashboard
// can show which accounts the connection reaches.
func (s *Server) ListProfiles(c *gin.Context) {
	profiles, err := s.amazonClient.ListProfiles(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

// ListDSPAdvertisers lists DSP advertisers under the entity profile named by
// the profile_id query parameter.
func (s *Server) ListDSPAdvertisers(c *gin.Context) {
	profileID := c.Query("profile_id")
	if profileID == "" {
		AbortWithError(c, credentialdomain.ErrInvalidRequest)
		return
	}
	advertisers, err := s.amazonClient.ListDSPAdvertisers(c.Request.Context(), profileID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"advertisers": advertisers})
}

// ListDSPSeats lists exchange seats under the entity profile named by the
// profile_id query parameter.
func (s *Server) ListDSPSeats(c *gin.Context) {
	profileID := c.Query("profile_id")
	if profileID == "" {
		AbortWithError(c, credentialdomain.ErrInvalidRequest)
		return
	}
	seats, err := s.amazonClient.ListDSPSeats(c.Request.Context(), profileID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"seats": seats})
}

// ListAMCInstances lists the Amazon Marketing Cloud instances available to
// the connected account.
func (s *Server) ListAMCInstances(c *gin.Context) {
	instances, err := s.amazonClient.ListAMCInstances(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}
