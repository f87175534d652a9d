package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tastebud/internal/profile"
)

type profileResponse struct {
	Profile              *profile.UserProfile `json:"profile"`
	RecommendationsCount int                  `json:"recommendations_count"`
	LastActivity         time.Time            `json:"last_activity"`
}

func newProfileResponse(p *profile.UserProfile) profileResponse {
	return profileResponse{
		Profile:              p,
		RecommendationsCount: p.ActivityCount(),
		LastActivity:         p.UpdatedAt,
	}
}

// ownProfile rejects requests for another user's profile.
func ownProfile(c *gin.Context) (string, bool) {
	userID := c.Param("user_id")
	if userID != c.GetString(userIDKey) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to access this profile"})
		return "", false
	}
	return userID, true
}

func (h *Handler) GetProfile(c *gin.Context) {
	userID, ok := ownProfile(c)
	if !ok {
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	p, err := h.Profiles.Get(ctx, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(p))
}

// UpdateProfile applies a partial update. Omitted fields keep their values.
func (h *Handler) UpdateProfile(c *gin.Context) {
	userID, ok := ownProfile(c)
	if !ok {
		return
	}

	var u profile.Update
	if err := c.ShouldBindJSON(&u); err != nil {
		badRequest(c, "invalid profile update: "+err.Error())
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	p, err := h.Profiles.Update(ctx, userID, u)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("profile updated", "user_id", userID)
	c.JSON(http.StatusOK, newProfileResponse(p))
}

func (h *Handler) DeleteProfile(c *gin.Context) {
	userID, ok := ownProfile(c)
	if !ok {
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	if err := h.Profiles.Delete(ctx, userID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile deleted successfully"})
}
