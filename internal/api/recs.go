package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type recommendationRequest struct {
	CurrDislikes []string `json:"curr_dislikes"`
}

// Recommend handles POST /recs/:restaurant_id. The body is optional.
func (h *Handler) Recommend(c *gin.Context) {
	restaurantID := c.Param("restaurant_id")
	userID := c.GetString(userIDKey)

	var req recommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	rec, err := h.Recommender.GetRecommendation(c.Request.Context(), userID, restaurantID, req.CurrDislikes)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// RecommendationContext handles GET /recs/:restaurant_id/context and
// summarizes what a recommendation would be built from.
func (h *Handler) RecommendationContext(c *gin.Context) {
	restaurantID := c.Param("restaurant_id")
	userID := c.GetString(userIDKey)

	ctx, cancel := h.storeContext(c)
	defer cancel()

	rc, err := h.Recommender.GetRecommendationContext(ctx, userID, restaurantID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":                   rc.UserID,
		"restaurant_id":             rc.RestaurantID,
		"restaurant_name":           rc.RestaurantName,
		"restaurant_found":          rc.RestaurantFound,
		"user_profile_summary":      rc.Profile,
		"available_items_count":     len(rc.MenuItems),
		"reviews_count":             len(rc.Reviews),
		"community_favorites_count": len(rc.CommunityFavorites),
	})
}
