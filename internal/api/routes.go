package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes mounts every endpoint on r. Everything except /health,
// /metrics, /images and the /vapi tool endpoints requires a bearer token.
// The voice assistant authenticates with a shared secret instead.
func RegisterRoutes(r *gin.Engine, h *Handler, tokens TokenValidator) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Static("/images", h.imageDir)

	tools := r.Group("/vapi", RequireToolSecret(h.toolSecret))
	tools.POST("/item-cart", h.ToolUserCart)
	tools.POST("/user_cart", h.ToolAddToCart)
	tools.POST("/restaurant-by-id", h.ToolRestaurant)
	tools.POST("/restaurants", h.ToolRestaurants)

	authed := r.Group("/", RequireAuth(tokens))

	recs := authed.Group("/recs")
	recs.POST("/:restaurant_id", h.Recommend)
	recs.GET("/:restaurant_id/context", h.RecommendationContext)

	profiles := authed.Group("/user_profile")
	profiles.GET("/:user_id", h.GetProfile)
	profiles.POST("/:user_id", h.UpdateProfile)
	profiles.DELETE("/:user_id", h.DeleteProfile)

	restaurants := authed.Group("/restaurants")
	restaurants.GET("", h.ListRestaurants)
	restaurants.GET("/:restaurant_id/items", h.MenuItems)
	restaurants.POST("/:restaurant_id/items", h.AddMenuItem)
	restaurants.GET("/:restaurant_id/reviews", h.Reviews)
	restaurants.GET("/:restaurant_id/top_items", h.TopItems)
}
