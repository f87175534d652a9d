package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tastebud/internal/catalog"
	"tastebud/internal/platform/logger"
	"tastebud/internal/profile"
	"tastebud/internal/recommend"
)

// Recommender produces recommendations and exposes the context they are
// built from.
type Recommender interface {
	GetRecommendation(ctx context.Context, userID, restaurantID string, excluded []string) (*recommend.Recommendation, error)
	GetRecommendationContext(ctx context.Context, userID, restaurantID string) (*recommend.RecommendationContext, error)
}

// ProfileService defines taste profile operations.
type ProfileService interface {
	Get(ctx context.Context, userID string) (*profile.UserProfile, error)
	Update(ctx context.Context, userID string, u profile.Update) (*profile.UserProfile, error)
	Delete(ctx context.Context, userID string) error
}

// RestaurantStore defines read access to ingested restaurants.
type RestaurantStore interface {
	Get(ctx context.Context, id string) (*catalog.Restaurant, error)
	List(ctx context.Context) ([]*catalog.Restaurant, error)
}

// MenuAppender adds single items to a restaurant menu.
type MenuAppender interface {
	AppendItem(ctx context.Context, restaurantID string, item catalog.MenuItem) (*catalog.MenuItem, error)
}

type Options struct {
	ImageDir       string
	RequestTimeout time.Duration
	// ToolSecret guards the /vapi tool endpoints. Empty leaves them open.
	ToolSecret string
}

// Handler handles HTTP requests.
type Handler struct {
	Recommender Recommender
	Profiles    ProfileService
	Restaurants RestaurantStore
	Menu        MenuAppender
	Carts       CartService

	imageDir   string
	timeout    time.Duration
	toolSecret string
	log        *logger.Logger
}

// NewHandler creates a new Handler.
func NewHandler(rec Recommender, profiles ProfileService, restaurants RestaurantStore, menu MenuAppender, carts CartService, opts Options, log *logger.Logger) *Handler {
	if opts.ImageDir == "" {
		opts.ImageDir = "images"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	return &Handler{
		Recommender: rec,
		Profiles:    profiles,
		Restaurants: restaurants,
		Menu:        menu,
		Carts:       carts,
		imageDir:    opts.ImageDir,
		timeout:     opts.RequestTimeout,
		toolSecret:  opts.ToolSecret,
		log:         log,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "tastebud"})
}

// storeContext bounds storage calls made on behalf of one request.
func (h *Handler) storeContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// fail maps service errors to status codes. Unknown errors are logged and
// reported as 500 without their details.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, recommend.ErrNotFound), errors.Is(err, catalog.ErrRestaurantNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Restaurant not found"})
	case errors.Is(err, profile.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
	case errors.Is(err, catalog.ErrDuplicateItem):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn("request timed out", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Database query timed out"})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// queryLimit reads ?limit, falling back to def. Values below 1 are rejected.
func queryLimit(c *gin.Context, def int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
