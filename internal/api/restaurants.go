package api

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"tastebud/internal/catalog"
)

const defaultListLimit = 10

func (h *Handler) ListRestaurants(c *gin.Context) {
	ctx, cancel := h.storeContext(c)
	defer cancel()

	restaurants, err := h.Restaurants.List(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	summaries := make([]catalog.Summary, 0, len(restaurants))
	for _, r := range restaurants {
		summaries = append(summaries, r.Summary())
	}
	c.JSON(http.StatusOK, summaries)
}

// restaurant loads the :restaurant_id record, writing a 404 when absent.
func (h *Handler) restaurant(c *gin.Context) (*catalog.Restaurant, bool) {
	ctx, cancel := h.storeContext(c)
	defer cancel()

	r, err := h.Restaurants.Get(ctx, c.Param("restaurant_id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	if r == nil {
		h.fail(c, catalog.ErrRestaurantNotFound)
		return nil, false
	}
	return r, true
}

func (h *Handler) MenuItems(c *gin.Context) {
	r, ok := h.restaurant(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"restaurant_id":   r.ID,
		"restaurant_name": r.Name,
		"items":           nonNilItems(r.MenuItems),
	})
}

func (h *Handler) Reviews(c *gin.Context) {
	limit, ok := queryLimit(c, defaultListLimit)
	if !ok {
		badRequest(c, "limit must be a positive integer")
		return
	}
	r, ok := h.restaurant(c)
	if !ok {
		return
	}

	reviews := r.Reviews
	if len(reviews) > limit {
		reviews = reviews[:limit]
	}
	if reviews == nil {
		reviews = []string{}
	}
	c.JSON(http.StatusOK, gin.H{
		"restaurant_id": r.ID,
		"total_reviews": len(r.Reviews),
		"reviews":       reviews,
	})
}

func (h *Handler) TopItems(c *gin.Context) {
	limit, ok := queryLimit(c, defaultListLimit)
	if !ok {
		badRequest(c, "limit must be a positive integer")
		return
	}
	r, ok := h.restaurant(c)
	if !ok {
		return
	}

	items := r.TopItems
	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []catalog.CommunityFavorite{}
	}
	c.JSON(http.StatusOK, gin.H{
		"restaurant_id": r.ID,
		"top_items":     items,
	})
}

type menuItemForm struct {
	Name        string `form:"name" binding:"required"`
	Description string `form:"description"`
	Price       string `form:"price"`
	Category    string `form:"category"`
}

// AddMenuItem appends one item to a restaurant menu. An optional "image"
// file is resized and served under /images.
func (h *Handler) AddMenuItem(c *gin.Context) {
	var form menuItemForm
	if err := c.ShouldBind(&form); err != nil || strings.TrimSpace(form.Name) == "" {
		badRequest(c, "name is required")
		return
	}

	r, ok := h.restaurant(c)
	if !ok {
		return
	}

	item := catalog.MenuItem{
		Name:        form.Name,
		Description: form.Description,
		Price:       form.Price,
		Category:    form.Category,
	}

	var upload savedImage
	if file, err := c.FormFile("image"); err == nil {
		extension := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedExtensions[extension] {
			badRequest(c, "Invalid file type. Only JPEG, JPG, and PNG images are allowed.")
			return
		}

		src, err := file.Open()
		if err != nil {
			h.fail(c, fmt.Errorf("failed to open upload: %w", err))
			return
		}
		defer src.Close()

		imageData, err := io.ReadAll(src)
		if err != nil {
			h.fail(c, fmt.Errorf("failed to read upload: %w", err))
			return
		}

		upload, err = saveImage(h.imageDir, imageData, imageHash(imageData), extension)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		item.ImageURL = "/images/" + filepath.Base(upload.path)
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	stored, err := h.Menu.AppendItem(ctx, r.ID, item)
	if err != nil {
		if rmErr := upload.discard(); rmErr != nil {
			h.log.Warn("failed to remove orphaned image", "path", upload.path, "error", rmErr)
		}
		h.fail(c, err)
		return
	}
	h.log.Info("menu item added", "restaurant_id", r.ID, "item_id", stored.ID, "name", stored.Name)
	c.JSON(http.StatusCreated, stored)
}

func nonNilItems(items []catalog.MenuItem) []catalog.MenuItem {
	if items == nil {
		return []catalog.MenuItem{}
	}
	return items
}
