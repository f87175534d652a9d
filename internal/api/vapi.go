package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tastebud/internal/cart"
	"tastebud/internal/catalog"
)

// Tool names the voice assistant is configured with.
const (
	toolGetUserCart       = "getUserCart"
	toolAddItemToCart     = "addItemToCart"
	toolGetRestaurantInfo = "getRestaurantInfo"
	toolGetRestaurantList = "getRestaurantList"
)

// CartService defines voice-agent cart operations.
type CartService interface {
	Get(ctx context.Context, userID string) (*cart.Cart, error)
	Add(ctx context.Context, userID, restaurantID string, itemID int) (*cart.Cart, *cart.Item, error)
}

type toolCallRequest struct {
	Message struct {
		ToolCalls []toolCall `json:"toolCalls"`
	} `json:"message"`
}

type toolCall struct {
	ID       string `json:"id"`
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

type toolArgs struct {
	UserID       string      `json:"user_id"`
	ItemID       json.Number `json:"item_id"`
	RestaurantID string      `json:"restaurant_id"`
}

// args decodes the call arguments, which arrive either as an object or as a
// string holding JSON.
func (tc *toolCall) args() (toolArgs, error) {
	var args toolArgs
	raw := tc.Function.Arguments
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return args, err
		}
		raw = json.RawMessage(s)
	}
	if len(raw) == 0 {
		return args, nil
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, err
	}
	args.UserID = strings.TrimSpace(args.UserID)
	args.RestaurantID = strings.TrimSpace(args.RestaurantID)
	return args, nil
}

// RequireToolSecret checks the X-Vapi-Secret header when secret is set.
func RequireToolSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader("X-Vapi-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid tool secret"})
			return
		}
		c.Next()
	}
}

// findToolCall returns the first call named name. It writes a 400 and
// returns false when the request is malformed or has no such call.
func findToolCall(c *gin.Context, name string) (*toolCall, bool) {
	var req toolCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid tool call")
		return nil, false
	}
	for i := range req.Message.ToolCalls {
		if req.Message.ToolCalls[i].Function.Name == name {
			return &req.Message.ToolCalls[i], true
		}
	}
	badRequest(c, "Invalid tool call")
	return nil, false
}

func toolResult(c *gin.Context, call *toolCall, result any) {
	c.JSON(http.StatusOK, gin.H{
		"results": []gin.H{{"toolCallId": call.ID, "result": result}},
	})
}

// ToolUserCart lists the items in a user's cart.
func (h *Handler) ToolUserCart(c *gin.Context) {
	call, ok := findToolCall(c, toolGetUserCart)
	if !ok {
		return
	}
	args, err := call.args()
	if err != nil || args.UserID == "" {
		badRequest(c, "Invalid arguments")
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	userCart, err := h.Carts.Get(ctx, args.UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	toolResult(c, call, gin.H{
		"user_id":     userCart.UserID,
		"cart_items":  userCart.Items,
		"total_items": userCart.TotalItems(),
	})
}

// ToolAddToCart adds one unit of a menu item to a user's cart.
func (h *Handler) ToolAddToCart(c *gin.Context) {
	call, ok := findToolCall(c, toolAddItemToCart)
	if !ok {
		return
	}
	args, err := call.args()
	if err != nil || args.UserID == "" {
		badRequest(c, "Invalid arguments")
		return
	}
	itemID, err := args.ItemID.Int64()
	if err != nil || itemID <= 0 {
		badRequest(c, "Invalid arguments")
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	userCart, added, err := h.Carts.Add(ctx, args.UserID, args.RestaurantID, int(itemID))
	if errors.Is(err, cart.ErrItemNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Menu item with ID %d not found", itemID)})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("cart item added", "user_id", args.UserID, "restaurant_id", added.RestaurantID, "item_id", added.ItemID, "quantity", added.Quantity)
	toolResult(c, call, gin.H{
		"message":     fmt.Sprintf("Added %s to cart", added.Name),
		"cart_items":  userCart.Items,
		"total_items": userCart.TotalItems(),
	})
}

// ToolRestaurant returns the full restaurant record.
func (h *Handler) ToolRestaurant(c *gin.Context) {
	call, ok := findToolCall(c, toolGetRestaurantInfo)
	if !ok {
		return
	}
	args, err := call.args()
	if err != nil || args.RestaurantID == "" {
		badRequest(c, "Invalid restaurant ID")
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	r, err := h.Restaurants.Get(ctx, args.RestaurantID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if r == nil {
		h.fail(c, fmt.Errorf("%s: %w", args.RestaurantID, catalog.ErrRestaurantNotFound))
		return
	}
	toolResult(c, call, r)
}

// ToolRestaurants lists the restaurants a user can order from. A request
// without the list tool call gets a failure result rather than an error.
func (h *Handler) ToolRestaurants(c *gin.Context) {
	var req toolCallRequest
	_ = c.ShouldBindJSON(&req)
	var call *toolCall
	for i := range req.Message.ToolCalls {
		if req.Message.ToolCalls[i].Function.Name == toolGetRestaurantList {
			call = &req.Message.ToolCalls[i]
			break
		}
	}
	if call == nil {
		c.JSON(http.StatusOK, gin.H{"results": []gin.H{{"result": "failure"}}})
		return
	}

	ctx, cancel := h.storeContext(c)
	defer cancel()

	all, err := h.Restaurants.List(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	summaries := make([]catalog.Summary, 0, len(all))
	for _, r := range all {
		summaries = append(summaries, r.Summary())
	}
	toolResult(c, call, gin.H{
		"restaurants": summaries,
		"total_count": len(summaries),
	})
}
