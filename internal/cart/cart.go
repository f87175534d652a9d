package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tastebud/internal/catalog"
	"tastebud/internal/store"
)

// ErrItemNotFound is returned when no ingested restaurant has the requested
// menu item.
var ErrItemNotFound = errors.New("menu item not found")

// Item is one menu item in a cart. Items are keyed by restaurant and menu
// item id; adding the same item again raises the quantity.
type Item struct {
	ItemID         int    `json:"item_id"`
	RestaurantID   string `json:"restaurant_id"`
	RestaurantName string `json:"restaurant_name"`
	Name           string `json:"name"`
	Price          string `json:"price,omitempty"`
	Description    string `json:"description,omitempty"`
	Quantity       int    `json:"quantity"`
}

// Cart is the per-user order being built through the voice agent.
type Cart struct {
	UserID    string    `json:"user_id"`
	Items     []Item    `json:"cart_items"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TotalItems counts distinct lines, not quantities.
func (c *Cart) TotalItems() int {
	return len(c.Items)
}

// Service keeps carts in a document store and resolves items against the
// restaurant catalog.
type Service struct {
	carts       store.Repository[Cart]
	restaurants catalog.Lister
	now         func() time.Time
}

func NewService(carts store.Repository[Cart], restaurants catalog.Lister) *Service {
	return &Service{carts: carts, restaurants: restaurants, now: time.Now}
}

// Get returns the user's cart. A user without one gets an empty cart, which
// is not stored.
func (s *Service) Get(ctx context.Context, userID string) (*Cart, error) {
	c, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if c == nil {
		return &Cart{UserID: userID, Items: []Item{}}, nil
	}
	return c, nil
}

// Add puts one unit of a menu item in the user's cart and returns the added
// line with the updated cart. An empty restaurantID searches every
// restaurant in id order and takes the first match.
func (s *Service) Add(ctx context.Context, userID, restaurantID string, itemID int) (*Cart, *Item, error) {
	line, err := s.lookup(ctx, strings.TrimSpace(restaurantID), itemID)
	if err != nil {
		return nil, nil, err
	}

	var added Item
	c, err := s.carts.Update(ctx, userID, func(current *Cart) (*Cart, error) {
		if current == nil {
			current = &Cart{UserID: userID}
		}
		added = *line
		found := false
		for i := range current.Items {
			known := &current.Items[i]
			if known.ItemID == line.ItemID && known.RestaurantID == line.RestaurantID {
				known.Quantity++
				added = *known
				found = true
				break
			}
		}
		if !found {
			current.Items = append(current.Items, added)
		}
		current.UpdatedAt = s.now().UTC()
		return current, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to save cart: %w", err)
	}
	return c, &added, nil
}

// Clear empties the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	err := s.carts.Delete(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *Service) lookup(ctx context.Context, restaurantID string, itemID int) (*Item, error) {
	var candidates []*catalog.Restaurant
	if restaurantID != "" {
		r, err := s.restaurants.Get(ctx, restaurantID)
		if err != nil {
			return nil, fmt.Errorf("failed to get restaurant: %w", err)
		}
		if r == nil {
			return nil, catalog.ErrRestaurantNotFound
		}
		candidates = []*catalog.Restaurant{r}
	} else {
		all, err := s.restaurants.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list restaurants: %w", err)
		}
		candidates = all
	}

	for _, r := range candidates {
		for _, item := range r.MenuItems {
			if item.ID != itemID {
				continue
			}
			return &Item{
				ItemID:         item.ID,
				RestaurantID:   r.ID,
				RestaurantName: r.Name,
				Name:           item.Name,
				Price:          item.Price,
				Description:    item.Description,
				Quantity:       1,
			}, nil
		}
	}
	return nil, fmt.Errorf("menu item with ID %d: %w", itemID, ErrItemNotFound)
}
