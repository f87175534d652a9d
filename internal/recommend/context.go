package recommend

import (
	"context"
	"fmt"
	"strings"

	"tastebud/internal/catalog"
	"tastebud/internal/profile"
	"tastebud/internal/store"
)

// RecommendationContext is everything known about one (user, restaurant)
// pair for a single request. It is built fresh per request and never stored.
type RecommendationContext struct {
	UserID             string                      `json:"user_id"`
	RestaurantID       string                      `json:"restaurant_id"`
	RestaurantName     string                      `json:"restaurant_name"`
	RestaurantFound    bool                        `json:"restaurant_found"`
	Profile            profile.UserProfile         `json:"user_profile"`
	MenuItems          []catalog.MenuItem          `json:"restaurant_items"`
	Reviews            []string                    `json:"restaurant_reviews"`
	CommunityFavorites []catalog.CommunityFavorite `json:"top_community_items"`
	Excluded           []string                    `json:"current_dislikes"`
}

// Assembler builds a RecommendationContext from already-ingested records.
type Assembler struct {
	profiles    store.Getter[profile.UserProfile]
	restaurants store.Getter[catalog.Restaurant]
}

func NewAssembler(profiles store.Getter[profile.UserProfile], restaurants store.Getter[catalog.Restaurant]) *Assembler {
	return &Assembler{profiles: profiles, restaurants: restaurants}
}

// Assemble never fails because a record is missing: an unknown user gets an
// empty default profile and an unknown restaurant yields empty menu, review
// and community lists with RestaurantFound set to false. Only lookup errors
// are returned.
func (a *Assembler) Assemble(ctx context.Context, userID, restaurantID string, excluded []string) (*RecommendationContext, error) {
	rc := &RecommendationContext{
		UserID:             userID,
		RestaurantID:       restaurantID,
		MenuItems:          []catalog.MenuItem{},
		Reviews:            []string{},
		CommunityFavorites: []catalog.CommunityFavorite{},
		Excluded:           cleanExcluded(excluded),
	}

	p, err := a.profiles.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}
	if p == nil {
		p = profile.Default(userID)
	}
	rc.Profile = *p

	r, err := a.restaurants.Get(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up restaurant: %w", err)
	}
	if r == nil {
		return rc, nil
	}

	rc.RestaurantFound = true
	rc.RestaurantName = r.Name
	rc.MenuItems = append(rc.MenuItems, r.MenuItems...)
	rc.Reviews = append(rc.Reviews, r.Reviews...)
	rc.CommunityFavorites = append(rc.CommunityFavorites, r.TopItems...)
	return rc, nil
}

// cleanExcluded copies the caller's list, dropping blank entries.
func cleanExcluded(excluded []string) []string {
	out := make([]string, 0, len(excluded))
	for _, name := range excluded {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
