package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Restaurant is an ingested restaurant record. Everything but the menu item
// list is fixed after the first ingestion.
type Restaurant struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	AverageRating *float64            `json:"average_rating,omitempty"`
	ReviewCount   string              `json:"review_count,omitempty"`
	ImageURL      string              `json:"image_url,omitempty"`
	Address       string              `json:"address"`
	Latitude      *float64            `json:"latitude,omitempty"`
	Longitude     *float64            `json:"longitude,omitempty"`
	City          string              `json:"city"`
	State         string              `json:"state"`
	PriceRange    string              `json:"price_range"`
	Tags          []string            `json:"tags"`
	OtherInfo     OtherInfo           `json:"other_info"`
	MenuItems     []MenuItem          `json:"menu_items"`
	PlaceID       string              `json:"place_id,omitempty"`
	Reviews       []string            `json:"reviews"`
	BeliID        string              `json:"beli_id,omitempty"`
	TopItems      []CommunityFavorite `json:"top_items"`
}

type OtherInfo struct {
	Description string `json:"description,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Website     string `json:"website,omitempty"`
}

// MenuItem is one dish on a restaurant menu. Price is kept as the source
// text ("$14.99") so currency formatting survives round trips. Scraped data
// sometimes carries price and rating as JSON numbers; those are kept as
// their literal text.
type MenuItem struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       string `json:"price,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	Category    string `json:"category"`
	Rating      string `json:"rating,omitempty"`
	MostOrdered bool   `json:"most_ordered"`
}

func (m *MenuItem) UnmarshalJSON(data []byte) error {
	type plain MenuItem
	aux := struct {
		*plain
		Price  json.RawMessage `json:"price"`
		Rating json.RawMessage `json:"rating"`
	}{plain: (*plain)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	if m.Price, err = textOrNumber(aux.Price); err != nil {
		return fmt.Errorf("price: %w", err)
	}
	if m.Rating, err = textOrNumber(aux.Rating); err != nil {
		return fmt.Errorf("rating: %w", err)
	}
	return nil
}

// textOrNumber decodes a JSON string, number or null into text.
func textOrNumber(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("expected string or number, got %s", raw)
	}
	return n.String(), nil
}

// CommunityFavorite is a popularity hint from the community-ratings source.
type CommunityFavorite struct {
	Name                  string `json:"name"`
	ImageURL              string `json:"image,omitempty"`
	Position              int    `json:"position,omitempty"`
	RecommendationCount   int    `json:"recommendation_count,omitempty"`
	FriendRecommendations int    `json:"friend_recommendations,omitempty"`
}

// Summary is the list view of a restaurant.
type Summary struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Address    string   `json:"address"`
	City       string   `json:"city"`
	State      string   `json:"state"`
	PriceRange string   `json:"price_range"`
	Tags       []string `json:"tags"`
	ItemCount  int      `json:"item_count"`
}

func (r *Restaurant) Summary() Summary {
	return Summary{
		ID:         r.ID,
		Name:       r.Name,
		Address:    r.Address,
		City:       r.City,
		State:      r.State,
		PriceRange: r.PriceRange,
		Tags:       r.Tags,
		ItemCount:  len(r.MenuItems),
	}
}

// Lister is read access to the restaurant catalog.
type Lister interface {
	Get(ctx context.Context, id string) (*Restaurant, error)
	List(ctx context.Context) ([]*Restaurant, error)
}
