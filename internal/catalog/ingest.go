package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"tastebud/internal/metrics"
	"tastebud/internal/platform/logger"
	"tastebud/internal/store"
)

// ErrRestaurantNotFound is returned when appending to an unknown restaurant.
var ErrRestaurantNotFound = errors.New("restaurant not found")

// ErrDuplicateItem is returned when an appended item's name is already on the menu.
var ErrDuplicateItem = errors.New("menu item already exists")

// NormalizeName folds case and collapses whitespace for name comparisons.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CleanPrice trims a price and blanks placeholders such as "N/A" that carry
// no digits.
func CleanPrice(price string) string {
	price = strings.TrimSpace(price)
	if strings.IndexFunc(price, unicode.IsDigit) < 0 {
		return ""
	}
	return price
}

// Decode parses one processed restaurant document.
func Decode(r io.Reader) (*Restaurant, error) {
	var rest Restaurant
	if err := json.NewDecoder(r).Decode(&rest); err != nil {
		return nil, fmt.Errorf("failed to decode restaurant: %w", err)
	}
	if err := Normalize(&rest); err != nil {
		return nil, err
	}
	return &rest, nil
}

// Normalize trims names, drops nameless menu items and gives every item a
// restaurant-unique numeric id. Items that already carry a unique id keep it.
func Normalize(r *Restaurant) error {
	r.ID = strings.TrimSpace(r.ID)
	r.Name = strings.TrimSpace(r.Name)
	if r.ID == "" {
		return fmt.Errorf("restaurant id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("restaurant %s: name is required", r.ID)
	}

	items := make([]MenuItem, 0, len(r.MenuItems))
	for _, item := range r.MenuItems {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		item.Price = CleanPrice(item.Price)
		item.Description = strings.TrimSpace(item.Description)
		item.Category = strings.TrimSpace(item.Category)
		items = append(items, item)
	}
	r.MenuItems = assignIDs(items, 0)

	if r.Tags == nil {
		r.Tags = []string{}
	}
	if r.Reviews == nil {
		r.Reviews = []string{}
	}
	if r.TopItems == nil {
		r.TopItems = []CommunityFavorite{}
	}
	return nil
}

// assignIDs gives items without a unique positive id the next free id above
// max(floor, existing ids).
func assignIDs(items []MenuItem, floor int) []MenuItem {
	next := floor
	for _, item := range items {
		if item.ID > next {
			next = item.ID
		}
	}
	seen := make(map[int]bool, len(items))
	for i := range items {
		if items[i].ID <= 0 || seen[items[i].ID] {
			next++
			items[i].ID = next
		}
		seen[items[i].ID] = true
	}
	return items
}

// Merge appends the incoming menu items whose names are not already on the
// existing menu. Existing items are never modified. Reviews and community
// favorites are taken from incoming only when existing has none.
func Merge(existing, incoming *Restaurant) *Restaurant {
	merged := *existing
	merged.MenuItems = append([]MenuItem(nil), existing.MenuItems...)

	known := make(map[string]bool, len(merged.MenuItems))
	maxID := 0
	for _, item := range merged.MenuItems {
		known[NormalizeName(item.Name)] = true
		if item.ID > maxID {
			maxID = item.ID
		}
	}

	var added []MenuItem
	for _, item := range incoming.MenuItems {
		key := NormalizeName(item.Name)
		if known[key] {
			continue
		}
		known[key] = true
		item.ID = 0
		added = append(added, item)
	}
	merged.MenuItems = append(merged.MenuItems, assignIDs(added, maxID)...)

	if len(merged.Reviews) == 0 {
		merged.Reviews = append([]string{}, incoming.Reviews...)
	}
	if len(merged.TopItems) == 0 {
		merged.TopItems = append([]CommunityFavorite{}, incoming.TopItems...)
	}
	return &merged
}

// Ingester writes processed restaurant documents into the catalog store.
type Ingester struct {
	repo store.Repository[Restaurant]
	log  *logger.Logger
}

func NewIngester(repo store.Repository[Restaurant], log *logger.Logger) *Ingester {
	return &Ingester{repo: repo, log: log}
}

// Ingest stores r, merging it into any record already held under its id.
func (in *Ingester) Ingest(ctx context.Context, r *Restaurant) (*Restaurant, error) {
	if err := Normalize(r); err != nil {
		return nil, err
	}
	out, err := in.repo.Update(ctx, r.ID, func(existing *Restaurant) (*Restaurant, error) {
		if existing == nil {
			return r, nil
		}
		return Merge(existing, r), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save restaurant %s: %w", r.ID, err)
	}
	metrics.IngestedRestaurantsTotal.Inc()
	return out, nil
}

// IngestDir ingests every *.json file in dir in name order and returns the
// number of restaurants written. A malformed file aborts the run.
func (in *Ingester) IngestDir(ctx context.Context, dir string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	sort.Strings(paths)

	count := 0
	for _, path := range paths {
		r, err := decodeFile(path)
		if err != nil {
			return count, err
		}
		stored, err := in.Ingest(ctx, r)
		if err != nil {
			return count, fmt.Errorf("%s: %w", path, err)
		}
		in.log.Info("ingested restaurant", "restaurant_id", stored.ID, "name", stored.Name, "menu_items", len(stored.MenuItems))
		count++
	}
	return count, nil
}

func decodeFile(path string) (*Restaurant, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// AppendItem adds a single menu item to an existing restaurant. It returns
// the stored item with its assigned id. Appends to the same restaurant are
// serialized by the store, so ids stay unique under concurrent calls.
func (in *Ingester) AppendItem(ctx context.Context, restaurantID string, item MenuItem) (*MenuItem, error) {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return nil, fmt.Errorf("menu item name is required")
	}
	item.Price = CleanPrice(item.Price)

	var stored MenuItem
	_, err := in.repo.Update(ctx, restaurantID, func(existing *Restaurant) (*Restaurant, error) {
		if existing == nil {
			return nil, ErrRestaurantNotFound
		}
		for _, known := range existing.MenuItems {
			if NormalizeName(known.Name) == NormalizeName(item.Name) {
				return nil, fmt.Errorf("%q: %w", item.Name, ErrDuplicateItem)
			}
		}
		merged := Merge(existing, &Restaurant{MenuItems: []MenuItem{item}})
		stored = merged.MenuItems[len(merged.MenuItems)-1]
		return merged, nil
	})
	switch {
	case errors.Is(err, ErrRestaurantNotFound), errors.Is(err, ErrDuplicateItem):
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("failed to save restaurant %s: %w", restaurantID, err)
	}
	return &stored, nil
}
