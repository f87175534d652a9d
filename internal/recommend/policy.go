package recommend

import (
	"fmt"

	"tastebud/internal/catalog"
)

// FallbackItemName is recommended when nothing on the menu is eligible.
// It is the only name exempt from the exclusion list.
const FallbackItemName = "Chef's Special"

const (
	MatchConfidence    = 0.85
	FallbackConfidence = 0.75
	DegradedConfidence = 0.7
)

const fallbackReasoning = "Given your refined palate and the items you've explored, I recommend trying the chef's special - " +
	"it represents the restaurant's creativity and expertise."

// Selection is the final, exclusion-safe decision for one request.
type Selection struct {
	// Item is the resolved menu item, or nil for the fallback.
	Item         *catalog.MenuItem
	Reply        Reply
	Outcome      Outcome
	Reason       DegradeReason
	Alternatives []catalog.MenuItem
}

// DeterministicPick returns the first menu item whose name is not excluded,
// or the fallback when every item is excluded.
func DeterministicPick(items []catalog.MenuItem, excluded []string) Reply {
	for _, item := range items {
		if isExcluded(item.Name, excluded) {
			continue
		}
		id := item.ID
		return Reply{
			RecommendedItem: item.Name,
			ItemID:          &id,
			Reasoning: fmt.Sprintf("Based on your taste preferences, %s offers the perfect balance of flavors you enjoy. "+
				"The fresh ingredients and expert preparation make it a standout choice.", item.Name),
			Confidence: MatchConfidence,
		}
	}
	return Reply{
		RecommendedItem: FallbackItemName,
		Reasoning:       fallbackReasoning,
		Confidence:      FallbackConfidence,
	}
}

// Enforce resolves the generator's answer against the menu and replaces any
// excluded or unknown item with the deterministic pick.
func Enforce(rc *RecommendationContext, res Result) Selection {
	reply := res.Reply
	if res.Reason == ReasonParseError {
		return Selection{Reply: reply, Outcome: res.Outcome, Reason: res.Reason}
	}

	item := resolve(rc.MenuItems, reply)
	switch {
	case item == nil && isFallback(reply.RecommendedItem):
		reply.RecommendedItem = FallbackItemName
		reply.ItemID = nil
		return Selection{Reply: reply, Outcome: res.Outcome, Reason: res.Reason}
	case item == nil:
		return substitute(rc, ReasonUnknownItem)
	case isExcluded(item.Name, rc.Excluded) || isExcluded(reply.RecommendedItem, rc.Excluded):
		return substitute(rc, ReasonExcludedItem)
	}

	reply.RecommendedItem = item.Name
	id := item.ID
	reply.ItemID = &id
	sel := Selection{Item: item, Reply: reply, Outcome: res.Outcome, Reason: res.Reason}

	if reply.Backup != "" {
		backup := findByName(rc.MenuItems, reply.Backup)
		if backup != nil && backup.ID != item.ID && !isExcluded(backup.Name, rc.Excluded) {
			sel.Alternatives = []catalog.MenuItem{*backup}
		}
	}
	return sel
}

func substitute(rc *RecommendationContext, reason DegradeReason) Selection {
	pick := DeterministicPick(rc.MenuItems, rc.Excluded)
	return Selection{
		Item:    resolve(rc.MenuItems, pick),
		Reply:   pick,
		Outcome: OutcomeDegraded,
		Reason:  reason,
	}
}

func resolve(items []catalog.MenuItem, reply Reply) *catalog.MenuItem {
	if item := findByName(items, reply.RecommendedItem); item != nil {
		return item
	}
	if reply.ItemID == nil {
		return nil
	}
	for i := range items {
		if items[i].ID == *reply.ItemID {
			item := items[i]
			return &item
		}
	}
	return nil
}

func findByName(items []catalog.MenuItem, name string) *catalog.MenuItem {
	key := catalog.NormalizeName(name)
	if key == "" {
		return nil
	}
	for i := range items {
		if catalog.NormalizeName(items[i].Name) == key {
			item := items[i]
			return &item
		}
	}
	return nil
}

func isExcluded(name string, excluded []string) bool {
	key := catalog.NormalizeName(name)
	for _, ex := range excluded {
		if catalog.NormalizeName(ex) == key {
			return true
		}
	}
	return false
}

func isFallback(name string) bool {
	return catalog.NormalizeName(name) == catalog.NormalizeName(FallbackItemName)
}
