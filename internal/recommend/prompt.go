package recommend

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"tastebud/internal/catalog"
	"tastebud/internal/profile"
)

const (
	DefaultMaxMenuItems = 75
	maxReviews          = 5
	maxReviewRunes      = 150
	maxFoodsListed      = 5
)

// PromptBuilder renders a RecommendationContext into model instructions.
// Output depends only on its input.
type PromptBuilder struct {
	maxMenuItems int
}

// NewPromptBuilder returns a builder listing at most maxMenuItems menu
// items. Non-positive values use DefaultMaxMenuItems.
func NewPromptBuilder(maxMenuItems int) *PromptBuilder {
	if maxMenuItems <= 0 {
		maxMenuItems = DefaultMaxMenuItems
	}
	return &PromptBuilder{maxMenuItems: maxMenuItems}
}

func (b *PromptBuilder) Build(rc *RecommendationContext, restaurantName string) string {
	sections := []string{
		roleSection(restaurantName),
		profileSection(&rc.Profile),
		b.menuSection(rc.MenuItems),
		reviewSection(rc.Reviews),
		communitySection(rc.CommunityFavorites),
		exclusionSection(rc.Excluded),
		responseFormat,
	}
	return strings.Join(sections, "\n\n") + "\n"
}

func roleSection(restaurantName string) string {
	if strings.TrimSpace(restaurantName) == "" {
		restaurantName = "this restaurant"
	}
	return fmt.Sprintf("You are an expert food recommendation AI helping a user choose their next meal at %s. "+
		"Your goal is to recommend ONE perfect menu item based on their taste profile, the menu, "+
		"what other diners say, and what the community loves.", restaurantName)
}

func profileSection(p *profile.UserProfile) string {
	var lines []string

	if len(p.DietaryRestrictions) > 0 {
		parts := make([]string, 0, len(p.DietaryRestrictions))
		for _, r := range p.DietaryRestrictions {
			if r.Severity != "" {
				parts = append(parts, fmt.Sprintf("%s (%s)", r.Name, r.Severity))
			} else {
				parts = append(parts, r.Name)
			}
		}
		lines = append(lines, "- Dietary restrictions: "+strings.Join(parts, ", "))
	}

	if len(p.CuisinePreferences) > 0 {
		parts := make([]string, 0, len(p.CuisinePreferences))
		for _, c := range p.CuisinePreferences {
			parts = append(parts, fmt.Sprintf("%s (%d/5)", c.CuisineType, c.PreferenceLevel))
		}
		lines = append(lines, "- Cuisine preferences: "+strings.Join(parts, ", "))
	}

	if f := p.FlavorProfile; f != nil {
		lines = append(lines, fmt.Sprintf(
			"- Flavor profile: spicy tolerance %d/5, sweet %d/5, salty %d/5, sour %d/5, umami %d/5, bitter tolerance %d/5",
			f.SpicyTolerance, f.SweetPreference, f.SaltyPreference, f.SourPreference, f.UmamiPreference, f.BitterTolerance))
	}

	if len(p.LikedFoods) > 0 {
		lines = append(lines, "- Previously liked: "+foodNames(p.LikedFoods))
	}
	if len(p.DislikedFoods) > 0 {
		lines = append(lines, "- Previously disliked: "+foodNames(p.DislikedFoods))
	}

	if p.PriceRangePreference != "" {
		lines = append(lines, "- Price range preference: "+p.PriceRangePreference)
	}

	if len(p.MealTimePreferences) > 0 {
		meals := make([]string, 0, len(p.MealTimePreferences))
		for meal := range p.MealTimePreferences {
			meals = append(meals, meal)
		}
		sort.Strings(meals)
		parts := make([]string, 0, len(meals))
		for _, meal := range meals {
			parts = append(parts, fmt.Sprintf("%s: %s", meal, strings.Join(p.MealTimePreferences[meal], ", ")))
		}
		lines = append(lines, "- Meal-time preferences: "+strings.Join(parts, "; "))
	}

	if len(lines) == 0 {
		lines = append(lines, "- No preferences recorded yet")
	}
	return "USER PROFILE:\n" + strings.Join(lines, "\n")
}

func foodNames(foods []profile.FoodItem) string {
	if len(foods) > maxFoodsListed {
		foods = foods[:maxFoodsListed]
	}
	names := make([]string, 0, len(foods))
	for _, f := range foods {
		names = append(names, f.Name)
	}
	return strings.Join(names, ", ")
}

func (b *PromptBuilder) menuSection(items []catalog.MenuItem) string {
	if len(items) == 0 {
		return "AVAILABLE MENU ITEMS:\n- (no menu items available)"
	}

	shown := items
	if len(shown) > b.maxMenuItems {
		shown = shown[:b.maxMenuItems]
	}
	lines := make([]string, 0, len(shown)+1)
	for _, item := range shown {
		lines = append(lines, menuLine(item))
	}
	if rest := len(items) - len(shown); rest > 0 {
		lines = append(lines, fmt.Sprintf("- ... and %d more items", rest))
	}
	return "AVAILABLE MENU ITEMS:\n" + strings.Join(lines, "\n")
}

func menuLine(item catalog.MenuItem) string {
	var sb strings.Builder
	sb.WriteString("- ")
	sb.WriteString(item.Name)
	if item.Category != "" {
		fmt.Fprintf(&sb, " (%s)", item.Category)
	}
	if item.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(item.Description)
	}
	if price := formatPrice(item.Price); price != "" {
		sb.WriteString(" - ")
		sb.WriteString(price)
	}
	fmt.Fprintf(&sb, " [item_id: %d]", item.ID)
	return sb.String()
}

// formatPrice keeps source text verbatim unless it is a bare number.
// Placeholders without digits, such as "N/A", render as no price.
func formatPrice(price string) string {
	price = catalog.CleanPrice(price)
	if price == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(price)
	if unicode.IsDigit(r) || r == '.' {
		return "$" + price
	}
	return price
}

func reviewSection(reviews []string) string {
	lines := make([]string, 0, maxReviews)
	for _, review := range reviews {
		if len(lines) == maxReviews {
			break
		}
		review = strings.Join(strings.Fields(review), " ")
		if review == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %q", truncateRunes(review, maxReviewRunes)))
	}
	if len(lines) == 0 {
		return "CUSTOMER REVIEWS:\n- None available"
	}
	return "CUSTOMER REVIEWS:\n" + strings.Join(lines, "\n")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func communitySection(favorites []catalog.CommunityFavorite) string {
	if len(favorites) == 0 {
		return "COMMUNITY FAVORITES:\n- None available"
	}
	lines := make([]string, 0, len(favorites))
	for _, fav := range favorites {
		var details []string
		if fav.Position > 0 {
			details = append(details, fmt.Sprintf("ranked #%d", fav.Position))
		}
		if fav.RecommendationCount > 0 {
			details = append(details, fmt.Sprintf("%d recommendations", fav.RecommendationCount))
		}
		if fav.FriendRecommendations > 0 {
			details = append(details, fmt.Sprintf("%d from friends", fav.FriendRecommendations))
		}
		line := "- " + fav.Name
		if len(details) > 0 {
			line += " (" + strings.Join(details, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return "COMMUNITY FAVORITES:\n" + strings.Join(lines, "\n")
}

func exclusionSection(excluded []string) string {
	const header = "ITEMS THE USER ALREADY REJECTED THIS SESSION (never recommend these):\n"
	if len(excluded) == 0 {
		return header + "None"
	}
	return header + strings.Join(excluded, ", ")
}

const responseFormat = `RESPONSE FORMAT:
Respond with a single JSON object and nothing else:
{
  "recommended_item": "exact menu item name",
  "item_id": 0,
  "reasoning": "2-3 sentences on why this item fits the user",
  "confidence": 0.0,
  "ingredients": ["main ingredients, if known"],
  "allergens": ["likely allergens, if any"],
  "backup_recommendation": "exact name of a second choice"
}

GUIDELINES:
- recommended_item must match a name from AVAILABLE MENU ITEMS exactly, and item_id must be its id.
- Never recommend an item from the rejected list.
- Respect dietary restrictions strictly; allergies are non-negotiable.
- Weigh cuisine and flavor preferences, then reviews and community favorites.
- confidence is a number between 0 and 1.`
