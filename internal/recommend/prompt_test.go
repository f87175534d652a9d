package recommend

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"tastebud/internal/catalog"
	"tastebud/internal/profile"
)

func promptContext() *RecommendationContext {
	return &RecommendationContext{
		RestaurantName: "Sakura Sushi",
		Profile: profile.UserProfile{
			UserID:              "u1",
			DietaryRestrictions: []profile.DietaryRestriction{{Name: "peanuts", Severity: "allergy"}, {Name: "vegetarian"}},
			CuisinePreferences:  []profile.CuisinePreference{{CuisineType: "Japanese", PreferenceLevel: 5}},
			FlavorProfile:       &profile.FlavorProfile{SpicyTolerance: 4, SweetPreference: 3, SaltyPreference: 2, SourPreference: 1, UmamiPreference: 5, BitterTolerance: 2},
			MealTimePreferences: map[string][]string{"dinner": {"hearty"}, "breakfast": {"light", "protein-rich"}},
		},
		MenuItems: []catalog.MenuItem{
			{ID: 1, Name: "Dragon Roll", Description: "Shrimp tempura, avocado", Price: "$14.99", Category: "Sushi Rolls"},
			{ID: 2, Name: "Green Tea", Price: "3.00"},
			{ID: 3, Name: "Omakase", Category: "Chef"},
		},
		Reviews:            []string{"Amazing sushi!", "", strings.Repeat("a", 200)},
		CommunityFavorites: []catalog.CommunityFavorite{{Name: "Dragon Roll", Position: 1, RecommendationCount: 23}},
	}
}

func TestBuildMenuLines(t *testing.T) {
	p := NewPromptBuilder(0).Build(promptContext(), "Sakura Sushi")

	assert.Contains(t, p, "- Dragon Roll (Sushi Rolls): Shrimp tempura, avocado - $14.99 [item_id: 1]\n")
	assert.Contains(t, p, "- Green Tea - $3.00 [item_id: 2]\n")
	assert.Contains(t, p, "- Omakase (Chef) [item_id: 3]\n")
	assert.Contains(t, p, "at Sakura Sushi.")
}

func TestBuildOmitsMissingPrices(t *testing.T) {
	rc := &RecommendationContext{MenuItems: []catalog.MenuItem{
		{ID: 1, Name: "Dragon Roll", Price: "N/A"},
		{ID: 2, Name: "Miso Soup", Price: "$N/A"},
		{ID: 3, Name: "Salmon Nigiri", Price: "  "},
		{ID: 4, Name: "Tuna Tataki", Price: "14.99"},
	}}

	p := NewPromptBuilder(0).Build(rc, "Sakura")
	assert.Contains(t, p, "- Dragon Roll [item_id: 1]\n")
	assert.Contains(t, p, "- Miso Soup [item_id: 2]\n")
	assert.Contains(t, p, "- Salmon Nigiri [item_id: 3]\n")
	assert.Contains(t, p, "- Tuna Tataki - $14.99 [item_id: 4]\n")
	assert.NotContains(t, p, "N/A")
}

func TestBuildSectionOrder(t *testing.T) {
	p := NewPromptBuilder(0).Build(promptContext(), "Sakura Sushi")

	headers := []string{"You are an expert", "USER PROFILE:", "AVAILABLE MENU ITEMS:", "CUSTOMER REVIEWS:",
		"COMMUNITY FAVORITES:", "ITEMS THE USER ALREADY REJECTED", "RESPONSE FORMAT:"}
	last := -1
	for _, h := range headers {
		idx := strings.Index(p, h)
		assert.Greater(t, idx, last, "section %q out of order", h)
		last = idx
	}
	assert.Contains(t, p, "(never recommend these):\nNone")
}

func TestBuildProfile(t *testing.T) {
	p := NewPromptBuilder(0).Build(promptContext(), "Sakura Sushi")

	assert.Contains(t, p, "- Dietary restrictions: peanuts (allergy), vegetarian")
	assert.Contains(t, p, "- Cuisine preferences: Japanese (5/5)")
	assert.Contains(t, p, "spicy tolerance 4/5, sweet 3/5, salty 2/5, sour 1/5, umami 5/5, bitter tolerance 2/5")
	assert.Contains(t, p, "- Meal-time preferences: breakfast: light, protein-rich; dinner: hearty")

	empty := NewPromptBuilder(0).Build(&RecommendationContext{}, "")
	assert.Contains(t, empty, "- No preferences recorded yet")
	assert.Contains(t, empty, "at this restaurant.")
	assert.Contains(t, empty, "CUSTOMER REVIEWS:\n- None available")
}

func TestBuildReviewsTruncated(t *testing.T) {
	p := NewPromptBuilder(0).Build(promptContext(), "Sakura Sushi")

	assert.Contains(t, p, `- "Amazing sushi!"`)
	assert.Contains(t, p, fmt.Sprintf("- %q", strings.Repeat("a", 150)+"..."))
	assert.NotContains(t, p, strings.Repeat("a", 151))
	assert.NotContains(t, p, `- ""`)
}

func TestBuildCapsLists(t *testing.T) {
	rc := promptContext()
	rc.MenuItems = nil
	for i := 1; i <= 10; i++ {
		rc.MenuItems = append(rc.MenuItems, catalog.MenuItem{ID: i, Name: fmt.Sprintf("Item %d", i)})
		rc.Profile.LikedFoods = append(rc.Profile.LikedFoods, profile.FoodItem{Name: fmt.Sprintf("Liked %d", i)})
	}
	rc.Reviews = []string{"r1", "r2", "r3", "r4", "r5", "r6"}

	p := NewPromptBuilder(4).Build(rc, "Sakura Sushi")

	assert.Contains(t, p, "[item_id: 4]\n- ... and 6 more items\n")
	assert.NotContains(t, p, "Item 5")
	assert.Contains(t, p, "- Previously liked: Liked 1, Liked 2, Liked 3, Liked 4, Liked 5\n")
	assert.NotContains(t, p, `"r6"`)
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewPromptBuilder(0)
	rc := promptContext()
	rc.Excluded = []string{"Green Tea", "Omakase"}
	rc.Profile.MealTimePreferences["lunch"] = []string{"quick"}

	first := b.Build(rc, "Sakura Sushi")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, b.Build(rc, "Sakura Sushi"))
	}
	assert.Contains(t, first, "(never recommend these):\nGreen Tea, Omakase")
}
