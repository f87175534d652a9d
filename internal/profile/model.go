package profile

import "time"

// DietaryRestriction is a named restriction. Severity is one of
// "allergy", "intolerance" or "preference".
type DietaryRestriction struct {
	Name     string `json:"name" binding:"required"`
	Severity string `json:"severity" binding:"omitempty,oneof=allergy intolerance preference"`
}

type CuisinePreference struct {
	CuisineType     string `json:"cuisine_type" binding:"required"`
	PreferenceLevel int    `json:"preference_level" binding:"required,min=1,max=5"`
}

// FlavorProfile holds six independent 1-5 axes.
type FlavorProfile struct {
	SpicyTolerance  int `json:"spicy_tolerance" binding:"required,min=1,max=5"`
	SweetPreference int `json:"sweet_preference" binding:"required,min=1,max=5"`
	SaltyPreference int `json:"salty_preference" binding:"required,min=1,max=5"`
	SourPreference  int `json:"sour_preference" binding:"required,min=1,max=5"`
	UmamiPreference int `json:"umami_preference" binding:"required,min=1,max=5"`
	BitterTolerance int `json:"bitter_tolerance" binding:"required,min=1,max=5"`
}

type FoodItem struct {
	Name        string   `json:"name" binding:"required"`
	Restaurant  string   `json:"restaurant,omitempty"`
	CuisineType string   `json:"cuisine_type,omitempty"`
	Tags        []string `json:"tags"`
}

// UserProfile is a user's stored taste profile.
type UserProfile struct {
	UserID               string               `json:"user_id"`
	DietaryRestrictions  []DietaryRestriction `json:"dietary_restrictions"`
	CuisinePreferences   []CuisinePreference  `json:"cuisine_preferences"`
	FlavorProfile        *FlavorProfile       `json:"flavor_profile"`
	LikedFoods           []FoodItem           `json:"liked_foods"`
	DislikedFoods        []FoodItem           `json:"disliked_foods"`
	FavoriteRestaurants  []string             `json:"favorite_restaurants"`
	PriceRangePreference string               `json:"price_range_preference,omitempty"`
	MealTimePreferences  map[string][]string  `json:"meal_time_preferences"`
	UpdatedAt            time.Time            `json:"updated_at"`
}

// Default returns an all-empty profile for userID.
func Default(userID string) *UserProfile {
	return &UserProfile{
		UserID:              userID,
		DietaryRestrictions: []DietaryRestriction{},
		CuisinePreferences:  []CuisinePreference{},
		LikedFoods:          []FoodItem{},
		DislikedFoods:       []FoodItem{},
		FavoriteRestaurants: []string{},
		MealTimePreferences: map[string][]string{},
	}
}

// ActivityCount is the number of foods the user has rated either way.
func (p *UserProfile) ActivityCount() int {
	return len(p.LikedFoods) + len(p.DislikedFoods)
}

// Update is a partial profile update. Nil fields are left untouched.
type Update struct {
	DietaryRestrictions  *[]DietaryRestriction `json:"dietary_restrictions" binding:"omitempty,dive"`
	CuisinePreferences   *[]CuisinePreference  `json:"cuisine_preferences" binding:"omitempty,dive"`
	FlavorProfile        *FlavorProfile        `json:"flavor_profile"`
	LikedFoods           *[]FoodItem           `json:"liked_foods" binding:"omitempty,dive"`
	DislikedFoods        *[]FoodItem           `json:"disliked_foods" binding:"omitempty,dive"`
	FavoriteRestaurants  *[]string             `json:"favorite_restaurants"`
	PriceRangePreference *string               `json:"price_range_preference" binding:"omitempty,oneof=budget mid-range upscale"`
	MealTimePreferences  *map[string][]string  `json:"meal_time_preferences"`
}

// Apply copies the set fields of u onto p.
func (u Update) Apply(p *UserProfile) {
	if u.DietaryRestrictions != nil {
		p.DietaryRestrictions = append([]DietaryRestriction{}, (*u.DietaryRestrictions)...)
	}
	if u.CuisinePreferences != nil {
		p.CuisinePreferences = append([]CuisinePreference{}, (*u.CuisinePreferences)...)
	}
	if u.FlavorProfile != nil {
		fp := *u.FlavorProfile
		p.FlavorProfile = &fp
	}
	if u.LikedFoods != nil {
		p.LikedFoods = append([]FoodItem{}, (*u.LikedFoods)...)
	}
	if u.DislikedFoods != nil {
		p.DislikedFoods = append([]FoodItem{}, (*u.DislikedFoods)...)
	}
	if u.FavoriteRestaurants != nil {
		p.FavoriteRestaurants = append([]string{}, (*u.FavoriteRestaurants)...)
	}
	if u.PriceRangePreference != nil {
		p.PriceRangePreference = *u.PriceRangePreference
	}
	if u.MealTimePreferences != nil {
		m := make(map[string][]string, len(*u.MealTimePreferences))
		for k, v := range *u.MealTimePreferences {
			m[k] = append([]string{}, v...)
		}
		p.MealTimePreferences = m
	}
}
