package recommend

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"tastebud/internal/catalog"
	"tastebud/internal/metrics"
	"tastebud/internal/platform/logger"
	"tastebud/internal/profile"
	"tastebud/internal/store"
)

// ErrNotFound matches any *NotFoundError.
var ErrNotFound = errors.New("restaurant not found")

type NotFoundError struct {
	RestaurantID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("restaurant %q not found", e.RestaurantID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// FoodItemRecommendation is one recommended dish as returned to clients.
type FoodItemRecommendation struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Category    string   `json:"category"`
	ImageURL    string   `json:"image_url,omitempty"`
	Ingredients []string `json:"ingredients"`
	Allergens   []string `json:"allergens"`
	Reasoning   string   `json:"reasoning"`
	Confidence  float64  `json:"confidence"`
}

type Recommendation struct {
	Item            FoodItemRecommendation   `json:"item"`
	ConfidenceScore float64                  `json:"confidence_score"`
	SessionID       string                   `json:"session_id"`
	Alternatives    []FoodItemRecommendation `json:"alternatives"`
	Degraded        bool                     `json:"degraded"`
	DegradedReason  string                   `json:"degraded_reason,omitempty"`
}

type Config struct {
	MaxMenuItems int
	Client       ClientConfig
}

// Service runs the recommendation pipeline: assemble, prompt, generate,
// enforce.
type Service struct {
	assembler    *Assembler
	prompts      *PromptBuilder
	client       *Client
	log          *logger.Logger
	newSessionID func() string
}

// NewService wires the pipeline. gen may be nil.
func NewService(
	profiles store.Getter[profile.UserProfile],
	restaurants store.Getter[catalog.Restaurant],
	gen Generator,
	cfg Config,
	log *logger.Logger,
) *Service {
	return &Service{
		assembler:    NewAssembler(profiles, restaurants),
		prompts:      NewPromptBuilder(cfg.MaxMenuItems),
		client:       NewClient(gen, cfg.Client, log),
		log:          log,
		newSessionID: uuid.NewString,
	}
}

// GeneratorAvailable reports whether recommendations can use a text
// generator. When false every request takes the deterministic pick.
func (s *Service) GeneratorAvailable() bool {
	return s.client.Available()
}

// GetRecommendation returns one recommendation that avoids every name in
// excluded. It fails only when the restaurant is unknown or a lookup fails.
func (s *Service) GetRecommendation(ctx context.Context, userID, restaurantID string, excluded []string) (*Recommendation, error) {
	rc, err := s.assembler.Assemble(ctx, userID, restaurantID, excluded)
	if err != nil {
		return nil, err
	}
	if !rc.RestaurantFound {
		return nil, &NotFoundError{RestaurantID: restaurantID}
	}

	prompt := s.prompts.Build(rc, rc.RestaurantName)
	res := s.client.Recommend(ctx, prompt, rc)
	sel := Enforce(rc, res)

	metrics.RecommendationsTotal.WithLabelValues(sel.Outcome.String(), string(sel.Reason)).Inc()
	s.log.Info("recommendation served",
		"user_id", userID,
		"restaurant_id", restaurantID,
		"item", sel.Reply.RecommendedItem,
		"outcome", sel.Outcome.String(),
		"reason", string(sel.Reason),
		"excluded", len(rc.Excluded))

	rec := &Recommendation{
		Item:            toFoodItem(sel.Item, sel.Reply),
		ConfidenceScore: sel.Reply.Confidence,
		SessionID:       s.newSessionID(),
		Alternatives:    []FoodItemRecommendation{},
		Degraded:        sel.Outcome == OutcomeDegraded,
		DegradedReason:  string(sel.Reason),
	}
	for i := range sel.Alternatives {
		alt := sel.Alternatives[i]
		rec.Alternatives = append(rec.Alternatives, toFoodItem(&alt, Reply{
			Reasoning:  "Also a strong match for your taste profile.",
			Confidence: sel.Reply.Confidence,
		}))
	}
	return rec, nil
}

// GetRecommendationContext returns the assembled context with an empty
// exclusion list. Unknown restaurants yield an empty context, not an error.
func (s *Service) GetRecommendationContext(ctx context.Context, userID, restaurantID string) (*RecommendationContext, error) {
	return s.assembler.Assemble(ctx, userID, restaurantID, nil)
}

func toFoodItem(item *catalog.MenuItem, reply Reply) FoodItemRecommendation {
	rec := FoodItemRecommendation{
		Ingredients: nonNil(reply.Ingredients),
		Allergens:   nonNil(reply.Allergens),
		Reasoning:   reply.Reasoning,
		Confidence:  reply.Confidence,
	}
	if item == nil {
		rec.ID = "fallback_1"
		rec.Name = FallbackItemName
		rec.Description = "Today's special recommendation from the chef"
		rec.Price = "$18.99"
		rec.Category = "Specials"
		if len(rec.Ingredients) == 0 {
			rec.Ingredients = []string{"seasonal ingredients"}
		}
		return rec
	}

	rec.ID = strconv.Itoa(item.ID)
	rec.Name = item.Name
	rec.Description = item.Description
	rec.Price = item.Price
	rec.Category = item.Category
	rec.ImageURL = item.ImageURL
	return rec
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string{}, s...)
}
