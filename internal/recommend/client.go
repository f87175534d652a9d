package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"tastebud/internal/metrics"
	"tastebud/internal/platform/logger"
)

// Generator turns a prompt into free text. Implementations live under
// internal/platform.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeDegraded
)

func (o Outcome) String() string {
	if o == OutcomeDegraded {
		return "degraded"
	}
	return "ok"
}

type DegradeReason string

const (
	ReasonNone         DegradeReason = ""
	ReasonUnavailable  DegradeReason = "unavailable"
	ReasonParseError   DegradeReason = "parse_error"
	ReasonExcludedItem DegradeReason = "excluded_item"
	ReasonUnknownItem  DegradeReason = "unknown_item"
)

// Reply is the structured answer, parsed from the generator or synthesized.
type Reply struct {
	RecommendedItem string
	ItemID          *int
	Reasoning       string
	Confidence      float64
	Ingredients     []string
	Allergens       []string
	Backup          string
}

// Result is what Recommend produces. Degraded results carry the cause in Err
// for logging only.
type Result struct {
	Reply   Reply
	Outcome Outcome
	Reason  DegradeReason
	Err     error
}

var errNoGenerator = errors.New("no text generator configured")

type ClientConfig struct {
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// Client makes the single external generation call per request.
type Client struct {
	gen     Generator
	breaker *gobreaker.CircuitBreaker[string]
	timeout time.Duration
	log     *logger.Logger
}

// NewClient wraps gen in a timeout and a circuit breaker. A nil gen makes
// every call take the deterministic path.
func NewClient(gen Generator, cfg ClientConfig, log *logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	threshold := cfg.FailureThreshold

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "text-generator",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller that went away says nothing about the generator.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{gen: gen, breaker: breaker, timeout: cfg.Timeout, log: log}
}

// Available reports whether a generator is configured.
func (c *Client) Available() bool {
	return c.gen != nil
}

// Recommend never fails. Any generator problem yields the deterministic pick.
func (c *Client) Recommend(ctx context.Context, prompt string, rc *RecommendationContext) Result {
	if c.gen == nil {
		return unavailable(rc, errNoGenerator)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	text, err := c.breaker.Execute(func() (string, error) {
		return c.generate(callCtx, prompt)
	})
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.log.Warn("text generation failed, using deterministic pick",
			"restaurant_id", rc.RestaurantID, "error", err)
		return unavailable(rc, err)
	}

	res := ParseReply(text)
	if res.Outcome == OutcomeDegraded {
		c.log.Warn("could not parse generator reply", "restaurant_id", rc.RestaurantID, "error", res.Err)
	}
	return res
}

type generation struct {
	text string
	err  error
}

// generate bounds the call by ctx even when the generator ignores it.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("generator panicked: %v", r)}
			}
		}()
		text, err := c.gen.GenerateText(ctx, prompt)
		done <- generation{text: text, err: err}
	}()

	select {
	case g := <-done:
		return g.text, g.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func unavailable(rc *RecommendationContext, err error) Result {
	return Result{
		Reply:   DeterministicPick(rc.MenuItems, rc.Excluded),
		Outcome: OutcomeDegraded,
		Reason:  ReasonUnavailable,
		Err:     err,
	}
}

// ParseReply extracts the JSON answer from raw generator text. Text that
// holds no JSON object becomes a fallback reply whose reasoning is the raw
// text.
func ParseReply(text string) Result {
	fields, err := extractJSON(text)
	if err != nil {
		return Result{
			Reply: Reply{
				RecommendedItem: FallbackItemName,
				Reasoning:       text,
				Confidence:      DegradedConfidence,
			},
			Outcome: OutcomeDegraded,
			Reason:  ReasonParseError,
			Err:     err,
		}
	}

	reply := Reply{
		RecommendedItem: strings.TrimSpace(stringField(fields, "recommended_item")),
		ItemID:          intField(fields, "item_id"),
		Reasoning:       stringField(fields, "reasoning"),
		Confidence:      DegradedConfidence,
		Ingredients:     stringList(fields, "ingredients"),
		Allergens:       stringList(fields, "allergens"),
		Backup:          strings.TrimSpace(stringField(fields, "backup_recommendation")),
	}
	if reply.RecommendedItem == "" {
		reply.RecommendedItem = FallbackItemName
	}
	if c, ok := numberField(fields, "confidence"); ok {
		reply.Confidence = math.Min(1, math.Max(0, c))
	}
	return Result{Reply: reply, Outcome: OutcomeOK}
}

func extractJSON(text string) (map[string]any, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")

	start := strings.Index(clean, "{")
	end := strings.LastIndex(clean, "}")
	if start == -1 || end <= start {
		return nil, errors.New("no JSON object in reply")
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(clean[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reply: %w", err)
	}
	return fields, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func numberField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case float64:
		return v, !math.IsNaN(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func intField(fields map[string]any, key string) *int {
	f, ok := numberField(fields, key)
	if !ok || f != math.Trunc(f) {
		return nil
	}
	n := int(f)
	return &n
}

func stringList(fields map[string]any, key string) []string {
	raw, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
