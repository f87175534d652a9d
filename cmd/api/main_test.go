package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tastebud/internal/cart"
	"tastebud/internal/catalog"
	"tastebud/internal/config"
	"tastebud/internal/platform/localllm"
	"tastebud/internal/platform/logger"
	"tastebud/internal/recommend"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T, provider, localURL string) *config.Config {
	return &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:3000"},
			ImageDir:       t.TempDir(),
			RequestTimeout: 2 * time.Second,
		},
		LLM: config.LLMConfig{
			Provider:         provider,
			LocalURL:         localURL,
			LocalModel:       "test-model",
			Timeout:          2 * time.Second,
			FailureThreshold: 5,
			OpenTimeout:      time.Minute,
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour},
	}
}

type testServer struct {
	app    *app
	router *gin.Engine
	token  string
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	a, err := newApp(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = a.ingester.Ingest(context.Background(), &catalog.Restaurant{
		ID:   "458712",
		Name: "Sakura Sushi",
		MenuItems: []catalog.MenuItem{
			{ID: 1, Name: "Dragon Roll", Description: "Shrimp tempura, avocado", Price: "$14.99", Category: "Sushi Rolls"},
			{ID: 2, Name: "Salmon Nigiri", Price: "$8.00", Category: "Nigiri"},
		},
		Reviews:  []string{"Amazing sushi!", "Great service."},
		TopItems: []catalog.CommunityFavorite{{Name: "Dragon Roll", RecommendationCount: 23}},
	})
	require.NoError(t, err)

	token, err := a.tokens.GenerateToken("u1")
	require.NoError(t, err)
	return &testServer{app: a, router: newRouter(a), token: token}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequiresAuth(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/recs/458712", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/restaurants", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRecommendDeterministic(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := s.do(t, http.MethodPost, "/recs/458712", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[recommend.Recommendation](t, w)
	assert.Equal(t, "Dragon Roll", rec.Item.Name)
	assert.Equal(t, 0.85, rec.ConfidenceScore)
	assert.NotEmpty(t, rec.SessionID)
	assert.True(t, rec.Degraded)

	w = s.do(t, http.MethodPost, "/recs/458712", `{"curr_dislikes": ["Dragon Roll", "Salmon Nigiri"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	rec = decode[recommend.Recommendation](t, w)
	assert.Equal(t, "Chef's Special", rec.Item.Name)
	assert.Equal(t, 0.75, rec.ConfidenceScore)

	w = s.do(t, http.MethodPost, "/recs/458712", `{"curr_dislikes": ["Dragon Roll"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	rec = decode[recommend.Recommendation](t, w)
	assert.Equal(t, "Salmon Nigiri", rec.Item.Name)
}

func TestRecommendErrors(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := s.do(t, http.MethodPost, "/recs/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/recs/458712", `{"curr_dislikes": "Dragon Roll"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendWithLocalLLM(t *testing.T) {
	var prompt string
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req localllm.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		prompt = req.Messages[0].Content[0].Text
		reply := `{"recommended_item": "Salmon Nigiri", "item_id": 2, "reasoning": "Clean and light.", "confidence": 0.9}`
		_ = json.NewEncoder(w).Encode(localllm.Response{Choices: []localllm.Choice{{Message: localllm.ResponseMessage{Content: reply}}}})
	}))
	defer llm.Close()

	s := newTestServer(t, testConfig(t, "local", llm.URL))

	w := s.do(t, http.MethodPost, "/recs/458712", `{"curr_dislikes": ["Dragon Roll"]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rec := decode[recommend.Recommendation](t, w)
	assert.Equal(t, "Salmon Nigiri", rec.Item.Name)
	assert.Equal(t, "Clean and light.", rec.Item.Reasoning)
	assert.Equal(t, 0.9, rec.ConfidenceScore)
	assert.False(t, rec.Degraded)

	assert.Contains(t, prompt, "at Sakura Sushi.")
	assert.Contains(t, prompt, "- Dragon Roll (Sushi Rolls): Shrimp tempura, avocado - $14.99 [item_id: 1]")
	assert.Contains(t, prompt, "(never recommend these):\nDragon Roll")
}

func TestRecommendationContext(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := s.do(t, http.MethodGet, "/recs/458712/context", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "Sakura Sushi", body["restaurant_name"])
	assert.Equal(t, float64(2), body["available_items_count"])
	assert.Equal(t, float64(2), body["reviews_count"])
	assert.Equal(t, float64(1), body["community_favorites_count"])

	w = s.do(t, http.MethodGet, "/recs/unknown/context", "")
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[map[string]any](t, w)
	assert.Equal(t, false, body["restaurant_found"])
	assert.Equal(t, float64(0), body["available_items_count"])
}

func TestProfileLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := s.do(t, http.MethodGet, "/user_profile/u1", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, float64(0), body["recommendations_count"])

	w = s.do(t, http.MethodPost, "/user_profile/u1", `{
		"cuisine_preferences": [{"cuisine_type": "Japanese", "preference_level": 5}],
		"liked_foods": [{"name": "Ramen", "tags": ["noodles"]}]
	}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode[map[string]any](t, w)
	assert.Equal(t, float64(1), body["recommendations_count"])

	w = s.do(t, http.MethodPost, "/user_profile/u1", `{"price_range_preference": "upscale"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode[map[string]any](t, w)
	p := body["profile"].(map[string]any)
	assert.Equal(t, "upscale", p["price_range_preference"])
	assert.Len(t, p["cuisine_preferences"], 1)

	w = s.do(t, http.MethodPost, "/user_profile/u1", `{"cuisine_preferences": [{"cuisine_type": "Thai", "preference_level": 9}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/user_profile/someone-else", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodDelete, "/user_profile/u1", "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodDelete, "/user_profile/u1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRestaurantEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := s.do(t, http.MethodGet, "/restaurants", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]catalog.Summary](t, w)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].ItemCount)

	w = s.do(t, http.MethodGet, "/restaurants/458712/items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Salmon Nigiri")

	w = s.do(t, http.MethodGet, "/restaurants/458712/reviews?limit=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	reviews := decode[map[string]any](t, w)
	assert.Len(t, reviews["reviews"], 1)
	assert.Equal(t, float64(2), reviews["total_reviews"])

	w = s.do(t, http.MethodGet, "/restaurants/458712/top_items", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"recommendation_count":23`)

	w = s.do(t, http.MethodGet, "/restaurants/458712/reviews?limit=zero", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/restaurants/missing/items", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	return pngBytesWith(t, color.RGBA{R: 255, A: 255})
}

func imageName(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ".png"
}

func pngBytesWith(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	img.Set(1, 1, c)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func (s *testServer) upload(t *testing.T, path string, fields map[string]string, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestAddMenuItem(t *testing.T) {
	cfg := testConfig(t, "none", "")
	s := newTestServer(t, cfg)

	w := s.upload(t, "/restaurants/458712/items",
		map[string]string{"name": "Tuna Tataki", "price": "$16.00", "category": "Specials"},
		"tataki.png", pngBytes(t))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	item := decode[catalog.MenuItem](t, w)
	assert.Equal(t, 3, item.ID)
	assert.True(t, strings.HasPrefix(item.ImageURL, "/images/"))
	_, err := os.Stat(filepath.Join(cfg.Server.ImageDir, filepath.Base(item.ImageURL)))
	assert.NoError(t, err)

	w = s.upload(t, "/restaurants/458712/items", map[string]string{"name": "tuna tataki"}, "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.upload(t, "/restaurants/458712/items", map[string]string{"name": "Gyoza"}, "gyoza.gif", []byte("GIF89a"))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, "/restaurants/458712/items", map[string]string{"category": "Nameless"}, "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, "/restaurants/missing/items", map[string]string{"name": "Gyoza"}, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/restaurants/458712/items", "")
	assert.Contains(t, w.Body.String(), "Tuna Tataki")
}

func TestAddMenuItemRejectedLeavesNoImage(t *testing.T) {
	cfg := testConfig(t, "none", "")
	s := newTestServer(t, cfg)

	first := pngBytes(t)
	w := s.upload(t, "/restaurants/458712/items", map[string]string{"name": "Tuna Tataki"}, "tataki.png", first)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.upload(t, "/restaurants/458712/items", map[string]string{"name": "Dragon Roll"}, "other.png", pngBytesWith(t, color.RGBA{B: 255, A: 255}))
	assert.Equal(t, http.StatusConflict, w.Code)

	// Same content as an image already in use: the duplicate must not remove it.
	w = s.upload(t, "/restaurants/458712/items", map[string]string{"name": "tuna tataki"}, "tataki.png", first)
	assert.Equal(t, http.StatusConflict, w.Code)

	entries, err := os.ReadDir(cfg.Server.ImageDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, imageName(first), entries[0].Name())
}

func toolBody(name, args string) string {
	return `{"message": {"toolCalls": [{"id": "call-1", "function": {"name": "` + name + `", "arguments": ` + args + `}}]}}`
}

func (s *testServer) tool(t *testing.T, path, body, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Vapi-Secret", secret)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

type toolResponse[T any] struct {
	Results []struct {
		ToolCallID string `json:"toolCallId"`
		Result     T      `json:"result"`
	} `json:"results"`
}

type cartResult struct {
	UserID     string      `json:"user_id"`
	Message    string      `json:"message"`
	CartItems  []cart.Item `json:"cart_items"`
	TotalItems int         `json:"total_items"`
}

func TestVapiCart(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := s.tool(t, "/vapi/item-cart", toolBody("getUserCart", `{"user_id": "u1"}`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	empty := decode[toolResponse[cartResult]](t, w)
	require.Len(t, empty.Results, 1)
	assert.Equal(t, "call-1", empty.Results[0].ToolCallID)
	assert.Equal(t, "u1", empty.Results[0].Result.UserID)
	assert.Equal(t, 0, empty.Results[0].Result.TotalItems)

	// Arguments may arrive as a JSON-encoded string.
	w = s.tool(t, "/vapi/user_cart", toolBody("addItemToCart", `"{\"user_id\": \"u1\", \"item_id\": 2}"`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	added := decode[toolResponse[cartResult]](t, w)
	assert.Equal(t, "Added Salmon Nigiri to cart", added.Results[0].Result.Message)

	w = s.tool(t, "/vapi/user_cart", toolBody("addItemToCart", `{"user_id": "u1", "item_id": 2, "restaurant_id": "458712"}`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.tool(t, "/vapi/item-cart", toolBody("getUserCart", `{"user_id": "u1"}`), "")
	got := decode[toolResponse[cartResult]](t, w).Results[0].Result
	require.Equal(t, 1, got.TotalItems)
	assert.Equal(t, "Salmon Nigiri", got.CartItems[0].Name)
	assert.Equal(t, "Sakura Sushi", got.CartItems[0].RestaurantName)
	assert.Equal(t, 2, got.CartItems[0].Quantity)

	w = s.tool(t, "/vapi/user_cart", toolBody("addItemToCart", `{"user_id": "u1", "item_id": 99}`), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Menu item with ID 99 not found")

	w = s.tool(t, "/vapi/user_cart", toolBody("addItemToCart", `{"user_id": "u1"}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.tool(t, "/vapi/item-cart", toolBody("somethingElse", `{"user_id": "u1"}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid tool call")
}

func TestVapiRestaurants(t *testing.T) {
	s := newTestServer(t, testConfig(t, "none", ""))

	w := s.tool(t, "/vapi/restaurant-by-id", toolBody("getRestaurantInfo", `{"restaurant_id": "458712"}`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	r := decode[toolResponse[catalog.Restaurant]](t, w).Results[0].Result
	assert.Equal(t, "Sakura Sushi", r.Name)
	assert.Len(t, r.MenuItems, 2)

	w = s.tool(t, "/vapi/restaurant-by-id", toolBody("getRestaurantInfo", `{"restaurant_id": "missing"}`), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.tool(t, "/vapi/restaurant-by-id", toolBody("getRestaurantInfo", `{}`), "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.tool(t, "/vapi/restaurants", toolBody("getRestaurantList", `{}`), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	list := decode[toolResponse[struct {
		Restaurants []catalog.Summary `json:"restaurants"`
		TotalCount  int               `json:"total_count"`
	}]](t, w).Results[0].Result
	assert.Equal(t, 1, list.TotalCount)
	assert.Equal(t, "458712", list.Restaurants[0].ID)

	w = s.tool(t, "/vapi/restaurants", toolBody("getUserCart", `{}`), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"results": [{"result": "failure"}]}`, w.Body.String())
}

func TestVapiSecret(t *testing.T) {
	cfg := testConfig(t, "none", "")
	cfg.Vapi.Secret = "tool-secret"
	s := newTestServer(t, cfg)

	body := toolBody("getUserCart", `{"user_id": "u1"}`)
	assert.Equal(t, http.StatusUnauthorized, s.tool(t, "/vapi/item-cart", body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, s.tool(t, "/vapi/item-cart", body, "wrong").Code)
	assert.Equal(t, http.StatusOK, s.tool(t, "/vapi/item-cart", body, "tool-secret").Code)
}

func TestIngestAndTokenCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"environment": "production", "llm": {"provider": "none"}, "auth": {"jwt_secret": "cli-secret"}}`), 0o600))

	dataDir := filepath.Join(dir, "processed")
	require.NoError(t, os.Mkdir(dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "sakura.json"),
		[]byte(`{"id": "1", "name": "Sakura", "menu_items": [{"name": "Dragon Roll"}]}`), 0o600))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"ingest", "--config", cfgPath, "--dir", dataDir})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "ingested 1 restaurants")

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"token", "--config", cfgPath, "--user", "u1"})
	require.NoError(t, cmd.Execute())

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	tokens, err := newTokenManager(cfg)
	require.NoError(t, err)
	claims, err := tokens.ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
}
