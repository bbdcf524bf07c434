package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (s *stubGenerator) Generate(context.Context, services.GenerateRequest) (string, error) {
	s.calls++
	return s.text, s.err
}

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
	gen *stubGenerator
	cfg *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		JWTSecret:      "routes-secret",
		JWTExpiry:      time.Hour,
		DailyCredits:   5,
		QuotaTimezone:  "UTC",
		MaxUploadBytes: 1 << 20,
	}

	gen := &stubGenerator{text: `{"meaning":"m","actions":["a"],"riskLevel":"Low","riskReason":"r"}`}
	quota := services.NewQuotaService(db, cfg)
	analysis := services.NewAnalysisService(db, cfg, quota, gen)
	auth := services.NewAuthService(db, cfg, quota)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Use(requestid.New())
	Setup(app, cfg, Limits{API: 1000, Auth: 1000},
		handlers.NewAuthHandler(auth),
		handlers.NewAnalyzeHandler(analysis, quota),
		handlers.NewHealthHandler(db),
	)

	return &testEnv{app: app, db: db, gen: gen, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (e *testEnv) register(t *testing.T, email string) (string, string) {
	t.Helper()

	status, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": email, "password": "secret1"})
	require.Equal(t, http.StatusCreated, status)
	user := body["user"].(map[string]interface{})
	return body["token"].(string), user["id"].(string)
}

func (e *testEnv) setCredits(t *testing.T, userID string, credits int) {
	t.Helper()
	require.NoError(t, e.db.Model(&models.User{}).Where("id = ?", userID).Update("credits", credits).Error)
}

func (e *testEnv) credits(t *testing.T, userID string) int {
	t.Helper()
	var user models.User
	require.NoError(t, e.db.First(&user, "id = ?", userID).Error)
	return *user.Credits
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "amy@example.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]interface{})
	assert.Equal(t, "amy@example.com", user["email"])
	assert.Equal(t, float64(5), user["credits"])

	status, body = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "amy@example.com", "password": "secret1"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "Email already registered", body["error"])

	status, _ = env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"email": "ben@example.com", "password": "123"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "amy@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, float64(5), body["user"].(map[string]interface{})["credits"])

	status, body = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "amy@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid email or password", body["error"])
}

func TestCredentialGuard(t *testing.T) {
	env := newTestEnv(t)
	payload := map[string]string{"text": "hello"}

	status, body := env.do(t, http.MethodPost, "/api/analyze", "", payload)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Missing Authorization header", body["error"])

	status, body = env.do(t, http.MethodPost, "/api/analyze", "not-a-jwt", payload)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid Token", body["error"])

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	status, body = env.do(t, http.MethodPost, "/api/analyze", forged, payload)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "Invalid Token", body["error"])

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(),
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte(env.cfg.JWTSecret))
	require.NoError(t, err)
	status, _ = env.do(t, http.MethodPost, "/api/analyze", expired, payload)
	assert.Equal(t, http.StatusUnauthorized, status)

	assert.Zero(t, env.gen.calls)
}

func TestAnalyze_UnknownUserToken(t *testing.T) {
	env := newTestEnv(t)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": uuid.NewString(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(env.cfg.JWTSecret))
	require.NoError(t, err)

	status, body := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"text": "hello"})

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "User not found", body["error"])
}

func TestAnalyze_Success(t *testing.T) {
	env := newTestEnv(t)
	env.gen.text = "```json\n{\"meaning\":\"You owe $50 due Friday\",\"actions\":[\"Pay the $50 by Friday\"],\"riskLevel\":\"Medium\",\"riskReason\":\"Payment deadline\"}\n```"
	token, userID := env.register(t, "cat@example.com")

	status, body := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"text": "Invoice due Friday"})

	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["credits"])
	doc := body["document"].(map[string]interface{})
	analysis := doc["analysis"].(map[string]interface{})
	assert.Equal(t, "You owe $50 due Friday", analysis["meaning"])
	assert.Equal(t, []interface{}{"Pay the $50 by Friday"}, analysis["actions"])
	assert.Equal(t, "Medium", analysis["riskLevel"])
	assert.Equal(t, "Payment deadline", analysis["riskReason"])
	assert.Equal(t, 4, env.credits(t, userID))

	status, body = env.do(t, http.MethodGet, "/api/credits", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(4), body["credits"])
	assert.Equal(t, float64(5), body["dailyAllowance"])

	status, body = env.do(t, http.MethodGet, "/api/documents?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["total"])
	assert.Len(t, body["documents"], 1)

	status, body = env.do(t, http.MethodGet, "/api/documents/"+doc["id"].(string), token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, doc["id"], body["id"])
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	t.Run("no content", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.register(t, "dan@example.com")

		status, body := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{})

		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, "No content provided", body["error"])
	})

	t.Run("unsupported file", func(t *testing.T) {
		env := newTestEnv(t)
		token, _ := env.register(t, "dan@example.com")

		status, _ := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"fileContent": "aGVsbG8=", "fileType": "application/zip"})

		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("limit reached", func(t *testing.T) {
		env := newTestEnv(t)
		token, userID := env.register(t, "eli@example.com")
		env.setCredits(t, userID, 0)

		status, body := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"text": "hello"})

		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Daily limit reached.", body["error"])
		assert.Equal(t, "LIMIT_REACHED", body["code"])
		assert.Zero(t, env.gen.calls)
	})

	t.Run("provider failure", func(t *testing.T) {
		env := newTestEnv(t)
		env.gen.err = &services.ProviderError{StatusCode: 503, Details: "model overloaded"}
		token, userID := env.register(t, "fay@example.com")

		status, body := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"text": "hello"})

		assert.Equal(t, http.StatusBadGateway, status)
		assert.Equal(t, "AI Service Error", body["error"])
		assert.Equal(t, "model overloaded", body["details"])
		assert.Equal(t, 5, env.credits(t, userID))
	})

	t.Run("provider not configured", func(t *testing.T) {
		env := newTestEnv(t)
		env.gen.err = services.ErrProviderConfig
		token, _ := env.register(t, "gus@example.com")

		status, body := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"text": "hello"})

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Server configuration error", body["error"])
	})

	t.Run("analysis not persisted", func(t *testing.T) {
		env := newTestEnv(t)
		token, userID := env.register(t, "hana@example.com")
		err := env.db.Callback().Create().Before("gorm:create").Register("test:fail_analysis_insert", func(tx *gorm.DB) {
			if tx.Statement.Schema != nil && tx.Statement.Schema.Table == "analyses" {
				_ = tx.AddError(errors.New("analysis insert failed"))
			}
		})
		require.NoError(t, err)

		status, body := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"text": "hello"})

		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, "Internal Server Error", body["error"])
		assert.Equal(t, 5, env.credits(t, userID))

		var docs int64
		require.NoError(t, env.db.Model(&models.Document{}).Count(&docs).Error)
		assert.Zero(t, docs)
	})
}

func TestDocuments_Ownership(t *testing.T) {
	env := newTestEnv(t)
	ownerToken, _ := env.register(t, "hal@example.com")
	otherToken, _ := env.register(t, "ivy@example.com")

	status, body := env.do(t, http.MethodPost, "/api/analyze", ownerToken, map[string]string{"text": "mine"})
	require.Equal(t, http.StatusOK, status)
	docID := body["document"].(map[string]interface{})["id"].(string)

	status, body = env.do(t, http.MethodGet, "/api/documents/"+docID, otherToken, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Document not found", body["error"])

	status, _ = env.do(t, http.MethodGet, "/api/documents/not-a-uuid", ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/documents", otherToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, []interface{}{}, body["documents"])
}

func TestDeleteAccount(t *testing.T) {
	env := newTestEnv(t)
	token, userID := env.register(t, "jon@example.com")
	status, _ := env.do(t, http.MethodPost, "/api/analyze", token, map[string]string{"text": "mine"})
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(t, http.MethodDelete, "/api/auth/account", token, map[string]string{"password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodDelete, "/api/auth/account", token, map[string]string{"password": "secret1"})
	require.Equal(t, http.StatusOK, status)

	var n int64
	env.db.Model(&models.Document{}).Where("user_id = ?", userID).Count(&n)
	assert.Zero(t, n)

	status, body := env.do(t, http.MethodGet, "/api/credits", token, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "User not found", body["error"])
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	status, body := env.do(t, http.MethodGet, "/api/health", "", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
}

func TestAuthRateLimit(t *testing.T) {
	env := newTestEnv(t)
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	quota := services.NewQuotaService(env.db, env.cfg)
	Setup(app, env.cfg, Limits{API: 100, Auth: 2},
		handlers.NewAuthHandler(services.NewAuthService(env.db, env.cfg, quota)),
		handlers.NewAnalyzeHandler(services.NewAnalysisService(env.db, env.cfg, quota, env.gen), quota),
		handlers.NewHealthHandler(env.db),
	)
	env.app = app

	creds := map[string]string{"email": "kim@example.com", "password": "secret1"}
	var last int
	for i := 0; i < 3; i++ {
		last, _ = env.do(t, http.MethodPost, "/api/auth/login", "", creds)
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestErrorHandler_HidesServerErrors(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusInternalServerError, "pq: connection refused")
	})
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil), -1)
	require.NoError(t, err)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "Internal Server Error", body["error"])

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil), -1)
	require.NoError(t, err)
	body = map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "short and stout", body["error"])
}
