package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hibiken/asynq"

	"github.com/nailglow/api/internal/auth"
	"github.com/nailglow/api/internal/client"
	"github.com/nailglow/api/internal/handler"
	"github.com/nailglow/api/internal/middleware"
	"github.com/nailglow/api/internal/service"
	"github.com/nailglow/api/internal/store"
	ws "github.com/nailglow/api/internal/websocket"
	"github.com/nailglow/api/internal/worker"
)

const (
	testJWTSecret     = "test-secret-for-e2e"
	testWebhookSecret = "test-webhook-secret"
	testUserID        = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// stubArtClient completes renders instantly so queued jobs finish within
// the request cycle of the inline dispatcher.
type stubArtClient struct{}

func (stubArtClient) SubmitRender(_ context.Context, req *client.RenderRequest) (*client.RenderSubmitResponse, error) {
	return &client.RenderSubmitResponse{TaskID: "stub-task", Status: "queued"}, nil
}

func (stubArtClient) GetRenderStatus(_ context.Context, taskID string) (*client.RenderResult, error) {
	return &client.RenderResult{
		TaskID: taskID,
		Status: "completed",
		Images: []string{"https://cdn.example.com/render-1.png"},
	}, nil
}

func (s stubArtClient) PollRenderStatus(ctx context.Context, taskID string, _, _ time.Duration) (*client.RenderResult, error) {
	return s.GetRenderStatus(ctx, taskID)
}

func (stubArtClient) IsConfigured() bool { return true }

// inlineEnqueuer runs the worker synchronously instead of publishing to
// redis, so a generate request returns with its job already settled.
type inlineEnqueuer struct {
	worker *worker.DesignWorker
}

func (e *inlineEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	go func() {
		_ = e.worker.ProcessTask(context.Background(), task)
	}()
	return &asynq.TaskInfo{}, nil
}

// setupApp builds a Fiber app wired like main.go but on in-memory stores,
// with the render worker dispatched inline.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mem := store.NewMemory()
	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	creditService := service.NewCreditService(mem, 5)
	jobService := service.NewJobService(mem)
	historyService := service.NewHistoryService(mem)

	designWorker := worker.NewDesignWorker(jobService, creditService, stubArtClient{}, hub,
		time.Millisecond, time.Second)
	enqueuer := &inlineEnqueuer{worker: designWorker}

	designService := service.NewDesignService(creditService, jobService, enqueuer, nil, 1)
	siteService := service.NewSiteService(mem, historyService, creditService, nil, 2, 10*time.Second)

	designHandler := handler.NewDesignHandler(designService, validate)
	siteHandler := handler.NewSiteHandler(siteService, validate)
	creditHandler := handler.NewCreditHandler(creditService, validate, testWebhookSecret)
	authHandler := handler.NewAuthHandler(nil, testJWTSecret)

	// Auth middleware — legacy HMAC only
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)

	app := fiber.New(fiber.Config{
		BodyLimit: 20 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"flux":    true,
				"sitegen": false,
				"r2":      false,
				"auth":    true,
			},
		})
	})
	app.Get("/auth/verify", authHandler.Verify)
	app.Post("/internal/credits/recharge", creditHandler.Recharge)

	// API routes (authenticated, no rate limiting in tests)
	api := app.Group("/api", authMiddleware.Authenticate())

	designs := api.Group("/designs")
	designs.Post("/generate", designHandler.Generate)
	designs.Get("/jobs", designHandler.Poll)
	designs.Get("/jobs/:jobId", designHandler.Status)
	designs.Post("/jobs/:jobId/save", designHandler.Save)

	sites := api.Group("/sites")
	sites.Post("/", siteHandler.Create)
	sites.Get("/:siteId", siteHandler.Current)
	sites.Post("/:siteId/customize", siteHandler.Customize)
	sites.Post("/:siteId/navigate", siteHandler.Navigate)
	sites.Get("/:siteId/history", siteHandler.History)

	api.Get("/credits", creditHandler.Balance)

	return &testApp{app: app}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: userID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "nailglow-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request authenticated as the default test user.
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doUserRequest(t, app, testUserID, method, path, body)
}

// doUserRequest performs a request authenticated as a specific user.
func doUserRequest(t *testing.T, app *fiber.App, userID, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t, userID)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus fails the test when the response status differs.
func assertStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("expected status %d, got %d", want, resp.StatusCode)
	}
}

// waitForCompleted polls the jobs endpoint until the job shows up in
// completedJobs or the deadline passes.
func waitForCompleted(t *testing.T, app *fiber.App, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, app, http.MethodGet, "/api/designs/jobs", "")
		if err != nil {
			t.Fatalf("poll failed: %v", err)
		}
		result := parseJSON(t, resp)
		completed, _ := result["completedJobs"].([]interface{})
		for _, c := range completed {
			job := c.(map[string]interface{})
			if job["jobId"] == jobID {
				return job
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never completed", jobID)
	return nil
}
