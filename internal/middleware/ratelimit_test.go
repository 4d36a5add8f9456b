package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aiplaza/serving-client/internal/logging"
)

func newLimitedApp(rl *RateLimiter) *fiber.App {
	app := fiber.New()
	app.Post("/run", rl.RunLimit(1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusAccepted)
	})
	return app
}

func post(t *testing.T, app *fiber.App) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "/run", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestRateLimiter_NilRedisDisablesLimit(t *testing.T) {
	app := newLimitedApp(NewRateLimiter(nil, logging.Nop()))

	for i := 0; i < 3; i++ {
		if resp := post(t, app); resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, resp.StatusCode)
		}
	}
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	// Nothing listens on port 1.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	app := newLimitedApp(NewRateLimiter(client, logging.Nop()))

	for i := 0; i < 3; i++ {
		resp := post(t, app)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, resp.StatusCode)
		}
		if resp.Header.Get("X-RateLimit-Limit") != "" {
			t.Error("no limit headers expected without redis")
		}
	}
}

func TestConnectRateLimiter_UnreachableRedisDisablesLimit(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	rl := ConnectRateLimiter(context.Background(), client, logging.Nop())
	if rl.Enabled() {
		t.Fatal("limiter should be disabled when redis does not answer ping")
	}

	app := newLimitedApp(rl)
	for i := 0; i < 3; i++ {
		resp := post(t, app)
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, resp.StatusCode)
		}
	}
}

func TestConnectRateLimiter_NilClient(t *testing.T) {
	if ConnectRateLimiter(context.Background(), nil, logging.Nop()).Enabled() {
		t.Error("nil client should disable limiting")
	}
}
