package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/deskbot/internal/api/http/handlers"
	"github.com/spec-kit/deskbot/internal/auth"
	"github.com/spec-kit/deskbot/internal/clock"
	"github.com/spec-kit/deskbot/internal/config"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/events"
	"github.com/spec-kit/deskbot/internal/observability"
	"github.com/spec-kit/deskbot/internal/platform/platformtest"
	"github.com/spec-kit/deskbot/internal/repository"
	"github.com/spec-kit/deskbot/internal/scheduler"
	"github.com/spec-kit/deskbot/internal/service"
)

type opsFixture struct {
	app        *fiber.App
	tickets    *service.TicketService
	moderation *service.ModerationService
	platform   *platformtest.Fake
}

func newOpsFixture(t *testing.T) *opsFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	clk := clock.Fake(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	fake := platformtest.New()
	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	settings := repository.NewSettingsRepository(domain.Settings{
		Tickets: domain.TicketSettings{
			PanelMessage: "Need help?",
			Options:      []string{"billing"},
			LogChannel:   "LOGT",
		},
	})
	audit := service.NewAuditService(dispatcher, repository.NewMemoryTicketHistoryRepository(), logger)
	audit.RegisterHandlers()

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repository.NewTicketRepository(),
		Settings:   settings,
		Platform:   fake,
		Timers:     scheduler.NewTimers(clk, logger),
		Clock:      clk,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
		Config: config.TicketConfig{
			InactivityTimeout: 30 * time.Minute,
			RecheckInterval:   time.Minute,
			TeardownDelay:     10 * time.Second,
			TranscriptLimit:   100,
		},
	})
	moderation := service.NewModerationService(repository.NewWarningRepository(), fake, clk, dispatcher, logger)

	hash, err := auth.HashOperatorPassword("hunter2-ops", 4)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	tokens := auth.NewTokenManager("secret", "deskbot", time.Hour)
	operators := service.NewOperatorService(config.AuthConfig{OperatorName: "ops", OperatorPasswordHash: hash}, tokens)

	app := NewServer("deskbot-test", logger, metrics, time.Second, RouteConfig{
		Health:         handlers.NewHealthHandler("deskbot", "test", nil, nil),
		Auth:           handlers.NewAuthHandler(operators),
		Ops:            handlers.NewOpsHandler(tickets, audit, moderation, service.NewSettingsService(settings, fake, logger)),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &opsFixture{app: app, tickets: tickets, moderation: moderation, platform: fake}
}

func (f *opsFixture) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
	}
	return resp.StatusCode, out
}

func (f *opsFixture) login(t *testing.T) string {
	t.Helper()
	status, body := f.do(t, nethttp.MethodPost, "/auth/login", "", `{"name":"ops","password":"hunter2-ops"}`)
	if status != nethttp.StatusOK {
		t.Fatalf("login status %d: %v", status, body)
	}
	data := body["data"].(map[string]any)
	return data["token"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealthEndpoints(t *testing.T) {
	f := newOpsFixture(t)

	status, body := f.do(t, nethttp.MethodGet, "/health/live", "", "")
	if status != nethttp.StatusOK || body["status"] != "alive" {
		t.Fatalf("live: %d %v", status, body)
	}

	status, body = f.do(t, nethttp.MethodGet, "/health/ready", "", "")
	if status != nethttp.StatusOK {
		t.Fatalf("ready: %d %v", status, body)
	}
	deps := body["dependencies"].(map[string]any)
	if deps["postgres"] != "disabled" || deps["redis"] != "disabled" {
		t.Fatalf("unexpected dependency status %v", deps)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newOpsFixture(t)

	status, body := f.do(t, nethttp.MethodPost, "/auth/login", "", `{"name":"ops","password":"nope"}`)
	if status != nethttp.StatusUnauthorized || errorCode(body) != "UNAUTHORIZED" {
		t.Fatalf("expected 401 UNAUTHORIZED, got %d %v", status, body)
	}

	status, body = f.do(t, nethttp.MethodPost, "/auth/login", "", `{"name":"ops"}`)
	if status != nethttp.StatusBadRequest || errorCode(body) != "VALIDATION_FAILED" {
		t.Fatalf("expected 400 VALIDATION_FAILED, got %d %v", status, body)
	}
}

func TestOpsRoutesRequireToken(t *testing.T) {
	f := newOpsFixture(t)

	status, body := f.do(t, nethttp.MethodGet, "/ops/tickets", "", "")
	if status != nethttp.StatusUnauthorized || errorCode(body) != "UNAUTHORIZED" {
		t.Fatalf("expected 401, got %d %v", status, body)
	}
}

func TestOpsTicketViews(t *testing.T) {
	f := newOpsFixture(t)
	token := f.login(t)
	ctx := context.Background()

	ticket, err := f.tickets.Create(ctx, domain.User{ID: "UX", Username: "UserX"}, "billing")
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}

	status, body := f.do(t, nethttp.MethodGet, "/ops/tickets", token, "")
	if status != nethttp.StatusOK {
		t.Fatalf("list: %d %v", status, body)
	}
	items := body["data"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected one ticket, got %v", items)
	}
	summary := items[0].(map[string]any)
	if summary["id"] != ticket.ID || summary["state"] != "OPEN" || summary["owner_id"] != "UX" {
		t.Fatalf("unexpected summary %v", summary)
	}

	status, body = f.do(t, nethttp.MethodGet, "/ops/tickets?state=closed", token, "")
	if status != nethttp.StatusOK || len(body["data"].([]any)) != 0 {
		t.Fatalf("state filter: %d %v", status, body)
	}

	status, body = f.do(t, nethttp.MethodGet, "/ops/tickets?state=bogus", token, "")
	if status != nethttp.StatusBadRequest {
		t.Fatalf("expected bad state to be rejected, got %d %v", status, body)
	}

	status, body = f.do(t, nethttp.MethodGet, "/ops/tickets/"+ticket.ID, token, "")
	if status != nethttp.StatusOK {
		t.Fatalf("get: %d %v", status, body)
	}
	detail := body["data"].(map[string]any)
	history := detail["history"].([]any)
	if len(history) != 1 || history[0].(map[string]any)["change_type"] != "CREATED" {
		t.Fatalf("expected CREATED history entry, got %v", history)
	}

	status, body = f.do(t, nethttp.MethodGet, "/ops/tickets/missing", token, "")
	if status != nethttp.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("expected 404, got %d %v", status, body)
	}
}

func TestOpsWarningsAndSettings(t *testing.T) {
	f := newOpsFixture(t)
	token := f.login(t)
	f.platform.Grant("M1", domain.CapabilityModerateMembers)

	moderator := domain.User{ID: "M1", Username: "mod"}
	target := domain.User{ID: "UX", Username: "UserX"}
	if _, err := f.moderation.Warn(context.Background(), moderator, target, "spam"); err != nil {
		t.Fatalf("warn: %v", err)
	}

	status, body := f.do(t, nethttp.MethodGet, "/ops/warnings/UX", token, "")
	if status != nethttp.StatusOK {
		t.Fatalf("warnings: %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["total"].(float64) != 1 {
		t.Fatalf("expected one warning, got %v", data)
	}
	first := data["warnings"].([]any)[0].(map[string]any)
	if first["reason"] != "spam" {
		t.Fatalf("unexpected warning %v", first)
	}

	status, body = f.do(t, nethttp.MethodGet, "/ops/settings", token, "")
	if status != nethttp.StatusOK {
		t.Fatalf("settings: %d %v", status, body)
	}
	tickets := body["data"].(map[string]any)["tickets"].(map[string]any)
	if tickets["log_channel"] != "LOGT" {
		t.Fatalf("unexpected settings %v", tickets)
	}
}

func TestMetricsEndpointAndUnknownRoute(t *testing.T) {
	f := newOpsFixture(t)

	status, body := f.do(t, nethttp.MethodGet, "/nope", "", "")
	if status != nethttp.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("expected 404 NOT_FOUND, got %d %v", status, body)
	}

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := f.app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	if !strings.Contains(string(raw), `deskbot_errors_total{code="NOT_FOUND",source="http"} 1`) {
		t.Fatalf("expected http error counter in exposition:\n%s", raw)
	}
}
