package service

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/spec-kit/deskbot/internal/clock"
	"github.com/spec-kit/deskbot/internal/config"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/events"
	"github.com/spec-kit/deskbot/internal/observability"
	"github.com/spec-kit/deskbot/internal/platform/platformtest"
	"github.com/spec-kit/deskbot/internal/repository"
	"github.com/spec-kit/deskbot/internal/scheduler"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

var (
	userX  = domain.User{ID: "UX", Username: "UserX"}
	staff1 = domain.User{ID: "S1", Username: "staff1"}
	staff2 = domain.User{ID: "S2", Username: "staff2"}
)

type harness struct {
	clock       *clock.FakeClock
	platform    *platformtest.Fake
	tickets     repository.TicketRepository
	history     repository.TicketHistoryRepository
	settings    *repository.SettingsRepository
	timers      *scheduler.Timers
	metrics     *observability.Metrics
	ticketSvc   *TicketService
	appSvc      *ApplicationService
	moderation  *ModerationService
	settingsSvc *SettingsService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	h := &harness{
		clock:    clock.Fake(t0),
		platform: platformtest.New(),
		tickets:  repository.NewTicketRepository(),
		history:  repository.NewMemoryTicketHistoryRepository(),
		metrics:  observability.NewMetrics(),
		settings: repository.NewSettingsRepository(domain.Settings{
			Tickets: domain.TicketSettings{
				PanelMessage: "Need help?",
				Options:      []string{"billing", "bugs"},
				LogChannel:   "LOGT",
			},
			Applications: domain.ApplicationSettings{
				PanelMessage: "Join us",
				Roles:        []domain.RoleOption{{ID: "R1", Name: "moderator"}, {ID: "R2", Name: "helper"}},
				Questions:    [domain.MaxQuestions]string{"Why?", "How long?"},
				LogChannel:   "LOGA",
			},
		}),
	}
	h.timers = scheduler.NewTimers(h.clock, logger)
	dispatcher := events.NewInMemoryDispatcher()
	NewAuditService(dispatcher, h.history, logger).RegisterHandlers()

	h.ticketSvc = NewTicketService(TicketDependencies{
		TicketRepo: h.tickets,
		Settings:   h.settings,
		Platform:   h.platform,
		Timers:     h.timers,
		Clock:      h.clock,
		Dispatcher: dispatcher,
		Metrics:    h.metrics,
		Logger:     logger,
		Config: config.TicketConfig{
			InactivityTimeout: 30 * time.Minute,
			RecheckInterval:   time.Minute,
			TeardownDelay:     10 * time.Second,
			TranscriptLimit:   100,
		},
	})
	h.appSvc = NewApplicationService(ApplicationDependencies{
		CooldownRepo: repository.NewCooldownRepository(),
		Settings:     h.settings,
		Platform:     h.platform,
		Clock:        h.clock,
		Dispatcher:   dispatcher,
		Metrics:      h.metrics,
		Logger:       logger,
		Config: config.ApplicationConfig{
			Cooldown:   15 * time.Minute,
			PendingTTL: time.Hour,
		},
	})
	h.moderation = NewModerationService(repository.NewWarningRepository(), h.platform, h.clock, dispatcher, logger)
	h.settingsSvc = NewSettingsService(h.settings, h.platform, logger)

	h.platform.Grant(staff1.ID, domain.CapabilityManageMessages, domain.CapabilityManageRoles, domain.CapabilityModerateMembers)
	h.platform.Grant(staff2.ID, domain.CapabilityManageMessages, domain.CapabilityManageRoles)
	return h
}
