package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/deskbot/internal/clock"
	"github.com/spec-kit/deskbot/internal/config"
	"github.com/spec-kit/deskbot/internal/correlation"
	"github.com/spec-kit/deskbot/internal/domain"
	"github.com/spec-kit/deskbot/internal/events"
	"github.com/spec-kit/deskbot/internal/interaction"
	"github.com/spec-kit/deskbot/internal/observability"
	"github.com/spec-kit/deskbot/internal/platform"
	"github.com/spec-kit/deskbot/internal/repository"
	apperrors "github.com/spec-kit/deskbot/pkg/util/errorutil"
)

const (
	answerFieldPrefix = "answer_"
	reasonFieldID     = "reason"
	defaultReason     = "No reason provided"
)

// ApplicationService drives role applications from the panel button to
// the reviewer's decision.
type ApplicationService struct {
	cooldowns  repository.CooldownRepository
	settings   *repository.SettingsRepository
	platform   platform.Platform
	pending    *correlation.Table[domain.PendingApplication]
	rejections *correlation.Table[domain.PendingRejection]
	clock      clock.Clock
	events     eventPublisher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.ApplicationConfig
}

// ApplicationDependencies bundles collaborators for the application service.
type ApplicationDependencies struct {
	CooldownRepo repository.CooldownRepository
	Settings     *repository.SettingsRepository
	Platform     platform.Platform
	Clock        clock.Clock
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	Config       config.ApplicationConfig
}

// NewApplicationService constructs the service.
func NewApplicationService(deps ApplicationDependencies) *ApplicationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		cooldowns:  deps.CooldownRepo,
		settings:   deps.Settings,
		platform:   deps.Platform,
		pending:    correlation.NewTable[domain.PendingApplication](deps.Clock, deps.Config.PendingTTL),
		rejections: correlation.NewTable[domain.PendingRejection](deps.Clock, deps.Config.PendingTTL),
		clock:      deps.Clock,
		events:     eventPublisher{dispatcher: deps.Dispatcher, clock: deps.Clock, logger: logger},
		metrics:    deps.Metrics,
		logger:     logger.Named("applications"),
		cfg:        deps.Config,
	}
}

// Start checks the candidate's cooldown, starts a new one and shows the
// question form. The returned key is the form's correlation key.
func (s *ApplicationService) Start(ctx context.Context, candidate domain.User, roleID, trigger string) (correlation.Key, error) {
	settings := s.settings.Snapshot().Applications
	role, ok := settings.Role(roleID)
	if !ok {
		return correlation.Key{}, apperrors.NewValidationError("this role is not open for applications",
			map[string]any{"role_id": roleID})
	}
	if settings.LogChannel == "" {
		return correlation.Key{}, apperrors.NewValidationError("applications are not configured yet", nil)
	}
	questions := settings.ActiveQuestions()
	if len(questions) == 0 {
		return correlation.Key{}, apperrors.NewValidationError("no application questions are configured", nil)
	}

	now := s.clock.Now()
	remaining, acquired, err := s.cooldowns.Acquire(ctx, candidate.ID, now, s.cfg.Cooldown)
	if err != nil {
		return correlation.Key{}, apperrors.NewInternalError(err)
	}
	if !acquired {
		return correlation.Key{}, apperrors.NewOnCooldown(CeilMinutes(remaining))
	}

	key := s.pending.Put(candidate.ID, domain.PendingApplication{Candidate: candidate, Role: role, OpenedAt: now})
	if err := s.platform.OpenForm(ctx, trigger, questionForm(key, role, questions)); err != nil {
		s.pending.Take(key)
		return correlation.Key{}, apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed,
			"failed to open the application form", err)
	}

	s.metrics.RecordTransition("application", "form_shown")
	s.logger.Info("application started",
		zap.String("candidate_id", candidate.ID),
		zap.String("role_id", role.ID))
	return key, nil
}

// Submit resolves the pending instance addressed by key and forwards the
// answers to reviewers. Answers are validated against the questions
// configured now, not when the form was shown. The instance is consumed
// only once the review message is delivered; any earlier failure leaves it
// pending so the candidate can resubmit the same form.
func (s *ApplicationService) Submit(ctx context.Context, candidate domain.User, key correlation.Key, fields map[string]string) (*domain.Application, error) {
	formID := interaction.ApplicationFormID(key)
	if key.Owner != candidate.ID {
		return nil, apperrors.NewMisroutedSubmission(formID)
	}
	pending, ok := s.pending.Acquire(key)
	if !ok {
		return nil, apperrors.NewMisroutedSubmission(formID)
	}

	application, err := s.deliver(ctx, pending, fields)
	if err != nil {
		s.pending.Release(key)
		return nil, err
	}
	s.pending.Take(key)

	s.metrics.RecordTransition("application", "submitted")
	s.events.publish(ctx, events.Event{
		Type:    events.EventApplicationSubmitted,
		Subject: candidate.ID,
		Actor:   candidate,
		Payload: events.ApplicationSubmittedPayload{RoleID: pending.Role.ID, Answers: len(application.Answers)},
	})
	return application, nil
}

func (s *ApplicationService) deliver(ctx context.Context, pending domain.PendingApplication, fields map[string]string) (*domain.Application, error) {
	settings := s.settings.Snapshot().Applications
	questions := settings.ActiveQuestions()
	answers := orderedAnswers(fields)
	if len(answers) != len(questions) {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("expected %d answers but received %d, please answer every question and submit again", len(questions), len(answers)),
			map[string]any{"expected": len(questions), "received": len(answers)})
	}
	if settings.LogChannel == "" {
		return nil, apperrors.NewValidationError("applications are not configured yet", nil)
	}

	application := &domain.Application{
		Candidate:   pending.Candidate,
		Role:        pending.Role,
		Answers:     make([]domain.Answer, len(questions)),
		SubmittedAt: s.clock.Now(),
	}
	for i, q := range questions {
		application.Answers[i] = domain.Answer{Question: q, Answer: answers[i]}
	}

	if _, err := s.platform.SendMessage(ctx, settings.LogChannel, reviewMessage(application)); err != nil {
		return nil, apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed,
			"failed to submit your application, please try again", err)
	}
	return application, nil
}

// Accept grants the role. A failed grant is reported to the reviewer but
// the decision stands and the review message says so.
func (s *ApplicationService) Accept(ctx context.Context, reviewer domain.User, candidateID, roleID string, review domain.MessageRef) error {
	if err := s.requireReviewer(ctx, reviewer); err != nil {
		return err
	}
	roleName := s.roleName(roleID)

	grantErr := s.platform.GrantRole(ctx, candidateID, roleID)
	status := fmt.Sprintf("Accepted by <@%s>", reviewer.ID)
	if grantErr != nil {
		status += " (role grant failed, follow up manually)"
	}
	s.closeReview(ctx, review, candidateID, roleName, status, platform.ToneSuccess)
	s.metrics.RecordTransition("application", "accepted")
	s.events.publish(ctx, events.Event{
		Type:    events.EventApplicationDecided,
		Subject: candidateID,
		Actor:   reviewer,
		Payload: events.ApplicationDecidedPayload{RoleID: roleID, Decision: domain.DecisionAccept},
	})

	if grantErr != nil {
		s.logger.Error("role grant failed",
			zap.String("candidate_id", candidateID),
			zap.String("role_id", roleID),
			zap.Error(grantErr))
		return apperrors.NewRoleGrantFailed(grantErr)
	}

	s.directBestEffort(ctx, candidateID, platform.Message{
		Title: "Application accepted",
		Body:  fmt.Sprintf("Congratulations! Your application for %s has been accepted.", roleName),
		Tone:  platform.ToneSuccess,
	})
	return nil
}

// Reject asks the reviewer for a reason. The decision is finalized by
// SubmitRejectReason.
func (s *ApplicationService) Reject(ctx context.Context, reviewer domain.User, candidateID, roleID, trigger string, review domain.MessageRef) (correlation.Key, error) {
	if err := s.requireReviewer(ctx, reviewer); err != nil {
		return correlation.Key{}, err
	}
	key := s.rejections.Put(reviewer.ID, domain.PendingRejection{
		Reviewer:  reviewer,
		Candidate: candidateID,
		RoleID:    roleID,
		Review:    review,
	})
	form := platform.Form{
		ID:    interaction.RejectReasonID(key),
		Title: "Rejection reason",
		Fields: []platform.FormField{
			{ID: reasonFieldID, Label: "Why is this application rejected?", Paragraph: true, Required: true},
		},
	}
	if err := s.platform.OpenForm(ctx, trigger, form); err != nil {
		s.rejections.Take(key)
		return correlation.Key{}, apperrors.NewExternalActionFailed(apperrors.ReasonDeliveryFailed,
			"failed to open the rejection form", err)
	}
	return key, nil
}

// SubmitRejectReason finalizes a rejection. The candidate is notified
// best-effort; delivered reports whether the notice reached them.
func (s *ApplicationService) SubmitRejectReason(ctx context.Context, reviewer domain.User, key correlation.Key, fields map[string]string) (delivered bool, err error) {
	formID := interaction.RejectReasonID(key)
	if key.Owner != reviewer.ID {
		return false, apperrors.NewMisroutedSubmission(formID)
	}
	pending, ok := s.rejections.Take(key)
	if !ok {
		return false, apperrors.NewMisroutedSubmission(formID)
	}
	reason := strings.TrimSpace(fields[reasonFieldID])
	if reason == "" {
		reason = defaultReason
	}
	roleName := s.roleName(pending.RoleID)

	s.closeReview(ctx, pending.Review, pending.Candidate, roleName,
		fmt.Sprintf("Rejected by <@%s>: %s", reviewer.ID, reason), platform.ToneDanger)
	delivered = s.directBestEffort(ctx, pending.Candidate, platform.Message{
		Title: "Application rejected",
		Body:  fmt.Sprintf("Your application for %s was rejected.", roleName),
		Tone:  platform.ToneDanger,
		Fields: []platform.Field{
			{Name: "Reason", Value: reason},
		},
	})

	s.metrics.RecordTransition("application", "rejected")
	s.events.publish(ctx, events.Event{
		Type:    events.EventApplicationDecided,
		Subject: pending.Candidate,
		Actor:   reviewer,
		Payload: events.ApplicationDecidedPayload{RoleID: pending.RoleID, Decision: domain.DecisionReject, Reason: reason},
	})
	return delivered, nil
}

// SweepPending drops expired form correlations.
func (s *ApplicationService) SweepPending(context.Context) (int, error) {
	return s.pending.Sweep() + s.rejections.Sweep(), nil
}

// SweepCooldowns drops expired cooldown entries.
func (s *ApplicationService) SweepCooldowns(ctx context.Context) (int, error) {
	return s.cooldowns.Sweep(ctx, s.clock.Now())
}

// PendingCount reports open application and rejection forms.
func (s *ApplicationService) PendingCount() int {
	return s.pending.Len() + s.rejections.Len()
}

func (s *ApplicationService) requireReviewer(ctx context.Context, reviewer domain.User) error {
	ok, err := s.platform.HasCapability(ctx, reviewer.ID, domain.CapabilityManageRoles)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		return apperrors.NewPermissionDenied("you don't have permission to review applications")
	}
	return nil
}

func (s *ApplicationService) roleName(roleID string) string {
	if role, ok := s.settings.Snapshot().Applications.Role(roleID); ok && role.Name != "" {
		return role.Name
	}
	return roleID
}

func (s *ApplicationService) closeReview(ctx context.Context, review domain.MessageRef, candidateID, roleName, status string, tone platform.Tone) {
	if review.MessageID == "" {
		return
	}
	msg := platform.Message{
		Title:  fmt.Sprintf("Application: %s", roleName),
		Body:   fmt.Sprintf("Candidate: <@%s>", candidateID),
		Footer: status,
		Tone:   tone,
	}
	if err := s.platform.UpdateMessage(ctx, review, msg); err != nil {
		s.logger.Warn("failed to update review message", zap.String("message_id", review.MessageID), zap.Error(err))
	}
}

func (s *ApplicationService) directBestEffort(ctx context.Context, userID string, msg platform.Message) bool {
	if err := s.platform.DirectMessage(ctx, userID, msg); err != nil {
		s.logger.Info("candidate notification not delivered", zap.String("candidate_id", userID), zap.Error(err))
		return false
	}
	return true
}

// CeilMinutes rounds a remaining duration up to whole minutes.
func CeilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}

func questionForm(key correlation.Key, role domain.RoleOption, questions []string) platform.Form {
	form := platform.Form{
		ID:     interaction.ApplicationFormID(key),
		Title:  fmt.Sprintf("Apply for %s", role.Name),
		Fields: make([]platform.FormField, len(questions)),
	}
	for i, q := range questions {
		form.Fields[i] = platform.FormField{
			ID:        answerFieldPrefix + strconv.Itoa(i+1),
			Label:     q,
			Paragraph: true,
			Required:  true,
		}
	}
	return form
}

// orderedAnswers returns the answer_N fields sorted by N.
func orderedAnswers(fields map[string]string) []string {
	type numbered struct {
		n     int
		value string
	}
	var collected []numbered
	for id, value := range fields {
		raw, ok := strings.CutPrefix(id, answerFieldPrefix)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			continue
		}
		collected = append(collected, numbered{n: n, value: value})
	}
	sort.Slice(collected, func(i, j int) bool { return collected[i].n < collected[j].n })
	out := make([]string, len(collected))
	for i, c := range collected {
		out[i] = c.value
	}
	return out
}

func reviewMessage(app *domain.Application) platform.Message {
	msg := platform.Message{
		Title:  fmt.Sprintf("New application: %s", app.Role.Name),
		Body:   fmt.Sprintf("Candidate: <@%s> (%s)", app.Candidate.ID, app.Candidate.Username),
		Tone:   platform.ToneInfo,
		Fields: make([]platform.Field, len(app.Answers)),
		Buttons: []platform.Button{
			{ID: interaction.ReviewAcceptID(app.Candidate.ID, app.Role.ID), Label: "Accept", Style: platform.ButtonSuccess},
			{ID: interaction.ReviewRejectID(app.Candidate.ID, app.Role.ID), Label: "Reject", Style: platform.ButtonDanger},
		},
	}
	for i, a := range app.Answers {
		msg.Fields[i] = platform.Field{Name: a.Question, Value: a.Answer}
	}
	return msg
}
