package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/company-marketplace/backend/internal/config"
	"github.com/company-marketplace/backend/internal/events"
	"github.com/company-marketplace/backend/internal/metrics"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/repositories"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Audit actions
const (
	ActionChangeSubmitted   = "change_submitted"
	ActionChangeApproved    = "change_approved"
	ActionChangeRejected    = "change_rejected"
	ActionChangeApplied     = "change_applied"
	ActionChangeApplyFailed = "change_apply_failed"
)

// States reported for approved records beyond their status column.
const (
	stateApplying = "applying"
	stateApplied  = "applied"
)

// applyClaimGrace covers the bookkeeping after the applier returns. A claim
// left by a crashed process expires after applyTimeout plus this.
const applyClaimGrace = 30 * time.Second

// ModerationService owns the change record lifecycle: pending, then either
// approved (and applied in the same call) or rejected.
type ModerationService struct {
	changes      ChangeStore
	applier      *Applier
	auditRepo    AuditStore
	notifier     Notifier
	applyTimeout time.Duration
	now          func() time.Time
	log          *zap.Logger
}

func NewModerationService(
	changes ChangeStore,
	applier *Applier,
	auditRepo AuditStore,
	notifier Notifier,
	cfg *config.Config,
	log *zap.Logger,
) *ModerationService {
	timeout := cfg.ApplyTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ModerationService{
		changes:      changes,
		applier:      applier,
		auditRepo:    auditRepo,
		notifier:     notifier,
		applyTimeout: timeout,
		now:          time.Now,
		log:          log,
	}
}

type SubmitInput struct {
	CompanyID   uuid.UUID
	SubmitterID *uuid.UUID
	ChangeType  models.ChangeType
	Payload     json.RawMessage
}

// Decision is the combined result of approve-and-apply. Outcome is set
// whenever the applier ran, including partial media failures.
type Decision struct {
	Record  *models.ChangeRecord `json:"record"`
	Outcome *ApplyOutcome        `json:"outcome,omitempty"`
}

type BatchResult struct {
	ID       uuid.UUID `json:"id"`
	Decision *Decision `json:"decision,omitempty"`
	Err      error     `json:"-"`
}

// Submit validates and stores a new pending change. Authorization is the
// caller's job.
func (s *ModerationService) Submit(ctx context.Context, actor models.Actor, in SubmitInput) (*models.ChangeRecord, error) {
	change, err := models.DecodeChange(in.ChangeType, in.Payload)
	if err != nil {
		return nil, err
	}
	payload, err := models.EncodeChange(change)
	if err != nil {
		return nil, err
	}

	record := &models.ChangeRecord{
		CompanyID:   in.CompanyID,
		SubmitterID: in.SubmitterID,
		ChangeType:  in.ChangeType,
		Payload:     payload,
		Status:      models.ChangeStatusPending,
	}
	if err := s.changes.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("create change record: %w", err)
	}

	metrics.ObserveSubmitted(string(record.ChangeType))
	s.audit(ctx, actor, record, ActionChangeSubmitted, map[string]any{"change_type": record.ChangeType})
	s.notifier.Notify(ctx, events.RecipientAdmins, Message{
		Event:  events.EventChangeSubmitted,
		Text:   fmt.Sprintf("New %s change awaiting review", record.ChangeType),
		Change: record,
	})

	s.log.Info("change submitted",
		zap.String("change_id", record.ID.String()),
		zap.String("change_type", string(record.ChangeType)),
		zap.String("company_id", record.CompanyID.String()),
	)
	return record, nil
}

func (s *ModerationService) Get(ctx context.Context, id uuid.UUID) (*models.ChangeRecord, error) {
	return s.changes.GetByID(ctx, id)
}

func (s *ModerationService) List(ctx context.Context, f repositories.ChangeFilter) ([]models.ChangeRecord, error) {
	return s.changes.List(ctx, f)
}

// ListUnapplied returns approved records whose apply never completed,
// oldest first.
func (s *ModerationService) ListUnapplied(ctx context.Context, limit int) ([]models.ChangeRecord, error) {
	return s.changes.List(ctx, repositories.ChangeFilter{Unapplied: true, Limit: limit})
}

func (s *ModerationService) GetEvents(ctx context.Context, id uuid.UUID) ([]models.AuditLog, error) {
	return s.auditRepo.GetByEntity(ctx, models.EntityTypeChangeRecord, id, 100)
}

// Approve moves a pending record to approved and applies it. If apply fails
// the record stays approved without applied_at and a *models.ApplyError is
// returned together with the decision.
func (s *ModerationService) Approve(ctx context.Context, id uuid.UUID, approver models.Actor) (*Decision, error) {
	record, err := s.changes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.approve(ctx, record, approver)
}

func (s *ModerationService) Reject(ctx context.Context, id uuid.UUID, admin models.Actor, reason string) (*models.ChangeRecord, error) {
	record, err := s.changes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.reject(ctx, record, admin, reason)
}

// BatchApprove handles each record on its own, one at a time, in submission
// order. Ids that do not exist are reported last.
func (s *ModerationService) BatchApprove(ctx context.Context, ids []uuid.UUID, approver models.Actor) ([]BatchResult, error) {
	return s.batch(ctx, ids, func(record *models.ChangeRecord) (*Decision, error) {
		return s.approve(ctx, record, approver)
	})
}

func (s *ModerationService) BatchReject(ctx context.Context, ids []uuid.UUID, admin models.Actor, reason string) ([]BatchResult, error) {
	if err := checkReason(reason); err != nil {
		return nil, err
	}
	return s.batch(ctx, ids, func(record *models.ChangeRecord) (*Decision, error) {
		rejected, err := s.reject(ctx, record, admin, reason)
		if err != nil {
			return nil, err
		}
		return &Decision{Record: rejected}, nil
	})
}

// RetryApply re-runs the applier for an approved record that was never
// applied. It is the only way out of that state.
func (s *ModerationService) RetryApply(ctx context.Context, id uuid.UUID, operator models.Actor) (*Decision, error) {
	record, err := s.changes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !record.IsStuck() {
		return nil, &models.InvalidStateTransitionError{ChangeID: record.ID, From: describeState(record), To: stateApplied}
	}
	s.log.Info("retrying apply",
		zap.String("change_id", record.ID.String()),
		zap.String("operator_id", operator.UserID.String()),
	)
	return s.applyApproved(ctx, record, operator)
}

func (s *ModerationService) approve(ctx context.Context, record *models.ChangeRecord, approver models.Actor) (*Decision, error) {
	if !models.IsValidChangeTransition(record.Status, models.ChangeStatusApproved) {
		return nil, &models.InvalidStateTransitionError{ChangeID: record.ID, From: record.Status, To: models.ChangeStatusApproved}
	}

	at := s.now()
	ok, err := s.changes.MarkApproved(ctx, record.ID, approver.UserID, at)
	if err != nil {
		return nil, fmt.Errorf("approve change %s: %w", record.ID, err)
	}
	if !ok {
		return nil, s.lostRace(ctx, record, models.ChangeStatusApproved)
	}

	record.Status = models.ChangeStatusApproved
	record.ApproverID = &approver.UserID
	record.ApprovedAt = &at

	metrics.ObserveDecision(string(record.ChangeType), models.ChangeStatusApproved)
	s.audit(ctx, approver, record, ActionChangeApproved, nil)

	return s.applyApproved(ctx, record, approver)
}

// applyApproved claims the record, runs the applier and records the result.
// Only the claim holder mutates the company; everyone else gets an
// InvalidStateTransitionError without side effects.
func (s *ModerationService) applyApproved(ctx context.Context, record *models.ChangeRecord, actor models.Actor) (*Decision, error) {
	now := s.now()
	claimed, err := s.changes.ClaimApply(ctx, record.ID, now, now.Add(s.applyTimeout+applyClaimGrace))
	if err != nil {
		err = &models.ApplyError{ChangeID: record.ID, ChangeType: record.ChangeType, Err: fmt.Errorf("claim: %w", err)}
		s.applyFailed(ctx, actor, record, err)
		return &Decision{Record: record}, err
	}
	if !claimed {
		return nil, s.claimLost(ctx, record)
	}

	applyCtx, cancel := context.WithTimeout(ctx, s.applyTimeout)
	defer cancel()

	start := time.Now()
	outcome, err := s.applier.Apply(applyCtx, record)
	decision := &Decision{Record: record, Outcome: outcome}
	if err != nil {
		metrics.ObserveApply(string(record.ChangeType), metrics.ResultFailed, time.Since(start))
		s.release(ctx, record)
		s.applyFailed(ctx, actor, record, err)
		return decision, err
	}

	at := s.now()
	ok, err := s.changes.MarkApplied(ctx, record.ID, at)
	if err == nil && !ok {
		err = errors.New("record is no longer approved and unapplied")
	}
	if err != nil {
		// The mutation is in place but the record does not say so.
		err = &models.ApplyError{ChangeID: record.ID, ChangeType: record.ChangeType, Err: fmt.Errorf("mark applied: %w", err)}
		metrics.ObserveApply(string(record.ChangeType), metrics.ResultFailed, time.Since(start))
		s.release(ctx, record)
		s.applyFailed(ctx, actor, record, err)
		return decision, err
	}
	record.AppliedAt = &at
	record.ApplyClaimedUntil = nil

	metrics.ObserveApply(string(record.ChangeType), metrics.ResultApplied, time.Since(start))
	s.audit(ctx, actor, record, ActionChangeApplied, map[string]any{
		"detail": outcome.Detail,
		"failed": outcome.Failed,
	})
	if record.SubmitterID != nil {
		s.notifier.Notify(ctx, events.UserRecipient(*record.SubmitterID), Message{
			Event:  events.EventChangeApproved,
			Text:   fmt.Sprintf("Your %s change was approved", record.ChangeType),
			Change: record,
		})
	}

	fields := []zap.Field{
		zap.String("change_id", record.ID.String()),
		zap.String("change_type", string(record.ChangeType)),
		zap.String("company_id", record.CompanyID.String()),
	}
	if len(outcome.Failed) > 0 {
		s.log.Warn("change applied partially", append(fields, zap.Strings("failed_signed_ids", outcome.Failed))...)
	} else {
		s.log.Info("change applied", fields...)
	}
	return decision, nil
}

// release hands the record back for retry. It runs even when ctx is done.
func (s *ModerationService) release(ctx context.Context, record *models.ChangeRecord) {
	if err := s.changes.ReleaseApply(context.WithoutCancel(ctx), record.ID); err != nil {
		s.log.Warn("failed to release apply claim",
			zap.String("change_id", record.ID.String()),
			zap.Error(err),
		)
	}
	record.ApplyClaimedUntil = nil
}

// claimLost builds the error for an applier that found the record already
// claimed or already applied.
func (s *ModerationService) claimLost(ctx context.Context, record *models.ChangeRecord) error {
	from := stateApplying
	if current, err := s.changes.GetByID(ctx, record.ID); err == nil {
		*record = *current
		if !current.IsStuck() {
			from = describeState(current)
		}
	}
	s.log.Info("apply already in progress",
		zap.String("change_id", record.ID.String()),
		zap.String("state", from),
	)
	return &models.InvalidStateTransitionError{ChangeID: record.ID, From: from, To: stateApplied}
}

func (s *ModerationService) applyFailed(ctx context.Context, actor models.Actor, record *models.ChangeRecord, err error) {
	s.log.Error("failed to apply change",
		zap.String("change_id", record.ID.String()),
		zap.String("change_type", string(record.ChangeType)),
		zap.String("company_id", record.CompanyID.String()),
		zap.Error(err),
	)
	s.audit(ctx, actor, record, ActionChangeApplyFailed, map[string]any{"error": err.Error()})
	s.notifier.Notify(ctx, events.RecipientAdmins, Message{
		Event:  events.EventChangeApplyFailed,
		Text:   fmt.Sprintf("Approved %s change could not be applied: %v", record.ChangeType, err),
		Change: record,
	})
}

func (s *ModerationService) reject(ctx context.Context, record *models.ChangeRecord, admin models.Actor, reason string) (*models.ChangeRecord, error) {
	if !models.IsValidChangeTransition(record.Status, models.ChangeStatusRejected) {
		return nil, &models.InvalidStateTransitionError{ChangeID: record.ID, From: record.Status, To: models.ChangeStatusRejected}
	}
	if err := checkReason(reason); err != nil {
		return nil, err
	}

	reason = strings.TrimSpace(reason)
	at := s.now()
	ok, err := s.changes.MarkRejected(ctx, record.ID, reason, at)
	if err != nil {
		return nil, fmt.Errorf("reject change %s: %w", record.ID, err)
	}
	if !ok {
		return nil, s.lostRace(ctx, record, models.ChangeStatusRejected)
	}

	record.Status = models.ChangeStatusRejected
	record.RejectionReason = &reason
	record.RejectedAt = &at

	metrics.ObserveDecision(string(record.ChangeType), models.ChangeStatusRejected)
	s.audit(ctx, admin, record, ActionChangeRejected, map[string]any{"reason": reason})
	if record.SubmitterID != nil {
		s.notifier.Notify(ctx, events.UserRecipient(*record.SubmitterID), Message{
			Event:  events.EventChangeRejected,
			Text:   fmt.Sprintf("Your %s change was rejected: %s", record.ChangeType, reason),
			Change: record,
		})
	}
	s.log.Info("change rejected",
		zap.String("change_id", record.ID.String()),
		zap.String("change_type", string(record.ChangeType)),
	)
	return record, nil
}

func (s *ModerationService) batch(ctx context.Context, ids []uuid.UUID, decide func(*models.ChangeRecord) (*Decision, error)) ([]BatchResult, error) {
	records, err := s.changes.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Seq < records[j].Seq
	})

	found := make(map[uuid.UUID]bool, len(records))
	results := make([]BatchResult, 0, len(ids))
	for i := range records {
		record := &records[i]
		found[record.ID] = true
		decision, err := decide(record)
		results = append(results, BatchResult{ID: record.ID, Decision: decision, Err: err})
	}
	for _, id := range ids {
		if !found[id] {
			found[id] = true
			results = append(results, BatchResult{ID: id, Err: fmt.Errorf("change %s: %w", id, models.ErrNotFound)})
		}
	}
	return results, nil
}

// lostRace builds the error for a conditional update that matched nothing
// because another request decided the record first.
func (s *ModerationService) lostRace(ctx context.Context, record *models.ChangeRecord, to string) error {
	from := record.Status
	if current, err := s.changes.GetByID(ctx, record.ID); err == nil {
		from = current.Status
		*record = *current
	}
	return &models.InvalidStateTransitionError{ChangeID: record.ID, From: from, To: to}
}

func (s *ModerationService) audit(ctx context.Context, actor models.Actor, record *models.ChangeRecord, action string, meta map[string]any) {
	actorID := actor.UserID
	entry := models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   actor.AuditType(),
		Action:      action,
		EntityType:  models.EntityTypeChangeRecord,
		EntityID:    &record.ID,
		Meta:        meta,
	}
	if actor.UserID == uuid.Nil {
		entry.ActorUserID = nil
		entry.ActorType = models.ActorTypeSystem
	}
	if err := s.auditRepo.Log(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("change_id", record.ID.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func checkReason(reason string) error {
	if strings.TrimSpace(reason) == "" {
		return &models.ValidationError{Field: "reason", Message: "is required"}
	}
	return nil
}

func describeState(record *models.ChangeRecord) string {
	if record.Status == models.ChangeStatusApproved && record.AppliedAt != nil {
		return stateApplied
	}
	return record.Status
}
