package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	reservationserrors "reservo/internal/reservations/errors"
	"reservo/internal/reservations/lock"
	"reservo/internal/reservations/metrics"
	"reservo/internal/reservations/notify"
	"reservo/internal/reservations/proposal"
	"reservo/internal/reservations/repository"
	"reservo/internal/reservations/validator"
	"reservo/pkg/config"
	apperrors "reservo/pkg/errors"
	"reservo/pkg/logger"
	"reservo/pkg/model"
	"reservo/pkg/sanitizer"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "reservo/internal/reservations/service"

// SearchQuery narrows SearchReservations. Empty fields are ignored.
type SearchQuery struct {
	RoomID string
	From   *time.Time
	To     *time.Time
}

type ReservationService interface {
	Book(ctx context.Context, caller model.Caller, req *model.ReservationRequest) (*model.Reservation, error)
	GetReservation(ctx context.Context, caller model.Caller, id string) (*model.Reservation, error)
	SearchReservations(ctx context.Context, caller model.Caller, query SearchQuery, limit int, offset int64) ([]*model.Reservation, int64, error)
	Cancel(ctx context.Context, caller model.Caller, id string) error

	ProposeChange(ctx context.Context, caller model.Caller, reservationID string, change *model.Slot) (*model.ChangeProposal, error)
	RespondToChange(ctx context.Context, caller model.Caller, proposalID string, approve bool) (*model.ChangeProposal, error)
	GetProposal(ctx context.Context, caller model.Caller, id string) (*model.ChangeProposal, error)
	ListProposals(ctx context.Context, caller model.Caller, reservationID string) ([]*model.ChangeProposal, error)

	// Expire moves an overdue pending proposal to expired and cancels its
	// reservation in one transaction. It reports whether this call made the
	// transition; only the winner notifies the owner.
	Expire(ctx context.Context, p *model.ChangeProposal) (bool, error)
}

type Option func(*reservationService)

func WithClock(clock clockwork.Clock) Option {
	return func(s *reservationService) { s.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *reservationService) { s.metrics = m }
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *reservationService) { s.tracer = tracer }
}

type reservationService struct {
	store     repository.Store
	locks     *lock.Coordinator
	emitter   notify.Emitter
	validator *validator.ReservationValidator
	cfg       *config.Config
	log       *logger.Logger
	policy    proposal.Policy
	clock     clockwork.Clock
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

func NewReservationService(
	store repository.Store,
	locks *lock.Coordinator,
	emitter notify.Emitter,
	validator *validator.ReservationValidator,
	cfg *config.Config,
	opts ...Option,
) ReservationService {
	policy := proposal.DefaultPolicy()
	if cfg.ChangeWindow > 0 {
		policy.ChangeWindow = cfg.ChangeWindow
	}
	if cfg.ProposalTTL > 0 {
		policy.TTL = cfg.ProposalTTL
	}

	s := &reservationService{
		store:     store,
		locks:     locks,
		emitter:   emitter,
		validator: validator,
		cfg:       cfg,
		log:       cfg.Log.Component("reservations"),
		policy:    policy,
		clock:     clockwork.NewRealClock(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *reservationService) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func (s *reservationService) Book(ctx context.Context, caller model.Caller, req *model.ReservationRequest) (*model.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservations.Book")
	defer span.End()
	started := s.clock.Now()

	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateRequest(req); err != nil {
		s.log.Warn("Reservation validation failed", "room_id", req.RoomID, "owner_id", caller.UserID, "error", err)
		return nil, s.toAppError(err)
	}

	slot := proposal.NormalizeSlot(model.Slot{RoomID: req.RoomID, StartTime: req.StartTime, EndTime: req.EndTime})
	now := s.now()
	if slot.StartTime.Before(now) {
		return nil, apperrors.Validation("Reservation validation failed", map[string]any{
			"StartTime": "start_time cannot be in the past",
		})
	}
	span.SetAttributes(
		attribute.String("room_id", slot.RoomID),
		attribute.String("start_time", slot.StartTime.Format(time.RFC3339)),
	)

	reservation := &model.Reservation{
		ID:        uuid.NewString(),
		OwnerID:   caller.UserID,
		RoomID:    slot.RoomID,
		StartTime: slot.StartTime,
		EndTime:   slot.EndTime,
		Status:    model.ReservationConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	key := lock.SlotKey(slot.RoomID, slot.StartTime)
	err := s.locks.WithLock(ctx, key, func(ctx context.Context) error {
		return s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
			return s.checkAndCommit(ctx, reservation)
		})
	})
	s.metrics.LockAttempt(lockResult(err))

	if err != nil {
		s.metrics.ObserveBooking(bookingResult(err), s.clock.Since(started))
		s.recordSpanError(span, err)
		if !errors.Is(err, reservationserrors.ErrLockHeld) && !errors.Is(err, reservationserrors.ErrOverlap) {
			s.log.Error("Failed to book reservation",
				"room_id", slot.RoomID,
				"start_time", slot.StartTime,
				"owner_id", caller.UserID,
				"error", err,
			)
		}
		return nil, s.toAppError(err)
	}

	s.metrics.ObserveBooking(metrics.ResultSuccess, s.clock.Since(started))
	s.log.Info("Reservation created",
		"id", reservation.ID,
		"room_id", reservation.RoomID,
		"start_time", reservation.StartTime,
		"end_time", reservation.EndTime,
		"owner_id", reservation.OwnerID,
	)
	return reservation, nil
}

// checkAndCommit inserts reservation unless a confirmed reservation in the same
// room intersects it. Must run inside the slot lock and a store transaction.
func (s *reservationService) checkAndCommit(ctx context.Context, reservation *model.Reservation) error {
	if _, err := s.store.Reservations().BumpRoomVersion(ctx, reservation.RoomID, reservation.CreatedAt); err != nil {
		return err
	}
	existing, err := s.store.Reservations().FindOverlapping(ctx, reservation.RoomID, reservation.StartTime, reservation.EndTime, "")
	if err != nil {
		return fmt.Errorf("failed to check for overlapping reservations: %w", err)
	}
	if len(existing) > 0 {
		return reservationserrors.ErrOverlap
	}
	return s.store.Reservations().Create(ctx, reservation)
}

func (s *reservationService) GetReservation(ctx context.Context, caller model.Caller, id string) (*model.Reservation, error) {
	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	reservation, err := s.store.Reservations().FindByID(ctx, id)
	if err != nil {
		return nil, s.toAppError(err)
	}
	if !caller.IsAdmin() && reservation.OwnerID != caller.UserID {
		return nil, s.toAppError(reservationserrors.ErrForbidden)
	}
	return reservation, nil
}

func (s *reservationService) SearchReservations(ctx context.Context, caller model.Caller, query SearchQuery, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if err := s.validateCaller(caller); err != nil {
		return nil, 0, err
	}
	if query.From != nil && query.To != nil && !query.To.After(*query.From) {
		return nil, 0, apperrors.InvalidInput("end_time must be after start_time")
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)
	filter := repository.SearchFilter{
		RoomID: sanitizer.SanitizeRoomID(query.RoomID),
		Status: model.ReservationConfirmed,
		From:   query.From,
		To:     query.To,
	}

	var count int64
	var reservations []*model.Reservation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		count, err = s.store.Reservations().Count(gctx, filter)
		return err
	})
	g.Go(func() error {
		var err error
		reservations, err = s.store.Reservations().Search(gctx, filter, limit, offset)
		return err
	})
	if err := g.Wait(); err != nil {
		s.log.Error("Failed to search reservations",
			"room_id", query.RoomID,
			"limit", limit,
			"offset", offset,
			"error", err,
		)
		return nil, 0, s.toAppError(err)
	}

	return reservations, count, nil
}

func (s *reservationService) Cancel(ctx context.Context, caller model.Caller, id string) error {
	if err := s.validateCaller(caller); err != nil {
		return err
	}
	if id == "" {
		return apperrors.InvalidInput("Reservation ID cannot be empty")
	}

	reservation, err := s.store.Reservations().FindByID(ctx, id)
	if err != nil {
		return s.toAppError(err)
	}
	if !caller.IsAdmin() && reservation.OwnerID != caller.UserID {
		return s.toAppError(reservationserrors.ErrForbidden)
	}
	if !reservation.IsConfirmed() {
		return nil
	}

	cancelled, err := s.store.Reservations().Cancel(ctx, id, s.now())
	if err != nil {
		s.log.Error("Failed to cancel reservation", "id", id, "error", err)
		return s.toAppError(err)
	}
	if !cancelled {
		return nil
	}

	s.log.Info("Reservation cancelled", "id", id, "by", caller.UserID, "role", caller.Role)
	if reservation.OwnerID != caller.UserID {
		s.emit(ctx, model.Event{
			UserID:    reservation.OwnerID,
			Type:      model.EventReservationCancelled,
			Message:   fmt.Sprintf("Your reservation of room %s at %s was cancelled by an administrator", reservation.RoomID, reservation.StartTime.Format(time.RFC3339)),
			RelatedID: reservation.ID,
		})
	}
	return nil
}

func (s *reservationService) ProposeChange(ctx context.Context, caller model.Caller, reservationID string, change *model.Slot) (*model.ChangeProposal, error) {
	ctx, span := s.tracer.Start(ctx, "reservations.ProposeChange", trace.WithAttributes(attribute.String("reservation_id", reservationID)))
	defer span.End()

	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, apperrors.Forbidden("Only administrators can propose changes").WithCause(reservationserrors.ErrForbidden)
	}
	if reservationID == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}
	if change == nil {
		return nil, apperrors.InvalidInput("Change request body is required")
	}
	if err := s.validator.ValidateSlot(change); err != nil {
		return nil, s.toAppError(err)
	}

	reservation, err := s.store.Reservations().FindByID(ctx, reservationID)
	if err != nil {
		return nil, s.toAppError(err)
	}

	p, err := proposal.Create(s.policy, proposal.CreateInput{
		Reservation: *reservation,
		ProposerID:  caller.UserID,
		New:         *change,
	}, s.now, uuid.NewString)
	if err != nil {
		s.recordSpanError(span, err)
		return nil, s.toAppError(err)
	}

	if err := s.store.Proposals().Create(ctx, &p); err != nil {
		s.log.Error("Failed to create change proposal", "reservation_id", reservationID, "error", err)
		s.recordSpanError(span, err)
		return nil, s.toAppError(err)
	}

	s.metrics.ProposalTransition(model.ProposalPending)
	s.log.Info("Change proposal created",
		"id", p.ID,
		"reservation_id", p.ReservationID,
		"proposer_id", p.ProposerID,
		"expires_at", p.ExpiresAt,
	)
	s.emit(ctx, model.Event{
		UserID:    p.OwnerID,
		Type:      model.EventChangeProposed,
		Message:   fmt.Sprintf("A change to your reservation was proposed: room %s, %s to %s. Respond before %s", p.New.RoomID, p.New.StartTime.Format(time.RFC3339), p.New.EndTime.Format(time.RFC3339), p.ExpiresAt.Format(time.RFC3339)),
		RelatedID: p.ID,
	})
	return &p, nil
}

func (s *reservationService) RespondToChange(ctx context.Context, caller model.Caller, proposalID string, approve bool) (*model.ChangeProposal, error) {
	ctx, span := s.tracer.Start(ctx, "reservations.RespondToChange", trace.WithAttributes(
		attribute.String("proposal_id", proposalID),
		attribute.Bool("approve", approve),
	))
	defer span.End()

	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	if proposalID == "" {
		return nil, apperrors.InvalidInput("Proposal ID cannot be empty")
	}

	p, err := s.store.Proposals().FindByID(ctx, proposalID)
	if err != nil {
		return nil, s.toAppError(err)
	}

	now := s.now()
	status, err := proposal.Decide(*p, caller.UserID, approve, now)
	if err != nil {
		return nil, s.toAppError(err)
	}
	span.SetAttributes(attribute.String("status", status))

	switch status {
	case model.ProposalExpired:
		if _, err := s.expireAt(ctx, p, now); err != nil {
			s.recordSpanError(span, err)
			return nil, s.toAppError(err)
		}
		return nil, s.toAppError(reservationserrors.ErrExpired)

	case model.ProposalRejected:
		won, err := s.store.Proposals().Transition(ctx, p.ID, model.ProposalRejected, now)
		if err != nil {
			s.recordSpanError(span, err)
			return nil, s.toAppError(err)
		}
		if !won {
			return nil, s.toAppError(s.lostTransition(ctx, p.ID))
		}

	case model.ProposalApproved:
		if err := s.approve(ctx, p, now); err != nil {
			s.recordSpanError(span, err)
			if !errors.Is(err, reservationserrors.ErrOverlap) && !errors.Is(err, reservationserrors.ErrLockHeld) {
				s.log.Error("Failed to approve change proposal", "id", p.ID, "error", err)
			}
			return nil, s.toAppError(err)
		}
	}

	updated := proposal.Apply(*p, status, now)
	s.metrics.ProposalTransition(status)
	s.log.Info("Change proposal answered", "id", updated.ID, "status", updated.Status, "owner_id", updated.OwnerID)

	event := model.Event{UserID: updated.ProposerID, RelatedID: updated.ID}
	if status == model.ProposalApproved {
		event.Type = model.EventChangeApproved
		event.Message = fmt.Sprintf("The owner approved your proposed change for reservation %s", updated.ReservationID)
	} else {
		event.Type = model.EventChangeRejected
		event.Message = fmt.Sprintf("The owner rejected your proposed change for reservation %s", updated.ReservationID)
	}
	s.emit(ctx, event)

	return &updated, nil
}

// approve moves the reservation to the proposed slot. The slot is re-checked
// under its own lock; a collision leaves the proposal pending.
func (s *reservationService) approve(ctx context.Context, p *model.ChangeProposal, now time.Time) error {
	key := lock.SlotKey(p.New.RoomID, p.New.StartTime)
	err := s.locks.WithLock(ctx, key, func(ctx context.Context) error {
		return s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.store.Reservations().BumpRoomVersion(ctx, p.New.RoomID, now); err != nil {
				return err
			}
			overlapping, err := s.store.Reservations().FindOverlapping(ctx, p.New.RoomID, p.New.StartTime, p.New.EndTime, p.ReservationID)
			if err != nil {
				return fmt.Errorf("failed to check for overlapping reservations: %w", err)
			}
			if len(overlapping) > 0 {
				return reservationserrors.ErrOverlap
			}

			won, err := s.store.Proposals().Transition(ctx, p.ID, model.ProposalApproved, now)
			if err != nil {
				return err
			}
			if !won {
				return s.lostTransition(ctx, p.ID)
			}
			return s.store.Reservations().UpdateSlot(ctx, p.ReservationID, p.New, now)
		})
	})
	s.metrics.LockAttempt(lockResult(err))
	return err
}

// lostTransition explains why a conditional transition matched nothing.
func (s *reservationService) lostTransition(ctx context.Context, id string) error {
	current, err := s.store.Proposals().FindByID(ctx, id)
	if err != nil {
		return err
	}
	if current.Status == model.ProposalExpired {
		return reservationserrors.ErrExpired
	}
	return reservationserrors.ErrNotPending
}

func (s *reservationService) Expire(ctx context.Context, p *model.ChangeProposal) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "reservations.Expire", trace.WithAttributes(attribute.String("proposal_id", p.ID)))
	defer span.End()

	won, err := s.expireAt(ctx, p, s.now())
	if err != nil {
		s.recordSpanError(span, err)
	}
	return won, err
}

func (s *reservationService) expireAt(ctx context.Context, p *model.ChangeProposal, now time.Time) (bool, error) {
	var won, cancelled bool
	err := s.store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		var err error
		won, err = s.store.Proposals().Transition(ctx, p.ID, model.ProposalExpired, now)
		if err != nil || !won {
			return err
		}
		cancelled, err = s.store.Reservations().Cancel(ctx, p.ReservationID, now)
		return err
	})
	if err != nil {
		s.log.Error("Failed to expire change proposal", "id", p.ID, "error", err)
		return false, err
	}
	if !won {
		return false, nil
	}

	s.metrics.ProposalTransition(model.ProposalExpired)
	// The reservation was already cancelled or moved on; there is nothing to tell the owner.
	if !cancelled {
		s.log.Info("Change proposal expired on inactive reservation",
			"id", p.ID,
			"reservation_id", p.ReservationID,
		)
		return true, nil
	}
	s.log.Info("Change proposal expired, reservation cancelled",
		"id", p.ID,
		"reservation_id", p.ReservationID,
		"owner_id", p.OwnerID,
	)
	s.emit(ctx, model.Event{
		UserID:    p.OwnerID,
		Type:      model.EventChangeExpired,
		Message:   fmt.Sprintf("The proposed change was not answered before %s; your reservation was cancelled", p.ExpiresAt.Format(time.RFC3339)),
		RelatedID: p.ID,
	})
	return true, nil
}

func (s *reservationService) GetProposal(ctx context.Context, caller model.Caller, id string) (*model.ChangeProposal, error) {
	if err := s.validateCaller(caller); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, apperrors.InvalidInput("Proposal ID cannot be empty")
	}

	p, err := s.store.Proposals().FindByID(ctx, id)
	if err != nil {
		return nil, s.toAppError(err)
	}
	if !caller.IsAdmin() && p.OwnerID != caller.UserID {
		return nil, s.toAppError(reservationserrors.ErrForbidden)
	}
	return p, nil
}

func (s *reservationService) ListProposals(ctx context.Context, caller model.Caller, reservationID string) ([]*model.ChangeProposal, error) {
	reservation, err := s.GetReservation(ctx, caller, reservationID)
	if err != nil {
		return nil, err
	}

	proposals, err := s.store.Proposals().FindByReservation(ctx, reservation.ID)
	if err != nil {
		s.log.Error("Failed to list change proposals", "reservation_id", reservationID, "error", err)
		return nil, s.toAppError(err)
	}
	return proposals, nil
}

// emit hands event to the emitter. Delivery problems are logged, never returned.
func (s *reservationService) emit(ctx context.Context, event model.Event) {
	if s.emitter == nil {
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	err := s.emitter.Emit(context.WithoutCancel(ctx), event)
	s.metrics.Notification(event.Type, err)
	if err != nil {
		s.log.Warn("Failed to emit notification",
			"event_id", event.EventID,
			"type", event.Type,
			"user_id", event.UserID,
			"error", err,
		)
	}
}

func (s *reservationService) validateCaller(caller model.Caller) error {
	if err := s.validator.ValidateCaller(caller); err != nil {
		return apperrors.Unauthorized("Caller identity is missing or invalid")
	}
	return nil
}

func (s *reservationService) recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func lockResult(err error) string {
	switch {
	case errors.Is(err, reservationserrors.ErrLockHeld):
		return metrics.ResultHeld
	case errors.Is(err, reservationserrors.ErrLockUnavailable):
		return metrics.ResultUnavailable
	default:
		return metrics.ResultAcquired
	}
}

func bookingResult(err error) string {
	switch {
	case errors.Is(err, reservationserrors.ErrLockHeld):
		return metrics.ResultLockHeld
	case errors.Is(err, reservationserrors.ErrOverlap):
		return metrics.ResultOverlap
	case errors.Is(err, reservationserrors.ErrLockUnavailable):
		return metrics.ResultUnavailable
	default:
		return metrics.ResultError
	}
}
