package repository

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	reservationserrors "reservo/internal/reservations/errors"
	"reservo/pkg/model"

	"github.com/google/uuid"
)

var base = time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)

func openTempStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "reservations.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close sqlite store: %v", err)
		}
	})
	return store
}

func newReservation(room string, start, end time.Time) *model.Reservation {
	return &model.Reservation{
		ID:        uuid.NewString(),
		OwnerID:   "owner-1",
		RoomID:    room,
		StartTime: start,
		EndTime:   end,
		Status:    model.ReservationConfirmed,
		CreatedAt: base.Add(-72 * time.Hour),
		UpdatedAt: base.Add(-72 * time.Hour),
	}
}

func newProposal(reservation *model.Reservation, expiresAt time.Time) *model.ChangeProposal {
	return &model.ChangeProposal{
		ID:            uuid.NewString(),
		ReservationID: reservation.ID,
		OwnerID:       reservation.OwnerID,
		ProposerID:    "admin-1",
		Old:           reservation.Slot(),
		New:           model.Slot{RoomID: reservation.RoomID, StartTime: reservation.StartTime.Add(time.Hour), EndTime: reservation.EndTime.Add(time.Hour)},
		Status:        model.ProposalPending,
		CreatedAt:     expiresAt.Add(-48 * time.Hour),
		ExpiresAt:     expiresAt,
	}
}

func mustCreate(t *testing.T, store *SQLiteStore, r *model.Reservation) {
	t.Helper()
	if err := store.Reservations().Create(context.Background(), r); err != nil {
		t.Fatalf("create reservation: %v", err)
	}
}

func TestOpenSQLiteStoreRequiresPath(t *testing.T) {
	if _, err := OpenSQLiteStore(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestReservationRoundTrip(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	in := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, in)

	got, err := store.Reservations().FindByID(ctx, in.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.RoomID != in.RoomID || got.OwnerID != in.OwnerID || got.Status != in.Status {
		t.Fatalf("got %+v, want %+v", got, in)
	}
	if !got.StartTime.Equal(in.StartTime) || !got.EndTime.Equal(in.EndTime) {
		t.Fatalf("times = [%v, %v), want [%v, %v)", got.StartTime, got.EndTime, in.StartTime, in.EndTime)
	}

	if _, err := store.Reservations().FindByID(ctx, "missing"); !errors.Is(err, reservationserrors.ErrNotFound) {
		t.Fatalf("missing: want ErrNotFound, got %v", err)
	}
}

func TestUniqueConfirmedSlotIsLastResortGuard(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, first)

	dup := newReservation("room-a", base, base.Add(30*time.Minute))
	if err := store.Reservations().Create(ctx, dup); !errors.Is(err, reservationserrors.ErrOverlap) {
		t.Fatalf("duplicate start: want ErrOverlap, got %v", err)
	}

	otherRoom := newReservation("room-b", base, base.Add(time.Hour))
	mustCreate(t, store, otherRoom)

	if _, err := store.Reservations().Cancel(ctx, first.ID, base); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	rebook := newReservation("room-a", base, base.Add(time.Hour))
	if err := store.Reservations().Create(ctx, rebook); err != nil {
		t.Fatalf("slot of a cancelled reservation must be bookable: %v", err)
	}
}

func TestFindOverlapping(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	existing := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, existing)
	cancelled := newReservation("room-a", base.Add(2*time.Hour), base.Add(3*time.Hour))
	cancelled.Status = model.ReservationCancelled
	mustCreate(t, store, cancelled)

	tests := []struct {
		name      string
		room      string
		start     time.Time
		end       time.Time
		excludeID string
		want      int
	}{
		{"inside", "room-a", base.Add(15 * time.Minute), base.Add(45 * time.Minute), "", 1},
		{"straddles start", "room-a", base.Add(-30 * time.Minute), base.Add(30 * time.Minute), "", 1},
		{"touching end", "room-a", base.Add(time.Hour), base.Add(2 * time.Hour), "", 0},
		{"touching start", "room-a", base.Add(-time.Hour), base, "", 0},
		{"other room", "room-b", base, base.Add(time.Hour), "", 0},
		{"cancelled ignored", "room-a", base.Add(2 * time.Hour), base.Add(3 * time.Hour), "", 0},
		{"self excluded", "room-a", base, base.Add(time.Hour), existing.ID, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Reservations().FindOverlapping(ctx, tt.room, tt.start, tt.end, tt.excludeID)
			if err != nil {
				t.Fatalf("find overlapping: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d overlaps, want %d", len(got), tt.want)
			}
		})
	}
}

func TestSearchAndCount(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		mustCreate(t, store, newReservation("room-a", start, start.Add(time.Hour)))
	}
	mustCreate(t, store, newReservation("room-b", base, base.Add(time.Hour)))

	from := base.Add(90 * time.Minute)
	to := base.Add(4 * time.Hour)
	filter := SearchFilter{RoomID: "room-a", From: &from, To: &to}

	count, err := store.Reservations().Count(ctx, filter)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	page, err := store.Reservations().Search(ctx, filter, 2, 1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	if !page[0].StartTime.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("first start = %v, want %v", page[0].StartTime, base.Add(2*time.Hour))
	}

	all, err := store.Reservations().Count(ctx, SearchFilter{})
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if all != 6 {
		t.Errorf("count all = %d, want 6", all)
	}
}

func TestUpdateSlot(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	r := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, r)
	blocker := newReservation("room-b", base, base.Add(time.Hour))
	mustCreate(t, store, blocker)

	moved := model.Slot{RoomID: "room-a", StartTime: base.Add(2 * time.Hour), EndTime: base.Add(3 * time.Hour)}
	if err := store.Reservations().UpdateSlot(ctx, r.ID, moved, base); err != nil {
		t.Fatalf("update slot: %v", err)
	}
	got, err := store.Reservations().FindByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.StartTime.Equal(moved.StartTime) || !got.UpdatedAt.Equal(base) {
		t.Fatalf("slot not applied: %+v", got)
	}

	collide := model.Slot{RoomID: "room-b", StartTime: base, EndTime: base.Add(time.Hour)}
	if err := store.Reservations().UpdateSlot(ctx, r.ID, collide, base); !errors.Is(err, reservationserrors.ErrOverlap) {
		t.Fatalf("unique collision: want ErrOverlap, got %v", err)
	}

	if _, err := store.Reservations().Cancel(ctx, r.ID, base); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := store.Reservations().UpdateSlot(ctx, r.ID, moved, base); !errors.Is(err, reservationserrors.ErrReservationInactive) {
		t.Fatalf("cancelled: want ErrReservationInactive, got %v", err)
	}
}

func TestCancelIsConditional(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	r := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, r)

	changed, err := store.Reservations().Cancel(ctx, r.ID, base)
	if err != nil || !changed {
		t.Fatalf("first cancel = (%v, %v), want (true, nil)", changed, err)
	}
	changed, err = store.Reservations().Cancel(ctx, r.ID, base)
	if err != nil || changed {
		t.Fatalf("second cancel = (%v, %v), want (false, nil)", changed, err)
	}
}

func TestProposalLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	r := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, r)

	p := newProposal(r, base.Add(-24*time.Hour))
	if err := store.Proposals().Create(ctx, p); err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	got, err := store.Proposals().FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("find proposal: %v", err)
	}
	if got.RespondedAt != nil || got.Status != model.ProposalPending {
		t.Fatalf("unexpected proposal: %+v", got)
	}
	if !got.New.StartTime.Equal(p.New.StartTime) || got.Old.RoomID != "room-a" {
		t.Fatalf("slots not persisted: %+v", got)
	}

	won, err := store.Proposals().Transition(ctx, p.ID, model.ProposalRejected, base)
	if err != nil || !won {
		t.Fatalf("first transition = (%v, %v), want (true, nil)", won, err)
	}
	won, err = store.Proposals().Transition(ctx, p.ID, model.ProposalApproved, base)
	if err != nil || won {
		t.Fatalf("second transition = (%v, %v), want (false, nil)", won, err)
	}

	got, err = store.Proposals().FindByID(ctx, p.ID)
	if err != nil {
		t.Fatalf("find proposal: %v", err)
	}
	if got.Status != model.ProposalRejected || got.RespondedAt == nil || !got.RespondedAt.Equal(base) {
		t.Fatalf("terminal state not kept: %+v", got)
	}

	if _, err := store.Proposals().FindByID(ctx, "missing"); !errors.Is(err, reservationserrors.ErrProposalNotFound) {
		t.Fatalf("missing: want ErrProposalNotFound, got %v", err)
	}
}

func TestFindExpiredPending(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	r := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, r)

	now := base.Add(-time.Hour)
	expired := newProposal(r, now.Add(-time.Minute))
	boundary := newProposal(r, now)
	live := newProposal(r, now.Add(time.Minute))
	decided := newProposal(r, now.Add(-2*time.Minute))
	decided.Status = model.ProposalApproved
	for _, p := range []*model.ChangeProposal{expired, boundary, live, decided} {
		if err := store.Proposals().Create(ctx, p); err != nil {
			t.Fatalf("create proposal: %v", err)
		}
	}

	got, err := store.Proposals().FindExpiredPending(ctx, now, 10)
	if err != nil {
		t.Fatalf("find expired: %v", err)
	}
	if len(got) != 1 || got[0].ID != expired.ID {
		t.Fatalf("expired = %v, want only %s", got, expired.ID)
	}

	list, err := store.Proposals().FindByReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 4 {
		t.Errorf("listed %d proposals, want 4", len(list))
	}
}

func TestExecuteTransactionRollsBackAllRepositories(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	r := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, r)
	p := newProposal(r, base.Add(-24*time.Hour))
	if err := store.Proposals().Create(ctx, p); err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	boom := errors.New("boom")
	err := store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if _, err := store.Proposals().Transition(ctx, p.ID, model.ProposalExpired, base); err != nil {
			return err
		}
		if _, err := store.Reservations().Cancel(ctx, r.ID, base); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}

	gotP, _ := store.Proposals().FindByID(ctx, p.ID)
	gotR, _ := store.Reservations().FindByID(ctx, r.ID)
	if gotP.Status != model.ProposalPending || gotR.Status != model.ReservationConfirmed {
		t.Fatalf("rollback incomplete: proposal=%s reservation=%s", gotP.Status, gotR.Status)
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	r := newReservation("room-a", base, base.Add(time.Hour))
	mustCreate(t, store, r)
	p := newProposal(r, base.Add(-24*time.Hour))
	if err := store.Proposals().Create(ctx, p); err != nil {
		t.Fatalf("create proposal: %v", err)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := store.Proposals().Transition(ctx, p.ID, model.ProposalExpired, base)
			if err != nil {
				t.Errorf("transition: %v", err)
				return
			}
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("winners = %d, want 1", wins.Load())
	}
}

func TestBumpRoomVersion(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.Reservations().BumpRoomVersion(ctx, "room-a", base)
		if err != nil || got != want {
			t.Fatalf("room-a version = %d (%v), want %d", got, err, want)
		}
	}
	if got, err := store.Reservations().BumpRoomVersion(ctx, "room-b", base); err != nil || got != 1 {
		t.Fatalf("room-b version = %d (%v), want 1", got, err)
	}

	boom := errors.New("boom")
	err := store.ExecuteTransaction(ctx, func(ctx context.Context) error {
		if _, err := store.Reservations().BumpRoomVersion(ctx, "room-a", base); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if got, _ := store.Reservations().BumpRoomVersion(ctx, "room-a", base); got != 4 {
		t.Errorf("rolled back bump leaked: version = %d, want 4", got)
	}
}
