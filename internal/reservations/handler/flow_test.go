package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"

	"reservo/internal/reservations/lock"
	"reservo/internal/reservations/notify"
	"reservo/internal/reservations/repository"
	"reservo/internal/reservations/service"
	"reservo/internal/reservations/validator"
	"reservo/pkg/client"
	"reservo/pkg/config"
	apperrors "reservo/pkg/errors"
	"reservo/pkg/logger"
	"reservo/pkg/middleware"
	"reservo/pkg/model"
)

type apiFixture struct {
	base  *client.HttpClient
	redis *miniredis.Miniredis
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	store, err := repository.OpenSQLiteStore(filepath.Join(t.TempDir(), "reservations.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := logger.Discard()
	cfg := &config.Config{Log: log, ChangeWindow: 48 * time.Hour, ProposalTTL: 48 * time.Hour}
	locks := lock.NewCoordinator(lock.NewRedisStore(rdb), lock.Config{Lease: 10 * time.Second, ReleaseTimeout: time.Second}, log)
	svc := service.NewReservationService(store, locks, notify.NewLogEmitter(log), validator.NewReservationValidator(log), cfg)

	router := httprouter.New()
	NewReservationHandler(svc, log).RegisterRoutes(router)
	NewHealthHandler(log,
		Dependency{Name: "store", Ping: store.Ping},
		Dependency{Name: "redis", Ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	).RegisterRoutes(router)

	var h http.Handler = router
	h = middleware.Identity(log)(h)
	h = middleware.RequestLogging(log)(h)
	h = middleware.Recovery(log)(h)

	mux := http.NewServeMux()
	mux.Handle("/health", router)
	mux.Handle("/ready", router)
	mux.Handle("/", h)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &apiFixture{base: client.NewHttpClient(srv.URL), redis: mr}
}

func (f *apiFixture) as(c model.Caller) *client.ReservationClient {
	return client.NewReservationClient(f.base.As(c.UserID, c.Role))
}

func TestAPI_BookProposeApprove(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()
	aliceAPI := f.as(alice)
	adminAPI := f.as(model.Caller{UserID: "ops", Role: model.RoleAdmin})
	bobAPI := f.as(model.Caller{UserID: "bob", Role: model.RoleUser})

	start := time.Now().UTC().Add(96 * time.Hour).Truncate(time.Hour)
	resp, err := aliceAPI.Book(ctx, model.ReservationRequest{RoomID: "room-a", StartTime: start, EndTime: start.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: %s", resp.ToString())
	}
	reservation, err := aliceAPI.DecodeReservation(resp)
	if err != nil {
		t.Fatal(err)
	}

	resp, _ = bobAPI.Book(ctx, model.ReservationRequest{RoomID: "room-a", StartTime: start.Add(30 * time.Minute), EndTime: start.Add(90 * time.Minute)})
	if resp.StatusCode != http.StatusConflict || client.GetErrorCode(resp) != apperrors.CodeOverlapConflict {
		t.Fatalf("overlapping book: %s", resp.ToString())
	}

	resp, _ = bobAPI.GetByID(ctx, reservation.ID)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign read: %s", resp.ToString())
	}

	newStart := start.Add(24 * time.Hour)
	resp, _ = adminAPI.ProposeChange(ctx, reservation.ID, model.Slot{StartTime: newStart, EndTime: newStart.Add(2 * time.Hour)})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("propose: %s", resp.ToString())
	}
	proposal, err := adminAPI.DecodeProposal(resp)
	if err != nil {
		t.Fatal(err)
	}

	resp, _ = aliceAPI.ListProposals(ctx, reservation.ID)
	proposals, err := aliceAPI.DecodeProposals(resp)
	if err != nil || len(proposals) != 1 || proposals[0].Status != model.ProposalPending {
		t.Fatalf("list proposals: %v %s", err, resp.ToString())
	}

	resp, _ = bobAPI.Respond(ctx, proposal.ID, true)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("respond as non-owner: %s", resp.ToString())
	}

	resp, _ = aliceAPI.Respond(ctx, proposal.ID, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve: %s", resp.ToString())
	}
	decided, _ := aliceAPI.DecodeProposal(resp)
	if decided.Status != model.ProposalApproved {
		t.Fatalf("status after approve = %q", decided.Status)
	}

	resp, _ = aliceAPI.GetByID(ctx, reservation.ID)
	moved, _ := aliceAPI.DecodeReservation(resp)
	if !moved.StartTime.Equal(newStart) || !moved.EndTime.Equal(newStart.Add(2*time.Hour)) {
		t.Fatalf("reservation not moved: %+v", moved)
	}

	resp, _ = bobAPI.Search(ctx, "room-a", nil, nil, 10, 0)
	found, meta, err := bobAPI.DecodeReservations(resp)
	if err != nil || meta.TotalCount != 1 || len(found) != 1 {
		t.Fatalf("search: %v %s", err, resp.ToString())
	}

	resp, _ = aliceAPI.Cancel(ctx, reservation.ID)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel: %s", resp.ToString())
	}
	resp, _ = bobAPI.Search(ctx, "room-a", nil, nil, 10, 0)
	if _, meta, _ := bobAPI.DecodeReservations(resp); meta.TotalCount != 0 {
		t.Errorf("cancelled reservation still listed: %s", resp.ToString())
	}
}

func TestAPI_MissingIdentity(t *testing.T) {
	f := newAPIFixture(t)
	resp, err := client.NewReservationClient(f.base).Search(context.Background(), "room-a", nil, nil, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAPI_Readiness(t *testing.T) {
	f := newAPIFixture(t)
	ctx := context.Background()

	if err := f.base.WaitForHealthy(ctx, 2*time.Second); err != nil {
		t.Fatal(err)
	}

	resp, err := f.base.GET(ctx, "/ready")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ready: %s", resp.ToString())
	}

	f.redis.Close()
	resp, err = f.base.GET(ctx, "/ready")
	if err != nil {
		t.Fatal(err)
	}
	var body HealthResponse
	if err := resp.DecodeJSON(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable || body.Dependencies["redis"] != "error" || body.Dependencies["store"] != "ok" {
		t.Errorf("ready after redis loss: %s", resp.ToString())
	}
}

func TestHealthHandler_NoDependencies(t *testing.T) {
	router := httprouter.New()
	NewHealthHandler(logger.Discard()).RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}
