package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "reservo/pkg/errors"
)

func TestExtractLimitOffset(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantLimit  int
		wantOffset int64
		wantErr    bool
	}{
		{"defaults", "", 10, 0, false},
		{"explicit", "?limit=25&offset=50", 25, 50, false},
		{"limit capped", "?limit=5000", 100, 0, false},
		{"negative offset clamped", "?offset=-4", 10, 0, false},
		{"bad limit", "?limit=abc", 0, 0, true},
		{"bad offset", "?offset=1.5", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/reservations/search"+tt.query, nil)
			limit, offset, err := ExtractLimitOffset(r)
			if tt.wantErr {
				if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
					t.Fatalf("expected INVALID_INPUT, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("got (%d, %d), want (%d, %d)", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestExtractTime(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?start_time=2026-03-01T10:00:00%2B02:00", nil)
	got, err := ExtractTime(r, "start_time")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if got == nil || !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("got %v, want %v", got, want)
	}

	missing, err := ExtractTime(r, "end_time")
	if err != nil || missing != nil {
		t.Errorf("missing param should be nil, nil; got %v, %v", missing, err)
	}

	bad := httptest.NewRequest(http.MethodGet, "/?end_time=tomorrow", nil)
	if _, err := ExtractTime(bad, "end_time"); err == nil {
		t.Error("expected error for non-RFC3339 value")
	}
}

func TestWriteErrorUsesAppErrorStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WriteError(rec, apperrors.LockConflict("slot is being booked")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}

	var body apperrors.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Code != apperrors.CodeLockConflict || !body.Retryable {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestWritePaginated(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := WritePaginated(rec, []string{"a", "b"}, 7, 2, 4); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	var body PaginatedResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.TotalCount != 7 || body.Limit != 2 || body.Offset != 4 {
		t.Errorf("unexpected metadata: %+v", body)
	}
}
