package validator

import (
	"errors"
	"testing"
	"time"

	"reservo/pkg/logger"
	"reservo/pkg/model"
)

func TestValidateRequest(t *testing.T) {
	v := NewReservationValidator(logger.Discard())
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		req       model.ReservationRequest
		wantField string
	}{
		{"valid", model.ReservationRequest{RoomID: "room-a", StartTime: start, EndTime: start.Add(time.Hour)}, ""},
		{"missing room", model.ReservationRequest{StartTime: start, EndTime: start.Add(time.Hour)}, "RoomID"},
		{"room with separator", model.ReservationRequest{RoomID: "room:a", StartTime: start, EndTime: start.Add(time.Hour)}, "RoomID"},
		{"end before start", model.ReservationRequest{RoomID: "room-a", StartTime: start, EndTime: start.Add(-time.Hour)}, "EndTime"},
		{"empty interval", model.ReservationRequest{RoomID: "room-a", StartTime: start, EndTime: start}, "EndTime"},
		{"missing start", model.ReservationRequest{RoomID: "room-a", EndTime: start}, "StartTime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateRequest(&tt.req)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected ValidationErrors, got %v", err)
			}
			if _, ok := verrs.Details()[tt.wantField]; !ok {
				t.Errorf("expected error on %s, got %v", tt.wantField, verrs)
			}
		})
	}
}

func TestValidateSlot_RoomOptional(t *testing.T) {
	v := NewReservationValidator(logger.Discard())
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	if err := v.ValidateSlot(&model.Slot{StartTime: start, EndTime: start.Add(time.Hour)}); err != nil {
		t.Errorf("room should be optional in a change request: %v", err)
	}
	if err := v.ValidateSlot(&model.Slot{RoomID: "bad room", StartTime: start, EndTime: start.Add(time.Hour)}); err == nil {
		t.Error("expected invalid room id to fail")
	}
}

func TestValidateCaller(t *testing.T) {
	v := NewReservationValidator(logger.Discard())

	if err := v.ValidateCaller(model.Caller{UserID: "u1", Role: model.RoleAdmin}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := v.ValidateCaller(model.Caller{UserID: "u1", Role: "root"}); err == nil {
		t.Error("expected unknown role to fail")
	}
	if err := v.ValidateCaller(model.Caller{Role: model.RoleUser}); err == nil {
		t.Error("expected missing user id to fail")
	}
}

func TestValidateResponse_ApproveRequired(t *testing.T) {
	v := NewReservationValidator(logger.Discard())
	approve := false

	if err := v.ValidateResponse(&model.ProposalResponse{Approve: &approve}); err != nil {
		t.Errorf("explicit false is a valid answer: %v", err)
	}
	if err := v.ValidateResponse(&model.ProposalResponse{}); err == nil {
		t.Error("expected missing approve flag to fail")
	}
}
