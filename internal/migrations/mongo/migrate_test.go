package mongo

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"reservo/internal/reservations/lock"
	"reservo/internal/reservations/repository"
	"reservo/pkg/model"
)

func TestCollections_CoverEveryStore(t *testing.T) {
	want := map[string]bool{
		repository.ReservationsCollectionName: false,
		repository.ProposalsCollectionName:    false,
		lock.LockCollectionName:               false,
		repository.RoomGuardsCollectionName:   false,
	}
	for _, def := range Collections() {
		if _, ok := want[def.Name]; !ok {
			t.Errorf("unexpected collection %q", def.Name)
			continue
		}
		want[def.Name] = true
		if def.Validator == nil {
			t.Errorf("%s: validator missing", def.Name)
		}
		if len(def.Indexes) == 0 && def.Name != repository.RoomGuardsCollectionName {
			t.Errorf("%s: indexes missing", def.Name)
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("collection %q not migrated", name)
		}
	}
}

func TestReservationsIndexes_UniqueConfirmedStart(t *testing.T) {
	idx := ReservationsIndexes[0]

	keys, ok := idx.Keys.(bson.D)
	if !ok || len(keys) != 2 || keys[0].Key != "room_id" || keys[1].Key != "start_time" {
		t.Fatalf("unexpected keys %v", idx.Keys)
	}
	if idx.Options == nil || idx.Options.Unique == nil || !*idx.Options.Unique {
		t.Fatal("index must be unique")
	}
	filter, ok := idx.Options.PartialFilterExpression.(bson.M)
	if !ok || filter["status"] != model.ReservationConfirmed {
		t.Errorf("partial filter = %v, want confirmed only", idx.Options.PartialFilterExpression)
	}
}

func TestReservationLocksIndexes_TTL(t *testing.T) {
	idx := ReservationLocksIndexes[0]
	if idx.Options == nil || idx.Options.ExpireAfterSeconds == nil || *idx.Options.ExpireAfterSeconds != 0 {
		t.Fatalf("lock index must expire documents at expires_at, got %+v", idx.Options)
	}
}
