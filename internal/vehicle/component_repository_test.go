package vehicle

import (
	"context"
	"errors"
	"testing"
)

func TestComponentRepository_CreateAndGet(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	seedTestComponent(t, db, testVIN, "Engine", "Main engine")

	got, err := repo.Get(ctx, testVIN, "Engine", "Main engine")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TypeName != "Engine" {
		t.Errorf("TypeName = %q, want %q", got.TypeName, "Engine")
	}
	if got.Name != "Main engine" {
		t.Errorf("Name = %q, want %q", got.Name, "Main engine")
	}
	if got.Status != 0 {
		t.Errorf("Status = %v, want 0", got.Status)
	}
}

func TestComponentRepository_Get_CaseInsensitive(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	seedTestComponent(t, db, testVIN, "Engine", "Main engine")

	got, err := repo.Get(ctx, testVIN, "engine", "MAIN ENGINE")
	if err != nil {
		t.Fatalf("Get() with different case error = %v", err)
	}
	if got.TypeName != "Engine" {
		t.Errorf("TypeName = %q, want stored casing %q", got.TypeName, "Engine")
	}
}

func TestComponentRepository_Create_DuplicateKey(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	c := seedTestComponent(t, db, testVIN, "Door", "Front left door")

	dup := &Component{VIN: testVIN, TypeID: c.TypeID, Name: "front LEFT door"}
	err := repo.Create(ctx, dup)
	if !errors.Is(err, ErrComponentExists) {
		t.Errorf("error = %v, want ErrComponentExists (name collation is case-insensitive)", err)
	}
}

func TestComponentRepository_ListFiltered(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	seedTestComponent(t, db, testVIN, "Door", "Front left door")
	seedTestComponent(t, db, testVIN, "Door", "Front right door")
	seedTestComponent(t, db, testVIN, "Engine", "Main engine")

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter matches all", Filter{}, 3},
		{"by type", Filter{TypeName: "Door"}, 2},
		{"by type case-insensitive", Filter{TypeName: "door"}, 2},
		{"by type and name", Filter{TypeName: "Door", Name: "Front left door"}, 1},
		{"no matches", Filter{TypeName: "Window"}, 0},
		{"name without matching type", Filter{TypeName: "Engine", Name: "Front left door"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.ListFiltered(ctx, testVIN, tt.filter)
			if err != nil {
				t.Fatalf("ListFiltered() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ListFiltered() returned %d components, want %d", len(got), tt.want)
			}
		})
	}
}

func TestComponentRepository_ListFiltered_StableOrder(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	seedTestComponent(t, db, testVIN, "Window", "Rear window")
	seedTestComponent(t, db, testVIN, "Door", "Front right door")
	seedTestComponent(t, db, testVIN, "Door", "Front left door")

	got, err := repo.ListFiltered(ctx, testVIN, Filter{})
	if err != nil {
		t.Fatalf("ListFiltered() error = %v", err)
	}

	wantOrder := []string{"Front left door", "Front right door", "Rear window"}
	for i, name := range wantOrder {
		if got[i].Name != name {
			t.Errorf("component[%d].Name = %q, want %q", i, got[i].Name, name)
		}
	}
}

func TestComponentRepository_UpdateStatus(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	c := seedTestComponent(t, db, testVIN, "Window", "Driver window")

	if err := repo.UpdateStatus(ctx, c.ID, 0.7); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	got, _ := repo.GetByID(ctx, c.ID)
	if got.Status != 0.7 {
		t.Errorf("Status = %v, want 0.7", got.Status)
	}

	if err := repo.UpdateStatus(ctx, c.ID, 1.5); !errors.Is(err, ErrInvalidStatus) {
		t.Errorf("error = %v, want ErrInvalidStatus", err)
	}

	if err := repo.UpdateStatus(ctx, "cmp-missing", 0.5); !errors.Is(err, ErrComponentNotFound) {
		t.Errorf("error = %v, want ErrComponentNotFound", err)
	}
}

func TestComponentRepository_DeleteType_InUse(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	c := seedTestComponent(t, db, testVIN, "Engine", "Main engine")

	err := repo.DeleteType(ctx, c.TypeID)
	if !errors.Is(err, ErrTypeInUse) {
		t.Errorf("error = %v, want ErrTypeInUse", err)
	}

	// After the component goes, the type can be removed
	if err := repo.Delete(ctx, c.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := repo.DeleteType(ctx, c.TypeID); err != nil {
		t.Fatalf("DeleteType() after component removal error = %v", err)
	}
}

func TestComponentRepository_VehicleCascade(t *testing.T) {
	db := testDB(t)
	vrepo := NewSQLiteRepository(db)
	crepo := NewComponentRepository(db)
	ctx := context.Background()

	seedTestVehicle(t, db, testVIN, nil)
	c := seedTestComponent(t, db, testVIN, "Engine", "Main engine")

	if err := vrepo.Delete(ctx, testVIN); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := crepo.GetByID(ctx, c.ID)
	if !errors.Is(err, ErrComponentNotFound) {
		t.Errorf("component should cascade with vehicle, error = %v", err)
	}
}

func TestComponentRepository_TypeDuplicate(t *testing.T) {
	db := testDB(t)
	repo := NewComponentRepository(db)
	ctx := context.Background()

	if err := repo.CreateType(ctx, &ComponentType{Name: "Engine"}); err != nil {
		t.Fatalf("CreateType() error = %v", err)
	}

	err := repo.CreateType(ctx, &ComponentType{Name: "engine"})
	if !errors.Is(err, ErrTypeExists) {
		t.Errorf("error = %v, want ErrTypeExists (type names are case-insensitive)", err)
	}
}
