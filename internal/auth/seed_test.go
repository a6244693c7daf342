package auth

import (
	"context"
	"log/slog"
	"testing"
)

func TestSeedAdmin_CreatesOnEmptyDB(t *testing.T) {
	db := testDB(t)
	userRepo := NewUserRepository(db)
	logger := slog.Default()
	ctx := context.Background()

	password, err := SeedAdmin(ctx, userRepo, logger)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}

	if password == "" {
		t.Fatal("SeedAdmin() should return generated password")
	}

	// Verify admin was created
	admin, err := userRepo.GetByUsername(ctx, "admin")
	if err != nil {
		t.Fatalf("GetByUsername(admin) error = %v", err)
	}

	if admin.Role != RoleAdmin {
		t.Errorf("Role = %q, want %q", admin.Role, RoleAdmin)
	}

	if !admin.IsActive {
		t.Error("seed admin should be active")
	}

	// Verify password works
	ok, err := VerifyPassword(password, admin.PasswordHash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("generated password should verify against stored hash")
	}
}

func TestSeedAdmin_SkipsWhenUsersExist(t *testing.T) {
	db := testDB(t)
	userRepo := NewUserRepository(db)
	logger := slog.Default()
	ctx := context.Background()

	// Create an existing user first
	seedTestUser(t, db, "existing", RoleUser)

	password, err := SeedAdmin(ctx, userRepo, logger)
	if err != nil {
		t.Fatalf("SeedAdmin() error = %v", err)
	}

	if password != "" {
		t.Error("SeedAdmin() should return empty password when users exist")
	}

	// Should still only have the one user
	count, _ := userRepo.Count(ctx)
	if count != 1 {
		t.Errorf("Count() = %d, want 1", count)
	}
}

func TestSeedAdmin_UniquePasswords(t *testing.T) {
	db1 := testDB(t)
	db2 := testDB(t)
	logger := slog.Default()
	ctx := context.Background()

	pw1, _ := SeedAdmin(ctx, NewUserRepository(db1), logger)
	pw2, _ := SeedAdmin(ctx, NewUserRepository(db2), logger)

	if pw1 == pw2 {
		t.Error("seed passwords should be unique across instances")
	}
}
