package db

import (
	"path/filepath"
	"testing"
)

// Tests run from the package directory; migrations live at the repo root.
const testMigrationsDir = "../../migrations"

func openBare(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "migrate-test.db"))
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateUpAndVersion(t *testing.T) {
	db := openBare(t)

	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}

	version, dirty, err := db.MigrateVersion(testMigrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if dirty {
		t.Error("database dirty after clean MigrateUp")
	}
	latest, err := GetLatestMigrationVersion(testMigrationsDir)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion: %v", err)
	}
	if version != latest {
		t.Errorf("version = %d, want latest %d", version, latest)
	}

	// The migrated schema must accept alerts.
	if err := db.InsertAlert(&Alert{ViolationType: "WRONG_WAY", Confidence: 0.8, ObjectID: 1}); err != nil {
		t.Errorf("InsertAlert on migrated schema: %v", err)
	}

	// Up again is a no-op.
	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Errorf("second MigrateUp: %v", err)
	}
}

func TestMigrateDownStepsBack(t *testing.T) {
	db := openBare(t)
	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	before, _, err := db.MigrateVersion(testMigrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}

	if err := db.MigrateDown(testMigrationsDir); err != nil {
		t.Fatalf("MigrateDown: %v", err)
	}
	after, dirty, err := db.MigrateVersion(testMigrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion after down: %v", err)
	}
	if dirty || after != before-1 {
		t.Errorf("version after down = %d (dirty %v), want %d", after, dirty, before-1)
	}
}

func TestMigrateVersionFreshDatabase(t *testing.T) {
	db := openBare(t)
	version, dirty, err := db.MigrateVersion(testMigrationsDir)
	if err != nil {
		t.Fatalf("MigrateVersion: %v", err)
	}
	if version != 0 || dirty {
		t.Errorf("fresh db version = (%d, %v), want (0, false)", version, dirty)
	}
}

func TestCheckMigrations(t *testing.T) {
	db := openBare(t)
	if err := db.CheckMigrations(testMigrationsDir); err == nil {
		t.Error("fresh database passed CheckMigrations")
	}
	if err := db.MigrateUp(testMigrationsDir); err != nil {
		t.Fatalf("MigrateUp: %v", err)
	}
	if err := db.CheckMigrations(testMigrationsDir); err != nil {
		t.Errorf("CheckMigrations after up: %v", err)
	}
}

func TestGetLatestMigrationVersion(t *testing.T) {
	latest, err := GetLatestMigrationVersion(testMigrationsDir)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion: %v", err)
	}
	if latest != 2 {
		t.Errorf("latest = %d, want 2", latest)
	}

	if _, err := GetLatestMigrationVersion(t.TempDir()); err == nil {
		t.Error("empty migrations directory accepted")
	}
}
