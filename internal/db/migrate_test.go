package db

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
)

func openUnmigrated(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parking.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("OpenDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, path
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n); err != nil {
		t.Fatalf("failed to query sqlite_master: %v", err)
	}
	return n > 0
}

func TestLatestMigrationVersion_Embedded(t *testing.T) {
	v, err := LatestMigrationVersion(MigrationsFS())
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if v != 2 {
		t.Errorf("latest embedded version = %d, want 2", v)
	}
}

func TestLatestMigrationVersion_Errors(t *testing.T) {
	if _, err := LatestMigrationVersion(fstest.MapFS{}); err == nil {
		t.Error("expected error for empty migrations")
	}
	badNames := fstest.MapFS{"init.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")}}
	if _, err := LatestMigrationVersion(badNames); err == nil {
		t.Error("expected error for unversioned migration file")
	}
}

func TestMigrateUpDownTo(t *testing.T) {
	db, _ := openUnmigrated(t)
	migrations := MigrationsFS()

	v, dirty, err := db.MigrateVersion(migrations)
	if err != nil || v != 0 || dirty {
		t.Fatalf("fresh MigrateVersion = %d, %v, %v; want 0, false, nil", v, dirty, err)
	}

	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if !tableExists(t, db, "parking_sessions") || !tableExists(t, db, "occupancy_checkpoints") {
		t.Fatal("expected both tables after MigrateUp")
	}
	// Second run is a no-op.
	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("repeat MigrateUp failed: %v", err)
	}

	if err := db.MigrateDown(migrations); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if tableExists(t, db, "occupancy_checkpoints") {
		t.Error("occupancy_checkpoints should be dropped after one step down")
	}
	if v, _, _ := db.MigrateVersion(migrations); v != 1 {
		t.Errorf("version after down = %d, want 1", v)
	}

	if err := db.MigrateTo(migrations, 2); err != nil {
		t.Fatalf("MigrateTo(2) failed: %v", err)
	}
	if v, _, _ := db.MigrateVersion(migrations); v != 2 {
		t.Errorf("version after MigrateTo = %d, want 2", v)
	}
}

func TestMigrateForce(t *testing.T) {
	db, _ := openUnmigrated(t)
	migrations := MigrationsFS()

	if err := db.MigrateForce(migrations, 1); err != nil {
		t.Fatalf("MigrateForce failed: %v", err)
	}
	v, dirty, err := db.MigrateVersion(migrations)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if v != 1 || dirty {
		t.Errorf("after force got version %d dirty %v, want 1 false", v, dirty)
	}
	if tableExists(t, db, "parking_sessions") {
		t.Error("force must not run migrations")
	}
}

func TestMigrateUp_BrokenMigration(t *testing.T) {
	db, _ := openUnmigrated(t)
	broken := fstest.MapFS{
		"000001_broken.up.sql":   &fstest.MapFile{Data: []byte("CREATE TABLE;")},
		"000001_broken.down.sql": &fstest.MapFile{Data: []byte("SELECT 1;")},
	}
	if err := db.MigrateUp(broken); err == nil {
		t.Fatal("expected error from invalid migration")
	}
	_, dirty, err := db.MigrateVersion(broken)
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if !dirty {
		t.Error("expected dirty state after failed migration")
	}
}

func TestGetMigrationStatus(t *testing.T) {
	db, _ := openUnmigrated(t)
	migrations := MigrationsFS()

	status, err := db.GetMigrationStatus(migrations)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if status.CurrentVersion != 0 || status.LatestVersion != 2 || status.Pending() != 2 {
		t.Errorf("fresh status = %+v, pending %d", status, status.Pending())
	}

	if err := db.MigrateUp(migrations); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	status, err = db.GetMigrationStatus(migrations)
	if err != nil {
		t.Fatalf("GetMigrationStatus failed: %v", err)
	}
	if !status.TableExists || status.CurrentVersion != 2 || status.Pending() != 0 {
		t.Errorf("migrated status = %+v", status)
	}
}

func TestRunMigrateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parking.db")

	run := func(input string, args ...string) (string, error) {
		var out bytes.Buffer
		err := RunMigrateCommand(args, path, strings.NewReader(input), &out)
		return out.String(), err
	}

	out, err := run("", "status")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if !strings.Contains(out, "2 version(s) behind") {
		t.Errorf("status output missing pending notice:\n%s", out)
	}

	if out, err = run("", "up"); err != nil {
		t.Fatalf("up failed: %v", err)
	}
	if !strings.Contains(out, "Current version: 2") {
		t.Errorf("up output:\n%s", out)
	}

	if out, err = run("", "down"); err != nil {
		t.Fatalf("down failed: %v", err)
	}
	if !strings.Contains(out, "Current version: 1") {
		t.Errorf("down output:\n%s", out)
	}

	if _, err = run("", "version", "2"); err != nil {
		t.Fatalf("version failed: %v", err)
	}

	if out, err = run("n\n", "force", "1"); err != nil {
		t.Fatalf("aborted force failed: %v", err)
	}
	if !strings.Contains(out, "Aborted") {
		t.Errorf("expected abort, got:\n%s", out)
	}

	if out, err = run("y\n", "force", "1"); err != nil {
		t.Fatalf("force failed: %v", err)
	}
	if !strings.Contains(out, "forced to 1") {
		t.Errorf("force output:\n%s", out)
	}

	if out, err = run(""); err == nil || !strings.Contains(out, "Usage: parking migrate") {
		t.Errorf("missing action: err=%v out=%q", err, out)
	}
	if _, err = run("", "sideways"); err == nil {
		t.Error("expected error for unknown action")
	}
	if _, err = run("", "version"); err == nil {
		t.Error("expected usage error for version without number")
	}
	if _, err = run("", "version", "two"); err == nil {
		t.Error("expected error for non-numeric version")
	}
	if _, err = run("", "help"); err != nil {
		t.Errorf("help should succeed, got %v", err)
	}
}
