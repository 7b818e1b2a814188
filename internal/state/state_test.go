package state

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// openTestDB creates an in-memory database for testing.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(MemoryPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// putEnv stores a ready environment and fails the test on error.
func putEnv(t *testing.T, db *DB, name, path string) {
	t.Helper()
	env := &Environment{
		Name:      name,
		Path:      path,
		Version:   "17.0",
		Status:    StatusReady,
		CreatedAt: time.Now(),
	}
	if err := db.PutEnvironment(env); err != nil {
		t.Fatalf("PutEnvironment(%q) failed: %v", name, err)
	}
}

func names(envs []*Environment) []string {
	out := make([]string, len(envs))
	for i, env := range envs {
		out[i] = env.Name
	}
	return out
}

func TestOpen(t *testing.T) {
	t.Run("in-memory database", func(t *testing.T) {
		db, err := Open(MemoryPath)
		if err != nil {
			t.Fatalf("Open(:memory:) failed: %v", err)
		}
		defer db.Close()

		if db.Path() != MemoryPath {
			t.Errorf("Path() = %q, want %q", db.Path(), MemoryPath)
		}
	})

	t.Run("in-memory databases are private", func(t *testing.T) {
		a := openTestDB(t)
		b := openTestDB(t)
		putEnv(t, a, "17.0", "/srv/a")

		envs, err := b.ListEnvironments(ListOptions{})
		if err != nil {
			t.Fatalf("ListEnvironments() failed: %v", err)
		}
		if len(envs) != 0 {
			t.Errorf("second in-memory database sees %d environments, want 0", len(envs))
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "dirs", "state.db")
		db, err := Open(path)
		if err != nil {
			t.Fatalf("Open(%q) failed: %v", path, err)
		}
		defer db.Close()

		if db.Path() != path {
			t.Errorf("Path() = %q, want %q", db.Path(), path)
		}
	})

	t.Run("state survives reopening", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.db")
		db, err := Open(path)
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		putEnv(t, db, "10.0", "/tmp/e1")
		if err := db.SetCurrent("10.0"); err != nil {
			t.Fatalf("SetCurrent() failed: %v", err)
		}
		db.Close()

		db, err = Open(path)
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		defer db.Close()

		current, err := db.Current()
		if err != nil {
			t.Fatalf("Current() failed: %v", err)
		}
		if current != "10.0" {
			t.Errorf("Current() after reopen = %q, want %q", current, "10.0")
		}
	})
}

func TestDefaultDBPath(t *testing.T) {
	dataHome := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dataHome)

	got, err := DefaultDBPath()
	if err != nil {
		t.Fatalf("DefaultDBPath() failed: %v", err)
	}
	want := filepath.Join(dataHome, "oenv", "state.db")
	if got != want {
		t.Errorf("DefaultDBPath() = %q, want %q", got, want)
	}
}

func TestMigrations(t *testing.T) {
	db := openTestDB(t)

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion() failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("SchemaVersion() = %d, want %d", version, len(migrations))
	}

	// Running migrations again is a no-op
	if err := db.migrate(); err != nil {
		t.Fatalf("second migrate() failed: %v", err)
	}
}

func TestEnvironmentCRUD(t *testing.T) {
	db := openTestDB(t)

	created := time.Now().Truncate(time.Second)
	env := &Environment{
		Name:      "17.0",
		Path:      "/srv/odoo/17",
		Version:   "17.0",
		Status:    StatusProvisioning,
		CreatedAt: created,
	}

	t.Run("Put", func(t *testing.T) {
		if err := db.PutEnvironment(env); err != nil {
			t.Fatalf("PutEnvironment() failed: %v", err)
		}
	})

	t.Run("Get", func(t *testing.T) {
		got, err := db.GetEnvironment("17.0")
		if err != nil {
			t.Fatalf("GetEnvironment() failed: %v", err)
		}
		if got.Path != env.Path {
			t.Errorf("Path = %q, want %q", got.Path, env.Path)
		}
		if got.Version != env.Version {
			t.Errorf("Version = %q, want %q", got.Version, env.Version)
		}
		if got.Status != StatusProvisioning {
			t.Errorf("Status = %q, want %q", got.Status, StatusProvisioning)
		}
		if got.FailedStep != "" {
			t.Errorf("FailedStep = %q, want empty", got.FailedStep)
		}
		if !got.CreatedAt.Equal(created) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
		}
	})

	t.Run("Get not found", func(t *testing.T) {
		_, err := db.GetEnvironment("nonexistent")
		if !errors.Is(err, ErrEnvironmentNotFound) {
			t.Errorf("GetEnvironment(nonexistent) error = %v, want ErrEnvironmentNotFound", err)
		}
	})

	t.Run("SetStatus failed records step", func(t *testing.T) {
		if err := db.SetStatus("17.0", StatusFailed, "fetch", time.Now()); err != nil {
			t.Fatalf("SetStatus() failed: %v", err)
		}
		got, err := db.GetEnvironment("17.0")
		if err != nil {
			t.Fatalf("GetEnvironment() failed: %v", err)
		}
		if got.Status != StatusFailed || got.FailedStep != "fetch" {
			t.Errorf("got status %q step %q, want failed/fetch", got.Status, got.FailedStep)
		}
	})

	t.Run("SetStatus ready clears step", func(t *testing.T) {
		if err := db.SetStatus("17.0", StatusReady, "fetch", time.Now()); err != nil {
			t.Fatalf("SetStatus() failed: %v", err)
		}
		got, err := db.GetEnvironment("17.0")
		if err != nil {
			t.Fatalf("GetEnvironment() failed: %v", err)
		}
		if got.FailedStep != "" {
			t.Errorf("FailedStep = %q, want empty", got.FailedStep)
		}
	})

	t.Run("SetStatus not found", func(t *testing.T) {
		err := db.SetStatus("nonexistent", StatusReady, "", time.Now())
		if !errors.Is(err, ErrEnvironmentNotFound) {
			t.Errorf("SetStatus(nonexistent) error = %v, want ErrEnvironmentNotFound", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		if err := db.DeleteEnvironment("17.0"); err != nil {
			t.Fatalf("DeleteEnvironment() failed: %v", err)
		}
		_, err := db.GetEnvironment("17.0")
		if !errors.Is(err, ErrEnvironmentNotFound) {
			t.Errorf("GetEnvironment() after delete error = %v, want ErrEnvironmentNotFound", err)
		}
	})

	t.Run("Delete not found", func(t *testing.T) {
		err := db.DeleteEnvironment("nonexistent")
		if !errors.Is(err, ErrEnvironmentNotFound) {
			t.Errorf("DeleteEnvironment(nonexistent) error = %v, want ErrEnvironmentNotFound", err)
		}
	})
}

func TestPutEnvironmentValidation(t *testing.T) {
	db := openTestDB(t)

	tests := []struct {
		name    string
		env     *Environment
		wantErr error
	}{
		{
			name:    "empty name",
			env:     &Environment{Name: "  ", Path: "/x", Status: StatusReady, CreatedAt: time.Now()},
			wantErr: ErrEmptyName,
		},
		{
			name:    "invalid status",
			env:     &Environment{Name: "x", Path: "/x", Status: "running", CreatedAt: time.Now()},
			wantErr: ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := db.PutEnvironment(tt.env)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("PutEnvironment() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestListEnvironmentsOrder(t *testing.T) {
	db := openTestDB(t)

	putEnv(t, db, "b", "/srv/b")
	putEnv(t, db, "a", "/srv/a")
	putEnv(t, db, "c", "/srv/c")

	t.Run("insertion order", func(t *testing.T) {
		envs, err := db.ListEnvironments(ListOptions{})
		if err != nil {
			t.Fatalf("ListEnvironments() failed: %v", err)
		}
		got := names(envs)
		want := []string{"b", "a", "c"}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("position %d = %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("overwrite keeps position and replaces path", func(t *testing.T) {
		putEnv(t, db, "b", "/srv/b2")

		envs, err := db.ListEnvironments(ListOptions{})
		if err != nil {
			t.Fatalf("ListEnvironments() failed: %v", err)
		}
		if len(envs) != 3 {
			t.Fatalf("got %d environments, want 3", len(envs))
		}
		if envs[0].Name != "b" || envs[0].Path != "/srv/b2" {
			t.Errorf("first entry = %s %s, want b /srv/b2", envs[0].Name, envs[0].Path)
		}
	})

	t.Run("filter by status", func(t *testing.T) {
		if err := db.SetStatus("a", StatusFailed, "requirements", time.Now()); err != nil {
			t.Fatalf("SetStatus() failed: %v", err)
		}
		envs, err := db.ListEnvironments(ListOptions{Statuses: []EnvironmentStatus{StatusFailed}})
		if err != nil {
			t.Fatalf("ListEnvironments() failed: %v", err)
		}
		if got := names(envs); len(got) != 1 || got[0] != "a" {
			t.Errorf("failed environments = %v, want [a]", got)
		}
	})
}

func TestCurrentSelection(t *testing.T) {
	db := openTestDB(t)

	t.Run("none selected initially", func(t *testing.T) {
		current, err := db.Current()
		if err != nil {
			t.Fatalf("Current() failed: %v", err)
		}
		if current != "" {
			t.Errorf("Current() = %q, want empty", current)
		}
	})

	putEnv(t, db, "10.0", "/tmp/e1")
	putEnv(t, db, "11.0", "/tmp/e2")

	t.Run("set unknown name", func(t *testing.T) {
		err := db.SetCurrent("12.0")
		if !errors.Is(err, ErrEnvironmentNotFound) {
			t.Errorf("SetCurrent(unknown) error = %v, want ErrEnvironmentNotFound", err)
		}
	})

	t.Run("set and read", func(t *testing.T) {
		if err := db.SetCurrent("10.0"); err != nil {
			t.Fatalf("SetCurrent() failed: %v", err)
		}
		if err := db.SetCurrent("11.0"); err != nil {
			t.Fatalf("SetCurrent() failed: %v", err)
		}
		current, err := db.Current()
		if err != nil {
			t.Fatalf("Current() failed: %v", err)
		}
		if current != "11.0" {
			t.Errorf("Current() = %q, want %q", current, "11.0")
		}
	})

	t.Run("deleting another environment keeps selection", func(t *testing.T) {
		if err := db.DeleteEnvironment("10.0"); err != nil {
			t.Fatalf("DeleteEnvironment() failed: %v", err)
		}
		current, err := db.Current()
		if err != nil {
			t.Fatalf("Current() failed: %v", err)
		}
		if current != "11.0" {
			t.Errorf("Current() = %q, want %q", current, "11.0")
		}
	})

	t.Run("deleting the current environment clears selection", func(t *testing.T) {
		if err := db.DeleteEnvironment("11.0"); err != nil {
			t.Fatalf("DeleteEnvironment() failed: %v", err)
		}
		current, err := db.Current()
		if err != nil {
			t.Fatalf("Current() failed: %v", err)
		}
		if current != "" {
			t.Errorf("Current() = %q, want empty", current)
		}
	})
}
