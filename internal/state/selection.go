package state

import (
	"database/sql"
	"errors"
	"fmt"
)

// SetCurrent marks name as the current environment.
// Returns ErrEnvironmentNotFound if no environment has that name.
func (db *DB) SetCurrent(name string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRow("SELECT 1 FROM environments WHERE name = ?", name).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEnvironmentNotFound
		}
		return fmt.Errorf("failed to look up environment: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO selection (id, name) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`, name)
	if err != nil {
		return fmt.Errorf("failed to set current environment: %w", err)
	}
	return tx.Commit()
}

// Current returns the name of the current environment, or "" if none is selected.
func (db *DB) Current() (string, error) {
	var name sql.NullString
	err := db.QueryRow("SELECT name FROM selection WHERE id = 1").Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get current environment: %w", err)
	}
	return name.String, nil
}
