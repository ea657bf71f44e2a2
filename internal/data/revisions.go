package data

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"eventsite/internal/logger"
)

var ErrRevisionNotFound = errors.New("revision not found")

// Revision is one saved version of the configuration file.
type Revision struct {
	ID        int64
	CreatedAt time.Time
	Action    string
	Checksum  string
	Content   string
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// RecordRevision stores a copy of the saved configuration.
func RecordRevision(action string, content []byte) (int64, error) {
	res, err := ExecDB(
		`INSERT INTO config_revisions (created_at, action, checksum, content) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(TimeFormat), action, checksum(content), string(content),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RevisionHook adapts RecordRevision to a config save hook. Failures are
// logged; history is best effort and never blocks an edit.
func RevisionHook(action string, content []byte) {
	id, err := RecordRevision(action, content)
	if err != nil {
		logger.LogError("Failed to record config revision (%s): %v", action, err)
		return
	}
	logger.LogDebug("Recorded config revision %d (%s)", id, action)
}

// ListRevisions returns the newest revisions first, without content.
func ListRevisions(limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Revision
	err := queryDB(func(rows *sql.Rows) error {
		for rows.Next() {
			var (
				r       Revision
				created string
			)
			if err := rows.Scan(&r.ID, &created, &r.Action, &r.Checksum); err != nil {
				return fmt.Errorf("scan revision: %w", err)
			}
			t, err := time.Parse(TimeFormat, created)
			if err != nil {
				return fmt.Errorf("parse revision time: %w", err)
			}
			r.CreatedAt = t
			out = append(out, r)
		}
		return nil
	}, `SELECT id, created_at, action, checksum FROM config_revisions ORDER BY id DESC LIMIT ?`, limit)
	return out, err
}

// GetRevision loads a single revision including its content.
func GetRevision(id int64) (*Revision, error) {
	var found *Revision
	err := queryDB(func(rows *sql.Rows) error {
		if !rows.Next() {
			return nil
		}
		var (
			r       Revision
			created string
		)
		if err := rows.Scan(&r.ID, &created, &r.Action, &r.Checksum, &r.Content); err != nil {
			return fmt.Errorf("scan revision: %w", err)
		}
		t, err := time.Parse(TimeFormat, created)
		if err != nil {
			return fmt.Errorf("parse revision time: %w", err)
		}
		r.CreatedAt = t
		found = &r
		return nil
	}, `SELECT id, created_at, action, checksum, content FROM config_revisions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %d", ErrRevisionNotFound, id)
	}
	return found, nil
}

// PruneRevisions deletes all but the newest keep revisions.
func PruneRevisions(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	const stmt = `
		DELETE FROM config_revisions
		WHERE id NOT IN (
			SELECT id FROM config_revisions ORDER BY id DESC LIMIT ?
		)`

	result, err := ExecDB(stmt, keep)
	if err != nil {
		return 0, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}
