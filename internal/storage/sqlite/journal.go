package sqlite

import (
	"context"
	"database/sql"
	"time"
)

const defaultRecentLimit = 20

// Attempt is one reporter's try at delivering one dispatched report.
type Attempt struct {
	ID         int64
	DispatchID string
	Reporter   string
	Target     string
	Kind       string
	Status     int
	Error      string
	Message    string
	CreatedAt  time.Time
}

func (s *Store) RecordAttempt(ctx context.Context, a Attempt) (int64, error) {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery(dispatch_id, reporter, target, kind, status, error, message, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		a.DispatchID, a.Reporter, nilIfEmpty(a.Target), a.Kind, a.Status,
		nilIfEmpty(a.Error), a.Message, created.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentAttempts returns up to limit attempts, newest first. A non-positive
// limit selects the default.
func (s *Store) RecentAttempts(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, dispatch_id, reporter, target, kind, status, error, message, created_at
		  FROM delivery
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a              Attempt
			target, errMsg sql.NullString
			created        int64
		)
		if scanErr := rows.Scan(
			&a.ID, &a.DispatchID, &a.Reporter, &target, &a.Kind,
			&a.Status, &errMsg, &a.Message, &created,
		); scanErr != nil {
			return nil, scanErr
		}
		a.Target = target.String
		a.Error = errMsg.String
		a.CreatedAt = time.Unix(created, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}
