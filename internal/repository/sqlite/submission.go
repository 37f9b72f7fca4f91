package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/debugging-platform/internal/model"
	"github.com/sakif/debugging-platform/internal/repository"
)

var _ repository.SubmissionRepository = (*SubmissionDB)(nil)

// SubmissionDB stores graded attempts in the submissions table.
type SubmissionDB struct {
	conn *sql.DB
}

// Create inserts a submission and fills in its ID and SubmittedAt.
func (s *SubmissionDB) Create(ctx context.Context, sub *model.Submission) error {
	sub.ID = xid.New().String()
	sub.SubmittedAt = time.Now().UTC()

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO submissions
		   (id, user_id, test_id, code, output, error_message, error_kind, success, elapsed_seconds, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sub.ID,
		sub.UserID,
		sub.TestID,
		sub.Code,
		sub.Output,
		sub.ErrorMessage,
		sub.ErrorKind,
		sub.Success,
		sub.ElapsedSeconds,
		sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting submission for user %s: %w", sub.UserID, err)
	}
	return nil
}

// ListByUser returns a page of the user's submissions, newest first.
//
// LIMIT/OFFSET pagination:
// page 3 with 20 items per page → LIMIT 20 OFFSET 40
func (s *SubmissionDB) ListByUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Submission, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20 // Default page size
	}
	if limit > 100 {
		limit = 100
	}
	offset := max(opts.Offset, 0)

	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, user_id, test_id, code, output, error_message, error_kind, success, elapsed_seconds, submitted_at
		 FROM submissions
		 WHERE user_id = ?
		 ORDER BY submitted_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing submissions: %w", err)
	}
	// CRITICAL: always close rows when done!
	defer rows.Close()

	subs := make([]model.Submission, 0, limit)
	for rows.Next() {
		var sub model.Submission
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.TestID, &sub.Code, &sub.Output,
			&sub.ErrorMessage, &sub.ErrorKind, &sub.Success, &sub.ElapsedSeconds,
			&sub.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning submission row: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating submissions: %w", err)
	}
	return subs, nil
}
