package model

import "time"

// Submission is one graded attempt at a debugging test.
//
// Output and ErrorMessage are what the student saw, already truncated and
// sanitized. ErrorKind is empty for a successful run.
type Submission struct {
	ID             string    `json:"id"             db:"id"`
	UserID         string    `json:"userId"         db:"user_id"`
	TestID         string    `json:"testId"         db:"test_id"`
	Code           string    `json:"code"           db:"code"`
	Output         string    `json:"output"         db:"output"`
	ErrorMessage   string    `json:"errorMessage"   db:"error_message"`
	ErrorKind      string    `json:"errorKind"      db:"error_kind"`
	Success        bool      `json:"success"        db:"success"`
	ElapsedSeconds float64   `json:"elapsedSeconds" db:"elapsed_seconds"`
	SubmittedAt    time.Time `json:"submittedAt"    db:"submitted_at"`
}
