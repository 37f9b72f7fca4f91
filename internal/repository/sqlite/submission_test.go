package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/debugging-platform/internal/model"
	"github.com/sakif/debugging-platform/internal/repository"
)

func createTestSubmission(t *testing.T, s *SubmissionDB, userID, testID string, success bool) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		UserID:         userID,
		TestID:         testID,
		Code:           "print(1)",
		Output:         "1\n",
		Success:        success,
		ElapsedSeconds: 0.05,
	}
	if !success {
		sub.ErrorKind = "zero_division"
		sub.ErrorMessage = "Zero Division Error: division by zero"
	}
	if err := s.Create(context.Background(), sub); err != nil {
		t.Fatalf("failed to create test submission: %v", err)
	}
	return sub
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestSubmissionCreate(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db.Users(), "sub@example.com")

	sub := createTestSubmission(t, db.Submissions(), user.ID, "test-1", true)

	if sub.ID == "" {
		t.Error("Create() did not set sub.ID")
	}
	if sub.SubmittedAt.IsZero() {
		t.Error("Create() did not set sub.SubmittedAt")
	}
}

func TestSubmissionCreate_UnknownUser(t *testing.T) {
	db := newTestDB(t)

	// Foreign keys are on, so an orphan submission is rejected.
	err := db.Submissions().Create(context.Background(), &model.Submission{UserID: "ghost", TestID: "t", Code: "x"})
	if err == nil {
		t.Fatal("Create() should fail for a user that does not exist")
	}
}

// =========================================================================
// LIST TESTS
// =========================================================================

func TestSubmissionListByUser(t *testing.T) {
	db := newTestDB(t)
	alice := createTestUser(t, db.Users(), "alice@example.com")
	bob := createTestUser(t, db.Users(), "bob@example.com")
	subs := db.Submissions()

	first := createTestSubmission(t, subs, alice.ID, "test-1", false)
	second := createTestSubmission(t, subs, alice.ID, "test-1", true)
	createTestSubmission(t, subs, bob.ID, "test-1", true)

	got, err := subs.ListByUser(context.Background(), alice.ID, repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	// Newest first. Same-timestamp rows fall back to the time-ordered xid.
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("order = [%s %s], want [%s %s]", got[0].ID, got[1].ID, second.ID, first.ID)
	}
	if got[1].ErrorKind != "zero_division" || got[1].Success {
		t.Errorf("failed submission round-tripped as %+v", got[1])
	}
	if got[0].ElapsedSeconds != 0.05 {
		t.Errorf("ElapsedSeconds = %v, want 0.05", got[0].ElapsedSeconds)
	}
}

func TestSubmissionListByUser_Pagination(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db.Users(), "pages@example.com")
	subs := db.Submissions()
	for range 5 {
		createTestSubmission(t, subs, user.ID, "test-2", true)
	}

	page, err := subs.ListByUser(context.Background(), user.ID, repository.ListOptions{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if len(page) != 1 {
		t.Errorf("len = %d, want 1", len(page))
	}
}

func TestSubmissionListByUser_Empty(t *testing.T) {
	db := newTestDB(t)

	got, err := db.Submissions().ListByUser(context.Background(), "nobody", repository.ListOptions{})
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("ListByUser() = %v, want empty non-nil slice", got)
	}
}
