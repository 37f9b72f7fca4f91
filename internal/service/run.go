package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/debugging-platform/internal/apperror"
	"github.com/sakif/debugging-platform/internal/executor"
	"github.com/sakif/debugging-platform/internal/metrics"
	"github.com/sakif/debugging-platform/internal/model"
	"github.com/sakif/debugging-platform/internal/ratelimit"
	"github.com/sakif/debugging-platform/internal/repository"
	"github.com/sakif/debugging-platform/internal/safety"
	"github.com/sakif/debugging-platform/internal/security"
)

// MaxTestIDLength bounds the test identifier accepted on submit.
const MaxTestIDLength = 64

// RunService is the code-run and submit pipeline:
//
//	session → rate limit (code_run) → safety scan → sandbox → persist (submit only)
//
// The session has already been validated by the auth middleware; the
// service only needs its owner and role.
type RunService struct {
	limiter     *ratelimit.Limiter
	validator   *safety.Validator
	runner      executor.Runner
	submissions repository.SubmissionRepository
	metrics     *metrics.Sink
	logger      *slog.Logger
}

// NewRunService wires the pipeline.
func NewRunService(
	limiter *ratelimit.Limiter,
	validator *safety.Validator,
	runner executor.Runner,
	submissions repository.SubmissionRepository,
	sink *metrics.Sink,
	logger *slog.Logger,
) *RunService {
	return &RunService{
		limiter:     limiter,
		validator:   validator,
		runner:      runner,
		submissions: submissions,
		metrics:     sink,
		logger:      logger,
	}
}

// Validate screens code without running it. It is not rate limited as a
// code run since nothing executes.
func (s *RunService) Validate(sess security.Session, code string) safety.Verdict {
	return s.validator.ScanAs(sess.Owner, code)
}

// Run executes code for the session owner and returns the result.
// A rate-limit denial is ErrRateLimited; a validator rejection is
// ErrValidation on field "code". Execution failures are not errors:
// they are reported inside the result.
func (s *RunService) Run(ctx context.Context, sess security.Session, code string) (res *executor.ExecutionResult, err error) {
	err = track(s.metrics, "run_code", func() error {
		if err := s.admit(sess, code); err != nil {
			return err
		}
		res = s.runner.Run(ctx, executor.ExecutionRequest{Code: code, Actor: sess.Owner})
		return nil
	})
	return res, err
}

// Submit runs code against a test and stores the attempt. Rejected code
// (rate limit or validator) is not stored.
func (s *RunService) Submit(ctx context.Context, sess security.Session, testID, code string) (sub *model.Submission, err error) {
	err = track(s.metrics, "submit_code", func() error {
		sub, err = s.submit(ctx, sess, testID, code)
		return err
	})
	return sub, err
}

func (s *RunService) submit(ctx context.Context, sess security.Session, testID, code string) (*model.Submission, error) {
	testID = security.SanitizeInput(testID, MaxTestIDLength)
	if testID == "" {
		return nil, apperror.ValidationFailed("testId", "test id is required")
	}

	if err := s.admit(sess, code); err != nil {
		return nil, err
	}

	res := s.runner.Run(ctx, executor.ExecutionRequest{Code: code, Actor: sess.Owner})

	sub := &model.Submission{
		UserID:         sess.Owner,
		TestID:         testID,
		Code:           code,
		Output:         res.Stdout,
		ErrorMessage:   res.Stderr,
		ErrorKind:      string(res.ErrorKind),
		Success:        res.Success,
		ElapsedSeconds: res.ElapsedSeconds,
	}
	// The run already happened; a cancelled request must not lose it.
	if err := s.submissions.Create(context.WithoutCancel(ctx), sub); err != nil {
		return nil, fmt.Errorf("service/run: saving submission: %w", err)
	}

	s.logger.Info("submission stored",
		slog.String("userID", sess.Owner),
		slog.String("testID", testID),
		slog.Bool("success", sub.Success),
	)
	return sub, nil
}

// History lists the session owner's submissions, newest first.
func (s *RunService) History(ctx context.Context, sess security.Session, opts repository.ListOptions) ([]model.Submission, error) {
	subs, err := s.submissions.ListByUser(ctx, sess.Owner, opts)
	if err != nil {
		return nil, fmt.Errorf("service/run: listing submissions: %w", err)
	}
	return subs, nil
}

// admit applies the rate limit then the safety scan.
func (s *RunService) admit(sess security.Session, code string) error {
	if sess.Owner == "" {
		return apperror.Unauthorized("valid authentication required")
	}

	decision := s.limiter.Check(sess.Owner, ratelimit.ClassCodeRun)
	if !decision.Allowed {
		return apperror.RateLimited(s.limiter.RetryAfter(decision))
	}

	verdict := s.validator.ScanAs(sess.Owner, code)
	if !verdict.Allowed {
		return apperror.ValidationFailed("code", "Security Error: "+verdict.Reason)
	}
	return nil
}
