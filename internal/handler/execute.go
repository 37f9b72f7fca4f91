package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/debugging-platform/internal/apperror"
	"github.com/sakif/debugging-platform/internal/auth"
	"github.com/sakif/debugging-platform/internal/executor"
	"github.com/sakif/debugging-platform/internal/model"
	"github.com/sakif/debugging-platform/internal/repository"
	"github.com/sakif/debugging-platform/internal/safety"
	"github.com/sakif/debugging-platform/internal/security"
)

// CodeRunner is the part of service.RunService the execute handler uses.
type CodeRunner interface {
	Validate(sess security.Session, code string) safety.Verdict
	Run(ctx context.Context, sess security.Session, code string) (*executor.ExecutionResult, error)
	Submit(ctx context.Context, sess security.Session, testID, code string) (*model.Submission, error)
	History(ctx context.Context, sess security.Session, opts repository.ListOptions) ([]model.Submission, error)
}

// ExecuteHandler handles code validation, runs and graded submissions.
// Every route is behind RequireSession.
type ExecuteHandler struct {
	runs   CodeRunner
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(runs CodeRunner, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		runs:   runs,
		logger: logger,
	}
}

type codeRequest struct {
	Code string `json:"code"`
}

// HandleValidate scans code without running it.
//
// HTTP: POST /api/validate
// REQUEST BODY: {"code": "print('hi')"}
// RESPONSE: {"allowed": false, "reason": "Dangerous operation detected: eval(", "pattern": "eval("}
func (h *ExecuteHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	sess, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.runs.Validate(sess, req.Code))
}

// HandleRun executes code in the sandbox.
//
// HTTP: POST /api/run
// REQUEST BODY: {"code": "print('hi')"}
//
// A failed program is still a 200: the failure is in the result's
// errorKind and stderr. Only a rejected request (rate limit, unsafe code)
// is an HTTP error.
func (h *ExecuteHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	sess, req, ok := h.parse(w, r)
	if !ok {
		return
	}

	result, err := h.runs.Run(r.Context(), sess, req.Code)
	if err != nil {
		logFailure(h.logger, "run rejected", err, slog.String("userID", sess.Owner))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleSubmit runs code against a test and stores the attempt.
//
// HTTP: POST /api/tests/{testID}/submit
// REQUEST BODY: {"code": "..."}
func (h *ExecuteHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, req, ok := h.parse(w, r)
	if !ok {
		return
	}

	sub, err := h.runs.Submit(r.Context(), sess, chi.URLParam(r, "testID"), req.Code)
	if err != nil {
		logFailure(h.logger, "submit failed", err, slog.String("userID", sess.Owner))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, sub)
}

// HandleHistory lists the caller's submissions, newest first.
//
// HTTP: GET /api/submissions?limit=20&offset=0
func (h *ExecuteHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return
	}

	opts, err := listOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	subs, err := h.runs.History(r.Context(), sess, opts)
	if err != nil {
		logFailure(h.logger, "listing submissions failed", err, slog.String("userID", sess.Owner))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subs)
}

// parse pulls the session and a non-empty code body out of the request,
// writing the error response itself when it returns false.
func (h *ExecuteHandler) parse(w http.ResponseWriter, r *http.Request) (security.Session, codeRequest, bool) {
	var req codeRequest

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return sess, req, false
	}

	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid code request body", slog.String("error", err.Error()))
		writeError(w, err)
		return sess, req, false
	}

	if req.Code == "" {
		writeError(w, apperror.ValidationFailed("code", "code cannot be empty"))
		return sess, req, false
	}

	return sess, req, true
}

// listOptions reads ?limit= and ?offset=. Bounds are left to the repository.
func listOptions(r *http.Request) (repository.ListOptions, error) {
	var opts repository.ListOptions
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, apperror.ValidationFailed("limit", "limit must be a non-negative integer")
		}
		opts.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, apperror.ValidationFailed("offset", "offset must be a non-negative integer")
		}
		opts.Offset = n
	}
	return opts, nil
}
