package service

import (
	"errors"

	"github.com/sakif/debugging-platform/internal/apperror"
	"github.com/sakif/debugging-platform/internal/metrics"
)

// track times op in sink and returns fn's error unchanged. Only failures
// that are not an *apperror.AppError are counted as errors of op: a wrong
// password or a rate-limit denial is an answer, not a fault.
func track(sink *metrics.Sink, op string, fn func() error) error {
	var err error
	_ = sink.Track(op, func() error {
		err = fn()
		var appErr *apperror.AppError
		if err != nil && !errors.As(err, &appErr) {
			return err
		}
		return nil
	})
	return err
}
