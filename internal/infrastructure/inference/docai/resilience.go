package docai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/dkotenko/document-intake/internal/core/domain"
	"github.com/dkotenko/document-intake/internal/infrastructure/resilience"
)

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "docai status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("docai %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("docai %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

// CallTimeoutError marks an attempt that hit the per-call deadline while the
// caller's context was still alive, so a fresh attempt is allowed.
type CallTimeoutError struct {
	Operation string
	Err       error
}

func (e *CallTimeoutError) Error() string {
	if e == nil {
		return "docai call timeout"
	}
	return fmt.Sprintf("docai %s call timeout: %v", e.Operation, e.Err)
}

func (e *CallTimeoutError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// call runs one provider round trip under the rate limiter, the per-call
// timeout and the retry/breaker executor, then collapses whatever failed into
// a *domain.InferenceError.
func (c *Client) call(ctx context.Context, operation, path string, payload any, out any) error {
	err := c.exec.Execute(ctx, operation, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		err := c.postJSON(callCtx, path, payload, out, operation)
		if err != nil && callCtx.Err() != nil && ctx.Err() == nil {
			return &CallTimeoutError{Operation: operation, Err: err}
		}
		return err
	}, classifyProviderError)
	return wrapProviderError(operation, err)
}

func classifyProviderError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}

	var timeoutErr *CallTimeoutError
	if errors.As(err, &timeoutErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if kindForStatus(statusErr.StatusCode) == domain.FailureTransient {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

// wrapProviderError maps a raw transport failure onto the closed failure
// taxonomy. Decode and marshal failures land on malformed, everything that a
// later attempt could fix lands on transient.
func wrapProviderError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var infErr *domain.InferenceError
	if errors.As(err, &infErr) {
		return err
	}

	kind := domain.FailureMalformed
	var timeoutErr *CallTimeoutError
	var statusErr *HTTPStatusError
	var netErr net.Error
	switch {
	case resilience.IsCircuitOpen(err):
		kind = domain.FailureTransient
	case errors.As(err, &timeoutErr):
		kind = domain.FailureTransient
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		kind = domain.FailureTransient
	case errors.As(err, &statusErr):
		kind = kindForStatus(statusErr.StatusCode)
	case errors.As(err, &netErr):
		kind = domain.FailureTransient
	}
	return domain.NewInferenceError(kind, operation, err)
}

func kindForStatus(statusCode int) domain.FailureKind {
	switch statusCode {
	case http.StatusNotImplemented, http.StatusForbidden:
		return domain.FailureUnavailable
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return domain.FailureTransient
	}
	if statusCode >= 500 {
		return domain.FailureTransient
	}
	return domain.FailureMalformed
}
