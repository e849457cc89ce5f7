package retry

import (
	"errors"
	"fmt"

	"github.com/mailops/triaged/pkg/models"
)

// ExhaustedError means every rung of the escalation ladder failed. It
// carries the original request and the complete retry history so the
// caller can route the work to the dead letter queue.
type ExhaustedError struct {
	Request  *models.TriageRequest
	Metadata models.RetryMetadata
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: all strategies exhausted after %d attempts (tried: %s): %v",
		e.Metadata.TotalAttempts, strategyList(e.Metadata.StrategiesUsed), e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// IsExhausted reports whether err is a ladder exhaustion.
func IsExhausted(err error) bool {
	var ex *ExhaustedError
	return errors.As(err, &ex)
}

func strategyList(strategies []models.Strategy) string {
	out := ""
	for i, s := range strategies {
		if i > 0 {
			out += ", "
		}
		out += string(s)
	}
	return out
}
