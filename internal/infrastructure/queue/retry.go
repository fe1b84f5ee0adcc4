package queue

import (
	"math"
	"math/rand"
	"time"

	"github.com/formdesk/flowengine/internal/application/port"
)

// RetryStrategy defines exponential backoff retry logic for queued tasks
type RetryStrategy struct {
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Jitter      bool
}

// NewRetryStrategy creates a RetryStrategy with defaults
func NewRetryStrategy() *RetryStrategy {
	return &RetryStrategy{
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  60 * time.Second,
		Jitter:      true,
	}
}

// CalculateBackoff returns the delay before the next attempt.
// Exponential: 1s, 2s, 4s, 8s... capped at MaxBackoff.
func (s *RetryStrategy) CalculateBackoff(attemptNumber int) time.Duration {
	if attemptNumber <= 0 {
		return s.BaseBackoff
	}

	exponent := float64(attemptNumber - 1)
	multiplier := math.Pow(2, exponent)
	backoff := time.Duration(multiplier) * s.BaseBackoff

	if backoff > s.MaxBackoff {
		backoff = s.MaxBackoff
	}

	if s.Jitter {
		// ±10% of backoff
		jitterRange := backoff / 10
		if jitterRange > 0 {
			jitter := time.Duration(rand.Intn(int(jitterRange*2))) - jitterRange
			backoff = backoff + jitter
			if backoff < s.BaseBackoff {
				backoff = s.BaseBackoff
			}
		}
	}

	return backoff
}

// retryBudgets caps attempts per task kind. Notifications and webhooks are
// worth retrying; a report export re-requested by the user is not.
var retryBudgets = map[port.TaskKind]int{
	port.TaskNotifyEmail:     3,
	port.TaskWebhookDelivery: 3,
	port.TaskReportExport:    1,
}

// MaxAttempts returns the retry budget for a task kind
func MaxAttempts(kind port.TaskKind) int {
	if n, ok := retryBudgets[kind]; ok {
		return n
	}
	return 1
}

// taskTimeouts bounds a single attempt per kind
var taskTimeouts = map[port.TaskKind]time.Duration{
	port.TaskNotifyEmail:     15 * time.Second,
	port.TaskWebhookDelivery: 30 * time.Second,
	port.TaskReportExport:    5 * time.Minute,
}

// AttemptTimeout returns the per-attempt timeout for a task kind
func AttemptTimeout(kind port.TaskKind) time.Duration {
	if d, ok := taskTimeouts[kind]; ok {
		return d
	}
	return 30 * time.Second
}
