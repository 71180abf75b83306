package notify

import (
	"context"
	"errors"
	"fmt"

	"house-finder/utils"
)

// Target is a named Notifier.
type Target struct {
	Name     string
	Notifier Notifier
}

// Multi fans a message out to every target. Each delivery is retried on
// its own; one failing target does not stop the others.
type Multi struct {
	targets []Target
	retry   *utils.RetryConfig
	logger  *utils.Logger
}

// NewMulti creates a Multi over targets.
func NewMulti(retry *utils.RetryConfig, logger *utils.Logger, targets ...Target) *Multi {
	return &Multi{targets: targets, retry: retry, logger: logger}
}

// Len returns the number of targets.
func (m *Multi) Len() int { return len(m.targets) }

// Notify delivers message to all targets and joins their errors.
func (m *Multi) Notify(ctx context.Context, message string) error {
	var errs []error
	for _, t := range m.targets {
		err := m.retry.Do(ctx, "notify-"+t.Name, func(ctx context.Context) error {
			return t.Notifier.Notify(ctx, message)
		})
		if err != nil {
			m.logger.Warn("[notify] %s delivery failed: %v", t.Name, err)
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
		}
	}
	return errors.Join(errs...)
}
