package actuator

import (
	"context"
	"errors"
)

// ErrPreconditionFailed is returned when a host check refuses execution.
var ErrPreconditionFailed = errors.New("execution precondition failed")

// Precondition is a host check that must pass before any plan step runs.
type Precondition func(ctx context.Context) error

func checkPreconditions(ctx context.Context, checks []Precondition) error {
	for _, check := range checks {
		if err := check(ctx); err != nil {
			return errors.Join(ErrPreconditionFailed, err)
		}
	}
	return nil
}
