package lifecycle

import (
	"errors"
	"fmt"

	"github.com/safar/go-storefront/internal/config"
	"github.com/safar/go-storefront/internal/models"
)

var (
	ErrUnknownStatus      = errors.New("unknown order status")
	ErrNoOpTransition     = errors.New("order already has this status")
	ErrBackwardTransition = errors.New("order status cannot move backwards")
)

// Policy decides whether an order may move from one status to another.
type Policy interface {
	Check(from, to models.OrderStatus) error
}

// ForwardOnly accepts moves to a later status, including skipping one.
type ForwardOnly struct{}

func (ForwardOnly) Check(from, to models.OrderStatus) error {
	if err := known(from, to); err != nil {
		return err
	}
	switch {
	case to == from:
		return fmt.Errorf("%w: %s", ErrNoOpTransition, to)
	case to.Rank() < from.Rank():
		return fmt.Errorf("%w: %s to %s", ErrBackwardTransition, from, to)
	}
	return nil
}

// Override accepts any move between known statuses.
type Override struct{}

func (Override) Check(from, to models.OrderStatus) error {
	return known(from, to)
}

func known(statuses ...models.OrderStatus) error {
	for _, s := range statuses {
		if !s.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownStatus, s)
		}
	}
	return nil
}

// PolicyFor maps ORDER_STATUS_POLICY values to a Policy.
func PolicyFor(name string) (Policy, error) {
	switch name {
	case "", config.StatusPolicyForward:
		return ForwardOnly{}, nil
	case config.StatusPolicyOverride:
		return Override{}, nil
	}
	return nil, fmt.Errorf("unknown status policy %q", name)
}

// IsRejection reports whether err is a policy refusal rather than a failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNoOpTransition) || errors.Is(err, ErrBackwardTransition)
}
