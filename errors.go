package forestkv

import (
	"errors"
	"fmt"

	"github.com/forestkv/forestkv/codec"
	"github.com/forestkv/forestkv/diagnostic"
	"github.com/forestkv/forestkv/reader"
	"github.com/forestkv/forestkv/writer"
)

var (
	// ErrNeedBuild is returned when a search or read-accessor is attempted
	// on a tag that has never had build() called.
	ErrNeedBuild = errors.New("forestkv: index has not been built")

	// ErrInvalidVector is returned when a vector is empty or has a
	// non-finite component.
	ErrInvalidVector = errors.New("forestkv: invalid vector")

	// ErrDimensionMismatch is returned when a vector's length does not
	// match the index's bound dimension.
	ErrDimensionMismatch = errors.New("forestkv: dimension mismatch")

	// ErrMetricMismatch is returned when a tag is reopened with a metric
	// different from the one it was created with.
	ErrMetricMismatch = errors.New("forestkv: metric mismatch")

	// ErrItemNotFound is returned when an operation names an item id that
	// is not in the active set.
	ErrItemNotFound = errors.New("forestkv: item not found")

	// ErrCorruptNode is returned when a stored node fails to decode.
	ErrCorruptNode = errors.New("forestkv: corrupt node")

	// ErrInvalidState is returned when a writer operation is attempted from
	// a lifecycle state that does not permit it.
	ErrInvalidState = errors.New("forestkv: invalid writer state")
)

// translateError maps the internal writer/reader/codec error taxonomy onto
// this package's public sentinels, the same unification vecgo's root
// package performs over its engine/index error types.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reader.ErrNeedBuild), errors.Is(err, diagnostic.ErrNeedBuild):
		return fmt.Errorf("%w: %w", ErrNeedBuild, err)
	case errors.Is(err, reader.ErrItemNotFound):
		return fmt.Errorf("%w: %w", ErrItemNotFound, err)
	case errors.Is(err, reader.ErrDimensionMismatch), errors.Is(err, writer.ErrDimensionMismatch):
		return fmt.Errorf("%w: %w", ErrDimensionMismatch, err)
	case errors.Is(err, writer.ErrMetricMismatch):
		return fmt.Errorf("%w: %w", ErrMetricMismatch, err)
	case errors.Is(err, writer.ErrInvalidVector):
		return fmt.Errorf("%w: %w", ErrInvalidVector, err)
	case errors.Is(err, writer.ErrInvalidState):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	case errors.Is(err, codec.ErrCorrupt):
		return fmt.Errorf("%w: %w", ErrCorruptNode, err)
	default:
		return err
	}
}
