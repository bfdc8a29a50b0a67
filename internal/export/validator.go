package export

import (
	"context"
	"fmt"

	"github.com/tingly-dev/nodepack/internal/repo"
)

// Validator confirms that a requested path is backed by a node
type Validator struct {
	store repo.Store
}

func NewValidator(store repo.Store) *Validator {
	return &Validator{store: store}
}

// Validate resolves p. Absence and the non-existing placeholder both fail
// with ErrNotFound.
func (v *Validator) Validate(ctx context.Context, p string) (*repo.Node, error) {
	if !repo.IsAbs(p) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, p)
	}
	node, err := v.store.Resolve(ctx, repo.CleanPath(p))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
	}
	if repo.IsNonExisting(node) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return node, nil
}
