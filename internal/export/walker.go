package export

import (
	"context"
	"fmt"
	"iter"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tingly-dev/nodepack/internal/repo"
)

// Walker enumerates a subtree in depth-first pre-order
type Walker struct {
	store   repo.Store
	exclude []string
}

func NewWalker(store repo.Store, exclude []string) *Walker {
	return &Walker{store: store, exclude: exclude}
}

type walkFrame struct {
	children []*repo.Node
	next     int
}

// Walk lazily yields root and, unless nodeOnly, every descendant in the
// store's child order. Children are listed one level at a time, so memory
// grows with depth times fan-out rather than with subtree size.
//
// A child that is not exactly one segment below its parent, or that repeats
// a sibling path, yields ErrStructural: this is the check that rules out
// revisiting a node. The walk stops after the first error.
func (w *Walker) Walk(ctx context.Context, root *repo.Node, nodeOnly bool) iter.Seq2[*repo.Node, error] {
	return func(yield func(*repo.Node, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}
		if !yield(root, nil) || nodeOnly {
			return
		}

		var stack []*walkFrame
		push := func(parent *repo.Node) error {
			children, err := w.store.Children(ctx, parent)
			if err != nil {
				return fmt.Errorf("failed to list children of %s: %w", parent.Path, err)
			}
			seen := make(map[string]struct{}, len(children))
			for _, c := range children {
				if repo.IsNonExisting(c) || !repo.IsDirectChild(parent.Path, c.Path) {
					path := "<nil>"
					if c != nil {
						path = c.Path
					}
					return fmt.Errorf("%w: %s listed as child of %s", ErrStructural, path, parent.Path)
				}
				if _, dup := seen[c.Path]; dup {
					return fmt.Errorf("%w: %s listed twice under %s", ErrStructural, c.Path, parent.Path)
				}
				seen[c.Path] = struct{}{}
			}
			stack = append(stack, &walkFrame{children: children})
			return nil
		}

		if err := push(root); err != nil {
			yield(nil, err)
			return
		}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if top.next >= len(top.children) {
				stack = stack[:len(stack)-1]
				continue
			}
			child := top.children[top.next]
			top.next++

			if w.excluded(child.Path) {
				continue
			}
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if !yield(child, nil) {
				return
			}
			if err := push(child); err != nil {
				yield(nil, err)
				return
			}
		}
	}
}

func (w *Walker) excluded(p string) bool {
	for _, pattern := range w.exclude {
		// patterns are validated with the options
		if ok, _ := doublestar.Match(pattern, p); ok {
			return true
		}
	}
	return false
}
