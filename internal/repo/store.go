package repo

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrNoBinary is returned by OpenBinary for a missing binary property
	ErrNoBinary = errors.New("binary property not found")
	// ErrInvalidPath is returned by writers for relative or empty paths
	ErrInvalidPath = errors.New("invalid repository path")
)

// Store is the read side of a hierarchical content repository.
// Implementations must be safe for concurrent readers.
type Store interface {
	// Resolve returns the node at p, or the NonExisting placeholder when no
	// node backs the path.
	Resolve(ctx context.Context, p string) (*Node, error)
	// Properties returns the node's properties
	Properties(ctx context.Context, n *Node) (Properties, error)
	// Children returns the direct children in stored order
	Children(ctx context.Context, n *Node) ([]*Node, error)
	// OpenBinary opens the content of a binary property
	OpenBinary(ctx context.Context, n *Node, name string) (io.ReadCloser, error)
}

// Writer adds or replaces nodes. Missing ancestors are created empty; a
// replaced node keeps its position among its siblings.
type Writer interface {
	PutNode(ctx context.Context, p string, props Properties) error
}

// ReadWriteStore is a Store that can also be populated
type ReadWriteStore interface {
	Store
	Writer
}

// ancestors returns the paths from the root down to p's parent
func ancestors(p string) []string {
	var out []string
	for cur := ParentPath(p); ; cur = ParentPath(cur) {
		out = append([]string{cur}, out...)
		if cur == "/" {
			break
		}
	}
	return out
}
