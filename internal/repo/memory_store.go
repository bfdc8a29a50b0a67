package repo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

type memNode struct {
	props    Properties
	children []string
}

// MemoryStore keeps a content tree in memory
type MemoryStore struct {
	nodes map[string]*memNode
	mu    sync.RWMutex
}

// NewMemoryStore creates a store holding only the root node
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: map[string]*memNode{"/": {props: Properties{}}},
	}
}

func (s *MemoryStore) Resolve(ctx context.Context, p string) (*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = CleanPath(p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[p]; !ok {
		return NonExisting(p), nil
	}
	return NewNode(p), nil
}

func (s *MemoryStore) Properties(ctx context.Context, n *Node) (Properties, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	mn, ok := s.nodes[n.Path]
	if !ok {
		return nil, fmt.Errorf("node %s not found", n.Path)
	}

	props := make(Properties, len(mn.props))
	for k, v := range mn.props {
		if v.Type == TypeBinary {
			v = Property{Type: TypeBinary, Size: v.Size}
		}
		props[k] = v
	}
	return props, nil
}

func (s *MemoryStore) Children(ctx context.Context, n *Node) ([]*Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	mn, ok := s.nodes[n.Path]
	if !ok {
		return nil, fmt.Errorf("node %s not found", n.Path)
	}
	children := make([]*Node, 0, len(mn.children))
	for _, c := range mn.children {
		children = append(children, NewNode(c))
	}
	return children, nil
}

func (s *MemoryStore) OpenBinary(ctx context.Context, n *Node, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	mn, ok := s.nodes[n.Path]
	if !ok {
		return nil, fmt.Errorf("node %s not found", n.Path)
	}
	prop, ok := mn.props[name]
	if !ok || prop.Type != TypeBinary {
		return nil, fmt.Errorf("%w: %s@%s", ErrNoBinary, n.Path, name)
	}
	data, _ := prop.Value().([]byte)
	return io.NopCloser(bytes.NewReader(data)), nil
}

// PutNode adds or replaces the node at p
func (s *MemoryStore) PutNode(ctx context.Context, p string, props Properties) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !IsAbs(p) {
		return fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	p = CleanPath(p)

	stored := make(Properties, len(props))
	for k, v := range props {
		if v.Type == TypeBinary {
			data, ok := v.Value().([]byte)
			if !ok {
				return fmt.Errorf("%w: binary %s@%s wants []byte", ErrInvalidValue, p, k)
			}
			v.Size = int64(len(data))
		}
		stored[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p != "/" {
		for _, a := range append(ancestors(p), p) {
			if _, ok := s.nodes[a]; ok || a == "/" {
				continue
			}
			s.nodes[a] = &memNode{props: Properties{}}
			parent := s.nodes[ParentPath(a)]
			parent.children = append(parent.children, a)
		}
	}
	s.nodes[p].props = stored
	return nil
}

var _ ReadWriteStore = (*MemoryStore)(nil)
