package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/tingly-dev/nodepack/internal/archive"
	"github.com/tingly-dev/nodepack/internal/repo"
)

// Assembler serializes visited nodes into an archive
type Assembler struct {
	store repo.Store
}

func NewAssembler(store repo.Store) *Assembler {
	return &Assembler{store: store}
}

// Assemble writes the manifest, then one entry per node in sequence order,
// flushing after every entry. opts must be normalized.
func (a *Assembler) Assemble(ctx context.Context, nodes iter.Seq2[*repo.Node, error], opts Options, id string, aw *archive.Writer) error {
	manifest := archive.NewManifest(id, opts.Group, opts.Name, opts.RootPath, opts.MountPath, opts.NodeOnly, opts.Exclude)
	if err := aw.WriteManifest(manifest); err != nil {
		return classify(err)
	}
	if err := aw.Flush(); err != nil {
		return classify(err)
	}

	for node, err := range nodes {
		if err != nil {
			return err
		}
		if err := a.writeNode(ctx, node, opts, aw); err != nil {
			return err
		}
		if err := aw.Flush(); err != nil {
			return classify(err)
		}
	}
	return classify(aw.Close())
}

func (a *Assembler) writeNode(ctx context.Context, node *repo.Node, opts Options, aw *archive.Writer) error {
	if !repo.IsDescendant(opts.RootPath, node.Path) {
		return fmt.Errorf("%w: %s is outside %s", ErrStructural, node.Path, opts.RootPath)
	}

	props, err := a.store.Properties(ctx, node)
	if errors.Is(err, repo.ErrUnsupportedType) || errors.Is(err, repo.ErrInvalidValue) {
		return fmt.Errorf("%w: %s: %w", ErrSerialization, node.Path, err)
	}
	if err != nil {
		return fmt.Errorf("failed to read properties of %s: %w", node.Path, err)
	}

	var binaries []archive.BinarySource
	for _, name := range props.Keys() {
		prop := props[name]
		if prop.Type != repo.TypeBinary {
			continue
		}
		if prop.Multiple {
			return fmt.Errorf("%w: multi-valued binary %s@%s", ErrSerialization, node.Path, name)
		}
		binaries = append(binaries, archive.BinarySource{
			Name: name,
			Size: prop.Size,
			Open: func() (io.ReadCloser, error) {
				return a.store.OpenBinary(ctx, node, name)
			},
		})
	}

	entryPath := RewritePath(opts.RootPath, opts.MountPath, node.Path)
	if err := aw.WriteEntry(entryPath, props, binaries); err != nil {
		return classify(err)
	}
	return nil
}
