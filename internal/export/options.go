package export

import (
	"fmt"
	"path"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tingly-dev/nodepack/internal/archive"
	"github.com/tingly-dev/nodepack/internal/repo"
)

// Options configures one export. The zero value exports the full subtree of
// RootPath under its own path as an unidentified JSONL archive.
type Options struct {
	// RootPath is the node to start from. The exporter fills it from the
	// requested path.
	RootPath string
	// MountPath is the prefix recorded in the archive, defaults to RootPath
	MountPath string
	// NodeOnly exports the root without descendants
	NodeOnly bool
	// Group and Name label the package, both may be empty
	Group string
	Name  string
	// Exclude lists doublestar patterns of absolute paths to skip with
	// their subtrees. Patterns must start with "/". The root is never
	// excluded.
	Exclude []string
	Format  archive.Format
}

// Normalize fills defaults and validates the options. RootPath must be set.
func (o Options) Normalize() (Options, error) {
	if !repo.IsAbs(o.RootPath) {
		return o, fmt.Errorf("%w: root path %q is not absolute", ErrInvalidOptions, o.RootPath)
	}
	o.RootPath = path.Clean(o.RootPath)

	if o.MountPath == "" {
		o.MountPath = o.RootPath
	}
	if !repo.IsAbs(o.MountPath) {
		return o, fmt.Errorf("%w: mount path %q is not absolute", ErrInvalidOptions, o.MountPath)
	}
	o.MountPath = path.Clean(o.MountPath)

	for _, p := range o.Exclude {
		// node paths are absolute, so a relative pattern would never match
		if !repo.IsAbs(p) {
			return o, fmt.Errorf("%w: exclude pattern %q is not absolute", ErrInvalidOptions, p)
		}
		if !doublestar.ValidatePattern(p) {
			return o, fmt.Errorf("%w: bad exclude pattern %q", ErrInvalidOptions, p)
		}
	}
	if o.Exclude == nil {
		o.Exclude = []string{}
	}

	if o.Format == "" {
		o.Format = archive.FormatJSONL
	}
	if _, err := archive.ParseFormat(string(o.Format)); err != nil {
		return o, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	return o, nil
}

// RewritePath maps a node path under rootPath to its archive path under
// mountPath: mountPath + (p with rootPath stripped).
func RewritePath(rootPath, mountPath, p string) string {
	rel := p
	if rootPath != "/" {
		rel = p[len(rootPath):]
	}
	return path.Join(mountPath, rel)
}
