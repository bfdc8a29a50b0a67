package repo

import (
	"path"
	"sort"
	"strings"
	"time"
)

// PropertyType names the value type of a property
type PropertyType string

const (
	TypeString  PropertyType = "String"
	TypeLong    PropertyType = "Long"
	TypeDouble  PropertyType = "Double"
	TypeBoolean PropertyType = "Boolean"
	TypeDate    PropertyType = "Date"
	TypeName    PropertyType = "Name"
	TypePath    PropertyType = "Path"
	TypeBinary  PropertyType = "Binary"
)

// Supported reports whether the archive format can represent the type
func (t PropertyType) Supported() bool {
	switch t {
	case TypeString, TypeLong, TypeDouble, TypeBoolean, TypeDate, TypeName, TypePath, TypeBinary:
		return true
	default:
		return false
	}
}

// Property is a typed, possibly multi-valued node property.
//
// Values holds Go values matching Type: string for String, Name and Path,
// int64 for Long, float64 for Double, bool for Boolean and time.Time for Date.
// Binary properties returned by a Store carry no values, only Size; the
// content is read with Store.OpenBinary. When writing into a store a Binary
// property holds its payload as a single []byte value.
type Property struct {
	Type     PropertyType
	Multiple bool
	Values   []any
	Size     int64
}

// Value returns the first value, or nil
func (p Property) Value() any {
	if len(p.Values) == 0 {
		return nil
	}
	return p.Values[0]
}

func StringProperty(s string) Property {
	return Property{Type: TypeString, Values: []any{s}}
}

func LongProperty(n int64) Property {
	return Property{Type: TypeLong, Values: []any{n}}
}

func DoubleProperty(f float64) Property {
	return Property{Type: TypeDouble, Values: []any{f}}
}

func BooleanProperty(b bool) Property {
	return Property{Type: TypeBoolean, Values: []any{b}}
}

func DateProperty(t time.Time) Property {
	return Property{Type: TypeDate, Values: []any{t}}
}

func NameProperty(s string) Property {
	return Property{Type: TypeName, Values: []any{s}}
}

func PathProperty(s string) Property {
	return Property{Type: TypePath, Values: []any{s}}
}

// BinaryProperty wraps a payload for writing into a store
func BinaryProperty(data []byte) Property {
	return Property{Type: TypeBinary, Values: []any{data}, Size: int64(len(data))}
}

// MultiStringProperty builds a multi-valued String property
func MultiStringProperty(values ...string) Property {
	p := Property{Type: TypeString, Multiple: true, Values: make([]any, 0, len(values))}
	for _, v := range values {
		p.Values = append(p.Values, v)
	}
	return p
}

// Properties maps property names to properties
type Properties map[string]Property

// Keys returns the property names in sorted order
func (p Properties) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Node is a read reference to a repository entity
type Node struct {
	Path string

	nonExisting bool
}

// NewNode returns a reference to an existing node at p
func NewNode(p string) *Node {
	return &Node{Path: CleanPath(p)}
}

// NonExisting returns the placeholder a store hands out for a path with no
// backing node.
func NonExisting(p string) *Node {
	return &Node{Path: p, nonExisting: true}
}

// IsNonExisting reports whether n is absent or the non-existing placeholder
func IsNonExisting(n *Node) bool {
	return n == nil || n.nonExisting
}

// Name returns the last path segment, empty for the root
func (n *Node) Name() string {
	if n.Path == "/" {
		return ""
	}
	return path.Base(n.Path)
}

// CleanPath normalizes a repository path. Relative paths are kept relative so
// callers can reject them.
func CleanPath(p string) string {
	if p == "" {
		return ""
	}
	return path.Clean(p)
}

// IsAbs reports whether p is an absolute repository path
func IsAbs(p string) bool {
	return strings.HasPrefix(p, "/")
}

// ParentPath returns the parent of p; the root is its own parent
func ParentPath(p string) string {
	return path.Dir(p)
}

// IsDirectChild reports whether child is exactly one segment below parent
func IsDirectChild(parent, child string) bool {
	if child == "/" || child == parent {
		return false
	}
	return path.Dir(child) == parent
}

// IsDescendant reports whether p equals root or lies below it
func IsDescendant(root, p string) bool {
	if root == "/" {
		return IsAbs(p)
	}
	return p == root || strings.HasPrefix(p, root+"/")
}
