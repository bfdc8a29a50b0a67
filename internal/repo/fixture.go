package repo

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Fixture is a YAML description of content nodes. Nodes are written in list
// order, which becomes their sibling order.
type Fixture struct {
	Nodes []FixtureNode `yaml:"nodes"`
}

// FixtureNode is a single node in a fixture file
type FixtureNode struct {
	Path       string               `yaml:"path"`
	Properties map[string]yaml.Node `yaml:"properties"`
}

// explicitProperty is the mapping form of a fixture property
type explicitProperty struct {
	Type   PropertyType `yaml:"type"`
	Value  string       `yaml:"value"`
	Values []string     `yaml:"values"`
	Text   string       `yaml:"text"`   // Binary: literal content
	Base64 string       `yaml:"base64"` // Binary: encoded content
	File   string       `yaml:"file"`   // Binary: path relative to the fixture
}

// LoadFixtureFile reads a fixture file and writes its nodes into w
func LoadFixtureFile(ctx context.Context, w Writer, file string) (int, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	return LoadFixture(ctx, w, f, filepath.Dir(file))
}

// LoadFixture decodes a fixture from r and writes its nodes into w.
// baseDir resolves binary file references.
func LoadFixture(ctx context.Context, w Writer, r io.Reader, baseDir string) (int, error) {
	var fx Fixture
	if err := yaml.NewDecoder(r).Decode(&fx); err != nil {
		return 0, fmt.Errorf("failed to decode fixture: %w", err)
	}

	for i, fn := range fx.Nodes {
		props := make(Properties, len(fn.Properties))
		for name, node := range fn.Properties {
			prop, err := fixtureProperty(&node, baseDir)
			if err != nil {
				return i, fmt.Errorf("node %s property %s: %w", fn.Path, name, err)
			}
			props[name] = prop
		}
		if err := w.PutNode(ctx, fn.Path, props); err != nil {
			return i, err
		}
	}
	return len(fx.Nodes), nil
}

func fixtureProperty(node *yaml.Node, baseDir string) (Property, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		return scalarProperty(node)
	case yaml.SequenceNode:
		if len(node.Content) == 0 {
			return Property{Type: TypeString, Multiple: true}, nil
		}
		prop := Property{Multiple: true}
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return Property{}, fmt.Errorf("%w: nested sequences are not supported", ErrInvalidValue)
			}
			p, err := scalarProperty(item)
			if err != nil {
				return Property{}, err
			}
			if prop.Type != "" && prop.Type != p.Type {
				return Property{}, fmt.Errorf("%w: mixed types %s and %s", ErrInvalidValue, prop.Type, p.Type)
			}
			prop.Type = p.Type
			prop.Values = append(prop.Values, p.Value())
		}
		return prop, nil
	case yaml.MappingNode:
		var ep explicitProperty
		if err := node.Decode(&ep); err != nil {
			return Property{}, err
		}
		return ep.property(baseDir)
	default:
		return Property{}, fmt.Errorf("%w: unexpected YAML node", ErrInvalidValue)
	}
}

func scalarProperty(node *yaml.Node) (Property, error) {
	switch node.ShortTag() {
	case "!!int":
		n, err := strconv.ParseInt(node.Value, 0, 64)
		if err != nil {
			return Property{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return LongProperty(n), nil
	case "!!float":
		f, err := strconv.ParseFloat(node.Value, 64)
		if err != nil {
			return Property{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return DoubleProperty(f), nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return Property{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return BooleanProperty(b), nil
	case "!!timestamp":
		var t time.Time
		if err := node.Decode(&t); err != nil {
			return Property{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return DateProperty(t), nil
	default:
		return StringProperty(node.Value), nil
	}
}

func (ep explicitProperty) property(baseDir string) (Property, error) {
	if ep.Type == TypeBinary {
		var data []byte
		switch {
		case ep.File != "":
			file := ep.File
			if !filepath.IsAbs(file) {
				file = filepath.Join(baseDir, file)
			}
			b, err := os.ReadFile(file)
			if err != nil {
				return Property{}, fmt.Errorf("failed to read binary file: %w", err)
			}
			data = b
		case ep.Base64 != "":
			b, err := base64.StdEncoding.DecodeString(ep.Base64)
			if err != nil {
				return Property{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
			}
			data = b
		default:
			data = []byte(ep.Text)
		}
		return BinaryProperty(data), nil
	}

	raw := ep.Values
	multiple := len(raw) > 0
	if !multiple {
		raw = []string{ep.Value}
	}

	prop := Property{Type: ep.Type, Multiple: multiple}
	for _, s := range raw {
		v, err := parseTyped(ep.Type, s)
		if err != nil {
			return Property{}, err
		}
		prop.Values = append(prop.Values, v)
	}
	return prop, nil
}

func parseTyped(t PropertyType, s string) (any, error) {
	switch t {
	case TypeString, TypeName, TypePath:
		return s, nil
	case TypeLong:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return n, nil
	case TypeDouble:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return b, nil
	case TypeDate:
		d, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
}
