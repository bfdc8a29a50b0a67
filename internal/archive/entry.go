package archive

import (
	"encoding/json"
	"fmt"

	"github.com/tingly-dev/nodepack/internal/repo"
)

// Entry is a decoded node entry
type Entry struct {
	Path       string
	Properties repo.Properties
	Binaries   map[string][]byte
}

// wireProperty is the JSON form of a non-binary property
type wireProperty struct {
	Type     repo.PropertyType `json:"type"`
	Multiple bool              `json:"multiple,omitempty"`
	Value    any               `json:"value,omitempty"`
	Values   []any             `json:"values,omitempty"`
}

// wireEntryHeader is everything in a node entry except binaries
type wireEntryHeader struct {
	Type       string                  `json:"type"`
	Path       string                  `json:"path"`
	Properties map[string]wireProperty `json:"properties"`
}

type rawProperty struct {
	Type     repo.PropertyType `json:"type"`
	Multiple bool              `json:"multiple"`
	Value    json.RawMessage   `json:"value"`
	Values   []json.RawMessage `json:"values"`
}

type rawEntry struct {
	Type       string                 `json:"type"`
	Path       string                 `json:"path"`
	Properties map[string]rawProperty `json:"properties"`
	Binaries   map[string][]byte      `json:"binaries"`
}

func encodeProperty(name string, p repo.Property) (wireProperty, error) {
	values, err := repo.EncodeValues(p)
	if err != nil {
		return wireProperty{}, fmt.Errorf("%w: property %s: %w", ErrEncode, name, err)
	}
	wp := wireProperty{Type: p.Type, Multiple: p.Multiple}
	if p.Multiple {
		wp.Values = values
		if wp.Values == nil {
			wp.Values = []any{}
		}
	} else {
		wp.Value = values[0]
	}
	return wp, nil
}

func (rp rawProperty) decode() (repo.Property, error) {
	prop := repo.Property{Type: rp.Type, Multiple: rp.Multiple}
	raws := rp.Values
	if !rp.Multiple {
		if rp.Value == nil {
			return prop, fmt.Errorf("%w: single-valued property without value", ErrCorrupt)
		}
		raws = []json.RawMessage{rp.Value}
	}
	values, err := repo.DecodeValues(rp.Type, raws)
	if err != nil {
		return prop, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if values == nil {
		values = []any{}
	}
	prop.Values = values
	return prop, nil
}
