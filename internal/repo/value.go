package repo

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrUnsupportedType is returned for property types with no encoding
	ErrUnsupportedType = errors.New("unsupported property type")
	// ErrInvalidValue is returned when a value does not match its declared type
	ErrInvalidValue = errors.New("invalid property value")
)

// EncodeValue converts v into its JSON-safe representation for type t.
// Binary values are not encoded here.
func EncodeValue(t PropertyType, v any) (any, error) {
	switch t {
	case TypeString, TypeName, TypePath:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants string, got %T", ErrInvalidValue, t, v)
		}
		return s, nil
	case TypeLong:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		default:
			return nil, fmt.Errorf("%w: Long wants int64, got %T", ErrInvalidValue, v)
		}
	case TypeDouble:
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("%w: Double wants float64, got %T", ErrInvalidValue, v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: Double %v has no JSON form", ErrInvalidValue, f)
		}
		return f, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: Boolean wants bool, got %T", ErrInvalidValue, v)
		}
		return b, nil
	case TypeDate:
		d, ok := v.(time.Time)
		if !ok {
			return nil, fmt.Errorf("%w: Date wants time.Time, got %T", ErrInvalidValue, v)
		}
		return d.Format(time.RFC3339Nano), nil
	case TypeBinary:
		return nil, fmt.Errorf("%w: binary values are streamed separately", ErrInvalidValue)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
}

// DecodeValue parses raw JSON produced from EncodeValue back into a Go value
func DecodeValue(t PropertyType, raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	switch t {
	case TypeString, TypeName, TypePath:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s wants string", ErrInvalidValue, t)
		}
		return s, nil
	case TypeLong:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: Long wants number", ErrInvalidValue)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return i, nil
	case TypeDouble:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("%w: Double wants number", ErrInvalidValue)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return f, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: Boolean wants bool", ErrInvalidValue)
		}
		return b, nil
	case TypeDate:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%w: Date wants string", ErrInvalidValue)
		}
		d, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, t)
	}
}

// EncodeValues encodes every value of a non-binary property
func EncodeValues(p Property) ([]any, error) {
	if !p.Type.Supported() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, p.Type)
	}
	if !p.Multiple && len(p.Values) != 1 {
		return nil, fmt.Errorf("%w: single-valued property has %d values", ErrInvalidValue, len(p.Values))
	}
	out := make([]any, 0, len(p.Values))
	for _, v := range p.Values {
		enc, err := EncodeValue(p.Type, v)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

// DecodeValues is the inverse of EncodeValues
func DecodeValues(t PropertyType, raws []json.RawMessage) ([]any, error) {
	out := make([]any, 0, len(raws))
	for _, raw := range raws {
		v, err := DecodeValue(t, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
