package ledger

import (
	"encoding/json"
	"fmt"
	"math"
)

// FieldKind tags the concrete type held by a FieldValue.
type FieldKind string

const (
	KindAbsent FieldKind = "absent"
	KindString FieldKind = "string"
	KindInt    FieldKind = "int"
	KindFloat  FieldKind = "float"
	KindBool   FieldKind = "bool"
	KindList   FieldKind = "list"
)

// FieldValue is a tagged union for NFPA data fields and redline diffs.
// Exactly one of the value fields is meaningful, selected by Kind.
// KindAbsent represents a missing field in an addition or deletion diff.
type FieldValue struct {
	Kind  FieldKind
	Str   string
	Int   int64
	Float float64
	Bool  bool
	List  []string
}

// Absent returns the absent field value.
func Absent() FieldValue { return FieldValue{Kind: KindAbsent} }

// String returns a string field value.
func String(s string) FieldValue { return FieldValue{Kind: KindString, Str: s} }

// Int returns an integer field value.
func Int(i int64) FieldValue { return FieldValue{Kind: KindInt, Int: i} }

// Float returns a floating-point field value. Whole numbers canonicalize
// to KindInt, matching the JSON decoding rule, so a value compares equal
// after a round trip through the store.
func Float(f float64) FieldValue {
	if f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
		return Int(int64(f))
	}
	return FieldValue{Kind: KindFloat, Float: f}
}

// Bool returns a boolean field value.
func Bool(b bool) FieldValue { return FieldValue{Kind: KindBool, Bool: b} }

// List returns a string-list field value.
func List(items ...string) FieldValue {
	return FieldValue{Kind: KindList, List: append([]string(nil), items...)}
}

// IsAbsent reports whether the value represents a missing field.
func (v FieldValue) IsAbsent() bool { return v.Kind == KindAbsent || v.Kind == "" }

// Equal reports whether two field values hold the same kind and content.
func (v FieldValue) Equal(o FieldValue) bool {
	if v.IsAbsent() && o.IsAbsent() {
		return true
	}
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString:
		return v.Str == o.Str
	case KindInt:
		return v.Int == o.Int
	case KindFloat:
		return v.Float == o.Float
	case KindBool:
		return v.Bool == o.Bool
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != o.List[i] {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Display renders the value for human-facing output (CLI, impact notes).
func (v FieldValue) Display() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindList:
		return fmt.Sprintf("%v", v.List)
	default:
		return "(absent)"
	}
}

// MarshalJSON encodes the value as its natural JSON form: strings as
// strings, numbers as numbers, lists as arrays, absent as null.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case KindString:
		return json.Marshal(v.Str)
	case KindInt:
		return json.Marshal(v.Int)
	case KindFloat:
		return json.Marshal(v.Float)
	case KindBool:
		return json.Marshal(v.Bool)
	case KindList:
		list := v.List
		if list == nil {
			list = []string{}
		}
		return json.Marshal(list)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a natural JSON value into the tagged union.
// Whole numbers decode as KindInt, other numbers as KindFloat.
func (v *FieldValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch val := raw.(type) {
	case nil:
		*v = Absent()
	case string:
		*v = String(val)
	case bool:
		*v = Bool(val)
	case float64:
		*v = Float(val)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("field list items must be strings, got %T", item)
			}
			items = append(items, s)
		}
		*v = FieldValue{Kind: KindList, List: items}
	default:
		return fmt.Errorf("unsupported field value type %T", raw)
	}

	return nil
}
