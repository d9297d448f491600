package field

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Type is the declared data type of a field.
type Type uint8

// Field types.
const (
	TypeAny Type = iota
	TypeString
	TypeText
	TypeRegex
	TypeInt
	TypeFloat
	TypeBool
	TypeDate
	TypeDatetime
	TypeTime
	TypeUUID
	TypeJSON
)

var typeNames = [...]string{
	TypeAny:      "any",
	TypeString:   "string",
	TypeText:     "text",
	TypeRegex:    "regex",
	TypeInt:      "int",
	TypeFloat:    "float",
	TypeBool:     "bool",
	TypeDate:     "date",
	TypeDatetime: "datetime",
	TypeTime:     "time",
	TypeUUID:     "uuid",
	TypeJSON:     "json",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Accepts reports whether v is a valid runtime value for the type.
// Nil is handled by the caller.
func (t Type) Accepts(v any) bool {
	switch t {
	case TypeAny, TypeJSON:
		return true
	case TypeString, TypeText, TypeRegex:
		_, ok := v.(string)
		return ok
	case TypeInt:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
	case TypeFloat:
		switch v.(type) {
		case float32, float64, int, int32, int64:
			return true
		}
	case TypeBool:
		_, ok := v.(bool)
		return ok
	case TypeDate, TypeDatetime, TypeTime:
		_, ok := v.(time.Time)
		return ok
	case TypeUUID:
		switch v := v.(type) {
		case uuid.UUID:
			return true
		case string:
			_, err := uuid.Parse(v)
			return err == nil
		}
	}
	return false
}

// String returns a string field.
func String(name string) *Field {
	return New(name).OfType(TypeString)
}

// Text returns an unbounded text field.
func Text(name string) *Field {
	return New(name).OfType(TypeText)
}

// Regex returns a string field whose values must compile as regular expressions.
func Regex(name string) *Field {
	return New(name).OfType(TypeRegex).ValidateWith(func(f *Field, v any) error {
		s, _ := v.(string)
		if _, err := regexp.Compile(s); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, f.name, err)
		}
		return nil
	})
}

// Integer returns an integer field.
func Integer(name string) *Field {
	return New(name).OfType(TypeInt)
}

// Float returns a floating point field.
func Float(name string) *Field {
	return New(name).OfType(TypeFloat)
}

// Bool returns a boolean field.
func Bool(name string) *Field {
	return New(name).OfType(TypeBool)
}

// Serial returns an auto-assigned integer key field.
func Serial(name string, flags ...Flag) *Field {
	return Integer(name).Flags(Key, AutoAssign, Required).Flags(flags...)
}

// Date returns a calendar date field.
func Date(name string) *Field {
	return New(name).OfType(TypeDate)
}

// Datetime returns a timestamp field.
func Datetime(name string) *Field {
	f := New(name).OfType(TypeDatetime)
	return f.Dump(func(v any) (any, error) {
		t, ok := v.(time.Time)
		if ok && f.asUTC {
			return t.UTC(), nil
		}
		return v, nil
	})
}

// Time returns a time-of-day field.
func Time(name string) *Field {
	return New(name).OfType(TypeTime)
}

// UUID returns a uuid field, generated with uuid.New when not provided.
func UUID(name string) *Field {
	return New(name).OfType(TypeUUID).
		Generator(func() any { return uuid.New() }).
		Dump(func(v any) (any, error) {
			if u, ok := v.(uuid.UUID); ok {
				return u.String(), nil
			}
			return v, nil
		}).
		Load(func(v any) (any, error) {
			switch v := v.(type) {
			case string:
				return uuid.Parse(v)
			case []byte:
				return uuid.ParseBytes(v)
			case [16]byte:
				return uuid.UUID(v), nil
			}
			return v, nil
		})
}

// Object returns a JSON document field.
func Object(name string) *Field {
	return New(name).OfType(TypeJSON).
		Dump(func(v any) (any, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			return string(b), nil
		}).
		Load(func(v any) (any, error) {
			var raw []byte
			switch v := v.(type) {
			case string:
				raw = []byte(v)
			case []byte:
				raw = v
			default:
				return v, nil
			}
			var out any
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, err
			}
			return out, nil
		})
}

// MaxLen bounds the length of string values.
func (f *Field) MaxLen(n int) *Field {
	f.maxLength = n
	return f
}

// Match requires string values to match the pattern.
func (f *Field) Match(pattern string) *Field {
	re, err := regexp.Compile(pattern)
	if err != nil {
		f.err = fmt.Errorf("field: %s: invalid pattern: %w", f.name, err)
		return f
	}
	f.pattern, f.re = pattern, re
	return f
}

// CaseInsensitive marks string comparisons on the field as case insensitive.
func (f *Field) CaseInsensitive() *Field {
	f.caseFold = true
	return f
}

// UTC normalizes datetime values to UTC before storage.
func (f *Field) UTC() *Field {
	f.asUTC = true
	return f
}

// WithTimezone keeps the zone of datetime values in storage.
func (f *Field) WithTimezone() *Field {
	f.withTZ = true
	return f
}
