package field

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Validation errors returned by Field.Validate. They are wrapped with the
// field name and can be matched with errors.Is.
var (
	ErrRequired  = errors.New("field: value is required")
	ErrType      = errors.New("field: invalid type")
	ErrMaxLength = errors.New("field: value too long")
	ErrPattern   = errors.New("field: value does not match pattern")
	ErrInvalid   = errors.New("field: invalid value")
)

// Validate checks v against the field constraints. A nil value passes
// unless the field is required.
func (f *Field) Validate(v any) error {
	if v == nil {
		if f.flags.Has(Required) {
			return fmt.Errorf("%w: %s", ErrRequired, f.name)
		}
		return nil
	}
	if !f.typ.Accepts(v) {
		return fmt.Errorf("%w: %s: expected %s, got %T", ErrType, f.name, f.typ, v)
	}
	if s, ok := v.(string); ok {
		if f.maxLength > 0 && utf8.RuneCountInString(s) > f.maxLength {
			return fmt.Errorf("%w: %s: %d > %d", ErrMaxLength, f.name, utf8.RuneCountInString(s), f.maxLength)
		}
		if f.re != nil && !f.re.MatchString(s) {
			return fmt.Errorf("%w: %s: %q", ErrPattern, f.name, f.pattern)
		}
	}
	for _, fn := range f.validators {
		if err := fn(f, v); err != nil {
			return err
		}
	}
	return nil
}
