package field

import (
	"cmp"
	"context"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Record is the view of a model instance handed to custom accessors.
// It is implemented by *anansi.Model.
type Record interface {
	Get(ctx context.Context, path string) (any, error)
	Set(ctx context.Context, path string, value any) error
	Gather(ctx context.Context, paths ...string) ([]any, error)
}

type (
	// Getter computes the value of a virtual field.
	Getter func(ctx context.Context, r Record) (any, error)

	// Setter assigns a value to a virtual field, usually by writing
	// one or more stored fields of the record.
	Setter func(ctx context.Context, r Record, value any) error

	// QueryFunc rewrites a predicate on a virtual field into a predicate
	// over stored fields. The returned value must be an anansi.Predicate.
	QueryFunc func(f *Field, op string, value any) (any, error)

	// Validator checks a value before it is stored.
	Validator func(f *Field, value any) error

	// Converter transforms a value on its way to or from storage.
	Converter func(value any) (any, error)
)

// Field describes a single scalar attribute of a schema.
type Field struct {
	name       string
	code       string
	codeFn     func(*Field) string
	i18nCode   string
	i18nFn     func(*Field) string
	label      string
	typ        Type
	def        any
	defFn      func(*Field) any
	flags      Flag
	validators []Validator
	maxLength  int
	pattern    string
	re         *regexp.Regexp
	caseFold   bool
	refersTo   string
	getter     Getter
	setter     Setter
	query      QueryFunc
	dump       Converter
	load       Converter
	generate   func() any
	asUTC      bool
	withTZ     bool
	err        error
}

// New returns an untyped field with the given name.
func New(name string) *Field {
	return &Field{name: name}
}

// StorageKey overrides the storage column code of the field.
func (f *Field) StorageKey(code string) *Field {
	f.code, f.codeFn = code, nil
	return f
}

// StorageKeyFunc computes the storage column code from the field.
func (f *Field) StorageKeyFunc(fn func(*Field) string) *Field {
	f.codeFn = fn
	return f
}

// I18nStorageKey overrides the column code used in the translation table.
func (f *Field) I18nStorageKey(code string) *Field {
	f.i18nCode, f.i18nFn = code, nil
	return f
}

// I18nStorageKeyFunc computes the translation column code from the field.
func (f *Field) I18nStorageKeyFunc(fn func(*Field) string) *Field {
	f.i18nFn = fn
	return f
}

// WithLabel overrides the generated display label.
func (f *Field) WithLabel(label string) *Field {
	f.label = label
	return f
}

// OfType sets the declared data type.
func (f *Field) OfType(t Type) *Field {
	f.typ = t
	return f
}

// Default sets a static default value.
func (f *Field) Default(v any) *Field {
	f.def, f.defFn = v, nil
	return f
}

// DefaultFunc computes the default value from the field.
func (f *Field) DefaultFunc(fn func(*Field) any) *Field {
	f.defFn = fn
	return f
}

// Flags adds the given flags to the field.
func (f *Field) Flags(flags ...Flag) *Field {
	for _, fl := range flags {
		f.flags |= fl
	}
	return f
}

// FlagNames adds flags by name. Unknown names are reported by Err.
func (f *Field) FlagNames(names ...string) *Field {
	fl, err := ParseFlags(names...)
	if err != nil {
		f.err = err
		return f
	}
	f.flags |= fl
	return f
}

// Required is a shortcut for Flags(Required).
func (f *Field) Required() *Field { return f.Flags(Required) }

// Unique is a shortcut for Flags(Unique).
func (f *Field) Unique() *Field { return f.Flags(Unique) }

// Translatable is a shortcut for Flags(Translatable).
func (f *Field) Translatable() *Field { return f.Flags(Translatable) }

// ValidateWith appends custom validators.
func (f *Field) ValidateWith(fns ...Validator) *Field {
	f.validators = append(f.validators, fns...)
	return f
}

// RefersTo records a lazy "<Model>.<field>" reference to another schema.
func (f *Field) RefersTo(target string) *Field {
	f.refersTo = target
	return f
}

// Getter installs a custom getter, making the field virtual.
func (f *Field) Getter(fn Getter) *Field {
	f.getter = fn
	f.flags |= Virtual
	return f
}

// Setter installs a custom setter.
func (f *Field) Setter(fn Setter) *Field {
	f.setter = fn
	return f
}

// Querier installs a custom predicate rewriter.
func (f *Field) Querier(fn QueryFunc) *Field {
	f.query = fn
	return f
}

// Dump sets the converter applied before a value is written to storage.
func (f *Field) Dump(fn Converter) *Field {
	f.dump = fn
	return f
}

// Load sets the converter applied after a value is read from storage.
func (f *Field) Load(fn Converter) *Field {
	f.load = fn
	return f
}

// Generator sets the function used to auto-assign a value on create.
func (f *Field) Generator(fn func() any) *Field {
	f.generate = fn
	f.flags |= AutoAssign
	return f
}

// Name returns the field name.
func (f *Field) Name() string { return f.name }

// Code returns the storage column code.
func (f *Field) Code() string {
	switch {
	case f.codeFn != nil:
		return f.codeFn(f)
	case f.code != "":
		return f.code
	default:
		return f.name
	}
}

// I18nCode returns the column code in the translation table.
func (f *Field) I18nCode() string {
	switch {
	case f.i18nFn != nil:
		return f.i18nFn(f)
	case f.i18nCode != "":
		return f.i18nCode
	default:
		return f.Code()
	}
}

// Label returns the display label, generated from the name when unset.
func (f *Field) Label() string {
	if f.label != "" {
		return f.label
	}
	return Humanize(f.name)
}

// DataType returns the declared data type.
func (f *Field) DataType() Type { return f.typ }

// DefaultValue returns the default value of the field.
func (f *Field) DefaultValue() any {
	if f.defFn != nil {
		return f.defFn(f)
	}
	return f.def
}

// FlagSet returns the flags of the field.
func (f *Field) FlagSet() Flag { return f.flags }

// HasFlag reports whether all flags in mask are set.
func (f *Field) HasFlag(mask Flag) bool { return f.flags.Has(mask) }

// IsVirtual reports whether the field is computed rather than stored.
func (f *Field) IsVirtual() bool { return f.flags.Has(Virtual) }

// MaxLength returns the maximum string length, 0 when unbounded.
func (f *Field) MaxLength() int { return f.maxLength }

// Pattern returns the raw pattern a string value must match.
func (f *Field) Pattern() string { return f.pattern }

// CaseSensitive reports whether string comparisons are case sensitive.
func (f *Field) CaseSensitive() bool { return !f.caseFold }

// Target returns the raw "<Model>.<field>" reference, if any.
func (f *Field) Target() string { return f.refersTo }

// GetterFunc returns the custom getter, if any.
func (f *Field) GetterFunc() Getter { return f.getter }

// SetterFunc returns the custom setter, if any.
func (f *Field) SetterFunc() Setter { return f.setter }

// QuerierFunc returns the custom predicate rewriter, if any.
func (f *Field) QuerierFunc() QueryFunc { return f.query }

// Validators returns the custom validators.
func (f *Field) Validators() []Validator { return f.validators }

// AsUTC reports whether datetimes are normalized to UTC.
func (f *Field) AsUTC() bool { return f.asUTC }

// HasTimezone reports whether datetimes keep their zone in storage.
func (f *Field) HasTimezone() bool { return f.withTZ }

// Err returns the first error recorded while building the field.
func (f *Field) Err() error { return f.err }

// Generate returns an auto-assigned value when the field has a generator.
func (f *Field) Generate() (any, bool) {
	if f.generate == nil {
		return nil, false
	}
	return f.generate(), true
}

// DumpValue converts v for storage.
func (f *Field) DumpValue(v any) (any, error) {
	if f.dump == nil || v == nil {
		return v, nil
	}
	return f.dump(v)
}

// LoadValue converts a stored v back into its runtime form.
func (f *Field) LoadValue(v any) (any, error) {
	if f.load == nil || v == nil {
		return v, nil
	}
	return f.load(v)
}

// Less orders fields by name.
func (f *Field) Less(other *Field) bool {
	return f.name < other.name
}

// Sort orders fields by name in place.
func Sort(fields []*Field) {
	slices.SortFunc(fields, func(a, b *Field) int {
		return cmp.Compare(a.name, b.name)
	})
}

var titler = cases.Title(language.English)

// Humanize turns a snake_case name into a title-cased label.
func Humanize(name string) string {
	return titler.String(strings.ReplaceAll(name, "_", " "))
}
