package field

import (
	"fmt"
	"math/bits"
	"strings"
)

// Flag is a bit set describing how a field (or index, reference, collector)
// behaves at runtime and in storage.
type Flag uint32

// Field flags.
const (
	// Key marks the field as (part of) the primary key.
	Key Flag = 1 << iota
	// Keyable marks the field as an alternate lookup key.
	Keyable
	// Required rejects nil values on validation.
	Required
	// Unique marks the field as unique in storage.
	Unique
	// Virtual marks the field as computed by a custom getter/setter.
	Virtual
	// Translatable stores the field per locale in the i18n table.
	Translatable
	// AutoAssign lets the storage (or a generator) assign the value.
	AutoAssign
	// ReadOnly rejects writes through Set.
	ReadOnly
	// Private hides the field from serialized state.
	Private
	// Polymorphic marks the field as a type discriminator.
	Polymorphic
)

var flagNames = []struct {
	name string
	flag Flag
}{
	{"Key", Key},
	{"Keyable", Keyable},
	{"Required", Required},
	{"Unique", Unique},
	{"Virtual", Virtual},
	{"Translatable", Translatable},
	{"AutoAssign", AutoAssign},
	{"ReadOnly", ReadOnly},
	{"Private", Private},
	{"Polymorphic", Polymorphic},
}

// ParseFlags builds a flag set from flag names, e.g. ParseFlags("Key", "Required").
func ParseFlags(names ...string) (Flag, error) {
	var f Flag
	for _, name := range names {
		found := false
		for _, fn := range flagNames {
			if strings.EqualFold(fn.name, name) {
				f |= fn.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("field: unknown flag %q", name)
		}
	}
	return f, nil
}

// Has reports whether every bit of mask is set. An empty mask is never set.
func (f Flag) Has(mask Flag) bool {
	return mask != 0 && f&mask == mask
}

// Any reports whether at least one bit of mask is set.
func (f Flag) Any(mask Flag) bool {
	return f&mask != 0
}

// Count returns the number of flags set.
func (f Flag) Count() int {
	return bits.OnesCount32(uint32(f))
}

// String returns the flag names joined by "|".
func (f Flag) String() string {
	if f == 0 {
		return "0"
	}
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, "|")
}
