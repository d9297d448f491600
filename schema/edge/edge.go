package edge

import "github.com/syssam/anansi/schema/field"

// Ref describes a to-one relationship.
type Ref struct {
	name   string
	model  any
	source string
	label  string
	flags  field.Flag
	getter field.Getter
	setter field.Setter
}

// Reference returns a to-one relationship to model. The model is either a
// registered schema name, resolved on first access, or a schema value.
func Reference(name string, model any) *Ref {
	return &Ref{name: name, model: model}
}

// Source names the local field holding the foreign key value.
func (r *Ref) Source(name string) *Ref {
	r.source = name
	return r
}

// WithLabel overrides the generated display label.
func (r *Ref) WithLabel(label string) *Ref {
	r.label = label
	return r
}

// Flags adds flags to the reference.
func (r *Ref) Flags(flags ...field.Flag) *Ref {
	for _, f := range flags {
		r.flags |= f
	}
	return r
}

// Getter installs a custom getter, making the reference virtual.
func (r *Ref) Getter(fn field.Getter) *Ref {
	r.getter = fn
	r.flags |= field.Virtual
	return r
}

// Setter installs a custom setter.
func (r *Ref) Setter(fn field.Setter) *Ref {
	r.setter = fn
	return r
}

// Name returns the reference name.
func (r *Ref) Name() string { return r.name }

// Model returns the target model name or value.
func (r *Ref) Model() any { return r.model }

// SourceField returns the name of the local foreign key field, if any.
func (r *Ref) SourceField() string { return r.source }

// Label returns the display label.
func (r *Ref) Label() string {
	if r.label != "" {
		return r.label
	}
	return field.Humanize(r.name)
}

// FlagSet returns the flags of the reference.
func (r *Ref) FlagSet() field.Flag { return r.flags }

// HasFlag reports whether all flags in mask are set.
func (r *Ref) HasFlag(mask field.Flag) bool { return r.flags.Has(mask) }

// IsVirtual reports whether the reference is computed.
func (r *Ref) IsVirtual() bool { return r.flags.Has(field.Virtual) }

// GetterFunc returns the custom getter, if any.
func (r *Ref) GetterFunc() field.Getter { return r.getter }

// SetterFunc returns the custom setter, if any.
func (r *Ref) SetterFunc() field.Setter { return r.setter }

// Coll describes a to-many relationship.
type Coll struct {
	name    string
	model   any
	source  string
	through any
	target  string
	label   string
	flags   field.Flag
	getter  field.Getter
	setter  field.Setter
}

// Collector returns a to-many relationship to model.
func Collector(name string, model any) *Coll {
	return &Coll{name: name, model: model}
}

// Source names the field on the target (or through) model that holds
// the owner's key.
func (c *Coll) Source(name string) *Coll {
	c.source = name
	return c
}

// Through sets the join model of a many-to-many collector.
func (c *Coll) Through(model any) *Coll {
	c.through = model
	return c
}

// Target names the field on the join model that points at the target model.
func (c *Coll) Target(name string) *Coll {
	c.target = name
	return c
}

// WithLabel overrides the generated display label.
func (c *Coll) WithLabel(label string) *Coll {
	c.label = label
	return c
}

// Flags adds flags to the collector.
func (c *Coll) Flags(flags ...field.Flag) *Coll {
	for _, f := range flags {
		c.flags |= f
	}
	return c
}

// Getter installs a custom getter, making the collector virtual.
func (c *Coll) Getter(fn field.Getter) *Coll {
	c.getter = fn
	c.flags |= field.Virtual
	return c
}

// Setter installs a custom setter.
func (c *Coll) Setter(fn field.Setter) *Coll {
	c.setter = fn
	return c
}

// Name returns the collector name.
func (c *Coll) Name() string { return c.name }

// Model returns the target model name or value.
func (c *Coll) Model() any { return c.model }

// SourceField returns the name of the field pointing back at the owner.
func (c *Coll) SourceField() string { return c.source }

// ThroughModel returns the join model, if any.
func (c *Coll) ThroughModel() any { return c.through }

// TargetField returns the join model field pointing at the target.
func (c *Coll) TargetField() string { return c.target }

// Label returns the display label.
func (c *Coll) Label() string {
	if c.label != "" {
		return c.label
	}
	return field.Humanize(c.name)
}

// FlagSet returns the flags of the collector.
func (c *Coll) FlagSet() field.Flag { return c.flags }

// HasFlag reports whether all flags in mask are set.
func (c *Coll) HasFlag(mask field.Flag) bool { return c.flags.Has(mask) }

// IsVirtual reports whether the collector is computed.
func (c *Coll) IsVirtual() bool { return c.flags.Has(field.Virtual) }

// GetterFunc returns the custom getter, if any.
func (c *Coll) GetterFunc() field.Getter { return c.getter }

// SetterFunc returns the custom setter, if any.
func (c *Coll) SetterFunc() field.Setter { return c.setter }
