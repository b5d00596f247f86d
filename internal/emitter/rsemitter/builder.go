package rsemitter

import (
	"iter"
	"slices"
	"strconv"
	"unicode"

	"github.com/iancoleman/strcase"

	genspec "github.com/mark3labs/swagger2rs/internal/spec"
)

// Property classifies an attribute a builder exposes.
type Property int

const (
	RequiredField Property = iota
	OptionalField
	RequiredParam
	OptionalParam
)

// IsRequired reports whether the attribute must be supplied before finalizing.
func (p Property) IsRequired() bool {
	return p == RequiredField || p == RequiredParam
}

// IsParameter reports whether the attribute comes from a parameter.
func (p Property) IsParameter() bool {
	return p == RequiredParam || p == OptionalParam
}

// IsField reports whether the attribute comes from a record field.
func (p Property) IsField() bool {
	return p == RequiredField || p == OptionalField
}

func (p Property) String() string {
	switch p {
	case RequiredField:
		return "required-field"
	case OptionalField:
		return "optional-field"
	case RequiredParam:
		return "required-param"
	case OptionalParam:
		return "optional-param"
	}
	return "unknown"
}

func paramProperty(p genspec.Parameter) Property {
	if p.Required {
		return RequiredParam
	}
	return OptionalParam
}

// fieldProperty requires a field only when the body itself is required.
func fieldProperty(f genspec.Field, bodyRequired bool) Property {
	if bodyRequired && f.Required {
		return RequiredField
	}
	return OptionalField
}

// Attribute is one entry of a builder's merged attribute set.
type Attribute struct {
	Name     string
	TypePath string
	Property Property
}

// Slot is the typestate type parameter addressing this attribute. Names
// that are not valid Rust type parameters get a trailing or leading escape.
// Uniqueness within a builder is handled by Builder.Slots.
func (a Attribute) Slot() string {
	slot := strcase.ToCamel(a.Name)
	switch {
	case slot == "":
		return "T"
	case slot == "Self":
		return "Self_"
	case unicode.IsDigit(rune(slot[0])):
		return "T" + slot
	}
	return slot
}

// Ident is the snake-cased identifier used for storage fields.
func (a Attribute) Ident() string {
	return strcase.ToSnake(a.Name)
}

// MarkerField is the name of the zero-sized marker field for a required attribute.
func (a Attribute) MarkerField() string {
	if a.Property.IsParameter() {
		return "_param_" + a.Ident()
	}
	return "_" + a.Ident()
}

// ParamField is the name of the storage field for a parameter.
func (a Attribute) ParamField() string {
	return "param_" + a.Ident()
}

// Collision records an attribute dropped because an earlier one had the same name.
type Collision struct {
	Name    string
	Kept    Property
	Dropped Property
}

// Builder describes one builder type derived from a record. It is a view
// over the record and must not outlive it.
type Builder struct {
	// Ordinal is the rank of the bound path among the record's paths.
	Ordinal      int
	Record       *genspec.Record
	Method       genspec.HttpMethod
	OpID         string
	BodyRequired bool
	PathParams   []genspec.Parameter
	OpParams     []genspec.Parameter
}

// Bound reports whether the builder belongs to an operation.
func (b Builder) Bound() bool {
	return b.Method != ""
}

// Builders yields the builders of a record. An unbound record yields a single
// standalone builder which always requires the body; otherwise one builder is
// yielded per (path, method) pair in path-then-method order.
func Builders(r *genspec.Record) iter.Seq[Builder] {
	if len(r.Paths) == 0 {
		return standaloneBuilder(r)
	}
	return operationBuilders(r)
}

// CollectBuilders materializes Builders.
func CollectBuilders(r *genspec.Record) []Builder {
	return slices.Collect(Builders(r))
}

func standaloneBuilder(r *genspec.Record) iter.Seq[Builder] {
	return func(yield func(Builder) bool) {
		yield(Builder{Record: r, BodyRequired: true})
	}
}

func operationBuilders(r *genspec.Record) iter.Seq[Builder] {
	return func(yield func(Builder) bool) {
		for idx, path := range r.SortedPaths() {
			ops := r.Paths[path]
			if ops == nil {
				continue
			}
			for _, method := range ops.SortedMethods() {
				req := ops.Ops[method]
				b := Builder{
					Ordinal:      idx,
					Record:       r,
					Method:       method,
					OpID:         req.ID,
					BodyRequired: req.BodyRequired,
					PathParams:   ops.Params,
					OpParams:     req.Params,
				}
				if !yield(b) {
					return
				}
			}
		}
	}
}

// merge walks path parameters, operation parameters and then record fields,
// keeping the first attribute of each name.
func (b Builder) merge() ([]Attribute, []Collision) {
	n := len(b.PathParams) + len(b.OpParams) + len(b.Record.Fields)
	attrs := make([]Attribute, 0, n)
	seen := make(map[string]int, n)
	var dropped []Collision

	add := func(a Attribute) {
		if i, ok := seen[a.Name]; ok {
			dropped = append(dropped, Collision{Name: a.Name, Kept: attrs[i].Property, Dropped: a.Property})
			return
		}
		seen[a.Name] = len(attrs)
		attrs = append(attrs, a)
	}

	for _, p := range b.PathParams {
		add(Attribute{Name: p.Name, TypePath: p.TypePath, Property: paramProperty(p)})
	}
	for _, p := range b.OpParams {
		add(Attribute{Name: p.Name, TypePath: p.TypePath, Property: paramProperty(p)})
	}
	for _, f := range b.Record.Fields {
		add(Attribute{Name: f.Name, TypePath: f.TypePath, Property: fieldProperty(f, b.BodyRequired)})
	}
	return attrs, dropped
}

// Attributes returns the unique, ordered attributes this builder exposes.
func (b Builder) Attributes() []Attribute {
	attrs, _ := b.merge()
	return attrs
}

// Collisions returns the attributes discarded while merging.
func (b Builder) Collisions() []Collision {
	_, dropped := b.merge()
	return dropped
}

// Required returns the required attributes in merge order. Each one owns a
// typestate slot.
func (b Builder) Required() []Attribute {
	var out []Attribute
	for _, a := range b.Attributes() {
		if a.Property.IsRequired() {
			out = append(out, a)
		}
	}
	return out
}

// Slots returns the typestate type parameter names in order, aligned with
// Required. A slot already taken gets a numeric suffix.
func (b Builder) Slots() []string {
	req := b.Required()
	out := make([]string, 0, len(req))
	used := make(map[string]bool, len(req))
	for _, a := range req {
		base := a.Slot()
		slot := base
		for i := 1; used[slot]; i++ {
			slot = base + "_" + strconv.Itoa(i)
		}
		used[slot] = true
		out = append(out, slot)
	}
	return out
}

// NeedsContainer reports whether body and parameter state must live in a
// separate container so the builder can be reinterpreted between typestate
// variants without copying.
func (b Builder) NeedsContainer() bool {
	for _, p := range b.PathParams {
		if p.Required {
			return true
		}
	}
	for _, p := range b.OpParams {
		if p.Required {
			return true
		}
	}
	return b.BodyRequired && b.Record.HasRequiredField()
}

// hasFields reports whether the builder struct has at least one field besides
// the body.
func (b Builder) hasFields() bool {
	for _, a := range b.Attributes() {
		if a.Property.IsParameter() || a.Property.IsRequired() {
			return true
		}
	}
	return false
}
