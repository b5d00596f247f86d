package rsemitter

import (
	"strconv"

	"github.com/iancoleman/strcase"

	genspec "github.com/mark3labs/swagger2rs/internal/spec"
)

// genericConstructor names the constructor of a standalone builder.
const genericConstructor = "builder"

// Name returns the builder type name: <Record><Method?>Builder<Ordinal?>.
func (b Builder) Name() string {
	name := b.Record.Name
	if b.Bound() {
		name += b.Method.String()
	}
	name += "Builder"
	if b.Ordinal > 0 {
		name += strconv.Itoa(b.Ordinal)
	}
	return name
}

// ContainerName returns the name of the builder's container type.
func (b Builder) ContainerName() string {
	return b.Name() + "Container"
}

// constructorName picks the constructor method for b. single reports whether
// b is the only builder of its record.
func constructorName(b Builder, single bool) string {
	switch {
	case b.Bound() && single:
		return strcase.ToSnake(string(b.Method))
	case b.OpID != "":
		return strcase.ToSnake(b.OpID)
	case b.Bound():
		name := strcase.ToSnake(string(b.Method))
		if b.Ordinal > 0 {
			name += "_" + strconv.Itoa(b.Ordinal)
		}
		return name
	default:
		return genericConstructor
	}
}

// Impl is the constructor block of a record, one constructor per builder.
type Impl struct {
	Record   *genspec.Record
	Builders []Builder
}

// NewImpl collects the builders of r into its constructor block.
func NewImpl(r *genspec.Record) Impl {
	return Impl{Record: r, Builders: CollectBuilders(r)}
}

// ConstructorNames returns the constructor method name of every builder, in
// builder order.
func (im Impl) ConstructorNames() []string {
	single := len(im.Builders) == 1
	out := make([]string, 0, len(im.Builders))
	for _, b := range im.Builders {
		out = append(out, constructorName(b, single))
	}
	return out
}
