package spec

import (
	"sort"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Internal Model (IM) definitions used by the resolver and emitters.
//
// A Record is built once by the resolver and only read afterwards. Emitters
// derive builder descriptors that point back into the record; they must not
// mutate it.

type HttpMethod string

const (
	GET     HttpMethod = "get"
	POST    HttpMethod = "post"
	PUT     HttpMethod = "put"
	DELETE  HttpMethod = "delete"
	PATCH   HttpMethod = "patch"
	HEAD    HttpMethod = "head"
	OPTIONS HttpMethod = "options"
	TRACE   HttpMethod = "trace"
)

// Methods lists every supported method in iteration order.
var Methods = []HttpMethod{GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS, TRACE}

// String returns the display form used in type names ("Get", "Delete").
// A Caser is stateful, so each call builds its own.
func (m HttpMethod) String() string {
	return cases.Title(language.English).String(string(m))
}

func (m HttpMethod) rank() int {
	for i, known := range Methods {
		if known == m {
			return i
		}
	}
	return len(Methods)
}

// Record is a generated API object: its fields and the operations bound to it.
type Record struct {
	// Name of the type (camel-cased), unique within a generation unit.
	Name string
	// Module is the path to this record from the generated models module.
	Module string
	// Fields in declaration order.
	Fields []Field
	// Paths maps a path identifier to the operations addressing this record.
	Paths map[string]*PathOps
}

// NewRecord returns an empty record with the given name.
func NewRecord(name string) *Record {
	return &Record{Name: name, Paths: map[string]*PathOps{}}
}

// SortedPaths returns the bound path identifiers in lexical order.
func (r *Record) SortedPaths() []string {
	keys := make([]string, 0, len(r.Paths))
	for p := range r.Paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	return keys
}

// HasRequiredField reports whether at least one field is required.
func (r *Record) HasRequiredField() bool {
	for _, f := range r.Fields {
		if f.Required {
			return true
		}
	}
	return false
}

// Field is a struct field of a record.
type Field struct {
	// Name is the snake-cased identifier.
	Name string
	// Rename is the wire name, when it differs from Name.
	Rename string
	// TypePath is the target type as a path.
	TypePath string
	Required bool
	// Boxed marks fields stored behind an indirection (self references).
	Boxed bool
}

// WireRename returns the wire name when it differs from the identifier.
func (f Field) WireRename() (string, bool) {
	if f.Rename == "" || f.Rename == f.Name {
		return "", false
	}
	return f.Rename, true
}

// PathOps holds the operations of one path bound to a record.
type PathOps struct {
	Ops map[HttpMethod]OpRequirement
	// Params are shared by every operation on the path.
	Params []Parameter
}

// NewPathOps returns an empty PathOps.
func NewPathOps() *PathOps {
	return &PathOps{Ops: map[HttpMethod]OpRequirement{}}
}

// SortedMethods returns the bound methods in Methods order.
func (p *PathOps) SortedMethods() []HttpMethod {
	out := make([]HttpMethod, 0, len(p.Ops))
	for m := range p.Ops {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		ri, rj := out[i].rank(), out[j].rank()
		if ri != rj {
			return ri < rj
		}
		return out[i] < out[j]
	})
	return out
}

// OpRequirement is what an operation needs from its record.
type OpRequirement struct {
	// ID is the operation ID, if the document provides one.
	ID string
	// Params are the operation-specific parameters.
	Params []Parameter
	// BodyRequired reports whether the record itself is required in the body.
	BodyRequired bool
}

// Parameter is a header, path, query or form parameter.
type Parameter struct {
	// Name is the snake-cased identifier.
	Name string
	// TypePath is the target type as a path.
	TypePath string
	Required bool
}
