package rsemitter

import (
	"io"
	"strings"

	genspec "github.com/mark3labs/swagger2rs/internal/spec"
)

const phantom = "core::marker::PhantomData"

// DefaultHelperPrefix qualifies the marker types in generated code.
const DefaultHelperPrefix = "crate::generics::"

// sink keeps the first write error and ignores everything after it.
type sink struct {
	w   io.Writer
	err error
}

func (s *sink) str(parts ...string) {
	for _, p := range parts {
		if s.err != nil {
			return
		}
		_, s.err = io.WriteString(s.w, p)
	}
}

// WriteRecord renders the record type.
func WriteRecord(w io.Writer, r *genspec.Record) error {
	s := &sink{w: w}
	s.str("#[derive(Debug, Default, Clone, Deserialize, Serialize)]\npub struct ", r.Name, " {")
	for _, f := range r.Fields {
		s.str("\n    ")
		if rename, ok := f.WireRename(); ok {
			s.str("#[serde(rename = \"", rename, "\")]\n    ")
		}
		s.str("pub ", f.Name, ": ", fieldType(f), ",")
	}
	if len(r.Fields) > 0 {
		s.str("\n")
	}
	s.str("}\n")
	return s.err
}

// fieldType wraps boxed fields in Box and optional ones in Option, Box innermost.
func fieldType(f genspec.Field) string {
	ty := f.TypePath
	if f.Boxed {
		ty = "Box<" + ty + ">"
	}
	if !f.Required {
		ty = "Option<" + ty + ">"
	}
	return ty
}

// generics renders the type parameter list. With a prefix, every slot is
// instantiated with the shared missing marker instead.
func (b Builder) generics(prefix string, missing bool) string {
	slots := b.Slots()
	if len(slots) == 0 {
		return ""
	}
	args := make([]string, len(slots))
	for i, slot := range slots {
		if missing {
			args[i] = prefix + "Missing"
		} else {
			args[i] = slot
		}
	}
	return "<" + strings.Join(args, ", ") + ">"
}

// WriteBuilder renders the builder type followed by its container, if any.
func WriteBuilder(w io.Writer, b Builder) error {
	s := &sink{w: w}
	container := b.NeedsContainer()
	hasFields := b.hasFields()

	if container {
		s.str("#[repr(transparent)]\n")
	}
	s.str("#[derive(Debug, Clone)]\npub struct ", b.Name(), b.generics("", false))

	if !hasFields && !b.BodyRequired && !container {
		s.str(";\n")
		return s.err
	}
	s.str(" {")

	var inner strings.Builder
	if container {
		inner.WriteString("#[derive(Debug, Default, Clone)]\nstruct " + b.ContainerName() + " {")
		if b.BodyRequired {
			inner.WriteString("\n    body: " + b.Record.Name + ",")
		}
		s.str("\n    inner: ", b.ContainerName(), ",")
	} else if b.BodyRequired {
		s.str("\n    body: ", b.Record.Name, ",")
	}

	slots := b.Slots()
	next := 0
	for _, a := range b.Attributes() {
		if a.Property.IsParameter() {
			param := "\n    " + a.ParamField() + ": Option<" + a.TypePath + ">,"
			if container {
				inner.WriteString(param)
			} else {
				s.str(param)
			}
		}
		if a.Property.IsRequired() {
			s.str("\n    ", a.MarkerField(), ": ", phantom, "<", slots[next], ">,")
			next++
		}
	}
	s.str("\n}\n")

	if container {
		s.str("\n", inner.String(), "\n}\n")
	}
	return s.err
}

// WriteImpl renders the constructor block. Nothing is written for a record
// without builders.
func WriteImpl(w io.Writer, im Impl, helperPrefix string) error {
	if len(im.Builders) == 0 {
		return nil
	}
	s := &sink{w: w}
	names := im.ConstructorNames()

	s.str("impl ", im.Record.Name, " {")
	for i, b := range im.Builders {
		container := b.NeedsContainer()
		s.str("\n    #[inline]\n    pub fn ", names[i], "() -> ", b.Name(), b.generics(helperPrefix, true), " {")
		s.str("\n        ", b.Name(), " {")
		if container {
			s.str("\n            inner: Default::default(),")
		} else if b.BodyRequired {
			s.str("\n            body: Default::default(),")
		}
		for _, a := range b.Attributes() {
			switch {
			case a.Property.IsRequired():
				s.str("\n            ", a.MarkerField(), ": ", phantom, ",")
			case a.Property.IsParameter() && !container:
				s.str("\n            ", a.ParamField(), ": None,")
			}
		}
		s.str("\n        }\n    }")
	}
	s.str("\n}\n")
	return s.err
}

// WriteGenerics renders the marker types every builder slot is instantiated with.
func WriteGenerics(w io.Writer) error {
	s := &sink{w: w}
	s.str("/// Marks a required attribute that has not been set yet.\n",
		"#[derive(Debug, Clone, Copy, Default)]\npub struct Missing;\n\n",
		"/// Marks a required attribute that has been set.\n",
		"#[derive(Debug, Clone, Copy, Default)]\npub struct Present;\n")
	return s.err
}

// RenderRecord renders the record, its builders and its constructor block.
func RenderRecord(r *genspec.Record, helperPrefix string) string {
	var sb strings.Builder
	// strings.Builder never fails
	_ = WriteObject(&sb, r, helperPrefix)
	return sb.String()
}

// WriteObject renders the record type, its constructor block and every
// builder, separated by blank lines.
func WriteObject(w io.Writer, r *genspec.Record, helperPrefix string) error {
	if err := WriteRecord(w, r); err != nil {
		return err
	}
	im := NewImpl(r)
	if len(im.Builders) > 0 {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := WriteImpl(w, im, helperPrefix); err != nil {
			return err
		}
	}
	for _, b := range im.Builders {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
		if err := WriteBuilder(w, b); err != nil {
			return err
		}
	}
	return nil
}
