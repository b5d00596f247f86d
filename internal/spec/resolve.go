package spec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/iancoleman/strcase"
	"go.uber.org/zap"
)

const schemaRefPrefix = "#/components/schemas/"

// BuildOption configures how records are resolved from an OpenAPI doc.
type BuildOption func(*buildConfig)

type buildConfig struct {
	includeTags map[string]struct{}
	excludeTags map[string]struct{}
	methods     map[HttpMethod]struct{}
	pathRes     []*regexp.Regexp
	err         error
	log         *zap.Logger
}

// WithIncludeTags keeps only operations that have at least one of the given tags.
func WithIncludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.includeTags = addTags(c.includeTags, tags)
	}
}

// WithExcludeTags drops operations that have any of the given tags.
func WithExcludeTags(tags []string) BuildOption {
	return func(c *buildConfig) {
		c.excludeTags = addTags(c.excludeTags, tags)
	}
}

func addTags(set map[string]struct{}, tags []string) map[string]struct{} {
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if set == nil {
			set = make(map[string]struct{}, len(tags))
		}
		set[t] = struct{}{}
	}
	return set
}

// WithMethods keeps only operations using one of the provided HTTP methods.
func WithMethods(methods []HttpMethod) BuildOption {
	return func(c *buildConfig) {
		for _, m := range methods {
			if c.methods == nil {
				c.methods = make(map[HttpMethod]struct{}, len(methods))
			}
			c.methods[HttpMethod(strings.ToLower(string(m)))] = struct{}{}
		}
	}
}

// WithPathPatterns keeps only paths matching at least one regular expression.
// An invalid pattern makes BuildRecords fail.
func WithPathPatterns(patterns []string) BuildOption {
	return func(c *buildConfig) {
		for _, p := range patterns {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			re, err := regexp.Compile(p)
			if err != nil {
				if c.err == nil {
					c.err = fmt.Errorf("path pattern %q: %w", p, err)
				}
				continue
			}
			c.pathRes = append(c.pathRes, re)
		}
	}
}

// WithBuildLogger sets the logger used while resolving.
func WithBuildLogger(l *zap.Logger) BuildOption {
	return func(c *buildConfig) { c.log = l }
}

// resolver turns component schemas into records and binds operations to them.
type resolver struct {
	doc     *openapi3.T
	cfg     *buildConfig
	records map[string]*Record // by component name
}

// BuildRecords resolves every object schema in components.schemas into a
// Record and binds each operation whose request body or 2xx response
// references it. Records are returned sorted by name.
func BuildRecords(ctx context.Context, doc *openapi3.T, opts ...BuildOption) ([]*Record, error) {
	_ = ctx
	if doc == nil {
		return nil, fmt.Errorf("nil document")
	}
	cfg := &buildConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.err != nil {
		return nil, cfg.err
	}
	if cfg.log == nil {
		cfg.log = zap.NewNop()
	}

	rs := &resolver{doc: doc, cfg: cfg, records: map[string]*Record{}}
	rs.collectRecords()
	rs.bindPaths()

	out := make([]*Record, 0, len(rs.records))
	for _, r := range rs.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (rs *resolver) schemas() openapi3.Schemas {
	if rs.doc.Components == nil {
		return nil
	}
	return rs.doc.Components.Schemas
}

func (rs *resolver) collectRecords() {
	schemas := rs.schemas()
	names := sortedKeys(schemas)
	// Register first so fields can reference records declared later.
	for _, name := range names {
		ref := schemas[name]
		if ref == nil || ref.Ref != "" || ref.Value == nil || !isObject(ref.Value) {
			continue
		}
		r := NewRecord(strcase.ToCamel(name))
		r.Module = fieldIdent(name)
		rs.records[name] = r
	}
	edges := rs.recordEdges()
	for _, name := range names {
		r, ok := rs.records[name]
		if !ok {
			continue
		}
		s := schemas[name].Value
		required := make(map[string]bool, len(s.Required))
		for _, n := range s.Required {
			required[n] = true
		}
		props := sortedKeys(s.Properties)
		idents := fieldIdents(props)
		for _, prop := range props {
			pref := s.Properties[prop]
			ident := idents[prop]
			target, direct := rs.recordRef(pref)
			f := Field{
				Name:     ident,
				TypePath: rs.typePath(pref),
				Required: required[prop],
				Boxed:    direct && reaches(edges, target, name),
			}
			if ident != prop {
				f.Rename = prop
			}
			r.Fields = append(r.Fields, f)
		}
		rs.cfg.log.Debug("resolved record", zap.String("record", r.Name), zap.Int("count", len(r.Fields)))
	}
}

// fieldIdents assigns a unique Rust identifier to every property of one
// record. A property whose wire name is already a valid identifier keeps it;
// the others get a numeric suffix on collision.
func fieldIdents(props []string) map[string]string {
	out := make(map[string]string, len(props))
	used := make(map[string]bool, len(props))
	for _, prop := range props {
		if ident := fieldIdent(prop); ident == prop && !used[ident] {
			out[prop] = ident
			used[ident] = true
		}
	}
	for _, prop := range props {
		if _, ok := out[prop]; ok {
			continue
		}
		base := fieldIdent(prop)
		ident := base
		for i := 1; used[ident]; i++ {
			ident = base + "_" + strconv.Itoa(i)
		}
		out[prop] = ident
		used[ident] = true
	}
	return out
}

// recordRef reports the component name of the record a property embeds by
// value. Array items never count.
func (rs *resolver) recordRef(ref *openapi3.SchemaRef) (string, bool) {
	if ref == nil || ref.Ref == "" {
		return "", false
	}
	name := strings.TrimPrefix(ref.Ref, schemaRefPrefix)
	if _, ok := rs.records[name]; !ok {
		return "", false
	}
	return name, true
}

// recordEdges maps each record to the records its fields embed by value.
func (rs *resolver) recordEdges() map[string][]string {
	schemas := rs.schemas()
	edges := make(map[string][]string, len(rs.records))
	for name := range rs.records {
		for _, prop := range sortedKeys(schemas[name].Value.Properties) {
			if target, ok := rs.recordRef(schemas[name].Value.Properties[prop]); ok {
				edges[name] = append(edges[name], target)
			}
		}
	}
	return edges
}

// reaches reports whether to is reachable from from, including from == to.
// A field embedding a record that reaches back to its owner closes a cycle
// and must be boxed.
func reaches(edges map[string][]string, from, to string) bool {
	seen := map[string]bool{}
	stack := []string{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, edges[n]...)
	}
	return false
}

func isObject(s *openapi3.Schema) bool {
	return s.Type == "object" || (s.Type == "" && len(s.Properties) > 0)
}

// typePath maps a schema to the Rust type used for fields and parameters.
func (rs *resolver) typePath(ref *openapi3.SchemaRef) string {
	if ref == nil {
		return "serde_json::Value"
	}
	if ref.Ref != "" {
		name := strings.TrimPrefix(ref.Ref, schemaRefPrefix)
		if r, ok := rs.records[name]; ok {
			return "super::" + r.Module + "::" + r.Name
		}
		// Aliases of scalars resolve to the aliased type.
		if target, ok := rs.schemas()[name]; ok && target != nil && target.Ref == "" && target.Value != nil {
			return rs.typePath(&openapi3.SchemaRef{Value: target.Value})
		}
		return "serde_json::Value"
	}
	s := ref.Value
	if s == nil {
		return "serde_json::Value"
	}
	switch s.Type {
	case "integer":
		if s.Format == "int32" {
			return "i32"
		}
		return "i64"
	case "number":
		if s.Format == "float" {
			return "f32"
		}
		return "f64"
	case "boolean":
		return "bool"
	case "string":
		return "String"
	case "array":
		return "Vec<" + rs.typePath(s.Items) + ">"
	}
	return "serde_json::Value"
}

func (rs *resolver) bindPaths() {
	if rs.doc.Paths == nil {
		return
	}
	// In kin-openapi v0.116, Paths is a map[string]*PathItem
	for _, p := range sortedKeys(rs.doc.Paths) {
		item := rs.doc.Paths[p]
		if item == nil || !rs.allowPath(p) {
			continue
		}
		for _, pair := range []struct {
			m HttpMethod
			o *openapi3.Operation
		}{
			{GET, item.Get},
			{POST, item.Post},
			{PUT, item.Put},
			{DELETE, item.Delete},
			{PATCH, item.Patch},
			{HEAD, item.Head},
			{OPTIONS, item.Options},
			{TRACE, item.Trace},
		} {
			if pair.o == nil || !rs.allowOperation(pair.m, pair.o) {
				continue
			}
			name, bodyRequired, ok := rs.boundRecord(pair.o)
			if !ok {
				continue
			}
			r := rs.records[name]
			ops, ok := r.Paths[p]
			if !ok {
				ops = NewPathOps()
				ops.Params = rs.parameters(item.Parameters)
				r.Paths[p] = ops
			}
			ops.Ops[pair.m] = OpRequirement{
				ID:           strings.TrimSpace(pair.o.OperationID),
				Params:       rs.parameters(pair.o.Parameters),
				BodyRequired: bodyRequired,
			}
			rs.cfg.log.Debug("bound operation",
				zap.String("record", r.Name), zap.String("path", p), zap.String("method", string(pair.m)))
		}
	}
}

// boundRecord finds the record an operation addresses: its request body
// first, then its first 2xx response by status code.
func (rs *resolver) boundRecord(op *openapi3.Operation) (string, bool, bool) {
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if name, ok := rs.contentRecord(op.RequestBody.Value.Content); ok {
			return name, op.RequestBody.Value.Required, true
		}
	}
	// In kin-openapi v0.116, Responses is a map[string]*ResponseRef
	for _, code := range sortedKeys(op.Responses) {
		if !strings.HasPrefix(code, "2") {
			continue
		}
		resp := op.Responses[code]
		if resp == nil || resp.Value == nil {
			continue
		}
		if name, ok := rs.contentRecord(resp.Value.Content); ok {
			return name, false, true
		}
	}
	return "", false, false
}

func (rs *resolver) contentRecord(content openapi3.Content) (string, bool) {
	for _, mime := range sortedKeys(content) {
		mt := content[mime]
		if mt == nil || mt.Schema == nil {
			continue
		}
		ref := mt.Schema
		if ref.Ref == "" && ref.Value != nil && ref.Value.Type == "array" && ref.Value.Items != nil {
			ref = ref.Value.Items
		}
		name := strings.TrimPrefix(ref.Ref, schemaRefPrefix)
		if _, ok := rs.records[name]; ok && ref.Ref != "" {
			return name, true
		}
	}
	return "", false
}

func (rs *resolver) parameters(refs openapi3.Parameters) []Parameter {
	var out []Parameter
	for _, pref := range refs {
		if pref == nil || pref.Value == nil {
			continue
		}
		p := pref.Value
		ty := "String"
		if p.Schema != nil {
			ty = rs.typePath(p.Schema)
		}
		out = append(out, Parameter{
			Name:     fieldIdent(p.Name),
			TypePath: ty,
			Required: p.Required || p.In == openapi3.ParameterInPath,
		})
	}
	return out
}

func (rs *resolver) allowPath(p string) bool {
	if len(rs.cfg.pathRes) == 0 {
		return true
	}
	for _, re := range rs.cfg.pathRes {
		if re.MatchString(p) {
			return true
		}
	}
	return false
}

func (rs *resolver) allowOperation(m HttpMethod, op *openapi3.Operation) bool {
	if len(rs.cfg.methods) > 0 {
		if _, ok := rs.cfg.methods[m]; !ok {
			return false
		}
	}
	return allowByTags(op.Tags, rs.cfg)
}

func allowByTags(tags []string, cfg *buildConfig) bool {
	if len(cfg.includeTags) > 0 {
		ok := false
		for _, t := range tags {
			if _, yes := cfg.includeTags[strings.TrimSpace(t)]; yes {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, t := range tags {
		if _, blocked := cfg.excludeTags[strings.TrimSpace(t)]; blocked {
			return false
		}
	}
	return true
}

var rustKeywords = map[string]bool{
	"as": true, "async": true, "await": true, "break": true, "const": true,
	"continue": true, "crate": true, "dyn": true, "else": true, "enum": true,
	"extern": true, "false": true, "fn": true, "for": true, "if": true,
	"impl": true, "in": true, "let": true, "loop": true, "match": true,
	"mod": true, "move": true, "mut": true, "pub": true, "ref": true,
	"return": true, "self": true, "static": true, "struct": true, "super": true,
	"trait": true, "true": true, "type": true, "unsafe": true, "use": true,
	"where": true, "while": true, "yield": true,
}

// fieldIdent converts a wire name into a snake-cased identifier. Keywords get
// a trailing underscore so derived names like param_type_ stay valid.
func fieldIdent(name string) string {
	s := strcase.ToSnake(name)
	s = strings.Map(func(r rune) rune {
		if r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, s)
	s = strings.Trim(s, "_")
	if s == "" {
		return "field"
	}
	if unicode.IsDigit(rune(s[0])) {
		s = "field_" + s
	}
	if rustKeywords[s] {
		s += "_"
	}
	return s
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
