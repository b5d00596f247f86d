package spec

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	openapi2 "github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	jsonyaml "github.com/invopop/yaml"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	ParseError      ErrorCode = "ParseError"
	ValidationError ErrorCode = "ValidationError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecError is a structured error with optional location and JSON Pointer.
type SpecError struct {
	Code        ErrorCode
	Message     string
	Location    string // file path
	JSONPointer string // e.g. "#/paths/~1pets/get"
	Cause       error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// Settings configures loader behavior.
type Settings struct {
	// Logger receives warnings for documents loaded in permissive mode.
	Logger *zap.Logger
	// Strict fails on validation errors that would otherwise be tolerated.
	Strict bool
}

// Option mutates Settings.
type Option func(*Settings)

// WithLogger sets the logger used while loading.
func WithLogger(l *zap.Logger) Option {
	return func(s *Settings) { s.Logger = l }
}

// WithStrict makes tolerated validation errors fatal.
func WithStrict(strict bool) Option {
	return func(s *Settings) { s.Strict = strict }
}

// Load reads and validates a local OpenAPI v3 or Swagger v2.0 document. v2
// documents are converted to v3 via kin-openapi openapi2conv. External refs
// may only point at other local files.
func Load(ctx context.Context, input string, opts ...Option) (*openapi3.T, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := Settings{}
	for _, opt := range opts {
		opt(&settings)
	}
	if settings.Logger == nil {
		settings.Logger = zap.NewNop()
	}

	if u, err := url.Parse(input); err == nil && u.Scheme != "" && u.Host != "" {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: remote documents are not supported (%s); download it first", u.Scheme), Location: input}
	}

	abs, err := filepath.Abs(input)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
	}

	version, err := detectSpecVersion(raw)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: err.Error(), Location: abs, Cause: err}
	}

	var doc *openapi3.T
	switch version {
	case 3:
		doc, err = newLoader().LoadFromFile(abs)
		if err != nil {
			return nil, mapValidateOrParseErr(err, abs)
		}
	case 2:
		if fixed, changed, _ := preprocessV2ForCompatibility(raw); changed {
			settings.Logger.Debug("rewrote swagger 2 operations for conversion", zap.String("file", abs))
			raw = fixed
		}
		doc, err = convertV2ToV3(raw)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v2→v3: %v", err), Location: abs, Cause: err}
		}
		if err := newLoader().ResolveRefsIn(doc, nil); err != nil {
			settings.Logger.Warn("failed to resolve refs after conversion", zap.String("file", abs), zap.Error(err))
		}
	default:
		return nil, &SpecError{Code: ParseError, Message: "spec: unknown or unsupported OpenAPI/Swagger version", Location: abs}
	}

	if err := doc.Validate(ctx); err != nil {
		if settings.Strict || !canProceedDespiteValidation(err) {
			return nil, mapValidateOrParseErr(err, abs)
		}
		settings.Logger.Warn("proceeding despite validation error", zap.String("file", abs), zap.Error(err))
	}
	return doc, nil
}

func newLoader() *openapi3.Loader {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	loader.ReadFromURIFunc = func(l *openapi3.Loader, uri *url.URL) ([]byte, error) {
		switch strings.ToLower(uri.Scheme) {
		case "", "file":
			path := uri.Path
			if path == "" {
				path = uri.Opaque
			}
			return os.ReadFile(path)
		default:
			return nil, fmt.Errorf("blocked non-local ref: %s", uri.String())
		}
	}
	return loader
}

var (
	openapi3Range = mustConstraint(">= 3.0, < 4")
	swagger2Range = mustConstraint("~2.0")
)

func mustConstraint(c string) *semver.Constraints {
	out, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return out
}

// detectSpecVersion returns 3 for OpenAPI v3, 2 for Swagger v2, else error.
func detectSpecVersion(data []byte) (int, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return 0, fmt.Errorf("parse spec: %w", err)
	}
	if v, ok := declaredVersion(root, "openapi"); ok && openapi3Range.Check(v) {
		return 3, nil
	}
	if v, ok := declaredVersion(root, "swagger"); ok && swagger2Range.Check(v) {
		return 2, nil
	}
	return 0, fmt.Errorf("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

// declaredVersion reads a version field; unquoted YAML numbers like 2.0 are accepted.
func declaredVersion(root map[string]any, key string) (*semver.Version, bool) {
	raw, ok := root[key]
	if !ok || raw == nil {
		return nil, false
	}
	v, err := semver.NewVersion(strings.TrimSpace(fmt.Sprint(raw)))
	if err != nil {
		return nil, false
	}
	return v, true
}

func convertV2ToV3(data []byte) (*openapi3.T, error) {
	// invopop/yaml goes through the JSON unmarshalers, so $ref survives.
	var v2 openapi2.T
	if err := jsonyaml.Unmarshal(data, &v2); err != nil {
		return nil, err
	}
	return openapi2conv.ToV3(&v2)
}

func mapValidateOrParseErr(err error, location string) error {
	pointer := extractJSONPointer(err)
	code := ValidationError
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "parse") || strings.Contains(lower, "invalid character") {
		code = ParseError
	}
	return &SpecError{Code: code, Message: err.Error(), Location: location, JSONPointer: pointer, Cause: err}
}

var jsonPtrRe = regexp.MustCompile(`#/[^\s'\"]+`)

func extractJSONPointer(err error) string {
	if err == nil {
		return ""
	}
	if me, ok := err.(openapi3.MultiError); ok {
		if len(me) > 0 {
			return extractJSONPointer(me[0])
		}
	}
	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		if parts := se.JSONPointer(); len(parts) > 0 {
			return "#/" + strings.Join(parts, "/")
		}
		if se.SchemaField != "" {
			return se.SchemaField
		}
	}
	if m := jsonPtrRe.FindString(err.Error()); m != "" {
		return m
	}
	return ""
}

// canProceedDespiteValidation tolerates unresolved $ref entries.
func canProceedDespiteValidation(err error) bool {
	if err == nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unresolved ref")
}
