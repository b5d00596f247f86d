package rsemitter

import (
	"bytes"
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/iancoleman/strcase"
	"go.uber.org/zap"

	genspec "github.com/mark3labs/swagger2rs/internal/spec"
)

// ErrCollision is returned in strict mode when two attributes of a builder
// share a name.
var ErrCollision = errors.New("rsemitter: attribute name collision")

// DefaultModule is the models module records are emitted into.
const DefaultModule = "models"

// Options controls how the Rust emitter renders a crate.
type Options struct {
	OutDir string // required; target directory to write the sources
	// Module is the models module name; defaults to DefaultModule.
	Module string
	// HelperPrefix qualifies the marker types; defaults to DefaultHelperPrefix.
	HelperPrefix string
	Force        bool // overwrite existing files
	DryRun       bool // don't write, only plan
	// Strict fails on attribute collisions instead of dropping duplicates.
	Strict bool
	Logger *zap.Logger
}

// PlannedFile describes a file the emitter intends to write.
type PlannedFile struct {
	RelPath string
	Size    int
	Mode    os.FileMode
}

// Result returns the planned files and what was rendered.
type Result struct {
	Module   string
	Records  int
	Builders int
	Planned  []PlannedFile
}

// Emit renders the records into Rust sources: lib.rs, generics.rs, and one
// file per record under the models module.
func Emit(ctx context.Context, records []*genspec.Record, opts Options) (*Result, error) {
	_ = ctx
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, errors.New("rsemitter: OutDir is required")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	module := strings.TrimSpace(opts.Module)
	if module == "" {
		module = DefaultModule
	}
	prefix := opts.HelperPrefix
	if prefix == "" {
		prefix = DefaultHelperPrefix
	}

	sorted := append([]*genspec.Record(nil), records...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	files := map[string][]byte{}
	files["lib.rs"] = []byte("pub mod generics;\npub mod " + module + ";\n")

	var generics bytes.Buffer
	if err := WriteGenerics(&generics); err != nil {
		return nil, errors.Wrap(err, "render generics")
	}
	files["generics.rs"] = generics.Bytes()

	var modRS strings.Builder
	builders := 0
	for _, r := range sorted {
		if r == nil {
			continue
		}
		fileMod := recordModule(r)
		rel := path.Join(module, fileMod+".rs")
		if _, dup := files[rel]; dup {
			return nil, errors.Newf("rsemitter: records map to the same file %s", rel)
		}

		im := NewImpl(r)
		for _, b := range im.Builders {
			for _, c := range b.Collisions() {
				fields := []zap.Field{
					zap.String("record", r.Name),
					zap.String("builder", b.Name()),
					zap.String("attribute", c.Name),
					zap.Stringer("kept", c.Kept),
					zap.Stringer("dropped", c.Dropped),
				}
				if opts.Strict {
					log.Warn("attribute collision", fields...)
					return nil, errors.Wrapf(ErrCollision, "%s: %q declared as %s and %s", b.Name(), c.Name, c.Kept, c.Dropped)
				}
				log.Debug("dropped duplicate attribute", fields...)
			}
		}
		builders += len(im.Builders)

		var buf bytes.Buffer
		buf.WriteString("#![allow(unused_imports)]\nuse serde::{Deserialize, Serialize};\n\n")
		if err := WriteObject(&buf, r, prefix); err != nil {
			return nil, errors.Wrapf(err, "render %s", r.Name)
		}
		files[rel] = buf.Bytes()
		modRS.WriteString("pub mod " + fileMod + ";\npub use self::" + fileMod + "::" + r.Name + ";\n")
		log.Debug("rendered record", zap.String("record", r.Name), zap.String("file", rel), zap.Int("count", len(im.Builders)))
	}
	files[path.Join(module, "mod.rs")] = []byte(modRS.String())

	// Plan in deterministic order
	rels := make([]string, 0, len(files))
	for p := range files {
		rels = append(rels, p)
	}
	sort.Strings(rels)

	planned := make([]PlannedFile, 0, len(rels))
	for _, rel := range rels {
		planned = append(planned, PlannedFile{RelPath: rel, Size: len(files[rel]), Mode: 0o644})
	}

	if !opts.DryRun {
		if err := writeFiles(opts.OutDir, files, opts.Force); err != nil {
			return nil, err
		}
		log.Info("wrote sources", zap.String("path", opts.OutDir), zap.Int("count", len(planned)))
	}

	return &Result{Module: module, Records: len(sorted), Builders: builders, Planned: planned}, nil
}

func recordModule(r *genspec.Record) string {
	if m := strings.TrimSpace(r.Module); m != "" {
		return m
	}
	return strcase.ToSnake(r.Name)
}

func writeFiles(outDir string, files map[string][]byte, force bool) error {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return errors.Wrap(err, "resolve out dir")
	}
	// Pre-flight: if directory exists and not empty and not force, error.
	if st, err := os.Stat(abs); err == nil && st.IsDir() && !force {
		entries, rerr := os.ReadDir(abs)
		if rerr == nil && len(entries) > 0 {
			return errors.Newf("rsemitter: output directory %q is not empty (use --force to overwrite)", abs)
		}
	}
	for rel, content := range files {
		p := filepath.Join(abs, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return errors.Wrap(err, "mkdir")
		}
		// atomic write via temp file + rename
		tmp := p + ".tmp-" + time.Now().Format("20060102150405")
		if err := os.WriteFile(tmp, content, 0o644); err != nil {
			return errors.Wrapf(err, "write temp %s", rel)
		}
		if err := os.Rename(tmp, p); err != nil {
			_ = os.Remove(tmp)
			return errors.Wrapf(err, "rename %s", rel)
		}
	}
	return nil
}
