package stack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"

	"github.com/provio/provio/pkg/engine"
)

// Parser loads and validates stack manifests.
type Parser struct {
	ctx        *cue.Context
	registry   *SchemaRegistry
	validator  *validator.Validate
	predicates *PredicateCompiler
}

// NewParser creates a parser with the built-in schemas.
func NewParser() *Parser {
	return &Parser{
		ctx:        cuecontext.New(),
		registry:   NewSchemaRegistry(),
		validator:  validator.New(),
		predicates: NewPredicateCompiler(0),
	}
}

// Registry returns the parser's schema registry.
func (p *Parser) Registry() *SchemaRegistry {
	return p.registry
}

// Parse loads a manifest from a CUE file or directory. Multiple CUE files
// in a directory unify into one manifest.
func (p *Parser) Parse(ctx context.Context, source string) (*Manifest, error) {
	info, err := os.Stat(source)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source %s: %w", source, err)
	}

	var val cue.Value
	var files []string
	if info.IsDir() {
		val, files, err = p.loadDirectory(source)
	} else {
		val, err = p.loadFile(source)
		files = []string{source}
	}
	if err != nil {
		return nil, err
	}

	return p.extract(ctx, val, files)
}

// ParseInline parses inline CUE content, for tests and stdin input.
func (p *Parser) ParseInline(ctx context.Context, content string) (*Manifest, error) {
	val := p.ctx.CompileString(content, cue.Filename("inline"))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %s", cueerrors.Details(err, nil))
	}
	return p.extract(ctx, val, []string{"inline"})
}

// BuildSteps converts a parsed stack into engine steps, compiling each poll
// predicate. The engine's sequence validation (reference order, duplicate
// names) runs afterwards so validate-and-deploy share one code path.
func (p *Parser) BuildSteps(stack *StackConfig) ([]engine.Step, error) {
	steps := make([]engine.Step, 0, len(stack.Steps))
	for i := range stack.Steps {
		sc := &stack.Steps[i]
		var predicate engine.Predicate
		if sc.Poll != nil && sc.Poll.Predicate != "" {
			compiled, err := p.predicates.Compile(sc.Poll.Predicate)
			if err != nil {
				return nil, engine.NewStepGraphError(
					fmt.Sprintf("step %q: %v", sc.Name, err))
			}
			predicate = compiled
		}
		steps = append(steps, sc.toStep(predicate))
	}
	return steps, nil
}

// Load is the common entry: parse a manifest source, validate it, and build
// the engine step sequence.
func (p *Parser) Load(ctx context.Context, source string) (*Manifest, []engine.Step, error) {
	manifest, err := p.Parse(ctx, source)
	if err != nil {
		return nil, nil, err
	}
	steps, err := p.BuildSteps(&manifest.Stack)
	if err != nil {
		return nil, nil, err
	}
	if err := engine.ValidateSequence(steps); err != nil {
		return nil, nil, err
	}
	return manifest, steps, nil
}

// loadDirectory compiles every .cue file in the directory and unifies the
// results into one value. Manifest files are plain CUE without a package
// clause, so they are loaded individually rather than as a package
// instance.
func (p *Parser) loadDirectory(dir string) (cue.Value, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return cue.Value{}, nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".cue") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	if len(files) == 0 {
		return cue.Value{}, nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	var val cue.Value
	for i, path := range files {
		fileVal, err := p.loadFile(path)
		if err != nil {
			return cue.Value{}, nil, err
		}
		if i == 0 {
			val = fileVal
		} else {
			val = val.Unify(fileVal)
		}
	}
	if err := val.Err(); err != nil {
		return cue.Value{}, nil, fmt.Errorf("failed to unify %s: %s", dir, cueerrors.Details(err, nil))
	}
	return val, files, nil
}

func (p *Parser) loadFile(path string) (cue.Value, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("failed to parse %s: %s", path, cueerrors.Details(err, nil))
	}
	return val, nil
}

// extract decodes the stack, then validates it against the CUE schema and
// the struct tags. Both run: the schema catches shape errors with good
// positions, the tags catch range errors after defaulting.
func (p *Parser) extract(ctx context.Context, val cue.Value, files []string) (*Manifest, error) {
	stackVal := val.LookupPath(cue.ParsePath("stack"))
	if !stackVal.Exists() {
		return nil, fmt.Errorf("manifest has no \"stack\" definition")
	}

	var stack StackConfig
	if err := stackVal.Decode(&stack); err != nil {
		return nil, fmt.Errorf("failed to decode stack: %s", cueerrors.Details(err, nil))
	}

	if err := p.registry.ValidateStack(ctx, stack); err != nil {
		return nil, err
	}
	if err := p.validator.Struct(stack); err != nil {
		return nil, fmt.Errorf("stack validation failed: %w", err)
	}

	return &Manifest{
		Stack:       stack,
		SourceFiles: files,
		ParsedAt:    time.Now(),
	}, nil
}
