package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/instkey/internal/compiler"
	"github.com/roach88/instkey/internal/ir"
)

// LoadMode controls how errors are handled during scene loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadedScene is one scene found under a scene directory.
type LoadedScene struct {
	// Source is the YAML file, or the directory of the CUE package.
	Source string

	// Digest identifies the source content (ir.SceneDigest).
	Digest string

	Doc *compiler.SceneDoc

	// Scene is nil when Doc failed validation.
	Scene *compiler.Scene
}

// LoadResult contains the results of loading scenes from a directory.
type LoadResult struct {
	// Scenes in source order: YAML files and CUE packages by path, scenes
	// of one CUE package in declaration order.
	Scenes    []LoadedScene
	FileCount int // Number of fixture files found
}

// Scene returns the built scene with the given name.
func (r *LoadResult) Scene(name string) (LoadedScene, bool) {
	for _, s := range r.Scenes {
		if s.Doc.Name == name && s.Scene != nil {
			return s, true
		}
	}
	return LoadedScene{}, false
}

// Built returns the scenes that passed validation.
func (r *LoadResult) Built() []LoadedScene {
	var out []LoadedScene
	for _, s := range r.Scenes {
		if s.Scene != nil {
			out = append(out, s)
		}
	}
	return out
}

// LoadError represents an error that occurred during scene loading.
type LoadError struct {
	Code    string
	Field   string
	Message string
	Source  string    // file or directory, when no CUE position is known
	Pos     token.Pos // CUE position if available
	Line    int       // line from scene validation, when Pos is unknown
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	if e.Source != "" {
		return fmt.Sprintf("%s: %s: %s", e.Source, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ValidationError converts e for validate output.
func (e *LoadError) ValidationError() compiler.ValidationError {
	field := e.Field
	if field == "" {
		field = e.Source
	}
	line := e.Line
	if e.Pos.IsValid() {
		line = e.Pos.Line()
	}
	return compiler.ValidationError{Field: field, Message: e.Message, Code: e.Code, Line: line}
}

// LoadScenes loads every scene fixture under dir and builds the scenes
// that validate. YAML files hold one scene each; the .cue files of one
// directory form a CUE package whose "scene" fields are the scenes.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func LoadScenes(dir string, mode LoadMode) (*LoadResult, []error) {
	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scene directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scene directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	files, err := FindSceneFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(files) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no scene files found in %s", dir)}}
	}

	l := &sceneLoader{
		mode:   mode,
		result: &LoadResult{FileCount: len(files)},
		names:  make(map[string]string),
	}
	for _, src := range groupSources(files) {
		if src.cue {
			l.loadCUEPackage(src.path, src.files)
		} else {
			l.loadYAML(src.path)
		}
		if l.stop() {
			return l.result, l.errs
		}
	}

	// Check if we found anything
	if len(l.result.Scenes) == 0 && len(l.errs) == 0 {
		l.errs = append(l.errs, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no scenes found in %s", dir)})
	}

	return l.result, l.errs
}

type sceneLoader struct {
	mode   LoadMode
	result *LoadResult
	errs   []error
	names  map[string]string // scene name -> source
}

func (l *sceneLoader) fail(err *LoadError) {
	l.errs = append(l.errs, err)
}

func (l *sceneLoader) stop() bool {
	return l.mode == LoadModeFailFast && len(l.errs) > 0
}

func (l *sceneLoader) loadYAML(path string) {
	f, err := compiler.LoadSceneFile(path)
	if err != nil {
		l.fail(&LoadError{Code: ErrCodeDecodeFailed, Message: err.Error(), Source: path})
		return
	}
	for _, doc := range f.Scenes {
		l.add(path, f.Digest, doc)
	}
}

func (l *sceneLoader) loadCUEPackage(dir string, files []string) {
	// Load CUE instances
	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		l.fail(&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded", Source: dir})
		return
	}

	// Check for load errors
	inst := instances[0]
	if inst.Err != nil {
		l.fail(&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err), Source: dir})
		return
	}

	// Build value from instance
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		l.fail(&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err), Source: dir})
		return
	}

	digest, err := digestFiles(files)
	if err != nil {
		l.fail(&LoadError{Code: ErrCodeScanError, Message: err.Error(), Source: dir})
		return
	}

	// Extract scenes
	scenesVal := value.LookupPath(cue.ParsePath("scene"))
	if !scenesVal.Exists() {
		return
	}
	iter, err := scenesVal.Fields()
	if err != nil {
		l.fail(&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating scenes: %v", err), Source: dir})
		return
	}
	for iter.Next() {
		doc, err := compiler.CompileScene(iter.Value())
		if err != nil {
			l.fail(convertCompileError(err, "scene."+iter.Selector().String(), dir))
			if l.stop() {
				return
			}
			continue
		}
		l.add(dir, digest, doc)
		if l.stop() {
			return
		}
	}
}

// add records doc and builds it.
func (l *sceneLoader) add(source, digest string, doc *compiler.SceneDoc) {
	if prev, dup := l.names[doc.Name]; dup && doc.Name != "" {
		l.fail(&LoadError{
			Code:    ErrCodeDuplicateScene,
			Field:   "scene." + doc.Name,
			Message: fmt.Sprintf("scene %q is also defined in %s", doc.Name, prev),
			Source:  source,
		})
		return
	}
	l.names[doc.Name] = source

	loaded := LoadedScene{Source: source, Digest: digest, Doc: doc}
	scene, err := compiler.Build(doc)
	if err != nil {
		var verrs compiler.ValidationErrors
		if errors.As(err, &verrs) {
			for _, ve := range verrs {
				l.fail(&LoadError{
					Code:    ve.Code,
					Field:   ve.Field,
					Message: fmt.Sprintf("scene %s: %s", doc.Name, ve.Message),
					Source:  source,
					Line:    ve.Line,
				})
			}
		} else {
			l.fail(&LoadError{Code: ErrCodeGeneric, Message: err.Error(), Source: source})
		}
	} else {
		loaded.Scene = scene
	}
	l.result.Scenes = append(l.result.Scenes, loaded)
}

type sceneSource struct {
	path  string
	cue   bool
	files []string
}

// groupSources turns a sorted file list into YAML files and CUE package
// directories, ordered by path.
func groupSources(files []string) []sceneSource {
	var (
		out  []sceneSource
		dirs = make(map[string]int)
	)
	for _, f := range files {
		if strings.ToLower(filepath.Ext(f)) != ".cue" {
			out = append(out, sceneSource{path: f})
			continue
		}
		dir := filepath.Dir(f)
		if i, ok := dirs[dir]; ok {
			out[i].files = append(out[i].files, f)
			continue
		}
		dirs[dir] = len(out)
		out = append(out, sceneSource{path: dir, cue: true, files: []string{f}})
	}
	return out
}

// digestFiles digests the concatenated content of files, in order.
func digestFiles(files []string) (string, error) {
	var buf bytes.Buffer
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", f, err)
		}
		fmt.Fprintf(&buf, "%s\x00%d\x00", filepath.Base(f), len(data))
		buf.Write(data)
	}
	return ir.SceneDigest(buf.Bytes()), nil
}

// FindSceneFiles walks the directory and returns all fixture paths
// (.cue, .yaml, .yml), sorted.
func FindSceneFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && compiler.IsSceneFile(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context, source string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Field:   context + "." + compileErr.Field,
			Message: compileErr.Message,
			Source:  source,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Field:   context,
		Message: fmt.Sprintf("%s: %v", context, err),
		Source:  source,
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric        = "E001" // Generic/unknown error
	ErrCodeScanError      = "E002" // Directory scan error
	ErrCodeNoFiles        = "E003" // No scene files found
	ErrCodeLoadFailed     = "E004" // CUE load failed
	ErrCodeNotFound       = "E005" // Path not found
	ErrCodeBuildFailed    = "E006" // CUE build failed
	ErrCodeWriteFailed    = "E007" // File write error
	ErrCodeDecodeFailed   = "E008" // YAML decode failed
	ErrCodeDuplicateScene = "E009" // Scene name defined twice
	ErrCodeCUE            = "E010" // CUE evaluation error inside a scene
	ErrCodeStore          = "E011" // Catalog error
	ErrCodeNoBaseline     = "E012" // Nothing stored to replay against
	ErrCodeKeyChanged     = "E013" // Replay found changed keys
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeCUE
	case field == "locations":
		return compiler.ErrNoLocations
	case strings.HasSuffix(field, ".root"):
		return compiler.ErrInvalidRoot
	default:
		return ErrCodeGeneric
	}
}
