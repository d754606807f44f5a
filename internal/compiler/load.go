package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/instkey/internal/ir"
)

// SceneFile is one fixture file and the scene documents it holds.
type SceneFile struct {
	Path string

	// Digest is ir.SceneDigest of the file content.
	Digest string
	Scenes []*SceneDoc
}

// IsSceneFile reports whether path has a fixture extension.
func IsSceneFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue", ".yaml", ".yml":
		return true
	}
	return false
}

// LoadSceneFile reads a .yaml/.yml file (one scene) or a standalone .cue
// file (every field under "scene"). The documents are not validated.
func LoadSceneFile(path string) (*SceneFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene file: %w", err)
	}
	f := &SceneFile{Path: path, Digest: ir.SceneDigest(data)}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err := DecodeSceneYAML(data, path)
		if err != nil {
			return nil, err
		}
		f.Scenes = []*SceneDoc{doc}
	case ".cue":
		v := cuecontext.New().CompileBytes(data, cue.Filename(path))
		docs, err := CompileScenes(v)
		if err != nil {
			return nil, err
		}
		f.Scenes = docs
	default:
		return nil, fmt.Errorf("scene file %s: unsupported extension %q", path, filepath.Ext(path))
	}
	return f, nil
}

// CompileScenes compiles every scene under the top-level "scene" field of
// v, in declaration order.
func CompileScenes(v cue.Value) ([]*SceneDoc, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	scenesVal := v.LookupPath(cue.ParsePath("scene"))
	if !scenesVal.Exists() {
		return nil, &CompileError{
			Field:   "scene",
			Message: "no scenes found",
			Pos:     v.Pos(),
		}
	}
	iter, err := scenesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var docs []*SceneDoc
	for iter.Next() {
		doc, err := CompileScene(iter.Value())
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
