package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// DecodeSceneYAML reads one scene document. Unknown fields are rejected.
// name labels errors, usually the file path.
func DecodeSceneYAML(data []byte, name string) (*SceneDoc, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc SceneDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode scene %s: empty document", name)
		}
		return nil, fmt.Errorf("decode scene %s: %w", name, err)
	}
	return &doc, nil
}
