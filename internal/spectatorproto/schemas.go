package spectatorproto

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var schemaFiles = map[string]string{
	TypeHello:     "hello.schema.json",
	TypeSubscribe: "subscribe.schema.json",
	TypeCamera:    "camera.schema.json",
	TypeSpectate:  "spectate.schema.json",
	TypeWelcome:   "welcome.schema.json",
	TypeTick:      "tick.schema.json",
	TypeVoxels:    "chunk_voxels.schema.json",
	TypeError:     "error.schema.json",
}

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*jsonschema.Schema{}
)

// Schema returns the compiled schema for a message type, or nil when the type
// has none.
func Schema(msgType string) (*jsonschema.Schema, error) {
	name, ok := schemaFiles[msgType]
	if !ok {
		return nil, nil
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	if s, ok := schemaCache[name]; ok {
		return s, nil
	}
	b, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	url := "file:///spectatorproto/" + name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", name, err)
	}
	schemaCache[name] = s
	return s, nil
}

// Validate checks a raw message against the schema for its type. Types
// without a schema only need to be valid JSON objects with a type.
func Validate(raw []byte) error {
	base, err := DecodeBase(raw)
	if err != nil {
		return err
	}
	if base.Type == "" {
		return fmt.Errorf("missing message type")
	}
	s, err := Schema(base.Type)
	if err != nil || s == nil {
		return err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", base.Type, err)
	}
	return nil
}
