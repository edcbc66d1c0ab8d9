package protocol

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

const schemaBaseURL = "https://robotodyssey.web/schemas/"

var schemaFiles = map[string]string{
	TypeHello:      "hello.schema.json",
	TypeWelcome:    "welcome.schema.json",
	TypeHashChange: "hash_change.schema.json",
	TypeSetHash:    "set_hash.schema.json",
	TypeUpload:     "upload.schema.json",
	TypeSave:       "save.schema.json",
	TypeDownload:   "download.schema.json",
	TypeStatus:     "status.schema.json",
	TypeError:      "error.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

// Schema returns the compiled schema for a message type.
func Schema(msgType string) (*jsonschema.Schema, error) {
	schemasOnce.Do(func() { schemas, schemasErr = compileSchemas() })
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[msgType]
	if !ok {
		return nil, fmt.Errorf("no schema for message type %q", msgType)
	}
	return s, nil
}

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	for _, name := range schemaFiles {
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(schemaBaseURL+name, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("schema %s: %w", name, err)
		}
	}
	out := make(map[string]*jsonschema.Schema, len(schemaFiles))
	for typ, name := range schemaFiles {
		s, err := c.Compile(schemaBaseURL + name)
		if err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
		out[typ] = s
	}
	return out, nil
}

// Validate checks a raw frame against the schema for its type.
func Validate(b []byte) (BaseMessage, error) {
	base, err := DecodeBase(b)
	if err != nil {
		return base, err
	}
	s, err := Schema(base.Type)
	if err != nil {
		return base, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return base, err
	}
	if err := s.Validate(v); err != nil {
		return base, err
	}
	return base, nil
}
