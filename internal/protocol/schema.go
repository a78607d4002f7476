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

// schemaFiles maps a message type to the schema that validates it.
var schemaFiles = map[string]string{
	TypeHello:       "hello.schema.json",
	TypeWelcome:     "welcome.schema.json",
	TypeInteract:    "interact.schema.json",
	TypeBreak:       "break.schema.json",
	TypeEnter:       "enter.schema.json",
	TypePlace:       "place.schema.json",
	TypeGiveKey:     "give_key.schema.json",
	TypeLoadWorld:   "world.schema.json",
	TypeUnloadWorld: "world.schema.json",
	TypeSave:        "request.schema.json",
	TypeStats:       "request.schema.json",
}

var (
	schemaOnce sync.Once
	schemas    map[string]*jsonschema.Schema
	schemaErr  error
)

func compileSchemas() {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	compiled := map[string]*jsonschema.Schema{}
	for typ, name := range schemaFiles {
		if s, ok := compiled[name]; ok {
			compiled[typ] = s
			continue
		}
		b, err := schemaFS.ReadFile("schemas/" + name)
		if err != nil {
			schemaErr = err
			return
		}
		url := "mem://schemas/" + name
		if err := c.AddResource(url, bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
		s, err := c.Compile(url)
		if err != nil {
			schemaErr = fmt.Errorf("schema %s: %w", name, err)
			return
		}
		compiled[name] = s
		compiled[typ] = s
	}
	schemas = map[string]*jsonschema.Schema{}
	for typ := range schemaFiles {
		schemas[typ] = compiled[typ]
	}
}

// HasSchema reports whether msgType is a validated message type.
func HasSchema(msgType string) bool {
	_, ok := schemaFiles[msgType]
	return ok
}

// Validate checks raw against the schema for msgType.
func Validate(msgType string, raw []byte) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	s, ok := schemas[msgType]
	if !ok {
		return fmt.Errorf("unknown message type %q", msgType)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
