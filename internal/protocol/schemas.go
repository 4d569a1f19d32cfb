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

var schemaFiles = map[string]string{
	TypeSubscribe: "subscribe.schema.json",
	TypeFrame:     "frame.schema.json",
	TypeControl:   "control.schema.json",
	TypeAck:       "ack.schema.json",
	TypeError:     "error.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() (map[string]*jsonschema.Schema, error) {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		out := make(map[string]*jsonschema.Schema, len(schemaFiles))
		for typ, name := range schemaFiles {
			b, err := schemaFS.ReadFile("schemas/" + name)
			if err != nil {
				schemasErr = err
				return
			}
			if err := c.AddResource(name, bytes.NewReader(b)); err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			s, err := c.Compile(name)
			if err != nil {
				schemasErr = fmt.Errorf("%s: %w", name, err)
				return
			}
			out[typ] = s
		}
		schemas = out
	})
	return schemas, schemasErr
}

// Validate checks raw against the schema for its "type" field.
func Validate(raw []byte) error {
	base, err := DecodeBase(raw)
	if err != nil {
		return err
	}
	all, err := compileSchemas()
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}
	s, ok := all[base.Type]
	if !ok {
		return fmt.Errorf("unknown message type %q", base.Type)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return s.Validate(v)
}
