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
	TypeHello:    "schemas/hello.schema.json",
	TypeObserver: "schemas/observer.schema.json",
	TypeEdit:     "schemas/edit.schema.json",
}

var (
	schemasOnce sync.Once
	schemas     map[string]*jsonschema.Schema
	schemasErr  error
)

func compileSchemas() {
	schemas = map[string]*jsonschema.Schema{}
	for typ, name := range schemaFiles {
		b, err := schemaFS.ReadFile(name)
		if err != nil {
			schemasErr = err
			return
		}
		s, err := jsonschema.CompileString(name, string(b))
		if err != nil {
			schemasErr = fmt.Errorf("%s: %w", name, err)
			return
		}
		schemas[typ] = s
	}
}

// ValidateClient checks a client message of the given type against its
// schema. Types without a schema are rejected.
func ValidateClient(typ string, raw []byte) error {
	schemasOnce.Do(compileSchemas)
	if schemasErr != nil {
		return schemasErr
	}
	s, ok := schemas[typ]
	if !ok {
		return fmt.Errorf("unknown message type %q", typ)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return s.Validate(v)
}
