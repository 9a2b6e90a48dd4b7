package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Validator validates payloads against JSON Schemas compiled via
// santhosh-tekuri/jsonschema. Compiled schemas are cached by name.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// New returns a validator with an empty schema cache.
func New() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate ensures the payload matches the schema document registered under name.
func (v *Validator) Validate(name string, schemaDoc, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("payload is required for validation")
	}

	compiled, err := v.getOrCompile(name, schemaDoc)
	if err != nil {
		return err
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	return nil
}

func (v *Validator) getOrCompile(name string, schemaDoc []byte) (*jsonschema.Schema, error) {
	v.mu.RLock()
	compiled, ok := v.cache[name]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok := v.cache[name]; ok {
		return compiled, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("register schema %s: %w", name, err)
	}

	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}

	v.cache[name] = compiled
	return compiled, nil
}
