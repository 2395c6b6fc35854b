/*
Copyright 2025 The llm-d Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package grammar

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaResourceURL is an arbitrary in-memory identifier for the one schema
// document a compiler instance is asked to validate; it never resolves to
// anything on disk or over the network.
const schemaResourceURL = "grammar://schema"

// ErrUnsupportedGrammarValue is returned by NormalizeSchema when the grammar
// value is neither a JSON string nor an already-decoded object. Per spec.md
// §9/§4.F this is the "other" case and maps to the Grammar error kind, kept
// distinct from a malformed-JSON-string payload (which maps to
// InvalidGrammar instead): callers of NormalizeSchema must check
// errors.Is(err, ErrUnsupportedGrammarValue) to route it correctly.
var ErrUnsupportedGrammarValue = errors.New("grammar value must be a JSON-Schema string or object")

// NormalizeSchema implements spec.md §9's JSON-Schema normalization: a
// string payload is re-parsed as JSON, an object payload (already decoded
// by the caller's request parser, hence map[string]any) is accepted as-is,
// and anything else is rejected with ErrUnsupportedGrammarValue.
func NormalizeSchema(value any) (map[string]any, error) {
	switch v := value.(type) {
	case string:
		var parsed map[string]any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return nil, fmt.Errorf("grammar value is not valid JSON: %w", err)
		}
		return parsed, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedGrammarValue, value)
	}
}

// ValidateSchema compiles schema as a JSON-Schema Draft 2020-12 document,
// returning an error if it does not conform. Compilation (not just parsing)
// is the validation step spec.md §9 calls for: "validate against Draft
// 2020-12, only compile after validation" - here compiling successfully
// under the 2020-12 draft is the validation.
func ValidateSchema(schema map[string]any) error {
	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)

	if err := compiler.AddResource(schemaResourceURL, schema); err != nil {
		return fmt.Errorf("invalid JSON-Schema document: %w", err)
	}
	if _, err := compiler.Compile(schemaResourceURL); err != nil {
		return fmt.Errorf("JSON-Schema does not conform to Draft 2020-12: %w", err)
	}
	return nil
}
