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

package grammar_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-router/validation-core/pkg/grammar"
)

func TestNormalizeSchema(t *testing.T) {
	t.Run("string is re-parsed", func(t *testing.T) {
		got, err := grammar.NormalizeSchema(`{"type": "object"}`)
		require.NoError(t, err)
		assert.Equal(t, "object", got["type"])
	})

	t.Run("object is accepted as-is", func(t *testing.T) {
		in := map[string]any{"type": "string"}
		got, err := grammar.NormalizeSchema(in)
		require.NoError(t, err)
		assert.Equal(t, in, got)
	})

	t.Run("invalid JSON string is rejected", func(t *testing.T) {
		_, err := grammar.NormalizeSchema(`{not json`)
		require.Error(t, err)
		assert.False(t, errors.Is(err, grammar.ErrUnsupportedGrammarValue),
			"a malformed JSON string is InvalidGrammar, not the wrong-type case")
	})

	t.Run("other types are rejected", func(t *testing.T) {
		_, err := grammar.NormalizeSchema(42)
		require.Error(t, err)
		assert.True(t, errors.Is(err, grammar.ErrUnsupportedGrammarValue),
			"a non-string/non-object value must be distinguishable as the Grammar error kind, not InvalidGrammar")
	})
}

func TestValidateSchema(t *testing.T) {
	t.Run("valid schema", func(t *testing.T) {
		err := grammar.ValidateSchema(map[string]any{
			"type":       "object",
			"properties": map[string]any{"name": map[string]any{"type": "string"}},
		})
		require.NoError(t, err)
	})

	t.Run("schema with an unknown type name is rejected", func(t *testing.T) {
		err := grammar.ValidateSchema(map[string]any{"type": "not-a-real-type"})
		assert.Error(t, err)
	})
}
