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

package wire_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-router/validation-core/pkg/grammar"
	"github.com/inference-router/validation-core/pkg/validation"
	"github.com/inference-router/validation-core/pkg/validation/wire"
)

func TestStatesToTokenMaps_MsgpackRoundTrip(t *testing.T) {
	states := grammar.StatesToTokenMaps{
		0: {1: 1, 2: 2},
		1: {3: 0},
	}

	b, err := wire.MarshalStatesToTokenMaps(states)
	require.NoError(t, err)

	got, err := wire.UnmarshalStatesToTokenMaps(b)
	require.NoError(t, err)
	assert.Equal(t, states, got)
}

func TestStatesToTokenMaps_MsgpackRoundTrip_Empty(t *testing.T) {
	states := grammar.StatesToTokenMaps{}

	b, err := wire.MarshalStatesToTokenMaps(states)
	require.NoError(t, err)

	got, err := wire.UnmarshalStatesToTokenMaps(b)
	require.NoError(t, err)
	assert.Equal(t, states, got)
}

func TestValidatedRequest_CBORRoundTrip(t *testing.T) {
	in := &validation.ValidatedRequest{
		Inputs:      "hello world",
		InputLength: 2,
		Truncate:    10,
		SamplingParams: validation.SamplingParams{
			Temperature: 1.0,
			TopP:        1.0,
			TypicalP:    1.0,
			Seed:        42,
			GrammarKind: validation.GrammarKindNone,
		},
		StoppingParams: validation.StoppingParams{
			MaxNewTokens:  20,
			StopSequences: []string{},
		},
	}

	b, err := wire.MarshalValidatedRequest(in)
	require.NoError(t, err)

	out, err := wire.UnmarshalValidatedRequest(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestUnmarshalStatesToTokenMaps_InvalidBytes(t *testing.T) {
	_, err := wire.UnmarshalStatesToTokenMaps([]byte("not msgpack"))
	assert.Error(t, err)
}
