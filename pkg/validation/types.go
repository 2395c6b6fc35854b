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

// Package validation is the request validation and pre-dispatch core: it
// normalizes and bounds-checks a generation request's parameters, tokenizes
// its prompt with truncation, optionally compiles a user-supplied grammar,
// and assembles a ValidatedRequest fit for a downstream inference shard.
package validation

import (
	"github.com/inference-router/validation-core/pkg/grammar"
)

// GrammarKind mirrors spec.md §3's grammar_kind: JSON-Schema is always
// lowered to regex before leaving the core, so only two values ever appear
// on an outbound ValidatedRequest.
type GrammarKind string

const (
	GrammarKindNone  GrammarKind = "none"
	GrammarKindRegex GrammarKind = "regex"
)

// GrammarSpec is the inbound grammar field of a GenerateRequest.
type GrammarSpec struct {
	Kind  grammar.Kind // "json" or "regex"
	Value any          // string or map[string]any for Kind == json; string for Kind == regex
}

// GenerateRequest is the inbound payload of spec.md §3.
type GenerateRequest struct {
	Inputs string

	BestOf               *uint
	Temperature          *float32
	RepetitionPenalty    *float32
	FrequencyPenalty     *float32
	TopK                 *int
	TopP                 *float32
	TypicalP             *float32
	DoSample             bool
	MaxNewTokens         *uint32
	Stop                 []string
	Truncate             *uint
	Seed                 *uint64
	Watermark            bool
	DecoderInputDetails  bool
	TopNTokens           *uint32
	Grammar              *GrammarSpec
}

// SamplingParams is the resolved, bounds-checked sampling configuration
// embedded in a ValidatedRequest.
type SamplingParams struct {
	Temperature       float32
	RepetitionPenalty float32
	FrequencyPenalty  float32
	TopK              uint32
	TopP              float32
	TypicalP          float32
	DoSample          bool
	Seed              uint64
	Watermark         bool

	GrammarSource        string
	GrammarKind          GrammarKind
	StatesToTokenMaps    grammar.StatesToTokenMaps
}

// StoppingParams is the resolved stopping configuration embedded in a
// ValidatedRequest.
type StoppingParams struct {
	MaxNewTokens    uint32
	StopSequences   []string
	IgnoreEOSToken  bool
}

// ValidatedRequest is the outbound record of spec.md §3: a fully resolved,
// bounds-checked request ready for a downstream inference shard.
type ValidatedRequest struct {
	Inputs              string
	InputLength          uint32
	Truncate             uint32
	DecoderInputDetails  bool
	SamplingParams       SamplingParams
	StoppingParams       StoppingParams
	TopNTokens           uint32
}

// Config is the process-wide, immutable-after-init configuration of
// spec.md §3.
type Config struct {
	Workers               int
	MaxBestOf             uint
	MaxStopSequences      int
	MaxTopNTokens         uint32
	MaxInputLength        int
	MaxTotalTokens        int
	DisableGrammarSupport bool
}

// DefaultConfig returns reasonable defaults, matching the teacher's
// Default*Config() convention across pkg/tokenization and pkg/grammar.
func DefaultConfig() *Config {
	return &Config{
		Workers:          5,
		MaxBestOf:        1,
		MaxStopSequences: 4,
		MaxTopNTokens:    5,
		MaxInputLength:   1024,
		MaxTotalTokens:   2048,
	}
}
