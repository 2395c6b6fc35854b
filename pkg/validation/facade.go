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

package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	grammarpkg "github.com/inference-router/validation-core/pkg/grammar"
	"github.com/inference-router/validation-core/pkg/tokenization"
	"github.com/inference-router/validation-core/pkg/utils/logging"
	"github.com/inference-router/validation-core/pkg/validation/metrics"
)

// Validator is the Validation Facade of spec.md §4.F: the one public async
// entry point, composing the parameter validator, input validator, and
// grammar compiler into a single ValidatedRequest.
type Validator struct {
	cfg         *Config
	tokPool     *tokenization.Pool // nil means "no tokenizer configured" (spec.md §4.E's second branch)
	grammarPool *grammarpkg.Pool   // nil means grammar support cannot be offered regardless of DisableGrammarSupport
	vocab       map[string]uint32
}

// NewValidator wires a Config together with the worker pools it needs.
// tokPool and vocab may both be nil/empty when the deployment runs without a
// fast tokenizer; grammarPool may be nil when no grammar library is wired,
// in which case any request carrying a grammar field is rejected.
func NewValidator(cfg *Config, tokPool *tokenization.Pool, grammarPool *grammarpkg.Pool, vocab map[string]uint32) *Validator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Validator{cfg: cfg, tokPool: tokPool, grammarPool: grammarPool, vocab: vocab}
}

// Validate runs the full spec.md §4.F pipeline: parameter checks, the empty
// input check, input/tokenizer validation, and (if present) grammar
// compilation, in that order - the order the boundary scenarios of spec.md
// §8 depend on.
func (v *Validator) Validate(ctx context.Context, req *GenerateRequest) (*ValidatedRequest, error) {
	traceID := uuid.NewString()
	logger := klog.FromContext(ctx).WithName("validation").WithValues("traceID", traceID)
	// Stamp the trace id onto the context so every TokenizerRequest and
	// GrammarRequest this call fans out carries it (spec.md §9's
	// tracing_context): worker-side logs from pkg/tokenization and
	// pkg/grammar then nest under the same traceID via klog.FromContext.
	ctx = klog.NewContext(ctx, logger)

	resolved, err := validateParams(req, v.cfg)
	if err != nil {
		return nil, err
	}

	if req.Inputs == "" {
		return nil, errEmptyInput()
	}

	inputRes, err := validateInput(ctx, v.tokPool, req.Inputs, resolved.truncate, resolved.maxNewTokens, v.cfg)
	if err != nil {
		return nil, err
	}

	sampling := resolved.sampling
	if req.Grammar != nil {
		if v.cfg.DisableGrammarSupport || v.grammarPool == nil {
			return nil, errGrammar()
		}

		regex, states, err := v.compileGrammar(ctx, req.Grammar)
		if err != nil {
			return nil, err
		}
		sampling.GrammarSource = regex
		sampling.GrammarKind = GrammarKindRegex
		sampling.StatesToTokenMaps = states
	}

	stopSequences := resolved.stopSequences
	if stopSequences == nil {
		stopSequences = []string{}
	}

	truncateOut := uint32(v.cfg.MaxInputLength) //nolint:gosec // MaxInputLength is an operator-set bound, not attacker input
	if resolved.truncate != nil {
		truncateOut = uint32(*resolved.truncate)
	}

	metrics.ObserveMaxNewTokens(float64(inputRes.maxNewTokens))
	logger.V(logging.DEBUG).Info("request validated", "inputLength", inputRes.inputLength, "maxNewTokens", inputRes.maxNewTokens)

	return &ValidatedRequest{
		Inputs:              inputRes.inputs,
		InputLength:         inputRes.inputLength,
		Truncate:            truncateOut,
		DecoderInputDetails: req.DecoderInputDetails,
		SamplingParams:      sampling,
		StoppingParams: StoppingParams{
			MaxNewTokens:   inputRes.maxNewTokens,
			StopSequences:  stopSequences,
			IgnoreEOSToken: false,
		},
		TopNTokens: resolved.topNTokens,
	}, nil
}

// compileGrammar implements spec.md §9's normalization/validation/lowering
// path for JSON-Schema grammars, and the pass-through path for raw regex
// grammars.
func (v *Validator) compileGrammar(ctx context.Context, spec *GrammarSpec) (string, grammarpkg.StatesToTokenMaps, error) {
	switch spec.Kind {
	case grammarpkg.KindRegex:
		regexSrc, ok := spec.Value.(string)
		if !ok {
			return "", nil, errGrammar()
		}
		res := v.grammarPool.Compile(ctx, &grammarpkg.Request{Kind: grammarpkg.KindRegex, Source: regexSrc})
		if res.Err != nil {
			return "", nil, errInvalidGrammar(res.Err.Error())
		}
		return res.Regex, res.States, nil

	case grammarpkg.KindJSON:
		schema, err := grammarpkg.NormalizeSchema(spec.Value)
		if err != nil {
			if errors.Is(err, grammarpkg.ErrUnsupportedGrammarValue) {
				return "", nil, errGrammar()
			}
			return "", nil, errInvalidGrammar(err.Error())
		}
		if err := grammarpkg.ValidateSchema(schema); err != nil {
			return "", nil, errInvalidGrammar(err.Error())
		}

		res := v.grammarPool.Compile(ctx, &grammarpkg.Request{Kind: grammarpkg.KindJSON, Schema: schema, Vocab: v.vocab})
		if res.Err != nil {
			return "", nil, errInvalidGrammar(res.Err.Error())
		}
		return res.Regex, res.States, nil

	default:
		return "", nil, fmt.Errorf("validation: unknown grammar kind %q: %w", spec.Kind, errGrammar())
	}
}
