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

	"k8s.io/klog/v2"

	"github.com/inference-router/validation-core/pkg/tokenization"
	"github.com/inference-router/validation-core/pkg/utils/logging"
	"github.com/inference-router/validation-core/pkg/validation/metrics"
)

// inputResult is the output of spec.md §4.E.
type inputResult struct {
	inputs       string
	inputLength  uint32
	maxNewTokens uint32
}

// validateInput implements spec.md §4.E. With a tokenizer pool configured,
// it awaits 4.A via the pool and enforces the token budget against the real
// encoding length; without one, it trusts the caller's truncate/max_input
// bound because the downstream shard will truncate itself.
func validateInput(
	ctx context.Context,
	pool *tokenization.Pool,
	prompt string,
	truncate *uint,
	maxNewTokens *uint32,
	cfg *Config,
) (*inputResult, error) {
	if pool != nil {
		return validateInputWithTokenizer(ctx, pool, prompt, truncate, maxNewTokens, cfg)
	}
	return validateInputWithoutTokenizer(prompt, truncate, maxNewTokens, cfg)
}

func validateInputWithTokenizer(
	ctx context.Context,
	pool *tokenization.Pool,
	prompt string,
	truncate *uint,
	maxNewTokens *uint32,
	cfg *Config,
) (*inputResult, error) {
	var truncateU32 *uint32
	if truncate != nil {
		v := uint32(*truncate)
		truncateU32 = &v
	}

	ids, text, err := pool.Tokenize(ctx, prompt, truncateU32)
	if err != nil {
		return nil, errTokenizer(err.Error())
	}
	inputLength := uint32(len(ids))

	newTokens := maxNewTokens
	resolved := resolveOrDefault(newTokens, saturatingSub(cfg.MaxTotalTokens, int(inputLength)))

	if int(inputLength)+int(resolved) > cfg.MaxTotalTokens {
		return nil, errMaxTotalTokens(cfg.MaxTotalTokens, int(inputLength), resolved)
	}
	if int(inputLength) > cfg.MaxInputLength {
		return nil, errInputLength(cfg.MaxInputLength, int(inputLength))
	}

	metrics.ObserveInputLength(float64(inputLength))

	klog.FromContext(ctx).WithName("validation").V(logging.DEBUG).
		Info("input validated", "inputLength", inputLength, "maxNewTokens", resolved)

	return &inputResult{inputs: text, inputLength: inputLength, maxNewTokens: resolved}, nil
}

func validateInputWithoutTokenizer(
	prompt string,
	truncate *uint,
	maxNewTokens *uint32,
	cfg *Config,
) (*inputResult, error) {
	var newTokens uint32
	switch {
	case maxNewTokens != nil:
		newTokens = *maxNewTokens
	case truncate != nil:
		newTokens = saturatingSub(cfg.MaxTotalTokens, int(*truncate))
	default:
		return nil, errUnsetMaxNewTokens()
	}

	inputLength := cfg.MaxInputLength
	if truncate != nil {
		inputLength = int(*truncate)
	}

	if inputLength+int(newTokens) > cfg.MaxTotalTokens {
		return nil, errMaxNewTokens(cfg.MaxTotalTokens-cfg.MaxInputLength, newTokens)
	}

	return &inputResult{inputs: prompt, inputLength: uint32(inputLength), maxNewTokens: newTokens}, nil
}

func resolveOrDefault(v *uint32, fallback uint32) uint32 {
	if v != nil {
		return *v
	}
	return fallback
}

// saturatingSub returns a-b as a uint32, floored at 0 rather than
// underflowing, matching Rust's saturating_sub used throughout the original.
func saturatingSub(a, b int) uint32 {
	if b >= a {
		return 0
	}
	return uint32(a - b)
}
