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
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// resolvedParams is the output of the pure, synchronous parameter
// validation step (spec.md §4.D): everything that can be checked without
// awaiting the tokenizer.
type resolvedParams struct {
	sampling      SamplingParams
	maxNewTokens  *uint32 // caller-supplied value, nil if the caller omitted it
	stopSequences []string
	topNTokens    uint32
	truncate      *uint
}

// validateParams applies defaults then bounds, short-circuiting on the
// first failure, in the exact order SPEC_FULL.md §C.1 specifies (matching
// the original implementation's Validation::validate method) so the
// boundary scenarios of spec.md §8 are deterministic.
func validateParams(req *GenerateRequest, cfg *Config) (*resolvedParams, error) {
	bestOf := uint(1)
	if req.BestOf != nil {
		bestOf = *req.BestOf
	}

	// sampling is local to the best_of/seed coupling checks below (spec.md
	// §4.D); it is never the resolved value of do_sample in SamplingParams.
	sampling := req.DoSample || req.Temperature != nil || req.TopK != nil ||
		req.TopP != nil || req.TypicalP != nil

	if bestOf > 1 && !sampling {
		return nil, errBestOfSampling()
	}

	temperature := float32(1.0)
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature <= 0 {
		return nil, errTemperature()
	}

	repetitionPenalty := float32(1.0)
	if req.RepetitionPenalty != nil {
		repetitionPenalty = *req.RepetitionPenalty
	}
	if repetitionPenalty <= 0 {
		return nil, errRepetitionPenalty()
	}

	frequencyPenalty := float32(0.0)
	if req.FrequencyPenalty != nil {
		frequencyPenalty = *req.FrequencyPenalty
	}
	if frequencyPenalty < -2.0 || frequencyPenalty > 2.0 {
		return nil, errFrequencyPenalty()
	}

	topP := float32(1.0)
	if req.TopP != nil {
		v := *req.TopP
		if v <= 0.0 || v >= 1.0 {
			return nil, errTopP()
		}
		topP = v
	}

	typicalP := float32(1.0)
	if req.TypicalP != nil {
		v := *req.TypicalP
		if v <= 0.0 || v >= 1.0 {
			return nil, errTypicalP()
		}
		typicalP = v
	}

	var topK uint32
	if req.TopK != nil {
		if *req.TopK <= 0 {
			return nil, errTopK()
		}
		topK = uint32(*req.TopK)
	}

	if req.MaxNewTokens != nil && *req.MaxNewTokens == 0 {
		return nil, errNegativeMaxNewTokens()
	}

	if len(req.Stop) > cfg.MaxStopSequences {
		return nil, errStopSequence(cfg.MaxStopSequences, len(req.Stop))
	}

	var seed uint64
	if req.Seed == nil {
		var err error
		seed, err = randomSeed()
		if err != nil {
			return nil, fmt.Errorf("validation: failed to draw a random seed: %w", err)
		}
	} else {
		if bestOf > 1 {
			return nil, errBestOfSeed()
		}
		seed = *req.Seed
	}

	var topNTokens uint32
	if req.TopNTokens != nil {
		if *req.TopNTokens > cfg.MaxTopNTokens {
			return nil, errTopNTokens(cfg.MaxTopNTokens, *req.TopNTokens)
		}
		topNTokens = *req.TopNTokens
	}

	var truncate *uint
	if req.Truncate != nil {
		v := *req.Truncate
		if v == 0 || int(v) > cfg.MaxInputLength {
			return nil, errTruncate(cfg.MaxInputLength, int(v))
		}
		truncate = &v
	}

	return &resolvedParams{
		sampling: SamplingParams{
			Temperature:       temperature,
			RepetitionPenalty: repetitionPenalty,
			FrequencyPenalty:  frequencyPenalty,
			TopK:              topK,
			TopP:              topP,
			TypicalP:          typicalP,
			DoSample:          req.DoSample,
			Seed:              seed,
			Watermark:         req.Watermark,
			GrammarKind:       GrammarKindNone,
		},
		maxNewTokens:  req.MaxNewTokens,
		stopSequences: req.Stop,
		topNTokens:    topNTokens,
		truncate:      truncate,
	}, nil
}

// ValidateBestOf is the pure operation spec.md §4.F mentions separately from
// the main facade: it enforces the max_best_of bound (BestOf /
// BestOfDisabled), independent of sampling/seed coupling, for collaborators
// that need to validate a best_of/`n` value on its own (matching the
// original's public validate_best_of, which the main validate path itself
// never calls).
func ValidateBestOf(bestOf uint, cfg *Config) (uint, error) {
	if cfg.MaxBestOf == 1 && bestOf != 1 {
		return 0, errBestOfDisabled()
	}
	if bestOf == 0 || bestOf > cfg.MaxBestOf {
		return 0, errBestOf(int(cfg.MaxBestOf), int(bestOf))
	}
	return bestOf, nil
}

// randomSeed draws a fresh cryptographically random 64-bit seed, matching
// spec.md §9: "the core draws a fresh 64-bit random value so the downstream
// sampler is deterministic per call."
func randomSeed() (uint64, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}
