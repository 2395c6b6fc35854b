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

import "fmt"

// Kind is a stable identifier for a validation failure, independent of the
// human-readable message (spec.md §7). HTTP collaborators should switch on
// Kind, not on Error() text.
type Kind string

const (
	KindBestOf               Kind = "BestOf"
	KindBestOfDisabled       Kind = "BestOfDisabled"
	KindBestOfSampling       Kind = "BestOfSampling"
	KindBestOfSeed           Kind = "BestOfSeed"
	KindBestOfStream         Kind = "BestOfStream"
	KindTopNTokens           Kind = "TopNTokens"
	KindTopNTokensDisabled   Kind = "TopNTokensDisabled"
	KindPrefillDetailsStream Kind = "PrefillDetailsStream"
	KindTemperature          Kind = "Temperature"
	KindRepetitionPenalty    Kind = "RepetitionPenalty"
	KindFrequencyPenalty     Kind = "FrequencyPenalty"
	KindTopP                 Kind = "TopP"
	KindTopK                 Kind = "TopK"
	KindTruncate             Kind = "Truncate"
	KindTypicalP             Kind = "TypicalP"
	KindNegativeMaxNewTokens Kind = "NegativeMaxNewTokens"
	KindStopSequence         Kind = "StopSequence"
	KindMaxNewTokens         Kind = "MaxNewTokens"
	KindMaxTotalTokens       Kind = "MaxTotalTokens"
	KindInputLength          Kind = "InputLength"
	KindUnsetMaxNewTokens    Kind = "UnsetMaxNewTokens"
	KindEmptyInput           Kind = "EmptyInput"
	KindTokenizer            Kind = "Tokenizer"
	KindGrammar              Kind = "Grammar"
	KindInvalidGrammar       Kind = "InvalidGrammar"
)

// Error is the one error type this package returns. It carries a stable
// Kind plus the bound/actual values that produced it (when the kind has
// any), so callers can use errors.As to recover them instead of parsing
// Error()'s text. Message wording mirrors the original implementation this
// core was distilled from, preserved here for behavioral compatibility with
// existing HTTP-layer error mapping.
type Error struct {
	Kind Kind

	// Limit/Got/Extra are populated only for kinds that carry bound/actual
	// values; zero otherwise.
	Limit  int64
	Got    int64
	Extra  int64 // a third numeric field, used only by MaxTotalTokens
	Detail string
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindBestOf:
		return fmt.Sprintf("`best_of` must be > 0 and <= %d. Given: %d", e.Limit, e.Got)
	case KindBestOfDisabled:
		return "`best_of` != 1 is not allowed for this endpoint"
	case KindBestOfSampling:
		return "you must use sampling when `best_of` is > 1"
	case KindBestOfSeed:
		return "`seed` must not be set when `best_of` > 1"
	case KindBestOfStream:
		return "`best_of` != 1 is not supported when streaming tokens"
	case KindTopNTokens:
		return fmt.Sprintf("`top_n_tokens` must be >= 0 and <= %d. Given: %d", e.Limit, e.Got)
	case KindTopNTokensDisabled:
		return "`top_n_tokens` != 0 is not allowed for this endpoint"
	case KindPrefillDetailsStream:
		return "`decoder_input_details` == true is not supported when streaming tokens"
	case KindTemperature:
		return "`temperature` must be strictly positive"
	case KindRepetitionPenalty:
		return "`repetition_penalty` must be strictly positive"
	case KindFrequencyPenalty:
		return "`frequency_penalty` must be >= -2.0 and <= 2.0"
	case KindTopP:
		return "`top_p` must be > 0.0 and < 1.0"
	case KindTopK:
		return "`top_k` must be strictly positive"
	case KindTruncate:
		return fmt.Sprintf("`truncate` must be strictly positive and less than %d. Given: %d", e.Limit, e.Got)
	case KindTypicalP:
		return "`typical_p` must be > 0.0 and < 1.0"
	case KindUnsetMaxNewTokens:
		return "one of `max_new_tokens` or `truncate` must be set if a fast tokenizer is not in use"
	case KindNegativeMaxNewTokens:
		return "`max_new_tokens` must be strictly positive"
	case KindMaxNewTokens:
		return fmt.Sprintf("`max_new_tokens` must be <= %d. Given: %d", e.Limit, e.Got)
	case KindMaxTotalTokens:
		return fmt.Sprintf("`inputs` tokens + `max_new_tokens` must be <= %d. Given: %d `inputs` tokens and %d `max_new_tokens`",
			e.Limit, e.Got, e.Extra)
	case KindInputLength:
		return fmt.Sprintf("`inputs` must have less than %d tokens. Given: %d", e.Limit, e.Got)
	case KindEmptyInput:
		return "`inputs` cannot be empty"
	case KindStopSequence:
		return fmt.Sprintf("`stop` supports up to %d stop sequences. Given: %d", e.Limit, e.Got)
	case KindTokenizer:
		return fmt.Sprintf("tokenizer error %s", e.Detail)
	case KindGrammar:
		return "grammar is not supported"
	case KindInvalidGrammar:
		return fmt.Sprintf("grammar is not valid: %s", e.Detail)
	default:
		return fmt.Sprintf("validation error: %s", e.Kind)
	}
}

func errBestOf(maxBestOf, got int) error        { return &Error{Kind: KindBestOf, Limit: int64(maxBestOf), Got: int64(got)} }
func errBestOfDisabled() error                  { return &Error{Kind: KindBestOfDisabled} }
func errBestOfSampling() error                  { return &Error{Kind: KindBestOfSampling} }
func errBestOfSeed() error                      { return &Error{Kind: KindBestOfSeed} }
func errTemperature() error                     { return &Error{Kind: KindTemperature} }
func errRepetitionPenalty() error               { return &Error{Kind: KindRepetitionPenalty} }
func errFrequencyPenalty() error                { return &Error{Kind: KindFrequencyPenalty} }
func errTopP() error                            { return &Error{Kind: KindTopP} }
func errTypicalP() error                        { return &Error{Kind: KindTypicalP} }
func errTopK() error                            { return &Error{Kind: KindTopK} }
func errNegativeMaxNewTokens() error            { return &Error{Kind: KindNegativeMaxNewTokens} }
func errStopSequence(max, got int) error {
	return &Error{Kind: KindStopSequence, Limit: int64(max), Got: int64(got)}
}
func errTopNTokens(max, got uint32) error {
	return &Error{Kind: KindTopNTokens, Limit: int64(max), Got: int64(got)}
}
func errEmptyInput() error { return &Error{Kind: KindEmptyInput} }
func errTruncate(maxInputLength, got int) error {
	return &Error{Kind: KindTruncate, Limit: int64(maxInputLength), Got: int64(got)}
}
func errUnsetMaxNewTokens() error { return &Error{Kind: KindUnsetMaxNewTokens} }
func errMaxNewTokens(limit int, got uint32) error {
	return &Error{Kind: KindMaxNewTokens, Limit: int64(limit), Got: int64(got)}
}
func errMaxTotalTokens(limit, inputLength int, newTokens uint32) error {
	return &Error{Kind: KindMaxTotalTokens, Limit: int64(limit), Got: int64(inputLength), Extra: int64(newTokens)}
}
func errInputLength(limit, got int) error {
	return &Error{Kind: KindInputLength, Limit: int64(limit), Got: int64(got)}
}
func errTokenizer(detail string) error    { return &Error{Kind: KindTokenizer, Detail: detail} }
func errGrammar() error                   { return &Error{Kind: KindGrammar} }
func errInvalidGrammar(detail string) error { return &Error{Kind: KindInvalidGrammar, Detail: detail} }
