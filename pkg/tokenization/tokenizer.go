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

package tokenization

import (
	"fmt"
	"path/filepath"
	"runtime"

	"github.com/daulet/tokenizers"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// tokenizersCacheSize bounds how many distinct model ids protoCache keeps an
// entry for.
const tokenizersCacheSize = 8

// Tokenizer is the collaborator contract described in spec.md §6: encode with
// special tokens, decode without skipping special tokens, read the vocabulary,
// and - critically - clone. The underlying native library is not reentrant,
// so every pool worker must own its own clone rather than share one instance
// behind a lock.
type Tokenizer interface {
	// Encode tokenizes input with special tokens enabled.
	Encode(input string) ([]uint32, error)
	// Decode turns token ids back into text without skipping special tokens.
	Decode(ids []uint32) (string, error)
	// GetVocab returns the token-to-id vocabulary, including added tokens.
	GetVocab() map[string]uint32
	// Clone returns an independent instance safe for use by a different
	// worker concurrently with this one.
	Clone() (Tokenizer, error)
	// Close releases any native resources held by this instance.
	Close() error
}

// HFTokenizerConfig holds the configuration for the HuggingFace tokenizer.
type HFTokenizerConfig struct {
	ModelID            string `json:"modelID"`
	HuggingFaceToken   string `json:"huggingFaceToken"`
	TokenizersCacheDir string `json:"tokenizersCacheDir"` // Directory for caching tokenizer files
}

// DefaultHFTokenizerConfig returns a default configuration for the
// HuggingFace tokenizer. ModelID is left blank; callers must set it.
func DefaultHFTokenizerConfig() *HFTokenizerConfig {
	return &HFTokenizerConfig{
		TokenizersCacheDir: getTokenizerCacheDir(),
	}
}

// protoCache records the HFTokenizerConfig most recently used to load each
// model id. It holds configs, not loaded *tokenizers.Tokenizer handles, and
// nothing in this package reads it back, so it does not spare a later
// NewHFTokenizer call the load. protoGroup collapses loads of the same model
// id that run concurrently into one.
var (
	protoCache = mustNewProtoCache()
	protoGroup singleflight.Group
)

func mustNewProtoCache() *lru.Cache[string, protoEntry] {
	c, err := lru.New[string, protoEntry](tokenizersCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which tokenizersCacheSize never is.
		panic(fmt.Sprintf("tokenization: failed to build prototype cache: %v", err))
	}
	return c
}

type protoEntry struct {
	cfg HFTokenizerConfig
}

// HFTokenizer wraps github.com/daulet/tokenizers' CGo bindings to the
// HuggingFace Rust tokenizer. Each HFTokenizer value owns one native
// *tokenizers.Tokenizer; Clone constructs a fresh one from the same
// on-disk/cached configuration rather than sharing the handle.
type HFTokenizer struct {
	cfg    HFTokenizerConfig
	native *tokenizers.Tokenizer
}

// NewHFTokenizer loads the tokenizer for cfg.ModelID and returns an
// HFTokenizer wrapping it. This is the prototype instance: NewPool hands it
// to worker 0 and gives every other worker a Clone of it.
func NewHFTokenizer(cfg *HFTokenizerConfig) (*HFTokenizer, error) {
	if cfg == nil {
		cfg = DefaultHFTokenizerConfig()
	}
	if cfg.ModelID == "" {
		return nil, fmt.Errorf("tokenization: HFTokenizerConfig.ModelID is required")
	}

	protoCache.Add(cfg.ModelID, protoEntry{cfg: *cfg})

	native, err := loadNative(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer for model %q: %w", cfg.ModelID, err)
	}

	return &HFTokenizer{cfg: *cfg, native: native}, nil
}

func loadNative(cfg HFTokenizerConfig) (*tokenizers.Tokenizer, error) {
	result, err, _ := protoGroup.Do(cfg.ModelID, func() (any, error) {
		opts := encodeConfigOptions(cfg)
		return tokenizers.FromPretrained(cfg.ModelID, opts...)
	})
	if err != nil {
		return nil, err
	}

	native, ok := result.(*tokenizers.Tokenizer)
	if !ok {
		return nil, fmt.Errorf("unexpected tokenizer type from singleflight result")
	}
	return native, nil
}

func encodeConfigOptions(cfg HFTokenizerConfig) []tokenizers.TokenizerConfigOption {
	var opts []tokenizers.TokenizerConfigOption
	if cfg.TokenizersCacheDir != "" {
		opts = append(opts, tokenizers.WithCacheDir(cfg.TokenizersCacheDir))
	}
	if cfg.HuggingFaceToken != "" {
		opts = append(opts, tokenizers.WithAuthToken(cfg.HuggingFaceToken))
	}
	return opts
}

// Encode tokenizes input with special tokens enabled, matching spec.md §6's
// encode(text, add_special=true).
func (t *HFTokenizer) Encode(input string) ([]uint32, error) {
	resp := t.native.EncodeWithOptions(input, true, tokenizers.WithReturnTypeIDs())
	return resp.IDs, nil
}

// Decode turns ids back into text without skipping special tokens, matching
// spec.md §6's decode(ids, skip_special=false).
func (t *HFTokenizer) Decode(ids []uint32) (string, error) {
	return t.native.Decode(ids, false), nil
}

// GetVocab returns the vocabulary including added tokens.
func (t *HFTokenizer) GetVocab() map[string]uint32 {
	return t.native.Vocab(true)
}

// Clone loads an independent native tokenizer instance from the same
// cached configuration. Because TokenizersCacheDir is already populated by
// the prototype load, this reads from local disk rather than the network -
// the "cheap to clone" property spec.md §4.C's dispatcher design relies on.
func (t *HFTokenizer) Clone() (Tokenizer, error) {
	opts := encodeConfigOptions(t.cfg)
	native, err := tokenizers.FromPretrained(t.cfg.ModelID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to clone tokenizer for model %q: %w", t.cfg.ModelID, err)
	}
	return &HFTokenizer{cfg: t.cfg, native: native}, nil
}

// Close releases the native tokenizer handle.
func (t *HFTokenizer) Close() error {
	return t.native.Close()
}

// getTokenizerCacheDir returns the absolute path to the tokenizer cache
// directory relative to the project root.
func getTokenizerCacheDir() string {
	_, filename, _, _ := runtime.Caller(0) // this file
	base := filepath.Dir(filename)
	return filepath.Join(base, "..", "..", "bin")
}
