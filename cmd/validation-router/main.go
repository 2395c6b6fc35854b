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

// Command validation-router runs the request validation and pre-dispatch
// core as a standalone HTTP service: POST /validate accepts a generation
// request, runs it through the parameter/input/grammar pipeline, and returns
// the resolved ValidatedRequest (or a structured validation error) as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/inference-router/validation-core/pkg/grammar"
	"github.com/inference-router/validation-core/pkg/tokenization"
	"github.com/inference-router/validation-core/pkg/validation"
	validationmetrics "github.com/inference-router/validation-core/pkg/validation/metrics"
)

const (
	envHFToken  = "HF_TOKEN"
	envModelID  = "MODEL_ID"
	envHTTPPort = "HTTP_PORT"

	defaultHTTPPort = "8080"

	metricsLogInterval = 30 * time.Second
	shutdownTimeout    = 30 * time.Second
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := klog.FromContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	if err := run(ctx); err != nil {
		logger.Error(err, "failed to run validation router")
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger := klog.FromContext(ctx)
	cfg := validation.ConfigFromEnv()

	validationmetrics.Register()
	validationmetrics.StartMetricsLogging(ctx, metricsLogInterval)

	var tokPool *tokenization.Pool
	if modelID := os.Getenv(envModelID); modelID != "" {
		var err error
		tokPool, err = setupTokenizerPool(ctx, cfg, modelID)
		if err != nil {
			return fmt.Errorf("failed to set up tokenizer pool: %w", err)
		}
		logger.Info("tokenizer pool ready", "modelID", modelID, "workers", cfg.Workers)
	} else {
		logger.Info("no MODEL_ID set, running without a fast tokenizer (truncate/max_new_tokens required per request)")
	}

	var grammarPool *grammar.Pool
	if !cfg.DisableGrammarSupport {
		grammarPool = setupGrammarPool(ctx, cfg)
	}

	// vocab is nil here: a deployment that wires a real tokenizer would read
	// it once via Tokenizer.GetVocab() before constructing the pool and pass
	// it through: the noop grammar library above never builds an FSM either
	// way, so there is nothing for it to bind to in this binary.
	validator := validation.NewValidator(cfg, tokPool, grammarPool, nil)

	httpServer := setupHTTPServer(ctx, validator)

	logger.Info("=== validation-router started ===")
	logger.Info("listening", "addr", httpServer.Addr)
	logger.Info("endpoints: POST /validate, GET /metrics, GET /healthz")

	<-ctx.Done()
	logger.Info("shutting down validation-router")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(err, "HTTP server shutdown error")
	}

	return nil
}

func setupTokenizerPool(ctx context.Context, cfg *validation.Config, modelID string) (*tokenization.Pool, error) {
	tokCfg := tokenization.DefaultHFTokenizerConfig()
	tokCfg.ModelID = modelID
	tokCfg.HuggingFaceToken = os.Getenv(envHFToken)

	proto, err := tokenization.NewHFTokenizer(tokCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer for model %q: %w", modelID, err)
	}

	pool, err := tokenization.NewPool(&tokenization.Config{WorkersCount: cfg.Workers, HFTokenizerConfig: tokCfg}, proto)
	if err != nil {
		return nil, err
	}

	go pool.Run(ctx)
	return pool, nil
}

// noopGrammarLibrary is a placeholder for the external, process-wide grammar
// compilation library (spec.md §6): building the FSM algorithm itself is an
// explicit non-goal of this core, which only owns dispatch, caching, and
// locking around whatever library a deployment links in.
type noopGrammarLibrary struct{}

func (noopGrammarLibrary) BuildRegexFromSchema(map[string]any) (string, error) {
	return "", errors.New("grammar: no grammar library configured for this deployment")
}

func (noopGrammarLibrary) BuildFSM(string, map[string]uint32) (grammar.StatesToTokenMaps, error) {
	return nil, errors.New("grammar: no grammar library configured for this deployment")
}

func setupGrammarPool(ctx context.Context, cfg *validation.Config) *grammar.Pool {
	logger := klog.FromContext(ctx)

	pool, err := grammar.NewPool(&grammar.Config{WorkersCount: cfg.Workers}, noopGrammarLibrary{})
	if err != nil {
		// WorkersCount is always >= 1 here since cfg came from ConfigFromEnv.
		panic(fmt.Sprintf("grammar: unexpected pool construction failure: %v", err))
	}

	go pool.Run(ctx)
	logger.Info("grammar pool ready (no native library wired - JSON-Schema requests will fail; regex grammars pass through)")
	return pool
}

type validateRequestDTO struct {
	Inputs              string   `json:"inputs"`
	BestOf              *uint    `json:"best_of,omitempty"`
	Temperature         *float32 `json:"temperature,omitempty"`
	RepetitionPenalty   *float32 `json:"repetition_penalty,omitempty"`
	FrequencyPenalty    *float32 `json:"frequency_penalty,omitempty"`
	TopK                *int     `json:"top_k,omitempty"`
	TopP                *float32 `json:"top_p,omitempty"`
	TypicalP            *float32 `json:"typical_p,omitempty"`
	DoSample            bool     `json:"do_sample,omitempty"`
	MaxNewTokens        *uint32  `json:"max_new_tokens,omitempty"`
	Stop                []string `json:"stop,omitempty"`
	Truncate            *uint    `json:"truncate,omitempty"`
	Seed                *uint64  `json:"seed,omitempty"`
	Watermark           bool     `json:"watermark,omitempty"`
	DecoderInputDetails bool     `json:"decoder_input_details,omitempty"`
	TopNTokens          *uint32  `json:"top_n_tokens,omitempty"`
}

func (dto *validateRequestDTO) toGenerateRequest() *validation.GenerateRequest {
	return &validation.GenerateRequest{
		Inputs:              dto.Inputs,
		BestOf:              dto.BestOf,
		Temperature:         dto.Temperature,
		RepetitionPenalty:   dto.RepetitionPenalty,
		FrequencyPenalty:    dto.FrequencyPenalty,
		TopK:                dto.TopK,
		TopP:                dto.TopP,
		TypicalP:            dto.TypicalP,
		DoSample:            dto.DoSample,
		MaxNewTokens:        dto.MaxNewTokens,
		Stop:                dto.Stop,
		Truncate:            dto.Truncate,
		Seed:                dto.Seed,
		Watermark:           dto.Watermark,
		DecoderInputDetails: dto.DecoderInputDetails,
		TopNTokens:          dto.TopNTokens,
	}
}

func setupHTTPServer(ctx context.Context, validator *validation.Validator) *http.Server {
	logger := klog.FromContext(ctx)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/validate", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var dto validateRequestDTO
		if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		validated, err := validator.Validate(r.Context(), dto.toGenerateRequest())
		if err != nil {
			writeValidationError(logger, w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(validated); err != nil {
			logger.Error(err, "failed to encode validated request")
		}
	})

	httpPort := os.Getenv(envHTTPPort)
	if httpPort == "" {
		httpPort = defaultHTTPPort
	}

	server := &http.Server{
		Addr:              ":" + httpPort,
		Handler:           mux,
		ReadHeaderTimeout: 20 * time.Second,
		ReadTimeout:       1 * time.Minute,
		WriteTimeout:      1 * time.Minute,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(err, "HTTP server error")
		}
	}()

	return server
}

// writeValidationError maps a *validation.Error to a 422 with its stable
// Kind plus message; any other error (should not happen, Validate only ever
// returns *validation.Error or a random-seed failure) becomes a 500.
func writeValidationError(logger klog.Logger, w http.ResponseWriter, err error) {
	var verr *validation.Error
	if !errors.As(err, &verr) {
		logger.Error(err, "unexpected non-validation error")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnprocessableEntity)
	_ = json.NewEncoder(w).Encode(struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}{Kind: string(verr.Kind), Message: verr.Error()})
}
