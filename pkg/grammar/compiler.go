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

// Package grammar compiles user-supplied JSON-Schema or regex grammars into
// a finite-state representation via an external, single-threaded grammar
// library (spec.md §4.B, §6). The library is modeled as a process-wide
// exclusive resource: only one worker makes effective native progress at a
// time, so this pool buys overlap on the request-side work around that lock,
// not parallel compilation.
package grammar

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	"github.com/inference-router/validation-core/pkg/dispatch"
	"github.com/inference-router/validation-core/pkg/utils/logging"
)

const defaultWorkers = 5

// Kind distinguishes the two grammar payload shapes spec.md §3 recognizes.
type Kind string

const (
	KindJSON  Kind = "json"
	KindRegex Kind = "regex"
)

// validKinds is the set of grammar kinds this pool accepts off the wire; any
// other value is a caller bug rather than a compilation failure, so it is
// rejected before the cache or the global lock are ever touched.
var validKinds = sets.New(KindJSON, KindRegex)

// StatesToTokenMaps is the serializable FSM form spec.md §3 and the
// GLOSSARY describe: state id -> (token id -> next state id).
type StatesToTokenMaps map[uint32]map[uint32]uint32

// Library is the grammar library collaborator of spec.md §6: build a regex
// from a JSON-Schema document, then build an FSM from a regex and a
// tokenizer's vocabulary. Implementations are assumed not safe for
// concurrent use - callers must hold Pool's global lock around both calls
// of one compilation.
type Library interface {
	BuildRegexFromSchema(schema map[string]any) (string, error)
	BuildFSM(regex string, vocab map[string]uint32) (StatesToTokenMaps, error)
}

// Request is a GrammarRequest as described in spec.md §4.B.
type Request struct {
	Kind Kind
	// Schema holds the normalized JSON-Schema document for Kind == KindJSON.
	// Source holds the raw regex text for Kind == KindRegex.
	Schema map[string]any
	Source string
	Vocab  map[string]uint32
	Reply  chan<- Result
	Ctx    context.Context //nolint:containedctx // carried per-message by design, see spec.md §9 tracing
}

// Result is a worker's reply: the compiled regex and, for JSON-Schema
// grammars, the resulting FSM, or Err describing an InvalidGrammar failure.
type Result struct {
	Regex  string
	States StatesToTokenMaps
	Err    error
}

// Pool is the grammar compiler pool of spec.md §4.B. Per spec.md §4.B, its
// worker count should be >= the tokenizer pool's, so a compile-bound
// request cannot starve tokenize-only requests on a shared dispatcher.
type Pool struct {
	workers int

	ingress    workqueue.TypedRateLimitingInterface[*Request]
	workerQs   []workqueue.TypedRateLimitingInterface[*Request]
	dispatcher *dispatch.RoundRobin[*Request]

	lib   Library
	cache *Cache // optional; nil disables memoization

	alive []*atomic.Bool
	wg    sync.WaitGroup

	// globalLock simulates the process-wide interpreter lock the grammar
	// library runs under (spec.md §5, §9): held across both compilation
	// steps of one request, released between requests.
	globalLock sync.Mutex
}

// Config holds the configuration for the grammar compiler Pool.
type Config struct {
	WorkersCount int `json:"workersCount"`
	// CacheSize bounds the compiled-grammar memoization cache (see
	// SPEC_FULL.md §D). Zero disables caching.
	CacheSize int `json:"cacheSize"`
}

// DefaultConfig returns a default configuration for the grammar Pool.
func DefaultConfig() *Config {
	return &Config{
		WorkersCount: defaultWorkers,
		CacheSize:    defaultCacheSize,
	}
}

// NewPool constructs a grammar compiler Pool backed by lib.
func NewPool(config *Config, lib Library) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WorkersCount < 1 {
		return nil, fmt.Errorf("grammar: WorkersCount must be >= 1, got %d", config.WorkersCount)
	}
	if lib == nil {
		return nil, fmt.Errorf("grammar: library is required")
	}

	var cache *Cache
	if config.CacheSize > 0 {
		var err error
		cache, err = NewCache(config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to build grammar cache: %w", err)
		}
	}

	workerQs := make([]workqueue.TypedRateLimitingInterface[*Request], config.WorkersCount)
	dispatchQs := make([]dispatch.Queue[*Request], config.WorkersCount)
	alive := make([]*atomic.Bool, config.WorkersCount)
	for i := range workerQs {
		q := workqueue.NewTypedRateLimitingQueue(workqueue.DefaultTypedControllerRateLimiter[*Request]())
		workerQs[i] = q
		dispatchQs[i] = q
		a := &atomic.Bool{}
		a.Store(true)
		alive[i] = a
	}

	ingress := workqueue.NewTypedRateLimitingQueue(workqueue.DefaultTypedControllerRateLimiter[*Request]())

	return &Pool{
		workers:    config.WorkersCount,
		ingress:    ingress,
		workerQs:   workerQs,
		dispatcher: dispatch.NewRoundRobin[*Request](ingress, dispatchQs),
		lib:        lib,
		cache:      cache,
		alive:      alive,
	}, nil
}

// Submit enqueues req on the ingress queue.
func (p *Pool) Submit(req *Request) {
	p.ingress.Add(req)
}

// Compile is a blocking convenience wrapper around Submit.
func (p *Pool) Compile(ctx context.Context, req *Request) Result {
	reply := make(chan Result, 1)
	req.Reply = reply
	req.Ctx = ctx
	p.Submit(req)
	return <-reply
}

// WorkerAlive reports whether worker i's loop is currently running.
func (p *Pool) WorkerAlive(i int) bool {
	return p.alive[i].Load()
}

// RespawnWorker restarts worker i after a panic. The grammar library itself
// is process-wide and was never torn down, so no per-worker resource needs
// re-acquiring beyond clearing the dead flag and relaunching the loop.
func (p *Pool) RespawnWorker(ctx context.Context, i int) {
	p.alive[i].Store(true)
	p.wg.Add(1)
	go p.workerLoop(ctx, i)
}

// Run launches the dispatcher and all worker goroutines, and blocks until
// ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		p.dispatcher.Run()
	}()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(ctx, i)
	}

	<-ctx.Done()

	p.ingress.ShutDown()
	<-dispatcherDone

	for _, q := range p.workerQs {
		q.ShutDown()
	}
	p.wg.Wait()
}

func (p *Pool) workerLoop(ctx context.Context, i int) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.alive[i].Store(false)
			klog.FromContext(ctx).WithName("grammar").
				Error(fmt.Errorf("%v", r), "grammar worker panicked, worker is now dead until respawned", "worker", i)
		}
	}()

	queue := p.workerQs[i]
	for {
		req, shutdown := queue.Get()
		if shutdown {
			return
		}

		p.processRequest(req)
		queue.Forget(req)
		queue.Done(req)
	}
}

// processRequest runs the spec.md §4.B algorithm: for JSON-Schema grammars,
// convert schema -> regex, then regex+vocab -> FSM; for regex grammars, the
// input is already compiled and is returned as-is with no FSM map, without
// calling the library. Both native steps are taken under globalLock,
// simulating the library's process-wide lock.
func (p *Pool) processRequest(req *Request) {
	logger := klog.FromContext(req.Ctx).WithName("grammar")

	if !validKinds.Has(req.Kind) {
		p.reply(req, Result{Err: fmt.Errorf("grammar: unknown kind %q", req.Kind)})
		return
	}

	if p.cache != nil {
		key := cacheKey(req)
		if entry, ok := p.cache.Get(key); ok {
			logger.V(logging.DEBUG).Info("grammar cache hit")
			p.reply(req, Result{Regex: entry.Regex, States: entry.States})
			return
		}
	}

	p.globalLock.Lock()
	regex, states, err := p.compileLocked(req)
	p.globalLock.Unlock()

	if err != nil {
		p.reply(req, Result{Err: err})
		return
	}

	if p.cache != nil {
		p.cache.Add(cacheKey(req), cacheEntry{Regex: regex, States: states})
	}

	logger.V(logging.DEBUG).Info("compiled grammar", "kind", req.Kind)
	p.reply(req, Result{Regex: regex, States: states})
}

func (p *Pool) compileLocked(req *Request) (string, StatesToTokenMaps, error) {
	regex := req.Source
	var states StatesToTokenMaps

	if req.Kind == KindJSON {
		var err error
		regex, err = p.lib.BuildRegexFromSchema(req.Schema)
		if err != nil {
			return "", nil, fmt.Errorf("failed to build regex from schema: %w", err)
		}

		states, err = p.lib.BuildFSM(regex, req.Vocab)
		if err != nil {
			return "", nil, fmt.Errorf("failed to build FSM: %w", err)
		}
	}

	return regex, states, nil
}

func cacheKey(req *Request) string {
	if req.Kind == KindJSON {
		// encoding/json marshals map keys in sorted order, so this is a
		// stable key regardless of the schema map's iteration order.
		b, err := json.Marshal(req.Schema)
		if err != nil {
			return string(req.Kind) + ":" + req.Source
		}
		return string(req.Kind) + ":" + string(b)
	}
	return string(req.Kind) + ":" + req.Source
}

func (p *Pool) reply(req *Request, res Result) {
	select {
	case req.Reply <- res:
	default:
	}
}
