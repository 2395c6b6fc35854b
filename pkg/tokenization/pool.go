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
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"k8s.io/client-go/util/workqueue"
	"k8s.io/klog/v2"

	"github.com/inference-router/validation-core/pkg/dispatch"
	"github.com/inference-router/validation-core/pkg/utils/logging"
)

const defaultWorkers = 5

// Config holds the configuration for the tokenizer worker Pool.
type Config struct {
	// WorkersCount is the number of worker goroutines, each owning an
	// independent tokenizer clone.
	WorkersCount int `json:"workersCount"`
	*HFTokenizerConfig
}

// DefaultConfig returns a default configuration for the tokenizer Pool.
func DefaultConfig() *Config {
	return &Config{
		WorkersCount:      defaultWorkers,
		HFTokenizerConfig: DefaultHFTokenizerConfig(),
	}
}

// Request is a TokenizerRequest as described in spec.md §4.A: a prompt, an
// optional truncation bound, a reply slot, and a tracing context. Reply must
// be buffered with capacity 1: a worker's send is non-blocking, so on an
// unbuffered channel a reply the caller is not already waiting on is dropped.
type Request struct {
	Prompt   string
	Truncate *uint32
	Reply    chan<- Result
	Ctx      context.Context //nolint:containedctx // carried per-message by design, see spec.md §9 tracing
}

// Result is a worker's reply: either the encoding and decoded text, or Err
// set to a plain error describing the tokenizer failure. Callers in
// pkg/validation wrap Err into the stable Tokenizer(message) error kind.
type Result struct {
	Encoding []uint32
	Text     string
	Err      error
}

// Pool is the tokenizer worker pool of spec.md §4.A: N workers, each with an
// independent tokenizer clone and its own inbound queue, fed by a
// round-robin dispatcher from a single ingress queue.
type Pool struct {
	workers int

	ingress    workqueue.TypedRateLimitingInterface[*Request]
	workerQs   []workqueue.TypedRateLimitingInterface[*Request]
	dispatcher *dispatch.RoundRobin[*Request]

	tokenizers []Tokenizer
	alive      []*atomic.Bool

	wg sync.WaitGroup
}

// NewPool constructs a Pool with config.WorkersCount workers, each holding
// an independent clone of tok. tok itself is used by worker 0; it must not
// be used by the caller afterward.
func NewPool(config *Config, tok Tokenizer) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.WorkersCount < 1 {
		return nil, fmt.Errorf("tokenization: WorkersCount must be >= 1, got %d", config.WorkersCount)
	}
	if tok == nil {
		return nil, fmt.Errorf("tokenization: tokenizer is required")
	}

	tokenizers := make([]Tokenizer, config.WorkersCount)
	tokenizers[0] = tok
	for i := 1; i < config.WorkersCount; i++ {
		clone, err := tok.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to clone tokenizer for worker %d: %w", i, err)
		}
		tokenizers[i] = clone
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
		tokenizers: tokenizers,
		alive:      alive,
	}, nil
}

// Submit enqueues req on the ingress queue. It only enqueues; the caller
// reads req.Reply for the result.
func (p *Pool) Submit(req *Request) {
	p.ingress.Add(req)
}

// Tokenize is a blocking convenience wrapper around Submit for callers that
// don't need to interleave other work while awaiting the reply.
func (p *Pool) Tokenize(ctx context.Context, prompt string, truncate *uint32) ([]uint32, string, error) {
	reply := make(chan Result, 1)
	p.Submit(&Request{Prompt: prompt, Truncate: truncate, Reply: reply, Ctx: ctx})
	res := <-reply
	return res.Encoding, res.Text, res.Err
}

// WorkerAlive reports whether worker i's loop is currently running. A false
// result means the worker panicked and a supervisor should call
// RespawnWorker if the pool is to keep using that worker slot.
func (p *Pool) WorkerAlive(i int) bool {
	return p.alive[i].Load()
}

// RespawnWorker restarts worker i with a fresh tokenizer clone taken from
// worker 0's tokenizer. It is the supervisor hook spec.md §5 describes: "a
// supervisor (collaborator) may respawn it."
func (p *Pool) RespawnWorker(ctx context.Context, i int) error {
	clone, err := p.tokenizers[0].Clone()
	if err != nil {
		return fmt.Errorf("failed to clone tokenizer for respawned worker %d: %w", i, err)
	}
	p.tokenizers[i] = clone
	p.alive[i].Store(true)
	p.wg.Add(1)
	go p.workerLoop(ctx, i)
	return nil
}

// Run launches the dispatcher and all worker goroutines, and blocks until
// ctx is cancelled, at which point it shuts down the ingress queue, waits
// for the dispatcher to drain, then shuts down every worker queue.
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

// workerLoop is the per-worker processing loop. A panic recovered here kills
// only this worker's goroutine - the queue stays open and other workers keep
// serving, per spec.md §5's failure-isolation requirement.
func (p *Pool) workerLoop(ctx context.Context, i int) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			p.alive[i].Store(false)
			klog.FromContext(ctx).WithName("tokenization").
				Error(fmt.Errorf("%v", r), "tokenizer worker panicked, worker is now dead until respawned", "worker", i)
		}
	}()

	tok := p.tokenizers[i]
	queue := p.workerQs[i]

	for {
		req, shutdown := queue.Get()
		if shutdown {
			return
		}

		p.processRequest(tok, req)
		queue.Forget(req)
		queue.Done(req)
	}
}

// processRequest runs the spec.md §4.A algorithm: encode with special
// tokens, left-truncate to req.Truncate if shorter than the encoding,
// decode without skipping special tokens, and send exactly one reply.
func (p *Pool) processRequest(tok Tokenizer, req *Request) {
	logger := klog.FromContext(req.Ctx).WithName("tokenization")

	ids, err := tok.Encode(req.Prompt)
	if err != nil {
		p.reply(req, Result{Err: fmt.Errorf("encode failed: %w", err)})
		return
	}

	if req.Truncate != nil && int(*req.Truncate) < len(ids) {
		ids = ids[len(ids)-int(*req.Truncate):]
	}

	text, err := tok.Decode(ids)
	if err != nil {
		p.reply(req, Result{Err: fmt.Errorf("decode failed: %w", err)})
		return
	}

	logger.V(logging.DEBUG).Info("tokenized prompt", "inputLength", len(ids))
	p.reply(req, Result{Encoding: ids, Text: text})
}

// reply sends res on req.Reply without blocking. Per spec.md §5, if the
// caller dropped the reply slot the send is a silent no-op - Reply is always
// created with capacity 1 by this package's own callers, so a full channel
// here means an abandoned request, not a design error.
func (p *Pool) reply(req *Request, res Result) {
	select {
	case req.Reply <- res:
	default:
	}
}
