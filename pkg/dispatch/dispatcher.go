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

// Package dispatch fans requests from a single ingress queue out to N
// per-worker queues, strictly round robin. It is the generalization of the
// hash-sharded fan-out used elsewhere in this codebase: here the shard key
// is simply the message's arrival order, not a hash of its contents, because
// the resource behind each worker (a cloned tokenizer, a grammar-compiler
// slot) is interchangeable.
package dispatch

// Queue is the minimal surface this package needs from a work queue.
// k8s.io/client-go/util/workqueue's TypedInterface and
// TypedRateLimitingInterface both satisfy this structurally.
type Queue[T any] interface {
	Add(item T)
	Get() (item T, shutdown bool)
	Done(item T)
}

// RoundRobin forwards messages from a single ingress Queue to a fixed set of
// worker Queues, message k to worker k mod len(workers). See spec.md §4.C.
type RoundRobin[T any] struct {
	ingress Queue[T]
	workers []Queue[T]
}

// NewRoundRobin constructs a dispatcher over the given ingress queue and
// worker queues. len(workers) must be at least 1.
func NewRoundRobin[T any](ingress Queue[T], workers []Queue[T]) *RoundRobin[T] {
	return &RoundRobin[T]{ingress: ingress, workers: workers}
}

// Run forwards messages until the ingress queue is shut down and drained,
// then returns. It never shuts down the worker queues - per spec.md §4.C
// that remains the caller's responsibility, since workers may still be
// finishing in-flight items after the ingress side is closed.
func (d *RoundRobin[T]) Run() {
	var next int
	for {
		item, shutdown := d.ingress.Get()
		if shutdown {
			return
		}

		d.workers[next%len(d.workers)].Add(item)
		d.ingress.Done(item)
		next++
	}
}
