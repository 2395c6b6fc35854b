// Copyright 2025 The llm-d Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics holds the Prometheus collectors spec.md §6 mandates:
// histogram observations of request_input_length and request_max_new_tokens.
// No counters are mandated by the core.
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

var (
	// RequestInputLength observes the tokenized input length of each
	// validated request (spec.md §4.E step 6).
	RequestInputLength = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "validation", Subsystem: "request", Name: "input_length",
		Help:    "Tokenized length of validated request inputs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14), // 1 .. 8192
	})
	// RequestMaxNewTokens observes the resolved max_new_tokens of each
	// validated request (spec.md §4.F step 5).
	RequestMaxNewTokens = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "validation", Subsystem: "request", Name: "max_new_tokens",
		Help:    "Resolved max_new_tokens of validated requests",
		Buckets: prometheus.ExponentialBuckets(1, 2, 14),
	})
)

// Collectors returns every Prometheus collector this package registers.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{RequestInputLength, RequestMaxNewTokens}
}

var registerMetricsOnce = sync.Once{}

// Register registers all metrics with the controller-runtime registry.
func Register() {
	registerMetricsOnce.Do(func() {
		metrics.Registry.MustRegister(Collectors()...)
	})
}

// ObserveInputLength records a request_input_length observation.
func ObserveInputLength(v float64) {
	RequestInputLength.Observe(v)
}

// ObserveMaxNewTokens records a request_max_new_tokens observation.
func ObserveMaxNewTokens(v float64) {
	RequestMaxNewTokens.Observe(v)
}

// StartMetricsLogging spawns a goroutine that logs current metric values
// every interval, matching the teacher's periodic metrics beat.
func StartMetricsLogging(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			logMetrics(ctx)
		}
	}()
}

func logMetrics(ctx context.Context) {
	var inputLen dto.Metric
	if err := RequestInputLength.Write(&inputLen); err != nil {
		return
	}

	var maxNewTokens dto.Metric
	if err := RequestMaxNewTokens.Write(&maxNewTokens); err != nil {
		return
	}

	inputCount := inputLen.GetHistogram().GetSampleCount()
	inputSum := inputLen.GetHistogram().GetSampleSum()
	newTokensCount := maxNewTokens.GetHistogram().GetSampleCount()
	newTokensSum := maxNewTokens.GetHistogram().GetSampleSum()

	logger := klog.FromContext(ctx).WithName("metrics")
	if inputCount == 0 && newTokensCount == 0 {
		logger.Info("metrics beat", "requests", 0)
		return
	}

	logger.Info("metrics beat",
		"inputLengthCount", inputCount,
		"inputLengthAvg", safeDiv(inputSum, inputCount),
		"maxNewTokensCount", newTokensCount,
		"maxNewTokensAvg", safeDiv(newTokensSum, newTokensCount),
	)
}

func safeDiv(sum float64, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}
