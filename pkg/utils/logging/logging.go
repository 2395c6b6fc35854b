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

// Package logging defines the klog verbosity levels shared across the
// validation core so call sites agree on what counts as DEBUG vs TRACE.
package logging

import "k8s.io/klog/v2"

const (
	// DEBUG is for per-request lifecycle events: dispatch, worker pickup,
	// cache hits/misses.
	DEBUG klog.Level = 2
	// TRACE is for per-parameter resolution detail; noisy enough to be off
	// by default even in a debug-enabled deployment.
	TRACE klog.Level = 4
)
