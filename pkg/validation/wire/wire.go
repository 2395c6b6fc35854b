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

// Package wire holds the binary encodings this core's outbound records use
// to reach inference-shard collaborators: msgpack for StatesToTokenMaps
// (spec.md §3 requires it be serializable) and CBOR for the assembled
// ValidatedRequest, matching the two compact codecs the teacher's own event
// wire format (pkg/kvcache/kvevents) pulls in for the same reason - a
// smaller wire footprint than JSON for a high-volume internal channel.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/inference-router/validation-core/pkg/grammar"
	"github.com/inference-router/validation-core/pkg/validation"
)

// MarshalStatesToTokenMaps encodes a compiled grammar's FSM as msgpack.
func MarshalStatesToTokenMaps(m grammar.StatesToTokenMaps) ([]byte, error) {
	b, err := msgpack.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("wire: failed to marshal StatesToTokenMaps: %w", err)
	}
	return b, nil
}

// UnmarshalStatesToTokenMaps decodes an msgpack-encoded FSM.
func UnmarshalStatesToTokenMaps(data []byte) (grammar.StatesToTokenMaps, error) {
	var m grammar.StatesToTokenMaps
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("wire: failed to unmarshal StatesToTokenMaps: %w", err)
	}
	return m, nil
}

// MarshalValidatedRequest encodes a ValidatedRequest as CBOR for the
// inference-shard client collaborator.
func MarshalValidatedRequest(v *validation.ValidatedRequest) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wire: failed to marshal ValidatedRequest: %w", err)
	}
	return b, nil
}

// UnmarshalValidatedRequest decodes a CBOR-encoded ValidatedRequest.
func UnmarshalValidatedRequest(data []byte) (*validation.ValidatedRequest, error) {
	var v validation.ValidatedRequest
	if err := cbor.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("wire: failed to unmarshal ValidatedRequest: %w", err)
	}
	return &v, nil
}
