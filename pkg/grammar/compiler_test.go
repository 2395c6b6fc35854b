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

//nolint:testpackage // need to test internal types
package grammar

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLibrary struct {
	mock.Mock
}

func (m *MockLibrary) BuildRegexFromSchema(schema map[string]any) (string, error) {
	args := m.Called(schema)
	return args.String(0), args.Error(1)
}

func (m *MockLibrary) BuildFSM(regex string, vocab map[string]uint32) (StatesToTokenMaps, error) {
	args := m.Called(regex, vocab)
	states, _ := args.Get(0).(StatesToTokenMaps)
	return states, args.Error(1)
}

func TestPool_ProcessRequest_JSONSchemaLowersToRegexAndFSM(t *testing.T) {
	lib := &MockLibrary{}
	schema := map[string]any{"type": "string"}
	vocab := map[string]uint32{"a": 1}
	states := StatesToTokenMaps{0: {1: 1}}

	lib.On("BuildRegexFromSchema", schema).Return("a+", nil)
	lib.On("BuildFSM", "a+", vocab).Return(states, nil)

	pool := &Pool{lib: lib}
	reply := make(chan Result, 1)
	pool.processRequest(&Request{Kind: KindJSON, Schema: schema, Vocab: vocab, Reply: reply, Ctx: context.Background()})

	res := <-reply
	require.NoError(t, res.Err)
	assert.Equal(t, "a+", res.Regex)
	assert.Equal(t, states, res.States)
}

func TestPool_ProcessRequest_RegexKindSkipsLoweringAndFSM(t *testing.T) {
	lib := &MockLibrary{}
	pool := &Pool{lib: lib}
	reply := make(chan Result, 1)
	pool.processRequest(&Request{Kind: KindRegex, Source: "[a-z]+", Reply: reply, Ctx: context.Background()})

	res := <-reply
	require.NoError(t, res.Err)
	assert.Equal(t, "[a-z]+", res.Regex)
	assert.Nil(t, res.States, "regex-kind grammars carry no FSM map")
	lib.AssertNotCalled(t, "BuildRegexFromSchema", mock.Anything)
	lib.AssertNotCalled(t, "BuildFSM", mock.Anything, mock.Anything)
}

func TestPool_ProcessRequest_UnknownKindRejected(t *testing.T) {
	lib := &MockLibrary{}
	pool := &Pool{lib: lib}
	reply := make(chan Result, 1)
	pool.processRequest(&Request{Kind: Kind("yaml"), Source: "irrelevant", Reply: reply, Ctx: context.Background()})

	res := <-reply
	require.Error(t, res.Err)
	lib.AssertNotCalled(t, "BuildRegexFromSchema", mock.Anything)
	lib.AssertNotCalled(t, "BuildFSM", mock.Anything, mock.Anything)
}

func TestPool_ProcessRequest_SchemaCompilationError(t *testing.T) {
	lib := &MockLibrary{}
	schema := map[string]any{"type": "string"}
	lib.On("BuildRegexFromSchema", schema).Return("", fmt.Errorf("bad schema"))

	pool := &Pool{lib: lib}
	reply := make(chan Result, 1)
	pool.processRequest(&Request{Kind: KindJSON, Schema: schema, Reply: reply, Ctx: context.Background()})

	res := <-reply
	require.Error(t, res.Err)
}

func TestPool_ProcessRequest_CacheHitSkipsLibrary(t *testing.T) {
	lib := &MockLibrary{}
	schema := map[string]any{"type": "string"}
	vocab := map[string]uint32{"a": 1}
	states := StatesToTokenMaps{0: {1: 1}}

	cache, err := NewCache(defaultCacheSize)
	require.NoError(t, err)

	pool := &Pool{lib: lib, cache: cache}
	req := &Request{Kind: KindJSON, Schema: schema, Vocab: vocab, Ctx: context.Background()}

	lib.On("BuildRegexFromSchema", schema).Return("a+", nil).Once()
	lib.On("BuildFSM", "a+", vocab).Return(states, nil).Once()

	firstReply := make(chan Result, 1)
	req.Reply = firstReply
	pool.processRequest(req)
	first := <-firstReply
	require.NoError(t, first.Err)

	secondReply := make(chan Result, 1)
	req.Reply = secondReply
	pool.processRequest(req)
	second := <-secondReply
	require.NoError(t, second.Err)
	assert.Equal(t, first.Regex, second.Regex)
	assert.Equal(t, first.States, second.States)

	lib.AssertExpectations(t) // BuildRegexFromSchema/BuildFSM each called exactly once
}

func TestPool_RunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping grammar pool integration test in short mode")
	}

	lib := &MockLibrary{}
	lib.On("BuildRegexFromSchema", mock.Anything).Return("a+", nil)
	lib.On("BuildFSM", mock.Anything, mock.Anything).Return(StatesToTokenMaps{}, nil)

	pool, err := NewPool(&Config{WorkersCount: 3, CacheSize: 0}, lib)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		pool.Run(ctx)
	}()

	const requestCount = 9
	replies := make([]chan Result, requestCount)
	for i := range requestCount {
		replies[i] = make(chan Result, 1)
		pool.Submit(&Request{Kind: KindJSON, Schema: map[string]any{"type": "string"}, Reply: replies[i], Ctx: ctx})
	}

	for i := range requestCount {
		select {
		case res := <-replies[i]:
			require.NoError(t, res.Err)
			assert.Equal(t, "a+", res.Regex)
		case <-time.After(5 * time.Second):
			t.Fatalf("request %d never got a reply", i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not shut down after context cancellation")
	}
}
