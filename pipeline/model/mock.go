package model

import (
	"context"
	"sync"
)

// MockModel is a test implementation of ChatModel.
//
// It returns scripted responses in order and records every request,
// so handler tests can run a full pipeline without touching an LLM
// API. Safe for concurrent use.
//
// Example:
//
//	mock := &MockModel{
//	    Responses: []Response{
//	        {Text: `{"score": 8}`},
//	        {Text: `{"score": 3}`},
//	    },
//	}
//	resp, _ := mock.Complete(ctx, Request{Prompt: "rate this"})
//	// First call returns the first response; once the script is
//	// exhausted, the last response repeats.
type MockModel struct {
	// Responses is the scripted sequence returned by Complete.
	Responses []Response

	// Err, when set, is returned by every Complete call instead of a
	// response.
	Err error

	// Calls records every request received, in order.
	Calls []Request

	mu   sync.Mutex
	next int
}

// Complete implements the ChatModel interface.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if ctx.Err() != nil {
		return Response{}, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.Err != nil {
		return Response{}, m.Err
	}
	if len(m.Responses) == 0 {
		return Response{Provider: "mock"}, nil
	}

	idx := m.next
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	} else {
		m.next++
	}

	resp := m.Responses[idx]
	if resp.Provider == "" {
		resp.Provider = "mock"
	}
	return resp, nil
}

// Reset clears the call history and restarts the response script.
func (m *MockModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = nil
	m.next = 0
}

// CallCount returns how many times Complete has been called.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.Calls)
}
