// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package supervisor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// MockService is a suture.Service test double whose behavior (fail N times,
// then run until canceled) is configurable via SetFailCount.
type MockService struct {
	name       string
	startCount int32
	mu         sync.Mutex
	failCount  int
}

// NewMockService creates a mock service that runs until its context is
// canceled and returns nil.
func NewMockService(name string) *MockService {
	return &MockService{name: name}
}

// SetFailCount configures the service to return an error on its first n
// invocations, then behave normally thereafter.
func (m *MockService) SetFailCount(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount = n
}

// StartCount returns how many times Serve has been invoked.
func (m *MockService) StartCount() int {
	return int(atomic.LoadInt32(&m.startCount))
}

func (m *MockService) Serve(ctx context.Context) error {
	atomic.AddInt32(&m.startCount, 1)

	m.mu.Lock()
	shouldFail := m.failCount > 0
	if shouldFail {
		m.failCount--
	}
	m.mu.Unlock()

	if shouldFail {
		return errors.New("mock service failure: " + m.name)
	}

	<-ctx.Done()
	return nil
}

func (m *MockService) String() string {
	return m.name
}
