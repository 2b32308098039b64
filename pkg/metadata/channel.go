package metadata

import (
	"context"
	"errors"
	"sync"
)

// ErrNoPayload is returned by a Channel holding text but no binding payload
var ErrNoPayload = errors.New("no metadata payload")

// Channel carries clipboard text together with its side-channel payload
type Channel interface {
	// WriteBinding replaces the clipboard content with text and payload
	WriteBinding(ctx context.Context, text string, payload []byte) error

	// ReadBinding returns the payload travelling with the current clipboard
	// text, or ErrNoPayload
	ReadBinding(ctx context.Context) ([]byte, error)
}

// Clearer is implemented by channels that can drop their payload
type Clearer interface {
	ClearBinding(ctx context.Context) error
}

// MemoryChannel is a Channel held in process memory
type MemoryChannel struct {
	mu      sync.Mutex
	text    string
	payload []byte
}

func (m *MemoryChannel) WriteBinding(_ context.Context, text string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.payload = append([]byte(nil), payload...)
	return nil
}

func (m *MemoryChannel) ReadBinding(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payload) == 0 {
		return nil, ErrNoPayload
	}
	return append([]byte(nil), m.payload...), nil
}

func (m *MemoryChannel) ClearBinding(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = nil
	return nil
}

// ReadText returns the clipboard text
func (m *MemoryChannel) ReadText(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

// WriteText replaces the clipboard text and drops the payload, the way a
// foreign process writing the clipboard would
func (m *MemoryChannel) WriteText(_ context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	m.payload = nil
	return nil
}
