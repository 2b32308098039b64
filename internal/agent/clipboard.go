package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/atotto/clipboard"

	"github.com/grendel/clipseal/pkg/metadata"
)

// Clipboard is the surface the agent needs from a clipboard: the metadata
// side channel plus plain text access for the integrity monitor
type Clipboard interface {
	metadata.Channel
	metadata.Clearer
	ReadText(ctx context.Context) (string, error)
	WriteText(ctx context.Context, text string) error
}

// SystemClipboard adapts the OS clipboard. The system clipboard carries
// text only, so the binding payload lives in a sidecar file that is valid
// only while the clipboard still holds the bound address.
type SystemClipboard struct {
	payloadFile string
	read        func() (string, error)
	write       func(string) error

	mu sync.Mutex
}

// NewSystemClipboard creates the adapter. payloadFile is created with
// mode 0600.
func NewSystemClipboard(payloadFile string) *SystemClipboard {
	return newSystemClipboard(payloadFile, clipboard.ReadAll, clipboard.WriteAll)
}

func newSystemClipboard(payloadFile string, read func() (string, error), write func(string) error) *SystemClipboard {
	return &SystemClipboard{payloadFile: payloadFile, read: read, write: write}
}

// SystemClipboardSupported reports whether a clipboard utility is available
func SystemClipboardSupported() bool {
	return !clipboard.Unsupported
}

func (c *SystemClipboard) WriteBinding(_ context.Context, text string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return c.writePayload(payload)
}

// ReadBinding returns the sidecar payload when the clipboard still holds
// the address it was written for
func (c *SystemClipboard) ReadBinding(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.payloadFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, metadata.ErrNoPayload
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	b, err := metadata.Decode(data)
	if err != nil {
		// let the store report it as malformed
		return data, nil
	}

	text, err := c.read()
	if err != nil {
		return nil, fmt.Errorf("read clipboard: %w", err)
	}
	if strings.TrimSpace(text) != b.Canonical {
		return nil, metadata.ErrNoPayload
	}
	return data, nil
}

func (c *SystemClipboard) ClearBinding(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removePayload()
}

func (c *SystemClipboard) ReadText(context.Context) (string, error) {
	return c.read()
}

// WriteText replaces the clipboard text and drops any payload
func (c *SystemClipboard) WriteText(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.write(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	return c.removePayload()
}

func (c *SystemClipboard) writePayload(payload []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.payloadFile), 0o700); err != nil {
		return fmt.Errorf("create payload dir: %w", err)
	}

	tmp := c.payloadFile + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	if err := os.Rename(tmp, c.payloadFile); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func (c *SystemClipboard) removePayload() error {
	if err := os.Remove(c.payloadFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove payload: %w", err)
	}
	return nil
}
