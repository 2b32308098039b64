// Package session holds the per-process secrets mixed into every
// fingerprint. A Session is created once at startup, never persisted, and
// passed explicitly to the components that need it.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	deviceSaltBytes = 16
	nonceBytes      = 8
)

// Session is the execution context of one agent process
type Session struct {
	ID          uuid.UUID
	DeviceSalt  string
	Nonce       string
	ExecContext string
	CreatedAt   time.Time
}

// New creates a session with fresh random salt and nonce
func New(execContext string) (*Session, error) {
	return NewFromReader(rand.Reader, execContext)
}

// NewFromReader creates a session drawing its secrets from r
func NewFromReader(r io.Reader, execContext string) (*Session, error) {
	salt, err := randomHex(r, deviceSaltBytes)
	if err != nil {
		return nil, fmt.Errorf("device salt: %w", err)
	}
	nonce, err := randomHex(r, nonceBytes)
	if err != nil {
		return nil, fmt.Errorf("session nonce: %w", err)
	}
	id, err := uuid.NewRandomFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	if execContext == "" {
		execContext = DefaultExecContext()
	}

	return &Session{
		ID:          id,
		DeviceSalt:  salt,
		Nonce:       nonce,
		ExecContext: execContext,
		CreatedAt:   time.Now(),
	}, nil
}

// DefaultExecContext describes the ambient identity of the process:
// host, user and platform.
func DefaultExecContext() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	name := "unknown-user"
	if u, err := user.Current(); err == nil {
		name = u.Username
	}
	return strings.Join([]string{"agent", host, name, runtime.GOOS + "/" + runtime.GOARCH}, "|")
}

func randomHex(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
