// Package audit keeps a tamper-evident, append-only log. Each line is
// "ts|op|detail|hash" where hash is the hex SHA-256 of
// "prev|ts|op|detail" and prev is the hash of the line before it (empty for
// the first line).
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/lightningnetwork/lnd/clock"
)

const separator = "|"

// Log appends chained entries to a writer. It is safe for concurrent use.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	prev   string
	clock  clock.Clock
}

// Option configures a Log.
type Option func(*Log)

// WithClock sets the clock used to timestamp entries.
func WithClock(c clock.Clock) Option {
	return func(l *Log) { l.clock = c }
}

// New creates a Log writing to w whose chain continues from prev
func New(w io.Writer, prev string, opts ...Option) *Log {
	l := &Log{
		w:     w,
		prev:  prev,
		clock: clock.NewDefaultClock(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Open appends to the log file at path, creating it with mode 0600. An
// existing file is verified first so the chain resumes from its last hash.
func Open(path string, opts ...Option) (*Log, error) {
	prev, err := lastHash(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	l := New(f, prev, opts...)
	l.closer = f
	return l, nil
}

func lastHash(path string) (string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read audit log: %w", err)
	}
	defer f.Close()

	var last string
	if _, err := verify(f, func(hash string) { last = hash }); err != nil {
		return "", fmt.Errorf("existing audit log: %w", err)
	}
	return last, nil
}

// Append writes one entry and returns its hash
func (l *Log) Append(op, detail string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := strconv.FormatInt(l.clock.Now().UnixMilli(), 10)
	op, detail = Sanitize(op), Sanitize(detail)
	hash := chainHash(l.prev, ts, op, detail)

	line := strings.Join([]string{ts, op, detail, hash}, separator) + "\n"
	if _, err := io.WriteString(l.w, line); err != nil {
		return "", fmt.Errorf("append audit entry: %w", err)
	}
	l.prev = hash
	return hash, nil
}

// Head returns the hash of the last entry written
func (l *Log) Head() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.prev
}

// Close closes the underlying file when the Log was opened from a path
func (l *Log) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Sanitize removes the field separator and line breaks from a field
func Sanitize(s string) string {
	return strings.NewReplacer(separator, "/", "\n", " ", "\r", " ").Replace(s)
}

func chainHash(prev, ts, op, detail string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{prev, ts, op, detail}, separator)))
	return hex.EncodeToString(sum[:])
}

// VerifyError reports the first line that breaks the chain.
type VerifyError struct {
	Line     int
	Expected string
	Got      string
	Format   bool
}

func (e *VerifyError) Error() string {
	if e.Format {
		return fmt.Sprintf("invalid format at line %d", e.Line)
	}
	return fmt.Sprintf("audit verification failed at line %d: expected %s got %s",
		e.Line, e.Expected, e.Got)
}

// Verify checks every line of r and returns the number of entries verified
func Verify(r io.Reader) (int, error) {
	return verify(r, nil)
}

func verify(r io.Reader, onLine func(hash string)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8192), 1<<20)

	prev := ""
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimRight(scanner.Text(), "\r")

		parts := strings.SplitN(line, separator, 4)
		if len(parts) != 4 {
			return lineno - 1, &VerifyError{Line: lineno, Format: true}
		}

		expected := chainHash(prev, parts[0], parts[1], parts[2])
		if expected != parts[3] {
			return lineno - 1, &VerifyError{Line: lineno, Expected: expected, Got: parts[3]}
		}

		prev = parts[3]
		if onLine != nil {
			onLine(prev)
		}
	}
	if err := scanner.Err(); err != nil {
		return lineno, fmt.Errorf("read audit log: %w", err)
	}
	return lineno, nil
}
