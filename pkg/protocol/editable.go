package protocol

import (
	"sync"
	"unicode/utf8"
)

// Editable is an input element that can receive a pasted address.
// Selection offsets are rune indexes into Value.
type Editable interface {
	ID() string
	Value() string
	Selection() (start, end int)
	SetValue(value string, cursor int)
	Disable(reason string)
}

// Splice replaces the [start, end) rune range of value with insert and
// returns the new value with the cursor placed after the insertion.
// Out-of-range or reversed offsets are clamped.
func Splice(value string, start, end int, insert string) (string, int) {
	runes := []rune(value)
	start = clamp(start, 0, len(runes))
	end = clamp(end, 0, len(runes))
	if end < start {
		start, end = end, start
	}

	out := make([]rune, 0, len(runes)-(end-start)+utf8.RuneCountInString(insert))
	out = append(out, runes[:start]...)
	out = append(out, []rune(insert)...)
	out = append(out, runes[end:]...)

	return string(out), start + utf8.RuneCountInString(insert)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TextField is an in-memory Editable
type TextField struct {
	mu       sync.Mutex
	id       string
	value    string
	start    int
	end      int
	disabled bool
	reason   string
}

// NewTextField creates a field with the selection collapsed at the end
func NewTextField(id, value string) *TextField {
	n := utf8.RuneCountInString(value)
	return &TextField{id: id, value: value, start: n, end: n}
}

func (f *TextField) ID() string { return f.id }

func (f *TextField) Value() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

func (f *TextField) Selection() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.start, f.end
}

// Select sets the selection range
func (f *TextField) Select(start, end int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.start, f.end = start, end
}

// SetValue is ignored once the field is disabled
func (f *TextField) SetValue(value string, cursor int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled {
		return
	}
	f.value = value
	f.start, f.end = cursor, cursor
}

func (f *TextField) Disable(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = true
	f.reason = reason
}

// Disabled reports whether the field was invalidated and why
func (f *TextField) Disabled() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled, f.reason
}
