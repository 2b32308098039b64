package fileutil

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
)

const (
	// DefaultMaxFileSize is the largest file ReadLines accepts
	DefaultMaxFileSize = 64 * 1024 * 1024
	// DefaultMaxLineLength is the longest line ReadLines accepts
	DefaultMaxLineLength = 1024 * 1024

	// how often ReadLines checks for cancellation
	cancelCheckInterval = 1024
)

// ErrFileTooLarge is returned for files above MaxFileSize
var ErrFileTooLarge = errors.New("file too large")

// LineReader manages file reading operations
type LineReader struct {
	MaxFileSize   int64 // Maximum file size in bytes to process
	MaxLineLength int   // Maximum line length; longer lines abort with bufio.ErrTooLong
}

// NewLineReader creates a LineReader with the default limits
func NewLineReader() *LineReader {
	return &LineReader{
		MaxFileSize:   DefaultMaxFileSize,
		MaxLineLength: DefaultMaxLineLength,
	}
}

// ReadLines reads a file line by line and calls processLine for each line.
// Line numbers start at 1.
func (lr *LineReader) ReadLines(ctx context.Context, filePath string, processLine func(line string, lineNum int) error) error {
	size, err := GetFileSize(filePath)
	if err != nil {
		return err
	}
	if lr.MaxFileSize > 0 && size > lr.MaxFileSize {
		return fmt.Errorf("%w: %s (%d bytes, max %d bytes)", ErrFileTooLarge, filePath, size, lr.MaxFileSize)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	maxLine := lr.MaxLineLength
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	// the scanner's limit is the larger of maxLine and the initial capacity
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, min(64*1024, maxLine)), maxLine)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := processLine(scanner.Text(), lineNum); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%s line %d: %w", filePath, lineNum+1, err)
	}
	return nil
}

// GetFileSize returns the size of a file in bytes
func GetFileSize(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
