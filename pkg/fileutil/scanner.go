package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// sampleSize is how much of a file IsTextFile inspects
const sampleSize = 8 * 1024

// Collector lists the text files under a set of roots
type Collector struct {
	Recursive  bool // descend into subdirectories
	SkipHidden bool // skip dot files and dot directories
}

// Collect returns the text files named by roots, sorted. A root may be a
// file or a directory.
func (c *Collector) Collect(roots ...string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string

	add := func(path string) error {
		if seen[path] {
			return nil
		}
		ok, err := IsTextFile(path)
		if err != nil {
			return err
		}
		if ok {
			seen[path] = true
			files = append(files, path)
		}
		return nil
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := add(filepath.Clean(root)); err != nil {
				return nil, err
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			hidden := c.SkipHidden && path != root && strings.HasPrefix(d.Name(), ".")
			if d.IsDir() {
				if path != root && (hidden || !c.Recursive) {
					return filepath.SkipDir
				}
				return nil
			}
			if hidden || !d.Type().IsRegular() {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, nil
}

// IsTextFile samples the head of a file and rejects anything that looks
// binary. Empty files are not text.
func IsTextFile(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	sample := make([]byte, sampleSize)
	bytesRead, err := io.ReadFull(file, sample)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read file: %w", err)
	}
	if bytesRead == 0 {
		return false, nil
	}
	sample = sample[:bytesRead]

	controlCount := 0
	for _, b := range sample {
		if b == 0 {
			return false, nil
		}
		// UTF-8 continuation bytes count as text
		if b < 32 && b != '\t' && b != '\n' && b != '\r' && b != '\f' {
			controlCount++
		}
	}

	// If more than 10% are control characters, consider it binary
	return controlCount <= bytesRead/10, nil
}
