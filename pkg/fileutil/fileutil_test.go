package fileutil

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReadLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	write(t, path, "alice\nbob\r\n\ncarol")

	var lines []string
	var nums []int
	err := NewLineReader().ReadLines(context.Background(), path, func(line string, n int) error {
		lines = append(lines, line)
		nums = append(nums, n)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob", "", "carol"}, lines)
	require.Equal(t, []int{1, 2, 3, 4}, nums)
}

func TestReadLinesLimits(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.txt")
	write(t, big, strings.Repeat("a", 100))

	lr := &LineReader{MaxFileSize: 10}
	err := lr.ReadLines(context.Background(), big, func(string, int) error { return nil })
	require.ErrorIs(t, err, ErrFileTooLarge)

	lr = &LineReader{MaxLineLength: 16}
	err = lr.ReadLines(context.Background(), big, func(string, int) error { return nil })
	require.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "a.txt"), "text")
	write(t, filepath.Join(root, "sub", "b.csv"), "name,address\n")
	write(t, filepath.Join(root, ".hidden", "c.txt"), "secret")
	write(t, filepath.Join(root, "empty.txt"), "")
	write(t, filepath.Join(root, "blob.bin"), "MZ\x00\x00\x01\x02")

	flat, err := (&Collector{SkipHidden: true}).Collect(root)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(root, "a.txt")}, flat)

	deep, err := (&Collector{Recursive: true, SkipHidden: true}).Collect(root)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "b.csv"),
	}, deep)

	all, err := (&Collector{Recursive: true}).Collect(root, filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	require.Len(t, all, 3)

	_, err = (&Collector{}).Collect(filepath.Join(root, "missing"))
	require.Error(t, err)
}
