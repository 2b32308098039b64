// Package scanner audits text files, such as exported address books, for
// cryptocurrency addresses and reports each one with its canonical form and
// session fingerprint. Lines holding a BIP-39 seed phrase are flagged.
package scanner

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/fileutil"
	"github.com/grendel/clipseal/pkg/protocol"
	"github.com/grendel/clipseal/pkg/verify"
)

// maxPerLine bounds how many addresses are extracted from one line
const maxPerLine = 16

// Finding is one address or seed phrase found in a file
type Finding struct {
	File        string
	Line        int
	Chain       crypto.ChainTag
	Raw         string
	Canonical   string
	Fingerprint string
	Reason      protocol.Reason // empty when the address is valid
}

// Valid reports whether the finding is a well-formed address
func (f Finding) Valid() bool {
	return f.Reason == protocol.ReasonNone
}

// ScanResult represents the results of a file scan
type ScanResult struct {
	FilesScanned int
	FilesSkipped int
	Findings     []Finding
}

// Invalid counts findings that failed validation
func (r *ScanResult) Invalid() int {
	n := 0
	for _, f := range r.Findings {
		if !f.Valid() {
			n++
		}
	}
	return n
}

// Options tunes a scan.
type Options struct {
	// Workers is the number of files scanned in parallel. Default: NumCPU.
	Workers int
	// Recursive descends into subdirectories.
	Recursive bool
	// MaxFileSize skips larger files. Default: fileutil.DefaultMaxFileSize.
	MaxFileSize int64
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MaxFileSize <= 0 {
		o.MaxFileSize = fileutil.DefaultMaxFileSize
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Scanner finds addresses in files
type Scanner struct {
	verifier *verify.Verifier
	opts     Options
	reader   *fileutil.LineReader
}

// New creates a Scanner
func New(verifier *verify.Verifier, opts Options) *Scanner {
	opts.defaults()
	reader := fileutil.NewLineReader()
	reader.MaxFileSize = opts.MaxFileSize
	return &Scanner{verifier: verifier, opts: opts, reader: reader}
}

// Scan collects the text files under roots and scans them concurrently.
// Findings are ordered by file, then line, then position.
func (s *Scanner) Scan(ctx context.Context, roots ...string) (*ScanResult, error) {
	collector := &fileutil.Collector{Recursive: s.opts.Recursive, SkipHidden: true}
	files, err := collector.Collect(roots...)
	if err != nil {
		return nil, err
	}

	perFile := make([][]Finding, len(files))
	skipped := make([]bool, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			findings, err := s.ScanFile(ctx, file)
			switch {
			case errors.Is(err, fileutil.ErrFileTooLarge), errors.Is(err, bufio.ErrTooLong):
				s.opts.Logger.Warn("scanner: skipping file", "file", file, "error", err)
				skipped[i] = true
				return nil
			case err != nil:
				return err
			}
			perFile[i] = findings
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &ScanResult{FilesScanned: len(files)}
	for i := range files {
		if skipped[i] {
			result.FilesSkipped++
			continue
		}
		result.Findings = append(result.Findings, perFile[i]...)
	}
	return result, nil
}

// ScanFile scans a single file
func (s *Scanner) ScanFile(ctx context.Context, file string) ([]Finding, error) {
	var findings []Finding
	err := s.reader.ReadLines(ctx, file, func(line string, lineNum int) error {
		for _, f := range s.ScanLine(line) {
			f.File = file
			f.Line = lineNum
			findings = append(findings, f)
		}
		return nil
	})
	return findings, err
}

// ScanLine returns every address on a line in order of position. Generic
// matches are not reported.
func (s *Scanner) ScanLine(line string) []Finding {
	if crypto.ValidateBIP39SeedPhrase(line) {
		return []Finding{{Reason: protocol.ReasonSeedPhrase}}
	}

	type located struct {
		offset int
		f      Finding
	}
	var found []located

	// Each detection is blanked out so the next pass finds the next address
	rest := line
	for i := 0; i < maxPerLine; i++ {
		det := s.verifier.Detect(rest)
		if det.IsNone() {
			break
		}
		d := det.UnsafeFromSome()
		rest = rest[:d.Offset] + strings.Repeat(" ", len(d.Raw)) + rest[d.Offset+len(d.Raw):]
		if d.Chain == crypto.ChainGeneric {
			continue
		}

		f := Finding{Chain: d.Chain, Raw: d.Raw}
		if resolved, err := s.verifier.Resolve(d); err != nil {
			f.Reason = protocol.ReasonFor(err)
		} else {
			f.Canonical = resolved.Canonical
			f.Fingerprint = resolved.Fingerprint.Short
		}
		found = append(found, located{offset: d.Offset, f: f})
	}

	slices.SortStableFunc(found, func(a, b located) int {
		return cmp.Compare(a.offset, b.offset)
	})

	findings := make([]Finding, len(found))
	for i, l := range found {
		findings[i] = l.f
	}
	return findings
}
