// Package scanner discovers template sources on disk and registers them.
//
// The scanner walks directories for files with the configured extensions,
// skipping excluded and hidden names, and loads them through a persistent
// worker pool. It remembers a CRC32 checksum per file so unchanged files are
// not parsed again, and the template name each file produced so a deleted
// or renamed file unregisters the right template. Workers only read and
// parse; the documents of one scan reach the registry as a single batch.
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/tessera/internal/document"
	"github.com/conneroisu/tessera/internal/errors"
	"github.com/conneroisu/tessera/internal/logging"
	"github.com/conneroisu/tessera/internal/registry"
)

// Registrar parses and receives template sources. The engine implements it.
type Registrar interface {
	Parse(path string, r io.Reader) (*document.Document, error)
	RegisterParsed(entries ...registry.Entry) []string
	Remove(name string) bool
}

// Config controls discovery.
type Config struct {
	Extensions      []string
	ExcludePatterns []string
	Workers         int
}

// DefaultWorkers is the worker count used when none is configured.
func DefaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	return n
}

type fileState struct {
	hash uint32
	name string
}

// ScanSummary reports the outcome of a directory scan.
type ScanSummary struct {
	Files      int
	Registered int
	Unchanged  int
	Duration   time.Duration
	// Errors holds one loader error per file that failed.
	Errors []error
}

// TemplateScanner loads template files into a Registrar.
type TemplateScanner struct {
	target     Registrar
	config     Config
	logger     logging.Logger
	workerPool *WorkerPool

	mu    sync.Mutex
	files map[string]fileState
}

// NewTemplateScanner creates a scanner feeding target.
func NewTemplateScanner(target Registrar, cfg Config, logger logging.Logger) *TemplateScanner {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".html"}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	if logger == nil {
		logger = logging.Discard()
	}

	s := &TemplateScanner{
		target: target,
		config: cfg,
		logger: logger.WithComponent("scanner"),
		files:  make(map[string]fileState),
	}
	s.workerPool = NewWorkerPool(cfg.Workers, s.prepare)
	return s
}

// Close gracefully shuts down the scanner and its worker pool
func (s *TemplateScanner) Close() error {
	s.workerPool.Stop()
	return nil
}

// Matches reports whether path names a template source: it has one of the
// configured extensions and its base name is not excluded.
func (s *TemplateScanner) Matches(path string) bool {
	return s.hasExtension(path) && !s.excluded(filepath.Base(path))
}

// Excluded reports whether a file or directory name matches an exclude
// pattern.
func (s *TemplateScanner) Excluded(name string) bool {
	return s.excluded(name)
}

func (s *TemplateScanner) hasExtension(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range s.config.Extensions {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

func (s *TemplateScanner) excluded(base string) bool {
	for _, pattern := range s.config.ExcludePatterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

// ScanDirectories loads every template below dirs. Any file that fails to
// load fails the scan; the summary still lists every failure.
func (s *TemplateScanner) ScanDirectories(ctx context.Context, dirs []string) (*ScanSummary, error) {
	start := time.Now()
	summary := &ScanSummary{}

	var files []string
	for _, dir := range dirs {
		found, err := s.collect(ctx, dir)
		if err != nil {
			summary.Duration = time.Since(start)
			return summary, err
		}
		files = append(files, found...)
	}
	sort.Strings(files)
	summary.Files = len(files)

	results := s.processBatch(files)
	s.commit(results)
	for _, res := range results {
		switch {
		case res.err != nil:
			summary.Errors = append(summary.Errors, res.err)
		case res.outcome == outcomeUnchanged:
			summary.Unchanged++
		default:
			summary.Registered++
		}
	}
	summary.Duration = time.Since(start)

	s.logger.Debug(ctx, "Scan completed",
		"files", summary.Files, "registered", summary.Registered,
		"unchanged", summary.Unchanged, "errors", len(summary.Errors),
		"duration", summary.Duration)

	if len(summary.Errors) > 0 {
		return summary, errors.Wrap(summary.Errors[0], errors.ErrorTypeLoader, errors.ErrCodeLoadFailed,
			fmt.Sprintf("scan completed with %d errors", len(summary.Errors)))
	}
	return summary, nil
}

// ScanDirectory is ScanDirectories for a single root.
func (s *TemplateScanner) ScanDirectory(ctx context.Context, dir string) (*ScanSummary, error) {
	return s.ScanDirectories(ctx, []string{dir})
}

func (s *TemplateScanner) collect(ctx context.Context, dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != dir && s.excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.hasExtension(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewLoaderError(dir, err).WithContext("reason", "directory not found")
		}
		return nil, errors.NewLoaderError(dir, err)
	}
	return files, nil
}

// processBatch prepares files through the worker pool, falling back to
// the calling goroutine when the queue is full.
func (s *TemplateScanner) processBatch(files []string) []ScanResult {
	results := make([]ScanResult, 0, len(files))
	if len(files) <= 5 {
		for _, f := range files {
			results = append(results, s.prepare(f))
		}
		return results
	}

	resultChan := make(chan ScanResult, len(files))
	for _, f := range files {
		if !s.workerPool.submit(ScanJob{filePath: f, result: resultChan}) {
			resultChan <- s.prepare(f)
		}
	}
	for range files {
		results = append(results, <-resultChan)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].filePath < results[j].filePath })
	return results
}

// ScanFile loads one file, reporting whether it was registered (false when
// its content is unchanged since the last load) and the template name it
// declares.
func (s *TemplateScanner) ScanFile(path string) (bool, string, error) {
	res := s.prepare(path)
	if res.err != nil {
		return false, "", res.err
	}
	s.commit([]ScanResult{res})
	name, _ := s.NameForPath(path)
	return res.outcome == outcomeRegistered, name, nil
}

// prepare reads and parses path. It leaves doc nil when the content is
// unchanged since the last commit.
func (s *TemplateScanner) prepare(path string) ScanResult {
	res := ScanResult{filePath: path}
	content, err := os.ReadFile(path)
	if err != nil {
		res.err = errors.NewLoaderError(path, err)
		return res
	}
	res.hash = crc32.ChecksumIEEE(content)

	s.mu.Lock()
	prev, known := s.files[path]
	s.mu.Unlock()
	if known && prev.hash == res.hash {
		res.outcome = outcomeUnchanged
		return res
	}

	doc, err := s.target.Parse(path, bytes.NewReader(content))
	if err != nil {
		res.err = errors.NewLoaderError(path, err)
		return res
	}
	res.doc = doc
	return res
}

// commit registers the parsed documents of results in one registry update,
// then unregisters names that no file declares any more.
func (s *TemplateScanner) commit(results []ScanResult) {
	entries := make([]registry.Entry, 0, len(results))
	for _, res := range results {
		if res.doc != nil {
			entries = append(entries, registry.Entry{Document: res.doc, Path: res.filePath})
		}
	}
	if len(entries) == 0 {
		return
	}
	s.target.RegisterParsed(entries...)

	replaced := make(map[string]bool)
	s.mu.Lock()
	for _, res := range results {
		if res.doc == nil {
			continue
		}
		if prev, known := s.files[res.filePath]; known {
			replaced[prev.name] = true
		}
		s.files[res.filePath] = fileState{hash: res.hash, name: res.doc.Name}
	}
	var stale []string
	for name := range replaced {
		if !s.providedLocked(name) {
			stale = append(stale, name)
		}
	}
	s.mu.Unlock()

	sort.Strings(stale)
	for _, name := range stale {
		s.target.Remove(name)
	}
	for _, e := range entries {
		s.logger.Debug(context.Background(), "Template loaded", "path", e.Path, "template", e.Document.Name)
	}
}

// RemoveFile forgets path and unregisters its template unless another
// file still provides the same name. It returns the template name.
func (s *TemplateScanner) RemoveFile(path string) (string, bool) {
	s.mu.Lock()
	st, ok := s.files[path]
	if !ok {
		s.mu.Unlock()
		return "", false
	}
	delete(s.files, path)
	provided := s.providedLocked(st.name)
	s.mu.Unlock()

	if !provided {
		s.target.Remove(st.name)
	}
	return st.name, true
}

func (s *TemplateScanner) providedLocked(name string) bool {
	for _, st := range s.files {
		if st.name == name {
			return true
		}
	}
	return false
}

// NameForPath returns the template name last loaded from path.
func (s *TemplateScanner) NameForPath(path string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.files[path]
	return st.name, ok
}

// Files returns the known files mapped to their template names.
func (s *TemplateScanner) Files() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.files))
	for path, st := range s.files {
		out[path] = st.name
	}
	return out
}
