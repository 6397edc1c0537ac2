// Package classpath turns class names into class-file bytes. Names use the
// internal slash form, e.g. "java/lang/Object".
package classpath

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
)

// ErrNotFound is returned by a Source that has no class of the given name.
var ErrNotFound = errors.New("class not found")

var log = commonlog.GetLogger("blaze.classpath")

// Source finds class-file bytes by class name.
type Source interface {
	Find(name string) ([]byte, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(name string) ([]byte, error)

func (f SourceFunc) Find(name string) ([]byte, error) { return f(name) }

func notFound(name string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ---------------------------------------------------------------------------
// Dir: a directory tree of .class files
// ---------------------------------------------------------------------------

// Dir finds classes below a root directory, "a/b/C" at "<root>/a/b/C.class".
type Dir string

func (d Dir) Find(name string) ([]byte, error) {
	if !validName(name) {
		return nil, notFound(name)
	}
	path := filepath.Join(string(d), filepath.FromSlash(name)+".class")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, notFound(name)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	log.Debugf("found %s in %s", name, d)
	return data, nil
}

func validName(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.HasPrefix(name, "[") {
		return false
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// ---------------------------------------------------------------------------
// Memory: an in-memory map of classes
// ---------------------------------------------------------------------------

// Memory holds class files keyed by name. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	classes map[string][]byte
}

// NewMemory creates an empty Memory source.
func NewMemory() *Memory {
	return &Memory{classes: make(map[string][]byte)}
}

// Add stores a class, replacing any previous bytes under the same name.
func (m *Memory) Add(name string, data []byte) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.classes[name] = data
	return m
}

func (m *Memory) Find(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.classes[name]
	if !ok {
		return nil, notFound(name)
	}
	return data, nil
}

// Names returns the stored class names in sorted order.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.classes))
	for n := range m.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ---------------------------------------------------------------------------
// Path: ordered composite
// ---------------------------------------------------------------------------

// Path searches its entries in order and returns the first hit. Errors other
// than ErrNotFound stop the search.
type Path []Source

func (p Path) Find(name string) ([]byte, error) {
	for _, src := range p {
		data, err := src.Find(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, notFound(name)
}

// Close closes every entry that holds resources.
func (p Path) Close() error {
	var errs []error
	for _, src := range p {
		if c, ok := src.(interface{ Close() error }); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// Parse builds a Path from a list separated by the OS path-list separator.
// Entries ending in .jar or .zip are opened as archives; anything else is a
// directory.
func Parse(list string) (Path, error) {
	return Open(filepath.SplitList(list)...)
}

// Open builds a Path from individual entries.
func Open(entries ...string) (Path, error) {
	var p Path
	for _, e := range entries {
		if e == "" {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e))
		if ext == ".jar" || ext == ".zip" {
			jar, err := OpenJar(e)
			if err != nil {
				p.Close()
				return nil, err
			}
			p = append(p, jar)
			continue
		}
		info, err := os.Stat(e)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("classpath entry %s: %w", e, err)
		}
		if !info.IsDir() {
			p.Close()
			return nil, fmt.Errorf("classpath entry %s: not a directory or archive", e)
		}
		p = append(p, Dir(e))
	}
	log.Infof("classpath has %d entries", len(p))
	return p, nil
}
