// Package manifest handles blaze.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "blaze.toml"

// DefaultMaxFrames is the call depth limit when none is configured.
const DefaultMaxFrames = 1024

// Manifest represents a blaze.toml project configuration.
type Manifest struct {
	Project   Project   `toml:"project"`
	Classpath Classpath `toml:"classpath"`
	Run       Run       `toml:"run"`
	Log       Log       `toml:"log"`

	// Dir is the directory containing the blaze.toml file (set at load time).
	Dir string `toml:"-"`

	// Unknown lists keys present in the file that no field consumed.
	Unknown []string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Classpath lists class directories and jar archives, searched in order.
type Classpath struct {
	Entries []string `toml:"entries"`
}

// Run configures program execution.
type Run struct {
	Main      string `toml:"main"`
	MaxFrames int    `toml:"max-frames"`
}

// Log configures diagnostics.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Load parses a blaze.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		m.Unknown = append(m.Unknown, key.String())
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Classpath.Entries) == 0 {
		m.Classpath.Entries = []string{"classes"}
	}
	if m.Run.MaxFrames == 0 {
		m.Run.MaxFrames = DefaultMaxFrames
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a blaze.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks value ranges.
func (m *Manifest) Validate() error {
	if m.Run.MaxFrames < 0 {
		return fmt.Errorf("run.max-frames must be positive, got %d", m.Run.MaxFrames)
	}
	if m.Log.Verbosity < -1 {
		return fmt.Errorf("log.verbosity must be -1 or more, got %d", m.Log.Verbosity)
	}
	if strings.ContainsRune(m.Run.Main, '.') {
		return fmt.Errorf("run.main must use internal form (a/b/C), got %q", m.Run.Main)
	}
	return nil
}

// ClasspathEntries returns the classpath with relative entries resolved
// against the manifest directory.
func (m *Manifest) ClasspathEntries() []string {
	var paths []string
	for _, e := range m.Classpath.Entries {
		if !filepath.IsAbs(e) {
			e = filepath.Join(m.Dir, e)
		}
		paths = append(paths, e)
	}
	return paths
}

// LogFilePath returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}
