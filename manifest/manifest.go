// Package manifest handles ristretto.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

// FileName is the manifest file looked up in project directories.
const FileName = "ristretto.toml"

// Defaults applied by Load when a field is empty.
const (
	DefaultClassDir   = "classes"
	DefaultStorePath  = ".ristretto/classes.db"
	DefaultServerAddr = "localhost:4568"
	DefaultVerbosity  = 1
)

var log = commonlog.GetLogger("ristretto.manifest")

// Manifest represents a ristretto.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Classpath    Classpath             `toml:"classpath"`
	Run          Run                   `toml:"run"`
	Store        Store                 `toml:"store"`
	Log          Log                   `toml:"log"`
	Server       Server                `toml:"server"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the ristretto.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Classpath lists where classes are loaded from.
type Classpath struct {
	Dirs   []string `toml:"dirs"`   // scanned for *.class
	Images []string `toml:"images"` // CBOR class images
}

// Run configures the default execution.
type Run struct {
	Entry string  `toml:"entry"`
	Args  []int32 `toml:"args"`
	Trace bool    `toml:"trace"`
}

// Store configures the SQLite class store.
type Store struct {
	Path string `toml:"path"`
}

// Log configures commonlog.
type Log struct {
	Verbosity *int   `toml:"verbosity"`
	File      string `toml:"file"`
}

// Server configures the execution service.
type Server struct {
	Addr string `toml:"addr"`
}

// Dependency is another ristretto project whose classpath is appended
// to this one.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// Load parses a ristretto.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults
	if len(m.Classpath.Dirs) == 0 && len(m.Classpath.Images) == 0 {
		m.Classpath.Dirs = []string{DefaultClassDir}
	}
	if m.Store.Path == "" {
		m.Store.Path = DefaultStorePath
	}
	if m.Server.Addr == "" {
		m.Server.Addr = DefaultServerAddr
	}

	log.Debugf("loaded %s", path)
	return &m, nil
}

// FindAndLoad walks up from startDir to find a ristretto.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Verbosity returns the configured log verbosity, or DefaultVerbosity.
func (m *Manifest) Verbosity() int {
	if m.Log.Verbosity == nil {
		return DefaultVerbosity
	}
	return *m.Log.Verbosity
}

// ClassDirPaths returns absolute paths for the configured class directories.
func (m *Manifest) ClassDirPaths() []string {
	return m.resolve(m.Classpath.Dirs)
}

// ImagePaths returns absolute paths for the configured class images.
func (m *Manifest) ImagePaths() []string {
	return m.resolve(m.Classpath.Images)
}

// StorePath returns the absolute path of the class store database.
func (m *Manifest) StorePath() string {
	return m.resolveOne(m.Store.Path)
}

// LogFile returns the absolute log file path, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolveOne(m.Log.File)
}

// DepsDir returns the path to the .ristretto/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".ristretto", "deps")
}

// LockFilePath returns the path to .ristretto/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".ristretto", "lock.toml")
}

func (m *Manifest) resolve(rel []string) []string {
	var paths []string
	for _, p := range rel {
		paths = append(paths, m.resolveOne(p))
	}
	return paths
}

func (m *Manifest) resolveOne(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
