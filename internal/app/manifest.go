package app

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/woxQAQ/jsbridge/pkg/protocol"
	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest name inside an app directory.
const ManifestFile = "manifest.yaml"

// DefaultEntry is the export called when the manifest names none.
const DefaultEntry = "start"

// reservedExports are called by the host, never as an entry point.
var reservedExports = map[string]bool{
	protocol.ExportInitialize:        true,
	protocol.ExportABIVersion:        true,
	protocol.ExportReserveAllocation: true,
	protocol.ExportAllocationPointer: true,
	protocol.ExportDispatchObject:    true,
	protocol.ExportDispatchEmpty:     true,
	protocol.ExportWakeFuture:        true,
	protocol.ExportHandleCallback:    true,
}

var validName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Manifest represents the app manifest.yaml structure.
type Manifest struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description"`
	ABIVersion  uint32     `yaml:"abi_version"`
	Wasm        WasmConfig `yaml:"wasm"`
	Entry       string     `yaml:"entry"`
	Args        []string   `yaml:"args"`
	Preload     []string   `yaml:"preload"`
	Author      string     `yaml:"author"`
	License     string     `yaml:"license"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds guest module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
	Size int    `yaml:"size"` // KB, informational
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Dir: dir,
			Err: err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields and fills in defaults.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if !validName.MatchString(m.Name) {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: fmt.Sprintf("invalid name: %s (lowercase letters, digits, '-' and '_')", m.Name),
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	if m.ABIVersion == 0 {
		m.ABIVersion = protocol.Version
	}
	if m.ABIVersion != protocol.Version {
		return &ABIVersionError{
			Path:     m.Path(),
			App:      m.Name,
			Declared: m.ABIVersion,
			Host:     protocol.Version,
		}
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	if m.Entry == "" {
		m.Entry = DefaultEntry
	}
	if reservedExports[m.Entry] {
		return &EntryError{Path: m.Path(), App: m.Name, Entry: m.Entry}
	}

	// Validate referenced files exist
	if _, err := os.Stat(m.WasmPath()); os.IsNotExist(err) {
		return &FileNotFoundError{
			ManifestPath: m.Path(),
			Field:        "wasm.file",
			File:         m.Wasm.File,
		}
	}

	for _, p := range m.Preload {
		if _, err := os.Stat(m.resolve(p)); os.IsNotExist(err) {
			return &FileNotFoundError{
				ManifestPath: m.Path(),
				Field:        "preload",
				File:         p,
			}
		}
	}

	return nil
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return m.resolve(m.Wasm.File)
}

// PreloadPaths returns the paths of the preload scripts, in order.
func (m *Manifest) PreloadPaths() []string {
	paths := make([]string, len(m.Preload))
	for i, p := range m.Preload {
		paths[i] = m.resolve(p)
	}
	return paths
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.dir, p)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
