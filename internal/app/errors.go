package app

import (
	"fmt"
	"strings"
)

// ManifestNotFoundError occurs when an app directory has no manifest.yaml.
type ManifestNotFoundError struct {
	Dir string
	Err error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("app directory '%s' has no %s: %v", e.Dir, ManifestFile, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml is not valid YAML or does
// not match the manifest schema.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("manifest '%s' is not valid YAML: %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError reports a manifest field with a missing or
// malformed value.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	return fmt.Sprintf("manifest '%s': %s: %s", e.Path, e.Field, e.Message)
}

// ABIVersionError occurs when an app was built for a bridge protocol the
// host does not speak.
type ABIVersionError struct {
	Path     string
	App      string
	Declared uint32
	Host     uint32
}

func (e *ABIVersionError) Error() string {
	return fmt.Sprintf("app '%s' targets abi_version %d, host speaks %d (manifest '%s')",
		e.App, e.Declared, e.Host, e.Path)
}

// EntryError occurs when the manifest entry names an export the bridge
// reserves for host reentry.
type EntryError struct {
	Path  string
	App   string
	Entry string
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("app '%s' uses reserved bridge export '%s' as entry (manifest '%s')",
		e.App, e.Entry, e.Path)
}

// FileNotFoundError occurs when a file referenced in the manifest doesn't exist.
type FileNotFoundError struct {
	ManifestPath string
	Field        string
	File         string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found (referenced in manifest '%s')",
		e.Field, e.File, e.ManifestPath)
}

// AppLoadError occurs when an app's guest module cannot be read or
// compiled. Stage names the failing step.
type AppLoadError struct {
	AppName string
	Stage   string
	Err     error
}

func (e *AppLoadError) Error() string {
	return fmt.Sprintf("app '%s': %s: %v", e.AppName, e.Stage, e.Err)
}

func (e *AppLoadError) Unwrap() error {
	return e.Err
}

// AppNotFoundError occurs when a run names an app that is not loaded.
type AppNotFoundError struct {
	AppName string
	Loaded  []string
}

func (e *AppNotFoundError) Error() string {
	if len(e.Loaded) == 0 {
		return fmt.Sprintf("app '%s' is not loaded (no apps loaded)", e.AppName)
	}
	return fmt.Sprintf("app '%s' is not loaded (loaded: %s)", e.AppName, strings.Join(e.Loaded, ", "))
}

// AppAlreadyRegisteredError occurs when two app directories declare the
// same name.
type AppAlreadyRegisteredError struct {
	AppName string
	Dir     string
	Other   string
}

func (e *AppAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("app '%s' in %s is already registered from %s", e.AppName, e.Dir, e.Other)
}

// NoAppsFoundError occurs when no app directory exists under the
// configured app paths.
type NoAppsFoundError struct {
	Paths []string
}

func (e *NoAppsFoundError) Error() string {
	return fmt.Sprintf("no app directories with %s under %s", ManifestFile, strings.Join(e.Paths, ", "))
}
