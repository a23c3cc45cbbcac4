// Package composer models the two Composer manifests the watcher reads:
// composer.json (declared constraints) and composer.lock (locked versions).
package composer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// ManifestFile is the declared-requirements manifest
	ManifestFile = "composer.json"
	// LockFile is the locked-versions manifest
	LockFile = "composer.lock"
)

// ConstraintMap maps a package name to its constraint expression.
// It decodes from a JSON object, and also from the empty array `[]` that PHP
// emits for an empty associative array.
type ConstraintMap map[string]string

// UnmarshalJSON implements json.Unmarshaler
func (m *ConstraintMap) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*m = ConstraintMap{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return err
		}
		if len(list) != 0 {
			return fmt.Errorf("requirement group must be an object, got array of %d items", len(list))
		}
		*m = ConstraintMap{}
		return nil
	}

	raw := map[string]string{}
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Manifest is the subset of composer.json holding requirement groups
type Manifest struct {
	Name       string        `json:"name,omitempty"`
	Require    ConstraintMap `json:"require"`
	RequireDev ConstraintMap `json:"require-dev"`
}

// LockedPackage is one entry of composer.lock
type LockedPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Lock is the subset of composer.lock holding locked packages
type Lock struct {
	Packages    []LockedPackage `json:"packages"`
	PackagesDev []LockedPackage `json:"packages-dev"`
}

// All returns runtime packages followed by development packages, in file order
func (l *Lock) All() []LockedPackage {
	all := make([]LockedPackage, 0, len(l.Packages)+len(l.PackagesDev))
	all = append(all, l.Packages...)
	all = append(all, l.PackagesDev...)
	return all
}

// ParseManifest decodes composer.json content. Missing groups decode as empty maps.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}
	if m.Require == nil {
		m.Require = ConstraintMap{}
	}
	if m.RequireDev == nil {
		m.RequireDev = ConstraintMap{}
	}
	return &m, nil
}

// ParseLock decodes composer.lock content
func ParseLock(data []byte) (*Lock, error) {
	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", LockFile, err)
	}
	return &l, nil
}

// IsPlatformPackage reports whether name is a Composer platform requirement
// such as php, ext-json or lib-icu. Registry packages are always vendor/name.
func IsPlatformPackage(name string) bool {
	return !strings.Contains(name, "/")
}

// FileFetcher reads one file from a repository
type FileFetcher interface {
	RawFile(ctx context.Context, path string) ([]byte, error)
}

// Repository reads Composer manifests through a FileFetcher
type Repository struct {
	files FileFetcher
}

// NewRepository wraps a file fetcher, typically a GitLab client
func NewRepository(files FileFetcher) *Repository {
	return &Repository{files: files}
}

// RequiredPackages fetches and parses composer.json
func (r *Repository) RequiredPackages(ctx context.Context) (*Manifest, error) {
	data, err := r.files.RawFile(ctx, ManifestFile)
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}

// LockedPackages fetches composer.lock and returns every locked package in order
func (r *Repository) LockedPackages(ctx context.Context) ([]LockedPackage, error) {
	data, err := r.files.RawFile(ctx, LockFile)
	if err != nil {
		return nil, err
	}
	lock, err := ParseLock(data)
	if err != nil {
		return nil, err
	}
	return lock.All(), nil
}

// FindVersion returns the version of the first locked package whose name
// matches name case-insensitively. The second return value is false when no
// entry matches.
func FindVersion(locked []LockedPackage, name string) (string, bool) {
	for _, p := range locked {
		if strings.EqualFold(p.Name, name) {
			return p.Version, true
		}
	}
	return "", false
}
