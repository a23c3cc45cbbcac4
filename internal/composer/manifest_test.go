package composer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestParseManifest(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		wantRequire    ConstraintMap
		wantRequireDev ConstraintMap
		wantErr        bool
	}{
		{
			name:           "both groups",
			input:          `{"require":{"php":">=7.1","monolog/monolog":"^1.2"},"require-dev":{"phpunit/phpunit":"^7.0"}}`,
			wantRequire:    ConstraintMap{"php": ">=7.1", "monolog/monolog": "^1.2"},
			wantRequireDev: ConstraintMap{"phpunit/phpunit": "^7.0"},
		},
		{
			name:           "missing require-dev",
			input:          `{"require":{"monolog/monolog":"^1.2"}}`,
			wantRequire:    ConstraintMap{"monolog/monolog": "^1.2"},
			wantRequireDev: ConstraintMap{},
		},
		{
			name:           "missing both",
			input:          `{"name":"acme/shop"}`,
			wantRequire:    ConstraintMap{},
			wantRequireDev: ConstraintMap{},
		},
		{
			name:           "php empty array",
			input:          `{"require":[],"require-dev":[]}`,
			wantRequire:    ConstraintMap{},
			wantRequireDev: ConstraintMap{},
		},
		{
			name:           "null groups",
			input:          `{"require":null,"require-dev":null}`,
			wantRequire:    ConstraintMap{},
			wantRequireDev: ConstraintMap{},
		},
		{
			name:    "non-empty array",
			input:   `{"require":["monolog/monolog"]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			input:   `require: yes`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ParseManifest([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseManifest failed: %v", err)
			}
			if !reflect.DeepEqual(m.Require, tt.wantRequire) {
				t.Errorf("require: expected %v, got %v", tt.wantRequire, m.Require)
			}
			if !reflect.DeepEqual(m.RequireDev, tt.wantRequireDev) {
				t.Errorf("require-dev: expected %v, got %v", tt.wantRequireDev, m.RequireDev)
			}
		})
	}
}

func TestLockAllKeepsOrder(t *testing.T) {
	lock, err := ParseLock([]byte(`{
		"packages": [
			{"name": "psr/log", "version": "1.1.0"},
			{"name": "monolog/monolog", "version": "1.24.0"}
		],
		"packages-dev": [
			{"name": "phpunit/phpunit", "version": "7.5.1"}
		]
	}`))
	if err != nil {
		t.Fatalf("ParseLock failed: %v", err)
	}

	want := []LockedPackage{
		{Name: "psr/log", Version: "1.1.0"},
		{Name: "monolog/monolog", Version: "1.24.0"},
		{Name: "phpunit/phpunit", Version: "7.5.1"},
	}
	if got := lock.All(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestIsPlatformPackage(t *testing.T) {
	tests := map[string]bool{
		"php":                 true,
		"ext-json":            true,
		"lib-icu":             true,
		"composer-plugin-api": true,
		"monolog/monolog":     false,
		"composer/semver":     false,
	}
	for name, want := range tests {
		if got := IsPlatformPackage(name); got != want {
			t.Errorf("IsPlatformPackage(%q) = %v, want %v", name, got, want)
		}
	}
}

type fakeFetcher struct {
	files map[string]string
	calls []string
}

func (f *fakeFetcher) RawFile(ctx context.Context, path string) ([]byte, error) {
	f.calls = append(f.calls, path)
	content, ok := f.files[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(content), nil
}

func TestRepository(t *testing.T) {
	fetcher := &fakeFetcher{files: map[string]string{
		ManifestFile: `{"require":{"psr/log":"^1.0"}}`,
		LockFile:     `{"packages":[{"name":"psr/log","version":"1.1.0"}]}`,
	}}
	repo := NewRepository(fetcher)

	manifest, err := repo.RequiredPackages(context.Background())
	if err != nil {
		t.Fatalf("RequiredPackages failed: %v", err)
	}
	if manifest.Require["psr/log"] != "^1.0" {
		t.Errorf("unexpected require %v", manifest.Require)
	}

	locked, err := repo.LockedPackages(context.Background())
	if err != nil {
		t.Fatalf("LockedPackages failed: %v", err)
	}
	if len(locked) != 1 || locked[0].Version != "1.1.0" {
		t.Errorf("unexpected locked packages %v", locked)
	}

	if !reflect.DeepEqual(fetcher.calls, []string{ManifestFile, LockFile}) {
		t.Errorf("unexpected fetch calls %v", fetcher.calls)
	}
}

func TestRepositoryPropagatesFetchErrors(t *testing.T) {
	repo := NewRepository(&fakeFetcher{files: map[string]string{}})

	if _, err := repo.RequiredPackages(context.Background()); err == nil {
		t.Error("expected RequiredPackages error")
	}
	if _, err := repo.LockedPackages(context.Background()); err == nil {
		t.Error("expected LockedPackages error")
	}
}

func TestFindVersion(t *testing.T) {
	locked := []LockedPackage{
		{Name: "foo/bar", Version: "1.0.0"},
		{Name: "Foo/Bar", Version: "9.9.9"},
		{Name: "psr/log", Version: "1.1.0"},
	}

	if v, ok := FindVersion(locked, "Foo/Bar"); !ok || v != "1.0.0" {
		t.Errorf("expected first case-insensitive match 1.0.0, got (%q, %v)", v, ok)
	}
	if v, ok := FindVersion(locked, "PSR/LOG"); !ok || v != "1.1.0" {
		t.Errorf("expected 1.1.0, got (%q, %v)", v, ok)
	}
	if _, ok := FindVersion(locked, "acme/missing"); ok {
		t.Error("absent package should not be found")
	}
	if _, ok := FindVersion(nil, "foo/bar"); ok {
		t.Error("empty lock should not match")
	}
}

// TestFindVersionIgnoresCase tests that lookup succeeds for any casing of a locked name
func TestFindVersionIgnoresCase(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("upper-cased query finds lower-cased entry", prop.ForAll(
		func(vendor, name string, flip []bool) bool {
			stored := vendor + "/" + name
			query := []rune(stored)
			for i := range query {
				if i < len(flip) && flip[i] {
					query[i] = []rune(strings.ToUpper(string(query[i])))[0]
				}
			}
			v, ok := FindVersion([]LockedPackage{{Name: stored, Version: "1.2.3"}}, string(query))
			return ok && v == "1.2.3"
		},
		gen.RegexMatch(`^[a-z][a-z0-9-]{0,8}$`),
		gen.RegexMatch(`^[a-z][a-z0-9-]{0,8}$`),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
