// Package semver adapts Composer version constraints and versions to
// Masterminds/semver range semantics.
//
// Composer syntax differs from plain semver ranges in a few places, all
// normalised here before parsing:
//   - a single "|" separates alternatives, like "||"; "," joins terms like a space
//   - stability flags ("@dev", "@stable") are accepted and ignored
//   - a two-part tilde ("~1.2") allows everything up to the next major
//   - a partial version after a comparison or no operator names the ".0"
//     release ("1.2" is exactly 1.2.0, "<=1.2" stops at 1.2.0)
//   - a partial hyphen upper bound covers its last named part
//     ("1.0 - 2.0" is ">=1.0.0 <2.1.0")
//
// Patch releases ("1.2.3-p1", "1.2.3-patch2") are stable in Composer. They
// sort after their base release and are range-checked as that base release.
package semver

import (
	"cmp"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	mm "github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidVersion is returned for strings that are not semantic versions (e.g. dev-master)
	ErrInvalidVersion = errors.New("invalid version")
	// ErrInvalidConstraint is returned for constraint expressions that cannot be parsed
	ErrInvalidConstraint = errors.New("invalid version constraint")
)

var (
	orPattern        = regexp.MustCompile(`\s*\|\|?\s*`)
	stabilityPattern = regexp.MustCompile(`@[A-Za-z]+`)
	operatorOnly     = regexp.MustCompile(`^(?:[<>]=?|==?|!=|~|\^)$`)
	twoPartTilde     = regexp.MustCompile(`^~v?(\d+)\.(\d+)$`)
	partialVersion   = regexp.MustCompile(`^([<>]=?|==?|!=)?v?(\d+)(?:\.(\d+))?$`)
	partialUpper     = regexp.MustCompile(`^v?(\d+)(?:\.(\d+))?$`)
	patchSuffix      = regexp.MustCompile(`(?i)^(?:patch|pl|p)[.-]?(\d*)$`)
)

// NormalizeConstraint rewrites a Composer constraint into Masterminds syntax
func NormalizeConstraint(constraint string) string {
	c := stabilityPattern.ReplaceAllString(constraint, "")
	alternatives := orPattern.Split(strings.TrimSpace(c), -1)
	for i, alt := range alternatives {
		alternatives[i] = normalizeRange(alt)
	}
	return strings.TrimSpace(strings.Join(alternatives, " || "))
}

// normalizeRange rewrites one alternative, whose terms are all required
func normalizeRange(r string) string {
	fields := strings.FieldsFunc(r, func(c rune) bool {
		return unicode.IsSpace(c) || c == ','
	})

	terms := make([]string, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		switch {
		case operatorOnly.MatchString(fields[i]) && i+1 < len(fields):
			// ">= 1.2"
			terms = append(terms, normalizeTerm(fields[i]+fields[i+1]))
			i++
		case i+2 < len(fields) && fields[i+1] == "-":
			terms = append(terms, hyphenRange(fields[i], fields[i+2]))
			i += 2
		default:
			terms = append(terms, normalizeTerm(fields[i]))
		}
	}
	return strings.Join(terms, " ")
}

func normalizeTerm(term string) string {
	if m := twoPartTilde.FindStringSubmatch(term); m != nil {
		major, _ := strconv.Atoi(m[1])
		return fmt.Sprintf(">=%d.%s.0 <%d.0.0", major, m[2], major+1)
	}
	if m := partialVersion.FindStringSubmatch(term); m != nil {
		op, minor := m[1], m[3]
		if op == "" || op == "==" {
			op = "="
		}
		if minor == "" {
			minor = "0"
		}
		return fmt.Sprintf("%s%s.%s.0", op, m[2], minor)
	}
	return term
}

// hyphenRange rewrites "lower - upper". A full upper bound is inclusive.
func hyphenRange(lower, upper string) string {
	from := normalizeTerm(">=" + lower)
	m := partialUpper.FindStringSubmatch(upper)
	switch {
	case m == nil:
		return from + " <=" + upper
	case m[2] == "":
		major, _ := strconv.Atoi(m[1])
		return fmt.Sprintf("%s <%d.0.0", from, major+1)
	default:
		minor, _ := strconv.Atoi(m[2])
		return fmt.Sprintf("%s <%s.%d.0", from, m[1], minor+1)
	}
}

// ParseConstraint parses a Composer constraint expression
func ParseConstraint(constraint string) (*mm.Constraints, error) {
	normalized := NormalizeConstraint(constraint)
	if normalized == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidConstraint)
	}
	c, err := mm.NewConstraint(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidConstraint, constraint, err)
	}
	return c, nil
}

// ParseVersion parses a version as published by Composer ("1.2.3", "v1.2.3", "2.0.0-RC1").
func ParseVersion(version string) (*mm.Version, error) {
	v, err := mm.NewVersion(strings.TrimSpace(version))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidVersion, version, err)
	}
	return v, nil
}

// Satisfies reports whether version falls inside constraint.
// A pre-release only satisfies constraints that themselves name a pre-release.
func Satisfies(version, constraint string) (bool, error) {
	v, err := ParseVersion(version)
	if err != nil {
		return false, err
	}
	c, err := ParseConstraint(constraint)
	if err != nil {
		return false, err
	}
	base, _ := release(v)
	return c.Check(base), nil
}

// GreaterThan reports whether a has strictly higher semver precedence than b
func GreaterThan(a, b string) (bool, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return false, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return false, err
	}
	return compare(va, vb) > 0, nil
}

// LatestStable returns the highest version in versions that is a plain or
// patch release. Unparseable entries are ignored. The second return value
// is false when no stable version exists.
func LatestStable(versions []string) (string, bool) {
	var best *mm.Version
	var bestRaw string
	for _, raw := range versions {
		v, err := ParseVersion(raw)
		if err != nil {
			continue
		}
		if _, level := release(v); v.Prerelease() != "" && level < 0 {
			continue
		}
		if best == nil || compare(v, best) > 0 {
			best = v
			bestRaw = raw
		}
	}
	return bestRaw, best != nil
}

// release splits a patch release into its base version and patch number.
// Any other version comes back unchanged with level -1.
func release(v *mm.Version) (*mm.Version, int) {
	m := patchSuffix.FindStringSubmatch(v.Prerelease())
	if m == nil {
		return v, -1
	}
	n, _ := strconv.Atoi(m[1])
	return mm.New(v.Major(), v.Minor(), v.Patch(), "", v.Metadata()), n
}

// compare orders a patch release after its base version and before the next one
func compare(a, b *mm.Version) int {
	baseA, levelA := release(a)
	baseB, levelB := release(b)
	if c := baseA.Compare(baseB); c != 0 {
		return c
	}
	return cmp.Compare(levelA, levelB)
}
