// Package requirements reconciles a desired package manifest against the packages
// already present in the container and installs the difference with pip.
package requirements

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMalformedLine is returned for manifest lines that match none of the accepted forms.
var ErrMalformedLine = errors.New("malformed requirement line")

// Delimiters in the order they are tried.
var delimiters = []string{" @ ", "===", "=="}

// Requirement is a package name and a version or direct reference.
type Requirement struct {
	Name    string
	Version string
}

func (r Requirement) String() string { return r.Name + "==" + r.Version }

// ParseLine splits a single manifest line.
func ParseLine(line string) (Requirement, error) {
	for _, d := range delimiters {
		if i := strings.Index(line, d); i >= 0 {
			name := strings.TrimSpace(line[:i])
			version := strings.TrimSpace(line[i+len(d):])
			if name == "" || version == "" {
				break
			}
			return Requirement{Name: name, Version: version}, nil
		}
	}
	return Requirement{}, fmt.Errorf("%w: %q", ErrMalformedLine, line)
}

// Manifest is an ordered set of requirements keyed by package name.
type Manifest struct {
	order []string
	byKey map[string]string
}

// Parse reads a manifest. Blank lines and lines starting with '#' are ignored. A later
// entry for the same package replaces the earlier version but keeps its position.
func Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{byKey: map[string]string{}}
	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		req, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		m.Set(req.Name, req.Version)
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return m, nil
}

// ParseFile reads the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func NewManifest(reqs ...Requirement) *Manifest {
	m := &Manifest{byKey: map[string]string{}}
	for _, r := range reqs {
		m.Set(r.Name, r.Version)
	}
	return m
}

func (m *Manifest) Set(name, version string) {
	if _, ok := m.byKey[name]; !ok {
		m.order = append(m.order, name)
	}
	m.byKey[name] = version
}

func (m *Manifest) Get(name string) (string, bool) {
	v, ok := m.byKey[name]
	return v, ok
}

func (m *Manifest) Len() int { return len(m.order) }

// Requirements returns the entries in manifest order.
func (m *Manifest) Requirements() []Requirement {
	out := make([]Requirement, 0, len(m.order))
	for _, n := range m.order {
		out = append(out, Requirement{Name: n, Version: m.byKey[n]})
	}
	return out
}
