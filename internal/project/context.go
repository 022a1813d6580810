// Package project defines the boundary to the project-context collaborator
// and the parser for its textual summaries. The provider itself lives
// outside this core; praxis only consumes its current-context text.
package project

import (
	"sort"
	"strings"
)

// Provider supplies the current project summary and structural validation.
type Provider interface {
	// GetCurrentContext returns a human-readable project summary containing
	// a "Dependencies:" section and a "File types:" section in a fixed
	// line-oriented layout.
	GetCurrentContext() (string, error)

	// ValidateStructure checks whether an operation on a path fits the
	// project's structure conventions.
	ValidateStructure(path, op string) (ValidationResult, error)
}

// ValidationResult reports a structure validation decision.
type ValidationResult struct {
	IsValid bool
	Reason  string
}

// Summary is the parsed form of a provider context summary.
type Summary struct {
	Dependencies map[string]string // name -> version (version may be empty)
	FileTypes    []string          // extensions, e.g. ".ts"
}

// Fingerprint renders the summary back into the compact textual form used
// to scope learned patterns to a codebase.
func (s Summary) Fingerprint() string {
	var b strings.Builder
	b.WriteString("deps:")
	first := true
	for _, name := range sortedKeys(s.Dependencies) {
		if !first {
			b.WriteString(",")
		}
		b.WriteString(name)
		first = false
	}
	b.WriteString(";types:")
	b.WriteString(strings.Join(s.FileTypes, ","))
	return b.String()
}

// ParseSummary parses the provider's line-oriented summary layout:
//
//	Dependencies:
//	- react: 18.2.0
//	- lodash: 4.17.21
//	File types:
//	- .tsx: 14
//	- .ts: 42
//
// Unknown lines are ignored; a missing section yields an empty map/slice.
func ParseSummary(text string) Summary {
	summary := Summary{Dependencies: make(map[string]string)}

	const (
		sectionNone = iota
		sectionDeps
		sectionTypes
	)
	section := sectionNone

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "Dependencies:"):
			section = sectionDeps
			continue
		case strings.HasPrefix(line, "File types:"):
			section = sectionTypes
			continue
		case strings.HasPrefix(line, "- "):
			entry := strings.TrimPrefix(line, "- ")
			switch section {
			case sectionDeps:
				name, version := splitEntry(entry)
				if name != "" {
					summary.Dependencies[name] = version
				}
			case sectionTypes:
				ext, _ := splitEntry(entry)
				if ext != "" {
					summary.FileTypes = append(summary.FileTypes, ext)
				}
			}
		default:
			// Prose between sections resets nothing; the layout is fixed
			// but tolerant of surrounding text.
		}
	}
	return summary
}

// splitEntry splits "name: value" into its halves, trimming whitespace.
func splitEntry(entry string) (string, string) {
	if idx := strings.Index(entry, ":"); idx >= 0 {
		return strings.TrimSpace(entry[:idx]), strings.TrimSpace(entry[idx+1:])
	}
	return strings.TrimSpace(entry), ""
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StaticProvider is a Provider backed by a fixed summary string. Used by
// tests and by the CLI when no live provider is attached.
type StaticProvider struct {
	Summary string
}

func (p StaticProvider) GetCurrentContext() (string, error) {
	return p.Summary, nil
}

func (p StaticProvider) ValidateStructure(path, op string) (ValidationResult, error) {
	return ValidationResult{IsValid: true}, nil
}
