// Package config defines the JSON pipeline configuration and its
// validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline is the user-provided run configuration.
type Pipeline struct {
	Job     string  `json:"job"`
	Source  Source  `json:"source"`
	Storage Storage `json:"storage"`
	Runtime Runtime `json:"runtime"`
}

// Source names the two input trees. Songs are always processed fully
// before logs; the order is a correctness requirement of songplay
// resolution, not a preference.
type Source struct {
	Songs Tree `json:"songs"`
	Logs  Tree `json:"logs"`
}

// Tree is a directory root that is discovered recursively.
type Tree struct {
	Path string `json:"path"`
}

// Storage selects the backend kind and its DSN. The DSN may reference
// environment variables ("${PGPASSWORD}"); expansion happens at connect
// time so configs stay safe to commit.
type Storage struct {
	Kind string `json:"kind"`
	DSN  string `json:"dsn"`
}

// Runtime holds execution knobs.
type Runtime struct {
	// FilePattern is the glob matched against file names during
	// discovery. Defaults to "*.json".
	FilePattern string `json:"file_pattern"`

	// FailFast aborts the run on the first failed file instead of the
	// default log-and-continue behavior.
	FailFast bool `json:"fail_fast"`

	Retry Retry `json:"retry"`
}

// Retry bounds reconnect attempts for transient store errors.
type Retry struct {
	MaxAttempts   int `json:"max_attempts"`
	InitialWaitMS int `json:"initial_wait_ms"`
	MaxWaitMS     int `json:"max_wait_ms"`
}

// Load reads and decodes a pipeline config file.
func Load(path string) (Pipeline, error) {
	var p Pipeline

	f, err := os.Open(path)
	if err != nil {
		return p, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("decode config %s: %w", path, err)
	}
	return p, nil
}

// ExpandedDSN returns the DSN with environment variables expanded.
func (s Storage) ExpandedDSN() string { return os.ExpandEnv(s.DSN) }

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

// ValidatePipeline checks a decoded config and returns all findings;
// callers decide whether warnings are acceptable.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	errf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityError, path, fmt.Sprintf(format, a...)})
	}
	warnf := func(path, format string, a ...any) {
		issues = append(issues, Issue{SeverityWarning, path, fmt.Sprintf(format, a...)})
	}

	if p.Job == "" {
		warnf("job", "job name is empty; metrics will use the default job tag")
	}
	if p.Source.Songs.Path == "" {
		errf("source.songs.path", "song source root is required")
	}
	if p.Source.Logs.Path == "" {
		errf("source.logs.path", "log source root is required")
	}
	if p.Storage.Kind == "" {
		errf("storage.kind", "storage kind is required (postgres, sqlite, mssql)")
	}
	if p.Storage.DSN == "" {
		errf("storage.dsn", "storage DSN is required")
	}
	if r := p.Runtime.Retry; r.MaxAttempts < 0 || r.InitialWaitMS < 0 || r.MaxWaitMS < 0 {
		errf("runtime.retry", "retry values must not be negative")
	}

	return issues
}

// HasError reports whether any issue is of error severity.
func HasError(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}
