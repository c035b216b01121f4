// Package scangate decides whether a vulnerability report is acceptable. A
// report fails the gate when it contains at least one finding whose severity
// is at or above the configured threshold.
package scangate

import (
	"fmt"
	"strings"
)

// Severity ranks vulnerability findings.
type Severity int

const (
	Unknown Severity = iota
	Low
	Medium
	High
	Critical
)

// DefaultThreshold fails on HIGH and CRITICAL findings.
const DefaultThreshold = High

var severityNames = map[Severity]string{
	Unknown:  "UNKNOWN",
	Low:      "LOW",
	Medium:   "MEDIUM",
	High:     "HIGH",
	Critical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SEVERITY(%d)", int(s))
}

// ParseSeverity parses a severity name case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for sev, n := range severityNames {
		if n == name {
			return sev, nil
		}
	}
	return Unknown, fmt.Errorf("invalid severity %q: must be one of UNKNOWN, LOW, MEDIUM, HIGH, CRITICAL", s)
}

// severityOf maps a report's severity field to a Severity. Values the gate
// does not recognise rank as Unknown.
func severityOf(s string) Severity {
	sev, err := ParseSeverity(s)
	if err != nil {
		return Unknown
	}
	return sev
}
