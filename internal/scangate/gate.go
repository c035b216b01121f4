package scangate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// ErrViolation matches every ViolationError.
var ErrViolation = errors.New("severity threshold exceeded")

// Finding is one vulnerability reported by the scanner.
type Finding struct {
	Target          string
	VulnerabilityID string
	PkgName         string
	Severity        Severity
}

func (f Finding) String() string {
	return fmt.Sprintf("%s %s in %s (%s)", f.Severity, f.VulnerabilityID, f.PkgName, f.Target)
}

// ViolationError lists the findings at or above the threshold.
type ViolationError struct {
	Threshold Severity
	Findings  []Finding
}

func (e *ViolationError) Error() string {
	parts := make([]string, len(e.Findings))
	for i, f := range e.Findings {
		parts[i] = f.String()
	}
	return fmt.Sprintf("%d finding(s) at or above %s: %s", len(e.Findings), e.Threshold, strings.Join(parts, "; "))
}

func (e *ViolationError) Unwrap() error { return ErrViolation }

// trivyReport is the subset of Trivy's JSON output the gate reads.
type trivyReport struct {
	Results []struct {
		Target          string `json:"Target"`
		Vulnerabilities []struct {
			VulnerabilityID string `json:"VulnerabilityID"`
			PkgName         string `json:"PkgName"`
			Severity        string `json:"Severity"`
		} `json:"Vulnerabilities"`
	} `json:"Results"`
}

// ParseReport reads a Trivy JSON report.
func ParseReport(r io.Reader) ([]Finding, error) {
	var report trivyReport
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode scan report: %w", err)
	}

	var findings []Finding
	for _, res := range report.Results {
		for _, v := range res.Vulnerabilities {
			findings = append(findings, Finding{
				Target:          res.Target,
				VulnerabilityID: v.VulnerabilityID,
				PkgName:         v.PkgName,
				Severity:        severityOf(v.Severity),
			})
		}
	}
	return findings, nil
}

// Gate applies a severity threshold to scan reports.
type Gate struct {
	Threshold Severity
}

// New creates a Gate with the given threshold.
func New(threshold Severity) *Gate {
	return &Gate{Threshold: threshold}
}

// Evaluate returns a *ViolationError when any finding is at or above the
// threshold. Violations are ordered by descending severity, then ID.
func (g *Gate) Evaluate(findings []Finding) error {
	var violations []Finding
	for _, f := range findings {
		if f.Severity >= g.Threshold {
			violations = append(violations, f)
		}
	}
	if len(violations) == 0 {
		return nil
	}

	sort.SliceStable(violations, func(i, j int) bool {
		if violations[i].Severity != violations[j].Severity {
			return violations[i].Severity > violations[j].Severity
		}
		return violations[i].VulnerabilityID < violations[j].VulnerabilityID
	})
	return &ViolationError{Threshold: g.Threshold, Findings: violations}
}

// CheckFile parses the report at path and evaluates it.
func (g *Gate) CheckFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open scan report: %w", err)
	}
	defer f.Close()

	findings, err := ParseReport(f)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return g.Evaluate(findings)
}
