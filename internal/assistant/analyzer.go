package assistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Finding struct {
	Severity Severity
	Message  string
}

// Inspect runs the static contract checks that do not need an LLM. Errors
// block submission; warnings are advisory.
func Inspect(code string) []Finding {
	var findings []Finding

	if !strings.Contains(code, `#include "qpi.h"`) && !strings.Contains(code, "#include <qpi.h>") {
		findings = append(findings, Finding{SeverityError, `missing #include "qpi.h"`})
	}
	if !strings.Contains(code, "ContractBase") {
		findings = append(findings, Finding{SeverityError, "contract must inherit from QPI::ContractBase"})
	}
	if containsToken(code, "float") || containsToken(code, "double") {
		findings = append(findings, Finding{SeverityWarning, "floating point types are not supported in contracts"})
	}
	if containsToken(code, "typedef") {
		findings = append(findings, Finding{SeverityWarning, "typedef is not allowed in contract code"})
	}
	if containsToken(code, "union") {
		findings = append(findings, Finding{SeverityWarning, "union is not allowed in contract code"})
	}
	return findings
}

// containsToken reports whether word appears as a standalone token, so a
// variable named doubled does not trip the double check.
func containsToken(code, word string) bool {
	idx := 0
	for {
		i := strings.Index(code[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		beforeOK := start == 0 || !isWordChar(code[start-1])
		afterOK := end == len(code) || !isWordChar(code[end])
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// HasErrors reports whether any finding blocks submission.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// FormatFindings renders findings for the terminal, one per line.
func FormatFindings(findings []Finding) string {
	var sb strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&sb, "[%s] %s\n", f.Severity, f.Message)
	}
	return sb.String()
}

// Admission is the verdict on a new analysis request while another one may
// be in flight for the same user and contract.
type Admission int

const (
	// AdmissionProceed: no analysis was running, this one starts.
	AdmissionProceed Admission = iota
	// AdmissionDropSilent: a run started moments ago; the duplicate
	// request is ignored without feedback.
	AdmissionDropSilent
	// AdmissionBusy: a run is legitimately in flight; tell the user how
	// long it has been going.
	AdmissionBusy
	// AdmissionTakeOver: the previous run exceeded the stale threshold
	// and is presumed wedged; the new request replaces it.
	AdmissionTakeOver
)

// Analyzer serializes contract analyses per (user, contract) and combines
// static checks with an LLM review.
type Analyzer struct {
	client       *Client
	silentWindow time.Duration
	staleAfter   time.Duration

	mu     sync.Mutex
	active map[string]time.Time

	now func() time.Time
}

func NewAnalyzer(client *Client, silentWindow, staleAfter time.Duration) *Analyzer {
	return &Analyzer{
		client:       client,
		silentWindow: silentWindow,
		staleAfter:   staleAfter,
		active:       make(map[string]time.Time),
		now:          time.Now,
	}
}

func analysisKey(user, contract string) string {
	return user + "|" + contract
}

// Admit decides what to do with a new analysis request. On
// AdmissionProceed and AdmissionTakeOver the slot is claimed and the caller
// must call Finish when done. The returned duration is how long the
// previous run had been active, zero for AdmissionProceed.
func (a *Analyzer) Admit(user, contract string) (Admission, time.Duration) {
	key := analysisKey(user, contract)

	a.mu.Lock()
	defer a.mu.Unlock()

	started, running := a.active[key]
	if !running {
		a.active[key] = a.now()
		return AdmissionProceed, 0
	}

	elapsed := a.now().Sub(started)
	switch {
	case elapsed < a.silentWindow:
		return AdmissionDropSilent, elapsed
	case elapsed < a.staleAfter:
		return AdmissionBusy, elapsed
	}

	a.active[key] = a.now()
	return AdmissionTakeOver, elapsed
}

// Finish releases the analysis slot.
func (a *Analyzer) Finish(user, contract string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.active, analysisKey(user, contract))
}

// ResetUser clears every analysis slot belonging to the user, regardless of
// age. Exposed so users can recover from a stuck analysis without waiting
// for the reaper.
func (a *Analyzer) ResetUser(user string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cleared := 0
	prefix := user + "|"
	for key := range a.active {
		if strings.HasPrefix(key, prefix) {
			delete(a.active, key)
			cleared++
		}
	}
	return cleared
}

// Reap drops slots whose analysis exceeded the stale threshold. Runs
// periodically so a crashed goroutine cannot wedge a user forever.
func (a *Analyzer) Reap() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	reaped := 0
	now := a.now()
	for key, started := range a.active {
		if now.Sub(started) >= a.staleAfter {
			delete(a.active, key)
			reaped++
		}
	}
	return reaped
}

// Analyze runs the static checks and, when the client is configured, an
// LLM review. The static findings always come first in the report.
func (a *Analyzer) Analyze(ctx context.Context, code string) (string, []Finding, error) {
	findings := Inspect(code)

	var sb strings.Builder
	if len(findings) > 0 {
		sb.WriteString(FormatFindings(findings))
	}

	if a.client.Enabled() {
		review, err := a.client.Review(ctx, code)
		if err != nil {
			return "", findings, err
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(review)
	} else if sb.Len() == 0 {
		sb.WriteString("No issues found by static analysis.")
	}

	return sb.String(), findings, nil
}
