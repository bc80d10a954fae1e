// File: api/schemas/schemas.go
package schemas

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

// Credentials identify the single account a run acts for. They live only in
// memory for the duration of a run and must never reach a log sink.
type Credentials struct {
	Identifier string
	Secret     string
}

// Valid reports whether both halves are present.
func (c Credentials) Valid() bool {
	return c.Identifier != "" && c.Secret != ""
}

// String never prints the secret, so Credentials is safe in %v verbs.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{identifier: %s, secret: [REDACTED]}", MaskIdentifier(c.Identifier))
}

// GoString covers %#v, which would otherwise print the struct fields verbatim.
func (c Credentials) GoString() string { return c.String() }

// MarshalLogObject lets Credentials be passed to zap.Object without leaking.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("identifier", MaskIdentifier(c.Identifier))
	enc.AddBool("secret_set", c.Secret != "")
	return nil
}

// MaskIdentifier keeps the first character and any domain part:
// "jane@example.com" -> "j***@example.com".
func MaskIdentifier(id string) string {
	if id == "" {
		return ""
	}
	local, domain, hasDomain := strings.Cut(id, "@")
	masked := string([]rune(local)[:1]) + "***"
	if hasDomain {
		return masked + "@" + domain
	}
	return masked
}

// AuthResult is the tagged outcome of a login attempt.
type AuthResult string

const (
	AuthAuthenticated      AuthResult = "authenticated"
	AuthInvalidCredentials AuthResult = "invalid_credentials"
	AuthChallengeRequired  AuthResult = "challenge_required"
	AuthUnknownFailure     AuthResult = "unknown_failure"
)

// Terminal reports whether the result needs a human before another attempt.
func (r AuthResult) Terminal() bool {
	return r == AuthInvalidCredentials || r == AuthChallengeRequired
}

// BirthdayEntry is one person with a birthday today. Immutable once scraped.
type BirthdayEntry struct {
	DisplayName string `json:"display_name"`
	ProfileRef  string `json:"profile_ref"`
	// RawLabel is the label exactly as scraped, kept for diagnostics.
	RawLabel string `json:"raw_label"`
}

// FirstName is the first word of DisplayName, used by greeting templates.
func (e BirthdayEntry) FirstName() string {
	if fields := strings.Fields(e.DisplayName); len(fields) > 0 {
		return fields[0]
	}
	return e.DisplayName
}

// OutcomeStatus classifies a DispatchOutcome.
type OutcomeStatus string

const (
	StatusSent    OutcomeStatus = "sent"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

// ErrorKind names why a single greeting failed.
type ErrorKind string

const (
	KindPostVerificationTimeout ErrorKind = "PostVerificationTimeout"
	KindNavigation              ErrorKind = "NavigationError"
	KindComposerNotFound        ErrorKind = "ComposerNotFound"
	KindTemplate                ErrorKind = "TemplateError"
	KindInteraction             ErrorKind = "InteractionError"
)

// Skip reasons used by the dispatcher.
const (
	SkipDryRun         = "dry run"
	SkipExcluded       = "excluded"
	SkipAlreadyGreeted = "already greeted"
	SkipCancelled      = "cancelled"
)

// DispatchOutcome is the result for exactly one entry.
type DispatchOutcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Kind   ErrorKind     `json:"kind,omitempty"`
	Detail string        `json:"detail,omitempty"`
}

func Sent() DispatchOutcome { return DispatchOutcome{Status: StatusSent} }

func Skipped(reason string) DispatchOutcome {
	return DispatchOutcome{Status: StatusSkipped, Reason: reason}
}

// Failed records kind and, when err is non-nil, its message as Detail.
func Failed(kind ErrorKind, err error) DispatchOutcome {
	o := DispatchOutcome{Status: StatusFailed, Kind: kind}
	if err != nil {
		o.Detail = err.Error()
	}
	return o
}

func (o DispatchOutcome) String() string {
	switch o.Status {
	case StatusSkipped:
		return fmt.Sprintf("Skipped(%s)", o.Reason)
	case StatusFailed:
		return fmt.Sprintf("Failed(%s)", o.Kind)
	default:
		return "Sent"
	}
}

// EntryOutcome pairs an entry with its outcome.
type EntryOutcome struct {
	Entry   BirthdayEntry   `json:"entry"`
	Outcome DispatchOutcome `json:"outcome"`
	// Message is the composed greeting, empty when none was composed.
	Message string `json:"message,omitempty"`
}

// RunReport is the only artifact a run returns. Build it with NewRunReport.
type RunReport struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Total      int            `json:"total"`
	Sent       int            `json:"sent"`
	Skipped    int            `json:"skipped"`
	Failed     int            `json:"failed"`
	Entries    []EntryOutcome `json:"entries"`
}

// NewRunReport derives the counters from entries. The slice is copied so the
// report cannot be changed through the caller's reference.
func NewRunReport(runID string, started, finished time.Time, entries []EntryOutcome) RunReport {
	r := RunReport{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		Total:      len(entries),
		Entries:    make([]EntryOutcome, len(entries)),
	}
	copy(r.Entries, entries)
	for _, e := range entries {
		switch e.Outcome.Status {
		case StatusSent:
			r.Sent++
		case StatusSkipped:
			r.Skipped++
		default:
			r.Failed++
		}
	}
	return r
}

// AllSent is the success criterion for the process exit code.
func (r RunReport) AllSent() bool { return r.Sent == r.Total }

// Duration of the run.
func (r RunReport) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }
