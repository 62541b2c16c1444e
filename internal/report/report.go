// Package report builds the error and diagnostic reports surfaced on the
// debug endpoints: a formatted crash report with the runtime stack, and
// a point-in-time snapshot of every store for support handoff.
package report

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/remotelab/remote-client/internal/desktop"
	"github.com/remotelab/remote-client/internal/game"
	"github.com/remotelab/remote-client/internal/socket"
	"github.com/remotelab/remote-client/internal/tom"
)

// ErrorReport captures one failure with enough context to debug it after
// the fact.
type ErrorReport struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Platform  string `json:"platform"`
	Runtime   string `json:"runtime"`
	Message   string `json:"message"`
	Stack     string `json:"stack"`
}

// NewErrorReport builds a report for err, capturing the current stack.
func NewErrorReport(err error) ErrorReport {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	return ErrorReport{
		ID:        "err_" + uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Runtime:   runtime.Version(),
		Message:   message,
		Stack:     string(debug.Stack()),
	}
}

// Format renders the report as the plain-text block support asks
// players to paste.
func (r ErrorReport) Format() string {
	var b strings.Builder
	b.WriteString("REMOTE - Rapport d'erreur\n")
	b.WriteString("========================\n")
	fmt.Fprintf(&b, "ID: %s\n", r.ID)
	fmt.Fprintf(&b, "Date: %s\n", r.Timestamp)
	fmt.Fprintf(&b, "Plateforme: %s (%s)\n\n", r.Platform, r.Runtime)
	b.WriteString("Erreur:\n")
	b.WriteString(r.Message)
	b.WriteString("\n\nStack:\n")
	b.WriteString(r.Stack)
	return strings.TrimRight(b.String(), "\n")
}

// Diagnostic is a point-in-time snapshot of the whole client.
type Diagnostic struct {
	ID           string                `json:"id"`
	GeneratedAt  string                `json:"generated_at"`
	Session      game.Summary          `json:"session"`
	Connection   socket.State          `json:"connection"`
	System       desktop.SystemStats   `json:"system"`
	Conversation tom.ConversationState `json:"conversation"`
}

// NewDiagnostic assembles a diagnostic snapshot from the store states.
func NewDiagnostic(session game.Summary, conn socket.State, system desktop.SystemStats, conv tom.ConversationState) Diagnostic {
	return Diagnostic{
		ID:           "diag_" + uuid.NewString(),
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
		Session:      session,
		Connection:   conn,
		System:       system,
		Conversation: conv,
	}
}
