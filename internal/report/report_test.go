package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remotelab/remote-client/internal/desktop"
	"github.com/remotelab/remote-client/internal/game"
	"github.com/remotelab/remote-client/internal/socket"
	"github.com/remotelab/remote-client/internal/tom"
)

func TestNewErrorReportCapturesContext(t *testing.T) {
	t.Parallel()

	r := NewErrorReport(errors.New("socket write failed"))

	assert.True(t, strings.HasPrefix(r.ID, "err_"))
	assert.Equal(t, "socket write failed", r.Message)
	assert.Contains(t, r.Stack, "TestNewErrorReportCapturesContext")
	assert.NotEmpty(t, r.Timestamp)

	text := r.Format()
	assert.Contains(t, text, "REMOTE - Rapport d'erreur")
	assert.Contains(t, text, "socket write failed")
	assert.Contains(t, text, r.ID)
}

func TestNewErrorReportWithNilError(t *testing.T) {
	t.Parallel()

	r := NewErrorReport(nil)
	assert.Equal(t, "unknown error", r.Message)
}

func TestErrorReportIDsAreUnique(t *testing.T) {
	t.Parallel()

	a := NewErrorReport(errors.New("x"))
	b := NewErrorReport(errors.New("x"))
	assert.NotEqual(t, a.ID, b.ID)
}

func TestNewDiagnosticBundlesStoreStates(t *testing.T) {
	t.Parallel()

	d := NewDiagnostic(
		game.Summary{SessionID: "session_1", Phase: game.PhaseDissonance, TotalActions: 4},
		socket.State{Connected: true},
		desktop.SystemStats{Corruption: 0.4, Files: 3},
		tom.ConversationState{TrustLevel: 0.8, IsConnected: true},
	)

	require.True(t, strings.HasPrefix(d.ID, "diag_"))
	assert.Equal(t, "session_1", d.Session.SessionID)
	assert.True(t, d.Connection.Connected)
	assert.Equal(t, 0.4, d.System.Corruption)
	assert.Equal(t, 0.8, d.Conversation.TrustLevel)
	assert.NotEmpty(t, d.GeneratedAt)
}
