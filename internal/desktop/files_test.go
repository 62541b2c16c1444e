package desktop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/wire"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []wire.Message
}

func (r *recordingSender) Send(m wire.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recordingSender) fileActions() []wire.FileAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []wire.FileAction
	for _, m := range r.msgs {
		if fa, ok := m.(wire.FileAction); ok {
			out = append(out, fa)
		}
	}
	return out
}

func newFileStore(t *testing.T) (*Store, *recordingSender) {
	t.Helper()
	sock := &recordingSender{}
	s := New(Options{
		SessionID: "session_test",
		Scheduler: scheduler.NewManual(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)),
		Socket:    sock,
		RandFloat: func() float64 { return 0 },
	})
	s.LoadDefaults()
	return s, sock
}

func TestDeleteFileMovesToRecycleBin(t *testing.T) {
	t.Parallel()

	s, sock := newFileStore(t)
	ok := s.HandleFileAction(FileActionDelete, "CV-pour-candidature.pdf", nil)
	require.True(t, ok)

	assert.Len(t, s.Files(), 2)
	bin := s.RecycleBin()
	require.Len(t, bin, 1)
	assert.Equal(t, "CV-pour-candidature.pdf", bin[0].Name)
	assert.Equal(t, "desktop", bin[0].OriginalLocation)
	assert.NotEmpty(t, bin[0].DeletedAt)

	frames := sock.fileActions()
	require.Len(t, frames, 1)
	assert.Equal(t, FileActionDelete, frames[0].Action)
	assert.Equal(t, "CV-pour-candidature.pdf", frames[0].Target)
	assert.Equal(t, "session_test", frames[0].SessionID)
}

func TestDeleteUnknownFileFails(t *testing.T) {
	t.Parallel()

	s, sock := newFileStore(t)
	assert.False(t, s.HandleFileAction(FileActionDelete, "no-such-file.txt", nil))
	assert.Empty(t, sock.fileActions())
	assert.Len(t, s.Files(), 3)
}

func TestRenameKeepsIdentityAndRejectsCollisions(t *testing.T) {
	t.Parallel()

	s, sock := newFileStore(t)
	var before wire.File
	for _, f := range s.Files() {
		if f.Name == "Projet_Passion.docx" {
			before = f
		}
	}
	require.NotEmpty(t, before.ID)

	ok := s.HandleFileAction(FileActionRename, "Projet_Passion.docx", map[string]any{"newName": "Projet_Final.docx"})
	require.True(t, ok)

	var after wire.File
	for _, f := range s.Files() {
		if f.Name == "Projet_Final.docx" {
			after = f
		}
	}
	assert.Equal(t, before.ID, after.ID, "rename must not change file identity")

	// Renaming onto an existing name is rejected and not forwarded.
	ok = s.HandleFileAction(FileActionRename, "Projet_Final.docx", map[string]any{"newName": "CV-pour-candidature.pdf"})
	assert.False(t, ok)

	frames := sock.fileActions()
	require.Len(t, frames, 1)
	assert.Equal(t, map[string]any{"newName": "Projet_Final.docx"}, frames[0].Data)
}

func TestMoveFileRequiresExistingFolder(t *testing.T) {
	t.Parallel()

	s, _ := newFileStore(t)
	assert.True(t, s.HandleFileAction(FileActionMove, "Projet_Passion.docx", map[string]any{"destination": "Mes Documents"}))
	assert.False(t, s.HandleFileAction(FileActionMove, "Projet_Passion.docx", map[string]any{"destination": "Dossier Fantôme"}))
}

func TestPropertiesWindowSurvivesRename(t *testing.T) {
	t.Parallel()

	s, _ := newFileStore(t)
	require.True(t, s.HandleFileAction(FileActionProperties, "Projet_Passion.docx", nil))

	wins := s.Windows()
	require.Len(t, wins, 1)
	firstID := wins[0].ID

	// Rename, then reopen properties: the same window is refreshed because
	// identity is the file id, not its name.
	require.True(t, s.HandleFileAction(FileActionRename, "Projet_Passion.docx", map[string]any{"newName": "Autre.docx"}))
	require.True(t, s.HandleFileAction(FileActionProperties, "Autre.docx", nil))

	wins = s.Windows()
	require.Len(t, wins, 1)
	assert.Equal(t, firstID, wins[0].ID)
	assert.Equal(t, "Propriétés - Autre.docx", wins[0].Title)
}

func TestPropertiesListsSuspiciousDependencies(t *testing.T) {
	t.Parallel()

	s, _ := newFileStore(t)
	s.AddFile(wire.File{Name: "helper.exe", Type: "executable"})

	require.True(t, s.HandleFileAction(FileActionProperties, "helper.exe", nil))
	content := s.Windows()[0].Content.(FileProperties)
	assert.Equal(t, []string{"malware.exe"}, content.Dependencies)

	require.True(t, s.HandleFileAction(FileActionProperties, "Projet_Passion.docx", nil))
	content = mustActive(t, s).Content.(FileProperties)
	assert.Empty(t, content.Dependencies)
}

func TestUnknownActionIsRejected(t *testing.T) {
	t.Parallel()

	s, sock := newFileStore(t)
	var events []FileEvent
	s.FileEvents().Subscribe(func(ev FileEvent) { events = append(events, ev) })

	assert.False(t, s.HandleFileAction("shred", "CV-pour-candidature.pdf", nil))
	assert.Empty(t, sock.fileActions())
	assert.Empty(t, events, "unknown actions publish nothing")
}

func TestRestoreFileReturnsFromRecycleBin(t *testing.T) {
	t.Parallel()

	s, _ := newFileStore(t)
	require.True(t, s.HandleFileAction(FileActionDelete, "Projet_Passion.docx", nil))
	require.True(t, s.RestoreFile("Projet_Passion.docx"))

	assert.Len(t, s.Files(), 3)
	assert.Empty(t, s.RecycleBin())
	assert.False(t, s.RestoreFile("Projet_Passion.docx"))
}
