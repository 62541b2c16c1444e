// Package desktop simulates the player's operating system: theme, virtual
// files and folders, open windows, and the visual corruption state. The
// backend owns the authoritative corruption level; this store applies it
// and keeps the rendered environment consistent.
package desktop

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/remotelab/remote-client/internal/events"
	"github.com/remotelab/remote-client/internal/scheduler"
	"github.com/remotelab/remote-client/internal/wire"
)

// Sender is the outbound side of the socket client.
type Sender interface {
	Send(msg wire.Message) error
}

// DeletedFile is a recycle-bin entry.
type DeletedFile struct {
	wire.File
	DeletedAt        string `json:"deletedAt"`
	OriginalLocation string `json:"originalLocation"`
}

// FileEvent is published after every handled file action.
type FileEvent struct {
	Action    string
	Target    string
	Succeeded bool
	File      wire.File
}

// CorruptionState summarizes the corruption level for observers.
type CorruptionState struct {
	Level   float64
	Phase   string
	Effects int
}

// CorruptionRecord is one entry of the bounded corruption history.
type CorruptionRecord struct {
	Timestamp string
	Level     float64
	Effects   []wire.CorruptionEffect
}

// Bounds for the corruption effect list and history ring.
const (
	maxEffects = 64
	maxHistory = 64
)

// Options configures a Store.
type Options struct {
	SessionID string
	Scheduler scheduler.Scheduler
	Socket    Sender

	// RandFloat returns a value in [0,1) and exists so tests can pin the
	// corrupted palette choice. Defaults to math/rand.
	RandFloat func() float64
}

// Store holds the simulated OS state. All access is mutex-guarded; the
// exported accessors return copies.
type Store struct {
	sessionID string
	sched     scheduler.Scheduler
	sock      Sender
	randFloat func() float64

	fileBus       *events.Bus[FileEvent]
	corruptionBus *events.Bus[CorruptionState]

	mu              sync.Mutex
	initialized     bool
	theme           wire.Theme
	desktop         wire.Desktop
	files           []wire.File
	folders         []wire.Folder
	recycleBin      []DeletedFile
	windows         []wire.Window
	activeWindow    string
	corruptionLevel float64
	effects         []wire.CorruptionEffect
	history         []CorruptionRecord
	performance     float64
	networkStatus   string
	personalization map[string]any
}

// New creates an empty environment store. Call Bootstrap or LoadDefaults
// before use.
func New(opts Options) *Store {
	if opts.RandFloat == nil {
		opts.RandFloat = defaultRandFloat
	}
	return &Store{
		sessionID:     opts.SessionID,
		sched:         opts.Scheduler,
		sock:          opts.Socket,
		randFloat:     opts.RandFloat,
		fileBus:       events.NewBus[FileEvent](),
		corruptionBus: events.NewBus[CorruptionState](),
		performance:   1.0,
		networkStatus: "connected",
	}
}

// FileEvents exposes handled file actions to observers.
func (s *Store) FileEvents() *events.Bus[FileEvent] { return s.fileBus }

// CorruptionChanges exposes corruption level changes to observers.
func (s *Store) CorruptionChanges() *events.Bus[CorruptionState] { return s.corruptionBus }

// LoadSnapshot replaces the environment with a backend snapshot. Missing
// sections keep their current value; files and folders are assigned
// generated ids when the snapshot carries none, so later renames cannot
// collide identities.
func (s *Store) LoadSnapshot(os wire.OSState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if os.Theme != nil {
		s.theme = *os.Theme
	}
	if os.Desktop != nil {
		s.desktop = *os.Desktop
	}
	if os.FileSystem != nil {
		s.files = assignFileIDs(os.FileSystem.Documents)
		s.folders = assignFolderIDs(os.FileSystem.Desktop)
	}
	if os.Windows != nil {
		s.windows = os.Windows
	}
	if os.SystemState != nil {
		s.performance = os.SystemState.Performance
		if os.SystemState.NetworkStatus != "" {
			s.networkStatus = os.SystemState.NetworkStatus
		}
	}
	if os.Personalization != nil {
		if s.personalization == nil {
			s.personalization = make(map[string]any)
		}
		for k, v := range os.Personalization {
			s.personalization[k] = v
		}
	}
	s.initialized = true
	slog.Info("Environment snapshot loaded",
		"files", len(s.files), "folders", len(s.folders), "windows", len(s.windows))
}

func assignFileIDs(files []wire.File) []wire.File {
	out := make([]wire.File, len(files))
	copy(out, files)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = "file_" + ulid.Make().String()
		}
	}
	return out
}

func assignFolderIDs(folders []wire.Folder) []wire.Folder {
	out := make([]wire.Folder, len(folders))
	copy(out, folders)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = "folder_" + ulid.Make().String()
		}
	}
	return out
}

// WindowSpec describes a window to open.
type WindowSpec struct {
	ID       string
	Type     string
	Title    string
	Position wire.Position
	Size     wire.Size
	Content  any
}

// OpenWindow opens a window, places it above the existing stack, and
// focuses it. The returned id is generated when none is supplied.
func (s *Store) OpenWindow(spec WindowSpec) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openWindowLocked(spec)
}

func (s *Store) openWindowLocked(spec WindowSpec) string {
	id := spec.ID
	if id == "" {
		id = "window_" + ulid.Make().String()
	}
	// Reopening an existing window refreshes and raises it instead of
	// stacking a duplicate.
	for i := range s.windows {
		if s.windows[i].ID == id {
			s.windows[i].Title = spec.Title
			s.windows[i].Content = spec.Content
			s.focusLocked(id)
			return id
		}
	}
	win := wire.Window{
		ID:        id,
		Type:      spec.Type,
		Title:     spec.Title,
		Position:  spec.Position,
		Size:      spec.Size,
		Content:   spec.Content,
		IsOpen:    true,
		ZIndex:    len(s.windows) + 100,
		CreatedAt: s.now(),
	}
	s.windows = append(s.windows, win)
	s.activeWindow = id
	slog.Debug("Window opened", "window_id", id, "type", spec.Type)
	return id
}

// CloseWindow removes a window. Focus is cleared only when the closed
// window held it.
func (s *Store) CloseWindow(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.windows {
		if w.ID == id {
			s.windows = append(s.windows[:i], s.windows[i+1:]...)
			break
		}
	}
	if s.activeWindow == id {
		s.activeWindow = ""
	}
}

// FocusWindow raises a window above the current stack.
func (s *Store) FocusWindow(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focusLocked(id)
}

func (s *Store) focusLocked(id string) {
	maxZ := 0
	found := false
	for _, w := range s.windows {
		if w.ZIndex > maxZ {
			maxZ = w.ZIndex
		}
		if w.ID == id {
			found = true
		}
	}
	if !found {
		return
	}
	for i := range s.windows {
		if s.windows[i].ID == id {
			s.windows[i].ZIndex = maxZ + 1
		}
	}
	s.activeWindow = id
}

// UpdateWindow applies fn to the window with the given id, if present.
func (s *Store) UpdateWindow(id string, fn func(*wire.Window)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.windows {
		if s.windows[i].ID == id {
			fn(&s.windows[i])
			return
		}
	}
}

// ActiveWindow returns the focused window, if any.
func (s *Store) ActiveWindow() (wire.Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeWindow == "" {
		return wire.Window{}, false
	}
	for _, w := range s.windows {
		if w.ID == s.activeWindow {
			return w, true
		}
	}
	return wire.Window{}, false
}

// Windows returns the open windows sorted by z-index, back to front.
func (s *Store) Windows() []wire.Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Window, len(s.windows))
	copy(out, s.windows)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ZIndex < out[j].ZIndex })
	return out
}

// Files returns a copy of the virtual files.
func (s *Store) Files() []wire.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.File, len(s.files))
	copy(out, s.files)
	return out
}

// Folders returns a copy of the virtual folders.
func (s *Store) Folders() []wire.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.Folder, len(s.folders))
	copy(out, s.folders)
	return out
}

// RecycleBin returns a copy of the recycle-bin contents.
func (s *Store) RecycleBin() []DeletedFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DeletedFile, len(s.recycleBin))
	copy(out, s.recycleBin)
	return out
}

// Theme returns the current theme.
func (s *Store) Theme() wire.Theme {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.theme
}

// Desktop returns the wallpaper and widget layer.
func (s *Store) Desktop() wire.Desktop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desktop
}

// Initialized reports whether an environment has been loaded.
func (s *Store) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// SystemStats is a snapshot of simulated machine health.
type SystemStats struct {
	Performance   float64 `json:"performance"`
	Corruption    float64 `json:"corruption"`
	NetworkStatus string  `json:"network_status"`
	Files         int     `json:"files"`
	OpenWindows   int     `json:"open_windows"`
}

// Stats returns the simulated system statistics.
func (s *Store) Stats() SystemStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SystemStats{
		Performance:   s.performance,
		Corruption:    s.corruptionLevel,
		NetworkStatus: s.networkStatus,
		Files:         len(s.files),
		OpenWindows:   len(s.windows),
	}
}

// Cleanup closes every window and drops transient state. The file system
// and corruption history survive for post-session reporting.
func (s *Store) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows = nil
	s.activeWindow = ""
	s.effects = nil
}

func (s *Store) now() string {
	if s.sched != nil {
		return s.sched.Now().UTC().Format(time.RFC3339)
	}
	return time.Now().UTC().Format(time.RFC3339)
}
