package desktop

import (
	"log/slog"

	"github.com/remotelab/remote-client/internal/wire"
)

// File actions accepted by HandleFileAction.
const (
	FileActionDelete     = "delete"
	FileActionRename     = "rename"
	FileActionMove       = "move"
	FileActionProperties = "properties"
)

// HandleFileAction applies one file operation and reports whether it
// succeeded. Delete, rename and move notify the backend with a
// file_action frame; properties only opens a window. Unknown actions are
// rejected.
func (s *Store) HandleFileAction(action, target string, data map[string]any) bool {
	var ok bool
	switch action {
	case FileActionDelete:
		ok = s.deleteFile(target)
	case FileActionRename:
		newName, _ := data["newName"].(string)
		ok = s.renameFile(target, newName)
	case FileActionMove:
		destination, _ := data["destination"].(string)
		ok = s.moveFile(target, destination)
	case FileActionProperties:
		ok = s.showFileProperties(target)
	default:
		slog.Warn("Unknown file action", "action", action, "target", target)
		return false
	}

	s.mu.Lock()
	var file wire.File
	if i := s.fileIndexByNameLocked(target); i >= 0 {
		file = s.files[i]
	}
	s.mu.Unlock()
	s.fileBus.Publish(FileEvent{Action: action, Target: target, Succeeded: ok, File: file})
	return ok
}

// deleteFile moves a file to the recycle bin and notifies the backend.
func (s *Store) deleteFile(name string) bool {
	s.mu.Lock()
	i := s.fileIndexByNameLocked(name)
	if i < 0 {
		s.mu.Unlock()
		slog.Warn("File not found", "name", name)
		return false
	}
	deleted := DeletedFile{
		File:             s.files[i],
		DeletedAt:        s.now(),
		OriginalLocation: "desktop",
	}
	s.files = append(s.files[:i], s.files[i+1:]...)
	s.recycleBin = append(s.recycleBin, deleted)
	s.mu.Unlock()

	s.notifyFileAction(FileActionDelete, name, nil)
	slog.Info("File deleted", "name", name, "file_id", deleted.ID)
	return true
}

// renameFile changes a file's display name. The file keeps its id, so
// windows and history that reference it stay attached. A rename to an
// existing name is rejected.
func (s *Store) renameFile(name, newName string) bool {
	if newName == "" || newName == name {
		return false
	}
	s.mu.Lock()
	i := s.fileIndexByNameLocked(name)
	if i < 0 {
		s.mu.Unlock()
		slog.Warn("File not found", "name", name)
		return false
	}
	if s.fileIndexByNameLocked(newName) >= 0 {
		s.mu.Unlock()
		slog.Warn("Rename target already exists", "name", name, "new_name", newName)
		return false
	}
	s.files[i].Name = newName
	s.mu.Unlock()

	s.notifyFileAction(FileActionRename, name, map[string]any{"newName": newName})
	slog.Info("File renamed", "from", name, "to", newName)
	return true
}

// moveFile relocates a file onto an existing folder. The file snaps to
// the folder's position, offset so it reads as "inside".
func (s *Store) moveFile(name, destination string) bool {
	s.mu.Lock()
	i := s.fileIndexByNameLocked(name)
	if i < 0 {
		s.mu.Unlock()
		slog.Warn("File not found", "name", name)
		return false
	}
	var dest *wire.Folder
	for j := range s.folders {
		if s.folders[j].Name == destination {
			dest = &s.folders[j]
			break
		}
	}
	if dest == nil {
		s.mu.Unlock()
		slog.Warn("Move destination not found", "name", name, "destination", destination)
		return false
	}
	s.files[i].Position = wire.Position{X: dest.Position.X + 10, Y: dest.Position.Y + 10}
	s.mu.Unlock()

	s.notifyFileAction(FileActionMove, name, map[string]any{"destination": destination})
	slog.Info("File moved", "name", name, "destination", destination)
	return true
}

// FileProperties is the content of a file-properties window.
type FileProperties struct {
	File         wire.File `json:"file"`
	Dependencies []string  `json:"dependencies"`
}

// showFileProperties opens a properties window for the file. The window
// id is derived from the file id, not its name, so renaming the file
// cannot make two properties windows collide.
func (s *Store) showFileProperties(name string) bool {
	s.mu.Lock()
	i := s.fileIndexByNameLocked(name)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	file := s.files[i]
	deps := []string{}
	if file.Name == "helper.exe" {
		deps = []string{"malware.exe"}
	}
	s.openWindowLocked(WindowSpec{
		ID:       "properties_" + file.ID,
		Type:     "file_properties",
		Title:    "Propriétés - " + file.Name,
		Position: wire.Position{X: 300, Y: 200},
		Size:     wire.Size{Width: 400, Height: 500},
		Content:  FileProperties{File: file, Dependencies: deps},
	})
	s.mu.Unlock()
	return true
}

// AddFile places a new file on the desktop, assigning it an id.
func (s *Store) AddFile(file wire.File) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if file.ID == "" {
		file.ID = assignFileIDs([]wire.File{file})[0].ID
	}
	s.files = append(s.files, file)
	return file.ID
}

// RestoreFile moves a recycle-bin entry back onto the desktop.
func (s *Store) RestoreFile(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.recycleBin {
		if d.Name == name {
			s.recycleBin = append(s.recycleBin[:i], s.recycleBin[i+1:]...)
			s.files = append(s.files, d.File)
			return true
		}
	}
	return false
}

func (s *Store) fileIndexByNameLocked(name string) int {
	for i, f := range s.files {
		if f.Name == name {
			return i
		}
	}
	return -1
}

func (s *Store) notifyFileAction(action, target string, data map[string]any) {
	if s.sock == nil {
		return
	}
	msg := wire.FileAction{
		Type:      wire.TypeFileAction,
		SessionID: s.sessionID,
		Action:    action,
		Target:    target,
		Data:      data,
		Timestamp: s.now(),
	}
	if err := s.sock.Send(msg); err != nil {
		slog.Warn("Failed to send file_action", "action", action, "target", target, "error", err)
	}
}
