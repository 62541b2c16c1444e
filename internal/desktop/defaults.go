package desktop

import (
	"log/slog"

	"github.com/remotelab/remote-client/internal/wire"
)

// LoadDefaults installs the built-in environment used when the backend
// has no snapshot for the session: a warm personal desktop the player is
// meant to feel at home on before the corruption starts.
func (s *Store) LoadDefaults() {
	theme := wire.Theme{
		Name: "Digital Homestead",
		Background: &wire.Background{
			Name:         "Sunset Beach",
			Type:         "personal_photo",
			Description:  "Coucher de soleil sur une plage",
			ColorPalette: []string{"#FF6B35", "#F7931E", "#FFD23F", "#06BCC1"},
		},
		AccentColor: "#FF6B35",
		Mode:        "light",
	}

	files := assignFileIDs([]wire.File{
		{
			Name:      "CV-pour-candidature.pdf",
			Type:      "document",
			Size:      "2.3 MB",
			Protected: true,
			Icon:      "pdf_file",
			Position:  wire.Position{X: 80, Y: 200},
		},
		{
			Name:      "Photos_Vacances_Été.zip",
			Type:      "archive",
			Size:      "234.1 MB",
			Protected: true,
			Icon:      "archive_file",
			Position:  wire.Position{X: 220, Y: 180},
		},
		{
			Name:      "Projet_Passion.docx",
			Type:      "document",
			Size:      "8.2 MB",
			Protected: true,
			Icon:      "word_file",
			Position:  wire.Position{X: 85, Y: 260},
		},
	})

	folders := assignFolderIDs([]wire.Folder{
		{
			Name:      "Mes Documents",
			Type:      "folder",
			Protected: true,
			Icon:      "folder_documents",
			Position:  wire.Position{X: 50, Y: 100},
		},
		{
			Name:      "Corbeille",
			Type:      "recycle_bin",
			Protected: false,
			Icon:      "recycle_bin_empty",
			Position:  wire.Position{X: 50, Y: 300},
		},
	})

	widgets := []wire.Widget{
		{
			ID:       "clock_widget",
			Type:     "clock",
			Position: wire.Position{X: 20, Y: 20},
			Size:     wire.Size{Width: 200, Height: 80},
			Data:     map[string]any{"timezone": "Europe/Paris"},
		},
		{
			ID:       "weather_widget",
			Type:     "weather",
			Position: wire.Position{X: 20, Y: 120},
			Size:     wire.Size{Width: 180, Height: 100},
			Data: map[string]any{
				"location":    "Le Mans",
				"temperature": 22,
				"condition":   "sunny",
				"forecast":    "Ensoleillé",
			},
		},
		{
			ID:       "music_widget",
			Type:     "music_player",
			Position: wire.Position{X: 250, Y: 20},
			Size:     wire.Size{Width: 220, Height: 60},
			Data: map[string]any{
				"current_song": "Lo-fi Hip Hop - Chill Beats",
				"artist":       "Study Music",
				"playing":      true,
				"volume":       0.3,
			},
		},
	}

	s.mu.Lock()
	s.theme = theme
	s.desktop = wire.Desktop{
		Background: theme.Background,
		Widgets:    widgets,
		Shortcuts:  files[:2],
		Layout:     "casual_organized",
	}
	s.files = files
	s.folders = folders
	s.initialized = true
	s.mu.Unlock()

	slog.Info("Default environment loaded", "files", len(files), "folders", len(folders))
}
