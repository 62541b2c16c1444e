package desktop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/remotelab/remote-client/internal/wire"
)

const bootstrapTimeout = 10 * time.Second

// osStateResponse is the REST bootstrap envelope.
type osStateResponse struct {
	OSState json.RawMessage `json:"os_state"`
}

// Bootstrap fetches the initial environment snapshot over REST and loads
// it. Any failure falls back to the built-in defaults so the session can
// run without a reachable backend; the error is logged, never fatal.
func (s *Store) Bootstrap(ctx context.Context, client *http.Client, baseURL string) {
	if client == nil {
		client = &http.Client{Timeout: bootstrapTimeout}
	}

	snapshot, err := s.fetchSnapshot(ctx, client, baseURL)
	if err != nil {
		slog.Warn("Environment bootstrap failed, loading defaults", "error", err)
		s.LoadDefaults()
		return
	}
	s.LoadSnapshot(snapshot)
}

func (s *Store) fetchSnapshot(ctx context.Context, client *http.Client, baseURL string) (snapshot wire.OSState, err error) {
	url := fmt.Sprintf("%s/api/game/sessions/%s/os-state", baseURL, s.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return snapshot, fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return snapshot, fmt.Errorf("fetch os-state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return snapshot, fmt.Errorf("fetch os-state: unexpected status %d", resp.StatusCode)
	}

	var envelope osStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return snapshot, fmt.Errorf("decode os-state response: %w", err)
	}
	if err := json.Unmarshal(envelope.OSState, &snapshot); err != nil {
		return snapshot, fmt.Errorf("decode os-state payload: %w", err)
	}
	return snapshot, nil
}
