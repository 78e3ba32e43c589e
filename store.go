package kick

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TokenSet is the persisted credential record for one user authorization.
type TokenSet struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	// ExpiresAt is an absolute epoch timestamp in seconds, derived from the
	// server's expires_in at the moment of exchange. Storing the raw
	// lifetime would silently go stale.
	ExpiresAt int64    `json:"expires_at"`
	Scopes    []string `json:"scopes,omitempty"`
}

// Expiry returns the expiry as a time.Time.
func (t *TokenSet) Expiry() time.Time {
	return time.Unix(t.ExpiresAt, 0)
}

// ValidFor reports whether the access token still has more than skew of
// lifetime left. A token inside the safety margin must be refreshed before
// use.
func (t *TokenSet) ValidFor(skew time.Duration) bool {
	return time.Now().Before(t.Expiry().Add(-skew))
}

// HasScopes reports whether every requested scope was granted. Order is
// irrelevant.
func (t *TokenSet) HasScopes(scopes []string) bool {
	granted := make(map[string]bool, len(t.Scopes))
	for _, s := range t.Scopes {
		granted[s] = true
	}
	for _, s := range scopes {
		if !granted[s] {
			return false
		}
	}
	return true
}

// Store persists a TokenSet across process restarts. Load returns
// (nil, nil) when no usable record exists; the caller falls back to a full
// authorization. Implementations provide no cross-process locking: sharing
// one store between processes is unsupported without external
// coordination.
type Store interface {
	Load() (*TokenSet, error)
	Save(*TokenSet) error
}

// FileStore keeps the TokenSet in a single JSON file.
type FileStore struct {
	Path string
}

// NewFileStore creates a FileStore writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the persisted record. A missing, unreadable, or corrupt file
// is reported as absent, not as an error.
func (s *FileStore) Load() (*TokenSet, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, nil
	}
	var ts TokenSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, nil
	}
	if ts.AccessToken == "" {
		return nil, nil
	}
	return &ts, nil
}

// Save overwrites the persisted record using the write-temp-then-rename
// discipline so a crash mid-write cannot corrupt a previously valid file.
func (s *FileStore) Save(ts *TokenSet) error {
	data, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return err
	}

	tempFile := s.Path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tempFile, s.Path); err != nil {
		if removeErr := os.Remove(tempFile); removeErr != nil {
			return fmt.Errorf(
				"failed to rename temp file: %v; additionally failed to remove temp file: %w",
				err,
				removeErr,
			)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
