package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// LoadEnv reads .env into the process environment. Missing files are fine;
// production deployments set real env vars.
func LoadEnv() {
	_ = godotenv.Load()
}

// RequireEnv returns an error naming the first unset variable.
func RequireEnv(names ...string) error {
	for _, name := range names {
		if os.Getenv(name) == "" {
			return fmt.Errorf("required environment variable not set: %s", name)
		}
	}
	return nil
}

// Settings is the persisted operator-managed configuration: which roles
// count as staff, and whether new tickets ping the staff channel.
type Settings struct {
	StaffRoles  []string `json:"staff_roles"`
	NotifyStaff bool     `json:"notify_staff"`
}

// SettingsFile is a JSON-file-backed Settings holder. It is loaded once at
// start and re-read only on explicit Reload or after a Save.
type SettingsFile struct {
	path string

	mu  sync.RWMutex
	cur Settings
}

const DefaultSettingsPath = "bot_settings.json"

// NewSettingsFile loads the file, or starts from defaults when it does not
// exist yet (staff notifications on, no roles).
func NewSettingsFile(path string) (*SettingsFile, error) {
	if path == "" {
		path = DefaultSettingsPath
	}
	s := &SettingsFile{
		path: path,
		cur:  Settings{NotifyStaff: true},
	}
	if err := s.Reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Get returns a copy of the current settings.
func (s *SettingsFile) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	out.StaffRoles = append([]string(nil), s.cur.StaffRoles...)
	return out
}

// Reload re-reads the file, replacing the in-memory settings wholesale.
func (s *SettingsFile) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var loaded Settings
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.cur = loaded
	s.mu.Unlock()
	return nil
}

// Update applies the mutation under the lock and persists the result.
func (s *SettingsFile) Update(mutate func(*Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.cur)
	data, err := json.MarshalIndent(s.cur, "", "    ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
