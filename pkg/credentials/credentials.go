package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"sfextract/pkg/config"
)

// Profile is a named set of client credentials for the source API
type Profile struct {
	Name         string    `json:"name"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	CompanyID    string    `json:"company_id,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Apply fills the credential fields of src that are still empty
func (p *Profile) Apply(src *config.SourceConfig) {
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&src.ClientID, p.ClientID)
	fill(&src.ClientSecret, p.ClientSecret)
	fill(&src.CompanyID, p.CompanyID)
	fill(&src.UserID, p.UserID)
}

// Store is a backend holding profiles by name
type Store interface {
	Store(profile *Profile) error
	Retrieve(name string) (*Profile, error)
	List() ([]*Profile, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []Store
}

// NewManager uses the system keychain when available, an encrypted file in
// configDir as fallback and SFEXTRACT_<PROFILE>_* variables as a read-only
// last resort.
func NewManager(configDir string) (*Manager, error) {
	var stores []Store

	if ks, err := NewKeyringStore(); err == nil {
		stores = append(stores, ks)
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}
	passphrase, err := resolvePassphrase(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get passphrase: %w", err)
	}
	stores = append(stores, NewEncryptedFileStore(filepath.Join(configDir, "credentials.enc"), passphrase))

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// NewManagerWithStores creates a manager trying stores in order
func NewManagerWithStores(stores ...Store) *Manager {
	return &Manager{stores: stores}
}

// Store saves the profile in the first store that accepts it
func (m *Manager) Store(profile *Profile) error {
	if err := profile.validate(); err != nil {
		return err
	}
	profile.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(profile)
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets the profile from the first store that has it
func (m *Manager) Retrieve(name string) (*Profile, error) {
	for _, store := range m.stores {
		if p, err := store.Retrieve(name); err == nil && p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: profile %q", ErrCredentialsNotFound, name)
}

// List returns every profile, keeping the most recently modified copy when
// a name appears in several stores.
func (m *Manager) List() ([]*Profile, error) {
	byName := make(map[string]*Profile)
	for _, store := range m.stores {
		profiles, err := store.List()
		if err != nil {
			continue
		}
		for _, p := range profiles {
			if existing, ok := byName[p.Name]; !ok || p.LastModified.After(existing.LastModified) {
				byName[p.Name] = p
			}
		}
	}

	result := make([]*Profile, 0, len(byName))
	for _, p := range byName {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// Delete removes the profile from every store holding it
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		err := store.Delete(name)
		switch {
		case err == nil:
			deleted = true
		case errors.Is(err, ErrCredentialsNotFound), errors.Is(err, ErrStoreUnavailable):
		default:
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("%w: profile %q", ErrCredentialsNotFound, name)
	}
	return nil
}

func (p *Profile) validate() error {
	if p == nil || p.Name == "" {
		return errors.New("profile name is required")
	}
	if p.ClientID == "" {
		return errors.New("client ID is required")
	}
	if p.ClientSecret == "" {
		return errors.New("client secret is required")
	}
	return nil
}

// DefaultConfigDir returns the per-user directory holding credential files
func DefaultConfigDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "sfextract"), nil
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "sfextract"), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "sfextract"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "sfextract"), nil
	}
}

// Sanitize returns a copy of the profile with secrets masked
func Sanitize(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	masked := *p
	masked.ClientSecret = maskString(p.ClientSecret)
	return &masked
}

// maskString masks all but the first 4 and last 4 characters of a string
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
