package credentials

import (
	"os"
	"strings"
)

const envPrefix = "SFEXTRACT_"

// EnvironmentStore reads profiles from SFEXTRACT_<PROFILE>_CLIENT_ID,
// _CLIENT_SECRET, _COMPANY_ID and _USER_ID. It is read-only.
type EnvironmentStore struct {
	lookup func(string) (string, bool)
}

// NewEnvironmentStore creates a store over the process environment
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{lookup: os.LookupEnv}
}

// envName maps a profile name to its variable prefix: "hr-prod" becomes
// SFEXTRACT_HR_PROD_.
func envName(profile string) string {
	var b strings.Builder
	b.WriteString(envPrefix)
	for _, r := range strings.ToUpper(profile) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteByte('_')
	return b.String()
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve needs at least the client ID and secret variables
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	if name == "" {
		return nil, ErrInvalidCredentials
	}
	prefix := envName(name)
	get := func(suffix string) string {
		v, _ := e.lookup(prefix + suffix)
		return v
	}

	p := &Profile{
		Name:         name,
		ClientID:     get("CLIENT_ID"),
		ClientSecret: get("CLIENT_SECRET"),
		CompanyID:    get("COMPANY_ID"),
		UserID:       get("USER_ID"),
	}
	if p.ClientID == "" || p.ClientSecret == "" {
		return nil, ErrCredentialsNotFound
	}
	return p, nil
}

// List is not supported: variable names cannot be mapped back to profile
// names unambiguously.
func (e *EnvironmentStore) List() ([]*Profile, error) {
	return []*Profile{}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	p, err := e.Retrieve(name)
	return err == nil && p != nil
}
