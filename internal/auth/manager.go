package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/zalando/go-keyring"

	"github.com/dl-alexandre/netdeploy/internal/utils"
)

const serviceName = "netdeploy"

// Token sources reported by ResolveToken besides the storage backend name.
const (
	SourceFlag = "flag"
	SourceEnv  = "env"
)

// StoredToken is the serialized form of a personal access token.
type StoredToken struct {
	Profile string    `json:"profile"`
	Token   string    `json:"token"`
	SavedAt time.Time `json:"savedAt"`
}

// ResolvedToken is a bearer credential and where it came from.
type ResolvedToken struct {
	Token  string
	Source string
}

// Manager stores and resolves Deploy Service bearer credentials.
type Manager struct {
	configDir      string
	useKeyring     bool
	useEncryption  bool
	storage        StorageBackend
	storageWarning string
}

// NewManager creates a new auth manager
func NewManager(configDir string) *Manager {
	return NewManagerWithOptions(configDir, ManagerOptions{})
}

// ManagerOptions configures the auth manager
type ManagerOptions struct {
	ForceEncryptedFile bool // Force use of encrypted file storage
	ForcePlainFile     bool // Force use of plain file storage (insecure, dev only)
}

// NewManagerWithOptions creates a new auth manager with specific options
func NewManagerWithOptions(configDir string, opts ManagerOptions) *Manager {
	mgr := &Manager{
		configDir: configDir,
	}

	switch {
	case opts.ForcePlainFile:
		mgr.storage = NewPlainFileStorage(configDir)
		mgr.storageWarning = "WARNING: Using unencrypted file storage. Credentials are stored in plain text."
	case opts.ForceEncryptedFile || !checkKeyringAvailable():
		storage, err := NewEncryptedFileStorage(configDir)
		if err != nil {
			mgr.storage = NewPlainFileStorage(configDir)
			mgr.storageWarning = fmt.Sprintf("WARNING: Encryption setup failed (%v). Using plain file storage.", err)
			break
		}
		mgr.storage = storage
		mgr.useEncryption = true
		if !opts.ForceEncryptedFile {
			mgr.storageWarning = "INFO: System keyring not available. Using encrypted file storage."
		}
	default:
		mgr.storage = NewKeyringStorage(serviceName)
		mgr.useKeyring = true
	}

	return mgr
}

// checkKeyringAvailable tests if system keyring is available
func checkKeyringAvailable() bool {
	testKey := serviceName + "-availability-check"
	if err := keyring.Set(serviceName, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(serviceName, testKey)
	return true
}

// SaveToken stores token for profile.
func (m *Manager) SaveToken(profile, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "token must not be empty").Build())
	}

	data, err := json.Marshal(StoredToken{Profile: profile, Token: token, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}
	if err := m.storage.Save(profile, data); err != nil {
		return err
	}

	if err := m.addProfileToList(profile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to update profile list: %v\n", err)
	}
	return nil
}

// LoadToken returns the stored token for profile. A missing credential
// yields an AUTH_REQUIRED error.
func (m *Manager) LoadToken(profile string) (*StoredToken, error) {
	data, err := m.storage.Load(profile)
	if errors.Is(err, ErrNotFound) {
		return nil, authRequired()
	}
	if err != nil {
		return nil, err
	}

	var stored StoredToken
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	if stored.Token == "" {
		return nil, authRequired()
	}
	return &stored, nil
}

// DeleteToken removes the stored token for profile. Deleting an absent
// credential is not an error.
func (m *Manager) DeleteToken(profile string) error {
	if err := m.storage.Delete(profile); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := m.removeProfileFromList(profile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to update profile list: %v\n", err)
	}
	return nil
}

// ResolveToken picks the bearer credential: an explicit flag value, then
// NETLIFY_AUTH_TOKEN, then the stored token for profile.
func (m *Manager) ResolveToken(flagToken, profile string) (ResolvedToken, error) {
	if t := strings.TrimSpace(flagToken); t != "" {
		return ResolvedToken{Token: t, Source: SourceFlag}, nil
	}
	if t := strings.TrimSpace(os.Getenv(utils.EnvAuthToken)); t != "" {
		return ResolvedToken{Token: t, Source: SourceEnv}, nil
	}
	stored, err := m.LoadToken(profile)
	if err != nil {
		return ResolvedToken{}, err
	}
	return ResolvedToken{Token: stored.Token, Source: m.storage.Name()}, nil
}

func authRequired() error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeAuthRequired,
		"No credentials found. Run 'netdeploy auth login' or set "+utils.EnvAuthToken+".").Build())
}

// UseKeyring returns whether the manager is using the system keyring
func (m *Manager) UseKeyring() bool {
	return m.useKeyring
}

// UseEncryption reports whether file storage is encrypted
func (m *Manager) UseEncryption() bool {
	return m.useEncryption
}

// ConfigDir returns the configuration directory
func (m *Manager) ConfigDir() string {
	return m.configDir
}

// GetStorageBackend returns the name of the storage backend being used
func (m *Manager) GetStorageBackend() string {
	return m.storage.Name()
}

// GetStorageWarning returns any warning message about the storage backend
func (m *Manager) GetStorageWarning() string {
	return m.storageWarning
}
