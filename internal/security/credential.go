package security

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"eventsite/internal/fileutil"
	"eventsite/internal/logger"
)

// DefaultCost matches the work factor of hashes written by earlier
// deployments.
const DefaultCost = 12

var ErrEmptyPassword = errors.New("password must not be empty")

// CredentialStore keeps the single admin password hash in a side file.
// An absent file is a valid state and never verifies.
type CredentialStore struct {
	path string
	cost int
	mu   sync.Mutex
}

// NewCredentialStore returns a store for path. A cost of 0 selects
// DefaultCost.
func NewCredentialStore(path string, cost int) *CredentialStore {
	if cost == 0 {
		cost = DefaultCost
	}
	return &CredentialStore{path: path, cost: cost}
}

func (c *CredentialStore) Path() string { return c.path }

func (c *CredentialStore) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

// EnsureDefault writes the hash of plain when no credential exists yet.
// It reports whether a new credential was created.
func (c *CredentialStore) EnsureDefault(plain string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat credential file: %w", err)
	}
	if err := c.write(plain); err != nil {
		return false, err
	}
	logger.LogInfo("Created default admin credential at %s", c.path)
	return true, nil
}

// SetPassword replaces the stored hash.
func (c *CredentialStore) SetPassword(plain string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.write(plain); err != nil {
		return err
	}
	logger.LogInfo("Admin password updated")
	return nil
}

// Verify reports whether plain matches the stored hash. Any failure,
// including a missing file, is a plain false.
func (c *CredentialStore) Verify(plain string) bool {
	c.mu.Lock()
	data, err := os.ReadFile(c.path)
	c.mu.Unlock()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.LogError("Failed to read credential file: %v", err)
		}
		return false
	}
	hash := []byte(strings.TrimSpace(string(data)))
	return bcrypt.CompareHashAndPassword(hash, []byte(plain)) == nil
}

func (c *CredentialStore) write(plain string) error {
	if plain == "" {
		return ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), c.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := fileutil.WriteFileAtomic(c.path, hash, 0o600); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	return nil
}
