// Package inventory loads the managed-host catalog from a YAML file. Each
// entry names a host and carries its connect parameters and credential
// reference. Credentials stay inside the Host record; only the identity
// tuple is ever logged or exposed over the API.
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/hostdeck/hostdeck/internal/sshpool"
)

// Host is one managed-host entry.
type Host struct {
	Name     string `yaml:"name" json:"name"`
	Hostname string `yaml:"hostname" json:"hostname"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	KeyPath  string `yaml:"key_path" json:"-"`
	Password string `yaml:"password" json:"-"`
}

// Identity returns the pool key for this host.
func (h Host) Identity() sshpool.HostIdentity {
	return sshpool.HostIdentity{Hostname: h.Hostname, Port: h.Port, Username: h.Username}
}

// Credential returns the authentication material for this host.
func (h Host) Credential() sshpool.Credential {
	return sshpool.Credential{PrivateKeyPath: h.KeyPath, Password: h.Password}
}

// inventoryFile is the on-disk YAML shape.
type inventoryFile struct {
	Hosts []Host `yaml:"hosts"`
}

// Inventory is an immutable-after-load host catalog keyed by name.
type Inventory struct {
	mu    sync.RWMutex
	hosts map[string]Host
}

// Load reads the inventory from path. A missing file yields an empty
// inventory, not an error: a fresh install simply has no hosts yet.
// Entries with no credential fall back to the default key in sshDir
// (id_ed25519, then id_rsa) when one exists.
func Load(path, sshDir string) (*Inventory, error) {
	inv := &Inventory{hosts: make(map[string]Host)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return inv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read inventory %s: %w", path, err)
	}

	var file inventoryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}

	for _, h := range file.Hosts {
		if h.Name == "" || h.Hostname == "" {
			return nil, fmt.Errorf("inventory %s: every host needs a name and hostname", path)
		}
		if h.Port == 0 {
			h.Port = 22
		}
		if h.Username == "" {
			h.Username = "root"
		}
		if h.KeyPath == "" && h.Password == "" {
			h.KeyPath = defaultKeyPath(sshDir)
			if h.KeyPath == "" {
				return nil, fmt.Errorf("inventory %s: host %q has no key_path or password and no default key exists", path, h.Name)
			}
		}
		if _, dup := inv.hosts[h.Name]; dup {
			return nil, fmt.Errorf("inventory %s: duplicate host name %q", path, h.Name)
		}
		inv.hosts[h.Name] = h
	}

	return inv, nil
}

// defaultKeyPath returns the first conventional private key found in
// sshDir, or empty.
func defaultKeyPath(sshDir string) string {
	if sshDir == "" {
		return ""
	}
	for _, name := range []string{"id_ed25519", "id_rsa"} {
		p := filepath.Join(sshDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Get returns the host with the given name.
func (inv *Inventory) Get(name string) (Host, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	h, ok := inv.hosts[name]
	return h, ok
}

// List returns all hosts sorted by name.
func (inv *Inventory) List() []Host {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	result := make([]Host, 0, len(inv.hosts))
	for _, h := range inv.hosts {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}
