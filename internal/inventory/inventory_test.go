package inventory

import (
	"os"
	"path/filepath"
	"testing"
)

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write inventory: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeInventory(t, `
hosts:
  - name: web-01
    hostname: web-01.example.com
    port: 2222
    username: deploy
    key_path: /etc/hostdeck/keys/web-01
  - name: db-01
    hostname: 10.0.0.5
    password: hunter2
`)
	inv, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	web, ok := inv.Get("web-01")
	if !ok {
		t.Fatal("web-01 not found")
	}
	if web.Port != 2222 || web.Username != "deploy" {
		t.Errorf("web-01 = %+v, want port 2222 user deploy", web)
	}
	id := web.Identity()
	if id.Hostname != "web-01.example.com" || id.Port != 2222 || id.Username != "deploy" {
		t.Errorf("identity = %+v", id)
	}
	if cred := web.Credential(); cred.PrivateKeyPath != "/etc/hostdeck/keys/web-01" {
		t.Errorf("credential = %+v", cred)
	}

	db, ok := inv.Get("db-01")
	if !ok {
		t.Fatal("db-01 not found")
	}
	// Port and username defaults.
	if db.Port != 22 || db.Username != "root" {
		t.Errorf("db-01 = %+v, want port 22 user root", db)
	}
	if cred := db.Credential(); cred.Password != "hunter2" {
		t.Errorf("credential = %+v", cred)
	}
}

func TestLoadMissingFile(t *testing.T) {
	inv, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), "")
	if err != nil {
		t.Fatalf("Load of missing file failed: %v", err)
	}
	if got := len(inv.List()); got != 0 {
		t.Errorf("host count = %d, want 0", got)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeInventory(t, "hosts: [not: {valid")
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadDuplicateName(t *testing.T) {
	path := writeInventory(t, `
hosts:
  - name: web-01
    hostname: a.example.com
    password: x
  - name: web-01
    hostname: b.example.com
    password: y
`)
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestLoadMissingNameOrHostname(t *testing.T) {
	path := writeInventory(t, `
hosts:
  - hostname: a.example.com
    password: x
`)
	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected validation error for missing name")
	}
}

func TestLoadDefaultKeyFallback(t *testing.T) {
	sshDir := t.TempDir()
	keyPath := filepath.Join(sshDir, "id_rsa")
	if err := os.WriteFile(keyPath, []byte("key material"), 0600); err != nil {
		t.Fatal(err)
	}

	path := writeInventory(t, `
hosts:
  - name: web-01
    hostname: a.example.com
`)
	inv, err := Load(path, sshDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	h, _ := inv.Get("web-01")
	if h.KeyPath != keyPath {
		t.Errorf("KeyPath = %q, want %q", h.KeyPath, keyPath)
	}
}

func TestLoadNoCredentialNoDefaultKey(t *testing.T) {
	path := writeInventory(t, `
hosts:
  - name: web-01
    hostname: a.example.com
`)
	if _, err := Load(path, t.TempDir()); err == nil {
		t.Fatal("expected error for host without any credential")
	}
}

func TestListSorted(t *testing.T) {
	path := writeInventory(t, `
hosts:
  - name: zeta
    hostname: z.example.com
    password: x
  - name: alpha
    hostname: a.example.com
    password: x
`)
	inv, err := Load(path, "")
	if err != nil {
		t.Fatal(err)
	}
	hosts := inv.List()
	if len(hosts) != 2 || hosts[0].Name != "alpha" || hosts[1].Name != "zeta" {
		t.Errorf("List order = %v, want alpha then zeta", hosts)
	}
}
