// Package store implements the blob store (component A): atomic
// tmp-then-rename JSON read/write under the §6.2 directory layout.
// Grounded on fluxor's statemachine.FilePersistenceAdapter, hardened with
// the tmp-rename discipline the spec requires (the teacher writes files
// directly; atomic rename is this package's one deliberate departure).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by ReadJSON when the path does not exist.
var ErrNotFound = errors.New("store: not found")

// Blob is a JSON file tree rooted at dataRoot, laid out per §6.2:
//
//	<data_root>/system/{instances_index,effects_metrics}.json
//	<data_root>/tenants/{tenant_id}/workflows/{kind}/{instance_id}.json
type Blob struct {
	root string
}

// New returns a Blob store rooted at dataRoot, creating it if absent.
func New(dataRoot string) (*Blob, error) {
	if err := os.MkdirAll(dataRoot, 0o755); err != nil {
		return nil, fmt.Errorf("store: create data root: %w", err)
	}
	return &Blob{root: dataRoot}, nil
}

// SnapshotPath returns the instance snapshot path for (tenantID, kindName, instanceID).
func (b *Blob) SnapshotPath(tenantID, kindName, instanceID string) string {
	return filepath.Join(b.root, "tenants", tenantID, "workflows", kindName, instanceID+".json")
}

// SystemPath returns the path of a system-level file (e.g. "instances_index.json").
func (b *Blob) SystemPath(name string) string {
	return filepath.Join(b.root, "system", name)
}

// TenantWorkflowsDir returns the directory holding every kind's snapshots
// for tenantID, used by recovery's directory scan (§4.2.5).
func (b *Blob) TenantWorkflowsDir(tenantID string) string {
	return filepath.Join(b.root, "tenants", tenantID, "workflows")
}

// TenantsDir returns the root directory under which every tenant's data lives.
func (b *Blob) TenantsDir() string {
	return filepath.Join(b.root, "tenants")
}

// WriteJSON atomically writes v as JSON to path: write to a sibling tmp
// file, fsync, then rename over the target (§4.4.1).
func (b *Blob) WriteJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create tmp for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write tmp for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync tmp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close tmp for %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("store: rename into %s: %w", path, err)
	}
	return nil
}

// ReadJSON reads path into v, returning ErrNotFound if absent.
func (b *Blob) ReadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("store: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: unmarshal %s: %w", path, err)
	}
	return nil
}

// Delete removes path; a missing file is not an error.
func (b *Blob) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", path, err)
	}
	return nil
}
