package store

import (
	"os"
	"path/filepath"

	"github.com/fluxorio/fsmruntime/pkg/navigator"
)

// SaveSnapshot writes an instance's persistable view atomically.
func (b *Blob) SaveSnapshot(s navigator.Snapshot) error {
	return b.WriteJSON(b.SnapshotPath(s.TenantID, s.Kind, s.ID), s)
}

// LoadSnapshot reads an instance snapshot back.
func (b *Blob) LoadSnapshot(tenantID, kindName, instanceID string) (navigator.Snapshot, error) {
	var s navigator.Snapshot
	err := b.ReadJSON(b.SnapshotPath(tenantID, kindName, instanceID), &s)
	return s, err
}

// DeleteSnapshot removes an instance's snapshot file.
func (b *Blob) DeleteSnapshot(tenantID, kindName, instanceID string) error {
	return b.Delete(b.SnapshotPath(tenantID, kindName, instanceID))
}

// WalkSnapshots visits every persisted snapshot under tenantID (or every
// tenant if tenantID is ""), used by startup recovery (§4.2.5).
func (b *Blob) WalkSnapshots(tenantID string, fn func(navigator.Snapshot) error) error {
	root := b.TenantsDir()
	if tenantID != "" {
		root = b.TenantWorkflowsDir(tenantID)
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		var s navigator.Snapshot
		if err := b.ReadJSON(path, &s); err != nil {
			return nil // skip unreadable/partial snapshots rather than aborting recovery
		}
		return fn(s)
	})
}

// InstancesIndex is the optional system-level index of every live
// instance ID, keyed by tenant (§6.2).
type InstancesIndex struct {
	ByTenant map[string][]string `json:"by_tenant"`
}

func (b *Blob) SaveInstancesIndex(idx InstancesIndex) error {
	return b.WriteJSON(b.SystemPath("instances_index.json"), idx)
}

func (b *Blob) LoadInstancesIndex() (InstancesIndex, error) {
	var idx InstancesIndex
	err := b.ReadJSON(b.SystemPath("instances_index.json"), &idx)
	if err == ErrNotFound {
		return InstancesIndex{ByTenant: map[string][]string{}}, nil
	}
	return idx, err
}
