package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxorio/fsmruntime/pkg/navigator"
)

func TestRegistry_PutThenGet(t *testing.T) {
	r := New(4)
	inst := navigator.New("inst-1", "tenant-a", "door", "closed", nil)
	r.Put("tenant-a", "door", inst)

	kindName, got, ok := r.Get("inst-1")
	require.True(t, ok)
	assert.Equal(t, "door", kindName)
	assert.Equal(t, inst, got)
}

func TestRegistry_GetMissingReturnsFalse(t *testing.T) {
	r := New(4)
	_, _, ok := r.Get("never-created")
	assert.False(t, ok)
}

func TestRegistry_PutReplacesExistingEntry(t *testing.T) {
	r := New(4)
	inst1 := navigator.New("inst-1", "tenant-a", "door", "closed", nil)
	inst2 := navigator.New("inst-1", "tenant-a", "door", "open", nil)
	r.Put("tenant-a", "door", inst1)
	r.Put("tenant-a", "door", inst2)

	_, got, ok := r.Get("inst-1")
	require.True(t, ok)
	assert.Equal(t, "open", got.State())
}

func TestRegistry_Delete(t *testing.T) {
	r := New(4)
	inst := navigator.New("inst-1", "tenant-a", "door", "closed", nil)
	r.Put("tenant-a", "door", inst)
	r.Delete("tenant-a", "inst-1")

	_, _, ok := r.Get("inst-1")
	assert.False(t, ok)
	assert.Empty(t, r.ListByTenant("tenant-a"))
}

func TestRegistry_DeleteMissingIsNoop(t *testing.T) {
	r := New(4)
	assert.NotPanics(t, func() { r.Delete("tenant-a", "never-created") })
}

func TestRegistry_ListByTenant_IsolatesTenants(t *testing.T) {
	r := New(4)
	r.Put("tenant-a", "door", navigator.New("inst-1", "tenant-a", "door", "closed", nil))
	r.Put("tenant-a", "door", navigator.New("inst-2", "tenant-a", "door", "closed", nil))
	r.Put("tenant-b", "door", navigator.New("inst-3", "tenant-b", "door", "closed", nil))

	a := r.ListByTenant("tenant-a")
	b := r.ListByTenant("tenant-b")

	assert.Len(t, a, 2)
	assert.Len(t, b, 1)
}

func TestRegistry_ForEachTenant_VisitsOnlyThatTenant(t *testing.T) {
	r := New(4)
	r.Put("tenant-a", "door", navigator.New("inst-1", "tenant-a", "door", "closed", nil))
	r.Put("tenant-b", "door", navigator.New("inst-2", "tenant-b", "door", "closed", nil))

	var seen []string
	r.ForEachTenant("tenant-a", func(kindName string, inst *navigator.Instance) {
		seen = append(seen, inst.InstanceID())
	})
	assert.Equal(t, []string{"inst-1"}, seen)
}

func TestRegistry_ForEachAll_VisitsEveryTenant(t *testing.T) {
	r := New(4)
	r.Put("tenant-a", "door", navigator.New("inst-1", "tenant-a", "door", "closed", nil))
	r.Put("tenant-b", "light", navigator.New("inst-2", "tenant-b", "light", "off", nil))

	seen := make(map[string]string)
	r.ForEachAll(func(tenantID, kindName string, inst *navigator.Instance) {
		seen[inst.InstanceID()] = tenantID
	})
	assert.Equal(t, "tenant-a", seen["inst-1"])
	assert.Equal(t, "tenant-b", seen["inst-2"])
}

func TestRegistry_Stats_ReportsTotalAcrossShards(t *testing.T) {
	r := New(4)
	r.Put("tenant-a", "door", navigator.New("inst-1", "tenant-a", "door", "closed", nil))
	r.Put("tenant-b", "door", navigator.New("inst-2", "tenant-b", "door", "closed", nil))
	r.Put("tenant-c", "door", navigator.New("inst-3", "tenant-c", "door", "closed", nil))

	perShard, total := r.Stats()
	assert.Equal(t, 3, total)
	assert.Len(t, perShard, 4)
}

func TestRegistry_GetByIdDoesNotRequireTenantUpfront(t *testing.T) {
	r := New(8)
	r.Put("tenant-z", "door", navigator.New("inst-1", "tenant-z", "door", "closed", nil))

	kindName, inst, ok := r.Get("inst-1")
	require.True(t, ok)
	assert.Equal(t, "door", kindName)
	assert.Equal(t, "tenant-z", inst.TenantID())
}
