package effects

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveArgs_SubstitutesResultRef(t *testing.T) {
	store := newMemStore()
	out := resolveArgs([]interface{}{Result(), "literal"}, 42, store)
	assert.Equal(t, []interface{}{42, "literal"}, out)
}

func TestResolveArgs_SubstitutesDataRef(t *testing.T) {
	store := newMemStore()
	store.Put("k", "v")
	out := resolveArgs([]interface{}{DataValue("k")}, nil, store)
	assert.Equal(t, []interface{}{"v"}, out)
}

func TestResolveArgs_MissingDataRefResolvesNil(t *testing.T) {
	store := newMemStore()
	out := resolveArgs([]interface{}{DataValue("missing")}, nil, store)
	assert.Equal(t, []interface{}{nil}, out)
}

func TestResolveArgs_EmptyArgsReturnsEmpty(t *testing.T) {
	store := newMemStore()
	out := resolveArgs(nil, nil, store)
	assert.Nil(t, out)
}
