package netio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_arena_insertGetRemove(t *testing.T) {
	a := newArena()
	c := &Connection{}
	r := a.insert(c)

	got, ok := a.get(r)
	assert.True(t, ok)
	assert.Same(t, c, got)

	assert.True(t, a.remove(r))
	_, ok = a.get(r)
	assert.False(t, ok)
}

func Test_arena_staleRefAfterReuseIsRejected(t *testing.T) {
	a := newArena()
	c1 := &Connection{}
	r1 := a.insert(c1)
	assert.True(t, a.remove(r1))

	c2 := &Connection{}
	r2 := a.insert(c2)
	assert.Equal(t, r1.idx, r2.idx)
	assert.NotEqual(t, r1.gen, r2.gen)

	_, ok := a.get(r1)
	assert.False(t, ok, "stale ref must not resolve to the reused slot")

	got, ok := a.get(r2)
	assert.True(t, ok)
	assert.Same(t, c2, got)
}

func Test_arena_eachVisitsOnlyLive(t *testing.T) {
	a := newArena()
	c1, c2 := &Connection{}, &Connection{}
	a.insert(c1)
	r2 := a.insert(c2)
	a.remove(r2)

	var seen []*Connection
	a.each(func(c *Connection) { seen = append(seen, c) })
	assert.Equal(t, []*Connection{c1}, seen)
	assert.Equal(t, 1, a.len())
}
