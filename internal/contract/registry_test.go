package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	b := sampleContract()
	b.Name = "b"
	a := sampleContract()
	a.Name = "a"

	reg, err := NewRegistry(b, a)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Len())

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Name)
	assert.Equal(t, "b", all[1].Name)

	t.Run("rejects duplicates", func(t *testing.T) {
		err := reg.Add(named("a"))
		assert.ErrorContains(t, err, "duplicate")
	})

	t.Run("rejects invalid", func(t *testing.T) {
		bad := named("bad")
		bad.Response.Status = 0
		assert.Error(t, reg.Add(bad))
	})

	t.Run("rejects hand-built matcher", func(t *testing.T) {
		bad := named("zeroMatcher")
		bad.Request.Body["name"] = Match(&Matcher{})
		assert.ErrorContains(t, reg.Add(bad), "request.body.name")
	})

	t.Run("rejects nil", func(t *testing.T) {
		assert.Error(t, reg.Add(nil))
	})

	t.Run("stored contracts are immutable", func(t *testing.T) {
		a.Request.Method = "DELETE"

		got, ok := reg.Get("a")
		require.True(t, ok)
		assert.Equal(t, "PUT", got.Request.Method)

		got.Request.Headers["Content-Type"] = "text/plain"
		again, _ := reg.Get("a")
		assert.Equal(t, ContentTypeJSON, again.Request.Headers["Content-Type"])
	})

	t.Run("missing", func(t *testing.T) {
		_, ok := reg.Get("nope")
		assert.False(t, ok)
	})
}

func named(name string) *Contract {
	c := sampleContract()
	c.Name = name
	return c
}
