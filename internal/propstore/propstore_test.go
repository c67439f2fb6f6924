package propstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Precedence(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set(map[string]string{"X": "default"}, ""))
	require.NoError(t, s.Set(map[string]string{"X": "method"}, "get"))

	resolved := s.Resolve("GET", map[string]string{"X": "percall"})
	assert.Equal(t, "percall", resolved["X"])

	resolved = s.Resolve("GET", nil)
	assert.Equal(t, "method", resolved["X"])

	resolved = s.Resolve("POST", nil)
	assert.Equal(t, "default", resolved["X"])
}

func TestStore_UnknownMethodIsNoOverride(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set(map[string]string{"X": "default"}, ""))

	resolved := s.Resolve("DELETE", nil)
	assert.Equal(t, "default", resolved["X"])
}

func TestStore_AddRemoveRoundTrip(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set(map[string]string{"X": "1"}, ""))
	before := s.Resolve("GET", nil)

	require.NoError(t, s.Set(map[string]string{"Y": "2"}, ""))
	s.Remove([]string{"Y"}, "")

	after := s.Resolve("GET", nil)
	assert.Equal(t, before, after)
}

func TestStore_ValidationRejectsAtomically(t *testing.T) {
	wantErr := errors.New("bad header")
	s := New(func(merged map[string]string, method string) error {
		if merged["X"] == "poison" {
			return wantErr
		}
		return nil
	})
	require.NoError(t, s.Set(map[string]string{"X": "ok"}, ""))

	err := s.Set(map[string]string{"X": "poison"}, "")
	require.Error(t, err)

	resolved := s.Resolve("GET", nil)
	assert.Equal(t, "ok", resolved["X"], "rejected mutation must not be applied")
}

func TestStore_DeniedKeysRejected(t *testing.T) {
	s := New(nil)
	err := s.Set(map[string]string{"__proto__": "x"}, "")
	require.Error(t, err)
}

func TestStore_CloneViewsDoNotAlias(t *testing.T) {
	s := New(nil)
	require.NoError(t, s.Set(map[string]string{"X": "1"}, ""))

	d := s.Defaults()
	d["X"] = "mutated"

	assert.Equal(t, "1", s.Resolve("GET", nil)["X"])
}
