package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swarmgov/internal/trust"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "swarmgov.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type fixture struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := fixture{Name: "agent-1", Score: 83}
	require.NoError(t, s.Save("agents/agent-1", in))

	var out fixture
	require.NoError(t, s.Load("agents/agent-1", &out))
	assert.Equal(t, in, out)
}

func TestSaveOverwrites(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Save("k", fixture{Name: "first"}))
	require.NoError(t, s.Save("k", fixture{Name: "second"}))

	var out fixture
	require.NoError(t, s.Load("k", &out))
	assert.Equal(t, "second", out.Name)

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
}

func TestLoadMissingKey(t *testing.T) {
	s := openTestStore(t)

	var out fixture
	err := s.Load("absent", &out)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestTrustEntriesPersistence(t *testing.T) {
	s := openTestStore(t)

	g := trust.NewGraph()
	for i := 0; i < 3; i++ {
		_, err := g.Record("a1", "propose_experiment", map[string]int{"experiment_id": i + 1})
		require.NoError(t, err)
	}

	require.NoError(t, s.AppendTrustEntries(g.Entries()))

	loaded, err := s.LoadTrustEntries()
	require.NoError(t, err)
	assert.Equal(t, g.Entries(), loaded)

	// The loaded chain still verifies end to end.
	fresh := trust.NewGraph()
	require.NoError(t, fresh.Restore(loaded))
}

func TestAppendTrustEntriesIdempotent(t *testing.T) {
	s := openTestStore(t)

	g := trust.NewGraph()
	_, err := g.Record("a1", "propose_experiment", nil)
	require.NoError(t, err)

	require.NoError(t, s.AppendTrustEntries(g.Entries()))

	_, err = g.Record("a1", "submit_attestation", nil)
	require.NoError(t, err)

	// Re-syncing the whole chain only appends the new entry.
	require.NoError(t, s.AppendTrustEntries(g.Entries()))

	loaded, err := s.LoadTrustEntries()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, g.Entries(), loaded)
}
