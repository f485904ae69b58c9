package release

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRelease(t *testing.T) {
	m := NewManager(t.TempDir())
	meta, err := m.CreateRelease("docs", "rel1", "alice", map[string]any{"mode": "single"})
	require.NoError(t, err)
	assert.Equal(t, "rel1", meta["release_id"])
	assert.Equal(t, "docs", meta["domain"])
	assert.Equal(t, "single", meta["mode"])
}

func TestPromoteReleaseAndGetActive(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.CreateRelease("docs", "rel1", "alice", nil)
	require.NoError(t, err)

	active, err := m.GetActiveRelease("docs")
	require.NoError(t, err)
	assert.Equal(t, "", active)

	ev, err := m.PromoteRelease("docs", "rel1", "alice", "initial release")
	require.NoError(t, err)
	assert.Equal(t, "rel1", ev.ReleaseID)
	assert.Equal(t, "", ev.PreviousReleaseID)

	active, err = m.GetActiveRelease("docs")
	require.NoError(t, err)
	assert.Equal(t, "rel1", active)
}

func TestPromoteReleaseTracksPrevious(t *testing.T) {
	m := NewManager(t.TempDir())
	_, err := m.CreateRelease("docs", "rel1", "alice", nil)
	require.NoError(t, err)
	_, err = m.PromoteRelease("docs", "rel1", "alice", "r1")
	require.NoError(t, err)

	_, err = m.CreateRelease("docs", "rel2", "bob", nil)
	require.NoError(t, err)
	ev, err := m.PromoteRelease("docs", "rel2", "bob", "r2")
	require.NoError(t, err)
	assert.Equal(t, "rel1", ev.PreviousReleaseID)
}

func TestListAuditNewestFirst(t *testing.T) {
	m := NewManager(t.TempDir())
	for _, rid := range []string{"rel1", "rel2"} {
		_, err := m.CreateRelease("docs", rid, "alice", nil)
		require.NoError(t, err)
		_, err = m.PromoteRelease("docs", rid, "alice", "promote "+rid)
		require.NoError(t, err)
	}
	events, err := m.ListAudit("docs", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "rel2", events[0].ReleaseID)
	assert.Equal(t, "rel1", events[1].ReleaseID)
}

func TestListReleasesSorted(t *testing.T) {
	m := NewManager(t.TempDir())
	for _, rid := range []string{"rel_b", "rel_a"} {
		_, err := m.CreateRelease("docs", rid, "alice", nil)
		require.NoError(t, err)
	}
	ids, err := m.ListReleases("docs")
	require.NoError(t, err)
	assert.Equal(t, []string{"rel_a", "rel_b"}, ids)
}

func TestListReleasesEmptyDomain(t *testing.T) {
	m := NewManager(t.TempDir())
	ids, err := m.ListReleases("missing")
	require.NoError(t, err)
	assert.Empty(t, ids)
}
