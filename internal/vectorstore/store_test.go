package vectorstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func vec(vals ...float32) []float32 { return vals }

func TestAddRecord_GetAllRecords_SortedByTimestamp(t *testing.T) {
	s := newTestStore(t)

	base := time.Now()
	require.NoError(t, s.AddRecord("turns", Record{
		ID: "b", Document: "second", Metadata: map[string]string{"k": "v"},
		Timestamp: base.Add(time.Minute), Embedding: vec(1, 0, 0),
	}))
	require.NoError(t, s.AddRecord("turns", Record{
		ID: "a", Document: "first", Metadata: map[string]string{"k": "v"},
		Timestamp: base, Embedding: vec(0, 1, 0),
	}))

	all, err := s.GetAllRecords("turns")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "a", all[0].ID)
	require.Equal(t, "b", all[1].ID)
}

func TestQuery_RanksBySimilarityDescending(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()

	require.NoError(t, s.AddRecord("code", Record{
		ID: "exact", Document: "match", Timestamp: base, Embedding: vec(1, 0, 0), Metadata: map[string]string{},
	}))
	require.NoError(t, s.AddRecord("code", Record{
		ID: "orthogonal", Document: "nomatch", Timestamp: base, Embedding: vec(0, 1, 0), Metadata: map[string]string{},
	}))

	matches, err := s.Query("code", vec(1, 0, 0), 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "exact", matches[0].Record.ID)
	require.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
}

func TestQuery_LimitsToK(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AddRecord("turns2", Record{
			ID: string(rune('a' + i)), Document: "x", Timestamp: base.Add(time.Duration(i) * time.Second),
			Embedding: vec(float32(i), 0, 0), Metadata: map[string]string{},
		}))
	}

	matches, err := s.Query("turns2", vec(1, 0, 0), 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
}

func TestUpdateRecordsMetadata(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddRecord("meta", Record{
		ID: "x", Document: "doc", Timestamp: time.Now(), Embedding: vec(1, 2, 3), Metadata: map[string]string{"old": "1"},
	}))

	require.NoError(t, s.UpdateRecordsMetadata("meta", []string{"x"}, []map[string]string{{"new": "2"}}))

	all, err := s.GetAllRecords("meta")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"new": "2"}, all[0].Metadata)
}

func TestDeleteCollection(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddRecord("gone", Record{
		ID: "x", Document: "doc", Timestamp: time.Now(), Embedding: vec(1), Metadata: map[string]string{},
	}))

	require.NoError(t, s.DeleteCollection("gone"))

	all, err := s.GetAllRecords("gone")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestSanitizeCollectionName(t *testing.T) {
	require.Equal(t, "mysession123", sanitizeCollectionName("my-session_123!"))
}
