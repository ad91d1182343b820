package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumeline/plumeline/models"
)

func openTestStore(t *testing.T) *AuditStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordRejection(t *testing.T) {
	s := openTestStore(t)
	err := s.RecordRejection(context.Background(), "best bitcoin strategy", "en", 3.5, "non_agricultural")
	assert.NoError(t, err)
}

func TestHistoryReturnsChronologicalOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, turn := range []struct{ q, a string }{
		{"q1", "a1"},
		{"q2", "a2"},
		{"q3", "a3"},
	} {
		require.NoError(t, s.SaveTurn(ctx, "conv1", turn.q, turn.a))
	}
	require.NoError(t, s.SaveTurn(ctx, "conv2", "other", "other"))

	turns, err := s.History(ctx, "conv1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	assert.Equal(t, "q1", turns[0].Question)
	assert.Equal(t, "q3", turns[2].Question)
	assert.Equal(t, "a2", turns[1].Answer)
}

func TestHistoryLimitKeepsMostRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3", "q4"} {
		require.NoError(t, s.SaveTurn(ctx, "conv1", q, "a"))
	}

	turns, err := s.History(ctx, "conv1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q3", turns[0].Question)
	assert.Equal(t, "q4", turns[1].Question)
}

func TestPendingClarificationRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	breed := "generic_chicken"
	err := s.SavePendingClarification(ctx, &PendingClarification{
		ConversationID: "conv1",
		Query:          &models.Query{ID: "q1", Text: "What weight should my chicken reach?", Language: "en"},
		Entities:       &models.ExtractedEntities{Breed: &breed},
		MissingFields:  []string{"breed", "age"},
	})
	require.NoError(t, err)

	p, err := s.TakePendingClarification(ctx, "conv1")
	require.NoError(t, err)
	assert.Equal(t, "q1", p.Query.ID)
	require.NotNil(t, p.Entities.Breed)
	assert.Equal(t, "generic_chicken", *p.Entities.Breed)
	assert.Equal(t, []string{"breed", "age"}, p.MissingFields)

	// Take removes the state, the second attempt finds nothing
	_, err = s.TakePendingClarification(ctx, "conv1")
	assert.ErrorIs(t, err, ErrNoPendingClarification)
}

func TestPendingClarificationUpsertReplaces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	save := func(text string) {
		require.NoError(t, s.SavePendingClarification(ctx, &PendingClarification{
			ConversationID: "conv1",
			Query:          &models.Query{ID: "q", Text: text, Language: "en"},
			Entities:       &models.ExtractedEntities{},
			MissingFields:  []string{"breed"},
		}))
	}
	save("first question")
	save("second question")

	p, err := s.TakePendingClarification(ctx, "conv1")
	require.NoError(t, err)
	assert.Equal(t, "second question", p.Query.Text)
}

func TestTakePendingUnknownConversation(t *testing.T) {
	s := openTestStore(t)
	_, err := s.TakePendingClarification(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNoPendingClarification)
}

func TestRecordExpansionAndPing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	err := s.RecordExpansion(ctx, "coccidiosis prevention", &models.ExpansionReport{
		DocumentsIngested: 12,
		SourcesSucceeded:  2,
	})
	assert.NoError(t, err)
}
