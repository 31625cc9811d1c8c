package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pixelforge/imagesvc/internal/generation"
)

func TestRecordStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()

	rec := generation.Record{
		RequestID: "16fd2706-8baf-433b-82eb-8c7fada847da",
		Prompt:    "p",
		Status:    generation.JobStatusSubmitted,
		CreatedAt: time.Unix(100, 0),
	}
	require.NoError(t, store.CreateRecord(ctx, rec))

	finished := time.Unix(200, 0)
	require.NoError(t, store.FinishRecord(ctx, rec.RequestID, generation.JobStatusCompleted, "local-url", "blob-url", "", finished))

	records := store.Records()
	require.Len(t, records, 1)
	require.Equal(t, generation.JobStatusCompleted, records[0].Status)
	require.Equal(t, "blob-url", records[0].BlobURL)
	require.NotNil(t, records[0].FinishedAt)
}

func TestRecordStoreKeepsIndependentRowsPerSubmission(t *testing.T) {
	t.Parallel()

	store := NewRecordStore()
	ctx := context.Background()
	id := "16fd2706-8baf-433b-82eb-8c7fada847da"

	require.NoError(t, store.CreateRecord(ctx, generation.Record{RequestID: id}))
	require.NoError(t, store.CreateRecord(ctx, generation.Record{RequestID: id}))
	require.NoError(t, store.FinishRecord(ctx, id, generation.JobStatusFailed, "", "", "boom", time.Unix(1, 0)))

	records := store.Records()
	require.Len(t, records, 2)
	// The newest unfinished row is the one that resolves.
	require.Equal(t, generation.JobStatusFailed, records[1].Status)
	require.Nil(t, records[0].FinishedAt)
}
