package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"pageanalyzer/internal/storage"
)

func TestCreateEntryDedup(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	first, err := s.CreateEntry(ctx, "https://example.com")
	require.NoError(t, err)
	require.Equal(t, int64(1), first.ID)

	second, err := s.CreateEntry(ctx, "https://example.com")
	require.True(t, errors.Is(err, storage.ErrDuplicate))
	require.Equal(t, first.ID, second.ID)

	entries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFindByNameAndID(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	entry, err := s.CreateEntry(ctx, "https://example.com")
	require.NoError(t, err)

	byName, err := s.FindByName(ctx, "https://example.com")
	require.NoError(t, err)
	require.Equal(t, entry.ID, byName.ID)

	byID, err := s.FindByID(ctx, entry.ID)
	require.NoError(t, err)
	require.Equal(t, "https://example.com", byID.Name)

	_, err = s.FindByName(ctx, "https://missing.example")
	require.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.FindByID(ctx, 999)
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestCreateCheckRequiresEntry(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.CreateCheck(context.Background(), 42, storage.CheckInput{StatusCode: 200})
	require.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestListChecksInsertionOrder(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	entry, err := s.CreateEntry(ctx, "https://example.com")
	require.NoError(t, err)

	for _, status := range []int{200, 301, 500} {
		_, err := s.CreateCheck(ctx, entry.ID, storage.CheckInput{StatusCode: status})
		require.NoError(t, err)
	}

	checks, err := s.ListChecks(ctx, entry.ID)
	require.NoError(t, err)
	require.Len(t, checks, 3)
	for i := 1; i < len(checks); i++ {
		require.Greater(t, checks[i].ID, checks[i-1].ID)
	}
	require.Equal(t, 200, *checks[0].StatusCode)
	require.Equal(t, 500, *checks[2].StatusCode)
}

func TestMergedListingLatestCheckWins(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	entry, err := s.CreateEntry(ctx, "https://example.com")
	require.NoError(t, err)

	_, err = s.CreateCheck(ctx, entry.ID, storage.CheckInput{StatusCode: 500})
	require.NoError(t, err)
	latest, err := s.CreateCheck(ctx, entry.ID, storage.CheckInput{StatusCode: 200})
	require.NoError(t, err)

	merged, err := s.MergedListing(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].LastCheckStatus)
	require.Equal(t, 200, *merged[0].LastCheckStatus)
	require.NotNil(t, merged[0].LastCheckAt)
	require.Equal(t, latest.CreatedAt, *merged[0].LastCheckAt)
}

func TestMergedListingOrderAndEmptyChecks(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()

	first, err := s.CreateEntry(ctx, "https://a.example")
	require.NoError(t, err)
	second, err := s.CreateEntry(ctx, "https://b.example")
	require.NoError(t, err)

	_, err = s.CreateCheck(ctx, first.ID, storage.CheckInput{StatusCode: 200})
	require.NoError(t, err)

	merged, err := s.MergedListing(ctx)
	require.NoError(t, err)
	require.Len(t, merged, 2)

	// Newest entry first; the unchecked entry carries nil last-check fields.
	require.Equal(t, second.ID, merged[0].ID)
	require.Nil(t, merged[0].LastCheckStatus)
	require.Nil(t, merged[0].LastCheckAt)
	require.Equal(t, first.ID, merged[1].ID)
	require.NotNil(t, merged[1].LastCheckStatus)
}
