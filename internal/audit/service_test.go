package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	entries    []Entry
	lastLimit  int
	lastOffset int
	lastFilter Filters
	err        error
}

func (s *stubRepo) Insert(ctx context.Context, entry Entry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *stubRepo) Select(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	s.lastFilter = filters
	s.lastLimit = limit
	s.lastOffset = offset
	if s.err != nil {
		return nil, s.err
	}
	if offset >= len(s.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[offset:end], nil
}

func (s *stubRepo) DeleteOlderThan(ctx context.Context, cutoff pgtype.Timestamptz) (int64, error) {
	return 0, s.err
}

func seedEntries(n int) []Entry {
	entries := make([]Entry, 0, n)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		entries = append(entries, Normalize(Entry{
			UserID:   int64(i + 1),
			Resource: "jobs",
			Action:   "view",
			Granted:  i%2 == 0,
			Reason:   fmt.Sprintf("entry %d", i),
			At:       base.Add(-time.Duration(i) * time.Minute),
		}))
	}
	return entries
}

func TestListPaging(t *testing.T) {
	repo := &stubRepo{entries: seedEntries(5)}
	svc := NewService(repo)

	result, err := svc.List(context.Background(), Filters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Entries, 2)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 3, repo.lastLimit, "fetches one extra row for look-ahead")
	require.Equal(t, 0, repo.lastOffset)
	require.Equal(t, 2, result.Paging.NextPage)
}

func TestListClampsPageSize(t *testing.T) {
	repo := &stubRepo{}
	svc := NewService(repo)

	_, err := svc.List(context.Background(), Filters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize+1, repo.lastLimit)

	_, err = svc.List(context.Background(), Filters{PageSize: -3})
	require.NoError(t, err)
	require.Equal(t, defaultPageSize+1, repo.lastLimit)
}

func TestListLastPage(t *testing.T) {
	repo := &stubRepo{entries: seedEntries(3)}
	svc := NewService(repo)

	result, err := svc.List(context.Background(), Filters{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Entries, 1)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
}

func TestListPropagatesRepoError(t *testing.T) {
	repo := &stubRepo{err: errors.New("boom")}
	svc := NewService(repo)

	_, err := svc.List(context.Background(), Filters{})
	require.Error(t, err)
}

func TestExportReturnsAllRows(t *testing.T) {
	repo := &stubRepo{entries: seedEntries(4)}
	svc := NewService(repo)

	entries, err := svc.Export(context.Background(), Filters{Resource: "jobs"})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	require.Equal(t, "jobs", repo.lastFilter.Resource)
}

func TestNormalizeAssignsIDAndTimestamp(t *testing.T) {
	entry := Normalize(Entry{UserID: 7, Resource: "jobs", Action: "edit"})
	require.NotEqual(t, entry.ID.String(), "00000000-0000-0000-0000-000000000000")
	require.False(t, entry.At.IsZero())
	require.Equal(t, KindAccess, entry.Kind)
}
