package stubstore

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-todo-sync/todo"
)

var dbSeq atomic.Int64

// steppingClock returns a clock that advances one minute per call.
func steppingClock() func() time.Time {
	var n atomic.Int64
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		return start.Add(time.Duration(n.Add(1)) * time.Minute)
	}
}

func newTestRepository(t *testing.T) *BunRepository {
	t.Helper()

	dsn := fmt.Sprintf("file:stubstore_%d?mode=memory&cache=shared", dbSeq.Add(1))
	repo, db, err := OpenRepository(context.Background(), dsn, WithClock(steppingClock()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return repo
}

func newSeededRepository(t *testing.T) (*BunRepository, []Todo) {
	t.Helper()

	repo := newTestRepository(t)
	rows, err := Seed(context.Background(), repo, DefaultSeed)
	require.NoError(t, err)
	require.Len(t, rows, len(DefaultSeed))
	return repo, rows
}

func boolPtr(b bool) *bool { return &b }

func TestBunRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	created, err := repo.Create(ctx, "  Buy milk  ", false)
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", created.Title)
	assert.NotZero(t, created.ID)
	assert.Len(t, created.DocumentID, 24)

	byDoc, err := repo.Get(ctx, created.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byDoc.ID)

	byID, err := repo.Get(ctx, strconv.FormatInt(created.ID, 10))
	require.NoError(t, err)
	assert.Equal(t, created.DocumentID, byID.DocumentID)
	assert.True(t, byID.Matches(created.DocumentID))

	item := byID.Item()
	assert.Equal(t, created.DocumentID, item.Ref())
	assert.Equal(t, "2024-03-01T09:01:00.000Z", item.CreatedAt)
}

func TestBunRepository_CreateRejectsBlankTitle(t *testing.T) {
	_, err := newTestRepository(t).Create(context.Background(), "   ", false)
	require.Error(t, err)
	assert.True(t, todo.IsValidationFailure(err))
	assert.Equal(t, todo.ErrTitleRequired, todo.Message(err))
}

func TestBunRepository_List(t *testing.T) {
	repo, _ := newSeededRepository(t)

	tests := []struct {
		name      string
		criteria  ListCriteria
		wantTotal int
		wantLen   int
		wantFirst string
	}{
		{
			name:      "newest first",
			criteria:  ListCriteria{Page: 1, PageSize: 10},
			wantTotal: 25,
			wantLen:   10,
			wantFirst: "Backup database",
		},
		{
			name:      "oldest first",
			criteria:  ListCriteria{Page: 1, PageSize: 10, Ascending: true},
			wantTotal: 25,
			wantLen:   10,
			wantFirst: "Complete project documentation",
		},
		{
			name:      "last partial page",
			criteria:  ListCriteria{Page: 3, PageSize: 10, Ascending: true},
			wantTotal: 25,
			wantLen:   5,
			wantFirst: "Setup development environment",
		},
		{
			name:      "search is case insensitive",
			criteria:  ListCriteria{Page: 1, PageSize: 10, Search: "DATABASE"},
			wantTotal: 2,
			wantLen:   2,
			wantFirst: "Backup database",
		},
		{
			name:      "completed only",
			criteria:  ListCriteria{Page: 1, PageSize: 10, Done: boolPtr(true)},
			wantTotal: 7,
			wantLen:   7,
			wantFirst: "Backup database",
		},
		{
			name:      "active only",
			criteria:  ListCriteria{Page: 1, PageSize: 10, Done: boolPtr(false)},
			wantTotal: 18,
			wantLen:   10,
			wantFirst: "Accessibility improvements",
		},
		{
			name:      "past the end",
			criteria:  ListCriteria{Page: 9, PageSize: 10},
			wantTotal: 25,
			wantLen:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, total, err := repo.List(context.Background(), tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)
			require.Len(t, rows, tt.wantLen)
			if tt.wantFirst != "" {
				assert.Equal(t, tt.wantFirst, rows[0].Title)
			}
		})
	}
}

func TestCriteriaFor(t *testing.T) {
	c := CriteriaFor(todo.ListParams{
		Page:     2,
		PageSize: 5,
		Query:    todo.Query{Search: "  milk ", Filter: todo.FilterActive, Sort: todo.SortCreatedAsc},
	})

	assert.Equal(t, 2, c.Page)
	assert.Equal(t, 5, c.PageSize)
	assert.Equal(t, "milk", c.Search)
	assert.True(t, c.Ascending)
	require.NotNil(t, c.Done)
	assert.False(t, *c.Done)

	assert.Nil(t, CriteriaFor(todo.ListParams{Query: todo.DefaultQuery}).Done)
}

func TestBunRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo, rows := newSeededRepository(t)
	target := rows[0]

	updated, err := repo.Update(ctx, target.DocumentID, Patch{Done: boolPtr(true)})
	require.NoError(t, err)
	assert.True(t, updated.Done)
	assert.Equal(t, target.Title, updated.Title)
	assert.True(t, updated.UpdatedAt.After(target.UpdatedAt))

	title := " Finish documentation "
	renamed, err := repo.Update(ctx, strconv.FormatInt(target.ID, 10), Patch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Finish documentation", renamed.Title)
	assert.True(t, renamed.Done, "title patch must leave done untouched")

	blank := "  "
	_, err = repo.Update(ctx, target.DocumentID, Patch{Title: &blank})
	assert.True(t, todo.IsValidationFailure(err))

	stored, err := repo.Get(ctx, target.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Finish documentation", stored.Title)
}

func TestBunRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	_, err := repo.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, err = repo.Update(ctx, "42", Patch{Done: boolPtr(true)})
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, err = repo.Delete(ctx, "missing")
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))
}

func TestBunRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo, rows := newSeededRepository(t)

	removed, err := repo.Delete(ctx, rows[3].DocumentID)
	require.NoError(t, err)
	assert.Equal(t, rows[3].ID, removed.ID)

	_, err = repo.Get(ctx, rows[3].DocumentID)
	assert.True(t, errors.IsCategory(err, errors.CategoryNotFound))

	_, total, err := repo.List(ctx, ListCriteria{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 24, total)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	repo, _ := newSeededRepository(t)

	n, err := Clear(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	rows, total, err := repo.List(ctx, ListCriteria{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)
}

func TestParseShape(t *testing.T) {
	tests := []struct {
		in      string
		want    Shape
		wantErr bool
	}{
		{in: "", want: ShapeFlattened},
		{in: "Nested", want: ShapeNested},
		{in: " mixed ", want: ShapeMixed},
		{in: "v3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseShape(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
