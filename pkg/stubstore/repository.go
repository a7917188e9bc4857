package stubstore

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-todo-sync/cache"
	"github.com/goliatone/go-todo-sync/todo"
)

// DefaultDSN keeps the database in memory for the life of the process.
const DefaultDSN = "file:todos?mode=memory&cache=shared"

// ListCriteria selects one page of todos.
type ListCriteria struct {
	Page      int
	PageSize  int
	Search    string
	Done      *bool
	Ascending bool
}

// CriteriaFor maps decoded list parameters to repository criteria.
func CriteriaFor(p todo.ListParams) ListCriteria {
	c := ListCriteria{
		Page:      p.Page,
		PageSize:  p.PageSize,
		Search:    p.Query.Term(),
		Ascending: p.Query.Sort == todo.SortCreatedAsc,
	}
	switch p.Query.Filter {
	case todo.FilterActive:
		done := false
		c.Done = &done
	case todo.FilterCompleted:
		done := true
		c.Done = &done
	}
	return c
}

// Patch holds the fields an update changes.
type Patch struct {
	Title *string `json:"title,omitempty"`
	Done  *bool   `json:"done,omitempty"`
}

// Repository is the todo persistence contract.
type Repository interface {
	List(ctx context.Context, criteria ListCriteria) ([]Todo, int, error)
	Get(ctx context.Context, ref string) (Todo, error)
	Create(ctx context.Context, title string, done bool) (Todo, error)
	Update(ctx context.Context, ref string, patch Patch) (Todo, error)
	Delete(ctx context.Context, ref string) (Todo, error)
}

// OpenSQLite opens dsn with the sqlite3 driver and wraps it in bun.
func OpenSQLite(dsn string) (*bun.DB, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "open sqlite database")
	}
	// one connection keeps in-memory databases alive and writes serialized
	sqldb.SetMaxOpenConns(1)

	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// OpenRepository opens dsn, creates the schema and returns a repository on
// it. The caller closes the returned db.
func OpenRepository(ctx context.Context, dsn string, opts ...BunOption) (*BunRepository, *bun.DB, error) {
	db, err := OpenSQLite(dsn)
	if err != nil {
		return nil, nil, err
	}
	repo := NewBunRepository(db, opts...)
	if err := repo.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return repo, db, nil
}

// BunRepository is the Repository facade over the generic record repository.
type BunRepository struct {
	db      *bun.DB
	records repository.Repository[*Todo]
	now     func() time.Time
}

// BunOption configures a BunRepository.
type BunOption func(*BunRepository)

// WithClock replaces time.Now, e.g. for deterministic creation times.
func WithClock(now func() time.Time) BunOption {
	return func(r *BunRepository) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRecords replaces the record repository built from the db.
func WithRecords(records repository.Repository[*Todo]) BunOption {
	return func(r *BunRepository) {
		if records != nil {
			r.records = records
		}
	}
}

// WithCache decorates the current record repository with read caching.
func WithCache(cacheService cache.CacheService, keySerializer cache.KeySerializer, logger *slog.Logger) BunOption {
	return func(r *BunRepository) {
		r.records = NewCachedRepository(r.records, cacheService, keySerializer, logger)
	}
}

// NewBunRepository returns a repository on db. Call Migrate before use.
func NewBunRepository(db *bun.DB, opts ...BunOption) *BunRepository {
	r := &BunRepository{
		db:      db,
		records: NewRecordRepository(db),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Records returns the record repository the facade reads and writes through.
func (r *BunRepository) Records() repository.Repository[*Todo] {
	return r.records
}

// Migrate creates the todos table when missing.
func (r *BunRepository) Migrate(ctx context.Context) error {
	if err := Migrate(ctx, r.db); err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "create todos table")
	}
	return nil
}

// List implements Repository. Total counts every match, not just the page.
func (r *BunRepository) List(ctx context.Context, c ListCriteria) ([]Todo, int, error) {
	records, total, err := r.records.List(withReadKey(ctx, c.readKey()), c.selectCriteria()...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.CategoryInternal, "list todos")
	}

	rows := make([]Todo, 0, len(records))
	for _, record := range records {
		if record != nil {
			rows = append(rows, *record)
		}
	}
	return rows, total, nil
}

// Get implements Repository. ref is a document id or a decimal id.
func (r *BunRepository) Get(ctx context.Context, ref string) (Todo, error) {
	var (
		record *Todo
		err    error
	)
	if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil {
		record, err = r.records.Get(withReadKey(ctx, "ref="+ref), refCriteria(ref, id))
	} else {
		record, err = r.records.GetByIdentifier(ctx, ref)
	}

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return Todo{}, notFound(ref)
		}
		return Todo{}, errors.Wrap(err, errors.CategoryInternal, "get todo")
	}
	if record == nil {
		return Todo{}, notFound(ref)
	}
	return *record, nil
}

// Create implements Repository. The document id is assigned by the record
// handlers.
func (r *BunRepository) Create(ctx context.Context, title string, done bool) (Todo, error) {
	clean, err := todo.CleanTitle(title)
	if err != nil {
		return Todo{}, err
	}

	now := r.now().UTC()
	record, err := r.records.Create(ctx, &Todo{
		Title:     clean,
		Done:      done,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return Todo{}, errors.Wrap(err, errors.CategoryInternal, "insert todo")
	}
	return *record, nil
}

// Update implements Repository.
func (r *BunRepository) Update(ctx context.Context, ref string, patch Patch) (Todo, error) {
	row, err := r.Get(ctx, ref)
	if err != nil {
		return Todo{}, err
	}

	if patch.Title != nil {
		clean, err := todo.CleanTitle(*patch.Title)
		if err != nil {
			return Todo{}, err
		}
		row.Title = clean
	}
	if patch.Done != nil {
		row.Done = *patch.Done
	}
	row.UpdatedAt = r.now().UTC()

	// explicit SET so a false done or an unchanged title is still written
	set := repository.UpdateRawProcessor(func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("title = ?", row.Title).
			Set("done = ?", row.Done).
			Set("updated_at = ?", row.UpdatedAt)
	})
	record, err := r.records.Update(ctx, &row, set)
	if err != nil {
		return Todo{}, errors.Wrap(err, errors.CategoryInternal, "update todo")
	}
	return *record, nil
}

// Delete implements Repository and returns the removed record.
func (r *BunRepository) Delete(ctx context.Context, ref string) (Todo, error) {
	row, err := r.Get(ctx, ref)
	if err != nil {
		return Todo{}, err
	}
	if err := r.records.Delete(ctx, &row); err != nil {
		return Todo{}, errors.Wrap(err, errors.CategoryInternal, "delete todo")
	}
	return row, nil
}

func notFound(ref string) error {
	return errors.New("Not Found", errors.CategoryNotFound).
		WithCode(404).
		WithTextCode("NOT_FOUND").
		WithMetadata(map[string]any{"ref": ref})
}

var _ Repository = (*BunRepository)(nil)
