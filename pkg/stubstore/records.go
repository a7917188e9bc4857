package stubstore

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// documentNamespace derives a stable record UUID from a document id.
var documentNamespace = uuid.MustParse("6f1d3c2a-8f4e-4b7a-9c51-2d0e7a4b9f10")

// NewRecordRepository returns the generic bun repository for todo records.
// Records are addressed by document id through GetByIdentifier.
func NewRecordRepository(db *bun.DB) repository.Repository[*Todo] {
	return repository.NewRepository[*Todo](db, TodoHandlers())
}

// TodoHandlers returns the model handlers for Todo. Create assigns a fresh
// document id through SetID when the record has none.
func TodoHandlers() repository.ModelHandlers[*Todo] {
	return repository.ModelHandlers[*Todo]{
		NewRecord: func() *Todo { return &Todo{} },
		GetID: func(t *Todo) uuid.UUID {
			if t == nil || t.DocumentID == "" {
				return uuid.Nil
			}
			return uuid.NewSHA1(documentNamespace, []byte(t.DocumentID))
		},
		SetID: func(t *Todo, id uuid.UUID) {
			t.DocumentID = documentIDFrom(id)
		},
		GetIdentifier: func() string { return "document_id" },
	}
}

// Migrate creates the todos table when missing.
func Migrate(ctx context.Context, db bun.IDB) error {
	_, err := db.NewCreateTable().Model((*Todo)(nil)).IfNotExists().Exec(ctx)
	return err
}

// selectCriteria maps c to repository criteria. A zero PageSize lifts the
// repository's default limit.
func (c ListCriteria) selectCriteria() []repository.SelectCriteria {
	criteria := []repository.SelectCriteria{}

	if c.Search != "" {
		pattern := "%" + strings.ToLower(c.Search) + "%"
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("LOWER(?TableAlias.title) LIKE ?", pattern)
		}))
	}
	if c.Done != nil {
		done := *c.Done
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.done = ?", done)
		}))
	}

	if c.Ascending {
		criteria = append(criteria, repository.OrderBy("t.created_at ASC", "t.id ASC"))
	} else {
		criteria = append(criteria, repository.OrderBy("t.created_at DESC", "t.id DESC"))
	}

	if c.PageSize > 0 {
		page := max(c.Page, 1)
		criteria = append(criteria, repository.SelectPaginate(c.PageSize, (page-1)*c.PageSize))
	} else {
		criteria = append(criteria, repository.SelectPaginate(0, 0))
	}
	return criteria
}

// readKey identifies c for the record cache.
func (c ListCriteria) readKey() string {
	v := url.Values{}
	v.Set("page", strconv.Itoa(c.Page))
	v.Set("size", strconv.Itoa(c.PageSize))
	v.Set("search", strings.ToLower(c.Search))
	if c.Done != nil {
		v.Set("done", strconv.FormatBool(*c.Done))
	}
	v.Set("asc", strconv.FormatBool(c.Ascending))
	return v.Encode()
}

// refCriteria matches a numeric ref against both the document id and the
// decimal id.
func refCriteria(ref string, id int64) repository.SelectCriteria {
	return repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.document_id = ?", ref).WhereOr("?TableAlias.id = ?", id)
		})
	})
}

// documentIDFrom returns a 24 character lowercase id in the style of newer
// backends.
func documentIDFrom(id uuid.UUID) string {
	return strings.ReplaceAll(id.String(), "-", "")[:24]
}

type readKeyContextKey struct{}

// withReadKey attaches a cache key describing the criteria of a read. Reads
// through CachedRepository are only cached when one is present.
func withReadKey(ctx context.Context, key string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if key == "" {
		return ctx
	}
	return context.WithValue(ctx, readKeyContextKey{}, key)
}

func readKeyFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	key, ok := ctx.Value(readKeyContextKey{}).(string)
	return key, ok && key != ""
}
