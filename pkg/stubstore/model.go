package stubstore

import (
	"strconv"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-todo-sync/todo"
)

// Todo is the persisted record.
type Todo struct {
	bun.BaseModel `bun:"table:todos,alias:t"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	DocumentID string    `bun:"document_id,notnull,unique" json:"documentId"`
	Title      string    `bun:"title,notnull" json:"title"`
	Done       bool      `bun:"done,notnull,default:false" json:"done"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"createdAt"`
	UpdatedAt  time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// Item converts the record to the canonical form.
func (t Todo) Item() todo.Item {
	return todo.Item{
		ID:          t.ID,
		AlternateID: t.DocumentID,
		Title:       t.Title,
		Done:        t.Done,
		CreatedAt:   formatTime(t.CreatedAt),
	}
}

// Matches reports whether ref addresses t, either by document id or by the
// decimal id.
func (t Todo) Matches(ref string) bool {
	return ref == t.DocumentID || ref == strconv.FormatInt(t.ID, 10)
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format("2006-01-02T15:04:05.000Z")
}
