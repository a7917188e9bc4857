package stubstore

import (
	"context"

	"github.com/goliatone/go-errors"
)

// SeedTodo is one fixture entry.
type SeedTodo struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

// DefaultSeed is the fixture set used by demos and integration tests.
var DefaultSeed = []SeedTodo{
	{Title: "Complete project documentation"},
	{Title: "Review pull requests"},
	{Title: "Fix authentication bug", Done: true},
	{Title: "Update dependencies"},
	{Title: "Write unit tests"},
	{Title: "Deploy to staging", Done: true},
	{Title: "Design new feature mockups"},
	{Title: "Refactor API endpoints"},
	{Title: "Setup CI/CD pipeline", Done: true},
	{Title: "Database migration"},
	{Title: "User feedback analysis"},
	{Title: "Performance optimization"},
	{Title: "Security audit"},
	{Title: "Team meeting notes", Done: true},
	{Title: "Update README file"},
	{Title: "Configure monitoring"},
	{Title: "Code review guidelines", Done: true},
	{Title: "Implement dark mode"},
	{Title: "API documentation"},
	{Title: "Bug triage session", Done: true},
	{Title: "Setup development environment"},
	{Title: "Create test scenarios"},
	{Title: "Mobile responsiveness testing"},
	{Title: "Accessibility improvements"},
	{Title: "Backup database", Done: true},
}

// Seed inserts entries in order and returns the stored records.
func Seed(ctx context.Context, repo Repository, entries []SeedTodo) ([]Todo, error) {
	out := make([]Todo, 0, len(entries))
	for i, entry := range entries {
		row, err := repo.Create(ctx, entry.Title, entry.Done)
		if err != nil {
			return out, errors.Wrap(err, errors.CategoryInternal, "seed todo").
				WithMetadata(map[string]any{"index": i, "title": entry.Title})
		}
		out = append(out, row)
	}
	return out, nil
}

// Clear deletes every record, paging through the collection first so
// deletions do not shift the pages being read. It returns the number removed.
func Clear(ctx context.Context, repo Repository) (int, error) {
	var all []Todo
	for page := 1; ; page++ {
		rows, total, err := repo.List(ctx, ListCriteria{Page: page, PageSize: 100})
		if err != nil {
			return 0, err
		}
		all = append(all, rows...)
		if len(rows) == 0 || len(all) >= total {
			break
		}
	}

	for i, row := range all {
		if _, err := repo.Delete(ctx, row.DocumentID); err != nil {
			return i, err
		}
	}
	return len(all), nil
}
