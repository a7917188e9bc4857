package listsync

import (
	"log/slog"
	"net/url"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-todo-sync/todo"
)

// Defaults for Options.
const (
	DefaultPageSize       = 10
	DefaultSearchDebounce = 500 * time.Millisecond
	DefaultMirrorDelay    = 250 * time.Millisecond
)

// Options configures an Engine. Zero durations take the defaults unless
// NoDelay is set.
type Options struct {
	PageSize       int           `json:"page_size"`
	SearchDebounce time.Duration `json:"search_debounce"`
	MirrorDelay    time.Duration `json:"mirror_delay"`
	// NoDelay keeps zero durations at zero, so search input commits and the
	// query is mirrored without waiting.
	NoDelay      bool       `json:"no_delay"`
	InitialQuery todo.Query `json:"initial_query"`

	Mirror Mirror       `json:"-"`
	Logger *slog.Logger `json:"-"`
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		PageSize:       DefaultPageSize,
		SearchDebounce: DefaultSearchDebounce,
		MirrorDelay:    DefaultMirrorDelay,
		InitialQuery:   todo.DefaultQuery,
	}
}

// Validate checks the numeric settings.
func (o Options) Validate() error {
	err := validation.ValidateStruct(&o,
		validation.Field(&o.PageSize, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&o.SearchDebounce, validation.Min(time.Duration(0))),
		validation.Field(&o.MirrorDelay, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid sync options")
	}
	if err := o.InitialQuery.Validate(); err != nil {
		return err
	}
	return nil
}

func (o Options) withDefaults() Options {
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
	if !o.NoDelay {
		if o.SearchDebounce == 0 {
			o.SearchDebounce = DefaultSearchDebounce
		}
		if o.MirrorDelay == 0 {
			o.MirrorDelay = DefaultMirrorDelay
		}
	}
	if o.InitialQuery == (todo.Query{}) {
		o.InitialQuery = todo.DefaultQuery
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Mirror == nil {
		o.Mirror = MirrorFunc(func(url.Values) {})
	}
	return o
}
