package di

import (
	"log/slog"
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"

	"github.com/goliatone/go-todo-sync/cache"
	"github.com/goliatone/go-todo-sync/internal/cacheinfra"
	"github.com/goliatone/go-todo-sync/listsync"
	"github.com/goliatone/go-todo-sync/pkg/stubstore"
	"github.com/goliatone/go-todo-sync/remote"
	"github.com/goliatone/go-todo-sync/swr"
	"github.com/goliatone/go-todo-sync/todo"
)

// StoreConfig configures the list page store.
type StoreConfig struct {
	Namespace       string        `json:"namespace"`
	Timeout         time.Duration `json:"timeout"`
	RevalidateOnHit bool          `json:"revalidate_on_hit"`
}

// Config aggregates the settings of every component the container builds.
type Config struct {
	Cache  cacheinfra.Config `json:"cache"`
	Remote remote.Config     `json:"remote"`
	Store  StoreConfig       `json:"store"`
	Sync   listsync.Options  `json:"sync"`
}

// DefaultConfig returns the configuration for a client talking to a store on
// localhost.
func DefaultConfig() Config {
	return Config{
		Cache:  cacheinfra.DefaultConfig(),
		Remote: remote.DefaultConfig(),
		Store: StoreConfig{
			Namespace:       "todos",
			RevalidateOnHit: true,
		},
		Sync: listsync.DefaultOptions(),
	}
}

// Validate checks every section and reports the first failing one.
func (c Config) Validate() error {
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	err := validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Namespace, validation.Required),
		validation.Field(&c.Store.Timeout, validation.Min(time.Duration(0))),
	)
	if err != nil {
		return errors.FromOzzoValidation(err, "invalid store config")
	}
	return c.Sync.Validate()
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Container) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient sets the http.Client used by the remote client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Container) {
		c.httpClient = client
	}
}

// WithRemoteClient replaces the HTTP remote client altogether, e.g. with a
// fake in tests.
func WithRemoteClient(client remote.Client) Option {
	return func(c *Container) {
		c.client = client
	}
}

// Container provides dependency injection for the sync components.
// It owns singleton instances of the cache service, key serializer, remote
// client and page store, and builds engines on top of them.
type Container struct {
	cacheService  cache.CacheService
	keySerializer cache.KeySerializer
	config        Config
	logger        *slog.Logger
	httpClient    *http.Client
	client        remote.Client
	store         *swr.Store[todo.ListResponse]
}

// NewContainer validates config and wires the components.
func NewContainer(config Config, opts ...Option) (*Container, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		config:        config,
		logger:        slog.Default(),
		keySerializer: cache.NewDefaultKeySerializer(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cacheService, err := cacheinfra.NewSturdycService(config.Cache)
	if err != nil {
		return nil, err
	}
	c.cacheService = cacheService

	if c.client == nil {
		c.client = remote.NewHTTPClient(config.Remote, c.httpClient, c.logger)
	}

	c.store = swr.New[todo.ListResponse](c.cacheService, c.client.List, swr.Options{
		Namespace:       config.Store.Namespace,
		Serializer:      c.keySerializer,
		Timeout:         config.Store.Timeout,
		RevalidateOnHit: config.Store.RevalidateOnHit,
		Logger:          c.logger,
	})

	return c, nil
}

// NewContainerWithDefaults creates a container using DefaultConfig.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultConfig(), opts...)
}

// CacheService returns the singleton cache service instance.
func (c *Container) CacheService() cache.CacheService {
	return c.cacheService
}

// KeySerializer returns the singleton key serializer instance.
func (c *Container) KeySerializer() cache.KeySerializer {
	return c.keySerializer
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() Config {
	return c.config
}

// Client returns the remote client shared by the store and every engine.
func (c *Container) Client() remote.Client {
	return c.client
}

// Store returns the shared page store.
func (c *Container) Store() *swr.Store[todo.ListResponse] {
	return c.store
}

// NewEngine builds an engine over the shared store. mirror may be nil.
// Engines built by one container share cached pages.
func (c *Container) NewEngine(mirror listsync.Mirror) (*listsync.Engine, error) {
	opts := c.config.Sync
	opts.Mirror = mirror
	if opts.Logger == nil {
		opts.Logger = c.logger
	}
	return listsync.NewEngine(c.store, c.client, opts)
}

// NewCachedRepository wraps a stub record repository with the container's cache.
func (c *Container) NewCachedRepository(base repository.Repository[*stubstore.Todo]) *stubstore.CachedRepository {
	return stubstore.NewCachedRepository(base, c.cacheService, c.keySerializer, c.logger)
}

// Close stops background revalidation.
func (c *Container) Close() {
	c.store.Close()
}
