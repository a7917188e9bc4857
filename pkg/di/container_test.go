package di

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/goliatone/go-todo-sync/cache"
	"github.com/goliatone/go-todo-sync/listsync"
	"github.com/goliatone/go-todo-sync/remote/remotetest"
)

func TestNewContainer(t *testing.T) {
	config := DefaultConfig()
	config.Cache = cache.Config{
		Capacity:           1000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EarlyRefresh: &cache.EarlyRefreshConfig{
			MinAsyncRefreshTime: 10 * time.Second,
			MaxAsyncRefreshTime: 20 * time.Second,
			SyncRefreshTime:     30 * time.Second,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
		EvictionInterval:     0,
	}

	container, err := NewContainer(config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	t.Cleanup(container.Close)

	// Verify that dependencies are properly initialized
	if container.CacheService() == nil {
		t.Error("Container should have a non-nil cache service")
	}
	if container.KeySerializer() == nil {
		t.Error("Container should have a non-nil key serializer")
	}
	if container.Client() == nil {
		t.Error("Container should have a non-nil remote client")
	}
	if container.Store() == nil {
		t.Error("Container should have a non-nil page store")
	}

	// Verify config is stored correctly
	storedConfig := container.Config()
	if storedConfig.Cache.Capacity != config.Cache.Capacity {
		t.Errorf("Expected capacity %d, got %d", config.Cache.Capacity, storedConfig.Cache.Capacity)
	}
	if storedConfig.Remote.BaseURL != config.Remote.BaseURL {
		t.Errorf("Expected base URL %q, got %q", config.Remote.BaseURL, storedConfig.Remote.BaseURL)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	t.Cleanup(container.Close)

	config := container.Config()
	if config.Sync.PageSize != listsync.DefaultPageSize {
		t.Errorf("Expected default page size %d, got %d", listsync.DefaultPageSize, config.Sync.PageSize)
	}
	if config.Sync.SearchDebounce != 500*time.Millisecond || config.Sync.MirrorDelay != 250*time.Millisecond {
		t.Errorf("unexpected default delays %v / %v", config.Sync.SearchDebounce, config.Sync.MirrorDelay)
	}
	if !config.Store.RevalidateOnHit {
		t.Error("Expected revalidate on hit by default")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero capacity", mutate: func(c *Config) { c.Cache.Capacity = 0 }},
		{name: "relative base url", mutate: func(c *Config) { c.Remote.BaseURL = "api/todos" }},
		{name: "zero timeout", mutate: func(c *Config) { c.Remote.Timeout = 0 }},
		{name: "empty namespace", mutate: func(c *Config) { c.Store.Namespace = "" }},
		{name: "negative store timeout", mutate: func(c *Config) { c.Store.Timeout = -time.Second }},
		{name: "page size too large", mutate: func(c *Config) { c.Sync.PageSize = 500 }},
		{name: "negative debounce", mutate: func(c *Config) { c.Sync.SearchDebounce = -time.Millisecond }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config := DefaultConfig()
			tc.mutate(&config)

			if _, err := NewContainer(config); err == nil {
				t.Error("NewContainer() should fail with invalid config")
			}
		})
	}
}

func TestContainerSingletonBehavior(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	t.Cleanup(container.Close)

	// Call getters multiple times to ensure they return the same instances
	if container.CacheService() != container.CacheService() {
		t.Error("CacheService() should return the same instance (singleton behavior)")
	}
	if container.KeySerializer() != container.KeySerializer() {
		t.Error("KeySerializer() should return the same instance (singleton behavior)")
	}
	if container.Store() != container.Store() {
		t.Error("Store() should return the same instance (singleton behavior)")
	}
}

func TestKeySerializerIntegration(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	t.Cleanup(container.Close)

	keySerializer := container.KeySerializer()

	testCases := []struct {
		name      string
		namespace string
		args      []any
		expected  string
	}{
		{
			name:      "no args",
			namespace: "todos",
			args:      []any{},
			expected:  "todos",
		},
		{
			name:      "locator",
			namespace: "todos",
			args:      []any{"/api/todos?sort=createdAt%3Adesc"},
			expected:  "todos::/api/todos?sort=createdAt%3Adesc",
		},
		{
			name:      "multiple args",
			namespace: "stub_list",
			args:      []any{"milk", 10, true},
			expected:  "stub_list::milk::10::true",
		},
		{
			name:      "url values",
			namespace: "todos",
			args:      []any{url.Values{"b": {"2"}, "a": {"1"}}},
			expected:  "todos::a=1&b=2",
		},
		{
			name:      "nil arg",
			namespace: "todos",
			args:      []any{nil},
			expected:  "todos::nil",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := keySerializer.SerializeKey(tc.namespace, tc.args...)
			if result != tc.expected {
				t.Errorf("Expected key %q, got %q", tc.expected, result)
			}
		})
	}
}

func TestCacheServiceIntegration(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	t.Cleanup(container.Close)

	cacheService := container.CacheService()
	ctx := context.Background()

	key := "test-key"
	expectedValue := "test-value"

	result, err := cacheService.GetOrFetch(ctx, key, func(ctx context.Context) (any, error) {
		return expectedValue, nil
	})
	if err != nil {
		t.Fatalf("GetOrFetch() failed: %v", err)
	}
	if result != expectedValue {
		t.Errorf("Expected value %q, got %q", expectedValue, result)
	}

	if err := cacheService.Delete(ctx, key); err != nil {
		t.Errorf("Delete() failed: %v", err)
	}
}

func TestWithRemoteClient(t *testing.T) {
	fake := remotetest.NewFakeClient()
	fake.Seed("Buy milk", "Walk the dog")

	container, err := NewContainerWithDefaults(WithRemoteClient(fake))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}
	t.Cleanup(container.Close)

	if container.Client() != fake {
		t.Fatal("expected the injected remote client")
	}

	engine, err := container.NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	t.Cleanup(engine.Close)

	engine.Start()
	engine.Wait()

	st := engine.State()
	if len(st.Items) != 2 || st.Items[0].Title != "Walk the dog" {
		t.Fatalf("unexpected items %+v", st.Items)
	}
	if fake.CallCount("List") != 1 {
		t.Errorf("expected one list call, got %d", fake.CallCount("List"))
	}
}
