package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestSnapshotStore(t *testing.T) {
	store := newSnapshotStore(nil)
	assert.Empty(t, store.load().data)
	assert.Equal(t, uint64(1), store.load().generation)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.replace(map[string]any{"key": "value"})
		}()
		go func() {
			defer wg.Done()
			_ = store.load().data["key"]
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(51), store.load().generation)
	assert.Equal(t, "value", store.load().data["key"])
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitPath("a:b.c"))
	assert.Equal(t, []string{"a", "b"}, splitPath("a::b"))
	assert.Equal(t, splitPath("a:b.c"), splitPath("a:b.c"))
}

func TestInMemoryConfiguration(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"installer": map[string]any{
				"product": "demo",
				"port":    8080,
				"debug":   "true",
			},
		}).
		AddInMemory(map[string]any{
			"installer": map[string]any{"product": "override"},
		}).
		Build()
	require.NoError(t, err)

	assert.Equal(t, "override", cfg.Get("installer:product"))
	assert.Equal(t, "override", cfg.Get("installer.product"))

	port, err := cfg.GetInt("installer:port")
	require.NoError(t, err)
	assert.Equal(t, 8080, port)

	debug, err := cfg.GetBool("installer:debug")
	require.NoError(t, err)
	assert.True(t, debug)

	assert.Equal(t, "fallback", cfg.GetWithDefault("missing", "fallback"))
	assert.Equal(t, "override", cfg.GetSection("installer").Get("product"))
	assert.Empty(t, cfg.GetSection("missing").GetAll())
}

func TestMergeDoesNotShareSourceMaps(t *testing.T) {
	source := map[string]any{"a": map[string]any{"b": 1}}
	cfg, err := NewConfigurationBuilder().AddInMemory(source).Build()
	require.NoError(t, err)

	all := cfg.GetAll()
	all["a"].(map[string]any)["b"] = 2

	assert.Equal(t, 1, source["a"].(map[string]any)["b"])
	assert.Equal(t, "1", cfg.Get("a:b"))
}

func TestEnvironmentVariables(t *testing.T) {
	t.Setenv("INSTALLKIT_WEB_ADDR", ":9090")
	t.Setenv("INSTALLKIT_WATCH_ENABLED", "true")

	cfg, err := NewConfigurationBuilder().AddEnvironmentVariables("INSTALLKIT_").Build()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Get("web:addr"))
	enabled, err := cfg.GetBool("watch:enabled")
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("APP_VARIABLES_INSTALL_PATH=/opt/demo\nOTHER=1\n"), 0o644))

	cfg, err := NewConfigurationBuilder().AddDotEnv(path, "APP_").Build()
	require.NoError(t, err)
	assert.Equal(t, "/opt/demo", cfg.Get("variables:install:path"))
	assert.Equal(t, "", cfg.Get("other"))

	_, err = NewConfigurationBuilder().AddDotEnv(filepath.Join(dir, "missing.env"), "", true).Build()
	assert.NoError(t, err)
}

func TestBuildCollectsAllSourceErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewConfigurationBuilder().
		AddJsonFile(filepath.Join(dir, "a.json")).
		AddYamlFile(filepath.Join(dir, "b.yaml")).
		AddYamlFile(filepath.Join(dir, "c.yaml"), true).
		Build()

	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

func TestGetConversions(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"n": 3.0, "f": 1.5, "s": "7", "b": "yes", "list": []any{1, 2}}).
		Build()
	require.NoError(t, err)

	n, err := cfg.GetInt("n")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	s, err := cfg.GetInt("s")
	require.NoError(t, err)
	assert.Equal(t, 7, s)

	_, err = cfg.GetInt("f")
	assert.Error(t, err)
	_, err = cfg.GetBool("b")
	assert.Error(t, err)
	_, err = cfg.GetInt("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, "", cfg.Get("n:deeper"))
}

func TestEtcdSourceUnreachable(t *testing.T) {
	_, err := NewConfigurationBuilder().
		AddEtcd(EtcdOptions{
			Endpoints:   []string{"127.0.0.1:1"},
			DialTimeout: 200 * time.Millisecond,
			Timeout:     200 * time.Millisecond,
		}).
		Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Etcd(127.0.0.1:1)")
}

func TestDecodeEtcdValue(t *testing.T) {
	assert.Equal(t, map[string]any{"addr": ":80"}, decodeValue([]byte(`{"addr":":80"}`)))
	assert.Equal(t, map[string]any{"level": "debug"}, decodeValue([]byte("level: debug")))
	assert.Equal(t, float64(3), decodeValue([]byte("3")))
	assert.Equal(t, "plain text", decodeValue([]byte("plain text")))
}

type webSettings struct {
	Addr  string `json:"addr"`
	Debug bool   `json:"debug"`
}

func TestLoad(t *testing.T) {
	cfg, err := NewConfigurationBuilder().
		AddInMemory(map[string]any{"web": map[string]any{"addr": ":8080"}}).
		Build()
	require.NoError(t, err)

	settings, err := Load[webSettings](cfg, "web")
	require.NoError(t, err)
	assert.Equal(t, ":8080", settings.Addr)

	withDefaults, err := LoadOr(cfg, "web", webSettings{Debug: true})
	require.NoError(t, err)
	assert.True(t, withDefaults.Debug)
	assert.Equal(t, ":8080", withDefaults.Addr)

	_, err = Load[webSettings](cfg, "missing")
	assert.Error(t, err)
}

func TestReloadableConfiguration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte("web:\n  addr: \":8080\"\n"), 0o644))

	cfg, err := NewConfigurationBuilder().AddYamlFile(path).BuildReloadable()
	require.NoError(t, err)

	monitor := NewOptionsCache(cfg, "web", webSettings{})
	assert.Equal(t, ":8080", monitor.Value().Addr)
	var changes []string
	monitor.OnChange(func(s webSettings) { changes = append(changes, s.Addr) })

	reloaded := make(chan struct{}, 1)
	cfg.OnReload(func() { reloaded <- struct{}{} })

	require.NoError(t, os.WriteFile(path, []byte("web:\n  addr: \":9090\"\n"), 0o644))
	require.NoError(t, cfg.Reload())
	<-reloaded

	assert.Equal(t, ":9090", cfg.Get("web:addr"))
	assert.Equal(t, ":9090", monitor.Value().Addr)
	assert.Equal(t, uint64(2), cfg.Generation())
	assert.Equal(t, []string{":9090"}, changes)

	// 内容不变的重新加载不触发回调
	require.NoError(t, cfg.Reload())
	<-reloaded
	assert.Equal(t, []string{":9090"}, changes)
	assert.Equal(t, uint64(3), cfg.Generation())

	// 失败时保留旧快照
	require.NoError(t, os.WriteFile(path, []byte("web: [unclosed"), 0o644))
	assert.Error(t, cfg.Reload())
	assert.Equal(t, ":9090", cfg.Get("web:addr"))
	assert.Equal(t, uint64(3), cfg.Generation())
}

func TestReloadableWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"web":{"addr":":8080"}}`), 0o644))

	cfg, err := NewConfigurationBuilder().AddJsonFile(path).BuildReloadable()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, cfg.Watch(ctx, nil, path))

	require.NoError(t, os.WriteFile(path, []byte(`{"web":{"addr":":7070"}}`), 0o644))

	assert.Eventually(t, func() bool {
		return cfg.Get("web:addr") == ":7070"
	}, 5*time.Second, 20*time.Millisecond)
}

func BenchmarkConfigGet(b *testing.B) {
	cfg, _ := NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"server": map[string]any{
				"host": "localhost",
				"port": 8080,
			},
		}).
		BuildReloadable()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg.Get("server:host")
	}
}
