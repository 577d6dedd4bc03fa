package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/gocrud/installkit/config"
	"github.com/gocrud/installkit/di"
	"github.com/gocrud/installkit/document"
	"github.com/gocrud/installkit/hosting"
	"github.com/gocrud/installkit/logging"
	"github.com/gocrud/installkit/platform"
	"github.com/gocrud/installkit/resources"
	"github.com/gocrud/installkit/rules"
	"github.com/gocrud/installkit/variables"
)

const conditionsXML = `<conditions>
  <condition type="variable" id="is.prod" name="ENV" value="prod"/>
  <condition type="platform" id="on.windows" os="windows"/>
</conditions>`

// envFlag 变量值为 yes 时为真
type envFlag struct {
	rules.Base
	Name string
}

func (c *envFlag) ReadFrom(el *document.Element, _ rules.Parser) error {
	c.Name = el.Attr("name")
	return nil
}

func (c *envFlag) IsTrue(env rules.Env) bool {
	v, _ := env.Variable(c.Name)
	return v == "yes"
}

func (c *envFlag) Dependencies() rules.Dependencies {
	return rules.Dependencies{Variables: []string{c.Name}}
}

func inMemory(data map[string]any) Option {
	return WithConfiguration(func(b *config.ConfigurationBuilder) { b.AddInMemory(data) })
}

func files(entries map[string]string) resources.Store {
	fsys := fstest.MapFS{}
	for name, data := range entries {
		fsys[name] = &fstest.MapFile{Data: []byte(data)}
	}
	return resources.NewFS("test", fsys)
}

func newRuntime(t *testing.T, opts ...Option) *Runtime {
	t.Helper()
	rt, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(rt.Close)
	return rt
}

func TestNewLoadsConditionDocument(t *testing.T) {
	rt := newRuntime(t,
		inMemory(map[string]any{
			"variables": map[string]any{"ENV": "prod"},
			"installer": map[string]any{"platform": "windows/amd64"},
		}),
		WithResourceStore(files(map[string]string{"conditions.xml": conditionsXML})),
	)

	engine, err := rt.Engine()
	require.NoError(t, err)
	assert.Equal(t, []string{"is.prod", "on.windows"}, engine.ConditionIDs())
	assert.True(t, engine.IsConditionTrue("is.prod"))
	assert.True(t, engine.IsConditionTrue("on.windows"))
	assert.Equal(t, "windows", engine.Platform().Name)

	vars, err := rt.Variables()
	require.NoError(t, err)
	assert.Same(t, vars, engine.Variables())

	vars.Set("ENV", "dev")
	assert.False(t, engine.IsConditionTrue("is.prod"))
}

func TestConditionMapTakesPrecedence(t *testing.T) {
	elements := map[string]*document.Element{
		"from.map": document.NewElement("condition").
			SetAttr("type", "variable").
			SetAttr("name", "ENV").
			SetAttr("value", "prod"),
	}
	data, err := resources.EncodeElementMap(elements)
	require.NoError(t, err)

	rt := newRuntime(t,
		WithVariables(map[string]string{"ENV": "prod"}),
		WithResourceStore(files(map[string]string{
			"rules.json":     string(data),
			"conditions.xml": conditionsXML,
		})),
	)

	engine, err := rt.Engine()
	require.NoError(t, err)
	assert.Equal(t, []string{"from.map"}, engine.ConditionIDs())
	assert.True(t, engine.IsConditionTrue("from.map"))
}

func TestEmptyEngineWithoutResources(t *testing.T) {
	rt := newRuntime(t)

	engine, err := rt.Engine()
	require.NoError(t, err)
	assert.Empty(t, engine.ConditionIDs())
	assert.False(t, engine.IsConditionTrue("anything"))
}

func TestMalformedConditionsFailResolution(t *testing.T) {
	rt := newRuntime(t, WithResourceStore(files(map[string]string{
		"conditions.xml": `<conditions><condition type="ref" id="a" refid="missing"/></conditions>`,
	})))

	_, err := rt.Engine()
	require.Error(t, err)
	assert.ErrorIs(t, err, rules.ErrMalformedCondition)
	assert.ErrorIs(t, err, di.ErrResolution)
}

func TestCustomConditionType(t *testing.T) {
	rt := newRuntime(t,
		WithConditionType("envFlag", reflect.TypeOf(envFlag{})),
		WithVariables(map[string]string{"FEATURE": "yes"}),
		WithResourceStore(files(map[string]string{
			"conditions.yaml": "condition:\n  - type: envFlag\n    id: feature.on\n    name: FEATURE\n",
		})),
	)

	engine, err := rt.Engine()
	require.NoError(t, err)
	assert.True(t, engine.IsConditionTrue("feature.on"))

	_, err = New(WithConditionType("bad", reflect.TypeOf(0)))
	assert.ErrorIs(t, err, di.ErrTypeMismatch)
}

func TestVariablesOptionOverridesConfig(t *testing.T) {
	rt := newRuntime(t,
		inMemory(map[string]any{"variables": map[string]any{"A": "config", "B": "config"}}),
		WithVariables(map[string]string{"B": "option"}),
	)

	vars, err := rt.Variables()
	require.NoError(t, err)
	assert.Equal(t, "config", vars.Value("A"))
	assert.Equal(t, "option", vars.Value("B"))
}

func TestInstallDataSetsDriveOnWindows(t *testing.T) {
	rt := newRuntime(t, inMemory(map[string]any{
		"installer": map[string]any{"platform": "windows/amd64"},
	}))

	data, err := rt.InstallData()
	require.NoError(t, err)
	data.SetInstallPath(`C:\Program Files\Demo`)
	assert.Equal(t, `C:\Program Files\Demo`, data.InstallPath())
	assert.Equal(t, "C:", data.Variable(InstallDrive))

	data.SetDefaultInstallPath(`D:\Apps`)
	assert.Equal(t, "D:", data.Variable(DefaultInstallDrive))
	assert.Equal(t, `D:\Apps`, data.DefaultInstallPath())
}

func TestInstallDataWithoutDrive(t *testing.T) {
	vars := variables.NewStore()

	linux := NewInstallData(vars, platform.Platform{Name: "linux", Arch: "amd64"})
	linux.SetInstallPath("/opt/demo")
	_, ok := vars.Get(InstallDrive)
	assert.False(t, ok)

	windows := NewInstallData(vars, platform.Platform{Name: "windows", Arch: "amd64"})
	windows.SetInstallPath(`\\server\share`)
	_, ok = vars.Get(InstallDrive)
	assert.False(t, ok)
}

func TestDatabaseResourcesFromConfig(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	seed, err := resources.NewDatabaseStore(*resources.NewDefaultDatabaseOptions("seed", sqlite.Open(dsn)))
	require.NoError(t, err)
	defer seed.Close()
	require.NoError(t, seed.Put(context.Background(), "conditions.xml", []byte(conditionsXML)))

	rt := newRuntime(t,
		inMemory(map[string]any{
			"resources": map[string]any{"database": map[string]any{"dsn": dsn}},
		}),
		WithVariables(map[string]string{"ENV": "prod"}),
	)

	engine, err := rt.Engine()
	require.NoError(t, err)
	assert.True(t, engine.IsConditionTrue("is.prod"))
}

func TestUnsupportedDatabaseDriver(t *testing.T) {
	rt := newRuntime(t, inMemory(map[string]any{
		"resources": map[string]any{"database": map[string]any{"driver": "oracle"}},
	}))

	_, err := Resolve[*resources.Resources](rt)
	assert.ErrorContains(t, err, "unsupported resource database driver")
}

func TestConfigFileExtension(t *testing.T) {
	_, err := New(WithConfigFile("settings.txt", true))
	assert.Error(t, err)

	rt := newRuntime(t, WithConfigFile("missing.yaml", true))
	assert.NotNil(t, rt.Configuration())
}

func TestStartRunsHostedServices(t *testing.T) {
	var started atomic.Bool
	rt := newRuntime(t,
		WithWatcher(),
		WithWorker(func(ctx context.Context) error {
			started.Store(true)
			<-ctx.Done()
			return ctx.Err()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, rt.Start(ctx))

	assert.Eventually(t, started.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rt.Services.Len())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.NoError(t, rt.Stop(stopCtx))
}

func TestFailingServiceRequestsShutdown(t *testing.T) {
	var reported atomic.Value
	rt := newRuntime(t, WithWorker(func(context.Context) error {
		return errors.New("crashed")
	}))
	rt.ErrorHandler = func(err error) { reported.Store(err) }

	require.NoError(t, rt.Start(context.Background()))
	select {
	case <-rt.Done():
	case <-time.After(time.Second):
		t.Fatal("runtime did not request shutdown")
	}
	require.NotNil(t, reported.Load())
	assert.ErrorContains(t, reported.Load().(error), "crashed")
	assert.NoError(t, rt.Stop(context.Background()))
}

func TestLoggingLevelFollowsConfigReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "installer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: warn\n"), 0o644))

	rt := newRuntime(t, WithConfigFile(path, false))
	factory, err := Resolve[logging.LoggerFactory](rt)
	require.NoError(t, err)
	assert.Equal(t, logging.LogLevelWarn, factory.MinimumLevel())

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))
	require.NoError(t, rt.Configuration().Reload())
	assert.Equal(t, logging.LogLevelDebug, factory.MinimumLevel())
}

func TestBuildTwice(t *testing.T) {
	rt := newRuntime(t)
	assert.Error(t, rt.Build())
}

func TestStartBeforeBuild(t *testing.T) {
	rt := NewRuntime()
	defer rt.Close()
	assert.Error(t, rt.Start(context.Background()))
}

func TestHostedServiceManagerIsRegistered(t *testing.T) {
	rt := newRuntime(t)
	m, err := Resolve[*hosting.HostedServiceManager](rt)
	require.NoError(t, err)
	assert.Same(t, rt.Services, m)
}

func TestLifecycleStopCombinesErrors(t *testing.T) {
	l := NewLifecycle()
	var order []string
	l.OnStop(func(context.Context) error { order = append(order, "first"); return errors.New("a") })
	l.OnStop(func(context.Context) error { order = append(order, "second"); return errors.New("b") })

	err := l.Stop(context.Background())
	assert.ErrorContains(t, err, "a")
	assert.ErrorContains(t, err, "b")
	assert.Equal(t, []string{"second", "first"}, order)
}
