package variables

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/installkit/config"
)

func TestSetGetDelete(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("X")
	assert.False(t, ok)

	s.Set("X", "1")
	v, ok := s.Get("X")
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, "", s.Value("Y"))

	assert.True(t, s.Delete("X"))
	assert.False(t, s.Delete("X"))
	assert.Empty(t, s.Names())
}

func TestOnChangeOnlyFiresOnActualChange(t *testing.T) {
	s := NewStore()
	var changes []Change
	unsubscribe := s.OnChange(func(c Change) { changes = append(changes, c) })

	s.Set("X", "1")
	s.Set("X", "1")
	s.Set("X", "2")
	s.Delete("X")
	s.Delete("X")

	require.Len(t, changes, 3)
	assert.Equal(t, Change{Name: "X", New: "1"}, changes[0])
	assert.Equal(t, Change{Name: "X", Old: "1", New: "2", Existed: true}, changes[1])
	assert.Equal(t, Change{Name: "X", Old: "2", Existed: true, Deleted: true}, changes[2])

	unsubscribe()
	unsubscribe()
	s.Set("X", "3")
	assert.Len(t, changes, 3)
}

func TestListenerRunsOutsideLock(t *testing.T) {
	s := NewStore()
	var seen string
	s.OnChange(func(c Change) {
		// 监听器中读写不会死锁
		seen = s.Value(c.Name)
		if c.Name == "A" {
			s.Set("B", "from-listener")
		}
	})

	s.Set("A", "1")
	assert.Equal(t, "from-listener", seen)
	assert.Equal(t, "from-listener", s.Value("B"))
}

func TestSetAll(t *testing.T) {
	s := NewStore()
	s.Set("A", "1")

	var names []string
	s.OnChange(func(c Change) {
		// 通知时所有写入都已可见
		assert.Equal(t, "2", s.Value("B"))
		names = append(names, c.Name)
	})

	s.SetAll(map[string]string{"A": "1", "B": "2", "C": "3"})
	assert.Equal(t, []string{"B", "C"}, names)
	assert.Equal(t, []string{"A", "B", "C"}, s.Names())

	snapshot := s.Snapshot()
	snapshot["A"] = "changed"
	assert.Equal(t, "1", s.Value("A"))
}

func TestSubstitute(t *testing.T) {
	s := NewStore()
	s.SetAll(map[string]string{
		"INSTALL_PATH": "/opt/app",
		"app.version":  "1.2",
	})

	assert.Equal(t, "/opt/app/bin", s.Substitute("$INSTALL_PATH/bin"))
	assert.Equal(t, "Install to /opt/app.", s.Substitute("Install to $INSTALL_PATH."))
	assert.Equal(t, "v1.2", s.Substitute("v${app.version}"))
	assert.Equal(t, "$MISSING ${missing}", s.Substitute("$MISSING ${missing}"))
	assert.Equal(t, "cost $5 and $", s.Substitute("cost $$5 and $"))
	assert.Equal(t, "${unterminated", s.Substitute("${unterminated"))
	assert.Equal(t, "plain", s.Substitute("plain"))
}

func TestExpandReportsReferencedNames(t *testing.T) {
	var seen []string
	out := Expand("${MODE}-$ARCH-$$-${missing}", func(name string) (string, bool) {
		seen = append(seen, name)
		switch name {
		case "MODE":
			return "full", true
		case "ARCH":
			return "amd64", true
		}
		return "", false
	})

	assert.Equal(t, "full-amd64-$-${missing}", out)
	assert.Equal(t, []string{"MODE", "ARCH", "missing"}, seen)
}

func TestLoadFrom(t *testing.T) {
	cfg, err := config.NewConfigurationBuilder().
		AddInMemory(map[string]any{
			"variables": map[string]any{
				"INSTALL_PATH": "/opt/app",
				"app":          map[string]any{"version": "1.2", "port": 8080},
			},
		}).
		Build()
	require.NoError(t, err)

	s := NewStore()
	s.LoadFrom(cfg, "variables")

	assert.Equal(t, "/opt/app", s.Value("INSTALL_PATH"))
	assert.Equal(t, "1.2", s.Value("app.version"))
	assert.Equal(t, "8080", s.Value("app.port"))
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()
	s.OnChange(func(Change) {})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.Set("X", "1")
			s.Set("X", "2")
		}()
		go func() {
			defer wg.Done()
			s.Value("X")
			s.Snapshot()
		}()
	}
	wg.Wait()
	assert.Contains(t, []string{"1", "2"}, s.Value("X"))
}
