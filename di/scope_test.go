package di

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type disposable struct {
	name string
	log  *[]string
	err  error
}

func (d *disposable) Dispose() error {
	*d.log = append(*d.log, d.name)
	return d.err
}

type first struct{ *disposable }
type second struct{ *disposable }

func TestDisposeReleasesConstructedInReverseOrder(t *testing.T) {
	var log []string
	c := NewContainer()
	require.NoError(t, Add[*first](c, func() *first { return &first{&disposable{name: "first", log: &log}} }))
	require.NoError(t, Add[*second](c, func(f *first) *second {
		return &second{&disposable{name: "second", log: &log}}
	}))
	// 值绑定不由容器构造，不会被释放
	require.NoError(t, Add[*closer](c, &closer{name: "value", closed: &log}))

	MustResolve[*second](c)
	MustResolve[*closer](c)

	c.Dispose()
	assert.Equal(t, []string{"second", "first"}, log)
}

func TestDisposeIsIdempotent(t *testing.T) {
	var log []string
	c := NewContainer()
	require.NoError(t, Add[*first](c, func() *first {
		return &first{&disposable{name: "first", log: &log, err: errors.New("already closed")}}
	}))
	MustResolve[*first](c)

	assert.NotPanics(t, c.Dispose)
	assert.NotPanics(t, c.Dispose)
	assert.Equal(t, []string{"first"}, log)
}

func TestOperationsAfterDisposeFail(t *testing.T) {
	c := NewContainer()
	require.NoError(t, Add[*Foo](c, &Foo{}))
	c.Dispose()

	_, err := c.Get(KeyOf[*Foo]())
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, Add[*Foo](c, &Foo{}), ErrDisposed)
	_, err = c.CreateChildContainer()
	assert.ErrorIs(t, err, ErrDisposed)
	assert.False(t, c.HasComponent(KeyOf[*Foo]()))
	assert.ErrorIs(t, c.Verify(), ErrDisposed)
}

func TestDisposeCascadesToChildren(t *testing.T) {
	var log []string
	parent := NewContainer()
	child, err := parent.CreateChildContainer()
	require.NoError(t, err)
	grandchild, err := child.CreateChildContainer()
	require.NoError(t, err)

	require.NoError(t, Add[*first](parent, func() *first { return &first{&disposable{name: "parent", log: &log}} }))
	require.NoError(t, Add[*first](grandchild, func() *first { return &first{&disposable{name: "grandchild", log: &log}} }))
	MustResolve[*first](parent)
	MustResolve[*first](grandchild)

	parent.Dispose()

	assert.Equal(t, []string{"grandchild", "parent"}, log)
	_, err = child.Get(KeyOf[*first]())
	assert.ErrorIs(t, err, ErrDisposed)
}

func TestRemovedChildSurvivesParentDispose(t *testing.T) {
	var log []string
	parent := NewContainer()
	child, err := parent.CreateChildContainer()
	require.NoError(t, err)
	require.NoError(t, Add[*first](child, func() *first { return &first{&disposable{name: "child", log: &log}} }))
	MustResolve[*first](child)

	assert.True(t, parent.RemoveChildContainer(child))
	assert.False(t, parent.RemoveChildContainer(child))

	parent.Dispose()
	assert.Empty(t, log)

	v, err := child.Get(KeyOf[*first]())
	require.NoError(t, err)
	assert.NotNil(t, v)

	child.Dispose()
	assert.Equal(t, []string{"child"}, log)
}

func TestChildDisposeDetachesFromParent(t *testing.T) {
	parent := NewContainer()
	child, err := parent.CreateChildContainer()
	require.NoError(t, err)

	child.Dispose()
	assert.Empty(t, scopeOf(parent).children)
	assert.Nil(t, child.Parent())
}

func TestDisposeClosesClosers(t *testing.T) {
	var log []string
	c := NewContainer()
	require.NoError(t, Add[*closer](c, func() *closer { return &closer{name: "closer", closed: &log} }))
	MustResolve[*closer](c)

	c.Dispose()
	assert.Equal(t, []string{"closer"}, log)
}

type Condition interface {
	Evaluate() bool
}

type alwaysTrue struct {
	Foo *Foo `di:"?"`
}

func (alwaysTrue) Evaluate() bool { return true }

func TestGetClass(t *testing.T) {
	parent := NewContainer()
	require.NoError(t, RegisterClass[alwaysTrue](parent, "com.example.AlwaysTrue"))
	require.NoError(t, RegisterClass[Foo](parent, "com.example.Foo"))
	child, err := parent.CreateChildContainer()
	require.NoError(t, err)

	typ, err := child.GetClass("com.example.AlwaysTrue", TypeOf[Condition]())
	require.NoError(t, err)
	assert.Equal(t, TypeOf[alwaysTrue](), typ)

	_, err = child.GetClass("com.example.Missing", TypeOf[Condition]())
	assert.ErrorIs(t, err, ErrClassNotFound)

	_, err = child.GetClass("com.example.Foo", TypeOf[Condition]())
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestNewByClassName(t *testing.T) {
	c := NewContainer()
	require.NoError(t, Add[*Foo](c, &Foo{Counter: 9}))
	require.NoError(t, RegisterClass[alwaysTrue](c, "AlwaysTrue"))

	cond, err := New[Condition](c, "AlwaysTrue")
	require.NoError(t, err)
	assert.True(t, cond.Evaluate())
}

func TestDelegatingCreatesBackingOnce(t *testing.T) {
	parent := NewContainer()
	calls := 0
	d := NewDelegating(func() (Container, error) {
		calls++
		return parent.CreateChildContainer()
	})

	_, ok := d.Resolved()
	assert.False(t, ok)
	assert.Equal(t, 0, calls)

	require.NoError(t, Add[*Foo](d, &Foo{Counter: 1}))
	assert.Equal(t, 1, MustResolve[*Foo](d).Counter)
	assert.Same(t, parent, d.Parent())
	assert.Equal(t, 1, calls)

	backing, ok := d.Resolved()
	require.True(t, ok)
	assert.True(t, parent.RemoveChildContainer(d))
	assert.False(t, parent.RemoveChildContainer(backing))
}

func TestDelegatingDisposeWithoutUse(t *testing.T) {
	calls := 0
	d := NewDelegating(func() (Container, error) {
		calls++
		return NewContainer(), nil
	})

	d.Dispose()
	d.Dispose()
	assert.Equal(t, 0, calls)

	_, err := d.Get(KeyOf[*Foo]())
	assert.ErrorIs(t, err, ErrDisposed)
	assert.Equal(t, 0, calls)
}

func TestDelegatingFactoryError(t *testing.T) {
	boom := errors.New("boom")
	d := NewDelegating(func() (Container, error) { return nil, boom })

	_, err := d.Get(KeyOf[*Foo]())
	assert.ErrorIs(t, err, boom)
	assert.False(t, d.HasComponent(KeyOf[*Foo]()))
	assert.NotPanics(t, d.Dispose)
}
