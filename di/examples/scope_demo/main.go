package main

import (
	"fmt"

	"github.com/gocrud/installkit/di"
	"github.com/gocrud/installkit/logging"
)

// Session 在每个子容器中各创建一次
type Session struct {
	ID int
}

func (s *Session) Close() error {
	fmt.Printf("session %d closed\n", s.ID)
	return nil
}

// Settings 只在根容器注册，子容器通过父链查找
type Settings struct {
	Locale string
}

func main() {
	logger := logging.NewLogger()
	root := di.NewContainer(di.WithName("installer"), di.WithLogger(logger))
	defer root.Dispose()

	_ = di.Add[*Settings](root, &Settings{Locale: "zh_CN"})

	next := 0
	newSession := func() *Session {
		next++
		return &Session{ID: next}
	}

	panels, _ := root.CreateChildContainer()
	rules, _ := root.CreateChildContainer()
	_ = di.Add[*Session](panels, newSession)
	_ = di.Add[*Session](rules, newSession)

	a := di.MustResolve[*Session](panels)
	b := di.MustResolve[*Session](panels)
	c := di.MustResolve[*Session](rules)
	fmt.Println("same scope, same instance:", a == b)
	fmt.Println("different scope, different instance:", a != c)

	// 子容器回退到父容器
	fmt.Println("locale from child:", di.MustResolve[*Settings](rules).Locale)

	// 断开后，根容器释放不会影响它
	root.RemoveChildContainer(rules)
	root.Dispose()
	fmt.Println("rules session still alive:", di.MustResolve[*Session](rules).ID)
	rules.Dispose()
}
