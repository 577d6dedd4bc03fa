package main

import (
	"errors"
	"fmt"

	"github.com/gocrud/installkit/di"
)

type Catalog struct {
	Entries []string
}

type Source interface {
	Read() []string
}

type staticSource []string

func (s staticSource) Read() []string { return s }

// CatalogProvider 先被注入，再调用 Provide
type CatalogProvider struct {
	Source Source `di:""`
}

func (p *CatalogProvider) Provide() (*Catalog, error) {
	return &Catalog{Entries: p.Source.Read()}, nil
}

type Loop struct{}

func main() {
	c := di.NewContainer()
	defer c.Dispose()

	_ = di.Add[Source](c, staticSource{"core", "docs"})
	_ = di.AddProviderType[*Catalog, CatalogProvider](c)

	catalog := di.MustResolve[*Catalog](c)
	fmt.Println("catalog:", catalog.Entries)

	// 工厂通过 Container 参数再次请求自身
	_ = di.Add[*Loop](c, func(view di.Container) (*Loop, error) {
		if _, err := view.Get(di.KeyOf[*Loop]()); err != nil {
			return nil, err
		}
		return &Loop{}, nil
	})
	_, err := c.Get(di.KeyOf[*Loop]())
	fmt.Println("cyclic:", errors.Is(err, di.ErrCyclicDependency), err)
}
