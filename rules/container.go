package rules

import (
	"github.com/gocrud/installkit/di"
)

// ConditionContainer 条件专用的子容器，第一次使用时才从父容器创建。
// 自定义条件由它实例化，可以通过 `di` 标签注入父容器中的组件。
type ConditionContainer struct {
	*di.Delegating
}

// NewConditionContainer 创建条件容器
func NewConditionContainer(parent di.Container) *ConditionContainer {
	return &ConditionContainer{Delegating: di.NewDelegating(parent.CreateChildContainer)}
}
