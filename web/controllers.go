package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/installkit/rules"
)

// conditionView 条件的 JSON 表示
type conditionView struct {
	ID           string             `json:"id"`
	Type         string             `json:"type"`
	Value        *bool              `json:"value,omitempty"`
	Dependencies rules.Dependencies `json:"dependencies"`
}

type conditionsController struct {
	engine *rules.Engine
}

func (ctl *conditionsController) MountRoutes(router gin.IRouter) {
	router.GET("/conditions", ctl.list)
	router.GET("/conditions/:id", ctl.get)
	router.GET("/evaluate", ctl.evaluate)
}

// list 列出所有条件；?evaluate=true 时附带当前值
func (ctl *conditionsController) list(c *gin.Context) {
	withValue := c.Query("evaluate") == "true"

	ids := ctl.engine.ConditionIDs()
	out := make([]conditionView, 0, len(ids))
	for _, id := range ids {
		cond, ok := ctl.engine.GetCondition(id)
		if !ok {
			continue
		}
		view := conditionView{ID: id, Type: rules.TypeName(cond), Dependencies: cond.Dependencies()}
		if withValue {
			v := ctl.engine.IsConditionTrue(id)
			view.Value = &v
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, out)
}

func (ctl *conditionsController) get(c *gin.Context) {
	id := c.Param("id")
	cond, ok := ctl.engine.GetCondition(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "condition not found", "id": id})
		return
	}
	v := ctl.engine.IsConditionTrue(id)
	c.JSON(http.StatusOK, conditionView{
		ID:           id,
		Type:         rules.TypeName(cond),
		Value:        &v,
		Dependencies: cond.Dependencies(),
	})
}

// evaluate 求值条件表达式，如 ?expr=a%2Bb
func (ctl *conditionsController) evaluate(c *gin.Context) {
	expr := c.Query("expr")
	if expr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expr is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"expression": expr, "value": ctl.engine.IsConditionTrue(expr)})
}

type variablesController struct {
	engine *rules.Engine
}

type variableBody struct {
	Value *string `json:"value" binding:"required"`
}

func (ctl *variablesController) MountRoutes(router gin.IRouter) {
	router.GET("/variables", ctl.list)
	router.GET("/variables/:name", ctl.get)
	router.PUT("/variables/:name", ctl.set)
	router.DELETE("/variables/:name", ctl.delete)
}

func (ctl *variablesController) list(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.engine.Variables().Snapshot())
}

func (ctl *variablesController) get(c *gin.Context) {
	name := c.Param("name")
	value, ok := ctl.engine.Variables().Get(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "variable not set", "name": name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": name, "value": value})
}

func (ctl *variablesController) set(c *gin.Context) {
	var body variableBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name := c.Param("name")
	ctl.engine.Variables().Set(name, *body.Value)
	c.JSON(http.StatusOK, gin.H{"name": name, "value": *body.Value})
}

func (ctl *variablesController) delete(c *gin.Context) {
	if !ctl.engine.Variables().Delete(c.Param("name")) {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusNoContent)
}
