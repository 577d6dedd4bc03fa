package rules

import (
	"fmt"

	"github.com/gocrud/installkit/document"
)

// RefCondition 另一个条件的别名
type RefCondition struct {
	Base
	RefID string `json:"refid"`
}

func (c *RefCondition) ReadFrom(el *document.Element, _ Parser) (err error) {
	c.RefID, err = requireParam(el, "refid")
	return err
}

func (c *RefCondition) IsTrue(env Env) bool { return env.IsTrue(c.RefID) }

func (c *RefCondition) Dependencies() Dependencies {
	return Dependencies{Conditions: []string{c.RefID}}
}

// NotCondition 取反
type NotCondition struct {
	Base
	Operand string `json:"operand"`
}

func (c *NotCondition) ReadFrom(el *document.Element, p Parser) error {
	operands, err := readOperands(c, el, p)
	if err != nil {
		return err
	}
	if len(operands) != 1 {
		return fmt.Errorf("not expects exactly one operand, got %d", len(operands))
	}
	c.Operand = operands[0]
	return nil
}

func (c *NotCondition) IsTrue(env Env) bool { return !env.IsTrue(c.Operand) }

func (c *NotCondition) Dependencies() Dependencies {
	return Dependencies{Conditions: []string{c.Operand}}
}

// AndCondition 所有操作数为真；遇到第一个假值即停止
type AndCondition struct {
	Base
	Operands []string `json:"operands"`
}

func (c *AndCondition) ReadFrom(el *document.Element, p Parser) (err error) {
	c.Operands, err = readAtLeast(c, el, p, 1)
	return err
}

func (c *AndCondition) IsTrue(env Env) bool {
	for _, id := range c.Operands {
		if !env.IsTrue(id) {
			return false
		}
	}
	return len(c.Operands) > 0
}

// Dependencies 包含全部操作数，短路未求值的也在其中
func (c *AndCondition) Dependencies() Dependencies {
	return Dependencies{Conditions: c.Operands}
}

// OrCondition 任一操作数为真；遇到第一个真值即停止
type OrCondition struct {
	Base
	Operands []string `json:"operands"`
}

func (c *OrCondition) ReadFrom(el *document.Element, p Parser) (err error) {
	c.Operands, err = readAtLeast(c, el, p, 1)
	return err
}

func (c *OrCondition) IsTrue(env Env) bool {
	for _, id := range c.Operands {
		if env.IsTrue(id) {
			return true
		}
	}
	return false
}

func (c *OrCondition) Dependencies() Dependencies {
	return Dependencies{Conditions: c.Operands}
}

// XorCondition 奇数个操作数为真
type XorCondition struct {
	Base
	Operands []string `json:"operands"`
}

func (c *XorCondition) ReadFrom(el *document.Element, p Parser) (err error) {
	c.Operands, err = readAtLeast(c, el, p, 2)
	return err
}

func (c *XorCondition) IsTrue(env Env) bool {
	result := false
	for _, id := range c.Operands {
		if env.IsTrue(id) {
			result = !result
		}
	}
	return result
}

func (c *XorCondition) Dependencies() Dependencies {
	return Dependencies{Conditions: c.Operands}
}

func readAtLeast(c Condition, el *document.Element, p Parser, n int) ([]string, error) {
	operands, err := readOperands(c, el, p)
	if err != nil {
		return nil, err
	}
	if len(operands) < n {
		return nil, fmt.Errorf("expects at least %d operands, got %d", n, len(operands))
	}
	return operands, nil
}
