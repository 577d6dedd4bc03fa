package rules

import "sort"

const (
	white = iota
	gray
	black
)

// findCycle 在 id 图上做三色 DFS，返回第一条循环链（首尾相同），无环返回 nil。
// 遍历顺序按 id 排序，保证报告的链是确定的。
func findCycle(graph map[string][]string) []string {
	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	color := make(map[string]int, len(graph))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = gray
		path = append(path, id)
		for _, dep := range graph[id] {
			switch color[dep] {
			case gray:
				for i, p := range path {
					if p == dep {
						chain := append([]string{}, path[i:]...)
						return append(chain, dep)
					}
				}
			case white:
				if _, ok := graph[dep]; !ok {
					continue
				}
				if chain := visit(dep); chain != nil {
					return chain
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, id := range ids {
		if color[id] == white {
			if chain := visit(id); chain != nil {
				return chain
			}
		}
	}
	return nil
}
