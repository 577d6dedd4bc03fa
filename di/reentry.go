package di

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
)

// constructions 记录每个 goroutine 上正在进行的构造链。
// 工厂闭包捕获外层容器并直接 Get 时拿不到绑定视图的构造链，
// 这里按 goroutine 补上，使同一 goroutine 的重入解析也能走循环检查，而不是在条目锁上死锁。
var constructions = &activeConstructions{chains: make(map[int64][]frame)}

type activeConstructions struct {
	mu     sync.Mutex
	chains map[int64][]frame
}

// current 返回 goroutine gid 上当前的构造链
func (a *activeConstructions) current(gid int64) []frame {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chains[gid]
}

// push 设置 gid 的构造链，返回恢复上一层的函数。同一 goroutine 上的构造严格嵌套。
func (a *activeConstructions) push(gid int64, chain []frame) (restore func()) {
	a.mu.Lock()
	prev, had := a.chains[gid]
	a.chains[gid] = chain
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		if had {
			a.chains[gid] = prev
		} else {
			delete(a.chains, gid)
		}
		a.mu.Unlock()
	}
}

var goroutinePrefix = []byte("goroutine ")

// goroutineID 从 runtime.Stack 的首行 "goroutine N [...]" 取出 N
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	if i := bytes.IndexByte(b, ' '); i > 0 {
		if id, err := strconv.ParseInt(string(b[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
