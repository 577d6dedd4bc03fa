// Package platform 描述安装目标平台。
package platform

import (
	"fmt"
	"runtime"
	"strings"
)

// Platform 操作系统与处理器架构
type Platform struct {
	Name string `json:"name"`
	Arch string `json:"arch"`
}

// families 平台族及其成员
var families = map[string][]string{
	"unix":    {"linux", "darwin", "freebsd", "openbsd", "netbsd", "dragonfly", "solaris", "illumos", "aix"},
	"linux":   {"linux"},
	"windows": {"windows"},
	"mac":     {"darwin"},
	"darwin":  {"darwin"},
	"freebsd": {"freebsd"},
}

// Current 返回当前运行平台
func Current() Platform {
	return Platform{Name: runtime.GOOS, Arch: runtime.GOARCH}
}

// Parse 解析 "os" 或 "os/arch" 形式的平台描述
func Parse(s string) (Platform, error) {
	name, arch, _ := strings.Cut(strings.TrimSpace(s), "/")
	if name == "" {
		return Platform{}, fmt.Errorf("invalid platform %q", s)
	}
	return Platform{Name: strings.ToLower(name), Arch: strings.ToLower(arch)}, nil
}

// IsA 判断平台是否属于给定平台族（如 unix、windows、mac）或就是该系统
func (p Platform) IsA(family string) bool {
	family = strings.ToLower(family)
	if family == p.Name {
		return true
	}
	for _, member := range families[family] {
		if member == p.Name {
			return true
		}
	}
	return false
}

// IsWindows 是否为 Windows 平台
func (p Platform) IsWindows() bool { return p.IsA("windows") }

func (p Platform) String() string {
	if p.Arch == "" {
		return p.Name
	}
	return p.Name + "/" + p.Arch
}
