package installer

import (
	"strings"

	"github.com/gocrud/installkit/platform"
	"github.com/gocrud/installkit/variables"
)

// 安装数据使用的变量名
const (
	InstallPath         = "INSTALL_PATH"
	DefaultInstallPath  = "DEFAULT_INSTALL_PATH"
	InstallDrive        = "INSTALL_DRIVE"
	DefaultInstallDrive = "DEFAULT_INSTALL_DRIVE"
)

// InstallData 安装过程共享的数据，值保存在变量存储中，条件可以直接引用
type InstallData struct {
	vars     *variables.Store
	platform platform.Platform
}

// NewInstallData 创建安装数据
func NewInstallData(vars *variables.Store, p platform.Platform) *InstallData {
	return &InstallData{vars: vars, platform: p}
}

func (d *InstallData) Variables() *variables.Store { return d.vars }

func (d *InstallData) Platform() platform.Platform { return d.platform }

func (d *InstallData) Variable(name string) string { return d.vars.Value(name) }

func (d *InstallData) SetVariable(name, value string) { d.vars.Set(name, value) }

func (d *InstallData) InstallPath() string { return d.vars.Value(InstallPath) }

// SetInstallPath 设置安装路径；Windows 上同时设置 INSTALL_DRIVE
func (d *InstallData) SetInstallPath(path string) {
	d.vars.SetAll(d.withDrive(path, InstallPath, InstallDrive))
}

func (d *InstallData) DefaultInstallPath() string { return d.vars.Value(DefaultInstallPath) }

// SetDefaultInstallPath 设置默认安装路径；Windows 上同时设置 DEFAULT_INSTALL_DRIVE
func (d *InstallData) SetDefaultInstallPath(path string) {
	d.vars.SetAll(d.withDrive(path, DefaultInstallPath, DefaultInstallDrive))
}

// withDrive 路径的第一段（冒号之前）只有一个字符时视为盘符
func (d *InstallData) withDrive(path, pathVar, driveVar string) map[string]string {
	values := map[string]string{pathVar: path}
	if d.platform.IsWindows() {
		drive, _, _ := strings.Cut(strings.TrimSpace(path), ":")
		if len(drive) == 1 {
			values[driveVar] = drive + ":"
		}
	}
	return values
}
