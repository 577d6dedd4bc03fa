package main

import (
	"fmt"
	"reflect"

	"github.com/gocrud/installkit/di"
)

// 定义接口
type Logger interface {
	Log(msg string)
}

type Unpacker interface {
	Unpack(path string) error
}

// 实现
type ConsoleLogger struct {
	Prefix string
}

func (c *ConsoleLogger) Log(msg string) {
	println(c.Prefix + ": " + msg)
}

type ZipUnpacker struct {
	Logger Logger `di:""`
}

func (z *ZipUnpacker) Unpack(path string) error {
	z.Logger.Log("unpacking " + path)
	return nil
}

// 服务
type InstallService struct {
	Logger   Logger       `di:""`
	Unpacker Unpacker     `di:""`
	Product  string       `di:"product"`
	Tracer   fmt.Stringer `di:"?"` // 可选依赖，未注册时保持 nil
}

func main() {
	c := di.NewContainer()
	defer c.Dispose()

	// 值
	_ = di.Add[Logger](c, &ConsoleLogger{Prefix: "INSTALL"})
	// 实现类型，按需实例化并注入字段
	_ = di.Add[Unpacker](c, reflect.TypeOf(ZipUnpacker{}))
	// 命名值
	_ = di.AddNamed[string](c, "product", "demo-app")
	// 键类型本身作为实现
	_ = di.Add[*InstallService](c, nil)

	svc := di.MustResolve[*InstallService](c)
	svc.Logger.Log("installing " + svc.Product)
	_ = svc.Unpacker.Unpack("/tmp/demo.zip")
	fmt.Println("tracer injected:", svc.Tracer != nil)

	// 未注册的键返回 nil，不是错误
	missing, err := c.GetComponent(di.TypeOf[*ZipUnpacker]())
	fmt.Println("missing:", missing, err)
}
