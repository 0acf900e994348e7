// switchctl 光开关命令行工具
//
// 用法:
//
//	switchctl [flags] scan-all
//	switchctl [flags] scan-one N
//	switchctl [flags] scan-range A B
//	switchctl [flags] scan-one-cont N
//	switchctl [flags] scan-range-cont A B [duration]
//	switchctl [flags] scan-all-cont [duration]
//	switchctl [flags] debug
//	switchctl [flags] camera-delay BEFORE AFTER
//	switchctl [flags] demo
//	switchctl -list
//	switchctl hash-password PASSWORD
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/wfunc/optical-switch/internal/config"
	"github.com/wfunc/optical-switch/internal/errors"
	"github.com/wfunc/optical-switch/internal/hardware"
	"github.com/wfunc/optical-switch/internal/logger"
	"github.com/wfunc/optical-switch/internal/service"
	"github.com/wfunc/optical-switch/internal/utils"
)

// demoPause 演示步骤之间的停顿
var demoPause = 2 * time.Second

func main() {
	var (
		configPath = flag.String("config", "", "配置文件路径")
		port       = flag.String("port", "", "串口设备，覆盖配置")
		baud       = flag.Int("baud", 0, "波特率，覆盖配置")
		parity     = flag.String("parity", "", "校验位 N/O/E，覆盖配置")
		stopBits   = flag.Int("stop-bits", 0, "停止位 1/2，覆盖配置")
		mock       = flag.Bool("mock", false, "使用模拟固件")
		list       = flag.Bool("list", false, "列出串口设备")
	)
	flag.Usage = usage
	flag.Parse()

	if *list {
		if err := listPorts(); err != nil {
			fail(err)
		}
		return
	}
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	if flag.Arg(0) == "hash-password" {
		if err := hashPassword(flag.Args()[1:]); err != nil {
			fail(err)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail(errors.Wrap(err, errors.ErrConfigLoad))
	}
	applyOverrides(&cfg.Serial, *port, *baud, *parity, *stopBits, *mock)
	cfg.Log.Output = "stdout"
	if err := logger.Init(&cfg.Log); err != nil {
		fail(err)
	}
	defer logger.Cleanup()

	sp, err := hardware.Open(hardware.NewSerialConfig(&cfg.Serial))
	if err != nil {
		fail(errors.Wrap(err, errors.ErrSerialPortOpen, cfg.Serial.Port))
	}
	sw := service.NewSwitchService(
		hardware.NewLineConn(sp, cfg.Serial.LineTimeout),
		service.NewSwitchServiceConfig(&cfg.Switch, cfg.Serial.Port),
		nil, nil,
	)
	defer sw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, sw, flag.Arg(0), flag.Args()[1:]); err != nil {
		sw.Close()
		fail(err)
	}
}

// applyOverrides 命令行参数覆盖串口配置
func applyOverrides(c *config.SerialConfig, port string, baud int, parity string, stopBits int, mock bool) {
	if port != "" {
		c.Port = port
	}
	if baud > 0 {
		c.BaudRate = baud
	}
	if parity != "" {
		c.Parity = parity
	}
	if stopBits > 0 {
		c.StopBits = stopBits
	}
	if mock {
		c.MockMode = true
	}
}

// run 执行子命令
func run(ctx context.Context, sw *service.SwitchService, cmd string, args []string) error {
	src := service.SourceCLI

	switch cmd {
	case "scan-all":
		return show(sw.ScanAll(ctx, src))

	case "scan-all-cont":
		d, err := optionalDuration(args, 0)
		if err != nil {
			return err
		}
		return show(sw.ScanAllContinuously(ctx, src, d))

	case "scan-one":
		p, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		return show(sw.ScanOne(ctx, src, p[0]))

	case "scan-one-cont":
		p, err := intArgs(args, 1)
		if err != nil {
			return err
		}
		return show(sw.ScanOneContinuously(ctx, src, p[0]))

	case "scan-range":
		p, err := intArgs(args, 2)
		if err != nil {
			return err
		}
		return show(sw.ScanRange(ctx, src, p[0], p[1]))

	case "scan-range-cont":
		p, err := intArgs(args, 2)
		if err != nil {
			return err
		}
		d, err := optionalDuration(args, 2)
		if err != nil {
			return err
		}
		return show(sw.ScanRangeContinuously(ctx, src, p[0], p[1], d))

	case "debug":
		return show(sw.Debug(ctx, src))

	case "camera-delay":
		p, err := intArgs(args, 2)
		if err != nil {
			return err
		}
		return show(sw.SetCameraDelay(ctx, src, p[0], p[1]))

	case "demo":
		return demo(ctx, sw)
	}

	return errors.Newf(errors.ErrInvalidParam, "未知的子命令: %s", cmd)
}

// demo 依次演示各种扫描方式，最后打印最近一次命令
func demo(ctx context.Context, sw *service.SwitchService) error {
	src := service.SourceCLI
	steps := []func() (*service.CommandResult, error){
		func() (*service.CommandResult, error) { return sw.ScanAll(ctx, src) },
		func() (*service.CommandResult, error) { return sw.ScanRange(ctx, src, 3, 50) },
		func() (*service.CommandResult, error) { return sw.ScanOne(ctx, src, 4) },
		func() (*service.CommandResult, error) { return sw.ScanRangeContinuously(ctx, src, 4, 16, 0) },
	}
	for _, step := range steps {
		if err := show(step()); err != nil {
			return err
		}
		select {
		case <-time.After(demoPause):
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.ErrCanceled)
		}
	}
	fmt.Printf("%q\n", sw.LastCommand())
	return nil
}

// show 打印一次操作的应答
func show(result *service.CommandResult, err error) error {
	if result != nil {
		fmt.Printf("> %s\n", result.Command)
		for _, line := range result.Responses {
			fmt.Println(line)
		}
	}
	return err
}

// intArgs 解析前 n 个整数参数
func intArgs(args []string, n int) ([]int, error) {
	if len(args) < n {
		return nil, errors.Newf(errors.ErrInvalidParam, "需要 %d 个参数", n)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, errors.Wrapf(err, errors.ErrInvalidParam, "参数 %q 不是整数", args[i])
		}
		out[i] = v
	}
	return out, nil
}

// optionalDuration 解析第 i 个可选的时长参数
func optionalDuration(args []string, i int) (time.Duration, error) {
	if len(args) <= i {
		return 0, nil
	}
	d, err := time.ParseDuration(args[i])
	if err != nil {
		return 0, errors.Wrapf(err, errors.ErrInvalidDuration, "无效的时长 %q", args[i])
	}
	return d, nil
}

// hashPassword 生成 security.operators 使用的密码哈希
func hashPassword(args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New(errors.ErrInvalidParam, "用法: switchctl hash-password PASSWORD")
	}
	hash, err := utils.HashPassword(args[0])
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// listPorts 打印系统串口
func listPorts() error {
	ports, err := hardware.ListPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		fmt.Println("未发现串口设备")
		return nil
	}
	for _, p := range ports {
		if p.IsUSB {
			fmt.Printf("%s\tUSB %s:%s %s\n", p.Name, p.VID, p.PID, p.Product)
			continue
		}
		fmt.Println(p.Name)
	}
	return nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "错误: %v\n", err)
	os.Exit(1)
}

func usage() {
	fmt.Fprintf(os.Stderr, `光开关命令行工具

用法: switchctl [flags] <command> [args]

命令:
  scan-all                      扫描全部端口
  scan-all-cont [duration]      持续扫描全部端口
  scan-one N                    扫描端口 N
  scan-one-cont N               持续扫描端口 N
  scan-range A B                扫描端口 A 到 B
  scan-range-cont A B [duration] 持续扫描端口 A 到 B
  debug                         查询固件状态
  camera-delay BEFORE AFTER     设置相机延时
  demo                          演示全部扫描方式
  hash-password PASSWORD        生成操作员密码哈希

参数:
`)
	flag.PrintDefaults()
}
