// Package main provides the rpe CLI tool.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ZacharyZcR/rpe/internal/cli"
	"github.com/ZacharyZcR/rpe/internal/layout"
	"github.com/ZacharyZcR/rpe/internal/log"
	"github.com/ZacharyZcR/rpe/internal/pe"
	"github.com/fatih/color"
)

// provisionalBase is where a dump is mapped while its preferred base is read.
const provisionalBase = 0x10000

var (
	pid            = flag.Uint("pid", 0, "目标进程ID（默认: 当前进程）")
	baseAddr       = flag.String("base", "", "镜像加载基址（十六进制，例如: 0x7FF612340000）")
	moduleName     = flag.String("module", "", "按模块名查找加载基址（例如: kernel32.dll）")
	dumpPath       = flag.String("dump", "", "内存转储文件路径（已映射的镜像）")
	filePath       = flag.String("file", "", "PE文件路径（按加载器方式映射后解析）")
	bits           = flag.Int("bits", 0, "强制镜像位数 32 或 64（默认: 自动检测）")
	verbose        = flag.Bool("v", false, "详细模式：显示所有导入/导出函数及IAT槽位")
	suspiciousOnly = flag.Bool("s", false, "仅显示可疑节区（RWX权限）")
	validate       = flag.Bool("validate", true, "解析前校验MZ/PE签名")
	debug          = flag.Bool("debug", false, "输出调试日志")
)

func main() {
	flag.Usage = printUsage
	flag.Parse()

	log.SetConsole(color.NoColor)
	if *debug {
		log.SetLevelDebug()
	}

	if err := run(); err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\n错误: %v\n\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := imageOptions()
	if err != nil {
		return err
	}

	reader, err := openReader(opts)
	if err != nil {
		return err
	}
	defer func() { _ = reader.Close() }()

	if *validate {
		if err := reader.Image().Validate(); err != nil {
			return err
		}
	}

	info, err := pe.NewReaderAnalyzer(reader).Analyze()
	if err != nil {
		return err
	}

	reporter := cli.NewReporter(info)
	reporter.SetVerbose(*verbose)
	reporter.SetSuspiciousOnly(*suspiciousOnly)
	reporter.Print()
	return nil
}

// imageOptions always hands the shared logger over: warnings reach stderr
// at the default level, debug events only with -debug.
func imageOptions() ([]pe.Option, error) {
	opts := []pe.Option{pe.WithLogger(log.Log)}
	if *bits != 0 {
		b, err := parseBitness(*bits)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pe.WithBitness(b))
	}
	return opts, nil
}

// openReader picks the address space from the flags: a PE file, a dump,
// another process, or the current one.
func openReader(opts []pe.Option) (*pe.Reader, error) {
	if *filePath != "" {
		log.Log.Debug().Str("path", *filePath).Msg("mapping file")
		return pe.OpenFile(*filePath, opts...)
	}
	if *dumpPath != "" {
		base, err := resolveDumpBase(*dumpPath, *baseAddr, opts)
		if err != nil {
			return nil, err
		}
		log.Log.Debug().Str("path", *dumpPath).Uint64("base", base).Msg("opening dump")
		return pe.OpenDump(*dumpPath, base, opts...)
	}

	target := uint32(*pid)
	base, err := resolveBase(target)
	if err != nil {
		return nil, err
	}

	if target == 0 || int(target) == os.Getpid() {
		log.Log.Debug().Uint64("base", base).Msg("opening local image")
		return pe.OpenLocal(base, opts...)
	}
	log.Log.Debug().Uint32("pid", target).Uint64("base", base).Msg("opening process image")
	return pe.OpenProcess(target, base, opts...)
}

func resolveBase(target uint32) (uint64, error) {
	switch {
	case *baseAddr != "" && *moduleName != "":
		return 0, errors.New("-base 与 -module 不能同时指定")
	case *baseAddr != "":
		return parseHexAddress(*baseAddr)
	case *moduleName != "":
		if target == 0 {
			target = uint32(os.Getpid())
		}
		base, err := findModule(target, *moduleName)
		if err != nil {
			return 0, fmt.Errorf("查找模块 %s 失败: %w", *moduleName, err)
		}
		return base, nil
	}
	return 0, errors.New("必须指定 -base 或 -module")
}

// resolveDumpBase returns the base a dump was mapped at. Without -base the
// image's own preferred base is used.
func resolveDumpBase(path, addr string, opts []pe.Option) (uint64, error) {
	if addr != "" {
		return parseHexAddress(addr)
	}

	r, err := pe.OpenDump(path, provisionalBase, opts...)
	if err != nil {
		return 0, err
	}
	defer func() { _ = r.Close() }()

	opt, err := r.Image().OptionalHeader()
	if err != nil {
		return 0, err
	}
	base, err := opt.Uint("ImageBase")
	if err != nil {
		return 0, fmt.Errorf("读取首选基址失败: %w", err)
	}
	if base == 0 {
		return 0, errors.New("镜像首选基址为0，请使用 -base 指定")
	}
	return base, nil
}

func parseHexAddress(addr string) (uint64, error) {
	s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X")
	result, err := strconv.ParseUint(s, 16, 64)
	if err != nil || result == 0 {
		return 0, fmt.Errorf("基址格式错误: %s (应为非零十六进制，例如: 0x400000)", addr)
	}
	return result, nil
}

func parseBitness(n int) (layout.Bitness, error) {
	b := layout.Bitness(n)
	if !b.Valid() {
		return 0, fmt.Errorf("不支持的位数: %d (应为 32 或 64)", n)
	}
	return b, nil
}

func printUsage() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Println("\nRPE - 内存中PE镜像解析工具")

	fmt.Println("\n用法:")
	fmt.Println("  rpe [-pid <进程ID>] (-base <地址> | -module <模块名>) [选项]")
	fmt.Println("  rpe -dump <转储文件> [-base <地址>] [选项]")
	fmt.Println("  rpe -file <PE文件> [选项]")
	fmt.Println("\n选项:")
	fmt.Println("  -pid <ID>        目标进程ID（默认: 当前进程）")
	fmt.Println("  -base <地址>     镜像加载基址（十六进制）")
	fmt.Println("  -module <名称>   按模块名查找加载基址（不区分大小写）")
	fmt.Println("  -dump <路径>     从内存转储文件读取（默认基址: 镜像首选基址）")
	fmt.Println("  -file <路径>     按加载器方式映射PE文件后解析（基址: 镜像首选基址）")
	fmt.Println("  -bits <32|64>    强制镜像位数，跳过Machine字段检测")
	fmt.Println("  -v               详细模式：显示所有导入/导出函数及IAT槽位")
	fmt.Println("  -s               仅显示可疑节区（RWX权限）")
	fmt.Println("  -validate        解析前校验MZ/PE签名（默认: true）")
	fmt.Println("  -debug           输出调试日志")

	fmt.Println("\n示例:")
	fmt.Println("  rpe -module kernel32.dll")
	fmt.Println("  rpe -pid 4242 -module ntdll.dll -v")
	fmt.Println("  rpe -pid 4242 -base 0x7FF612340000")
	fmt.Println("  rpe -dump notepad.bin -base 0x7FF6A0000000")
	fmt.Println("  rpe -file C:\\Windows\\System32\\kernel32.dll -v")
	fmt.Println()
}
