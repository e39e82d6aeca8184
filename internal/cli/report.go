// Package cli provides command-line interface utilities.
package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/ZacharyZcR/rpe/internal/pe"
	"github.com/fatih/color"
)

// Reporter formats and prints image analysis results.
type Reporter struct {
	info           *pe.Info
	out            io.Writer
	verbose        bool
	suspiciousOnly bool
}

// NewReporter creates a new reporter for the given image info.
func NewReporter(info *pe.Info) *Reporter {
	return &Reporter{info: info, out: color.Output}
}

// SetOutput redirects the report; it defaults to the colored stdout.
func (r *Reporter) SetOutput(w io.Writer) {
	r.out = w
}

// SetVerbose enables verbose mode (show all functions).
func (r *Reporter) SetVerbose(verbose bool) {
	r.verbose = verbose
}

// SetSuspiciousOnly enables suspicious-only mode (show RWX sections only).
func (r *Reporter) SetSuspiciousOnly(suspicious bool) {
	r.suspiciousOnly = suspicious
}

// Print outputs the complete analysis report.
func (r *Reporter) Print() {
	r.printHeader()
	r.printBasicInfo()
	r.printSections()
	r.printImports()
	r.printExports()
	r.printTLS()
	r.printRelocations()
	r.printWarnings()
}

func (r *Reporter) printHeader() {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintln(r.out, "\n╔════════════════════════════════════════╗")
	cyan.Fprintln(r.out, "║            RPE 内存镜像报告            ║")
	cyan.Fprintln(r.out, "╚════════════════════════════════════════╝")
}

func (r *Reporter) printBasicInfo() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintln(r.out, "\n【基本信息】")

	if r.info.Source != "" {
		fmt.Fprintf(r.out, "  %-20s: %s\n", "来源", r.info.Source)
	}
	fmt.Fprintf(r.out, "  %-20s: 0x%X\n", "加载基址", r.info.Base)
	fmt.Fprintf(r.out, "  %-20s: %s (%s)\n", "位数", r.info.Bitness, r.info.Mode)
	fmt.Fprintf(r.out, "  %-20s: %s\n", "架构", r.info.Architecture)
	fmt.Fprintf(r.out, "  %-20s: %s\n", "子系统", r.info.Subsystem)
	fmt.Fprintf(r.out, "  %-20s: 0x%X\n", "入口点", r.info.EntryPoint)
	fmt.Fprintf(r.out, "  %-20s: 0x%X\n", "镜像基址", r.info.ImageBase)
	fmt.Fprintf(r.out, "  %-20s: %s\n", "镜像大小", formatSize(int64(r.info.SizeOfImage)))

	// The preferred base differs once the loader relocated the image.
	if r.info.ImageBase != 0 && r.info.ImageBase != r.info.Base {
		gray := color.New(color.FgHiBlack)
		gray.Fprintf(r.out, "  %-20s: 已重定位 (偏移 %+d)\n", "重定位", int64(r.info.Base-r.info.ImageBase))
	}

	if r.info.ExportName != "" {
		fmt.Fprintf(r.out, "  %-20s: %s\n", "模块名", r.info.ExportName)
	}
}

func (r *Reporter) printSections() {
	sections := r.info.Sections

	// Filter suspicious sections if flag is set
	if r.suspiciousOnly {
		var suspicious []pe.SectionInfo
		for _, s := range sections {
			if s.Permissions == "RWX" {
				suspicious = append(suspicious, s)
			}
		}
		sections = suspicious
	}

	yellow := color.New(color.FgYellow, color.Bold)
	if r.suspiciousOnly {
		yellow.Fprintf(r.out, "\n【可疑节区】(共 %d 个)\n", len(sections))
	} else {
		yellow.Fprintf(r.out, "\n【节区信息】(共 %d 个)\n", len(sections))
	}

	if len(sections) == 0 {
		if r.suspiciousOnly {
			fmt.Fprintln(r.out, "  未发现可疑节区")
		} else {
			fmt.Fprintln(r.out, "  未发现节区")
		}
		return
	}

	fmt.Fprintln(r.out, strings.Repeat("-", 100))
	fmt.Fprintf(r.out, "  %-10s %-20s %-12s %-12s %-8s %-8s %-12s\n",
		"名称", "起始地址", "虚拟地址", "虚拟大小", "权限", "熵", "特征")
	fmt.Fprintln(r.out, strings.Repeat("-", 100))

	for _, section := range sections {
		// Highlight dangerous permissions (RWX)
		permColor := color.New(color.FgWhite)
		if section.Permissions == "RWX" {
			permColor = color.New(color.FgRed, color.Bold)
		} else if strings.Contains(section.Permissions, "X") {
			permColor = color.New(color.FgYellow)
		}

		fmt.Fprintf(r.out, "  %-10s 0x%-18X 0x%08X   %-12s ",
			section.Name,
			section.Start,
			section.VirtualAddress,
			formatSize(int64(section.VirtualSize)),
		)
		permColor.Fprintf(r.out, "%-8s", section.Permissions)

		// Packed or encrypted data sits close to 8.
		entropyColor := color.New(color.FgWhite)
		if section.Entropy > 7.0 {
			entropyColor = color.New(color.FgRed)
		}
		entropyColor.Fprintf(r.out, " %-8.2f", section.Entropy)
		fmt.Fprintf(r.out, " 0x%08X\n", section.Characteristics)
	}
	fmt.Fprintln(r.out, strings.Repeat("-", 100))
}

func (r *Reporter) printImports() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(r.out, "\n【导入表】(共 %d 个DLL)\n", len(r.info.Imports))

	if len(r.info.Imports) == 0 {
		fmt.Fprintln(r.out, "  未发现导入")
		return
	}

	for i, imp := range r.info.Imports {
		green := color.New(color.FgGreen)
		funcCount := len(imp.Functions)
		green.Fprintf(r.out, "  %3d. %s (%d 个函数)\n", i+1, imp.DLL, funcCount)

		maxDisplay := 10
		if r.verbose {
			maxDisplay = funcCount // Show all in verbose mode
		}

		displayCount := funcCount
		if displayCount > maxDisplay {
			displayCount = maxDisplay
		}

		for j := 0; j < displayCount; j++ {
			fn := imp.Functions[j]
			if r.verbose {
				fmt.Fprintf(r.out, "       - %-40s IAT 0x%X -> 0x%X\n", fn, fn.Addr, fn.NonHookValue)
			} else {
				fmt.Fprintf(r.out, "       - %s\n", fn)
			}
		}

		if funcCount > maxDisplay {
			gray := color.New(color.FgHiBlack)
			gray.Fprintf(r.out, "       ... (还有 %d 个函数)\n", funcCount-maxDisplay)
		}
	}
	fmt.Fprintln(r.out)
}

func (r *Reporter) printExports() {
	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(r.out, "\n【导出表】(共 %d 个函数)\n", len(r.info.Exports))

	if len(r.info.Exports) == 0 {
		fmt.Fprintln(r.out, "  未发现导出")
		return
	}

	maxDisplay := 20
	if r.verbose {
		maxDisplay = len(r.info.Exports) // Show all in verbose mode
	}

	displayCount := len(r.info.Exports)
	if displayCount > maxDisplay {
		displayCount = maxDisplay
	}

	for i := 0; i < displayCount; i++ {
		exp := r.info.Exports[i]
		c := color.New(color.FgGreen)
		if exp.IsForwarder() {
			c = color.New(color.FgCyan)
		}
		c.Fprintf(r.out, "  %3d. [%d] %s\n", i+1, exp.Ordinal, exp)
	}

	if len(r.info.Exports) > maxDisplay {
		gray := color.New(color.FgHiBlack)
		gray.Fprintf(r.out, "  ... (还有 %d 个函数)\n", len(r.info.Exports)-maxDisplay)
	}
	fmt.Fprintln(r.out)
}

func (r *Reporter) printTLS() {
	tls := r.info.TLS
	if tls == nil || !tls.HasTLS {
		return
	}

	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(r.out, "\n【TLS】(共 %d 个回调)\n", len(tls.Callbacks))
	fmt.Fprintf(r.out, "  %-20s: 0x%X - 0x%X\n", "原始数据", tls.StartAddressOfRawData, tls.EndAddressOfRawData)
	fmt.Fprintf(r.out, "  %-20s: 0x%X\n", "索引地址", tls.AddressOfIndex)

	// Callbacks run before the entry point.
	red := color.New(color.FgRed)
	for i, cb := range tls.Callbacks {
		red.Fprintf(r.out, "  %3d. 0x%X\n", i+1, cb)
	}
}

func (r *Reporter) printRelocations() {
	relocs := r.info.Relocations
	if relocs == nil || !relocs.HasRelocations {
		return
	}

	yellow := color.New(color.FgYellow, color.Bold)
	yellow.Fprintf(r.out, "\n【重定位】(共 %d 个块, %d 项)\n", relocs.BlockCount, relocs.TotalEntries)

	types := make([]uint16, 0, len(relocs.Types))
	for t := range relocs.Types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		fmt.Fprintf(r.out, "  %-20s: %d\n", pe.GetRelocationTypeName(t), relocs.Types[t])
	}
	fmt.Fprintln(r.out)
}

func (r *Reporter) printWarnings() {
	if len(r.info.Warnings) == 0 {
		return
	}

	red := color.New(color.FgRed, color.Bold)
	red.Fprintf(r.out, "\n【警告】(共 %d 条)\n", len(r.info.Warnings))
	for _, w := range r.info.Warnings {
		fmt.Fprintf(r.out, "  - %s\n", w)
	}
	fmt.Fprintln(r.out)
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
