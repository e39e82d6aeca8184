package pe

import (
	"debug/pe"
	"fmt"
	"sort"

	"github.com/ZacharyZcR/rpe/internal/layout"
)

// Info contains analyzed image information.
type Info struct {
	Source       string
	Base         uint64
	Bitness      layout.Bitness
	Mode         layout.Mode
	Architecture string
	Subsystem    string
	EntryPoint   uint64
	ImageBase    uint64
	SizeOfImage  uint32
	ExportName   string
	Sections     []SectionInfo
	Imports      []ImportInfo
	Exports      []Export
	TLS          *TLSInfo
	Relocations  *RelocationInfo
	// Warnings lists optional directories that could not be read.
	Warnings []string
}

// SectionInfo contains information about a mapped section.
type SectionInfo struct {
	Name            string
	Start           uint64
	VirtualAddress  uint32
	VirtualSize     uint32
	Characteristics uint32
	Permissions     string
	Entropy         float64
}

// ImportInfo contains information about imported DLL and functions.
type ImportInfo struct {
	DLL       string
	Functions []ImportEntry
}

// Analyzer extracts information from a mapped image.
type Analyzer struct {
	image  *Image
	source string
}

// NewAnalyzer creates a new analyzer for the given image.
func NewAnalyzer(img *Image) *Analyzer {
	return &Analyzer{image: img}
}

// NewReaderAnalyzer creates an analyzer that also records where r reads from.
func NewReaderAnalyzer(r *Reader) *Analyzer {
	return &Analyzer{image: r.Image(), source: r.Source()}
}

// Analyze extracts all information from the image.
func (a *Analyzer) Analyze() (*Info, error) {
	img := a.image

	info := &Info{
		Source:  a.source,
		Base:    img.Base(),
		Bitness: img.Bitness(),
		Mode:    img.Mode(),
	}

	if err := a.extractBasicInfo(info); err != nil {
		return nil, err
	}
	if err := a.extractSections(info); err != nil {
		return nil, err
	}
	if err := a.extractImports(info); err != nil {
		return nil, err
	}
	if err := a.extractExports(info); err != nil {
		return nil, err
	}
	a.extractDirectories(info)

	return info, nil
}

func (a *Analyzer) extractBasicInfo(info *Info) error {
	fh, err := a.image.FileHeader()
	if err != nil {
		return err
	}
	machine, err := fh.Uint16("Machine")
	if err != nil {
		return fmt.Errorf("读取文件头失败: %w", err)
	}
	info.Architecture = getArchitecture(machine)

	opt, err := a.image.OptionalHeader()
	if err != nil {
		return err
	}
	entry, err := opt.Uint32("AddressOfEntryPoint")
	if err != nil {
		return fmt.Errorf("读取可选头失败: %w", err)
	}
	imageBase, err := opt.Uint("ImageBase")
	if err != nil {
		return fmt.Errorf("读取可选头失败: %w", err)
	}
	sizeOfImage, err := opt.Uint32("SizeOfImage")
	if err != nil {
		return fmt.Errorf("读取可选头失败: %w", err)
	}
	subsystem, err := opt.Uint16("Subsystem")
	if err != nil {
		return fmt.Errorf("读取可选头失败: %w", err)
	}

	if entry != 0 {
		info.EntryPoint = a.image.Base() + uint64(entry)
	}
	info.ImageBase = imageBase
	info.SizeOfImage = sizeOfImage
	info.Subsystem = getSubsystem(subsystem)
	return nil
}

func (a *Analyzer) extractSections(info *Info) error {
	sections, err := a.image.Sections()
	if err != nil {
		return err
	}

	for _, section := range sections {
		entropy, err := CalculateSectionEntropy(a.image.Space(), section)
		if err != nil {
			entropy = 0.0 // Uncommitted pages are common in live images.
		}

		info.Sections = append(info.Sections, SectionInfo{
			Name:            section.String(),
			Start:           section.Start,
			VirtualAddress:  section.VirtualAddress,
			VirtualSize:     section.Size,
			Characteristics: section.Characteristics,
			Permissions:     getSectionPermissions(section.Characteristics),
			Entropy:         entropy,
		})
	}
	return nil
}

func (a *Analyzer) extractImports(info *Info) error {
	imports, err := a.image.Imports()
	if err != nil {
		return err
	}

	dlls := make([]string, 0, len(imports))
	for dll := range imports {
		dlls = append(dlls, dll)
	}
	sort.Strings(dlls)

	for _, dll := range dlls {
		info.Imports = append(info.Imports, ImportInfo{
			DLL:       dll,
			Functions: imports[dll],
		})
	}
	return nil
}

func (a *Analyzer) extractExports(info *Info) error {
	exports, err := a.image.Exports()
	if err != nil {
		return err
	}
	info.Exports = exports.Entries

	name, ok, err := a.image.ExportName()
	if err != nil {
		return err
	}
	if ok {
		info.ExportName = name
	}
	return nil
}

// extractDirectories reads the optional directories. Their pages may be
// paged out or discarded in a live image, so failures only leave gaps.
func (a *Analyzer) extractDirectories(info *Info) {
	tls, err := a.image.TLS()
	if err != nil {
		a.image.log.Warn().Err(err).Msg("TLS directory unreadable")
		info.Warnings = append(info.Warnings, fmt.Sprintf("TLS目录不可读: %v", err))
	}
	info.TLS = tls

	relocs, err := a.image.Relocations()
	if err != nil {
		a.image.log.Warn().Err(err).Msg("relocations unreadable")
		info.Warnings = append(info.Warnings, fmt.Sprintf("重定位表不可读: %v", err))
	}
	info.Relocations = relocs
}

func getArchitecture(machine uint16) string {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		return "x86 (32位)"
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return "x64 (64位)"
	case pe.IMAGE_FILE_MACHINE_ARM:
		return "ARM"
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return "ARM64"
	default:
		return fmt.Sprintf("未知 (0x%X)", machine)
	}
}

func getSubsystem(subsystem uint16) string {
	switch subsystem {
	case pe.IMAGE_SUBSYSTEM_WINDOWS_GUI:
		return "Windows GUI"
	case pe.IMAGE_SUBSYSTEM_WINDOWS_CUI:
		return "Windows 控制台"
	case pe.IMAGE_SUBSYSTEM_NATIVE:
		return "Native"
	default:
		return fmt.Sprintf("未知 (0x%X)", subsystem)
	}
}

func getSectionPermissions(c uint32) string {
	var perms [3]rune
	perms[0] = '-'
	perms[1] = '-'
	perms[2] = '-'

	if c&pe.IMAGE_SCN_MEM_READ != 0 {
		perms[0] = 'R'
	}
	if c&pe.IMAGE_SCN_MEM_WRITE != 0 {
		perms[1] = 'W'
	}
	if c&pe.IMAGE_SCN_MEM_EXECUTE != 0 {
		perms[2] = 'X'
	}

	return string(perms[:])
}
