// Package pe decodes PE images that are already mapped in an address space,
// whether that is the current process, another process, or a memory dump.
package pe

import (
	"fmt"

	"github.com/ZacharyZcR/rpe/internal/layout"
	"github.com/ZacharyZcR/rpe/internal/memory"
	"github.com/rs/zerolog"
)

// Image is a PE image mapped at Base inside an address space.
// The bitness is fixed at construction; derived tables are computed on
// first use and then reused.
type Image struct {
	space       memory.AddressSpace
	base        uint64
	bitness     layout.Bitness
	mode        layout.Mode
	ordinalFlag uint64
	log         zerolog.Logger

	dosHeader       *layout.Factory
	ntHeaders       *layout.Factory
	dataDirectories *layout.Factory
	sectionHeader   *layout.Factory
	importDesc      *layout.Factory
	thunk           *layout.Factory
	importByName    *layout.Factory
	exportDir       *layout.Factory
	tlsDir          *layout.Factory
	baseReloc       *layout.Factory
	pointer         *layout.Factory

	sections   cell[[]Section]
	imports    cell[Imports]
	exports    cell[*Exports]
	exportName cell[exportName]
}

type options struct {
	bitness     layout.Bitness
	transformer *layout.Transformer
	log         zerolog.Logger
}

// Option configures New.
type Option func(*options)

// WithBitness skips probing and decodes the image with bitness b.
func WithBitness(b layout.Bitness) Option {
	return func(o *options) {
		o.bitness = b
	}
}

// WithTransformer sets the transformer; by default the host's own is used.
func WithTransformer(t *layout.Transformer) Option {
	return func(o *options) {
		o.transformer = t
	}
}

// WithLogger enables debug tracing of table walks.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// New returns the image mapped at base in space. Without WithBitness the
// bitness is probed from the NT header Machine field.
func New(space memory.AddressSpace, base uint64, opts ...Option) (*Image, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.transformer == nil {
		o.transformer = layout.NewTransformer()
	}

	if o.bitness == 0 {
		b, err := ProbeBitness(space, base, o.transformer)
		if err != nil {
			return nil, err
		}
		o.bitness = b
	}

	img := &Image{
		space:       space,
		base:        base,
		bitness:     o.bitness,
		ordinalFlag: ordinalFlag(o.bitness),
		log:         o.log.With().Str("base", fmt.Sprintf("0x%X", base)).Logger(),
	}
	if err := img.bind(o.transformer); err != nil {
		return nil, err
	}

	img.log.Debug().
		Stringer("bitness", img.bitness).
		Stringer("mode", img.mode).
		Msg("image opened")
	return img, nil
}

// bind resolves every structure the image reads. Any unsupported bitness
// combination fails here, before a single table is walked.
func (img *Image) bind(t *layout.Transformer) error {
	ntHeaders := imageNTHeaders32
	if img.bitness == layout.Bits64 {
		ntHeaders = imageNTHeaders64
	}

	targets := []struct {
		dst **layout.Factory
		l   *layout.Layout
	}{
		{&img.dosHeader, imageDOSHeader},
		{&img.ntHeaders, ntHeaders},
		{&img.dataDirectories, imageDataDirectoryArray},
		{&img.sectionHeader, imageSectionHeader},
		{&img.importDesc, imageImportDescriptor},
		{&img.thunk, imageThunkData},
		{&img.importByName, imageImportByName},
		{&img.exportDir, imageExportDirectory},
		{&img.tlsDir, imageTLSDirectory},
		{&img.baseReloc, imageBaseRelocation},
		{&img.pointer, ulongPtr},
	}
	for _, tgt := range targets {
		f, err := t.Bind(tgt.l, img.bitness, img.space)
		if err != nil {
			return err
		}
		*tgt.dst = f
	}
	img.mode = img.ntHeaders.Mode()
	return nil
}

// ProbeBitness reads the Machine field of the NT header at base. The header
// is decoded as 32-bit since Machine sits at the same offset in both forms.
func ProbeBitness(space memory.AddressSpace, base uint64, t *layout.Transformer) (layout.Bitness, error) {
	if t == nil {
		t = layout.NewTransformer()
	}
	dos, err := t.Bind(imageDOSHeader, layout.Bits32, space)
	if err != nil {
		return 0, err
	}
	nt, err := t.Bind(imageNTHeaders32, layout.Bits32, space)
	if err != nil {
		return 0, err
	}

	lfanew, err := dos.At(base).Uint32("e_lfanew")
	if err != nil {
		return 0, fmt.Errorf("读取DOS头失败: %w", err)
	}
	fh, err := nt.At(base + uint64(lfanew)).Struct("FileHeader")
	if err != nil {
		return 0, err
	}
	machine, err := fh.Uint16("Machine")
	if err != nil {
		return 0, fmt.Errorf("读取NT头失败: %w", err)
	}
	return BitnessForMachine(machine)
}

// BitnessForMachine maps an NT header Machine value to the image bitness.
func BitnessForMachine(machine uint16) (layout.Bitness, error) {
	switch machine {
	case IMAGE_FILE_MACHINE_I386:
		return layout.Bits32, nil
	case IMAGE_FILE_MACHINE_AMD64:
		return layout.Bits64, nil
	}
	return 0, &UnknownMachineError{Machine: machine}
}

func ordinalFlag(b layout.Bitness) uint64 {
	if b == layout.Bits32 {
		return IMAGE_ORDINAL_FLAG32
	}
	return IMAGE_ORDINAL_FLAG64
}

// Base returns the address the image is mapped at.
func (img *Image) Base() uint64 {
	return img.base
}

// Bitness returns the image bitness.
func (img *Image) Bitness() layout.Bitness {
	return img.bitness
}

// Mode returns how structures are materialized for this image.
func (img *Image) Mode() layout.Mode {
	return img.mode
}

// Space returns the address space the image is read from.
func (img *Image) Space() memory.AddressSpace {
	return img.space
}

func (img *Image) readString(rva uint64) (string, error) {
	return img.space.ReadCString(img.base + rva)
}
