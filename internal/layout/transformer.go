package layout

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ZacharyZcR/rpe/internal/memory"
)

// HostBitness is the pointer width of the running process.
const HostBitness = Bitness(strconv.IntSize)

// ErrNotSupported matches every UnsupportedBitnessError.
var ErrNotSupported = errors.New("不支持的位数组合")

// UnsupportedBitnessError reports a host/image pairing with no read strategy.
type UnsupportedBitnessError struct {
	Host  Bitness
	Image Bitness
}

func (e *UnsupportedBitnessError) Error() string {
	return fmt.Sprintf("不支持从%d位进程解析%d位PE", int(e.Host), int(e.Image))
}

func (e *UnsupportedBitnessError) Is(target error) bool {
	return target == ErrNotSupported
}

// Mode is the strategy a Factory uses to materialize structures.
type Mode int

const (
	// Native decodes fields straight out of host memory without copying
	// when the space supports it (memory.InPlace).
	Native Mode = iota + 1
	// Remote reads every field through the address space, same bitness.
	Remote
	// Remote32 decodes a 32-bit image from a 64-bit host.
	Remote32
	// Remote64 decodes a 64-bit image from a 32-bit host.
	Remote64
)

func (m Mode) String() string {
	switch m {
	case Native:
		return "native"
	case Remote:
		return "remote"
	case Remote32:
		return "remote32"
	case Remote64:
		return "remote64"
	}
	return "mode(" + strconv.Itoa(int(m)) + ")"
}

// Transformer selects how structures are decoded for a given host width.
type Transformer struct {
	host Bitness
}

// NewTransformer returns a transformer for the running process.
func NewTransformer() *Transformer {
	return &Transformer{host: HostBitness}
}

// ForHost returns a transformer that behaves as if the decoder ran with
// the given pointer width.
func ForHost(host Bitness) *Transformer {
	return &Transformer{host: host}
}

// Host returns the host bitness the transformer decodes for.
func (t *Transformer) Host() Bitness {
	return t.host
}

// Mode picks the decoding strategy for an image of the given bitness in space.
func (t *Transformer) Mode(image Bitness, space memory.AddressSpace) (Mode, error) {
	switch {
	case !t.host.Valid() || !image.Valid():
		return 0, &UnsupportedBitnessError{Host: t.host, Image: image}
	case t.host == image && memory.IsLocal(space):
		return Native, nil
	case t.host == image:
		return Remote, nil
	case t.host == Bits64 && image == Bits32:
		return Remote32, nil
	case t.host == Bits32 && image == Bits64:
		return Remote64, nil
	}
	return 0, &UnsupportedBitnessError{Host: t.host, Image: image}
}

// Bind resolves l for the image bitness and ties it to space.
func (t *Transformer) Bind(l *Layout, image Bitness, space memory.AddressSpace) (*Factory, error) {
	mode, err := t.Mode(image, space)
	if err != nil {
		return nil, err
	}
	r, err := Resolve(l, image)
	if err != nil {
		return nil, err
	}
	f := &Factory{resolved: r, space: space, mode: mode, load: space.ReadBytes}
	if in, ok := space.(memory.InPlace); ok && mode == Native {
		f.load = in.Slice
	}
	return f, nil
}

// Factory creates views of one layout inside one address space.
type Factory struct {
	resolved *Resolved
	space    memory.AddressSpace
	mode     Mode
	load     func(addr uint64, n int) ([]byte, error)
}

// At returns a view of the structure located at addr.
func (f *Factory) At(addr uint64) *View {
	return &View{r: f.resolved, space: f.space, addr: addr, load: f.load}
}

// Size returns the resolved structure size.
func (f *Factory) Size() uint64 {
	return f.resolved.Size
}

// Mode returns the strategy chosen at bind time.
func (f *Factory) Mode() Mode {
	return f.mode
}

// Resolved exposes the resolved layout.
func (f *Factory) Resolved() *Resolved {
	return f.resolved
}
