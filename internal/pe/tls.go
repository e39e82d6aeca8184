package pe

import (
	"fmt"
)

// TLSInfo contains TLS (Thread Local Storage) information. Addresses are
// virtual addresses as the loader left them.
type TLSInfo struct {
	HasTLS                bool
	Callbacks             []uint64
	StartAddressOfRawData uint64
	EndAddressOfRawData   uint64
	AddressOfIndex        uint64
	AddressOfCallBacks    uint64
	SizeOfZeroFill        uint32
	Characteristics       uint32
}

// TLS reads the TLS directory (data directory entry 9) and its callback
// array. An image without one reports HasTLS false.
func (img *Image) TLS() (*TLSInfo, error) {
	info := &TLSInfo{}

	dir, err := img.Directory(IMAGE_DIRECTORY_ENTRY_TLS)
	if err != nil {
		return nil, err
	}
	if dir.VirtualAddress == 0 || dir.Size == 0 {
		return info, nil
	}
	info.HasTLS = true

	v := img.tlsDir.At(img.base + uint64(dir.VirtualAddress))
	ptrs := []struct {
		field string
		dst   *uint64
	}{
		{"StartAddressOfRawData", &info.StartAddressOfRawData},
		{"EndAddressOfRawData", &info.EndAddressOfRawData},
		{"AddressOfIndex", &info.AddressOfIndex},
		{"AddressOfCallBacks", &info.AddressOfCallBacks},
	}
	for _, p := range ptrs {
		if *p.dst, err = v.Uint(p.field); err != nil {
			return nil, fmt.Errorf("读取TLS目录失败: %w", err)
		}
	}
	if info.SizeOfZeroFill, err = v.Uint32("SizeOfZeroFill"); err != nil {
		return nil, fmt.Errorf("读取TLS目录失败: %w", err)
	}
	if info.Characteristics, err = v.Uint32("Characteristics"); err != nil {
		return nil, fmt.Errorf("读取TLS目录失败: %w", err)
	}

	if info.AddressOfCallBacks != 0 {
		if info.Callbacks, err = img.readCallbacks(info.AddressOfCallBacks); err != nil {
			return nil, fmt.Errorf("读取TLS回调失败: %w", err)
		}
	}

	img.log.Debug().Int("callbacks", len(info.Callbacks)).Msg("TLS directory read")
	return info, nil
}

// readCallbacks reads the NULL-terminated callback array at va.
func (img *Image) readCallbacks(va uint64) ([]uint64, error) {
	var callbacks []uint64
	for i := 0; ; i++ {
		if i >= maxThunks {
			return nil, fmt.Errorf("VA 0x%X: %w", va, ErrTableTooLarge)
		}
		cb, err := img.pointer.At(va + uint64(i)*img.pointer.Size()).Uint("Value")
		if err != nil {
			return nil, err
		}
		if cb == 0 {
			return callbacks, nil
		}
		callbacks = append(callbacks, cb)
	}
}
