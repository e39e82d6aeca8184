package pe

import (
	"math"

	"github.com/ZacharyZcR/rpe/internal/memory"
)

// maxEntropySample caps how much of a section is read for entropy.
const maxEntropySample = 16 << 20

// CalculateEntropy calculates Shannon entropy for a given data block.
// Entropy value ranges from 0 (completely uniform) to 8 (completely random).
// High entropy (>7.0) often indicates encryption or compression.
func CalculateEntropy(data []byte) float64 {
	if len(data) == 0 {
		return 0.0
	}

	var freq [256]int
	for _, b := range data {
		freq[b]++
	}

	// H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	dataLen := float64(len(data))

	for _, count := range freq {
		if count == 0 {
			continue
		}
		p := float64(count) / dataLen
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// CalculateSectionEntropy reads a mapped section and calculates its entropy.
func CalculateSectionEntropy(space memory.AddressSpace, s Section) (float64, error) {
	size := int(s.Size)
	if size == 0 {
		return 0.0, nil
	}
	if size > maxEntropySample {
		size = maxEntropySample
	}

	data, err := space.ReadBytes(s.Start, size)
	if err != nil {
		return 0.0, err
	}

	return CalculateEntropy(data), nil
}
