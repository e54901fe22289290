package audio

const (
	// mulawBias is added to the magnitude before segment lookup (G.711).
	mulawBias = 0x84
	// mulawClip is the largest magnitude that survives biasing without overflow.
	mulawClip = 32635
)

// decodeTable maps every mu-law byte to its linear PCM16 value
var decodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		decodeTable[i] = decodeSample(byte(i))
	}
}

// EncodeMulaw compresses 16-bit linear PCM samples to 8-bit mu-law bytes.
// One output byte is produced per input sample.
func EncodeMulaw(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		out[i] = encodeSample(s)
	}
	return out
}

// DecodeMulaw expands 8-bit mu-law bytes to 16-bit linear PCM samples.
func DecodeMulaw(mulaw []byte) []int16 {
	out := make([]int16, len(mulaw))
	for i, b := range mulaw {
		out[i] = decodeTable[b]
	}
	return out
}

// encodeSample converts a single linear sample to mu-law
func encodeSample(s int16) byte {
	sample := int(s)

	var sign int
	if sample < 0 {
		sample = -sample
		sign = 0x80
	}
	if sample > mulawClip {
		sample = mulawClip
	}
	sample += mulawBias

	// Find the segment: position of the highest set bit above bit 7
	exponent := 7
	for mask := 0x4000; sample&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (sample >> (exponent + 3)) & 0x0F

	return ^byte(sign | exponent<<4 | mantissa)
}

// decodeSample converts a single mu-law byte to a linear sample
func decodeSample(b byte) int16 {
	u := ^b
	sign := u & 0x80
	exponent := (u >> 4) & 0x07
	mantissa := int(u & 0x0F)

	magnitude := ((mantissa << 3) + mulawBias) << exponent
	magnitude -= mulawBias

	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}
