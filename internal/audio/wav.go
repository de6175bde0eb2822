// Package audio wraps raw PCM produced by the speech model in a WAV container
// and reads WAV headers back for stored artifacts.
package audio

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

// Defaults applied when a format descriptor omits or garbles a field.
const (
	DefaultSampleRate = 24000
	DefaultBitDepth   = 16
	DefaultMIMEType   = "audio/L16;rate=24000"
)

// Fixed container layout.
const (
	HeaderSize    = 44
	numChannels   = 1
	fmtChunkSize  = 16
	pcmFormatCode = 1
	riffSizeBase  = 36
)

// Descriptor prefixes.
const (
	ratePrefix  = "rate="
	depthPrefix = "audio/L"
)

// Format holds the PCM parameters parsed from a MIME-style descriptor.
type Format struct {
	SampleRate    int
	BitsPerSample int
}

// ByteRate returns the number of payload bytes per second.
func (f Format) ByteRate() int {
	return f.SampleRate * numChannels * f.BitsPerSample / 8
}

// BlockAlign returns the number of bytes per sample frame.
func (f Format) BlockAlign() int {
	return numChannels * f.BitsPerSample / 8
}

// ParseFormat reads `audio/L{bits};rate={rate}`. Missing, unparseable or
// out-of-range fields fall back to DefaultBitDepth and DefaultSampleRate; it
// never fails.
func ParseFormat(mimeType string) Format {
	format := Format{SampleRate: DefaultSampleRate, BitsPerSample: DefaultBitDepth}

	for _, param := range strings.Split(mimeType, ";") {
		param = strings.TrimSpace(param)

		switch {
		case strings.HasPrefix(strings.ToLower(param), ratePrefix):
			rate, err := strconv.ParseUint(param[len(ratePrefix):], 10, 32)
			if err == nil && rate > 0 {
				format.SampleRate = int(rate)
			}
		case strings.HasPrefix(param, depthPrefix):
			bits, err := strconv.ParseUint(param[len(depthPrefix):], 10, 16)
			if err == nil && bits > 0 {
				format.BitsPerSample = int(bits)
			}
		}
	}

	return format
}

// EncodeWAV prefixes pcm with a 44-byte mono PCM header built from mimeType.
// Identical inputs always produce identical output.
func EncodeWAV(pcm []byte, mimeType string) []byte {
	format := ParseFormat(mimeType)
	dataSize := uint32(len(pcm))

	var buf bytes.Buffer

	buf.Grow(HeaderSize + len(pcm))

	// bytes.Buffer writes cannot fail, so the binary.Write errors are ignored.
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, riffSizeBase+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(fmtChunkSize))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(pcmFormatCode))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(numChannels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(format.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(format.ByteRate()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(format.BlockAlign()))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(format.BitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(pcm)

	return buf.Bytes()
}
