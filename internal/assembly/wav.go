package assembly

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Format is the sample layout of a PCM WAV stream.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// MonoPCM16 is the only layout segments are rendered in.
func MonoPCM16(sampleRate int) Format {
	return Format{SampleRate: sampleRate, Channels: 1, BitsPerSample: 16}
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz/%d ch/%d bit", f.SampleRate, f.Channels, f.BitsPerSample)
}

// BlockAlign is the size in bytes of one frame.
func (f Format) BlockAlign() int {
	return f.Channels * f.BitsPerSample / 8
}

var errNotWAV = errors.New("not a RIFF/WAVE stream")

// DecodeWAV parses a PCM WAV buffer and returns its format and data chunk.
// Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(data []byte) (Format, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Format{}, nil, errNotWAV
	}

	var (
		f       Format
		haveFmt bool
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if size < 0 || off+size > len(data) {
			// streamed responses may carry a placeholder data size
			if id == "data" && haveFmt {
				size = len(data) - off
			} else {
				return Format{}, nil, fmt.Errorf("invalid wav chunk %q size", id)
			}
		}
		chunk := data[off : off+size]
		switch id {
		case "fmt ":
			if len(chunk) < 16 {
				return Format{}, nil, fmt.Errorf("invalid wav fmt chunk")
			}
			if audioFormat := binary.LittleEndian.Uint16(chunk[0:2]); audioFormat != 1 {
				return Format{}, nil, fmt.Errorf("unsupported wav encoding %d", audioFormat)
			}
			f.Channels = int(binary.LittleEndian.Uint16(chunk[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(chunk[4:8]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(chunk[14:16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Format{}, nil, fmt.Errorf("wav data chunk before fmt chunk")
			}
			return f, chunk, nil
		}
		off += size
		if size%2 != 0 {
			off++
		}
	}
	return Format{}, nil, fmt.Errorf("wav data chunk not found")
}

// ReadWAVFile reads and decodes a WAV file.
func ReadWAVFile(path string) (Format, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Format{}, nil, err
	}
	f, pcm, err := DecodeWAV(data)
	if err != nil {
		return Format{}, nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, pcm, nil
}

// WriteWAVFile writes the pcm chunks, in order, as one canonical
// 44-byte-header WAV file.
func WriteWAVFile(path string, f Format, pcm ...[]byte) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	var size int
	for _, c := range pcm {
		size += len(c)
	}
	w := bufio.NewWriter(out)
	if err := writeWAVHeader(w, f, uint32(size)); err != nil {
		out.Close()
		return err
	}
	for _, c := range pcm {
		if _, err := w.Write(c); err != nil {
			out.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeWAVHeader(w io.Writer, f Format, dataSize uint32) error {
	byteRate := uint32(f.SampleRate * f.BlockAlign())

	fields := []any{
		[]byte("RIFF"),
		uint32(36) + dataSize,
		[]byte("WAVE"),
		[]byte("fmt "),
		uint32(16),
		uint16(1), // PCM
		uint16(f.Channels),
		uint32(f.SampleRate),
		byteRate,
		uint16(f.BlockAlign()),
		uint16(f.BitsPerSample),
		[]byte("data"),
		dataSize,
	}
	for _, v := range fields {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return nil
}
