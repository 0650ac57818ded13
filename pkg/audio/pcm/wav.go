package pcm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const waveFormatPCM = 1

// ReadWAV decodes a RIFF/WAVE stream carrying 16-bit integer PCM. Chunks
// other than "fmt " and "data" are skipped.
func ReadWAV(r io.Reader) (*Clip, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("pcm: wav header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrFormat)
	}

	var (
		f      Format
		haveFm bool
	)
	for {
		var ch [8]byte
		if _, err := io.ReadFull(r, ch[:]); err != nil {
			return nil, fmt.Errorf("pcm: wav chunk: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))

		switch id {
		case "fmt ":
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("pcm: wav fmt: %w", err)
			}
			if size < 16 {
				return nil, fmt.Errorf("%w: fmt chunk of %d bytes", ErrFormat, size)
			}
			tag := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if tag != waveFormatPCM || bits != 16 {
				return nil, fmt.Errorf("%w: wav format tag %d, %d bits", ErrFormat, tag, bits)
			}
			f = Format{
				Channels:   int(binary.LittleEndian.Uint16(body[2:4])),
				SampleRate: int(binary.LittleEndian.Uint32(body[4:8])),
			}
			if err := f.Validate(); err != nil {
				return nil, err
			}
			haveFm = true
		case "data":
			if !haveFm {
				return nil, fmt.Errorf("%w: data chunk before fmt", ErrFormat)
			}
			data, err := io.ReadAll(io.LimitReader(r, size))
			if err != nil {
				return nil, fmt.Errorf("pcm: wav data: %w", err)
			}
			return FromBytes(data, f)
		default:
			if _, err := io.CopyN(io.Discard, r, size); err != nil {
				return nil, fmt.Errorf("pcm: wav skip %q: %w", id, err)
			}
		}
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return nil, fmt.Errorf("pcm: wav pad: %w", err)
			}
		}
	}
}

// WriteWAV encodes c as a canonical 44-byte-header WAV stream.
func WriteWAV(w io.Writer, c *Clip) error {
	data := c.Bytes()
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(data)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(waveFormatPCM))
	binary.Write(&buf, binary.LittleEndian, uint16(c.Format.Channels))
	binary.Write(&buf, binary.LittleEndian, uint32(c.Format.SampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(c.Format.SampleRate*c.Format.Channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(c.Format.Channels*2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(data)))
	buf.Write(data)
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadFile loads a clip from path. Files ending in .wav are decoded as WAV;
// anything else is treated as raw little-endian PCM in the given format.
func ReadFile(path string, raw Format) (*Clip, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		fh, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("pcm: %w", err)
		}
		defer fh.Close()
		return ReadWAV(fh)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pcm: %w", err)
	}
	return FromBytes(b, raw)
}

