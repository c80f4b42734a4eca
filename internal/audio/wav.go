package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrUnsupportedWAV is returned for WAV files that are not 16-bit PCM. Such
// files can still be loaded through Converter.
var ErrUnsupportedWAV = errors.New("unsupported wav encoding")

const wavHeaderSize = 44

// EncodeWAV writes c as a canonical 44-byte-header mono 16-bit PCM WAV.
func EncodeWAV(w io.Writer, c Clip) error {
	if c.Rate <= 0 {
		return fmt.Errorf("encode wav: invalid sample rate %d", c.Rate)
	}
	dataSize := uint32(len(c.Samples) * 2)
	header := make([]byte, wavHeaderSize)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], 36+dataSize)
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], 1) // mono
	binary.LittleEndian.PutUint32(header[24:28], uint32(c.Rate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(c.Rate*2))
	binary.LittleEndian.PutUint16(header[32:34], 2)
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], dataSize)
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("encode wav header: %w", err)
	}
	body := make([]byte, dataSize)
	for i, s := range c.Samples {
		binary.LittleEndian.PutUint16(body[i*2:], uint16(s))
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("encode wav data: %w", err)
	}
	return nil
}

// WAVBytes returns the encoded WAV form of c.
func WAVBytes(c Clip) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(c.Samples)*2)
	if err := EncodeWAV(&buf, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeWAV parses a RIFF/WAVE stream holding 16-bit PCM. Multi-channel audio
// is downmixed to mono by averaging channels.
func DecodeWAV(r io.Reader) (Clip, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Clip{}, fmt.Errorf("read wav: %w", err)
	}
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Clip{}, errors.New("decode wav: not a RIFF/WAVE stream")
	}

	var (
		format, channels, bits uint16
		rate                   uint32
		foundFmt               bool
		pcm                    []byte
	)
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		end := body + size
		if end > len(data) {
			// Streams written without a final size report 0 or 0xFFFFFFFF.
			if id != "data" {
				return Clip{}, fmt.Errorf("decode wav: chunk %q overruns stream", id)
			}
			end = len(data)
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Clip{}, errors.New("decode wav: short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(data[body : body+2])
			channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			rate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			if format == 0xFFFE && size >= 26 {
				// WAVE_FORMAT_EXTENSIBLE carries the real format in the sub-format GUID.
				format = binary.LittleEndian.Uint16(data[body+24 : body+26])
			}
			foundFmt = true
		case "data":
			pcm = data[body:end]
		}
		if pcm != nil {
			break
		}
		pos = end + size%2
	}

	if !foundFmt {
		return Clip{}, errors.New("decode wav: fmt chunk not found")
	}
	if pcm == nil {
		return Clip{}, errors.New("decode wav: data chunk not found")
	}
	if format != 1 || bits != 16 {
		return Clip{}, fmt.Errorf("%w: format %d, %d-bit", ErrUnsupportedWAV, format, bits)
	}
	if channels == 0 || rate == 0 {
		return Clip{}, fmt.Errorf("decode wav: invalid header (%d channels, %d Hz)", channels, rate)
	}

	frameSize := int(channels) * 2
	frames := len(pcm) / frameSize
	samples := make([]int16, frames)
	for i := range frames {
		frame := pcm[i*frameSize : (i+1)*frameSize]
		if channels == 1 {
			samples[i] = int16(binary.LittleEndian.Uint16(frame))
			continue
		}
		var sum int
		for ch := range int(channels) {
			sum += int(int16(binary.LittleEndian.Uint16(frame[ch*2:])))
		}
		samples[i] = int16(sum / int(channels))
	}
	return Clip{Rate: int(rate), Samples: samples}, nil
}

// ReadWAV decodes the WAV file at path.
func ReadWAV(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()
	clip, err := DecodeWAV(f)
	if err != nil {
		return Clip{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return clip, nil
}

// WriteWAV encodes c to path, replacing any existing file atomically.
func WriteWAV(path string, c Clip) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create wav directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*.wav")
	if err != nil {
		return fmt.Errorf("create temp wav: %w", err)
	}
	tmpName := tmp.Name()
	if err := EncodeWAV(tmp, c); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp wav: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename wav: %w", err)
	}
	return nil
}
