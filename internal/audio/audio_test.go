package audio_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"splicer/internal/audio"
)

func ramp(rate, n int) audio.Clip {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(i%2000 - 1000)
	}
	return audio.Clip{Rate: rate, Samples: samples}
}

func TestSampleIndexRounding(t *testing.T) {
	cases := []struct {
		rate    int
		seconds float64
		want    int
	}{
		{8000, 0, 0},
		{8000, -1, 0},
		{8000, 1, 8000},
		{8000, 0.00006, 0},
		{8000, 0.125, 1000},
		{44100, 1340.976, 59137042},
	}
	for _, tc := range cases {
		if got := audio.SampleIndex(tc.rate, tc.seconds); got != tc.want {
			t.Fatalf("SampleIndex(%d, %v) = %d, want %d", tc.rate, tc.seconds, got, tc.want)
		}
	}
}

func TestWAVRoundTrip(t *testing.T) {
	clip := ramp(16000, 4001)
	data, err := audio.WAVBytes(clip)
	if err != nil {
		t.Fatalf("WAVBytes: %v", err)
	}
	if len(data) != 44+4001*2 {
		t.Fatalf("unexpected encoded size %d", len(data))
	}
	decoded, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if decoded.Rate != 16000 || !slices.Equal(decoded.Samples, clip.Samples) {
		t.Fatalf("round trip mismatch: rate=%d len=%d", decoded.Rate, decoded.Len())
	}
}

func TestWAVEncodingIsDeterministic(t *testing.T) {
	clip := ramp(8000, 800)
	a, _ := audio.WAVBytes(clip)
	b, _ := audio.WAVBytes(clip)
	if !bytes.Equal(a, b) {
		t.Fatal("expected identical encodings")
	}
}

func stereoWAV(t *testing.T, left, right []int16, extraChunk bool) []byte {
	t.Helper()
	var body bytes.Buffer
	body.WriteString("WAVE")
	if extraChunk {
		body.WriteString("LIST")
		_ = binary.Write(&body, binary.LittleEndian, uint32(3))
		body.Write([]byte{1, 2, 3, 0}) // odd chunk plus pad byte
	}
	body.WriteString("fmt ")
	_ = binary.Write(&body, binary.LittleEndian, uint32(16))
	_ = binary.Write(&body, binary.LittleEndian, uint16(1))
	_ = binary.Write(&body, binary.LittleEndian, uint16(2))
	_ = binary.Write(&body, binary.LittleEndian, uint32(8000))
	_ = binary.Write(&body, binary.LittleEndian, uint32(8000*4))
	_ = binary.Write(&body, binary.LittleEndian, uint16(4))
	_ = binary.Write(&body, binary.LittleEndian, uint16(16))
	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, uint32(len(left)*4))
	for i := range left {
		_ = binary.Write(&body, binary.LittleEndian, left[i])
		_ = binary.Write(&body, binary.LittleEndian, right[i])
	}
	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestDecodeWAVDownmixesAndSkipsUnknownChunks(t *testing.T) {
	data := stereoWAV(t, []int16{100, -200, 3000}, []int16{300, 200, 1000}, true)
	clip, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	want := []int16{200, 0, 2000}
	if clip.Rate != 8000 || !slices.Equal(clip.Samples, want) {
		t.Fatalf("got rate=%d samples=%v, want %v", clip.Rate, clip.Samples, want)
	}
}

func TestDecodeWAVRejectsNonPCM(t *testing.T) {
	data, _ := audio.WAVBytes(ramp(8000, 10))
	binary.LittleEndian.PutUint16(data[34:36], 24)
	_, err := audio.DecodeWAV(bytes.NewReader(data))
	if !errors.Is(err, audio.ErrUnsupportedWAV) {
		t.Fatalf("expected ErrUnsupportedWAV, got %v", err)
	}
	if _, err := audio.DecodeWAV(strings.NewReader("not audio")); err == nil {
		t.Fatal("expected error for non-RIFF input")
	}
}

func TestWriteAndReadWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "clip.wav")
	clip := ramp(22050, 500)
	if err := audio.WriteWAV(path, clip); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	got, err := audio.ReadWAV(path)
	if err != nil {
		t.Fatalf("ReadWAV: %v", err)
	}
	if !slices.Equal(got.Samples, clip.Samples) {
		t.Fatal("samples differ after file round trip")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleanup, found %d entries", len(entries))
	}
}

func TestRemoveAndInsert(t *testing.T) {
	clip := audio.Clip{Rate: 10, Samples: []int16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}
	out, err := clip.Remove([]audio.SampleRange{{Start: 1, End: 3}, {Start: 5, End: 6}, {Start: 9, End: 20}})
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if want := []int16{0, 3, 4, 6, 7, 8}; !slices.Equal(out.Samples, want) {
		t.Fatalf("Remove = %v, want %v", out.Samples, want)
	}
	if _, err := clip.Remove([]audio.SampleRange{{Start: 4, End: 6}, {Start: 5, End: 7}}); err == nil {
		t.Fatal("expected overlap error")
	}
	ins, err := clip.InsertAt(2, audio.Clip{Rate: 10, Samples: []int16{-1, -1}})
	if err != nil {
		t.Fatalf("InsertAt: %v", err)
	}
	if want := []int16{0, 1, -1, -1, 2, 3, 4, 5, 6, 7, 8, 9}; !slices.Equal(ins.Samples, want) {
		t.Fatalf("InsertAt = %v", ins.Samples)
	}
	if _, err := clip.InsertAt(0, audio.Clip{Rate: 20, Samples: []int16{1}}); err == nil {
		t.Fatal("expected rate mismatch error")
	}
}

func TestConcatRequiresMatchingRates(t *testing.T) {
	a := audio.Silence(8000, 0.5)
	b := audio.Silence(8000, 0.25)
	joined, err := audio.Concat(a, b)
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if joined.Duration() != 0.75 {
		t.Fatalf("duration = %v", joined.Duration())
	}
	if _, err := audio.Concat(a, audio.Silence(16000, 1)); err == nil {
		t.Fatal("expected rate mismatch")
	}
}

func TestLevels(t *testing.T) {
	clip := audio.Clip{Rate: 8000, Samples: []int16{16384, -16384, 16384, -16384}}
	if got := clip.Peak(); got != 0.5 {
		t.Fatalf("Peak = %v", got)
	}
	if got := clip.RMS(0, 4); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("RMS = %v", got)
	}
	if got := audio.ToDB(0.5); math.Abs(got+6.0206) > 1e-3 {
		t.Fatalf("ToDB = %v", got)
	}
	loud := clip.Gain(4)
	if loud.Samples[0] != 32767 || loud.Samples[1] != -32768 {
		t.Fatalf("gain should clamp, got %v", loud.Samples[:2])
	}
	if !audio.Silence(8000, 0.1).IsSilent(0, 800, -40) {
		t.Fatal("silence should be silent")
	}
	if clip.IsSilent(0, 4, -40) {
		t.Fatal("tone should not be silent")
	}
}

func TestResampleLength(t *testing.T) {
	clip := ramp(8000, 8000)
	out := audio.Resample(clip, 16000)
	if out.Rate != 16000 || out.Len() != 16000 {
		t.Fatalf("resample produced rate=%d len=%d", out.Rate, out.Len())
	}
	same := audio.Resample(clip, 8000)
	if !slices.Equal(same.Samples, clip.Samples) {
		t.Fatal("same-rate resample should copy")
	}
}

func TestConverterUsesRunner(t *testing.T) {
	var calls [][]string
	conv := audio.NewConverter("/opt/bin/ffmpeg").WithRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		if strings.HasSuffix(name, "ffprobe") {
			return []byte(`{"format":{"duration":"12.5"}}`), nil
		}
		return nil, nil
	})
	dir := t.TempDir()
	if err := conv.ToWAV(context.Background(), "in.mp3", filepath.Join(dir, "out.wav"), 44100); err != nil {
		t.Fatalf("ToWAV: %v", err)
	}
	if err := conv.Export(context.Background(), "in.wav", filepath.Join(dir, "out.mp3"), "mp3"); err != nil {
		t.Fatalf("Export: %v", err)
	}
	seconds, err := conv.ProbeDuration(context.Background(), "in.mp3")
	if err != nil || seconds != 12.5 {
		t.Fatalf("ProbeDuration = %v, %v", seconds, err)
	}
	if len(calls) != 3 || calls[0][0] != "/opt/bin/ffmpeg" || calls[2][0] != "/opt/bin/ffprobe" {
		t.Fatalf("unexpected calls: %v", calls)
	}
	if !slices.Contains(calls[0], "44100") || !slices.Contains(calls[1], "libmp3lame") {
		t.Fatalf("missing expected args: %v", calls)
	}
	if err := conv.Export(context.Background(), "in.wav", "out.xyz", "xyz"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

func TestConverterReportsFailureOutput(t *testing.T) {
	conv := audio.NewConverter("ffmpeg").WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("Invalid data found"), errors.New("exit status 1")
	})
	err := conv.ToWAV(context.Background(), "bad.mp3", filepath.Join(t.TempDir(), "x.wav"), 8000)
	if err == nil || !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected ffmpeg output in error, got %v", err)
	}
}

func TestLoadReadsWAVInProcess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "voice.wav")
	if err := audio.WriteWAV(path, ramp(8000, 800)); err != nil {
		t.Fatal(err)
	}
	conv := audio.NewConverter("ffmpeg").WithRunner(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("runner should not be used for in-process wav")
		return nil, nil
	})
	clip, err := conv.Load(context.Background(), path, 16000, dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if clip.Rate != 16000 || clip.Len() != 1600 {
		t.Fatalf("Load returned rate=%d len=%d", clip.Rate, clip.Len())
	}
}
