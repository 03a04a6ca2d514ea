package reverb

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/cwbudde/algo-synth/internal/wavio"
)

func directConvolve(x, h []float64) []float64 {
	out := make([]float64, len(x)+len(h)-1)
	for i, a := range x {
		for j, b := range h {
			out[i+j] += a * b
		}
	}
	return out
}

func TestUnitImpulsePassesInputThrough(t *testing.T) {
	c, err := NewConvolver(48000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	buf := make([]float64, 300)
	for i := range buf {
		buf[i] = math.Sin(float64(i) * 0.1)
	}
	want := append([]float64(nil), buf...)
	if err := c.ProcessInPlace(buf); err != nil {
		t.Fatalf("ProcessInPlace error: %v", err)
	}
	for i := range buf {
		if math.Abs(buf[i]-want[i]) > 1e-5 {
			t.Fatalf("sample %d mismatch: got=%f want=%f", i, buf[i], want[i])
		}
	}
}

func TestConvolutionMatchesDirect(t *testing.T) {
	c, err := NewConvolver(48000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	ir := []float64{0.5, -0.25, 0.125, 0, 0.0625}
	if err := c.SetIR(ir); err != nil {
		t.Fatalf("SetIR error: %v", err)
	}

	x := make([]float64, 1000)
	for i := range x {
		x[i] = math.Sin(2*math.Pi*float64(i)/31) * 0.5
	}
	want := directConvolve(x, ir)

	got := append([]float64(nil), x...)
	if err := c.ProcessInPlace(got); err != nil {
		t.Fatalf("ProcessInPlace error: %v", err)
	}
	tail, err := c.Tail()
	if err != nil {
		t.Fatalf("Tail error: %v", err)
	}
	got = append(got, tail...)

	if len(got) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-4 {
			t.Fatalf("fft convolution mismatch at %d: got=%f want=%f", i, got[i], want[i])
		}
	}
}

func processInChunks(t *testing.T, c *Convolver, x []float64, sizes []int) []float64 {
	t.Helper()
	out := append([]float64(nil), x...)
	for start, k := 0, 0; start < len(out); k++ {
		end := min(start+sizes[k%len(sizes)], len(out))
		if err := c.ProcessInPlace(out[start:end]); err != nil {
			t.Fatalf("ProcessInPlace error: %v", err)
		}
		start = end
	}
	tail, err := c.Tail()
	if err != nil {
		t.Fatalf("Tail error: %v", err)
	}
	return append(out, tail...)
}

func TestShortBlocksMatchDirect(t *testing.T) {
	ir := make([]float64, 300)
	for i := range ir {
		ir[i] = math.Exp(-float64(i)/80) * math.Cos(float64(i)*0.37)
	}
	x := make([]float64, 130)
	for i := range x {
		x[i] = math.Sin(2*math.Pi*float64(i)/17) * 0.5
	}
	want := directConvolve(x, ir)

	for _, sizes := range [][]int{{130}, {128, 2}, {1}, {7, 64, 3}, {45}} {
		c, err := NewConvolver(48000)
		if err != nil {
			t.Fatalf("NewConvolver error: %v", err)
		}
		if err := c.SetIR(ir); err != nil {
			t.Fatalf("SetIR error: %v", err)
		}
		got := processInChunks(t, c, x, sizes)
		if len(got) != len(want) {
			t.Fatalf("blocks %v: expected %d samples, got %d", sizes, len(want), len(got))
		}
		for i := range want {
			if math.Abs(got[i]-want[i]) > 1e-4 {
				t.Fatalf("blocks %v: mismatch at %d: got=%f want=%f", sizes, i, got[i], want[i])
			}
		}
	}
}

func TestDelayedImpulseSurvivesPartialBlock(t *testing.T) {
	c, err := NewConvolver(48000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	ir := make([]float64, 201)
	ir[200] = 1
	if err := c.SetIR(ir); err != nil {
		t.Fatalf("SetIR error: %v", err)
	}
	x := make([]float64, 130)
	x[0] = 1
	got := processInChunks(t, c, x, []int{128, 2})
	if len(got) != 330 {
		t.Fatalf("expected 330 samples, got %d", len(got))
	}
	for i, v := range got {
		want := 0.0
		if i == 200 {
			want = 1
		}
		if math.Abs(v-want) > 1e-5 {
			t.Fatalf("sample %d: got=%f want=%f", i, v, want)
		}
	}
}

func TestResetClearsHistory(t *testing.T) {
	c, err := NewConvolver(48000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	ir := make([]float64, 400)
	ir[0], ir[150], ir[399] = 1, 0.5, 0.25
	if err := c.SetIR(ir); err != nil {
		t.Fatalf("SetIR error: %v", err)
	}
	buf := make([]float64, 200)
	buf[10] = 1
	if err := c.ProcessInPlace(buf); err != nil {
		t.Fatalf("ProcessInPlace error: %v", err)
	}
	c.Reset()
	silent := make([]float64, 500)
	if err := c.ProcessInPlace(silent); err != nil {
		t.Fatalf("ProcessInPlace error: %v", err)
	}
	for i, v := range silent {
		if v != 0 {
			t.Fatalf("expected silence after Reset at %d: got=%f", i, v)
		}
	}
}

func TestWetMix(t *testing.T) {
	c, err := NewConvolver(48000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	if err := c.SetIR([]float64{0, 1}); err != nil {
		t.Fatalf("SetIR error: %v", err)
	}
	if err := c.SetWet(0.5); err != nil {
		t.Fatalf("SetWet error: %v", err)
	}
	buf := []float64{1, 0, 0}
	if err := c.ProcessInPlace(buf); err != nil {
		t.Fatalf("ProcessInPlace error: %v", err)
	}
	want := []float64{0.5, 0.5, 0}
	for i := range want {
		if math.Abs(buf[i]-want[i]) > 1e-5 {
			t.Fatalf("sample %d: got=%f want=%f", i, buf[i], want[i])
		}
	}
	if err := c.SetWet(1.5); err == nil {
		t.Fatal("expected error for wet > 1")
	}
}

func TestSetIRFromWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ir.wav")
	ir := []float64{0.9, 0.3, 0.1, 0.05}
	if _, err := wavio.WriteFile(path, ir, 48000); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	c, err := NewConvolver(48000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	if err := c.SetIRFromWAV(path); err != nil {
		t.Fatalf("SetIRFromWAV error: %v", err)
	}
	if c.IRLen() != len(ir) {
		t.Fatalf("expected IR length %d, got %d", len(ir), c.IRLen())
	}
	if _, err := NewConvolver(0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	fromMem, err := NewConvolver(48000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	if err := fromMem.SetIRFromReader(bytes.NewReader(raw)); err != nil {
		t.Fatalf("SetIRFromReader error: %v", err)
	}
	if fromMem.IRLen() != len(ir) {
		t.Fatalf("expected IR length %d from memory, got %d", len(ir), fromMem.IRLen())
	}
	if err := fromMem.SetIRFromReader(bytes.NewReader([]byte("junk"))); err == nil {
		t.Fatal("expected error for invalid wav data")
	}
}

func TestGenerateRoomIsDeterministicAndNormalized(t *testing.T) {
	cfg := DefaultRoomConfig()
	a, err := GenerateRoom(cfg, 48000)
	if err != nil {
		t.Fatalf("GenerateRoom error: %v", err)
	}
	b, err := GenerateRoom(cfg, 48000)
	if err != nil {
		t.Fatalf("GenerateRoom error: %v", err)
	}
	if want := int(math.Round(cfg.Seconds * 48000)); len(a) != want {
		t.Fatalf("expected %d samples: got=%d", want, len(a))
	}
	peak := 0.0
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs between runs: %f vs %f", i, a[i], b[i])
		}
		peak = math.Max(peak, math.Abs(a[i]))
	}
	if math.Abs(peak-cfg.Peak) > 1e-12 {
		t.Fatalf("expected peak normalized: got=%f want=%f", peak, cfg.Peak)
	}
	if a[len(a)-1] != 0 {
		t.Fatalf("expected faded end, got %f", a[len(a)-1])
	}
}

func TestGenerateRoomRejectsBadConfig(t *testing.T) {
	if _, err := GenerateRoom(DefaultRoomConfig(), 0); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
	bad := DefaultRoomConfig()
	bad.Brightness = 0
	if _, err := GenerateRoom(bad, 48000); err == nil {
		t.Fatal("expected error for zero brightness")
	}
	bad = DefaultRoomConfig()
	bad.Seconds = math.NaN()
	if _, err := GenerateRoom(bad, 48000); err == nil {
		t.Fatal("expected error for NaN length")
	}
}

func TestSetRoomExtendsTail(t *testing.T) {
	c, err := NewConvolver(16000)
	if err != nil {
		t.Fatalf("NewConvolver error: %v", err)
	}
	cfg := DefaultRoomConfig()
	cfg.Seconds = 0.25
	if err := c.SetRoom(cfg); err != nil {
		t.Fatalf("SetRoom error: %v", err)
	}
	if c.IRLen() != 4000 {
		t.Fatalf("expected IR length 4000: got=%d", c.IRLen())
	}
	ir, err := GenerateRoom(cfg, 16000)
	if err != nil {
		t.Fatalf("GenerateRoom error: %v", err)
	}

	x := make([]float64, 64)
	x[0] = 1
	got := processInChunks(t, c, x, []int{64})
	want := directConvolve(x, ir)
	if len(got) != len(want) {
		t.Fatalf("expected %d samples: got=%d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-4 {
			t.Fatalf("room response mismatch at %d: got=%f want=%f", i, got[i], want[i])
		}
	}
}
