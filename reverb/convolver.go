// Package reverb applies an impulse response to rendered synth output.
package reverb

import (
	"io"

	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"
	"github.com/cwbudde/algo-synth/internal/wavio"
	"github.com/pkg/errors"
)

// DefaultPartSize is the convolution block length in samples.
const DefaultPartSize = 128

// Convolver is a streaming mono convolver with a dry/wet mix. The first
// partition of the impulse response runs as a direct FIR; the remainder runs
// through a partitioned overlap-add one partition behind the input, which is
// exactly when its output is due. Any block length gives sample-aligned
// output with no added latency.
type Convolver struct {
	sampleRate int
	partSize   int
	irLen      int
	wet        float64

	head    []float64 // ir[:partSize]
	hist    []float64 // last len(head) inputs, ring
	histPos int

	ola     *dspconv.StreamingOverlapAddT[float32, complex64] // ir[partSize:], nil when empty
	in      []float32
	out     []float32
	fill    int
	pending []float64 // tail contribution for the current partition
}

// NewConvolver creates a convolver running at sampleRate with a unit
// impulse, so output equals input until SetIR is called.
func NewConvolver(sampleRate int) (*Convolver, error) {
	if sampleRate <= 0 {
		return nil, errors.Errorf("reverb: sample rate must be > 0: %d", sampleRate)
	}
	c := &Convolver{
		sampleRate: sampleRate,
		partSize:   DefaultPartSize,
		wet:        1,
	}
	if err := c.SetIR([]float64{1}); err != nil {
		return nil, err
	}
	return c, nil
}

// SetIR replaces the impulse response and clears history.
func (c *Convolver) SetIR(ir []float64) error {
	if len(ir) == 0 {
		ir = []float64{1}
	}
	n := min(len(ir), c.partSize)
	c.head = append([]float64(nil), ir[:n]...)
	c.hist = make([]float64, n)
	c.ola = nil

	if rest := ir[n:]; len(rest) > 0 {
		ir32 := make([]float32, len(rest))
		for i, v := range rest {
			ir32[i] = float32(v)
		}
		ola, err := dspconv.NewStreamingOverlapAdd32(ir32, c.partSize)
		if err != nil {
			return errors.Wrap(err, "reverb: convolver")
		}
		c.ola = ola
	}
	c.irLen = len(ir)
	c.in = make([]float32, c.partSize)
	c.out = make([]float32, c.partSize)
	c.pending = make([]float64, c.partSize)
	c.Reset()
	return nil
}

// SetIRFromWAV loads an impulse response from a WAV file, downmixed to mono
// and resampled to the convolver rate when needed.
func (c *Convolver) SetIRFromWAV(path string) error {
	ir, err := wavio.Load(path, c.sampleRate)
	if err != nil {
		return err
	}
	if len(ir) == 0 {
		return errors.Errorf("reverb: empty impulse response: %s", path)
	}
	return c.SetIR(ir)
}

// SetIRFromReader is SetIRFromWAV for WAV data already in memory.
func (c *Convolver) SetIRFromReader(r io.ReadSeeker) error {
	a, err := wavio.Decode(r)
	if err != nil {
		return err
	}
	ir, err := a.At(c.sampleRate)
	if err != nil {
		return err
	}
	if len(ir) == 0 {
		return errors.New("reverb: empty impulse response")
	}
	return c.SetIR(ir)
}

// SetWet sets the wet proportion in [0,1]; the dry signal gets 1-wet.
func (c *Convolver) SetWet(wet float64) error {
	if !(wet >= 0 && wet <= 1) {
		return errors.Errorf("reverb: wet must be in [0,1]: %f", wet)
	}
	c.wet = wet
	return nil
}

// IRLen returns the impulse response length in samples.
func (c *Convolver) IRLen() int { return c.irLen }

// Reset clears convolution history.
func (c *Convolver) Reset() {
	clear(c.hist)
	clear(c.in)
	clear(c.pending)
	c.histPos = 0
	c.fill = 0
	if c.ola != nil {
		c.ola.Reset()
	}
}

// ProcessInPlace convolves buf. Blocks of any length may be passed; history
// carries over between calls.
func (c *Convolver) ProcessInPlace(buf []float64) error {
	for i, dry := range buf {
		wet, err := c.step(dry)
		if err != nil {
			return err
		}
		buf[i] = (1-c.wet)*dry + c.wet*wet
	}
	return nil
}

func (c *Convolver) step(x float64) (float64, error) {
	c.hist[c.histPos] = x
	var y float64
	j := c.histPos
	for _, h := range c.head {
		y += h * c.hist[j]
		if j--; j < 0 {
			j = len(c.hist) - 1
		}
	}
	if c.histPos++; c.histPos == len(c.hist) {
		c.histPos = 0
	}

	if c.ola == nil {
		return y, nil
	}
	y += c.pending[c.fill]
	c.in[c.fill] = float32(x)
	if c.fill++; c.fill < c.partSize {
		return y, nil
	}
	c.fill = 0
	if err := c.ola.ProcessBlockTo(c.out, c.in); err != nil {
		return y, errors.Wrap(err, "reverb: process")
	}
	for i, v := range c.out {
		c.pending[i] = float64(v)
	}
	return y, nil
}

// Tail renders the remaining reverberation after the input has ended.
func (c *Convolver) Tail() ([]float64, error) {
	tail := make([]float64, c.irLen-1)
	if err := c.ProcessInPlace(tail); err != nil {
		return nil, err
	}
	return tail, nil
}
