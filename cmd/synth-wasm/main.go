//go:build js && wasm

package main

import (
	"bytes"
	"syscall/js"
	"unsafe"

	"github.com/cwbudde/algo-synth/ladder"
	"github.com/cwbudde/algo-synth/reverb"
	"github.com/cwbudde/algo-synth/synth"
)

const blockFrames = 128

var (
	globalSynth  *synth.Synth
	globalFilter *ladder.FilterGraph
	globalReverb *reverb.Convolver
	renderBuffer []float64
	outputBuffer []float32
)

func main() {
	c := make(chan struct{})

	js.Global().Set("wasmInit", js.FuncOf(wasmInit))
	js.Global().Set("wasmNoteOn", js.FuncOf(wasmNoteOn))
	js.Global().Set("wasmNoteOff", js.FuncOf(wasmNoteOff))
	js.Global().Set("wasmPitchBend", js.FuncOf(wasmPitchBend))
	js.Global().Set("wasmSetVolume", js.FuncOf(wasmSetVolume))
	js.Global().Set("wasmSetFilter", js.FuncOf(wasmSetFilter))
	js.Global().Set("wasmLoadIR", js.FuncOf(wasmLoadIR))
	js.Global().Set("wasmUseRoom", js.FuncOf(wasmUseRoom))
	js.Global().Set("wasmProcessBlock", js.FuncOf(wasmProcessBlock))
	js.Global().Set("wasmGetMemoryBuffer", js.FuncOf(wasmGetMemoryBuffer))

	println("WASM synth module loaded")
	<-c
}

// wasmInit(sampleRate, voices?)
func wasmInit(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	params := synth.NewDefaultParams()
	params.SampleRate = args[0].Int()
	if len(args) > 1 {
		params.Voices = args[1].Int()
	}

	s, err := synth.NewSynth(params)
	if err != nil {
		println("synth init failed:", err.Error())
		return nil
	}
	globalSynth = s
	globalFilter = nil
	globalReverb = nil

	renderBuffer = make([]float64, blockFrames)
	outputBuffer = make([]float32, blockFrames)

	println("Synth initialized at", params.SampleRate, "Hz with", params.Voices, "voices")
	return nil
}

func wasmNoteOn(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 || globalSynth == nil {
		return nil
	}
	globalSynth.NoteOn(0, args[0].Int(), float64(args[1].Int())/127)
	return nil
}

func wasmNoteOff(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return nil
	}
	globalSynth.NoteOff(0, args[0].Int())
	return nil
}

// wasmPitchBend(semitones)
func wasmPitchBend(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return nil
	}
	globalSynth.PitchBend(0, args[0].Float())
	return nil
}

// wasmSetVolume(dB)
func wasmSetVolume(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return nil
	}
	globalSynth.SetVolumeDB(args[0].Float())
	return nil
}

// wasmSetFilter(enabled, cutoffHz, resonance)
func wasmSetFilter(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return nil
	}
	if !args[0].Bool() {
		globalFilter = nil
		return nil
	}
	if globalFilter == nil {
		f, err := ladder.NewFilterGraph(float64(globalSynth.Params().SampleRate))
		if err != nil {
			println("filter init failed:", err.Error())
			return nil
		}
		globalFilter = f
	}
	if len(args) > 1 {
		globalFilter.SetCutoffHz(args[1].Float())
	}
	if len(args) > 2 {
		globalFilter.SetResonance(args[2].Float())
	}
	return nil
}

// wasmLoadIR(arrayBuffer, wet?)
func wasmLoadIR(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return nil
	}

	arrayBuffer := js.Global().Get("Uint8Array").New(args[0])
	length := arrayBuffer.Get("byteLength").Int()
	if length == 0 {
		println("IR data is empty")
		return nil
	}
	irData := make([]byte, length)
	js.CopyBytesToGo(irData, arrayBuffer)

	c, err := reverb.NewConvolver(globalSynth.Params().SampleRate)
	if err != nil {
		println("convolver init failed:", err.Error())
		return nil
	}
	if err := c.SetIRFromReader(bytes.NewReader(irData)); err != nil {
		println("IR load failed:", err.Error())
		return nil
	}
	wet := globalSynth.Params().IRWet
	if len(args) > 1 {
		wet = args[1].Float()
	}
	if err := c.SetWet(wet); err != nil {
		println("IR wet rejected:", err.Error())
		return nil
	}
	globalReverb = c

	println("IR loaded successfully:", c.IRLen(), "samples")
	return nil
}

// wasmUseRoom(seconds, wet?) switches to a generated room response; seconds
// <= 0 disables convolution.
func wasmUseRoom(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return nil
	}
	seconds := args[0].Float()
	if seconds <= 0 {
		globalReverb = nil
		return nil
	}
	c, err := reverb.NewConvolver(globalSynth.Params().SampleRate)
	if err != nil {
		println("convolver init failed:", err.Error())
		return nil
	}
	room := reverb.DefaultRoomConfig()
	room.Seconds = seconds
	if err := c.SetRoom(room); err != nil {
		println("room IR failed:", err.Error())
		return nil
	}
	wet := globalSynth.Params().IRWet
	if len(args) > 1 {
		wet = args[1].Float()
	}
	if err := c.SetWet(wet); err != nil {
		println("IR wet rejected:", err.Error())
		return nil
	}
	globalReverb = c
	return nil
}

func wasmProcessBlock(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || globalSynth == nil {
		return 0
	}

	numFrames := min(max(args[0].Int(), 0), blockFrames)
	block := renderBuffer[:numFrames]

	globalSynth.Process(block)
	if globalFilter != nil {
		globalFilter.ProcessInPlace(block)
	}
	if globalReverb != nil {
		if err := globalReverb.ProcessInPlace(block); err != nil {
			println("convolution failed:", err.Error())
			globalReverb = nil
		}
	}
	for i, v := range block {
		outputBuffer[i] = float32(v)
	}

	ptr := &outputBuffer[0]
	return js.ValueOf(int(uintptr(unsafe.Pointer(ptr))))
}

func wasmGetMemoryBuffer(this js.Value, args []js.Value) interface{} {
	return js.Global().Get("Go").Get("_inst").Get("exports").Get("mem").Get("buffer")
}
