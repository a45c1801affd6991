package alarm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/AdityaBhonde/Vision-based-CCTV-Surveillance-System/internal/logger"
)

var ErrNoSamples = errors.New("alarm: sound contains no samples")

// Clip is decoded PCM audio ready for playback.
type Clip struct {
	Samples    []int16 // interleaved
	Channels   int
	SampleRate int
}

// LoadWAV decodes a PCM WAV file from r.
func LoadWAV(r io.ReadSeeker) (*Clip, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("alarm: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("alarm: decode wav: %w", err)
	}
	if len(buf.Data) == 0 {
		return nil, ErrNoSamples
	}
	return &Clip{
		Samples:    toInt16(buf, int(dec.BitDepth)),
		Channels:   buf.Format.NumChannels,
		SampleRate: buf.Format.SampleRate,
	}, nil
}

// LoadWAVFile decodes the WAV file at path.
func LoadWAVFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("alarm: open sound: %w", err)
	}
	defer f.Close()
	return LoadWAV(f)
}

func toInt16(buf *audio.IntBuffer, bitDepth int) []int16 {
	out := make([]int16, len(buf.Data))
	for i, s := range buf.Data {
		switch {
		case bitDepth == 8:
			// 8-bit wav is unsigned
			out[i] = int16((s - 128) << 8)
		case bitDepth > 16:
			out[i] = int16(s >> (bitDepth - 16))
		default:
			out[i] = int16(s)
		}
	}
	return out
}

// MalgoDevice loops a Clip on the default playback device. The device is
// opened lazily by Start, so a missing or busy output is reported as a
// start failure and retried on the next Start.
type MalgoDevice struct {
	clip *Clip

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	pos    atomic.Int64  // next sample index, touched by the audio callback
	volume atomic.Uint64 // math.Float64bits
}

// NewMalgoDevice returns a device that plays clip in a loop.
func NewMalgoDevice(clip *Clip) (*MalgoDevice, error) {
	if clip == nil || len(clip.Samples) == 0 {
		return nil, ErrNoSamples
	}
	if clip.Channels <= 0 {
		clip.Channels = 1
	}
	d := &MalgoDevice{clip: clip}
	d.volume.Store(math.Float64bits(DefaultVolume))
	return d, nil
}

func (d *MalgoDevice) open() error {
	if d.device != nil {
		return nil
	}

	var backends []malgo.Backend
	if runtime.GOOS == "linux" {
		backends = []malgo.Backend{malgo.BackendAlsa, malgo.BackendPulseaudio}
	}
	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(msg string) {
		logger.Debug("AlarmDevice", "malgo: %s", msg)
	})
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(d.clip.Channels)
	cfg.SampleRate = uint32(d.clip.SampleRate)
	cfg.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: d.fill,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("init playback device: %w", err)
	}

	d.ctx = ctx
	d.device = device
	return nil
}

// fill runs on the audio thread.
func (d *MalgoDevice) fill(out, _ []byte, frames uint32) {
	samples := d.clip.Samples
	n := int(frames) * d.clip.Channels
	vol := math.Float64frombits(d.volume.Load())
	pos := d.pos.Load()
	for i := 0; i < n && 2*i+1 < len(out); i++ {
		s := float64(samples[pos]) * vol
		binary.LittleEndian.PutUint16(out[2*i:], uint16(int16(s)))
		pos++
		if pos >= int64(len(samples)) {
			pos = 0
		}
	}
	d.pos.Store(pos)
}

// Start opens the device on first use and begins looping the sound.
func (d *MalgoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.open(); err != nil {
		return err
	}
	return d.device.Start()
}

// Stop halts playback and rewinds to the start of the sound.
func (d *MalgoDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if d.device != nil && d.device.IsStarted() {
		err = d.device.Stop()
	}
	d.pos.Store(0)
	return err
}

// SetVolume sets the gain applied to the samples, clamped to [0,1].
func (d *MalgoDevice) SetVolume(v float64) error {
	d.volume.Store(math.Float64bits(clamp(v)))
	return nil
}

// Close releases the playback device.
func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		err := d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
		return err
	}
	return nil
}
