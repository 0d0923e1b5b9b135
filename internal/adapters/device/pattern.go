package device

import (
	"image"
	"image/color"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

var bars = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// CurrentFrame draws colour bars with a sweeping marker whose position follows the clock.
func (s *Surface) CurrentFrame() (image.Image, bool) {
	if s.released.Load() || !s.track.Live() {
		return nil, false
	}
	now := s.dev.now()
	if now.Sub(s.attached) < s.dev.opts.FirstFrameAfter {
		return nil, false
	}
	w, h := s.dev.opts.Width, s.dev.opts.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	barW := max(w/len(bars), 1)
	for x := range w {
		c := bars[min(x/barW, len(bars)-1)]
		for y := range h {
			img.SetRGBA(x, y, c)
		}
	}
	marker := int(now.UnixMilli()/20) % w
	for y := range h {
		img.SetRGBA(marker, y, color.RGBA{255, 255, 255, 255})
	}
	return img, true
}

// Analyser produces frequency bins of a tone whose loudness swells and fades.
type Analyser struct {
	dev     *Devices
	track   *Track
	started time.Time

	once   sync.Once
	closed atomic.Bool
}

func (a *Analyser) FrequencyData() []uint8 {
	bins := make([]uint8, a.dev.opts.Bins)
	if a.closed.Load() || !a.track.Live() {
		return bins
	}
	t := a.dev.now().Sub(a.started).Seconds()
	amp := 0.5 + 0.5*math.Sin(2*math.Pi*0.5*t)
	peak := len(bins) / 8
	for i := range bins {
		d := float64(i - peak)
		v := amp * 255 * math.Exp(-d*d/float64(2*len(bins)))
		bins[i] = uint8(min(max(v, 0), 255))
	}
	return bins
}

func (a *Analyser) Close() error {
	a.once.Do(func() {
		a.closed.Store(true)
		a.dev.analysers.Add(-1)
	})
	return nil
}
