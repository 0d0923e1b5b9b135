package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/CoStudy/internal/domain"
)

func TestStopReleasesAllTracks(t *testing.T) {
	d := New(Options{})
	ctx := context.Background()
	cam, err := d.OpenCamera(ctx)
	if err != nil {
		t.Fatal(err)
	}
	mic, err := d.OpenMicrophone(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if d.LiveTracks() != 2 {
		t.Fatalf("live = %d, want 2", d.LiveTracks())
	}
	cam.Stop()
	cam.Stop()
	mic.Stop()
	if d.LiveTracks() != 0 {
		t.Fatalf("live = %d after stop", d.LiveTracks())
	}
}

func TestPermissionDenied(t *testing.T) {
	d := New(Options{DenyCamera: true, DenyMicrophone: true})
	if _, err := d.OpenCamera(context.Background()); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("camera err = %v", err)
	}
	if _, err := d.OpenMicrophone(context.Background()); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("mic err = %v", err)
	}
	if d.LiveTracks() != 0 {
		t.Fatal("denied open left a live track")
	}
}

func TestSurfaceWarmsUpBeforeFirstFrame(t *testing.T) {
	d := New(Options{Width: 16, Height: 8, FirstFrameAfter: time.Second})
	base := time.Unix(1000, 0)
	d.now = func() time.Time { return base }

	cam, _ := d.OpenCamera(context.Background())
	s, err := d.AttachSurface(cam)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.CurrentFrame(); ok {
		t.Fatal("frame before warm-up")
	}
	d.now = func() time.Time { return base.Add(2 * time.Second) }
	img, ok := s.CurrentFrame()
	if !ok || img.Bounds().Dx() != 16 {
		t.Fatalf("frame = %v, %v", img, ok)
	}
	cam.Stop()
	if _, ok := s.CurrentFrame(); ok {
		t.Fatal("frame after track stopped")
	}
	s.Release()
	s.Release()
	if d.OpenSurfaces() != 0 {
		t.Fatal("surface leaked")
	}
}

func TestAnalyserNeedsAudioTrack(t *testing.T) {
	d := New(Options{})
	cam, _ := d.OpenCamera(context.Background())
	if _, err := d.NewAnalyser(cam); !errors.Is(err, ErrNoTrack) {
		t.Fatalf("err = %v, want ErrNoTrack", err)
	}
	mic, _ := d.OpenMicrophone(context.Background())
	a, err := d.NewAnalyser(mic)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(a.FrequencyData()); got != 64 {
		t.Fatalf("bins = %d", got)
	}
	_ = a.Close()
	_ = a.Close()
	if d.OpenAnalysers() != 0 {
		t.Fatal("analyser leaked")
	}
	for _, b := range a.FrequencyData() {
		if b != 0 {
			t.Fatal("closed analyser still reports signal")
		}
	}
}
