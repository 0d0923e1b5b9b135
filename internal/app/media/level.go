package media

import (
	"context"
	"time"

	"github.com/dkeye/CoStudy/internal/core"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

// Level converts analyser frequency bins into a 0..100 meter reading.
func Level(bins []uint8) int {
	if len(bins) == 0 {
		return 0
	}
	sum := 0
	for _, b := range bins {
		sum += int(b)
	}
	lvl := (sum*100/len(bins) + 127) / 255
	return min(max(lvl, 0), 100)
}

// levelLoop samples the analyser every interval until ctx is done.
func levelLoop(ctx context.Context, interval time.Duration, a core.LevelAnalyser, sink func(int), done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if r := panics.Try(func() { sink(Level(a.FrequencyData())) }); r != nil {
				log.Error().Str("module", "app.media").Err(r.AsError()).Msg("level sample panicked")
			}
		}
	}
}
