package angleset

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
)

type Scheduler struct {
	AngleSets []*AngleSet
	log       zerolog.Logger
}

func NewScheduler(sets []*AngleSet, log zerolog.Logger) *Scheduler {
	return &Scheduler{AngleSets: sets, log: log}
}

// Sweep advances every angle set until all are finished. Angle sets never
// block; a sweep that makes no progress before ctx expires fails with
// ErrSweepStalled, which only happens with a broken dependency structure or a
// location that stopped sweeping.
func (s *Scheduler) Sweep(ctx context.Context) (err error) {
	var (
		n         = len(s.AngleSets)
		finished  = make([]bool, n)
		remaining = n
		polls     int
	)
	for remaining > 0 {
		for i, as := range s.AngleSets {
			if finished[i] {
				continue
			}
			var st Status
			if st, err = as.Advance(); err != nil {
				return fmt.Errorf("angle set %d: %w", as.ID, err)
			}
			if st == Finished {
				finished[i] = true
				remaining--
			}
		}
		if remaining == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %d of %d angle sets unfinished after %d polls: %v",
				ErrSweepStalled, remaining, n, polls, ctx.Err())
		default:
		}
		polls++
		runtime.Gosched()
	}
	s.log.Debug().Int("angleSets", n).Int("polls", polls).Msg("sweep complete")
	return
}

func (s *Scheduler) Reset() {
	for _, as := range s.AngleSets {
		as.Reset()
	}
}
