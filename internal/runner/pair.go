package runner

import (
	"context"
	"errors"
)

// Pair drives both roles inside one process, alternating supervisor and
// loop turns against the same local state file. Used by the combined run
// command where no second machine participates; turn waits resolve
// immediately because each turn hands the parity straight to the other
// in-process runner.
type Pair struct {
	Supervisor *Runner
	Loop       *Runner

	// Cycles bounds how many supervisor+loop pairs run. Zero runs until
	// an exit signal or failure.
	Cycles int
}

// Run alternates turns until the cycle bound, an exit signal, or an error.
func (p *Pair) Run(ctx context.Context) error {
	if err := p.Supervisor.Store.CheckBranch(); err != nil {
		return err
	}
	for cycle := 0; p.Cycles == 0 || cycle < p.Cycles; cycle++ {
		if err := p.Supervisor.runTurn(ctx); err != nil {
			if errors.Is(err, ErrExitSignal) {
				return nil
			}
			return err
		}
		if err := p.Loop.runTurn(ctx); err != nil {
			if errors.Is(err, ErrExitSignal) {
				return nil
			}
			return err
		}
	}
	return nil
}
