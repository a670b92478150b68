package harness

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/sydney-stream/sydney/chathub"

	"github.com/sourcegraph/conc"
)

// TurnOutcome is delivered once when a streamed turn ends.
type TurnOutcome struct {
	Result *TurnResult
	Err    error
}

// StreamTurn runs RunTurn on a worker goroutine. Events are delivered on
// the first channel, which is closed before the single outcome is sent.
// A panic in the worker is reported as the outcome error.
func (o *Orchestrator) StreamTurn(ctx context.Context, req TurnRequest) (<-chan chathub.Event, <-chan TurnOutcome) {
	events := make(chan chathub.Event, 16)
	outcome := make(chan TurnOutcome, 1)

	go func() {
		defer close(outcome)

		var (
			wg  conc.WaitGroup
			res *TurnResult
			err error
		)
		wg.Go(func() {
			defer close(events)
			res, err = o.RunTurn(ctx, req, func(ev chathub.Event) {
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			})
		})
		if r := wg.WaitAndRecover(); r != nil {
			err = fmt.Errorf("turn worker panicked: %v", r.Value)
		}
		outcome <- TurnOutcome{Result: res, Err: err}
	}()

	return events, outcome
}
