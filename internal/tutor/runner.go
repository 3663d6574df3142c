package tutor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/livetemplate/mathwalk/internal/interp"
)

// Run executes code in the session's interpreter and renders the result.
// It returns ErrNotReady before bootstrap completes and ErrBusy while
// another run is in progress; in both cases nothing is rendered. A failure
// of the code itself is rendered as highlighted error output and returned.
func (c *Controller) Run(ctx context.Context, code string) error {
	c.mu.Lock()
	if !c.ready || c.closed {
		c.mu.Unlock()
		return ErrNotReady
	}
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	rt := c.runtime
	c.wg.Add(1)
	c.setOutput(Output{Text: msgRunning, Kind: KindRunning})
	c.mu.Unlock()
	defer c.wg.Done()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()
	if c.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, c.timeout)
		defer cancelTimeout()
	}

	start := time.Now()
	rt.ResetOutput()
	err := rt.Run(runCtx, code)
	text := rt.Output()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.logger.Debug("Run finished", "elapsed", time.Since(start), "error", err)
	if c.closed {
		return err
	}

	if err != nil {
		c.setOutput(Output{Text: fmt.Sprintf(msgRunError, errorMessage(err)), Kind: KindError, Highlight: true})
		c.scheduleRevert()
		return err
	}
	if text == "" {
		text = msgNoOutput
	}
	c.setOutput(Output{Text: text, Kind: KindResult})
	return nil
}

func errorMessage(err error) string {
	var runErr *interp.RunError
	if errors.As(err, &runErr) {
		return runErr.Message
	}
	return err.Error()
}

// scheduleRevert re-renders the current output without highlighting after
// the highlight duration, unless newer output has replaced it. Callers hold mu.
func (c *Controller) scheduleRevert() {
	if c.revertTime != nil {
		c.revertTime.Stop()
	}
	gen := c.outputGen
	c.revertTime = time.AfterFunc(c.highlight, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed || c.outputGen != gen {
			return
		}
		c.output.Highlight = false
		c.view.RenderOutput(c.output)
	})
}
