package tutor

import (
	"fmt"

	"github.com/livetemplate/mathwalk"
	"github.com/livetemplate/mathwalk/internal/source"
)

// GoTo shows step i. Out-of-range indexes are ignored.
func (c *Controller) GoTo(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goTo(i)
}

// Next shows the following step, if any.
func (c *Controller) Next() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goTo(c.current + 1)
}

// Previous shows the preceding step, if any.
func (c *Controller) Previous() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.goTo(c.current - 1)
}

func (c *Controller) goTo(i int) {
	if c.closed || i < 0 || i >= c.reg.Count() {
		return
	}
	c.current = i
	step := c.reg.Get(i)
	c.view.RenderStep(c.stepView(i))

	// Any fetch still running for an earlier visit is now stale.
	c.fetchGen++
	if step.HasInlineCode() {
		c.view.RenderCode(CodeView{Index: i, Code: step.Code})
	} else {
		c.view.RenderCode(CodeView{Index: i, Code: msgCodeLoading, Loading: true})
		c.wg.Add(1)
		go c.fetch(i, c.fetchGen, step.Script)
	}

	// A failed bootstrap stays visible; there is nothing to run.
	if c.failure != nil {
		c.setOutput(*c.failure)
		return
	}
	c.setOutput(Output{Text: msgRunPrompt, Kind: KindPrompt})
}

func (c *Controller) stepView(i int) StepView {
	return NewStepView(c.reg, i)
}

// NewStepView builds the view of step i of reg. i must be in range.
func NewStepView(reg *mathwalk.Registry, i int) StepView {
	n := reg.Count()
	step := reg.Get(i)
	items := make([]StepItem, n)
	for j, title := range reg.Titles() {
		items[j] = StepItem{Index: j, Title: title, Active: j == i}
	}
	return StepView{
		Index:       i,
		Count:       n,
		Title:       step.Title,
		Explanation: step.Explanation,
		Progress:    float64(i+1) / float64(n) * 100,
		Counter:     fmt.Sprintf("Step %d of %d", i+1, n),
		PrevEnabled: i > 0,
		NextEnabled: i < n-1,
		Items:       items,
	}
}

// fetch resolves a script reference and shows it if step i is still the
// one the fetch was started for.
func (c *Controller) fetch(i int, gen uint64, ref string) {
	defer c.wg.Done()

	var code string
	var err error
	if c.fetcher == nil {
		err = fmt.Errorf("no script source configured for %s", ref)
	} else {
		code, err = c.fetcher.Fetch(c.ctx, ref)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.fetchGen || i != c.current {
		c.logger.Debug("Discarding stale fetch", "step", i, "script", ref)
		return
	}
	if err != nil {
		c.logger.Warn("Script fetch failed", "step", i, "script", ref, "error", err)
		c.view.RenderCode(CodeView{Index: i, Code: fmt.Sprintf(msgCodeLoadError, source.UserFriendlyMessage(err))})
		return
	}
	c.view.RenderCode(CodeView{Index: i, Code: code})
}
