package tutor

// OutputKind classifies what the output panel is showing.
type OutputKind string

const (
	KindStatus  OutputKind = "status"
	KindPrompt  OutputKind = "prompt"
	KindRunning OutputKind = "running"
	KindResult  OutputKind = "result"
	KindError   OutputKind = "error"
)

// Output is the content of the output panel. Highlight marks an error that
// should be styled until it is reverted.
type Output struct {
	Text      string     `json:"text"`
	Kind      OutputKind `json:"kind"`
	Highlight bool       `json:"highlight"`
}

// StepItem is one entry of the clickable step list.
type StepItem struct {
	Index  int    `json:"index"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// StepView is everything rendered on a step transition except the code.
type StepView struct {
	Index       int        `json:"index"`
	Count       int        `json:"count"`
	Title       string     `json:"title"`
	Explanation string     `json:"explanation"` // Trusted HTML
	Progress    float64    `json:"progress"`    // Percent, (index+1)/count*100
	Counter     string     `json:"counter"`
	PrevEnabled bool       `json:"prevEnabled"`
	NextEnabled bool       `json:"nextEnabled"`
	Items       []StepItem `json:"items"`
}

// CodeView is the editor content for a step.
type CodeView struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Loading bool   `json:"loading"`
}

// View renders controller state. Calls are made while the controller's
// lock is held, so implementations must not call back into the Controller
// and should not block for long.
type View interface {
	RenderStep(StepView)
	RenderCode(CodeView)
	RenderOutput(Output)
	SetReady(bool)
}

// LoadingOutput is what the output panel shows before a session has started
// its interpreter.
func LoadingOutput() Output {
	return Output{Text: msgLoadingRuntime, Kind: KindStatus}
}
