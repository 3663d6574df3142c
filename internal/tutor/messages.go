package tutor

// Text shown in the editor and output panel.
const (
	msgLoadingRuntime = "⏳ Loading Python environment..."
	msgRuntimeReady   = "✅ Python ready! Click \"Run\" to execute."
	msgRuntimeFailed  = "❌ Failed to load Python: %s"
	msgCodeLoading    = "# Loading..."
	msgCodeLoadError  = "# Error loading script: %s"
	msgRunPrompt      = "👆 Click \"Run\" to execute this code"
	msgRunning        = "⏳ Running..."
	msgNoOutput       = "(No output)"
	msgRunError       = "❌ Error:\n%s"
)
