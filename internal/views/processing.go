package views

import "time"

const (
	// DefaultSimulatedDuration is the span the progress animation covers.
	DefaultSimulatedDuration = 15 * time.Second

	// ProcessingNote is shown under the progress bar.
	ProcessingNote = "This should complete in under 120 seconds."
)

// ProcessingSteps are the labels cycled through while processing.
var ProcessingSteps = []string{
	"Initializing AI pipeline...",
	"Analyzing document layout...",
	"Performing Optical Character Recognition (OCR)...",
	"Structuring data with Generative AI...",
	"Converting raster to vector drawing...",
	"Finalizing outputs...",
}

// ProcessingView is purely time-based and carries no real progress signal.
type ProcessingView struct {
	FileName  string   `json:"fileName"`
	Progress  int      `json:"progress"`
	Step      int      `json:"step"`
	StepLabel string   `json:"stepLabel"`
	Steps     []string `json:"steps"`
	Note      string   `json:"note"`
	ElapsedMs int64    `json:"elapsedMs"`
}

// SimulatedProgress maps elapsed time onto a percentage and a step index.
// The percentage reaches 100 and the step reaches the last label once elapsed
// covers total; both hold there until the session settles.
func SimulatedProgress(elapsed, total time.Duration) (percent, step int) {
	if total <= 0 {
		total = DefaultSimulatedDuration
	}
	if elapsed < 0 {
		elapsed = 0
	}

	tick := total / 100
	stepSpan := total / time.Duration(len(ProcessingSteps))
	if tick <= 0 || stepSpan <= 0 {
		return 100, len(ProcessingSteps) - 1
	}

	percent = min(int(elapsed/tick), 100)
	step = min(int(elapsed/stepSpan), len(ProcessingSteps)-1)
	return percent, step
}

// NewProcessingView builds the view for a cycle that started at startedAt.
func NewProcessingView(fileName string, startedAt, now time.Time, total time.Duration) *ProcessingView {
	elapsed := now.Sub(startedAt)
	if startedAt.IsZero() {
		elapsed = 0
	}
	percent, step := SimulatedProgress(elapsed, total)

	steps := make([]string, len(ProcessingSteps))
	copy(steps, ProcessingSteps)

	return &ProcessingView{
		FileName:  fileName,
		Progress:  percent,
		Step:      step,
		StepLabel: ProcessingSteps[step],
		Steps:     steps,
		Note:      ProcessingNote,
		ElapsedMs: elapsed.Milliseconds(),
	}
}
