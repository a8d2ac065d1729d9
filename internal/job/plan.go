package job

import "github.com/aliskhannn/image-compressor/internal/model"

// Plan lists the stages that must rerun.
type Plan struct {
	Decode     bool
	Preprocess bool
	Process    [2]bool
	Encode     [2]bool
}

// Main reports whether the shared stage must run.
func (p Plan) Main() bool {
	return p.Decode || p.Preprocess
}

// Side reports whether side i must run.
func (p Plan) Side(i model.Side) bool {
	return p.Process[i] || p.Encode[i]
}

// Empty reports whether no stage needs work.
func (p Plan) Empty() bool {
	return !p.Main() && !p.Side(model.SideA) && !p.Side(model.SideB)
}

// Diff compares the last known jobs against the desired ones.
func Diff(lastMain, desiredMain Main, lastSide, desiredSide [2]Side) Plan {
	var p Plan

	p.Decode = fileID(lastMain.File) != fileID(desiredMain.File)
	p.Preprocess = p.Decode || lastMain.Preprocessor != desiredMain.Preprocessor

	for i := range desiredSide {
		last, want := lastSide[i], desiredSide[i]

		p.Process[i] = p.Preprocess ||
			last.Processor == nil ||
			(want.Encoder != nil) != (last.Encoder != nil) ||
			!ProcessorSettingsEquivalent(last.Processor, want.Processor)
		p.Encode[i] = p.Process[i] || last.Encoder != want.Encoder
	}

	return p
}

// ProcessorSettingsEquivalent reports whether a and b produce the same
// processed image. Steps disabled on both sides never differ; once any step
// is enabled on either side the two settings must be the same instance.
func ProcessorSettingsEquivalent(a, b *model.ProcessorSettings) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}

	for _, step := range model.StepOrder {
		if !a.Enabled(step) && !b.Enabled(step) {
			continue
		}
		return false
	}

	return true
}
