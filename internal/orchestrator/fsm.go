package orchestrator

import (
	"fmt"

	"github.com/formpilot/fieldmap/constants"
)

// Event drives stage transitions. The transition function is pure; all side
// effects (checkpointing, attempt counting) live in the stage runner.
type Event string

const (
	EventClassified Event = "CLASSIFIED" // profile selected
	EventMapped     Event = "MAPPED"     // engine produced an assignment
	EventQAPassed   Event = "QA_PASSED"
	EventQAFailed   Event = "QA_FAILED"  // attempts remain
	EventRetry      Event = "RETRY"      // recovery chose another MAP pass
	EventExhausted  Event = "EXHAUSTED"  // no attempts remain, finalize degraded
	EventTimeout    Event = "TIMEOUT"    // stage budget blown
	EventCancelled  Event = "CANCELLED"  // caller cancelled the job
	EventFatal      Event = "FATAL"      // non-recoverable schema/config error
)

// transitions is the complete stage graph. A (stage, event) pair absent here
// is a programming error, never silently absorbed.
var transitions = map[constants.Stage]map[Event]constants.Stage{
	constants.StageClassify: {
		EventClassified: constants.StageMap,
		EventCancelled:  constants.StageFinalize,
		EventFatal:      constants.StageFailed,
	},
	constants.StageMap: {
		EventMapped:    constants.StageQA,
		EventTimeout:   constants.StageRecover,
		EventExhausted: constants.StageFinalize,
		EventCancelled: constants.StageFinalize,
		EventFatal:     constants.StageFailed,
	},
	constants.StageQA: {
		EventQAPassed:  constants.StageFinalize,
		EventQAFailed:  constants.StageRecover,
		EventExhausted: constants.StageFinalize,
		EventTimeout:   constants.StageRecover,
		EventCancelled: constants.StageFinalize,
		EventFatal:     constants.StageFailed,
	},
	constants.StageRecover: {
		EventRetry:     constants.StageMap,
		EventExhausted: constants.StageFinalize,
		EventCancelled: constants.StageFinalize,
		EventFatal:     constants.StageFailed,
	},
}

// Next returns the stage following (stage, event), or an error for an
// undefined transition. Stages only move forward or into the recovery loop.
func Next(stage constants.Stage, ev Event) (constants.Stage, error) {
	if next, ok := transitions[stage][ev]; ok {
		return next, nil
	}
	return stage, fmt.Errorf("no transition from %s on %s", stage, ev)
}
