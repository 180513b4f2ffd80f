package protocol

import "fmt"

// DisplayString renders a short, human-readable summary of an event
// for debug output. It never includes content bodies, only enough to
// identify what happened.
func (e Event) DisplayString() string {
	switch {
	case e.SessionID != "" && e.StepID != "":
		return fmt.Sprintf("[%d] %s session=%s step=%s", e.Seq, e.Tag, e.SessionID, e.StepID)
	case e.SessionID != "":
		return fmt.Sprintf("[%d] %s session=%s", e.Seq, e.Tag, e.SessionID)
	default:
		return fmt.Sprintf("[%d] %s", e.Seq, e.Tag)
	}
}
