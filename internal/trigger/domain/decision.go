package trigger

// TriggerNumber counts decisions within a run, starting at 1.
type TriggerNumber uint64

// TriggerType is the downstream trigger-type code.
type TriggerType uint16

// DefaultTriggerType is used for every decision when passthrough is disabled.
const DefaultTriggerType TriggerType = 1

// ReadoutType tells the dataflow how to interpret the readout window.
type ReadoutType uint8

const (
	ReadoutInvalid ReadoutType = iota
	ReadoutLocalized
	ReadoutExtended
)

// ComponentRequest asks one link for data within a window.
type ComponentRequest struct {
	Component   Link      `json:"component"`
	WindowBegin Timestamp `json:"window_begin"`
	WindowEnd   Timestamp `json:"window_end"`
}

// Decision is a readout request bundle built from a single candidate.
type Decision struct {
	TriggerNumber    TriggerNumber      `json:"trigger_number"`
	RunNumber        RunNumber          `json:"run_number"`
	TriggerTimestamp Timestamp          `json:"trigger_timestamp"`
	TriggerType      TriggerType        `json:"trigger_type"`
	ReadoutType      ReadoutType        `json:"readout_type"`
	Components       []ComponentRequest `json:"components"`
}

// DeriveTriggerType computes the trigger-type code for a candidate.
// With passthrough on, timing candidates carry the low byte of their detector id
// and every other type is shifted into the high byte. Downstream consumers rely
// on this numbering.
func DeriveTriggerType(c Candidate, passthrough bool) TriggerType {
	if !passthrough {
		return DefaultTriggerType
	}
	if c.Type.IsTiming() {
		return TriggerType(c.DetID & 0xff)
	}
	return TriggerType(c.Type.Code() << 8)
}

// NewDecision builds the decision for a candidate against the configured links.
func NewDecision(c Candidate, number TriggerNumber, run RunNumber, links []Link, passthrough bool) Decision {
	components := make([]ComponentRequest, 0, len(links))
	for _, link := range links {
		components = append(components, ComponentRequest{
			Component:   link,
			WindowBegin: c.TimeStart,
			WindowEnd:   c.TimeEnd,
		})
	}
	return Decision{
		TriggerNumber:    number,
		RunNumber:        run,
		TriggerTimestamp: c.TimeCandidate,
		TriggerType:      DeriveTriggerType(c, passthrough),
		ReadoutType:      ReadoutLocalized,
		Components:       components,
	}
}
