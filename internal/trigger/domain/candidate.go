package trigger

// Timestamp is a tick count in the detector clock domain.
type Timestamp uint64

// RunNumber identifies a data-taking run.
type RunNumber uint32

// CandidateType classifies a trigger candidate. The set is closed: decision
// construction only distinguishes Timing from everything else.
type CandidateType uint32

const (
	TypeUnknown CandidateType = iota
	TypeTiming
	TypeTPCLowE
	TypeSupernova
	TypeRandom
	TypePrescale
	TypeADCSimpleWindow
	TypeHorizontalMuon
)

// IsTiming reports whether the candidate came from a hardware timing signal.
func (t CandidateType) IsTiming() bool {
	return t == TypeTiming
}

// Code returns the numeric code of the type.
func (t CandidateType) Code() uint32 {
	return uint32(t)
}

func (t CandidateType) String() string {
	switch t {
	case TypeUnknown:
		return "unknown"
	case TypeTiming:
		return "timing"
	case TypeTPCLowE:
		return "tpc_low_e"
	case TypeSupernova:
		return "supernova"
	case TypeRandom:
		return "random"
	case TypePrescale:
		return "prescale"
	case TypeADCSimpleWindow:
		return "adc_simple_window"
	case TypeHorizontalMuon:
		return "horizontal_muon"
	default:
		return "other"
	}
}

// Candidate is one detected trigger-worthy event. It is immutable once built.
type Candidate struct {
	TimeStart     Timestamp     `json:"time_start" yaml:"time_start"`
	TimeEnd       Timestamp     `json:"time_end" yaml:"time_end"`
	TimeCandidate Timestamp     `json:"time_candidate" yaml:"time_candidate"`
	Type          CandidateType `json:"type" yaml:"type"`
	DetID         uint16        `json:"detid" yaml:"detid"`
	Algorithm     uint32        `json:"algorithm" yaml:"algorithm"`
	Version       uint16        `json:"version" yaml:"version"`
}

// Inhibit is a busy/idle notification from the downstream consumer.
type Inhibit struct {
	RunNumber RunNumber `json:"run_number"`
	Busy      bool      `json:"busy"`
}
