package trigger

import "fmt"

// SystemType is the detector subsystem a readout link belongs to.
type SystemType uint8

const (
	SystemInvalid SystemType = iota
	SystemTPC
	SystemPDS
	SystemDataSelection
	SystemNDLArTPC
)

func (s SystemType) String() string {
	switch s {
	case SystemTPC:
		return "TPC"
	case SystemPDS:
		return "PDS"
	case SystemDataSelection:
		return "DataSelection"
	case SystemNDLArTPC:
		return "NDLArTPC"
	default:
		return "Invalid"
	}
}

// ParseSystemType maps a configured system name onto a SystemType.
func ParseSystemType(value string) (SystemType, error) {
	switch value {
	case "TPC":
		return SystemTPC, nil
	case "PDS":
		return SystemPDS, nil
	case "DataSelection":
		return SystemDataSelection, nil
	case "NDLArTPC":
		return SystemNDLArTPC, nil
	default:
		return SystemInvalid, fmt.Errorf("%w: %q", ErrUnknownSystemType, value)
	}
}

// Link identifies a readout component.
type Link struct {
	System  SystemType `json:"system"`
	Region  uint16     `json:"region"`
	Element uint32     `json:"element"`
}

func (l Link) String() string {
	return fmt.Sprintf("%s:%d:%d", l.System, l.Region, l.Element)
}

// NewLink parses a configured link.
func NewLink(system string, region uint16, element uint32) (Link, error) {
	st, err := ParseSystemType(system)
	if err != nil {
		return Link{}, err
	}
	return Link{System: st, Region: region, Element: element}, nil
}
