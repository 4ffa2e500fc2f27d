package domain

import dErrors "profilevault/pkg/domain-errors"

// Sensitivity classifies data into five ordered tiers. The tier drives how many
// encryption layers wrap the payload and how strict access control is.
type Sensitivity int

const (
	SensitivityPublic Sensitivity = iota
	SensitivityInternal
	SensitivityConfidential
	SensitivitySecret
	SensitivityTopSecret
)

var sensitivityNames = map[Sensitivity]string{
	SensitivityPublic:       "public",
	SensitivityInternal:     "internal",
	SensitivityConfidential: "confidential",
	SensitivitySecret:       "secret",
	SensitivityTopSecret:    "top_secret",
}

func (s Sensitivity) String() string {
	if name, ok := sensitivityNames[s]; ok {
		return name
	}
	return "unknown"
}

// Valid reports whether s is one of the five defined tiers.
func (s Sensitivity) Valid() bool {
	_, ok := sensitivityNames[s]
	return ok
}

// AtLeast reports whether s is at or above the given tier.
func (s Sensitivity) AtLeast(other Sensitivity) bool {
	return s >= other
}

// ParseSensitivity converts the wire representation back into a tier.
func ParseSensitivity(raw string) (Sensitivity, error) {
	for s, name := range sensitivityNames {
		if name == raw {
			return s, nil
		}
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown sensitivity: "+raw)
}

// MarshalText implements encoding.TextMarshaler so envelopes serialize the
// tier name, not the ordinal.
func (s Sensitivity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid sensitivity")
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Sensitivity) UnmarshalText(text []byte) error {
	parsed, err := ParseSensitivity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SecurityLevel is a profile's overall classification. It reuses the
// sensitivity scale: a profile at a given level stores data up to that tier.
type SecurityLevel = Sensitivity
