package enums

import "fmt"

// ReconResultStatus is the verdict the matcher reached for one attempt.
type ReconResultStatus string

const (
	ReconResultStatusMatched    ReconResultStatus = "matched"
	ReconResultStatusMismatched ReconResultStatus = "mismatched"
	ReconResultStatusError      ReconResultStatus = "error"
)

var validReconResultStatuses = []ReconResultStatus{
	ReconResultStatusMatched,
	ReconResultStatusMismatched,
	ReconResultStatusError,
}

// IsValid reports whether the value is a known ReconResultStatus.
func (s ReconResultStatus) IsValid() bool {
	for _, candidate := range validReconResultStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReconResultStatus converts raw input into a ReconResultStatus.
func ParseReconResultStatus(value string) (ReconResultStatus, error) {
	for _, candidate := range validReconResultStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reconciliation result status %q", value)
}
