package enums

import "fmt"

// ReconJobStatus tracks a reconciliation job through the lease protocol.
type ReconJobStatus string

const (
	ReconJobStatusPending    ReconJobStatus = "pending"
	ReconJobStatusInProgress ReconJobStatus = "in_progress"
	ReconJobStatusDone       ReconJobStatus = "done"
	ReconJobStatusFailed     ReconJobStatus = "failed"
)

var validReconJobStatuses = []ReconJobStatus{
	ReconJobStatusPending,
	ReconJobStatusInProgress,
	ReconJobStatusDone,
	ReconJobStatusFailed,
}

// String implements fmt.Stringer.
func (s ReconJobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether the job can never change again.
func (s ReconJobStatus) IsTerminal() bool {
	return s == ReconJobStatusDone || s == ReconJobStatusFailed
}

// IsValid reports whether the value is a known ReconJobStatus.
func (s ReconJobStatus) IsValid() bool {
	for _, candidate := range validReconJobStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReconJobStatus converts raw input into a ReconJobStatus.
func ParseReconJobStatus(value string) (ReconJobStatus, error) {
	for _, candidate := range validReconJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recon job status %q", value)
}
