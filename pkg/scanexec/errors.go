package scanexec

import "fmt"

// RejectReason tells why a scan request was refused before launch.
type RejectReason string

const (
	// RejectPendingFeed means a feed update is waiting and the VT table
	// may not match the store.
	RejectPendingFeed RejectReason = "pending_feed"
	// RejectNoPorts means the request carries no usable port list.
	RejectNoPorts RejectReason = "no_ports"
	// RejectNoVTs means the request selects no runnable VTs.
	RejectNoVTs RejectReason = "no_vts"
)

// RequestRejectedError is returned when a scan is refused before the engine
// is launched. No cleanup is needed for a rejected scan.
type RequestRejectedError struct {
	ScanID string
	Reason RejectReason
	Detail string
}

func (e *RequestRejectedError) Error() string {
	return fmt.Sprintf("scan %s rejected (%s): %s", e.ScanID, e.Reason, e.Detail)
}

// NewRequestRejectedError creates a RequestRejectedError.
func NewRequestRejectedError(scanID string, reason RejectReason, detail string) *RequestRejectedError {
	return &RequestRejectedError{ScanID: scanID, Reason: reason, Detail: detail}
}

// LaunchFailedError is returned when the engine process could not be
// spawned or never became ready. Fatal for the affected scan only.
type LaunchFailedError struct {
	ScanID string
	Err    error
}

func (e *LaunchFailedError) Error() string {
	return fmt.Sprintf("scan %s: engine launch failed: %v", e.ScanID, e.Err)
}

func (e *LaunchFailedError) Unwrap() error {
	return e.Err
}

// NewLaunchFailedError creates a LaunchFailedError wrapping err.
func NewLaunchFailedError(scanID string, err error) *LaunchFailedError {
	return &LaunchFailedError{ScanID: scanID, Err: err}
}

// AlreadyRunningError is returned when a scan ID is submitted while a scan
// with the same ID is still executing.
type AlreadyRunningError struct {
	ScanID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("scan %s is already running", e.ScanID)
}

// NewAlreadyRunningError creates an AlreadyRunningError.
func NewAlreadyRunningError(scanID string) *AlreadyRunningError {
	return &AlreadyRunningError{ScanID: scanID}
}
