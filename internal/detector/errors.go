package detector

import "fmt"

// DetectorError reports a failure of the detector collaborator itself: it
// reported an error, exited abnormally, or its stream broke. It ends the run.
type DetectorError struct {
	Err error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector: %v", e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }
