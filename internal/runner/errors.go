package runner

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidConfig      = errors.New("invalid benchmark config")
	ErrConfiguration      = errors.New("instrument configuration failed")
	ErrAcquisition        = errors.New("acquisition failed")
	ErrAcquisitionTimeout = errors.New("acquisition timeout")
	ErrTransfer           = errors.New("waveform transfer failed")
)

// InvalidConfigError is returned before any instrument interaction.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s %s", e.Field, e.Reason)
}

func (e *InvalidConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// ConfigurationError identifies the configuration step the instrument rejected.
// The session should be reopened before trying again.
type ConfigurationError struct {
	Step    int
	Name    string
	Command string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration step %d (%s) %q: %v", e.Step, e.Name, e.Command, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// AcquisitionError reports a failure while arming the instrument or waiting
// for the operation-complete handshake.
type AcquisitionError struct {
	Trial   int
	Command string
	Timeout bool
	Err     error
}

func (e *AcquisitionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("trial %d: acquisition timed out on %q: %v", e.Trial, e.Command, e.Err)
	}
	return fmt.Sprintf("trial %d: acquisition failed on %q: %v", e.Trial, e.Command, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

func (e *AcquisitionError) Is(target error) bool {
	return target == ErrAcquisition || (e.Timeout && target == ErrAcquisitionTimeout)
}

// TransferError reports a failed or malformed curve read.
type TransferError struct {
	Trial int
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("trial %d: waveform transfer failed: %v", e.Trial, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

func (e *TransferError) Is(target error) bool {
	return target == ErrTransfer
}

// FailedTrial returns the 1-based trial an error belongs to, or 0.
func FailedTrial(err error) int {
	var acq *AcquisitionError
	if errors.As(err, &acq) {
		return acq.Trial
	}
	var tr *TransferError
	if errors.As(err, &tr) {
		return tr.Trial
	}
	return 0
}
