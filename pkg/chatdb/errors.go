package chatdb

import "fmt"

// ConfigurationError reports a channel, format or rule definition that could
// not be loaded. It is fatal to that one definition only.
type ConfigurationError struct {
	Source string // file or definition name
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration %s: %v", e.Source, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// PreconditionError is a user-facing, recoverable failure. Key names the
// message template shown to the participant.
type PreconditionError struct {
	Key MessageKey
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + string(e.Key)
}

// TransportError reports an unreadable inbound frame.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport: %s: %v", e.Reason, e.Err)
	}
	return "transport: " + e.Reason
}

func (e *TransportError) Unwrap() error { return e.Err }
