// Package errs provides a unified, classifiable error type for the
// station control core.
//
// Copyright (C) 2026  JBclone Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.
package errs

import "fmt"

// Code identifies the broad category of a StationError.
type Code string

const (
	// Persistence (EEPROM-backed record) errors.
	ErrPersistLoad Code = "PERSIST_LOAD"
	ErrPersistSave Code = "PERSIST_SAVE"

	// Channel setpoint/lifecycle errors.
	ErrChannelBounds Code = "CHANNEL_BOUNDS"
	ErrRunaway       Code = "CHANNEL_RUNAWAY"

	// Command-surface errors.
	ErrCommandParse    Code = "COMMAND_PARSE"
	ErrCommandUnknown  Code = "COMMAND_UNKNOWN"
	ErrCommandDeviceID Code = "COMMAND_DEVICE_ID"
	ErrCommandValue    Code = "COMMAND_VALUE"

	// Station configuration errors.
	ErrConfig Code = "CONFIG"
)

// StationError is the unified error type returned by this module's
// packages.
type StationError struct {
	Code    Code
	Message string
	Channel int // channel index, -1 if not applicable
	Err     error
}

// Error implements the error interface.
func (e *StationError) Error() string {
	if e.Channel >= 0 {
		return fmt.Sprintf("[%s] channel %d: %s", e.Code, e.Channel, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error, if any.
func (e *StationError) Unwrap() error {
	return e.Err
}

// New creates a StationError with no channel context.
func New(code Code, message string) *StationError {
	return &StationError{Code: code, Message: message, Channel: -1}
}

// Wrap wraps an existing error under a StationError code.
func Wrap(err error, code Code, message string) *StationError {
	return &StationError{Code: code, Message: message, Channel: -1, Err: err}
}

// ForChannel attaches a channel index to the error.
func (e *StationError) ForChannel(idx int) *StationError {
	e.Channel = idx
	return e
}

// PersistLoadError creates an error for a failed record load.
func PersistLoadError(reason string) *StationError {
	return New(ErrPersistLoad, reason)
}

// PersistSaveError creates an error for a failed record save.
func PersistSaveError(reason string) *StationError {
	return New(ErrPersistSave, reason)
}

// ChannelBoundsError creates an error for a setpoint outside its allowed range.
func ChannelBoundsError(field string, value, min, max float64) *StationError {
	return New(ErrChannelBounds, fmt.Sprintf("%s=%.5f out of range [%.5f, %.5f]", field, value, min, max))
}

// RunawayError creates an error describing a thermal runaway trip.
func RunawayError(tempC, thresholdC float64) *StationError {
	return New(ErrRunaway, fmt.Sprintf("temperature %.2f exceeds runaway threshold %.2f", tempC, thresholdC))
}

// CommandMalformedError creates the canonical malformed-command response.
func CommandMalformedError() *StationError {
	return New(ErrCommandParse, "Malformed command. Format: id:command:value_or_?")
}

// CommandUnknownError creates the canonical unknown-command response.
func CommandUnknownError() *StationError {
	return New(ErrCommandUnknown, "Unknown command")
}

// CommandDeviceIDError creates the canonical invalid-device-id response.
func CommandDeviceIDError() *StationError {
	return New(ErrCommandDeviceID, "Invalid device ID")
}

// CommandValueError creates an error for an unparsable or out-of-range command argument.
func CommandValueError(reason string) *StationError {
	return New(ErrCommandValue, reason)
}
