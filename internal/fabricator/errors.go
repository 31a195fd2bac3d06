package fabricator

import (
	"errors"
	"fmt"
)

// Error is a system fault that aborts the current segment attempt.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "fabrication: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a fabrication fault.
func Errorf(format string, args ...any) error {
	return &Error{Err: fmt.Errorf(format, args...)}
}

// IsFabricationError reports whether err is (or wraps) a fabrication fault.
func IsFabricationError(err error) bool {
	var fe *Error
	return errors.As(err, &fe)
}

// EntityType names the kind of library content that was missing.
type EntityType string

const (
	EntityProgram         EntityType = "Program"
	EntityProgramSequence EntityType = "ProgramSequence"
	EntityPattern         EntityType = "ProgramSequencePattern"
	EntityInstrument      EntityType = "Instrument"
	EntityInstrumentAudio EntityType = "InstrumentAudio"
)

// Missing is one content gap report.
type Missing struct {
	Entity  EntityType
	Context string
}

func (m Missing) String() string {
	return fmt.Sprintf("%s: %s", m.Entity, m.Context)
}
