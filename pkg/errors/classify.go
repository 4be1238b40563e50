package errors

// Class buckets an error by the stage of the pipeline it originated in, so
// the supervisor and cmd/pipelinectl can decide severity without matching
// on error strings.
type Class int

const (
	// ClassUnknown is returned for errors this package cannot attribute to
	// a stage; treat as at least as severe as ClassTask.
	ClassUnknown Class = iota
	ClassConfig
	ClassExpansion
	ClassSubmission
	ClassTask
	ClassTransientQuery
	ClassStore
	ClassNotifier
)

func (c Class) String() string {
	switch c {
	case ClassConfig:
		return "config"
	case ClassExpansion:
		return "expansion"
	case ClassSubmission:
		return "submission"
	case ClassTask:
		return "task"
	case ClassTransientQuery:
		return "transient_query"
	case ClassStore:
		return "store"
	case ClassNotifier:
		return "notifier"
	default:
		return "unknown"
	}
}

// classified is implemented by sentinel errors constructed with
// WithClass, letting Classify recover a Class through any number of
// Wrap/WrapWithNote layers via errors.As-style unwrapping.
type classified interface {
	Class() Class
}

type classifiedErr struct {
	class Class
	err   error
}

func (e *classifiedErr) Class() Class { return e.class }
func (e *classifiedErr) Error() string { return e.err.Error() }
func (e *classifiedErr) Unwrap() error { return e.err }

// WithClass tags err with a Class so a later Classify(wrapped) call
// recovers it regardless of how many times the error was subsequently
// wrapped with Wrap/WrapWithNote.
func WithClass(class Class, err error) error {
	if err == nil {
		return nil
	}
	return &classifiedErr{class: class, err: err}
}

// Classify walks err's Unwrap chain looking for a Class tagged by
// WithClass. If none is found, it returns ClassUnknown.
func Classify(err error) Class {
	for err != nil {
		if c, ok := err.(classified); ok {
			return c.Class()
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ClassUnknown
}
