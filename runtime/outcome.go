package runtime

import (
	"context"
	"errors"

	"github.com/pithecene-io/playdl/assemble"
	"github.com/pithecene-io/playdl/broker"
	"github.com/pithecene-io/playdl/ledger"
	"github.com/pithecene-io/playdl/resolver"
)

// Process exit codes of the fetch surface.
const (
	ExitCodeCompleted   = 0 // package written
	ExitCodeNotFound    = 1 // no matching free package
	ExitCodeAuthFailed  = 2 // login or validation failed
	ExitCodeInteraction = 3 // login dismissed or never finished
	ExitCodeFatal       = 4 // pipeline or other error
	ExitCodeBrokerTime  = 5 // broker connection timed out
)

// Error classes recorded in the ledger and metrics.
const (
	ClassNotFound      = "not_found"
	ClassAuth          = "auth"
	ClassNoCredential  = "no_credential"
	ClassInteraction   = "interaction"
	ClassBrokerTimeout = "broker_timeout"
	ClassBroker        = "broker"
	ClassCanceled      = "canceled"
	ClassUnsupported   = "unsupported_fragment"
	ClassInvalid       = "invalid_fragment"
	ClassDownload      = "download"
	ClassStorage       = "storage"
	ClassFatal         = "fatal"
)

// Outcome is the classified terminal state of one fetch.
type Outcome struct {
	Status   ledger.Outcome
	Class    string
	ExitCode int
	Message  string
}

// OK reports a completed fetch.
func (o Outcome) OK() bool { return o.Status == ledger.OutcomeCompleted }

// DetermineOutcome classifies the error a fetch ended with. A nil error
// is a completed fetch. Classification is by errors.Is, most specific first.
func DetermineOutcome(err error) Outcome {
	if err == nil {
		return Outcome{Status: ledger.OutcomeCompleted, ExitCode: ExitCodeCompleted, Message: "package written"}
	}

	o := Outcome{Status: ledger.OutcomeFailed, ExitCode: ExitCodeFatal, Class: ClassFatal, Message: err.Error()}

	var storageErr *ledger.StorageError
	var connectErr *broker.ConnectError
	var downloadErr *assemble.DownloadError
	switch {
	case errors.Is(err, resolver.ErrNotFound):
		o.Status, o.Class, o.ExitCode = ledger.OutcomeNotFound, ClassNotFound, ExitCodeNotFound
	case errors.Is(err, broker.ErrConnectTimeout):
		o.Class, o.ExitCode = ClassBrokerTimeout, ExitCodeBrokerTime
	case errors.Is(err, broker.ErrAuthFailed):
		o.Class, o.ExitCode = ClassAuth, ExitCodeAuthFailed
	case errors.Is(err, broker.ErrNoCredential):
		o.Class, o.ExitCode = ClassNoCredential, ExitCodeAuthFailed
	case errors.Is(err, broker.ErrInteractionIncomplete):
		o.Class, o.ExitCode = ClassInteraction, ExitCodeInteraction
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		o.Class = ClassCanceled
	case errors.Is(err, assemble.ErrUnsupportedType):
		o.Class = ClassUnsupported
	case errors.Is(err, assemble.ErrNoFragments), errors.Is(err, assemble.ErrInvalidFragment):
		o.Class = ClassInvalid
	case errors.As(err, &downloadErr):
		o.Class = ClassDownload
	case errors.As(err, &connectErr):
		o.Class = ClassBroker
	case errors.As(err, &storageErr):
		o.Class = ClassStorage
	}
	return o
}
