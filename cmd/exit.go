package cmd

import (
	"errors"
	"os"

	"rmcli/internal/format"
	"rmcli/internal/model"
	"rmcli/internal/profile"
	"rmcli/internal/session"
	"rmcli/internal/storage"
)

// Process exit codes.
const (
	ExitOK               = 0
	ExitFailure          = 1
	ExitUsage            = 2
	ExitNotAuthenticated = 3
	ExitTransport        = 4
	ExitLocalConfig      = 5
	ExitMalformed        = 6
)

// errUsage marks bad command-line input detected after flag parsing.
var errUsage = errors.New("invalid usage")

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	switch {
	case errors.Is(err, errUsage):
		return ExitUsage
	case errors.Is(err, session.ErrInvalidCredentials):
		return ExitNotAuthenticated
	case errors.Is(err, session.ErrMalformedResponse):
		return ExitMalformed
	case errors.Is(err, session.ErrPersistFailed):
		return ExitLocalConfig
	}

	var failure *model.FailureError
	if errors.As(err, &failure) {
		return exitCodeForKind(failure.Kind)
	}

	switch {
	case errors.Is(err, profile.ErrProfileNotFound),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrInvalidFormat),
		errors.Is(err, storage.ErrIOFailure),
		errors.Is(err, storage.ErrInvalidID):
		return ExitLocalConfig
	case errors.Is(err, storage.ErrDefaultProfile):
		return ExitUsage
	}
	return ExitFailure
}

func exitCodeForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotAuthenticated:
		return ExitNotAuthenticated
	case model.KindTransportFailure:
		return ExitTransport
	case model.KindMalformedResponse:
		return ExitMalformed
	case model.KindInvalidRequest:
		return ExitUsage
	case model.KindLocalFailure:
		return ExitLocalConfig
	default:
		return ExitFailure
	}
}

func printer() *format.Printer {
	if rt.printer != nil {
		return rt.printer
	}
	return format.NewPrinter(format.FormatJSON)
}

// fail prints err and exits with its mapped code.
func fail(err error) {
	printer().PrintError(err.Error())
	closeRuntime()
	os.Exit(exitCode(err))
}

// finish prints the envelope and exits non-zero when it is a failure.
func finish(result model.Result) {
	if err := printer().PrintResult(result); err != nil {
		fail(err)
	}
	if !result.OK() {
		printer().PrintError(result.Description)
		closeRuntime()
		os.Exit(exitCodeForKind(result.Kind))
	}
}
