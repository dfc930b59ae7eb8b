package cli

import (
	"errors"
	"fmt"

	"github.com/petal-labs/multitool/registry"
)

// Exit codes
const (
	exitSuccess    = 0
	exitValidation = 1
	exitRuntime    = 2
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ExitCode maps a dispatch error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	var (
		usageErr     *UsageError
		unknownErr   *UnknownToolError
		optionErr    *InvalidOptionError
		exclusiveErr *MutuallyExclusiveModesError
		conflictErr  *registry.SchemaConflictError
	)
	switch {
	case errors.As(err, &usageErr),
		errors.As(err, &unknownErr),
		errors.As(err, &optionErr),
		errors.As(err, &exclusiveErr),
		errors.As(err, &conflictErr):
		return exitValidation
	}
	return exitRuntime
}
