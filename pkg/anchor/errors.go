package anchor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ErrorCodeOffset is the first code of program-defined Anchor errors.
const ErrorCodeOffset = 6000

// BuildError reports an instruction or transaction that could not be built.
type BuildError struct {
	Msg string
	Err error
}

func (e *BuildError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// EventErrorKind classifies an EventError.
type EventErrorKind int

const (
	EventParseError EventErrorKind = iota
	EventNotFound
	EventInvalidFormat
	EventBase64Error
	EventAnchorError
)

func (k EventErrorKind) String() string {
	switch k {
	case EventParseError:
		return "ParseError"
	case EventNotFound:
		return "EventNotFound"
	case EventInvalidFormat:
		return "InvalidFormat"
	case EventBase64Error:
		return "Base64Error"
	case EventAnchorError:
		return "AnchorError"
	default:
		return "EventErrorKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// EventError is returned by the event parsing functions.
type EventError struct {
	Kind EventErrorKind
	Err  error
}

// ErrEventNotFound matches any EventError of kind EventNotFound with errors.Is.
var ErrEventNotFound = &EventError{Kind: EventNotFound}

func (e *EventError) Error() string {
	switch e.Kind {
	case EventParseError:
		return fmt.Sprintf("Failed to parse event data: %v", e.Err)
	case EventNotFound:
		return "Event not found in logs"
	case EventInvalidFormat:
		return "Invalid event format"
	case EventBase64Error:
		return fmt.Sprintf("Base64 decode error: %v", e.Err)
	default:
		return fmt.Sprintf("Anchor deserialization error: %v", e.Err)
	}
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// Is matches another EventError of the same kind that carries no cause.
func (e *EventError) Is(target error) bool {
	t, ok := target.(*EventError)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// AccountErrorKind classifies an AccountError.
type AccountErrorKind int

const (
	AccountNotFound AccountErrorKind = iota
	AccountDeserializationError
	AccountDiscriminatorMismatch
)

func (k AccountErrorKind) String() string {
	switch k {
	case AccountNotFound:
		return "AccountNotFound"
	case AccountDeserializationError:
		return "DeserializationError"
	case AccountDiscriminatorMismatch:
		return "DiscriminatorMismatch"
	default:
		return "AccountErrorKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// AccountError is returned by GetAccount and GetAccountUnchecked.
type AccountError struct {
	Kind    AccountErrorKind
	Address types.Pubkey
	Err     error
}

// Sentinels for errors.Is.
var (
	ErrAccountNotFound        = &AccountError{Kind: AccountNotFound}
	ErrDiscriminatorMismatch  = &AccountError{Kind: AccountDiscriminatorMismatch}
	ErrAccountDeserialization = &AccountError{Kind: AccountDeserializationError}
)

func (e *AccountError) Error() string {
	switch e.Kind {
	case AccountNotFound:
		return fmt.Sprintf("Account not found at address: %s", e.Address)
	case AccountDiscriminatorMismatch:
		return "Account discriminator mismatch"
	default:
		return fmt.Sprintf("Failed to deserialize account: %v", e.Err)
	}
}

func (e *AccountError) Unwrap() error {
	return e.Err
}

// Is matches an AccountError of the same kind.
func (e *AccountError) Is(target error) bool {
	t, ok := target.(*AccountError)
	return ok && t.Kind == e.Kind
}

// Error is a program-defined Anchor error.
type Error struct {
	Name string
	Code uint32
	Msg  string
}

// NewError defines the error at ErrorCodeOffset+index.
func NewError(index uint32, name, msg string) *Error {
	return &Error{Name: name, Code: ErrorCodeOffset + index, Msg: msg}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// Custom returns the runtime error a failing instruction reports for e.
func (e *Error) Custom() svm.CustomError {
	return svm.CustomError(e.Code)
}

// LogLine formats e the way Anchor programs log it.
func (e *Error) LogLine() string {
	return fmt.Sprintf("AnchorError occurred. Error Code: %s. Error Number: %d. Error Message: %s.", e.Name, e.Code, e.Msg)
}

// Fail logs e on ctx and returns its custom program error, for use as
// `return anchor.Fail(ctx, ErrX)` from a program.
func Fail(ctx svm.InvokeContext, e *Error) error {
	ctx.Log(e.LogLine())
	return e.Custom()
}

var anchorErrorLine = regexp.MustCompile(`AnchorError .*Error Code: (\w+)\. Error Number: (\d+)\. Error Message: (.*)\.$`)

// ParseAnchorError returns the first Anchor error logged in logs.
func ParseAnchorError(logs []string) (*Error, bool) {
	for _, line := range logs {
		if !strings.Contains(line, "AnchorError") {
			continue
		}
		m := anchorErrorLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		code, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil {
			continue
		}
		return &Error{Name: m[1], Code: uint32(code), Msg: m[3]}, true
	}
	return nil, false
}
