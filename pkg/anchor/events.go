package anchor

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/stretchr/testify/require"
)

// ProgramDataPrefix starts every log line that carries an emitted event.
const ProgramDataPrefix = "Program data: "

// Event is an Anchor event struct. EventName must have a value receiver;
// it names the struct for the "event:" discriminator.
type Event interface {
	EventName() string
}

// TestingT is the subset of *testing.T the assertions need.
type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
}

// LogSource is anything carrying transaction logs.
type LogSource interface {
	Logs() []string
}

// EventDiscriminatorOf returns the discriminator of T.
func EventDiscriminatorOf[T Event]() Discriminator {
	var zero T
	return EventDiscriminator(zero.EventName())
}

// EncodeEvent returns the bytes a program emits for v.
func EncodeEvent(v Event) ([]byte, error) {
	body, err := Encode(v)
	if err != nil {
		return nil, err
	}
	disc := EventDiscriminator(v.EventName())
	return append(disc[:], body...), nil
}

// ParseEvents decodes every T emitted in logs, in log order. Other
// events and payloads shorter than a discriminator are skipped.
func ParseEvents[T Event](logs []string) ([]T, error) {
	disc := EventDiscriminatorOf[T]()

	var events []T
	for _, line := range logs {
		encoded, ok := strings.CutPrefix(line, ProgramDataPrefix)
		if !ok {
			continue
		}

		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
		if err != nil {
			return nil, &EventError{Kind: EventBase64Error, Err: err}
		}
		if len(data) < DiscriminatorSize || !disc.Matches(data) {
			continue
		}

		var evt T
		if err := Decode(data[DiscriminatorSize:], &evt); err != nil {
			return nil, &EventError{Kind: EventAnchorError, Err: err}
		}
		events = append(events, evt)
	}
	return events, nil
}

// ParseEvent returns the first T emitted in logs.
func ParseEvent[T Event](logs []string) (T, error) {
	var zero T
	events, err := ParseEvents[T](logs)
	if err != nil {
		return zero, err
	}
	if len(events) == 0 {
		return zero, &EventError{Kind: EventNotFound}
	}
	return events[0], nil
}

// HasEvent reports whether logs contain at least one T.
func HasEvent[T Event](logs []string) bool {
	events, err := ParseEvents[T](logs)
	return err == nil && len(events) > 0
}

// ParseEventData decodes one base64 event payload, discriminator included.
func ParseEventData[T Event](encoded string) (T, error) {
	var evt T
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return evt, &EventError{Kind: EventBase64Error, Err: err}
	}
	if !EventDiscriminatorOf[T]().Matches(data) {
		return evt, &EventError{Kind: EventInvalidFormat}
	}
	if err := Decode(data[DiscriminatorSize:], &evt); err != nil {
		return evt, &EventError{Kind: EventAnchorError, Err: err}
	}
	return evt, nil
}

// AssertEventEmitted fails t unless src logged at least one T, and
// returns the first one.
func AssertEventEmitted[T Event](t TestingT, src LogSource) T {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	evt, err := ParseEvent[T](src.Logs())
	require.NoError(t, err, "expected event %s to be emitted\n%s", evt.EventName(), dumpLogs(src.Logs()))
	return evt
}

// AssertEventCount fails t unless src logged exactly n events of type T.
func AssertEventCount[T Event](t TestingT, src LogSource, n int) []T {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	events, err := ParseEvents[T](src.Logs())
	require.NoError(t, err, "failed to parse events\n%s", dumpLogs(src.Logs()))
	var zero T
	require.Len(t, events, n, "unexpected number of %s events\n%s", zero.EventName(), dumpLogs(src.Logs()))
	return events
}

func dumpLogs(logs []string) string {
	var sb strings.Builder
	sb.WriteString("Logs:\n")
	for i, l := range logs {
		sb.WriteString(fmt.Sprintf("  [%d] %s\n", i, l))
	}
	return sb.String()
}
