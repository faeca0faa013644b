package harness

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/stratus-harness/pkg/anchor"
	"github.com/fortiblox/stratus-harness/pkg/ledger"
	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// TestingT is the subset of *testing.T the assertions need.
type TestingT interface {
	Errorf(format string, args ...interface{})
	FailNow()
}

// ExecutionFailedError wraps the ledger error of a failed or rejected
// transaction.
type ExecutionFailedError struct {
	Err error
}

func (e *ExecutionFailedError) Error() string {
	return e.Err.Error()
}

func (e *ExecutionFailedError) Unwrap() error {
	return e.Err
}

// ExecutionResult is the outcome of one transaction. It never changes
// after it is returned.
type ExecutionResult struct {
	label        string
	signature    types.Signature
	logs         []string
	computeUnits uint64
	fee          uint64
	slot         uint64
	returnData   *svm.ReturnData
	err          error
}

func newExecutionResult(label string, sig types.Signature, meta *ledger.TransactionMeta, err error) *ExecutionResult {
	r := &ExecutionResult{
		label:     label,
		signature: sig,
	}
	if meta != nil {
		r.signature = meta.Signature
		r.logs = meta.Logs
		r.computeUnits = meta.ComputeUnitsConsumed
		r.fee = meta.Fee
		r.slot = meta.Slot
		r.returnData = meta.ReturnData
	}
	if err != nil {
		r.err = &ExecutionFailedError{Err: err}
	}
	return r
}

// Label describes what was executed.
func (r *ExecutionResult) Label() string {
	return r.label
}

// WithLabel returns a copy of r with a new label.
func (r *ExecutionResult) WithLabel(label string) *ExecutionResult {
	c := *r
	c.label = label
	return &c
}

// Signature identifies the transaction.
func (r *ExecutionResult) Signature() types.Signature {
	return r.signature
}

// IsSuccess reports whether every instruction succeeded.
func (r *ExecutionResult) IsSuccess() bool {
	return r.err == nil
}

// Err is nil on success, and an *ExecutionFailedError otherwise.
func (r *ExecutionResult) Err() error {
	return r.err
}

// ErrorMessage is the failure text, empty on success.
func (r *ExecutionResult) ErrorMessage() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

// Logs returns the program logs. A transaction rejected before execution
// has none.
func (r *ExecutionResult) Logs() []string {
	return append([]string(nil), r.logs...)
}

// HasLog reports whether any log line contains substr.
func (r *ExecutionResult) HasLog(substr string) bool {
	_, ok := r.FindLog(substr)
	return ok
}

// FindLog returns the first log line containing substr.
func (r *ExecutionResult) FindLog(substr string) (string, bool) {
	for _, l := range r.logs {
		if strings.Contains(l, substr) {
			return l, true
		}
	}
	return "", false
}

var consumedLine = regexp.MustCompile(`^Program \S+ consumed (\d+) of \d+ compute units$`)

// ComputeUnits returns the compute units the transaction consumed. The
// runtime's count is used; when it is zero the top-level "consumed" log
// lines are summed instead.
func (r *ExecutionResult) ComputeUnits() uint64 {
	if r.computeUnits != 0 || len(r.logs) == 0 {
		return r.computeUnits
	}

	var total uint64
	depth := 0
	for _, l := range r.logs {
		switch {
		case strings.HasPrefix(l, "Program ") && strings.Contains(l, " invoke ["):
			depth++
		case strings.HasPrefix(l, "Program ") && (strings.HasSuffix(l, " success") || strings.Contains(l, " failed: ")):
			depth--
		default:
			if m := consumedLine.FindStringSubmatch(l); m != nil && depth == 1 {
				n, err := strconv.ParseUint(m[1], 10, 64)
				if err == nil {
					total += n
				}
			}
		}
	}
	return total
}

// Fee is the fee charged to the payer.
func (r *ExecutionResult) Fee() uint64 {
	return r.fee
}

// Slot is the slot the transaction executed in.
func (r *ExecutionResult) Slot() uint64 {
	return r.slot
}

// ReturnData is the data the last program set, or nil.
func (r *ExecutionResult) ReturnData() *svm.ReturnData {
	return r.returnData
}

// LogDump formats the logs for failure messages.
func (r *ExecutionResult) LogDump() string {
	var sb strings.Builder
	sb.WriteString("Logs:\n")
	for _, l := range r.logs {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// PrintLogs writes a readable report of the transaction to w.
func (r *ExecutionResult) PrintLogs(w io.Writer) {
	fmt.Fprintln(w, "=== Transaction Logs ===")
	if r.label != "" {
		fmt.Fprintf(w, "Instruction: %s\n", r.label)
	}
	for _, l := range r.logs {
		fmt.Fprintln(w, l)
	}
	if r.err != nil {
		fmt.Fprintf(w, "Error: %s\n", r.err)
	}
	fmt.Fprintf(w, "Compute Units: %d\n", r.ComputeUnits())
	fmt.Fprintln(w, "========================")
}

func (r *ExecutionResult) String() string {
	return fmt.Sprintf("ExecutionResult{label: %q, success: %t, error: %q, compute_units: %d, logs: %d}",
		r.label, r.IsSuccess(), r.ErrorMessage(), r.ComputeUnits(), len(r.logs))
}

func helper(t TestingT) {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
}

// AssertSuccess fails t if the transaction failed.
func (r *ExecutionResult) AssertSuccess(t TestingT) *ExecutionResult {
	helper(t)
	if r.err != nil {
		require.Fail(t, fmt.Sprintf("Transaction failed: %s\n%s", r.err, r.LogDump()))
	}
	return r
}

// AssertFailure fails t if the transaction succeeded.
func (r *ExecutionResult) AssertFailure(t TestingT) *ExecutionResult {
	helper(t)
	if r.err == nil {
		require.Fail(t, fmt.Sprintf("Expected transaction to fail, but it succeeded.\n%s", r.LogDump()))
	}
	return r
}

// AssertError fails t unless the transaction failed with an error
// containing substr.
func (r *ExecutionResult) AssertError(t TestingT, substr string) *ExecutionResult {
	helper(t)
	if r.err == nil {
		require.Fail(t, fmt.Sprintf("Expected transaction to fail with error containing '%s', but it succeeded.\n%s", substr, r.LogDump()))
		return r
	}
	if !strings.Contains(r.err.Error(), substr) {
		require.Fail(t, fmt.Sprintf("Transaction failed with unexpected error.\nExpected substring: %s\nActual error: %s\n%s",
			substr, r.err, r.LogDump()))
	}
	return r
}

// AssertErrorCode fails t unless the transaction failed with the custom
// program error code.
func (r *ExecutionResult) AssertErrorCode(t TestingT, code uint32) *ExecutionResult {
	helper(t)
	if r.err == nil {
		require.Fail(t, fmt.Sprintf("Expected transaction to fail with %s, but it succeeded.\n%s",
			svm.CustomError(code), r.LogDump()))
		return r
	}

	actual, ok := svm.CustomErrorCode(r.err)
	if !ok {
		actual, ok = customErrorFromText(r.err.Error())
	}
	if !ok || actual != code {
		require.Fail(t, fmt.Sprintf("Transaction failed with unexpected error.\nExpected: %s\nActual error: %s\n%s",
			svm.CustomError(code), r.err, r.LogDump()))
	}
	return r
}

var customErrorLine = regexp.MustCompile(`custom program error: 0x([0-9a-f]+)`)

// customErrorFromText reads the code of an error that lost its type, such
// as one restored from stored history.
func customErrorFromText(s string) (uint32, bool) {
	m := customErrorLine.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	code, err := strconv.ParseUint(m[1], 16, 32)
	if err != nil {
		return 0, false
	}
	return uint32(code), true
}

// AssertAnchorError fails t unless the transaction failed with the named
// Anchor error.
func (r *ExecutionResult) AssertAnchorError(t TestingT, name string) *ExecutionResult {
	helper(t)
	r.AssertFailure(t)
	if r.err == nil {
		return r
	}

	if e, ok := anchor.ParseAnchorError(r.logs); ok && e.Name == name {
		return r
	}
	if r.HasLog(name) || strings.Contains(r.err.Error(), name) {
		return r
	}
	require.Fail(t, fmt.Sprintf("Expected Anchor error '%s' not found in transaction logs or error message.\nError: %s\n%s",
		name, r.err, r.LogDump()))
	return r
}

// AssertLog fails t unless a log line contains substr.
func (r *ExecutionResult) AssertLog(t TestingT, substr string) *ExecutionResult {
	helper(t)
	if !r.HasLog(substr) {
		require.Fail(t, fmt.Sprintf("Expected message '%s' not found in logs.\n%s", substr, r.LogDump()))
	}
	return r
}

// AssertComputeUnitsBelow fails t unless fewer than max units were consumed.
func (r *ExecutionResult) AssertComputeUnitsBelow(t TestingT, max uint64) *ExecutionResult {
	helper(t)
	if cu := r.ComputeUnits(); cu >= max {
		require.Fail(t, fmt.Sprintf("Transaction consumed %d compute units, expected fewer than %d.\n%s", cu, max, r.LogDump()))
	}
	return r
}
