// Package computebudget builds and parses Compute Budget program instructions.
//
// The program itself does nothing when executed; the processor reads its
// instructions before execution to size the compute meter and priority fee.
package computebudget

import (
	"encoding/binary"

	"github.com/fortiblox/stratus-harness/pkg/svm"
	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// ProgramID is the address of the compute budget program.
//
// Current key: ComputeBudget111111111111111111111111111111
var ProgramID = types.ComputeBudgetProgramAddr

// RequestHeapFrame returns an instruction requesting a heap of bytes.
func RequestHeapFrame(bytes uint32) transaction.Instruction {
	return u32Instruction(svm.ComputeBudgetRequestHeapFrame, bytes)
}

// SetComputeUnitLimit returns an instruction setting the transaction-wide
// compute unit limit.
func SetComputeUnitLimit(units uint32) transaction.Instruction {
	return u32Instruction(svm.ComputeBudgetSetComputeUnitLimit, units)
}

// SetComputeUnitPrice returns an instruction setting the compute unit
// price in micro-lamports.
func SetComputeUnitPrice(microLamports uint64) transaction.Instruction {
	data := make([]byte, 1, 9)
	data[0] = svm.ComputeBudgetSetComputeUnitPrice
	data = binary.LittleEndian.AppendUint64(data, microLamports)
	return transaction.NewInstruction(ProgramID, data)
}

func SetLoadedAccountsDataSizeLimit(bytes uint32) transaction.Instruction {
	return u32Instruction(svm.ComputeBudgetSetLoadedAccountsDataSizeLimit, bytes)
}

func u32Instruction(tag byte, v uint32) transaction.Instruction {
	data := make([]byte, 1, 5)
	data[0] = tag
	data = binary.LittleEndian.AppendUint32(data, v)
	return transaction.NewInstruction(ProgramID, data)
}

// Parse returns the compute budget requested by msg, using the runtime
// default for each other instruction when no limit is set.
func Parse(msg transaction.Message) (*svm.ComputeBudgetLimits, error) {
	return svm.ParseComputeBudget(msg, svm.CUDefault)
}

// Processor is the on-chain side of the program.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// Process is a no-op; instruction data was validated by Parse before
// execution began.
func (p *Processor) Process(_ svm.InvokeContext, _ []byte) error {
	return nil
}
