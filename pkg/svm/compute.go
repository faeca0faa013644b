package svm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync/atomic"

	"github.com/fortiblox/stratus-harness/pkg/transaction"
	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Compute unit cost constants.
const (
	CUDefault    = uint64(200_000)   // Default CU limit per instruction
	CUMax        = uint64(1_400_000) // Max CU limit per transaction
	CUInvokeBase = uint64(1_000)     // Base cost for CPI

	CUCreateProgramAddress = uint64(1_500) // create_program_address

	// Program base costs
	CUSystemProgramDefault   = uint64(150)
	CUComputeBudgetDefault   = uint64(150)
	CUTokenProgramDefault    = uint64(2_000)
	CUAssociatedTokenDefault = uint64(4_000)
	CUProgramDefault         = uint64(1_000) // Programs deployed without an explicit cost
)

// CPIDepthMax is the number of nested invocations allowed below a
// top-level instruction.
const CPIDepthMax = 4

// Compute budget instruction tags.
const (
	ComputeBudgetRequestHeapFrame               = byte(1)
	ComputeBudgetSetComputeUnitLimit            = byte(2)
	ComputeBudgetSetComputeUnitPrice            = byte(3)
	ComputeBudgetSetLoadedAccountsDataSizeLimit = byte(4)
)

const (
	defaultLoadedAccountsDataSize = uint32(64 * 1024 * 1024)
	defaultHeapSize               = uint32(32 * 1024)
	microLamportsPerLamport       = uint64(1_000_000)
)

var (
	// ErrComputeExceeded is returned when compute units are exhausted.
	ErrComputeExceeded = errors.New("Computational budget exceeded")

	// ErrDuplicateComputeBudget is returned when a budget instruction repeats.
	ErrDuplicateComputeBudget = errors.New("Transaction contains a duplicate instruction that is not allowed")
)

// ComputeMeter tracks compute unit consumption.
type ComputeMeter struct {
	remaining uint64
	consumed  uint64
	limit     uint64
}

// NewComputeMeter creates a new compute meter with the specified limit.
func NewComputeMeter(limit uint64) *ComputeMeter {
	if limit > CUMax {
		limit = CUMax
	}
	return &ComputeMeter{
		remaining: limit,
		limit:     limit,
	}
}

// Consume attempts to consume the specified compute units.
// When too few units remain the meter is drained and ErrComputeExceeded returned.
func (cm *ComputeMeter) Consume(cost uint64) error {
	for {
		remaining := atomic.LoadUint64(&cm.remaining)
		if remaining < cost {
			if atomic.CompareAndSwapUint64(&cm.remaining, remaining, 0) {
				atomic.AddUint64(&cm.consumed, remaining)
				return ErrComputeExceeded
			}
			continue
		}
		if atomic.CompareAndSwapUint64(&cm.remaining, remaining, remaining-cost) {
			atomic.AddUint64(&cm.consumed, cost)
			return nil
		}
	}
}

// Remaining returns the remaining compute units.
func (cm *ComputeMeter) Remaining() uint64 {
	return atomic.LoadUint64(&cm.remaining)
}

// Consumed returns the total consumed compute units.
func (cm *ComputeMeter) Consumed() uint64 {
	return atomic.LoadUint64(&cm.consumed)
}

// Limit returns the compute unit limit.
func (cm *ComputeMeter) Limit() uint64 {
	return cm.limit
}

// ComputeBudgetLimits contains the parsed compute budget for a transaction.
type ComputeBudgetLimits struct {
	// ComputeUnitLimit is the maximum compute units for the transaction.
	ComputeUnitLimit uint32

	// ComputeUnitPrice is the price in micro-lamports per compute unit.
	ComputeUnitPrice uint64

	// HeapSize is the requested heap size in bytes.
	HeapSize uint32

	// LoadedAccountsBytes is the max bytes for loaded accounts.
	LoadedAccountsBytes uint32

	explicitLimit bool
}

// PrioritizationFee returns the lamports charged on top of signature fees.
func (l *ComputeBudgetLimits) PrioritizationFee() uint64 {
	if l.ComputeUnitPrice == 0 {
		return 0
	}
	// 128-bit product, rounded up and saturated at the u64 maximum.
	hi, lo := bits.Mul64(l.ComputeUnitPrice, uint64(l.ComputeUnitLimit))
	lo, carry := bits.Add64(lo, microLamportsPerLamport-1, 0)
	hi += carry
	if hi >= microLamportsPerLamport {
		return math.MaxUint64
	}
	fee, _ := bits.Div64(hi, lo, microLamportsPerLamport)
	return fee
}

// ParseComputeBudget reads compute budget instructions from msg.
//
// Without SetComputeUnitLimit the limit is defaultPerInstruction for each
// instruction that is not a compute budget instruction, capped at CUMax.
func ParseComputeBudget(msg transaction.Message, defaultPerInstruction uint64) (*ComputeBudgetLimits, error) {
	limits := &ComputeBudgetLimits{
		HeapSize:            defaultHeapSize,
		LoadedAccountsBytes: defaultLoadedAccountsDataSize,
	}

	var hasLimit, hasPrice, hasHeap, hasLoaded bool
	var regular uint64
	for i, ix := range msg.Instructions {
		if int(ix.ProgramIndex) >= len(msg.Accounts) || msg.Accounts[ix.ProgramIndex] != types.ComputeBudgetProgramAddr {
			regular++
			continue
		}

		if len(ix.Data) == 0 {
			return nil, &InstructionError{Index: i, Err: ErrInvalidInstructionData}
		}
		var seen *bool
		var want int
		switch ix.Data[0] {
		case ComputeBudgetRequestHeapFrame:
			seen, want = &hasHeap, 5
		case ComputeBudgetSetComputeUnitLimit:
			seen, want = &hasLimit, 5
		case ComputeBudgetSetComputeUnitPrice:
			seen, want = &hasPrice, 9
		case ComputeBudgetSetLoadedAccountsDataSizeLimit:
			seen, want = &hasLoaded, 5
		default:
			return nil, &InstructionError{Index: i, Err: ErrInvalidInstructionData}
		}
		if len(ix.Data) != want {
			return nil, &InstructionError{Index: i, Err: ErrInvalidInstructionData}
		}
		if *seen {
			return nil, fmt.Errorf("%w: instruction %d", ErrDuplicateComputeBudget, i)
		}
		*seen = true

		switch ix.Data[0] {
		case ComputeBudgetRequestHeapFrame:
			limits.HeapSize = binary.LittleEndian.Uint32(ix.Data[1:])
		case ComputeBudgetSetComputeUnitLimit:
			limits.ComputeUnitLimit = binary.LittleEndian.Uint32(ix.Data[1:])
		case ComputeBudgetSetComputeUnitPrice:
			limits.ComputeUnitPrice = binary.LittleEndian.Uint64(ix.Data[1:])
		case ComputeBudgetSetLoadedAccountsDataSizeLimit:
			limits.LoadedAccountsBytes = binary.LittleEndian.Uint32(ix.Data[1:])
		}
	}

	limits.explicitLimit = hasLimit
	if !hasLimit {
		limit := regular * defaultPerInstruction
		if limit > CUMax {
			limit = CUMax
		}
		limits.ComputeUnitLimit = uint32(limit)
	} else if uint64(limits.ComputeUnitLimit) > CUMax {
		limits.ComputeUnitLimit = uint32(CUMax)
	}
	return limits, nil
}
