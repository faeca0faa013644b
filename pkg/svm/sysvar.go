package svm

import (
	"encoding/binary"
	"math"
)

// Sysvar sizes and defaults.
const (
	ClockSize = 40
	RentSize  = 17

	SlotsPerEpoch = uint64(432_000)

	// AccountStorageOverhead is the per-account byte overhead charged rent.
	AccountStorageOverhead = uint64(128)

	DefaultLamportsPerByteYear = uint64(3480)
	DefaultExemptionThreshold  = 2.0
	DefaultBurnPercent         = uint8(50)
)

// Clock is the Clock sysvar.
type Clock struct {
	Slot                uint64
	EpochStartTimestamp int64
	Epoch               uint64
	LeaderScheduleEpoch uint64
	UnixTimestamp       int64
}

// Encode serializes the clock in its account layout.
func (c Clock) Encode() []byte {
	buf := make([]byte, ClockSize)
	binary.LittleEndian.PutUint64(buf[0:], c.Slot)
	binary.LittleEndian.PutUint64(buf[8:], uint64(c.EpochStartTimestamp))
	binary.LittleEndian.PutUint64(buf[16:], c.Epoch)
	binary.LittleEndian.PutUint64(buf[24:], c.LeaderScheduleEpoch)
	binary.LittleEndian.PutUint64(buf[32:], uint64(c.UnixTimestamp))
	return buf
}

// DecodeClock parses Clock sysvar account data.
func DecodeClock(data []byte) (Clock, error) {
	if len(data) < ClockSize {
		return Clock{}, ErrInvalidAccountData
	}
	return Clock{
		Slot:                binary.LittleEndian.Uint64(data[0:]),
		EpochStartTimestamp: int64(binary.LittleEndian.Uint64(data[8:])),
		Epoch:               binary.LittleEndian.Uint64(data[16:]),
		LeaderScheduleEpoch: binary.LittleEndian.Uint64(data[24:]),
		UnixTimestamp:       int64(binary.LittleEndian.Uint64(data[32:])),
	}, nil
}

// Rent is the Rent sysvar.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
	BurnPercent         uint8
}

// DefaultRent returns mainnet rent parameters.
func DefaultRent() Rent {
	return Rent{
		LamportsPerByteYear: DefaultLamportsPerByteYear,
		ExemptionThreshold:  DefaultExemptionThreshold,
		BurnPercent:         DefaultBurnPercent,
	}
}

// MinimumBalance returns the lamports an account with dataLen bytes needs
// to be rent exempt.
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := AccountStorageOverhead + dataLen
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports cover the exemption minimum for dataLen.
func (r Rent) IsExempt(lamports, dataLen uint64) bool {
	return lamports >= r.MinimumBalance(dataLen)
}

// Encode serializes rent in its account layout.
func (r Rent) Encode() []byte {
	buf := make([]byte, RentSize)
	binary.LittleEndian.PutUint64(buf[0:], r.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(buf[8:], math.Float64bits(r.ExemptionThreshold))
	buf[16] = r.BurnPercent
	return buf
}

// DecodeRent parses Rent sysvar account data.
func DecodeRent(data []byte) (Rent, error) {
	if len(data) < RentSize {
		return Rent{}, ErrInvalidAccountData
	}
	return Rent{
		LamportsPerByteYear: binary.LittleEndian.Uint64(data[0:]),
		ExemptionThreshold:  math.Float64frombits(binary.LittleEndian.Uint64(data[8:])),
		BurnPercent:         data[16],
	}, nil
}
