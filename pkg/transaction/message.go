package transaction

import (
	"bytes"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// Header counts the signer and read-only sections of Message.Accounts.
type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a legacy transaction message.
//
// Accounts are laid out as
//
//	[writable signers | readonly signers | writable non-signers | readonly non-signers]
//
// with the fee payer first.
type Message struct {
	Header          Header
	Accounts        []types.Pubkey
	RecentBlockhash types.Hash
	Instructions    []CompiledInstruction
}

// NewMessage compiles instructions into a message paid for by payer.
func NewMessage(payer types.Pubkey, instructions ...Instruction) Message {
	accounts := []AccountMeta{
		{
			PublicKey:  payer,
			IsSigner:   true,
			IsWritable: true,
			isPayer:    true,
		},
	}

	for _, i := range instructions {
		accounts = append(accounts, AccountMeta{
			PublicKey: i.Program,
			isProgram: true,
		})
		accounts = append(accounts, i.Accounts...)
	}

	accounts = filterUnique(accounts)
	sort.Stable(SortableAccountMeta(accounts))

	var m Message
	for _, account := range accounts {
		m.Accounts = append(m.Accounts, account.PublicKey)

		if account.IsSigner {
			m.Header.NumSignatures++

			if !account.IsWritable {
				m.Header.NumReadonlySigned++
			}
		} else if !account.IsWritable {
			m.Header.NumReadOnly++
		}
	}

	for _, i := range instructions {
		c := CompiledInstruction{
			ProgramIndex: byte(indexOf(m.Accounts, i.Program)),
			Data:         i.Data,
		}

		for _, a := range i.Accounts {
			c.Accounts = append(c.Accounts, byte(indexOf(m.Accounts, a.PublicKey)))
		}

		m.Instructions = append(m.Instructions, c)
	}

	return m
}

// FeePayer returns the first account, or the zero key for an empty message.
func (m Message) FeePayer() types.Pubkey {
	if len(m.Accounts) == 0 {
		return types.Pubkey{}
	}
	return m.Accounts[0]
}

// IsSigner reports whether the account at index must sign.
func (m Message) IsSigner(index int) bool {
	return index < int(m.Header.NumSignatures)
}

// IsWritable reports whether the account at index may be written.
func (m Message) IsWritable(index int) bool {
	numSigners := int(m.Header.NumSignatures)
	if index < numSigners {
		return index < numSigners-int(m.Header.NumReadonlySigned)
	}
	return index < len(m.Accounts)-int(m.Header.NumReadOnly)
}

// Sanitize checks the header and instruction indexes against the account list.
func (m Message) Sanitize() error {
	numSigners := int(m.Header.NumSignatures)
	if numSigners == 0 {
		return errors.New("message has no signers")
	}
	if numSigners > len(m.Accounts) {
		return errors.Errorf("header declares %d signers but message has %d accounts", numSigners, len(m.Accounts))
	}
	if int(m.Header.NumReadonlySigned) >= numSigners {
		return errors.New("fee payer must be writable")
	}
	if int(m.Header.NumReadOnly)+numSigners > len(m.Accounts) {
		return errors.New("readonly accounts overlap signers")
	}

	seen := make(map[types.Pubkey]struct{}, len(m.Accounts))
	for _, a := range m.Accounts {
		if _, ok := seen[a]; ok {
			return errors.Errorf("account %s loaded twice", a)
		}
		seen[a] = struct{}{}
	}

	for i, ix := range m.Instructions {
		if int(ix.ProgramIndex) >= len(m.Accounts) || ix.ProgramIndex == 0 {
			return errors.Errorf("instruction %d has invalid program index %d", i, ix.ProgramIndex)
		}
		for _, a := range ix.Accounts {
			if int(a) >= len(m.Accounts) {
				return errors.Errorf("instruction %d has invalid account index %d", i, a)
			}
		}
	}
	return nil
}

// Marshal encodes the message in the legacy wire format.
func (m Message) Marshal() []byte {
	b := bytes.NewBuffer(nil)

	_ = b.WriteByte(m.Header.NumSignatures)
	_ = b.WriteByte(m.Header.NumReadonlySigned)
	_ = b.WriteByte(m.Header.NumReadOnly)

	_, _ = encodeLen(b, len(m.Accounts))
	for _, a := range m.Accounts {
		_, _ = b.Write(a[:])
	}

	_, _ = b.Write(m.RecentBlockhash[:])

	_, _ = encodeLen(b, len(m.Instructions))
	for _, i := range m.Instructions {
		_ = b.WriteByte(i.ProgramIndex)

		_, _ = encodeLen(b, len(i.Accounts))
		_, _ = b.Write(i.Accounts)

		_, _ = encodeLen(b, len(i.Data))
		_, _ = b.Write(i.Data)
	}

	return b.Bytes()
}

// Unmarshal decodes a legacy message.
func (m *Message) Unmarshal(b []byte) (err error) {
	buf := bytes.NewBuffer(b)

	if len(b) > 0 && b[0]&0x80 != 0 {
		return errors.Errorf("unsupported message version %d", b[0]&0x7f)
	}

	var header [3]byte
	if _, err = io.ReadFull(buf, header[:]); err != nil {
		return errors.Wrap(err, "failed to read header")
	}
	m.Header = Header{
		NumSignatures:     header[0],
		NumReadonlySigned: header[1],
		NumReadOnly:       header[2],
	}

	accountLen, err := decodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read account length")
	}
	m.Accounts = make([]types.Pubkey, accountLen)
	for i := 0; i < accountLen; i++ {
		if _, err = io.ReadFull(buf, m.Accounts[i][:]); err != nil {
			return errors.Wrapf(err, "failed to read account at %d", i)
		}
	}

	if _, err = io.ReadFull(buf, m.RecentBlockhash[:]); err != nil {
		return errors.Wrap(err, "failed to read blockhash")
	}

	instructionLen, err := decodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read instruction length")
	}
	m.Instructions = make([]CompiledInstruction, instructionLen)
	for i := 0; i < instructionLen; i++ {
		c := &m.Instructions[i]

		if c.ProgramIndex, err = buf.ReadByte(); err != nil {
			return errors.Wrapf(err, "failed to read program index of instruction %d", i)
		}

		n, err := decodeLen(buf)
		if err != nil {
			return errors.Wrapf(err, "failed to read account length of instruction %d", i)
		}
		c.Accounts = make([]byte, n)
		if _, err = io.ReadFull(buf, c.Accounts); err != nil {
			return errors.Wrapf(err, "failed to read accounts of instruction %d", i)
		}

		n, err = decodeLen(buf)
		if err != nil {
			return errors.Wrapf(err, "failed to read data length of instruction %d", i)
		}
		c.Data = make([]byte, n)
		if _, err = io.ReadFull(buf, c.Data); err != nil {
			return errors.Wrapf(err, "failed to read data of instruction %d", i)
		}
	}

	return nil
}

// Decompile expands the instruction at index back into keyed form.
func (m Message) Decompile(index int) (Instruction, error) {
	if index < 0 || index >= len(m.Instructions) {
		return Instruction{}, errors.Errorf("instruction index %d out of range", index)
	}
	c := m.Instructions[index]
	if int(c.ProgramIndex) >= len(m.Accounts) {
		return Instruction{}, errors.Errorf("invalid program index %d", c.ProgramIndex)
	}

	ix := Instruction{
		Program: m.Accounts[c.ProgramIndex],
		Data:    c.Data,
	}
	for _, a := range c.Accounts {
		if int(a) >= len(m.Accounts) {
			return Instruction{}, errors.Errorf("invalid account index %d", a)
		}
		ix.Accounts = append(ix.Accounts, AccountMeta{
			PublicKey:  m.Accounts[a],
			IsSigner:   m.IsSigner(int(a)),
			IsWritable: m.IsWritable(int(a)),
		})
	}
	return ix, nil
}
