package transaction

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// MaxTransactionSize is the largest serialized transaction a packet can carry.
const MaxTransactionSize = 1232

// Transaction is a signed legacy transaction.
type Transaction struct {
	Signatures []types.Signature
	Message    Message
}

// NewTransaction compiles instructions into an unsigned transaction paid
// for by payer. One empty signature slot is reserved per required signer.
func NewTransaction(payer types.Pubkey, instructions ...Instruction) Transaction {
	m := NewMessage(payer, instructions...)
	return Transaction{
		Signatures: make([]types.Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// Signature returns the first signature, which identifies the transaction.
func (t *Transaction) Signature() types.Signature {
	if len(t.Signatures) == 0 {
		return types.Signature{}
	}
	return t.Signatures[0]
}

// SetBlockhash sets the recent blockhash. Existing signatures become invalid.
func (t *Transaction) SetBlockhash(bh types.Hash) {
	t.Message.RecentBlockhash = bh
}

// Sign signs the message with each keypair at its signer index.
func (t *Transaction) Sign(signers ...*types.Keypair) error {
	messageBytes := t.Message.Marshal()

	for _, s := range signers {
		pub := s.Pubkey()
		index := indexOf(t.Message.Accounts, pub)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", pub)
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", pub)
		}

		t.Signatures[index] = s.Sign(messageBytes)
	}

	return nil
}

// IsSigned reports whether every signature slot has been filled.
func (t *Transaction) IsSigned() bool {
	for _, s := range t.Signatures {
		if s.IsZero() {
			return false
		}
	}
	return len(t.Signatures) > 0
}

// Marshal encodes the transaction in the wire format.
func (t Transaction) Marshal() []byte {
	b := bytes.NewBuffer(nil)

	_, _ = encodeLen(b, len(t.Signatures))
	for _, s := range t.Signatures {
		_, _ = b.Write(s[:])
	}

	_, _ = b.Write(t.Message.Marshal())

	return b.Bytes()
}

// Unmarshal decodes a transaction produced by Marshal.
func (t *Transaction) Unmarshal(b []byte) error {
	buf := bytes.NewBuffer(b)

	sigLen, err := decodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read signature length")
	}

	t.Signatures = make([]types.Signature, sigLen)
	for i := 0; i < sigLen; i++ {
		if _, err = io.ReadFull(buf, t.Signatures[i][:]); err != nil {
			return errors.Wrapf(err, "failed to read signature at %d", i)
		}
	}

	return (&t.Message).Unmarshal(buf.Bytes())
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		sb.WriteString(fmt.Sprintf("  %d: %s\n", i, s))
	}
	sb.WriteString("Message:\n")
	sb.WriteString("  Header:\n")
	sb.WriteString(fmt.Sprintf("    NumSignatures: %d\n", t.Message.Header.NumSignatures))
	sb.WriteString(fmt.Sprintf("    NumReadOnly: %d\n", t.Message.Header.NumReadOnly))
	sb.WriteString(fmt.Sprintf("    NumReadOnlySigned: %d\n", t.Message.Header.NumReadonlySigned))
	sb.WriteString("  Accounts:\n")
	for i, a := range t.Message.Accounts {
		sb.WriteString(fmt.Sprintf("    %d: %s\n", i, a))
	}
	sb.WriteString(fmt.Sprintf("  RecentBlockhash: %s\n", t.Message.RecentBlockhash))
	sb.WriteString("  Instructions:\n")
	for i := range t.Message.Instructions {
		sb.WriteString(fmt.Sprintf("    %d:\n", i))
		sb.WriteString(fmt.Sprintf("      ProgramIndex: %d\n", t.Message.Instructions[i].ProgramIndex))
		sb.WriteString(fmt.Sprintf("      Accounts: %v\n", t.Message.Instructions[i].Accounts))
		sb.WriteString(fmt.Sprintf("      Data: %v\n", t.Message.Instructions[i].Data))
	}
	return sb.String()
}
