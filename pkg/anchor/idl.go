package anchor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/fortiblox/stratus-harness/pkg/types"
)

// IDL is an Anchor interface description. Both the current format (with
// explicit discriminators and "writable"/"signer") and the legacy format
// ("isMut"/"isSigner", camelCase names) are accepted.
type IDL struct {
	Address      string `json:"address"`
	Version      string `json:"version"`
	LegacyName   string `json:"name"`
	Metadata     struct {
		Name        string `json:"name"`
		Version     string `json:"version"`
		Spec        string `json:"spec"`
		Description string `json:"description"`
	} `json:"metadata"`
	Instructions []IdlInstruction `json:"instructions"`
	Accounts     []IdlTypeDef     `json:"accounts"`
	Events       []IdlTypeDef     `json:"events"`
	Errors       []IdlError       `json:"errors"`
}

// IdlInstruction describes one instruction.
type IdlInstruction struct {
	Name          string       `json:"name"`
	Discriminator []int        `json:"discriminator"`
	Accounts      []IdlAccount `json:"accounts"`
	Args          []IdlField   `json:"args"`
}

// IdlAccount is one account an instruction expects.
type IdlAccount struct {
	Name     string `json:"name"`
	Writable bool   `json:"writable"`
	Signer   bool   `json:"signer"`
	Optional bool   `json:"optional"`
	Address  string `json:"address"`
	IsMut    bool   `json:"isMut"`
	IsSigner bool   `json:"isSigner"`
}

// IsWritable reports the writable flag in either format.
func (a IdlAccount) IsWritable() bool {
	return a.Writable || a.IsMut
}

// IsSignerAccount reports the signer flag in either format.
func (a IdlAccount) IsSignerAccount() bool {
	return a.Signer || a.IsSigner
}

// IdlField is a named argument. Type is kept undecoded.
type IdlField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

// IdlTypeDef names an account or event type.
type IdlTypeDef struct {
	Name          string `json:"name"`
	Discriminator []int  `json:"discriminator"`
}

// IdlError is a program-defined error.
type IdlError struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// LoadIDL reads an IDL JSON file.
func LoadIDL(path string) (*IDL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read IDL: %w", err)
	}
	return ParseIDL(data)
}

// ParseIDL decodes IDL JSON.
func ParseIDL(data []byte) (*IDL, error) {
	var idl IDL
	if err := json.Unmarshal(data, &idl); err != nil {
		return nil, fmt.Errorf("failed to parse IDL: %w", err)
	}

	for _, ix := range idl.Instructions {
		if err := checkDiscriminator(ix.Discriminator); err != nil {
			return nil, fmt.Errorf("instruction %s: %w", ix.Name, err)
		}
	}
	for _, def := range append(append([]IdlTypeDef(nil), idl.Accounts...), idl.Events...) {
		if err := checkDiscriminator(def.Discriminator); err != nil {
			return nil, fmt.Errorf("type %s: %w", def.Name, err)
		}
	}

	return &idl, nil
}

func checkDiscriminator(d []int) error {
	if len(d) == 0 {
		return nil
	}
	if len(d) != DiscriminatorSize {
		return fmt.Errorf("discriminator has %d bytes, want %d", len(d), DiscriminatorSize)
	}
	for _, b := range d {
		if b < 0 || b > 255 {
			return fmt.Errorf("discriminator byte %d out of range", b)
		}
	}
	return nil
}

func toDiscriminator(d []int) Discriminator {
	var out Discriminator
	for i := range out {
		out[i] = byte(d[i])
	}
	return out
}

// Name returns the program name.
func (idl *IDL) Name() string {
	if idl.Metadata.Name != "" {
		return idl.Metadata.Name
	}
	return idl.LegacyName
}

// ProgramID parses the program address.
func (idl *IDL) ProgramID() (types.Pubkey, error) {
	if idl.Address == "" {
		return types.Pubkey{}, fmt.Errorf("IDL %s has no address", idl.Name())
	}
	return types.PubkeyFromBase58(idl.Address)
}

// Instruction looks up an instruction by its snake_case name. Legacy
// camelCase names match their snake_case form.
func (idl *IDL) Instruction(name string) (*IdlInstruction, bool) {
	for i := range idl.Instructions {
		ix := &idl.Instructions[i]
		if ix.Name == name || toSnakeCase(ix.Name) == name {
			return ix, true
		}
	}
	return nil, false
}

// Sighash returns the explicit discriminator if the IDL carries one, and
// the computed one otherwise.
func (ix *IdlInstruction) Sighash() Discriminator {
	if len(ix.Discriminator) == DiscriminatorSize {
		return toDiscriminator(ix.Discriminator)
	}
	return InstructionDiscriminator(toSnakeCase(ix.Name))
}

// AccountDiscriminator returns the discriminator of the named account type.
func (idl *IDL) AccountDiscriminator(name string) (Discriminator, bool) {
	return lookupTypeDef(idl.Accounts, name, NamespaceAccount)
}

// EventDiscriminator returns the discriminator of the named event type.
func (idl *IDL) EventDiscriminator(name string) (Discriminator, bool) {
	return lookupTypeDef(idl.Events, name, NamespaceEvent)
}

func lookupTypeDef(defs []IdlTypeDef, name, namespace string) (Discriminator, bool) {
	for _, def := range defs {
		if def.Name != name {
			continue
		}
		if len(def.Discriminator) == DiscriminatorSize {
			return toDiscriminator(def.Discriminator), true
		}
		return SighashDiscriminator(namespace, name), true
	}
	return Discriminator{}, false
}

// Error returns the program error with the given code.
func (idl *IDL) Error(code uint32) (*Error, bool) {
	for _, e := range idl.Errors {
		if e.Code == code {
			return &Error{Name: e.Name, Code: e.Code, Msg: e.Msg}, true
		}
	}
	return nil, false
}

// FromIDL returns a Program for the IDL's address. Its builders take
// discriminators from the IDL and reject unknown instruction names.
func FromIDL(idl *IDL) (*Program, error) {
	id, err := idl.ProgramID()
	if err != nil {
		return nil, err
	}
	return &Program{ID: id, IDL: idl}, nil
}

func toSnakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
