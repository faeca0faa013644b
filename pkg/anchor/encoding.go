package anchor

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/near/borsh-go"
)

// Codec errors.
var (
	ErrNilValue        = errors.New("cannot encode nil value")
	ErrUnsupportedType = errors.New("type has no borsh encoding")
	ErrNotPointer      = errors.New("decode target must be a non-nil pointer")
)

// Encode serializes v with Borsh: little-endian fixed-width integers, u32
// length prefixes on strings, slices and maps, no padding. Platform-sized
// integers and non-data kinds are rejected.
//
// A pointer to a value encodes the same as the value. Pointers nested in
// structs encode as Option.
func Encode(v interface{}) (data []byte, err error) {
	if v == nil {
		return nil, ErrNilValue
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, ErrNilValue
		}
		v = rv.Elem().Interface()
	}
	if err := checkType(reflect.TypeOf(v), nil); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("borsh serialize %T: %v", v, r)
		}
	}()

	data, err = borsh.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("borsh serialize %T: %w", v, err)
	}
	return data, nil
}

// Decode deserializes Borsh data into the value v points to.
func Decode(data []byte, v interface{}) (err error) {
	rv := reflect.ValueOf(v)
	if v == nil || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return ErrNotPointer
	}
	if err := checkType(rv.Type().Elem(), nil); err != nil {
		return err
	}

	// borsh-go panics on truncated input.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("borsh deserialize %T: %v", v, r)
		}
	}()

	if err := borsh.Deserialize(v, data); err != nil {
		return fmt.Errorf("borsh deserialize %T: %w", v, err)
	}
	return nil
}

// EncodeArgs encodes positional arguments in order and concatenates them.
func EncodeArgs(values ...interface{}) ([]byte, error) {
	var out []byte
	for i, v := range values {
		b, err := Encode(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// EncodeInstruction returns the instruction discriminator for name followed
// by the encoded arguments.
func EncodeInstruction(name string, values ...interface{}) ([]byte, error) {
	args, err := EncodeArgs(values...)
	if err != nil {
		return nil, err
	}
	disc := InstructionDiscriminator(name)
	return append(disc[:], args...), nil
}

func checkType(t reflect.Type, seen map[reflect.Type]bool) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return nil
	case reflect.Array, reflect.Slice, reflect.Ptr:
		return checkType(t.Elem(), seen)
	case reflect.Map:
		if err := checkType(t.Key(), seen); err != nil {
			return err
		}
		return checkType(t.Elem(), seen)
	case reflect.Struct:
		if seen[t] {
			return nil
		}
		if seen == nil {
			seen = make(map[reflect.Type]bool)
		}
		seen[t] = true
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Tag.Get("borsh_skip") == "true" {
				continue
			}
			if !f.IsExported() {
				return fmt.Errorf("%w: unexported field %s.%s", ErrUnsupportedType, t, f.Name)
			}
			if err := checkType(f.Type, seen); err != nil {
				return fmt.Errorf("field %s.%s: %w", t, f.Name, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
	}
}
