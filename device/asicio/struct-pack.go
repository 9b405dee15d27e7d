package asicio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"reflect"

	"bab_miner/device/chip"
)

// Structures cross the bus as little endian 32 bit words, the host order of
// the ARM boards. Only uint32 fields, arrays and nested structs of them are
// packable.

var ErrShortReply = errors.New("ErrShortReply")
var ErrNotWord = errors.New("ErrNotWord")

func PackWords(words []uint32) ([]byte, error) {
	return Pack(words)
}

func PackWork(ws *chip.WorkSend) ([]byte, error) {
	b, err := Pack(ws)
	if err != nil {
		return nil, err
	}
	if len(b) != chip.WORK_SIZE {
		return nil, fmt.Errorf("work packed to %d bytes", len(b))
	}
	return b, nil
}

// UnpackReply reads the reply a chip left at the start of b.
func UnpackReply(b []byte, r *chip.Reply) error {
	if len(b) < chip.REPLY_SIZE {
		return ErrShortReply
	}
	n, err := Unpack(b[:chip.REPLY_SIZE], r)
	if err == nil && n != chip.REPLY_SIZE {
		err = fmt.Errorf("reply unpacked %d bytes", n)
	}
	return err
}

// Pack lays out the words of every element in order.
func Pack(elts ...interface{}) ([]byte, error) {
	var out []byte
	for _, e := range elts {
		err := walkWords(reflect.ValueOf(e), func(w reflect.Value) error {
			out = binary.LittleEndian.AppendUint32(out, uint32(w.Uint()))
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Unpack fills the pointed to elements from b and returns the bytes used.
func Unpack(b []byte, elts ...interface{}) (int, error) {
	pos := 0
	for _, e := range elts {
		v := reflect.ValueOf(e)
		if v.Kind() != reflect.Ptr || v.IsNil() {
			return pos, fmt.Errorf("unpack into %T: need a non-nil pointer", e)
		}
		err := walkWords(v, func(w reflect.Value) error {
			if pos+4 > len(b) {
				return ErrShortReply
			}
			if !w.CanSet() {
				return fmt.Errorf("%w: %s not settable", ErrNotWord, w.Type())
			}
			w.SetUint(uint64(binary.LittleEndian.Uint32(b[pos:])))
			pos += 4
			return nil
		})
		if err != nil {
			return pos, err
		}
	}
	return pos, nil
}

// walkWords calls fn for every uint32 leaf of v in memory order.
func walkWords(v reflect.Value, fn func(reflect.Value) error) error {
	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return fmt.Errorf("nil %s", v.Type())
		}
		return walkWords(v.Elem(), fn)
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if err := walkWords(v.Field(i), fn); err != nil {
				return err
			}
		}
	case reflect.Array, reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := walkWords(v.Index(i), fn); err != nil {
				return err
			}
		}
	case reflect.Uint32:
		return fn(v)
	default:
		return fmt.Errorf("%w: %s", ErrNotWord, v.Type())
	}
	return nil
}
