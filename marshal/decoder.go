package marshal

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/uniyakcom/dbus/core"
)

// DecodeError 线字节不符合签名要求的格式
type DecodeError struct {
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at offset %d: %s", e.Offset, e.Reason)
}

// Decoder 线格式解码器：按签名从缓冲区顺序读出 Go 值。
// 对齐以缓冲区起点为基准，与 Encoder 对称。
type Decoder struct {
	buf   []byte
	order binary.ByteOrder
	pos   int
}

// NewDecoder 创建解码器。非 BigEndian 的字节序标记一律按小端处理。
func NewDecoder(buf []byte, endian byte) *Decoder {
	var order binary.ByteOrder = binary.LittleEndian
	if endian == BigEndian {
		order = binary.BigEndian
	}
	return &Decoder{buf: buf, order: order}
}

// Pos 当前读偏移。
func (d *Decoder) Pos() int { return d.pos }

// Rest 剩余未读字节数。
func (d *Decoder) Rest() int { return len(d.buf) - d.pos }

// Pad 跳过填充直到读偏移对齐到 align 边界。
func (d *Decoder) Pad(align int) error {
	if align <= 1 {
		return nil
	}
	for d.pos%align != 0 {
		if d.pos >= len(d.buf) {
			return &DecodeError{Offset: d.pos, Reason: "truncated padding"}
		}
		d.pos++
	}
	return nil
}

// Read 按签名顺序解码出各值。
// 产出形态：基础类型映射为对应 Go 类型（'o'→ObjectPath、'g'→Signature），
// 数组为强类型切片、字典为强类型映射、结构为 []any、变体为 Variant。
func (d *Decoder) Read(sig core.Signature) ([]any, error) {
	items, err := Split(sig)
	if err != nil {
		return nil, err
	}
	vals := make([]any, 0, len(items))
	for _, item := range items {
		v, err := d.value(item)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (d *Decoder) need(n int) error {
	if d.pos+n > len(d.buf) {
		return &DecodeError{Offset: d.pos, Reason: "truncated value"}
	}
	return nil
}

func (d *Decoder) readUint16() (uint16, error) {
	if err := d.Pad(2); err != nil {
		return 0, err
	}
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := d.order.Uint16(d.buf[d.pos:])
	d.pos += 2
	return v, nil
}

func (d *Decoder) readUint32() (uint32, error) {
	if err := d.Pad(4); err != nil {
		return 0, err
	}
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := d.order.Uint32(d.buf[d.pos:])
	d.pos += 4
	return v, nil
}

func (d *Decoder) readUint64() (uint64, error) {
	if err := d.Pad(8); err != nil {
		return 0, err
	}
	if err := d.need(8); err != nil {
		return 0, err
	}
	v := d.order.Uint64(d.buf[d.pos:])
	d.pos += 8
	return v, nil
}

// readString 读出 n 字节串体并消费 NUL 终止符。
func (d *Decoder) readString(n int) (string, error) {
	if err := d.need(n + 1); err != nil {
		return "", err
	}
	s := string(d.buf[d.pos : d.pos+n])
	if d.buf[d.pos+n] != 0 {
		return "", &DecodeError{Offset: d.pos + n, Reason: "missing NUL terminator"}
	}
	d.pos += n + 1
	return s, nil
}

// value 解码单个完整类型。
func (d *Decoder) value(sig core.Signature) (any, error) {
	switch sig[0] {
	case 'y':
		if err := d.need(1); err != nil {
			return nil, err
		}
		b := d.buf[d.pos]
		d.pos++
		return b, nil
	case 'b':
		v, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		switch v {
		case 0:
			return false, nil
		case 1:
			return true, nil
		}
		return nil, &DecodeError{Offset: d.pos - 4, Reason: fmt.Sprintf("invalid boolean %d", v)}
	case 'n':
		v, err := d.readUint16()
		return int16(v), err
	case 'q':
		return d.readUint16()
	case 'i':
		v, err := d.readUint32()
		return int32(v), err
	case 'u':
		return d.readUint32()
	case 'x':
		v, err := d.readUint64()
		return int64(v), err
	case 't':
		return d.readUint64()
	case 'd':
		v, err := d.readUint64()
		return math.Float64frombits(v), err
	case 's':
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		return d.readString(int(n))
	case 'o':
		n, err := d.readUint32()
		if err != nil {
			return nil, err
		}
		s, err := d.readString(int(n))
		return core.ObjectPath(s), err
	case 'g':
		if err := d.need(1); err != nil {
			return nil, err
		}
		n := int(d.buf[d.pos])
		d.pos++
		s, err := d.readString(n)
		return core.Signature(s), err
	case 'v':
		return d.readVariant()
	case 'a':
		return d.readArray(sig)
	case '(':
		return d.readStruct(sig)
	}
	return nil, &SignatureError{Sig: sig, Reason: fmt.Sprintf("unknown type code %q", sig[0])}
}

// readVariant 读出变体：先签名，再按签名读值。
func (d *Decoder) readVariant() (any, error) {
	raw, err := d.value("g")
	if err != nil {
		return nil, err
	}
	sig := raw.(core.Signature)
	items, err := Split(sig)
	if err != nil {
		return nil, err
	}
	if len(items) != 1 {
		return nil, &DecodeError{Offset: d.pos, Reason: fmt.Sprintf("variant signature %q is not one complete type", string(sig))}
	}
	v, err := d.value(sig)
	if err != nil {
		return nil, err
	}
	return core.Variant{Sig: sig, Value: v}, nil
}

// readArray 读出数组为强类型切片，或字典为强类型映射。
func (d *Decoder) readArray(sig core.Signature) (any, error) {
	count, err := d.readUint32()
	if err != nil {
		return nil, err
	}
	if count > maxArrayBytes {
		return nil, &DecodeError{Offset: d.pos - 4, Reason: "array exceeds 64 MiB"}
	}
	elem := sig[1:]
	if err := d.Pad(alignment(elem[0])); err != nil {
		return nil, err
	}
	end := d.pos + int(count)
	if end > len(d.buf) {
		return nil, &DecodeError{Offset: d.pos, Reason: "truncated array"}
	}

	if elem[0] == '{' {
		return d.readDict(elem, end)
	}

	out := reflect.MakeSlice(reflect.SliceOf(goTypeFor(elem)), 0, 8)
	for d.pos < end {
		v, err := d.value(elem)
		if err != nil {
			return nil, err
		}
		out = reflect.Append(out, reflect.ValueOf(v))
	}
	if d.pos != end {
		return nil, &DecodeError{Offset: d.pos, Reason: "array element overruns declared length"}
	}
	return out.Interface(), nil
}

// readDict 读出字典项序列为映射。
func (d *Decoder) readDict(elem core.Signature, end int) (any, error) {
	inner := string(elem[1 : len(elem)-1])
	keyEnd, err := next(inner, 0)
	if err != nil {
		return nil, err
	}
	keySig := core.Signature(inner[:keyEnd])
	valSig := core.Signature(inner[keyEnd:])

	out := reflect.MakeMap(reflect.MapOf(goTypeFor(keySig), goTypeFor(valSig)))
	for d.pos < end {
		if err := d.Pad(8); err != nil {
			return nil, err
		}
		k, err := d.value(keySig)
		if err != nil {
			return nil, err
		}
		v, err := d.value(valSig)
		if err != nil {
			return nil, err
		}
		out.SetMapIndex(reflect.ValueOf(k), reflect.ValueOf(v))
	}
	if d.pos != end {
		return nil, &DecodeError{Offset: d.pos, Reason: "dict entry overruns declared length"}
	}
	return out.Interface(), nil
}

// readStruct 读出结构为 []any。
func (d *Decoder) readStruct(sig core.Signature) (any, error) {
	fields, err := Split(sig[1 : len(sig)-1])
	if err != nil {
		return nil, err
	}
	if err := d.Pad(8); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		v, err := d.value(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
