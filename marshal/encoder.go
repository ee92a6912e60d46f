package marshal

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/uniyakcom/dbus/core"
)

// 单个数组的线上字节数上限（2^26，总线协议规定）
const maxArrayBytes = 1 << 26

// TypeMismatchError 值与签名要求的类型不符
type TypeMismatchError struct {
	Sig core.Signature
	Got string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot marshal %s as %q", e.Got, string(e.Sig))
}

// Encoder 线格式编码器：按签名将值追加到内部缓冲区。
// 所有对齐以缓冲区起点为基准，因此一条信封应由同一实例从头构建。
// 非 BigEndian 的字节序标记一律按小端处理。
type Encoder struct {
	buf     []byte
	order   binary.ByteOrder
	endian  byte
	scratch [8]byte
}

// NewEncoder 创建编码器。
func NewEncoder(endian byte) *Encoder {
	var order binary.ByteOrder = binary.LittleEndian
	if endian == BigEndian {
		order = binary.BigEndian
	} else {
		endian = LittleEndian
	}
	return &Encoder{
		buf:    make([]byte, 0, 128),
		order:  order,
		endian: endian,
	}
}

// Endian 返回字节序标记（'l' 或 'B'）。
func (e *Encoder) Endian() byte { return e.endian }

// Len 当前缓冲区字节数。
func (e *Encoder) Len() int { return len(e.buf) }

// Bytes 返回缓冲区内容。返回的切片与内部缓冲共享底层数组。
func (e *Encoder) Bytes() []byte { return e.buf }

// Pad 追加零字节直到缓冲区长度对齐到 align 边界。
func (e *Encoder) Pad(align int) {
	if align <= 1 {
		return
	}
	for len(e.buf)%align != 0 {
		e.buf = append(e.buf, 0)
	}
}

// Reserve 追加 n 个零字节作为占位，返回占位起始偏移，稍后回填。
func (e *Encoder) Reserve(n int) int {
	off := len(e.buf)
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
	return off
}

// PatchUint32 将 v 按当前字节序回填到 offset 处的 4 字节占位。
// offset 必须来自先前的 Reserve 调用。
func (e *Encoder) PatchUint32(offset int, v uint32) {
	e.order.PutUint32(e.buf[offset:offset+4], v)
}

// Append 按签名依次编码各值并追加到缓冲区。
// 值数量必须与签名中完整类型数一致；出错时缓冲区可能已部分写入。
func (e *Encoder) Append(sig core.Signature, vals ...any) error {
	items, err := Split(sig)
	if err != nil {
		return err
	}
	if len(items) != len(vals) {
		return &SignatureError{
			Sig:    sig,
			Reason: fmt.Sprintf("%d values for %d types", len(vals), len(items)),
		}
	}
	for i, item := range items {
		if err := e.encode(item, reflect.ValueOf(vals[i])); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) putUint16(v uint16) {
	e.order.PutUint16(e.scratch[:2], v)
	e.buf = append(e.buf, e.scratch[:2]...)
}

func (e *Encoder) putUint32(v uint32) {
	e.order.PutUint32(e.scratch[:4], v)
	e.buf = append(e.buf, e.scratch[:4]...)
}

func (e *Encoder) putUint64(v uint64) {
	e.order.PutUint64(e.scratch[:8], v)
	e.buf = append(e.buf, e.scratch[:8]...)
}

func (e *Encoder) mismatch(sig core.Signature, rv reflect.Value) error {
	if !rv.IsValid() {
		return &TypeMismatchError{Sig: sig, Got: "nil"}
	}
	return &TypeMismatchError{Sig: sig, Got: rv.Type().String()}
}

// encode 编码单个完整类型的值。指针与接口自动求内。
func (e *Encoder) encode(sig core.Signature, rv reflect.Value) error {
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return e.mismatch(sig, reflect.Value{})
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return e.mismatch(sig, rv)
	}

	switch sig[0] {
	case 'y':
		if rv.Kind() != reflect.Uint8 {
			return e.mismatch(sig, rv)
		}
		e.buf = append(e.buf, byte(rv.Uint()))
	case 'b':
		if rv.Kind() != reflect.Bool {
			return e.mismatch(sig, rv)
		}
		e.Pad(4)
		if rv.Bool() {
			e.putUint32(1)
		} else {
			e.putUint32(0)
		}
	case 'n':
		if rv.Kind() != reflect.Int16 {
			return e.mismatch(sig, rv)
		}
		e.Pad(2)
		e.putUint16(uint16(rv.Int()))
	case 'q':
		if rv.Kind() != reflect.Uint16 {
			return e.mismatch(sig, rv)
		}
		e.Pad(2)
		e.putUint16(uint16(rv.Uint()))
	case 'i':
		if rv.Kind() != reflect.Int32 {
			return e.mismatch(sig, rv)
		}
		e.Pad(4)
		e.putUint32(uint32(rv.Int()))
	case 'u':
		if rv.Kind() != reflect.Uint32 {
			return e.mismatch(sig, rv)
		}
		e.Pad(4)
		e.putUint32(uint32(rv.Uint()))
	case 'x':
		if rv.Kind() != reflect.Int64 {
			return e.mismatch(sig, rv)
		}
		e.Pad(8)
		e.putUint64(uint64(rv.Int()))
	case 't':
		if rv.Kind() != reflect.Uint64 {
			return e.mismatch(sig, rv)
		}
		e.Pad(8)
		e.putUint64(rv.Uint())
	case 'd':
		if rv.Kind() != reflect.Float64 {
			return e.mismatch(sig, rv)
		}
		e.Pad(8)
		e.putUint64(math.Float64bits(rv.Float()))
	case 's', 'o':
		if rv.Kind() != reflect.String {
			return e.mismatch(sig, rv)
		}
		return e.writeString(sig, rv.String())
	case 'g':
		if rv.Kind() != reflect.String {
			return e.mismatch(sig, rv)
		}
		return e.writeSignature(rv.String())
	case 'v':
		return e.encodeVariant(rv)
	case 'a':
		return e.encodeArray(sig, rv)
	case '(':
		return e.encodeStruct(sig, rv)
	default:
		return &SignatureError{Sig: sig, Reason: fmt.Sprintf("unknown type code %q", sig[0])}
	}
	return nil
}

// writeString 写入 UINT32 长度前缀的字符串加 NUL 终止符。
// 内嵌 NUL 会破坏线上定界，直接报错。
func (e *Encoder) writeString(sig core.Signature, s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return &TypeMismatchError{Sig: sig, Got: "string with embedded NUL"}
	}
	e.Pad(4)
	e.putUint32(uint32(len(s)))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
	return nil
}

// writeSignature 写入单字节长度前缀的签名加 NUL 终止符。
func (e *Encoder) writeSignature(s string) error {
	if len(s) > 255 {
		return &SignatureError{Sig: core.Signature(s), Reason: "longer than 255 bytes"}
	}
	e.buf = append(e.buf, byte(len(s)))
	e.buf = append(e.buf, s...)
	e.buf = append(e.buf, 0)
	return nil
}

// encodeVariant 编码变体：签名后紧跟按该签名编码的值。
// 非 Variant 值按其运行时类型自动装箱。
func (e *Encoder) encodeVariant(rv reflect.Value) error {
	var vr core.Variant
	if rv.Type() == variantType {
		vr = rv.Interface().(core.Variant)
	} else {
		sig, err := SignatureOf(rv.Interface())
		if err != nil {
			return err
		}
		vr = core.Variant{Sig: sig, Value: rv.Interface()}
	}
	items, err := Split(vr.Sig)
	if err != nil {
		return err
	}
	if len(items) != 1 {
		return &SignatureError{Sig: vr.Sig, Reason: "variant requires exactly one complete type"}
	}
	if err := e.writeSignature(string(vr.Sig)); err != nil {
		return err
	}
	return e.encode(vr.Sig, reflect.ValueOf(vr.Value))
}

// encodeArray 编码数组：UINT32 字节数，填充到元素对齐，然后是元素。
// 字节数不含长度字段之后、首元素之前的填充。
func (e *Encoder) encodeArray(sig core.Signature, rv reflect.Value) error {
	elem := sig[1:]
	if elem[0] == '{' {
		return e.encodeDict(sig, rv)
	}
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return e.mismatch(sig, rv)
	}
	e.Pad(4)
	lenOff := e.Reserve(4)
	e.Pad(alignment(elem[0]))
	start := e.Len()
	for i := 0; i < rv.Len(); i++ {
		if err := e.encode(elem, rv.Index(i)); err != nil {
			return err
		}
	}
	n := e.Len() - start
	if n > maxArrayBytes {
		return &SignatureError{Sig: sig, Reason: "array exceeds 64 MiB"}
	}
	e.PatchUint32(lenOff, uint32(n))
	return nil
}

// encodeDict 编码字典（a{kv}）：键排序后逐项写入，保证字节输出确定。
func (e *Encoder) encodeDict(sig core.Signature, rv reflect.Value) error {
	if rv.Kind() != reflect.Map {
		return e.mismatch(sig, rv)
	}
	inner := string(sig[2 : len(sig)-1])
	keyEnd, err := next(inner, 0)
	if err != nil {
		return err
	}
	keySig := core.Signature(inner[:keyEnd])
	valSig := core.Signature(inner[keyEnd:])

	e.Pad(4)
	lenOff := e.Reserve(4)
	e.Pad(8)
	start := e.Len()
	for _, k := range sortedKeys(rv) {
		e.Pad(8)
		if err := e.encode(keySig, k); err != nil {
			return err
		}
		if err := e.encode(valSig, rv.MapIndex(k)); err != nil {
			return err
		}
	}
	n := e.Len() - start
	if n > maxArrayBytes {
		return &SignatureError{Sig: sig, Reason: "array exceeds 64 MiB"}
	}
	e.PatchUint32(lenOff, uint32(n))
	return nil
}

// sortedKeys 返回排序后的映射键。键限基础类型，按自然序比较。
func sortedKeys(rv reflect.Value) []reflect.Value {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		switch a.Kind() {
		case reflect.String:
			return a.String() < b.String()
		case reflect.Int16, reflect.Int32, reflect.Int64:
			return a.Int() < b.Int()
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return a.Uint() < b.Uint()
		case reflect.Float64:
			return a.Float() < b.Float()
		case reflect.Bool:
			return !a.Bool() && b.Bool()
		}
		return false
	})
	return keys
}

// encodeStruct 编码结构：对齐到 8，字段按序紧排。
// 接受 Go 结构体（按导出字段声明序）或 []any（按位置）。
func (e *Encoder) encodeStruct(sig core.Signature, rv reflect.Value) error {
	fields, err := Split(sig[1 : len(sig)-1])
	if err != nil {
		return err
	}
	e.Pad(8)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() != len(fields) {
			return &SignatureError{
				Sig:    sig,
				Reason: fmt.Sprintf("%d values for %d fields", rv.Len(), len(fields)),
			}
		}
		for i, f := range fields {
			if err := e.encode(f, rv.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Struct:
		vals := exportedFields(rv)
		if len(vals) != len(fields) {
			return &SignatureError{
				Sig:    sig,
				Reason: fmt.Sprintf("%d exported fields for %d wire fields", len(vals), len(fields)),
			}
		}
		for i, f := range fields {
			if err := e.encode(f, vals[i]); err != nil {
				return err
			}
		}
	default:
		return e.mismatch(sig, rv)
	}
	return nil
}

// exportedFields 按声明序收集结构体的导出字段值。
func exportedFields(rv reflect.Value) []reflect.Value {
	t := rv.Type()
	vals := make([]reflect.Value, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).PkgPath != "" {
			continue
		}
		vals = append(vals, rv.Field(i))
	}
	return vals
}
