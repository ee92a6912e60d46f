package message

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/marshal"
)

// 信号头字段发出顺序固定：PATH、INTERFACE、MEMBER，
// 然后是条件性的 SENDER 与 SIGNATURE。
var signalFieldOrder = []byte{
	core.FieldPath,
	core.FieldInterface,
	core.FieldMember,
	core.FieldSender,
	core.FieldSignature,
}

// Signal 信号信封。
//
// 出站实例由 NewSignal / NewTypedSignal 构造；入站记录由 DecodeSignal 产出。
// 延迟体信号在 Finalize 成功前信封不含消息体，体长占位为零。
type Signal struct {
	Message

	bodyDone  bool
	blenOff   int
	bodyStart int
	pending   []any
}

// NewSignal 构造并立即终结一条信号信封。
//
// path、iface、member 为必填头字段；sig 非空时 args 按其编码为消息体。
// 序列号在构造时从 conn 取得，每次构造恰好消费一个。
func NewSignal(conn core.Conn, source string, path core.ObjectPath, iface, member string, sig core.Signature, args ...any) (*Signal, error) {
	if path == "" || iface == "" || member == "" {
		return nil, &FormatError{Reason: "must specify object path, interface and member"}
	}
	s, err := newSignal(conn, source, path, iface, member, sig)
	if err != nil {
		return nil, err
	}
	s.pending = args
	if err := s.Finalize(conn); err != nil {
		return nil, err
	}
	return s, nil
}

// NewTypedSignal 按声明参数类型构造延迟体信号。
//
// 头字段与序列号即时发出：消息体签名从 declared 推导并随头字段写入，
// 体参数保持挂起，推迟到 Finalize 编码。args 为空时不发出 SIGNATURE 头字段。
// 对象路径必须符合总线路径语法。
func NewTypedSignal(conn core.Conn, source string, path core.ObjectPath, iface, member string, declared []reflect.Type, args []any) (*Signal, error) {
	if iface == "" || member == "" {
		return nil, &FormatError{Reason: "must specify interface and member"}
	}
	if !path.IsValid() {
		return nil, &core.InvalidPathError{Path: string(path)}
	}
	var sig core.Signature
	if len(args) > 0 {
		if len(declared) != len(args) {
			return nil, &FormatError{
				Reason: fmt.Sprintf("%d arguments for %d declared parameters", len(args), len(declared)),
			}
		}
		var err error
		sig, err = marshal.SignatureFor(declared)
		if err != nil {
			return nil, fmt.Errorf("derive body signature: %w", err)
		}
	}
	s, err := newSignal(conn, source, path, iface, member, sig)
	if err != nil {
		return nil, err
	}
	s.pending = args
	return s, nil
}

// newSignal 发出信封的头部：固定前导、体长占位、序列号与头字段数组，
// 并填充到 8 字节边界。返回时信封正好停在消息体起点。
func newSignal(conn core.Conn, source string, path core.ObjectPath, iface, member string, sig core.Signature) (*Signal, error) {
	if conn == nil {
		return nil, errors.New("nil connection")
	}
	s := &Signal{
		Message: Message{
			typ:     TypeSignal,
			endian:  marshal.LittleEndian,
			headers: make(core.Headers, 5),
		},
	}
	s.headers.Set(core.FieldPath, path)
	s.headers.Set(core.FieldInterface, iface)
	s.headers.Set(core.FieldMember, member)
	if source != "" {
		s.headers.Set(core.FieldSender, source)
	}
	if !sig.Empty() {
		s.headers.Set(core.FieldSignature, sig)
	}

	e := marshal.NewEncoder(s.endian)
	if err := e.Append("yyyy", s.endian, s.typ, s.flags, ProtocolVersion); err != nil {
		return nil, err
	}
	s.blenOff = e.Reserve(4)
	s.serial = conn.NextSerial()
	if err := e.Append("ua(yv)", s.serial, headerFields(s.headers)); err != nil {
		return nil, err
	}
	e.Pad(8)
	s.enc = e
	s.bodyStart = e.Len()
	return s, nil
}

// headerFields 按固定发出顺序将头字段表整理为 a(yv) 的元素序列。
func headerFields(h core.Headers) []any {
	fields := make([]any, 0, len(h))
	for _, code := range signalFieldOrder {
		if !h.Has(code) {
			continue
		}
		fields = append(fields, []any{code, variantFor(code, h.Get(code))})
	}
	return fields
}

// variantFor 头字段值的变体形态，字段代码决定签名。
func variantFor(code byte, v any) core.Variant {
	switch code {
	case core.FieldPath:
		return core.Variant{Sig: "o", Value: v}
	case core.FieldSignature:
		return core.Variant{Sig: "g", Value: v}
	case core.FieldReplySerial, core.FieldUnixFDs:
		return core.Variant{Sig: "u", Value: v}
	}
	return core.Variant{Sig: "s", Value: v}
}

// Finalize 终结消息体：将挂起参数编码进信封并回填体长。
//
// 幂等，重复调用直接返回 nil；首次成功后信封字节不再改变。
// 顶层的总线对象引用参数在编码前替换为其对象路径。
// 编码失败时信封处于部分写入状态，不可再使用。
// conn 为终结上下文，序列号已在构造时取得。
func (s *Signal) Finalize(conn core.Conn) error {
	if s.bodyDone {
		return nil
	}
	args := marshal.ConvertArguments(s.pending)
	sig := s.Sig()
	if sig.Empty() {
		if len(args) > 0 {
			return &FormatError{Reason: "arguments without body signature"}
		}
	} else if err := s.enc.Append(sig, args...); err != nil {
		return err
	}
	s.enc.PatchUint32(s.blenOff, uint32(s.enc.Len()-s.bodyStart))
	s.args = args
	s.pending = nil
	s.bodyDone = true
	return nil
}

// Finalized 消息体是否已终结。
func (s *Signal) Finalized() bool { return s.bodyDone }

// BodyLen 已终结消息体的字节长度，未终结返回 0。
func (s *Signal) BodyLen() int {
	if s.enc == nil {
		return len(s.wire) - s.bodyStart
	}
	if !s.bodyDone {
		return 0
	}
	return s.enc.Len() - s.bodyStart
}

// String 信号的单行摘要。
func (s *Signal) String() string {
	return fmt.Sprintf("signal serial=%d path=%s interface=%s member=%s sig=%q body=%dB",
		s.serial, s.Path(), s.Interface(), s.Member(), string(s.Sig()), s.BodyLen())
}
