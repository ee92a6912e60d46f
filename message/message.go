// Package message 实现信号信封的构造、终结与解析。
//
// Signal 同时承担出站构造器与入站记录两种角色：出站路径按固定顺序
// 发出头字段并回填体长，重现总线信号的线上布局；入站路径由
// DecodeSignal 将完整信封还原为携带原始字节的记录。
//
// 消息体支持延迟终结：头字段与序列号在构造时即时发出，
// 体参数推迟到 Finalize 编码。Finalize 幂等，恰好生效一次。
package message

import (
	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/marshal"
)

// 消息类型代码（信封第二字节）
const (
	TypeMethodCall   byte = 1
	TypeMethodReturn byte = 2
	TypeError        byte = 3
	TypeSignal       byte = 4
)

// ProtocolVersion 线协议主版本（信封第四字节）
const ProtocolVersion byte = 1

// FormatError 信封结构不符合线协议要求
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "malformed signal envelope: " + e.Reason
}

// Message 信封通用状态：固定头、头字段表、序列号与消息体。
// 出站时 enc 持有构建中的信封，入站时 wire 持有原始字节。
type Message struct {
	typ     byte
	flags   byte
	endian  byte
	serial  uint32
	headers core.Headers
	args    []any
	wire    []byte
	enc     *marshal.Encoder
}

// Type 消息类型代码。
func (m *Message) Type() byte { return m.typ }

// Flags 标志字节（信号恒为 0）。
func (m *Message) Flags() byte { return m.flags }

// Endian 字节序标记（'l' 或 'B'）。
func (m *Message) Endian() byte { return m.endian }

// Serial 连接内序列号。
func (m *Message) Serial() uint32 { return m.serial }

// Headers 头字段表。返回内部映射，调用方不应修改。
func (m *Message) Headers() core.Headers { return m.headers }

// Args 消息体参数。入站为解码产出的原始实参，出站为终结时的编码实参。
func (m *Message) Args() []any { return m.args }

// Wire 信封字节。入站为原始信封，出站为当前已构建部分
// （终结前不含消息体，终结后为完整信封）。
func (m *Message) Wire() []byte {
	if m.enc != nil {
		return m.enc.Bytes()
	}
	return m.wire
}

// Path 发出对象路径（PATH 头字段）。
func (m *Message) Path() core.ObjectPath { return m.headers.Path() }

// Interface 接口名（INTERFACE 头字段）。
func (m *Message) Interface() string { return m.headers.Interface() }

// Member 成员名（MEMBER 头字段）。
func (m *Message) Member() string { return m.headers.Member() }

// Sender 发送者总线名（SENDER 头字段），缺失返回空串。
func (m *Message) Sender() string { return m.headers.Sender() }

// Sig 消息体类型签名（SIGNATURE 头字段），无体时为空。
func (m *Message) Sig() core.Signature { return m.headers.Signature() }
