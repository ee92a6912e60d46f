package message

import (
	"fmt"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/marshal"
)

// 信封固定头长度：yyyy 前导加体长与序列号
const fixedHeaderLen = 16

// DecodeSignal 将完整信号信封解析为入站记录。
//
// 仅接受 SIGNAL 类型与协议版本 1。体长字段必须与实际体字节数一致，
// PATH/INTERFACE/MEMBER 三个头字段必须齐备。原始字节原样保留在记录中。
func DecodeSignal(data []byte) (*Signal, error) {
	if len(data) < fixedHeaderLen {
		return nil, &FormatError{Reason: "envelope shorter than fixed header"}
	}
	endian := data[0]
	if endian != marshal.LittleEndian && endian != marshal.BigEndian {
		return nil, &FormatError{Reason: fmt.Sprintf("unknown endian marker %#x", endian)}
	}

	d := marshal.NewDecoder(data, endian)
	fixed, err := d.Read("yyyyuu")
	if err != nil {
		return nil, err
	}
	typ := fixed[1].(byte)
	flags := fixed[2].(byte)
	version := fixed[3].(byte)
	bodyLen := fixed[4].(uint32)
	serial := fixed[5].(uint32)

	if typ != TypeSignal {
		return nil, &FormatError{Reason: fmt.Sprintf("message type %d is not a signal", typ)}
	}
	if version != ProtocolVersion {
		return nil, &FormatError{Reason: fmt.Sprintf("unsupported protocol version %d", version)}
	}

	raw, err := d.Read("a(yv)")
	if err != nil {
		return nil, err
	}
	headers := make(core.Headers)
	for _, f := range raw[0].([][]any) {
		code := f[0].(byte)
		headers[code] = f[1].(core.Variant).Value
	}
	if headers.Path() == "" || headers.Interface() == "" || headers.Member() == "" {
		return nil, &FormatError{Reason: "signal missing mandatory path, interface or member"}
	}

	if err := d.Pad(8); err != nil {
		return nil, err
	}
	bodyStart := d.Pos()
	if int(bodyLen) != len(data)-bodyStart {
		return nil, &FormatError{
			Reason: fmt.Sprintf("declared body length %d, actual %d", bodyLen, len(data)-bodyStart),
		}
	}

	sig := headers.Signature()
	var args []any
	if !sig.Empty() {
		args, err = d.Read(sig)
		if err != nil {
			return nil, err
		}
		if d.Rest() != 0 {
			return nil, &FormatError{Reason: fmt.Sprintf("%d trailing bytes after body", d.Rest())}
		}
	} else if bodyLen != 0 {
		return nil, &FormatError{Reason: "body bytes without signature header"}
	}

	return &Signal{
		Message: Message{
			typ:     typ,
			flags:   flags,
			endian:  endian,
			serial:  serial,
			headers: headers,
			args:    args,
			wire:    data,
		},
		bodyDone:  true,
		bodyStart: bodyStart,
	}, nil
}
