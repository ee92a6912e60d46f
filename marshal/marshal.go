// Package marshal 实现总线线格式的值编解码。
//
// Encoder 将 Go 值按类型签名追加为对齐正确的线字节，支持长度占位回填；
// Decoder 做逆向解码，产出自然的 Go 运行时形态（结构体→[]any、数组→强类型切片）。
// SignatureFor 从声明参数类型推导线类型描述符，WireForm 给出匹配用的规约形态。
//
// 对齐以缓冲区起点为基准：单个 Encoder/Decoder 实例处理完整信封，
// 缓冲区偏移即消息偏移，填充自然正确。
package marshal

import (
	"fmt"

	"github.com/uniyakcom/dbus/core"
)

// 字节序标记（信封首字节）
const (
	LittleEndian byte = 'l'
	BigEndian    byte = 'B'
)

// SignatureError 类型签名不合法或与值数量不符
type SignatureError struct {
	Sig    core.Signature
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("invalid signature %q: %s", string(e.Sig), e.Reason)
}

// alignment 返回类型代码的对齐边界。
func alignment(code byte) int {
	switch code {
	case 'y', 'g', 'v':
		return 1
	case 'n', 'q':
		return 2
	case 'b', 'i', 'u', 's', 'o', 'a':
		return 4
	case 'x', 't', 'd', '(', '{':
		return 8
	}
	return 1
}

// isBasic 判断是否基础类型代码（字典键仅允许基础类型）。
func isBasic(code byte) bool {
	switch code {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g':
		return true
	}
	return false
}

// Split 将签名拆分为完整单类型序列，同时校验语法。
// 不支持的类型代码（如 UNIX 文件描述符 'h'）与裸字典项均报错。
func Split(sig core.Signature) ([]core.Signature, error) {
	s := string(sig)
	var items []core.Signature
	for i := 0; i < len(s); {
		j, err := next(s, i)
		if err != nil {
			return nil, err
		}
		items = append(items, core.Signature(s[i:j]))
		i = j
	}
	return items, nil
}

// next 返回始于 i 的完整单类型的结束偏移（开区间）。
func next(s string, i int) (int, error) {
	if i >= len(s) {
		return 0, &SignatureError{Sig: core.Signature(s), Reason: "truncated type"}
	}
	switch s[i] {
	case 'y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v':
		return i + 1, nil
	case 'h':
		return 0, &SignatureError{Sig: core.Signature(s), Reason: "file descriptor type not supported"}
	case 'a':
		if i+1 < len(s) && s[i+1] == '{' {
			return nextDict(s, i+1)
		}
		return next(s, i+1)
	case '(':
		j := i + 1
		for j < len(s) && s[j] != ')' {
			var err error
			j, err = next(s, j)
			if err != nil {
				return 0, err
			}
		}
		if j >= len(s) {
			return 0, &SignatureError{Sig: core.Signature(s), Reason: "unterminated struct"}
		}
		if j == i+1 {
			return 0, &SignatureError{Sig: core.Signature(s), Reason: "empty struct"}
		}
		return j + 1, nil
	case '{':
		return 0, &SignatureError{Sig: core.Signature(s), Reason: "dict entry outside array"}
	}
	return 0, &SignatureError{Sig: core.Signature(s), Reason: fmt.Sprintf("unknown type code %q", s[i])}
}

// nextDict 解析 '{' 起始的字典项：恰好两个完整类型，键必须是基础类型。
func nextDict(s string, i int) (int, error) {
	j := i + 1
	if j >= len(s) {
		return 0, &SignatureError{Sig: core.Signature(s), Reason: "unterminated dict entry"}
	}
	if !isBasic(s[j]) {
		return 0, &SignatureError{Sig: core.Signature(s), Reason: "dict key must be a basic type"}
	}
	j, err := next(s, j)
	if err != nil {
		return 0, err
	}
	j, err = next(s, j)
	if err != nil {
		return 0, err
	}
	if j >= len(s) || s[j] != '}' {
		return 0, &SignatureError{Sig: core.Signature(s), Reason: "unterminated dict entry"}
	}
	return j + 1, nil
}
