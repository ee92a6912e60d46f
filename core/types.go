// Package core 提供 D-Bus 消息库的核心类型定义。
//
// ObjectPath/Signature/Variant 是总线类型系统的三个特殊字符串形态；
// Event 是强类型信号事件的统一契约（通过嵌入 SignalBase 实现）；
// Conn 是本库消费的最小连接上下文接口。
package core

// ObjectPath 总线对象路径（如 "/org/freedesktop/DBus"）
type ObjectPath string

// pathChars [256]bool 查表 — 零分支判断路径段合法字符 [-_a-zA-Z0-9]
var pathChars [256]bool

func init() {
	for c := 'a'; c <= 'z'; c++ {
		pathChars[c] = true
	}
	for c := 'A'; c <= 'Z'; c++ {
		pathChars[c] = true
	}
	for c := '0'; c <= '9'; c++ {
		pathChars[c] = true
	}
	pathChars['-'] = true
	pathChars['_'] = true
}

// IsValid 检查路径是否符合总线路径语法：
// 以 "/" 开头，段字符限 [-_a-zA-Z0-9]，无空段，无尾部 "/"（根路径 "/" 除外）。
func (p ObjectPath) IsValid() bool {
	s := string(p)
	if len(s) == 0 || s[0] != '/' {
		return false
	}
	if len(s) == 1 {
		return true
	}
	if s[len(s)-1] == '/' {
		return false
	}
	prev := byte('/')
	for i := 1; i < len(s); i++ {
		c := s[i]
		if c == '/' {
			if prev == '/' {
				return false
			}
		} else if !pathChars[c] {
			return false
		}
		prev = c
	}
	return true
}

// String 返回路径字符串。
func (p ObjectPath) String() string { return string(p) }

// InvalidPathError 对象路径不符合总线路径语法
type InvalidPathError struct {
	Path string
}

func (e *InvalidPathError) Error() string {
	return "invalid object path: " + e.Path
}

// Signature 类型签名（消息体值类型序列的紧凑编码，如 "a{sv}"）
type Signature string

// Empty 签名是否为空（空签名表示消息无体）。
func (s Signature) Empty() bool { return len(s) == 0 }

// String 返回签名字符串。
func (s Signature) String() string { return string(s) }

// Variant 变体值：单个类型签名加上按该签名编码的值。
// 头字段与 "v" 类型的消息体参数均以 Variant 承载。
type Variant struct {
	Sig   Signature
	Value any
}

// BusObject 总线对象引用。
// 声明为 BusObject（或其实现类型）的构造参数在线上以对象路径传输，
// 反序列化时经由 Conn.Object 解析回本地引用。
type BusObject interface {
	ObjectPath() ObjectPath
}
