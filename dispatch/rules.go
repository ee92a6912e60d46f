package dispatch

import (
	"strings"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/message"
)

// Rule 订阅匹配规则。
//
// 空字段为通配，非空字段须全部命中。规则针对记录的头字段
// 而非再水化后的事件类型，与总线匹配规则语义一致。
// Path 精确匹配单个对象路径，PathNamespace 按完整路径段匹配前缀，
// 两者通常只设其一。
type Rule struct {
	Sender        string
	Interface     string
	Member        string
	Path          core.ObjectPath
	PathNamespace core.ObjectPath
}

// Matches 判断入站记录是否命中规则。
func (r Rule) Matches(rec *message.Signal) bool {
	if r.Interface != "" && rec.Interface() != r.Interface {
		return false
	}
	if r.Member != "" && rec.Member() != r.Member {
		return false
	}
	if r.Sender != "" && rec.Sender() != r.Sender {
		return false
	}
	if r.Path != "" && rec.Path() != r.Path {
		return false
	}
	if r.PathNamespace != "" && !underNamespace(rec.Path(), r.PathNamespace) {
		return false
	}
	return true
}

// underNamespace 路径是否位于命名空间之下。
// 按完整路径段比较："/a/b" 覆盖 "/a/b" 与 "/a/b/c"，不覆盖 "/a/bc"；
// 根命名空间 "/" 覆盖一切。
func underNamespace(p, ns core.ObjectPath) bool {
	if ns == "/" {
		return true
	}
	s, n := string(p), string(ns)
	if !strings.HasPrefix(s, n) {
		return false
	}
	return len(s) == len(n) || s[len(n)] == '/'
}
