package resolve

import (
	"fmt"
	"reflect"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/marshal"
)

// ctorEntry 构造候选：构造函数、剥除路径参数后的声明参数类型、
// 匹配用的线形态与推导出的体签名。
type ctorEntry struct {
	fn       reflect.Value
	declared []reflect.Type
	match    []reflect.Type
	sig      core.Signature
}

// candidates 返回类型的构造候选目录，序同注册顺序。
// 目录按类型惰性构建并缓存一次；签名推导失败不缓存，逐次报错。
func (r *Registry) candidates(t *Type) ([]*ctorEntry, error) {
	if v, ok := r.catalog.Load(t); ok {
		return v.([]*ctorEntry), nil
	}

	entries := make([]*ctorEntry, 0, len(t.ctors))
	for _, fn := range t.ctors {
		ft := fn.Type()
		declared := make([]reflect.Type, ft.NumIn()-1)
		match := make([]reflect.Type, ft.NumIn()-1)
		for i := 1; i < ft.NumIn(); i++ {
			declared[i-1] = ft.In(i)
			match[i-1] = marshal.WireForm(ft.In(i))
		}
		sig, err := marshal.SignatureFor(declared)
		if err != nil {
			return nil, fmt.Errorf("constructor for %s: %w", t.name, err)
		}
		entries = append(entries, &ctorEntry{
			fn:       fn,
			declared: declared,
			match:    match,
			sig:      sig,
		})
	}

	v, _ := r.catalog.LoadOrStore(t, entries)
	return v.([]*ctorEntry), nil
}

// matchEntry 返回首个与实参逐位匹配的候选，无匹配返回 nil。
// 匹配要求元数一致且每个实参的运行时类型可赋值给候选的线形态参数。
func matchEntry(entries []*ctorEntry, args []any) *ctorEntry {
	for _, e := range entries {
		if e.matches(args) {
			return e
		}
	}
	return nil
}

func (e *ctorEntry) matches(args []any) bool {
	if len(args) != len(e.match) {
		return false
	}
	for i, a := range args {
		if a == nil {
			return false
		}
		if !reflect.TypeOf(a).AssignableTo(e.match[i]) {
			return false
		}
	}
	return true
}
