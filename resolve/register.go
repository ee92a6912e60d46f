package resolve

import (
	"fmt"
	"reflect"
	"strings"
)

// Type 已注册的事件类型：嵌套注册名、Go 类型与构造函数集。
type Type struct {
	name   string
	goType reflect.Type
	ctors  []reflect.Value
	iface  string
	member string
}

// Name 嵌套注册名（如 "org.test.Iface$Changed"）。
func (t *Type) Name() string { return t.name }

// GoType 事件的 Go 类型。
func (t *Type) GoType() reflect.Type { return t.goType }

// Interface 由注册名派生的线上接口名。
func (t *Type) Interface() string { return t.iface }

// Member 由注册名派生的线上成员名。
func (t *Type) Member() string { return t.member }

// splitName 将嵌套注册名切分为线上接口名与成员名：
// 最后一个 '$' 之后为成员，接口部分的其余 '$' 还原为 '.'；
// 无 '$' 时按最后一个 '.' 切分。
func splitName(name string) (iface, member string) {
	if j := strings.LastIndexByte(name, '$'); j >= 0 {
		return strings.ReplaceAll(name[:j], "$", "."), name[j+1:]
	}
	if j := strings.LastIndexByte(name, '.'); j >= 0 {
		return name[:j], name[j+1:]
	}
	return "", name
}

// Register 注册事件类型及其构造函数集。
//
// name 为嵌套注册名；ctors 按注册顺序成为构造候选。每个构造函数
// 必须以 core.ObjectPath 为首参数、不可变参，且返回同一个实现
// core.Event 的类型。重复注册同名类型为后写覆盖，已缓存的解析
// 结果不受影响。
func (r *Registry) Register(name string, ctors ...any) error {
	iface, member := splitName(name)
	if iface == "" || member == "" {
		return fmt.Errorf("register %q: name must carry interface and member", name)
	}
	if len(ctors) == 0 {
		return fmt.Errorf("register %q: at least one constructor required", name)
	}

	var goType reflect.Type
	vals := make([]reflect.Value, 0, len(ctors))
	for i, c := range ctors {
		v := reflect.ValueOf(c)
		if !v.IsValid() || v.Kind() != reflect.Func {
			return fmt.Errorf("register %q: constructor %d is not a function", name, i)
		}
		ft := v.Type()
		if ft.IsVariadic() {
			return fmt.Errorf("register %q: constructor %d is variadic", name, i)
		}
		if ft.NumIn() < 1 || ft.In(0) != objectPathType {
			return fmt.Errorf("register %q: constructor %d must take core.ObjectPath as its first parameter", name, i)
		}
		if ft.NumOut() != 1 {
			return fmt.Errorf("register %q: constructor %d must return exactly the event", name, i)
		}
		out := ft.Out(0)
		if !out.Implements(eventType) {
			return fmt.Errorf("register %q: constructor %d returns %s which does not implement core.Event", name, i, out)
		}
		if goType == nil {
			goType = out
		} else if out != goType {
			return fmt.Errorf("register %q: constructors return mixed types %s and %s", name, goType, out)
		}
		vals = append(vals, v)
	}

	t := &Type{
		name:   name,
		goType: goType,
		ctors:  vals,
		iface:  iface,
		member: member,
	}
	r.types.Store(name, t)
	r.byType.Store(goType, t)
	return nil
}

// MustRegister 注册失败即 panic，用于包初始化。
func (r *Registry) MustRegister(name string, ctors ...any) {
	if err := r.Register(name, ctors...); err != nil {
		panic(err)
	}
}
