package resolve

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/uniyakcom/dbus/core"
	"github.com/uniyakcom/dbus/marshal"
	"github.com/uniyakcom/dbus/message"
)

// ErrUnregistered 事件类型未注册
var ErrUnregistered = errors.New("event type not registered")

// ConstructionError 构造已解析的事件类型失败
type ConstructionError struct {
	Type string
	Err  error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("constructing %s: %v", e.Type, e.Err)
}

func (e *ConstructionError) Unwrap() error { return e.Err }

// Rehydrate 将入站信号记录重建为强类型事件。
//
// 三态返回：成功返回事件；类型已解析但无构造候选匹配实参时返回
// (nil, nil)，调用方按原始记录继续处理；名字解析失败或构造失败
// 返回错误。构造函数 panic 被回收为 ConstructionError。
// 成功路径把记录头字段的副本与原始信封字节绑定到事件上。
func (r *Registry) Rehydrate(rec *message.Signal, conn core.Conn) (core.Event, error) {
	t, err := r.Resolve(rec.Interface(), rec.Member())
	if err != nil {
		return nil, err
	}
	r.logger.Debug("converting signal to type", "type", t.name)

	entries, err := r.candidates(t)
	if err != nil {
		return nil, &ConstructionError{Type: t.name, Err: err}
	}
	raw := rec.Args()
	entry := matchEntry(entries, raw)
	if entry == nil {
		r.logger.Warn("could not find suitable constructor",
			"type", t.name, "argument-types", argTypes(raw))
		return nil, nil
	}

	args, err := marshal.DeserializeArguments(raw, entry.declared, conn)
	if err != nil {
		return nil, &ConstructionError{Type: t.name, Err: err}
	}
	ev, err := entry.construct(rec.Path(), args)
	if err != nil {
		return nil, &ConstructionError{Type: t.name, Err: err}
	}
	core.Bind(ev, rec.Path(), rec.Headers().Copy(), rec.Wire())
	return ev, nil
}

// construct 反射调用构造函数，panic 回收为错误。
func (e *ctorEntry) construct(path core.ObjectPath, args []any) (ev core.Event, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ev = nil
			err = fmt.Errorf("constructor panic: %v", rec)
		}
	}()
	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(path))
	for _, a := range args {
		in = append(in, reflect.ValueOf(a))
	}
	out := e.fn.Call(in)
	return out[0].Interface().(core.Event), nil
}

// argTypes 实参运行时类型的可读摘要，用于诊断日志。
func argTypes(args []any) string {
	names := make([]string, len(args))
	for i, a := range args {
		if a == nil {
			names[i] = "nil"
			continue
		}
		names[i] = reflect.TypeOf(a).String()
	}
	return "[" + strings.Join(names, " ") + "]"
}

// NewSignalFrom 从强类型事件构造出站延迟体信号。
//
// 事件类型经注册信息反查线上接口/成员名；体参数按声明序取事件的
// 导出字段（嵌入基座除外），参数声明类型取首个构造候选。
// 返回的信号已发出头字段与序列号，消息体留待 Finalize。
func (r *Registry) NewSignalFrom(conn core.Conn, source string, path core.ObjectPath, ev core.Event) (*message.Signal, error) {
	v, ok := r.byType.Load(reflect.TypeOf(ev))
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnregistered, ev)
	}
	t := v.(*Type)
	entries, err := r.candidates(t)
	if err != nil {
		return nil, err
	}
	first := entries[0]
	args := eventArgs(ev)
	if len(args) != len(first.declared) {
		return nil, fmt.Errorf("%s carries %d exported fields but its first constructor declares %d parameters",
			t.name, len(args), len(first.declared))
	}
	return message.NewTypedSignal(conn, source, path, t.iface, t.member, first.declared, args)
}

// eventArgs 按声明序收集事件的导出字段值，跳过嵌入的 SignalBase。
func eventArgs(ev core.Event) []any {
	rv := reflect.ValueOf(ev)
	for rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	t := rv.Type()
	var args []any
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		if f.Anonymous && f.Type == signalBaseType {
			continue
		}
		args = append(args, rv.Field(i).Interface())
	}
	return args
}
