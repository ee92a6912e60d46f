package marshal

import (
	"fmt"
	"reflect"

	"github.com/uniyakcom/dbus/core"
)

// ConvertArguments 出站参数规约：总线对象引用替换为其对象路径，其余原样。
// 仅处理顶层参数；容器内嵌的对象引用需调用方自行展开为路径。
func ConvertArguments(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if bo, ok := a.(core.BusObject); ok {
			out[i] = bo.ObjectPath()
			continue
		}
		out[i] = a
	}
	return out
}

// DeserializeArguments 将解码出的原始实参整形为声明参数的形态。
//
// 不做数值宽化。允许的整形仅限：同底层种类的具名类型转换、
// []any 重建为结构体、对象路径经 conn.Object 解析为本地引用、
// 指针取址，以及按元素递归进入切片/数组/映射。
func DeserializeArguments(raw []any, declared []reflect.Type, conn core.Conn) ([]any, error) {
	if len(raw) != len(declared) {
		return nil, fmt.Errorf("%d arguments for %d parameters", len(raw), len(declared))
	}
	out := make([]any, len(raw))
	for i := range raw {
		v, err := deserialize(reflect.ValueOf(raw[i]), declared[i], conn)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v.Interface()
	}
	return out, nil
}

func deserialize(rv reflect.Value, t reflect.Type, conn core.Conn) (reflect.Value, error) {
	if !rv.IsValid() {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot deserialize nil into %s", t)
	}
	if rv.Type() == t || rv.Type().AssignableTo(t) {
		return rv, nil
	}

	// 对象路径解析为本地引用
	if path, ok := rv.Interface().(core.ObjectPath); ok && t != objectPathType && wantsObject(t) {
		return resolveObject(path, t, conn)
	}

	switch t.Kind() {
	case reflect.Pointer:
		ev, err := deserialize(rv, t.Elem(), conn)
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(ev)
		return p, nil
	case reflect.Struct:
		return deserializeStruct(rv, t, conn)
	case reflect.Slice:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		out := reflect.MakeSlice(t, rv.Len(), rv.Len())
		for i := 0; i < rv.Len(); i++ {
			ev, err := deserialize(elemValue(rv.Index(i)), t.Elem(), conn)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case reflect.Array:
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			break
		}
		if rv.Len() != t.Len() {
			return reflect.Value{}, fmt.Errorf("%d elements for array of %d", rv.Len(), t.Len())
		}
		out := reflect.New(t).Elem()
		for i := 0; i < rv.Len(); i++ {
			ev, err := deserialize(elemValue(rv.Index(i)), t.Elem(), conn)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	case reflect.Map:
		if rv.Kind() != reflect.Map {
			break
		}
		out := reflect.MakeMapWithSize(t, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			kv, err := deserialize(elemValue(iter.Key()), t.Key(), conn)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("map key: %w", err)
			}
			vv, err := deserialize(elemValue(iter.Value()), t.Elem(), conn)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("map value: %w", err)
			}
			out.SetMapIndex(kv, vv)
		}
		return out, nil
	default:
		// 同种类的具名类型转换，不跨宽度
		if rv.Kind() == t.Kind() && rv.Type().ConvertibleTo(t) {
			return rv.Convert(t), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot deserialize %s into %s", rv.Type(), t)
}

// deserializeStruct 将 []any 按导出字段序重建为结构体。
func deserializeStruct(rv reflect.Value, t reflect.Type, conn core.Conn) (reflect.Value, error) {
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return reflect.Value{}, fmt.Errorf("cannot deserialize %s into struct %s", rv.Type(), t)
	}
	var idx []int
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).PkgPath != "" {
			continue
		}
		idx = append(idx, i)
	}
	if rv.Len() != len(idx) {
		return reflect.Value{}, fmt.Errorf("%d values for %d fields of %s", rv.Len(), len(idx), t)
	}
	out := reflect.New(t).Elem()
	for j, i := range idx {
		fv, err := deserialize(elemValue(rv.Index(j)), t.Field(i).Type, conn)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("field %s: %w", t.Field(i).Name, err)
		}
		out.Field(i).Set(fv)
	}
	return out, nil
}

// elemValue 剥离容器元素上的接口包装，露出具体值。
func elemValue(rv reflect.Value) reflect.Value {
	if rv.Kind() == reflect.Interface && !rv.IsNil() {
		return rv.Elem()
	}
	return rv
}

// wantsObject 判断声明类型是否为总线对象引用（含接口形态）。
func wantsObject(t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return isBusObject(t)
}

// resolveObject 经连接把对象路径解析为本地引用。
func resolveObject(path core.ObjectPath, t reflect.Type, conn core.Conn) (reflect.Value, error) {
	if conn == nil {
		return reflect.Value{}, fmt.Errorf("no connection to resolve object path %q", string(path))
	}
	obj := conn.Object(path)
	if obj == nil {
		return reflect.Value{}, fmt.Errorf("no object at path %q", string(path))
	}
	ov := reflect.ValueOf(obj)
	if !ov.Type().AssignableTo(t) {
		if ov.Kind() == reflect.Pointer && ov.Elem().Type().AssignableTo(t) {
			return ov.Elem(), nil
		}
		return reflect.Value{}, fmt.Errorf("object at %q has type %s, want %s", string(path), ov.Type(), t)
	}
	return ov, nil
}
