package marshal

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/uniyakcom/dbus/core"
)

// 类型嵌套深度上限，防御自引用类型
const maxTypeDepth = 32

var (
	byteType       = reflect.TypeOf(byte(0))
	boolType       = reflect.TypeOf(false)
	int16Type      = reflect.TypeOf(int16(0))
	uint16Type     = reflect.TypeOf(uint16(0))
	int32Type      = reflect.TypeOf(int32(0))
	uint32Type     = reflect.TypeOf(uint32(0))
	int64Type      = reflect.TypeOf(int64(0))
	uint64Type     = reflect.TypeOf(uint64(0))
	float64Type    = reflect.TypeOf(float64(0))
	stringType     = reflect.TypeOf("")
	objectPathType = reflect.TypeOf(core.ObjectPath(""))
	signatureType  = reflect.TypeOf(core.Signature(""))
	variantType    = reflect.TypeOf(core.Variant{})
	anySliceType   = reflect.TypeOf([]any(nil))
	anyType        = reflect.TypeOf((*any)(nil)).Elem()
	busObjectType  = reflect.TypeOf((*core.BusObject)(nil)).Elem()
)

// goTypeFor 返回签名对应的解码产出类型。调用方保证签名已校验。
func goTypeFor(sig core.Signature) reflect.Type {
	switch sig[0] {
	case 'y':
		return byteType
	case 'b':
		return boolType
	case 'n':
		return int16Type
	case 'q':
		return uint16Type
	case 'i':
		return int32Type
	case 'u':
		return uint32Type
	case 'x':
		return int64Type
	case 't':
		return uint64Type
	case 'd':
		return float64Type
	case 's':
		return stringType
	case 'o':
		return objectPathType
	case 'g':
		return signatureType
	case 'v':
		return variantType
	case 'a':
		if sig[1] == '{' {
			inner := string(sig[2 : len(sig)-1])
			keyEnd, _ := next(inner, 0)
			return reflect.MapOf(
				goTypeFor(core.Signature(inner[:keyEnd])),
				goTypeFor(core.Signature(inner[keyEnd:])),
			)
		}
		return reflect.SliceOf(goTypeFor(sig[1:]))
	case '(':
		return anySliceType
	}
	return anyType
}

// 总线对象引用：本身实现或指针接收者实现均算。
func isBusObject(t reflect.Type) bool {
	if t == objectPathType {
		return false
	}
	if t.Implements(busObjectType) {
		return true
	}
	return t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(busObjectType)
}

// SignatureFor 从声明参数类型推导线类型描述符。
//
// 映射规则：具名类型按底层种类归码；实现 BusObject 的类型与接口归 'o'；
// 空接口归 'v'；结构体展开为按导出字段序的 '(...)'。
// 平台宽度整数（int/uint）、int8、float32 与其他接口类型无法携带，报错。
func SignatureFor(types []reflect.Type) (core.Signature, error) {
	var sb strings.Builder
	for i, t := range types {
		if err := sigOf(&sb, t, 0); err != nil {
			return "", fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return core.Signature(sb.String()), nil
}

// SignatureOf 从值推导线类型描述符。
func SignatureOf(vals ...any) (core.Signature, error) {
	var sb strings.Builder
	for i, v := range vals {
		if v == nil {
			return "", fmt.Errorf("argument %d: cannot derive signature for nil", i)
		}
		if err := sigOf(&sb, reflect.TypeOf(v), 0); err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return core.Signature(sb.String()), nil
}

func sigOf(sb *strings.Builder, t reflect.Type, depth int) error {
	if depth > maxTypeDepth {
		return fmt.Errorf("type nesting exceeds %d levels", maxTypeDepth)
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case objectPathType:
		sb.WriteByte('o')
		return nil
	case signatureType:
		sb.WriteByte('g')
		return nil
	case variantType:
		sb.WriteByte('v')
		return nil
	}
	if isBusObject(t) {
		sb.WriteByte('o')
		return nil
	}

	switch t.Kind() {
	case reflect.Uint8:
		sb.WriteByte('y')
	case reflect.Bool:
		sb.WriteByte('b')
	case reflect.Int16:
		sb.WriteByte('n')
	case reflect.Uint16:
		sb.WriteByte('q')
	case reflect.Int32:
		sb.WriteByte('i')
	case reflect.Uint32:
		sb.WriteByte('u')
	case reflect.Int64:
		sb.WriteByte('x')
	case reflect.Uint64:
		sb.WriteByte('t')
	case reflect.Float64:
		sb.WriteByte('d')
	case reflect.String:
		sb.WriteByte('s')
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return fmt.Errorf("platform-width integer %s cannot be carried, use a sized type", t)
	case reflect.Int8:
		return fmt.Errorf("%s cannot be carried, the bus has no signed byte", t)
	case reflect.Float32:
		return fmt.Errorf("%s cannot be carried, the bus has no single-precision float", t)
	case reflect.Slice, reflect.Array:
		sb.WriteByte('a')
		return sigOf(sb, t.Elem(), depth+1)
	case reflect.Map:
		var kb strings.Builder
		if err := sigOf(&kb, t.Key(), depth+1); err != nil {
			return err
		}
		ks := kb.String()
		if len(ks) != 1 || !isBasic(ks[0]) {
			return fmt.Errorf("map key type %s is not a basic wire type", t.Key())
		}
		sb.WriteString("a{")
		sb.WriteString(ks)
		if err := sigOf(sb, t.Elem(), depth+1); err != nil {
			return err
		}
		sb.WriteByte('}')
	case reflect.Struct:
		var fb strings.Builder
		n := 0
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.PkgPath != "" {
				continue
			}
			if err := sigOf(&fb, f.Type, depth+1); err != nil {
				return err
			}
			n++
		}
		if n == 0 {
			return fmt.Errorf("struct %s has no exported fields", t)
		}
		sb.WriteByte('(')
		sb.WriteString(fb.String())
		sb.WriteByte(')')
	case reflect.Interface:
		if t == anyType {
			sb.WriteByte('v')
			return nil
		}
		return fmt.Errorf("interface %s cannot be carried", t)
	default:
		return fmt.Errorf("type %s cannot be carried", t)
	}
	return nil
}

// WireForm 将声明类型规约为线上解码后的运行时形态，用于构造候选匹配：
// 结构体规约为 []any，总线对象引用规约为 ObjectPath，
// 具名基础类型规约为底层基础类型，指针求内型，容器按元素递归。
// 空接口保持原样（可从任何实参赋值），其他接口原样返回（通常不匹配）。
func WireForm(t reflect.Type) reflect.Type {
	return wireForm(t, 0)
}

func wireForm(t reflect.Type, depth int) reflect.Type {
	if depth > maxTypeDepth {
		return t
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case objectPathType, signatureType, variantType:
		return t
	}
	if isBusObject(t) {
		return objectPathType
	}

	switch t.Kind() {
	case reflect.Uint8:
		return byteType
	case reflect.Bool:
		return boolType
	case reflect.Int16:
		return int16Type
	case reflect.Uint16:
		return uint16Type
	case reflect.Int32:
		return int32Type
	case reflect.Uint32:
		return uint32Type
	case reflect.Int64:
		return int64Type
	case reflect.Uint64:
		return uint64Type
	case reflect.Float64:
		return float64Type
	case reflect.String:
		return stringType
	case reflect.Slice, reflect.Array:
		return reflect.SliceOf(wireForm(t.Elem(), depth+1))
	case reflect.Map:
		return reflect.MapOf(wireForm(t.Key(), depth+1), wireForm(t.Elem(), depth+1))
	case reflect.Struct:
		return anySliceType
	}
	return t
}
