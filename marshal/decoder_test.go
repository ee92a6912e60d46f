package marshal

import (
	"reflect"
	"testing"

	"github.com/uniyakcom/dbus/core"
)

// roundTrip 编码后立即解码，两端共享同一偏移基准。
func roundTrip(t *testing.T, endian byte, sig core.Signature, vals ...any) []any {
	t.Helper()
	e := NewEncoder(endian)
	if err := e.Append(sig, vals...); err != nil {
		t.Fatalf("Append(%q) error: %v", sig, err)
	}
	d := NewDecoder(e.Bytes(), endian)
	got, err := d.Read(sig)
	if err != nil {
		t.Fatalf("Read(%q) error: %v", sig, err)
	}
	if d.Rest() != 0 {
		t.Fatalf("Read(%q) left %d bytes unread", sig, d.Rest())
	}
	return got
}

func TestDecoder_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		sig  core.Signature
		vals []any
	}{
		{"byte", "y", []any{byte(255)}},
		{"bool", "b", []any{true}},
		{"int16", "n", []any{int16(-300)}},
		{"uint16", "q", []any{uint16(65535)}},
		{"int32", "i", []any{int32(-70000)}},
		{"uint32", "u", []any{uint32(4000000000)}},
		{"int64", "x", []any{int64(-1 << 40)}},
		{"uint64", "t", []any{uint64(1) << 63}},
		{"double", "d", []any{3.14159}},
		{"string", "s", []any{"hello world"}},
		{"object path", "o", []any{core.ObjectPath("/org/test/a")}},
		{"signature", "g", []any{core.Signature("a(yv)")}},
		{"mixed", "yius", []any{byte(1), int32(-2), uint32(3), "four"}},
		{"string array", "as", []any{[]string{"a", "bb", "ccc"}}},
		{"nested array", "aai", []any{[][]int32{{1}, {2, 3}}}},
		{"struct", "(isb)", []any{[]any{int32(5), "x", false}}},
		{"array of struct", "a(yy)", []any{[][]any{{byte(1), byte(2)}, {byte(3), byte(4)}}}},
		{"variant", "v", []any{core.Variant{Sig: "i", Value: int32(12)}}},
		{"dict", "a{ss}", []any{map[string]string{"k1": "v1", "k2": "v2"}}},
		{"dict of variant", "a{sv}", []any{map[string]core.Variant{"n": {Sig: "u", Value: uint32(1)}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, LittleEndian, tt.sig, tt.vals...)
			if !reflect.DeepEqual(got, tt.vals) {
				t.Errorf("round trip %q = %#v, want %#v", tt.sig, got, tt.vals)
			}
		})
	}
}

func TestDecoder_RoundTripBigEndian(t *testing.T) {
	got := roundTrip(t, BigEndian, "uisd", uint32(7), int32(-7), "seven", 7.0)
	want := []any{uint32(7), int32(-7), "seven", 7.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestDecoder_TypedOutput(t *testing.T) {
	// 数组解码产出强类型切片与映射，而非 []any
	got := roundTrip(t, LittleEndian, "as", []string{"x"})
	if _, ok := got[0].([]string); !ok {
		t.Errorf("decoded array type = %T, want []string", got[0])
	}

	got = roundTrip(t, LittleEndian, "a{sy}", map[string]byte{"a": 1})
	if _, ok := got[0].(map[string]byte); !ok {
		t.Errorf("decoded dict type = %T, want map[string]byte", got[0])
	}

	got = roundTrip(t, LittleEndian, "(ii)", []any{int32(1), int32(2)})
	if _, ok := got[0].([]any); !ok {
		t.Errorf("decoded struct type = %T, want []any", got[0])
	}
}

func TestDecoder_Truncated(t *testing.T) {
	tests := []struct {
		name string
		sig  core.Signature
		buf  []byte
	}{
		{"empty uint32", "u", nil},
		{"short uint32", "u", []byte{1, 2}},
		{"string body", "s", []byte{10, 0, 0, 0, 'a'}},
		{"missing NUL", "s", []byte{1, 0, 0, 0, 'a'}},
		{"array count", "ai", []byte{8, 0, 0, 0, 1, 0}},
		{"variant sig", "v", []byte{3, 'x'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(tt.buf, LittleEndian)
			if _, err := d.Read(tt.sig); err == nil {
				t.Errorf("Read(%q) on truncated input expected error", tt.sig)
			}
		})
	}
}

func TestDecoder_InvalidBoolean(t *testing.T) {
	d := NewDecoder([]byte{2, 0, 0, 0}, LittleEndian)
	if _, err := d.Read("b"); err == nil {
		t.Error("boolean 2 expected error")
	}
}

func TestDecoder_StringNotTerminated(t *testing.T) {
	d := NewDecoder([]byte{1, 0, 0, 0, 'a', 'b'}, LittleEndian)
	if _, err := d.Read("s"); err == nil {
		t.Error("missing NUL terminator expected error")
	}
}

func TestDecoder_ArrayElementOverrun(t *testing.T) {
	// 声明 6 字节却装载 uint32 元素，元素边界跨过声明长度
	buf := []byte{6, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0}
	d := NewDecoder(buf, LittleEndian)
	if _, err := d.Read("au"); err == nil {
		t.Error("element overrun expected error")
	}
}

func TestDecoder_AlignmentSkip(t *testing.T) {
	// 解码端必须跳过与编码端相同的填充
	e := NewEncoder(LittleEndian)
	if err := e.Append("yxs", byte(1), int64(2), "three"); err != nil {
		t.Fatalf("Append error: %v", err)
	}
	d := NewDecoder(e.Bytes(), LittleEndian)
	got, err := d.Read("yxs")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	want := []any{byte(1), int64(2), "three"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}
