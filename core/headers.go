package core

// 头字段代码（线协议固定值）。信号信封只发出 PATH/INTERFACE/MEMBER
// 以及条件性的 SENDER/SIGNATURE，其余代码为协议完整性而声明。
const (
	FieldPath        byte = 1
	FieldInterface   byte = 2
	FieldMember      byte = 3
	FieldErrorName   byte = 4
	FieldReplySerial byte = 5
	FieldDestination byte = 6
	FieldSender      byte = 7
	FieldSignature   byte = 8
	FieldUnixFDs     byte = 9
)

// Headers 消息头字段表（字段代码 → 值）
type Headers map[byte]any

// Get 获取头字段值，不存在返回 nil。
func (h Headers) Get(field byte) any {
	if h == nil {
		return nil
	}
	return h[field]
}

// Set 设置头字段值。
func (h Headers) Set(field byte, value any) {
	h[field] = value
}

// Has 检查头字段是否存在。
func (h Headers) Has(field byte) bool {
	if h == nil {
		return false
	}
	_, ok := h[field]
	return ok
}

// Copy 拷贝头字段表。字段值按值复制，头字段值均为字符串形态。
func (h Headers) Copy() Headers {
	if h == nil {
		return nil
	}
	cp := make(Headers, len(h))
	for k, v := range h {
		cp[k] = v
	}
	return cp
}

// Path 返回 PATH 头字段，缺失或类型不符返回空。
func (h Headers) Path() ObjectPath {
	switch v := h.Get(FieldPath).(type) {
	case ObjectPath:
		return v
	case string:
		return ObjectPath(v)
	}
	return ""
}

// Interface 返回 INTERFACE 头字段。
func (h Headers) Interface() string {
	s, _ := h.Get(FieldInterface).(string)
	return s
}

// Member 返回 MEMBER 头字段。
func (h Headers) Member() string {
	s, _ := h.Get(FieldMember).(string)
	return s
}

// Sender 返回 SENDER 头字段，缺失返回空串。
func (h Headers) Sender() string {
	s, _ := h.Get(FieldSender).(string)
	return s
}

// Signature 返回 SIGNATURE 头字段，缺失返回空签名。
func (h Headers) Signature() Signature {
	switch v := h.Get(FieldSignature).(type) {
	case Signature:
		return v
	case string:
		return Signature(v)
	}
	return ""
}
