package resolve

import (
	"fmt"
	"strings"
)

// ResolutionError 线上名无法映射到任何已注册事件类型
type ResolutionError struct {
	Interface string
	Member    string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("no event type registered for signal %s.%s", e.Interface, e.Member)
}

// Resolve 将线上接口/成员名解析为已注册事件类型。
//
// 名字先经别名表改写，再以 "接口.成员" 为种子探测类型表；
// 未命中时自右向左把最后一个 '.' 改写为 '$' 逐级再探，
// 命中嵌套注册名（"a.b.C.D" 未注册而 "a.b.C$D" 已注册时仍可解析）。
// 所有探测失败后返回 ResolutionError。
//
// 成功结果按改写后的组合键缓存，至多填充一次，从不失效；
// 失败不缓存，并发的同键解析经 singleflight 合并。
func (r *Registry) Resolve(iface, member string) (*Type, error) {
	li := r.localInterface(iface)
	lm := r.localMember(member)
	key := li + "$" + lm
	if v, ok := r.resolved.Load(key); ok {
		return v.(*Type), nil
	}

	v, err, _ := r.flight.Do(key, func() (any, error) {
		probe := li + "." + lm
		for {
			if t, ok := r.types.Load(probe); ok {
				return t.(*Type), nil
			}
			j := strings.LastIndexByte(probe, '.')
			if j < 0 {
				return nil, &ResolutionError{Interface: iface, Member: member}
			}
			probe = probe[:j] + "$" + probe[j+1:]
		}
	})
	if err != nil {
		return nil, err
	}
	t := v.(*Type)
	r.resolved.LoadOrStore(key, t)
	return t, nil
}
