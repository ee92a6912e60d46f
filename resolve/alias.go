package resolve

// AliasInterface 登记线上接口名到本地接口名的改写。
// 重复登记同一线上名为后写覆盖，已缓存的解析结果不受影响。
func (r *Registry) AliasInterface(wire, local string) {
	r.ifaceAliases.Store(wire, local)
}

// AliasMember 登记线上成员名到本地成员名的改写。后写覆盖。
func (r *Registry) AliasMember(wire, local string) {
	r.memberAliases.Store(wire, local)
}

// localInterface 应用接口别名，无别名时原样返回。
func (r *Registry) localInterface(wire string) string {
	if v, ok := r.ifaceAliases.Load(wire); ok {
		return v.(string)
	}
	return wire
}

// localMember 应用成员别名，无别名时原样返回。
func (r *Registry) localMember(wire string) string {
	if v, ok := r.memberAliases.Load(wire); ok {
		return v.(string)
	}
	return wire
}
