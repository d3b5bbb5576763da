package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// PoE control
	&PoeSwitch{},
	&PoeDevice{},
	&PagingDevice{},
	&PoeToggleLog{},
}
