package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	&IsolirLog{},
	// Network
	&NetNas{},
	&NetNasMetric{},
	&NetScheduler{},
	// Radius
	&RadCheck{},
	&RadReply{},
	&RadGroupReply{},
	&RadUserGroup{},
	&RadiusAccounting{},
	// Subscriber
	&Subscriber{},
	&Package{},
}
