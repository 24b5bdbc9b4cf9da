package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// Bot
	&BotSession{},
	&BotSettingsKV{},
}
