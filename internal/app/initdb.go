package app

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/silamd/wabothub/config"
	"github.com/silamd/wabothub/internal/domain"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "postgres", "postgresql":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=%s",
			cfg.Host, cfg.User, cfg.Passwd, cfg.Name, cfg.Port, time.Local.String())
		dialector = postgres.Open(dsn)
	default:
		dbfile := filepath.Join(workdir, "data", cfg.Name+".db")
		dialector = sqlite.Open(fmt.Sprintf("file:%s?_foreign_keys=on", dbfile))
	}

	level := logger.Warn
	if cfg.Debug {
		level = logger.Info
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		zap.S().Panicf("failed to connect database: %v", err)
	}

	sqlDB, err := gdb.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(cfg.MaxConn)
		sqlDB.SetMaxIdleConns(cfg.IdleConn)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return gdb
}

// defaultConfigs seeds sys_config rows consumed by the dispatcher and the
// connection supervisor (templates, auto-join targets).
var defaultConfigs = []domain.SysConfig{
	{Sort: 1, Type: "bot", Name: "MenuText", Value: "", Remark: "Custom menu text (empty uses built-in)"},
	{Sort: 2, Type: "bot", Name: "WelcomeMessage", Value: "Welcome @%s!", Remark: "Group welcome template"},
	{Sort: 3, Type: "bot", Name: "GoodbyeMessage", Value: "Goodbye @%s!", Remark: "Group goodbye template"},
	{Sort: 4, Type: "bot", Name: "AutoRespond", Value: "enabled", Remark: "Keyword auto-responses"},
	{Sort: 5, Type: "bot", Name: "ConnectedMessage", Value: "[ %s ] Bot connected", Remark: "Connected notification template"},
}

func (a *Application) checkSettings() {
	for _, schema := range defaultConfigs {
		var count int64
		a.gormDB.Model(&domain.SysConfig{}).
			Where("type = ? and name = ?", schema.Type, schema.Name).
			Count(&count)

		if count == 0 {
			a.gormDB.Create(&domain.SysConfig{
				Sort:   schema.Sort,
				Type:   schema.Type,
				Name:   schema.Name,
				Value:  schema.Value,
				Remark: schema.Remark,
			})
			zap.L().Info("initialized config",
				zap.String("key", schema.Type+"."+schema.Name),
				zap.String("default", schema.Value))
		}
	}
}
