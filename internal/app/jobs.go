package app

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/silamd/wabothub/internal/domain"
	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, _ := time.LoadLocation(a.appConfig.System.Location)
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	var err error
	_, err = a.sched.AddFunc("@daily", func() {
		go a.SchedClearStaleSessions()
	})
	if err != nil {
		zap.S().Errorf("init job error %s", err.Error())
	}

	a.sched.Start()
}

// SchedClearStaleSessions removes session records whose LOCAL~ credential
// file no longer exists on disk. Remote (SESSION-ID~) records are left alone;
// the bootstrapper can always re-download those.
func (a *Application) SchedClearStaleSessions() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	var sessions []domain.BotSession
	if err := a.gormDB.Find(&sessions).Error; err != nil {
		zap.L().Warn("stale session sweep: query failed", zap.Error(err))
		return
	}

	for _, s := range sessions {
		if !strings.HasPrefix(s.SessionID, "LOCAL~") {
			continue
		}
		local := strings.TrimPrefix(s.SessionID, "LOCAL~")
		if !filepath.IsAbs(local) {
			local = filepath.Join(a.appConfig.System.Workdir, local)
		}
		if common.FileExists(local) {
			continue
		}
		if err := a.gormDB.Delete(&domain.BotSession{}, s.ID).Error; err != nil {
			zap.L().Warn("stale session sweep: delete failed",
				zap.String("number", s.Number), zap.Error(err))
			continue
		}
		zap.L().Info("removed stale local session record",
			zap.String("number", s.Number), zap.String("session_id", s.SessionID))
	}
}
