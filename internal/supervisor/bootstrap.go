package supervisor

import (
	"context"

	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

// Bootstrapper restarts every persisted session at process start and on the
// periodic reconnect sweep.
type Bootstrapper struct {
	sup   *Supervisor
	store SessionStore
	vault Vault
}

func NewBootstrapper(sup *Supervisor, store SessionStore, vault Vault) *Bootstrapper {
	return &Bootstrapper{sup: sup, store: store, vault: vault}
}

// StartAll walks the stored session records and reconnects each number that
// does not already hold a live slot. A failure on one record is logged and
// the batch continues; partial recovery beats none.
func (b *Bootstrapper) StartAll(ctx context.Context) {
	records, err := b.store.ListSessions()
	if err != nil {
		zap.L().Error("session records not readable", zap.Error(err))
		return
	}
	if len(records) == 0 {
		zap.L().Info("no stored sessions to restart")
		return
	}
	zap.L().Info("restarting stored sessions", zap.Int("count", len(records)))

	for _, rec := range records {
		number := common.SanitizeNumber(rec.Number)
		if number == "" {
			zap.L().Warn("skipping record with invalid number", zap.String("number", rec.Number))
			continue
		}
		if b.sup.Registry().Has(number) {
			zap.L().Info("session already active, skipping", zap.String("number", number))
			continue
		}
		if _, err := b.vault.Restore(ctx, rec.SessionID, number); err != nil {
			zap.L().Warn("credential restore failed, skipping",
				zap.String("number", number), zap.Error(err))
			continue
		}
		b.sup.Connect(number, Nop())
	}
	zap.L().Info("stored session restart sweep complete")
}
