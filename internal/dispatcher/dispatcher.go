package dispatcher

import (
	"strings"

	"github.com/asaskevich/EventBus"
	"github.com/silamd/wabothub/config"
	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/whatsapp"
	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

// SettingsStore is the per-number settings surface the dispatcher needs;
// *store.Store satisfies it.
type SettingsStore interface {
	GetSettings(number string) (store.Settings, error)
	SaveSettings(number string, patch map[string]string) error
}

// SysSettings reads global text templates from sys_config. May be nil.
type SysSettings interface {
	GetSettingsStringValue(category, key string) string
}

// Dispatcher routes inbound messages and group updates from the event bus to
// command handlers, honoring each number's settings.
type Dispatcher struct {
	cfg   *config.AppConfig
	bus   EventBus.Bus
	store SettingsStore
	sys   SysSettings
}

func New(cfg *config.AppConfig, bus EventBus.Bus, st SettingsStore, sys SysSettings) *Dispatcher {
	return &Dispatcher{cfg: cfg, bus: bus, store: st, sys: sys}
}

// Start subscribes the dispatcher on the bus. Handlers run asynchronously so
// a slow command cannot back up the protocol client's event loop.
func (d *Dispatcher) Start() error {
	if err := d.bus.SubscribeAsync(whatsapp.TopicMessage, d.OnMessage, false); err != nil {
		return err
	}
	return d.bus.SubscribeAsync(whatsapp.TopicGroupUpdate, d.OnGroupUpdate, false)
}

func (d *Dispatcher) Stop() {
	_ = d.bus.Unsubscribe(whatsapp.TopicMessage, d.OnMessage)
	_ = d.bus.Unsubscribe(whatsapp.TopicGroupUpdate, d.OnGroupUpdate)
}

// OnMessage handles one inbound message. Exported for the bus and for tests;
// not meant to be called elsewhere.
func (d *Dispatcher) OnMessage(msg *whatsapp.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("message handler panic", zap.String("number", msg.Number), zap.Any("panic", r))
		}
	}()

	if msg == nil || msg.Session == nil || msg.FromSelf {
		return
	}

	settings, err := d.store.GetSettings(msg.Number)
	if err != nil {
		zap.L().Warn("settings read failed, using defaults",
			zap.String("number", msg.Number), zap.Error(err))
		settings = store.DefaultSettings()
	}

	if msg.IsStatus {
		d.handleStatus(msg, settings)
		return
	}

	ctx := newMsgContext(d, msg, settings)

	if settings.AutoRead {
		if err := msg.Session.MarkRead(ctx.ctx, msg.Chat, msg.Sender, []string{msg.ID}); err != nil {
			zap.L().Debug("mark read failed", zap.String("number", msg.Number), zap.Error(err))
		}
	}

	if settings.WorkType == "self" && !ctx.fromOwner {
		return
	}

	text := strings.TrimSpace(msg.Text)
	prefix := d.cfg.Bot.Prefix
	if prefix != "" && strings.HasPrefix(text, prefix) {
		d.handleCommand(ctx, strings.TrimPrefix(text, prefix))
		return
	}

	d.handleAutoRespond(ctx, text)
}

// OnGroupUpdate greets joining participants and sees leaving ones off, per
// the number's welcome and goodbye settings.
func (d *Dispatcher) OnGroupUpdate(upd *whatsapp.GroupUpdate) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("group update handler panic", zap.String("number", upd.Number), zap.Any("panic", r))
		}
	}()

	if upd == nil || upd.Session == nil {
		return
	}

	settings, err := d.store.GetSettings(upd.Number)
	if err != nil {
		zap.L().Warn("settings read failed, skipping group greeting",
			zap.String("number", upd.Number), zap.Error(err))
		return
	}

	welcome := settings.WelcomeMessage
	if welcome == "" {
		welcome = d.sysValue("WelcomeMessage", "Welcome @%s!")
	}
	goodbye := settings.GoodbyeMessage
	if goodbye == "" {
		goodbye = d.sysValue("GoodbyeMessage", "Goodbye @%s!")
	}

	ctx := newMsgContext(d, &whatsapp.InboundMessage{
		Number:  upd.Number,
		Session: upd.Session,
		Chat:    upd.Chat,
	}, settings)

	for _, jid := range upd.Joined {
		ctx.reply(formatMention(welcome, jid))
	}
	for _, jid := range upd.Left {
		ctx.reply(formatMention(goodbye, jid))
	}
}

func (d *Dispatcher) sysValue(key, fallback string) string {
	if d.sys != nil {
		if v := d.sys.GetSettingsStringValue("bot", key); v != "" {
			return v
		}
	}
	return fallback
}

// isOwner reports whether the sender JID belongs to the configured owners or
// to the bot account itself.
func (d *Dispatcher) isOwner(botNumber, senderJID string) bool {
	sender := common.SanitizeNumber(strings.SplitN(senderJID, "@", 2)[0])
	if sender == "" {
		return false
	}
	if sender == common.SanitizeNumber(botNumber) {
		return true
	}
	for _, owner := range d.cfg.Bot.Owners {
		if sender == common.SanitizeNumber(owner) {
			return true
		}
	}
	return false
}

// formatMention substitutes the participant's number into a greeting
// template. Templates use %s for the number.
func formatMention(template, jid string) string {
	number := strings.SplitN(jid, "@", 2)[0]
	if strings.Contains(template, "%s") {
		return strings.Replace(template, "%s", number, 1)
	}
	return template
}
