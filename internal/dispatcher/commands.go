package dispatcher

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/whatsapp"
	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

// statusReactions are the emoji picked from when auto-liking status updates.
var statusReactions = []string{"❤️", "🧡", "💛", "💚", "💙", "💜"}

// msgContext carries one inbound message through the command pipeline.
type msgContext struct {
	ctx       context.Context
	msg       *whatsapp.InboundMessage
	settings  store.Settings
	fromOwner bool
}

func newMsgContext(d *Dispatcher, msg *whatsapp.InboundMessage, settings store.Settings) *msgContext {
	return &msgContext{
		ctx:       context.Background(),
		msg:       msg,
		settings:  settings,
		fromOwner: d.isOwner(msg.Number, msg.Sender),
	}
}

func (c *msgContext) reply(text string) {
	if err := c.msg.Session.SendText(c.ctx, c.msg.Chat, text); err != nil {
		zap.L().Warn("reply failed",
			zap.String("number", c.msg.Number), zap.String("chat", c.msg.Chat), zap.Error(err))
	}
}

// handleStatus applies the auto-view and auto-like settings to a contact's
// status update.
func (d *Dispatcher) handleStatus(msg *whatsapp.InboundMessage, settings store.Settings) {
	ctx := context.Background()
	if settings.AutoViewStatus {
		if err := msg.Session.MarkRead(ctx, msg.Chat, msg.Sender, []string{msg.ID}); err != nil {
			zap.L().Debug("status view failed", zap.String("number", msg.Number), zap.Error(err))
		}
	}
	if settings.AutoLikeStatus {
		emoji := statusReactions[rand.Intn(len(statusReactions))]
		if err := msg.Session.React(ctx, msg.Chat, msg.Sender, msg.ID, emoji); err != nil {
			zap.L().Debug("status reaction failed", zap.String("number", msg.Number), zap.Error(err))
		}
	}
}

// handleCommand dispatches one prefixed command. Settings toggles are owner
// only; group moderation additionally requires the sender to be a group
// admin.
func (d *Dispatcher) handleCommand(c *msgContext, input string) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "ping":
		c.reply("Pong!")
	case "menu", "help":
		c.reply(d.sysValue("MenuText", defaultMenu(d.cfg.Bot.Prefix)))
	case "settings":
		c.reply(renderSettings(c.settings))
	case "worktype":
		d.cmdWorkType(c, args)
	case "autoread":
		d.cmdToggle(c, store.KeyAutoRead, args)
	case "online":
		d.cmdToggle(c, store.KeyOnline, args)
	case "autoswview":
		d.cmdToggle(c, store.KeyAutoViewStatus, args)
	case "autoswlike":
		d.cmdToggle(c, store.KeyAutoLikeStatus, args)
	case "setwelcome":
		d.cmdSetText(c, store.KeyWelcomeMessage, strings.TrimSpace(strings.TrimPrefix(input, fields[0])))
	case "setgoodbye":
		d.cmdSetText(c, store.KeyGoodbyeMessage, strings.TrimSpace(strings.TrimPrefix(input, fields[0])))
	case "kick":
		d.cmdGroupChange(c, args, c.msg.Session.GroupKick)
	case "promote":
		d.cmdGroupChange(c, args, c.msg.Session.GroupPromote)
	case "demote":
		d.cmdGroupChange(c, args, c.msg.Session.GroupDemote)
	case "leave":
		d.cmdLeave(c)
	default:
		// unknown commands are ignored rather than answered, so the bot
		// stays quiet in groups it merely observes
	}
}

func (d *Dispatcher) cmdWorkType(c *msgContext, args []string) {
	if !c.fromOwner {
		c.reply("Only the owner can change settings.")
		return
	}
	if len(args) == 0 || (args[0] != "public" && args[0] != "self") {
		c.reply("Usage: worktype public|self")
		return
	}
	if err := d.store.SaveSettings(c.msg.Number, map[string]string{store.KeyWorkType: args[0]}); err != nil {
		zap.L().Error("settings save failed", zap.String("number", c.msg.Number), zap.Error(err))
		c.reply("Failed to save settings.")
		return
	}
	c.reply(fmt.Sprintf("Work type set to %s.", args[0]))
}

func (d *Dispatcher) cmdToggle(c *msgContext, key string, args []string) {
	if !c.fromOwner {
		c.reply("Only the owner can change settings.")
		return
	}
	if len(args) == 0 || (args[0] != "on" && args[0] != "off") {
		c.reply(fmt.Sprintf("Usage: %s on|off", key))
		return
	}
	enabled := args[0] == "on"
	if err := d.store.SaveSettings(c.msg.Number, map[string]string{key: store.BoolValue(enabled)}); err != nil {
		zap.L().Error("settings save failed", zap.String("number", c.msg.Number), zap.Error(err))
		c.reply("Failed to save settings.")
		return
	}
	if key == store.KeyOnline {
		if err := c.msg.Session.SendPresence(c.ctx, enabled); err != nil {
			zap.L().Warn("presence update failed", zap.String("number", c.msg.Number), zap.Error(err))
		}
	}
	c.reply(fmt.Sprintf("%s is now %s.", key, args[0]))
}

func (d *Dispatcher) cmdSetText(c *msgContext, key, value string) {
	if !c.fromOwner {
		c.reply("Only the owner can change settings.")
		return
	}
	if value == "" {
		c.reply("Provide the message text after the command.")
		return
	}
	if err := d.store.SaveSettings(c.msg.Number, map[string]string{key: value}); err != nil {
		zap.L().Error("settings save failed", zap.String("number", c.msg.Number), zap.Error(err))
		c.reply("Failed to save settings.")
		return
	}
	c.reply("Saved.")
}

// cmdGroupChange runs kick, promote and demote, which all take a participant
// list and differ only in the session call.
func (d *Dispatcher) cmdGroupChange(c *msgContext, args []string, op func(context.Context, string, []string) error) {
	if !c.msg.IsGroup {
		c.reply("This command only works in groups.")
		return
	}
	if !d.senderCanModerate(c) {
		c.reply("Only group admins can use this command.")
		return
	}
	numbers := participantArgs(args)
	if len(numbers) == 0 {
		c.reply("Mention or list the numbers to act on.")
		return
	}
	if err := op(c.ctx, c.msg.Chat, numbers); err != nil {
		zap.L().Warn("group change failed",
			zap.String("number", c.msg.Number), zap.String("chat", c.msg.Chat), zap.Error(err))
		c.reply("Failed. Am I an admin of this group?")
		return
	}
	c.reply("Done.")
}

func (d *Dispatcher) cmdLeave(c *msgContext) {
	if !c.msg.IsGroup {
		c.reply("This command only works in groups.")
		return
	}
	if !c.fromOwner {
		c.reply("Only the owner can make me leave.")
		return
	}
	c.reply("Goodbye!")
	if err := c.msg.Session.GroupLeave(c.ctx, c.msg.Chat); err != nil {
		zap.L().Warn("group leave failed",
			zap.String("number", c.msg.Number), zap.String("chat", c.msg.Chat), zap.Error(err))
	}
}

// senderCanModerate allows the owner everywhere and group admins in their
// group.
func (d *Dispatcher) senderCanModerate(c *msgContext) bool {
	if c.fromOwner {
		return true
	}
	admin, err := c.msg.Session.IsGroupAdmin(c.ctx, c.msg.Chat, c.msg.Sender)
	if err != nil {
		zap.L().Warn("group admin check failed",
			zap.String("chat", c.msg.Chat), zap.String("sender", c.msg.Sender), zap.Error(err))
		return false
	}
	return admin
}

// participantArgs extracts phone numbers from mention tokens (@628...) and
// plain numbers.
func participantArgs(args []string) []string {
	var numbers []string
	for _, a := range args {
		a = strings.TrimPrefix(a, "@")
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, a)
		if digits != "" {
			numbers = append(numbers, digits)
		}
	}
	return numbers
}

// handleAutoRespond answers a small set of plain-text greetings when the
// global auto-respond switch is enabled.
func (d *Dispatcher) handleAutoRespond(c *msgContext, text string) {
	if d.sysValue("AutoRespond", common.ENABLED) != common.ENABLED {
		return
	}
	switch strings.ToLower(text) {
	case "hi", "hello", "halo", "hai":
		c.reply("Hello! Send " + d.cfg.Bot.Prefix + "menu to see what I can do.")
	case "ping":
		c.reply("Pong!")
	}
}

func renderSettings(s store.Settings) string {
	onOff := func(v bool) string {
		if v {
			return "on"
		}
		return "off"
	}
	var b strings.Builder
	b.WriteString("Current settings:\n")
	fmt.Fprintf(&b, "worktype: %s\n", s.WorkType)
	fmt.Fprintf(&b, "autoread: %s\n", onOff(s.AutoRead))
	fmt.Fprintf(&b, "online: %s\n", onOff(s.Online))
	fmt.Fprintf(&b, "autoswview: %s\n", onOff(s.AutoViewStatus))
	fmt.Fprintf(&b, "autoswlike: %s", onOff(s.AutoLikeStatus))
	return b.String()
}

func defaultMenu(prefix string) string {
	return strings.Join([]string{
		"Available commands:",
		prefix + "ping",
		prefix + "menu",
		prefix + "settings",
		prefix + "worktype public|self",
		prefix + "autoread on|off",
		prefix + "online on|off",
		prefix + "autoswview on|off",
		prefix + "autoswlike on|off",
		prefix + "setwelcome <text>",
		prefix + "setgoodbye <text>",
		prefix + "kick @number (groups)",
		prefix + "promote @number (groups)",
		prefix + "demote @number (groups)",
		prefix + "leave (groups)",
	}, "\n")
}
