package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/silamd/wabothub/config"
	"github.com/silamd/wabothub/internal/domain"
	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/whatsapp"
	"github.com/silamd/wabothub/pkg/common"
	"go.uber.org/zap"
)

// SessionStore is the slice of the credential store the supervisor needs.
type SessionStore interface {
	UpsertSession(number, jid, sessionID string) error
	ListSessions() ([]domain.BotSession, error)
	GetSettings(number string) (store.Settings, error)
}

// Vault archives and restores credential bundles; see internal/archive.
type Vault interface {
	Configured() bool
	CredsPath(number string) string
	LocalSessionID(credsPath string) string
	Archive(ctx context.Context, credsPath string) (string, error)
	Restore(ctx context.Context, sessionID, number string) (string, error)
}

// SysSettings exposes the sys_config values the supervisor reads (message
// templates). May be nil.
type SysSettings interface {
	GetSettingsStringValue(category, key string) string
}

const (
	pairingRetries     = 3
	pairingPreDelay    = 1500 * time.Millisecond
	reconnectDelay     = 2 * time.Second
	defaultConnTimeout = 60 * time.Second
)

// Supervisor drives the per-number connect/pairing/reconnect state machine
// and keeps the registry consistent with reality.
type Supervisor struct {
	cfg      *config.AppConfig
	registry *Registry
	store    SessionStore
	vault    Vault
	factory  whatsapp.Factory
	settings SysSettings

	// test seams
	sleep func(time.Duration)
	after func(time.Duration, func()) *time.Timer
}

func New(cfg *config.AppConfig, registry *Registry, store SessionStore, vault Vault, factory whatsapp.Factory, settings SysSettings) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		registry: registry,
		store:    store,
		vault:    vault,
		factory:  factory,
		settings: settings,
		sleep:    time.Sleep,
		after:    time.AfterFunc,
	}
}

func (s *Supervisor) Registry() *Registry {
	return s.registry
}

func (s *Supervisor) connectTimeout() time.Duration {
	if s.cfg.Bot.ConnectTimeoutMs > 0 {
		return time.Duration(s.cfg.Bot.ConnectTimeoutMs) * time.Millisecond
	}
	return defaultConnTimeout
}

// Connect establishes a connection for the number asynchronously. The
// terminal status of the attempt lands in rsp exactly once: pairing code,
// QR, connected confirmation, classified error, or timeout. A number already
// holding a slot is answered with already_connected immediately.
func (s *Supervisor) Connect(number string, rsp *Responder) {
	number = common.SanitizeNumber(number)
	if number == "" {
		rsp.Write(Result{Status: StatusError, HTTPCode: http.StatusBadRequest, Message: "Invalid phone number format"})
		return
	}
	if !s.registry.Reserve(number) {
		rsp.Write(Result{
			Status:   StatusAlreadyConnected,
			HTTPCode: http.StatusOK,
			Message:  fmt.Sprintf("[ %s ] This number is already connected.", number),
		})
		return
	}
	go s.run(number, rsp)
}

func (s *Supervisor) run(number string, rsp *Responder) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("connect attempt panic", zap.String("number", number), zap.Any("panic", r))
			s.registry.Release(number)
			rsp.Write(errorResult(number, "Failed to initialize connection."))
		}
	}()

	credsPath := s.vault.CredsPath(number)
	if err := os.MkdirAll(filepath.Dir(credsPath), 0o755); err != nil {
		zap.L().Error("session directory not creatable", zap.String("number", number), zap.Error(err))
		s.registry.Release(number)
		rsp.Write(errorResult(number, "Failed to initialize connection."))
		return
	}

	sess, err := s.factory.Open(context.Background(), number, credsPath)
	if err != nil {
		zap.L().Error("protocol client setup failed", zap.String("number", number), zap.Error(err))
		s.registry.Release(number)
		rsp.Write(errorResult(number, "Failed to initialize connection."))
		return
	}

	a := &attempt{
		s:          s,
		number:     number,
		credsPath:  credsPath,
		sessionDir: filepath.Dir(credsPath),
		sess:       sess,
		rsp:        rsp,
	}
	a.timer = s.after(s.connectTimeout(), a.onTimeout)

	go a.watch()

	if err := sess.Connect(); err != nil {
		zap.L().Error("connect failed", zap.String("number", number), zap.Error(err))
		a.finish()
		rsp.Write(errorResult(number, "Failed to initialize connection."))
		return
	}

	if !sess.Registered() {
		a.requestPairingCode()
	} else {
		zap.L().Info("already registered, connecting", zap.String("number", number))
	}
}

// attempt is one instance of the per-connection state machine. A reconnect
// after restart-required is a fresh attempt, never a resumption.
type attempt struct {
	s          *Supervisor
	number     string
	credsPath  string
	sessionDir string
	sess       whatsapp.Session
	rsp        *Responder
	timer      *time.Timer
	opened     atomic.Bool
}

// requestPairingCode asks for a pairing code with bounded retries and linear
// backoff, writing the code to the responder on success.
func (a *attempt) requestPairingCode() {
	retries := pairingRetries
	var code string

	for retries > 0 && code == "" {
		a.s.sleep(pairingPreDelay)
		c, err := a.sess.RequestPairingCode(context.Background(), a.number)
		if err == nil && c != "" {
			code = c
			zap.L().Info("pairing code generated", zap.String("number", a.number), zap.String("code", code))
			a.rsp.Write(Result{
				Status:   StatusPairingCode,
				Code:     code,
				HTTPCode: http.StatusOK,
				Message:  fmt.Sprintf("[ %s ] Enter this code in WhatsApp: %s", a.number, code),
			})
			break
		}
		retries--
		zap.L().Warn("pairing code request failed",
			zap.String("number", a.number), zap.Int("retries_left", retries), zap.Error(err))
		if retries > 0 {
			a.s.sleep(time.Duration(pairingRetries+1-retries) * 300 * time.Millisecond)
		}
	}

	if code == "" {
		a.rsp.Write(errorResult(a.number, "Failed to generate pairing code."))
	}
}

// watch consumes normalized connection updates until the attempt reaches a
// terminal close.
func (a *attempt) watch() {
	for upd := range a.sess.Updates() {
		if a.handleUpdate(upd) {
			return
		}
	}
}

// handleUpdate processes one transition; it returns true when the attempt is
// terminal. Panics are contained so a bad event cannot take the process down
// or leave the registry inconsistent.
func (a *attempt) handleUpdate(upd whatsapp.Update) (terminal bool) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("connection update handler panic",
				zap.String("number", a.number), zap.Any("panic", r))
		}
	}()

	switch upd.State {
	case whatsapp.StateConnecting:
		if upd.QR != "" {
			a.handleQR(upd.QR)
		} else {
			zap.L().Info("connecting", zap.String("number", a.number))
		}
	case whatsapp.StateOpen:
		a.handleOpen()
	case whatsapp.StateClosed:
		a.handleClose(upd)
		return true
	}
	return false
}

func (a *attempt) handleQR(code string) {
	if a.s.cfg.Bot.PrintQR {
		qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
		zap.L().Info("qr code printed in terminal for scanning", zap.String("number", a.number))
	}
	a.rsp.Write(Result{
		Status:   StatusQR,
		QR:       code,
		HTTPCode: http.StatusOK,
		Message:  "Scan QR with WhatsApp (Linked Devices -> Link a Device)",
	})
}

// handleOpen runs the open-state sequence: registry commit, credential
// verification, archive with local fallback, session upsert, best-effort
// notifications and auto-join, then the success response.
func (a *attempt) handleOpen() {
	zap.L().Info("connected successfully", zap.String("number", a.number))
	a.opened.Store(true)
	a.timer.Stop()
	a.s.registry.Commit(a.number, a.sess)

	if !common.FileExists(a.credsPath) {
		zap.L().Error("credential file not found after open", zap.String("path", a.credsPath))
		a.rsp.Write(errorResult(a.number, "Credential file not found"))
		return
	}

	ctx := context.Background()
	sid, err := a.s.vault.Archive(ctx, a.credsPath)
	if err != nil {
		zap.L().Warn("credential archive failed, recording local session id",
			zap.String("number", a.number), zap.Error(err))
		sid = a.s.vault.LocalSessionID(a.credsPath)
	}

	jid := a.sess.SelfJID()
	if err := a.s.store.UpsertSession(a.number, jid, sid); err != nil {
		zap.L().Warn("session record upsert failed", zap.String("number", a.number), zap.Error(err))
	}

	settings, err := a.s.store.GetSettings(a.number)
	if err != nil {
		settings = store.DefaultSettings()
	}
	if err := a.sess.SendPresence(ctx, settings.Online); err != nil {
		zap.L().Debug("presence update failed", zap.String("number", a.number), zap.Error(err))
	}

	a.notifyConnected(ctx, jid)
	a.autoJoin(ctx)

	a.rsp.Write(Result{
		Status:   StatusConnected,
		HTTPCode: http.StatusOK,
		Message:  fmt.Sprintf("[ %s ] Successfully connected to WhatsApp!", a.number),
	})
}

// notifyConnected pings the account itself, the configured owners and the
// admin notify number. Failures are logged and swallowed; they must never
// tear down a healthy connection.
func (a *attempt) notifyConnected(ctx context.Context, jid string) {
	template := ""
	if a.s.settings != nil {
		template = a.s.settings.GetSettingsStringValue("bot", "ConnectedMessage")
	}
	if template == "" {
		template = "[ %s ] Bot connected"
	}
	text := fmt.Sprintf(template, a.number)

	if jid != "" {
		if err := a.sess.SendText(ctx, jid, text); err != nil {
			zap.L().Warn("self notification failed", zap.String("number", a.number), zap.Error(err))
		}
	}
	for _, owner := range a.s.cfg.Bot.Owners {
		ownerJID := owner
		if !strings.Contains(ownerJID, "@") {
			ownerJID += "@s.whatsapp.net"
		}
		if err := a.sess.SendText(ctx, ownerJID, text); err != nil {
			zap.L().Warn("owner notification failed", zap.String("owner", owner), zap.Error(err))
		}
	}
	if admin := a.s.cfg.Bot.AdminNotify; admin != "" {
		adminJID := admin
		if !strings.Contains(adminJID, "@") {
			adminJID += "@s.whatsapp.net"
		}
		detail := fmt.Sprintf("New bot session connected:\nNumber: %s\nUserId: %s", a.number, jid)
		if err := a.sess.SendText(ctx, adminJID, detail); err != nil {
			zap.L().Warn("admin notification failed", zap.String("admin", admin), zap.Error(err))
		}
	}
}

func (a *attempt) autoJoin(ctx context.Context) {
	if jid := a.s.cfg.Bot.JoinChannelJid; jid != "" {
		if err := a.sess.FollowNewsletter(ctx, jid); err != nil {
			zap.L().Warn("newsletter follow failed", zap.String("jid", jid), zap.Error(err))
		} else {
			zap.L().Info("joined newsletter", zap.String("jid", jid))
		}
	}
	if invite := a.s.cfg.Bot.JoinGroupInvite; invite != "" {
		zap.L().Info("group invite configured", zap.String("invite", invite))
	}
}

// handleClose classifies the disconnect reason and applies the recovery
// policy: wipe-and-re-pair, scheduled reconnect, or report-and-stop.
func (a *attempt) handleClose(upd whatsapp.Update) {
	var msg string
	wipe := false
	reconnect := false

	switch upd.Reason {
	case whatsapp.ReasonBadSession, whatsapp.ReasonLoggedOut:
		wipe = true
		msg = "Session invalid or logged out. Please pair again."
	case whatsapp.ReasonConnectionClosed:
		msg = "Connection was closed by WhatsApp"
	case whatsapp.ReasonConnectionLost:
		msg = "Connection lost due to network issues"
	case whatsapp.ReasonConnectionReplaced:
		msg = "Connection replaced by another session"
	case whatsapp.ReasonRestartRequired:
		msg = "WhatsApp requires restart"
		reconnect = true
	default:
		msg = "Unexpected disconnection. Please try pairing again."
	}

	zap.L().Warn("connection closed",
		zap.String("number", a.number),
		zap.Stringer("reason", upd.Reason),
		zap.Error(upd.Err))

	a.timer.Stop()
	a.s.registry.Release(a.number)
	a.sess.Close()

	if wipe {
		if err := os.RemoveAll(a.sessionDir); err != nil {
			zap.L().Error("error clearing session directory",
				zap.String("dir", a.sessionDir), zap.Error(err))
		}
	}

	if reconnect {
		// fresh attempt for the same number reusing the pending responder,
		// so the caller still receives the eventual pairing or open result
		number, rsp := a.number, a.rsp
		a.s.after(reconnectDelay, func() {
			a.s.Connect(number, rsp)
		})
		return
	}

	a.rsp.Write(errorResult(a.number, msg))
}

// onTimeout fires when the attempt neither opened nor answered its caller in
// time. It evicts the number's slot and force-closes the session; in-flight
// work keeps running but can no longer write to the responder first.
func (a *attempt) onTimeout() {
	if a.opened.Load() || a.rsp.Responded() {
		return
	}
	zap.L().Warn("connection attempt timed out", zap.String("number", a.number))
	a.rsp.Write(Result{
		Status:   StatusTimeout,
		HTTPCode: http.StatusRequestTimeout,
		Message:  fmt.Sprintf("[ %s ] Connection timeout. Please try again.", a.number),
	})
	a.s.registry.Release(a.number)
	a.sess.Close()
}

// finish tears down a failed attempt before the event loop produced a close.
func (a *attempt) finish() {
	a.timer.Stop()
	a.s.registry.Release(a.number)
	a.sess.Close()
}

func errorResult(number, msg string) Result {
	return Result{
		Status:   StatusError,
		HTTPCode: http.StatusInternalServerError,
		Message:  fmt.Sprintf("[ %s ] %s", number, msg),
	}
}
