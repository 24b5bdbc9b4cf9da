package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// MeowFactory builds whatsmeow-backed sessions. Each number gets its own
// sqlite credential store inside its session directory, so the credential
// bundle is a single file the vault can archive and restore.
type MeowFactory struct {
	bus EventBus.Bus
}

func NewMeowFactory(bus EventBus.Bus) *MeowFactory {
	return &MeowFactory{bus: bus}
}

func (f *MeowFactory) Open(ctx context.Context, number, credsPath string) (Session, error) {
	if err := os.MkdirAll(filepath.Dir(credsPath), 0o755); err != nil {
		return nil, fmt.Errorf("session directory not creatable: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", credsPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load device from credential store: %w", err)
	}

	client := whatsmeow.NewClient(device, nil)
	// the supervisor owns reconnect policy
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	s := &meowSession{
		number:  number,
		client:  client,
		bus:     f.bus,
		updates: make(chan Update, 16),
	}
	client.AddEventHandler(s.handleEvent)
	return s, nil
}

type meowSession struct {
	number  string
	client  *whatsmeow.Client
	bus     EventBus.Bus
	updates chan Update

	qrCancel  context.CancelFunc
	closeOnce sync.Once

	mu     sync.Mutex
	closed bool
}

func (s *meowSession) Registered() bool {
	return s.client.Store.ID != nil
}

func (s *meowSession) Connect() error {
	if !s.Registered() {
		// QR channel must be armed before the websocket connects
		qrCtx, cancel := context.WithCancel(context.Background())
		s.qrCancel = cancel
		qrChan, err := s.client.GetQRChannel(qrCtx)
		if err != nil {
			zap.L().Debug("qr channel unavailable", zap.String("number", s.number), zap.Error(err))
			cancel()
		} else {
			go s.forwardQR(qrChan)
		}
	}
	return s.client.Connect()
}

func (s *meowSession) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		if item.Event == "code" {
			s.emit(Update{State: StateConnecting, QR: item.Code})
		}
	}
}

func (s *meowSession) Disconnect() {
	s.client.Disconnect()
}

func (s *meowSession) RequestPairingCode(ctx context.Context, number string) (string, error) {
	return s.client.PairPhone(ctx, number, true, whatsmeow.PairClientChrome, "Chrome ("+runtime.GOOS+")")
}

func (s *meowSession) Updates() <-chan Update {
	return s.updates
}

func (s *meowSession) SelfJID() string {
	if s.client.Store.ID == nil {
		return ""
	}
	return s.client.Store.ID.ToNonAD().String()
}

func (s *meowSession) SendPresence(ctx context.Context, available bool) error {
	presence := waTypes.PresenceAvailable
	if !available {
		presence = waTypes.PresenceUnavailable
	}
	return s.client.SendPresence(ctx, presence)
}

func (s *meowSession) SendText(ctx context.Context, toJID, text string) error {
	jid, err := waTypes.ParseJID(toJID)
	if err != nil {
		return fmt.Errorf("invalid jid %q: %w", toJID, err)
	}
	_, err = s.client.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	return err
}

func (s *meowSession) React(ctx context.Context, chat, sender, messageID, emoji string) error {
	chatJID, err := waTypes.ParseJID(chat)
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %w", chat, err)
	}
	senderJID, err := waTypes.ParseJID(sender)
	if err != nil {
		return fmt.Errorf("invalid sender jid %q: %w", sender, err)
	}
	_, err = s.client.SendMessage(ctx, chatJID, s.client.BuildReaction(chatJID, senderJID, messageID, emoji))
	return err
}

func (s *meowSession) MarkRead(ctx context.Context, chat, sender string, messageIDs []string) error {
	chatJID, err := waTypes.ParseJID(chat)
	if err != nil {
		return fmt.Errorf("invalid chat jid %q: %w", chat, err)
	}
	senderJID, err := waTypes.ParseJID(sender)
	if err != nil {
		return fmt.Errorf("invalid sender jid %q: %w", sender, err)
	}
	ids := make([]waTypes.MessageID, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, waTypes.MessageID(id))
	}
	return s.client.MarkRead(ctx, ids, time.Now(), chatJID, senderJID)
}

func (s *meowSession) FollowNewsletter(ctx context.Context, jid string) error {
	parsed, err := waTypes.ParseJID(jid)
	if err != nil {
		return fmt.Errorf("invalid newsletter jid %q: %w", jid, err)
	}
	return s.client.FollowNewsletter(ctx, parsed)
}

func (s *meowSession) changeParticipants(ctx context.Context, group string, numbers []string, change whatsmeow.ParticipantChange) error {
	groupJID, err := waTypes.ParseJID(group)
	if err != nil {
		return fmt.Errorf("invalid group jid %q: %w", group, err)
	}
	jids := make([]waTypes.JID, 0, len(numbers))
	for _, n := range numbers {
		jids = append(jids, waTypes.NewJID(n, waTypes.DefaultUserServer))
	}
	_, err = s.client.UpdateGroupParticipants(ctx, groupJID, jids, change)
	return err
}

func (s *meowSession) GroupKick(ctx context.Context, group string, numbers []string) error {
	return s.changeParticipants(ctx, group, numbers, whatsmeow.ParticipantChangeRemove)
}

func (s *meowSession) GroupPromote(ctx context.Context, group string, numbers []string) error {
	return s.changeParticipants(ctx, group, numbers, whatsmeow.ParticipantChangePromote)
}

func (s *meowSession) GroupDemote(ctx context.Context, group string, numbers []string) error {
	return s.changeParticipants(ctx, group, numbers, whatsmeow.ParticipantChangeDemote)
}

func (s *meowSession) GroupLeave(ctx context.Context, group string) error {
	groupJID, err := waTypes.ParseJID(group)
	if err != nil {
		return fmt.Errorf("invalid group jid %q: %w", group, err)
	}
	return s.client.LeaveGroup(ctx, groupJID)
}

func (s *meowSession) IsGroupAdmin(ctx context.Context, group, participant string) (bool, error) {
	groupJID, err := waTypes.ParseJID(group)
	if err != nil {
		return false, fmt.Errorf("invalid group jid %q: %w", group, err)
	}
	info, err := s.client.GetGroupInfo(ctx, groupJID)
	if err != nil {
		return false, err
	}
	target, err := waTypes.ParseJID(participant)
	if err != nil {
		return false, fmt.Errorf("invalid participant jid %q: %w", participant, err)
	}
	for _, p := range info.Participants {
		if p.JID.ToNonAD() == target.ToNonAD() {
			return p.IsAdmin || p.IsSuperAdmin, nil
		}
	}
	return false, nil
}

// Close closes the updates channel so consumers ranging over Updates drain
// and exit instead of blocking forever.
func (s *meowSession) Close() {
	s.closeOnce.Do(func() {
		if s.qrCancel != nil {
			s.qrCancel()
		}
		if s.client != nil {
			s.client.RemoveEventHandlers()
			s.client.Disconnect()
		}
		s.mu.Lock()
		s.closed = true
		close(s.updates)
		s.mu.Unlock()
	})
}

// emit never blocks: a stalled consumer must not wedge whatsmeow's event
// dispatch goroutine. Updates racing Close are dropped.
func (s *meowSession) emit(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.updates <- u:
	default:
		zap.L().Warn("dropping connection update, channel full",
			zap.String("number", s.number), zap.String("state", u.State.String()))
	}
}

func (s *meowSession) handleEvent(evt interface{}) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("whatsapp event handler panic",
				zap.String("number", s.number), zap.Any("panic", r))
		}
	}()

	switch e := evt.(type) {
	case *events.Connected:
		s.emit(Update{State: StateOpen})
	case *events.PairSuccess:
		zap.L().Info("pairing completed", zap.String("number", s.number), zap.Stringer("jid", e.ID))
	case *events.LoggedOut:
		s.emit(Update{State: StateClosed, Reason: ReasonLoggedOut})
	case *events.StreamReplaced:
		s.emit(Update{State: StateClosed, Reason: ReasonConnectionReplaced})
	case *events.StreamError:
		// 515 means the server wants a clean reconnect after pairing
		reason := ReasonConnectionClosed
		if e.Code == "515" {
			reason = ReasonRestartRequired
		}
		s.emit(Update{State: StateClosed, Reason: reason})
	case *events.ConnectFailure:
		reason := ReasonConnectionClosed
		if e.Reason == events.ConnectFailureLoggedOut {
			reason = ReasonLoggedOut
		}
		s.emit(Update{State: StateClosed, Reason: reason, Err: fmt.Errorf("connect failure: %s", e.Message)})
	case *events.ClientOutdated:
		s.emit(Update{State: StateClosed, Reason: ReasonUnknown, Err: fmt.Errorf("client version outdated")})
	case *events.TemporaryBan:
		s.emit(Update{State: StateClosed, Reason: ReasonUnknown, Err: fmt.Errorf("temporary ban: %s", e.Code)})
	case *events.Disconnected:
		s.emit(Update{State: StateClosed, Reason: ReasonConnectionLost})
	case *events.KeepAliveTimeout:
		zap.L().Warn("keepalive timeout", zap.String("number", s.number), zap.Int("errors", e.ErrorCount))
	case *events.Message:
		s.publishMessage(e)
	case *events.GroupInfo:
		s.publishGroupUpdate(e)
	}
}

func (s *meowSession) publishMessage(e *events.Message) {
	if s.bus == nil || e.Message == nil {
		return
	}
	text := e.Message.GetConversation()
	if text == "" {
		text = e.Message.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		text = e.Message.GetImageMessage().GetCaption()
	}

	s.bus.Publish(TopicMessage, &InboundMessage{
		Number:    s.number,
		Session:   s,
		Chat:      e.Info.Chat.String(),
		Sender:    e.Info.Sender.ToNonAD().String(),
		ID:        string(e.Info.ID),
		Text:      text,
		Timestamp: e.Info.Timestamp,
		IsGroup:   e.Info.IsGroup,
		IsStatus:  e.Info.Chat == waTypes.StatusBroadcastJID,
		FromSelf:  e.Info.IsFromMe,
	})
}

func (s *meowSession) publishGroupUpdate(e *events.GroupInfo) {
	if s.bus == nil {
		return
	}
	upd := &GroupUpdate{
		Number:  s.number,
		Session: s,
		Chat:    e.JID.String(),
	}
	for _, j := range e.Join {
		upd.Joined = append(upd.Joined, j.String())
	}
	for _, j := range e.Leave {
		upd.Left = append(upd.Left, j.String())
	}
	if len(upd.Joined) == 0 && len(upd.Left) == 0 {
		return
	}
	s.bus.Publish(TopicGroupUpdate, upd)
}
