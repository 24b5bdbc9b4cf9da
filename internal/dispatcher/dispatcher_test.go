package dispatcher

import (
	"context"
	"sync"
	"testing"

	"github.com/silamd/wabothub/config"
	"github.com/silamd/wabothub/internal/store"
	"github.com/silamd/wabothub/internal/whatsapp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	mu       sync.Mutex
	replies  []string
	reads    []string
	reacts   []string
	kicked   [][]string
	promoted [][]string
	left     bool
	admin    bool
	adminErr error
	presence *bool
}

func (f *fakeSession) Registered() bool                { return true }
func (f *fakeSession) Connect() error                  { return nil }
func (f *fakeSession) Disconnect()                     {}
func (f *fakeSession) Updates() <-chan whatsapp.Update { return nil }
func (f *fakeSession) SelfJID() string                 { return "628000@s.whatsapp.net" }
func (f *fakeSession) Close()                          {}

func (f *fakeSession) SendPresence(_ context.Context, available bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence = &available
	return nil
}

func (f *fakeSession) RequestPairingCode(_ context.Context, _ string) (string, error) {
	return "", nil
}

func (f *fakeSession) SendText(_ context.Context, _, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, text)
	return nil
}

func (f *fakeSession) React(_ context.Context, _, _, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, emoji)
	return nil
}

func (f *fakeSession) MarkRead(_ context.Context, _, _ string, messageIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, messageIDs...)
	return nil
}

func (f *fakeSession) FollowNewsletter(_ context.Context, _ string) error { return nil }

func (f *fakeSession) GroupKick(_ context.Context, _ string, numbers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicked = append(f.kicked, numbers)
	return nil
}

func (f *fakeSession) GroupPromote(_ context.Context, _ string, numbers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promoted = append(f.promoted, numbers)
	return nil
}

func (f *fakeSession) GroupDemote(_ context.Context, _ string, _ []string) error { return nil }

func (f *fakeSession) GroupLeave(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = true
	return nil
}

func (f *fakeSession) IsGroupAdmin(_ context.Context, _, _ string) (bool, error) {
	return f.admin, f.adminErr
}

func (f *fakeSession) lastReply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return ""
	}
	return f.replies[len(f.replies)-1]
}

type memSettings struct {
	mu     sync.Mutex
	stored map[string]map[string]string
}

func (m *memSettings) GetSettings(number string) (store.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := store.DefaultSettings()
	for name, value := range m.stored[number] {
		switch name {
		case store.KeyWorkType:
			s.WorkType = value
		case store.KeyAutoRead:
			s.AutoRead = value == "true"
		case store.KeyAutoViewStatus:
			s.AutoViewStatus = value == "true"
		case store.KeyAutoLikeStatus:
			s.AutoLikeStatus = value == "true"
		case store.KeyWelcomeMessage:
			s.WelcomeMessage = value
		case store.KeyGoodbyeMessage:
			s.GoodbyeMessage = value
		}
	}
	return s, nil
}

func (m *memSettings) SaveSettings(number string, patch map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		m.stored = make(map[string]map[string]string)
	}
	if m.stored[number] == nil {
		m.stored[number] = make(map[string]string)
	}
	for k, v := range patch {
		m.stored[number][k] = v
	}
	return nil
}

func (m *memSettings) value(number, name string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stored[number][name]
}

func newTestDispatcher(owners ...string) (*Dispatcher, *memSettings) {
	cfg := config.DefaultAppConfig()
	cfg.Bot.Owners = owners
	st := &memSettings{}
	return New(cfg, nil, st, nil), st
}

func inbound(sess *fakeSession, sender, text string) *whatsapp.InboundMessage {
	return &whatsapp.InboundMessage{
		Number:  "628000",
		Session: sess,
		Chat:    sender,
		Sender:  sender,
		ID:      "MSG1",
		Text:    text,
	}
}

func TestPingCommand(t *testing.T) {
	d, _ := newTestDispatcher()
	sess := &fakeSession{}

	d.OnMessage(inbound(sess, "628123@s.whatsapp.net", ".ping"))

	assert.Equal(t, "Pong!", sess.lastReply())
	assert.Equal(t, []string{"MSG1"}, sess.reads) // autoread default on
}

func TestMenuCommand(t *testing.T) {
	d, _ := newTestDispatcher()
	sess := &fakeSession{}

	d.OnMessage(inbound(sess, "628123@s.whatsapp.net", ".menu"))

	assert.Contains(t, sess.lastReply(), ".ping")
	assert.Contains(t, sess.lastReply(), ".settings")
}

func TestIgnoresOwnMessages(t *testing.T) {
	d, _ := newTestDispatcher()
	sess := &fakeSession{}
	msg := inbound(sess, "628123@s.whatsapp.net", ".ping")
	msg.FromSelf = true

	d.OnMessage(msg)

	assert.Empty(t, sess.replies)
}

func TestSettingsToggleOwnerOnly(t *testing.T) {
	d, st := newTestDispatcher("628999")
	sess := &fakeSession{}

	d.OnMessage(inbound(sess, "628123@s.whatsapp.net", ".autoread off"))
	assert.Contains(t, sess.lastReply(), "Only the owner")
	assert.Empty(t, st.value("628000", store.KeyAutoRead))

	d.OnMessage(inbound(sess, "628999@s.whatsapp.net", ".autoread off"))
	assert.Contains(t, sess.lastReply(), "autoread is now off")
	assert.Equal(t, "false", st.value("628000", store.KeyAutoRead))
}

func TestOnlineToggleAppliesPresence(t *testing.T) {
	d, st := newTestDispatcher("628999")
	sess := &fakeSession{}

	d.OnMessage(inbound(sess, "628999@s.whatsapp.net", ".online off"))

	assert.Equal(t, "false", st.value("628000", store.KeyOnline))
	require.NotNil(t, sess.presence)
	assert.False(t, *sess.presence)
}

func TestBotNumberIsOwner(t *testing.T) {
	d, st := newTestDispatcher()
	sess := &fakeSession{}

	// the account's own number counts as owner even with no owners configured
	d.OnMessage(inbound(sess, "628000@s.whatsapp.net", ".worktype self"))

	assert.Contains(t, sess.lastReply(), "Work type set to self")
	assert.Equal(t, "self", st.value("628000", store.KeyWorkType))
}

func TestWorkTypeSelfIgnoresStrangers(t *testing.T) {
	d, st := newTestDispatcher("628999")
	require.NoError(t, st.SaveSettings("628000", map[string]string{store.KeyWorkType: "self"}))
	sess := &fakeSession{}

	d.OnMessage(inbound(sess, "628123@s.whatsapp.net", ".ping"))
	assert.Empty(t, sess.replies)

	d.OnMessage(inbound(sess, "628999@s.whatsapp.net", ".ping"))
	assert.Equal(t, "Pong!", sess.lastReply())
}

func TestStatusAutoViewAndLike(t *testing.T) {
	d, _ := newTestDispatcher()
	sess := &fakeSession{}
	msg := inbound(sess, "628123@s.whatsapp.net", "")
	msg.IsStatus = true

	d.OnMessage(msg)

	assert.Equal(t, []string{"MSG1"}, sess.reads)
	require.Len(t, sess.reacts, 1)
	assert.Contains(t, statusReactions, sess.reacts[0])
	assert.Empty(t, sess.replies)
}

func TestStatusRespectsDisabledSettings(t *testing.T) {
	d, st := newTestDispatcher()
	require.NoError(t, st.SaveSettings("628000", map[string]string{
		store.KeyAutoViewStatus: "false",
		store.KeyAutoLikeStatus: "false",
	}))
	sess := &fakeSession{}
	msg := inbound(sess, "628123@s.whatsapp.net", "")
	msg.IsStatus = true

	d.OnMessage(msg)

	assert.Empty(t, sess.reads)
	assert.Empty(t, sess.reacts)
}

func TestGroupKickRequiresAdmin(t *testing.T) {
	d, _ := newTestDispatcher()
	sess := &fakeSession{admin: false}
	msg := inbound(sess, "628123@s.whatsapp.net", ".kick @628555")
	msg.Chat = "12036304@g.us"
	msg.IsGroup = true

	d.OnMessage(msg)
	assert.Contains(t, sess.lastReply(), "Only group admins")
	assert.Empty(t, sess.kicked)

	sess.admin = true
	d.OnMessage(msg)
	assert.Equal(t, "Done.", sess.lastReply())
	require.Len(t, sess.kicked, 1)
	assert.Equal(t, []string{"628555"}, sess.kicked[0])
}

func TestGroupCommandsOutsideGroup(t *testing.T) {
	d, _ := newTestDispatcher()
	sess := &fakeSession{admin: true}

	d.OnMessage(inbound(sess, "628123@s.whatsapp.net", ".kick @628555"))

	assert.Contains(t, sess.lastReply(), "only works in groups")
	assert.Empty(t, sess.kicked)
}

func TestLeaveOwnerOnly(t *testing.T) {
	d, _ := newTestDispatcher("628999")
	sess := &fakeSession{admin: true}
	msg := inbound(sess, "628123@s.whatsapp.net", ".leave")
	msg.Chat = "12036304@g.us"
	msg.IsGroup = true

	d.OnMessage(msg)
	assert.False(t, sess.left)

	msg = inbound(sess, "628999@s.whatsapp.net", ".leave")
	msg.Chat = "12036304@g.us"
	msg.IsGroup = true
	d.OnMessage(msg)
	assert.True(t, sess.left)
}

func TestWelcomeAndGoodbye(t *testing.T) {
	d, st := newTestDispatcher()
	require.NoError(t, st.SaveSettings("628000", map[string]string{
		store.KeyWelcomeMessage: "Welcome aboard, %s!",
	}))
	sess := &fakeSession{}

	d.OnGroupUpdate(&whatsapp.GroupUpdate{
		Number:  "628000",
		Session: sess,
		Chat:    "12036304@g.us",
		Joined:  []string{"628555@s.whatsapp.net"},
		Left:    []string{"628777@s.whatsapp.net"},
	})

	require.Len(t, sess.replies, 2)
	assert.Equal(t, "Welcome aboard, 628555!", sess.replies[0])
	assert.Contains(t, sess.replies[1], "628777")
}

func TestAutoRespondGreeting(t *testing.T) {
	d, _ := newTestDispatcher()
	sess := &fakeSession{}

	d.OnMessage(inbound(sess, "628123@s.whatsapp.net", "hello"))

	assert.Contains(t, sess.lastReply(), "menu")
}
