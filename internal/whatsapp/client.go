package whatsapp

import "context"

// Session is one number's live protocol client, bound to that number's
// credential cache. At most one Session may exist per number at a time; the
// supervisor's registry enforces that, not this package.
type Session interface {
	// Registered reports whether the credential cache holds a completed
	// pairing. Unregistered sessions need a pairing code or QR scan.
	Registered() bool
	// Connect starts the protocol handshake. State transitions, QR
	// challenges and disconnects arrive on Updates.
	Connect() error
	Disconnect()
	// RequestPairingCode asks the server for a short pairing code the user
	// enters under Linked Devices. Only valid while unregistered.
	RequestPairingCode(ctx context.Context, number string) (string, error)
	Updates() <-chan Update

	// SelfJID returns the account's own JID, empty until registered.
	SelfJID() string
	// SendPresence publishes the account as available or unavailable.
	SendPresence(ctx context.Context, available bool) error
	SendText(ctx context.Context, toJID, text string) error
	React(ctx context.Context, chat, sender, messageID, emoji string) error
	MarkRead(ctx context.Context, chat, sender string, messageIDs []string) error
	FollowNewsletter(ctx context.Context, jid string) error

	GroupKick(ctx context.Context, group string, numbers []string) error
	GroupPromote(ctx context.Context, group string, numbers []string) error
	GroupDemote(ctx context.Context, group string, numbers []string) error
	GroupLeave(ctx context.Context, group string) error
	IsGroupAdmin(ctx context.Context, group, participant string) (bool, error)

	// Close releases the session's resources without touching the
	// credential cache on disk. It closes the Updates channel, so
	// consumers ranging over it terminate.
	Close()
}

// Factory opens a Session for a number given the path of its serialized
// credential file. The credential bundle is created fresh when absent.
type Factory interface {
	Open(ctx context.Context, number, credsPath string) (Session, error)
}
