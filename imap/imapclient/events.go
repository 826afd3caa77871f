package imapclient

import (
	"sealed.ink/imap"
)

// Event is an unsolicited update delivered on Client.Events.
// Events are emitted in wire order, after the state mutation they
// describe has been applied.
type Event interface {
	event()
}

// MailboxOpenedEvent follows a successful SELECT or EXAMINE.
type MailboxOpenedEvent struct {
	Mailbox string
	Access  imap.MailboxAccess
}

// MailboxClosedEvent follows CLOSE, UNSELECT, a [CLOSED] response
// code, or teardown of the selected mailbox at disconnect.
type MailboxClosedEvent struct {
	Mailbox string
}

// MailboxDeletedEvent follows a successful DELETE.
type MailboxDeletedEvent struct {
	Mailbox string
}

// MailboxRenamedEvent follows a successful RENAME.
type MailboxRenamedEvent struct {
	OldName string
	NewName string
}

// MailboxSubscribedEvent follows SUBSCRIBE; Subscribed reports the
// new state (false after UNSUBSCRIBE).
type MailboxSubscribedEvent struct {
	Mailbox    string
	Subscribed bool
}

// CountChangedEvent reports a grown EXISTS count.
type CountChangedEvent struct {
	Count uint32
}

// RecentChangedEvent reports a RECENT update.
type RecentChangedEvent struct {
	Recent uint32
}

// MessagesArrivedEvent reports newly arrived messages.
type MessagesArrivedEvent struct {
	Count uint32 // how many new messages
}

// MessageExpungedEvent reports an EXPUNGE. UID is 0 when the
// sequence-to-UID map had no entry for the expunged slot.
type MessageExpungedEvent struct {
	Seq uint32
	UID uint32
}

// MessagesVanishedEvent reports a VANISHED set (QRESYNC).
type MessagesVanishedEvent struct {
	UIDs    imap.UIDSet
	Earlier bool
}

// MessageFlagsChangedEvent reports a FLAGS fetch item.
type MessageFlagsChangedEvent struct {
	Seq   uint32
	UID   uint32
	Flags imap.FlagSet
}

// MessageLabelsChangedEvent reports an X-GM-LABELS fetch item.
type MessageLabelsChangedEvent struct {
	Seq    uint32
	UID    uint32
	Labels []string
}

// ModSeqChangedEvent reports a MODSEQ fetch item (CONDSTORE).
type ModSeqChangedEvent struct {
	Seq    uint32
	UID    uint32
	ModSeq uint64
}

// MessageSummaryFetchedEvent reports a complete FETCH record.
type MessageSummaryFetchedEvent struct {
	Summary *MessageData
}

// HighestModSeqChangedEvent reports a HIGHESTMODSEQ update.
type HighestModSeqChangedEvent struct {
	HighestModSeq uint64
}

// UIDValidityChangedEvent reports a UIDVALIDITY epoch change.
// All cached UIDs are invalid; callers must re-sync.
type UIDValidityChangedEvent struct {
	UIDValidity uint32
}

// AlertEvent carries an [ALERT] the server requires be shown.
type AlertEvent struct {
	Text string
}

// AuthenticatedEvent follows successful LOGIN or AUTHENTICATE.
type AuthenticatedEvent struct{}

// DisconnectedEvent is the final event before the stream closes.
// Err is nil for a clean, client-initiated shutdown.
type DisconnectedEvent struct {
	Err error
}

// MetadataChangedEvent carries unsolicited METADATA entry names
// (RFC 5464 section 4.4.2).
type MetadataChangedEvent struct {
	Mailbox string
	Entries []imap.MetadataEntry
}

func (*MailboxOpenedEvent) event()         {}
func (*MailboxClosedEvent) event()         {}
func (*MailboxDeletedEvent) event()        {}
func (*MailboxRenamedEvent) event()        {}
func (*MailboxSubscribedEvent) event()     {}
func (*CountChangedEvent) event()          {}
func (*RecentChangedEvent) event()         {}
func (*MessagesArrivedEvent) event()       {}
func (*MessageExpungedEvent) event()       {}
func (*MessagesVanishedEvent) event()      {}
func (*MessageFlagsChangedEvent) event()   {}
func (*MessageLabelsChangedEvent) event()  {}
func (*ModSeqChangedEvent) event()         {}
func (*MessageSummaryFetchedEvent) event() {}
func (*HighestModSeqChangedEvent) event()  {}
func (*UIDValidityChangedEvent) event()    {}
func (*AlertEvent) event()                 {}
func (*AuthenticatedEvent) event()         {}
func (*DisconnectedEvent) event()          {}
func (*MetadataChangedEvent) event()       {}
