package imapclient

import (
	"sync"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// Mailbox is the state of the selected mailbox. Mutation is
// confined to the reader goroutine; accessors snapshot under the
// mutex and are safe from any goroutine.
//
// Message sequence numbers are 1-based, as on the wire.
type Mailbox struct {
	c    *Client
	name string

	mu            sync.Mutex
	open          bool
	access        imap.MailboxAccess
	uidValidity   uint32
	uidNext       uint32
	highestModSeq uint64
	noModSeq      bool
	count         uint32
	recent        uint32
	firstUnseen   uint32
	uidNotSticky  bool
	flags         imap.FlagSet
	permFlags     imap.FlagSet

	// seqToUID maps sequence number to UID; index 0 is unused.
	// A zero entry means the UID is not yet known.
	seqToUID []uint32
}

func newMailbox(c *Client, name string) *Mailbox {
	return &Mailbox{
		c:        c,
		name:     name,
		seqToUID: make([]uint32, 1),
	}
}

// Name is the UTF-8 full name of the mailbox.
func (m *Mailbox) Name() string { return m.name }

// IsOpen reports whether the mailbox is still selected on its
// connection.
func (m *Mailbox) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// Access reports the access mode granted at SELECT/EXAMINE.
func (m *Mailbox) Access() imap.MailboxAccess {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access
}

// Count reports the message count. It follows EXISTS responses and
// decreases only via EXPUNGE or VANISHED.
func (m *Mailbox) Count() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// Recent reports the \Recent count.
func (m *Mailbox) Recent() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recent
}

// FirstUnseen reports the sequence number of the first unseen
// message, or 0 when unknown.
func (m *Mailbox) FirstUnseen() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.firstUnseen
}

// UIDValidity reports the mailbox UIDVALIDITY epoch.
func (m *Mailbox) UIDValidity() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uidValidity
}

// UIDNext reports the predicted next UID.
func (m *Mailbox) UIDNext() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uidNext
}

// HighestModSeq reports the highest known mod-sequence, or 0 when
// the server sent NOMODSEQ (no CONDSTORE support for this mailbox).
func (m *Mailbox) HighestModSeq() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.highestModSeq
}

// Flags reports the applicable flags announced at selection.
func (m *Mailbox) Flags() imap.FlagSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

// PermanentFlags reports the flags that persist across sessions.
// Wildcard set means the server accepts new keywords.
func (m *Mailbox) PermanentFlags() imap.FlagSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.permFlags
}

// UIDNotSticky reports the UIDNOTSTICKY condition (RFC 4315).
func (m *Mailbox) UIDNotSticky() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uidNotSticky
}

// UIDForSeq reports the cached UID for a sequence number, or 0
// when unknown.
func (m *Mailbox) UIDForSeq(seq uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seq == 0 || int(seq) >= len(m.seqToUID) {
		return 0
	}
	return m.seqToUID[seq]
}

// SeqForUID reports the sequence number holding uid, or 0 when the
// UID is not in the cached map.
func (m *Mailbox) SeqForUID(uid uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for seq := 1; seq < len(m.seqToUID); seq++ {
		if m.seqToUID[seq] == uid {
			return uint32(seq)
		}
	}
	return 0
}

// KnownUIDs reports the cached UID set, for QRESYNC state
// persistence.
func (m *Mailbox) KnownUIDs() imap.UIDSet {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s imap.UIDSet
	for seq := 1; seq < len(m.seqToUID); seq++ {
		s.Add(m.seqToUID[seq])
	}
	return s
}

func (m *Mailbox) closed() {
	m.mu.Lock()
	wasOpen := m.open
	m.open = false
	m.mu.Unlock()
	if wasOpen {
		m.c.emit(&MailboxClosedEvent{Mailbox: m.name})
	}
}

// applyExists handles "* n EXISTS". The count only grows here;
// shrinking happens via EXPUNGE and VANISHED. During selection
// (before the tagged OK) the count is state, not an arrival, so
// no events fire.
func (m *Mailbox) applyExists(n uint32) {
	m.mu.Lock()
	old := m.count
	open := m.open
	if n <= old {
		m.mu.Unlock()
		return
	}
	m.count = n
	for uint32(len(m.seqToUID)) <= n {
		m.seqToUID = append(m.seqToUID, 0)
	}
	m.mu.Unlock()

	if open {
		m.c.emit(&CountChangedEvent{Count: n})
		m.c.emit(&MessagesArrivedEvent{Count: n - old})
	}
}

func (m *Mailbox) applyRecent(n uint32) {
	m.mu.Lock()
	changed := m.recent != n && m.open
	m.recent = n
	m.mu.Unlock()
	if changed {
		m.c.emit(&RecentChangedEvent{Recent: n})
	}
}

// applyExpunge handles "* seq EXPUNGE": the message at seq is
// removed and higher sequence numbers shift down by one.
func (m *Mailbox) applyExpunge(seq uint32) {
	m.mu.Lock()
	var uid uint32
	if seq != 0 && int(seq) < len(m.seqToUID) {
		uid = m.seqToUID[seq]
		m.seqToUID = append(m.seqToUID[:seq], m.seqToUID[seq+1:]...)
	}
	if m.count > 0 {
		m.count--
	}
	m.mu.Unlock()

	m.c.emit(&MessageExpungedEvent{Seq: seq, UID: uid})
}

// applyVanished handles "* VANISHED [(EARLIER)] uids" (QRESYNC).
// With EARLIER the UIDs describe a previous session; the count is
// not decremented.
func (m *Mailbox) applyVanished(uids imap.UIDSet, earlier bool) {
	m.mu.Lock()
	removed := uint32(0)
	for seq := len(m.seqToUID) - 1; seq >= 1; seq-- {
		if uid := m.seqToUID[seq]; uid != 0 && uids.Contains(uid) {
			m.seqToUID = append(m.seqToUID[:seq], m.seqToUID[seq+1:]...)
			removed++
		}
	}
	if !earlier && removed > 0 {
		if m.count >= removed {
			m.count -= removed
		} else {
			m.count = 0
		}
	}
	m.mu.Unlock()

	m.c.emit(&MessagesVanishedEvent{UIDs: uids, Earlier: earlier})
}

func (m *Mailbox) applyFlags(flags imap.FlagSet) {
	m.mu.Lock()
	m.flags = flags
	m.mu.Unlock()
}

// applyFetch merges one FETCH record into the sequence map and
// fans out change events. Unsolicited FETCHes for sequence numbers
// beyond the known count grow the map; the EXISTS that races them
// may arrive after.
func (m *Mailbox) applyFetch(r *imapwire.FetchResponse) {
	seq := r.Seq
	uid := r.UID()

	m.mu.Lock()
	arrived := uint32(0)
	for uint32(len(m.seqToUID)) <= seq {
		m.seqToUID = append(m.seqToUID, 0)
		if uint32(len(m.seqToUID))-1 > m.count {
			arrived++
		}
	}
	if arrived > 0 {
		m.count = seq
	}
	if uid != 0 && seq != 0 {
		m.seqToUID[seq] = uid
	}
	m.mu.Unlock()

	if arrived > 0 {
		m.c.emit(&CountChangedEvent{Count: seq})
		m.c.emit(&MessagesArrivedEvent{Count: arrived})
	}

	for i := range r.Items {
		item := &r.Items[i]
		switch item.Key {
		case "FLAGS":
			m.c.emit(&MessageFlagsChangedEvent{Seq: seq, UID: uid, Flags: item.Flags})
		case "X-GM-LABELS":
			m.c.emit(&MessageLabelsChangedEvent{Seq: seq, UID: uid, Labels: item.Labels})
		case "MODSEQ":
			m.mu.Lock()
			if item.Num64 > m.highestModSeq {
				m.highestModSeq = item.Num64
			}
			m.mu.Unlock()
			m.c.emit(&ModSeqChangedEvent{Seq: seq, UID: uid, ModSeq: item.Num64})
		}
	}

	m.c.emit(&MessageSummaryFetchedEvent{Summary: newMessageData(m.c, r)})
}

// applyCode handles mailbox-scoped response codes arriving in
// untagged (or tagged) status responses.
func (m *Mailbox) applyCode(code imap.CodeData) {
	switch code.Code {
	case imap.CodeUIDValidity:
		m.mu.Lock()
		prev := m.uidValidity
		m.uidValidity = code.Num
		changed := prev != 0 && prev != code.Num
		if changed {
			// Epoch change invalidates every cached UID.
			for seq := 1; seq < len(m.seqToUID); seq++ {
				m.seqToUID[seq] = 0
			}
		}
		m.mu.Unlock()
		if changed {
			m.c.emit(&UIDValidityChangedEvent{UIDValidity: code.Num})
		}
	case imap.CodeUIDNext:
		m.mu.Lock()
		m.uidNext = code.Num
		m.mu.Unlock()
	case imap.CodeHighestModSeq:
		m.mu.Lock()
		changed := m.highestModSeq != code.Num64
		m.highestModSeq = code.Num64
		m.noModSeq = false
		m.mu.Unlock()
		if changed {
			m.c.emit(&HighestModSeqChangedEvent{HighestModSeq: code.Num64})
		}
	case imap.CodeNoModSeq:
		m.mu.Lock()
		m.highestModSeq = 0
		m.noModSeq = true
		m.mu.Unlock()
	case imap.CodePermanentFlags:
		m.mu.Lock()
		m.permFlags = code.Flags
		m.mu.Unlock()
	case imap.CodeUnseen:
		m.mu.Lock()
		m.firstUnseen = code.Num
		m.mu.Unlock()
	case imap.CodeReadOnly:
		m.mu.Lock()
		m.access = imap.ReadOnlyAccess
		m.mu.Unlock()
	case imap.CodeReadWrite:
		m.mu.Lock()
		m.access = imap.ReadWriteAccess
		m.mu.Unlock()
	case imap.CodeUIDNotSticky:
		m.mu.Lock()
		m.uidNotSticky = true
		m.mu.Unlock()
	}
}
