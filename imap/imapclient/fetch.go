package imapclient

import (
	"context"
	"strings"
	"time"

	"github.com/emersion/go-message"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// maxCommandArgLen bounds the encoded sequence-set of one command.
// Longer sets are split across commands and the results aggregated.
const maxCommandArgLen = 8 << 10

// FetchBodySection names one BODY[...] item to fetch.
type FetchBodySection struct {
	// Specifier is the raw section: "", "HEADER", "TEXT", "1.2",
	// "1.MIME", "HEADER.FIELDS (FROM TO)".
	Specifier string

	// Peek fetches without setting \Seen.
	Peek bool

	// Partial limits the fetch to Length octets from Start.
	Partial bool
	Start   uint32
	Length  uint32
}

func (s *FetchBodySection) encode(enc *encoder) {
	if s.Peek {
		enc.raw("BODY.PEEK[")
	} else {
		enc.raw("BODY[")
	}
	enc.raw(s.Specifier)
	enc.raw("]")
	if s.Partial {
		enc.raw("<")
		enc.number32(s.Start)
		enc.raw(".")
		enc.number32(s.Length)
		enc.raw(">")
	}
}

// FetchOptions selects the items of a FETCH.
// The zero value fetches FLAGS and UID.
type FetchOptions struct {
	Envelope      bool
	Flags         bool
	InternalDate  bool
	RFC822Size    bool
	UID           bool
	BodyStructure bool
	ModSeq        bool
	Preview       bool
	SaveDate      bool

	// RFC 8474 OBJECTID items.
	EmailID  bool
	ThreadID bool

	// Gmail X-GM-EXT-1 items.
	GmailMsgID    bool
	GmailThreadID bool
	GmailLabels   bool

	BodySections []*FetchBodySection

	// ChangedSince fetches only messages whose MODSEQ exceeds the
	// value (CONDSTORE).
	ChangedSince uint64

	// Vanished requests VANISHED (EARLIER) data alongside a UID
	// FETCH with ChangedSince (QRESYNC).
	Vanished bool
}

func (o *FetchOptions) items() []string {
	var items []string
	add := func(cond bool, item string) {
		if cond {
			items = append(items, item)
		}
	}
	add(o.Flags, "FLAGS")
	add(o.UID, "UID")
	add(o.Envelope, "ENVELOPE")
	add(o.InternalDate, "INTERNALDATE")
	add(o.RFC822Size, "RFC822.SIZE")
	add(o.BodyStructure, "BODYSTRUCTURE")
	add(o.ModSeq, "MODSEQ")
	add(o.Preview, "PREVIEW")
	add(o.SaveDate, "SAVEDATE")
	add(o.EmailID, "EMAILID")
	add(o.ThreadID, "THREADID")
	add(o.GmailMsgID, "X-GM-MSGID")
	add(o.GmailThreadID, "X-GM-THRID")
	add(o.GmailLabels, "X-GM-LABELS")
	if len(items) == 0 && len(o.BodySections) == 0 {
		items = []string{"FLAGS", "UID"}
	}
	return items
}

// Fetch retrieves message data by sequence number.
func (c *Client) Fetch(ctx context.Context, seqs []imap.SeqRange, opts *FetchOptions) ([]*MessageData, error) {
	return c.fetch(ctx, false, seqs, opts)
}

// UIDFetch retrieves message data by UID.
func (c *Client) UIDFetch(ctx context.Context, uids imap.UIDSet, opts *FetchOptions) ([]*MessageData, error) {
	return c.fetch(ctx, true, uids.Ranges, opts)
}

func (c *Client) fetch(ctx context.Context, uid bool, seqs []imap.SeqRange, opts *FetchOptions) ([]*MessageData, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	var o FetchOptions
	if opts != nil {
		o = *opts
	}
	if o.ChangedSince != 0 && !c.Caps().SupportsCondStore() {
		return nil, &imap.ErrNotSupported{Capability: "CONDSTORE"}
	}
	if o.Vanished {
		if !uid || o.ChangedSince == 0 {
			return nil, imap.ProtocolErrorf("VANISHED requires UID FETCH with CHANGEDSINCE")
		}
		if !c.Enabled().SupportsQResync() {
			return nil, &imap.ErrNotSupported{Capability: "QRESYNC"}
		}
	}
	if len(seqs) == 0 {
		return nil, nil
	}

	verb := "FETCH"
	if uid {
		verb = "UID FETCH"
	}

	var all []*MessageData
	for _, chunk := range splitSeqs(seqs, maxCommandArgLen) {
		chunk := chunk
		cmd, err := c.roundTrip(ctx, verb, func(enc *encoder) {
			enc.sp()
			enc.seqs(chunk)
			enc.sp()
			enc.listOpen()
			items := o.items()
			for i, item := range items {
				if i > 0 {
					enc.sp()
				}
				enc.atom(item)
			}
			for i, sec := range o.BodySections {
				if i > 0 || len(items) > 0 {
					enc.sp()
				}
				sec.encode(enc)
			}
			enc.listClose()
			if o.ChangedSince != 0 {
				enc.sp()
				enc.listOpen()
				enc.atom("CHANGEDSINCE")
				enc.sp()
				enc.number(o.ChangedSince)
				if o.Vanished {
					enc.sp()
					enc.atom("VANISHED")
				}
				enc.listClose()
			}
		})
		if err != nil {
			closeMessages(all)
			return nil, err
		}
		for _, resp := range cmd.responses {
			if r, ok := resp.(*imapwire.FetchResponse); ok {
				all = append(all, newMessageData(c, r))
			}
		}
	}
	return all, nil
}

func closeMessages(msgs []*MessageData) {
	for _, m := range msgs {
		m.Close()
	}
}

// splitSeqs partitions ranges so that each part encodes within
// maxLen bytes. Results aggregate across the resulting commands in
// input order.
func splitSeqs(seqs []imap.SeqRange, maxLen int) [][]imap.SeqRange {
	var parts [][]imap.SeqRange
	var part []imap.SeqRange
	n := 0
	for _, r := range seqs {
		// "4294967295:4294967295," is the worst case.
		const worst = 22
		if n+worst > maxLen && len(part) > 0 {
			parts = append(parts, part)
			part = nil
			n = 0
		}
		part = append(part, r)
		n += worst
	}
	if len(part) > 0 {
		parts = append(parts, part)
	}
	return parts
}

// MessageData is a merged FETCH record for one message.
type MessageData struct {
	c   *Client
	raw *imapwire.FetchResponse

	Seq uint32
	UID uint32

	HasFlags bool
	Flags    imap.FlagSet

	InternalDate time.Time
	SaveDate     time.Time
	Size         uint64
	ModSeq       uint64

	Envelope      *imap.Envelope
	BodyStructure *imap.BodyStructure

	Labels        []string
	GmailMsgID    uint64
	GmailThreadID uint64

	Preview  string
	EmailID  string
	ThreadID string
}

func newMessageData(c *Client, r *imapwire.FetchResponse) *MessageData {
	m := &MessageData{c: c, raw: r, Seq: r.Seq}
	for i := range r.Items {
		item := &r.Items[i]
		switch item.Key {
		case "UID":
			m.UID = item.Num32
		case "FLAGS":
			m.HasFlags = true
			m.Flags = item.Flags
		case "INTERNALDATE":
			m.InternalDate = item.Time
		case "SAVEDATE":
			m.SaveDate = item.Time
		case "RFC822.SIZE":
			m.Size = item.Num64
		case "MODSEQ":
			m.ModSeq = item.Num64
		case "ENVELOPE":
			m.Envelope = item.Envelope
		case "BODYSTRUCTURE", "BODY":
			if item.BodyStructure != nil {
				m.BodyStructure = item.BodyStructure
			}
		case "X-GM-LABELS":
			m.Labels = item.Labels
		case "X-GM-MSGID":
			m.GmailMsgID = item.Num64
		case "X-GM-THRID":
			m.GmailThreadID = item.Num64
		case "PREVIEW":
			m.Preview = item.Str
		case "EMAILID":
			m.EmailID = item.Str
		case "THREADID":
			m.ThreadID = item.Str
		}
	}
	return m
}

// Section reports the content of a fetched body section, matched
// by specifier (case-insensitive). It reports nil when the server
// did not return the section.
func (m *MessageData) Section(specifier string) *imapwire.BodySection {
	for i := range m.raw.Items {
		sec := m.raw.Items[i].Section
		if sec == nil {
			continue
		}
		if strings.EqualFold(sec.Specifier, specifier) {
			return sec
		}
	}
	return nil
}

// Sections reports every body section in the record.
func (m *MessageData) Sections() []*imapwire.BodySection {
	var secs []*imapwire.BodySection
	for i := range m.raw.Items {
		if sec := m.raw.Items[i].Section; sec != nil {
			secs = append(secs, sec)
		}
	}
	return secs
}

// Entity parses a fetched section as a MIME entity. The entity
// streams from the spooled content; it is valid until Close.
func (m *MessageData) Entity(specifier string) (*message.Entity, error) {
	sec := m.Section(specifier)
	if sec == nil {
		return nil, imap.ErrMessageNotFound
	}
	return message.Read(sec.Reader())
}

// DecodedSubject is the envelope subject with encoded words
// decoded using the client's word decoder.
func (m *MessageData) DecodedSubject() string {
	if m.Envelope == nil {
		return ""
	}
	return m.Envelope.DecodedSubject(m.c.dec)
}

// Close releases spooled section content.
func (m *MessageData) Close() {
	m.raw.Close()
}
