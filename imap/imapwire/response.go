package imapwire

import (
	"bytes"
	"io"
	"time"

	"crawshaw.io/iox"

	"sealed.ink/imap"
)

// RespStatus is the condition of a status response.
type RespStatus string

const (
	StatusOK      RespStatus = "OK"
	StatusNo      RespStatus = "NO"
	StatusBad     RespStatus = "BAD"
	StatusBye     RespStatus = "BYE"
	StatusPreAuth RespStatus = "PREAUTH"
)

// Response is a single parsed server response.
type Response interface {
	resp()
}

// ContinuationResponse is a "+" continuation request.
type ContinuationResponse struct {
	Text string
}

// StatusResponse is a tagged completion or an untagged
// OK/NO/BAD/BYE/PREAUTH, with optional bracketed response code.
type StatusResponse struct {
	Tag    string // empty for untagged responses
	Status RespStatus
	Code   imap.CodeData
	Text   string
}

// ExistsResponse is "* <n> EXISTS".
type ExistsResponse struct {
	Num uint32
}

// RecentResponse is "* <n> RECENT".
type RecentResponse struct {
	Num uint32
}

// ExpungeResponse is "* <seq> EXPUNGE".
type ExpungeResponse struct {
	Seq uint32
}

// VanishedResponse is "* VANISHED [(EARLIER)] <uid-set>" (RFC 7162).
type VanishedResponse struct {
	Earlier bool
	UIDs    imap.UIDSet
}

// FlagsResponse is "* FLAGS (...)".
type FlagsResponse struct {
	Flags imap.FlagSet
}

// CapabilityResponse is "* CAPABILITY ...".
type CapabilityResponse struct {
	Caps imap.Capabilities
}

// EnabledResponse is "* ENABLED ..." (RFC 5161).
type EnabledResponse struct {
	Caps imap.Capabilities
}

// SearchResponse is "* SEARCH ..." or "* SORT ...", a flat ID list
// with an optional trailing "(MODSEQ n)" (RFC 4551).
type SearchResponse struct {
	Sort   bool
	IDs    []uint32
	ModSeq uint64
}

// ESearchResponse is "* ESEARCH (TAG ...) [UID] ..." (RFC 4731).
type ESearchResponse struct {
	Tag string
	UID bool

	HasMin, HasMax, HasCount, HasAll bool

	Min    uint32
	Max    uint32
	Count  uint32
	All    imap.UIDSet
	ModSeq uint64
}

// ThreadResponse is "* THREAD ..." (RFC 5256).
type ThreadResponse struct {
	Threads []*Thread
}

// Thread is one node of a THREAD response tree.
type Thread struct {
	ID       uint32
	Children []*Thread
}

// ListResponse is "* LIST ...", "* LSUB ..." or "* XLIST ...".
type ListResponse struct {
	Command string // LIST, LSUB, XLIST
	Attrs   imap.MailboxAttr
	Delim   byte // 0 when the server sent NIL
	Mailbox string

	// LIST-EXTENDED mbox-list-extended data, flattened to the
	// CHILDINFO extended names.
	ChildInfo []string
}

// MailboxStatusResponse is "* STATUS <mbox> (...)".
type MailboxStatusResponse struct {
	Mailbox string

	Messages      uint32
	Recent        uint32
	UIDNext       uint32
	UIDValidity   uint32
	Unseen        uint32
	Size          uint64
	HighestModSeq uint64
	MailboxID     string

	// Items records which attributes the server reported.
	Items []string
}

// NamespaceResponse is "* NAMESPACE ..." (RFC 2342).
type NamespaceResponse struct {
	Personal []imap.Namespace
	Other    []imap.Namespace
	Shared   []imap.Namespace
}

// QuotaResponse is "* QUOTA <root> (...)" (RFC 2087).
type QuotaResponse struct {
	Root      string
	Resources []imap.QuotaResource
}

// QuotaRootResponse is "* QUOTAROOT <mbox> <root>..." (RFC 2087).
type QuotaRootResponse struct {
	Mailbox string
	Roots   []string
}

// ACLResponse is "* ACL <mbox> <id> <rights>..." (RFC 4314).
type ACLResponse struct {
	Mailbox string
	Rights  []imap.RightsPair
}

// MyRightsResponse is "* MYRIGHTS <mbox> <rights>" (RFC 4314).
type MyRightsResponse struct {
	Mailbox string
	Rights  string
}

// ListRightsResponse is "* LISTRIGHTS <mbox> <id> ..." (RFC 4314).
type ListRightsResponse struct {
	Mailbox    string
	Identifier string
	Required   string
	Optional   []string
}

// MetadataResponse is "* METADATA <mbox> ..." (RFC 5464), either
// the value form (parenthesized entry-value pairs) or the
// unsolicited entry-name list form.
type MetadataResponse struct {
	Mailbox string
	Entries []imap.MetadataEntry
}

// IDResponse is "* ID ..." (RFC 2971).
type IDResponse struct {
	Params map[string]string
}

// FetchResponse is "* <seq> FETCH (...)".
type FetchResponse struct {
	Seq   uint32
	Items []FetchItemData
}

// UID reports the UID item, or 0 when the server omitted it.
func (f *FetchResponse) UID() uint32 {
	for i := range f.Items {
		if f.Items[i].Key == "UID" {
			return f.Items[i].Num32
		}
	}
	return 0
}

// Close releases any spooled body sections.
func (f *FetchResponse) Close() {
	for i := range f.Items {
		if sec := f.Items[i].Section; sec != nil {
			sec.Close()
		}
	}
}

// FetchItemData is one key-value pair of a FETCH response.
// Which value field is set depends on Key.
type FetchItemData struct {
	Key string

	Num32 uint32    // UID
	Num64 uint64    // RFC822.SIZE, MODSEQ, X-GM-MSGID, X-GM-THRID
	Time  time.Time // INTERNALDATE, SAVEDATE

	Flags imap.FlagSet // FLAGS

	Labels []string // X-GM-LABELS

	Str string // PREVIEW, EMAILID, THREADID

	Envelope      *imap.Envelope      // ENVELOPE
	BodyStructure *imap.BodyStructure // BODYSTRUCTURE, BODY (no section)

	Section *BodySection // BODY[...], BINARY[...]
}

// BodySection is the content of a BODY[section]<origin> fetch item.
// Small payloads live in Bytes; large ones are spooled to Literal.
type BodySection struct {
	Specifier string // raw section text between the brackets
	Origin    int64  // <origin> offset, -1 when absent

	Bytes   []byte
	Literal *iox.BufferFile
}

// Len reports the content size in bytes.
func (b *BodySection) Len() int64 {
	if b.Literal != nil {
		return b.Literal.Size()
	}
	return int64(len(b.Bytes))
}

// Reader reads the section content from the start.
func (b *BodySection) Reader() io.Reader {
	if b.Literal != nil {
		return io.NewSectionReader(b.Literal, 0, b.Literal.Size())
	}
	return bytes.NewReader(b.Bytes)
}

// Close releases the spooled content, if any.
func (b *BodySection) Close() {
	if b.Literal != nil {
		b.Literal.Close()
		b.Literal = nil
	}
}

func (*ContinuationResponse) resp()  {}
func (*StatusResponse) resp()        {}
func (*ExistsResponse) resp()        {}
func (*RecentResponse) resp()        {}
func (*ExpungeResponse) resp()       {}
func (*VanishedResponse) resp()      {}
func (*FlagsResponse) resp()         {}
func (*CapabilityResponse) resp()    {}
func (*EnabledResponse) resp()       {}
func (*SearchResponse) resp()        {}
func (*ESearchResponse) resp()       {}
func (*ThreadResponse) resp()        {}
func (*ListResponse) resp()          {}
func (*MailboxStatusResponse) resp() {}
func (*NamespaceResponse) resp()     {}
func (*QuotaResponse) resp()         {}
func (*QuotaRootResponse) resp()     {}
func (*ACLResponse) resp()           {}
func (*MyRightsResponse) resp()      {}
func (*ListRightsResponse) resp()    {}
func (*MetadataResponse) resp()      {}
func (*IDResponse) resp()            {}
func (*FetchResponse) resp()         {}
