package imap

import (
	"mime"
	"strings"
	"time"
)

// Address is a single address from an ENVELOPE address list,
// per the RFC 3501 address grammar.
//
// A group start is encoded with an empty Host and a non-empty
// Mailbox (the group display name); a group end has both empty.
type Address struct {
	Name    string // display name, possibly RFC 2047 encoded
	ADL     string // at-domain-list (source route), rarely used
	Mailbox string // local part
	Host    string // domain
}

// Addr is the "local@host" form, or the empty string for group
// delimiters.
func (a Address) Addr() string {
	if a.Mailbox == "" || a.Host == "" {
		return ""
	}
	return a.Mailbox + "@" + a.Host
}

// DecodedName is the display name with RFC 2047 encoded words
// decoded by dec. A nil dec uses the stdlib defaults.
func (a Address) DecodedName(dec *mime.WordDecoder) string {
	if dec == nil {
		dec = new(mime.WordDecoder)
	}
	s, err := dec.DecodeHeader(a.Name)
	if err != nil {
		return a.Name
	}
	return s
}

func (a Address) String() string {
	addr := a.Addr()
	if a.Name == "" {
		return addr
	}
	return a.Name + " <" + addr + ">"
}

// Envelope is the parsed ENVELOPE fetch item, per RFC 3501.
// Absent (NIL) fields are zero values.
type Envelope struct {
	Date      time.Time
	Subject   string // possibly RFC 2047 encoded
	From      []Address
	Sender    []Address
	ReplyTo   []Address
	To        []Address
	Cc        []Address
	Bcc       []Address
	InReplyTo string
	MessageID string
}

// DecodedSubject is Subject with RFC 2047 encoded words decoded
// by dec. A nil dec uses the stdlib defaults.
func (e *Envelope) DecodedSubject(dec *mime.WordDecoder) string {
	if dec == nil {
		dec = new(mime.WordDecoder)
	}
	s, err := dec.DecodeHeader(e.Subject)
	if err != nil {
		return e.Subject
	}
	return s
}

// internal-date-time and envelope date layouts seen in the wild.
var dateLayouts = []string{
	"02-Jan-2006 15:04:05 -0700", // INTERNALDATE, RFC 3501
	" 2-Jan-2006 15:04:05 -0700",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04 -0700",
}

// ParseDate parses an IMAP date-time or an RFC 5322 header date.
// It reports the zero time for input it cannot interpret; mail
// in the wild carries unparseable dates and they must not abort
// a FETCH.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// FormatDate renders t as an RFC 3501 date-time, the form APPEND
// and SEARCH criteria use on the wire.
func FormatDate(t time.Time) string {
	return t.Format("02-Jan-2006 15:04:05 -0700")
}

// FormatSearchDate renders t as an RFC 3501 date (no time),
// used by BEFORE/ON/SINCE search keys.
func FormatSearchDate(t time.Time) string {
	return t.Format("2-Jan-2006")
}
