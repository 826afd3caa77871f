package imap

import (
	"sort"
	"strings"
)

// Flag is a system message flag bit.
type Flag int

const (
	FlagNone     Flag = 0
	FlagAnswered Flag = 1 << iota
	FlagDeleted
	FlagDraft
	FlagFlagged
	FlagRecent
	FlagSeen
)

// SettableFlags are the flags a client may STORE.
// \Recent is maintained by the server.
const SettableFlags = FlagAnswered | FlagDeleted | FlagDraft | FlagFlagged | FlagSeen

var flagStrings = map[Flag]string{
	FlagAnswered: `\Answered`,
	FlagDeleted:  `\Deleted`,
	FlagDraft:    `\Draft`,
	FlagFlagged:  `\Flagged`,
	FlagRecent:   `\Recent`,
	FlagSeen:     `\Seen`,
}

var flagList = func() (flagList []Flag) {
	for f := range flagStrings {
		flagList = append(flagList, f)
	}
	sort.Slice(flagList, func(i, j int) bool { return flagList[i] < flagList[j] })
	return flagList
}()

func (flags Flag) String() (res string) {
	for _, f := range flagList {
		if flags&f != 0 {
			s := flagStrings[f]
			if res == "" {
				res = s
			} else {
				res = res + " " + s
			}
		}
	}
	return res
}

// ParseFlag maps a wire-form flag atom to its bit.
// Unknown system flags and keywords report FlagNone.
func ParseFlag(s string) Flag {
	switch {
	case strings.EqualFold(s, `\Answered`):
		return FlagAnswered
	case strings.EqualFold(s, `\Deleted`):
		return FlagDeleted
	case strings.EqualFold(s, `\Draft`):
		return FlagDraft
	case strings.EqualFold(s, `\Flagged`):
		return FlagFlagged
	case strings.EqualFold(s, `\Recent`):
		return FlagRecent
	case strings.EqualFold(s, `\Seen`):
		return FlagSeen
	}
	return FlagNone
}

// FlagSet is a message flag state: the system flag bits plus any
// server keywords (user-defined flags), and whether the mailbox
// accepts new keywords (the "\*" permanent flag).
type FlagSet struct {
	System   Flag
	Keywords []string
	Wildcard bool // "\*" seen in PERMANENTFLAGS
}

// Has reports whether the system flag f is set.
func (fs FlagSet) Has(f Flag) bool { return fs.System&f != 0 }

// HasKeyword reports whether the keyword kw is present,
// compared case-insensitively per RFC 3501 atom rules.
func (fs FlagSet) HasKeyword(kw string) bool {
	for _, k := range fs.Keywords {
		if strings.EqualFold(k, kw) {
			return true
		}
	}
	return false
}

// AddKeyword inserts kw unless already present.
func (fs *FlagSet) AddKeyword(kw string) {
	if !fs.HasKeyword(kw) {
		fs.Keywords = append(fs.Keywords, kw)
	}
}

// Add merges the wire-form flag s into the set.
func (fs *FlagSet) Add(s string) {
	if s == `\*` {
		fs.Wildcard = true
		return
	}
	if f := ParseFlag(s); f != FlagNone {
		fs.System |= f
		return
	}
	fs.AddKeyword(s)
}

func (fs FlagSet) String() string {
	res := fs.System.String()
	for _, k := range fs.Keywords {
		if res == "" {
			res = k
		} else {
			res = res + " " + k
		}
	}
	if fs.Wildcard {
		if res == "" {
			res = `\*`
		} else {
			res = res + ` \*`
		}
	}
	return res
}

// MailboxAttr is a mailbox name attribute bit, the union of
// RFC 3501 LIST attributes, RFC 6154 SPECIAL-USE, and the
// LIST-EXTENDED return attributes.
type MailboxAttr int

const (
	AttrNone        MailboxAttr = 0
	AttrNoinferiors MailboxAttr = 1 << iota
	AttrNoselect
	AttrMarked
	AttrUnmarked
	AttrHasChildren
	AttrHasNoChildren
	AttrNonExistent
	AttrSubscribed
	AttrRemote

	// SPECIAL-USE mailbox attributes, RFC 6154
	AttrAll
	AttrArchive
	AttrDrafts
	AttrFlagged
	AttrImportant
	AttrInbox
	AttrJunk
	AttrSent
	AttrTrash
)

var attrStrings = map[MailboxAttr]string{
	AttrNoinferiors:   `\Noinferiors`,
	AttrNoselect:      `\Noselect`,
	AttrMarked:        `\Marked`,
	AttrUnmarked:      `\Unmarked`,
	AttrHasChildren:   `\HasChildren`,
	AttrHasNoChildren: `\HasNoChildren`,
	AttrNonExistent:   `\NonExistent`,
	AttrSubscribed:    `\Subscribed`,
	AttrRemote:        `\Remote`,
	AttrAll:           `\All`,
	AttrArchive:       `\Archive`,
	AttrDrafts:        `\Drafts`,
	AttrFlagged:       `\Flagged`,
	AttrImportant:     `\Important`,
	AttrInbox:         `\Inbox`,
	AttrJunk:          `\Junk`,
	AttrSent:          `\Sent`,
	AttrTrash:         `\Trash`,
}

var attrList = func() (attrList []MailboxAttr) {
	for attr := range attrStrings {
		attrList = append(attrList, attr)
	}
	sort.Slice(attrList, func(i, j int) bool { return attrList[i] < attrList[j] })
	return attrList
}()

func (attrs MailboxAttr) String() (res string) {
	for _, attr := range attrList {
		if attrs&attr != 0 {
			s := attrStrings[attr]
			if res == "" {
				res = s
			} else {
				res = res + " " + s
			}
		}
	}
	return res
}

// ParseMailboxAttr maps a wire-form attribute to its bit.
// Unknown attributes report AttrNone; LIST consumers ignore them.
func ParseMailboxAttr(s string) MailboxAttr {
	for attr, str := range attrStrings {
		if strings.EqualFold(s, str) {
			return attr
		}
	}
	return AttrNone
}
