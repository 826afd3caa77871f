// Package imap defines the wire-level data model shared by the
// IMAP client engine.
//
// At its core it implements the value grammar from RFC 3501:
// sequence sets, message flags, mailbox attributes, capabilities,
// and response codes, along with the grammar for several extensions.
//
// See RFC 4466 for the grammar for many typical IMAP extensions.
package imap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SeqRange is a normalized IMAP seq-range.
// Normalized means that Min is always less than or equal to Max.
//
// The value 0 is a placeholder for '*'.
// When Min == Max, a SeqRange refers to a single value.
type SeqRange struct {
	Min uint32
	Max uint32
}

// Contains reports whether v falls within the range.
// A range bounded by '*' contains every value at or above Min.
func (r SeqRange) Contains(v uint32) bool {
	if r.Min == 0 && r.Max == 0 {
		return v != 0
	}
	if r.Max == 0 {
		return v >= r.Min
	}
	return v >= r.Min && v <= r.Max
}

// AppendSeqRange appends v to seqs, extending the final range
// when v directly follows it.
func AppendSeqRange(seqs []SeqRange, v uint32) []SeqRange {
	if len(seqs) > 0 && v > 0 {
		last := &seqs[len(seqs)-1]
		if last.Min > last.Max {
			last.Min, last.Max = last.Max, last.Min // normalize
		}
		if last.Max > 0 && last.Max == v-1 {
			last.Max++ // append v to last SeqRange
			return seqs
		}
		if last.Contains(v) {
			return seqs
		}
	}
	return append(seqs, SeqRange{Min: v, Max: v})
}

// FormatSeqs writes seqs in the RFC 3501 sequence-set form,
// "1,3:7,12:*".
func FormatSeqs(sb *strings.Builder, seqs []SeqRange) {
	for i, seq := range seqs {
		if i > 0 {
			sb.WriteByte(',')
		}
		if seq.Min == 0 && seq.Max == 0 {
			sb.WriteByte('*')
			continue
		}
		if seq.Min == seq.Max {
			sb.WriteString(strconv.FormatUint(uint64(seq.Min), 10))
			continue
		}
		if seq.Min == 0 {
			sb.WriteByte('*')
		} else {
			sb.WriteString(strconv.FormatUint(uint64(seq.Min), 10))
		}
		sb.WriteByte(':')
		if seq.Max == 0 {
			sb.WriteByte('*')
		} else {
			sb.WriteString(strconv.FormatUint(uint64(seq.Max), 10))
		}
	}
}

// ParseSeqs parses an RFC 3501 sequence-set.
//
// Each seq-range is normalized so that Min <= Max, with 0 standing
// for '*'. ParseSeqs is the strict inverse of FormatSeqs for
// normalized input.
func ParseSeqs(s string) ([]SeqRange, error) {
	if s == "" {
		return nil, errors.New("imap: empty sequence-set")
	}
	var seqs []SeqRange
	for _, part := range strings.Split(s, ",") {
		var r SeqRange
		min, rest, ok := strings.Cut(part, ":")
		v, err := parseSeqNumber(min)
		if err != nil {
			return nil, err
		}
		r.Min = v
		if ok {
			v, err := parseSeqNumber(rest)
			if err != nil {
				return nil, err
			}
			r.Max = v
			if r.Max < r.Min && r.Max != 0 {
				r.Min, r.Max = r.Max, r.Min // normalize
			}
		} else {
			r.Max = r.Min
		}
		seqs = append(seqs, r)
	}
	return seqs, nil
}

func parseSeqNumber(s string) (uint32, error) {
	if s == "*" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("imap: invalid seq-number %q", s)
	}
	if v == 0 {
		return 0, errors.New("imap: invalid seq-number: '0'")
	}
	return uint32(v), nil
}

// UniqueID is a message UID qualified by the UIDVALIDITY epoch
// it was assigned under.
//
// A UniqueID is valid iff ID != 0. Ordering is by ID within a
// single Validity.
type UniqueID struct {
	Validity uint32
	ID       uint32
}

// Valid reports whether the ID component is a legal IMAP UID.
func (u UniqueID) Valid() bool { return u.ID != 0 }

func (u UniqueID) String() string {
	return strconv.FormatUint(uint64(u.ID), 10)
}

// MailboxAccess is the access mode a SELECT or EXAMINE granted.
type MailboxAccess int

const (
	NoAccess MailboxAccess = iota
	ReadOnlyAccess
	ReadWriteAccess
)

func (a MailboxAccess) String() string {
	switch a {
	case ReadOnlyAccess:
		return "READ-ONLY"
	case ReadWriteAccess:
		return "READ-WRITE"
	default:
		return fmt.Sprintf("MailboxAccess(%d)", int(a))
	}
}

// ConnState is the protocol state of a client connection,
// per RFC 3501 section 3.
type ConnState int

const (
	DisconnectedState ConnState = iota
	ConnectingState
	NotAuthenticatedState
	AuthenticatedState
	SelectedState
	LogoutState
)

func (s ConnState) String() string {
	switch s {
	case DisconnectedState:
		return "disconnected"
	case ConnectingState:
		return "connecting"
	case NotAuthenticatedState:
		return "not-authenticated"
	case AuthenticatedState:
		return "authenticated"
	case SelectedState:
		return "selected"
	case LogoutState:
		return "logout"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}
