package imapclient

import (
	"context"
	"strings"
	"time"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// SearchOp is one node of a search criteria tree.
//
// Two extra keys are defined that are not found in RFC 3501:
//
//   - AND: every element of Children must match. It is prettier
//     than the grammar's bare concatenation and lets the whole
//     search be a single SearchOp.
//
//   - SEQSET: a match against message sequence numbers. This is a
//     name for the implicit <sequence-set> grammar.
type SearchOp struct {
	Key string

	// Children is set when Key is one of: AND, OR, NOT.
	// For NOT, len(Children) == 1; for OR it is 2.
	Children []*SearchOp

	// Field is the header name when Key is HEADER.
	Field string

	// Value is set when Key is one of: BCC, BODY, CC, FROM, HEADER,
	// KEYWORD, UNKEYWORD, SUBJECT, TEXT, TO, X-GM-RAW.
	Value string

	// Num is set when Key is one of: LARGER, SMALLER, MODSEQ.
	Num uint64

	// Sequences is set when Key is one of: SEQSET, UID.
	Sequences []imap.SeqRange

	// Date is set when Key is one of: BEFORE, ON, SINCE,
	// SENTBEFORE, SENTON, SENTSINCE.
	Date time.Time
}

// And combines ops into a single conjunction.
func And(ops ...*SearchOp) *SearchOp {
	return &SearchOp{Key: "AND", Children: ops}
}

// Or matches either a or b.
func Or(a, b *SearchOp) *SearchOp {
	return &SearchOp{Key: "OR", Children: []*SearchOp{a, b}}
}

// Not inverts op.
func Not(op *SearchOp) *SearchOp {
	return &SearchOp{Key: "NOT", Children: []*SearchOp{op}}
}

func (op *SearchOp) encode(enc *encoder) {
	switch op.Key {
	case "AND":
		for i, child := range op.Children {
			if i > 0 {
				enc.sp()
			}
			if child.Key == "AND" {
				enc.listOpen()
				child.encode(enc)
				enc.listClose()
			} else {
				child.encode(enc)
			}
		}
	case "OR":
		enc.atom("OR")
		for _, child := range op.Children {
			enc.sp()
			if child.Key == "AND" {
				enc.listOpen()
				child.encode(enc)
				enc.listClose()
			} else {
				child.encode(enc)
			}
		}
	case "NOT":
		enc.atom("NOT")
		enc.sp()
		child := op.Children[0]
		if child.Key == "AND" {
			enc.listOpen()
			child.encode(enc)
			enc.listClose()
		} else {
			child.encode(enc)
		}
	case "SEQSET":
		enc.seqs(op.Sequences)
	case "UID":
		enc.atom("UID")
		enc.sp()
		enc.seqs(op.Sequences)
	case "HEADER":
		enc.atom("HEADER")
		enc.sp()
		enc.string(op.Field)
		enc.sp()
		enc.string(op.Value)
	case "BCC", "BODY", "CC", "FROM", "KEYWORD", "UNKEYWORD",
		"SUBJECT", "TEXT", "TO", "X-GM-RAW":
		enc.atom(op.Key)
		enc.sp()
		enc.string(op.Value)
	case "LARGER", "SMALLER", "MODSEQ":
		enc.atom(op.Key)
		enc.sp()
		enc.number(op.Num)
	case "BEFORE", "ON", "SINCE", "SENTBEFORE", "SENTON", "SENTSINCE":
		enc.atom(op.Key)
		enc.sp()
		enc.date(imap.FormatSearchDate(op.Date))
	default:
		// Argument-free keys: ALL, ANSWERED, DELETED, DRAFT,
		// FLAGGED, NEW, OLD, RECENT, SEEN, UNANSWERED, UNDELETED,
		// UNDRAFT, UNFLAGGED, UNSEEN.
		enc.atom(op.Key)
	}
}

// SearchOptions modifies SEARCH.
type SearchOptions struct {
	// Charset names the charset of criteria strings. Empty omits
	// the CHARSET argument (the server assumes US-ASCII/UTF-8).
	Charset string

	// Return requests an ESEARCH result (RFC 4731): any of MIN,
	// MAX, ALL, COUNT.
	Return []string
}

// SearchData is the result of SEARCH, ESEARCH or SORT.
type SearchData struct {
	// UID reports whether the IDs are UIDs.
	UID bool

	// IDs is the flat result list (SEARCH, SORT) in server order.
	IDs []uint32

	// All is the compressed result set (ESEARCH RETURN (ALL)).
	All imap.UIDSet

	HasMin, HasMax, HasCount bool
	Min, Max, Count          uint32

	// ModSeq is the highest mod-sequence of the matches
	// (CONDSTORE).
	ModSeq uint64
}

// AllIDs lists the result regardless of which form the server
// chose.
func (d *SearchData) AllIDs() []uint32 {
	if len(d.IDs) > 0 {
		return d.IDs
	}
	return d.All.Expand()
}

// Search finds messages by sequence number.
func (c *Client) Search(ctx context.Context, criteria *SearchOp, opts *SearchOptions) (*SearchData, error) {
	return c.search(ctx, "SEARCH", false, nil, "", criteria, opts)
}

// UIDSearch finds messages by UID.
func (c *Client) UIDSearch(ctx context.Context, criteria *SearchOp, opts *SearchOptions) (*SearchData, error) {
	return c.search(ctx, "UID SEARCH", true, nil, "", criteria, opts)
}

// SortKey orders a SORT result.
type SortKey struct {
	// Field is one of ARRIVAL, CC, DATE, FROM, SIZE, SUBJECT, TO,
	// DISPLAYFROM, DISPLAYTO.
	Field   string
	Reverse bool
}

// Sort finds and orders messages (RFC 5256).
func (c *Client) Sort(ctx context.Context, keys []SortKey, criteria *SearchOp, opts *SearchOptions) (*SearchData, error) {
	if !c.Caps().SupportsSort() {
		return nil, &imap.ErrNotSupported{Capability: "SORT"}
	}
	return c.search(ctx, "SORT", false, keys, "", criteria, opts)
}

// UIDSort is the UID variant of Sort.
func (c *Client) UIDSort(ctx context.Context, keys []SortKey, criteria *SearchOp, opts *SearchOptions) (*SearchData, error) {
	if !c.Caps().SupportsSort() {
		return nil, &imap.ErrNotSupported{Capability: "SORT"}
	}
	return c.search(ctx, "UID SORT", true, keys, "", criteria, opts)
}

func (c *Client) search(ctx context.Context, verb string, uid bool, sortKeys []SortKey, threadAlg string, criteria *SearchOp, opts *SearchOptions) (*SearchData, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	if len(o.Return) > 0 && !c.Caps().SupportsESearch() {
		return nil, &imap.ErrNotSupported{Capability: "ESEARCH"}
	}
	if criteria == nil {
		criteria = &SearchOp{Key: "ALL"}
	}

	cmd, err := c.roundTrip(ctx, verb, func(enc *encoder) {
		if len(o.Return) > 0 {
			enc.sp()
			enc.atom("RETURN")
			enc.sp()
			enc.listOpen()
			for i, r := range o.Return {
				if i > 0 {
					enc.sp()
				}
				enc.atom(strings.ToUpper(r))
			}
			enc.listClose()
		}
		if len(sortKeys) > 0 {
			enc.sp()
			enc.listOpen()
			for i, k := range sortKeys {
				if i > 0 {
					enc.sp()
				}
				if k.Reverse {
					enc.atom("REVERSE")
					enc.sp()
				}
				enc.atom(strings.ToUpper(k.Field))
			}
			enc.listClose()
		}
		if threadAlg != "" {
			enc.sp()
			enc.atom(threadAlg)
		}
		if len(sortKeys) > 0 || threadAlg != "" {
			// SORT and THREAD require an explicit charset.
			enc.sp()
			if o.Charset != "" {
				enc.atom(o.Charset)
			} else {
				enc.atom("UTF-8")
			}
		} else if o.Charset != "" {
			enc.sp()
			enc.atom("CHARSET")
			enc.sp()
			enc.atom(o.Charset)
		}
		enc.sp()
		criteria.encode(enc)
	})
	if err != nil {
		return nil, err
	}

	data := &SearchData{UID: uid}
	for _, resp := range cmd.responses {
		switch r := resp.(type) {
		case *imapwire.SearchResponse:
			data.IDs = append(data.IDs, r.IDs...)
			if r.ModSeq != 0 {
				data.ModSeq = r.ModSeq
			}
		case *imapwire.ESearchResponse:
			if r.Tag != "" && r.Tag != cmd.tag {
				continue
			}
			data.UID = r.UID || uid
			if r.HasAll {
				data.All.AddSet(r.All)
			}
			if r.HasMin {
				data.Min, data.HasMin = r.Min, true
			}
			if r.HasMax {
				data.Max, data.HasMax = r.Max, true
			}
			if r.HasCount {
				data.Count, data.HasCount = r.Count, true
			}
			if r.ModSeq != 0 {
				data.ModSeq = r.ModSeq
			}
		}
	}
	return data, nil
}

// ThreadData is one THREAD result tree.
type ThreadData struct {
	Threads []*imapwire.Thread
}

// Thread groups messages into conversation trees (RFC 5256).
// algorithm is REFERENCES or ORDEREDSUBJECT.
func (c *Client) Thread(ctx context.Context, algorithm string, criteria *SearchOp, opts *SearchOptions) (*ThreadData, error) {
	return c.thread(ctx, "THREAD", algorithm, criteria, opts)
}

// UIDThread is the UID variant of Thread.
func (c *Client) UIDThread(ctx context.Context, algorithm string, criteria *SearchOp, opts *SearchOptions) (*ThreadData, error) {
	return c.thread(ctx, "UID THREAD", algorithm, criteria, opts)
}

func (c *Client) thread(ctx context.Context, verb, algorithm string, criteria *SearchOp, opts *SearchOptions) (*ThreadData, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	algorithm = strings.ToUpper(algorithm)
	if !c.Caps().Has("THREAD=" + algorithm) {
		return nil, &imap.ErrNotSupported{Capability: "THREAD=" + algorithm}
	}
	if criteria == nil {
		criteria = &SearchOp{Key: "ALL"}
	}
	var o SearchOptions
	if opts != nil {
		o = *opts
	}
	charset := o.Charset
	if charset == "" {
		charset = "UTF-8"
	}

	cmd, err := c.roundTrip(ctx, verb, func(enc *encoder) {
		enc.sp()
		enc.atom(algorithm)
		enc.sp()
		enc.atom(charset)
		enc.sp()
		criteria.encode(enc)
	})
	if err != nil {
		return nil, err
	}
	data := &ThreadData{}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.ThreadResponse); ok {
			data.Threads = append(data.Threads, r.Threads...)
		}
	}
	return data, nil
}
