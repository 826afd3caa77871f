package imapclient

import (
	"context"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// StoreMode selects the flag mutation of a STORE.
type StoreMode int

const (
	StoreReplace StoreMode = iota //  FLAGS
	StoreAdd                      // +FLAGS
	StoreRemove                   // -FLAGS
)

func (mode StoreMode) item(suffix string) string {
	switch mode {
	case StoreAdd:
		return "+" + suffix
	case StoreRemove:
		return "-" + suffix
	default:
		return suffix
	}
}

// StoreOptions describes a flag STORE.
type StoreOptions struct {
	Mode StoreMode

	// Flags and Keywords are the system bits and keyword atoms to
	// apply. Only the settable system flags may appear; \Recent is
	// server-maintained.
	Flags    imap.Flag
	Keywords []string

	// Silent suppresses the untagged FETCH echoes (.SILENT).
	Silent bool

	// UnchangedSince restricts the store to messages whose MODSEQ
	// is at or below the value (CONDSTORE). Messages that failed
	// the check come back in StoreData.Modified.
	UnchangedSince uint64
}

// StoreData is the result of a STORE.
type StoreData struct {
	// Updated carries the untagged FETCH echoes (absent with
	// .SILENT).
	Updated []*MessageData

	// Modified is the set (UIDs for UID STORE, sequence numbers
	// otherwise) that was NOT updated due to UNCHANGEDSINCE.
	Modified imap.UIDSet
}

// Store mutates flags by sequence number.
func (c *Client) Store(ctx context.Context, seqs []imap.SeqRange, opts *StoreOptions) (*StoreData, error) {
	return c.store(ctx, false, seqs, opts, "FLAGS", nil)
}

// UIDStore mutates flags by UID.
func (c *Client) UIDStore(ctx context.Context, uids imap.UIDSet, opts *StoreOptions) (*StoreData, error) {
	return c.store(ctx, true, uids.Ranges, opts, "FLAGS", nil)
}

// StoreLabels mutates Gmail labels (X-GM-LABELS) by sequence
// number.
func (c *Client) StoreLabels(ctx context.Context, seqs []imap.SeqRange, mode StoreMode, labels []string, silent bool) (*StoreData, error) {
	if !c.Caps().SupportsGMailExt() {
		return nil, &imap.ErrNotSupported{Capability: "X-GM-EXT-1"}
	}
	opts := &StoreOptions{Mode: mode, Silent: silent}
	return c.store(ctx, false, seqs, opts, "X-GM-LABELS", labels)
}

// UIDStoreLabels mutates Gmail labels by UID.
func (c *Client) UIDStoreLabels(ctx context.Context, uids imap.UIDSet, mode StoreMode, labels []string, silent bool) (*StoreData, error) {
	if !c.Caps().SupportsGMailExt() {
		return nil, &imap.ErrNotSupported{Capability: "X-GM-EXT-1"}
	}
	opts := &StoreOptions{Mode: mode, Silent: silent}
	return c.store(ctx, true, uids.Ranges, opts, "X-GM-LABELS", labels)
}

func (c *Client) store(ctx context.Context, uid bool, seqs []imap.SeqRange, opts *StoreOptions, itemName string, labels []string) (*StoreData, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	var o StoreOptions
	if opts != nil {
		o = *opts
	}
	if o.Flags&^imap.SettableFlags != 0 {
		return nil, imap.ProtocolErrorf("STORE of a server-maintained flag")
	}
	if o.UnchangedSince != 0 && !c.Caps().SupportsCondStore() {
		return nil, &imap.ErrNotSupported{Capability: "CONDSTORE"}
	}
	if len(seqs) == 0 {
		return &StoreData{}, nil
	}

	verb := "STORE"
	if uid {
		verb = "UID STORE"
	}
	item := o.Mode.item(itemName)
	if o.Silent {
		item += ".SILENT"
	}

	data := &StoreData{}
	for _, chunk := range splitSeqs(seqs, maxCommandArgLen) {
		chunk := chunk
		cmd, err := c.roundTrip(ctx, verb, func(enc *encoder) {
			enc.sp()
			enc.seqs(chunk)
			if o.UnchangedSince != 0 {
				enc.sp()
				enc.listOpen()
				enc.atom("UNCHANGEDSINCE")
				enc.sp()
				enc.number(o.UnchangedSince)
				enc.listClose()
			}
			enc.sp()
			enc.atom(item)
			enc.sp()
			enc.listOpen()
			if labels != nil {
				for i, label := range labels {
					if i > 0 {
						enc.sp()
					}
					enc.string(label)
				}
			} else {
				first := true
				for _, f := range []imap.Flag{
					imap.FlagAnswered, imap.FlagDeleted, imap.FlagDraft,
					imap.FlagFlagged, imap.FlagSeen,
				} {
					if o.Flags&f == 0 {
						continue
					}
					if !first {
						enc.sp()
					}
					first = false
					enc.raw(f.String())
				}
				for _, kw := range o.Keywords {
					if !first {
						enc.sp()
					}
					first = false
					enc.atom(kw)
				}
			}
			enc.listClose()
		})
		if err != nil {
			// MODIFIED can accompany a NO as well; surface it.
			if cmd != nil && cmd.status != nil && cmd.status.Code.Code == imap.CodeModified {
				data.Modified.AddSet(cmd.status.Code.Modified)
			}
			return data, err
		}
		if cmd.status != nil && cmd.status.Code.Code == imap.CodeModified {
			data.Modified.AddSet(cmd.status.Code.Modified)
		}
		for _, resp := range cmd.responses {
			if r, ok := resp.(*imapwire.FetchResponse); ok {
				data.Updated = append(data.Updated, newMessageData(c, r))
			}
		}
	}
	return data, nil
}
