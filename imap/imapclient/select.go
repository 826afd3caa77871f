package imapclient

import (
	"context"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// QResyncParams is the cached state handed to a QRESYNC SELECT
// (RFC 7162 section 3.2.5). Callers persist these across sessions.
type QResyncParams struct {
	UIDValidity uint32
	ModSeq      uint64
	KnownUIDs   imap.UIDSet
}

// SelectOptions modifies SELECT/EXAMINE.
type SelectOptions struct {
	// ReadOnly issues EXAMINE instead of SELECT.
	ReadOnly bool

	// CondStore appends the CONDSTORE select parameter (RFC 7162).
	CondStore bool

	// QResync requests a fast resync against cached state. Requires
	// QRESYNC to have been enabled.
	QResync *QResyncParams
}

// SelectData is the state of the mailbox after selection.
type SelectData struct {
	Mailbox *Mailbox

	Access         imap.MailboxAccess
	Count          uint32
	Recent         uint32
	FirstUnseen    uint32
	UIDValidity    uint32
	UIDNext        uint32
	HighestModSeq  uint64
	Flags          imap.FlagSet
	PermanentFlags imap.FlagSet
}

// Select opens a mailbox. Any previously selected mailbox is
// implicitly closed, per RFC 3501.
func (c *Client) Select(ctx context.Context, name string, opts *SelectOptions) (*SelectData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	var o SelectOptions
	if opts != nil {
		o = *opts
	}
	if o.CondStore && !c.Caps().SupportsCondStore() {
		return nil, &imap.ErrNotSupported{Capability: "CONDSTORE"}
	}
	if o.QResync != nil {
		if !c.Caps().SupportsQResync() {
			return nil, &imap.ErrNotSupported{Capability: "QRESYNC"}
		}
		if !c.Enabled().SupportsQResync() {
			return nil, &imap.ErrNotSupported{Capability: "QRESYNC (not enabled)"}
		}
	}

	mbox := newMailbox(c, name)
	if o.QResync != nil {
		// Seed the sequence map with the cached UID set, in UID
		// order; VANISHED (EARLIER) prunes it before completion.
		mbox.seqToUID = append(mbox.seqToUID, o.QResync.KnownUIDs.Expand()...)
		mbox.uidValidity = o.QResync.UIDValidity
	}

	c.mu.Lock()
	old := c.mailbox
	c.mailbox = mbox
	c.mu.Unlock()
	if old != nil {
		old.closed()
	}

	verb := "SELECT"
	if o.ReadOnly {
		verb = "EXAMINE"
	}
	cmd, err := c.roundTrip(ctx, verb, func(enc *encoder) {
		enc.sp()
		enc.mailbox(name)
		if o.CondStore || o.QResync != nil {
			enc.sp()
			enc.listOpen()
			switch {
			case o.QResync != nil:
				enc.atom("QRESYNC")
				enc.sp()
				enc.listOpen()
				enc.number32(o.QResync.UIDValidity)
				enc.sp()
				enc.number(o.QResync.ModSeq)
				if !o.QResync.KnownUIDs.Empty() {
					enc.sp()
					enc.seqs(o.QResync.KnownUIDs.Ranges)
				}
				enc.listClose()
			default:
				enc.atom("CONDSTORE")
			}
			enc.listClose()
		}
	})
	if err != nil {
		c.mu.Lock()
		if c.mailbox == mbox {
			c.mailbox = nil
		}
		c.mu.Unlock()
		return nil, err
	}

	// Tagged OK carries [READ-ONLY|READ-WRITE].
	access := imap.ReadWriteAccess
	if o.ReadOnly {
		access = imap.ReadOnlyAccess
	}
	if cmd.status != nil {
		switch cmd.status.Code.Code {
		case imap.CodeReadOnly:
			access = imap.ReadOnlyAccess
		case imap.CodeReadWrite:
			access = imap.ReadWriteAccess
		}
	}

	mbox.mu.Lock()
	mbox.open = true
	mbox.access = access
	data := &SelectData{
		Mailbox:        mbox,
		Access:         access,
		Count:          mbox.count,
		Recent:         mbox.recent,
		FirstUnseen:    mbox.firstUnseen,
		UIDValidity:    mbox.uidValidity,
		UIDNext:        mbox.uidNext,
		HighestModSeq:  mbox.highestModSeq,
		Flags:          mbox.flags,
		PermanentFlags: mbox.permFlags,
	}
	mbox.mu.Unlock()

	c.mu.Lock()
	c.state = imap.SelectedState
	c.mu.Unlock()

	c.emit(&MailboxOpenedEvent{Mailbox: name, Access: access})
	return data, nil
}

// CloseMailbox sends CLOSE: deselect and silently expunge
// \Deleted messages.
func (c *Client) CloseMailbox(ctx context.Context) error {
	if err := c.requireSelected(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "CLOSE", nil)
	if err != nil {
		return err
	}
	c.deselected()
	return nil
}

// Unselect sends UNSELECT (RFC 3691): deselect without expunging.
func (c *Client) Unselect(ctx context.Context) error {
	if err := c.requireSelected(); err != nil {
		return err
	}
	if !c.Caps().SupportsUnselect() {
		return &imap.ErrNotSupported{Capability: "UNSELECT"}
	}
	_, err := c.roundTrip(ctx, "UNSELECT", nil)
	if err != nil {
		return err
	}
	c.deselected()
	return nil
}

func (c *Client) deselected() {
	c.mu.Lock()
	mbox := c.mailbox
	c.mailbox = nil
	if c.state == imap.SelectedState {
		c.state = imap.AuthenticatedState
	}
	c.mu.Unlock()
	if mbox != nil {
		mbox.closed()
	}
}

// Expunge permanently removes \Deleted messages. It reports the
// expunged sequence numbers in server order (each relative to the
// state after the previous removal, per RFC 3501).
func (c *Client) Expunge(ctx context.Context) ([]uint32, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	cmd, err := c.roundTrip(ctx, "EXPUNGE", nil)
	if err != nil {
		return nil, err
	}
	return expungedSeqs(cmd), nil
}

// UIDExpunge removes only \Deleted messages in uids (RFC 4315).
func (c *Client) UIDExpunge(ctx context.Context, uids imap.UIDSet) ([]uint32, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	if !c.Caps().SupportsUidPlus() {
		return nil, &imap.ErrNotSupported{Capability: "UIDPLUS"}
	}
	if uids.Empty() {
		return nil, nil
	}
	cmd, err := c.roundTrip(ctx, "UID EXPUNGE", func(enc *encoder) {
		enc.sp()
		enc.seqs(uids.Ranges)
	})
	if err != nil {
		return nil, err
	}
	return expungedSeqs(cmd), nil
}

func expungedSeqs(cmd *command) []uint32 {
	var seqs []uint32
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.ExpungeResponse); ok {
			seqs = append(seqs, r.Seq)
		}
	}
	return seqs
}
