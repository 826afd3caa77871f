package imapclient

import (
	"context"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
	"sealed.ink/imap/utf7mod"
)

// ListOptions carries the LIST-EXTENDED select and return options
// (RFC 5258) plus LIST-STATUS (RFC 5819).
type ListOptions struct {
	SelectSubscribed     bool
	SelectRemote         bool
	SelectRecursiveMatch bool
	SelectSpecialUse     bool

	ReturnSubscribed bool
	ReturnChildren   bool
	ReturnSpecialUse bool

	// ReturnStatus requests STATUS items inline (LIST-STATUS).
	ReturnStatus []string
}

func (o *ListOptions) selectOptions() []string {
	var opts []string
	if o.SelectSubscribed {
		opts = append(opts, "SUBSCRIBED")
	}
	if o.SelectRemote {
		opts = append(opts, "REMOTE")
	}
	if o.SelectRecursiveMatch {
		opts = append(opts, "RECURSIVEMATCH")
	}
	if o.SelectSpecialUse {
		opts = append(opts, "SPECIAL-USE")
	}
	return opts
}

func (o *ListOptions) returnOptions() []string {
	var opts []string
	if o.ReturnSubscribed {
		opts = append(opts, "SUBSCRIBED")
	}
	if o.ReturnChildren {
		opts = append(opts, "CHILDREN")
	}
	if o.ReturnSpecialUse {
		opts = append(opts, "SPECIAL-USE")
	}
	return opts
}

// ListData is one LIST/LSUB/XLIST row.
type ListData struct {
	Attrs   imap.MailboxAttr
	Delim   byte // 0 when the mailbox is flat
	Mailbox string

	// ChildInfo carries LIST-EXTENDED extended data names.
	ChildInfo []string

	// Status is set when LIST-STATUS was requested.
	Status *StatusData
}

// List lists mailboxes matching pattern under ref.
func (c *Client) List(ctx context.Context, ref, pattern string, opts *ListOptions) ([]*ListData, error) {
	return c.list(ctx, "LIST", ref, pattern, opts)
}

// LSub lists subscribed mailboxes (RFC 3501 LSUB).
func (c *Client) LSub(ctx context.Context, ref, pattern string) ([]*ListData, error) {
	return c.list(ctx, "LSUB", ref, pattern, nil)
}

// XList is the pre-SPECIAL-USE Gmail variant of LIST.
func (c *Client) XList(ctx context.Context, ref, pattern string) ([]*ListData, error) {
	if !c.Caps().SupportsXList() {
		return nil, &imap.ErrNotSupported{Capability: "XLIST"}
	}
	return c.list(ctx, "XLIST", ref, pattern, nil)
}

func (c *Client) list(ctx context.Context, verb, ref, pattern string, opts *ListOptions) ([]*ListData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	var o ListOptions
	if opts != nil {
		o = *opts
	}
	if sel := o.selectOptions(); len(sel) > 0 || len(o.ReturnStatus) > 0 {
		if !c.Caps().SupportsListExtended() {
			return nil, &imap.ErrNotSupported{Capability: "LIST-EXTENDED"}
		}
	}
	if len(o.ReturnStatus) > 0 && !c.Caps().SupportsListStatus() {
		return nil, &imap.ErrNotSupported{Capability: "LIST-STATUS"}
	}

	cmd, err := c.roundTrip(ctx, verb, func(enc *encoder) {
		if sel := o.selectOptions(); len(sel) > 0 {
			enc.sp()
			enc.listOpen()
			for i, s := range sel {
				if i > 0 {
					enc.sp()
				}
				enc.atom(s)
			}
			enc.listClose()
		}
		enc.sp()
		enc.listMailbox(ref)
		enc.sp()
		enc.listMailbox(pattern)
		ret := o.returnOptions()
		if len(ret) > 0 || len(o.ReturnStatus) > 0 {
			enc.sp()
			enc.atom("RETURN")
			enc.sp()
			enc.listOpen()
			for i, s := range ret {
				if i > 0 {
					enc.sp()
				}
				enc.atom(s)
			}
			if len(o.ReturnStatus) > 0 {
				if len(ret) > 0 {
					enc.sp()
				}
				enc.atom("STATUS")
				enc.sp()
				enc.listOpen()
				for i, item := range o.ReturnStatus {
					if i > 0 {
						enc.sp()
					}
					enc.atom(item)
				}
				enc.listClose()
			}
			enc.listClose()
		}
	})
	if err != nil {
		return nil, err
	}

	var list []*ListData
	byName := make(map[string]*ListData)
	for _, resp := range cmd.responses {
		switch r := resp.(type) {
		case *imapwire.ListResponse:
			ld := &ListData{
				Attrs:     r.Attrs,
				Delim:     r.Delim,
				Mailbox:   c.decodeMailbox(r.Mailbox),
				ChildInfo: r.ChildInfo,
			}
			list = append(list, ld)
			byName[r.Mailbox] = ld
		case *imapwire.MailboxStatusResponse:
			if ld := byName[r.Mailbox]; ld != nil {
				ld.Status = statusData(c, r)
			}
		}
	}
	return list, nil
}

// decodeMailbox converts a wire-form name to UTF-8. Undecodable
// names are reported verbatim; a listing must not fail over one
// noncompliant entry.
func (c *Client) decodeMailbox(name string) string {
	c.mu.Lock()
	utf8ok := c.enabled.SupportsUTF8Accept()
	c.mu.Unlock()
	if utf8ok {
		return name
	}
	dec, err := utf7mod.Decode(name)
	if err != nil {
		return name
	}
	return dec
}

// Create makes a mailbox. specialUse, when non-empty, carries
// RFC 6154 CREATE attributes such as `\Archive`.
func (c *Client) Create(ctx context.Context, name string, specialUse ...string) error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "CREATE", func(enc *encoder) {
		enc.sp()
		enc.mailbox(name)
		if len(specialUse) > 0 {
			enc.sp()
			enc.listOpen()
			enc.atom("USE")
			enc.sp()
			enc.listOpen()
			for i, use := range specialUse {
				if i > 0 {
					enc.sp()
				}
				enc.atom(use)
			}
			enc.listClose()
			enc.listClose()
		}
	})
	return err
}

// Delete removes a mailbox.
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "DELETE", func(enc *encoder) {
		enc.sp()
		enc.mailbox(name)
	})
	if err != nil {
		return err
	}
	c.emit(&MailboxDeletedEvent{Mailbox: name})
	return nil
}

// Rename renames a mailbox. Children move with it per RFC 3501;
// the rename event lets callers update any cached descendants.
func (c *Client) Rename(ctx context.Context, oldName, newName string) error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "RENAME", func(enc *encoder) {
		enc.sp()
		enc.mailbox(oldName)
		enc.sp()
		enc.mailbox(newName)
	})
	if err != nil {
		return err
	}
	c.emit(&MailboxRenamedEvent{OldName: oldName, NewName: newName})
	return nil
}

// Subscribe adds a mailbox to the subscription list.
func (c *Client) Subscribe(ctx context.Context, name string) error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "SUBSCRIBE", func(enc *encoder) {
		enc.sp()
		enc.mailbox(name)
	})
	if err != nil {
		return err
	}
	c.emit(&MailboxSubscribedEvent{Mailbox: name, Subscribed: true})
	return nil
}

// Unsubscribe removes a mailbox from the subscription list.
func (c *Client) Unsubscribe(ctx context.Context, name string) error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "UNSUBSCRIBE", func(enc *encoder) {
		enc.sp()
		enc.mailbox(name)
	})
	if err != nil {
		return err
	}
	c.emit(&MailboxSubscribedEvent{Mailbox: name, Subscribed: false})
	return nil
}

// StatusData is the result of a STATUS command.
type StatusData struct {
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

func statusData(c *Client, r *imapwire.MailboxStatusResponse) *StatusData {
	return &StatusData{
		Mailbox:       c.decodeMailbox(r.Mailbox),
		Messages:      r.Messages,
		Recent:        r.Recent,
		UIDNext:       r.UIDNext,
		UIDValidity:   r.UIDValidity,
		Unseen:        r.Unseen,
		Size:          r.Size,
		HighestModSeq: r.HighestModSeq,
		MailboxID:     r.MailboxID,
		Items:         r.Items,
	}
}

// Status queries mailbox attributes without selecting it. Default
// items are MESSAGES, RECENT, UIDNEXT, UIDVALIDITY and UNSEEN.
func (c *Client) Status(ctx context.Context, name string, items ...string) (*StatusData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		items = []string{"MESSAGES", "RECENT", "UIDNEXT", "UIDVALIDITY", "UNSEEN"}
	}
	cmd, err := c.roundTrip(ctx, "STATUS", func(enc *encoder) {
		enc.sp()
		enc.mailbox(name)
		enc.sp()
		enc.listOpen()
		for i, item := range items {
			if i > 0 {
				enc.sp()
			}
			enc.atom(item)
		}
		enc.listClose()
	})
	if err != nil {
		return nil, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.MailboxStatusResponse); ok {
			return statusData(c, r), nil
		}
	}
	return nil, imap.ProtocolErrorf("STATUS completed without data")
}

// NamespaceData is the result of NAMESPACE (RFC 2342).
type NamespaceData struct {
	Personal []imap.Namespace
	Other    []imap.Namespace
	Shared   []imap.Namespace
}

// Namespace queries the server's namespace layout.
func (c *Client) Namespace(ctx context.Context) (*NamespaceData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if !c.Caps().SupportsNamespace() {
		return nil, &imap.ErrNotSupported{Capability: "NAMESPACE"}
	}
	cmd, err := c.roundTrip(ctx, "NAMESPACE", nil)
	if err != nil {
		return nil, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.NamespaceResponse); ok {
			return &NamespaceData{
				Personal: r.Personal,
				Other:    r.Other,
				Shared:   r.Shared,
			}, nil
		}
	}
	return nil, imap.ProtocolErrorf("NAMESPACE completed without data")
}
