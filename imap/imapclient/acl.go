package imapclient

import (
	"context"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// ACLData is the access control list of a mailbox (RFC 4314).
type ACLData struct {
	Mailbox string
	Rights  []imap.RightsPair
}

// GetACL reads the full ACL of a mailbox.
func (c *Client) GetACL(ctx context.Context, mailbox string) (*ACLData, error) {
	if err := c.requireACL(); err != nil {
		return nil, err
	}
	cmd, err := c.roundTrip(ctx, "GETACL", func(enc *encoder) {
		enc.sp()
		enc.mailbox(mailbox)
	})
	if err != nil {
		return nil, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.ACLResponse); ok {
			return &ACLData{Mailbox: c.decodeMailbox(r.Mailbox), Rights: r.Rights}, nil
		}
	}
	return nil, imap.ProtocolErrorf("GETACL completed without data")
}

// SetACL grants (or with a +/- prefix modifies) rights for an
// identifier on a mailbox.
func (c *Client) SetACL(ctx context.Context, mailbox, identifier, rights string) error {
	if err := c.requireACL(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "SETACL", func(enc *encoder) {
		enc.sp()
		enc.mailbox(mailbox)
		enc.sp()
		enc.string(identifier)
		enc.sp()
		enc.string(rights)
	})
	return err
}

// DeleteACL removes an identifier's entry from a mailbox ACL.
func (c *Client) DeleteACL(ctx context.Context, mailbox, identifier string) error {
	if err := c.requireACL(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "DELETEACL", func(enc *encoder) {
		enc.sp()
		enc.mailbox(mailbox)
		enc.sp()
		enc.string(identifier)
	})
	return err
}

// MyRights reads the rights the current user holds on a mailbox.
func (c *Client) MyRights(ctx context.Context, mailbox string) (string, error) {
	if err := c.requireACL(); err != nil {
		return "", err
	}
	cmd, err := c.roundTrip(ctx, "MYRIGHTS", func(enc *encoder) {
		enc.sp()
		enc.mailbox(mailbox)
	})
	if err != nil {
		return "", err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.MyRightsResponse); ok {
			return r.Rights, nil
		}
	}
	return "", imap.ProtocolErrorf("MYRIGHTS completed without data")
}

// ListRightsData is the result of LISTRIGHTS: the rights always
// granted to an identifier and the sets that may be granted.
type ListRightsData struct {
	Mailbox    string
	Identifier string
	Required   string
	Optional   []string
}

// ListRights reads the grantable rights for an identifier.
func (c *Client) ListRights(ctx context.Context, mailbox, identifier string) (*ListRightsData, error) {
	if err := c.requireACL(); err != nil {
		return nil, err
	}
	cmd, err := c.roundTrip(ctx, "LISTRIGHTS", func(enc *encoder) {
		enc.sp()
		enc.mailbox(mailbox)
		enc.sp()
		enc.string(identifier)
	})
	if err != nil {
		return nil, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.ListRightsResponse); ok {
			return &ListRightsData{
				Mailbox:    c.decodeMailbox(r.Mailbox),
				Identifier: r.Identifier,
				Required:   r.Required,
				Optional:   r.Optional,
			}, nil
		}
	}
	return nil, imap.ProtocolErrorf("LISTRIGHTS completed without data")
}

func (c *Client) requireACL() error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	if !c.Caps().SupportsAcl() {
		return &imap.ErrNotSupported{Capability: "ACL"}
	}
	return nil
}
