package imapclient

import (
	"context"
	"sort"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// QuotaData is the usage of one quota root (RFC 2087).
type QuotaData struct {
	Root      string
	Resources []imap.QuotaResource
}

// QuotaRootData names the quota roots governing a mailbox.
type QuotaRootData struct {
	Mailbox string
	Roots   []string
	Quotas  []*QuotaData
}

// GetQuota reads the resource usage and limits of a quota root.
func (c *Client) GetQuota(ctx context.Context, root string) (*QuotaData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if !c.Caps().SupportsQuota() {
		return nil, &imap.ErrNotSupported{Capability: "QUOTA"}
	}
	cmd, err := c.roundTrip(ctx, "GETQUOTA", func(enc *encoder) {
		enc.sp()
		enc.string(root)
	})
	if err != nil {
		return nil, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.QuotaResponse); ok {
			return &QuotaData{Root: r.Root, Resources: r.Resources}, nil
		}
	}
	return nil, imap.ProtocolErrorf("GETQUOTA completed without data")
}

// GetQuotaRoot reads the quota roots of a mailbox along with their
// current usage.
func (c *Client) GetQuotaRoot(ctx context.Context, mailbox string) (*QuotaRootData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if !c.Caps().SupportsQuota() {
		return nil, &imap.ErrNotSupported{Capability: "QUOTA"}
	}
	cmd, err := c.roundTrip(ctx, "GETQUOTAROOT", func(enc *encoder) {
		enc.sp()
		enc.mailbox(mailbox)
	})
	if err != nil {
		return nil, err
	}
	data := &QuotaRootData{Mailbox: mailbox}
	for _, resp := range cmd.responses {
		switch r := resp.(type) {
		case *imapwire.QuotaRootResponse:
			data.Roots = append(data.Roots, r.Roots...)
		case *imapwire.QuotaResponse:
			data.Quotas = append(data.Quotas, &QuotaData{Root: r.Root, Resources: r.Resources})
		}
	}
	return data, nil
}

// SetQuota replaces the limits of a quota root. A nil limits map
// removes all limits.
func (c *Client) SetQuota(ctx context.Context, root string, limits map[string]uint64) (*QuotaData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if !c.Caps().SupportsQuota() {
		return nil, &imap.ErrNotSupported{Capability: "QUOTA"}
	}
	names := make([]string, 0, len(limits))
	for name := range limits {
		names = append(names, name)
	}
	sort.Strings(names)
	cmd, err := c.roundTrip(ctx, "SETQUOTA", func(enc *encoder) {
		enc.sp()
		enc.string(root)
		enc.sp()
		enc.listOpen()
		for i, name := range names {
			if i > 0 {
				enc.sp()
			}
			enc.atom(name)
			enc.sp()
			enc.number(limits[name])
		}
		enc.listClose()
	})
	if err != nil {
		return nil, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.QuotaResponse); ok {
			return &QuotaData{Root: r.Root, Resources: r.Resources}, nil
		}
	}
	return &QuotaData{Root: root}, nil
}
