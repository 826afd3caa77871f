package imapclient

import (
	"context"
	"sort"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// MetadataOptions modifies GETMETADATA (RFC 5464 section 4.2).
type MetadataOptions struct {
	// MaxSize limits the size of returned values; longer values
	// are omitted and reported via [METADATA LONGENTRIES].
	MaxSize uint32

	// Depth fetches entries below the requested ones: 0, 1, or -1
	// for infinity.
	Depth int
}

// GetMetadata reads annotation entries of a mailbox, or of the
// server when mailbox is empty.
func (c *Client) GetMetadata(ctx context.Context, mailbox string, entries []string, opts *MetadataOptions) ([]imap.MetadataEntry, error) {
	if err := c.requireMetadata(); err != nil {
		return nil, err
	}
	cmd, err := c.roundTrip(ctx, "GETMETADATA", func(enc *encoder) {
		enc.sp()
		if opts != nil && (opts.MaxSize != 0 || opts.Depth != 0) {
			enc.listOpen()
			first := true
			if opts.MaxSize != 0 {
				enc.atom("MAXSIZE")
				enc.sp()
				enc.number32(opts.MaxSize)
				first = false
			}
			if opts.Depth != 0 {
				if !first {
					enc.sp()
				}
				enc.atom("DEPTH")
				enc.sp()
				if opts.Depth < 0 {
					enc.atom("infinity")
				} else {
					enc.number(uint64(opts.Depth))
				}
			}
			enc.listClose()
			enc.sp()
		}
		enc.mailbox(mailbox)
		enc.sp()
		if len(entries) == 1 {
			enc.string(entries[0])
			return
		}
		enc.listOpen()
		for i, entry := range entries {
			if i > 0 {
				enc.sp()
			}
			enc.string(entry)
		}
		enc.listClose()
	})
	if err != nil {
		return nil, err
	}
	var all []imap.MetadataEntry
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.MetadataResponse); ok {
			all = append(all, r.Entries...)
		}
	}
	return all, nil
}

// SetMetadata writes annotation entries. A nil value removes the
// entry.
func (c *Client) SetMetadata(ctx context.Context, mailbox string, entries map[string][]byte) error {
	if err := c.requireMetadata(); err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	_, err := c.roundTrip(ctx, "SETMETADATA", func(enc *encoder) {
		enc.sp()
		enc.mailbox(mailbox)
		enc.sp()
		enc.listOpen()
		for i, name := range names {
			if i > 0 {
				enc.sp()
			}
			enc.string(name)
			enc.sp()
			value := entries[name]
			if value == nil {
				enc.atom("NIL")
			} else {
				enc.string(string(value))
			}
		}
		enc.listClose()
	})
	return err
}

func (c *Client) requireMetadata() error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	if !c.Caps().SupportsMetadata() {
		return &imap.ErrNotSupported{Capability: "METADATA"}
	}
	return nil
}
