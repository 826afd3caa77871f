package imapclient

import (
	"context"
	"io"
	"time"

	"sealed.ink/imap"
)

// AppendOptions carries the optional arguments of APPEND.
type AppendOptions struct {
	// Flags and Keywords to set on the stored message. \Recent is
	// not settable.
	Flags    imap.Flag
	Keywords []string

	// InternalDate forces the stored INTERNALDATE. Zero lets the
	// server use its reception time.
	InternalDate time.Time

	// Progress receives upload progress.
	Progress ProgressFunc
}

// AppendMessage is one message of a MULTIAPPEND.
type AppendMessage struct {
	Options AppendOptions

	// Body is the full RFC 5322 message. Size octets are read.
	Body io.Reader
	Size int64
}

// AppendData is the result of APPEND.
type AppendData struct {
	// UIDs carries the [APPENDUID] result (RFC 4315): the
	// UIDVALIDITY-qualified UIDs of the stored messages, in order.
	// Empty without UIDPLUS support.
	UIDValidity uint32
	UIDs        imap.UIDSet
}

// Append uploads one message to the named mailbox.
//
// Mailbox names (and message headers) outside US-ASCII require
// UTF8=ACCEPT; without it the operation reports ErrNotSupported
// before any I/O.
func (c *Client) Append(ctx context.Context, mailbox string, msg *AppendMessage) (*AppendData, error) {
	return c.append(ctx, mailbox, []*AppendMessage{msg})
}

// MultiAppend uploads several messages in one atomic command
// (RFC 3502). Servers either store all of them or none.
func (c *Client) MultiAppend(ctx context.Context, mailbox string, msgs []*AppendMessage) (*AppendData, error) {
	if len(msgs) > 1 && !c.Caps().SupportsMultiAppend() {
		return nil, &imap.ErrNotSupported{Capability: "MULTIAPPEND"}
	}
	return c.append(ctx, mailbox, msgs)
}

func (c *Client) append(ctx context.Context, mailbox string, msgs []*AppendMessage) (*AppendData, error) {
	if err := c.requireAuthenticated(); err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return &AppendData{}, nil
	}
	if !isASCII(mailbox) && !c.Enabled().SupportsUTF8Accept() {
		return nil, &imap.ErrNotSupported{Capability: "UTF8=ACCEPT"}
	}
	for _, msg := range msgs {
		if msg.Body == nil || msg.Size <= 0 {
			return nil, imap.ProtocolErrorf("APPEND requires a sized message body")
		}
		if msg.Options.Flags&^imap.SettableFlags != 0 {
			return nil, imap.ProtocolErrorf("APPEND of a server-maintained flag")
		}
	}

	cmd, err := c.beginCommand(ctx, "APPEND")
	if err != nil {
		return nil, err
	}
	defer c.endCommand()

	enc := c.newEncoder(ctx, cmd)
	enc.sp()
	enc.mailbox(mailbox)
	for _, msg := range msgs {
		o := &msg.Options
		if o.Flags != 0 || len(o.Keywords) > 0 {
			enc.sp()
			enc.listOpen()
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
			enc.listClose()
		}
		if !o.InternalDate.IsZero() {
			enc.sp()
			enc.date(imap.FormatDate(o.InternalDate))
		}
		enc.sp()
		enc.literal(msg.Body, msg.Size, o.Progress)
	}
	if err := enc.end(); err != nil {
		c.fatal(err)
		<-cmd.doneCh
		return nil, cmd.err
	}
	if err := c.waitCommand(ctx, cmd); err != nil {
		return nil, err
	}

	data := &AppendData{}
	if cmd.status != nil && cmd.status.Code.Code == imap.CodeAppendUID {
		data.UIDValidity = cmd.status.Code.UIDValidity
		data.UIDs.Ranges = append(data.UIDs.Ranges, cmd.status.Code.UIDs.Ranges...)
	}
	return data, nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
