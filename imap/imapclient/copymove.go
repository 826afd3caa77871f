package imapclient

import (
	"context"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// CopyData is the UIDPLUS result of a COPY or MOVE. Without
// UIDPLUS support all fields are zero.
type CopyData struct {
	UIDValidity uint32

	// SrcUIDs and DstUIDs are element-wise correspondent: the nth
	// UID of SrcUIDs was copied to the nth UID of DstUIDs.
	SrcUIDs imap.UIDSet
	DstUIDs imap.UIDSet
}

// Copy copies messages by sequence number into dest.
func (c *Client) Copy(ctx context.Context, seqs []imap.SeqRange, dest string) (*CopyData, error) {
	return c.copyMove(ctx, "COPY", seqs, dest)
}

// UIDCopy copies messages by UID into dest.
func (c *Client) UIDCopy(ctx context.Context, uids imap.UIDSet, dest string) (*CopyData, error) {
	return c.copyMove(ctx, "UID COPY", uids.Ranges, dest)
}

// Move moves messages by sequence number into dest (RFC 6851).
// The source copies are expunged atomically by the server.
func (c *Client) Move(ctx context.Context, seqs []imap.SeqRange, dest string) (*CopyData, error) {
	if !c.Caps().SupportsMove() {
		return nil, &imap.ErrNotSupported{Capability: "MOVE"}
	}
	return c.copyMove(ctx, "MOVE", seqs, dest)
}

// UIDMove moves messages by UID into dest.
func (c *Client) UIDMove(ctx context.Context, uids imap.UIDSet, dest string) (*CopyData, error) {
	if !c.Caps().SupportsMove() {
		return nil, &imap.ErrNotSupported{Capability: "MOVE"}
	}
	return c.copyMove(ctx, "UID MOVE", uids.Ranges, dest)
}

func (c *Client) copyMove(ctx context.Context, verb string, seqs []imap.SeqRange, dest string) (*CopyData, error) {
	if err := c.requireSelected(); err != nil {
		return nil, err
	}
	if len(seqs) == 0 {
		return &CopyData{}, nil
	}

	data := &CopyData{}
	for _, chunk := range splitSeqs(seqs, maxCommandArgLen) {
		chunk := chunk
		cmd, err := c.roundTrip(ctx, verb, func(enc *encoder) {
			enc.sp()
			enc.seqs(chunk)
			enc.sp()
			enc.mailbox(dest)
		})
		if err != nil {
			return nil, err
		}
		// COPYUID may arrive on the tagged OK (COPY) or on an
		// untagged OK preceding it (MOVE, RFC 6851).
		if cmd.status != nil && cmd.status.Code.Code == imap.CodeCopyUID {
			mergeCopyUID(data, cmd.status.Code)
		}
		for _, resp := range cmd.responses {
			if st, ok := resp.(*imapwire.StatusResponse); ok && st.Code.Code == imap.CodeCopyUID {
				mergeCopyUID(data, st.Code)
			}
		}
	}
	return data, nil
}

func mergeCopyUID(data *CopyData, code imap.CodeData) {
	data.UIDValidity = code.UIDValidity
	// Wire order is preserved for element-wise correspondence.
	data.SrcUIDs.Ranges = append(data.SrcUIDs.Ranges, code.SrcUIDs.Ranges...)
	data.DstUIDs.Ranges = append(data.DstUIDs.Ranges, code.UIDs.Ranges...)
}
