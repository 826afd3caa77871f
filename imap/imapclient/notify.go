package imapclient

import (
	"context"

	"sealed.ink/imap"
)

// NotifyGroup is one event group of a NOTIFY SET (RFC 5465).
type NotifyGroup struct {
	// Target selects the mailboxes: SELECTED, SELECTED-DELAYED,
	// PERSONAL, INBOXES, SUBSCRIBED, or MAILBOXES (with Mailboxes
	// naming them).
	Target    string
	Mailboxes []string

	// Events to deliver for the group: MessageNew, MessageExpunge,
	// FlagChange, MailboxName, SubscriptionChange, ... An empty
	// list sends NONE for the group.
	Events []string
}

// Notify subscribes to server-push updates for the given groups
// (RFC 5465). Updates arrive as regular untagged responses and fan
// out through the mailbox state and event stream. A nil groups
// slice sends NOTIFY NONE, turning pushes off.
func (c *Client) Notify(ctx context.Context, groups []NotifyGroup) error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	if !c.Caps().SupportsNotify() {
		return &imap.ErrNotSupported{Capability: "NOTIFY"}
	}
	_, err := c.roundTrip(ctx, "NOTIFY", func(enc *encoder) {
		enc.sp()
		if groups == nil {
			enc.atom("NONE")
			return
		}
		enc.atom("SET")
		for _, g := range groups {
			enc.sp()
			enc.listOpen()
			if len(g.Mailboxes) > 0 {
				enc.atom(g.Target)
				enc.sp()
				enc.listOpen()
				for i, name := range g.Mailboxes {
					if i > 0 {
						enc.sp()
					}
					enc.mailbox(name)
				}
				enc.listClose()
			} else {
				enc.atom(g.Target)
			}
			enc.sp()
			if len(g.Events) == 0 {
				enc.atom("NONE")
			} else {
				enc.listOpen()
				for i, ev := range g.Events {
					if i > 0 {
						enc.sp()
					}
					enc.atom(ev)
				}
				enc.listClose()
			}
			enc.listClose()
		}
	})
	return err
}

// MailboxStatusEvent carries an unsolicited STATUS pushed by the
// server for a non-selected mailbox (NOTIFY, or LIST-STATUS
// stragglers).
type MailboxStatusEvent struct {
	Status *StatusData
}

func (*MailboxStatusEvent) event() {}
