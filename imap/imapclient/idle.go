package imapclient

import (
	"context"
	"time"

	"sealed.ink/imap"
)

// idleRestartInterval bounds one IDLE round. RFC 2177 lets servers
// drop idle clients after 30 minutes; re-issuing under 29 keeps
// the channel alive indefinitely.
const idleRestartInterval = 28 * time.Minute

// Idle holds the connection in IDLE (RFC 2177), delivering
// unsolicited updates through the mailbox state and event stream,
// until ctx is cancelled or the connection fails.
//
// Cancellation is graceful: the client writes DONE and awaits the
// tagged completion before returning ctx.Err().
//
// A watchdog re-issues IDLE before the server timeout, so Idle may
// run unbounded.
func (c *Client) Idle(ctx context.Context) error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	if !c.Caps().SupportsIdle() {
		return &imap.ErrNotSupported{Capability: "IDLE"}
	}
	for {
		again, err := c.idleRound(ctx, idleRestartInterval)
		if err != nil || !again {
			return err
		}
	}
}

// idleRound runs one IDLE command: enter, wait for cancellation,
// watchdog expiry or server termination, then exit with DONE.
// again reports whether the watchdog ended the round and a fresh
// IDLE should follow.
func (c *Client) idleRound(ctx context.Context, restart time.Duration) (again bool, err error) {
	cmd, err := c.beginCommand(ctx, "IDLE")
	if err != nil {
		return false, err
	}
	defer c.endCommand()

	cmd.wantCont.Store(true)
	enc := c.newEncoder(ctx, cmd)
	if err := enc.end(); err != nil {
		c.fatal(err)
		<-cmd.doneCh
		return false, cmd.err
	}

	// Await the '+' that opens the idle window.
	select {
	case <-cmd.contCh:
	case <-cmd.doneCh:
		// Rejected (NO) or the connection died.
		return false, cmd.err
	case <-ctx.Done():
		// No continuation yet; there is nothing graceful to write.
		c.fatal(ctx.Err())
		<-cmd.doneCh
		return false, ctx.Err()
	}
	cmd.wantCont.Store(false)

	timer := time.NewTimer(restart)
	defer timer.Stop()

	select {
	case <-cmd.doneCh:
		// Server ended the command on its own.
		return false, cmd.err

	case <-timer.C:
		if err := c.writeLine("DONE\r\n"); err != nil {
			c.fatal(err)
			<-cmd.doneCh
			return false, cmd.err
		}
		<-cmd.doneCh
		if cmd.err != nil {
			return false, cmd.err
		}
		return true, nil

	case <-ctx.Done():
		if err := c.writeLine("DONE\r\n"); err != nil {
			c.fatal(err)
			<-cmd.doneCh
			return false, cmd.err
		}
		<-cmd.doneCh
		if cmd.err != nil {
			return false, cmd.err
		}
		return false, ctx.Err()
	}
}
