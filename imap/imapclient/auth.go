package imapclient

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"sort"

	"github.com/emersion/go-sasl"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// Capability asks the server for its capability list and updates
// the cached set.
func (c *Client) Capability(ctx context.Context) (imap.Capabilities, error) {
	if c.State() == imap.DisconnectedState {
		return imap.Capabilities{}, imap.ErrNotConnected
	}
	cmd, err := c.roundTrip(ctx, "CAPABILITY", nil)
	if err != nil {
		return imap.Capabilities{}, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.CapabilityResponse); ok {
			return r.Caps, nil
		}
	}
	return c.Caps(), nil
}

// Noop sends NOOP. Servers push pending unsolicited updates in the
// window it opens.
func (c *Client) Noop(ctx context.Context) error {
	if c.State() == imap.DisconnectedState {
		return imap.ErrNotConnected
	}
	_, err := c.roundTrip(ctx, "NOOP", nil)
	return err
}

// Check sends CHECK, requesting a mailbox checkpoint.
func (c *Client) Check(ctx context.Context) error {
	if err := c.requireSelected(); err != nil {
		return err
	}
	_, err := c.roundTrip(ctx, "CHECK", nil)
	return err
}

// Logout ends the session cleanly. The connection is closed when
// Logout returns.
func (c *Client) Logout(ctx context.Context) error {
	if c.State() == imap.DisconnectedState {
		return imap.ErrNotConnected
	}
	c.mu.Lock()
	c.logoutOK = true
	c.state = imap.LogoutState
	c.mu.Unlock()

	_, err := c.roundTrip(ctx, "LOGOUT", nil)
	c.fatal(ErrClosed)
	if err == ErrClosed {
		err = nil
	}
	return err
}

// Login authenticates with the LOGIN command.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if c.State() == imap.DisconnectedState {
		return imap.ErrNotConnected
	}
	if c.State() != imap.NotAuthenticatedState {
		return imap.ProtocolErrorf("LOGIN in %s state", c.State())
	}
	_, err := c.roundTrip(ctx, "LOGIN", func(enc *encoder) {
		enc.sp()
		enc.string(username)
		enc.sp()
		enc.string(password)
	})
	if err != nil {
		return err
	}
	c.authenticated()
	return nil
}

// Authenticate runs a SASL exchange (RFC 3501 section 6.2.2 with
// the RFC 4959 initial-response extension).
func (c *Client) Authenticate(ctx context.Context, mech sasl.Client) error {
	if c.State() == imap.DisconnectedState {
		return imap.ErrNotConnected
	}
	if c.State() != imap.NotAuthenticatedState {
		return imap.ProtocolErrorf("AUTHENTICATE in %s state", c.State())
	}

	mechName, ir, err := mech.Start()
	if err != nil {
		return err
	}

	cmd, err := c.beginCommand(ctx, "AUTHENTICATE")
	if err != nil {
		return err
	}
	defer c.endCommand()

	sendIR := ir != nil && c.Caps().SupportsSASLIR()
	cmd.wantCont.Store(true)

	enc := c.newEncoder(ctx, cmd)
	enc.sp()
	enc.atom(mechName)
	if sendIR {
		enc.sp()
		if len(ir) == 0 {
			enc.raw("=")
		} else {
			enc.raw(base64.StdEncoding.EncodeToString(ir))
		}
	}
	if err := enc.end(); err != nil {
		c.fatal(err)
		<-cmd.doneCh
		return cmd.err
	}

	// Challenge loop. Each '+' carries a base64 challenge; the
	// mechanism produces the next client response.
	for {
		select {
		case <-cmd.doneCh:
			if cmd.err != nil {
				return cmd.err
			}
			c.authenticated()
			return nil

		case text := <-cmd.contCh:
			var chal []byte
			if text != "" {
				chal, err = base64.StdEncoding.DecodeString(text)
				if err != nil {
					c.fatal(imap.ProtocolErrorf("bad SASL challenge: %v", err))
					<-cmd.doneCh
					return cmd.err
				}
			}
			var resp []byte
			if !sendIR && ir != nil {
				// Server ignored SASL-IR; replay the initial
				// response on the first empty challenge.
				resp, ir = ir, nil
			} else {
				resp, err = mech.Next(chal)
				if err != nil {
					// Abort the exchange per RFC 3501: a lone "*".
					c.writeLine("*\r\n")
					<-cmd.doneCh
					if cmd.err != nil {
						return cmd.err
					}
					return err
				}
			}
			if err := c.writeLine(base64.StdEncoding.EncodeToString(resp) + "\r\n"); err != nil {
				c.fatal(err)
				<-cmd.doneCh
				return cmd.err
			}

		case <-ctx.Done():
			c.fatal(ctx.Err())
			<-cmd.doneCh
			return ctx.Err()
		}
	}
}

func (c *Client) writeLine(line string) error {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	if _, err := c.bw.WriteString(line); err != nil {
		return err
	}
	return c.flush()
}

func (c *Client) authenticated() {
	c.mu.Lock()
	if c.state == imap.NotAuthenticatedState {
		c.state = imap.AuthenticatedState
	}
	c.mu.Unlock()
	c.emit(&AuthenticatedEvent{})
}

// StartTLS upgrades the connection (RFC 3501 section 6.2.1) and
// refetches capabilities, which the upgrade invalidates.
func (c *Client) StartTLS(ctx context.Context, config *tls.Config) error {
	if c.State() == imap.DisconnectedState {
		return imap.ErrNotConnected
	}
	if c.State() != imap.NotAuthenticatedState {
		return imap.ProtocolErrorf("STARTTLS in %s state", c.State())
	}
	if !c.Caps().SupportsStartTLS() {
		return &imap.ErrNotSupported{Capability: "STARTTLS"}
	}
	if config == nil {
		config = c.opts.TLSConfig
	}

	cmd, err := c.beginCommand(ctx, "STARTTLS")
	if err != nil {
		return err
	}
	defer c.endCommand()

	cmd.barrier = make(chan struct{})
	released := false
	release := func() {
		if !released {
			released = true
			close(cmd.barrier)
		}
	}
	defer release()

	enc := c.newEncoder(ctx, cmd)
	if err := enc.end(); err != nil {
		c.fatal(err)
		<-cmd.doneCh
		return cmd.err
	}
	if err := c.waitCommand(ctx, cmd); err != nil {
		return err
	}

	// The reader is parked on the barrier; swap in TLS underneath
	// it, handshake, then release.
	c.startTLSConn(config)
	tlsConn := c.netConn.(*tls.Conn)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		release()
		c.fatal(err)
		return err
	}
	release()

	// Capabilities from before the upgrade are untrusted.
	c.mu.Lock()
	c.caps = imap.Capabilities{}
	c.mu.Unlock()
	_, err = c.Capability(ctx)
	return err
}

// Compress turns on COMPRESS=DEFLATE (RFC 4978). It must be issued
// while no other command is in flight.
func (c *Client) Compress(ctx context.Context) error {
	if c.State() == imap.DisconnectedState {
		return imap.ErrNotConnected
	}
	if !c.Caps().SupportsCompress() {
		return &imap.ErrNotSupported{Capability: "COMPRESS=DEFLATE"}
	}

	cmd, err := c.beginCommand(ctx, "COMPRESS")
	if err != nil {
		return err
	}
	defer c.endCommand()

	cmd.barrier = make(chan struct{})
	released := false
	release := func() {
		if !released {
			released = true
			close(cmd.barrier)
		}
	}
	defer release()

	enc := c.newEncoder(ctx, cmd)
	enc.sp()
	enc.atom("DEFLATE")
	if err := enc.end(); err != nil {
		c.fatal(err)
		<-cmd.doneCh
		return cmd.err
	}
	if err := c.waitCommand(ctx, cmd); err != nil {
		return err
	}

	if err := c.startCompress(); err != nil {
		release()
		c.fatal(err)
		return err
	}
	release()
	return nil
}

// Enable turns on extensions (RFC 5161) and reports which the
// server enabled.
func (c *Client) Enable(ctx context.Context, caps ...string) (imap.Capabilities, error) {
	if err := c.requireAuthenticated(); err != nil {
		return imap.Capabilities{}, err
	}
	if !c.Caps().SupportsEnable() {
		return imap.Capabilities{}, &imap.ErrNotSupported{Capability: "ENABLE"}
	}
	cmd, err := c.roundTrip(ctx, "ENABLE", func(enc *encoder) {
		for _, capName := range caps {
			enc.sp()
			enc.atom(capName)
		}
	})
	if err != nil {
		return imap.Capabilities{}, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.EnabledResponse); ok {
			return r.Caps, nil
		}
	}
	return imap.Capabilities{}, nil
}

// ID exchanges implementation identification (RFC 2971). A nil
// params map sends "ID NIL".
func (c *Client) ID(ctx context.Context, params map[string]string) (map[string]string, error) {
	if c.State() == imap.DisconnectedState {
		return nil, imap.ErrNotConnected
	}
	if !c.Caps().SupportsID() {
		return nil, &imap.ErrNotSupported{Capability: "ID"}
	}
	cmd, err := c.roundTrip(ctx, "ID", func(enc *encoder) {
		enc.sp()
		if len(params) == 0 {
			enc.atom("NIL")
			return
		}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		enc.listOpen()
		for i, k := range keys {
			if i > 0 {
				enc.sp()
			}
			enc.string(k)
			enc.sp()
			enc.string(params[k])
		}
		enc.listClose()
	})
	if err != nil {
		return nil, err
	}
	for _, resp := range cmd.responses {
		if r, ok := resp.(*imapwire.IDResponse); ok {
			return r.Params, nil
		}
	}
	return nil, nil
}

func (c *Client) requireAuthenticated() error {
	switch c.State() {
	case imap.DisconnectedState:
		return imap.ErrNotConnected
	case imap.NotAuthenticatedState, imap.ConnectingState:
		return imap.ErrNotAuthenticated
	}
	return nil
}

func (c *Client) requireSelected() error {
	if err := c.requireAuthenticated(); err != nil {
		return err
	}
	if c.State() != imap.SelectedState {
		return imap.ErrMailboxNotOpen
	}
	return nil
}
