// Package imapclient implements an IMAP client as described in
// RFC 3501.
//
// The client owns a single connection. Commands execute one at a
// time; a single reader goroutine parses server responses, applies
// unsolicited updates to the selected mailbox, and correlates data
// with the in-flight command.
//
// Supported extension RFCs:
//
//	RFC 2087 QUOTA
//	RFC 2177 IDLE
//	RFC 2342 NAMESPACE
//	RFC 2971 ID
//	RFC 3502 MULTIAPPEND
//	RFC 3516 BINARY
//	RFC 3691 UNSELECT
//	RFC 4314 ACL
//	RFC 4315 UIDPLUS
//	RFC 4731 ESEARCH
//	RFC 4959 SASL-IR
//	RFC 4978 COMPRESS=DEFLATE
//	RFC 5161 ENABLE
//	RFC 5256 SORT THREAD
//	RFC 5258 LIST-EXTENDED
//	RFC 5464 METADATA
//	RFC 6154 SPECIAL-USE
//	RFC 6851 MOVE
//	RFC 6855 UTF8=ACCEPT
//	RFC 7162 CONDSTORE QRESYNC
//	RFC 7888 LITERAL+
package imapclient

import (
	"bufio"
	"compress/flate"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"mime"
	"net"
	"sync"
	"time"

	"crawshaw.io/iox"
	"github.com/emersion/go-message/charset"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
)

// ErrClosed is reported by operations begun after the connection
// was shut down.
var ErrClosed = errors.New("imapclient: connection closed")

// Options configures a Client. The zero value is usable.
type Options struct {
	// TLSConfig is used by DialTLS and StartTLS.
	TLSConfig *tls.Config

	// Filer spools large literals (message bodies, APPEND payloads)
	// to disk-backed buffers. When nil a private Filer is created.
	Filer *iox.Filer

	// Logf receives engine-level diagnostics. Nil discards them.
	Logf func(format string, v ...interface{})

	// Debug, when set, receives a copy of the raw protocol stream.
	// It sees credentials; wire it to test logs only.
	Debug io.Writer

	// WordDecoder decodes RFC 2047 encoded words in envelope
	// accessors. Nil uses the go-message charset set.
	WordDecoder *mime.WordDecoder

	// EventBuffer bounds the unsolicited event queue. Events beyond
	// the bound are dropped (and counted via Logf) rather than
	// blocking the reader. Zero means 64.
	EventBuffer int

	// DialTimeout bounds Dial and DialTLS. Zero means 30 seconds.
	DialTimeout time.Duration
}

func (o *Options) wordDecoder() *mime.WordDecoder {
	if o.WordDecoder != nil {
		return o.WordDecoder
	}
	return &mime.WordDecoder{CharsetReader: charset.Reader}
}

// Client is an IMAP connection.
type Client struct {
	opts  Options
	logf  func(format string, v ...interface{})
	filer *iox.Filer
	dec   *mime.WordDecoder

	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	scanner *imapwire.Scanner
	parser  *imapwire.Parser

	// cmdCh is a one-slot semaphore serializing command execution.
	cmdCh chan struct{}

	// encMu guards bw and the compress flusher.
	encMu         sync.Mutex
	compressFlush func() error

	mu        sync.Mutex
	state     imap.ConnState
	caps      imap.Capabilities
	enabled   imap.Capabilities
	tagSeq    uint64
	pending   []*command
	mailbox   *Mailbox
	closedErr error
	logoutOK  bool // BYE is expected (LOGOUT in flight)

	events     chan Event
	dropped    uint64
	greetingCh chan error
	readerDone chan struct{}
}

// New wraps an established connection (for instance a pipe in
// tests, or a pre-dialed TLS socket) and reads the server greeting.
func New(ctx context.Context, conn net.Conn, opts *Options) (*Client, error) {
	c := newClient(conn, opts)
	if err := c.waitGreeting(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// Dial connects in cleartext, for use with StartTLS.
func Dial(ctx context.Context, addr string, opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	d := net.Dialer{Timeout: o.DialTimeout}
	if d.Timeout == 0 {
		d.Timeout = 30 * time.Second
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(ctx, conn, &o)
}

// DialTLS connects with implicit TLS (typically port 993).
func DialTLS(ctx context.Context, addr string, opts *Options) (*Client, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	d := net.Dialer{Timeout: o.DialTimeout}
	if d.Timeout == 0 {
		d.Timeout = 30 * time.Second
	}
	tlsDialer := tls.Dialer{NetDialer: &d, Config: o.TLSConfig}
	conn, err := tlsDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return New(ctx, conn, &o)
}

func newClient(conn net.Conn, opts *Options) *Client {
	c := &Client{
		netConn:    conn,
		cmdCh:      make(chan struct{}, 1),
		state:      imap.ConnectingState,
		greetingCh: make(chan error, 1),
		readerDone: make(chan struct{}),
	}
	if opts != nil {
		c.opts = *opts
	}
	c.logf = c.opts.Logf
	if c.logf == nil {
		c.logf = func(format string, v ...interface{}) {}
	}
	c.filer = c.opts.Filer
	if c.filer == nil {
		c.filer = iox.NewFiler(0)
	}
	c.dec = c.opts.wordDecoder()
	n := c.opts.EventBuffer
	if n == 0 {
		n = 64
	}
	c.events = make(chan Event, n)

	c.initBufio(conn, conn)
	c.scanner = imapwire.NewScanner(c.br, c.filer)
	c.parser = imapwire.NewParser(c.scanner)

	go c.readLoop()
	return c
}

// initBufio (re)wires the buffered reader and writer around the
// transport. Used at connect and again when STARTTLS or COMPRESS
// replace the stream.
func (c *Client) initBufio(r io.Reader, w io.Writer) {
	if c.opts.Debug != nil {
		r = io.TeeReader(r, c.opts.Debug)
		w = io.MultiWriter(w, c.opts.Debug)
	}
	c.br = bufio.NewReader(r)
	c.bw = bufio.NewWriter(w)
	if c.scanner != nil {
		c.scanner.SetSource(c.br)
	}
}

func (c *Client) waitGreeting(ctx context.Context) error {
	select {
	case err := <-c.greetingCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State reports the connection state.
func (c *Client) State() imap.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Caps reports the most recently advertised capabilities.
func (c *Client) Caps() imap.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// Enabled reports the extensions turned on with ENABLE.
func (c *Client) Enabled() imap.Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Mailbox reports the selected mailbox state, or nil.
func (c *Client) Mailbox() *Mailbox {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mailbox
}

// Events is the unsolicited event stream. The channel is closed
// after disconnect, once a Disconnected event has been delivered.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Close drops the connection without LOGOUT.
func (c *Client) Close() error {
	c.fatal(ErrClosed)
	<-c.readerDone
	return nil
}

// flush writes out buffered command bytes, pushing through the
// deflate layer when COMPRESS is active.
// Callers hold encMu.
func (c *Client) flush() error {
	if err := c.bw.Flush(); err != nil {
		return err
	}
	if c.compressFlush != nil {
		if err := c.compressFlush(); err != nil {
			return err
		}
	}
	return nil
}

// fatal fails every in-flight command and tears the connection
// down. Engine-level errors (protocol, I/O, tagged BAD) land here.
func (c *Client) fatal(err error) {
	c.mu.Lock()
	if c.closedErr != nil {
		c.mu.Unlock()
		return
	}
	c.closedErr = err
	c.state = imap.DisconnectedState
	pending := c.pending
	c.pending = nil
	mailbox := c.mailbox
	c.mailbox = nil
	c.mu.Unlock()

	for _, cmd := range pending {
		cmd.fail(err)
	}
	if mailbox != nil {
		mailbox.closed()
	}
	c.netConn.Close()

	select {
	case c.greetingCh <- err:
	default:
	}
	if !errors.Is(err, ErrClosed) {
		c.emit(&DisconnectedEvent{Err: err})
	} else {
		c.emit(&DisconnectedEvent{})
	}
}

// emit delivers an event without blocking the reader. Overflow is
// dropped and counted; a stalled consumer must not stall the
// protocol.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.mu.Lock()
		c.dropped++
		n := c.dropped
		c.mu.Unlock()
		c.logf("imapclient: event queue full, %d dropped", n)
	}
}

func (c *Client) readLoop() {
	defer close(c.readerDone)
	greeted := false
	for {
		resp, err := c.parser.ReadResponse()
		if err != nil {
			if c.State() == imap.DisconnectedState || errors.Is(err, io.EOF) && c.logoutExpected() {
				c.fatal(ErrClosed)
			} else if _, isParse := err.(imapwire.ParseError); isParse {
				c.fatal(imap.ProtocolErrorf("%v", err))
			} else {
				c.fatal(err)
			}
			c.drainEventsAndClose()
			return
		}
		if !greeted {
			greeted = true
			// A BYE greeting leaves the loop to exit on socket close.
			c.handleGreeting(resp)
			continue
		}
		if bye := c.handleResponse(resp); bye {
			// BYE: the server is closing. After LOGOUT the tagged
			// OK may still follow, so keep reading until EOF;
			// otherwise it is fatal now.
			if c.logoutExpected() {
				continue
			}
			st := resp.(*imapwire.StatusResponse)
			c.fatal(&imap.ByeError{Text: st.Text})
			c.drainEventsAndClose()
			return
		}
	}
}

func (c *Client) logoutExpected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logoutOK
}

func (c *Client) drainEventsAndClose() {
	close(c.events)
}

func (c *Client) handleGreeting(resp imapwire.Response) bool {
	st, ok := resp.(*imapwire.StatusResponse)
	if !ok || st.Tag != "" {
		c.fatal(imap.ProtocolErrorf("bad greeting %T", resp))
		return false
	}
	switch st.Status {
	case imapwire.StatusOK:
		c.mu.Lock()
		c.state = imap.NotAuthenticatedState
		if st.Code.Code == imap.CodeCapability {
			c.caps = st.Code.Caps
		}
		c.mu.Unlock()
	case imapwire.StatusPreAuth:
		c.mu.Lock()
		c.state = imap.AuthenticatedState
		if st.Code.Code == imap.CodeCapability {
			c.caps = st.Code.Caps
		}
		c.mu.Unlock()
	case imapwire.StatusBye:
		c.greetingCh <- &imap.ByeError{Text: st.Text}
		return false
	default:
		c.fatal(imap.ProtocolErrorf("bad greeting status %s", st.Status))
		return false
	}
	c.greetingCh <- nil
	return true
}

// handleResponse dispatches one parsed response. It reports true
// for an untagged BYE.
func (c *Client) handleResponse(resp imapwire.Response) (bye bool) {
	switch r := resp.(type) {
	case *imapwire.ContinuationResponse:
		cmd := c.activeCommand()
		if cmd == nil || !cmd.wantCont.Load() {
			c.fatal(imap.ProtocolErrorf("continuation request with no expecting command"))
			return false
		}
		select {
		case cmd.contCh <- r.Text:
		default:
			c.fatal(imap.ProtocolErrorf("unexpected extra continuation request"))
		}
		return false

	case *imapwire.StatusResponse:
		if r.Tag != "" {
			c.completeCommand(r)
			return false
		}
		switch r.Status {
		case imapwire.StatusBye:
			return true
		case imapwire.StatusOK, imapwire.StatusNo, imapwire.StatusBad:
			c.applyStatusCode(r)
			// COPYUID and APPENDUID may ride untagged OKs (MOVE,
			// MULTIAPPEND); buffer them for the in-flight command.
			switch r.Code.Code {
			case imap.CodeCopyUID, imap.CodeAppendUID:
				c.deliverToCommand(r)
			}
			return false
		case imapwire.StatusPreAuth:
			c.fatal(imap.ProtocolErrorf("PREAUTH after greeting"))
			return false
		}
		return false

	case *imapwire.CapabilityResponse:
		c.mu.Lock()
		c.caps = r.Caps
		c.mu.Unlock()
		c.deliverToCommand(resp)
		return false

	case *imapwire.EnabledResponse:
		c.mu.Lock()
		for _, token := range r.Caps.List() {
			c.enabled.Add(token)
		}
		c.mu.Unlock()
		c.deliverToCommand(resp)
		return false

	case *imapwire.ExistsResponse:
		if mbox := c.Mailbox(); mbox != nil {
			mbox.applyExists(r.Num)
		}
		return false

	case *imapwire.RecentResponse:
		if mbox := c.Mailbox(); mbox != nil {
			mbox.applyRecent(r.Num)
		}
		return false

	case *imapwire.ExpungeResponse:
		if mbox := c.Mailbox(); mbox != nil {
			mbox.applyExpunge(r.Seq)
		}
		c.deliverToCommand(resp)
		return false

	case *imapwire.VanishedResponse:
		if mbox := c.Mailbox(); mbox != nil {
			mbox.applyVanished(r.UIDs, r.Earlier)
		}
		c.deliverToCommand(resp)
		return false

	case *imapwire.FlagsResponse:
		if mbox := c.Mailbox(); mbox != nil {
			mbox.applyFlags(r.Flags)
		}
		return false

	case *imapwire.FetchResponse:
		if mbox := c.Mailbox(); mbox != nil {
			mbox.applyFetch(r)
		}
		c.deliverToCommand(resp)
		return false

	case *imapwire.MetadataResponse:
		if !c.deliverToCommand(resp) {
			c.emit(&MetadataChangedEvent{Mailbox: r.Mailbox, Entries: r.Entries})
		}
		return false

	case *imapwire.MailboxStatusResponse:
		// NOTIFY pushes STATUS for non-selected mailboxes outside
		// any command.
		if !c.deliverToCommand(resp) {
			c.emit(&MailboxStatusEvent{Status: statusData(c, r)})
		}
		return false

	default:
		// LIST, STATUS, SEARCH, ESEARCH, SORT, THREAD, NAMESPACE,
		// QUOTA, QUOTAROOT, ACL, MYRIGHTS, LISTRIGHTS, ID: data for
		// the in-flight command.
		if !c.deliverToCommand(resp) {
			c.logf("imapclient: discarding unsolicited %T", resp)
		}
		return false
	}
}

// applyStatusCode handles untagged OK/NO/BAD carrying response
// codes: mailbox metadata during SELECT, alerts, capability
// updates.
func (c *Client) applyStatusCode(r *imapwire.StatusResponse) {
	switch r.Code.Code {
	case imap.CodeAlert:
		c.emit(&AlertEvent{Text: r.Text})
	case imap.CodeCapability:
		c.mu.Lock()
		c.caps = r.Code.Caps
		c.mu.Unlock()
	case imap.CodeClosed:
		// During a SELECT the [CLOSED] names the previous mailbox,
		// which Select already tore down; only an open mailbox is
		// deselected here.
		if mbox := c.Mailbox(); mbox != nil && mbox.IsOpen() {
			mbox.closed()
			c.mu.Lock()
			if c.mailbox == mbox {
				c.mailbox = nil
			}
			if c.state == imap.SelectedState {
				c.state = imap.AuthenticatedState
			}
			c.mu.Unlock()
		}
	case imap.CodeUIDValidity, imap.CodeUIDNext, imap.CodeHighestModSeq,
		imap.CodeNoModSeq, imap.CodePermanentFlags, imap.CodeUnseen,
		imap.CodeReadOnly, imap.CodeReadWrite, imap.CodeUIDNotSticky:
		if mbox := c.Mailbox(); mbox != nil {
			mbox.applyCode(r.Code)
		}
	}
}

// activeCommand reports the command whose tagged completion is
// still outstanding, preferring the most recently written (the
// only one that may expect continuations).
func (c *Client) activeCommand() *command {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.pending); n > 0 {
		return c.pending[n-1]
	}
	return nil
}

// deliverToCommand buffers a data response on the in-flight
// command. It reports false when no command is waiting.
func (c *Client) deliverToCommand(resp imapwire.Response) bool {
	cmd := c.activeCommand()
	if cmd == nil {
		return false
	}
	cmd.responses = append(cmd.responses, resp)
	return true
}

func (c *Client) completeCommand(st *imapwire.StatusResponse) {
	c.mu.Lock()
	var cmd *command
	for i, pc := range c.pending {
		if pc.tag == st.Tag {
			cmd = pc
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	if cmd == nil {
		c.fatal(imap.ProtocolErrorf("completion for unknown tag %q", st.Tag))
		return
	}

	if st.Code.Code == imap.CodeCapability {
		c.mu.Lock()
		c.caps = st.Code.Caps
		c.mu.Unlock()
	}

	switch st.Status {
	case imapwire.StatusOK:
		cmd.complete(st)
		if cmd.barrier != nil {
			// Transport is being rewired; do not read from the old
			// stream until the owner finishes.
			<-cmd.barrier
		}
	case imapwire.StatusNo:
		cmd.status = st
		cmd.fail(imap.NewCommandFailedError(cmd.name, st.Code.Code, st.Text))
	case imapwire.StatusBad:
		err := &imap.CommandError{Name: cmd.name, Text: st.Text}
		cmd.fail(err)
		c.fatal(err)
	default:
		c.fatal(imap.ProtocolErrorf("bad completion status %s", st.Status))
	}
}

// nextTag reserves a command tag: "A" plus a base-36 counter,
// zero-padded, monotonically increasing per connection.
func (c *Client) nextTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tagSeq++
	s := base36(c.tagSeq)
	for len(s) < 4 {
		s = "0" + s
	}
	return "A" + s
}

func base36(v uint64) string {
	const digits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	if v == 0 {
		return "0"
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v%36]
		v /= 36
	}
	return string(buf[i:])
}

// startCompress wraps the transport in a deflate layer after a
// successful COMPRESS command.
func (c *Client) startCompress() error {
	c.encMu.Lock()
	defer c.encMu.Unlock()

	fr := flate.NewReader(c.netConn)
	fw, err := flate.NewWriter(c.netConn, flate.DefaultCompression)
	if err != nil {
		return err
	}
	c.initBufio(fr, fw)
	c.compressFlush = fw.Flush
	return nil
}

// startTLSConn wraps the transport in TLS after a successful
// STARTTLS command.
func (c *Client) startTLSConn(config *tls.Config) {
	c.encMu.Lock()
	defer c.encMu.Unlock()

	tlsConn := tls.Client(c.netConn, config)
	c.netConn = tlsConn
	c.initBufio(tlsConn, tlsConn)
}
