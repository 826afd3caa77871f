package imapclient

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"sealed.ink/imap"
	"sealed.ink/imap/imapwire"
	"sealed.ink/imap/utf7mod"
)

// command is one in-flight tagged command.
type command struct {
	tag  string
	name string

	// contCh receives continuation-request texts. wantCont guards
	// it: a '+' from the server while wantCont is false is a
	// protocol error.
	contCh   chan string
	wantCont atomic.Bool

	responses []imapwire.Response
	status    *imapwire.StatusResponse

	// barrier, when set, parks the reader after this command's
	// completion until the owner rewires the transport (STARTTLS,
	// COMPRESS). The owner must always close it.
	barrier chan struct{}

	once   sync.Once
	err    error
	doneCh chan struct{}
}

func (cmd *command) complete(st *imapwire.StatusResponse) {
	cmd.once.Do(func() {
		cmd.status = st
		close(cmd.doneCh)
	})
}

func (cmd *command) fail(err error) {
	cmd.once.Do(func() {
		cmd.err = err
		close(cmd.doneCh)
	})
}

func (c *Client) err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedErr
}

// beginCommand reserves the connection for one command: acquires
// the command slot, allocates a tag, and registers the command for
// response correlation. endCommand must follow.
func (c *Client) beginCommand(ctx context.Context, name string) (*command, error) {
	select {
	case c.cmdCh <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.readerDone:
		return nil, c.err()
	}
	if err := c.err(); err != nil {
		<-c.cmdCh
		return nil, err
	}
	cmd := &command{
		name:   name,
		tag:    c.nextTag(),
		contCh: make(chan string, 4),
		doneCh: make(chan struct{}),
	}
	c.mu.Lock()
	c.pending = append(c.pending, cmd)
	c.mu.Unlock()
	return cmd, nil
}

func (c *Client) endCommand() {
	<-c.cmdCh
}

// waitCommand blocks for the tagged completion. Cancellation of an
// active command has no in-band protocol form, so it drops the
// connection.
func (c *Client) waitCommand(ctx context.Context, cmd *command) error {
	select {
	case <-cmd.doneCh:
		return cmd.err
	case <-ctx.Done():
		c.fatal(ctx.Err())
		<-cmd.doneCh
		return ctx.Err()
	}
}

// roundTrip runs a complete simple command: encode, send, await
// completion. Callers validate arguments before calling; build
// only fails on transport errors, which are fatal.
func (c *Client) roundTrip(ctx context.Context, name string, build func(enc *encoder)) (*command, error) {
	cmd, err := c.beginCommand(ctx, name)
	if err != nil {
		return nil, err
	}
	defer c.endCommand()

	enc := c.newEncoder(ctx, cmd)
	if build != nil {
		build(enc)
	}
	if err := enc.end(); err != nil {
		c.fatal(err)
		<-cmd.doneCh
		return nil, cmd.err
	}
	if err := c.waitCommand(ctx, cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

func (c *Client) removePending(cmd *command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, pc := range c.pending {
		if pc == cmd {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return
		}
	}
}

// encoder serializes one command onto the connection. It holds the
// writer lock from the first byte through the final CRLF so writes
// for different commands never interleave.
type encoder struct {
	c    *Client
	cmd  *command
	ctx  context.Context
	err  error
	open bool
}

func (c *Client) newEncoder(ctx context.Context, cmd *command) *encoder {
	c.encMu.Lock()
	enc := &encoder{c: c, cmd: cmd, ctx: ctx, open: true}
	enc.raw(cmd.tag)
	enc.raw(" ")
	enc.raw(cmd.name)
	return enc
}

func (enc *encoder) raw(s string) {
	if enc.err != nil {
		return
	}
	_, enc.err = enc.c.bw.WriteString(s)
}

func (enc *encoder) sp() { enc.raw(" ") }

func (enc *encoder) atom(s string) { enc.raw(s) }

func (enc *encoder) number(v uint64) {
	enc.raw(strconv.FormatUint(v, 10))
}

func (enc *encoder) number32(v uint32) {
	enc.raw(strconv.FormatUint(uint64(v), 10))
}

func (enc *encoder) listOpen()  { enc.raw("(") }
func (enc *encoder) listClose() { enc.raw(")") }

func (enc *encoder) seqs(seqs []imap.SeqRange) {
	sb := new(strings.Builder)
	imap.FormatSeqs(sb, seqs)
	enc.raw(sb.String())
}

func (enc *encoder) quoted(s string) {
	enc.raw(`"`)
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '"' || b == '\\' {
			enc.raw(`\`)
		}
		enc.raw(string(b))
	}
	enc.raw(`"`)
}

// string writes s in its shortest legal form: bare atom, quoted
// string, or literal for content a quoted string cannot carry.
func (enc *encoder) string(s string) {
	if s == "" {
		enc.raw(`""`)
		return
	}
	needsLiteral := false
	needsQuote := false
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b == '\r' || b == '\n' || b >= 0x80 || b < 0x20:
			needsLiteral = true
		case b == '"' || b == '\\' || b == ' ' || b == '(' || b == ')' ||
			b == '{' || b == '%' || b == '*' || b == '[' || b == ']':
			needsQuote = true
		}
	}
	switch {
	case needsLiteral:
		enc.literalString(s)
	case needsQuote:
		enc.quoted(s)
	default:
		enc.raw(s)
	}
}

// listMailbox writes a LIST pattern: like string, but the
// list-wildcards '*' and '%' stay bare per the list-mailbox rule.
func (enc *encoder) listMailbox(s string) {
	if s == "" {
		enc.raw(`""`)
		return
	}
	enc.c.mu.Lock()
	utf8ok := enc.c.enabled.SupportsUTF8Accept()
	enc.c.mu.Unlock()
	if !utf8ok {
		encoded, err := utf7mod.Encode(s)
		if err != nil {
			enc.err = err
			return
		}
		s = encoded
	}
	needsLiteral := false
	needsQuote := false
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b == '\r' || b == '\n' || b >= 0x80 || b < 0x20:
			needsLiteral = true
		case b == '"' || b == '\\' || b == ' ' || b == '(' || b == ')' ||
			b == '{' || b == '[' || b == ']':
			needsQuote = true
		}
	}
	switch {
	case needsLiteral:
		enc.literalString(s)
	case needsQuote:
		enc.quoted(s)
	default:
		enc.raw(s)
	}
}

// mailbox writes a mailbox name, applying modified UTF-7 unless
// UTF8=ACCEPT has been enabled. INBOX is written as-is; it is
// case-insensitive on the wire.
func (enc *encoder) mailbox(name string) {
	if strings.EqualFold(name, "INBOX") {
		enc.raw("INBOX")
		return
	}
	enc.c.mu.Lock()
	utf8ok := enc.c.enabled.SupportsUTF8Accept()
	enc.c.mu.Unlock()
	if !utf8ok {
		encoded, err := utf7mod.Encode(name)
		if err != nil {
			enc.err = err
			return
		}
		name = encoded
	}
	enc.string(name)
}

// date writes a quoted RFC 3501 date-time.
func (enc *encoder) date(s string) {
	enc.raw(`"`)
	enc.raw(s)
	enc.raw(`"`)
}

func (enc *encoder) literalString(s string) {
	enc.literal(strings.NewReader(s), int64(len(s)), nil)
}

// literal writes "{n}" or "{n+}" followed by n bytes of content.
//
// For a synchronizing literal the encoder flushes and blocks for
// the server's '+' before the content; LITERAL+ (or LITERAL- for
// payloads within its cap) skips the round trip.
func (enc *encoder) literal(r io.Reader, size int64, progress ProgressFunc) {
	if enc.err != nil {
		return
	}
	c := enc.c

	c.mu.Lock()
	nonSync := c.caps.SupportsLiteralPlus() ||
		(c.caps.SupportsLiteralMinus() && size <= 4096)
	c.mu.Unlock()

	enc.raw("{")
	enc.raw(strconv.FormatInt(size, 10))
	if nonSync {
		enc.raw("+")
	}
	enc.raw("}\r\n")
	if enc.err != nil {
		return
	}

	if !nonSync {
		enc.cmd.wantCont.Store(true)
		if enc.err = c.flush(); enc.err != nil {
			return
		}
		select {
		case <-enc.cmd.contCh:
			enc.cmd.wantCont.Store(false)
		case <-enc.cmd.doneCh:
			// The server rejected the command before the literal.
			enc.err = enc.cmd.err
			if enc.err == nil {
				enc.err = imap.ProtocolErrorf("completion before literal continuation")
			}
			return
		case <-enc.ctx.Done():
			enc.err = enc.ctx.Err()
			return
		}
	}

	if progress != nil {
		r = &progressReader{r: r, total: size, fn: progress}
	}
	_, enc.err = io.CopyN(c.bw, r, size)
}

// end terminates the command line and releases the writer.
func (enc *encoder) end() error {
	if enc.err == nil {
		enc.raw("\r\n")
	}
	if enc.err == nil {
		enc.err = enc.c.flush()
	}
	enc.unlock()
	return enc.err
}

func (enc *encoder) unlock() {
	if enc.open {
		enc.open = false
		enc.c.encMu.Unlock()
	}
}

// ProgressFunc receives transfer progress during literal uploads
// and downloads. total is -1 when unknown.
type ProgressFunc func(transferred, total int64)

type progressReader struct {
	r     io.Reader
	n     int64
	total int64
	fn    ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.n += int64(n)
		pr.fn(pr.n, pr.total)
	}
	return n, err
}
