package imapclient

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-sasl"

	"sealed.ink/imap"
	"sealed.ink/imap/imaptest"
	"sealed.ink/util/tlstest"
)

func testClient(t *testing.T, script func(s *imaptest.Server)) *Client {
	t.Helper()
	conn, srv := imaptest.Pipe(t)
	srv.Run(script)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	c, err := New(ctx, conn, &Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		srv.Wait()
	})
	return c
}

// nextEvent pulls events until one matches the type of want,
// failing the test on timeout.
func nextEvent[E Event](t *testing.T, c *Client) E {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-c.Events():
			if !ok {
				t.Fatal("event stream closed")
			}
			if e, match := ev.(E); match {
				return e
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func ctxb() context.Context { return context.Background() }

// The CAPABILITY + LOGIN + SELECT flow from RFC 3501, asserting
// the post-SELECT mailbox state.
func TestLoginSelect(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet()
		s.Expect("A0001 CAPABILITY")
		s.Send("* CAPABILITY IMAP4rev1 IDLE UIDPLUS CONDSTORE LITERAL+",
			"A0001 OK done")
		s.Expect("A0002 LOGIN user pass")
		s.Send("A0002 OK [CAPABILITY IMAP4rev1 IDLE UIDPLUS CONDSTORE] authenticated")
		s.Expect("A0003 SELECT INBOX")
		s.Send("* 172 EXISTS",
			"* 1 RECENT",
			"* OK [UIDVALIDITY 3857529045] Ok",
			"* OK [UIDNEXT 4392] Ok",
			"* OK [HIGHESTMODSEQ 715194045007] Ok",
			`* FLAGS (\Answered \Flagged \Deleted \Seen \Draft)`,
			`* OK [PERMANENTFLAGS (\Deleted \Seen \*)] Ok`,
			"A0003 OK [READ-WRITE] SELECT")
	})

	caps, err := c.Capability(ctxb())
	if err != nil {
		t.Fatal(err)
	}
	if !caps.SupportsLiteralPlus() {
		t.Errorf("caps=%v", caps.List())
	}

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != imap.AuthenticatedState {
		t.Errorf("state=%v", got)
	}
	if !c.Caps().SupportsCondStore() {
		t.Error("tagged OK [CAPABILITY] not applied")
	}

	data, err := c.Select(ctxb(), "INBOX", nil)
	if err != nil {
		t.Fatal(err)
	}
	if data.Count != 172 || data.Recent != 1 ||
		data.UIDValidity != 3857529045 || data.UIDNext != 4392 ||
		data.HighestModSeq != 715194045007 ||
		data.Access != imap.ReadWriteAccess {
		t.Errorf("select data=%+v", data)
	}
	if !data.PermanentFlags.Wildcard || !data.PermanentFlags.Has(imap.FlagDeleted) {
		t.Errorf("permanent flags=%v", data.PermanentFlags)
	}
	if got := c.State(); got != imap.SelectedState {
		t.Errorf("state=%v", got)
	}
}

// UID FETCH with a literal body: one summary event, body bytes
// preserved exactly.
func TestUIDFetchLiteralBody(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 1 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect("A0003 UID FETCH 1 (UID BODY[])")
		s.Send("* 1 FETCH (UID 101 BODY[] {5}",
			"Hello)",
			"A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}

	msgs, err := c.UIDFetch(ctxb(), imap.UIDSetOf(1), &FetchOptions{
		UID:          true,
		BodySections: []*FetchBodySection{{}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer closeMessages(msgs)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages", len(msgs))
	}
	m := msgs[0]
	if m.Seq != 1 || m.UID != 101 {
		t.Errorf("seq=%d uid=%d", m.Seq, m.UID)
	}
	sec := m.Section("")
	if sec == nil {
		t.Fatal("no body section")
	}
	body, err := io.ReadAll(sec.Reader())
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "Hello" || sec.Len() != 5 {
		t.Errorf("body=%q len=%d", body, sec.Len())
	}

	ev := nextEvent[*MessageSummaryFetchedEvent](t, c)
	if ev.Summary.UID != 101 {
		t.Errorf("event uid=%d", ev.Summary.UID)
	}
	if got := c.Mailbox().UIDForSeq(1); got != 101 {
		t.Errorf("map[1]=%d", got)
	}
}

// Expunge shifts the sequence-to-UID map down and decrements the
// count.
func TestExpungeSequenceUpdate(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 3 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect("A0003 UID FETCH 101:103 (FLAGS UID)")
		s.Send("* 1 FETCH (UID 101)",
			"* 2 FETCH (UID 102)",
			"* 3 FETCH (UID 103)",
			"A0003 OK done")
		s.Expect("A0004 NOOP")
		s.Send("* 2 EXPUNGE", "A0004 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UIDFetch(ctxb(), imap.UIDSet{Ranges: []imap.SeqRange{{Min: 101, Max: 103}}}, nil); err != nil {
		t.Fatal(err)
	}
	mbox := c.Mailbox()
	if mbox.UIDForSeq(2) != 102 || mbox.Count() != 3 {
		t.Fatalf("pre-state: map[2]=%d count=%d", mbox.UIDForSeq(2), mbox.Count())
	}

	if err := c.Noop(ctxb()); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent[*MessageExpungedEvent](t, c)
	if ev.Seq != 2 || ev.UID != 102 {
		t.Errorf("expunge event seq=%d uid=%d", ev.Seq, ev.UID)
	}
	if got := mbox.Count(); got != 2 {
		t.Errorf("count=%d, want 2", got)
	}
	if mbox.UIDForSeq(1) != 101 || mbox.UIDForSeq(2) != 103 {
		t.Errorf("map=[%d %d]", mbox.UIDForSeq(1), mbox.UIDForSeq(2))
	}
	if mbox.UIDForSeq(3) != 0 {
		t.Errorf("stale map entry at 3: %d", mbox.UIDForSeq(3))
	}
}

// QRESYNC reopen: VANISHED (EARLIER) prunes the seeded map without
// touching the count.
func TestQResyncReopen(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "ENABLE", "CONDSTORE", "QRESYNC")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 ENABLE QRESYNC")
		s.Send("* ENABLED QRESYNC", "A0002 OK enabled")
		s.Expect("A0003 SELECT INBOX (QRESYNC (3857529045 715194045007 41,43:45,101:103))")
		s.Send("* 3 EXISTS",
			"* 0 RECENT",
			"* OK [UIDVALIDITY 3857529045] Ok",
			"* VANISHED (EARLIER) 41,43:45",
			"A0003 OK [READ-WRITE] done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Enable(ctxb(), "QRESYNC"); err != nil {
		t.Fatal(err)
	}

	known, err := imap.ParseUIDSet("41,43:45,101:103")
	if err != nil {
		t.Fatal(err)
	}
	data, err := c.Select(ctxb(), "INBOX", &SelectOptions{
		QResync: &QResyncParams{
			UIDValidity: 3857529045,
			ModSeq:      715194045007,
			KnownUIDs:   known,
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	ev := nextEvent[*MessagesVanishedEvent](t, c)
	if !ev.Earlier {
		t.Error("vanished event not EARLIER")
	}
	if got, want := ev.UIDs.String(), "41,43:45"; got != want {
		t.Errorf("vanished uids=%q, want %q", got, want)
	}

	mbox := data.Mailbox
	if got := mbox.Count(); got != 3 {
		t.Errorf("count=%d, want 3 (EARLIER must not decrement)", got)
	}
	for seq, want := range map[uint32]uint32{1: 101, 2: 102, 3: 103} {
		if got := mbox.UIDForSeq(seq); got != want {
			t.Errorf("map[%d]=%d, want %d", seq, got, want)
		}
	}
	for _, uid := range []uint32{41, 43, 44, 45} {
		if mbox.SeqForUID(uid) != 0 {
			t.Errorf("vanished uid %d still mapped", uid)
		}
	}
}

// IDLE: unsolicited EXISTS/RECENT arrive as events; cancellation
// exits with DONE.
func TestIdle(t *testing.T) {
	idleEntered := make(chan struct{})
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "IDLE")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 172 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect("A0003 IDLE")
		s.Send("+ idling")
		close(idleEntered)
		s.Send("* 173 EXISTS", "* 1 RECENT")
		s.Expect("DONE")
		s.Send("A0003 OK IDLE terminated")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(ctxb())
	idleErr := make(chan error, 1)
	go func() { idleErr <- c.Idle(ctx) }()

	<-idleEntered
	if ev := nextEvent[*CountChangedEvent](t, c); ev.Count != 173 {
		t.Errorf("count event=%d", ev.Count)
	}
	if ev := nextEvent[*MessagesArrivedEvent](t, c); ev.Count != 1 {
		t.Errorf("arrived event=%d", ev.Count)
	}
	if ev := nextEvent[*RecentChangedEvent](t, c); ev.Recent != 1 {
		t.Errorf("recent event=%d", ev.Recent)
	}

	cancel()
	if err := <-idleErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Idle returned %v", err)
	}
	if got := c.Mailbox().Count(); got != 173 {
		t.Errorf("count=%d", got)
	}
}

// STORE with UNCHANGEDSINCE: the MODIFIED set comes back as the
// UIDs that were not updated.
func TestStoreUnchangedSince(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "CONDSTORE")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 2 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect(`A0003 UID STORE 101:102 (UNCHANGEDSINCE 1000) +FLAGS.SILENT (\Seen)`)
		s.Send("A0003 OK [MODIFIED 102] STORE")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}

	data, err := c.UIDStore(ctxb(), imap.UIDSetOf(101, 102), &StoreOptions{
		Mode:           StoreAdd,
		Flags:          imap.FlagSeen,
		Silent:         true,
		UnchangedSince: 1000,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := data.Modified.String(), "102"; got != want {
		t.Errorf("modified=%q, want %q", got, want)
	}
	if data.Modified.Contains(101) {
		t.Error("101 reported as modified")
	}
}

func TestAuthenticatePlain(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "AUTH=PLAIN", "SASL-IR")
		// "\x00user\x00pass" base64-encoded.
		s.Expect("A0001 AUTHENTICATE PLAIN AHVzZXIAcGFzcw==")
		s.Send("A0001 OK authenticated")
	})

	if err := c.Authenticate(ctxb(), sasl.NewPlainClient("", "user", "pass")); err != nil {
		t.Fatal(err)
	}
	if c.State() != imap.AuthenticatedState {
		t.Errorf("state=%v", c.State())
	}
	nextEvent[*AuthenticatedEvent](t, c)
}

func TestAuthenticatePlainWithoutSASLIR(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "AUTH=PLAIN")
		s.Expect("A0001 AUTHENTICATE PLAIN")
		s.Send("+ ")
		s.Expect("AHVzZXIAcGFzcw==")
		s.Send("A0001 OK authenticated")
	})

	if err := c.Authenticate(ctxb(), sasl.NewPlainClient("", "user", "pass")); err != nil {
		t.Fatal(err)
	}
}

func TestLoginFailure(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user wrong")
		s.Send("A0001 NO [AUTHENTICATIONFAILED] bad credentials")
	})

	err := c.Login(ctxb(), "user", "wrong")
	var failed *imap.CommandFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err=%v, want CommandFailedError", err)
	}
	if failed.Reason != imap.FailAuthenticationFailed {
		t.Errorf("reason=%v", failed.Reason)
	}
	// A NO is operation-level; the connection survives.
	if c.State() != imap.NotAuthenticatedState {
		t.Errorf("state=%v", c.State())
	}
}

// A synchronizing literal waits for the continuation before the
// payload; the APPENDUID comes back on the tagged OK.
func TestAppendSyncLiteral(t *testing.T) {
	const body = "Subject: hi\r\n\r\nyo"
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "UIDPLUS")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect(`A0002 APPEND Saved (\Seen) {17}`)
		s.Send("+ Ready for literal data")
		if got := string(s.ReadN(len(body))); got != body {
			t.Errorf("literal=%q", got)
		}
		s.Expect("")
		s.Send("A0002 OK [APPENDUID 38505 3955] done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}

	var transferred int64
	data, err := c.Append(ctxb(), "Saved", &AppendMessage{
		Options: AppendOptions{
			Flags: imap.FlagSeen,
			Progress: func(n, total int64) {
				transferred = n
				if total != int64(len(body)) {
					t.Errorf("progress total=%d", total)
				}
			},
		},
		Body: strings.NewReader(body),
		Size: int64(len(body)),
	})
	if err != nil {
		t.Fatal(err)
	}
	if data.UIDValidity != 38505 || data.UIDs.String() != "3955" {
		t.Errorf("appenduid=%+v", data)
	}
	if transferred != int64(len(body)) {
		t.Errorf("progress=%d", transferred)
	}
}

// LITERAL+ skips the continuation round trip.
func TestAppendNonSyncLiteral(t *testing.T) {
	const body = "test"
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "LITERAL+")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 APPEND Saved {4+}")
		if got := string(s.ReadN(4)); got != body {
			t.Errorf("literal=%q", got)
		}
		s.Expect("")
		s.Send("A0002 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Append(ctxb(), "Saved", &AppendMessage{
		Body: strings.NewReader(body),
		Size: 4,
	}); err != nil {
		t.Fatal(err)
	}
}

func TestMoveCopyUID(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "MOVE", "UIDPLUS")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 3 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect("A0003 UID MOVE 304,319:320 Archive")
		s.Send("* OK [COPYUID 38505 304,319:320 3956:3958] moved",
			"* 1 EXPUNGE", "* 1 EXPUNGE", "* 1 EXPUNGE",
			"A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}

	var uids imap.UIDSet
	uids.Add(304)
	uids.AddRange(319, 320)
	data, err := c.UIDMove(ctxb(), uids, "Archive")
	if err != nil {
		t.Fatal(err)
	}
	if data.UIDValidity != 38505 {
		t.Errorf("uidvalidity=%d", data.UIDValidity)
	}
	// |src| == |dst|, element-wise correspondent.
	src, dst := data.SrcUIDs.Expand(), data.DstUIDs.Expand()
	if len(src) != len(dst) || len(src) != 3 {
		t.Fatalf("src=%v dst=%v", src, dst)
	}
	if src[0] != 304 || dst[0] != 3956 || src[2] != 320 || dst[2] != 3958 {
		t.Errorf("correspondence src=%v dst=%v", src, dst)
	}
	if got := c.Mailbox().Count(); got != 0 {
		t.Errorf("count after move=%d", got)
	}
}

func TestSearchESearch(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "ESEARCH", "CONDSTORE")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 9 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect("A0003 UID SEARCH RETURN (MIN MAX COUNT ALL) UNDELETED SINCE 1-Feb-1994")
		s.Send(`* ESEARCH (TAG "A0003") UID MIN 2 MAX 47 COUNT 25 ALL 2:17,21,42:47`,
			"A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}

	criteria := And(
		&SearchOp{Key: "UNDELETED"},
		&SearchOp{Key: "SINCE", Date: time.Date(1994, 2, 1, 0, 0, 0, 0, time.UTC)},
	)
	data, err := c.UIDSearch(ctxb(), criteria, &SearchOptions{
		Return: []string{"MIN", "MAX", "COUNT", "ALL"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !data.HasMin || data.Min != 2 || !data.HasMax || data.Max != 47 || !data.HasCount || data.Count != 25 {
		t.Errorf("esearch=%+v", data)
	}
	if got, want := data.All.String(), "2:17,21,42:47"; got != want {
		t.Errorf("all=%q, want %q", got, want)
	}
}

func TestSearchDateCriteria(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 4 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect(`A0003 SEARCH CHARSET UTF-8 OR FROM alice NOT SUBJECT "spam report"`)
		s.Send("* SEARCH 2 4", "A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}

	criteria := Or(
		&SearchOp{Key: "FROM", Value: "alice"},
		Not(&SearchOp{Key: "SUBJECT", Value: "spam report"}),
	)
	data, err := c.Search(ctxb(), criteria, &SearchOptions{Charset: "UTF-8"})
	if err != nil {
		t.Fatal(err)
	}
	if got := data.AllIDs(); len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("ids=%v", got)
	}
}

func TestListStatus(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "LIST-EXTENDED", "LIST-STATUS", "SPECIAL-USE")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect(`A0002 LIST "" * RETURN (SPECIAL-USE STATUS (MESSAGES UNSEEN))`)
		s.Send(`* LIST (\HasNoChildren) "/" INBOX`,
			"* STATUS INBOX (MESSAGES 17 UNSEEN 4)",
			`* LIST (\HasNoChildren \Junk) "/" Spam`,
			"* STATUS Spam (MESSAGES 9 UNSEEN 9)",
			"A0002 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	list, err := c.List(ctxb(), "", "*", &ListOptions{
		ReturnSpecialUse: true,
		ReturnStatus:     []string{"MESSAGES", "UNSEEN"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("list=%d rows", len(list))
	}
	if list[0].Mailbox != "INBOX" || list[0].Status == nil || list[0].Status.Messages != 17 {
		t.Errorf("row 0=%+v", list[0])
	}
	if list[1].Attrs&imap.AttrJunk == 0 || list[1].Status.Unseen != 9 {
		t.Errorf("row 1=%+v", list[1])
	}
}

func TestMailboxUTF7(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 CREATE &U,BTFw-")
		s.Send("A0002 OK done")
		s.Expect(`A0003 LIST "" *`)
		s.Send(`* LIST (\HasNoChildren) "/" &U,BTFw-`, "A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if err := c.Create(ctxb(), "台北"); err != nil {
		t.Fatal(err)
	}
	list, err := c.List(ctxb(), "", "*", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Mailbox != "台北" {
		t.Errorf("list=%+v", list[0])
	}
}

func TestCompress(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "COMPRESS=DEFLATE")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 COMPRESS DEFLATE")
		s.Send("A0002 OK deflate active")
		s.StartDeflate()
		s.Expect("A0003 NOOP")
		s.Send("A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if err := c.Compress(ctxb()); err != nil {
		t.Fatal(err)
	}
	// The connection keeps working through the deflate layer.
	if err := c.Noop(ctxb()); err != nil {
		t.Fatal(err)
	}
}

func TestStartTLS(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1", "STARTTLS")
		s.Expect("A0001 STARTTLS")
		s.Send("A0001 OK begin TLS")
		s.StartTLS(tlstest.ServerConfig)
		s.Expect("A0002 CAPABILITY")
		s.Send("* CAPABILITY IMAP4rev1 AUTH=PLAIN", "A0002 OK done")
		s.Expect("A0003 LOGIN user pass")
		s.Send("A0003 OK authenticated")
	})

	// net.Pipe has no address to infer a server name from.
	cfg := tlstest.ClientConfig.Clone()
	cfg.ServerName = "localhost"
	if err := c.StartTLS(ctxb(), cfg); err != nil {
		t.Fatal(err)
	}
	if !c.Caps().Has("AUTH=PLAIN") {
		t.Errorf("caps after STARTTLS=%v", c.Caps().List())
	}
	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
}

func TestUIDValidityChangeDiscardsMap(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 1 EXISTS", "* 0 RECENT",
			"* OK [UIDVALIDITY 100] Ok",
			"A0002 OK [READ-WRITE] done")
		s.Expect("A0003 UID FETCH 7 (FLAGS UID)")
		s.Send("* 1 FETCH (UID 7)", "A0003 OK done")
		s.Expect("A0004 NOOP")
		s.Send("* OK [UIDVALIDITY 200] epoch changed", "A0004 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.UIDFetch(ctxb(), imap.UIDSetOf(7), nil); err != nil {
		t.Fatal(err)
	}
	mbox := c.Mailbox()
	if mbox.UIDForSeq(1) != 7 {
		t.Fatalf("map not primed: %d", mbox.UIDForSeq(1))
	}
	if err := c.Noop(ctxb()); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent[*UIDValidityChangedEvent](t, c)
	if ev.UIDValidity != 200 {
		t.Errorf("event validity=%d", ev.UIDValidity)
	}
	if got := mbox.UIDForSeq(1); got != 0 {
		t.Errorf("cached UID survived epoch change: %d", got)
	}
	if got := mbox.UIDValidity(); got != 200 {
		t.Errorf("uidvalidity=%d", got)
	}
}

// An unsolicited FETCH may race ahead of its EXISTS; the map grows
// a placeholder entry and arrival events fire.
func TestUnsolicitedFetchBeyondCount(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 SELECT INBOX")
		s.Send("* 1 EXISTS", "* 0 RECENT", "A0002 OK [READ-WRITE] done")
		s.Expect("A0003 NOOP")
		s.Send(`* 2 FETCH (UID 202 FLAGS (\Seen))`, "A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Select(ctxb(), "INBOX", nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Noop(ctxb()); err != nil {
		t.Fatal(err)
	}
	if ev := nextEvent[*MessagesArrivedEvent](t, c); ev.Count != 1 {
		t.Errorf("arrived=%d", ev.Count)
	}
	if ev := nextEvent[*MessageFlagsChangedEvent](t, c); ev.Seq != 2 || ev.UID != 202 || !ev.Flags.Has(imap.FlagSeen) {
		t.Errorf("flags event=%+v", ev)
	}
	mbox := c.Mailbox()
	if mbox.Count() != 2 || mbox.UIDForSeq(2) != 202 {
		t.Errorf("count=%d map[2]=%d", mbox.Count(), mbox.UIDForSeq(2))
	}
}

func TestCommandFailedDoesNotDisconnect(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
		s.Expect("A0001 LOGIN user pass")
		s.Send("A0001 OK authenticated")
		s.Expect("A0002 CREATE Junk")
		s.Send("A0002 NO [ALREADYEXISTS] duplicate")
		s.Expect("A0003 NOOP")
		s.Send("A0003 OK done")
	})

	if err := c.Login(ctxb(), "user", "pass"); err != nil {
		t.Fatal(err)
	}
	err := c.Create(ctxb(), "Junk")
	var failed *imap.CommandFailedError
	if !errors.As(err, &failed) || failed.Reason != imap.FailAlreadyExists {
		t.Fatalf("err=%v", err)
	}
	if err := c.Noop(ctxb()); err != nil {
		t.Errorf("connection unusable after NO: %v", err)
	}
}

func TestPreconditionErrors(t *testing.T) {
	c := testClient(t, func(s *imaptest.Server) {
		s.Greet("IMAP4rev1")
	})
	// No I/O happens for these: the script expects nothing.
	if _, err := c.Fetch(ctxb(), []imap.SeqRange{{Min: 1, Max: 1}}, nil); !errors.Is(err, imap.ErrNotAuthenticated) {
		t.Errorf("Fetch err=%v", err)
	}
	if _, err := c.Select(ctxb(), "INBOX", &SelectOptions{QResync: &QResyncParams{}}); err == nil {
		t.Error("QRESYNC select without capability must fail")
	}
	if _, err := c.Namespace(ctxb()); !errors.Is(err, imap.ErrNotAuthenticated) {
		t.Errorf("Namespace err=%v", err)
	}
}
