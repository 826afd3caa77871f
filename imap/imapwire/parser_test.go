package imapwire

import (
	"bufio"
	"io"
	"reflect"
	"strings"
	"testing"
	"time"

	"sealed.ink/imap"
)

func newTestParser(input string) *Parser {
	s := NewScanner(bufio.NewReader(strings.NewReader(input)), nil)
	return NewParser(s)
}

func mustParse(t *testing.T, input string) Response {
	t.Helper()
	resp, err := newTestParser(input).ReadResponse()
	if err != nil {
		t.Fatalf("ReadResponse(%q): %v", input, err)
	}
	return resp
}

var statusResponseTests = []struct {
	input string
	want  StatusResponse
}{
	{
		input: "A0001 OK done\r\n",
		want:  StatusResponse{Tag: "A0001", Status: StatusOK, Text: "done"},
	},
	{
		input: "A0002 NO [ALREADYEXISTS] mailbox exists\r\n",
		want: StatusResponse{
			Tag: "A0002", Status: StatusNo,
			Code: imap.CodeData{Code: imap.CodeAlreadyExists},
			Text: "mailbox exists",
		},
	},
	{
		input: "* OK [UIDVALIDITY 3857529045] Ok\r\n",
		want: StatusResponse{
			Status: StatusOK,
			Code:   imap.CodeData{Code: imap.CodeUIDValidity, Num: 3857529045, Num64: 3857529045},
			Text:   "Ok",
		},
	},
	{
		input: "* OK [HIGHESTMODSEQ 715194045007] Ok\r\n",
		want: StatusResponse{
			Status: StatusOK,
			Code:   imap.CodeData{Code: imap.CodeHighestModSeq, Num64: 715194045007},
			Text:   "Ok",
		},
	},
	{
		input: "* OK [NOMODSEQ] no CONDSTORE here\r\n",
		want: StatusResponse{
			Status: StatusOK,
			Code:   imap.CodeData{Code: imap.CodeNoModSeq},
			Text:   "no CONDSTORE here",
		},
	},
	{
		input: "A0010 OK [MODIFIED 102] STORE\r\n",
		want: StatusResponse{
			Tag: "A0010", Status: StatusOK,
			Code: imap.CodeData{
				Code:     imap.CodeModified,
				Modified: imap.UIDSetOf(102),
			},
			Text: "STORE",
		},
	},
	{
		input: "A0005 OK [APPENDUID 38505 3955] APPEND\r\n",
		want: StatusResponse{
			Tag: "A0005", Status: StatusOK,
			Code: imap.CodeData{
				Code:        imap.CodeAppendUID,
				UIDValidity: 38505,
				UIDs:        imap.UIDSetOf(3955),
			},
			Text: "APPEND",
		},
	},
	{
		input: "A0006 OK [COPYUID 38505 304,319:320 3956:3958] Done\r\n",
		want: StatusResponse{
			Tag: "A0006", Status: StatusOK,
			Code: imap.CodeData{
				Code:        imap.CodeCopyUID,
				UIDValidity: 38505,
				SrcUIDs:     imap.UIDSet{Ranges: []imap.SeqRange{{Min: 304, Max: 304}, {Min: 319, Max: 320}}},
				UIDs:        imap.UIDSet{Ranges: []imap.SeqRange{{Min: 3956, Max: 3958}}},
			},
			Text: "Done",
		},
	},
	{
		input: "A0007 NO [BADCHARSET (UTF-8 US-ASCII)] bad charset\r\n",
		want: StatusResponse{
			Tag: "A0007", Status: StatusNo,
			Code: imap.CodeData{
				Code:     imap.CodeBadCharset,
				Charsets: []string{"UTF-8", "US-ASCII"},
			},
			Text: "bad charset",
		},
	},
	{
		input: "* OK [UNSEEN 12] first unseen\r\n",
		want: StatusResponse{
			Status: StatusOK,
			Code:   imap.CodeData{Code: imap.CodeUnseen, Num: 12, Num64: 12},
			Text:   "first unseen",
		},
	},
	{
		input: "* NO [X-UNKNOWN foo 42] whatever\r\n",
		want: StatusResponse{
			Status: StatusNo,
			Code:   imap.CodeData{Code: "X-UNKNOWN", Args: []string{"foo", "42"}},
			Text:   "whatever",
		},
	},
	{
		input: "* BYE going down\r\n",
		want:  StatusResponse{Status: StatusBye, Text: "going down"},
	},
}

func TestParseStatusResponses(t *testing.T) {
	for _, test := range statusResponseTests {
		t.Run(test.input, func(t *testing.T) {
			resp := mustParse(t, test.input)
			st, ok := resp.(*StatusResponse)
			if !ok {
				t.Fatalf("got %T, want *StatusResponse", resp)
			}
			if !reflect.DeepEqual(*st, test.want) {
				t.Errorf("got %+v, want %+v", *st, test.want)
			}
		})
	}
}

func TestParseStatusCodeCapability(t *testing.T) {
	resp := mustParse(t, "A0002 OK [CAPABILITY IMAP4rev1 IDLE UIDPLUS CONDSTORE] authenticated\r\n")
	st := resp.(*StatusResponse)
	if st.Code.Code != imap.CodeCapability {
		t.Fatalf("code=%v", st.Code.Code)
	}
	if !st.Code.Caps.SupportsIdle() || !st.Code.Caps.SupportsUidPlus() || !st.Code.Caps.SupportsCondStore() {
		t.Errorf("caps missing: %v", st.Code.Caps.List())
	}
}

func TestParsePermanentFlags(t *testing.T) {
	resp := mustParse(t, `* OK [PERMANENTFLAGS (\Deleted \Seen \*)] Ok`+"\r\n")
	st := resp.(*StatusResponse)
	if st.Code.Code != imap.CodePermanentFlags {
		t.Fatalf("code=%v", st.Code.Code)
	}
	flags := st.Code.Flags
	if !flags.Has(imap.FlagDeleted) || !flags.Has(imap.FlagSeen) || !flags.Wildcard {
		t.Errorf("flags=%v", flags)
	}
}

func TestParseNumbered(t *testing.T) {
	if r := mustParse(t, "* 172 EXISTS\r\n").(*ExistsResponse); r.Num != 172 {
		t.Errorf("EXISTS=%d", r.Num)
	}
	if r := mustParse(t, "* 1 RECENT\r\n").(*RecentResponse); r.Num != 1 {
		t.Errorf("RECENT=%d", r.Num)
	}
	if r := mustParse(t, "* 2 EXPUNGE\r\n").(*ExpungeResponse); r.Seq != 2 {
		t.Errorf("EXPUNGE=%d", r.Seq)
	}
}

func TestParseFlagsResponse(t *testing.T) {
	r := mustParse(t, `* FLAGS (\Answered \Flagged \Deleted \Seen \Draft)`+"\r\n").(*FlagsResponse)
	for _, f := range []imap.Flag{imap.FlagAnswered, imap.FlagFlagged, imap.FlagDeleted, imap.FlagSeen, imap.FlagDraft} {
		if !r.Flags.Has(f) {
			t.Errorf("missing %v", f)
		}
	}
}

func TestParseCapabilityResponse(t *testing.T) {
	r := mustParse(t, "* CAPABILITY IMAP4rev1 IDLE UIDPLUS CONDSTORE LITERAL+\r\n").(*CapabilityResponse)
	if !r.Caps.SupportsIdle() || !r.Caps.SupportsLiteralPlus() {
		t.Errorf("caps=%v", r.Caps.List())
	}
}

func TestParseSearchResponses(t *testing.T) {
	r := mustParse(t, "* SEARCH 3 4 5\r\n").(*SearchResponse)
	if !reflect.DeepEqual(r.IDs, []uint32{3, 4, 5}) {
		t.Errorf("IDs=%v", r.IDs)
	}

	// Empty result.
	r = mustParse(t, "* SEARCH\r\n").(*SearchResponse)
	if len(r.IDs) != 0 {
		t.Errorf("empty SEARCH IDs=%v", r.IDs)
	}

	// CONDSTORE trailer.
	r = mustParse(t, "* SEARCH 2 5 6 (MODSEQ 917162500)\r\n").(*SearchResponse)
	if !reflect.DeepEqual(r.IDs, []uint32{2, 5, 6}) || r.ModSeq != 917162500 {
		t.Errorf("IDs=%v ModSeq=%d", r.IDs, r.ModSeq)
	}

	sorted := mustParse(t, "* SORT 5 3 4\r\n").(*SearchResponse)
	if !sorted.Sort || !reflect.DeepEqual(sorted.IDs, []uint32{5, 3, 4}) {
		t.Errorf("SORT=%+v", sorted)
	}
}

func TestParseESearch(t *testing.T) {
	r := mustParse(t, "* ESEARCH (TAG \"A0004\") UID MIN 7 MAX 3800 COUNT 15 ALL 4:10,17\r\n").(*ESearchResponse)
	if r.Tag != "A0004" || !r.UID {
		t.Errorf("Tag=%q UID=%v", r.Tag, r.UID)
	}
	if !r.HasMin || r.Min != 7 || !r.HasMax || r.Max != 3800 || !r.HasCount || r.Count != 15 {
		t.Errorf("MIN/MAX/COUNT=%+v", r)
	}
	if !r.HasAll || r.All.String() != "4:10,17" {
		t.Errorf("ALL=%q", r.All.String())
	}

	// ESEARCH carrying only MODSEQ.
	r = mustParse(t, "* ESEARCH (TAG \"A0005\") UID MODSEQ 917162500\r\n").(*ESearchResponse)
	if r.ModSeq != 917162500 || r.HasAll || r.HasMin || r.HasMax || r.HasCount {
		t.Errorf("MODSEQ-only ESEARCH=%+v", r)
	}
}

func TestParseThread(t *testing.T) {
	r := mustParse(t, "* THREAD (2)(3 6 (4 23)(44 7 96))\r\n").(*ThreadResponse)
	if len(r.Threads) != 2 {
		t.Fatalf("threads=%d", len(r.Threads))
	}
	if r.Threads[0].ID != 2 || len(r.Threads[0].Children) != 0 {
		t.Errorf("first thread=%+v", r.Threads[0])
	}
	root := r.Threads[1]
	if root.ID != 3 || len(root.Children) != 1 {
		t.Fatalf("second thread=%+v", root)
	}
	six := root.Children[0]
	if six.ID != 6 || len(six.Children) != 2 {
		t.Fatalf("six=%+v", six)
	}
	if six.Children[0].ID != 4 || six.Children[1].ID != 44 {
		t.Errorf("subthreads=%+v %+v", six.Children[0], six.Children[1])
	}
}

func TestParseList(t *testing.T) {
	r := mustParse(t, `* LIST (\HasNoChildren \Drafts) "/" Drafts`+"\r\n").(*ListResponse)
	if r.Command != "LIST" {
		t.Errorf("command=%q", r.Command)
	}
	if r.Attrs&imap.AttrDrafts == 0 || r.Attrs&imap.AttrHasNoChildren == 0 {
		t.Errorf("attrs=%v", r.Attrs)
	}
	if r.Delim != '/' || r.Mailbox != "Drafts" {
		t.Errorf("delim=%q mailbox=%q", r.Delim, r.Mailbox)
	}

	r = mustParse(t, `* LIST (\Noselect) NIL ""`+"\r\n").(*ListResponse)
	if r.Delim != 0 {
		t.Errorf("NIL delim=%q", r.Delim)
	}

	r = mustParse(t, `* LIST () "/" Spam ("CHILDINFO" ("SUBSCRIBED"))`+"\r\n").(*ListResponse)
	if !reflect.DeepEqual(r.ChildInfo, []string{"CHILDINFO", "SUBSCRIBED"}) {
		t.Errorf("childinfo=%v", r.ChildInfo)
	}
}

func TestParseMailboxStatus(t *testing.T) {
	r := mustParse(t, "* STATUS INBOX (MESSAGES 172 RECENT 1 UIDNEXT 4392 UIDVALIDITY 3857529045 UNSEEN 12 HIGHESTMODSEQ 715194045007 SIZE 44421)\r\n").(*MailboxStatusResponse)
	if r.Mailbox != "INBOX" || r.Messages != 172 || r.Recent != 1 ||
		r.UIDNext != 4392 || r.UIDValidity != 3857529045 || r.Unseen != 12 ||
		r.HighestModSeq != 715194045007 || r.Size != 44421 {
		t.Errorf("status=%+v", r)
	}
}

func TestParseNamespace(t *testing.T) {
	r := mustParse(t, `* NAMESPACE (("" "/")) (("~" "/")) NIL`+"\r\n").(*NamespaceResponse)
	if len(r.Personal) != 1 || r.Personal[0].Prefix != "" || r.Personal[0].Delim != '/' {
		t.Errorf("personal=%+v", r.Personal)
	}
	if len(r.Other) != 1 || r.Other[0].Prefix != "~" {
		t.Errorf("other=%+v", r.Other)
	}
	if r.Shared != nil {
		t.Errorf("shared=%+v", r.Shared)
	}
}

func TestParseVanished(t *testing.T) {
	r := mustParse(t, "* VANISHED (EARLIER) 41,43:45\r\n").(*VanishedResponse)
	if !r.Earlier {
		t.Error("EARLIER not seen")
	}
	if got, want := r.UIDs.String(), "41,43:45"; got != want {
		t.Errorf("uids=%q, want %q", got, want)
	}

	r = mustParse(t, "* VANISHED 405,407,410\r\n").(*VanishedResponse)
	if r.Earlier {
		t.Error("spurious EARLIER")
	}
	if got, want := r.UIDs.Count(), uint64(3); got != want {
		t.Errorf("count=%d", got)
	}
}

func TestParseQuota(t *testing.T) {
	r := mustParse(t, `* QUOTA "" (STORAGE 10 512 MESSAGE 30 1000)`+"\r\n").(*QuotaResponse)
	want := []imap.QuotaResource{
		{Name: "STORAGE", Usage: 10, Limit: 512},
		{Name: "MESSAGE", Usage: 30, Limit: 1000},
	}
	if r.Root != "" || !reflect.DeepEqual(r.Resources, want) {
		t.Errorf("quota=%+v", r)
	}

	root := mustParse(t, `* QUOTAROOT INBOX ""`+"\r\n").(*QuotaRootResponse)
	if root.Mailbox != "INBOX" || !reflect.DeepEqual(root.Roots, []string{""}) {
		t.Errorf("quotaroot=%+v", root)
	}
}

func TestParseACL(t *testing.T) {
	r := mustParse(t, "* ACL INBOX fred rwipslda anne lrs\r\n").(*ACLResponse)
	want := []imap.RightsPair{
		{Identifier: "fred", Rights: "rwipslda"},
		{Identifier: "anne", Rights: "lrs"},
	}
	if r.Mailbox != "INBOX" || !reflect.DeepEqual(r.Rights, want) {
		t.Errorf("acl=%+v", r)
	}

	mr := mustParse(t, "* MYRIGHTS INBOX rwipslda\r\n").(*MyRightsResponse)
	if mr.Rights != "rwipslda" {
		t.Errorf("myrights=%+v", mr)
	}

	lr := mustParse(t, "* LISTRIGHTS INBOX fred rwipslda l r s w\r\n").(*ListRightsResponse)
	if lr.Identifier != "fred" || lr.Required != "rwipslda" ||
		!reflect.DeepEqual(lr.Optional, []string{"l", "r", "s", "w"}) {
		t.Errorf("listrights=%+v", lr)
	}
}

func TestParseMetadata(t *testing.T) {
	r := mustParse(t, `* METADATA INBOX (/private/comment "My own comment" /shared/comment NIL)`+"\r\n").(*MetadataResponse)
	if len(r.Entries) != 2 {
		t.Fatalf("entries=%+v", r.Entries)
	}
	if r.Entries[0].Name != "/private/comment" || string(r.Entries[0].Value) != "My own comment" {
		t.Errorf("entry 0=%+v", r.Entries[0])
	}
	if r.Entries[1].Name != "/shared/comment" || !r.Entries[1].HasValue || r.Entries[1].Value != nil {
		t.Errorf("entry 1=%+v", r.Entries[1])
	}

	// Unsolicited form: names only.
	r = mustParse(t, "* METADATA INBOX /shared/comment /private/comment\r\n").(*MetadataResponse)
	if len(r.Entries) != 2 || r.Entries[0].HasValue {
		t.Errorf("unsolicited=%+v", r.Entries)
	}
}

func TestParseID(t *testing.T) {
	r := mustParse(t, `* ID ("name" "Cyrus" "version" "1.5" "vendor" NIL)`+"\r\n").(*IDResponse)
	if r.Params["name"] != "Cyrus" || r.Params["version"] != "1.5" {
		t.Errorf("params=%v", r.Params)
	}
	if v, ok := r.Params["vendor"]; !ok || v != "" {
		t.Errorf("NIL value=%q ok=%v", v, ok)
	}

	r = mustParse(t, "* ID NIL\r\n").(*IDResponse)
	if len(r.Params) != 0 {
		t.Errorf("NIL params=%v", r.Params)
	}
}

func TestParseEnabled(t *testing.T) {
	r := mustParse(t, "* ENABLED QRESYNC UTF8=ACCEPT\r\n").(*EnabledResponse)
	if !r.Caps.SupportsQResync() || !r.Caps.SupportsUTF8Accept() {
		t.Errorf("enabled=%v", r.Caps.List())
	}
}

func TestParseContinuation(t *testing.T) {
	r := mustParse(t, "+ idling\r\n").(*ContinuationResponse)
	if r.Text != "idling" {
		t.Errorf("text=%q", r.Text)
	}
	r = mustParse(t, "+\r\n").(*ContinuationResponse)
	if r.Text != "" {
		t.Errorf("bare continuation text=%q", r.Text)
	}
}

func TestParseFetchLiteralBody(t *testing.T) {
	r := mustParse(t, "* 1 FETCH (UID 101 BODY[] {5}\r\nHello)\r\n").(*FetchResponse)
	defer r.Close()
	if r.Seq != 1 || r.UID() != 101 {
		t.Fatalf("seq=%d uid=%d", r.Seq, r.UID())
	}
	var sec *BodySection
	for i := range r.Items {
		if r.Items[i].Section != nil {
			sec = r.Items[i].Section
		}
	}
	if sec == nil {
		t.Fatal("no body section")
	}
	if sec.Specifier != "" || sec.Origin != -1 {
		t.Errorf("specifier=%q origin=%d", sec.Specifier, sec.Origin)
	}
	body, err := io.ReadAll(sec.Reader())
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "Hello" || sec.Len() != 5 {
		t.Errorf("body=%q len=%d", body, sec.Len())
	}
}

func TestParseFetchItems(t *testing.T) {
	input := `* 12 FETCH (FLAGS (\Seen $Important) INTERNALDATE "17-Jul-1996 02:44:25 -0700" ` +
		`RFC822.SIZE 4286 MODSEQ (917162500) UID 4827313 ` +
		`X-GM-MSGID 1278455344230334865 X-GM-LABELS (\Inbox \Sent Custom))` + "\r\n"
	r := mustParse(t, input).(*FetchResponse)
	items := map[string]*FetchItemData{}
	for i := range r.Items {
		items[r.Items[i].Key] = &r.Items[i]
	}
	if it := items["FLAGS"]; it == nil || !it.Flags.Has(imap.FlagSeen) || !it.Flags.HasKeyword("$Important") {
		t.Errorf("FLAGS=%+v", it)
	}
	if it := items["INTERNALDATE"]; it == nil || it.Time.IsZero() ||
		!it.Time.Equal(time.Date(1996, 7, 17, 2, 44, 25, 0, time.FixedZone("", -7*3600))) {
		t.Errorf("INTERNALDATE=%+v", it)
	}
	if it := items["RFC822.SIZE"]; it == nil || it.Num64 != 4286 {
		t.Errorf("RFC822.SIZE=%+v", it)
	}
	if it := items["MODSEQ"]; it == nil || it.Num64 != 917162500 {
		t.Errorf("MODSEQ=%+v", it)
	}
	if it := items["UID"]; it == nil || it.Num32 != 4827313 {
		t.Errorf("UID=%+v", it)
	}
	if it := items["X-GM-MSGID"]; it == nil || it.Num64 != 1278455344230334865 {
		t.Errorf("X-GM-MSGID=%+v", it)
	}
	if it := items["X-GM-LABELS"]; it == nil || !reflect.DeepEqual(it.Labels, []string{`\Inbox`, `\Sent`, "Custom"}) {
		t.Errorf("X-GM-LABELS=%+v", it)
	}
}

func TestParseFetchEnvelope(t *testing.T) {
	input := `* 2 FETCH (ENVELOPE ("Wed, 17 Jul 1996 02:23:25 -0700" "IMAP4rev1 WG mtg summary" ` +
		`(("Terry Gray" NIL "gray" "cac.washington.edu")) ` +
		`(("Terry Gray" NIL "gray" "cac.washington.edu")) ` +
		`(("Terry Gray" NIL "gray" "cac.washington.edu")) ` +
		`((NIL NIL "imap" "cac.washington.edu")) ` +
		`((NIL NIL "minutes" "CNRI.Reston.VA.US") ("John Klensin" NIL "KLENSIN" "MIT.EDU")) ` +
		`NIL NIL "<B27397-0100000@cac.washington.edu>"))` + "\r\n"
	r := mustParse(t, input).(*FetchResponse)
	var env *imap.Envelope
	for i := range r.Items {
		if r.Items[i].Key == "ENVELOPE" {
			env = r.Items[i].Envelope
		}
	}
	if env == nil {
		t.Fatal("no envelope")
	}
	if env.Subject != "IMAP4rev1 WG mtg summary" {
		t.Errorf("subject=%q", env.Subject)
	}
	if len(env.From) != 1 || env.From[0].Name != "Terry Gray" || env.From[0].Addr() != "gray@cac.washington.edu" {
		t.Errorf("from=%+v", env.From)
	}
	if len(env.Cc) != 2 || env.Cc[1].Addr() != "KLENSIN@MIT.EDU" {
		t.Errorf("cc=%+v", env.Cc)
	}
	if env.MessageID != "<B27397-0100000@cac.washington.edu>" {
		t.Errorf("message-id=%q", env.MessageID)
	}
	if env.Date.IsZero() {
		t.Error("date not parsed")
	}
}

func TestParseFetchBodyStructure(t *testing.T) {
	input := `* 3 FETCH (BODYSTRUCTURE (("TEXT" "PLAIN" ("CHARSET" "US-ASCII") NIL NIL "7BIT" 1152 23)` +
		`("TEXT" "PLAIN" ("CHARSET" "US-ASCII" "NAME" "cc.diff") "<960723163407.20117h@cac.washington.edu>" ` +
		`"Compiler diff" "BASE64" 4554 73) "MIXED"))` + "\r\n"
	r := mustParse(t, input).(*FetchResponse)
	var bs *imap.BodyStructure
	for i := range r.Items {
		if r.Items[i].Key == "BODYSTRUCTURE" {
			bs = r.Items[i].BodyStructure
		}
	}
	if bs == nil {
		t.Fatal("no bodystructure")
	}
	if !bs.IsMultipart() || bs.Subtype != "MIXED" || len(bs.Parts) != 2 {
		t.Fatalf("root=%+v", bs)
	}
	p1 := bs.Parts[0]
	if p1.ContentType() != "text/plain" || p1.Size != 1152 || p1.Lines != 23 {
		t.Errorf("part 1=%+v", p1)
	}
	p2 := bs.Parts[1]
	if p2.Params["name"] != "cc.diff" || p2.Encoding != "BASE64" || p2.Size != 4554 {
		t.Errorf("part 2=%+v", p2)
	}
	if got := bs.Part(2); got != p2 {
		t.Errorf("Part(2)=%+v", got)
	}
}

func TestParseFetchSectionForms(t *testing.T) {
	r := mustParse(t, `* 4 FETCH (BODY[HEADER.FIELDS (FROM TO)] {13}`+"\r\n"+
		`From: a@b.c`+"\r\n"+`)`+"\r\n").(*FetchResponse)
	defer r.Close()
	sec := r.Items[0].Section
	if sec == nil || sec.Specifier != `HEADER.FIELDS (FROM TO)` {
		t.Fatalf("section=%+v", sec)
	}

	r = mustParse(t, `* 5 FETCH (BODY[1.2]<100> "partial")`+"\r\n").(*FetchResponse)
	sec = r.Items[0].Section
	if sec == nil || sec.Specifier != "1.2" || sec.Origin != 100 {
		t.Fatalf("partial section=%+v", sec)
	}
	b, _ := io.ReadAll(sec.Reader())
	if string(b) != "partial" {
		t.Errorf("content=%q", b)
	}
}

func TestParseFetchUnknownItem(t *testing.T) {
	// Servers may return more than was asked; unknown items are
	// accepted and skipped.
	r := mustParse(t, `* 6 FETCH (UID 9 X-WEIRD (1 2 (3)) FLAGS (\Seen))`+"\r\n").(*FetchResponse)
	if r.UID() != 9 {
		t.Errorf("uid=%d", r.UID())
	}
	var sawFlags bool
	for i := range r.Items {
		if r.Items[i].Key == "FLAGS" {
			sawFlags = r.Items[i].Flags.Has(imap.FlagSeen)
		}
	}
	if !sawFlags {
		t.Error("items after unknown item were lost")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input  string
		errstr string
	}{
		{input: "* 5 BOGUS\r\n", errstr: "unknown numbered response"},
		{input: "* WHATEVER 1\r\n", errstr: "unknown untagged response"},
		{input: "A0001 MAYBE done\r\n", errstr: "unknown tagged status"},
		{input: "* 1 FETCH (UID)\r\n", errstr: "FETCH UID missing number"},
		{input: "* VANISHED\r\n", errstr: "VANISHED missing uid-set"},
	}
	for _, test := range tests {
		_, err := newTestParser(test.input).ReadResponse()
		if err == nil {
			t.Errorf("%q: no error, want %q", test.input, test.errstr)
			continue
		}
		if !strings.Contains(err.Error(), test.errstr) {
			t.Errorf("%q: error %v, want %q", test.input, err, test.errstr)
		}
	}
}

func TestParseFetchBinary(t *testing.T) {
	r := mustParse(t, "* 7 FETCH (BINARY[1] ~{4}\r\nabcd)\r\n").(*FetchResponse)
	defer r.Close()
	sec := r.Items[0].Section
	if sec == nil || sec.Specifier != "1" {
		t.Fatalf("section=%+v", sec)
	}
	b, _ := io.ReadAll(sec.Reader())
	if string(b) != "abcd" {
		t.Errorf("content=%q", b)
	}

	sz := mustParse(t, "* 8 FETCH (BINARY.SIZE[1] 1024)\r\n").(*FetchResponse)
	if sz.Items[0].Num64 != 1024 {
		t.Errorf("BINARY.SIZE=%+v", sz.Items[0])
	}
}
