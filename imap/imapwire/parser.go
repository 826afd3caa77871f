package imapwire

import (
	"fmt"
	"strings"

	"sealed.ink/imap"
)

// Parser consumes tokens from a Scanner and produces typed
// Response values per the IMAP4rev1 response grammar plus the
// extension grammars listed in the package comment.
type Parser struct {
	Scanner *Scanner
}

func NewParser(s *Scanner) *Parser {
	return &Parser{Scanner: s}
}

// ParseError reports an ungrammatical response.
type ParseError struct {
	msg string
}

func (e ParseError) Error() string { return e.msg }

func parseErrorf(format string, v ...interface{}) error {
	return ParseError{msg: fmt.Sprintf(format, v...)}
}

func (p *Parser) error(errctx string) error {
	if p.Scanner.Error != nil {
		return p.Scanner.Error
	}
	return parseErrorf("imapwire: %s", errctx)
}

// ReadResponse parses one complete server response, consuming
// through the final CRLF (and any literals the response carries).
//
// Any grammar violation is reported as an error; the engine treats
// such errors as fatal for the connection.
func (p *Parser) ReadResponse() (Response, error) {
	s := p.Scanner

	if !s.Next(0) {
		return nil, p.error("missing response start")
	}

	switch s.Token {
	case TokenStar:
		return p.parseUntagged()
	case TokenAtom:
		if len(s.Value) == 1 && s.Value[0] == '+' {
			text, err := s.ReadText()
			if err != nil {
				return nil, err
			}
			return &ContinuationResponse{Text: text}, nil
		}
		tag := string(s.Value)
		if !s.Next(TokenAtom) {
			return nil, p.error("missing tagged status")
		}
		return p.parseStatus(tag)
	case TokenNumber:
		// A line may not begin with a number.
		return nil, parseErrorf("imapwire: response begins with number %d", s.Number)
	default:
		return nil, parseErrorf("imapwire: unexpected response start token %v", s.Token)
	}
}

func (p *Parser) parseUntagged() (Response, error) {
	s := p.Scanner
	if !s.Next(0) {
		return nil, p.error("missing untagged response name")
	}

	if s.Token == TokenNumber {
		num := uint32(s.Number)
		if !s.Next(TokenAtom) {
			return nil, p.error("missing name after untagged number")
		}
		name := strings.ToUpper(string(s.Value))
		switch name {
		case "EXISTS":
			if err := p.expectEnd(); err != nil {
				return nil, err
			}
			return &ExistsResponse{Num: num}, nil
		case "RECENT":
			if err := p.expectEnd(); err != nil {
				return nil, err
			}
			return &RecentResponse{Num: num}, nil
		case "EXPUNGE":
			if err := p.expectEnd(); err != nil {
				return nil, err
			}
			return &ExpungeResponse{Seq: num}, nil
		case "FETCH":
			return p.parseFetch(num)
		default:
			return nil, parseErrorf("imapwire: unknown numbered response %q", name)
		}
	}

	if s.Token != TokenAtom {
		return nil, parseErrorf("imapwire: unexpected untagged token %v", s.Token)
	}
	name := strings.ToUpper(string(s.Value))
	switch name {
	case "OK", "NO", "BAD", "BYE", "PREAUTH":
		return p.parseStatusNamed("", RespStatus(name))
	case "CAPABILITY":
		caps, err := p.parseAtomsToEnd()
		if err != nil {
			return nil, err
		}
		return &CapabilityResponse{Caps: imap.NewCapabilities(caps...)}, nil
	case "ENABLED":
		caps, err := p.parseAtomsToEnd()
		if err != nil {
			return nil, err
		}
		return &EnabledResponse{Caps: imap.NewCapabilities(caps...)}, nil
	case "FLAGS":
		flags, err := p.parseFlagList()
		if err != nil {
			return nil, err
		}
		if err := p.expectEnd(); err != nil {
			return nil, err
		}
		return &FlagsResponse{Flags: flags}, nil
	case "SEARCH":
		return p.parseSearch(false)
	case "SORT":
		return p.parseSearch(true)
	case "ESEARCH":
		return p.parseESearch()
	case "THREAD":
		return p.parseThread()
	case "LIST", "LSUB", "XLIST":
		return p.parseList(name)
	case "STATUS":
		return p.parseMailboxStatus()
	case "NAMESPACE":
		return p.parseNamespace()
	case "VANISHED":
		return p.parseVanished()
	case "QUOTA":
		return p.parseQuota()
	case "QUOTAROOT":
		return p.parseQuotaRoot()
	case "ACL":
		return p.parseACL()
	case "MYRIGHTS":
		return p.parseMyRights()
	case "LISTRIGHTS":
		return p.parseListRights()
	case "METADATA":
		return p.parseMetadata()
	case "ID":
		return p.parseID()
	default:
		return nil, parseErrorf("imapwire: unknown untagged response %q", name)
	}
}

func (p *Parser) parseStatus(tag string) (Response, error) {
	status := RespStatus(strings.ToUpper(string(p.Scanner.Value)))
	switch status {
	case StatusOK, StatusNo, StatusBad:
	default:
		return nil, parseErrorf("imapwire: unknown tagged status %q", string(p.Scanner.Value))
	}
	return p.parseStatusNamed(tag, status)
}

func (p *Parser) parseStatusNamed(tag string, status RespStatus) (Response, error) {
	s := p.Scanner
	resp := &StatusResponse{Tag: tag, Status: status}

	s.consumeWhitespace()
	if s.peekChar() == '[' {
		s.Next(0) // consume '['
		code, err := p.parseRespCode()
		if err != nil {
			return nil, err
		}
		resp.Code = code
	}

	text, err := s.ReadText()
	if err != nil {
		return nil, err
	}
	resp.Text = text
	return resp, nil
}

// parseRespCode parses a resp-text-code, with the leading '['
// already consumed. It consumes through the closing ']'.
func (p *Parser) parseRespCode() (imap.CodeData, error) {
	s := p.Scanner
	var data imap.CodeData

	if !s.Next(TokenAtom) {
		return data, p.error("missing response code atom")
	}
	asciiUpper(s.Value)
	data.Code = imap.RespCode(s.Value)

	switch data.Code {
	case imap.CodeUIDValidity, imap.CodeUIDNext, imap.CodeUnseen:
		if !s.Next(TokenNumber) {
			return data, p.error("response code missing number")
		}
		data.Num = uint32(s.Number)
		data.Num64 = s.Number

	case imap.CodeHighestModSeq:
		if !s.Next(TokenNumber) {
			return data, p.error("HIGHESTMODSEQ missing number")
		}
		data.Num64 = s.Number

	case imap.CodeModified:
		if !s.Next(TokenSequences) {
			return data, p.error("MODIFIED missing sequence-set")
		}
		for _, r := range s.Sequences {
			data.Modified.AddRange(r.Min, r.Max)
		}

	case imap.CodePermanentFlags:
		flags, err := p.parseFlagList()
		if err != nil {
			return data, err
		}
		data.Flags = flags

	case imap.CodeCapability:
		for {
			s.consumeWhitespace()
			if s.peekChar() == ']' {
				break
			}
			if !s.Next(TokenAtom) {
				return data, p.error("CAPABILITY code missing atom")
			}
			data.Caps.Add(string(s.Value))
		}

	case imap.CodeAppendUID:
		if !s.Next(TokenNumber) {
			return data, p.error("APPENDUID missing uidvalidity")
		}
		data.UIDValidity = uint32(s.Number)
		if !s.Next(TokenSequences) {
			return data, p.error("APPENDUID missing uid-set")
		}
		for _, r := range s.Sequences {
			data.UIDs.AddRange(r.Min, r.Max)
		}

	case imap.CodeCopyUID:
		if !s.Next(TokenNumber) {
			return data, p.error("COPYUID missing uidvalidity")
		}
		data.UIDValidity = uint32(s.Number)
		if !s.Next(TokenSequences) {
			return data, p.error("COPYUID missing source uid-set")
		}
		// COPYUID sets are wire-ordered for element-wise
		// correspondence; keep the raw ranges, not a canonical set.
		data.SrcUIDs.Ranges = append(data.SrcUIDs.Ranges, s.Sequences...)
		if !s.Next(TokenSequences) {
			return data, p.error("COPYUID missing destination uid-set")
		}
		data.UIDs.Ranges = append(data.UIDs.Ranges, s.Sequences...)

	case imap.CodeBadCharset:
		s.consumeWhitespace()
		if s.peekChar() == '(' {
			s.Next(0)
			for {
				if !s.Next(0) {
					return data, p.error("BADCHARSET unterminated list")
				}
				if s.Token == TokenListEnd {
					break
				}
				if s.Token != TokenString && s.Token != TokenAtom {
					return data, p.error("BADCHARSET bad charset name")
				}
				data.Charsets = append(data.Charsets, string(s.Value))
			}
		}

	default:
		// Unrecognized codes carry free-form arguments; keep the
		// raw atoms so callers can still inspect them.
		for {
			s.consumeWhitespace()
			if b := s.peekChar(); b == ']' || b == 0 {
				break
			}
			if !s.Next(0) {
				return data, p.error("unterminated response code")
			}
			switch s.Token {
			case TokenAtom, TokenString, TokenNumber, TokenFlag:
				data.Args = append(data.Args, string(s.Value))
			case TokenSequences:
				// e.g. unknown codes carrying sets
				sb := new(strings.Builder)
				imap.FormatSeqs(sb, s.Sequences)
				data.Args = append(data.Args, sb.String())
			case TokenListStart, TokenListEnd:
				// flatten nested argument lists
			default:
				return data, parseErrorf("imapwire: bad response code argument %v", s.Token)
			}
		}
	}

	if !s.Next(0) || s.Token != TokenBracketEnd {
		return data, p.error("response code missing ']'")
	}
	return data, nil
}

func (p *Parser) expectEnd() error {
	if !p.Scanner.Next(TokenEnd) {
		return p.error("expected end of line")
	}
	return nil
}

func (p *Parser) parseAtomsToEnd() ([]string, error) {
	s := p.Scanner
	var atoms []string
	for {
		if !s.NextOrEnd(TokenAtom) {
			return nil, p.error("expected atom")
		}
		if s.Token == TokenEnd {
			return atoms, nil
		}
		atoms = append(atoms, string(s.Value))
	}
}

// parseFlagList parses "(" flag *(SP flag) ")", tolerating an
// empty list.
func (p *Parser) parseFlagList() (imap.FlagSet, error) {
	s := p.Scanner
	var flags imap.FlagSet
	if !s.Next(0) || s.Token != TokenListStart {
		return flags, p.error("expected flag list")
	}
	for {
		if !s.Next(0) {
			return flags, p.error("unterminated flag list")
		}
		switch s.Token {
		case TokenListEnd:
			return flags, nil
		case TokenFlag, TokenAtom:
			flags.Add(string(s.Value))
		default:
			return flags, parseErrorf("imapwire: unexpected flag token %v", s.Token)
		}
	}
}

func (p *Parser) parseSearch(isSort bool) (Response, error) {
	s := p.Scanner
	resp := &SearchResponse{Sort: isSort}
	for {
		if !s.NextOrEnd(TokenNumber) {
			// "(MODSEQ n)" may trail the ID list (RFC 4551).
			if s.Error != nil {
				return nil, s.Error
			}
			if !s.Next(0) || s.Token != TokenListStart {
				return nil, p.error("bad SEARCH result")
			}
			if !s.Next(TokenAtom) || !strings.EqualFold(string(s.Value), "MODSEQ") {
				return nil, p.error("bad SEARCH modifier")
			}
			if !s.Next(TokenNumber) {
				return nil, p.error("SEARCH MODSEQ missing number")
			}
			resp.ModSeq = s.Number
			if !s.Next(0) || s.Token != TokenListEnd {
				return nil, p.error("SEARCH MODSEQ unterminated")
			}
			if err := p.expectEnd(); err != nil {
				return nil, err
			}
			return resp, nil
		}
		if s.Token == TokenEnd {
			return resp, nil
		}
		resp.IDs = append(resp.IDs, uint32(s.Number))
	}
}

func (p *Parser) parseESearch() (Response, error) {
	s := p.Scanner
	resp := &ESearchResponse{}

	s.consumeWhitespace()
	if s.peekChar() == '(' {
		// search-correlator: "(TAG "str")"
		s.Next(0)
		if !s.Next(TokenAtom) || !strings.EqualFold(string(s.Value), "TAG") {
			return nil, p.error("ESEARCH bad correlator")
		}
		if !s.Next(TokenString) {
			return nil, p.error("ESEARCH correlator missing tag")
		}
		resp.Tag = string(s.Value)
		if !s.Next(0) || s.Token != TokenListEnd {
			return nil, p.error("ESEARCH unterminated correlator")
		}
	}

	for {
		if !s.NextOrEnd(TokenAtom) {
			return nil, p.error("bad ESEARCH item")
		}
		if s.Token == TokenEnd {
			return resp, nil
		}
		asciiUpper(s.Value)
		switch string(s.Value) {
		case "UID":
			resp.UID = true
		case "MIN":
			if !s.Next(TokenNumber) {
				return nil, p.error("ESEARCH MIN missing number")
			}
			resp.Min, resp.HasMin = uint32(s.Number), true
		case "MAX":
			if !s.Next(TokenNumber) {
				return nil, p.error("ESEARCH MAX missing number")
			}
			resp.Max, resp.HasMax = uint32(s.Number), true
		case "COUNT":
			if !s.Next(TokenNumber) {
				return nil, p.error("ESEARCH COUNT missing number")
			}
			resp.Count, resp.HasCount = uint32(s.Number), true
		case "ALL":
			if !s.Next(TokenSequences) {
				return nil, p.error("ESEARCH ALL missing sequence-set")
			}
			for _, r := range s.Sequences {
				resp.All.AddRange(r.Min, r.Max)
			}
			resp.HasAll = true
		case "MODSEQ":
			if !s.Next(TokenNumber) {
				return nil, p.error("ESEARCH MODSEQ missing number")
			}
			resp.ModSeq = s.Number
		default:
			return nil, parseErrorf("imapwire: unknown ESEARCH item %q", string(s.Value))
		}
	}
}

func (p *Parser) parseThread() (Response, error) {
	s := p.Scanner
	resp := &ThreadResponse{}
	for {
		if !s.Next(0) {
			return nil, p.error("bad THREAD response")
		}
		switch s.Token {
		case TokenEnd:
			return resp, nil
		case TokenListStart:
			th, err := p.parseThreadNode()
			if err != nil {
				return nil, err
			}
			resp.Threads = append(resp.Threads, th)
		default:
			return nil, parseErrorf("imapwire: unexpected THREAD token %v", s.Token)
		}
	}
}

// parseThreadNode parses one thread-list with the '(' consumed:
// a run of thread-members (numbers) followed by subthread lists.
func (p *Parser) parseThreadNode() (*Thread, error) {
	s := p.Scanner
	root := &Thread{}
	node := root
	first := true
	for {
		if !s.Next(0) {
			return nil, p.error("unterminated THREAD list")
		}
		switch s.Token {
		case TokenListEnd:
			if first {
				return nil, p.error("empty THREAD list")
			}
			return root, nil
		case TokenNumber:
			if first {
				node.ID = uint32(s.Number)
				first = false
			} else {
				child := &Thread{ID: uint32(s.Number)}
				node.Children = append(node.Children, child)
				node = child
			}
		case TokenListStart:
			child, err := p.parseThreadNode()
			if err != nil {
				return nil, err
			}
			if first {
				// "((3)(5))": a dummy parent grouping siblings.
				node.ID = 0
				first = false
			}
			node.Children = append(node.Children, child)
		default:
			return nil, parseErrorf("imapwire: unexpected THREAD member %v", s.Token)
		}
	}
}

func (p *Parser) parseList(command string) (Response, error) {
	s := p.Scanner
	resp := &ListResponse{Command: command}

	if !s.Next(0) || s.Token != TokenListStart {
		return nil, p.error("LIST missing attribute list")
	}
	for {
		if !s.Next(0) {
			return nil, p.error("LIST unterminated attribute list")
		}
		if s.Token == TokenListEnd {
			break
		}
		if s.Token != TokenFlag && s.Token != TokenAtom {
			return nil, parseErrorf("imapwire: bad LIST attribute token %v", s.Token)
		}
		resp.Attrs |= imap.ParseMailboxAttr(string(s.Value))
	}

	// hierarchy delimiter: quoted single char or NIL
	if !s.Next(0) {
		return nil, p.error("LIST missing delimiter")
	}
	switch s.Token {
	case TokenString:
		if len(s.Value) != 1 {
			return nil, parseErrorf("imapwire: bad LIST delimiter %q", string(s.Value))
		}
		resp.Delim = s.Value[0]
	case TokenAtom:
		if !isNIL(s.Value) {
			return nil, parseErrorf("imapwire: bad LIST delimiter %q", string(s.Value))
		}
	default:
		return nil, p.error("LIST missing delimiter")
	}

	if !s.Next(TokenString) {
		return nil, p.error("LIST missing mailbox")
	}
	resp.Mailbox = string(s.Value)

	// Optional LIST-EXTENDED mbox-list-extended data.
	s.consumeWhitespace()
	if s.peekChar() == '(' {
		s.Next(0)
		depth := 1
		for depth > 0 {
			if !s.Next(0) {
				return nil, p.error("LIST unterminated extended data")
			}
			switch s.Token {
			case TokenListStart:
				depth++
			case TokenListEnd:
				depth--
			case TokenAtom, TokenString:
				resp.ChildInfo = append(resp.ChildInfo, string(s.Value))
			default:
				return nil, parseErrorf("imapwire: bad LIST extended token %v", s.Token)
			}
		}
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Parser) parseMailboxStatus() (Response, error) {
	s := p.Scanner
	resp := &MailboxStatusResponse{}

	if !s.Next(TokenString) {
		return nil, p.error("STATUS missing mailbox")
	}
	resp.Mailbox = string(s.Value)

	if !s.Next(0) || s.Token != TokenListStart {
		return nil, p.error("STATUS missing attribute list")
	}
	for {
		if !s.Next(0) {
			return nil, p.error("STATUS unterminated attribute list")
		}
		if s.Token == TokenListEnd {
			break
		}
		if s.Token != TokenAtom {
			return nil, parseErrorf("imapwire: bad STATUS item token %v", s.Token)
		}
		asciiUpper(s.Value)
		item := string(s.Value)
		resp.Items = append(resp.Items, item)
		switch item {
		case "MAILBOXID":
			// "(objectid)"
			if !s.Next(0) || s.Token != TokenListStart {
				return nil, p.error("STATUS MAILBOXID missing value")
			}
			if !s.Next(TokenAtom) {
				return nil, p.error("STATUS MAILBOXID missing id")
			}
			resp.MailboxID = string(s.Value)
			if !s.Next(0) || s.Token != TokenListEnd {
				return nil, p.error("STATUS MAILBOXID unterminated")
			}
		default:
			if !s.Next(TokenNumber) {
				return nil, p.error("STATUS item missing number")
			}
			switch item {
			case "MESSAGES":
				resp.Messages = uint32(s.Number)
			case "RECENT":
				resp.Recent = uint32(s.Number)
			case "UIDNEXT":
				resp.UIDNext = uint32(s.Number)
			case "UIDVALIDITY":
				resp.UIDValidity = uint32(s.Number)
			case "UNSEEN":
				resp.Unseen = uint32(s.Number)
			case "SIZE":
				resp.Size = s.Number
			case "HIGHESTMODSEQ":
				resp.HighestModSeq = s.Number
			}
		}
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Parser) parseNamespace() (Response, error) {
	resp := &NamespaceResponse{}
	for i, dst := range []*[]imap.Namespace{&resp.Personal, &resp.Other, &resp.Shared} {
		ns, err := p.parseNamespaceList()
		if err != nil {
			return nil, fmt.Errorf("imapwire: NAMESPACE element %d: %v", i, err)
		}
		*dst = ns
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Parser) parseNamespaceList() ([]imap.Namespace, error) {
	s := p.Scanner
	if !s.Next(0) {
		return nil, p.error("missing namespace")
	}
	if s.Token == TokenAtom && isNIL(s.Value) {
		return nil, nil
	}
	if s.Token != TokenListStart {
		return nil, p.error("bad namespace")
	}
	var list []imap.Namespace
	for {
		if !s.Next(0) {
			return nil, p.error("unterminated namespace list")
		}
		if s.Token == TokenListEnd {
			return list, nil
		}
		if s.Token != TokenListStart {
			return nil, p.error("bad namespace entry")
		}
		var ns imap.Namespace
		if !s.Next(TokenString) {
			return nil, p.error("namespace missing prefix")
		}
		ns.Prefix = string(s.Value)
		if !s.Next(0) {
			return nil, p.error("namespace missing delimiter")
		}
		switch s.Token {
		case TokenString:
			if len(s.Value) == 1 {
				ns.Delim = s.Value[0]
			}
		case TokenAtom:
			if !isNIL(s.Value) {
				return nil, p.error("bad namespace delimiter")
			}
		default:
			return nil, p.error("bad namespace delimiter")
		}
		// Skip namespace-response-extensions.
		depth := 1
		for depth > 0 {
			if !s.Next(0) {
				return nil, p.error("unterminated namespace entry")
			}
			switch s.Token {
			case TokenListStart:
				depth++
			case TokenListEnd:
				depth--
			}
		}
		list = append(list, ns)
	}
}

func (p *Parser) parseVanished() (Response, error) {
	s := p.Scanner
	resp := &VanishedResponse{}

	s.consumeWhitespace()
	if s.peekChar() == '(' {
		s.Next(0)
		if !s.Next(TokenAtom) || !strings.EqualFold(string(s.Value), "EARLIER") {
			return nil, p.error("bad VANISHED modifier")
		}
		resp.Earlier = true
		if !s.Next(0) || s.Token != TokenListEnd {
			return nil, p.error("VANISHED unterminated modifier")
		}
	}
	if !s.Next(TokenSequences) {
		return nil, p.error("VANISHED missing uid-set")
	}
	for _, r := range s.Sequences {
		resp.UIDs.AddRange(r.Min, r.Max)
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Parser) parseQuota() (Response, error) {
	s := p.Scanner
	resp := &QuotaResponse{}
	if !s.Next(TokenString) {
		return nil, p.error("QUOTA missing root")
	}
	resp.Root = string(s.Value)
	if !s.Next(0) || s.Token != TokenListStart {
		return nil, p.error("QUOTA missing resource list")
	}
	for {
		if !s.Next(0) {
			return nil, p.error("QUOTA unterminated resource list")
		}
		if s.Token == TokenListEnd {
			break
		}
		if s.Token != TokenAtom {
			return nil, p.error("QUOTA bad resource name")
		}
		var res imap.QuotaResource
		asciiUpper(s.Value)
		res.Name = string(s.Value)
		if !s.Next(TokenNumber) {
			return nil, p.error("QUOTA missing usage")
		}
		res.Usage = s.Number
		if !s.Next(TokenNumber) {
			return nil, p.error("QUOTA missing limit")
		}
		res.Limit = s.Number
		resp.Resources = append(resp.Resources, res)
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Parser) parseQuotaRoot() (Response, error) {
	s := p.Scanner
	resp := &QuotaRootResponse{}
	if !s.Next(TokenString) {
		return nil, p.error("QUOTAROOT missing mailbox")
	}
	resp.Mailbox = string(s.Value)
	for {
		if !s.NextOrEnd(TokenString) {
			return nil, p.error("QUOTAROOT bad root")
		}
		if s.Token == TokenEnd {
			return resp, nil
		}
		resp.Roots = append(resp.Roots, string(s.Value))
	}
}

func (p *Parser) parseACL() (Response, error) {
	s := p.Scanner
	resp := &ACLResponse{}
	if !s.Next(TokenString) {
		return nil, p.error("ACL missing mailbox")
	}
	resp.Mailbox = string(s.Value)
	for {
		if !s.NextOrEnd(TokenString) {
			return nil, p.error("ACL bad identifier")
		}
		if s.Token == TokenEnd {
			return resp, nil
		}
		pair := imap.RightsPair{Identifier: string(s.Value)}
		if !s.Next(TokenString) {
			return nil, p.error("ACL missing rights")
		}
		pair.Rights = string(s.Value)
		resp.Rights = append(resp.Rights, pair)
	}
}

func (p *Parser) parseMyRights() (Response, error) {
	s := p.Scanner
	resp := &MyRightsResponse{}
	if !s.Next(TokenString) {
		return nil, p.error("MYRIGHTS missing mailbox")
	}
	resp.Mailbox = string(s.Value)
	if !s.Next(TokenString) {
		return nil, p.error("MYRIGHTS missing rights")
	}
	resp.Rights = string(s.Value)
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return resp, nil
}

func (p *Parser) parseListRights() (Response, error) {
	s := p.Scanner
	resp := &ListRightsResponse{}
	if !s.Next(TokenString) {
		return nil, p.error("LISTRIGHTS missing mailbox")
	}
	resp.Mailbox = string(s.Value)
	if !s.Next(TokenString) {
		return nil, p.error("LISTRIGHTS missing identifier")
	}
	resp.Identifier = string(s.Value)
	if !s.Next(TokenString) {
		return nil, p.error("LISTRIGHTS missing required rights")
	}
	resp.Required = string(s.Value)
	for {
		if !s.NextOrEnd(TokenString) {
			return nil, p.error("LISTRIGHTS bad optional rights")
		}
		if s.Token == TokenEnd {
			return resp, nil
		}
		resp.Optional = append(resp.Optional, string(s.Value))
	}
}

func (p *Parser) parseMetadata() (Response, error) {
	s := p.Scanner
	resp := &MetadataResponse{}
	if !s.Next(TokenString) {
		return nil, p.error("METADATA missing mailbox")
	}
	resp.Mailbox = string(s.Value)

	s.consumeWhitespace()
	if s.peekChar() == '(' {
		// entry-value pairs
		s.Next(0)
		for {
			if !s.Next(0) {
				return nil, p.error("METADATA unterminated entry list")
			}
			if s.Token == TokenListEnd {
				break
			}
			if s.Token != TokenString && s.Token != TokenAtom {
				return nil, p.error("METADATA bad entry name")
			}
			entry := imap.MetadataEntry{Name: string(s.Value)}
			if !s.Next(0) {
				return nil, p.error("METADATA missing entry value")
			}
			switch s.Token {
			case TokenString:
				entry.Value = append([]byte(nil), s.Value...)
				entry.HasValue = true
			case TokenLiteral:
				entry.Value = literalBytes(s)
				entry.HasValue = true
			case TokenAtom:
				if !isNIL(s.Value) {
					return nil, p.error("METADATA bad entry value")
				}
				entry.HasValue = true
			default:
				return nil, p.error("METADATA bad entry value")
			}
			resp.Entries = append(resp.Entries, entry)
		}
		if err := p.expectEnd(); err != nil {
			return nil, err
		}
		return resp, nil
	}

	// unsolicited form: entry names to end of line
	for {
		if !s.NextOrEnd(TokenString) {
			return nil, p.error("METADATA bad entry name")
		}
		if s.Token == TokenEnd {
			return resp, nil
		}
		resp.Entries = append(resp.Entries, imap.MetadataEntry{Name: string(s.Value)})
	}
}

func (p *Parser) parseID() (Response, error) {
	s := p.Scanner
	resp := &IDResponse{Params: make(map[string]string)}
	if !s.Next(0) {
		return nil, p.error("ID missing parameter list")
	}
	switch s.Token {
	case TokenAtom:
		if !isNIL(s.Value) {
			return nil, p.error("ID bad parameter list")
		}
	case TokenListStart:
		for {
			if !s.Next(0) {
				return nil, p.error("ID unterminated parameter list")
			}
			if s.Token == TokenListEnd {
				break
			}
			if s.Token != TokenString && s.Token != TokenAtom {
				return nil, p.error("ID bad field name")
			}
			name := string(s.Value)
			if !s.Next(0) {
				return nil, p.error("ID missing field value")
			}
			var value string
			switch s.Token {
			case TokenString:
				value = string(s.Value)
			case TokenAtom:
				if !isNIL(s.Value) {
					value = string(s.Value)
				}
			case TokenNumber:
				value = string(s.Value)
			default:
				return nil, p.error("ID bad field value")
			}
			resp.Params[name] = value
		}
	default:
		return nil, p.error("ID bad parameter list")
	}
	if err := p.expectEnd(); err != nil {
		return nil, err
	}
	return resp, nil
}

func isNIL(b []byte) bool {
	return len(b) == 3 && (b[0] == 'N' || b[0] == 'n') &&
		(b[1] == 'I' || b[1] == 'i') && (b[2] == 'L' || b[2] == 'l')
}

// literalBytes drains an inline or spooled literal into memory.
// Used for values that are semantically strings (metadata, envelope
// fields) regardless of how the scanner buffered them.
func literalBytes(s *Scanner) []byte {
	if s.Literal == nil {
		return append([]byte(nil), s.Value...)
	}
	lit := s.Literal
	s.Literal = nil
	defer lit.Close()
	buf := make([]byte, lit.Size())
	if _, err := lit.ReadAt(buf, 0); err != nil {
		s.Error = err
		return nil
	}
	return buf
}
