package imapwire

import (
	"strings"

	"sealed.ink/imap"
)

// parseFetch parses "* <seq> FETCH (...)" with the sequence number
// and FETCH atom already consumed.
//
// Servers may return more items than were requested; every item the
// grammar allows is accepted here and surfaced to the caller.
func (p *Parser) parseFetch(seq uint32) (Response, error) {
	s := p.Scanner
	resp := &FetchResponse{Seq: seq}

	if !s.Next(0) || s.Token != TokenListStart {
		return nil, p.error("FETCH missing item list")
	}

	for {
		if !s.Next(0) {
			resp.Close()
			return nil, p.error("FETCH unterminated item list")
		}
		if s.Token == TokenListEnd {
			break
		}
		if s.Token != TokenAtom {
			resp.Close()
			return nil, parseErrorf("imapwire: bad FETCH item token %v", s.Token)
		}
		asciiUpper(s.Value)
		key := string(s.Value)

		item, err := p.parseFetchItem(key)
		if err != nil {
			resp.Close()
			return nil, err
		}
		resp.Items = append(resp.Items, item)
	}

	if err := p.expectEnd(); err != nil {
		resp.Close()
		return nil, err
	}
	return resp, nil
}

func (p *Parser) parseFetchItem(key string) (FetchItemData, error) {
	s := p.Scanner
	item := FetchItemData{Key: key}

	switch key {
	case "UID":
		if !s.Next(TokenNumber) {
			return item, p.error("FETCH UID missing number")
		}
		item.Num32 = uint32(s.Number)

	case "FLAGS":
		flags, err := p.parseFlagList()
		if err != nil {
			return item, err
		}
		item.Flags = flags

	case "INTERNALDATE", "SAVEDATE":
		if !s.Next(TokenString) {
			return item, p.error("FETCH missing date-time")
		}
		item.Time = imap.ParseDate(string(s.Value))

	case "RFC822.SIZE":
		if !s.Next(TokenNumber) {
			return item, p.error("FETCH RFC822.SIZE missing number")
		}
		item.Num64 = s.Number

	case "X-GM-MSGID", "X-GM-THRID":
		if !s.Next(TokenNumber) {
			return item, p.error("FETCH missing Gmail id")
		}
		item.Num64 = s.Number

	case "MODSEQ":
		// "MODSEQ (<permsg-modsequence>)"
		if !s.Next(0) || s.Token != TokenListStart {
			return item, p.error("FETCH MODSEQ missing value")
		}
		if !s.Next(TokenNumber) {
			return item, p.error("FETCH MODSEQ missing number")
		}
		item.Num64 = s.Number
		if !s.Next(0) || s.Token != TokenListEnd {
			return item, p.error("FETCH MODSEQ unterminated")
		}

	case "ENVELOPE":
		env, err := p.parseEnvelope()
		if err != nil {
			return item, err
		}
		item.Envelope = env

	case "BODYSTRUCTURE":
		if !s.Next(0) || s.Token != TokenListStart {
			return item, p.error("FETCH BODYSTRUCTURE missing body")
		}
		bs, err := p.parseBodyStructure()
		if err != nil {
			return item, err
		}
		item.BodyStructure = bs

	case "BODY", "BINARY", "BINARY.SIZE":
		s.consumeWhitespace()
		if s.peekChar() == '[' {
			sec, err := p.parseBodySection(key)
			if err != nil {
				return item, err
			}
			if key == "BINARY.SIZE" {
				// "BINARY.SIZE[section] <number>"
				if !s.Next(TokenNumber) {
					return item, p.error("FETCH BINARY.SIZE missing number")
				}
				item.Key = key
				item.Str = sec.Specifier
				item.Num64 = s.Number
				return item, nil
			}
			item.Section = sec
			return item, nil
		}
		if key != "BODY" {
			return item, p.error("FETCH BINARY missing section")
		}
		// Non-extended BODY form: a bare body structure.
		if !s.Next(0) || s.Token != TokenListStart {
			return item, p.error("FETCH BODY missing body")
		}
		bs, err := p.parseBodyStructure()
		if err != nil {
			return item, err
		}
		item.BodyStructure = bs

	case "RFC822", "RFC822.HEADER", "RFC822.TEXT":
		sec := &BodySection{Origin: -1}
		switch key {
		case "RFC822.HEADER":
			sec.Specifier = "HEADER"
		case "RFC822.TEXT":
			sec.Specifier = "TEXT"
		}
		if err := p.readSectionContent(sec); err != nil {
			return item, err
		}
		item.Section = sec

	case "X-GM-LABELS":
		labels, err := p.parseLabelList()
		if err != nil {
			return item, err
		}
		item.Labels = labels

	case "PREVIEW":
		// nstring, optionally preceded by an algorithm list.
		s.consumeWhitespace()
		if s.peekChar() == '(' {
			s.Next(0)
			for {
				if !s.Next(0) {
					return item, p.error("FETCH PREVIEW unterminated modifier")
				}
				if s.Token == TokenListEnd {
					break
				}
			}
		}
		str, _, err := p.readNString()
		if err != nil {
			return item, err
		}
		item.Str = str

	case "EMAILID", "THREADID":
		// "(objectid)" or NIL
		if !s.Next(0) {
			return item, p.error("FETCH missing objectid")
		}
		switch s.Token {
		case TokenAtom:
			if !isNIL(s.Value) {
				return item, p.error("FETCH bad objectid")
			}
		case TokenListStart:
			if !s.Next(TokenAtom) {
				return item, p.error("FETCH missing objectid atom")
			}
			item.Str = string(s.Value)
			if !s.Next(0) || s.Token != TokenListEnd {
				return item, p.error("FETCH unterminated objectid")
			}
		default:
			return item, p.error("FETCH bad objectid")
		}

	default:
		// An item this client never requested and does not model.
		// Accept and skip its value to honor the FETCH contract.
		if err := p.skipValue(); err != nil {
			return item, err
		}
	}

	return item, nil
}

// parseBodySection parses "[<section>]<origin> <nstring>" with the
// scanner positioned at '['.
func (p *Parser) parseBodySection(key string) (*BodySection, error) {
	s := p.Scanner
	sec := &BodySection{Origin: -1}

	s.readChar() // consume '['
	spec, err := p.readSectionSpecifier()
	if err != nil {
		return nil, err
	}
	sec.Specifier = spec

	if s.peekChar() == '<' {
		s.readChar()
		v, err := s.readUint32()
		if err != nil {
			return nil, p.error("FETCH bad section origin")
		}
		sec.Origin = int64(v)
		if b := s.readChar(); b != '>' {
			return nil, p.error("FETCH unterminated section origin")
		}
	}

	if key == "BINARY.SIZE" {
		return sec, nil
	}
	if err := p.readSectionContent(sec); err != nil {
		return nil, err
	}
	return sec, nil
}

// readSectionSpecifier collects the raw text between the section
// brackets. Quoted strings inside (HEADER.FIELDS lists) are kept
// verbatim; a ']' inside quotes does not terminate the section.
func (p *Parser) readSectionSpecifier() (string, error) {
	s := p.Scanner
	var spec []byte
	inQuote := false
	for {
		b := s.readChar()
		if b == 0 {
			return "", p.error("FETCH unterminated section")
		}
		switch {
		case inQuote && b == '\\':
			spec = append(spec, b, s.readChar())
			continue
		case b == '"':
			inQuote = !inQuote
		case b == ']' && !inQuote:
			return string(spec), nil
		case b == '\r' || b == '\n':
			return "", p.error("FETCH unterminated section")
		}
		spec = append(spec, b)
	}
}

// readSectionContent reads the section payload: an nstring, or an
// RFC 3516 literal8 ("~{n}").
//
// Content bytes are preserved exactly; a literal's payload spans the
// full 8-bit range and is never charset-interpreted.
func (p *Parser) readSectionContent(sec *BodySection) error {
	s := p.Scanner
	s.consumeWhitespace()
	if s.peekChar() == '~' {
		s.readChar() // literal8 prefix
	}
	if !s.Next(0) {
		return p.error("FETCH missing section content")
	}
	switch s.Token {
	case TokenLiteral:
		if s.Literal != nil {
			sec.Literal = s.Literal
			s.Literal = nil
		} else {
			sec.Bytes = append([]byte(nil), s.Value...)
		}
	case TokenString:
		sec.Bytes = append([]byte(nil), s.Value...)
	case TokenAtom:
		if !isNIL(s.Value) {
			return p.error("FETCH bad section content")
		}
	default:
		return p.error("FETCH bad section content")
	}
	return nil
}

func (p *Parser) parseLabelList() ([]string, error) {
	s := p.Scanner
	if !s.Next(0) {
		return nil, p.error("FETCH X-GM-LABELS missing list")
	}
	if s.Token == TokenAtom && isNIL(s.Value) {
		return nil, nil
	}
	if s.Token != TokenListStart {
		return nil, p.error("FETCH X-GM-LABELS bad list")
	}
	var labels []string
	for {
		if !s.Next(0) {
			return nil, p.error("FETCH X-GM-LABELS unterminated list")
		}
		switch s.Token {
		case TokenListEnd:
			return labels, nil
		case TokenString, TokenAtom, TokenFlag:
			labels = append(labels, string(s.Value))
		case TokenLiteral:
			labels = append(labels, string(literalBytes(s)))
		default:
			return nil, parseErrorf("imapwire: bad label token %v", s.Token)
		}
	}
}

// readNString reads an nstring: quoted string, literal, or NIL.
// Spooled literals are drained into memory; nstrings are string
// fields (envelope members, previews), not message bodies.
func (p *Parser) readNString() (str string, null bool, err error) {
	s := p.Scanner
	if !s.Next(0) {
		return "", false, p.error("missing nstring")
	}
	switch s.Token {
	case TokenString:
		return string(s.Value), false, nil
	case TokenLiteral:
		return string(literalBytes(s)), false, nil
	case TokenAtom:
		if isNIL(s.Value) {
			return "", true, nil
		}
		// Lenient: accept a bare atom where an nstring is expected.
		return string(s.Value), false, nil
	case TokenNumber:
		return string(s.Value), false, nil
	default:
		return "", false, parseErrorf("imapwire: bad nstring token %v", s.Token)
	}
}

// parseEnvelope parses an ENVELOPE value:
//
//	envelope = "(" env-date SP env-subject SP env-from SP env-sender
//	            SP env-reply-to SP env-to SP env-cc SP env-bcc
//	            SP env-in-reply-to SP env-message-id ")"
func (p *Parser) parseEnvelope() (*imap.Envelope, error) {
	s := p.Scanner
	if !s.Next(0) || s.Token != TokenListStart {
		return nil, p.error("ENVELOPE missing open paren")
	}
	env := &imap.Envelope{}

	dateStr, _, err := p.readNString()
	if err != nil {
		return nil, err
	}
	env.Date = imap.ParseDate(dateStr)

	if env.Subject, _, err = p.readNString(); err != nil {
		return nil, err
	}

	for _, dst := range []*[]imap.Address{
		&env.From, &env.Sender, &env.ReplyTo, &env.To, &env.Cc, &env.Bcc,
	} {
		addrs, err := p.parseAddressList()
		if err != nil {
			return nil, err
		}
		*dst = addrs
	}

	if env.InReplyTo, _, err = p.readNString(); err != nil {
		return nil, err
	}
	if env.MessageID, _, err = p.readNString(); err != nil {
		return nil, err
	}

	if !s.Next(0) || s.Token != TokenListEnd {
		return nil, p.error("ENVELOPE missing close paren")
	}
	return env, nil
}

// parseAddressList parses "(" 1*address ")" or NIL.
func (p *Parser) parseAddressList() ([]imap.Address, error) {
	s := p.Scanner
	if !s.Next(0) {
		return nil, p.error("missing address list")
	}
	if s.Token == TokenAtom && isNIL(s.Value) {
		return nil, nil
	}
	if s.Token != TokenListStart {
		return nil, p.error("bad address list")
	}
	var addrs []imap.Address
	for {
		if !s.Next(0) {
			return nil, p.error("unterminated address list")
		}
		if s.Token == TokenListEnd {
			return addrs, nil
		}
		if s.Token != TokenListStart {
			return nil, p.error("bad address")
		}
		var addr imap.Address
		var err error
		if addr.Name, _, err = p.readNString(); err != nil {
			return nil, err
		}
		if addr.ADL, _, err = p.readNString(); err != nil {
			return nil, err
		}
		if addr.Mailbox, _, err = p.readNString(); err != nil {
			return nil, err
		}
		if addr.Host, _, err = p.readNString(); err != nil {
			return nil, err
		}
		if !s.Next(0) || s.Token != TokenListEnd {
			return nil, p.error("unterminated address")
		}
		addrs = append(addrs, addr)
	}
}

// parseBodyStructure parses a body (RFC 3501) with the opening
// paren already consumed. It handles both the basic and extended
// forms, tolerating extension fields it does not model.
func (p *Parser) parseBodyStructure() (*imap.BodyStructure, error) {
	s := p.Scanner
	bs := &imap.BodyStructure{}

	s.consumeWhitespace()
	if s.peekChar() == '(' {
		// body-type-mpart: 1*body SP media-subtype [ext]
		for {
			s.consumeWhitespace()
			if s.peekChar() != '(' {
				break
			}
			s.Next(0) // consume '('
			part, err := p.parseBodyStructure()
			if err != nil {
				return nil, err
			}
			bs.Parts = append(bs.Parts, part)
		}
		subtype, _, err := p.readNString()
		if err != nil {
			return nil, err
		}
		bs.Subtype = subtype

		if err := p.parseBodyExtensions(bs, true); err != nil {
			return nil, err
		}
		return bs, nil
	}

	// body-type-1part
	var err error
	if bs.Type, _, err = p.readNString(); err != nil {
		return nil, err
	}
	if bs.Subtype, _, err = p.readNString(); err != nil {
		return nil, err
	}
	if bs.Params, err = p.parseStringPairs(); err != nil {
		return nil, err
	}
	if bs.ID, _, err = p.readNString(); err != nil {
		return nil, err
	}
	if bs.Desc, _, err = p.readNString(); err != nil {
		return nil, err
	}
	if bs.Encoding, _, err = p.readNString(); err != nil {
		return nil, err
	}
	if !s.Next(TokenNumber) {
		return nil, p.error("body missing octet count")
	}
	bs.Size = s.Number

	if strings.EqualFold(bs.Type, "message") && strings.EqualFold(bs.Subtype, "rfc822") {
		env, err := p.parseEnvelope()
		if err != nil {
			return nil, err
		}
		bs.Envelope = env
		if !s.Next(0) || s.Token != TokenListStart {
			return nil, p.error("embedded message missing body")
		}
		if bs.Embedded, err = p.parseBodyStructure(); err != nil {
			return nil, err
		}
		if !s.Next(TokenNumber) {
			return nil, p.error("embedded message missing line count")
		}
		bs.Lines = s.Number
	} else if strings.EqualFold(bs.Type, "text") {
		if !s.Next(TokenNumber) {
			return nil, p.error("text body missing line count")
		}
		bs.Lines = s.Number
	}

	if err := p.parseBodyExtensions(bs, false); err != nil {
		return nil, err
	}
	return bs, nil
}

// parseBodyExtensions consumes the optional extension fields of a
// body, through the closing paren.
//
//	body-ext-1part = body-fld-md5 [SP body-fld-dsp [SP body-fld-lang
//	                 [SP body-fld-loc *(SP body-extension)]]]
//	body-ext-mpart = body-fld-param [SP body-fld-dsp ...]
func (p *Parser) parseBodyExtensions(bs *imap.BodyStructure, multipart bool) error {
	s := p.Scanner

	next := func() (done bool, err error) {
		s.consumeWhitespace()
		if s.peekChar() == ')' {
			s.Next(0)
			return true, nil
		}
		return false, nil
	}

	if multipart {
		if done, err := next(); done || err != nil {
			return err
		}
		params, err := p.parseStringPairs()
		if err != nil {
			return err
		}
		bs.Params = params
	} else {
		if done, err := next(); done || err != nil {
			return err
		}
		md5, _, err := p.readNString()
		if err != nil {
			return err
		}
		bs.MD5 = md5
	}

	if done, err := next(); done || err != nil {
		return err
	}
	if err := p.parseDisposition(bs); err != nil {
		return err
	}

	if done, err := next(); done || err != nil {
		return err
	}
	lang, err := p.parseLanguage()
	if err != nil {
		return err
	}
	bs.Language = lang

	if done, err := next(); done || err != nil {
		return err
	}
	if bs.Location, _, err = p.readNString(); err != nil {
		return err
	}

	// Trailing body-extension values this client does not model.
	for {
		if done, err := next(); err != nil {
			return err
		} else if done {
			return nil
		}
		if err := p.skipValue(); err != nil {
			return err
		}
	}
}

// parseDisposition parses body-fld-dsp:
//
//	"(" string SP body-fld-param ")" / nil
func (p *Parser) parseDisposition(bs *imap.BodyStructure) error {
	s := p.Scanner
	if !s.Next(0) {
		return p.error("missing disposition")
	}
	if s.Token == TokenAtom && isNIL(s.Value) {
		return nil
	}
	if s.Token != TokenListStart {
		return p.error("bad disposition")
	}
	disp, _, err := p.readNString()
	if err != nil {
		return err
	}
	bs.Disposition = disp
	if bs.DispParams, err = p.parseStringPairs(); err != nil {
		return err
	}
	if !s.Next(0) || s.Token != TokenListEnd {
		return p.error("unterminated disposition")
	}
	return nil
}

// parseLanguage parses body-fld-lang: nstring or a string list.
func (p *Parser) parseLanguage() ([]string, error) {
	s := p.Scanner
	s.consumeWhitespace()
	if s.peekChar() == '(' {
		s.Next(0)
		var langs []string
		for {
			if !s.Next(0) {
				return nil, p.error("unterminated language list")
			}
			if s.Token == TokenListEnd {
				return langs, nil
			}
			if s.Token != TokenString && s.Token != TokenAtom {
				return nil, p.error("bad language")
			}
			langs = append(langs, string(s.Value))
		}
	}
	lang, null, err := p.readNString()
	if err != nil {
		return nil, err
	}
	if null || lang == "" {
		return nil, nil
	}
	return []string{lang}, nil
}

// parseStringPairs parses body-fld-param:
//
//	"(" string SP string *(SP string SP string) ")" / nil
func (p *Parser) parseStringPairs() (map[string]string, error) {
	s := p.Scanner
	if !s.Next(0) {
		return nil, p.error("missing parameter list")
	}
	if s.Token == TokenAtom && isNIL(s.Value) {
		return nil, nil
	}
	if s.Token != TokenListStart {
		return nil, p.error("bad parameter list")
	}
	params := make(map[string]string)
	for {
		if !s.Next(0) {
			return nil, p.error("unterminated parameter list")
		}
		if s.Token == TokenListEnd {
			return params, nil
		}
		var key string
		switch s.Token {
		case TokenString, TokenAtom:
			key = string(s.Value)
		case TokenLiteral:
			key = string(literalBytes(s))
		default:
			return nil, p.error("bad parameter name")
		}
		value, _, err := p.readNString()
		if err != nil {
			return nil, err
		}
		params[strings.ToLower(key)] = value
	}
}

// skipValue consumes one value of any shape: an atom, string,
// number, literal, or a balanced parenthesized list.
func (p *Parser) skipValue() error {
	s := p.Scanner
	if !s.Next(0) {
		return p.error("missing value")
	}
	switch s.Token {
	case TokenAtom, TokenString, TokenNumber, TokenFlag:
		return nil
	case TokenLiteral:
		if s.Literal != nil {
			s.Literal.Close()
			s.Literal = nil
		}
		return nil
	case TokenListStart:
		depth := 1
		for depth > 0 {
			if !s.Next(0) {
				return p.error("unterminated list")
			}
			switch s.Token {
			case TokenListStart:
				depth++
			case TokenListEnd:
				depth--
			case TokenLiteral:
				if s.Literal != nil {
					s.Literal.Close()
					s.Literal = nil
				}
			case TokenEnd:
				return p.error("unterminated list")
			}
		}
		return nil
	default:
		return parseErrorf("imapwire: cannot skip token %v", s.Token)
	}
}
