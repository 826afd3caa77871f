package imap

import (
	"strconv"
	"strings"
)

// BodyStructure is one node of a parsed BODYSTRUCTURE (or BODY)
// fetch item. Multiparts carry Parts and a Subtype; leaves carry
// the content fields.
type BodyStructure struct {
	// Multipart fields.
	Parts []*BodyStructure

	Type     string // "" for multipart nodes
	Subtype  string
	Params   map[string]string
	ID       string
	Desc     string
	Encoding string
	Size     uint64 // octets, leaf parts only

	// message/rfc822 leaves only.
	Envelope *Envelope
	Embedded *BodyStructure
	Lines    uint64 // also set for text/* leaves

	// Extension data, present when the server sent the extended
	// BODYSTRUCTURE form.
	MD5         string
	Disposition string
	DispParams  map[string]string
	Language    []string
	Location    string
}

// IsMultipart reports whether the node is a multipart container.
func (bs *BodyStructure) IsMultipart() bool { return len(bs.Parts) > 0 }

// ContentType is the "type/subtype" MIME type of the node.
func (bs *BodyStructure) ContentType() string {
	if bs.IsMultipart() {
		return "multipart/" + strings.ToLower(bs.Subtype)
	}
	return strings.ToLower(bs.Type) + "/" + strings.ToLower(bs.Subtype)
}

// Part resolves a dotted IMAP part path such as "1.2" against
// the tree. An empty path names the node itself.
func (bs *BodyStructure) Part(path ...int) *BodyStructure {
	node := bs
	for _, n := range path {
		if n < 1 {
			return nil
		}
		switch {
		case node.IsMultipart():
			if n > len(node.Parts) {
				return nil
			}
			node = node.Parts[n-1]
		case node.Embedded != nil:
			if n != 1 {
				return nil
			}
			node = node.Embedded
		default:
			// Part 1 of a non-multipart is the part itself.
			if n != 1 {
				return nil
			}
		}
	}
	return node
}

// Walk visits every node depth-first. The path passed to fn is
// the IMAP part path of the node; it is reused between calls.
func (bs *BodyStructure) Walk(fn func(path []int, part *BodyStructure) bool) {
	bs.walk(nil, fn)
}

func (bs *BodyStructure) walk(path []int, fn func([]int, *BodyStructure) bool) bool {
	if !fn(path, bs) {
		return false
	}
	for i, part := range bs.Parts {
		if !part.walk(append(path, i+1), fn) {
			return false
		}
	}
	if bs.Embedded != nil {
		if !bs.Embedded.walk(append(path, 1), fn) {
			return false
		}
	}
	return true
}

// PartPath renders an IMAP section path, "1.2.3".
func PartPath(path []int) string {
	sb := new(strings.Builder)
	for i, n := range path {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(strconv.Itoa(n))
	}
	return sb.String()
}
