package imap

import (
	"sort"
	"strings"
)

// A UIDSet is a sorted set of message UIDs within a single
// UIDVALIDITY epoch, stored as non-overlapping inclusive ranges.
//
// The zero value is an empty set ready for use.
type UIDSet struct {
	// Ranges are sorted by Min and never overlap or abut.
	// Max == 0 marks an open-ended range ('*'); Min == 0 too
	// means the bare '*' value.
	Ranges []SeqRange
}

// star orders open-ended range endpoints beyond any legal UID.
const star = uint64(1) << 32

func rangeLo(r SeqRange) uint64 {
	if r.Min == 0 {
		return star
	}
	return uint64(r.Min)
}

func rangeHi(r SeqRange) uint64 {
	if r.Max == 0 {
		return star
	}
	return uint64(r.Max)
}

// UIDSetOf builds a set from individual UIDs.
// The input need not be sorted. Zero UIDs are ignored.
func UIDSetOf(uids ...uint32) UIDSet {
	var s UIDSet
	for _, uid := range uids {
		s.Add(uid)
	}
	return s
}

// ParseUIDSet parses an RFC 3501 sequence-set into a canonical set.
func ParseUIDSet(src string) (UIDSet, error) {
	seqs, err := ParseSeqs(src)
	if err != nil {
		return UIDSet{}, err
	}
	var s UIDSet
	for _, r := range seqs {
		s.AddRange(r.Min, r.Max)
	}
	return s, nil
}

// CompressUIDs builds a canonical set from uids, choosing the order
// in which runs are discovered. Ordering never changes the canonical
// result, only how quickly adjacent input collapses; descending input
// from servers that emit reverse order compresses in one pass.
func CompressUIDs(uids []uint32, descending bool) UIDSet {
	sorted := make([]uint32, len(uids))
	copy(sorted, uids)
	if descending {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	} else {
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	}
	var s UIDSet
	for _, uid := range sorted {
		s.Add(uid)
	}
	return s
}

// Add inserts a single UID.
func (s *UIDSet) Add(uid uint32) {
	if uid == 0 {
		return
	}
	s.AddRange(uid, uid)
}

// AddRange inserts the inclusive range [min, max].
// A max of 0 means '*', an open-ended range.
func (s *UIDSet) AddRange(min, max uint32) {
	lo, hi := uint64(min), uint64(max)
	if min == 0 {
		lo = star
	}
	if max == 0 {
		hi = star
	}
	if hi < lo {
		lo, hi = hi, lo // normalize
	}

	// First range that could merge with [lo, hi]: its upper bound
	// reaches lo-1 or beyond.
	i := sort.Search(len(s.Ranges), func(i int) bool {
		return rangeHi(s.Ranges[i])+1 >= lo
	})
	// One past the last range that could merge.
	j := i
	for j < len(s.Ranges) && rangeLo(s.Ranges[j]) <= hi+1 {
		if v := rangeLo(s.Ranges[j]); v < lo {
			lo = v
		}
		if v := rangeHi(s.Ranges[j]); v > hi {
			hi = v
		}
		j++
	}

	merged := SeqRange{Min: uint32(lo), Max: uint32(hi)}
	if lo == star {
		merged.Min = 0
	}
	if hi == star {
		merged.Max = 0
	}
	if i == j {
		s.Ranges = append(s.Ranges, SeqRange{})
		copy(s.Ranges[i+1:], s.Ranges[i:])
		s.Ranges[i] = merged
		return
	}
	s.Ranges[i] = merged
	s.Ranges = append(s.Ranges[:i+1], s.Ranges[j:]...)
}

// AddSet unions other into s.
// Both inputs are canonical, so the merge is a single O(n+m) pass.
func (s *UIDSet) AddSet(other UIDSet) {
	if len(other.Ranges) == 0 {
		return
	}
	if len(s.Ranges) == 0 {
		s.Ranges = append([]SeqRange(nil), other.Ranges...)
		return
	}
	a, b := s.Ranges, other.Ranges
	out := make([]SeqRange, 0, len(a)+len(b))
	ai, bi := 0, 0
	for ai < len(a) || bi < len(b) {
		var next SeqRange
		if bi == len(b) || (ai < len(a) && rangeLo(a[ai]) <= rangeLo(b[bi])) {
			next = a[ai]
			ai++
		} else {
			next = b[bi]
			bi++
		}
		if n := len(out); n > 0 && rangeLo(next) <= rangeHi(out[n-1])+1 {
			if rangeHi(next) > rangeHi(out[n-1]) {
				out[n-1].Max = next.Max
			}
			continue
		}
		out = append(out, next)
	}
	s.Ranges = out
}

// Remove deletes a single UID from the set.
func (s *UIDSet) Remove(uid uint32) {
	if uid == 0 {
		return
	}
	i := sort.Search(len(s.Ranges), func(i int) bool {
		return rangeHi(s.Ranges[i]) >= uint64(uid)
	})
	if i == len(s.Ranges) || !s.Ranges[i].Contains(uid) {
		return
	}
	r := s.Ranges[i]
	switch {
	case r.Min == uid && r.Max == uid:
		s.Ranges = append(s.Ranges[:i], s.Ranges[i+1:]...)
	case r.Min == uid:
		s.Ranges[i].Min = uid + 1
	case r.Max == uid:
		s.Ranges[i].Max = uid - 1
	default:
		s.Ranges = append(s.Ranges, SeqRange{})
		copy(s.Ranges[i+1:], s.Ranges[i:])
		s.Ranges[i] = SeqRange{Min: r.Min, Max: uid - 1}
		s.Ranges[i+1] = SeqRange{Min: uid + 1, Max: r.Max}
	}
}

// Contains reports membership in O(log n).
func (s UIDSet) Contains(uid uint32) bool {
	if uid == 0 {
		return false
	}
	i := sort.Search(len(s.Ranges), func(i int) bool {
		return rangeHi(s.Ranges[i]) >= uint64(uid)
	})
	return i < len(s.Ranges) && s.Ranges[i].Contains(uid)
}

// Empty reports whether the set holds no UIDs.
func (s UIDSet) Empty() bool { return len(s.Ranges) == 0 }

// Count reports the number of UIDs in the set.
// Open-ended ranges count as a single value.
func (s UIDSet) Count() uint64 {
	var n uint64
	for _, r := range s.Ranges {
		if r.Max == 0 || r.Min == 0 {
			n++
			continue
		}
		n += uint64(r.Max-r.Min) + 1
	}
	return n
}

// Expand lists every UID in ascending order.
// Open-ended ranges contribute their Min endpoint only.
func (s UIDSet) Expand() []uint32 {
	var uids []uint32
	for _, r := range s.Ranges {
		if r.Min == 0 {
			continue
		}
		if r.Max == 0 {
			uids = append(uids, r.Min)
			continue
		}
		for uid := r.Min; ; uid++ {
			uids = append(uids, uid)
			if uid == r.Max {
				break // guard uint32 overflow
			}
		}
	}
	return uids
}

// String is the canonical IMAP sequence-set serialization.
func (s UIDSet) String() string {
	sb := new(strings.Builder)
	FormatSeqs(sb, s.Ranges)
	return sb.String()
}
