package imap

import (
	"reflect"
	"testing"
)

func TestUIDSetAdd(t *testing.T) {
	var s UIDSet
	for _, uid := range []uint32{5, 3, 4, 10, 1, 11, 12, 2} {
		s.Add(uid)
	}
	if got, want := s.String(), "1:5,10:12"; got != want {
		t.Errorf("String()=%q, want %q", got, want)
	}
	if got, want := s.Count(), uint64(8); got != want {
		t.Errorf("Count()=%d, want %d", got, want)
	}
}

func TestUIDSetAddRangeMerge(t *testing.T) {
	tests := []struct {
		name string
		add  [][2]uint32
		want string
	}{
		{
			name: "disjoint",
			add:  [][2]uint32{{1, 3}, {7, 9}},
			want: "1:3,7:9",
		},
		{
			name: "overlap",
			add:  [][2]uint32{{1, 5}, {3, 8}},
			want: "1:8",
		},
		{
			name: "adjacent",
			add:  [][2]uint32{{1, 3}, {4, 6}},
			want: "1:6",
		},
		{
			name: "bridge",
			add:  [][2]uint32{{1, 3}, {8, 9}, {2, 8}},
			want: "1:9",
		},
		{
			name: "insert before",
			add:  [][2]uint32{{10, 12}, {1, 2}},
			want: "1:2,10:12",
		},
		{
			name: "open ended",
			add:  [][2]uint32{{12, 0}, {1, 3}},
			want: "1:3,12:*",
		},
		{
			name: "open ended swallows",
			add:  [][2]uint32{{12, 0}, {20, 30}},
			want: "12:*",
		},
		{
			name: "reversed input normalizes",
			add:  [][2]uint32{{9, 4}},
			want: "4:9",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var s UIDSet
			for _, r := range test.add {
				s.AddRange(r[0], r[1])
			}
			if got := s.String(); got != test.want {
				t.Errorf("got %q, want %q", got, test.want)
			}
		})
	}
}

func TestUIDSetContains(t *testing.T) {
	s, err := ParseUIDSet("1,3:7,12:*")
	if err != nil {
		t.Fatal(err)
	}
	for _, uid := range []uint32{1, 3, 5, 7, 12, 4000000000} {
		if !s.Contains(uid) {
			t.Errorf("Contains(%d)=false, want true", uid)
		}
	}
	for _, uid := range []uint32{0, 2, 8, 11} {
		if s.Contains(uid) {
			t.Errorf("Contains(%d)=true, want false", uid)
		}
	}
}

func TestUIDSetRemove(t *testing.T) {
	s := UIDSetOf(1, 2, 3, 4, 5)
	s.Remove(3)
	if got, want := s.String(), "1:2,4:5"; got != want {
		t.Errorf("after split remove: %q, want %q", got, want)
	}
	s.Remove(1)
	if got, want := s.String(), "2,4:5"; got != want {
		t.Errorf("after edge remove: %q, want %q", got, want)
	}
	s.Remove(2)
	if got, want := s.String(), "4:5"; got != want {
		t.Errorf("after single remove: %q, want %q", got, want)
	}
	s.Remove(99) // not present
	if got, want := s.String(), "4:5"; got != want {
		t.Errorf("after absent remove: %q, want %q", got, want)
	}
}

func TestUIDSetUnion(t *testing.T) {
	a := UIDSetOf(1, 2, 3, 10)
	b := UIDSetOf(4, 9, 11, 20)
	a.AddSet(b)
	if got, want := a.String(), "1:4,9:11,20"; got != want {
		t.Errorf("union=%q, want %q", got, want)
	}
}

func TestUIDSetRoundTrip(t *testing.T) {
	// Parsing is the strict inverse of serialization for
	// canonical sets.
	for _, src := range []string{"1", "1:3", "1,3:7,12:*", "41,43:45"} {
		s, err := ParseUIDSet(src)
		if err != nil {
			t.Fatalf("ParseUIDSet(%q): %v", src, err)
		}
		if got := s.String(); got != src {
			t.Errorf("round trip %q=%q", src, got)
		}
	}
	// Non-canonical input canonicalizes.
	s, err := ParseUIDSet("3:1,2,7")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := s.String(), "1:3,7"; got != want {
		t.Errorf("canonicalize=%q, want %q", got, want)
	}
}

func TestCompressUIDs(t *testing.T) {
	uids := []uint32{5, 1, 2, 3, 9, 8}
	asc := CompressUIDs(uids, false)
	desc := CompressUIDs(uids, true)
	if got, want := asc.String(), "1:3,5,8:9"; got != want {
		t.Errorf("ascending=%q, want %q", got, want)
	}
	// Order of discovery never changes the canonical result.
	if !reflect.DeepEqual(asc, desc) {
		t.Errorf("descending=%q differs from ascending=%q", desc.String(), asc.String())
	}
}

func TestUIDSetExpand(t *testing.T) {
	s := UIDSetOf(2, 3, 4, 9)
	want := []uint32{2, 3, 4, 9}
	if got := s.Expand(); !reflect.DeepEqual(got, want) {
		t.Errorf("Expand()=%v, want %v", got, want)
	}
}
