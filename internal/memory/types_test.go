package memory

import "testing"

func TestHasPrefix(t *testing.T) {
	cases := []struct {
		name   string
		ns     []string
		prefix []string
		want   bool
	}{
		{"exact match", []string{"memories", "u1"}, []string{"memories", "u1"}, true},
		{"proper prefix", []string{"memories", "u1", "facts"}, []string{"memories", "u1"}, true},
		{"prefix longer than ns", []string{"memories"}, []string{"memories", "u1"}, false},
		{"no partial segment match", []string{"memories", "bobby"}, []string{"memories", "bob"}, false},
		{"different segment", []string{"memories", "u2"}, []string{"memories", "u1"}, false},
		{"empty prefix matches everything", []string{"memories", "u1"}, nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasPrefix(tc.ns, tc.prefix); got != tc.want {
				t.Errorf("HasPrefix(%v, %v) = %v, want %v", tc.ns, tc.prefix, got, tc.want)
			}
		})
	}
}
