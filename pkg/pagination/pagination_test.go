package pagination

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want Params
	}{
		{Params{Page: 0, Limit: 0}, Params{Page: 1, Limit: DefaultLimit}},
		{Params{Page: -3, Limit: -1}, Params{Page: 1, Limit: DefaultLimit}},
		{Params{Page: 2, Limit: 500}, Params{Page: 2, Limit: MaxLimit}},
		{Params{Page: 5, Limit: 10}, Params{Page: 5, Limit: 10}},
	}
	for _, tc := range cases {
		if got := tc.in.Normalize(); got != tc.want {
			t.Errorf("Normalize(%+v) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}

func TestMetaPageMath(t *testing.T) {
	// limit=2 over 3 rows: page 1 has next only, page 2 has prev only.
	m := NewMeta(Params{Page: 1, Limit: 2}, 3)
	if m.Pages != 2 || !m.HasNext || m.HasPrev {
		t.Errorf("page 1 meta = %+v", m)
	}
	m = NewMeta(Params{Page: 2, Limit: 2}, 3)
	if m.HasNext || !m.HasPrev {
		t.Errorf("page 2 meta = %+v", m)
	}
}

func TestMetaEmpty(t *testing.T) {
	m := NewMeta(Params{Page: 1, Limit: 20}, 0)
	if m.Pages != 0 || m.HasNext || m.HasPrev {
		t.Errorf("empty meta = %+v", m)
	}
}

func TestOffset(t *testing.T) {
	p := Params{Page: 3, Limit: 20}
	if p.Offset() != 40 {
		t.Errorf("Offset() = %d, want 40", p.Offset())
	}
}
