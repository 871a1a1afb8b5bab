package split

import "testing"

func TestPartitionPagesExactAndRemainder(t *testing.T) {
	got := PartitionPages(45, 20)
	want := []PageRange{
		{Part: 0, PageStart: 1, PageEnd: 20},
		{Part: 1, PageStart: 21, PageEnd: 40},
		{Part: 2, PageStart: 41, PageEnd: 45},
	}
	if len(got) != len(want) {
		t.Fatalf("windows: want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window %d: want=%+v got=%+v", i, want[i], got[i])
		}
	}
}

func TestPartitionPagesCoversEveryPageOnce(t *testing.T) {
	for _, tc := range []struct{ pages, window int }{
		{1, 20}, {20, 20}, {21, 20}, {400, 20}, {7, 3},
	} {
		seen := map[int]int{}
		for _, w := range PartitionPages(tc.pages, tc.window) {
			if w.PageEnd < w.PageStart {
				t.Fatalf("pages=%d window=%d: inverted range %+v", tc.pages, tc.window, w)
			}
			if w.PageEnd-w.PageStart+1 > tc.window {
				t.Fatalf("pages=%d window=%d: oversized range %+v", tc.pages, tc.window, w)
			}
			for pg := w.PageStart; pg <= w.PageEnd; pg++ {
				seen[pg]++
			}
		}
		for pg := 1; pg <= tc.pages; pg++ {
			if seen[pg] != 1 {
				t.Fatalf("pages=%d window=%d: page %d covered %d times", tc.pages, tc.window, pg, seen[pg])
			}
		}
		if len(seen) != tc.pages {
			t.Fatalf("pages=%d window=%d: covered %d pages", tc.pages, tc.window, len(seen))
		}
	}
}

func TestPartitionPagesDegenerate(t *testing.T) {
	if got := PartitionPages(0, 20); got != nil {
		t.Fatalf("zero pages: %+v", got)
	}
	if got := PartitionPages(10, 0); got != nil {
		t.Fatalf("zero window: %+v", got)
	}
}
