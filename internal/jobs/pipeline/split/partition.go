package split

// PageRange is one contiguous window of a document's pages, 1-based and
// inclusive on both ends.
type PageRange struct {
	Part      int
	PageStart int
	PageEnd   int
}

// PartitionPages cuts [1, numPages] into windows of windowPages pages. The
// windows partition the range exactly: no gaps, no overlaps, last window may
// be shorter. 45 pages at window 20 gives 20/20/5.
func PartitionPages(numPages, windowPages int) []PageRange {
	if numPages < 1 || windowPages < 1 {
		return nil
	}
	out := make([]PageRange, 0, (numPages+windowPages-1)/windowPages)
	for start := 1; start <= numPages; start += windowPages {
		end := start + windowPages - 1
		if end > numPages {
			end = numPages
		}
		out = append(out, PageRange{
			Part:      len(out),
			PageStart: start,
			PageEnd:   end,
		})
	}
	return out
}
