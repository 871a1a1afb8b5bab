package extract

// Window is one overlapping slice of stitched text. Offset is the rune
// offset of the window start in the source string.
type Window struct {
	Offset int
	Text   string
}

// Windows slices text into overlapping fixed-size windows. The step is
// size-overlap, so offsets increase strictly and consecutive windows share
// exactly overlap runes. The final window may be shorter; empty input yields
// no windows.
func Windows(text string, size, overlap int) []Window {
	if size < 1 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	out := make([]Window, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, Window{Offset: start, Text: string(runes[start:end])})
		if end == len(runes) {
			break
		}
	}
	return out
}
