package split

import (
	"fmt"
	"path/filepath"

	"github.com/fogleman/gg"
)

// writePlaceholderPage draws a blank US-letter page with a diagonal cross,
// giving the OCR stage a real file when a single page refuses to
// rasterize. The engine reads it, finds nothing, and the window still
// completes.
func writePlaceholderPage(dir string, pageNum, dpi int) (string, error) {
	if dpi < 72 {
		dpi = 72
	}
	w := int(8.5 * float64(dpi))
	h := 11 * dpi

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	dc.SetRGB(0.6, 0.6, 0.6)
	dc.SetLineWidth(float64(dpi) / 36)
	inset := float64(dpi) / 2
	dc.DrawRectangle(inset, inset, float64(w)-2*inset, float64(h)-2*inset)
	dc.Stroke()
	dc.DrawLine(inset, inset, float64(w)-inset, float64(h)-inset)
	dc.DrawLine(float64(w)-inset, inset, inset, float64(h)-inset)
	dc.Stroke()

	path := filepath.Join(dir, fmt.Sprintf("placeholder-%05d.png", pageNum))
	if err := dc.SavePNG(path); err != nil {
		return "", fmt.Errorf("write placeholder page %d: %w", pageNum, err)
	}
	return path, nil
}
