// videofont.go - bootstraps the video coprocessor's font table from a
// bundled bitmap font instead of leaving it zeroed until the guest
// uploads its own glyphs.
package main

import (
	"image/color"

	"golang.org/x/image/font/basicfont"
)

const (
	fontGlyphCount = 256
	fontGlyphRows  = 12
	fontGlyphCols  = 8
)

// buildFontTable rasterizes basicfont.Face7x13 into the packed
// 256-glyph, 8x12 font table the text renderer indexes by byte value:
// one byte per row, MSB is the leftmost column. Glyph cells in the
// face's mask are stacked vertically, one cell of Ascent+Descent rows
// per glyph; the 13th row is dropped to fit the 12-row table. Code
// points the face has no glyph for are left blank.
func buildFontTable() []byte {
	table := make([]byte, fontGlyphCount*fontGlyphRows)
	face := basicfont.Face7x13
	cellHeight := face.Ascent + face.Descent
	for g := 0; g < fontGlyphCount; g++ {
		cell, ok := faceGlyphCell(face, rune(g))
		if !ok {
			continue
		}
		base := g * fontGlyphRows
		for row := 0; row < fontGlyphRows && row < cellHeight; row++ {
			var bits byte
			y := cell*cellHeight + row
			for col := 0; col < fontGlyphCols && col < face.Width; col++ {
				if a, ok := face.Mask.At(col, y).(color.Alpha); ok && a.A != 0 {
					bits |= 1 << (7 - col)
				}
			}
			table[base+row] = bits
		}
	}
	return table
}

// faceGlyphCell returns r's cell index within face.Mask, mirroring the
// range lookup basicfont's own Glyph method performs internally.
func faceGlyphCell(face *basicfont.Face, r rune) (int, bool) {
	for _, rg := range face.Ranges {
		if r >= rg.Low && r < rg.High {
			return rg.Offset + int(r-rg.Low), true
		}
	}
	return 0, false
}
