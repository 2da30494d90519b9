// text.go - the video coprocessor's text-mode sub-controller: cursor
// tracking, scroll, and the character/colour tilemap writes driven by
// the "print" register.
package main

const (
	textCols = 80
	textRows = 40
)

// control-register command bits
const (
	textCtrlSaveCursor    = 1 << 0
	textCtrlRestoreCursor = 1 << 1
	textCtrlNewline       = 1 << 2
)

// flags-register bits
const (
	textFlagAutoScrollX = 1 << 0
	textFlagAutoScrollY = 1 << 1
	textFlagWaitOnWrap  = 1 << 2
)

type TextController struct {
	v *VideoCoprocessor

	cursorX, cursorY byte
	savedX, savedY   byte

	scrollX, scrollY byte

	fg, bg byte

	blinkInterval, blinkChar byte

	flags byte

	pendingScrollY bool
}

func NewTextController(v *VideoCoprocessor) *TextController {
	return &TextController{v: v}
}

func (t *TextController) Reset() {
	t.cursorX, t.cursorY = 0, 0
	t.savedX, t.savedY = 0, 0
	t.scrollX, t.scrollY = 0, 0
	t.pendingScrollY = false
}

func (t *TextController) Read(offset uint32) byte {
	switch offset {
	case 0:
		return t.cursorX
	case 1:
		return t.cursorY
	case 2:
		return t.savedX
	case 3:
		return t.savedY
	case 4:
		return t.scrollX
	case 5:
		return t.scrollY
	case 6:
		return t.fg
	case 7:
		return t.bg
	case 8:
		return t.blinkInterval
	case 9:
		return t.blinkChar
	case 10:
		return t.flags
	}
	return 0
}

func (t *TextController) Write(offset uint32, value byte) {
	switch offset {
	case 0:
		t.cursorX = value
	case 1:
		t.cursorY = value
	case 4:
		t.scrollX = value
	case 5:
		t.scrollY = value
	case 6:
		t.fg = value
	case 7:
		t.bg = value
	case 8:
		t.blinkInterval = value
	case 9:
		t.blinkChar = value
	case 10:
		t.flags = value
	case 11:
		t.control(value)
	case 12:
		t.print(value)
	}
}

func (t *TextController) control(cmd byte) {
	save := cmd&textCtrlSaveCursor != 0
	restore := cmd&textCtrlRestoreCursor != 0
	switch {
	case save && restore:
		t.savedX, t.cursorX = t.cursorX, t.savedX
		t.savedY, t.cursorY = t.cursorY, t.savedY
	case save:
		t.savedX, t.savedY = t.cursorX, t.cursorY
	case restore:
		t.cursorX, t.cursorY = t.savedX, t.savedY
	}
	if cmd&textCtrlNewline != 0 {
		t.newline()
	}
}

func (t *TextController) cellIndex() int {
	x := int(t.cursorX+t.scrollX) % textCols
	y := int(t.cursorY+t.scrollY) % textRows
	return y*textCols + x
}

func (t *TextController) print(ch byte) {
	// a deferred wrap (wait-on-wrap policy) resolves when the next
	// character arrives, before that character is placed
	if t.pendingScrollY {
		t.pendingScrollY = false
		t.cursorX = 0
		t.newline()
	}
	idx := t.cellIndex()
	if idx < vidTilemapL0End {
		t.v.mem[idx] = ch
	}
	if vidTilemapL1Base+idx < vidTilemapL1End {
		t.v.mem[vidTilemapL1Base+idx] = t.fg<<4 | t.bg
	}
	t.advance()
}

func (t *TextController) advance() {
	t.cursorX++
	if int(t.cursorX) < textCols {
		return
	}
	switch {
	case t.flags&textFlagAutoScrollX != 0:
		t.scrollX = (t.scrollX + 1) % textCols
		t.cursorX = textCols - 1
	case t.flags&textFlagWaitOnWrap != 0:
		t.cursorX = textCols - 1
		t.pendingScrollY = true
	default:
		t.cursorX = 0
		t.newline()
	}
}

func (t *TextController) newline() {
	t.cursorY++
	if int(t.cursorY) < textRows {
		return
	}
	if t.flags&textFlagAutoScrollY != 0 {
		t.scrollY = (t.scrollY + 1) % textRows
		t.cursorY = textRows - 1
	} else {
		t.cursorY = 0
	}
}
