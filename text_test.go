// text_test.go - exercises the text controller's scroll-on-wrap policy:
// a screenful of newlines with auto-scroll-y advances scroll_y by
// exactly one and pins cursor Y at the bottom row rather than letting
// it run off the grid.

package main

import "testing"

func TestTextNewlineWrapsScrollYOnce(t *testing.T) {
	tc := NewTextController(nil)
	tc.flags = textFlagAutoScrollY
	initialScrollY := tc.scrollY

	for i := 0; i < textRows; i++ {
		tc.control(textCtrlNewline)
	}

	if want := byte((int(initialScrollY) + 1) % textRows); tc.scrollY != want {
		t.Errorf("scrollY = %d, want %d", tc.scrollY, want)
	}
	if tc.cursorY != textRows-1 {
		t.Errorf("cursorY = %d, want %d (pinned at bottom row)", tc.cursorY, textRows-1)
	}
}

func TestTextNewlineWithoutAutoScrollWrapsCursorToZero(t *testing.T) {
	tc := NewTextController(nil)
	tc.flags = 0
	for i := 0; i < textRows; i++ {
		tc.control(textCtrlNewline)
	}
	if tc.cursorY != 0 {
		t.Errorf("cursorY = %d, want 0 (no auto-scroll-y means wrap to top)", tc.cursorY)
	}
	if tc.scrollY != 0 {
		t.Errorf("scrollY = %d, want 0 (no auto-scroll-y means scroll never advances)", tc.scrollY)
	}
}

func TestTextWaitOnWrapDefersNewlineUntilNextChar(t *testing.T) {
	v := NewVideoCoprocessor(&MemoryOp{})
	tc := v.text
	tc.flags = textFlagWaitOnWrap
	tc.cursorX, tc.cursorY = textCols-1, 0

	tc.print('A') // fills the last column; the wrap is deferred
	if tc.cursorX != textCols-1 || tc.cursorY != 0 {
		t.Fatalf("cursor after end-of-line print = (%d,%d), want (%d,0)", tc.cursorX, tc.cursorY, textCols-1)
	}
	if got := v.mem[textCols-1]; got != 'A' {
		t.Fatalf("cell (%d,0) = %q, want 'A'", textCols-1, got)
	}

	tc.print('B') // resolves the deferred wrap first, then prints
	if got := v.mem[1*textCols]; got != 'B' {
		t.Errorf("cell (0,1) = %q, want 'B' (deferred newline resolved before placement)", got)
	}
	if tc.cursorX != 1 || tc.cursorY != 1 {
		t.Errorf("cursor after deferred wrap = (%d,%d), want (1,1)", tc.cursorX, tc.cursorY)
	}
}

func TestTextSaveRestoreCursorSwap(t *testing.T) {
	tc := NewTextController(nil)
	tc.cursorX, tc.cursorY = 10, 20
	tc.control(textCtrlSaveCursor)
	if tc.savedX != 10 || tc.savedY != 20 {
		t.Fatalf("saved cursor = (%d,%d), want (10,20)", tc.savedX, tc.savedY)
	}
	tc.cursorX, tc.cursorY = 5, 6
	tc.control(textCtrlRestoreCursor)
	if tc.cursorX != 10 || tc.cursorY != 20 {
		t.Errorf("cursor after restore = (%d,%d), want (10,20)", tc.cursorX, tc.cursorY)
	}
}
