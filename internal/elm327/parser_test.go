package elm327

import "testing"

func TestParseHexLineSingleFrame(t *testing.T) {
	frame, n, ok := parseHexLine("06 62 11 03 C8")
	if !ok {
		t.Fatal("expected parseHexLine to succeed")
	}
	if n != 5 {
		t.Fatalf("expected 5 bytes, got %d", n)
	}
	want := [8]byte{0x06, 0x62, 0x11, 0x03, 0xC8}
	if frame != want {
		t.Errorf("expected %v, got %v", want, frame)
	}
}

func TestParseHexLineOddNibblePadded(t *testing.T) {
	// A stray trailing nibble is zero-padded into its own byte rather
	// than dropped.
	frame, n, ok := parseHexLine("06 62 1")
	if !ok {
		t.Fatal("expected parseHexLine to succeed")
	}
	if n != 3 {
		t.Fatalf("expected 3 bytes, got %d", n)
	}
	if frame[2] != 0x10 {
		t.Errorf("expected padded nibble byte 0x10, got %02X", frame[2])
	}
}

func TestParseHexLineEmpty(t *testing.T) {
	_, _, ok := parseHexLine("")
	if ok {
		t.Error("expected empty line to fail parsing")
	}
}

func TestParseHexLineTruncatesAtEightBytes(t *testing.T) {
	frame, n, ok := parseHexLine("10 0A 61 01 00 00 00 00 FF FF")
	if !ok {
		t.Fatal("expected parseHexLine to succeed")
	}
	if n != 8 {
		t.Fatalf("expected truncation to 8 bytes, got %d", n)
	}
	if frame[7] != 0x00 {
		t.Errorf("expected 8th byte 0x00, got %02X", frame[7])
	}
}

func TestSplitLinesHandlesCRLFAndBareCR(t *testing.T) {
	lines := splitLines("OK\r\n06 62 11 03 C8\r>")
	want := []string{"OK", "06 62 11 03 C8", ">"}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %v", len(want), len(lines), lines)
	}
	for i, l := range want {
		if lines[i] != l {
			t.Errorf("line %d: expected %q, got %q", i, l, lines[i])
		}
	}
}
