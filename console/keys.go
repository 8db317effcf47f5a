package console

import (
	"bufio"
	"io"
	"unicode"
	"unicode/utf8"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyCtrlC
	keyCtrlD
)

type key struct {
	kind keyKind
	r    rune
}

// readKeys decodes the dashboard's tiny key vocabulary. Escape
// sequences are consumed and dropped so arrow keys and mouse reports
// never leak into the rune stream.
func readKeys(r io.Reader, out chan<- key) {
	defer close(out)
	br := bufio.NewReader(r)
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if lastWasCR {
			lastWasCR = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case 0x1b:
			skipEscapeBytes(br)
		case '\r':
			out <- key{kind: keyEnter}
			lastWasCR = true
		case '\n':
			out <- key{kind: keyEnter}
		case 0x03:
			out <- key{kind: keyCtrlC}
		case 0x04:
			out <- key{kind: keyCtrlD}
		default:
			if b < 0x20 || b == 0x7f {
				continue
			}
			if b < utf8.RuneSelf {
				out <- key{kind: keyRune, r: rune(b)}
				continue
			}
			_ = br.UnreadByte()
			rn, _, err := br.ReadRune()
			if err != nil {
				return
			}
			out <- key{kind: keyRune, r: rn}
		}
	}
}

func skipEscapeBytes(br *bufio.Reader) {
	b, err := br.ReadByte()
	if err != nil {
		return
	}
	if b != '[' && b != 'O' {
		return
	}
	for i := 0; i < 16; i++ {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if b == '~' || unicode.IsLetter(rune(b)) {
			return
		}
	}
}
