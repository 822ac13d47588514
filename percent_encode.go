package coregrpc

import (
	"strings"
	"unicode/utf8"
)

// percentEncodableByte reports whether b may pass through grpc-message
// percent-encoding unescaped. This is the "unreserved set" from the gRPC
// HTTP/2 spec: the 7-bit ASCII printable range minus '%' itself, since '%'
// introduces an escape.
func percentEncodableByte(b byte) bool {
	return b >= 0x20 && b <= 0x7e && b != '%'
}

const upperhex = "0123456789ABCDEF"

// percentEncode encodes an arbitrary UTF-8 string for the grpc-message
// trailer: printable ASCII passes through unchanged, everything else
// (including every byte of a multi-byte UTF-8 rune) becomes %HH.
func percentEncode(msg string) string {
	var needsEscaping bool
	for i := 0; i < len(msg); i++ {
		if !percentEncodableByte(msg[i]) {
			needsEscaping = true
			break
		}
	}
	if !needsEscaping {
		return msg
	}

	var out strings.Builder
	out.Grow(len(msg) + 8)
	// Walk rune-by-rune so invalid UTF-8 still produces well-formed escapes
	// (utf8.DecodeRuneInString returns RuneError/1 for a bad lead byte,
	// which we escape byte-for-byte).
	for i := 0; i < len(msg); {
		b := msg[i]
		if percentEncodableByte(b) {
			out.WriteByte(b)
			i++
			continue
		}
		if b < utf8.RuneSelf {
			escapeByte(&out, b)
			i++
			continue
		}
		_, size := utf8.DecodeRuneInString(msg[i:])
		if size == 0 {
			size = 1
		}
		for j := 0; j < size; j++ {
			escapeByte(&out, msg[i+j])
		}
		i += size
	}
	return out.String()
}

func escapeByte(out *strings.Builder, b byte) {
	out.WriteByte('%')
	out.WriteByte(upperhex[b>>4])
	out.WriteByte(upperhex[b&0x0f])
}

// percentDecode reverses percentEncode. Malformed escapes (a '%' not
// followed by two hex digits) are passed through literally rather than
// erroring, since grpc-message is advisory and a best-effort decode is more
// useful than dropping the whole trailer.
func percentDecode(msg string) string {
	if !strings.ContainsRune(msg, '%') {
		return msg
	}
	var out strings.Builder
	out.Grow(len(msg))
	for i := 0; i < len(msg); i++ {
		if msg[i] != '%' || i+2 >= len(msg) {
			out.WriteByte(msg[i])
			continue
		}
		hi, ok1 := unhex(msg[i+1])
		lo, ok2 := unhex(msg[i+2])
		if !ok1 || !ok2 {
			out.WriteByte(msg[i])
			continue
		}
		out.WriteByte(hi<<4 | lo)
		i += 2
	}
	return out.String()
}

func unhex(b byte) (byte, bool) {
	switch {
	case '0' <= b && b <= '9':
		return b - '0', true
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10, true
	case 'A' <= b && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}
