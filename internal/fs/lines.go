package fs

import (
	"bytes"
	"strings"
)

// SplitLines splits text on LF or CRLF into lines without their
// terminators. A CR not followed by LF stays part of its line. It reports
// whether the text ended with a terminator.
func SplitLines(data []byte) ([]string, bool) {
	if len(data) == 0 {
		return nil, false
	}
	text := string(data)
	trailing := strings.HasSuffix(text, "\n")
	if trailing {
		text = text[:len(text)-1]
	}
	lines := strings.Split(text, "\n")
	for i := range lines {
		if i < len(lines)-1 || trailing {
			lines[i] = strings.TrimSuffix(lines[i], "\r")
		}
	}
	return lines, trailing
}

// JoinLines is the inverse of SplitLines for a chosen line ending.
func JoinLines(lines []string, eol string, trailingNewline bool) []byte {
	if len(lines) == 0 {
		return []byte{}
	}
	var b bytes.Buffer
	for i, l := range lines {
		b.WriteString(l)
		if i < len(lines)-1 || trailingNewline {
			b.WriteString(eol)
		}
	}
	return b.Bytes()
}

// DetectEOL returns "\r\n" when CRLF terminators are at least as frequent as
// bare LF ones, and "\n" otherwise. Text without any terminator is "\n".
func DetectEOL(data []byte) string {
	crlf := bytes.Count(data, []byte("\r\n"))
	lf := bytes.Count(data, []byte("\n")) - crlf
	if crlf > 0 && crlf >= lf {
		return "\r\n"
	}
	return "\n"
}
