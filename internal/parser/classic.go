package parser

import (
	"strings"

	"github.com/sokinpui/patchstudio/model"
)

type classicHeader struct{}

func (classicHeader) parseHeader(lines []string, fc *model.FileChange, _ *headerInfo) (int, error) {
	oldPath, newPath, next, err := readFileHeaders(lines, 0)
	if err != nil {
		return 0, err
	}
	fc.OldPath, fc.NewPath = stripPairPrefixes(oldPath, newPath)
	return next, nil
}

// stripPairPrefixes removes git-style a/ and b/ prefixes, but only when
// both sides carry them (or one side is /dev/null).
func stripPairPrefixes(oldPath, newPath string) (string, string) {
	switch {
	case strings.HasPrefix(oldPath, "a/") && strings.HasPrefix(newPath, "b/"):
		return oldPath[2:], newPath[2:]
	case oldPath == model.DevNull && strings.HasPrefix(newPath, "b/"):
		return oldPath, newPath[2:]
	case newPath == model.DevNull && strings.HasPrefix(oldPath, "a/"):
		return oldPath[2:], newPath
	}
	return oldPath, newPath
}
