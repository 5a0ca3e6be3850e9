package parser

import (
	"strings"

	"github.com/sokinpui/patchstudio/model"
)

type indexHeader struct{}

func (indexHeader) parseHeader(lines []string, fc *model.FileChange, _ *headerInfo) (int, error) {
	path := strings.TrimSpace(strings.TrimPrefix(lines[0], "Index: "))
	fc.OldPath, fc.NewPath = path, path

	for i := 1; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "Binary files "):
			fc.IsBinary, fc.BinaryReason = true, "binary files differ"
			return len(lines), nil
		case strings.HasPrefix(line, "Cannot display: file marked as a binary type."):
			fc.IsBinary, fc.BinaryReason = true, "file marked as a binary type"
			return len(lines), nil
		case strings.HasPrefix(line, "--- "):
			oldPath, newPath, next, err := readFileHeaders(lines, i)
			if err != nil {
				return i, err
			}
			fc.OldPath, fc.NewPath = stripPairPrefixes(oldPath, newPath)
			return next, nil
		case strings.HasPrefix(line, "@@"):
			return i, nil
		}
	}
	return len(lines), nil
}
