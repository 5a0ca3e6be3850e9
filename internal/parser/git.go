package parser

import (
	"fmt"
	"strings"

	"github.com/sokinpui/patchstudio/model"
)

type gitHeader struct{}

func (gitHeader) parseHeader(lines []string, fc *model.FileChange, info *headerInfo) (int, error) {
	oldPath, newPath, err := splitGitPaths(strings.TrimPrefix(lines[0], "diff --git "))
	if err != nil {
		return 0, err
	}
	fc.OldPath, fc.NewPath = oldPath, newPath

	i := 1
	for ; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "old mode "):
			if fc.OldMode, err = parseMode(line[len("old mode "):]); err != nil {
				return i, err
			}
		case strings.HasPrefix(line, "new mode "):
			if fc.NewMode, err = parseMode(line[len("new mode "):]); err != nil {
				return i, err
			}
		case strings.HasPrefix(line, "new file mode "):
			if fc.NewMode, err = parseMode(line[len("new file mode "):]); err != nil {
				return i, err
			}
			info.newFile = true
		case strings.HasPrefix(line, "deleted file mode "):
			if fc.OldMode, err = parseMode(line[len("deleted file mode "):]); err != nil {
				return i, err
			}
			info.deleted = true
		case strings.HasPrefix(line, "rename from "):
			fc.OldPath = unquote(line[len("rename from "):])
			info.renamed = true
		case strings.HasPrefix(line, "rename to "):
			fc.NewPath = unquote(line[len("rename to "):])
			info.renamed = true
		case strings.HasPrefix(line, "similarity index "),
			strings.HasPrefix(line, "dissimilarity index "),
			strings.HasPrefix(line, "index "):
		case strings.HasPrefix(line, "GIT binary patch"):
			fc.IsBinary, fc.BinaryReason = true, "GIT binary patch"
			return len(lines), nil
		case strings.HasPrefix(line, "Binary files "):
			fc.IsBinary, fc.BinaryReason = true, "binary files differ"
			return len(lines), nil
		case strings.HasPrefix(line, "--- "):
			oldHdr, newHdr, next, err := readFileHeaders(lines, i)
			if err != nil {
				return i, err
			}
			fc.OldPath = stripPrefix(oldHdr, "a/")
			fc.NewPath = stripPrefix(newHdr, "b/")
			return next, nil
		default:
			return i, nil
		}
	}
	return i, nil
}

// splitGitPaths splits the "a/x b/y" operand of a diff --git line. Paths may
// contain spaces, so the split prefers the " b/" separator.
func splitGitPaths(rest string) (string, string, error) {
	rest = strings.TrimRight(rest, " ")
	if strings.HasPrefix(rest, `"`) {
		fields, err := splitQuoted(rest)
		if err != nil {
			return "", "", err
		}
		return stripPrefix(fields[0], "a/"), stripPrefix(fields[1], "b/"), nil
	}
	if i := strings.Index(rest, " b/"); i >= 0 {
		return stripPrefix(rest[:i], "a/"), stripPrefix(rest[i+1:], "b/"), nil
	}
	if i := strings.Index(rest, ` "b/`); i >= 0 {
		return stripPrefix(rest[:i], "a/"), stripPrefix(unquote(rest[i+1:]), "b/"), nil
	}
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "", "", fmt.Errorf("malformed diff --git line %q", "diff --git "+rest)
	}
	return fields[0], fields[1], nil
}

func splitQuoted(rest string) ([2]string, error) {
	var out [2]string
	end := -1
	for i := 1; i < len(rest); i++ {
		if rest[i] == '\\' {
			i++
			continue
		}
		if rest[i] == '"' {
			end = i
			break
		}
	}
	if end < 0 {
		return out, fmt.Errorf("malformed quoted diff --git paths %q", rest)
	}
	out[0] = unquote(rest[:end+1])
	out[1] = unquote(strings.TrimSpace(rest[end+1:]))
	return out, nil
}
