package mhtml

import (
	"bytes"
	"mime"
	"strings"
	"unicode"

	"github.com/sepich/mhtml-cache/pkg/model"
)

// Normalize strips leading whitespace (including BOM and zero-width
// characters) and replaces whatever trails the archive with exactly one
// newline. Boundary detection at end of stream depends on it.
func Normalize(data []byte) []byte {
	data = bytes.TrimLeftFunc(data, isSpace)
	data = bytes.TrimRightFunc(data, unicode.IsSpace)
	if len(data) == 0 {
		return data
	}
	out := make([]byte, len(data), len(data)+1)
	copy(out, data)
	return append(out, '\n')
}

func isSpace(r rune) bool {
	switch r {
	case '\u200B', '\uFEFF', '\u200D', '\u200C':
		return true
	default:
		return unicode.IsSpace(r)
	}
}

// Split normalizes data and returns its parts in physical order.
func Split(data []byte) []model.RawPart {
	data = Normalize(data)
	boundary, body := findBoundary(data)
	if boundary == "" {
		return nil
	}
	delim := []byte("--" + boundary)

	var parts []model.RawPart
	start := -1
	for pos := 0; pos < len(body); {
		line, next := nextLine(body, pos)
		trimmed := bytes.TrimRight(line, " \t\r")
		if rest, ok := bytes.CutPrefix(trimmed, delim); ok && (len(rest) == 0 || string(rest) == "--") {
			if start >= 0 {
				parts = appendPart(parts, trimLineBreak(body[start:pos]))
			}
			if len(rest) != 0 {
				return parts
			}
			start = next
		}
		pos = next
	}
	// No terminator: the last part runs to end of stream.
	if start >= 0 && start < len(body) {
		parts = appendPart(parts, trimLineBreak(body[start:]))
	}
	return parts
}

// findBoundary returns the boundary and the bytes following the outer header.
func findBoundary(data []byte) (string, []byte) {
	if bytes.HasPrefix(data, []byte("--")) {
		line, _ := nextLine(data, 0)
		boundary := strings.TrimSpace(string(line[2:]))
		boundary = strings.TrimSuffix(boundary, "--")
		return boundary, data
	}

	lines, body := splitHeader(data)
	contentType := parseHeader(lines).Get(model.HeaderContentType)
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return "", nil
	}
	return params["boundary"], body
}

// appendPart keeps empty parts so that part indexes match the container.
func appendPart(parts []model.RawPart, content []byte) []model.RawPart {
	if len(content) == 0 {
		return append(parts, model.RawPart{})
	}
	lines, body := splitHeader(content)
	return append(parts, model.RawPart{HeaderLines: lines, Body: body})
}

// splitHeader cuts content at the first blank line. Without one, every line
// is a header line and the body is empty.
func splitHeader(content []byte) ([]string, []byte) {
	var lines []string
	for pos := 0; pos < len(content); {
		line, next := nextLine(content, pos)
		line = bytes.TrimRight(line, "\r")
		if len(line) == 0 {
			return lines, content[next:]
		}
		lines = append(lines, string(line))
		pos = next
	}
	return lines, nil
}

// nextLine returns the line starting at pos without its '\n' and the offset
// of the following line.
func nextLine(data []byte, pos int) ([]byte, int) {
	i := bytes.IndexByte(data[pos:], '\n')
	if i < 0 {
		return data[pos:], len(data)
	}
	return data[pos : pos+i], pos + i + 1
}

// The line break before a delimiter belongs to the delimiter.
func trimLineBreak(b []byte) []byte {
	if bytes.HasSuffix(b, []byte("\r\n")) {
		return b[:len(b)-2]
	}
	return bytes.TrimSuffix(b, []byte("\n"))
}
