package mhtml

import (
	"mime"
	"net/textproto"
	"strings"

	"github.com/sepich/mhtml-cache/pkg/model"
)

// Classify reads the content type, transfer encoding and locator of a raw
// part. Absent or unparsable headers fall back to application/octet-stream,
// EncodingUnknown and an empty locator.
func Classify(raw model.RawPart) model.ArchivePart {
	header := parseHeader(raw.HeaderLines)
	part := model.ArchivePart{
		ContentType:      model.DefaultContentType,
		TransferEncoding: model.EncodingUnknown,
		RawPayload:       raw.Body,
	}

	if v := header.Get(model.HeaderContentType); v != "" {
		if mediaType, params, err := mime.ParseMediaType(v); err == nil {
			part.ContentType = mediaType
			part.Charset = params["charset"]
		} else if mediaType, _, _ := strings.Cut(v, ";"); strings.Contains(mediaType, "/") {
			part.ContentType = strings.ToLower(strings.TrimSpace(mediaType))
		}
	}

	if v := header.Get(model.HeaderContentTransferEncoding); v != "" {
		part.TransferEncoding = model.ParseTransferEncoding(v)
	}

	if loc := strings.TrimSpace(header.Get(model.HeaderContentLocation)); loc != "" {
		part.Locator = loc
	} else if id := strings.Trim(strings.TrimSpace(header.Get(model.HeaderContentID)), "<>"); id != "" {
		part.Locator = "cid:" + id
	}

	return part
}

// parseHeader builds a MIME header from raw lines, joining folded
// continuation lines onto the previous field. Lines without a colon are
// ignored.
func parseHeader(lines []string) textproto.MIMEHeader {
	header := textproto.MIMEHeader{}
	var key string
	for _, line := range lines {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && key != "" {
			values := header[key]
			values[len(values)-1] += " " + strings.TrimSpace(line)
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			key = ""
			continue
		}
		key = textproto.CanonicalMIMEHeaderKey(strings.TrimSpace(name))
		header[key] = append(header[key], strings.TrimSpace(value))
	}
	return header
}
