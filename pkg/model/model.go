package model

import (
	"strings"
	"time"
)

// TransferEncoding is the byte-level encoding applied to a part body.
type TransferEncoding string

const (
	EncodingBase64          TransferEncoding = "base64"
	EncodingQuotedPrintable TransferEncoding = "quoted-printable"
	EncodingEightBit        TransferEncoding = "8bit"
	EncodingSevenBit        TransferEncoding = "7bit"
	EncodingBinary          TransferEncoding = "binary"
	EncodingUnknown         TransferEncoding = "unknown"
)

// ParseTransferEncoding maps a Content-Transfer-Encoding header value to a
// TransferEncoding. Anything unrecognised is EncodingUnknown.
func ParseTransferEncoding(s string) TransferEncoding {
	switch enc := TransferEncoding(strings.ToLower(strings.TrimSpace(s))); enc {
	case EncodingBase64, EncodingQuotedPrintable, EncodingEightBit, EncodingSevenBit, EncodingBinary:
		return enc
	default:
		return EncodingUnknown
	}
}

const (
	HeaderContentType             = "Content-Type"
	HeaderContentTransferEncoding = "Content-Transfer-Encoding"
	HeaderContentLocation         = "Content-Location"
	HeaderContentID               = "Content-Id"

	DefaultContentType = "application/octet-stream"
	DocumentType       = "text/html; charset=utf-8"
)

// RawPart is one section of the container as cut by the splitter, before any
// header interpretation.
type RawPart struct {
	HeaderLines []string
	Body        []byte
}

// ArchivePart is a classified part. Locator is empty when the part carries no
// Content-Location or Content-ID.
type ArchivePart struct {
	Locator          string
	ContentType      string // media type only, lower-cased
	Charset          string
	TransferEncoding TransferEncoding
	RawPayload       []byte
}

func (p *ArchivePart) HasLocator() bool {
	return p.Locator != ""
}

// IsMarkup reports whether the part is an HTML document.
func (p *ArchivePart) IsMarkup() bool {
	return IsMarkupType(p.ContentType)
}

func IsMarkupType(contentType string) bool {
	mediaType, _, _ := strings.Cut(strings.ToLower(contentType), ";")
	switch strings.TrimSpace(mediaType) {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

// DecodedDocument is the decoded, not yet rewritten top-level document.
type DecodedDocument struct {
	Content     string
	ContentType string
}

// CacheEntry is a fully decoded resource held by the resource cache.
type CacheEntry struct {
	// Document marks the rewritten top-level document of an archive, stored
	// under the archive's source path.
	Document    bool
	ContentType string
	Content     []byte
	ETag        string
	CacheDate   time.Time
}
