// Package codec decodes archive part bodies according to their declared
// Content-Transfer-Encoding and offers a charset-aware text view of the result.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"mime/quotedprintable"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/sepich/mhtml-cache/pkg/model"
)

var (
	ErrInvalidBase64          = errors.New("invalid base64 payload")
	ErrInvalidQuotedPrintable = errors.New("invalid quoted-printable payload")
)

// DecodeError wraps one of the sentinel errors above with the failing encoding.
type DecodeError struct {
	Encoding model.TransferEncoding
	Err      error
}

func (e *DecodeError) Error() string {
	return "decode " + string(e.Encoding) + ": " + e.Err.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type Codec struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Codec{logger: logger}
}

// Decode returns the payload with its transfer encoding removed. 8bit, 7bit and
// binary payloads are returned as-is; unknown encodings are treated as 8bit.
func (c *Codec) Decode(payload []byte, enc model.TransferEncoding) ([]byte, error) {
	switch enc {
	case model.EncodingBase64:
		return decodeBase64(payload)
	case model.EncodingQuotedPrintable:
		return decodeQuotedPrintable(payload)
	case model.EncodingEightBit, model.EncodingSevenBit, model.EncodingBinary:
		return payload, nil
	default:
		c.logger.Warn("unknown transfer encoding, passing payload through", "encoding", string(enc))
		return payload, nil
	}
}

// MIME bodies wrap base64 at 76 columns, so all whitespace is dropped first.
func decodeBase64(payload []byte) ([]byte, error) {
	clean := bytes.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, payload)

	out := make([]byte, base64.StdEncoding.DecodedLen(len(clean)))
	n, err := base64.StdEncoding.Decode(out, clean)
	if err != nil {
		return nil, &DecodeError{Encoding: model.EncodingBase64, Err: errors.Join(ErrInvalidBase64, err)}
	}
	return out[:n], nil
}

func decodeQuotedPrintable(payload []byte) ([]byte, error) {
	out, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(payload)))
	if err != nil {
		return nil, &DecodeError{Encoding: model.EncodingQuotedPrintable, Err: errors.Join(ErrInvalidQuotedPrintable, err)}
	}
	return out, nil
}

// Text re-interprets decoded bytes in the declared charset and returns UTF-8.
// An empty, UTF-8 or unknown charset leaves the bytes untouched.
func (c *Codec) Text(data []byte, charset string) string {
	out, _ := c.UTF8(data, charset)
	return string(out)
}

// UTF8 is Text for byte payloads. ok reports whether the result is known to
// be UTF-8: false for an unknown charset or a failed conversion, in which
// case data is returned as-is.
func (c *Codec) UTF8(data []byte, charset string) (_ []byte, ok bool) {
	charset = strings.TrimSpace(charset)
	if charset == "" {
		return data, true
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		c.logger.Warn("unknown charset, using bytes as-is", "charset", charset)
		return data, false
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return data, true
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		c.logger.Warn("charset conversion failed, using bytes as-is", "charset", charset, "err", err)
		return data, false
	}
	return out, true
}

// DataURI embeds data in a data: URI. The payload is always base64 encoded
// because decoded binary bodies are unsafe to place in markup literally.
func DataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = model.DefaultContentType
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// LooksQuotedPrintable reports whether payload contains at least one "="
// and every "=" starts a hex escape or a soft line break. Raw markup fails
// this test because its attributes contain bare "=".
func LooksQuotedPrintable(payload []byte) bool {
	seen := false
	for i := 0; i < len(payload); i++ {
		if payload[i] != '=' {
			continue
		}
		seen = true
		rest := payload[i+1:]
		switch {
		case len(rest) >= 2 && isHex(rest[0]) && isHex(rest[1]):
			i += 2
		case len(rest) >= 1 && rest[0] == '\n',
			len(rest) >= 2 && rest[0] == '\r' && rest[1] == '\n':
		default:
			return false
		}
	}
	return seen
}

func isHex(b byte) bool {
	return '0' <= b && b <= '9' || 'A' <= b && b <= 'F' || 'a' <= b && b <= 'f'
}
