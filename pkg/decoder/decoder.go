// Package decoder turns a web-page archive into a rewritten HTML document and
// a set of cached assets.
//
// The document is stored in the cache under the archive's source path after
// its references have been rewritten; assets are stored under their locator
// with any fragment removed. All entries of one archive are published to the
// cache in one step, so a reader that sees the document key also sees every
// asset it links to.
package decoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sepich/mhtml-cache/pkg/cache"
	"github.com/sepich/mhtml-cache/pkg/codec"
	"github.com/sepich/mhtml-cache/pkg/metrics"
	"github.com/sepich/mhtml-cache/pkg/mhtml"
	"github.com/sepich/mhtml-cache/pkg/model"
	"github.com/sepich/mhtml-cache/pkg/rewrite"
	"github.com/sepich/mhtml-cache/pkg/source"
)

type Decoder struct {
	cache    cache.Store
	source   source.Source
	rewriter *rewrite.Rewriter
	codec    *codec.Codec
	logger   *slog.Logger
	metrics  *metrics.Metrics

	// compatErrorDocument returns the unsupported-type message as the
	// document instead of an error.
	compatErrorDocument bool

	group   singleflight.Group
	decodes atomic.Int64
}

type Option func(*Decoder)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Decoder) { d.metrics = m }
}

func WithCompatErrorDocument(enabled bool) Option {
	return func(d *Decoder) { d.compatErrorDocument = enabled }
}

func New(store cache.Store, src source.Source, rw *rewrite.Rewriter, opts ...Option) *Decoder {
	d := &Decoder{
		cache:    store,
		source:   src,
		rewriter: rw,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.codec = codec.New(d.logger)
	return d
}

// Decodes returns how many full decodes have been attempted.
func (d *Decoder) Decodes() int64 {
	return d.decodes.Load()
}

// Decode returns the rewritten document of the archive at path, reading and
// decoding it only if the cache holds no document for path yet.
//
// The read runs detached from ctx because other callers may be waiting on
// the same decode; a cancelled ctx only stops this caller from waiting.
func (d *Decoder) Decode(ctx context.Context, path string) (string, error) {
	return d.memoize(ctx, path, func() ([]byte, error) {
		return d.source.ReadArchive(context.WithoutCancel(ctx), path)
	})
}

// DecodeBytes is Decode for archive bytes already in memory, memoized under key.
func (d *Decoder) DecodeBytes(key string, data []byte) (string, error) {
	return d.memoize(context.Background(), key, func() ([]byte, error) {
		return data, nil
	})
}

// cachedDocument ignores asset entries: locators and source paths share the
// cache's key space.
func (d *Decoder) cachedDocument(key string) (string, bool) {
	entry, ok := d.cache.Peek(key)
	if !ok || !entry.Document {
		return "", false
	}
	return string(entry.Content), true
}

func (d *Decoder) memoize(ctx context.Context, key string, load func() ([]byte, error)) (string, error) {
	if doc, ok := d.cachedDocument(key); ok {
		return doc, nil
	}
	ch := d.group.DoChan(key, func() (any, error) {
		// another flight may have finished between the lookup above and here
		if doc, ok := d.cachedDocument(key); ok {
			return doc, nil
		}
		data, err := load()
		if err != nil {
			return "", err
		}
		return d.decode(key, data)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if res.Shared {
		d.logger.Debug("joined in-flight decode", "source", key)
	}
	var unsupported *UnsupportedDocumentTypeError
	if d.compatErrorDocument && errors.As(res.Err, &unsupported) {
		return unsupported.Error(), nil
	}
	if res.Err != nil {
		return "", res.Err
	}
	return res.Val.(string), nil
}

func (d *Decoder) decode(key string, data []byte) (_ string, err error) {
	d.decodes.Add(1)
	start := time.Now()
	defer func() {
		d.observe(start, err)
	}()

	raw := mhtml.Split(data)
	if len(raw) == 0 {
		return "", fmt.Errorf("%s: %w", key, ErrMalformedContainer)
	}

	doc, err := d.decodeDocument(key, mhtml.Classify(raw[0]))
	if err != nil {
		return "", err
	}

	entries := d.decodeAssets(key, raw[1:])
	res, err := d.rewriter.Rewrite(doc.Content, doc.Locator, entries)
	if err != nil {
		return "", fmt.Errorf("%s: rewrite document: %w", key, err)
	}
	if unused := len(entries) - len(res.Referenced); unused > 0 {
		d.logger.Debug("archive has assets the document does not reference", "source", key, "count", unused)
	}

	docEntry := cache.NewEntry(model.DocumentType, []byte(res.HTML))
	docEntry.Document = true
	entries[key] = docEntry
	d.cache.PutAll(entries)

	d.logger.Info("decoded archive", "source", key, "assets", len(entries)-1, "referenced", len(res.Referenced), "duration", time.Since(start))
	return res.HTML, nil
}

type documentPart struct {
	model.DecodedDocument
	Locator string
}

func (d *Decoder) decodeDocument(key string, part model.ArchivePart) (*documentPart, error) {
	if !part.IsMarkup() {
		err := &UnsupportedDocumentTypeError{Source: key, ContentType: part.ContentType}
		d.logger.Warn("archive document is not markup", "source", key, "content_type", part.ContentType)
		return nil, err
	}

	body, err := d.codec.Decode(part.RawPayload, d.encodingOf(part))
	if err != nil {
		return nil, fmt.Errorf("%s: document part: %w", key, err)
	}
	return &documentPart{
		DecodedDocument: model.DecodedDocument{
			Content:     d.codec.Text(body, part.Charset),
			ContentType: part.ContentType,
		},
		Locator: part.Locator,
	}, nil
}

// decodeAssets decodes every asset part. Failures only drop the failing part.
func (d *Decoder) decodeAssets(key string, raw []model.RawPart) rewrite.MapResolver {
	entries := make(rewrite.MapResolver, len(raw))
	for i, r := range raw {
		part := mhtml.Classify(r)
		assetKey := cache.KeyFromLocator(part.Locator)
		if assetKey == "" {
			d.logger.Warn("skipping asset", "source", key, "part", i+1, "content_type", part.ContentType, "err", ErrMissingLocator)
			continue
		}
		content, err := d.codec.Decode(part.RawPayload, d.encodingOf(part))
		if err != nil {
			d.logger.Warn("skipping asset", "source", key, "part", i+1, "locator", part.Locator, "err", err)
			continue
		}
		if _, dup := entries[assetKey]; dup {
			d.logger.Debug("duplicate asset locator, keeping first", "source", key, "locator", assetKey)
			continue
		}
		contentType, content := d.assetContent(part, content)
		entries[assetKey] = cache.NewEntry(contentType, content)
	}
	return entries
}

// assetContent converts textual content with a declared charset to UTF-8 and
// returns the content type to serve it with. The type always names the
// charset of the returned bytes; an embedded <meta charset> may not.
func (d *Decoder) assetContent(part model.ArchivePart, content []byte) (string, []byte) {
	if !isText(part.ContentType) || part.Charset == "" {
		return part.ContentType, content
	}
	out, ok := d.codec.UTF8(content, part.Charset)
	if !ok {
		return part.ContentType + "; charset=" + part.Charset, content
	}
	return part.ContentType + "; charset=utf-8", out
}

// encodingOf resolves EncodingUnknown for textual parts whose payload is
// evidently quoted-printable.
func (d *Decoder) encodingOf(part model.ArchivePart) model.TransferEncoding {
	if part.TransferEncoding == model.EncodingUnknown && isText(part.ContentType) && codec.LooksQuotedPrintable(part.RawPayload) {
		return model.EncodingQuotedPrintable
	}
	return part.TransferEncoding
}

func isText(contentType string) bool {
	return strings.HasPrefix(contentType, "text/") || model.IsMarkupType(contentType)
}

func (d *Decoder) observe(start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	result := "ok"
	var unsupported *UnsupportedDocumentTypeError
	var decodeErr *codec.DecodeError
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedContainer):
		result = "malformed"
	case errors.As(err, &unsupported):
		result = "unsupported"
	case errors.As(err, &decodeErr):
		result = "decode_error"
	default:
		result = "error"
	}
	d.metrics.Decodes.WithLabelValues(result).Inc()
	d.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
}
