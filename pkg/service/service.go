package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/sepich/mhtml-cache/pkg/cache"
	"github.com/sepich/mhtml-cache/pkg/decoder"
	"github.com/sepich/mhtml-cache/pkg/model"
)

const jsonType = "application/json"

// Service is what the router needs from the delivery layer.
type Service interface {
	Archive(ctx context.Context, path string) Response
	Resource(requestPath string) Response
	Clear() Response
}

// Response is transport neutral; the router writes it out as-is.
type Response struct {
	Status      int
	Body        []byte
	ContentType string
	ETag        string
}

type message struct {
	Msg string `json:"msg"`
}

func jsonResponse(status int, msg string) Response {
	body, _ := json.Marshal(message{Msg: msg})
	return Response{Status: status, Body: body, ContentType: jsonType}
}

type ArchiveService struct {
	Decoder     *decoder.Decoder
	Cache       cache.Store
	MountPrefix string
	Logger      *slog.Logger
}

var _ Service = &ArchiveService{}

func (s *ArchiveService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

// Archive decodes the archive at path and returns its rewritten document.
func (s *ArchiveService) Archive(ctx context.Context, path string) Response {
	if strings.TrimSpace(path) == "" {
		return s.failure(path, &StatusError{Code: http.StatusBadRequest, Err: errors.New("missing archive path")})
	}
	doc, err := s.Decoder.Decode(ctx, path)
	if err != nil {
		return s.failure(path, err)
	}
	return Response{Status: http.StatusOK, Body: []byte(doc), ContentType: model.DocumentType}
}

func (s *ArchiveService) failure(path string, err error) Response {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger().Error("archive request failed", "path", path, "status", status, "err", err)
	} else {
		s.logger().Warn("archive request rejected", "path", path, "status", status, "err", err)
	}
	return jsonResponse(status, err.Error())
}

// Resource serves a cached entry. requestPath is the raw, still escaped path
// under the mount prefix, as produced by the link rewriter.
func (s *ArchiveService) Resource(requestPath string) Response {
	key, err := s.keyOf(requestPath)
	if err != nil {
		s.logger().Debug("bad resource path", "path", requestPath, "err", err)
		return jsonResponse(http.StatusNotFound, "not found")
	}
	entry, ok := s.Cache.Get(key)
	if !ok {
		return jsonResponse(http.StatusNotFound, "not found")
	}
	contentType := entry.ContentType
	if contentType == "" {
		contentType = model.DefaultContentType
	}
	return Response{Status: http.StatusOK, Body: entry.Content, ContentType: contentType, ETag: entry.ETag}
}

func (s *ArchiveService) keyOf(requestPath string) (string, error) {
	prefix := strings.TrimSuffix(s.MountPrefix, "/")
	rest, ok := strings.CutPrefix(requestPath, prefix+"/")
	if !ok {
		return "", errors.New("outside mount prefix")
	}
	return url.PathUnescape(rest)
}

func (s *ArchiveService) Clear() Response {
	n := s.Cache.Len()
	s.Cache.Clear()
	s.logger().Info("cleared resource cache", "entries", n)
	return jsonResponse(http.StatusOK, "ok")
}
