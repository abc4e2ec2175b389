package mux

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sepich/mhtml-cache/pkg/service"
	"github.com/stretchr/testify/assert"
)

type fakeService struct {
	lastResource string
	cleared      int
}

func (s *fakeService) Archive(ctx context.Context, path string) service.Response {
	if path == "" {
		return service.Response{Status: 400, Body: []byte(`{"msg":"missing archive path"}`), ContentType: "application/json"}
	}
	if path != "page.mhtml" {
		return service.Response{Status: 404, Body: []byte(`{"msg":"not found"}`), ContentType: "application/json"}
	}
	return service.Response{Status: 200, Body: []byte("<html></html>"), ContentType: "text/html; charset=utf-8"}
}

func (s *fakeService) Resource(requestPath string) service.Response {
	s.lastResource = requestPath
	if strings.HasSuffix(requestPath, "missing") {
		return service.Response{Status: 404, Body: []byte(`{"msg":"not found"}`), ContentType: "application/json"}
	}
	return service.Response{Status: 200, Body: []byte("png"), ContentType: "image/png", ETag: `"abc"`}
}

func (s *fakeService) Clear() service.Response {
	s.cleared++
	return service.Response{Status: 200, Body: []byte(`{"msg":"ok"}`), ContentType: "application/json"}
}

func TestPaths(t *testing.T) {
	testCases := []struct {
		method string
		url    string
		expect int
	}{
		{method: "GET", url: "/archive?path=page.mhtml", expect: 200},
		{method: "GET", url: "/archive?path=other.mhtml", expect: 404},
		{method: "GET", url: "/archive", expect: 400},
		{method: "POST", url: "/archive?path=page.mhtml", expect: 405},

		{method: "GET", url: "/mhtml-resources/cid:img1", expect: 200},
		{method: "HEAD", url: "/mhtml-resources/cid:img1", expect: 200},
		{method: "GET", url: "/mhtml-resources/https:%2F%2Fexample.com%2Fa.png", expect: 200},
		{method: "GET", url: "/mhtml-resources/missing", expect: 404},
		{method: "DELETE", url: "/mhtml-resources", expect: 200},

		{method: "GET", url: "/healthz", expect: 200},
		{method: "GET", url: "/metrics", expect: 200},
		{method: "GET", url: "/v2/prom/node-exporter/manifests/v1.5.0", expect: 404},
	}

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})
	r := NewRouter(&fakeService{}, Options{MountPrefix: "/mhtml-resources/", MetricsPath: "/metrics", Metrics: metrics})

	for _, tC := range testCases {
		t.Run(tC.method+strings.ReplaceAll(tC.url, "/", "-"), func(t *testing.T) {
			req, err := http.NewRequest(tC.method, tC.url, nil)
			if err != nil {
				t.Fatal(err)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, tC.expect, rr.Code)
			assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
		})
	}
}

func TestResourcePathStaysEscaped(t *testing.T) {
	s := &fakeService{}
	r := NewRouter(s, Options{MountPrefix: "/mhtml-resources"})

	req := httptest.NewRequest("GET", "/mhtml-resources/https:%2F%2Fexample.com%2Fa%20b.png", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, 200, rr.Code)
	assert.Equal(t, "/mhtml-resources/https:%2F%2Fexample.com%2Fa%20b.png", s.lastResource)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.Equal(t, "png", rr.Body.String())
}

func TestConditionalGet(t *testing.T) {
	testCases := []struct {
		ifNoneMatch string
		expect      int
	}{
		{ifNoneMatch: "", expect: 200},
		{ifNoneMatch: `"abc"`, expect: 304},
		{ifNoneMatch: `W/"abc"`, expect: 304},
		{ifNoneMatch: `"x", "abc"`, expect: 304},
		{ifNoneMatch: "*", expect: 304},
		{ifNoneMatch: `"other"`, expect: 200},
	}

	r := NewRouter(&fakeService{}, Options{MountPrefix: "/mhtml-resources"})
	for _, tC := range testCases {
		t.Run(tC.ifNoneMatch, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/mhtml-resources/cid:img1", nil)
			if tC.ifNoneMatch != "" {
				req.Header.Set("If-None-Match", tC.ifNoneMatch)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)

			assert.Equal(t, tC.expect, rr.Code)
			assert.Equal(t, `"abc"`, rr.Header().Get("ETag"))
			if tC.expect == 304 {
				assert.Empty(t, rr.Body.String())
			}
		})
	}
}

func TestArchiveWithoutPath(t *testing.T) {
	r := NewRouter(&fakeService{}, Options{MountPrefix: "/mhtml-resources"})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("GET", "/archive", nil))

	assert.Equal(t, 400, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"msg":"missing archive path"}`, rr.Body.String())
}

func TestClearRoute(t *testing.T) {
	s := &fakeService{}
	r := NewRouter(s, Options{MountPrefix: "/mhtml-resources"})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest("DELETE", "/mhtml-resources", nil))

	assert.Equal(t, 200, rr.Code)
	assert.JSONEq(t, `{"msg":"ok"}`, rr.Body.String())
	assert.Equal(t, 1, s.cleared)
}
