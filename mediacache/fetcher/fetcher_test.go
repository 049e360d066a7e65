package fetcher

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 30, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func TestNormalizer(t *testing.T) {
	t.Run("small image is inlined untouched", func(t *testing.T) {
		body := pngBytes(t, 10, 10)
		payload, err := Normalizer{MaxDimension: 64}.Normalize(body, "image/png")
		require.NoError(t, err)
		assert.Equal(t, DataURL("image/png", body), payload)
	})

	t.Run("large image is downscaled", func(t *testing.T) {
		body := pngBytes(t, 400, 200)
		payload, err := Normalizer{MaxDimension: 100}.Normalize(body, "image/png")
		require.NoError(t, err)

		mediaType, decoded, err := DecodeDataURL(payload)
		require.NoError(t, err)
		assert.Equal(t, "image/png", mediaType)

		cfg, _, err := image.DecodeConfig(bytes.NewReader(decoded))
		require.NoError(t, err)
		assert.Equal(t, 100, cfg.Width)
		assert.Equal(t, 50, cfg.Height)
	})

	t.Run("content type sniffed when missing", func(t *testing.T) {
		body := pngBytes(t, 4, 4)
		payload, err := Normalizer{}.Normalize(body, "")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(payload, "data:image/png;base64,"))
	})

	t.Run("malformed raster body", func(t *testing.T) {
		_, err := Normalizer{}.Normalize([]byte("definitely not a png"), "image/png")
		assert.Error(t, err)
	})

	t.Run("empty body", func(t *testing.T) {
		_, err := Normalizer{}.Normalize(nil, "image/png")
		assert.Error(t, err)
	})

	t.Run("html page rejected", func(t *testing.T) {
		_, err := Normalizer{}.Normalize([]byte("<html><body>Access denied</body></html>"), "text/html; charset=utf-8")
		assert.Error(t, err)
	})

	t.Run("sniffed html rejected", func(t *testing.T) {
		_, err := Normalizer{}.Normalize([]byte("<!DOCTYPE html><html><body>gateway error</body></html>"), "")
		assert.Error(t, err)
	})

	t.Run("non raster kept as is", func(t *testing.T) {
		payload, err := Normalizer{}.Normalize([]byte("hello"), "text/plain; charset=utf-8")
		require.NoError(t, err)
		assert.Equal(t, "data:text/plain;base64,aGVsbG8=", payload)
	})
}

func TestDecodeDataURL(t *testing.T) {
	mt, body, err := DecodeDataURL("data:text/plain;base64,aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mt)
	assert.Equal(t, []byte("hello"), body)

	_, _, err = DecodeDataURL("https://example.com/a.png")
	assert.Error(t, err)

	_, _, err = DecodeDataURL("data:image/png;base64,@@@")
	assert.Error(t, err)
}

func TestHTTPFetcher(t *testing.T) {
	img := pngBytes(t, 8, 8)

	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/moved.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ok.png", http.StatusFound)
	})
	mux.HandleFunc("/loop.png", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop.png", http.StatusFound)
	})
	mux.HandleFunc("/broken.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("garbage"))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body>Please sign in</body></html>"))
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(img)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewHTTPFetcher(HTTPConfig{Timeout: 2 * time.Second})
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		payload, err := f.Fetch(ctx, srv.URL+"/ok.png")
		require.NoError(t, err)
		assert.Equal(t, DataURL("image/png", img), payload)
	})

	t.Run("redirect followed", func(t *testing.T) {
		payload, err := f.Fetch(ctx, srv.URL+"/moved.png")
		require.NoError(t, err)
		assert.Equal(t, DataURL("image/png", img), payload)
	})

	t.Run("redirect loop gives up", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/loop.png")
		assert.True(t, pkgError.IsRemoteUnavailable(err))
	})

	t.Run("non 2xx", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/missing.png")
		var ru *pkgError.RemoteUnavailable
		require.ErrorAs(t, err, &ru)
		assert.Equal(t, http.StatusNotFound, ru.Status)
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/broken.png")
		assert.True(t, pkgError.IsRemoteUnavailable(err))
	})

	t.Run("html page on 200", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/login")
		var ru *pkgError.RemoteUnavailable
		require.ErrorAs(t, err, &ru)
		assert.Equal(t, 0, ru.Status)
	})

	t.Run("timeout", func(t *testing.T) {
		short := NewHTTPFetcher(HTTPConfig{Timeout: 50 * time.Millisecond})
		_, err := short.Fetch(ctx, srv.URL+"/slow.png")
		assert.True(t, pkgError.IsRemoteUnavailable(err))
	})

	t.Run("body over limit", func(t *testing.T) {
		small := NewHTTPFetcher(HTTPConfig{MaxBytes: 16})
		_, err := small.Fetch(ctx, srv.URL+"/ok.png")
		assert.True(t, pkgError.IsRemoteUnavailable(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.Fetch(cctx, srv.URL+"/ok.png")
		assert.True(t, pkgError.IsRemoteUnavailable(err))
	})
}

func TestMux(t *testing.T) {
	var called string
	m := NewMux().Handle(domain.FetcherFunc(func(ctx context.Context, ref string) (string, error) {
		called = ref
		return "data:text/plain;base64,eA==", nil
	}), "https", "HTTP")

	payload, err := m.Fetch(context.Background(), "http://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/x", called)
	assert.Equal(t, "data:text/plain;base64,eA==", payload)

	inline := "data:text/plain;base64,aGVsbG8="
	payload, err = m.Fetch(context.Background(), inline)
	require.NoError(t, err)
	assert.Equal(t, inline, payload)

	_, err = m.Fetch(context.Background(), "ftp://example.com/x")
	assert.True(t, pkgError.IsRemoteUnavailable(err))
}

func TestParseObjectRef(t *testing.T) {
	bucket, key, err := ParseObjectRef("s3://media/avatars/u1.png")
	require.NoError(t, err)
	assert.Equal(t, "media", bucket)
	assert.Equal(t, "avatars/u1.png", key)

	for _, ref := range []string{"s3://media", "s3:///key", "https://media/key"} {
		_, _, err := ParseObjectRef(ref)
		assert.Error(t, err, ref)
	}
}

func TestNewObjectStoreFetcherRequiresEndpoint(t *testing.T) {
	_, err := NewObjectStoreFetcher(ObjectStoreConfig{}, Normalizer{})
	assert.Error(t, err)

	f, err := NewObjectStoreFetcher(ObjectStoreConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}, Normalizer{})
	require.NoError(t, err)
	assert.NotNil(t, f)
}
