package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

const (
	DefaultTimeout      = 15 * time.Second
	DefaultMaxBytes     = 20 * 1024 * 1024
	defaultMaxRedirects = 5
	defaultUserAgent    = "az-mediacache/1.0"
)

type HTTPConfig struct {
	Timeout    time.Duration
	MaxBytes   int64
	UserAgent  string
	Normalizer Normalizer
}

// HTTPFetcher downloads http(s) references with fasthttp. Each request is
// bounded by Timeout (or the context deadline when sooner).
type HTTPFetcher struct {
	client     *fasthttp.Client
	timeout    time.Duration
	userAgent  string
	normalizer Normalizer
}

func NewHTTPFetcher(cfg HTTPConfig) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &HTTPFetcher{
		client: &fasthttp.Client{
			Name:                     cfg.UserAgent,
			MaxResponseBodySize:      int(cfg.MaxBytes),
			ReadTimeout:              cfg.Timeout,
			WriteTimeout:             cfg.Timeout,
			NoDefaultUserAgentHeader: true,
		},
		timeout:    cfg.Timeout,
		userAgent:  cfg.UserAgent,
		normalizer: cfg.Normalizer,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, remoteRef string) (payload string, err error) {
	ctx, span := startSpan(ctx, "fetcher.http", remoteRef)
	defer func() { endSpan(span, len(payload), err) }()

	body, contentType, err := f.download(ctx, remoteRef)
	if err != nil {
		return "", err
	}

	payload, err = f.normalizer.Normalize(body, contentType)
	if err != nil {
		return "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
	}
	return payload, nil
}

func (f *HTTPFetcher) download(ctx context.Context, remoteRef string) ([]byte, string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	target := remoteRef
	for redirects := 0; ; redirects++ {
		if err := ctx.Err(); err != nil {
			return nil, "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
		}

		req.Reset()
		resp.Reset()
		req.SetRequestURI(target)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.SetUserAgent(f.userAgent)
		req.Header.Set(fasthttp.HeaderAccept, "image/*,*/*;q=0.8")

		if err := f.client.DoTimeout(req, resp, f.requestTimeout(ctx)); err != nil {
			if errors.Is(err, fasthttp.ErrTimeout) {
				logrus.Debugf("[FETCHER] Timeout fetching %s", target)
			}
			return nil, "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
		}

		status := resp.StatusCode()
		if fasthttp.StatusCodeIsRedirect(status) {
			location := string(resp.Header.Peek(fasthttp.HeaderLocation))
			if location == "" || redirects >= defaultMaxRedirects {
				return nil, "", &pkgError.RemoteUnavailable{Ref: remoteRef, Status: status}
			}
			next, err := resolveLocation(target, location)
			if err != nil {
				return nil, "", &pkgError.RemoteUnavailable{Ref: remoteRef, Err: err}
			}
			target = next
			continue
		}
		if status < 200 || status > 299 {
			return nil, "", &pkgError.RemoteUnavailable{Ref: remoteRef, Status: status}
		}

		body := append([]byte(nil), resp.Body()...)
		return body, string(resp.Header.ContentType()), nil
	}
}

func (f *HTTPFetcher) requestTimeout(ctx context.Context) time.Duration {
	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = max(remaining, time.Millisecond)
		}
	}
	return timeout
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	loc, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("invalid redirect location: %w", err)
	}
	return baseURL.ResolveReference(loc).String(), nil
}
