// Package extractor turns raw sources (web pages, uploaded files, inline text)
// into a single normalized text string.
package extractor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docsassist/internal/model"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxPageSize      = 32 * 1024 * 1024
)

type Config struct {
	Timeout   time.Duration
	UserAgent string
	// Client overrides the http client built from Timeout.
	Client *http.Client
}

// Source describes one raw input. Only the fields matching Kind are read.
type Source struct {
	Kind     model.SourceType
	URL      string
	FileName string
	Data     []byte
	Text     string
}

func (s Source) descriptor() string {
	switch s.Kind {
	case model.SourceTypeURL:
		return s.URL
	case model.SourceTypeFile:
		return s.FileName
	default:
		return string(s.Kind)
	}
}

type Extractor struct {
	client    *http.Client
	userAgent string
}

func New(cfg Config) *Extractor {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	return &Extractor{client: client, userAgent: ua}
}

// Extract returns the normalized text of src. Every failure is an *ExtractionError.
func (e *Extractor) Extract(ctx context.Context, src Source) (string, error) {
	logger := logutil.GetLogger(ctx).With(zap.String("kind", string(src.Kind)), zap.String("source", src.descriptor()))
	var (
		text string
		err  error
	)
	switch src.Kind {
	case model.SourceTypeURL:
		text, err = e.fetchURL(ctx, src.URL)
	case model.SourceTypeFile:
		text, err = ExtractFile(src.FileName, src.Data)
	case model.SourceTypeText:
		text = src.Text
	default:
		err = fmt.Errorf("unknown source type %q", src.Kind)
	}
	if err != nil {
		logger.Warn("extract text failed", zap.Error(err))
		return "", wrap(string(src.Kind), src.descriptor(), err)
	}
	logger.Debug("text extracted", zap.Int("length", len(text)))
	return text, nil
}

func (e *Extractor) fetchURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", e.userAgent)
	resp, err := e.client.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}
	return extractPage(io.LimitReader(resp.Body, maxPageSize))
}
