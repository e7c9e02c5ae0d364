package apihttp

import (
	"errors"
	"io"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	maxCoverBytes    = int64(8 * 1024 * 1024)
	defaultCoverSize = "cover_big"
)

var (
	coverImageIDPattern = regexp.MustCompile(`^[a-z0-9]{1,64}$`)
	coverSizes          = map[string]struct{}{
		"cover_small": {},
		"cover_big":   {},
		"thumb":       {},
		"720p":        {},
		"1080p":       {},
	}
)

// handleCoverProxy streams a cover image from the catalog image host. Only
// the image id and a whitelisted size come from the caller.
func (s *Server) handleCoverProxy(w http.ResponseWriter, r *http.Request) {
	imageID := strings.TrimSuffix(r.PathValue("imageId"), ".jpg")
	if !coverImageIDPattern.MatchString(imageID) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid image id")
		return
	}
	size := strings.TrimSpace(r.URL.Query().Get("size"))
	if size == "" {
		size = defaultCoverSize
	}
	if _, ok := coverSizes[size]; !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "unsupported size")
		return
	}

	target := s.imageBaseURL + "/t_" + size + "/" + imageID + ".jpg"
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "invalid image url")
		return
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := s.coverClient.Do(req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to fetch image")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		writeError(w, http.StatusNotFound, "not_found", "image not found")
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, http.StatusBadGateway, "upstream_error", "upstream returned HTTP "+strconv.Itoa(resp.StatusCode))
		return
	}
	if resp.ContentLength > maxCoverBytes {
		writeError(w, http.StatusBadGateway, "upstream_error", "image too large")
		return
	}

	limited := io.LimitReader(resp.Body, maxCoverBytes)
	head := make([]byte, 512)
	n, readErr := io.ReadFull(limited, head)
	if readErr != nil && !errors.Is(readErr, io.ErrUnexpectedEOF) && !errors.Is(readErr, io.EOF) {
		writeError(w, http.StatusBadGateway, "upstream_error", "failed to read image")
		return
	}
	head = head[:n]

	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = http.DetectContentType(head)
	}
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		writeError(w, http.StatusBadGateway, "upstream_error", "not an image")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write(head)
	_, _ = io.Copy(w, limited)
}

func newCoverClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	dialer := &net.Dialer{Timeout: 8 * time.Second, KeepAlive: 30 * time.Second}
	transport.DialContext = dialer.DialContext

	return &http.Client{
		Timeout:   12 * time.Second,
		Transport: otelhttp.NewTransport(transport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 3 {
				return errors.New("stopped after 3 redirects")
			}
			if req.URL == nil || via[0].URL == nil || !strings.EqualFold(req.URL.Host, via[0].URL.Host) {
				return errors.New("redirect leaves image host")
			}
			return nil
		},
	}
}
