package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/cesargomez89/keepoffline/internal/domain"
	"github.com/cesargomez89/keepoffline/internal/httpclient"
)

// HTTPRepository reads media details from a JSON API laid out as
// {base}/media/{kind}/{id}.
type HTTPRepository struct {
	client  *httpclient.Client
	baseURL string
}

func NewHTTPRepository(baseURL string, client *httpclient.Client) *HTTPRepository {
	if client == nil {
		client = httpclient.NewClient(nil, 0)
	}
	return &HTTPRepository{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (r *HTTPRepository) GetDetails(ctx context.Context, mediaID string, kind domain.MediaKind) (*domain.DetailedMedia, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedKind, kind)
	}
	endpoint := fmt.Sprintf("%s/media/%s/%s", r.baseURL, url.PathEscape(string(kind)), url.PathEscape(mediaID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", kind, mediaID, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, mediaID)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: endpoint}
	}

	var media domain.DetailedMedia
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s: %w", kind, mediaID, err)
	}
	if media.ID == "" {
		media.ID = mediaID
	}
	if media.Kind == "" {
		media.Kind = kind
	}
	return &media, nil
}
