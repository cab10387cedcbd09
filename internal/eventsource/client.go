// Package eventsource reads authentication events from the Elasticsearch
// index and writes enrichment results back as partial document updates.
package eventsource

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/sentinelworks/ise-enrich/internal/config"
	"github.com/sentinelworks/ise-enrich/internal/models"
)

// Source document fields produced by the upstream ingest pipeline from raw
// ISE syslog. The enrichment targets (client.ip, host.hostname, ...) are
// written alongside these.
const (
	fieldTimestamp        = "@timestamp"
	fieldEventCode        = "event.code"
	fieldEventOutcome     = "event.outcome"
	fieldCallingStationID = "ise.calling_station_id"
	fieldEndpointID       = "ise.endpoint_id"
)

// defaultPageSize bounds one search page; FetchBatch pages with
// search_after until maxRecords is reached.
const defaultPageSize = 500

// Client wraps the Elasticsearch client for the event index.
type Client struct {
	es       *elasticsearch.Client
	index    string
	pipeline string
	pageSize int
	log      *slog.Logger
}

// New creates a Client and verifies connectivity with a cluster info call.
func New(cfg config.ElasticsearchConfig, log *slog.Logger) (*Client, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.Insecure,
			},
		},
	}

	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		APIKey:    cfg.APIKey,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: httpClient.Transport,
	}

	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	info, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("%w: ping failed: %v", ErrSourceUnavailable, err)
	}
	defer info.Body.Close()

	if info.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSourceUnavailable, info.Status())
	}

	return &Client{
		es:       es,
		index:    cfg.Index,
		pipeline: cfg.Pipeline,
		pageSize: defaultPageSize,
		log:      log,
	}, nil
}

// Index returns the configured event index name.
func (c *Client) Index() string {
	return c.index
}

// Pipeline returns the name of the upstream ingest pipeline that parses
// raw ISE syslog into the fields this client reads.
func (c *Client) Pipeline() string {
	return c.pipeline
}

// FetchBatch retrieves passed-authentication events in [windowStart,
// windowEnd), ordered timestamp ascending, bounded to maxRecords. Pages
// through results with search_after.
func (c *Client) FetchBatch(ctx context.Context, windowStart, windowEnd time.Time, maxRecords int) ([]models.AuthEvent, error) {
	if maxRecords <= 0 {
		return nil, nil
	}

	events := make([]models.AuthEvent, 0, min(maxRecords, c.pageSize))
	var searchAfter []any

	for len(events) < maxRecords {
		size := min(c.pageSize, maxRecords-len(events))

		query := map[string]any{
			"query": map[string]any{
				"bool": map[string]any{
					"filter": []any{
						map[string]any{
							"range": map[string]any{
								fieldTimestamp: map[string]any{
									"gte": windowStart.UTC().Format(time.RFC3339Nano),
									"lt":  windowEnd.UTC().Format(time.RFC3339Nano),
								},
							},
						},
						map[string]any{
							"term": map[string]any{
								fieldEventOutcome: "success",
							},
						},
					},
				},
			},
			"sort": []any{
				map[string]any{fieldTimestamp: "asc"},
				map[string]any{"_id": "asc"},
			},
		}
		if searchAfter != nil {
			query["search_after"] = searchAfter
		}

		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(query); err != nil {
			return nil, fmt.Errorf("encode query: %w", err)
		}

		res, err := c.es.Search(
			c.es.Search.WithContext(ctx),
			c.es.Search.WithIndex(c.index),
			c.es.Search.WithBody(&buf),
			c.es.Search.WithSize(size),
			c.es.Search.WithTrackTotalHits(false),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: search request: %v", ErrSourceUnavailable, err)
		}

		page, lastSort, err := c.decodePage(res)
		if err != nil {
			return nil, err
		}

		events = append(events, page...)

		if len(page) < size || lastSort == nil {
			break
		}
		searchAfter = lastSort
	}

	return events, nil
}

func (c *Client) decodePage(res *esapi.Response) ([]models.AuthEvent, []any, error) {
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == http.StatusBadRequest {
			return nil, nil, fmt.Errorf("%w: %s", ErrQueryError, res.String())
		}
		return nil, nil, fmt.Errorf("%w: search error: %s", ErrSourceUnavailable, res.Status())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
				Sort   []any          `json:"sort"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, nil, fmt.Errorf("%w: decode response: %v", ErrSourceUnavailable, err)
	}

	events := make([]models.AuthEvent, 0, len(searchResult.Hits.Hits))
	var lastSort []any

	for _, hit := range searchResult.Hits.Hits {
		ev := models.AuthEvent{
			ID:               hit.ID,
			CallingStationID: sourceString(hit.Source, fieldCallingStationID),
			EndpointID:       sourceString(hit.Source, fieldEndpointID),
			EventCode:        sourceString(hit.Source, fieldEventCode),
			AuthStatus:       sourceString(hit.Source, fieldEventOutcome),
		}
		if ts := sourceString(hit.Source, fieldTimestamp); ts != "" {
			if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
				ev.Timestamp = t.UTC()
			}
		}
		events = append(events, ev)
		lastSort = hit.Sort
	}

	return events, lastSort, nil
}

// WriteEnrichment applies a partial document update to one event. fields
// are keyed by dotted target path and expanded into a nested document so
// the update merges cleanly with the existing mapping. The operation is
// idempotent: repeating the same fields leaves the document unchanged.
func (c *Client) WriteEnrichment(ctx context.Context, eventID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	body := map[string]any{"doc": expandDotted(fields)}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	res, err := c.es.Update(
		c.index,
		eventID,
		&buf,
		c.es.Update.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("%w: update request: %v", ErrSourceUnavailable, err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound || res.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: event %s: %s", ErrWriteConflict, eventID, res.Status())
	case res.IsError():
		return fmt.Errorf("%w: update error for event %s: %s", ErrSourceUnavailable, eventID, res.Status())
	}

	return nil
}

// expandDotted turns {"client.ip": v} into {"client": {"ip": v}}.
func expandDotted(fields map[string]any) map[string]any {
	doc := make(map[string]any, len(fields))
	for path, value := range fields {
		parts := strings.Split(path, ".")
		node := doc
		for _, key := range parts[:len(parts)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[key] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return doc
}

// sourceString reads a value from a decoded _source map, accepting both a
// flat dotted key and the equivalent nested object path.
func sourceString(source map[string]any, path string) string {
	if v, ok := source[path]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}

	node := any(source)
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return ""
		}
		node, ok = m[key]
		if !ok {
			return ""
		}
	}
	s, _ := node.(string)
	return s
}
