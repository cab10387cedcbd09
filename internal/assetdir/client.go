// Package assetdir fetches device and user records from the Axonius asset
// inventory and serves them to the correlator as an immutable in-memory
// snapshot, refreshed once per pipeline cycle.
package assetdir

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sentinelworks/ise-enrich/internal/config"
	"github.com/sentinelworks/ise-enrich/internal/models"
	"github.com/sentinelworks/ise-enrich/internal/normalize"
)

// Axonius v2 plain-data field paths for device assets.
const (
	axonID            = "internal_axon_id"
	axonHostname      = "specific_data.data.hostname"
	axonIPsPreferred  = "specific_data.data.network_interfaces.ips_preferred"
	axonMACsPreferred = "specific_data.data.network_interfaces.mac_preferred"
	axonOSType        = "specific_data.data.os.type"
	axonOSDistro      = "specific_data.data.os.distribution"
	axonLastSeen      = "specific_data.data.last_seen"
	axonAdapterSeen   = "adapters_data.axonius_adapter.last_seen"
	axonSubnets       = "specific_data.data.network_interfaces.subnets"
)

// Axonius v2 plain-data field paths for user assets.
const (
	axonUsername     = "specific_data.data.username"
	axonAssocDevices = "specific_data.data.associated_devices"
)

// AssetTypeDevices and AssetTypeUsers are the Axonius asset collections
// the pipeline reads.
const (
	AssetTypeDevices = "devices"
	AssetTypeUsers   = "users"
)

// Client talks to the Axonius REST API v2.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	pageLimit  int
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates an inventory API client. instanceURL may be given
// with or without a scheme; https is assumed.
func NewClient(cfg config.AxoniusConfig, timeout time.Duration, log *slog.Logger) *Client {
	base := cfg.InstanceURL
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	base = strings.TrimRight(base, "/") + "/api/v2"

	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		pageLimit: cfg.PageLimit,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

// DiscoverySucceeded checks whether the inventory has a completed
// discovery cycle. Asset data is only trustworthy after one.
func (c *Client) DiscoverySucceeded(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/discovery", nil)
	if err != nil {
		return false, err
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: discovery check: %v", ErrDirectoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("%w: discovery check: %d - %s", ErrDirectoryUnavailable, resp.StatusCode, string(body))
	}

	var result struct {
		HasSucceeded bool `json:"has_succeeded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return false, fmt.Errorf("%w: decode discovery response: %v", ErrDirectoryUnavailable, err)
	}

	return result.HasSucceeded, nil
}

// FetchAssets retrieves all assets of the given type, requesting only the
// provided field paths. Pages through the collection with limit/offset.
func (c *Client) FetchAssets(ctx context.Context, assetType string, fields []string) ([]map[string]any, error) {
	assets := make([]map[string]any, 0, c.pageLimit)
	offset := 0

	for {
		page, err := c.fetchPage(ctx, assetType, fields, offset)
		if err != nil {
			return nil, err
		}

		assets = append(assets, page...)

		if len(page) < c.pageLimit {
			break
		}
		offset += len(page)
	}

	c.log.Debug("fetched inventory assets",
		slog.String("asset_type", assetType),
		slog.Int("count", len(assets)),
	)
	return assets, nil
}

func (c *Client) fetchPage(ctx context.Context, assetType string, fields []string, offset int) ([]map[string]any, error) {
	params := map[string]any{
		"include_metadata": true,
		"page": map[string]any{
			"limit":  c.pageLimit,
			"offset": offset,
		},
		"use_cache_entry":   true,
		"return_plain_data": true,
		"fields":            fields,
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("encode asset request: %w", err)
	}

	// The Axonius v2 asset endpoints take their parameters as a JSON body
	// on a GET request.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/assets/"+assetType, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch %s: %v", ErrDirectoryUnavailable, assetType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: fetch %s: %d - %s", ErrDirectoryUnavailable, assetType, resp.StatusCode, string(respBody))
	}

	var result struct {
		Assets []map[string]any `json:"assets"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode %s response: %v", ErrDirectoryUnavailable, assetType, err)
	}

	return result.Assets, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("api-secret", c.apiSecret)
}

// parseAsset converts one raw plain-data asset into an AssetRecord.
// Returns false when the asset has neither hostname nor any usable
// MAC/IP, since such a record can never correlate.
func parseAsset(raw map[string]any) (models.AssetRecord, bool) {
	rec := models.AssetRecord{}

	if id, ok := raw[axonID].(string); ok {
		rec.ID = id
	}

	if h, ok := raw[axonHostname]; ok {
		for _, cand := range normalize.StringList(h) {
			if name, ok := normalize.Hostname(cand); ok {
				rec.Hostname = name
				break
			}
		}
	}

	for _, ip := range normalize.StringList(raw[axonIPsPreferred]) {
		if clean, ok := normalize.IP(ip); ok {
			rec.IPs = append(rec.IPs, clean)
		}
	}

	for _, mac := range normalize.StringList(raw[axonMACsPreferred]) {
		if clean, ok := normalize.MAC(mac); ok {
			rec.MACs = append(rec.MACs, clean)
		}
	}

	if v := normalize.StringList(raw[axonOSType]); len(v) > 0 {
		rec.OSType = v[0]
	}
	if v := normalize.StringList(raw[axonOSDistro]); len(v) > 0 {
		rec.OSVersion = v[0]
	}
	rec.Subnets = normalize.StringList(raw[axonSubnets])

	if ts, ok := normalize.LastSeen(raw[axonLastSeen]); ok {
		rec.LastSeen = ts
	} else if ts, ok := normalize.LastSeen(raw[axonAdapterSeen]); ok {
		rec.LastSeen = ts
	}

	if rec.Hostname == "" && len(rec.MACs) == 0 && len(rec.IPs) == 0 {
		return models.AssetRecord{}, false
	}
	return rec, true
}

// parseUserAsset converts one raw user asset. Users contribute hostname
// associations only; a user with no associated device can never
// correlate and is dropped.
func parseUserAsset(raw map[string]any) (models.AssetRecord, bool) {
	rec := models.AssetRecord{}

	if id, ok := raw[axonID].(string); ok {
		rec.ID = id
	}

	for _, dev := range normalize.StringList(raw[axonAssocDevices]) {
		if name, ok := normalize.Hostname(dev); ok {
			rec.Hostname = name
			break
		}
	}

	if v := normalize.StringList(raw[axonUsername]); len(v) > 0 && rec.ID == "" {
		rec.ID = v[0]
	}

	if ts, ok := normalize.LastSeen(raw[axonLastSeen]); ok {
		rec.LastSeen = ts
	}

	if rec.Hostname == "" {
		return models.AssetRecord{}, false
	}
	return rec, true
}
