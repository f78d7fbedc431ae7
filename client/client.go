package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/patrickmn/go-cache"

	"github.com/aviary-social/aviary"
)

const (
	defaultTimeout = 3 * time.Second
	cacheTTL       = 10 * time.Minute
)

// Client resolves DID documents through the configured plc directory (for
// did:plc) or the well-known endpoint (for did:web). Documents are cached
// in-process; when a memcached client is supplied they are additionally
// shared across processes.
type Client struct {
	client       *http.Client
	cache        *cache.Cache
	mc           *memcache.Client
	plcDirectory string
	userAgent    string
}

func New(plcDirectory string, mc *memcache.Client) *Client {
	httpClient := &http.Client{
		Timeout: defaultTimeout,
	}

	c := &Client{
		client:       httpClient,
		cache:        cache.New(cacheTTL, 15*time.Minute),
		mc:           mc,
		plcDirectory: strings.TrimSuffix(plcDirectory, "/"),
		userAgent:    "aviary/0.1",
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return http.DefaultTransport.RoundTrip(req)
}

// ResolveDID fetches the DID document for a did:plc or did:web identity.
func (c *Client) ResolveDID(ctx context.Context, did string) (aviary.DIDDocument, error) {
	if !aviary.IsDID(did) {
		return aviary.DIDDocument{}, fmt.Errorf("not a did: %s", did)
	}

	cacheKey := "did:doc:" + did
	if x, found := c.cache.Get(cacheKey); found {
		return x.(aviary.DIDDocument), nil
	}

	if c.mc != nil {
		if item, err := c.mc.Get(cacheKey); err == nil {
			var doc aviary.DIDDocument
			if err := json.Unmarshal(item.Value, &doc); err == nil {
				c.cache.Set(cacheKey, doc, cache.DefaultExpiration)
				return doc, nil
			}
		}
	}

	url, err := c.documentURL(did)
	if err != nil {
		return aviary.DIDDocument{}, err
	}

	doc, err := c.fetchDocument(ctx, url)
	if err != nil {
		return aviary.DIDDocument{}, err
	}
	if doc.ID != did {
		return aviary.DIDDocument{}, fmt.Errorf("did document id mismatch: expected %s, got %s", did, doc.ID)
	}

	c.cache.Set(cacheKey, doc, cache.DefaultExpiration)
	if c.mc != nil {
		if raw, err := json.Marshal(doc); err == nil {
			_ = c.mc.Set(&memcache.Item{
				Key:        cacheKey,
				Value:      raw,
				Expiration: int32(cacheTTL / time.Second),
			})
		}
	}

	return doc, nil
}

func (c *Client) documentURL(did string) (string, error) {
	switch {
	case strings.HasPrefix(did, "did:plc:"):
		if c.plcDirectory == "" {
			return "", fmt.Errorf("no plc directory configured")
		}
		return c.plcDirectory + "/" + did, nil
	case strings.HasPrefix(did, "did:web:"):
		rest := strings.TrimPrefix(did, "did:web:")
		parts := strings.Split(rest, ":")
		if parts[0] == "" {
			return "", fmt.Errorf("invalid did:web: %s", did)
		}
		if len(parts) == 1 {
			return "https://" + parts[0] + "/.well-known/did.json", nil
		}
		return "https://" + parts[0] + "/" + strings.Join(parts[1:], "/") + "/did.json", nil
	default:
		return "", fmt.Errorf("unsupported did method: %s", did)
	}
}

func (c *Client) fetchDocument(ctx context.Context, url string) (aviary.DIDDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return aviary.DIDDocument{}, fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return aviary.DIDDocument{}, fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return aviary.DIDDocument{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var doc aviary.DIDDocument
	err = json.NewDecoder(resp.Body).Decode(&doc)
	if err != nil {
		return aviary.DIDDocument{}, fmt.Errorf("failed to decode did document: %v", err)
	}
	return doc, nil
}
