package pss

import (
	"net/http"

	"github.com/pthm/hxrender"
)

// FromConfig creates a store for the site described by cfg: at most
// cfg.Cache.MaxPages pages, preloading only the site's locales from the
// server at baseURL. client may be nil.
//
//	cfg, err := hxrender.LoadConfig("hxrender.yaml")
//	cache := pss.FromConfig(cfg, "https://example.com", nil)
func FromConfig(cfg hxrender.Config, baseURL string, client *http.Client, opts ...Option) *Store {
	fetcher := &HTTPFetcher{BaseURL: baseURL, Client: client}
	opts = append([]Option{WithLocales(cfg.AppLocales().All()...)}, opts...)
	return New(cfg.Cache.MaxPages, fetcher, opts...)
}
