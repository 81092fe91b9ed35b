package blob

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ziadkadry99/docqa/internal/config"
)

// URLBuilder derives the public URL of an accepted document for citations.
type URLBuilder struct {
	account   string
	container string
	baseURL   string
	store     Store
}

// NewURLBuilder builds URLs from the storage config. store supplies the
// file:// fallback when neither an account nor a base URL is configured.
func NewURLBuilder(cfg config.StorageConfig, store Store) *URLBuilder {
	container := cfg.Container
	if container == "" {
		container = string(Accepted)
	}
	return &URLBuilder{
		account:   cfg.Account,
		container: container,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		store:     store,
	}
}

// URL returns the document URL for filename. The same filename always
// yields the same URL.
func (b *URLBuilder) URL(filename string) string {
	escaped := url.PathEscape(filename)
	switch {
	case b.account != "":
		return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", b.account, b.container, escaped)
	case b.baseURL != "":
		return b.baseURL + "/" + escaped
	case b.store != nil:
		u := url.URL{Scheme: "file", Path: filepath.ToSlash(b.store.Path(Accepted, filename))}
		return u.String()
	default:
		return filename
	}
}
