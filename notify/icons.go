package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// iconCache keeps one local copy per remote icon URL.
type iconCache struct {
	dir    string
	client *http.Client
	lock   *sync.Mutex
	paths  map[string]string
}

func newIconCache(dir string, client *http.Client) *iconCache {
	if client == nil {
		client = http.DefaultClient
	}
	return &iconCache{
		dir:    dir,
		client: client,
		lock:   &sync.Mutex{},
		paths:  map[string]string{},
	}
}

func (c *iconCache) path(ctx context.Context, rawURL string) (string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if p, ok := c.paths[rawURL]; ok {
		return p, nil
	}

	location := filepath.Join(c.dir, iconFilename(rawURL))
	if _, err := os.Stat(location); err == nil {
		c.paths[rawURL] = location
		return location, nil
	}

	if err := c.download(ctx, rawURL, location); err != nil {
		return "", err
	}
	c.paths[rawURL] = location
	return location, nil
}

func (c *iconCache) download(ctx context.Context, rawURL, location string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return errors.Wrap(err, "invalid icon url")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "icon request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("icon request returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return errors.Wrap(err, "cannot create icon cache directory")
	}

	tmp, err := os.CreateTemp(c.dir, "icon-*")
	if err != nil {
		return errors.Wrap(err, "cannot create icon file")
	}
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrap(err, "cannot write icon file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "cannot write icon file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), location), "cannot store icon file")
}

func iconFilename(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext := ""
	if u, err := url.Parse(rawURL); err == nil {
		ext = path.Ext(u.Path)
	}
	return hex.EncodeToString(sum[:8]) + ext
}
