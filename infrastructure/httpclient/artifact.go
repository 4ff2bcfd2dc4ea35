package httpclient

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/AzielCF/az-publish/publishing/domain"
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// ArtifactDownloader stores the result of a completed task under dir as
// <task id><ext>.
type ArtifactDownloader struct {
	client *Client
	dir    string
}

func NewArtifactDownloader(client *Client, dir string) *ArtifactDownloader {
	return &ArtifactDownloader{client: client, dir: dir}
}

func (d *ArtifactDownloader) Fetch(ctx context.Context, taskID, rawURL string) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create artifact dir: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rawURL)
	req.Header.SetMethod("GET")
	if err := d.client.hc.DoDeadline(req, resp, d.client.deadline(ctx)); err != nil {
		return "", 0, domain.Unreachable(err)
	}
	if code := resp.StatusCode(); code < 200 || code >= 300 {
		err := fmt.Errorf("download non-2xx: %d", code)
		if code >= 500 {
			return "", 0, domain.Unreachable(err)
		}
		return "", 0, err
	}

	target := filepath.Join(d.dir, taskID+extensionOf(rawURL))
	tmp, err := os.CreateTemp(d.dir, taskID+".*.part")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	if err := resp.BodyWriteTo(tmp); err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("save artifact: %w", err)
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", 0, err
	}

	logrus.Infof("[RECONCILER] Stored artifact for task %s at %s (%s)", taskID, target, humanize.Bytes(uint64(info.Size())))
	return target, info.Size(), nil
}

func extensionOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".bin"
	}
	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > 6 {
		return ".bin"
	}
	return ext
}
