package remote

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/cache"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// FetchFile downloads target into dest. It returns http.StatusOK once dest is
// complete and http.StatusNotFound when the remote object does not exist; in the
// latter case dest is left untouched. Every other outcome is FetchFailed.
func (c *Client) FetchFile(ctx context.Context, target, dest string) (int, error) {
	status := 0
	start := time.Now()
	err := c.policy.Do(ctx, "fetch", func(ctx context.Context) error {
		var err error
		status, err = c.fetchOnce(ctx, target, dest)
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.Debug("Fetched remote file", logfields.URL(target), logfields.Status(status), logfields.Duration(time.Since(start)))
	return status, nil
}

func (c *Client) fetchOnce(ctx context.Context, target, dest string) (int, error) {
	resp, cancel, err := c.do(ctx, http.MethodGet, target)
	if err != nil {
		return 0, derrors.FetchFailed("failed to download file").
			WithCause(err).
			WithContext("url", target).
			Build()
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_, _ = io.Copy(io.Discard, resp.Body)
		return http.StatusNotFound, nil
	default:
		return 0, derrors.FetchFailed("unexpected download status").
			WithContext("url", target).
			WithContext("status", resp.StatusCode).
			Build()
	}

	if _, err := cache.WriteFileAtomic(dest, resp.Body); err != nil {
		if derrors.HasCategory(err, derrors.CategoryInternalIO) {
			return 0, err
		}
		return 0, derrors.FetchFailed("download interrupted").
			WithCause(err).
			WithContext("url", target).
			Build()
	}
	return http.StatusOK, nil
}
