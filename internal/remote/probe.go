package remote

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// HasBuildSystem reports whether branch carries the build-tool entry point.
// A 404 means the branch is static (or absent); any other failure is
// UpstreamUnavailable so an outage is never mistaken for a static branch.
func (c *Client) HasBuildSystem(ctx context.Context, branch string) (bool, error) {
	target := c.RawURL(branch, c.probePath)
	var found bool
	err := c.policy.Do(ctx, "probe", func(ctx context.Context) error {
		resp, cancel, err := c.do(ctx, http.MethodHead, target)
		if err != nil {
			return derrors.UpstreamUnavailable("remote repository unreachable").
				WithCause(err).
				WithContext("url", target).
				WithContext("branch", branch).
				Build()
		}
		defer cancel()
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			found = true
			return nil
		case http.StatusNotFound:
			found = false
			return nil
		default:
			return derrors.UpstreamUnavailable("unexpected probe status").
				WithContext("url", target).
				WithContext("status", resp.StatusCode).
				WithContext("branch", branch).
				Build()
		}
	})
	if err != nil {
		return false, err
	}
	slog.Debug("Probed build system", logfields.Branch(branch), slog.Bool("build_system", found))
	return found, nil
}
