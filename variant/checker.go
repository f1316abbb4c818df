package variant

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-cleanhttp"
	"go.uber.org/zap"

	"github.com/wippyai/engine-bridge/errors"
)

// Checker confirms that an artifact exists.
type Checker interface {
	Exists(ctx context.Context, url string) bool
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context, url string) bool

func (f CheckerFunc) Exists(ctx context.Context, url string) bool { return f(ctx, url) }

// HTTPChecker issues HEAD requests. Any 2xx response means present; every
// other status and every transport error means absent.
type HTTPChecker struct {
	Client *http.Client
}

// NewHTTPChecker returns a checker using a pooled client.
func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{Client: cleanhttp.DefaultPooledClient()}
}

func (c *HTTPChecker) Exists(ctx context.Context, url string) bool {
	if err := c.Check(ctx, url); err != nil {
		Logger().Debug("artifact absent", zap.String("url", url), zap.Error(err))
		return false
	}
	return true
}

// Check explains why url is absent, or returns nil when it is present.
func (c *HTTPChecker) Check(ctx context.Context, url string) error {
	client := c.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.Wrap(errors.PhaseResolve, errors.KindInvalidInput, err, "build existence request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(errors.PhaseResolve, errors.KindNetwork, err, "existence request")
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(errors.PhaseResolve, errors.KindNotFound).
			URL(url).Value(resp.StatusCode).Detail("status %d", resp.StatusCode).Build()
	}
	return nil
}
