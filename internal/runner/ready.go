package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const readyInitialInterval = 500 * time.Millisecond

// WaitReady polls host+path until it answers below 500, retrying with
// exponential backoff for at most timeout.
func WaitReady(ctx context.Context, client *http.Client, host, path string, timeout time.Duration, log logrus.FieldLogger) error {
	url := host + path

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = readyInitialInterval
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = timeout

	attempt := 0
	probe := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}

		resp, err := client.Do(req)
		if err != nil {
			log.WithField("attempt", attempt).WithError(err).Debug("Target not ready")
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			log.WithFields(logrus.Fields{"attempt": attempt, "status": resp.StatusCode}).Debug("Target not ready")
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
		return nil
	}

	if err := backoff.Retry(probe, backoff.WithContext(bo, ctx)); err != nil {
		return fmt.Errorf("target %s not ready after %d attempts: %w", url, attempt, err)
	}
	log.WithFields(logrus.Fields{"url": url, "attempts": attempt}).Info("Target is ready")
	return nil
}
