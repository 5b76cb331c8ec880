package backoff

import (
	"time"

	"github.com/pkg/errors"
)

// WaitFor retries fn at the given interval until it succeeds or the
// timeout elapses. The last error is returned wrapped when time runs out.
// Used for short waits on files another process may be mid-write on, like
// the consumer certificate during registration.
func WaitFor(fn func() error, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)

	var err error
	for {
		err = fn()
		if err == nil {
			return nil
		}

		if time.Now().After(deadline) {
			return errors.Wrap(err, "timeout waiting for success")
		}

		time.Sleep(interval)
	}
}
