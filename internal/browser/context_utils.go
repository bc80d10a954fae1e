package browser

import (
	"context"
)

// CombineContext returns a context carrying ctx1's values (the chromedp tab)
// that is cancelled when either ctx1 or ctx2 is done. ctx2 supplies the
// per-operation deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
