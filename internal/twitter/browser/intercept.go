package browser

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"xdump/internal/twitter"
	"xdump/internal/twitter/graphql"
)

const (
	navigateTimeout      = 30 * time.Second
	firstResponseTimeout = 30 * time.Second
	resolveTimeout       = 15 * time.Second
)

// observer watches a page for GraphQL responses on the given operations and
// delivers their raw bodies in arrival order.
type observer struct {
	bodies chan []byte
	cancel context.CancelFunc
	done   chan struct{}
}

// newObserver attaches a network listener to the page. The listener stays
// active until stop is called or ctx ends.
func newObserver(ctx context.Context, page *rod.Page, endpoints []string, log *zap.Logger) *observer {
	obsCtx, cancel := context.WithCancel(ctx)
	o := &observer{
		bodies: make(chan []byte, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	obsPage := page.Context(obsCtx)
	wait := obsPage.EachEvent(func(ev *proto.NetworkResponseReceived) {
		if ev.Response == nil || !graphql.MatchesEndpoint(ev.Response.URL, endpoints) {
			return
		}
		if ev.Response.Status >= 400 {
			log.Debug("ignoring failed graphql response",
				zap.String("url", ev.Response.URL),
				zap.Int("status", ev.Response.Status))
			return
		}

		// The body must be pulled while the page still holds it.
		res, err := proto.NetworkGetResponseBody{RequestID: ev.RequestID}.Call(obsPage)
		if err != nil {
			log.Debug("response body unavailable", zap.Error(err))
			return
		}
		body := []byte(res.Body)
		if res.Base64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(res.Body)
			if err != nil {
				log.Debug("undecodable response body", zap.Error(err))
				return
			}
			body = decoded
		}

		select {
		case o.bodies <- body:
		case <-obsCtx.Done():
		}
	})

	go func() {
		defer close(o.done)
		wait()
	}()
	return o
}

// firstBody waits for the next intercepted body, up to timeout.
func (o *observer) firstBody(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case body := <-o.bodies:
		return body, nil
	case <-timer.C:
		return nil, twitter.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stop detaches the listener and waits for it to unwind.
func (o *observer) stop() {
	o.cancel()
	<-o.done
}

// Markers that tell a logged-in session apart from a login wall. Checked
// positively first: an explicit logged-in marker wins over everything.
var (
	loggedInMarkers = []string{
		`[data-testid="SideNav_NewTweet_Button"]`,
		`[data-testid="AppTabBar_Profile_Link"]`,
		`[aria-label="Account menu"]`,
	}
	loginWallMarkers = []string{
		`[data-testid="sheetDialog"]`,
		`[data-testid="loginButton"]`,
	}
)

// loginRequired probes the page for a login wall. Inconclusive pages pass;
// the scrape will fail on its own if the session is actually dead.
func loginRequired(page *rod.Page) bool {
	for _, sel := range loggedInMarkers {
		if els, err := page.Elements(sel); err == nil && len(els) > 0 {
			return false
		}
	}
	for _, sel := range loginWallMarkers {
		if els, err := page.Elements(sel); err == nil && len(els) > 0 {
			return true
		}
	}
	return false
}

// scrollToBottom pushes the viewport to the end of the document, which makes
// the web client request the next timeline page.
func scrollToBottom(page *rod.Page) error {
	_, err := page.Eval(`() => {
		window.scrollTo(0, document.body.scrollHeight);
		return document.body.scrollHeight;
	}`)
	return err
}

// deliver sends one result unless the context ends first.
func deliver(ctx context.Context, out chan<- twitter.Result, res twitter.Result) bool {
	select {
	case out <- res:
		return true
	case <-ctx.Done():
		return false
	}
}
