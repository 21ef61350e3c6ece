// Package browser fetches timelines by driving a real browser over a
// persistent profile and intercepting the web client's own GraphQL responses.
// Nothing is requested directly; the page makes the calls and we read them
// off the wire, which keeps the traffic indistinguishable from a human
// session.
package browser

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"xdump/internal/twitter"
	"xdump/internal/twitter/graphql"
)

// Backend implements twitter.Backend by interception. The browser launches
// lazily on first use and stays alive for the backend's lifetime.
type Backend struct {
	profileDir string
	headless   bool
	proxy      string
	log        *zap.Logger
	rng        *rand.Rand

	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	userIDs  map[string]string // lowercased handle -> numeric id
}

// New builds a backend over the given profile directory. The profile carries
// the logged-in session between runs; use the login command to establish it.
func New(profileDir string, headless bool, proxy string, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		profileDir: profileDir,
		headless:   headless,
		proxy:      proxy,
		log:        log,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		userIDs:    make(map[string]string),
	}
}

// ensureBrowser launches and connects the browser on first use.
func (b *Backend) ensureBrowser() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		return b.browser, nil
	}

	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	l := launcher.New().
		UserDataDir(b.profileDir).
		Headless(b.headless)
	if b.proxy != "" {
		l = l.Proxy(b.proxy)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	b.launcher = l
	b.browser = browser
	b.log.Debug("browser launched",
		zap.String("profile", b.profileDir),
		zap.Bool("headless", b.headless))
	return browser, nil
}

// Close shuts the browser down. Safe to call without a prior launch.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var err error
	if b.browser != nil {
		err = b.browser.Close()
		b.browser = nil
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher = nil
	}
	return err
}

// ResolveUserID resolves a handle by loading the profile page and reading the
// UserByScreenName response the web client issues while rendering it.
func (b *Backend) ResolveUserID(ctx context.Context, screenName string) (string, error) {
	key := strings.ToLower(screenName)

	b.mu.Lock()
	if id, ok := b.userIDs[key]; ok {
		b.mu.Unlock()
		return id, nil
	}
	b.mu.Unlock()

	browser, err := b.ensureBrowser()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	obs := newObserver(ctx, page, []string{graphql.UserByScreenName}, b.log)
	defer obs.stop()

	if err := page.Context(ctx).Timeout(navigateTimeout).Navigate(profileURL(screenName)); err != nil {
		return "", fmt.Errorf("navigate to profile: %w", err)
	}

	body, err := obs.firstBody(ctx, resolveTimeout)
	if err != nil {
		return "", fmt.Errorf("%w: no account response for %s", twitter.ErrUserNotFound, screenName)
	}
	id, err := graphql.ExtractUserID(body)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.userIDs[key] = id
	b.mu.Unlock()
	return id, nil
}

// Login opens the given URL in the profile's browser and blocks until the
// user closes the window. Whatever session they establish is saved in the
// profile and reused by later scrapes. The backend must be headed.
func (b *Backend) Login(ctx context.Context, url string) error {
	browser, err := b.ensureBrowser()
	if err != nil {
		return err
	}
	if _, err := browser.Page(proto.TargetCreateTarget{URL: url}); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := browser.Version(); err != nil {
				// Browser gone: the user closed it.
				b.mu.Lock()
				b.browser = nil
				b.launcher = nil
				b.mu.Unlock()
				return nil
			}
		}
	}
}

// pause sleeps a random interval in [min, max), honoring cancellation.
func (b *Backend) pause(ctx context.Context, min, max time.Duration) error {
	d := min
	if max > min {
		b.mu.Lock()
		d += time.Duration(b.rng.Int63n(int64(max - min)))
		b.mu.Unlock()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func profileURL(screenName string) string {
	return "https://x.com/" + screenName
}
