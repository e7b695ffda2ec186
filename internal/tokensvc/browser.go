package tokensvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/tidwall/gjson"
)

// ErrTokenNotFound means the login completed but no token was stored.
var ErrTokenNotFound = errors.New("api token not found in local storage")

// Fetcher obtains an API token for a user.
type Fetcher interface {
	FetchToken(ctx context.Context, username, password string) (string, error)
}

const (
	selectorUsername   = `input[name="ugos-username"]`
	selectorPassword   = `input[name="ugos-password"]`
	selectorLoginBtn   = `.login-public-button button[type="button"]`
	selectorDashboard  = `div.dashboard`
	scriptStayLoggedIn = `(() => {
	const box = document.querySelector('div.is-login input[type="checkbox"]');
	if (box && !box.checked) { box.click(); }
	return true;
})()`
	scriptLocalStorage = `Object.assign({}, window.localStorage)`

	defaultDashboardWait = 5 * time.Second
	defaultFallbackWait  = 3 * time.Second
	defaultLoginTimeout  = 60 * time.Second
)

// BrowserFetcher logs into the NAS web UI in headless Chrome and reads the
// token the UI keeps in localStorage.
type BrowserFetcher struct {
	cfg    Config
	logger *slog.Logger

	// DashboardWait bounds waiting for the post-login page; FallbackWait is
	// slept instead when it never shows up.
	DashboardWait time.Duration
	FallbackWait  time.Duration
	// Timeout bounds the whole login.
	Timeout time.Duration
}

// NewBrowserFetcher creates a [BrowserFetcher] for cfg.
func NewBrowserFetcher(cfg Config, logger *slog.Logger) *BrowserFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserFetcher{
		cfg:           cfg,
		logger:        logger,
		DashboardWait: defaultDashboardWait,
		FallbackWait:  defaultFallbackWait,
		Timeout:       defaultLoginTimeout,
	}
}

// FetchToken performs the browser login.
func (f *BrowserFetcher) FetchToken(ctx context.Context, username, password string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("ignore-certificate-errors", !f.cfg.VerifyTLS),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			f.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)
	defer cancelBrowser()

	loginCtx, cancel := context.WithTimeout(browserCtx, f.Timeout)
	defer cancel()

	url := f.cfg.URL()
	f.logger.Info("navigating to login page", "url", url)

	err := chromedp.Run(loginCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(selectorUsername, chromedp.ByQuery),
		chromedp.SendKeys(selectorUsername, username, chromedp.ByQuery),
		chromedp.SendKeys(selectorPassword, password, chromedp.ByQuery),
		chromedp.Evaluate(scriptStayLoggedIn, nil),
		chromedp.WaitEnabled(selectorLoginBtn, chromedp.ByQuery),
		chromedp.Click(selectorLoginBtn, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("login form: %w", err)
	}

	waitCtx, cancelWait := context.WithTimeout(loginCtx, f.DashboardWait)
	err = chromedp.Run(waitCtx, chromedp.WaitVisible(selectorDashboard, chromedp.ByQuery))
	cancelWait()
	if err != nil {
		f.logger.Warn("login confirmation not found, waiting fallback timeout", "wait", f.FallbackWait)
		if err := chromedp.Run(loginCtx, chromedp.Sleep(f.FallbackWait)); err != nil {
			return "", fmt.Errorf("waiting for login: %w", err)
		}
	}

	var storage map[string]string
	if err := chromedp.Run(loginCtx, chromedp.Evaluate(scriptLocalStorage, &storage)); err != nil {
		return "", fmt.Errorf("reading local storage: %w", err)
	}

	token, err := TokenFromStorage(storage)
	if err != nil {
		f.logger.Error("api token not found in local storage", "entries", len(storage))
		return "", err
	}
	f.logger.Info("api token retrieved")
	return token, nil
}

// TokenFromStorage finds the localStorage entry holding accessInfo.api_token.
// Entries are scanned in key order.
func TokenFromStorage(storage map[string]string) (string, error) {
	keys := make([]string, 0, len(storage))
	for k := range storage {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := storage[k]
		if !strings.Contains(v, "api_token") || !gjson.Valid(v) {
			continue
		}
		if token := gjson.Get(v, "accessInfo.api_token").String(); token != "" {
			return token, nil
		}
	}
	return "", ErrTokenNotFound
}
