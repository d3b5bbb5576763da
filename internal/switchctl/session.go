package switchctl

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/guonaihong/gout"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// gs30xClient drives one GS30xEP-family switch. The embedded HTTP
// server tolerates only one session sequence at a time, so every
// state-changing operation runs on a single per-switch command queue;
// TogglePortsParallel is the explicit opt-out.
type gs30xClient struct {
	mu    sync.Mutex
	creds Credentials
	token string // cached session token, empty when invalid

	sf  singleflight.Group
	opt Options

	jobs chan func()
	done chan struct{}
	once sync.Once
}

// NewGS30xClient builds a session client and starts its command
// queue worker.
func NewGS30xClient(creds Credentials, opt Options) Client {
	c := &gs30xClient{
		creds: creds,
		opt:   opt.withDefaults(),
		done:  make(chan struct{}),
	}
	c.jobs = make(chan func(), c.opt.QueueDepth)
	go c.worker()
	return c
}

func (c *gs30xClient) worker() {
	for {
		select {
		case job := <-c.jobs:
			job()
		case <-c.done:
			// fail whatever is still queued
			for {
				select {
				case job := <-c.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}

// enqueue runs fn on the command queue and waits for it. Submission
// order is execution order. A cancelled context releases the caller,
// not the queued operation: once started it runs to completion.
func (c *gs30xClient) enqueue(ctx context.Context, fn func() error) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	errc := make(chan error, 1)
	job := func() {
		select {
		case <-c.done:
			errc <- ErrClientClosed
		default:
			errc <- fn()
		}
	}
	select {
	case c.jobs <- job:
	case <-ctx.Done():
		return errors.Wrap(ErrNetwork, ctx.Err().Error())
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return errors.Wrap(ErrNetwork, ctx.Err().Error())
	case <-c.done:
		return ErrClientClosed
	}
}

func (c *gs30xClient) url(path string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return "http://" + c.creds.Ipaddr + path
}

func (c *gs30xClient) Credentials() Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// Login returns the cached token or performs the login exchange.
// Concurrent callers with no cached token collapse onto one
// underlying exchange.
func (c *gs30xClient) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("login", func() (interface{}, error) {
		// a sibling caller may have finished while we queued
		c.mu.Lock()
		if c.token != "" {
			tok := c.token
			c.mu.Unlock()
			return tok, nil
		}
		password := c.creds.Password
		c.mu.Unlock()

		token, err := c.doLogin(ctx, password)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = token
		c.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// doLogin runs the nonce fetch and login POST. The firmware needs a
// short pause between the two or it serves a stale nonce.
func (c *gs30xClient) doLogin(ctx context.Context, password string) (string, error) {
	var (
		page string
		code int
	)
	err := gout.GET(c.url(loginPath)).
		SetTimeout(c.opt.Timeout).
		Code(&code).
		BindBody(&page).
		Do()
	if err != nil {
		return "", errors.Wrapf(ErrNetwork, "fetch login page: %v", err)
	}
	if code != 200 {
		return "", errors.Wrapf(ErrAuth, "login page status %d", code)
	}
	nonce, err := extractNonce(page)
	if err != nil {
		return "", err
	}

	select {
	case <-time.After(c.opt.LoginStepDelay):
	case <-ctx.Done():
		return "", errors.Wrap(ErrNetwork, ctx.Err().Error())
	}

	var header struct {
		SetCookie string `header:"Set-Cookie"`
	}
	err = gout.POST(c.url(loginPath)).
		SetTimeout(c.opt.Timeout).
		SetWWWForm(gout.H{"password": loginDigest(password, nonce)}).
		Code(&code).
		BindHeader(&header).
		Do()
	if err != nil {
		return "", errors.Wrapf(ErrNetwork, "login post: %v", err)
	}
	if code != 200 {
		return "", errors.Wrapf(ErrAuth, "login status %d", code)
	}
	token, err := extractSessionToken([]string{header.SetCookie})
	if err != nil {
		return "", err
	}
	zap.L().Debug("switch login ok", zap.String("ipaddr", c.Credentials().Ipaddr))
	return token, nil
}

// fetchHashToken loads the config page and scrapes the single-use
// anti-replay token. One fresh token per toggle POST.
func (c *gs30xClient) fetchHashToken(token string) (string, error) {
	var (
		page string
		code int
	)
	err := gout.GET(c.url(configPath)).
		SetTimeout(c.opt.Timeout).
		SetHeader(gout.H{"Cookie": sessionCookieName + "=" + token}).
		Code(&code).
		BindBody(&page).
		Do()
	if err != nil {
		return "", errors.Wrapf(ErrNetwork, "fetch config page: %v", err)
	}
	if code != 200 {
		return "", errors.Wrapf(ErrProtocol, "config page status %d", code)
	}
	return extractHashToken(page)
}

// toggleOnce performs one hash-fetch + toggle POST exchange.
func (c *gs30xClient) toggleOnce(token string, cmd PortCommand) error {
	hash, err := c.fetchHashToken(token)
	if err != nil {
		return err
	}
	var (
		body string
		code int
	)
	err = gout.POST(c.url(togglePath)).
		SetTimeout(c.opt.Timeout).
		SetHeader(gout.H{"Cookie": sessionCookieName + "=" + token}).
		SetWWWForm(toggleForm(hash, cmd)).
		Code(&code).
		BindBody(&body).
		Do()
	if err != nil {
		return errors.Wrapf(ErrNetwork, "toggle post port %d: %v", cmd.Port, err)
	}
	if code != 200 {
		return errors.Wrapf(ErrToggle, "port %d status %d", cmd.Port, code)
	}
	if !strings.Contains(body, "SUCCESS") {
		return errors.Wrapf(ErrToggle, "port %d firmware said %q", cmd.Port, strings.TrimSpace(body))
	}
	return nil
}

// applyCommands logs in once and applies commands in order, pausing
// interDelay between them. Results cover every command; the entry
// that failed carries the error and later entries are marked aborted.
func (c *gs30xClient) applyCommands(ctx context.Context, commands []PortCommand, interDelay time.Duration) ([]ToggleResult, error) {
	token, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]ToggleResult, 0, len(commands))
	for i, cmd := range commands {
		if i > 0 && interDelay > 0 {
			select {
			case <-time.After(interDelay):
			case <-ctx.Done():
				return results, errors.Wrap(ErrNetwork, ctx.Err().Error())
			}
		}
		if err := c.toggleOnce(token, cmd); err != nil {
			results = append(results, ToggleResult{Port: cmd.Port, Success: false, Error: err.Error()})
			for _, rest := range commands[i+1:] {
				results = append(results, ToggleResult{Port: rest.Port, Success: false, Error: "aborted: " + err.Error()})
			}
			return results, err
		}
		results = append(results, ToggleResult{Port: cmd.Port, Success: true})
	}
	return results, nil
}

// applyWithRetry runs applyCommands and, on any failure, invalidates
// the session, backs off and retries the full sequence exactly once.
func (c *gs30xClient) applyWithRetry(ctx context.Context, commands []PortCommand, interDelay time.Duration) ([]ToggleResult, error) {
	results, err := c.applyCommands(ctx, commands, interDelay)
	if err == nil {
		return results, nil
	}
	zap.L().Warn("toggle failed, retrying once",
		zap.String("ipaddr", c.Credentials().Ipaddr),
		zap.Error(err))
	c.invalidate(ctx)

	select {
	case <-time.After(c.opt.RetryBackoff):
	case <-ctx.Done():
		return results, errors.Wrap(ErrNetwork, ctx.Err().Error())
	}

	results, err = c.applyCommands(ctx, commands, interDelay)
	if err != nil {
		// leave the cache clean so the next caller starts fresh
		c.invalidate(ctx)
		return results, err
	}
	return results, nil
}

func (c *gs30xClient) TogglePort(ctx context.Context, port int, enabled bool) error {
	if err := validatePort(port); err != nil {
		return err
	}
	return c.enqueue(ctx, func() error {
		_, err := c.applyWithRetry(ctx, []PortCommand{{Port: port, Enabled: enabled}}, 0)
		return err
	})
}

func (c *gs30xClient) TogglePortsBatch(ctx context.Context, commands []PortCommand, interDelay time.Duration) ([]ToggleResult, error) {
	for _, cmd := range commands {
		if err := validatePort(cmd.Port); err != nil {
			return nil, err
		}
	}
	if len(commands) == 0 {
		return nil, nil
	}
	var results []ToggleResult
	err := c.enqueue(ctx, func() error {
		var err error
		results, err = c.applyWithRetry(ctx, commands, interDelay)
		return err
	})
	return results, err
}

func (c *gs30xClient) TogglePortsParallel(ctx context.Context, commands []PortCommand) ([]ToggleResult, error) {
	results := make([]ToggleResult, len(commands))
	pending := make([]int, 0, len(commands))
	for i, cmd := range commands {
		if err := validatePort(cmd.Port); err != nil {
			results[i] = ToggleResult{Port: cmd.Port, Success: false, Error: err.Error()}
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return results, nil
	}

	token, err := c.Login(ctx)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for _, i := range pending {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cmd := commands[i]
			if err := c.toggleOnce(token, cmd); err != nil {
				results[i] = ToggleResult{Port: cmd.Port, Success: false, Error: err.Error()}
				return
			}
			results[i] = ToggleResult{Port: cmd.Port, Success: true}
		}(i)
	}
	wg.Wait()
	return results, nil
}

func (c *gs30xClient) GetPortStatuses(ctx context.Context) ([]PortStatus, error) {
	var statuses []PortStatus
	err := c.enqueue(ctx, func() error {
		token, err := c.Login(ctx)
		if err != nil {
			return err
		}
		var (
			page string
			code int
		)
		err = gout.GET(c.url(configPath)).
			SetTimeout(c.opt.Timeout).
			SetHeader(gout.H{"Cookie": sessionCookieName + "=" + token}).
			Code(&code).
			BindBody(&page).
			Do()
		if err != nil {
			return errors.Wrapf(ErrNetwork, "fetch config page: %v", err)
		}
		if code != 200 {
			return errors.Wrapf(ErrProtocol, "config page status %d", code)
		}
		statuses = parsePortStatuses(page)
		return nil
	})
	return statuses, err
}

// UpdateCredentials adopts new credentials. When they differ the
// cached session dies with a detached best-effort logout that the
// caller never waits on.
func (c *gs30xClient) UpdateCredentials(creds Credentials) {
	c.mu.Lock()
	if c.creds == creds {
		c.mu.Unlock()
		return
	}
	oldAddr, oldToken := c.creds.Ipaddr, c.token
	c.creds = creds
	c.token = ""
	c.mu.Unlock()

	zap.L().Info("switch credentials updated",
		zap.String("ipaddr", creds.Ipaddr))

	if oldToken != "" {
		go func() {
			if err := logout(oldAddr, oldToken, c.opt.Timeout); err != nil {
				zap.L().Debug("background logout failed",
					zap.String("ipaddr", oldAddr), zap.Error(err))
			}
		}()
	}
}

// invalidate clears the cached session after a best-effort logout.
func (c *gs30xClient) invalidate(ctx context.Context) {
	c.mu.Lock()
	addr, token := c.creds.Ipaddr, c.token
	c.token = ""
	c.mu.Unlock()
	c.sf.Forget("login")
	if token == "" {
		return
	}
	if err := logout(addr, token, c.opt.Timeout); err != nil {
		zap.L().Debug("logout failed", zap.String("ipaddr", addr), zap.Error(err))
	}
}

func (c *gs30xClient) ClearSession(ctx context.Context) error {
	c.invalidate(ctx)
	return nil
}

// TestConnection tries only the unauthenticated nonce fetch.
func (c *gs30xClient) TestConnection(ctx context.Context) bool {
	var (
		page string
		code int
	)
	err := gout.GET(c.url(loginPath)).
		SetTimeout(c.opt.Timeout).
		Code(&code).
		BindBody(&page).
		Do()
	if err != nil || code != 200 {
		return false
	}
	_, err = extractNonce(page)
	return err == nil
}

func (c *gs30xClient) Close() {
	c.once.Do(func() { close(c.done) })
}

func logout(ipaddr, token string, timeout time.Duration) error {
	var code int
	err := gout.GET("http://"+ipaddr+logoutPath).
		SetTimeout(timeout).
		SetHeader(gout.H{"Cookie": sessionCookieName + "=" + token}).
		Code(&code).
		Do()
	if err != nil {
		return err
	}
	if code != 200 {
		return fmt.Errorf("logout status %d", code)
	}
	return nil
}
