package switchctl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSwitch emulates the GS30xEP web interface: nonce login,
// session cookie, single-use hash tokens and per-port admin state.
type fakeSwitch struct {
	t        *testing.T
	password string

	mu           sync.Mutex
	nonce        string
	nonceSeq     int
	hashSeq      int
	issuedHashes map[string]bool
	sid          string
	ports        [PortCount]bool

	loginPages  int
	loginPosts  int
	togglePosts int
	logouts     int
	toggleOrder []int

	failPorts map[int]bool // ports whose toggle POST always 500s
	failNext  int          // remaining toggle POSTs to 500 regardless of port

	srv *httptest.Server
}

func newFakeSwitch(t *testing.T, password string) *fakeSwitch {
	f := &fakeSwitch{
		t:            t,
		password:     password,
		issuedHashes: make(map[string]bool),
		failPorts:    make(map[int]bool),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSwitch) addr() string {
	return strings.TrimPrefix(f.srv.URL, "http://")
}

func (f *fakeSwitch) authed(r *http.Request) bool {
	cookie, err := r.Cookie(sessionCookieName)
	f.mu.Lock()
	defer f.mu.Unlock()
	return err == nil && f.sid != "" && cookie.Value == f.sid
}

func (f *fakeSwitch) configPage() string {
	f.hashSeq++
	hash := fmt.Sprintf("h%04d", f.hashSeq)
	f.issuedHashes[hash] = true
	var b strings.Builder
	fmt.Fprintf(&b, "<html><form><input type=hidden name='hash' id='hash' value='%s'>", hash)
	b.WriteString("<table>")
	for i, enabled := range f.ports {
		state := "0"
		if enabled {
			state = "1"
		}
		fmt.Fprintf(&b, "<tr><td class='port_index'>%d</td><td class='admin_state'>%s</td></tr>", i+1, state)
	}
	b.WriteString("</table></form></html>")
	return b.String()
}

func (f *fakeSwitch) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == loginPath && r.Method == http.MethodGet:
		f.mu.Lock()
		f.loginPages++
		f.nonceSeq++
		f.nonce = strconv.Itoa(1700000000 + f.nonceSeq)
		nonce := f.nonce
		f.mu.Unlock()
		fmt.Fprintf(w, "<html><input type=hidden id='rand' name='rand' value='%s' disabled></html>", nonce)

	case r.URL.Path == loginPath && r.Method == http.MethodPost:
		_ = r.ParseForm()
		f.mu.Lock()
		f.loginPosts++
		want := loginDigest(f.password, f.nonce)
		if r.PostFormValue("password") != want {
			f.mu.Unlock()
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.sid = fmt.Sprintf("sid%04d", f.loginPosts)
		sid := f.sid
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: sid, Path: "/"})
		fmt.Fprint(w, "<html>ok</html>")

	case r.URL.Path == configPath:
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		page := f.configPage()
		f.mu.Unlock()
		fmt.Fprint(w, page)

	case r.URL.Path == togglePath:
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = r.ParseForm()
		portID, _ := strconv.Atoi(r.PostFormValue("portID"))
		port := portID + 1
		f.mu.Lock()
		f.togglePosts++
		hash := r.PostFormValue("hash")
		if !f.issuedHashes[hash] {
			f.mu.Unlock()
			fmt.Fprint(w, "ERROR: hash reused")
			return
		}
		delete(f.issuedHashes, hash) // single use
		if f.failNext > 0 || f.failPorts[port] {
			if f.failNext > 0 {
				f.failNext--
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		f.ports[port-1] = r.PostFormValue("ADMIN_MODE") == "1"
		f.toggleOrder = append(f.toggleOrder, port)
		f.mu.Unlock()
		fmt.Fprint(w, "SUCCESS")

	case r.URL.Path == logoutPath:
		f.mu.Lock()
		f.logouts++
		f.sid = ""
		f.mu.Unlock()
		fmt.Fprint(w, "bye")

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testOptions() Options {
	return Options{
		Timeout:        2 * time.Second,
		LoginStepDelay: time.Millisecond,
		RetryBackoff:   5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, f *fakeSwitch) Client {
	c := NewGS30xClient(Credentials{Ipaddr: f.addr(), Password: f.password}, testOptions())
	t.Cleanup(c.Close)
	return c
}

func TestLoginSingleFlight(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	// slow the login down so every caller lands mid-flight
	opt := testOptions()
	opt.LoginStepDelay = 50 * time.Millisecond
	c := NewGS30xClient(Credentials{Ipaddr: f.addr(), Password: "secret"}, opt)
	defer c.Close()

	const callers = 8
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := c.Login(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.loginPosts, "concurrent callers must share one login exchange")
	for _, token := range tokens {
		assert.Equal(t, tokens[0], token)
	}
}

func TestLoginBadPassword(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := NewGS30xClient(Credentials{Ipaddr: f.addr(), Password: "wrong"}, testOptions())
	defer c.Close()

	_, err := c.Login(context.Background())
	assert.True(t, errors.Is(err, ErrAuth))

	// a later call with fixed credentials must not be blocked by the failure
	c.UpdateCredentials(Credentials{Ipaddr: f.addr(), Password: "secret"})
	_, err = c.Login(context.Background())
	assert.NoError(t, err)
}

func TestTogglePortInvalidNoNetwork(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	for _, port := range []int{0, -1, 9, 100} {
		err := c.TogglePort(context.Background(), port, true)
		assert.True(t, errors.Is(err, ErrInvalidPort), "port %d", port)
	}
	_, err := c.TogglePortsBatch(context.Background(), []PortCommand{{Port: 9, Enabled: true}}, 0)
	assert.True(t, errors.Is(err, ErrInvalidPort))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Zero(t, f.loginPages, "invalid ports must never touch the network")
	assert.Zero(t, f.togglePosts)
}

func TestTogglePortReusesSession(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	require.NoError(t, c.TogglePort(context.Background(), 3, true))
	require.NoError(t, c.TogglePort(context.Background(), 3, true))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.loginPosts, "second toggle must reuse the cached session")
	assert.True(t, f.ports[2])
	assert.Equal(t, 2, f.togglePosts)
}

func TestTogglePortRetriesOnceAfterFailure(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	f.failNext = 1
	c := newTestClient(t, f)

	require.NoError(t, c.TogglePort(context.Background(), 5, true))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.ports[4])
	assert.Equal(t, 2, f.togglePosts, "one failed attempt plus one retry")
	assert.Equal(t, 2, f.loginPosts, "retry logs in again after invalidating the session")
	assert.GreaterOrEqual(t, f.logouts, 1, "failed session is logged out best-effort")
}

func TestTogglePortRetryExhausted(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	f.failPorts[2] = true
	c := newTestClient(t, f)

	err := c.TogglePort(context.Background(), 2, true)
	assert.True(t, errors.Is(err, ErrToggle))

	f.mu.Lock()
	toggles := f.togglePosts
	f.mu.Unlock()
	assert.Equal(t, 2, toggles, "exactly one retry, then the error surfaces")

	// the failure must not leave a cache state that blocks recovery
	f.mu.Lock()
	f.failPorts[2] = false
	f.mu.Unlock()
	assert.NoError(t, c.TogglePort(context.Background(), 2, true))
}

func TestTogglePortsBatchSequentialOrder(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	commands := []PortCommand{
		{Port: 4, Enabled: true},
		{Port: 1, Enabled: true},
		{Port: 7, Enabled: false},
	}
	results, err := c.TogglePortsBatch(context.Background(), commands, 2*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, result := range results {
		assert.Equal(t, commands[i].Port, result.Port)
		assert.True(t, result.Success)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []int{4, 1, 7}, f.toggleOrder, "batch preserves request order")
	assert.Equal(t, 1, f.loginPosts, "batch logs in once")
}

func TestTogglePortsBatchAbortsOnFailure(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	f.failPorts[2] = true
	c := newTestClient(t, f)

	commands := []PortCommand{
		{Port: 1, Enabled: true},
		{Port: 2, Enabled: true},
		{Port: 3, Enabled: true},
	}
	results, err := c.TogglePortsBatch(context.Background(), commands, 0)
	assert.True(t, errors.Is(err, ErrToggle))
	require.Len(t, results, 3)
	assert.True(t, results[0].Success, "completed commands are not rolled back")
	assert.False(t, results[1].Success)
	assert.NotEmpty(t, results[1].Error)
	assert.False(t, results[2].Success)
	assert.Contains(t, results[2].Error, "aborted")

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.ports[0])
	assert.False(t, f.ports[2], "port after the failure is never attempted")
}

func TestTogglePortsParallelIsolatesFailures(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	f.failPorts[2] = true
	c := newTestClient(t, f)

	results, err := c.TogglePortsParallel(context.Background(), []PortCommand{
		{Port: 1, Enabled: true},
		{Port: 2, Enabled: true},
		{Port: 3, Enabled: true},
	})
	require.NoError(t, err, "per-port failures never fail the whole call")
	require.Len(t, results, 3)

	failed := 0
	for _, result := range results {
		if !result.Success {
			failed++
			assert.Equal(t, 2, result.Port)
			assert.NotEmpty(t, result.Error)
		}
	}
	assert.Equal(t, 1, failed)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.True(t, f.ports[0])
	assert.True(t, f.ports[2])
}

func TestTogglePortsParallelInvalidEntries(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	results, err := c.TogglePortsParallel(context.Background(), []PortCommand{
		{Port: 0, Enabled: true},
		{Port: 9, Enabled: true},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "out of range")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Zero(t, f.loginPages, "all-invalid batch never touches the network")
}

func TestGetPortStatusesRoundTrip(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	require.NoError(t, c.TogglePort(context.Background(), 3, true))

	statuses, err := c.GetPortStatuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, PortCount)
	for i, status := range statuses {
		assert.Equal(t, i+1, status.Port, "statuses ascend by port")
		assert.Equal(t, status.Port == 3, status.Enabled)
	}
}

func TestTestConnection(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)
	assert.True(t, c.TestConnection(context.Background()))

	dead := NewGS30xClient(Credentials{Ipaddr: "127.0.0.1:1", Password: "x"}, testOptions())
	defer dead.Close()
	assert.False(t, dead.TestConnection(context.Background()))
}

func TestClearSessionIdempotent(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	_, err := c.Login(context.Background())
	require.NoError(t, err)

	assert.NoError(t, c.ClearSession(context.Background()))
	assert.NoError(t, c.ClearSession(context.Background()))

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.sid)
}

func TestUpdateCredentialsInvalidatesSession(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	_, err := c.Login(context.Background())
	require.NoError(t, err)

	f.mu.Lock()
	f.password = "rotated"
	f.mu.Unlock()
	c.UpdateCredentials(Credentials{Ipaddr: f.addr(), Password: "rotated"})

	// the background logout is detached; it must land eventually
	assert.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.logouts >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, c.TogglePort(context.Background(), 1, true))
	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 2, f.loginPosts, "new credentials force a lazy re-login")
}

func TestUpdateCredentialsNoChangeKeepsSession(t *testing.T) {
	f := newFakeSwitch(t, "secret")
	c := newTestClient(t, f)

	token, err := c.Login(context.Background())
	require.NoError(t, err)

	c.UpdateCredentials(Credentials{Ipaddr: f.addr(), Password: "secret"})
	again, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, again)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.loginPosts)
}
