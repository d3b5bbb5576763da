package switchctl

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Request/response transforms for the GS30xEP-family embedded web
// UI. Pure string work, no I/O; the session client owns transport.

const (
	loginPath  = "/login.cgi"
	configPath = "/getPoePortConfig.cgi"
	togglePath = "/PoEPortConfig.cgi"
	logoutPath = "/logout.cgi"

	// sessionCookieName cookie issued on a successful login
	sessionCookieName = "SID"
)

var (
	nonceRe = regexp.MustCompile(`id=['"]rand['"][^>]*?value=['"]([^'"]+)['"]`)
	hashRe  = regexp.MustCompile(`id=['"]hash['"][^>]*?value=['"]([^'"]+)['"]`)
	portRe  = regexp.MustCompile(`class=['"]port_index['"]>(\d+)</td>\s*<td[^>]*class=['"]admin_state['"]>([01])<`)
)

// mergeNoncePassword interleaves password and nonce one character at
// a time, password first, remainder appended. The switch firmware
// computes the same merge before hashing; the order is load-bearing,
// a plain concatenation is rejected.
func mergeNoncePassword(password, nonce string) string {
	var b strings.Builder
	b.Grow(len(password) + len(nonce))
	for i := 0; i < len(password) || i < len(nonce); i++ {
		if i < len(password) {
			b.WriteByte(password[i])
		}
		if i < len(nonce) {
			b.WriteByte(nonce[i])
		}
	}
	return b.String()
}

// loginDigest hex md5 over the merged password/nonce string. This is
// the firmware's obfuscation scheme, not a security measure.
func loginDigest(password, nonce string) string {
	sum := md5.Sum([]byte(mergeNoncePassword(password, nonce)))
	return hex.EncodeToString(sum[:])
}

// extractNonce pulls the hidden 'rand' field from the login page.
func extractNonce(loginPage string) (string, error) {
	m := nonceRe.FindStringSubmatch(loginPage)
	if m == nil {
		return "", errors.Wrap(ErrProtocol, "login page carries no rand field")
	}
	return m[1], nil
}

// extractSessionToken finds the session cookie among Set-Cookie
// header values.
func extractSessionToken(setCookies []string) (string, error) {
	for _, raw := range setCookies {
		for _, part := range strings.Split(raw, ";") {
			kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
			if len(kv) == 2 && kv[0] == sessionCookieName && kv[1] != "" {
				return kv[1], nil
			}
		}
	}
	return "", errors.Wrap(ErrAuth, "login response issued no session cookie")
}

// extractHashToken pulls the single-use anti-replay token from the
// config page. Every toggle POST needs a fresh one; it is never
// cached.
func extractHashToken(configPage string) (string, error) {
	m := hashRe.FindStringSubmatch(configPage)
	if m == nil {
		return "", errors.Wrap(ErrProtocol, "config page carries no hash token")
	}
	return m[1], nil
}

// parsePortStatuses scrapes per-port admin state rows from the
// config page, ascending by port. Fragments that do not match are
// skipped, not errored.
func parsePortStatuses(configPage string) []PortStatus {
	rows := portRe.FindAllStringSubmatch(configPage, -1)
	out := make([]PortStatus, 0, len(rows))
	for _, row := range rows {
		port, err := strconv.Atoi(row[1])
		if err != nil || port < 1 || port > PortCount {
			continue
		}
		out = append(out, PortStatus{Port: port, Enabled: row[2] == "1"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Port < out[j].Port })
	return out
}

// toggleForm builds the toggle POST form for one command. Firmware
// counts ports from zero.
func toggleForm(hash string, cmd PortCommand) map[string]interface{} {
	adminMode := "0"
	if cmd.Enabled {
		adminMode = "1"
	}
	return map[string]interface{}{
		"hash":       hash,
		"ACTION":     "Apply",
		"portID":     strconv.Itoa(cmd.Port - 1),
		"ADMIN_MODE": adminMode,
	}
}
