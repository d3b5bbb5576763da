package switchctl

import "github.com/pkg/errors"

// Error kinds for switch exchanges. Callers match with errors.Is;
// wrapped messages carry the switch address and exchange detail.
var (
	// ErrProtocol unexpected HTML, missing nonce / cookie / hash token
	ErrProtocol = errors.New("switch protocol error")
	// ErrAuth non-200 login, or login succeeded without a session cookie
	ErrAuth = errors.New("switch auth error")
	// ErrNetwork connection failure or exchange timeout
	ErrNetwork = errors.New("switch network error")
	// ErrInvalidPort port number outside 1..8
	ErrInvalidPort = errors.New("invalid port number")
	// ErrUnsupportedSwitchType unknown switch type at the registry
	ErrUnsupportedSwitchType = errors.New("unsupported switch type")
	// ErrToggle the toggle POST itself was rejected
	ErrToggle = errors.New("port toggle rejected")
	// ErrClientClosed operations submitted after Close
	ErrClientClosed = errors.New("switch client closed")
)

func validatePort(port int) error {
	if port < 1 || port > PortCount {
		return errors.Wrapf(ErrInvalidPort, "port %d out of range 1..%d", port, PortCount)
	}
	return nil
}
