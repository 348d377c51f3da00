package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	xssh "golang.org/x/crypto/ssh"
)

// ErrAuthFailed is returned when the server rejects the configured key.
var ErrAuthFailed = errors.New("ssh: authentication failed")

type Client struct {
	Addr       string
	User       string
	Signer     xssh.Signer
	KnownHosts xssh.HostKeyCallback
	Timeout    time.Duration
}

func (c *Client) makeConfig() (*xssh.ClientConfig, error) {
	if c.Signer == nil {
		return nil, errors.New("ssh: signer required")
	}
	if c.KnownHosts == nil {
		return nil, errors.New("ssh: known hosts callback required")
	}
	return &xssh.ClientConfig{
		User:            c.User,
		Auth:            []xssh.AuthMethod{xssh.PublicKeys(c.Signer)},
		HostKeyCallback: c.KnownHosts,
		Timeout:         c.Timeout,
	}, nil
}

// Dial establishes an SSH connection. A single attempt is made; the context
// bounds the TCP dial and handshake. The caller closes the returned client.
func Dial(ctx context.Context, c *Client) (*xssh.Client, error) {
	cfg, err := c.makeConfig()
	if err != nil {
		return nil, err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.Addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sc, chans, reqs, err := xssh.NewClientConn(conn, c.Addr, cfg)
	if err != nil {
		_ = conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		return nil, fmt.Errorf("handshake %s: %w", c.Addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return xssh.NewClient(sc, chans, reqs), nil
}
