// Package remote talks to the course host over SSH and SFTP.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pkg/sftp"
	xssh "golang.org/x/crypto/ssh"
)

type Client struct {
	Addr       string
	User       string
	Signer     xssh.Signer
	Password   string
	KnownHosts xssh.HostKeyCallback
	Timeout    time.Duration
}

func (c *Client) makeConfig() (*xssh.ClientConfig, error) {
	var auth []xssh.AuthMethod
	if c.Signer != nil {
		auth = append(auth, xssh.PublicKeys(c.Signer))
	}
	if c.Password != "" {
		auth = append(auth, xssh.Password(c.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh: key or password required")
	}
	if c.KnownHosts == nil {
		return nil, errors.New("ssh: host key callback required")
	}
	return &xssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: c.KnownHosts,
		Timeout:         c.Timeout,
	}, nil
}

// Dial establishes an SSH connection using the provided client configuration.
// The caller is responsible for closing the returned client.
func Dial(ctx context.Context, c *Client) (*xssh.Client, error) {
	cfg, err := c.makeConfig()
	if err != nil {
		return nil, err
	}
	type res struct {
		cli *xssh.Client
		err error
	}
	ch := make(chan res, 1)
	go func() {
		d := &net.Dialer{Timeout: c.Timeout}
		conn, err := d.DialContext(ctx, "tcp", c.Addr)
		if err != nil {
			ch <- res{err: err}
			return
		}
		sc, chans, reqs, err := xssh.NewClientConn(conn, c.Addr, cfg)
		if err != nil {
			conn.Close()
			ch <- res{err: err}
			return
		}
		ch <- res{cli: xssh.NewClient(sc, chans, reqs)}
	}()
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.cli != nil {
				r.cli.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("ssh dial %s: %w", c.Addr, r.err)
		}
		return r.cli, nil
	}
}

// Session is an SFTP session over its own SSH connection.
type Session struct {
	SFTP *sftp.Client
	conn *xssh.Client
}

// Open dials the host and starts the sftp subsystem.
func Open(ctx context.Context, c *Client) (*Session, error) {
	conn, err := Dial(ctx, c)
	if err != nil {
		return nil, err
	}
	sf, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp client: %w", err)
	}
	return &Session{SFTP: sf, conn: conn}, nil
}

func (s *Session) Close() error {
	err := s.SFTP.Close()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
