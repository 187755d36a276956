package ssh

import (
	"context"
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/metalbuild/metalbuild/internal/util/retry"
)

// pingFunc performs a single ICMP reachability check. Package-level so
// tests can substitute it.
var pingFunc = func(host string) error {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return fmt.Errorf("failed to create pinger: %w", err)
	}

	pinger.Count = 1
	pinger.Timeout = 2 * time.Second
	pinger.SetPrivileged(false)

	if err := pinger.Run(); err != nil {
		return err
	}
	if pinger.Statistics().PacketsRecv == 0 {
		return fmt.Errorf("packet loss pinging %s", host)
	}
	return nil
}

// dialFunc checks that the SSH port accepts TCP connections. Package-level
// so tests can substitute it.
var dialFunc = func(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

// WaitReachable blocks until host answers an ICMP ping and accepts TCP
// connections on the SSH port, polling at a fixed interval with a bounded
// attempt budget. It does not authenticate; callers follow up with
// Execute, which has its own connection retry.
func WaitReachable(ctx context.Context, host string, port int, attempts int, interval time.Duration) error {
	if port == 0 {
		port = defaultPort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	return retry.Poll(ctx, attempts, interval, func() error {
		if err := pingFunc(host); err != nil {
			return fmt.Errorf("%s not answering ping: %w", host, err)
		}
		if err := dialFunc(addr, defaultDialTimeout); err != nil {
			return fmt.Errorf("%s not accepting connections: %w", addr, err)
		}
		return nil
	})
}
