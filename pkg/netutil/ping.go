package netutil

import (
	"context"
	"fmt"
	"time"

	"github.com/go-ping/ping"
)

// PingHost sends a small burst of ICMP echo requests to host and reports
// whether any reply came back. Used as an optional pre-flight before a scan
// is submitted; a failure here is advisory only, many scan targets drop ICMP.
func PingHost(ctx context.Context, host string, timeout time.Duration) (bool, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return false, fmt.Errorf("create pinger for %s: %w", host, err)
	}
	// Unprivileged UDP ping so the CLI does not need raw socket capabilities.
	pinger.SetPrivileged(false)
	pinger.Count = 3
	pinger.Timeout = timeout
	pinger.Interval = 200 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()

	select {
	case err := <-done:
		if err != nil {
			return false, fmt.Errorf("ping %s: %w", host, err)
		}
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return false, ctx.Err()
	}

	return pinger.Statistics().PacketsRecv > 0, nil
}
