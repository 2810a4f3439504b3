//go:build !pcap
// +build !pcap

package feed

import (
	"context"
	"errors"
)

// ReplayPCAP is unavailable without the pcap build tag, which links against
// libpcap. Build with -tags pcap to enable capture replay.
func ReplayPCAP(ctx context.Context, pcapFile, addr string, udpPort int, rate float64) (int, error) {
	return 0, errors.New("pcap support not built in; rebuild with -tags pcap")
}
