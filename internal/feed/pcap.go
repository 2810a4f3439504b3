//go:build pcap
// +build pcap

package feed

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/fieldtrack-data/fieldtrack.report/internal/monitoring"
)

// ReplayPCAP replays the UDP payloads of a capture file to addr, pacing by
// the recorded packet timestamps scaled by rate (2.0 plays twice as fast; 0
// disables pacing). Only packets matching udpPort are replayed.
func ReplayPCAP(ctx context.Context, pcapFile, addr string, udpPort int, rate float64) (int, error) {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return 0, fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return 0, fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}

	conn, err := net.Dial("udp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())

	var sent int
	var lastStamp time.Time
	for packet := range packetSource.Packets() {
		if packet == nil {
			break
		}
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}

		transport := packet.TransportLayer()
		if transport == nil {
			continue
		}
		payload := transport.LayerPayload()
		if len(payload) == 0 {
			continue
		}

		stamp := packet.Metadata().Timestamp
		if rate > 0 && !lastStamp.IsZero() {
			gap := stamp.Sub(lastStamp)
			if gap > 0 {
				time.Sleep(time.Duration(float64(gap) / rate))
			}
		}
		lastStamp = stamp

		if _, err := conn.Write(payload); err != nil {
			return sent, fmt.Errorf("failed to send replayed packet: %w", err)
		}
		sent++
	}

	monitoring.Logf("feed: replayed %d packets from %s to %s", sent, pcapFile, addr)
	return sent, nil
}
