// Command feed-replay replays a pcap capture of robot sensor traffic to a
// running tracker's UDP feed, at recorded or accelerated pace. Requires a
// build with -tags pcap.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/fieldtrack-data/fieldtrack.report/internal/feed"
)

var (
	pcapFile = flag.String("pcap", "", "capture file to replay")
	addr     = flag.String("addr", "127.0.0.1:9000", "tracker UDP feed address")
	udpPort  = flag.Int("port", 9000, "UDP port filter for the capture")
	rate     = flag.Float64("rate", 1.0, "replay speed multiplier (0 = no pacing)")
)

func main() {
	flag.Parse()

	if *pcapFile == "" {
		log.Fatal("A capture file is required (-pcap)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sent, err := feed.ReplayPCAP(ctx, *pcapFile, *addr, *udpPort, *rate)
	if err != nil {
		log.Fatalf("Replay failed after %d packets: %v", sent, err)
	}
	log.Printf("Replayed %d packets", sent)
}
