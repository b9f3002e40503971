// Command go1090 wires a Receiver to a real sample source (or runs
// network-services-only when none is given), parses its flags with
// pflag the way doismellburning/samoyed's direwolf command does, and
// prints a structured shutdown report on exit.
package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"go1090"
	"go1090/magnitude"
)

func main() {
	var (
		rawInPort  = pflag.IntP("raw-in-port", "r", 30001, "RAW_IN listen port (Beast-format input).")
		rawOutPort = pflag.IntP("raw-out-port", "R", 30002, "RAW_OUT listen port (Beast-format output).")
		sbsInPort  = pflag.IntP("sbs-in-port", "s", 30004, "SBS_IN listen port (Basestation input).")
		sbsOutPort = pflag.IntP("sbs-out-port", "S", 30003, "SBS_OUT listen port (Basestation output).")
		httpPort   = pflag.IntP("http-port", "p", 8080, "HTTP listen port.")

		homeLat = pflag.Float64("lat", 0, "Receiver home latitude, enables local CPR decode and range gating.")
		homeLon = pflag.Float64("lon", 0, "Receiver home longitude.")
		haveHome = pflag.Bool("home", false, "Set the home position from --lat/--lon.")

		denyList = pflag.String("deny", "", "Comma-separated CIDR entries denied on the RAW_IN, RAW_OUT, SBS_IN and SBS_OUT services (not HTTP).")
		webRoot  = pflag.String("web-root", "", "Serve static files from this directory; when empty, static file requests get 404.")
		webPage  = pflag.String("web-page", "index.html", "Path redirected to from /.")

		metricsPath = pflag.String("metrics-path", "/metrics", "Path the Prometheus collector is mounted at.")

		fixErrors  = pflag.Bool("fix-errors", true, "Correct single-bit CRC errors.")
		aggressive = pflag.Bool("aggressive", false, "Attempt two-bit correction on DF17.")
		fixDF      = pflag.Bool("fix-df", false, "Extend the long-message DF acceptance set with single-bit-flip neighbours of DF17.")

		samplesFile = pflag.StringP("ifile", "i", "", "Read 2.4 Msps uint16 magnitude samples from this file instead of listening for live capture.")

		interactive = pflag.BoolP("interactive", "I", false, "Show a gocui terminal dashboard of the live fleet; log output is not redirected.")

		help = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg := go1090.DefaultConfig()
	cfg.RawInPort, cfg.RawOutPort = *rawInPort, *rawOutPort
	cfg.SbsInPort, cfg.SbsOutPort = *sbsInPort, *sbsOutPort
	cfg.HTTPPort = *httpPort
	cfg.DenyListSpec = *denyList
	cfg.WebRoot = *webRoot
	cfg.WebPage = *webPage
	cfg.MetricsPath = *metricsPath
	cfg.Decoder.FixErrors = *fixErrors
	cfg.Decoder.Aggressive = *aggressive
	cfg.Decoder.CheckCRC = true
	cfg.Demod.FixDF = *fixDF
	if *haveHome {
		cfg.HasHome = true
		cfg.Home.Lat, cfg.Home.Lon = *homeLat, *homeLon
	}

	recv := go1090.New(cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if *interactive {
		go runTUI(recv)
	}

	if *samplesFile != "" {
		go feedSampleFile(recv, *samplesFile)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- recv.Start() }()

	select {
	case <-sigCh:
		log.Info("[MAIN] shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Errorf("[MAIN] reactor exited: %v", err)
		}
	}

	recv.Shutdown()
	time.Sleep(250 * time.Millisecond)
	report(recv)
}

// feedSampleFile streams a prerecorded 2.4 Msps uint16 magnitude
// capture through the receiver in fixed-size chunks, standing in for
// the out-of-scope SDR capture collaborator.
func feedSampleFile(recv *go1090.Receiver, path string) {
	f, err := os.Open(path)
	if err != nil {
		log.Errorf("[MAIN] ifile: %v", err)
		return
	}
	defer f.Close()

	const chunkSamples = 256 * 1024
	raw := make([]byte, chunkSamples*2)
	clock := int64(0)

	for {
		n, err := io.ReadFull(f, raw)
		if n > 0 {
			samples := n / 2
			buf := &magnitude.Buffer{
				Data:            make([]uint16, samples),
				SysTimestamp:    time.Now(),
				SampleTimestamp: clock,
			}
			for i := 0; i < samples; i++ {
				buf.Data[i] = binary.LittleEndian.Uint16(raw[i*2:])
			}
			recv.ProcessBuffer(buf)
			clock += int64(samples) * 5
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				log.Warnf("[MAIN] ifile read: %v", err)
			}
			return
		}
	}
}

func report(recv *go1090.Receiver) {
	stats := recv.Reactor.Report()
	fmt.Println("--- shutdown report ---")
	for name, s := range stats.PerService {
		fmt.Printf("%-8s bytes_in=%-10d bytes_out=%-10d accepts=%-6d connects=%-6d removes=%-6d unknowns=%-6d last_error=%q\n",
			name, s.BytesIn, s.BytesOut, s.Accepts, s.Connects, s.Removes, s.Unknowns, s.LastError)
	}
	fmt.Printf("demod      accepted=%-8d rejected_bad=%-8d rejected_unknown_icao=%-8d\n",
		recv.DemodStats.Accepted, recv.DemodStats.RejectedBad, recv.DemodStats.RejectedUnknownICAO)
}
