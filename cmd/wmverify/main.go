// wmverify replays a recorded video against the watermark secret and
// prints the liveness verdict as a one-line summary, or as the full
// per-frame JSON report with -json.
//
// Usage:
//
//	wmverify -video clip.mp4 -start 1700000000 [-clock 1700003600] [-json]
//
// -start anchors the recording's first frame on the epoch; -clock, when
// given, overrides the validator clock to test for replayed footage.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/technosupport/ts-aegis/internal/watermark"
)

func main() {
	video := flag.String("video", "", "Path to the recorded video")
	start := flag.Float64("start", 0, "Recording start, seconds since epoch")
	clock := flag.Float64("clock", 0, "Validator clock override, seconds since epoch")
	full := flag.Bool("json", false, "Print the full per-frame report")
	flag.Parse()

	if *video == "" {
		flag.Usage()
		os.Exit(2)
	}

	secret := os.Getenv("AEGIS_WATERMARK_SECRET")
	if len(secret) < watermark.MinSecretLen {
		log.Fatalf("AEGIS_WATERMARK_SECRET must be set (min %d bytes)", watermark.MinSecretLen)
	}

	v, err := watermark.NewValidator([]byte(secret))
	if err != nil {
		log.Fatalf("validator: %v", err)
	}
	v.ClockStart = *clock

	src, err := watermark.OpenVideoFile(*video, *start)
	if err != nil {
		rep := &watermark.Report{Status: watermark.StatusError, Error: err.Error()}
		printReport(rep, *full)
		os.Exit(1)
	}

	rep := v.Validate(src)
	printReport(rep, *full)

	if rep.Status != watermark.StatusLive {
		os.Exit(1)
	}
}

func printReport(rep *watermark.Report, full bool) {
	if !full {
		fmt.Printf("%s match_rate=%.3f frames=%d\n", rep.Status, rep.MatchRate, rep.Total)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
}
