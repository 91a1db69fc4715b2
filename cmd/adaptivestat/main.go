// Command adaptivestat inspects the on-disk Adaptive Learner cache, printing
// every non-expired per-server-fingerprint entry, grounded on
// cmd/diagnose/main.go's report-printing idiom applied to a cache dump
// instead of a live pipeline. Loading the cache deletes expired entry files.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/ethan/rtsp-engine/pkg/adaptive"
)

func main() {
	fs := flag.NewFlagSet("adaptivestat", flag.ExitOnError)
	cacheDir := fs.String("cache-dir", defaultCacheDir(), "Adaptive learner cache directory")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [-cache-dir path]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Print every learned server fingerprint's adaptive state.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing flags: %v\n", err)
		os.Exit(1)
	}

	learner := adaptive.New(*cacheDir, nil)
	entries := learner.Entries()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Fingerprint < entries[j].Fingerprint })

	if len(entries) == 0 {
		fmt.Println("no learned entries")
		return
	}

	for _, e := range entries {
		fmt.Printf("%-40s strategy=%-20s racing=%-12s confidence=%.2f updated=%s\n",
			e.Fingerprint, e.BestStrategy, e.BestRacing, e.Confidence, e.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".rtsp-engine-adaptive-cache"
	}
	return dir + "/rtsp-engine/adaptive"
}
