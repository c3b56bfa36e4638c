package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-notifier/internal/models"
	"github.com/noah-isme/timetable-notifier/pkg/timetable"
)

type report struct {
	File        string          `json:"file"`
	Status      string          `json:"status"`
	Version     string          `json:"version"`
	Lessons     int             `json:"lessons"`
	SkippedRows int             `json:"skippedRows"`
	Result      []models.Lesson `json:"result,omitempty"`
}

func main() {
	var (
		verbose bool
		summary bool
	)
	flag.BoolVar(&verbose, "v", false, "log parser diagnostics to stderr")
	flag.BoolVar(&summary, "summary", false, "print counts only, without the lesson list")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: parse_fixture [-v] [-summary] <timetable.html>...\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	logger := zap.NewNop()
	if verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("failed to init logger: %v", err)
		}
	}
	parser := timetable.NewClTblParser(logger)

	notFound := 0
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, path := range flag.Args() {
		raw, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read %s: %v", path, err)
		}
		result := parser.Parse(string(raw))
		if !result.Status.Replaces() {
			notFound++
		}

		out := report{
			File:        path,
			Status:      result.Status.String(),
			Version:     result.Version,
			Lessons:     len(result.Lessons),
			SkippedRows: result.SkippedRows,
		}
		if !summary {
			out.Result = result.Lessons
		}
		if err := enc.Encode(out); err != nil {
			log.Fatalf("encode report: %v", err)
		}
	}

	// a missing table usually means the portal layout drifted
	if notFound > 0 {
		os.Exit(1)
	}
}
