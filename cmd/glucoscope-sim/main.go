package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"git.sr.ht/~whereswaldon/glucoscope/backend"
	"git.sr.ht/~whereswaldon/glucoscope/sensors"
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `%[1]s: write a simulated CGM trace file
Usage:

 %[1]s -output trace.csv

and then

 glucoscope -trace trace.csv

The trace is a CSV file of date (epoch ms), sgv (mg/dL) and trend direction,
one reading per line. Readings keep being appended until interrupted.

`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	interval := flag.Duration("sample-interval", 5*time.Minute, "Simulated time between readings")
	speedup := flag.Float64("speedup", 1, "How many times faster than real time to emit readings")
	backfill := flag.Duration("backfill", 24*time.Hour, "Amount of history to write immediately on startup")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed for the simulated sensor")
	outputName := flag.String("output", "-", "Output file for CSV trace data")
	flag.Parse()
	if *interval <= 0 || *speedup <= 0 {
		log.Fatalf("sample-interval and speedup must be positive")
	}

	var output io.WriteCloser
	if *outputName == "-" {
		output = os.Stdout
	} else {
		f, err := os.Create(*outputName)
		if err != nil {
			log.Fatalf("failed opening output file %q: %v", *outputName, err)
		}
		output = f
	}
	trace, err := backend.NewTraceWriter(output)
	if err != nil {
		log.Fatalf("failed writing trace header: %v", err)
	}

	sensor := sensors.NewGlucose(sensors.DefaultProfile, *interval, *seed)
	var last backend.Sample
	emit := func(at time.Time) {
		v, err := sensor.Read()
		if err != nil {
			log.Fatalf("failed reading %s: %v", sensor.Name(), err)
		}
		sample := backend.Sample{Time: at, Value: v, Direction: backend.DirectionNone}
		if !last.Time.IsZero() {
			rate := (v - last.Value) / at.Sub(last.Time).Minutes()
			sample.Direction = backend.DirectionFromRate(rate)
		}
		if err := trace.Write(sample); err != nil {
			log.Fatalf("failed writing sample: %v", err)
		}
		last = sample
	}

	// Write the backlog so that a freshly opened trace already has history.
	simTime := time.Now().Add(-*backfill).Truncate(time.Second)
	for !simTime.After(time.Now()) {
		emit(simTime)
		simTime = simTime.Add(*interval)
	}

	ticker := time.NewTicker(time.Duration(float64(*interval) / *speedup))
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer ticker.Stop()
	for {
		select {
		case <-sigChan:
			// We've gotten an interrupt; shut down.
			if err := output.Close(); err != nil {
				log.Printf("failed closing output: %v", err)
			}
			return
		case <-ticker.C:
			emit(simTime)
			simTime = simTime.Add(*interval)
		}
	}
}
