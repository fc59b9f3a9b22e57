/*
Package pqc orchestrates electrical characterization of silicon sensor test
structures on a wafer prober: serialized instrument access, safe XYZ table
motion and a retrying sequence executor over a tree of samples, contacts
and measurements.

It implements a hexagonal architecture: the core (domain tree, measurement
lifecycle, executor) is decoupled from adapters (sequence loaders, result
sinks, transports, monitoring). Hosts own the instrument workers and their
transports; the engine owns orchestration.

# Concept

A sequence is a tree of nodes. Samples group contacts, contacts carry a
table position and group measurements. The executor walks the enabled
tree, moves the table through a retract-travel-approach protocol, runs
each measurement through its initialize/measure/finalize/analyze lifecycle
and retries failed contacts and analysis failures within configured
bounds. Every measurement completion is delivered to the result sinks and
the lifecycle hooks.

# Usage

Assemble a station from instrument handles, build the engine, load a
sequence and run it. Station assembly lives in the module's internal
packages, so hosts are commands within this module; cmd/pqc is the
reference host:

	package main

	import (
		"context"
		"log"
		"os"

		"github.com/hephy-dd/pqc"
		"github.com/hephy-dd/pqc/internal/station"
		"github.com/hephy-dd/pqc/pkg/adapters/filesink"
	)

	func main() {
		st := station.New(
			station.WithHVSource(hvsrc),
			station.WithVSource(vsrc),
			station.WithLCR(lcr),
		)

		sink, err := filesink.Open("results.jsonl")
		if err != nil {
			log.Fatal(err)
		}

		eng, err := pqc.New(st, pqc.WithSinks(sink))
		if err != nil {
			log.Fatal(err)
		}
		defer eng.Close()

		f, err := os.Open("sequence.yaml")
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()

		ctx := context.Background()
		tree, err := eng.LoadSequence(ctx, f)
		if err != nil {
			log.Fatal(err)
		}

		state, err := eng.Run(ctx, tree)
		if err != nil {
			log.Fatal(err)
		}
		log.Println("sequence finished:", state)
	}
*/
package pqc
