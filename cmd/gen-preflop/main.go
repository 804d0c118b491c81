package main

import (
	"flag"
	"os"

	"github.com/poker-ai/holdem-solver/sdk/analysis"
)

func main() {
	simulations := flag.Int("simulations", 10000, "Number of simulations per hand")
	output := flag.String("output", "preflop_gen.go", "Output file for generated Go code")
	flag.Parse()

	table := analysis.GeneratePreflopTable(*simulations)

	code := table.GenerateGoCode()
	if err := os.WriteFile(*output, []byte(code), 0644); err != nil {
		os.Exit(1)
	}
}
