// Package main is the entry point for the vector index command line tool.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	vectorindex "github.com/kart-io/vecstore/internal/vectorindex"
)

func main() {
	vectorindex.NewApp().Run()
}
