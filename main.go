package main

import (
	"fmt"
	"os"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "colblob"
)

func main() {
	fmt.Printf("%s v%s\n", Name, Version)
	fmt.Println("Columnar containers read straight from host blobs")
	fmt.Println("Commands: colblob-inspect, blob-server, colblob-wasm (GOOS=js GOARCH=wasm)")
	os.Exit(0)
}
