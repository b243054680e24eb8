package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"FlowChains/internal/writer"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/flowdump/main.go <flows.msgpack>")
		os.Exit(1)
	}

	docs, err := writer.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("Failed to decode flow file: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			log.Fatalf("Failed to print flow: %v", err)
		}
	}
	fmt.Printf("Decoded %d flows\n", len(docs))
}
