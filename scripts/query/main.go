package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"FlowChains/internal/config"
	"FlowChains/internal/query"
)

func main() {
	mode := flag.String("mode", "api", "Query mode: 'api' to query via HTTP API, 'direct' to query ClickHouse directly.")
	kind := flag.String("query", "summary", "Query to run: 'summary' or 'trace'.")
	apiAddr := flag.String("api", "http://localhost:8080", "Base URL of the engine API.")
	from := flag.String("from", "", "Start of the time range in RFC3339 format (optional).")
	to := flag.String("to", time.Now().UTC().Format(time.RFC3339), "End of the time range in RFC3339 format.")
	srcIP := flag.String("src-ip", "", "Trace: source address.")
	dstIP := flag.String("dst-ip", "", "Trace: destination address.")
	protocol := flag.String("protocol", "", "Trace: transport protocol, e.g. TCP.")
	limit := flag.Int("limit", query.DefaultLimit, "Trace: maximum number of flows.")
	chHost := flag.String("ch-host", "localhost", "ClickHouse host for direct mode.")
	chPort := flag.Int("ch-port", 9000, "ClickHouse port for direct mode.")
	flag.Parse()

	log.Printf("Running '%s' query in '%s' mode.", *kind, *mode)

	filters := map[string]string{"src_ip": *srcIP, "dst_ip": *dstIP, "protocol": *protocol}

	switch *mode {
	case "api":
		queryViaAPI(*apiAddr, *kind, *from, *to, *limit, filters)
	case "direct":
		cfg := config.ClickHouseConfig{Host: *chHost, Port: *chPort, Database: "default", Username: "default"}
		directQuery(cfg, *kind, *from, *to, *limit, filters)
	default:
		log.Fatalf("Invalid mode: %s. Use 'api' or 'direct'.", *mode)
	}
}

func queryViaAPI(base, kind, from, to string, limit int, filters map[string]string) {
	params := url.Values{}
	if from != "" {
		params.Set("from", from)
	}
	params.Set("to", to)
	if kind == "trace" {
		for k, v := range filters {
			if v != "" {
				params.Set(k, v)
			}
		}
		params.Set("limit", fmt.Sprint(limit))
	}
	apiURL := fmt.Sprintf("%s/api/v1/flows/%s?%s", base, kind, params.Encode())
	log.Printf("Sending request to %s", apiURL)

	resp, err := http.Get(apiURL)
	if err != nil {
		log.Fatalf("Error sending request: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("Error reading response body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("API returned non-200 status code: %d\nResponse: %s", resp.StatusCode, string(respBody))
	}

	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, respBody, "", "  "); err != nil {
		log.Printf("Could not prettify JSON, printing raw response:")
		fmt.Println(string(respBody))
		return
	}
	fmt.Println(prettyJSON.String())
}

func directQuery(cfg config.ClickHouseConfig, kind, from, to string, limit int, filters map[string]string) {
	q, err := query.NewClickHouseQuerier(cfg)
	if err != nil {
		log.Fatalf("Error connecting to ClickHouse: %v", err)
	}
	defer q.Close()

	fromTime, toTime := parseTime(from), parseTime(to)
	ctx := context.Background()

	var out interface{}
	switch kind {
	case "summary":
		out, err = q.Summary(ctx, fromTime, toTime)
	case "trace":
		keys := map[string]string{}
		for param, column := range map[string]string{"src_ip": "SrcIP", "dst_ip": "DstIP", "protocol": "Protocol"} {
			if v := filters[param]; v != "" {
				keys[column] = v
			}
		}
		out, err = q.TraceFlows(ctx, query.TraceRequest{Keys: keys, From: fromTime, To: toTime, Limit: limit})
	default:
		log.Fatalf("Invalid query: %s. Use 'summary' or 'trace'.", kind)
	}
	if err != nil {
		log.Fatalf("Error executing query: %v", err)
	}

	pretty, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(pretty))
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		log.Fatalf("Invalid time format %q: %v", s, err)
	}
	return t
}
