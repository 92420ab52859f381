package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func healthCmd(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)
	fmt.Println(fetch(strings.TrimRight(strings.TrimSpace(*baseURL), "/")+"/healthz", 5*time.Second))
}

func metricsCmd(args []string) {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	prefix := fs.String("prefix", "plots_", "only print series with this prefix")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/metrics"
	body := fetch(u, 10*time.Second)
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, *prefix) {
			fmt.Println(line)
		}
	}
}

// fetch GETs u and returns the body. Non-2xx exits 1.
func fetch(u string, timeout time.Duration) string {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(string(b)))
		os.Exit(1)
	}
	return string(b)
}
