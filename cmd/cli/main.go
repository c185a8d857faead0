package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const usage = `usage:
  cli add [-name N] [-interval 60] [-timeout 10] [-keyword K] [-ssl] URL
  cli run               run every enabled monitor now
  cli check ID          check one monitor now
  cli list              list monitors
With no arguments the URL to add is read from stdin.
API_BASE (default http://localhost:8080) and API_KEY come from the environment.`

type client struct {
	base string
	key  string
	http *http.Client
}

func main() {
	c := &client{
		base: strings.TrimRight(envOr("API_BASE", "http://localhost:8080"), "/"),
		key:  os.Getenv("API_KEY"),
		http: &http.Client{Timeout: 2 * time.Minute},
	}

	args := os.Args[1:]
	if len(args) == 0 {
		c.interactive()
		return
	}
	var err error
	switch args[0] {
	case "add":
		err = c.add(args[1:])
	case "run":
		err = c.call(http.MethodPost, "/api/checks/run", nil)
	case "check":
		if len(args) != 2 {
			err = fmt.Errorf("check needs a monitor id")
			break
		}
		err = c.call(http.MethodPost, "/api/monitors/"+url.PathEscape(args[1])+"/check", nil)
	case "list":
		err = c.call(http.MethodGet, "/api/monitors", nil)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (c *client) interactive() {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Enter a site URL to monitor (e.g., https://example.com): ")
	raw, _ := reader.ReadString('\n')
	if err := c.add([]string{strings.TrimSpace(raw)}); err != nil {
		fmt.Println("Error:", err)
	}
}

func (c *client) add(args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	interval := fs.Int("interval", 60, "check interval in seconds")
	timeout := fs.Int("timeout", 10, "probe timeout in seconds")
	keyword := fs.String("keyword", "", "text the response body must contain")
	ssl := fs.Bool("ssl", false, "verify the certificate validity window")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("add needs exactly one URL")
	}
	raw := fs.Arg(0)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return fmt.Errorf("invalid URL %q", raw)
	}

	body, _ := json.Marshal(map[string]any{
		"name":         *name,
		"url":          raw,
		"interval_sec": *interval,
		"timeout_sec":  *timeout,
		"keyword":      *keyword,
		"check_ssl":    *ssl,
	})
	return c.call(http.MethodPost, "/api/monitors", body)
}

// call prints the JSON response, indented, and fails on non-2xx.
func (c *client) call(method, path string, body []byte) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("X-API-Key", c.key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contacting API: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, out, "", "  ") == nil {
		out = pretty.Bytes()
	}
	fmt.Println(strings.TrimSpace(string(out)))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API returned status: %s", resp.Status)
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
