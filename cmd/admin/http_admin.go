package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var adminPaths = map[string]struct {
	method string
	path   string
}{
	"state":  {http.MethodGet, "/admin/v1/state"},
	"save":   {http.MethodPost, "/admin/v1/save"},
	"reload": {http.MethodPost, "/admin/v1/reload"},
}

func httpCmd(w io.Writer, name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ep, ok := adminPaths[name]
	if !ok {
		return fmt.Errorf("unknown admin call %q", name)
	}

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + ep.path
	req, err := http.NewRequest(ep.method, u, nil)
	if err != nil {
		return err
	}
	cl := &http.Client{Timeout: 30 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Fprintln(w, strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("server answered %s", resp.Status)
	}
	return nil
}
