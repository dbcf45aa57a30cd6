package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"watchpoint/src/config"
	"watchpoint/src/monitor"
	"watchpoint/src/payload"
	"watchpoint/src/screenshot"
	"watchpoint/src/singleinstance"
)

const (
	maxFileSizeMB  = 64
	maxFileSize    = maxFileSizeMB * 1024 * 1024
	requestTimeout = 30 * time.Second

	// the resident refuses mutating requests without it
	requestHeader = "X-WatchPoint"
)

type cliOptions struct {
	baseURL string
	verbose bool
	out     io.Writer
	in      io.Reader
	capture *screenshot.Capturer
}

type pushOptions struct {
	nodeID   string
	text     string
	monitor  int
	floating bool
	noWindow bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(os.Args, os.Stdout, os.Stdin)
}

func runWithArgs(args []string, out io.Writer, in io.Reader) error {
	if len(args) == 0 {
		args = []string{"watchpoint-cli"}
	}
	opts := &cliOptions{out: out, in: in}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	cmd.SetOut(out)
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "watchpoint-cli",
		Short:         "Drive a running WatchPoint resident",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.verbose {
				log.SetOutput(os.Stderr)
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.baseURL, "url", "", "Resident base URL (default: scan the configured port range)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")

	cmd.AddCommand(
		newPushCmd(opts),
		newCaptureCmd(opts),
		newTextCmd(opts),
		newRestoreCmd(opts),
		newWindowCmd(opts),
		newGetCmd(opts, "status", "Show window and node status", "/api/watchpoint/status"),
		newGetCmd(opts, "monitors", "List monitors", "/api/monitors"),
		newSettingsCmd(opts),
		newDebugCmd(opts),
	)
	return cmd
}

func newPushCmd(opts *cliOptions) *cobra.Command {
	p := &pushOptions{monitor: -1}
	cmd := &cobra.Command{
		Use:   "push FILE",
		Short: "Send an image to the preview ('-' reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(args[0], opts.in)
			if err != nil {
				return err
			}
			return push(cmd.Context(), opts, p, data)
		},
	}
	cmd.Flags().StringVar(&p.nodeID, "node-id", "cli", "Node id reported to the overlay")
	cmd.Flags().StringVar(&p.text, "text", "", "Side panel text")
	cmd.Flags().IntVar(&p.monitor, "monitor", -1, "Monitor for window creation (default: from settings)")
	cmd.Flags().BoolVar(&p.floating, "floating", false, "Also emit a floating preview")
	cmd.Flags().BoolVar(&p.noWindow, "no-window", false, "Do not update the desktop window")
	return cmd
}

func newCaptureCmd(opts *cliOptions) *cobra.Command {
	p := &pushOptions{monitor: -1}
	var source int
	var region string
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Grab a monitor or screen region and send it to the preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.capture == nil {
				opts.capture = screenshot.New(nil, nil)
			}
			var img image.Image
			var err error
			if region != "" {
				r, perr := parseRegion(region)
				if perr != nil {
					return perr
				}
				img, err = opts.capture.Region(r)
			} else {
				img, err = opts.capture.Monitor(source)
			}
			if err != nil {
				return err
			}
			data, err := screenshot.EncodePNG(img)
			if err != nil {
				return err
			}
			return push(cmd.Context(), opts, p, data)
		},
	}
	cmd.Flags().IntVar(&source, "source", 0, "Monitor to capture")
	cmd.Flags().StringVar(&region, "region", "", "Capture X,Y,W,H instead of a whole monitor")
	cmd.Flags().StringVar(&p.nodeID, "node-id", "capture", "Node id reported to the overlay")
	cmd.Flags().StringVar(&p.text, "text", "", "Side panel text")
	cmd.Flags().IntVar(&p.monitor, "monitor", -1, "Monitor for window creation (default: from settings)")
	cmd.Flags().BoolVar(&p.floating, "floating", false, "Also emit a floating preview")
	cmd.Flags().BoolVar(&p.noWindow, "no-window", false, "Do not update the desktop window")
	return cmd
}

func parseRegion(s string) (monitor.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return monitor.Rect{}, fmt.Errorf("region must be X,Y,W,H, got %q", s)
	}
	var v [4]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return monitor.Rect{}, fmt.Errorf("region must be X,Y,W,H, got %q", s)
		}
		v[i] = n
	}
	return monitor.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", path, err)
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	if _, err := payload.Decode(data, "", 0); err != nil {
		return nil, fmt.Errorf("input is not a supported image: %w", err)
	}
	return data, nil
}

func push(ctx context.Context, opts *cliOptions, p *pushOptions, data []byte) error {
	q := url.Values{}
	q.Set("node_id", p.nodeID)
	q.Set("monitor_preview", strconv.FormatBool(!p.noWindow))
	q.Set("floating_preview", strconv.FormatBool(p.floating))
	if p.text != "" {
		q.Set("text", p.text)
	}
	if p.monitor >= 0 {
		q.Set("monitor", strconv.Itoa(p.monitor))
	}
	resp, body, err := opts.call(ctx, http.MethodPost, "/api/watchpoint/process?"+q.Encode(), "application/octet-stream", data)
	if err != nil {
		return err
	}
	if !bytes.Equal(body, data) {
		return errors.New("resident did not echo the image")
	}
	if n := resp.Header.Get("X-WatchPoint-Errors"); n != "" && n != "0" {
		fmt.Fprintf(opts.out, "pushed %d bytes with %s preview errors (see resident log)\n", len(data), n)
		return nil
	}
	fmt.Fprintf(opts.out, "pushed %d bytes\n", len(data))
	return nil
}

func newTextCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "text TEXT",
		Short: "Replace the side panel text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(map[string]string{"text": strings.Join(args, " ")})
			return opts.callAndPrint(cmd.Context(), http.MethodPost, "/api/watchpoint/text", "application/json", body)
		},
	}
}

func newRestoreCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore a minimized or hidden preview window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.callAndPrint(cmd.Context(), http.MethodPost, "/api/watchpoint/restore", "", nil)
		},
	}
}

func newWindowCmd(opts *cliOptions) *cobra.Command {
	var factor, dx, dy float64
	var path string
	cmd := &cobra.Command{
		Use:       "window ACTION",
		Short:     "Run a window action",
		Long:      "Actions: minimize, fullscreen, reset, zoom-in, zoom-out, one-to-one, toolbar, panel, zoom, pan, save, copy",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"minimize", "fullscreen", "reset", "zoom-in", "zoom-out", "one-to-one", "toolbar", "panel", "zoom", "pan", "save", "copy"},
		RunE: func(cmd *cobra.Command, args []string) error {
			action := args[0]
			q := url.Values{}
			switch action {
			case "zoom":
				q.Set("factor", strconv.FormatFloat(factor, 'f', -1, 64))
			case "pan":
				q.Set("dx", strconv.FormatFloat(dx, 'f', -1, 64))
				q.Set("dy", strconv.FormatFloat(dy, 'f', -1, 64))
			case "save":
				if path == "" {
					return errors.New("--path is required for save")
				}
				q.Set("path", path)
			}
			target := "/api/watchpoint/window/" + url.PathEscape(action)
			if len(q) > 0 {
				target += "?" + q.Encode()
			}
			return opts.callAndPrint(cmd.Context(), http.MethodPost, target, "", nil)
		},
	}
	cmd.Flags().Float64Var(&factor, "factor", 1, "Zoom factor for 'zoom'")
	cmd.Flags().Float64Var(&dx, "dx", 0, "Horizontal pan for 'pan'")
	cmd.Flags().Float64Var(&dy, "dy", 0, "Vertical pan for 'pan'")
	cmd.Flags().StringVar(&path, "path", "", "File name inside the resident's save directory, for 'save'")
	return cmd
}

func newGetCmd(opts *cliOptions, use, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.callAndPrint(cmd.Context(), http.MethodGet, path, "", nil)
		},
	}
}

func newSettingsCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.callAndPrint(cmd.Context(), http.MethodGet, "/api/settings", "", nil)
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set KEY=VALUE...",
		Short: "Update settings keys, e.g. jpeg_quality=90 show_toolbar=false",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := settingsPatch(args)
			if err != nil {
				return err
			}
			return opts.callAndPrint(cmd.Context(), http.MethodPut, "/api/settings", "application/json", body)
		},
	})
	return cmd
}

// settingsPatch turns KEY=VALUE pairs into a JSON object. Values that parse
// as JSON (numbers, booleans, null) are sent as such, anything else as a
// string.
func settingsPatch(pairs []string) ([]byte, error) {
	patch := map[string]json.RawMessage{}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", pair)
		}
		raw := json.RawMessage(v)
		if !json.Valid(raw) {
			quoted, _ := json.Marshal(v)
			raw = quoted
		}
		patch[strings.TrimSpace(k)] = raw
	}
	return json.Marshal(patch)
}

func newDebugCmd(opts *cliOptions) *cobra.Command {
	var on, off, dump bool
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Toggle persistent debug mode or write a dump",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if on && off {
				return errors.New("--on and --off are exclusive")
			}
			req := map[string]any{"dump": dump}
			if on || off {
				req["enabled"] = on
			}
			body, _ := json.Marshal(req)
			return opts.callAndPrint(cmd.Context(), http.MethodPost, "/api/debug", "application/json", body)
		},
	}
	cmd.Flags().BoolVar(&on, "on", false, "Enable debug mode")
	cmd.Flags().BoolVar(&off, "off", false, "Disable debug mode")
	cmd.Flags().BoolVar(&dump, "dump", false, "Write a debug dump now")
	return cmd
}

// resolveBase returns the configured URL or scans for a resident.
func (o *cliOptions) resolveBase(ctx context.Context) (string, error) {
	if o.baseURL != "" {
		return strings.TrimRight(o.baseURL, "/"), nil
	}
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	base, err := singleinstance.Detect(ctx, nil, singleinstance.Range{Start: cfg.PortStart, End: cfg.PortEnd})
	if err != nil {
		return "", fmt.Errorf("no WatchPoint resident on ports %d-%d: %w", cfg.PortStart, cfg.PortEnd, err)
	}
	log.Printf("Found resident at %s", base)
	o.baseURL = base
	return base, nil
}

func (o *cliOptions) call(ctx context.Context, method, path, contentType string, body []byte) (*http.Response, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	base, err := o.resolveBase(ctx)
	if err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set(requestHeader, "1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	log.Printf("%s %s", method, path)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return resp, data, fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return resp, data, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if w := resp.Header.Get("X-WatchPoint-Warning"); w != "" {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	return resp, data, nil
}

func (o *cliOptions) callAndPrint(ctx context.Context, method, path, contentType string, body []byte) error {
	_, data, err := o.call(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	_, err = o.out.Write(bytes.TrimRight(data, "\n"))
	if err == nil {
		_, err = fmt.Fprintln(o.out)
	}
	return err
}
