package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"watchpoint/src/logutil"
	"watchpoint/src/monitor"
	"watchpoint/src/overlay"
	"watchpoint/src/payload"
	"watchpoint/src/preview"
	"watchpoint/src/settings"
	"watchpoint/src/singleinstance"
	"watchpoint/src/window"
)

type fakeWindow struct {
	mu      sync.Mutex
	actions []string
	applied []settings.Record
	images  []*payload.Payload
	texts   []string
	saveErr error
	saved   string
	zoom    float64
	seq     uint64
}

func (f *fakeWindow) record(a string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
}

func (f *fakeWindow) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = nil
}

func (f *fakeWindow) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.actions) == 0 {
		return ""
	}
	return f.actions[len(f.actions)-1]
}

// snapshot copies what the window received.
func (f *fakeWindow) snapshot() (images []*payload.Payload, texts []string, applied int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*payload.Payload(nil), f.images...), append([]string(nil), f.texts...), len(f.applied)
}

func (f *fakeWindow) setSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeWindow) Status() window.Status {
	return window.Status{State: window.Normal, Running: true}
}

func (f *fakeWindow) RequestClose()      { f.record("close") }
func (f *fakeWindow) ToggleFullscreen()  { f.record("fullscreen") }
func (f *fakeWindow) ResetView()         { f.record("reset") }
func (f *fakeWindow) ZoomIn()            { f.record("zoom-in") }
func (f *fakeWindow) ZoomOut()           { f.record("zoom-out") }
func (f *fakeWindow) OneToOne()          { f.record("one-to-one") }
func (f *fakeWindow) ToggleToolbar()     { f.record("toolbar") }
func (f *fakeWindow) TogglePanel()       { f.record("panel") }
func (f *fakeWindow) Pan(dx, dy float64) { f.record("pan") }
func (f *fakeWindow) Restore()           { f.record("restore") }

func (f *fakeWindow) SetZoom(z float64) {
	f.mu.Lock()
	f.zoom = z
	f.mu.Unlock()
	f.record("zoom")
}

func (f *fakeWindow) ApplySettings(rec settings.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, rec)
}

func (f *fakeWindow) EnsureCreated(settings.Record) {}

func (f *fakeWindow) UpdateImage(p *payload.Payload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, p)
}

func (f *fakeWindow) SetText(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeWindow) NextSeq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return f.seq
}

func (f *fakeWindow) SaveCurrentImage(ctx context.Context, path string) error {
	f.record("save")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = path
	return f.saveErr
}

func (f *fakeWindow) CopyToClipboard(ctx context.Context) error {
	f.record("copy")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveErr
}

type fakeMonitors struct{}

func (fakeMonitors) List() []monitor.Descriptor {
	return []monitor.Descriptor{{Index: 0, Width: 1920, Height: 1080}, {Index: 1, X: 1920, Width: 2560, Height: 1440}}
}

const hostOrigin = "http://127.0.0.1:8188"

type harness struct {
	srv   *httptest.Server
	win   *fakeWindow
	store *settings.Store
	files *overlay.TempStore
	hub   *overlay.Hub
	dir   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		win:   &fakeWindow{},
		store: settings.Open(filepath.Join(dir, "settings.json")),
		files: overlay.NewTempStore(filepath.Join(dir, "temp")),
		dir:   dir,
	}
	origins := NewOrigins([]string{hostOrigin})
	h.hub = overlay.NewHub(origins.Allowed)
	node := preview.New(preview.Options{
		Window:   h.win,
		Channel:  &overlay.Channel{Store: h.files, Hub: h.hub},
		Settings: h.store,
	})
	s := NewServer(Options{
		Node:     node,
		Window:   h.win,
		Settings: h.store,
		Monitors: fakeMonitors{},
		Files:    h.files,
		Debug:    logutil.LoadDebug(filepath.Join(dir, logutil.DebugConfigFile), filepath.Join(dir, "dumps"), false),
		Events:   h.hub,
		Version:  "test",
		Origins:  origins,
		SaveDir:  filepath.Join(dir, "saved"),
	})
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

// do sends a request the way the CLI and host backend do.
func (h *harness) do(t *testing.T, method, path, contentType string, body []byte) *http.Response {
	t.Helper()
	hdr := http.Header{RequestHeader: {"1"}}
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	return h.doWith(t, method, path, hdr, body)
}

func (h *harness) doWith(t *testing.T, method, path string, hdr http.Header, body []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header = hdr
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 10, 5))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, "GET", "/api/health", "", nil)
	var got singleinstance.Health
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.OK() || got.Version != "test" {
		t.Errorf("Unexpected health %+v", got)
	}
}

func TestProcessEchoesBody(t *testing.T) {
	h := newHarness(t)
	body := pngBytes(t)
	resp := h.do(t, "POST", "/api/watchpoint/process?node_id=5&text=hello", "image/png", body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := readBody(t, resp); !bytes.Equal(got, body) {
		t.Error("Expected body echoed unchanged")
	}
	if resp.Header.Get("Content-Type") != "image/png" || resp.Header.Get("X-WatchPoint-Errors") != "0" {
		t.Errorf("Unexpected headers %v", resp.Header)
	}
	var refs []overlay.ImageRef
	if err := json.Unmarshal([]byte(resp.Header.Get("X-WatchPoint-Images")), &refs); err != nil || len(refs) != 1 {
		t.Errorf("Expected one floating preview ref, got %q", resp.Header.Get("X-WatchPoint-Images"))
	}
	images, texts, _ := h.win.snapshot()
	if len(images) != 1 || images[0].NodeID != "5" || len(texts) != 1 {
		t.Errorf("Expected window updated with image and text, got %d/%d", len(images), len(texts))
	}
}

func TestProcessMonitorPreviewOff(t *testing.T) {
	h := newHarness(t)
	body := pngBytes(t)
	resp := h.do(t, "POST", "/api/watchpoint/process?monitor_preview=false&floating_preview=false", "image/png", body)
	if got := readBody(t, resp); !bytes.Equal(got, body) {
		t.Error("Expected body echoed unchanged")
	}
	if images, _, _ := h.win.snapshot(); len(images) != 0 {
		t.Error("Expected window untouched")
	}
}

func TestProcessGarbageStillEchoes(t *testing.T) {
	h := newHarness(t)
	body := []byte("definitely not an image")
	resp := h.do(t, "POST", "/api/watchpoint/process?floating_preview=false", "", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	if got := readBody(t, resp); !bytes.Equal(got, body) {
		t.Error("Expected body echoed unchanged")
	}
	if resp.Header.Get("X-WatchPoint-Errors") != "1" {
		t.Errorf("Expected one reported error, got %s", resp.Header.Get("X-WatchPoint-Errors"))
	}
}

func TestTextAndRestore(t *testing.T) {
	h := newHarness(t)
	h.do(t, "POST", "/api/watchpoint/text", "text/plain", []byte("plain"))
	h.do(t, "POST", "/api/watchpoint/text", "application/json", []byte(`{"text":"json"}`))
	if _, texts, _ := h.win.snapshot(); strings.Join(texts, ",") != "plain,json" {
		t.Errorf("Unexpected texts %v", texts)
	}
	resp := h.do(t, "POST", "/api/watchpoint/restore", "", nil)
	if resp.StatusCode != http.StatusOK || h.win.last() != "restore" {
		t.Errorf("Expected restore, got %d %q", resp.StatusCode, h.win.last())
	}
}

func TestWindowActions(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		path   string
		status int
		action string
	}{
		{"minimize", http.StatusOK, "close"},
		{"fullscreen", http.StatusOK, "fullscreen"},
		{"reset", http.StatusOK, "reset"},
		{"zoom-in", http.StatusOK, "zoom-in"},
		{"zoom-out", http.StatusOK, "zoom-out"},
		{"one-to-one", http.StatusOK, "one-to-one"},
		{"toolbar", http.StatusOK, "toolbar"},
		{"panel", http.StatusOK, "panel"},
		{"zoom?factor=2.5", http.StatusOK, "zoom"},
		{"pan?dx=10&dy=-4", http.StatusOK, "pan"},
		{"copy", http.StatusOK, "copy"},
		{"save?path=x.png", http.StatusOK, "save"},
		{"save?path=shots%2Fy.jpg", http.StatusOK, "save"},
		{"zoom?factor=abc", http.StatusBadRequest, ""},
		{"save", http.StatusBadRequest, ""},
		{"save?path=..%2Fescape.png", http.StatusBadRequest, ""},
		{"save?path=" + filepath.Join(h.dir, "abs.png"), http.StatusBadRequest, ""},
		{"save?path=notes.txt", http.StatusBadRequest, ""},
		{"explode", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			h.win.reset()
			resp := h.do(t, "POST", "/api/watchpoint/window/"+tt.path, "", nil)
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
			if h.win.last() != tt.action {
				t.Errorf("Expected action %q, got %q", tt.action, h.win.last())
			}
		})
	}
	h.win.mu.Lock()
	zoom := h.win.zoom
	h.win.mu.Unlock()
	if zoom != 2.5 {
		t.Errorf("Expected zoom 2.5, got %v", zoom)
	}
}

func TestSaveWithoutImage(t *testing.T) {
	h := newHarness(t)
	h.win.setSaveErr(payload.ErrNoImage)
	resp := h.do(t, "POST", "/api/watchpoint/window/save?path=x.png", "", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
	h.win.setSaveErr(window.ErrBusy)
	resp = h.do(t, "POST", "/api/watchpoint/window/copy", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestSettingsPartialUpdate(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, "PUT", "/api/settings", "application/json", []byte(`{"jpeg_quality": 150, "show_toolbar": false}`))
	var got settings.Record
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.JPEGQuality != settings.MaxJPEGQuality || got.ShowToolbar {
		t.Errorf("Unexpected record %+v", got)
	}
	if got.WindowWidth != settings.Defaults().WindowWidth {
		t.Error("Expected untouched keys to keep their values")
	}
	if _, _, applied := h.win.snapshot(); applied != 1 {
		t.Error("Expected settings applied to the window")
	}
	onDisk, err := settings.Load(h.store.Path())
	if err != nil || onDisk.JPEGQuality != settings.MaxJPEGQuality {
		t.Errorf("Expected persisted quality, got %d (%v)", onDisk.JPEGQuality, err)
	}

	resp = h.do(t, "PUT", "/api/settings", "application/json", []byte(`{broken`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestMonitorsAndStatus(t *testing.T) {
	h := newHarness(t)
	var mons []monitor.Descriptor
	json.NewDecoder(h.do(t, "GET", "/api/monitors", "", nil).Body).Decode(&mons)
	if len(mons) != 2 || mons[1].X != 1920 {
		t.Errorf("Unexpected monitors %+v", mons)
	}
	var st Status
	json.NewDecoder(h.do(t, "GET", "/api/watchpoint/status", "", nil).Body).Decode(&st)
	if st.Window.State != window.Normal || !st.Window.Running {
		t.Errorf("Unexpected status %+v", st)
	}
}

func TestView(t *testing.T) {
	h := newHarness(t)
	refs, err := h.files.Write([]image.Image{image.NewRGBA(image.Rect(0, 0, 3, 3))})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		query  string
		status int
	}{
		{"filename=" + refs[0].Filename + "&type=temp", http.StatusOK},
		{"filename=" + refs[0].Filename, http.StatusOK},
		{"filename=" + refs[0].Filename + "&type=output", http.StatusBadRequest},
		{"filename=..%2Fsecret", http.StatusBadRequest},
		{"filename=watchpoint_0_0.png&type=temp", http.StatusNotFound},
	}
	for _, tt := range tests {
		resp := h.do(t, "GET", "/view?"+tt.query, "", nil)
		if resp.StatusCode != tt.status {
			t.Errorf("GET /view?%s: expected %d, got %d", tt.query, tt.status, resp.StatusCode)
		}
	}
}

func TestDebugToggleAndDump(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, "POST", "/api/debug", "application/json", []byte(`{"enabled": true, "dump": true}`))
	var got debugResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.DebugMode || got.DumpPath == "" {
		t.Errorf("Unexpected debug response %+v", got)
	}
	resp = h.do(t, "POST", "/api/debug", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected empty body accepted, got %d", resp.StatusCode)
	}
}

func TestSaveStaysInSaveDir(t *testing.T) {
	h := newHarness(t)
	resp := h.do(t, "POST", "/api/watchpoint/window/save?path=shots%2Fa.png", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	h.win.mu.Lock()
	saved := h.win.saved
	h.win.mu.Unlock()
	if want := filepath.Join(h.dir, "saved", "shots", "a.png"); saved != want {
		t.Errorf("Expected save to %s, got %s", want, saved)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "saved", "shots")); err != nil {
		t.Errorf("Expected save directory created: %v", err)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name     string
		origin   string
		status   int
		allowHdr string
	}{
		{"host ui", hostOrigin, http.StatusOK, hostOrigin},
		{"host ui trailing slash", hostOrigin + "/", http.StatusOK, hostOrigin + "/"},
		{"foreign page", "https://evil.example", http.StatusForbidden, ""},
		{"no origin", "", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hdr := http.Header{}
			if tt.origin != "" {
				hdr.Set("Origin", tt.origin)
			}
			resp := h.doWith(t, "OPTIONS", "/api/settings", hdr, nil)
			if resp.StatusCode != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.allowHdr {
				t.Errorf("Expected Allow-Origin %q, got %q", tt.allowHdr, got)
			}
			if tt.status == http.StatusOK && tt.origin != "" && !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), RequestHeader) {
				t.Errorf("Expected %s in allowed headers", RequestHeader)
			}
		})
	}
}

func TestForeignOriginCannotMutate(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		method string
		path   string
		body   []byte
	}{
		{"POST", "/api/watchpoint/window/save?path=victim.png", nil},
		{"POST", "/api/debug", []byte(`{"enabled": true, "dump": true}`)},
		{"PUT", "/api/settings", []byte(`{"jpeg_quality": 11}`)},
		{"GET", "/api/settings", nil},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			h.win.reset()
			hdr := http.Header{"Origin": {"https://evil.example"}, RequestHeader: {"1"}, "Content-Type": {"text/plain"}}
			resp := h.doWith(t, tt.method, tt.path, hdr, tt.body)
			if resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected 403, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
				t.Errorf("Expected no Allow-Origin, got %q", got)
			}
			if h.win.last() != "" {
				t.Errorf("Expected no window action, got %q", h.win.last())
			}
		})
	}
	if h.store.Get().JPEGQuality == 11 {
		t.Error("Expected settings untouched")
	}
}

func TestMutationRequiresHeader(t *testing.T) {
	h := newHarness(t)
	// a simple form post: no preflight, no custom header
	hdr := http.Header{"Content-Type": {"text/plain"}}
	resp := h.doWith(t, "POST", "/api/watchpoint/window/save?path=x.png", hdr, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}
	if h.win.last() == "save" {
		t.Error("Expected save not to run")
	}

	hdr.Set("Origin", hostOrigin)
	resp = h.doWith(t, "POST", "/api/debug", hdr, []byte(`{"enabled": true}`))
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 without %s even from the host UI, got %d", RequestHeader, resp.StatusCode)
	}

	resp = h.doWith(t, "GET", "/api/health", http.Header{}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected reads without the header to work, got %d", resp.StatusCode)
	}
}

func TestOrigins(t *testing.T) {
	o := NewOrigins([]string{" HTTP://Localhost:8188/ ", ""})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:8188", true},
		{"http://LOCALHOST:8188/", true},
		{"http://localhost:8189", false},
		{"null", false},
	}
	for _, tt := range tests {
		if got := o.Allowed(tt.origin); got != tt.want {
			t.Errorf("Allowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
	var none *Origins
	if none.Allowed("http://localhost:8188") || !none.Allowed("") {
		t.Error("Expected a nil policy to accept only requests without an Origin")
	}
}
