// Package api is the resident's loopback HTTP surface.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"watchpoint/src/monitor"
	"watchpoint/src/overlay"
	"watchpoint/src/payload"
	"watchpoint/src/preview"
	"watchpoint/src/settings"
	"watchpoint/src/singleinstance"
	"watchpoint/src/window"
)

const (
	maxImageBytes = 64 << 20
	maxTextBytes  = 1 << 20
	// saveTimeout bounds save and copy requests routed through the UI thread.
	saveTimeout = 30 * time.Second
)

// Previewer is the preview node adapter.
type Previewer interface {
	Process(ctx context.Context, in preview.Input) preview.Output
	Scout(text string) string
	RestoreWindow() error
	Stats() preview.Stats
}

// Window is the window manager surface exposed over HTTP.
type Window interface {
	Status() window.Status
	RequestClose()
	ToggleFullscreen()
	ResetView()
	ZoomIn()
	ZoomOut()
	OneToOne()
	ToggleToolbar()
	TogglePanel()
	SetZoom(f float64)
	Pan(dx, dy float64)
	ApplySettings(rec settings.Record)
	SaveCurrentImage(ctx context.Context, path string) error
	CopyToClipboard(ctx context.Context) error
}

// SettingsStore holds the settings record.
type SettingsStore interface {
	Get() settings.Record
	Replace(rec settings.Record) (settings.Record, error)
}

// Monitors lists displays.
type Monitors interface {
	List() []monitor.Descriptor
}

// Files resolves stored preview images.
type Files interface {
	Path(filename string) (string, error)
}

// Debug controls debug mode and dumps.
type Debug interface {
	Enabled() bool
	SetEnabled(on bool) error
	Dump(reason string, state any) (string, error)
}

// Options wires a Server.
type Options struct {
	Node     Previewer
	Window   Window
	Settings SettingsStore
	Monitors Monitors
	Files    Files
	Debug    Debug
	// Events serves the overlay event stream.
	Events  http.Handler
	Version string
	// Origins lists the browser origins allowed to call the API.
	Origins *Origins
	// SaveDir confines images saved through the API. Empty disables saving.
	SaveDir string
}

// Server routes HTTP requests to the resident's components.
type Server struct {
	router *mux.Router
	opts   Options
}

// NewServer creates the API server.
func NewServer(opts Options) *Server {
	s := &Server{router: mux.NewRouter(), opts: opts}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	wp := api.PathPrefix("/watchpoint").Subrouter()
	wp.HandleFunc("/process", s.handleProcess).Methods("POST")
	wp.HandleFunc("/text", s.handleText).Methods("POST")
	wp.HandleFunc("/restore", s.handleRestore).Methods("POST")
	wp.HandleFunc("/window/{action}", s.handleWindowAction).Methods("POST")
	wp.HandleFunc("/status", s.handleStatus).Methods("GET")

	api.HandleFunc("/monitors", s.handleMonitors).Methods("GET")
	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")
	api.HandleFunc("/debug", s.handleDebug).Methods("POST")

	if s.opts.Events != nil {
		s.router.Handle("/ws", s.opts.Events)
	}
	s.router.HandleFunc("/view", s.handleView).Methods("GET")
}

// Handler returns the router wrapped with the origin and CORS checks.
func (s *Server) Handler() http.Handler {
	return s.enableCORS(s.router)
}

// enableCORS rejects browser origins outside the allow-list and requires
// RequestHeader on mutating requests.
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if !s.opts.Origins.Allowed(origin) {
			log.Printf("api: rejected %s %s from origin %q", r.Method, r.URL.Path, origin)
			writeError(w, http.StatusForbidden, errors.New("origin not allowed"))
			return
		}
		if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestHeader)
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if mutating(r.Method) && r.Header.Get(RequestHeader) == "" {
			writeError(w, http.StatusForbidden, errors.New("missing "+RequestHeader+" header"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, singleinstance.Health{
		Service: singleinstance.ServiceName,
		Status:  "ok",
		PID:     os.Getpid(),
		Version: s.opts.Version,
	})
}

// handleProcess runs the preview node on the request body and echoes the
// body back unchanged, whatever happened to the previews.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImageBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	q := r.URL.Query()
	in := preview.Input{
		Data:            data,
		NodeID:          q.Get("node_id"),
		FloatingPreview: queryBool(q.Get("floating_preview"), true),
		MonitorPreview:  queryBool(q.Get("monitor_preview"), true),
		PanelText:       q.Get("text"),
	}
	if v := q.Get("monitor"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			in.Monitor = &n
		}
	}

	var out preview.Output
	if s.opts.Node != nil {
		out = s.opts.Node.Process(r.Context(), in)
	} else {
		out = preview.Output{Data: data}
	}

	if len(out.Images) > 0 {
		if refs, err := json.Marshal(out.Images); err == nil {
			w.Header().Set("X-WatchPoint-Images", string(refs))
		}
	}
	w.Header().Set("X-WatchPoint-Errors", strconv.Itoa(len(out.Errors)))
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Data)
}

func (s *Server) handleText(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	text := string(data)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		text = req.Text
	}
	if s.opts.Node == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("preview node unavailable"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": s.opts.Node.Scout(text)})
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	if s.opts.Node == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("preview node unavailable"))
		return
	}
	if err := s.opts.Node.RestoreWindow(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

var errUnknownAction = errors.New("unknown window action")

func (s *Server) handleWindowAction(w http.ResponseWriter, r *http.Request) {
	if s.opts.Window == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("window manager unavailable"))
		return
	}
	action := mux.Vars(r)["action"]
	q := r.URL.Query()
	win := s.opts.Window

	switch action {
	case "minimize", "close":
		win.RequestClose()
	case "fullscreen":
		win.ToggleFullscreen()
	case "reset":
		win.ResetView()
	case "zoom-in":
		win.ZoomIn()
	case "zoom-out":
		win.ZoomOut()
	case "one-to-one":
		win.OneToOne()
	case "toolbar":
		win.ToggleToolbar()
	case "panel":
		win.TogglePanel()
	case "zoom":
		f, err := strconv.ParseFloat(q.Get("factor"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("factor must be a number"))
			return
		}
		win.SetZoom(f)
	case "pan":
		dx, errX := strconv.ParseFloat(q.Get("dx"), 64)
		dy, errY := strconv.ParseFloat(q.Get("dy"), 64)
		if errX != nil || errY != nil {
			writeError(w, http.StatusBadRequest, errors.New("dx and dy must be numbers"))
			return
		}
		win.Pan(dx, dy)
	case "save":
		path, status, err := s.savePath(q.Get("path"))
		if err != nil {
			writeError(w, status, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), saveTimeout)
		defer cancel()
		if err := win.SaveCurrentImage(ctx, path); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "action": action, "path": path})
		return
	case "copy":
		ctx, cancel := context.WithTimeout(r.Context(), saveTimeout)
		defer cancel()
		if err := win.CopyToClipboard(ctx); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
	default:
		writeError(w, http.StatusNotFound, errUnknownAction)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "action": action})
}

var saveExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".bmp": true}

// savePath resolves name inside the save directory. Absolute names, names
// leaving the directory and non-image extensions are refused.
func (s *Server) savePath(name string) (string, int, error) {
	if s.opts.SaveDir == "" {
		return "", http.StatusServiceUnavailable, errors.New("saving is disabled")
	}
	if name == "" {
		return "", http.StatusBadRequest, errors.New("path is required")
	}
	if !filepath.IsLocal(name) {
		return "", http.StatusBadRequest, errors.New("path must be relative to the save directory")
	}
	if !saveExtensions[strings.ToLower(filepath.Ext(name))] {
		return "", http.StatusBadRequest, errors.New("path must end in .png, .jpg, .jpeg or .bmp")
	}
	full := filepath.Join(s.opts.SaveDir, name)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", http.StatusInternalServerError, err
	}
	return full, http.StatusOK, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payload.ErrNoImage):
		return http.StatusConflict
	case errors.Is(err, window.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// Status is the document served on the status endpoint.
type Status struct {
	Window    window.Status `json:"window"`
	Node      preview.Stats `json:"node"`
	DebugMode bool          `json:"debug_mode"`
}

func (s *Server) status() Status {
	var st Status
	if s.opts.Window != nil {
		st.Window = s.opts.Window.Status()
	}
	if s.opts.Node != nil {
		st.Node = s.opts.Node.Stats()
	}
	if s.opts.Debug != nil {
		st.DebugMode = s.opts.Debug.Enabled()
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleMonitors(w http.ResponseWriter, r *http.Request) {
	mons := []monitor.Descriptor{}
	if s.opts.Monitors != nil {
		mons = append(mons, s.opts.Monitors.List()...)
	}
	writeJSON(w, http.StatusOK, mons)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.Settings == nil {
		writeJSON(w, http.StatusOK, settings.Defaults())
		return
	}
	writeJSON(w, http.StatusOK, s.opts.Settings.Get())
}

// handleUpdateSettings merges the request into the current record, so a
// partial document only changes the keys it names.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if s.opts.Settings == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("settings unavailable"))
		return
	}
	rec := s.opts.Settings.Get()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes)).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rec, err := s.opts.Settings.Replace(rec)
	if err != nil {
		w.Header().Set("X-WatchPoint-Warning", "settings not persisted: "+err.Error())
	}
	if s.opts.Window != nil {
		s.opts.Window.ApplySettings(rec)
	}
	writeJSON(w, http.StatusOK, rec)
}

type debugRequest struct {
	Enabled *bool  `json:"enabled"`
	Dump    bool   `json:"dump"`
	Reason  string `json:"reason"`
}

type debugResponse struct {
	DebugMode bool   `json:"debug_mode"`
	DumpPath  string `json:"dump_path,omitempty"`
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	if s.opts.Debug == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("debug unavailable"))
		return
	}
	var req debugRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTextBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Enabled != nil {
		if err := s.opts.Debug.SetEnabled(*req.Enabled); err != nil {
			log.Printf("api: %v", err)
		}
	}
	resp := debugResponse{}
	if req.Dump {
		reason := req.Reason
		if reason == "" {
			reason = "manual"
		}
		path, err := s.opts.Debug.Dump(reason, s.status())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.DumpPath = path
	}
	resp.DebugMode = s.opts.Debug.Enabled()
	writeJSON(w, http.StatusOK, resp)
}

// handleView serves a stored preview image, following the host's
// /view?filename=&type=temp convention.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if t := q.Get("type"); t != "" && t != "temp" {
		writeError(w, http.StatusBadRequest, errors.New("only temp images are served"))
		return
	}
	if s.opts.Files == nil {
		writeError(w, http.StatusNotFound, errors.New("no preview store"))
		return
	}
	path, err := s.opts.Files.Path(q.Get("filename"))
	if err != nil {
		if errors.Is(err, overlay.ErrBadName) {
			writeError(w, http.StatusBadRequest, err)
		} else {
			writeError(w, http.StatusNotFound, err)
		}
		return
	}
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, errors.New("preview not found"))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.ServeFile(w, r, path)
}

func queryBool(v string, def bool) bool {
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
