package preview

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"sync"
	"testing"

	"watchpoint/src/overlay"
	"watchpoint/src/payload"
	"watchpoint/src/settings"
)

type fakeWindow struct {
	mu       sync.Mutex
	created  []settings.Record
	images   []*payload.Payload
	texts    []string
	restores int
	seq      uint64
	panicOn  string
}

func (w *fakeWindow) EnsureCreated(rec settings.Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.panicOn == "create" {
		panic("boom")
	}
	w.created = append(w.created, rec)
}

func (w *fakeWindow) UpdateImage(p *payload.Payload) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.images = append(w.images, p)
}

func (w *fakeWindow) SetText(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.texts = append(w.texts, text)
}

func (w *fakeWindow) Restore() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.panicOn == "restore" {
		panic("boom")
	}
	w.restores++
}

func (w *fakeWindow) NextSeq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq++
	return w.seq
}

type fakeChannel struct {
	nodes []string
	err   error
}

func (c *fakeChannel) Emit(nodeID string, images []image.Image) ([]overlay.ImageRef, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.nodes = append(c.nodes, nodeID)
	return []overlay.ImageRef{{Filename: "watchpoint_1_0.png", Type: "temp"}}, nil
}

type fixedSettings settings.Record

func (s fixedSettings) Get() settings.Record { return settings.Record(s) }

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 6))
}

func TestProcessPassThrough(t *testing.T) {
	img := testImage()
	data := []byte("not an image")
	tests := []struct {
		name string
		in   Input
	}{
		{"both off", Input{Image: img, Data: data}},
		{"monitor only", Input{Image: img, Data: data, MonitorPreview: true}},
		{"floating only", Input{Image: img, Data: data, FloatingPreview: true}},
		{"both on", Input{Image: img, Data: data, MonitorPreview: true, FloatingPreview: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := New(Options{Window: &fakeWindow{}, Channel: &fakeChannel{}})
			out := n.Process(context.Background(), tt.in)
			if out.Image != img || !bytes.Equal(out.Data, data) {
				t.Error("Expected input returned unchanged")
			}
		})
	}
}

func TestProcessMonitorPreview(t *testing.T) {
	w := &fakeWindow{}
	rec := settings.Defaults()
	rec.MonitorIndex = 1
	n := New(Options{Window: w, Settings: fixedSettings(rec)})

	out := n.Process(context.Background(), Input{Image: testImage(), MonitorPreview: true, PanelText: "a cat", NodeID: "9"})
	if len(out.Errors) != 0 {
		t.Fatalf("Unexpected errors: %v", out.Errors)
	}
	if len(w.created) != 1 || w.created[0].MonitorIndex != 1 {
		t.Errorf("Expected creation with monitor 1, got %+v", w.created)
	}
	if len(w.images) != 1 || w.images[0].NodeID != "9" || w.images[0].Seq != 1 {
		t.Errorf("Unexpected images %+v", w.images)
	}
	if len(w.texts) != 1 || w.texts[0] != "a cat" {
		t.Errorf("Unexpected texts %v", w.texts)
	}
}

func TestProcessMonitorOverride(t *testing.T) {
	w := &fakeWindow{}
	idx := 2
	n := New(Options{Window: w})
	n.Process(context.Background(), Input{Image: testImage(), MonitorPreview: true, Monitor: &idx})
	if w.created[0].MonitorIndex != 2 {
		t.Errorf("Expected monitor override 2, got %d", w.created[0].MonitorIndex)
	}
}

func TestMonitorPreviewOffLeavesWindowAlone(t *testing.T) {
	w := &fakeWindow{}
	n := New(Options{Window: w, Channel: &fakeChannel{}})
	n.Process(context.Background(), Input{Image: testImage(), MonitorPreview: true})

	for i := 0; i < 3; i++ {
		n.Process(context.Background(), Input{Image: testImage(), MonitorPreview: false, FloatingPreview: true, PanelText: "x"})
	}
	if len(w.images) != 1 || len(w.created) != 1 || len(w.texts) != 0 {
		t.Errorf("Expected window untouched, got %d images %d creates %d texts", len(w.images), len(w.created), len(w.texts))
	}
	if s := n.Stats(); s.Suppressed != 3 {
		t.Errorf("Expected 3 suppressed calls, got %d", s.Suppressed)
	}

	n.Process(context.Background(), Input{Image: testImage(), MonitorPreview: true})
	if len(w.images) != 2 {
		t.Error("Expected updates to resume")
	}
}

func TestProcessDecodesData(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	w := &fakeWindow{}
	n := New(Options{Window: w})
	out := n.Process(context.Background(), Input{Data: buf.Bytes(), MonitorPreview: true})
	if len(out.Errors) != 0 {
		t.Fatalf("Unexpected errors: %v", out.Errors)
	}
	if len(w.images) != 1 || w.images[0].Size() != image.Pt(8, 6) {
		t.Errorf("Expected decoded 8x6 image, got %+v", w.images)
	}
}

func TestProcessUndecodableStillPassesThrough(t *testing.T) {
	w := &fakeWindow{}
	n := New(Options{Window: w})
	data := []byte("garbage")
	out := n.Process(context.Background(), Input{Data: data, MonitorPreview: true, PanelText: "kept"})
	if !bytes.Equal(out.Data, data) {
		t.Error("Expected pass-through data")
	}
	if len(out.Errors) != 1 {
		t.Errorf("Expected one decode error, got %v", out.Errors)
	}
	if len(w.images) != 0 || len(w.texts) != 1 {
		t.Errorf("Expected text forwarded without image, got %d images %d texts", len(w.images), len(w.texts))
	}
}

func TestProcessOversizedImageKeepsDisplay(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	data := buf.Bytes()
	binary.BigEndian.PutUint32(data[16:20], 40000)
	binary.BigEndian.PutUint32(data[20:24], 40000)
	binary.BigEndian.PutUint32(data[29:33], crc32.ChecksumIEEE(data[12:29]))

	w := &fakeWindow{}
	out := New(Options{Window: w}).Process(context.Background(), Input{Data: data, MonitorPreview: true})
	if !bytes.Equal(out.Data, data) {
		t.Error("Expected pass-through data")
	}
	if len(out.Errors) != 1 || !errors.Is(out.Errors[0], payload.ErrTooLarge) {
		t.Errorf("Expected ErrTooLarge, got %v", out.Errors)
	}
	if len(w.images) != 0 {
		t.Errorf("Expected no image update, got %d", len(w.images))
	}
}

func TestSideEffectFailuresAreContained(t *testing.T) {
	img := testImage()
	w := &fakeWindow{panicOn: "create"}
	ch := &fakeChannel{err: errors.New("disk full")}
	n := New(Options{Window: w, Channel: ch})

	out := n.Process(context.Background(), Input{Image: img, MonitorPreview: true, FloatingPreview: true})
	if out.Image != img {
		t.Error("Expected pass-through despite failures")
	}
	if len(out.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %v", out.Errors)
	}
	if s := n.Stats(); s.Errors != 2 || s.Calls != 1 {
		t.Errorf("Unexpected stats %+v", s)
	}
}

func TestFloatingPreview(t *testing.T) {
	ch := &fakeChannel{}
	n := New(Options{Channel: ch})
	out := n.Process(context.Background(), Input{Image: testImage(), FloatingPreview: true, NodeID: "12"})
	if len(out.Images) != 1 || len(ch.nodes) != 1 || ch.nodes[0] != "12" {
		t.Errorf("Expected one emitted image for node 12, got %+v", out.Images)
	}
	if n.Stats().Floating != 1 {
		t.Error("Expected floating counter incremented")
	}
}

func TestCancelledContext(t *testing.T) {
	w := &fakeWindow{}
	n := New(Options{Window: w})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	img := testImage()
	out := n.Process(ctx, Input{Image: img, MonitorPreview: true})
	if out.Image != img || len(w.created) != 0 || len(out.Errors) != 1 {
		t.Errorf("Expected pass-through without side effects, got %+v", out)
	}
}

func TestAfterProcessHook(t *testing.T) {
	calls := 0
	n := New(Options{AfterProcess: func(in Input, out Output) {
		calls++
		panic("hook")
	}})
	n.Process(context.Background(), Input{})
	if calls != 1 {
		t.Errorf("Expected hook called once, got %d", calls)
	}
}

func TestScoutAndRestore(t *testing.T) {
	w := &fakeWindow{}
	n := New(Options{Window: w})
	if got := n.Scout("signal"); got != "signal" {
		t.Errorf("Expected text returned, got %q", got)
	}
	if len(w.texts) != 1 {
		t.Error("Expected text forwarded")
	}
	if err := n.RestoreWindow(); err != nil || w.restores != 1 {
		t.Errorf("Expected restore, err=%v", err)
	}

	w.panicOn = "restore"
	if err := n.RestoreWindow(); err == nil {
		t.Error("Expected error from panicking restore")
	}
	if err := New(Options{}).RestoreWindow(); err == nil {
		t.Error("Expected error without a window")
	}
}
