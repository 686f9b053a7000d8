package filepicker

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iNomNom/FilePicker/permissions"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// staticAuthority grants or denies every capability outright.
type staticAuthority struct {
	grant bool
}

func (a staticAuthority) Has(ctx context.Context, c permissions.Capability) bool { return a.grant }

func (a staticAuthority) Request(ctx context.Context, caps []permissions.Capability) (map[permissions.Capability]bool, error) {
	decisions := make(map[permissions.Capability]bool, len(caps))
	for _, c := range caps {
		decisions[c] = a.grant
	}
	return decisions, nil
}

func (a staticAuthority) CanExplain(ctx context.Context, c permissions.Capability) bool {
	return true
}

func (a staticAuthority) OpenSettings(ctx context.Context) error { return nil }

// fakeDocuments answers the document browser with a fixed selection and
// records what it was asked for.
type fakeDocuments struct {
	mu          sync.Mutex
	selection   []Handle
	err         error
	calls       int
	gotTypes    []string
	gotMultiple bool
}

func (d *fakeDocuments) Select(ctx context.Context, typeFilters []string, multiple bool) ([]Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.gotTypes = typeFilters
	d.gotMultiple = multiple
	return d.selection, d.err
}

type fakeGallery struct {
	mu        sync.Mutex
	selection []Handle
	err       error
	gotFilter GalleryFilter
	gotLimit  int
}

func (g *fakeGallery) Select(ctx context.Context, filter GalleryFilter, limit int) ([]Handle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gotFilter = filter
	g.gotLimit = limit
	return g.selection, g.err
}

// cameraFunc adapts a function to CameraPort.
type cameraFunc func(ctx context.Context, destPath string) (bool, error)

func (f cameraFunc) Capture(ctx context.Context, destPath string) (bool, error) {
	return f(ctx, destPath)
}

func captureJPEG(w, h int) cameraFunc {
	return func(ctx context.Context, destPath string) (bool, error) {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, nil); err != nil {
			return false, err
		}
		return true, os.WriteFile(destPath, buf.Bytes(), 0o644)
	}
}

// fakeCache creates real files under a test directory and records every
// create and remove.
type fakeCache struct {
	dir string

	mu      sync.Mutex
	created []string
	removed []string
}

func (c *fakeCache) CreateTemp(suffix string) (string, error) {
	f, err := os.CreateTemp(c.dir, "pick_*"+suffix)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		return "", err
	}
	c.mu.Lock()
	c.created = append(c.created, path)
	c.mu.Unlock()
	return path, nil
}

func (c *fakeCache) Remove(path string) bool {
	c.mu.Lock()
	c.removed = append(c.removed, path)
	c.mu.Unlock()
	err := os.Remove(path)
	return err == nil || os.IsNotExist(err)
}

func (c *fakeCache) createdPaths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.created))
	copy(out, c.created)
	return out
}

// fakeResolver resolves every handle unless told otherwise. With statCheck it
// refuses handles whose file no longer exists.
type fakeResolver struct {
	failing   map[Handle]bool
	statCheck bool
}

func (r *fakeResolver) Resolve(ctx context.Context, h Handle) (Metadata, error) {
	if r.statCheck {
		if _, err := os.Stat(string(h)); err != nil {
			return Metadata{Size: SizeUnknown}, err
		}
	}
	if r.failing[h] {
		return Metadata{Size: SizeUnknown}, errors.New("unresolvable handle")
	}
	return Metadata{Name: filepath.Base(string(h)), Size: 42, TypeTag: TypeTextPlain}, nil
}

// fakeSheet replays a scripted sequence of choices, answering dismissed once
// the script runs out.
type fakeSheet struct {
	mu        sync.Mutex
	choices   []SourceChoice
	next      int
	dismissed atomic.Int32
}

func (s *fakeSheet) Present(ctx context.Context, opts SheetOptions) (SourceChoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.choices) {
		return ChoiceDismissed, nil
	}
	c := s.choices[s.next]
	s.next++
	return c, nil
}

func (s *fakeSheet) Dismiss() { s.dismissed.Add(1) }

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result delivered")
		return nil
	}
}

func collect() (func(Result), <-chan Result) {
	ch := make(chan Result, 4)
	return func(r Result) { ch <- r }, ch
}

func TestNewRequiresResolver(t *testing.T) {
	_, err := New(Ports{}, testLogger())
	require.Error(t, err)
}

func TestLaunchValidation(t *testing.T) {
	p, err := New(Ports{Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	noop := func(Result) {}

	_, err = p.ShowSheet(context.Background(), NewConfig(), noop)
	assert.ErrorIs(t, err, ErrInvalidConfig, "sheet without a sheet port")

	_, err = p.LaunchCamera(context.Background(), SingleVideo(), noop)
	assert.ErrorIs(t, err, ErrInvalidConfig, "camera without image types")

	_, err = p.LaunchCamera(context.Background(), SingleImage(false), noop)
	assert.ErrorIs(t, err, ErrInvalidConfig, "camera without camera/cache/authority ports")

	_, err = p.LaunchGallery(context.Background(), SinglePDF(), noop)
	assert.ErrorIs(t, err, ErrInvalidConfig, "gallery without media types")

	_, err = p.LaunchFiles(context.Background(), SingleImage(false), noop)
	assert.ErrorIs(t, err, ErrInvalidConfig, "files when browsing is not allowed")

	_, err = p.LaunchFiles(context.Background(), SinglePDF(), nil)
	assert.ErrorIs(t, err, ErrInvalidConfig, "nil result callback")
}

func TestLaunchFilesSuccess(t *testing.T) {
	docs := &fakeDocuments{selection: []Handle{"a.pdf", "b.pdf"}}
	p, err := New(Ports{Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	req, err := p.LaunchFiles(context.Background(), MultiplePDFs(0), onResult)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID())

	r := waitResult(t, ch)
	success, ok := r.(Success)
	require.True(t, ok, "got %T", r)
	require.Len(t, success.Files, 2)
	assert.Equal(t, Handle("a.pdf"), success.Files[0].Handle)
	assert.Equal(t, "a.pdf", success.Files[0].Name)
	assert.Equal(t, "PDF", success.Files[0].Extension)
	assert.Equal(t, []string{TypePDF}, docs.gotTypes)
	assert.True(t, docs.gotMultiple)
}

func TestLaunchFilesTruncatesOversizedSelection(t *testing.T) {
	docs := &fakeDocuments{selection: []Handle{"1.txt", "2.txt", "3.txt", "4.txt", "5.txt"}}
	p, err := New(Ports{Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchFiles(context.Background(), MultipleDocuments(2, TypeTextPlain), onResult)
	require.NoError(t, err)

	success, ok := waitResult(t, ch).(Success)
	require.True(t, ok)
	require.Len(t, success.Files, 2)
	assert.Equal(t, Handle("1.txt"), success.Files[0].Handle)
	assert.Equal(t, Handle("2.txt"), success.Files[1].Handle)
}

func TestLaunchFilesEmptySelectionCancels(t *testing.T) {
	docs := &fakeDocuments{}
	p, err := New(Ports{Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchFiles(context.Background(), SinglePDF(), onResult)
	require.NoError(t, err)

	assert.IsType(t, Cancelled{}, waitResult(t, ch))
}

func TestLaunchFilesPortFailure(t *testing.T) {
	docs := &fakeDocuments{err: errors.New("browser crashed")}
	p, err := New(Ports{Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchFiles(context.Background(), SinglePDF(), onResult)
	require.NoError(t, err)

	failure, ok := waitResult(t, ch).(Failure)
	require.True(t, ok)
	assert.Equal(t, SourceFailure, failure.Kind)
}

func TestLaunchFilesNoUsableResult(t *testing.T) {
	docs := &fakeDocuments{selection: []Handle{"x", "y"}}
	resolver := &fakeResolver{failing: map[Handle]bool{"x": true, "y": true}}
	p, err := New(Ports{Documents: docs, Resolver: resolver}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchFiles(context.Background(), MultiplePDFs(0), onResult)
	require.NoError(t, err)

	failure, ok := waitResult(t, ch).(Failure)
	require.True(t, ok)
	assert.Equal(t, NoUsableResult, failure.Kind)
}

func TestLaunchFilesPartialResolveKeepsOrder(t *testing.T) {
	docs := &fakeDocuments{selection: []Handle{"a", "b", "c"}}
	resolver := &fakeResolver{failing: map[Handle]bool{"b": true}}
	p, err := New(Ports{Documents: docs, Resolver: resolver}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchFiles(context.Background(), MultiplePDFs(0), onResult)
	require.NoError(t, err)

	success, ok := waitResult(t, ch).(Success)
	require.True(t, ok)
	require.Len(t, success.Files, 2)
	assert.Equal(t, Handle("a"), success.Files[0].Handle)
	assert.Equal(t, Handle("c"), success.Files[1].Handle)
}

func TestLaunchGalleryUsesFilterAndLimit(t *testing.T) {
	gallery := &fakeGallery{selection: []Handle{"clip.mp4"}}
	p, err := New(Ports{Gallery: gallery, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchGallery(context.Background(), SingleVideo(), onResult)
	require.NoError(t, err)

	success, ok := waitResult(t, ch).(Success)
	require.True(t, ok)
	assert.Len(t, success.Files, 1)

	gallery.mu.Lock()
	defer gallery.mu.Unlock()
	assert.Equal(t, GalleryFilter{Videos: true}, gallery.gotFilter)
	assert.Equal(t, 1, gallery.gotLimit)
}

func TestLaunchGallerySingleSpecificTypeNarrowsFilter(t *testing.T) {
	gallery := &fakeGallery{selection: []Handle{"pic.png"}}
	p, err := New(Ports{Gallery: gallery, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchGallery(context.Background(), NewConfig(TypeImagePNG), onResult)
	require.NoError(t, err)
	waitResult(t, ch)

	gallery.mu.Lock()
	defer gallery.mu.Unlock()
	assert.Equal(t, TypeImagePNG, gallery.gotFilter.SingleType)
}

func TestLaunchCameraHandsOffCapture(t *testing.T) {
	cache := &fakeCache{dir: t.TempDir()}
	p, err := New(Ports{
		Camera:    captureJPEG(64, 48),
		Resolver:  &fakeResolver{},
		Cache:     cache,
		Authority: staticAuthority{grant: true},
	}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchCamera(context.Background(), SingleImage(false), onResult)
	require.NoError(t, err)

	success, ok := waitResult(t, ch).(Success)
	require.True(t, ok)
	require.Len(t, success.Files, 1)

	// The capture is handed off to the caller, not cleaned up.
	created := cache.createdPaths()
	require.Len(t, created, 1)
	assert.Equal(t, Handle(created[0]), success.Files[0].Handle)
	_, statErr := os.Stat(created[0])
	assert.NoError(t, statErr)
}

func TestLaunchCameraCompressesAndDeletesOriginal(t *testing.T) {
	cache := &fakeCache{dir: t.TempDir()}
	p, err := New(Ports{
		Camera:    captureJPEG(2200, 1200),
		Resolver:  &fakeResolver{},
		Cache:     cache,
		Authority: staticAuthority{grant: true},
	}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchCamera(context.Background(), SingleImage(true), onResult)
	require.NoError(t, err)

	success, ok := waitResult(t, ch).(Success)
	require.True(t, ok)
	require.Len(t, success.Files, 1)

	created := cache.createdPaths()
	require.Len(t, created, 2)
	capture, compressed := created[0], created[1]

	assert.Equal(t, Handle(compressed), success.Files[0].Handle)
	_, statErr := os.Stat(capture)
	assert.True(t, os.IsNotExist(statErr), "original capture must be deleted after compression")
	_, statErr = os.Stat(compressed)
	assert.NoError(t, statErr)
}

func TestLaunchCameraAbandonedCaptureCancels(t *testing.T) {
	cache := &fakeCache{dir: t.TempDir()}
	abandoned := cameraFunc(func(ctx context.Context, destPath string) (bool, error) {
		return false, nil
	})
	p, err := New(Ports{
		Camera:    abandoned,
		Resolver:  &fakeResolver{},
		Cache:     cache,
		Authority: staticAuthority{grant: true},
	}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchCamera(context.Background(), SingleImage(false), onResult)
	require.NoError(t, err)

	assert.IsType(t, Cancelled{}, waitResult(t, ch))
	created := cache.createdPaths()
	require.Len(t, created, 1)
	_, statErr := os.Stat(created[0])
	assert.True(t, os.IsNotExist(statErr), "abandoned capture file must be deleted")
}

func TestLaunchCameraPermissionDenied(t *testing.T) {
	cache := &fakeCache{dir: t.TempDir()}
	var captures atomic.Int32
	camera := cameraFunc(func(ctx context.Context, destPath string) (bool, error) {
		captures.Add(1)
		return true, nil
	})
	p, err := New(Ports{
		Camera:    camera,
		Resolver:  &fakeResolver{},
		Cache:     cache,
		Authority: staticAuthority{grant: false},
	}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.LaunchCamera(context.Background(), SingleImage(false), onResult)
	require.NoError(t, err)

	failure, ok := waitResult(t, ch).(Failure)
	require.True(t, ok)
	assert.Equal(t, PermissionDenied, failure.Kind)
	assert.Equal(t, int32(0), captures.Load(), "camera must not launch without the capability")
}

func TestCancelRacingLateCaptureDeliversExactlyOnce(t *testing.T) {
	cache := &fakeCache{dir: t.TempDir()}
	started := make(chan struct{})
	release := make(chan struct{})
	camera := cameraFunc(func(ctx context.Context, destPath string) (bool, error) {
		if err := os.WriteFile(destPath, []byte("capture"), 0o644); err != nil {
			return false, err
		}
		close(started)
		<-release
		return true, nil
	})
	p, err := New(Ports{
		Camera:    camera,
		Resolver:  &fakeResolver{statCheck: true},
		Cache:     cache,
		Authority: staticAuthority{grant: true},
	}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	req, err := p.LaunchCamera(context.Background(), SingleImage(false), onResult)
	require.NoError(t, err)

	<-started
	req.Cancel()
	close(release)

	assert.IsType(t, Cancelled{}, waitResult(t, ch))

	// The late capture answer must be discarded, and the transient file
	// deleted.
	select {
	case r := <-ch:
		t.Fatalf("second result delivered: %T", r)
	case <-time.After(200 * time.Millisecond):
	}
	created := cache.createdPaths()
	require.Len(t, created, 1)
	assert.Eventually(t, func() bool {
		_, statErr := os.Stat(created[0])
		return os.IsNotExist(statErr)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCancelIsIdempotent(t *testing.T) {
	docs := &fakeDocuments{selection: []Handle{"a.pdf"}}
	p, err := New(Ports{Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	req, err := p.LaunchFiles(context.Background(), SinglePDF(), onResult)
	require.NoError(t, err)

	waitResult(t, ch)
	req.Cancel()
	req.Cancel()

	select {
	case r := <-ch:
		t.Fatalf("cancel after completion delivered %T", r)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestPreCancelledContextDeliversCancelled(t *testing.T) {
	docs := &fakeDocuments{selection: []Handle{"a.pdf"}}
	p, err := New(Ports{Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	onResult, ch := collect()
	_, err = p.LaunchFiles(ctx, SinglePDF(), onResult)
	require.NoError(t, err)

	assert.IsType(t, Cancelled{}, waitResult(t, ch))
}

func TestContextCancellationDuringDispatchDeliversCancelled(t *testing.T) {
	// A port failing because the caller's context was cancelled is a
	// cancellation, not a source failure.
	p, err := New(Ports{Documents: &blockingDocuments{}, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	onResult, ch := collect()
	_, err = p.LaunchFiles(ctx, SinglePDF(), onResult)
	require.NoError(t, err)

	cancel()
	assert.IsType(t, Cancelled{}, waitResult(t, ch))
}

func TestContextCancellationDuringGateDeliversCancelled(t *testing.T) {
	cache := &fakeCache{dir: t.TempDir()}
	p, err := New(Ports{
		Camera:    captureJPEG(64, 48),
		Resolver:  &fakeResolver{},
		Cache:     cache,
		Authority: blockingAuthority{},
	}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	onResult, ch := collect()
	_, err = p.LaunchCamera(ctx, SingleImage(false), onResult)
	require.NoError(t, err)

	cancel()
	assert.IsType(t, Cancelled{}, waitResult(t, ch))
}

// blockingDocuments waits for context cancellation before answering, like a
// system picker that only returns once its surface is torn down.
type blockingDocuments struct{}

func (d *blockingDocuments) Select(ctx context.Context, typeFilters []string, multiple bool) ([]Handle, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// blockingAuthority never answers a capability prompt until the context ends.
type blockingAuthority struct{}

func (blockingAuthority) Has(ctx context.Context, c permissions.Capability) bool { return false }

func (blockingAuthority) Request(ctx context.Context, caps []permissions.Capability) (map[permissions.Capability]bool, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingAuthority) CanExplain(ctx context.Context, c permissions.Capability) bool { return true }
func (blockingAuthority) OpenSettings(ctx context.Context) error                        { return nil }

func TestSheetChoiceRunsSource(t *testing.T) {
	sheet := &fakeSheet{choices: []SourceChoice{ChoiceFiles}}
	docs := &fakeDocuments{selection: []Handle{"a.pdf"}}
	p, err := New(Ports{Sheet: sheet, Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.ShowSheet(context.Background(), MultiplePDFs(0), onResult)
	require.NoError(t, err)

	success, ok := waitResult(t, ch).(Success)
	require.True(t, ok)
	assert.Len(t, success.Files, 1)
	assert.Eventually(t, func() bool { return sheet.dismissed.Load() > 0 },
		2*time.Second, 10*time.Millisecond, "sheet must be dismissed on completion")
}

func TestSheetDismissalCancels(t *testing.T) {
	sheet := &fakeSheet{}
	p, err := New(Ports{Sheet: sheet, Documents: &fakeDocuments{}, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.ShowSheet(context.Background(), MultiplePDFs(0), onResult)
	require.NoError(t, err)

	assert.IsType(t, Cancelled{}, waitResult(t, ch))
}

func TestSheetReentryAfterAbandonedPicker(t *testing.T) {
	// An abandoned system picker returns the user to the open sheet; the
	// request only terminates when the sheet itself is dismissed.
	sheet := &fakeSheet{choices: []SourceChoice{ChoiceFiles, ChoiceDismissed}}
	docs := &fakeDocuments{}
	p, err := New(Ports{Sheet: sheet, Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.ShowSheet(context.Background(), MultiplePDFs(0), onResult)
	require.NoError(t, err)

	assert.IsType(t, Cancelled{}, waitResult(t, ch))
	docs.mu.Lock()
	defer docs.mu.Unlock()
	assert.Equal(t, 1, docs.calls)
}

func TestSheetRapidRepeatChoiceIsDebounced(t *testing.T) {
	// Two quick source choices in a row: the second dispatch falls inside the
	// cool-down window and is suppressed.
	sheet := &fakeSheet{choices: []SourceChoice{ChoiceFiles, ChoiceFiles, ChoiceDismissed}}
	docs := &fakeDocuments{}
	p, err := New(Ports{Sheet: sheet, Documents: docs, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	onResult, ch := collect()
	_, err = p.ShowSheet(context.Background(), MultiplePDFs(0), onResult)
	require.NoError(t, err)

	assert.IsType(t, Cancelled{}, waitResult(t, ch))
	docs.mu.Lock()
	defer docs.mu.Unlock()
	assert.Equal(t, 1, docs.calls, "second rapid dispatch must be suppressed")
}

func TestConcurrentRequestsStayIsolated(t *testing.T) {
	docsA := &fakeDocuments{selection: []Handle{"a.pdf"}}
	p, err := New(Ports{Documents: docsA, Resolver: &fakeResolver{}}, testLogger())
	require.NoError(t, err)
	defer p.Close()

	const n = 8
	results := make(chan Result, n)
	ids := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		req, err := p.LaunchFiles(context.Background(), SinglePDF(), func(r Result) { results <- r })
		require.NoError(t, err)
		ids[req.ID()] = struct{}{}
	}
	assert.Len(t, ids, n, "request ids must be unique")

	for i := 0; i < n; i++ {
		select {
		case r := <-results:
			assert.IsType(t, Success{}, r)
		case <-time.After(2 * time.Second):
			t.Fatal("missing result")
		}
	}
}
