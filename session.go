package filepicker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iNomNom/FilePicker/internal/debounce"
	"github.com/iNomNom/FilePicker/internal/imaging"
	"github.com/iNomNom/FilePicker/permissions"
)

type acquisitionSource int

const (
	sourceCamera acquisitionSource = iota
	sourceGallery
	sourceFiles
)

// session owns one acquisition request from dispatch to terminal delivery.
// It runs on its own goroutine and is internally sequential: a request never
// has two outstanding external dispatches at once. finish is the single
// termination point; the one-shot flag makes racing completion triggers
// (cancellation vs. a late external answer) safe.
type session struct {
	id     string
	cfg    Config
	mode   LaunchMode
	picker *Picker
	guard  *debounce.Guard
	cancel context.CancelFunc
	log    *slog.Logger

	delivered atomic.Bool

	mu        sync.Mutex
	transient map[string]struct{}
}

func newSession(id string, cfg Config, mode LaunchMode, p *Picker, cancel context.CancelFunc) *session {
	return &session{
		id:        id,
		cfg:       cfg,
		mode:      mode,
		picker:    p,
		guard:     debounce.NewGuard(debounce.DefaultWindow),
		cancel:    cancel,
		log:       p.log.With("requestId", id),
		transient: make(map[string]struct{}),
	}
}

func (s *session) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("acquisition session panicked", "panic", r)
			s.finish(Failure{Kind: SourceFailure, Err: fmt.Errorf("internal failure: %v", r)})
		}
	}()

	switch s.mode {
	case ModeSheet:
		s.runSheet(ctx)
	case ModeCameraOnly:
		s.runDirect(ctx, sourceCamera)
	case ModeGalleryOnly:
		s.runDirect(ctx, sourceGallery)
	case ModeFilesOnly:
		s.runDirect(ctx, sourceFiles)
	}
}

// runSheet loops on the choice surface: an abandoned system picker returns
// the user to the open sheet instead of terminating the request.
func (s *session) runSheet(ctx context.Context) {
	opts := s.sheetOptions()
	for {
		if ctx.Err() != nil {
			s.finish(Cancelled{})
			return
		}
		choice, err := s.picker.ports.Sheet.Present(ctx, opts)
		if err != nil {
			s.fail(ctx, SourceFailure, fmt.Errorf("choice surface failed: %w", err))
			return
		}

		var src acquisitionSource
		switch choice {
		case ChoiceCamera:
			src = sourceCamera
		case ChoiceGallery:
			src = sourceGallery
		case ChoiceFiles:
			src = sourceFiles
		default:
			s.finish(Cancelled{})
			return
		}
		if s.attemptSource(ctx, src) {
			return
		}
	}
}

func (s *session) runDirect(ctx context.Context, src acquisitionSource) {
	if !s.attemptSource(ctx, src) {
		s.finish(Cancelled{})
	}
}

// attemptSource runs permission gating, guarded dispatch, processing and
// normalization for one source. It reports whether the request reached a
// terminal state; false means the external picker was abandoned and a sheet
// may re-present.
func (s *session) attemptSource(ctx context.Context, src acquisitionSource) bool {
	if ctx.Err() != nil {
		s.finish(Cancelled{})
		return true
	}
	if caps := capabilitiesFor(src); len(caps) > 0 {
		if s.picker.gate == nil {
			s.finish(Failure{Kind: PermissionDenied, Err: errors.New("no capability authority configured")})
			return true
		}
		outcome := s.checkCapabilities(ctx, caps)
		if outcome != permissions.OutcomeGranted {
			s.fail(ctx, PermissionDenied, fmt.Errorf("required capabilities denied: %v", caps))
			return true
		}
	}

	if !s.guard.TryProceed(time.Now()) {
		s.log.Debug("dispatch suppressed, too soon since last launch")
		return false
	}

	switch src {
	case sourceCamera:
		return s.dispatchCamera(ctx)
	case sourceGallery:
		return s.dispatchGallery(ctx)
	default:
		return s.dispatchFiles(ctx)
	}
}

func capabilitiesFor(src acquisitionSource) []permissions.Capability {
	if src == sourceCamera {
		return []permissions.Capability{CapabilityCamera}
	}
	return nil
}

// checkCapabilities suspends the session until the gate resolves. Settings
// escalation is always offered; a cancelled context resolves to denied and
// the late gate answer is absorbed by the buffered channel.
func (s *session) checkCapabilities(ctx context.Context, caps []permissions.Capability) permissions.Outcome {
	ch := make(chan permissions.Outcome, 1)
	s.picker.gate.Check(ctx, caps, true, func(o permissions.Outcome) {
		ch <- o
	})
	select {
	case o := <-ch:
		return o
	case <-ctx.Done():
		return permissions.OutcomeDenied
	}
}

func (s *session) dispatchCamera(ctx context.Context) bool {
	capturePath, err := s.picker.ports.Cache.CreateTemp(".jpg")
	if err != nil {
		s.fail(ctx, SourceFailure, fmt.Errorf("failed to create capture file: %w", err))
		return true
	}
	s.own(capturePath)

	ok, err := s.picker.ports.Camera.Capture(ctx, capturePath)
	if err != nil {
		s.fail(ctx, SourceFailure, fmt.Errorf("camera capture failed: %w", err))
		return true
	}
	if !ok {
		s.disown(capturePath)
		s.picker.ports.Cache.Remove(capturePath)
		s.log.Info("camera capture abandoned")
		return false
	}

	resultPath := capturePath
	if s.cfg.compressCamera {
		compressedPath, err := s.picker.ports.Cache.CreateTemp(".jpg")
		if err != nil {
			s.fail(ctx, SourceFailure, fmt.Errorf("failed to create compression target: %w", err))
			return true
		}
		s.own(compressedPath)

		if err := imaging.Compress(capturePath, compressedPath, imaging.Options{}, s.log); err != nil {
			s.fail(ctx, ProcessingFailure, err)
			return true
		}
		// Ownership transfers to the compressed copy; the original is
		// deleted at transfer time, not deferred.
		s.disown(capturePath)
		s.picker.ports.Cache.Remove(capturePath)
		resultPath = compressedPath
		s.log.Info("camera output compressed", "artifact", compressedPath)
	}

	return s.deliverHandles(ctx, []Handle{Handle(resultPath)})
}

func (s *session) dispatchGallery(ctx context.Context) bool {
	handles, err := s.picker.ports.Gallery.Select(ctx, galleryFilter(s.cfg), s.cfg.effectiveLimit())
	if err != nil {
		s.fail(ctx, SourceFailure, fmt.Errorf("media selection failed: %w", err))
		return true
	}
	if len(handles) == 0 {
		s.log.Info("media selection abandoned")
		return false
	}
	return s.deliverHandles(ctx, handles)
}

func (s *session) dispatchFiles(ctx context.Context) bool {
	types := s.cfg.specificTypes()
	if len(types) == 0 {
		types = []string{TypeAny}
	}
	handles, err := s.picker.ports.Documents.Select(ctx, types, s.cfg.allowMultiple)
	if err != nil {
		s.fail(ctx, SourceFailure, fmt.Errorf("document selection failed: %w", err))
		return true
	}
	if len(handles) == 0 {
		s.log.Info("document selection abandoned")
		return false
	}
	// The document browser does not accept a count limit, so an oversized
	// selection is reconciled here rather than failed.
	if limit := s.cfg.effectiveLimit(); limit > 0 && len(handles) > limit {
		s.log.Warn("selection exceeds limit, truncating", "returned", len(handles), "limit", limit)
		handles = handles[:limit]
	}
	return s.deliverHandles(ctx, handles)
}

func (s *session) deliverHandles(ctx context.Context, handles []Handle) bool {
	files := resolveAll(ctx, s.picker.ports.Resolver, handles, s.log)
	if len(files) == 0 {
		s.fail(ctx, NoUsableResult, errors.New("none of the selected files could be processed"))
		return true
	}
	s.finish(Success{Files: files})
	return true
}

// fail resolves the request as a Failure, except when the caller's context was
// cancelled: a failure observed after cancellation is reported as Cancelled,
// matching what back-navigation delivers.
func (s *session) fail(ctx context.Context, kind ErrorKind, err error) {
	if ctx.Err() != nil {
		s.finish(Cancelled{})
		return
	}
	s.finish(Failure{Kind: kind, Err: err})
}

// finish is the single termination point: it delivers the result through the
// correlation registry exactly once, deletes any transient file still owned
// by the request, and dismisses a still-open choice surface. Late completion
// triggers after the first are discarded.
func (s *session) finish(result Result) {
	if !s.delivered.CompareAndSwap(false, true) {
		s.log.Debug("late completion discarded")
		return
	}

	// Files that made it into the delivered result are handed off to the
	// caller; everything else still owned is deleted.
	if success, ok := result.(Success); ok {
		for _, f := range success.Files {
			s.disown(string(f.Handle))
		}
	}

	s.picker.results.Deliver(s.id, result)
	s.cleanupTransient()
	if s.mode == ModeSheet && s.picker.ports.Sheet != nil {
		s.picker.ports.Sheet.Dismiss()
	}
	s.cancel()
}

func (s *session) own(path string) {
	s.mu.Lock()
	s.transient[path] = struct{}{}
	s.mu.Unlock()
}

func (s *session) disown(path string) {
	s.mu.Lock()
	delete(s.transient, path)
	s.mu.Unlock()
}

func (s *session) cleanupTransient() {
	s.mu.Lock()
	paths := make([]string, 0, len(s.transient))
	for p := range s.transient {
		paths = append(paths, p)
	}
	s.transient = make(map[string]struct{})
	s.mu.Unlock()

	for _, p := range paths {
		if s.picker.ports.Cache == nil {
			s.log.Warn("transient file leaked, no cache port", "path", p)
			continue
		}
		if !s.picker.ports.Cache.Remove(p) {
			s.log.Warn("failed to delete transient file", "path", p)
		}
	}
}

func (s *session) sheetOptions() SheetOptions {
	a := Analyze(s.cfg)
	ports := s.picker.ports
	return SheetOptions{
		ShowCamera: s.cfg.allowCamera && len(a.ImageTypes) > 0 &&
			ports.Camera != nil && ports.Cache != nil && s.picker.gate != nil,
		ShowGallery: s.cfg.allowGallery && (len(a.ImageTypes) > 0 || len(a.VideoTypes) > 0) &&
			ports.Gallery != nil,
		ShowFiles: s.cfg.allowFiles && (len(a.DocumentTypes) > 0 || len(a.AudioTypes) > 0 || a.AllowsAny) &&
			ports.Documents != nil,
		Category: a.Category,
	}
}

// galleryFilter narrows the media picker to a single declared type when the
// configuration allows exactly one, otherwise to the broadest group that
// covers the configuration.
func galleryFilter(cfg Config) GalleryFilter {
	var specificImages, specificVideos []string
	for _, t := range cfg.typesWithPrefix("image/") {
		if t != TypeImageAny {
			specificImages = append(specificImages, t)
		}
	}
	for _, t := range cfg.typesWithPrefix("video/") {
		if t != TypeVideoAny {
			specificVideos = append(specificVideos, t)
		}
	}

	switch {
	case len(specificImages) == 1 && len(cfg.typesWithPrefix("video/")) == 0:
		return GalleryFilter{SingleType: specificImages[0]}
	case len(specificVideos) == 1 && len(cfg.typesWithPrefix("image/")) == 0:
		return GalleryFilter{SingleType: specificVideos[0]}
	case cfg.allowsOnlyImages():
		return GalleryFilter{Images: true}
	case cfg.allowsOnlyVideos():
		return GalleryFilter{Videos: true}
	default:
		return GalleryFilter{Images: true, Videos: true}
	}
}
