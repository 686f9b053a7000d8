// Package filepicker orchestrates file acquisition from mutually exclusive
// sources (camera capture, media gallery, document browser), each an
// external, asynchronous, permission-gated collaborator. The package owns
// request correlation with exactly-once result delivery, permission gating,
// per-request sequencing, camera image compression and transient-file
// cleanup; the concrete UI surfaces and platform services stay behind the
// ports in Ports.
package filepicker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/iNomNom/FilePicker/internal/registry"
	"github.com/iNomNom/FilePicker/permissions"
)

// LaunchMode selects which acquisition sub-flow a request runs.
type LaunchMode int

const (
	// ModeSheet presents a source-choice surface first.
	ModeSheet LaunchMode = iota
	ModeCameraOnly
	ModeGalleryOnly
	ModeFilesOnly
)

func (m LaunchMode) String() string {
	switch m {
	case ModeSheet:
		return "sheet"
	case ModeCameraOnly:
		return "camera-only"
	case ModeGalleryOnly:
		return "gallery-only"
	default:
		return "files-only"
	}
}

// Picker is the entry point for acquisition requests. One Picker serves
// arbitrarily many concurrently in-flight requests; construct it once at
// process start and Close it when the process winds down.
type Picker struct {
	ports   Ports
	results *registry.Registry[Result]
	gate    *permissions.Gate
	log     *slog.Logger
}

// New creates a Picker around the given ports. The resolver port is
// mandatory; other ports may be nil when the corresponding source is never
// used.
func New(ports Ports, log *slog.Logger) (*Picker, error) {
	if log == nil {
		log = slog.Default()
	}
	if ports.Resolver == nil {
		return nil, fmt.Errorf("filepicker: resolver port is required")
	}
	p := &Picker{
		ports:   ports,
		results: registry.New[Result](log),
		log:     log,
	}
	if ports.Authority != nil {
		p.gate = permissions.NewGate(ports.Authority, log)
	}
	return p, nil
}

// Close releases the delivery dispatchers. Pending requests should be
// settled or cancelled first.
func (p *Picker) Close() {
	if p.gate != nil {
		p.gate.Close()
	}
	p.results.Close()
}

// ShowSheet starts an acquisition that lets the user choose between the
// configured sources on a choice surface. onResult is invoked exactly once
// with the terminal outcome.
func (p *Picker) ShowSheet(ctx context.Context, cfg Config, onResult func(Result)) (*Request, error) {
	if p.ports.Sheet == nil {
		return nil, fmt.Errorf("%w: sheet mode requires a sheet port", ErrInvalidConfig)
	}
	return p.launch(ctx, cfg, ModeSheet, onResult)
}

// LaunchCamera starts a direct camera capture.
func (p *Picker) LaunchCamera(ctx context.Context, cfg Config, onResult func(Result)) (*Request, error) {
	cfg = cfg.normalized()
	if !cfg.allowsImages() {
		return nil, fmt.Errorf("%w: camera requires image types to be allowed", ErrInvalidConfig)
	}
	if p.ports.Camera == nil || p.ports.Cache == nil || p.gate == nil {
		return nil, fmt.Errorf("%w: camera mode requires camera, cache and authority ports", ErrInvalidConfig)
	}
	return p.launch(ctx, cfg, ModeCameraOnly, onResult)
}

// LaunchGallery starts a direct media selection.
func (p *Picker) LaunchGallery(ctx context.Context, cfg Config, onResult func(Result)) (*Request, error) {
	cfg = cfg.normalized()
	if !cfg.allowsImages() && !cfg.allowsVideos() {
		return nil, fmt.Errorf("%w: gallery requires image or video types to be allowed", ErrInvalidConfig)
	}
	if p.ports.Gallery == nil {
		return nil, fmt.Errorf("%w: gallery mode requires a gallery port", ErrInvalidConfig)
	}
	return p.launch(ctx, cfg, ModeGalleryOnly, onResult)
}

// LaunchFiles starts a direct document selection.
func (p *Picker) LaunchFiles(ctx context.Context, cfg Config, onResult func(Result)) (*Request, error) {
	cfg = cfg.normalized()
	if !cfg.allowFiles {
		return nil, fmt.Errorf("%w: file browsing is not allowed by this configuration", ErrInvalidConfig)
	}
	if p.ports.Documents == nil {
		return nil, fmt.Errorf("%w: files mode requires a document port", ErrInvalidConfig)
	}
	return p.launch(ctx, cfg, ModeFilesOnly, onResult)
}

func (p *Picker) launch(ctx context.Context, cfg Config, mode LaunchMode, onResult func(Result)) (*Request, error) {
	if onResult == nil {
		return nil, fmt.Errorf("%w: a result callback is required", ErrInvalidConfig)
	}
	cfg = cfg.normalized()

	id := uuid.NewString()
	p.results.Register(id, onResult)

	sctx, cancel := context.WithCancel(ctx)
	s := newSession(id, cfg, mode, p, cancel)
	go s.run(sctx)

	p.log.Info("acquisition request dispatched", "requestId", id, "mode", mode.String())
	return &Request{s: s}, nil
}

// Request is the caller's grip on an in-flight acquisition.
type Request struct {
	s *session
}

// ID returns the request's correlation id.
func (r *Request) ID() string { return r.s.id }

// Cancel terminates the request with a Cancelled outcome from any
// non-terminal state. A late answer from an already-launched external source
// is discarded. Safe to call repeatedly and concurrently with completion.
func (r *Request) Cancel() {
	r.s.finish(Cancelled{})
}
