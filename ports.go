package filepicker

import (
	"context"

	"github.com/iNomNom/FilePicker/permissions"
)

// CapabilityCamera gates camera capture. The gallery and document sources
// need no capability in this design: both are resolved through
// user-interactive system surfaces.
const CapabilityCamera = permissions.Capability("camera.capture")

// SourceChoice is the answer of a source-choice surface.
type SourceChoice int

const (
	// ChoiceDismissed: the surface was closed without choosing a source.
	ChoiceDismissed SourceChoice = iota
	ChoiceCamera
	ChoiceGallery
	ChoiceFiles
)

// SheetOptions tells the source-choice surface which rows to offer and how
// to label them.
type SheetOptions struct {
	ShowCamera  bool
	ShowGallery bool
	ShowFiles   bool
	Category    Category
}

// SheetPort is the source-choice surface. Present blocks until the user
// chooses a source or dismisses the surface; it may be called again after a
// system picker is abandoned, returning the user to the open sheet.
type SheetPort interface {
	Present(ctx context.Context, opts SheetOptions) (SourceChoice, error)
	// Dismiss closes the surface if it is still open. Idempotent.
	Dismiss()
}

// CameraPort launches the camera capture service. Capture writes the image
// to destPath and reports whether a picture was actually taken.
type CameraPort interface {
	Capture(ctx context.Context, destPath string) (bool, error)
}

// GalleryFilter narrows what the media picker offers. A non-empty SingleType
// takes precedence over the group flags.
type GalleryFilter struct {
	SingleType string
	Images     bool
	Videos     bool
}

// GalleryPort launches the system media picker. An empty selection means the
// user cancelled. limit <= 0 means no limit.
type GalleryPort interface {
	Select(ctx context.Context, filter GalleryFilter, limit int) ([]Handle, error)
}

// DocumentPort launches the system document browser. An empty selection
// means the user cancelled. The port may ignore any selection limit; the
// orchestrator reconciles oversized selections.
type DocumentPort interface {
	Select(ctx context.Context, typeFilters []string, multiple bool) ([]Handle, error)
}

// ResolverPort resolves a handle to best-effort metadata. Implementations
// degrade missing fields to absent values; an error means the handle is
// unusable.
type ResolverPort interface {
	Resolve(ctx context.Context, h Handle) (Metadata, error)
}

// CachePort owns transient file storage for camera capture and compression
// artifacts.
type CachePort interface {
	// CreateTemp creates a fresh writable file with the given name suffix
	// and returns its path.
	CreateTemp(suffix string) (string, error)
	// Remove deletes the file, reporting whether it is gone.
	Remove(path string) bool
}

// Ports bundles the external collaborators a Picker consumes. Resolver is
// always required; the rest are required only by the sources a request can
// reach (camera additionally needs Cache and Authority).
type Ports struct {
	Sheet     SheetPort
	Camera    CameraPort
	Gallery   GalleryPort
	Documents DocumentPort
	Resolver  ResolverPort
	Cache     CachePort
	Authority permissions.Authority
}
