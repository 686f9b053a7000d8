package filepicker

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// SizeUnknown marks an unresolved file size.
const SizeUnknown int64 = -1

// Handle is an opaque reference to a user-selected resource. Only the
// metadata resolution port can interpret it.
type Handle string

// Metadata is the best-effort description of a handle returned by the
// resolution port. Absent fields are the empty string and SizeUnknown.
type Metadata struct {
	Name    string
	Size    int64
	TypeTag string
}

// PickedFile is the normalized record for one selected file. Missing
// metadata is tolerated everywhere downstream.
type PickedFile struct {
	Handle    Handle
	TypeTag   string
	Name      string
	Size      int64
	Extension string
}

// extensionFromName extracts the uppercase file extension, if present.
func extensionFromName(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToUpper(name[idx+1:])
}

const resolveConcurrency = 4

// resolveAll normalizes handles into PickedFile records, resolving metadata
// for each handle independently. Handles whose resolution fails outright are
// dropped; the rest keep whatever metadata came back. Original order is
// preserved.
func resolveAll(ctx context.Context, resolver ResolverPort, handles []Handle, log *slog.Logger) []PickedFile {
	records := make([]*PickedFile, len(handles))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(resolveConcurrency)
	for i, h := range handles {
		i, h := i, h
		eg.Go(func() error {
			md, err := resolver.Resolve(gctx, h)
			if err != nil {
				log.Warn("failed to resolve metadata, dropping handle", "handle", string(h), "error", err)
				return nil
			}
			size := md.Size
			if size < 0 {
				size = SizeUnknown
			}
			records[i] = &PickedFile{
				Handle:    h,
				TypeTag:   md.TypeTag,
				Name:      md.Name,
				Size:      size,
				Extension: extensionFromName(md.Name),
			}
			return nil
		})
	}
	_ = eg.Wait()

	out := make([]PickedFile, 0, len(handles))
	for _, r := range records {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}
