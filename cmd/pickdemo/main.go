// pickdemo runs two scripted acquisitions end to end: a multi-document
// selection and a camera capture with compression, using the local
// filesystem adapters in place of a host platform.
package main

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	filepicker "github.com/iNomNom/FilePicker"
	"github.com/iNomNom/FilePicker/localfs"
	"github.com/iNomNom/FilePicker/permissions"
)

// scriptedDocuments answers the document browser port with a fixed
// selection.
type scriptedDocuments struct {
	selection []filepicker.Handle
}

func (d *scriptedDocuments) Select(ctx context.Context, typeFilters []string, multiple bool) ([]filepicker.Handle, error) {
	return d.selection, nil
}

// scriptedCamera answers the capture port by writing a synthetic photo.
type scriptedCamera struct{}

func (scriptedCamera) Capture(ctx context.Context, destPath string) (bool, error) {
	img := image.NewRGBA(image.Rect(0, 0, 2400, 1600))
	f, err := os.Create(destPath)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		return false, err
	}
	return true, nil
}

// grantingAuthority holds every capability up front.
type grantingAuthority struct{}

func (grantingAuthority) Has(ctx context.Context, c permissions.Capability) bool { return true }
func (grantingAuthority) Request(ctx context.Context, caps []permissions.Capability) (map[permissions.Capability]bool, error) {
	return nil, nil
}
func (grantingAuthority) CanExplain(ctx context.Context, c permissions.Capability) bool { return true }
func (grantingAuthority) OpenSettings(ctx context.Context) error                        { return nil }

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	cache, err := localfs.NewCache("", logger)
	if err != nil {
		log.Fatalf("failed to set up cache: %v", err)
	}
	defer os.RemoveAll(cache.Dir())

	docs := &scriptedDocuments{}
	for i := 1; i <= 3; i++ {
		path := filepath.Join(cache.Dir(), fmt.Sprintf("report-%d.txt", i))
		if err := os.WriteFile(path, []byte("quarterly numbers\n"), 0o644); err != nil {
			log.Fatalf("failed to write sample document: %v", err)
		}
		docs.selection = append(docs.selection, filepicker.Handle(path))
	}

	picker, err := filepicker.New(filepicker.Ports{
		Camera:    scriptedCamera{},
		Documents: docs,
		Resolver:  localfs.NewResolver(logger),
		Cache:     cache,
		Authority: grantingAuthority{},
	}, logger)
	if err != nil {
		log.Fatalf("failed to create picker: %v", err)
	}
	defer picker.Close()

	done := make(chan struct{})
	_, err = picker.LaunchFiles(ctx, filepicker.MultipleDocuments(2, filepicker.TypeTextPlain), func(r filepicker.Result) {
		printResult("documents", r)
		close(done)
	})
	if err != nil {
		log.Fatalf("failed to launch document selection: %v", err)
	}
	<-done

	done = make(chan struct{})
	_, err = picker.LaunchCamera(ctx, filepicker.SingleImage(true), func(r filepicker.Result) {
		printResult("camera", r)
		close(done)
	})
	if err != nil {
		log.Fatalf("failed to launch camera: %v", err)
	}
	<-done
}

func printResult(label string, r filepicker.Result) {
	switch v := r.(type) {
	case filepicker.Success:
		fmt.Printf("%s: %d file(s)\n", label, len(v.Files))
		for _, f := range v.Files {
			fmt.Printf("  %s (%s, %d bytes, %s)\n", f.Name, f.TypeTag, f.Size, f.Extension)
		}
	case filepicker.Failure:
		fmt.Printf("%s: failed: %s\n", label, v.Error())
	case filepicker.Cancelled:
		fmt.Printf("%s: cancelled\n", label)
	}
}
