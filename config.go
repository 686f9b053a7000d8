package filepicker

import (
	"log/slog"
	"strings"
)

// Config describes a single acquisition request: which type tags are allowed,
// how many files may be selected, and which sources are offered. Configs are
// immutable once constructed; build them through the preset factories or
// Custom.
type Config struct {
	allowedTypes   []string
	allowMultiple  bool
	maxCount       int
	allowCamera    bool
	allowGallery   bool
	allowFiles     bool
	compressCamera bool
}

// NewConfig creates a configuration allowing the given types from every
// applicable source, single selection. No types means any type.
func NewConfig(allowedTypes ...string) Config {
	return Custom(allowedTypes, false, 0, nil, nil, true, false)
}

// Custom builds a configuration with full control. A nil allowCamera or
// allowGallery derives the toggle from the allowed types: camera is offered
// when image types are allowed, gallery when image or video types are
// allowed. maxCount <= 0 means no limit.
func Custom(allowedTypes []string, allowMultiple bool, maxCount int, allowCamera, allowGallery *bool, allowFiles bool, compressCamera bool) Config {
	types := make([]string, 0, len(allowedTypes))
	seen := make(map[string]struct{}, len(allowedTypes))
	for _, t := range allowedTypes {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		types = append(types, t)
	}
	if len(types) == 0 {
		types = []string{TypeAny}
	}

	cfg := Config{
		allowedTypes:   types,
		allowMultiple:  allowMultiple,
		maxCount:       maxCount,
		allowFiles:     allowFiles,
		compressCamera: compressCamera,
	}
	if allowCamera != nil {
		cfg.allowCamera = *allowCamera
	} else {
		cfg.allowCamera = cfg.allowsImages()
	}
	if allowGallery != nil {
		cfg.allowGallery = *allowGallery
	} else {
		cfg.allowGallery = cfg.allowsImages() || cfg.allowsVideos()
	}

	if cfg.maxCount == 1 && cfg.allowMultiple {
		slog.Warn("maxCount=1 with allowMultiple=true behaves as single selection")
		cfg.allowMultiple = false
	}
	return cfg
}

// normalized guards against zero-value Configs assembled outside the
// factories.
func (c Config) normalized() Config {
	if len(c.allowedTypes) == 0 {
		return Custom(nil, c.allowMultiple, c.maxCount, &c.allowCamera, &c.allowGallery, c.allowFiles, c.compressCamera)
	}
	if c.maxCount == 1 && c.allowMultiple {
		c.allowMultiple = false
	}
	return c
}

// AllowedTypes returns a copy of the allowed type tags.
func (c Config) AllowedTypes() []string {
	out := make([]string, len(c.allowedTypes))
	copy(out, c.allowedTypes)
	return out
}

func (c Config) AllowMultiple() bool        { return c.allowMultiple }
func (c Config) MaxCount() int              { return c.maxCount }
func (c Config) AllowCamera() bool          { return c.allowCamera }
func (c Config) AllowGallery() bool         { return c.allowGallery }
func (c Config) AllowFiles() bool           { return c.allowFiles }
func (c Config) CompressCameraOutput() bool { return c.compressCamera }

func (c Config) containsType(tag string) bool {
	for _, t := range c.allowedTypes {
		if t == tag {
			return true
		}
	}
	return false
}

func (c Config) typesWithPrefix(prefix string) []string {
	var out []string
	for _, t := range c.allowedTypes {
		if strings.HasPrefix(t, prefix) {
			out = append(out, t)
		}
	}
	return out
}

func (c Config) allowsImages() bool {
	for _, t := range c.allowedTypes {
		if strings.HasPrefix(t, "image/") || t == TypeAny {
			return true
		}
	}
	return false
}

func (c Config) allowsVideos() bool {
	for _, t := range c.allowedTypes {
		if strings.HasPrefix(t, "video/") || t == TypeAny {
			return true
		}
	}
	return false
}

func (c Config) allowsOnlyImages() bool {
	if len(c.allowedTypes) == 0 {
		return false
	}
	for _, t := range c.allowedTypes {
		if !strings.HasPrefix(t, "image/") {
			return false
		}
	}
	return true
}

func (c Config) allowsOnlyVideos() bool {
	if len(c.allowedTypes) == 0 {
		return false
	}
	for _, t := range c.allowedTypes {
		if !strings.HasPrefix(t, "video/") {
			return false
		}
	}
	return true
}

// specificTypes returns the allowed types excluding the wildcard TypeAny.
func (c Config) specificTypes() []string {
	var out []string
	for _, t := range c.allowedTypes {
		if t != TypeAny {
			out = append(out, t)
		}
	}
	return out
}

// effectiveLimit is the selection cap the orchestrator enforces: 1 for single
// selection, maxCount when set, 0 for no limit.
func (c Config) effectiveLimit() int {
	if !c.allowMultiple {
		return 1
	}
	if c.maxCount > 0 {
		return c.maxCount
	}
	return 0
}

func boolPtr(b bool) *bool { return &b }

// SingleImage selects one image; camera and gallery are offered, the
// document browser is not.
func SingleImage(compress bool, types ...string) Config {
	if len(types) == 0 {
		types = []string{TypeImageAny}
	}
	return Custom(types, false, 1, nil, nil, false, compress)
}

// MultipleImages selects up to maxCount images (0 for no limit).
func MultipleImages(maxCount int, compress bool, types ...string) Config {
	if len(types) == 0 {
		types = []string{TypeImageAny}
	}
	return Custom(types, true, maxCount, nil, nil, false, compress)
}

// SingleVideo selects one video through the gallery.
func SingleVideo(types ...string) Config {
	if len(types) == 0 {
		types = []string{TypeVideoAny}
	}
	return Custom(types, false, 1, boolPtr(false), nil, false, false)
}

// MultipleVideos selects up to maxCount videos (0 for no limit).
func MultipleVideos(maxCount int, types ...string) Config {
	if len(types) == 0 {
		types = []string{TypeVideoAny}
	}
	return Custom(types, true, maxCount, boolPtr(false), nil, false, false)
}

// SingleMedia selects one image or video.
func SingleMedia(compress bool) Config {
	return Custom([]string{TypeImageAny, TypeVideoAny}, false, 1, nil, nil, false, compress)
}

// MultipleMedia selects up to maxCount images or videos (0 for no limit).
func MultipleMedia(maxCount int, compress bool) Config {
	return Custom([]string{TypeImageAny, TypeVideoAny}, true, maxCount, nil, nil, false, compress)
}

// SinglePDF selects one PDF document.
func SinglePDF() Config {
	return Custom([]string{TypePDF}, false, 1, nil, nil, true, false)
}

// MultiplePDFs selects up to maxCount PDF documents (0 for no limit).
func MultiplePDFs(maxCount int) Config {
	return Custom([]string{TypePDF}, true, maxCount, nil, nil, true, false)
}

// SingleDocument selects one document of the common document types.
func SingleDocument(types ...string) Config {
	if len(types) == 0 {
		types = DocumentTypes
	}
	return Custom(types, false, 1, nil, nil, true, false)
}

// MultipleDocuments selects up to maxCount documents (0 for no limit).
func MultipleDocuments(maxCount int, types ...string) Config {
	if len(types) == 0 {
		types = DocumentTypes
	}
	return Custom(types, true, maxCount, nil, nil, true, false)
}

// SingleAudio selects one audio file through the document browser.
func SingleAudio(types ...string) Config {
	if len(types) == 0 {
		types = []string{TypeAudioAny}
	}
	return Custom(types, false, 1, boolPtr(false), boolPtr(false), true, false)
}

// MultipleAudio selects up to maxCount audio files (0 for no limit).
func MultipleAudio(maxCount int, types ...string) Config {
	if len(types) == 0 {
		types = []string{TypeAudioAny}
	}
	return Custom(types, true, maxCount, boolPtr(false), boolPtr(false), true, false)
}

// SingleArchive selects one archive file.
func SingleArchive(types ...string) Config {
	if len(types) == 0 {
		types = ArchiveTypes
	}
	return Custom(types, false, 1, boolPtr(false), boolPtr(false), true, false)
}

// MultipleArchives selects up to maxCount archive files (0 for no limit).
func MultipleArchives(maxCount int, types ...string) Config {
	if len(types) == 0 {
		types = ArchiveTypes
	}
	return Custom(types, true, maxCount, boolPtr(false), boolPtr(false), true, false)
}

// SingleFile selects one file of any allowed type.
func SingleFile(types ...string) Config {
	return Custom(types, false, 1, nil, nil, true, false)
}

// MultipleFiles selects up to maxCount files of any allowed type (0 for no
// limit).
func MultipleFiles(maxCount int, types ...string) Config {
	return Custom(types, true, maxCount, nil, nil, true, false)
}
