package filepicker

import "strings"

// Type tag constants for use with Config. A type tag is a MIME-type-like
// classifier string used to filter allowed selections.
const (
	// TypeAny matches any file type.
	TypeAny = "*/*"

	TypeImageAny  = "image/*"
	TypeImageJPEG = "image/jpeg"
	TypeImagePNG  = "image/png"
	TypeImageGIF  = "image/gif"
	TypeImageWebP = "image/webp"
	TypeImageBMP  = "image/bmp"
	TypeImageHEIC = "image/heic"

	TypeVideoAny  = "video/*"
	TypeVideoMP4  = "video/mp4"
	TypeVideo3GP  = "video/3gpp"
	TypeVideoAVI  = "video/x-msvideo"
	TypeVideoMOV  = "video/quicktime"
	TypeVideoWebM = "video/webm"

	TypeAudioAny  = "audio/*"
	TypeAudioMPEG = "audio/mpeg"
	TypeAudioOGG  = "audio/ogg"
	TypeAudioWAV  = "audio/wav"
	TypeAudioAAC  = "audio/aac"

	TypePDF              = "application/pdf"
	TypeMSWord           = "application/msword"
	TypeMSWordDocx       = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeMSExcel          = "application/vnd.ms-excel"
	TypeMSExcelXlsx      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	TypeMSPowerPoint     = "application/vnd.ms-powerpoint"
	TypeMSPowerPointPptx = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	TypeODT              = "application/vnd.oasis.opendocument.text"
	TypeODS              = "application/vnd.oasis.opendocument.spreadsheet"
	TypeODP              = "application/vnd.oasis.opendocument.presentation"
	TypeRTF              = "application/rtf"
	TypeTextPlain        = "text/plain"
	TypeTextCSV          = "text/csv"
	TypeTextHTML         = "text/html"
	TypeXML              = "application/xml"
	TypeJSON             = "application/json"

	TypeZIP = "application/zip"
	TypeRAR = "application/vnd.rar"
	TypeTAR = "application/x-tar"
	Type7Z  = "application/x-7z-compressed"

	TypeJava       = "text/x-java-source"
	TypePython     = "text/x-python"
	TypeKotlin     = "text/x-kotlin"
	TypeJavaScript = "application/javascript"
	TypeTypeScript = "application/x-typescript"
)

// Grouped type sets for common selection scenarios.
var (
	ImageTypes = []string{TypeImageJPEG, TypeImagePNG, TypeImageGIF, TypeImageWebP, TypeImageBMP, TypeImageHEIC}

	VideoTypes = []string{TypeVideoMP4, TypeVideo3GP, TypeVideoAVI, TypeVideoMOV, TypeVideoWebM}

	AudioTypes = []string{TypeAudioMPEG, TypeAudioOGG, TypeAudioWAV, TypeAudioAAC}

	DocumentTypes = []string{
		TypePDF, TypeMSWord, TypeMSWordDocx, TypeMSExcel, TypeMSExcelXlsx,
		TypeMSPowerPoint, TypeMSPowerPointPptx, TypeODT, TypeODS, TypeODP,
		TypeTextPlain, TypeTextCSV, TypeTextHTML, TypeRTF, TypeXML, TypeJSON,
	}

	ArchiveTypes = []string{TypeZIP, TypeRAR, TypeTAR, Type7Z}

	CodeTypes = []string{TypeJava, TypePython, TypeKotlin, TypeJavaScript, TypeTypeScript, TypeXML, TypeJSON}
)

// Category classifies what a configuration's allowed types amount to. It
// drives how a source-choice surface labels its rows and which gallery filter
// is used.
type Category int

const (
	CategoryImagesOnly Category = iota
	CategoryVideosOnly
	CategoryImagesAndVideos
	CategoryDocumentsOnly
	CategoryFilesOnly
	CategoryFilesAndDocuments
)

func (c Category) String() string {
	switch c {
	case CategoryImagesOnly:
		return "images-only"
	case CategoryVideosOnly:
		return "videos-only"
	case CategoryImagesAndVideos:
		return "images-and-videos"
	case CategoryDocumentsOnly:
		return "documents-only"
	case CategoryFilesOnly:
		return "files-only"
	default:
		return "files-and-documents"
	}
}

// Analysis holds the effective type groups a configuration resolves to.
type Analysis struct {
	ImageTypes    []string
	VideoTypes    []string
	AudioTypes    []string
	DocumentTypes []string
	AllowsAny     bool
	Category      Category
}

// Analyze computes the effective type groups and overall category for a
// configuration. A group category (images-only, videos-only, images-and-
// videos) applies only when no other type group is present; mixed
// configurations classify as files-and-documents.
func Analyze(cfg Config) Analysis {
	cfg = cfg.normalized()

	hasSpecific := len(cfg.specificTypes()) > 0
	allowsAny := cfg.containsType(TypeAny)

	var images []string
	if hasSpecific {
		images = cfg.typesWithPrefix("image/")
	} else if cfg.allowsImages() {
		images = []string{TypeImageAny}
	}

	var videos []string
	if hasSpecific {
		videos = cfg.typesWithPrefix("video/")
	} else if cfg.allowsVideos() {
		videos = []string{TypeVideoAny}
	}

	var audio []string
	if hasSpecific {
		audio = cfg.typesWithPrefix("audio/")
	} else if cfg.allowFiles && allowsAny {
		audio = []string{TypeAudioAny}
	}

	var documents []string
	if hasSpecific {
		for _, t := range cfg.allowedTypes {
			if t == TypeAny || strings.HasPrefix(t, "image/") ||
				strings.HasPrefix(t, "video/") || strings.HasPrefix(t, "audio/") {
				continue
			}
			documents = append(documents, t)
		}
	} else if cfg.allowFiles && allowsAny {
		documents = []string{TypeAny}
	}

	var category Category
	switch {
	case allowsAny:
		category = CategoryFilesAndDocuments
	case len(images) > 0 && len(videos) == 0 && len(audio) == 0 && len(documents) == 0:
		category = CategoryImagesOnly
	case len(videos) > 0 && len(images) == 0 && len(audio) == 0 && len(documents) == 0:
		category = CategoryVideosOnly
	case len(images) > 0 && len(videos) > 0 && len(audio) == 0 && len(documents) == 0:
		category = CategoryImagesAndVideos
	case len(documents) > 0 && len(images) == 0 && len(videos) == 0 && len(audio) == 0 && allKnownDocuments(documents):
		category = CategoryDocumentsOnly
	case len(documents) > 0 || len(audio) > 0:
		category = CategoryFilesAndDocuments
	default:
		category = CategoryFilesOnly
	}

	return Analysis{
		ImageTypes:    images,
		VideoTypes:    videos,
		AudioTypes:    audio,
		DocumentTypes: documents,
		AllowsAny:     allowsAny,
		Category:      category,
	}
}

func allKnownDocuments(types []string) bool {
	for _, t := range types {
		known := false
		for _, d := range DocumentTypes {
			if t == d {
				known = true
				break
			}
		}
		if !known {
			return false
		}
	}
	return true
}
