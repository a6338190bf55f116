package mimetypes

import (
	"mime"
	"path/filepath"
	"strings"
)

type MIME string

const (
	Unknown     MIME = "unknown"
	OctetStream MIME = "application/octet-stream"
	TextPlain   MIME = "text/plain"

	ApplicationPDF  MIME = "application/pdf"
	ApplicationZIP  MIME = "application/zip"
	ApplicationRAR  MIME = "application/x-rar-compressed"
	Application7Z   MIME = "application/x-7z-compressed"
	ApplicationDOC  MIME = "application/msword"
	ApplicationDOCX MIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	ApplicationXLS  MIME = "application/vnd.ms-excel"
	ApplicationXLSX MIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ApplicationPPT  MIME = "application/vnd.ms-powerpoint"
	ApplicationPPTX MIME = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

	ImagePNG  MIME = "image/png"
	ImageJPEG MIME = "image/jpeg"
	ImageJPG  MIME = "image/jpg"
	ImageGIF  MIME = "image/gif"
	ImageWEBP MIME = "image/webp"

	AudioMPEG MIME = "audio/mpeg"
	AudioMP3  MIME = "audio/mp3"
	AudioWAV  MIME = "audio/wav"

	VideoMP4       MIME = "video/mp4"
	VideoAVI       MIME = "video/avi"
	VideoQuickTime MIME = "video/quicktime"
)

// allowed is the upload allow-list. Anything else is rejected at the boundary.
var allowed = map[MIME]struct{}{
	ImageJPEG: {}, ImageJPG: {}, ImagePNG: {}, ImageGIF: {}, ImageWEBP: {},
	ApplicationPDF: {},
	ApplicationDOC: {}, ApplicationDOCX: {},
	ApplicationXLS: {}, ApplicationXLSX: {},
	ApplicationPPT: {}, ApplicationPPTX: {},
	TextPlain: {},
	AudioMPEG: {}, AudioWAV: {}, AudioMP3: {},
	VideoMP4: {}, VideoAVI: {}, VideoQuickTime: {},
	ApplicationZIP: {}, ApplicationRAR: {}, Application7Z: {},
}

// byExtension drives the Content-Type of served files. The declared upload
// type is never trusted for that.
var byExtension = map[string]MIME{
	".jpg":  ImageJPEG,
	".jpeg": ImageJPEG,
	".png":  ImagePNG,
	".gif":  ImageGIF,
	".webp": ImageWEBP,
	".pdf":  ApplicationPDF,
	".doc":  ApplicationDOC,
	".docx": ApplicationDOCX,
	".xls":  ApplicationXLS,
	".xlsx": ApplicationXLSX,
	".ppt":  ApplicationPPT,
	".pptx": ApplicationPPTX,
	".txt":  TextPlain,
	".mp3":  AudioMPEG,
	".wav":  AudioWAV,
	".mp4":  VideoMP4,
	".avi":  VideoAVI,
	".mov":  VideoQuickTime,
	".zip":  ApplicationZIP,
	".rar":  ApplicationRAR,
	".7z":   Application7Z,
}

// Normalize strips parameters and lower-cases a declared media type.
// It returns Unknown when the value is not a type/subtype pair.
func Normalize(declared string) MIME {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		return Unknown
	}
	kind, subtype, ok := strings.Cut(mt, "/")
	if !ok || kind == "" || subtype == "" {
		return Unknown
	}
	return MIME(strings.ToLower(mt))
}

func IsAllowed(m MIME) bool {
	_, ok := allowed[m]
	return ok
}

// ContentTypeForName maps the extension of a stored file name to a media type,
// falling back to application/octet-stream.
func ContentTypeForName(name string) MIME {
	if m, ok := byExtension[strings.ToLower(filepath.Ext(name))]; ok {
		return m
	}
	return OctetStream
}

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

func (m MIME) String() string {
	return string(m)
}
