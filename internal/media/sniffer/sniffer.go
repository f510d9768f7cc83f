package sniffer

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
)

type MediaType string

const (
	TypeJPEG MediaType = "jpeg"
	TypePNG  MediaType = "png"
	TypeGIF  MediaType = "gif"
	TypeWEBP MediaType = "webp"
	TypeAVIF MediaType = "avif"
)

// HeadSize is how many leading bytes Detect inspects.
const HeadSize = 512

var ErrUnknownType = errors.New("unknown media type")

// Result describes a raster image recognised from its magic bytes. Vector
// formats are not recognised: avatars are served back verbatim.
type Result struct {
	Type MediaType
	MIME string
}

func (r Result) Extension() string {
	if r.Type == TypeJPEG {
		return "jpg"
	}
	return string(r.Type)
}

type signature struct {
	result Result
	match  func(head []byte) bool
}

var signatures = []signature{
	{Result{TypeJPEG, "image/jpeg"}, prefix("\xff\xd8\xff")},
	{Result{TypePNG, "image/png"}, prefix("\x89PNG\r\n\x1a\n")},
	{Result{TypeGIF, "image/gif"}, anyPrefix("GIF87a", "GIF89a")},
	{Result{TypeWEBP, "image/webp"}, func(h []byte) bool {
		return len(h) >= 12 && bytes.HasPrefix(h, []byte("RIFF")) && string(h[8:12]) == "WEBP"
	}},
	{Result{TypeAVIF, "image/avif"}, func(h []byte) bool {
		return len(h) >= 12 && string(h[4:8]) == "ftyp" && bytes.Contains(h[8:], []byte("avif"))
	}},
}

func prefix(magic string) func([]byte) bool {
	return func(h []byte) bool { return bytes.HasPrefix(h, []byte(magic)) }
}

func anyPrefix(magics ...string) func([]byte) bool {
	return func(h []byte) bool {
		for _, m := range magics {
			if bytes.HasPrefix(h, []byte(m)) {
				return true
			}
		}
		return false
	}
}

// Detect reads up to HeadSize bytes from r and returns them with the result
// so the caller can stitch the stream back together.
func Detect(r io.Reader) (Result, []byte, error) {
	head := make([]byte, HeadSize)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Result{}, nil, err
	}
	head = head[:n]

	result, err := DetectHead(head)
	return result, head, err
}

func DetectHead(head []byte) (Result, error) {
	for _, sig := range signatures {
		if sig.match(head) {
			return sig.result, nil
		}
	}
	return Result{}, ErrUnknownType
}

// MimeTypeFromHTTP returns the media type of a Content-Type header without
// its parameters.
func MimeTypeFromHTTP(header http.Header) string {
	contentType, _, _ := strings.Cut(header.Get("Content-Type"), ";")
	return strings.ToLower(strings.TrimSpace(contentType))
}
