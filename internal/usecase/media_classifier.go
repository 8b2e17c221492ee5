package usecase

import (
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/user/college-service/internal/entity"
)

// MediaKind is the outcome of classifying one value.
type MediaKind int

const (
	NotMedia MediaKind = iota
	EncodedInline
	RawBytes
	MalformedMedia
)

func (k MediaKind) String() string {
	switch k {
	case NotMedia:
		return "not_media"
	case EncodedInline:
		return "encoded_inline"
	case RawBytes:
		return "raw_bytes"
	case MalformedMedia:
		return "malformed"
	default:
		return "unknown"
	}
}

// MediaPayload is a classified value. Data is set for EncodedInline and
// RawBytes, Err for MalformedMedia.
type MediaPayload struct {
	Kind MediaKind
	Data []byte
	Err  error
}

const (
	dataImagePrefix = "data:image"
	imageTypeTag    = "image"
)

var (
	dataImageURL = regexp.MustCompile(`(?s)^data:image/([\w.+-]+);base64,(.*)$`)

	errEmptyPayload = errors.New("image payload is empty")
)

// ClassifyMedia decides whether v is an embedded image. Strings are checked
// for a base64 image data URL first, then byte buffers and image-tagged
// objects carrying a data field. Everything else is NotMedia.
func ClassifyMedia(v entity.Value) MediaPayload {
	if s, ok := v.AsString(); ok {
		if !strings.HasPrefix(s, dataImagePrefix) {
			return MediaPayload{Kind: NotMedia}
		}
		data, err := DecodeDataImageURL(s)
		if err != nil {
			return MediaPayload{Kind: MalformedMedia, Err: err}
		}
		return MediaPayload{Kind: EncodedInline, Data: data}
	}

	if b, ok := v.AsBytes(); ok {
		if len(b) == 0 {
			return MediaPayload{Kind: MalformedMedia, Err: errEmptyPayload}
		}
		return MediaPayload{Kind: RawBytes, Data: b}
	}

	if m, ok := v.AsMapping(); ok {
		tag, _ := m["type"].AsString()
		data, hasData := m["data"]
		if !strings.Contains(tag, imageTypeTag) || !hasData || data.IsNull() {
			return MediaPayload{Kind: NotMedia}
		}
		b, err := taggedBytes(data)
		if err != nil {
			return MediaPayload{Kind: MalformedMedia, Err: fmt.Errorf("%s data: %w", tag, err)}
		}
		return MediaPayload{Kind: RawBytes, Data: b}
	}

	return MediaPayload{Kind: NotMedia}
}

// IsEmbeddedMedia reports whether v will be replaced by a hosted URL.
func IsEmbeddedMedia(v entity.Value) bool {
	return ClassifyMedia(v).Kind != NotMedia
}

// DecodeDataImageURL decodes data:image/<subtype>;base64,<payload>.
func DecodeDataImageURL(s string) ([]byte, error) {
	m := dataImageURL.FindStringSubmatch(s)
	if m == nil {
		return nil, errors.New("not a base64 image data URL")
	}
	data, err := decodeBase64(m[2])
	if err != nil {
		return nil, fmt.Errorf("image/%s payload: %w", m[1], err)
	}
	return data, nil
}

func taggedBytes(data entity.Value) ([]byte, error) {
	switch data.Kind() {
	case entity.KindBytes:
		b, _ := data.AsBytes()
		if len(b) == 0 {
			return nil, errEmptyPayload
		}
		return b, nil
	case entity.KindSequence:
		seq, _ := data.AsSequence()
		b, err := entity.OctetsFromSequence(seq)
		if err != nil {
			return nil, err
		}
		if len(b) == 0 {
			return nil, errEmptyPayload
		}
		return b, nil
	case entity.KindScalar:
		s, ok := data.AsString()
		if !ok {
			break
		}
		if strings.HasPrefix(s, dataImagePrefix) {
			return DecodeDataImageURL(s)
		}
		return decodeBase64(s)
	}
	return nil, fmt.Errorf("unsupported data of kind %s", data.Kind())
}

func decodeBase64(payload string) ([]byte, error) {
	payload = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, payload)
	if payload == "" {
		return nil, errEmptyPayload
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// tolerate clients that drop the padding
		raw, rawErr := base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, fmt.Errorf("decode base64: %w", err)
		}
		data = raw
	}
	if len(data) == 0 {
		return nil, errEmptyPayload
	}
	return data, nil
}
