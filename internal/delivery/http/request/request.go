package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/user/college-service/internal/entity"
)

// maxFormIndex bounds numeric indexes in form field names such as
// "overview[3]".
const maxFormIndex = 1000

// MaxMultipartMemory is the part of a multipart body kept in memory; the
// rest spills to temporary files.
const MaxMultipartMemory = 32 << 20

// Multipart field names.
const (
	ImageField  = "image"
	ImagesField = "images"
)

// UploadBufferRequest is the body of an inline image upload. Image is a
// data URL or a byte buffer.
type UploadBufferRequest struct {
	Image entity.Value `json:"image"`
}

// CollegeForm is a college submitted as multipart form fields with an
// optional image file.
type CollegeForm struct {
	Document entity.Record
	Image    []byte
}

// ParseCollegeForm reads every form value into a document. Bracketed
// names nest: "placement[stats][placementRate]" sets a field inside
// placement, "overview[0]" an element of overview and "overview[]" appends
// one. A name sent more than once collects its values into a sequence.
// Values that hold a JSON object or array are decoded, everything else is
// kept as a string.
func ParseCollegeForm(r *http.Request) (*CollegeForm, error) {
	if err := r.ParseMultipartForm(MaxMultipartMemory); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}

	image, err := ReadFile(r, ImageField)
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		return nil, err
	}
	return &CollegeForm{Document: FoldForm(r.MultipartForm.Value), Image: image}, nil
}

// FoldForm builds a document from form values keyed by possibly bracketed
// field names.
func FoldForm(values map[string][]string) entity.Record {
	root := make(map[string]any, len(values))
	for _, name := range slices.Sorted(maps.Keys(values)) {
		path := fieldPath(name)
		for _, raw := range values[name] {
			root[path[0]] = assign(root[path[0]], path[1:], formValue(raw))
		}
	}

	doc := make(entity.Record, len(root))
	for key, node := range root {
		doc[key] = toValue(node)
	}
	return doc
}

// fieldPath splits "a[b][0]" into a, b and 0. A name that does not follow
// the bracket syntax is a single segment.
func fieldPath(name string) []string {
	open := strings.IndexByte(name, '[')
	if open <= 0 || !strings.HasSuffix(name, "]") {
		return []string{name}
	}
	path := []string{name[:open]}
	for rest := name[open:]; rest != ""; {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end < 0 || strings.IndexByte(rest[1:end], '[') >= 0 {
			return []string{name}
		}
		path = append(path, rest[1:end])
		rest = rest[end+1:]
	}
	return path
}

// assign stores v at segs below cur and returns the updated node. Nodes
// are nil, entity.Value, []any or map[string]any. A value landing on an
// occupied leaf turns it into a sequence.
func assign(cur any, segs []string, v entity.Value) any {
	if len(segs) == 0 {
		switch c := cur.(type) {
		case nil:
			return v
		case []any:
			return append(c, v)
		case map[string]any:
			c[""] = assign(c[""], nil, v)
			return c
		default:
			return []any{c, v}
		}
	}

	cur = expand(cur)
	seg, rest := segs[0], segs[1:]

	if seg == "" {
		switch c := cur.(type) {
		case nil:
			return []any{assign(nil, rest, v)}
		case []any:
			return append(c, assign(nil, rest, v))
		case map[string]any:
			c[strconv.Itoa(len(c))] = assign(nil, rest, v)
			return c
		default:
			return []any{c, assign(nil, rest, v)}
		}
	}

	if idx, err := strconv.Atoi(seg); err == nil && idx >= 0 && idx < maxFormIndex {
		switch c := cur.(type) {
		case map[string]any:
			c[seg] = assign(c[seg], rest, v)
			return c
		case []any:
			for len(c) <= idx {
				c = append(c, nil)
			}
			c[idx] = assign(c[idx], rest, v)
			return c
		case nil:
			seq := make([]any, idx+1)
			seq[idx] = assign(nil, rest, v)
			return seq
		default:
			if idx == 0 {
				return []any{c, assign(nil, rest, v)}
			}
			seq := make([]any, idx+1)
			seq[0] = c
			seq[idx] = assign(nil, rest, v)
			return seq
		}
	}

	var m map[string]any
	switch c := cur.(type) {
	case map[string]any:
		m = c
	case []any:
		m = make(map[string]any, len(c)+1)
		for i, el := range c {
			if el != nil {
				m[strconv.Itoa(i)] = el
			}
		}
	case nil:
		m = map[string]any{}
	default:
		m = map[string]any{"": c}
	}
	m[seg] = assign(m[seg], rest, v)
	return m
}

// expand opens a decoded JSON object or array so bracketed fields can
// extend it.
func expand(cur any) any {
	v, ok := cur.(entity.Value)
	if !ok {
		return cur
	}
	if m, ok := v.AsMapping(); ok {
		out := make(map[string]any, len(m))
		for k, el := range m {
			out[k] = el
		}
		return out
	}
	if seq, ok := v.AsSequence(); ok {
		out := make([]any, len(seq))
		for i, el := range seq {
			out[i] = el
		}
		return out
	}
	return cur
}

func toValue(node any) entity.Value {
	switch n := node.(type) {
	case entity.Value:
		return n
	case []any:
		seq := make([]entity.Value, len(n))
		for i, el := range n {
			seq[i] = toValue(el)
		}
		return entity.Sequence(seq...)
	case map[string]any:
		rec := make(entity.Record, len(n))
		for k, el := range n {
			rec[k] = toValue(el)
		}
		return entity.Mapping(rec)
	}
	return entity.Null()
}

func formValue(s string) entity.Value {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v entity.Value
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return entity.String(s)
}

// ReadFile returns the content of the first file sent under field. It
// returns http.ErrMissingFile when there is none.
func ReadFile(r *http.Request, field string) ([]byte, error) {
	if r.MultipartForm == nil {
		if err := r.ParseMultipartForm(MaxMultipartMemory); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, http.ErrMissingFile
	}
	return readPart(headers[0])
}

// ReadFiles returns the content of every file sent under field.
func ReadFiles(r *http.Request, field string) ([][]byte, error) {
	if err := r.ParseMultipartForm(MaxMultipartMemory); err != nil {
		return nil, fmt.Errorf("parse multipart form: %w", err)
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, http.ErrMissingFile
	}
	files := make([][]byte, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		files = append(files, data)
	}
	return files, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return buf.Bytes(), nil
}
