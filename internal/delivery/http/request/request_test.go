package request

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/college-service/internal/entity"
)

func assertJSON(t *testing.T, want string, doc entity.Record) {
	t.Helper()
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, want, string(body))
}

func TestFieldPath(t *testing.T) {
	tests := []struct {
		name string
		want []string
	}{
		{"collegeName", []string{"collegeName"}},
		{"overview[0]", []string{"overview", "0"}},
		{"overview[]", []string{"overview", ""}},
		{"placement[stats][placementRate]", []string{"placement", "stats", "placementRate"}},
		{"[0]", []string{"[0]"}},
		{"a[b", []string{"a[b"}},
		{"a[b]c]", []string{"a[b]c]"}},
		{"a[b[c]]", []string{"a[b[c]]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fieldPath(tt.name))
		})
	}
}

func TestFoldFormNestsBracketNames(t *testing.T) {
	doc := FoldForm(map[string][]string{
		"collegeName":                     {"IIT Bombay"},
		"overview[0]":                     {"first"},
		"overview[1]":                     {"second"},
		"placement[stats][placementRate]": {"95%"},
		"placement[companies][]":          {"A", "B"},
		"reviews[0][name]":                {"Asha"},
		"reviews[0][rating]":              {"5"},
	})

	assertJSON(t, `{
		"collegeName": "IIT Bombay",
		"overview": ["first", "second"],
		"placement": {"stats": {"placementRate": "95%"}, "companies": ["A", "B"]},
		"reviews": [{"name": "Asha", "rating": "5"}]
	}`, doc)
}

func TestFoldFormRepeatedKeysBecomeSequence(t *testing.T) {
	doc := FoldForm(map[string][]string{
		"courses": {"CSE", "ECE", "ME"},
		"single":  {"only"},
	})

	assertJSON(t, `{"courses": ["CSE", "ECE", "ME"], "single": "only"}`, doc)
}

func TestFoldFormIndexesOutOfOrder(t *testing.T) {
	doc := FoldForm(map[string][]string{
		"overview[10]": {"k"},
		"overview[2]":  {"c"},
	})

	seq, ok := doc["overview"].AsSequence()
	require.True(t, ok)
	require.Len(t, seq, 11)
	assert.True(t, seq[0].IsNull())
	assert.True(t, seq[2].Equal(entity.String("c")))
	assert.True(t, seq[10].Equal(entity.String("k")))
}

func TestFoldFormKeepsJSONValues(t *testing.T) {
	doc := FoldForm(map[string][]string{
		"placement":               {`{"stats": {"placementRate": "90%"}}`},
		"placement[companies][0]": {"A"},
		"coursesAndFee":           {`[{"course": "CSE", "fee": 100}]`},
		"notJSON":                 {"{broken"},
		"gallery[0]":              {`["x", "y"]`},
	})

	assertJSON(t, `{
		"placement": {"stats": {"placementRate": "90%"}, "companies": ["A"]},
		"coursesAndFee": [{"course": "CSE", "fee": 100}],
		"notJSON": "{broken",
		"gallery": [["x", "y"]]
	}`, doc)
}

func TestFoldFormHugeIndexIsAKey(t *testing.T) {
	doc := FoldForm(map[string][]string{"overview[99999999]": {"x"}})

	assertJSON(t, `{"overview": {"99999999": "x"}}`, doc)
}

func TestFoldFormMalformedNameIsLiteral(t *testing.T) {
	doc := FoldForm(map[string][]string{"a[b": {"x"}})

	assertJSON(t, `{"a[b": "x"}`, doc)
}

func TestParseCollegeForm(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("collegeName", "IIT"))
	require.NoError(t, w.WriteField("overview[0]", "one"))
	require.NoError(t, w.WriteField("overview[1]", "two"))
	part, err := w.CreateFormFile(ImageField, "logo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{7, 8})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	form, err := ParseCollegeForm(req)
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 8}, form.Image)
	assertJSON(t, `{"collegeName": "IIT", "overview": ["one", "two"]}`, form.Document)
}
