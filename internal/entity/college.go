package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// IDField is the key under which a stored college's identifier is exposed.
const IDField = "_id"

// Field names the rest of the service refers to directly.
const (
	FieldCollegeName   = "collegeName"
	FieldImageURL      = "imageUrl"
	FieldImagePublicID = "imagePublicId"
)

// ErrValidation marks a document rejected by the college schema.
var ErrValidation = errors.New("validation failed")

// College is a stored college document.
type College struct {
	ID       string
	Document Record
}

// MarshalJSON flattens the document and adds the identifier under "_id".
func (c College) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, len(c.Document)+1)
	for k, v := range c.Document {
		out[k] = v
	}
	out[IDField] = String(c.ID)
	return json.Marshal(out)
}

func (c *College) UnmarshalJSON(data []byte) error {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	id, _ := rec[IDField].AsString()
	delete(rec, IDField)
	c.ID = id
	c.Document = rec
	return nil
}

// FieldKind is the storage type of a top-level college field.
type FieldKind int

const (
	FieldAny FieldKind = iota
	FieldString
	FieldNumber
	FieldSequence
	FieldMapping
)

type FieldSpec struct {
	Kind     FieldKind
	Required bool
}

// Schema declares the top-level fields a document may carry.
type Schema map[string]FieldSpec

// CollegeSchema mirrors the storage schema of college documents.
var CollegeSchema = Schema{
	FieldCollegeName:       {Kind: FieldString, Required: true},
	"collegeLocation":      {Kind: FieldString, Required: true},
	"collegeLogo":          {Kind: FieldString},
	"aboutUsSub":           {Kind: FieldString},
	"highestPackage":       {Kind: FieldString},
	"averagePackage":       {Kind: FieldString},
	"established":          {Kind: FieldNumber},
	"collegeImage":         {Kind: FieldString},
	"overview":             {Kind: FieldSequence},
	"coursesAndFeeHeading": {Kind: FieldString},
	"coursesAndFee":        {Kind: FieldSequence},
	"minFee":               {Kind: FieldNumber},
	"maxFee":               {Kind: FieldAny},
	"admissionProcess":     {Kind: FieldMapping},
	"approvalAndRanking":   {Kind: FieldMapping},
	"certificates":         {Kind: FieldSequence},
	"placement":            {Kind: FieldMapping},
	"faculty":              {Kind: FieldSequence},
	"examDetails":          {Kind: FieldMapping},
	"gallery":              {Kind: FieldSequence},
	"sampleDegree":         {Kind: FieldMapping},
	"reviews":              {Kind: FieldSequence},
	"examPattern":          {Kind: FieldMapping},
	FieldImageURL:          {Kind: FieldString},
	FieldImagePublicID:     {Kind: FieldString},
}

// ConformOptions tunes Schema.Conform.
type ConformOptions struct {
	// Partial skips required-field checks, for updates.
	Partial bool
	// Pending reports values that are not strings yet but will be replaced
	// by one before storage, such as embedded images.
	Pending func(Value) bool
}

// Conform returns a copy of rec restricted to the schema's fields with
// number fields cast from numeric strings. Unknown keys are dropped.
func (s Schema) Conform(rec Record, opts ConformOptions) (Record, error) {
	out := make(Record, len(rec))
	var problems []string
	for key, v := range rec {
		spec, known := s[key]
		if !known {
			continue
		}
		if v.IsNull() {
			out[key] = v
			continue
		}
		cast, err := spec.check(v, opts)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", key, err))
			continue
		}
		out[key] = cast
	}
	if !opts.Partial {
		for key, spec := range s {
			if !spec.Required {
				continue
			}
			v, ok := out[key]
			if str, isString := v.AsString(); !ok || v.IsNull() || (isString && strings.TrimSpace(str) == "") {
				problems = append(problems, fmt.Sprintf("%s: path is required", key))
			}
		}
	}
	if len(problems) > 0 {
		slices.Sort(problems)
		return nil, fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return out, nil
}

func (f FieldSpec) check(v Value, opts ConformOptions) (Value, error) {
	switch f.Kind {
	case FieldString:
		if _, ok := v.AsString(); ok {
			return v, nil
		}
		if opts.Pending != nil && opts.Pending(v) {
			return v, nil
		}
		if n, ok := v.AsNumber(); ok {
			return String(strconv.FormatFloat(n, 'f', -1, 64)), nil
		}
		return Value{}, fmt.Errorf("expected string, got %s", v.Kind())
	case FieldNumber:
		if _, ok := v.AsNumber(); ok {
			return v, nil
		}
		if s, ok := v.AsString(); ok {
			s = strings.TrimSpace(s)
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return Scalar(i), nil
			}
			if fl, err := strconv.ParseFloat(s, 64); err == nil {
				return Scalar(fl), nil
			}
		}
		return Value{}, fmt.Errorf("expected number, got %s", v.Kind())
	case FieldSequence:
		if v.Kind() == KindSequence {
			return v, nil
		}
		return Value{}, fmt.Errorf("expected array, got %s", v.Kind())
	case FieldMapping:
		if v.Kind() == KindMapping {
			return v, nil
		}
		return Value{}, fmt.Errorf("expected object, got %s", v.Kind())
	}
	return v, nil
}
