package badge

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	minPercentage = 0
	maxPercentage = 100
)

const invalidBodyMessage = "invalid request body"

// ParseRequest validates a single badge request body:
//
//	{"label": "coverage", "value": 85.5}
//	{"label": "build", "value": {"text": "passing", "color": "green"}}
//
// Every violation is reported in the returned *Error, not only the first one.
func ParseRequest(body []byte) (Request, error) {
	root, err := parseObject(body)
	if err != nil {
		return Request{}, err
	}

	var v validator
	req := v.request(root, "")
	if err := v.err(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ParseCoverageReport validates a coverage report body:
//
//	{"name": "proj", "reports": [{"label": "unit", "value": 60}]}
//
// An empty reports array is valid.
func ParseCoverageReport(body []byte) (CoverageReport, error) {
	root, err := parseObject(body)
	if err != nil {
		return CoverageReport{}, err
	}

	var v validator
	report := CoverageReport{
		Name: v.nonEmptyString(root.Get("name"), "name"),
	}

	reports := root.Get("reports")
	switch {
	case !reports.Exists():
		v.fail("reports", "is required")
	case !reports.IsArray():
		v.fail("reports", "must be an array")
	default:
		items := reports.Array()
		report.Reports = make([]Request, 0, len(items))
		for i, item := range items {
			prefix := fmt.Sprintf("reports[%d]", i)
			if !item.IsObject() {
				v.fail(prefix, "must be an object")
				continue
			}
			report.Reports = append(report.Reports, v.request(item, prefix+"."))
		}
	}

	if err := v.err(); err != nil {
		return CoverageReport{}, err
	}
	return report, nil
}

func parseObject(body []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, Invalid(invalidBodyMessage, FieldError{Reason: "body is not valid JSON"})
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return gjson.Result{}, Invalid(invalidBodyMessage, FieldError{Reason: "body must be a JSON object"})
	}
	return root, nil
}

// validator accumulates field errors.
type validator struct {
	fields []FieldError
}

func (v *validator) fail(field, reason string) {
	v.fields = append(v.fields, FieldError{Field: field, Reason: reason})
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return Invalid(invalidBodyMessage, v.fields...)
}

func (v *validator) request(obj gjson.Result, prefix string) Request {
	return Request{
		Label: v.nonEmptyString(obj.Get("label"), prefix+"label"),
		Value: v.value(obj.Get("value"), prefix+"value"),
	}
}

func (v *validator) nonEmptyString(r gjson.Result, field string) string {
	switch {
	case !r.Exists():
		v.fail(field, "is required")
	case r.Type != gjson.String:
		v.fail(field, "must be a string")
	case strings.TrimSpace(r.Str) == "":
		v.fail(field, "must not be empty")
	default:
		return r.Str
	}
	return ""
}

func (v *validator) value(r gjson.Result, field string) Value {
	switch {
	case !r.Exists():
		v.fail(field, "is required")
	case r.Type == gjson.Number:
		if r.Num < minPercentage || r.Num > maxPercentage {
			v.fail(field, fmt.Sprintf("must be between %d and %d", minPercentage, maxPercentage))
			return Value{}
		}
		return Percentage(r.Num)
	case r.IsObject():
		text := v.nonEmptyString(r.Get("text"), field+".text")
		color := v.nonEmptyString(r.Get("color"), field+".color")
		return Literal(text, color)
	default:
		v.fail(field, fmt.Sprintf("must be a number between %d and %d or an object with text and color", minPercentage, maxPercentage))
	}
	return Value{}
}
