package registry

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"convoke"
)

// validateAgainstSchema checks params against a draft-07 JSON schema and
// converts violations into ValidationError values keyed by instance path
// (e.g. "/query"). A nil schema accepts everything.
func validateAgainstSchema(schema map[string]interface{}, params map[string]interface{}) []convoke.ValidationError {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(params),
	)
	if err != nil {
		return []convoke.ValidationError{{
			Field:     "/",
			ErrorType: "schema",
			Message:   fmt.Sprintf("schema evaluation failed: %v", err),
		}}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]convoke.ValidationError, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		violations = append(violations, convoke.ValidationError{
			Field:     instancePath(re),
			ErrorType: re.Type(),
			Message:   re.Description(),
			Expected:  detailString(re, "expected"),
			Actual:    detailString(re, "given"),
		})
	}
	return violations
}

// instancePath renders the violation location as a JSON-pointer-ish path.
// A missing required property is attributed to the property itself rather
// than its parent object.
func instancePath(re gojsonschema.ResultError) string {
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			parent := re.Field()
			if parent == "(root)" {
				return "/" + prop
			}
			return "/" + strings.ReplaceAll(parent, ".", "/") + "/" + prop
		}
	}
	field := re.Field()
	if field == "(root)" {
		return "/"
	}
	return "/" + strings.ReplaceAll(field, ".", "/")
}

func detailString(re gojsonschema.ResultError, key string) string {
	if v, ok := re.Details()[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
