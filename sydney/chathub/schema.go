package chathub

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// conversationSchema describes a usable conversation create response.
const conversationSchema = `{
  "type": "object",
  "required": ["result", "conversationId", "clientId"],
  "properties": {
    "conversationId": {"type": "string", "minLength": 1},
    "clientId": {"type": "string", "minLength": 1},
    "conversationSignature": {"type": ["string", "null"]},
    "result": {
      "type": "object",
      "required": ["value"],
      "properties": {
        "value": {"type": "string"},
        "message": {"type": ["string", "null"]}
      }
    }
  }
}`

// uploadSchema describes the image upload response.
const uploadSchema = `{
  "type": "object",
  "required": ["blobId"],
  "properties": {
    "blobId": {"type": "string", "minLength": 1},
    "processedBlobId": {"type": ["string", "null"]}
  }
}`

var (
	conversationResponseSchema = mustSchema(conversationSchema)
	uploadResponseSchema       = mustSchema(uploadSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid embedded schema: %v", err))
	}
	return s
}

func validateDocument(schema *gojsonschema.Schema, doc []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
