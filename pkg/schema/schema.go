// Package schema carries the email_triage_v2 JSON Schema that every LLM
// verdict must satisfy. The document is embedded so the service has no
// runtime file dependency; operators can still point the config at an
// on-disk override, in which case the {"name": ..., "schema": {...}}
// wrapper emitted by structured-output tooling is unwrapped transparently.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version identifies the verdict contract. It is recorded in every
// PipelineVersion snapshot so results can be traced back to the schema
// they were validated against.
const Version = "email_triage_v2"

// Document bundles the unwrapped schema object with its compiled Draft-7
// validator. Raw feeds the gateway's structured-output format field;
// Compiled feeds validation stage 2.
type Document struct {
	Raw      map[string]any
	Compiled *jsonschema.Schema
}

// Embedded parses and compiles the built-in email_triage_v2 document.
func Embedded() (*Document, error) {
	return parse([]byte(embeddedJSON))
}

// FromFile loads a schema document from disk. The file may contain either
// the bare Draft-7 document or the {"name": ..., "schema": {...}} wrapper.
func FromFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	doc, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return doc, nil
}

func parse(data []byte) (*Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: parse document: %w", err)
	}
	// Structured-output configs wrap the document as {"name", "schema"}.
	if inner, ok := raw["schema"].(map[string]any); ok {
		raw = inner
	}
	compiled, err := compile(raw)
	if err != nil {
		return nil, err
	}
	return &Document{Raw: raw, Compiled: compiled}, nil
}

func compile(raw map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal document: %w", err)
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource("schema.json", strings.NewReader(string(b))); err != nil {
		return nil, fmt.Errorf("schema: add resource: %w", err)
	}
	s, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema: compile: %w", err)
	}
	return s, nil
}

// embeddedJSON is the email_triage_v2 contract. Hard limits live here
// (stage 2 rejects violations); softer quality thresholds, like the
// 180-char quote warning, live in validation stage 4.
const embeddedJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "$id": "email_triage_v2.json",
  "title": "Email Triage Response v2",
  "type": "object",
  "additionalProperties": false,
  "required": ["dictionaryversion", "sentiment", "priority", "topics"],
  "properties": {
    "dictionaryversion": {
      "type": "integer",
      "minimum": 1
    },
    "sentiment": {
      "type": "object",
      "additionalProperties": false,
      "required": ["value", "confidence"],
      "properties": {
        "value": {
          "type": "string",
          "enum": ["positive", "neutral", "negative"]
        },
        "confidence": {
          "type": "number",
          "minimum": 0,
          "maximum": 1
        }
      }
    },
    "priority": {
      "type": "object",
      "additionalProperties": false,
      "required": ["value", "confidence", "signals"],
      "properties": {
        "value": {
          "type": "string",
          "enum": ["low", "medium", "high", "urgent"]
        },
        "confidence": {
          "type": "number",
          "minimum": 0,
          "maximum": 1
        },
        "signals": {
          "type": "array",
          "maxItems": 6,
          "items": {
            "type": "string",
            "maxLength": 80
          }
        }
      }
    },
    "topics": {
      "type": "array",
      "minItems": 1,
      "maxItems": 5,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["labelid", "confidence", "keywordsintext", "evidence"],
        "properties": {
          "labelid": {
            "type": "string",
            "enum": [
              "FATTURAZIONE",
              "ASSISTENZATECNICA",
              "RECLAMO",
              "INFOCOMMERCIALI",
              "DOCUMENTI",
              "APPUNTAMENTO",
              "CONTRATTO",
              "GARANZIA",
              "SPEDIZIONE",
              "UNKNOWNTOPIC"
            ]
          },
          "confidence": {
            "type": "number",
            "minimum": 0,
            "maximum": 1
          },
          "keywordsintext": {
            "type": "array",
            "minItems": 1,
            "maxItems": 15,
            "items": {
              "type": "object",
              "additionalProperties": false,
              "required": ["candidateid", "lemma", "count"],
              "properties": {
                "candidateid": {
                  "type": "string",
                  "minLength": 1
                },
                "lemma": {
                  "type": "string",
                  "minLength": 1
                },
                "count": {
                  "type": "integer",
                  "minimum": 1
                },
                "spans": {
                  "type": "array",
                  "items": {
                    "type": "array",
                    "minItems": 2,
                    "maxItems": 2,
                    "items": {
                      "type": "integer",
                      "minimum": 0
                    }
                  }
                }
              }
            }
          },
          "evidence": {
            "type": "array",
            "minItems": 1,
            "maxItems": 2,
            "items": {
              "type": "object",
              "additionalProperties": false,
              "required": ["quote"],
              "properties": {
                "quote": {
                  "type": "string",
                  "minLength": 1,
                  "maxLength": 200
                },
                "span": {
                  "type": "array",
                  "minItems": 2,
                  "maxItems": 2,
                  "items": {
                    "type": "integer",
                    "minimum": 0
                  }
                }
              }
            }
          }
        }
      }
    }
  }
}`
