package backend

import (
	"github.com/xeipuuv/gojsonschema"
)

// Shape schemas describe what the panels expect. A deviation is logged and the
// payload still flows through; panels fall back to their empty state.
const optimizeResultSchema = `{
  "type": "object",
  "properties": {
    "ats": {
      "type": ["object", "null"],
      "properties": {
        "gap_analysis": {
          "type": ["object", "null"],
          "properties": {
            "ats_score_before": {"type": ["number", "null"]},
            "ats_score_after": {"type": ["number", "null"]},
            "keywords_injected": {"type": ["array", "null"], "items": {"type": "string"}},
            "critical_gaps": {"type": ["array", "null"]}
          }
        },
        "pdf_path": {"type": ["string", "null"]}
      }
    },
    "interview": {
      "type": ["object", "null"],
      "properties": {
        "questions": {
          "type": ["array", "null"],
          "items": {"type": "object", "required": ["question"]}
        }
      }
    },
    "affiliate": {
      "type": ["object", "null"],
      "properties": {
        "courses": {
          "type": ["array", "null"],
          "items": {
            "type": "object",
            "properties": {
              "priority": {"enum": ["critical", "high", "medium", "nice_to_have"]}
            }
          }
        }
      }
    },
    "summary": {
      "type": ["object", "null"],
      "properties": {"pdf_ready": {"type": "boolean"}}
    }
  }
}`

const spyglassStatsSchema = `{
  "type": "object",
  "required": ["total_views"],
  "properties": {
    "total_views": {"type": "integer", "minimum": 0},
    "unique_viewers": {"type": "integer", "minimum": 0},
    "events": {"type": ["array", "null"]},
    "geo_breakdown": {"type": ["object", "null"], "additionalProperties": {"type": "integer"}},
    "map_points": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["lat", "lng"],
        "properties": {
          "lat": {"type": "number", "minimum": -90, "maximum": 90},
          "lng": {"type": "number", "minimum": -180, "maximum": 180}
        }
      }
    }
  }
}`

var (
	optimizeSchemaLoader = gojsonschema.NewStringLoader(optimizeResultSchema)
	spyglassSchemaLoader = gojsonschema.NewStringLoader(spyglassStatsSchema)
)

// ShapeIssue is one schema deviation in a backend payload
type ShapeIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// checkShape validates body against a schema and lists deviations
func checkShape(schema gojsonschema.JSONLoader, body []byte) ([]ShapeIssue, error) {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}

	issues := make([]ShapeIssue, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" {
			field = "(root)"
		}
		issues = append(issues, ShapeIssue{Field: field, Message: desc.Description()})
	}
	return issues, nil
}

// auditShape logs deviations without failing the call
func (c *Client) auditShape(operation string, schema gojsonschema.JSONLoader, body []byte) {
	issues, err := checkShape(schema, body)
	if err != nil {
		c.logger.Debug("Skipping response shape check", "operation", operation, "error", err.Error())
		return
	}
	for _, issue := range issues {
		c.logger.Warn("Backend response deviates from expected shape",
			"operation", operation,
			"field", issue.Field,
			"issue", issue.Message)
	}
}
