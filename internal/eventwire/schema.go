package eventwire

// envelopeSchema is the JSON schema every inbound event line must satisfy.
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["type", "instrumentId"],
  "properties": {
    "type": {"enum": ["HIT", "REMOVED", "LOG_HIT", "VIEW_METRIC"]},
    "instrumentId": {"type": "string", "minLength": 1},
    "eventId": {"type": "string"},
    "timestamp": {"type": ["string", "number"]},
    "throttled": {"type": "boolean"},
    "cause": {"type": ["string", "null"]},
    "payload": {"type": "object"},
    "metric": {"type": "object"},
    "record": {
      "type": "object",
      "required": ["content"],
      "properties": {
        "content": {"type": "string"},
        "arguments": {"type": "array", "items": {"type": "string"}},
        "level": {"type": "string"},
        "logger": {"type": "string"},
        "thread": {"type": "string"}
      }
    }
  },
  "allOf": [
    {
      "if": {"properties": {"type": {"const": "LOG_HIT"}}},
      "then": {"required": ["record"]}
    }
  ]
}`
