package api

const configureSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["fee_percent"],
  "properties": {
    "fee_percent": {"type": "integer", "minimum": 0, "maximum": 255}
  }
}`

const depositSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["recipient1", "recipient2", "funds"],
  "properties": {
    "recipient1": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9._-]{1,63}$"},
    "recipient2": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9._-]{1,63}$"},
    "funds": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["denom", "amount"],
        "properties": {
          "denom": {"type": "string", "minLength": 1, "maxLength": 128},
          "amount": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

const withdrawSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["denom", "amount"],
  "properties": {
    "denom": {"type": "string", "minLength": 1, "maxLength": 128},
    "amount": {"type": "integer", "minimum": 1}
  }
}`

const withdrawAllSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["denom"],
  "properties": {
    "denom": {"type": "string", "minLength": 1, "maxLength": 128}
  }
}`
