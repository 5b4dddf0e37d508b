package api

// Amounts travel as decimal-free digit strings (base units), never JSON
// numbers, so precision is preserved end to end.

const amountPattern = `^[1-9][0-9]*$`

const depositNativeSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["amount"],
  "properties": {
    "amount": {"type": "string", "pattern": "` + amountPattern + `"}
  }
}`

const depositAssetSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["asset", "amount"],
  "properties": {
    "asset": {"type": "string", "minLength": 1, "maxLength": 64},
    "amount": {"type": "string", "pattern": "` + amountPattern + `"}
  }
}`

const depositSwapSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["asset_in", "amount_in", "min_out"],
  "properties": {
    "asset_in": {"type": "string", "minLength": 1, "maxLength": 64},
    "amount_in": {"type": "string", "pattern": "` + amountPattern + `"},
    "min_out": {"type": "string", "pattern": "^[0-9]+$"},
    "fee_tier": {"type": "integer", "minimum": 0}
  }
}`

const withdrawNativeSchema = depositNativeSchema

const withdrawAssetSchema = depositAssetSchema

const withdrawStableSchema = depositNativeSchema

const registerAssetSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["asset", "decimals"],
  "properties": {
    "asset": {"type": "string", "minLength": 1, "maxLength": 64},
    "decimals": {"type": "integer", "minimum": 0, "maximum": 18}
  }
}`

const adminExtractSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["principal", "asset", "amount", "destination"],
  "properties": {
    "principal": {"type": "string", "minLength": 1, "maxLength": 255},
    "asset": {"type": "string", "minLength": 1, "maxLength": 64},
    "amount": {"type": "string", "pattern": "` + amountPattern + `"},
    "destination": {"type": "string", "minLength": 1, "maxLength": 255}
  }
}`
