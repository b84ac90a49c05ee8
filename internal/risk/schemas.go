package risk

// JSON Schemas for the risk tool arguments. Validation happens in the MCP
// dispatcher before the handlers run; the handlers still re-check the
// numeric invariants the schemas cannot express.

const positionsSchemaFragment = `{
	"type": "array",
	"minItems": 1,
	"items": {
		"type": "object",
		"required": ["ticker", "weight"],
		"properties": {
			"ticker": {"type": "string", "minLength": 1},
			"weight": {"type": "number", "minimum": 0, "maximum": 1},
			"asset_class": {"type": "string", "enum": ["equity", "fixed_income", "credit", "cash", "fx"]},
			"issuer": {"type": "string"},
			"currency": {"type": "string"},
			"liquidity_bucket": {"type": "string", "enum": ["0-7d", "8-30d", "31-90d", "90d+"]}
		},
		"additionalProperties": false
	}
}`

const stressScenariosSchemaFragment = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["name"],
		"properties": {
			"name": {"type": "string", "minLength": 1},
			"equity_shock": {"type": "number"},
			"fx_shock": {"type": "number"},
			"rates_shock_bp": {"type": "number"},
			"credit_shock_bp": {"type": "number"}
		},
		"additionalProperties": false
	}
}`

const aggregatesSchemaFragment = `{
	"type": "object",
	"properties": {
		"fixed_income_duration_years": {"type": "number", "minimum": 0},
		"credit_spread_duration_years": {"type": "number", "minimum": 0}
	},
	"additionalProperties": false
}`

const covenantLimitsSchemaFragment = `{
	"type": "object",
	"properties": {
		"max_loss_pct": {"type": "number", "minimum": 0},
		"min_portfolio_value": {"type": "number", "minimum": 0}
	},
	"additionalProperties": false
}`

var analyzePortfolioSchema = `{
	"type": "object",
	"required": ["positions", "from_date", "to_date"],
	"properties": {
		"positions": ` + positionsSchemaFragment + `,
		"from_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"to_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"base_currency": {"type": "string"},
		"rebalance": {"type": "string", "enum": ["buy_and_hold", "monthly"]},
		"aggregates": ` + aggregatesSchemaFragment + `,
		"stress_scenarios": ` + stressScenariosSchemaFragment + `,
		"var_config": {
			"type": "object",
			"properties": {
				"confidence": {"type": "number", "exclusiveMinimum": 0, "exclusiveMaximum": 1},
				"horizon_days": {"type": "number", "minimum": 1}
			},
			"additionalProperties": false
		},
		"total_portfolio_value": {"type": "number", "minimum": 0},
		"covenant_limits": ` + covenantLimitsSchemaFragment + `,
		"risk_prefs": {
			"type": "object",
			"properties": {
				"max_var_light": {"type": "number", "minimum": 0},
				"max_top1_pct": {"type": "number", "minimum": 0},
				"max_hhi": {"type": "number", "minimum": 0}
			},
			"additionalProperties": false
		}
	},
	"additionalProperties": false
}`

var suggestRebalanceSchema = `{
	"type": "object",
	"required": ["positions", "risk_profile"],
	"properties": {
		"positions": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["ticker", "current_weight"],
				"properties": {
					"ticker": {"type": "string", "minLength": 1},
					"current_weight": {"type": "number", "minimum": 0, "maximum": 1},
					"asset_class": {"type": "string", "enum": ["equity", "fixed_income", "credit", "cash", "fx"]},
					"issuer": {"type": "string"}
				},
				"additionalProperties": false
			}
		},
		"risk_profile": {
			"type": "object",
			"properties": {
				"max_single_position_weight": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
				"max_issuer_weight": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
				"max_turnover": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
				"max_asset_class_weights": {
					"type": "object",
					"additionalProperties": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
				},
				"target_asset_class_weights": {
					"type": "object",
					"additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
				}
			},
			"additionalProperties": false
		},
		"total_portfolio_value": {"type": "number", "minimum": 0}
	},
	"additionalProperties": false
}`

var correlationMatrixSchema = `{
	"type": "object",
	"required": ["tickers", "from_date", "to_date"],
	"properties": {
		"tickers": {
			"type": "array",
			"minItems": 2,
			"items": {"type": "string", "minLength": 1}
		},
		"from_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"to_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"board": {"type": "string"}
	},
	"additionalProperties": false
}`

var liquidityReportSchema = `{
	"type": "object",
	"required": ["positions"],
	"properties": {
		"positions": ` + positionsSchemaFragment + `,
		"aggregates": ` + aggregatesSchemaFragment + `,
		"total_portfolio_value": {"type": "number", "minimum": 0},
		"short_term_liabilities": {"type": "number", "minimum": 0},
		"covenant_limits": ` + covenantLimitsSchemaFragment + `,
		"base_currency": {"type": "string"}
	},
	"additionalProperties": false
}`
