package rule

// Well-known field names.
const (
	FieldRuleID   = "rule_id"
	FieldName     = "name"
	FieldType     = "type"
	FieldVersion  = "version"
	FieldTags     = "tags"
	FieldQuery    = "query"
	FieldLanguage = "language"
)

// baseFields are the fields shared by every rule type that a prebuilt asset
// can ship. Create-time fields that assets never carry (actions, throttle,
// meta, output_index, namespace, alias_purpose, alias_target_id, outcome) are
// left out.
var baseFields = []string{
	"name",
	"description",
	"risk_score",
	"severity",
	"rule_name_override",
	"timestamp_override",
	"timestamp_override_fallback_disabled",
	"timeline_id",
	"timeline_title",
	"license",
	"note",
	"building_block_type",
	"investigation_fields",
	"version",
	"tags",
	"enabled",
	"risk_score_mapping",
	"severity_mapping",
	"interval",
	"from",
	"to",
	"exceptions_list",
	"author",
	"false_positives",
	"references",
	"max_signals",
	"threat",
	"setup",
	"related_integrations",
	"required_fields",
}

// typeSpecificFields lists the fields of each rule type, response_actions
// excluded.
var typeSpecificFields = map[Type][]string{
	TypeEQL: {
		"type", "language", "query", "index", "data_view_id", "filters",
		"event_category_override", "tiebreaker_field", "timestamp_field",
		"alert_suppression",
	},
	TypeQuery: {
		"type", "language", "query", "index", "data_view_id", "filters",
		"saved_id", "alert_suppression",
	},
	TypeSavedQuery: {
		"type", "language", "query", "index", "data_view_id", "filters",
		"saved_id", "alert_suppression",
	},
	TypeThreshold: {
		"type", "language", "query", "index", "data_view_id", "filters",
		"saved_id", "threshold", "alert_suppression",
	},
	TypeThreatMatch: {
		"type", "language", "query", "index", "data_view_id", "filters",
		"saved_id", "threat_query", "threat_mapping", "threat_index",
		"threat_filters", "threat_indicator_path", "threat_language",
		"concurrent_searches", "items_per_search", "alert_suppression",
	},
	TypeMachineLearning: {
		"type", "anomaly_threshold", "machine_learning_job_id",
		"alert_suppression",
	},
	TypeNewTerms: {
		"type", "language", "query", "index", "data_view_id", "filters",
		"new_terms_fields", "history_window_start", "alert_suppression",
	},
	TypeESQL: {
		"type", "language", "query", "alert_suppression",
	},
}

var (
	upgradableFieldsByType = buildUpgradableFields()
	upgradableFieldSets    = buildFieldSets(upgradableFieldsByType)
)

func buildUpgradableFields() map[Type][]string {
	out := make(map[Type][]string, len(typeSpecificFields))
	for t, specific := range typeSpecificFields {
		fields := make([]string, 0, len(baseFields)+len(specific))
		fields = append(fields, baseFields...)
		fields = append(fields, specific...)
		out[t] = fields
	}
	return out
}

func buildFieldSets(byType map[Type][]string) map[Type]map[string]struct{} {
	out := make(map[Type]map[string]struct{}, len(byType))
	for t, fields := range byType {
		set := make(map[string]struct{}, len(fields))
		for _, f := range fields {
			set[f] = struct{}{}
		}
		out[t] = set
	}
	return out
}

// UpgradableFields returns the ordered upgradable field names of a rule type.
// Unknown types yield nil. The returned slice must not be modified.
func UpgradableFields(t Type) []string {
	return upgradableFieldsByType[t]
}

// IsUpgradableField reports whether field is upgradable for the rule type.
func IsUpgradableField(t Type, field string) bool {
	_, ok := upgradableFieldSets[t][field]
	return ok
}
