package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/sells-group/dealroom-cli/internal/model"
	"github.com/sells-group/dealroom-cli/internal/parser"
)

// Heuristic is the keyword/regex fallback classifier. It never returns an
// error: observations that match nothing come back unclassified with LOW
// confidence, which the pipeline persists as cell facts only.
type Heuristic struct{}

// NewHeuristic returns the fallback classifier.
func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

type keywordRule struct {
	pattern  *regexp.Regexp
	key      string
	category string
}

// Rules are ordered: the first match wins, so the more specific metrics
// (NPV, royalty) sit above the broad ones (production, reserves).
var keywordRules = []keywordRule{
	{regexp.MustCompile(`(?i)\bnpv\b|net present value`), "npv", "financial"},
	{regexp.MustCompile(`(?i)\birr\b|internal rate of return`), "irr", "financial"},
	{regexp.MustCompile(`(?i)\bpayback\b`), "payback", "financial"},
	{regexp.MustCompile(`(?i)\bcapex\b|capital (cost|expenditure)`), "capex", "costs"},
	{regexp.MustCompile(`(?i)\bopex\b|operating (cost|expense)|lifting cost|\bloe\b`), "opex", "costs"},
	{regexp.MustCompile(`(?i)\broyalt`), "royalty_rate", "fiscal"},
	{regexp.MustCompile(`(?i)severance|\btax\b`), "tax_rate", "fiscal"},
	{regexp.MustCompile(`(?i)working interest|\bwi\b`), "working_interest", "fiscal"},
	{regexp.MustCompile(`(?i)net revenue interest|\bnri\b`), "net_revenue_interest", "fiscal"},
	{regexp.MustCompile(`(?i)discount rate`), "discount_rate", "scalar"},
	{regexp.MustCompile(`(?i)\bdecline\b`), "decline_rate", "scalar"},
	{regexp.MustCompile(`(?i)price deck|\bprice\b`), "commodity_price", "scalar"},
	{regexp.MustCompile(`(?i)cash ?flow|\bfcf\b`), "cash_flow", "financial"},
	{regexp.MustCompile(`(?i)\brevenue\b|\bsales\b`), "revenue", "financial"},
	{regexp.MustCompile(`(?i)\breserves?\b|\beur\b|\b[123]p\b|proved|probable|possible`), "reserves", "reserves"},
	{regexp.MustCompile(`(?i)\bprod(uction)?\b|\bbopd\b|\bboed\b|\bmcfd\b|\bmmcfd\b`), "production", "production"},
}

var gasPattern = regexp.MustCompile(`(?i)\bgas\b|\bmcf\b|\bmmcf\b|\bbcf\b|\bmcfd\b|\bmmcfd\b`)

// unitPattern matches the unit tokens that show up in spreadsheet headers,
// both bare ("kbbl") and parenthesized ("Oil (MMbbl)").
var unitPattern = regexp.MustCompile(`(?i)\b(kbbl|mbbl|mmbbl|bbl|stb|bopd|boed|boe|mcfd|mmcfd|mcf|mmcf|bcf|usd|\$mm|\$m|\$k)\b`)

var caseRules = []struct {
	pattern  *regexp.Regexp
	caseName string
}{
	{regexp.MustCompile(`(?i)management case|mgmt case`), "management_case"},
	{regexp.MustCompile(`(?i)\bcpr\b`), "cpr_case"},
	{regexp.MustCompile(`(?i)base case`), "base_case"},
	{regexp.MustCompile(`(?i)low case|downside`), "low_case"},
	{regexp.MustCompile(`(?i)high case|upside`), "high_case"},
}

func (h *Heuristic) Classify(_ context.Context, obs model.RawObservation, doc DocContext) (model.Classification, error) {
	haystack := strings.Join(obs.ContextHeaders, " ") + " " + obs.RawText + " " + doc.Label + " " + doc.Filename

	cl := model.Classification{
		Category:   model.CategoryUnclassified,
		Confidence: model.ConfidenceLow,
		CaseName:   doc.CaseName,
	}

	for _, rule := range keywordRules {
		if !rule.pattern.MatchString(haystack) {
			continue
		}
		cl.SemanticKey = rule.key
		cl.Category = rule.category
		cl.Table, _ = TableForCategory(rule.category)
		cl.Confidence = model.ConfidenceMedium
		break
	}

	// Oil and gas streams are distinct series even when the header keyword
	// is shared.
	switch cl.SemanticKey {
	case "production", "reserves", "commodity_price":
		if gasPattern.MatchString(haystack) {
			cl.SemanticKey = "gas_" + cl.SemanticKey
		} else {
			cl.SemanticKey = "oil_" + cl.SemanticKey
		}
	}

	if m := unitPattern.FindString(haystack); m != "" {
		cl.Unit = strings.ToLower(m)
	}

	for _, header := range obs.ContextHeaders {
		if period := parser.ParsePeriod(header); period != "" {
			cl.Period = period
			break
		}
	}

	for _, rule := range caseRules {
		if rule.pattern.MatchString(haystack) {
			cl.CaseName = rule.caseName
			break
		}
	}

	if doc.Label != "" {
		cl.Entity = doc.Label
	}

	cl.IsOutput = obs.FormulaText != ""
	if !cl.IsOutput && cl.Category != model.CategoryUnclassified {
		cl.IsAssumption = cl.Category == "fiscal" || cl.Category == "scalar" ||
			strings.Contains(strings.ToLower(haystack), "assumption")
	}

	if cl.Category != model.CategoryUnclassified && cl.Unit != "" && cl.Period != "" {
		cl.Confidence = model.ConfidenceHigh
	}
	return cl, nil
}
