// Package risk implements the risk scoring engine. It computes
// vulnerability, threat, and business-impact sub-scores and combines them
// into a weighted overall score and discrete level. All functions are pure
// and fully reproducible from their inputs.
package risk

import (
	"math"
	"strings"
)

// Level is a discrete severity bucket derived from a continuous 0-10 score.
type Level string

const (
	LevelCritical Level = "critical"
	LevelHigh     Level = "high"
	LevelMedium   Level = "medium"
	LevelLow      Level = "low"
	LevelInfo     Level = "info"
)

// AssetType classifies an asset for risk weighting.
type AssetType string

const (
	AssetDatabase       AssetType = "database"
	AssetServer         AssetType = "server"
	AssetWebApplication AssetType = "web_application"
	AssetNetworkDevice  AssetType = "network_device"
	AssetWorkstation    AssetType = "workstation"
	AssetMobileDevice   AssetType = "mobile_device"
	AssetIOTDevice      AssetType = "iot_device"
	AssetCloudService   AssetType = "cloud_service"
)

// assetTypeMultipliers weight the overall score by asset class.
var assetTypeMultipliers = map[AssetType]float64{
	AssetDatabase:       1.5,
	AssetServer:         1.3,
	AssetWebApplication: 1.4,
	AssetNetworkDevice:  1.2,
	AssetWorkstation:    1.0,
	AssetMobileDevice:   0.9,
	AssetIOTDevice:      0.8,
	AssetCloudService:   1.1,
}

// businessUnitMultipliers weight the overall score by the owning unit.
// Unknown units default to 1.0.
var businessUnitMultipliers = map[string]float64{
	"finance":    1.5,
	"hr":         1.3,
	"it":         1.4,
	"operations": 1.2,
	"marketing":  1.0,
	"sales":      1.1,
	"support":    0.9,
}

// severityWeights map finding severities to base contributions.
var severityWeights = map[string]float64{
	"critical": 10.0,
	"high":     7.5,
	"medium":   5.0,
	"low":      2.5,
	"info":     0.5,
}

// vectorMultipliers weight threat by required attacker proximity.
var vectorMultipliers = map[string]float64{
	"network":  1.0,
	"adjacent": 0.8,
	"local":    0.6,
	"physical": 0.4,
}

// classificationScores map data classification to impact.
var classificationScores = map[string]float64{
	"public":       2.0,
	"internal":     4.0,
	"confidential": 7.0,
	"restricted":   9.0,
}

// criticalityScores map system criticality to impact.
var criticalityScores = map[string]float64{
	"low":      2.0,
	"medium":   5.0,
	"high":     8.0,
	"critical": 10.0,
}

// highImpactFrameworks each add 0.2 to the compliance multiplier.
var highImpactFrameworks = map[string]bool{
	"sox":     true,
	"pci-dss": true,
	"hipaa":   true,
	"gdpr":    true,
}

// Finding is one vulnerability observation feeding the vulnerability
// sub-score. Exploitability and Confidence are 0-10.
type Finding struct {
	Severity       string  `json:"severity"`
	Exploitability float64 `json:"exploitability"`
	Confidence     float64 `json:"confidence"`
}

// ThreatIntel carries external threat context for the threat sub-score.
type ThreatIntel struct {
	ActiveCampaigns bool   `json:"active_campaigns"`
	ActorInterest   string `json:"actor_interest"`
}

// Assessment is the engine's output for one asset or scan.
type Assessment struct {
	VulnerabilityScore  float64 `json:"vulnerability_score"`
	ThreatScore         float64 `json:"threat_score"`
	BusinessImpactScore float64 `json:"business_impact_score"`
	OverallScore        float64 `json:"overall_risk_score"`
	Level               Level   `json:"risk_level"`
	FindingsCount       int     `json:"findings_count"`
}

// OverallRisk combines the three sub-scores into a weighted score adjusted
// by asset type and business unit, clamped to [0,10] and rounded to two
// decimals.
func OverallRisk(vulnerability, threat, businessImpact float64, assetType AssetType, businessUnit string) (float64, Level) {
	base := vulnerability*0.4 + threat*0.3 + businessImpact*0.3

	assetMultiplier, ok := assetTypeMultipliers[assetType]
	if !ok {
		assetMultiplier = 1.0
	}

	unitMultiplier := 1.0
	if businessUnit != "" {
		if m, ok := businessUnitMultipliers[strings.ToLower(businessUnit)]; ok {
			unitMultiplier = m
		}
	}

	overall := clamp(base * assetMultiplier * unitMultiplier)
	overall = math.Round(overall*100) / 100
	return overall, ScoreToLevel(overall)
}

// ScoreToLevel converts a 0-10 score to its discrete level. Thresholds are
// inclusive lower bounds.
func ScoreToLevel(score float64) Level {
	switch {
	case score >= 9.0:
		return LevelCritical
	case score >= 7.0:
		return LevelHigh
	case score >= 4.0:
		return LevelMedium
	case score >= 1.0:
		return LevelLow
	default:
		return LevelInfo
	}
}

// VulnerabilityScore aggregates findings weighted by severity,
// exploitability, and confidence, normalized to 0-10. Empty input scores 0.
func VulnerabilityScore(findings []Finding) float64 {
	if len(findings) == 0 {
		return 0.0
	}

	total := 0.0
	for _, f := range findings {
		weight, ok := severityWeights[strings.ToLower(f.Severity)]
		if !ok {
			weight = 2.5
		}
		total += weight * (f.Exploitability / 10.0) * (f.Confidence / 10.0)
	}

	maxScore := 10.0 * float64(len(findings))
	return clamp(total / maxScore * 10.0)
}

// ThreatScore derives threat likelihood from exposure, attack vector, and
// threat intelligence.
func ThreatScore(exposure float64, attackVector string, intel *ThreatIntel) float64 {
	vectorMultiplier, ok := vectorMultipliers[strings.ToLower(attackVector)]
	if !ok {
		vectorMultiplier = 1.0
	}

	intelMultiplier := 1.0
	if intel != nil {
		if intel.ActiveCampaigns {
			intelMultiplier += 0.3
		}
		switch intel.ActorInterest {
		case "high":
			intelMultiplier += 0.4
		case "medium":
			intelMultiplier += 0.2
		}
	}

	return clamp(exposure * vectorMultiplier * intelMultiplier)
}

// BusinessImpact scores the blast radius of a compromise from data
// classification, system criticality, affected users, and compliance
// obligations.
func BusinessImpact(dataClassification, systemCriticality string, userCount int, complianceFrameworks []string) float64 {
	dataScore, ok := classificationScores[strings.ToLower(dataClassification)]
	if !ok {
		dataScore = 4.0
	}
	criticalityScore, ok := criticalityScores[strings.ToLower(systemCriticality)]
	if !ok {
		criticalityScore = 5.0
	}

	impact := (dataScore + criticalityScore) / 2

	if userCount > 0 {
		userFactor := math.Min(math.Log10(float64(userCount)+1)/3, 1.0)
		impact *= 1 + userFactor
	}

	complianceMultiplier := 1.0
	for _, framework := range complianceFrameworks {
		if highImpactFrameworks[strings.ToLower(framework)] {
			complianceMultiplier += 0.2
		}
	}

	return clamp(impact * complianceMultiplier)
}

// AssetContext is the input for a full asset assessment.
type AssetContext struct {
	AssetType            AssetType   `json:"asset_type"`
	BusinessUnit         string      `json:"business_unit"`
	ExposureLevel        float64     `json:"exposure_level"`
	AttackVector         string      `json:"attack_vector"`
	DataClassification   string      `json:"data_classification"`
	SystemCriticality    string      `json:"system_criticality"`
	UserCount            int         `json:"user_count"`
	ComplianceFrameworks []string    `json:"compliance_frameworks"`
	ThreatIntel          *ThreatIntel `json:"threat_intel,omitempty"`
}

// AssessAsset runs the full pipeline for one asset's context and findings.
func AssessAsset(ctx AssetContext, findings []Finding) Assessment {
	vulnerability := VulnerabilityScore(findings)
	threat := ThreatScore(ctx.ExposureLevel, ctx.AttackVector, ctx.ThreatIntel)
	impact := BusinessImpact(ctx.DataClassification, ctx.SystemCriticality, ctx.UserCount, ctx.ComplianceFrameworks)

	overall, level := OverallRisk(vulnerability, threat, impact, ctx.AssetType, ctx.BusinessUnit)

	return Assessment{
		VulnerabilityScore:  math.Round(vulnerability*100) / 100,
		ThreatScore:         math.Round(threat*100) / 100,
		BusinessImpactScore: math.Round(impact*100) / 100,
		OverallScore:        overall,
		Level:               level,
		FindingsCount:       len(findings),
	}
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
