package privacy

import (
	"fmt"
	"math"
	"strings"
)

// SecurityLevel represents the security level of escrow parameters
type SecurityLevel string

const (
	SecurityLevelLow    SecurityLevel = "low"
	SecurityLevelMedium SecurityLevel = "medium"
	SecurityLevelHigh   SecurityLevel = "high"
)

// DefaultMajorityRatio is the threshold ratio above which a colluding minority
// of holders cannot reconstruct
const DefaultMajorityRatio = 2.0 / 3.0

// ValidationResult contains the result of parameter validation
type ValidationResult struct {
	Valid           bool          `json:"valid"`
	SecurityLevel   SecurityLevel `json:"security_level"`
	Supermajority   bool          `json:"supermajority"`
	Warnings        []string      `json:"warnings,omitempty"`
	Errors          []string      `json:"errors,omitempty"`
	Recommendations []string      `json:"recommendations,omitempty"`
}

// Err converts an invalid result into an ErrInvalidThreshold carrying every
// reported problem; a valid result returns nil
func (r *ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return ErrInvalidThreshold.WithDetails("%s", strings.Join(r.Errors, "; "))
}

func newValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:           true,
		SecurityLevel:   SecurityLevelMedium,
		Warnings:        []string{},
		Errors:          []string{},
		Recommendations: []string{},
	}
}

// ThresholdValidator checks escrow threshold parameters before any secret is
// split
type ThresholdValidator struct {
	MinHolders          int     `json:"min_holders"`
	MinThreshold        int     `json:"min_threshold"`
	MaxHolders          int     `json:"max_holders"`
	MajorityRatio       float64 `json:"majority_ratio"`
	RecommendedMinRatio float64 `json:"recommended_min_ratio"`
	RecommendedMaxRatio float64 `json:"recommended_max_ratio"`
}

// NewDefaultThresholdValidator creates a validator with secure default parameters
func NewDefaultThresholdValidator() *ThresholdValidator {
	return &ThresholdValidator{
		MinHolders:          MinThreshold,
		MinThreshold:        MinThreshold,
		MaxHolders:          MaxShareIndex,
		MajorityRatio:       DefaultMajorityRatio,
		RecommendedMinRatio: 0.51,
		RecommendedMaxRatio: 0.80,
	}
}

// ValidateThresholdParameters validates threshold and holder count
func (tv *ThresholdValidator) ValidateThresholdParameters(holderCount, threshold int) *ValidationResult {
	result := newValidationResult()

	if threshold <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "threshold must be positive")
	}
	if holderCount <= 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "holder count must be positive")
	}
	if threshold > holderCount {
		result.Valid = false
		result.Errors = append(result.Errors, "threshold cannot exceed holder count")
	}
	if !result.Valid {
		result.SecurityLevel = SecurityLevelLow
		return result
	}

	if holderCount < tv.MinHolders {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("minimum %d holders required", tv.MinHolders))
	}
	if holderCount > tv.MaxHolders {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("at most %d holders supported", tv.MaxHolders))
	}
	if threshold < tv.MinThreshold {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("minimum threshold of %d required", tv.MinThreshold))
	}
	if !result.Valid {
		result.SecurityLevel = SecurityLevelLow
		return result
	}

	ratio := float64(threshold) / float64(holderCount)
	if float64(threshold) >= math.Ceil(float64(holderCount)*tv.MajorityRatio) {
		result.Supermajority = true
		result.SecurityLevel = SecurityLevelHigh
	}

	if ratio < tv.RecommendedMinRatio {
		result.SecurityLevel = SecurityLevelLow
		result.Warnings = append(result.Warnings, "threshold ratio is below recommended minimum")
		result.Recommendations = append(result.Recommendations, fmt.Sprintf("consider increasing threshold to at least %d", int(math.Ceil(float64(holderCount)*tv.RecommendedMinRatio))))
	} else if ratio > tv.RecommendedMaxRatio {
		result.Warnings = append(result.Warnings, "threshold ratio is high, recovery may stall if holders are unavailable")
	}

	if threshold == holderCount {
		result.Warnings = append(result.Warnings, "threshold equals holder count - losing one holder makes recovery impossible")
	}

	return result
}

// ValidateHolders checks names, roles, keys and verifiers, and that the
// user role alone cannot meet the threshold
func ValidateHolders(holders []Holder, threshold int) *ValidationResult {
	result := newValidationResult()
	if len(holders) == 0 {
		result.Valid = false
		result.Errors = append(result.Errors, "holder list cannot be empty")
		return result
	}

	seen := make(map[string]bool, len(holders))
	perRole := make(map[Role]int)
	for i, h := range holders {
		if h.Name == "" {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("holder %d has no name", i))
			continue
		}
		if seen[h.Name] {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("duplicate holder %q", h.Name))
		}
		seen[h.Name] = true
		if !h.Role.Valid() {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("holder %q has unknown role %q", h.Name, h.Role))
		}
		if h.Verifier == nil {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("holder %q has no vote verifier", h.Name))
		}
		if h.ViewingKey.c == nil || h.ViewingKey.IsInfinity() {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("holder %q has no viewing key", h.Name))
		}
		perRole[h.Role]++
	}

	if perRole[RoleUser] >= threshold {
		result.Valid = false
		result.Errors = append(result.Errors, "user-role holders alone would meet the threshold")
	}
	if perRole[RoleComplianceCouncil] == 0 {
		result.Warnings = append(result.Warnings, "no compliance council holder; only users can initiate recovery")
	}
	if perRole[RoleAuditor] == 0 {
		result.Recommendations = append(result.Recommendations, "consider adding an auditor holder")
	}
	return result
}

// ValidateEscrowConfiguration combines holder and threshold validation
func (tv *ThresholdValidator) ValidateEscrowConfiguration(holders []Holder, threshold int) *ValidationResult {
	holderResult := ValidateHolders(holders, threshold)
	thresholdResult := tv.ValidateThresholdParameters(len(holders), threshold)

	result := newValidationResult()
	result.Valid = holderResult.Valid && thresholdResult.Valid
	result.Errors = append(append(result.Errors, thresholdResult.Errors...), holderResult.Errors...)
	result.Warnings = append(append(result.Warnings, thresholdResult.Warnings...), holderResult.Warnings...)
	result.Recommendations = append(append(result.Recommendations, thresholdResult.Recommendations...), holderResult.Recommendations...)
	result.SecurityLevel = minSecurityLevel(thresholdResult.SecurityLevel, holderResult.SecurityLevel)
	result.Supermajority = thresholdResult.Supermajority
	return result
}

// SecurityAssessment summarizes the trade-off of a threshold choice
type SecurityAssessment struct {
	OverallRating           SecurityLevel `json:"overall_rating"`
	Supermajority           bool          `json:"supermajority"`
	FaultTolerance          int           `json:"fault_tolerance"`      // holders that may be unavailable
	CollusionResistance     int           `json:"collusion_resistance"` // holders needed to reconstruct
	AvailabilityRisk        string        `json:"availability_risk"`
	SecurityRecommendations []string      `json:"security_recommendations"`
}

// AssessSecurity rates a (holders, threshold) pair
func AssessSecurity(holderCount, threshold int) *SecurityAssessment {
	if holderCount <= 0 || threshold <= 0 || threshold > holderCount {
		return &SecurityAssessment{
			OverallRating:           SecurityLevelLow,
			AvailabilityRisk:        "critical - invalid parameters",
			SecurityRecommendations: []string{"threshold must be in [1, holder count]"},
		}
	}

	faultTolerance := holderCount - threshold
	assessment := &SecurityAssessment{
		FaultTolerance:          faultTolerance,
		CollusionResistance:     threshold,
		Supermajority:           float64(threshold) >= math.Ceil(float64(holderCount)*DefaultMajorityRatio),
		SecurityRecommendations: []string{},
	}

	ratio := float64(threshold) / float64(holderCount)
	switch {
	case ratio < 0.5:
		assessment.OverallRating = SecurityLevelLow
	case ratio >= 0.6:
		assessment.OverallRating = SecurityLevelHigh
	default:
		assessment.OverallRating = SecurityLevelMedium
	}

	switch {
	case faultTolerance == 0:
		assessment.AvailabilityRisk = "critical - no fault tolerance"
	case faultTolerance == 1:
		assessment.AvailabilityRisk = "high - single point of failure"
	case faultTolerance <= 3:
		assessment.AvailabilityRisk = "medium - limited fault tolerance"
	default:
		assessment.AvailabilityRisk = "low - good fault tolerance"
	}

	if !assessment.Supermajority {
		assessment.SecurityRecommendations = append(assessment.SecurityRecommendations,
			"consider a two-thirds threshold so a colluding minority cannot reconstruct")
	}
	if faultTolerance < 2 {
		assessment.SecurityRecommendations = append(assessment.SecurityRecommendations,
			"consider adding holders so recovery survives unavailable members")
	}
	return assessment
}

// minSecurityLevel returns the lower of two security levels
func minSecurityLevel(level1, level2 SecurityLevel) SecurityLevel {
	levelRanking := map[SecurityLevel]int{
		SecurityLevelLow:    1,
		SecurityLevelMedium: 2,
		SecurityLevelHigh:   3,
	}
	rank1, ok := levelRanking[level1]
	if !ok {
		rank1 = 2
	}
	rank2, ok := levelRanking[level2]
	if !ok {
		rank2 = 2
	}
	if rank1 <= rank2 {
		return level1
	}
	return level2
}
