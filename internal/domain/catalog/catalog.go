package catalog

import (
	"github.com/navcare/navigator/internal/domain/navigation"
)

// Catalog maps (cancerType, journeyStage) to an ordered list of step
// definitions. Lookups for unknown cancer types fall back to the generic
// template so instantiation is always possible.
type Catalog struct {
	templates map[string]map[navigation.JourneyStage][]navigation.StepDefinition
}

// GenericKey is the fallback template applied to cancer types without a
// dedicated entry.
const GenericKey = "generic"

// New builds a catalog from raw templates. Cancer type keys are normalized to
// lower case.
func New(templates map[string]map[navigation.JourneyStage][]navigation.StepDefinition) *Catalog {
	normalized := make(map[string]map[navigation.JourneyStage][]navigation.StepDefinition, len(templates))
	for cancerType, stages := range templates {
		normalized[NormalizeCancerType(cancerType)] = stages
	}
	return &Catalog{templates: normalized}
}

// NormalizeCancerType is the shared boundary normalization; catalog keys and
// step records must agree on it.
func NormalizeCancerType(cancerType string) string {
	return navigation.NormalizeCancerType(cancerType)
}

// Steps returns the ordered step definitions for the given cancer type and
// stage. Unknown cancer types use the generic template; a dedicated template
// that skips a stage falls back to the generic steps for that stage. Never
// an error.
func (c *Catalog) Steps(cancerType string, stage navigation.JourneyStage) []navigation.StepDefinition {
	key := NormalizeCancerType(cancerType)
	stages, ok := c.templates[key]
	if !ok {
		stages = c.templates[GenericKey]
	}
	defs := stages[stage]
	if len(defs) == 0 && key != GenericKey {
		defs = c.templates[GenericKey][stage]
	}
	out := make([]navigation.StepDefinition, len(defs))
	copy(out, defs)
	return out
}

// CancerTypes returns the cancer types with a dedicated template, generic
// included.
func (c *Catalog) CancerTypes() []string {
	types := make([]string, 0, len(c.templates))
	for k := range c.templates {
		types = append(types, k)
	}
	return types
}

func days(n int) *int { return &n }

// Default returns the built-in catalog. Institutions override or extend it
// via a catalog file (see LoadFile); these templates are the shipping
// baseline.
func Default() *Catalog {
	generic := map[navigation.JourneyStage][]navigation.StepDefinition{
		navigation.StageScreening: {
			{StepKey: "initial_consult", StepName: "Initial consultation", StepDescription: "First visit with the care team", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "screening_exam", StepName: "Screening exam", StepDescription: "Stage-appropriate screening exam", IsRequired: true, DefaultDueOffsetDays: days(14)},
			{StepKey: "risk_assessment", StepName: "Risk assessment", StepDescription: "Family history and risk factor review", IsRequired: false},
		},
		navigation.StageNavigation: {
			{StepKey: "navigator_assigned", StepName: "Navigator assigned", StepDescription: "Patient paired with a nurse navigator", IsRequired: true, DefaultDueOffsetDays: days(3)},
			{StepKey: "intake_interview", StepName: "Intake interview", StepDescription: "Barriers-to-care and social needs interview", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "insurance_check", StepName: "Insurance verification", StepDescription: "Coverage and authorization check", IsRequired: false, DefaultDueOffsetDays: days(10)},
		},
		navigation.StageDiagnosis: {
			{StepKey: "diagnostic_imaging", StepName: "Diagnostic imaging", StepDescription: "Confirmatory imaging study", IsRequired: true, DefaultDueOffsetDays: days(14)},
			{StepKey: "biopsy", StepName: "Biopsy", StepDescription: "Tissue sample collection", IsRequired: true, DefaultDueOffsetDays: days(21)},
			{StepKey: "pathology_review", StepName: "Pathology review", StepDescription: "Pathology report reviewed with patient", IsRequired: true, DefaultDueOffsetDays: days(28)},
			{StepKey: "staging_workup", StepName: "Staging workup", StepDescription: "Full staging studies", IsRequired: false},
		},
		navigation.StageTreatment: {
			{StepKey: "treatment_plan", StepName: "Treatment plan", StepDescription: "Multidisciplinary treatment plan agreed", IsRequired: true, DefaultDueOffsetDays: days(14)},
			{StepKey: "treatment_start", StepName: "Treatment started", StepDescription: "First treatment session delivered", IsRequired: true, DefaultDueOffsetDays: days(30)},
			{StepKey: "toxicity_review", StepName: "Toxicity review", StepDescription: "Side effect and tolerance review", IsRequired: false},
		},
		navigation.StageFollowUp: {
			{StepKey: "followup_visit", StepName: "Follow-up visit", StepDescription: "Post-treatment follow-up visit", IsRequired: true, DefaultDueOffsetDays: days(30)},
			{StepKey: "surveillance_imaging", StepName: "Surveillance imaging", StepDescription: "Scheduled surveillance study", IsRequired: false, DefaultDueOffsetDays: days(90)},
			{StepKey: "survivorship_plan", StepName: "Survivorship plan", StepDescription: "Survivorship care plan delivered", IsRequired: false},
		},
	}

	breast := map[navigation.JourneyStage][]navigation.StepDefinition{
		navigation.StageScreening: {
			{StepKey: "initial_consult", StepName: "Initial consultation", StepDescription: "First visit with the care team", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "mammogram", StepName: "Mammogram", StepDescription: "Bilateral screening mammogram", IsRequired: true, DefaultDueOffsetDays: days(14)},
			{StepKey: "breast_ultrasound", StepName: "Breast ultrasound", StepDescription: "Targeted ultrasound when indicated", IsRequired: false},
		},
		navigation.StageDiagnosis: {
			{StepKey: "diagnostic_mammogram", StepName: "Diagnostic mammogram", StepDescription: "Diagnostic views of the suspicious finding", IsRequired: true, DefaultDueOffsetDays: days(10)},
			{StepKey: "core_biopsy", StepName: "Core needle biopsy", StepDescription: "Image-guided core biopsy", IsRequired: true, DefaultDueOffsetDays: days(21)},
			{StepKey: "receptor_panel", StepName: "Receptor panel", StepDescription: "ER/PR/HER2 receptor testing", IsRequired: true, DefaultDueOffsetDays: days(28)},
			{StepKey: "pathology_review", StepName: "Pathology review", StepDescription: "Pathology report reviewed with patient", IsRequired: true, DefaultDueOffsetDays: days(28)},
		},
	}

	lung := map[navigation.JourneyStage][]navigation.StepDefinition{
		navigation.StageScreening: {
			{StepKey: "initial_consult", StepName: "Initial consultation", StepDescription: "First visit with the care team", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "low_dose_ct", StepName: "Low-dose CT", StepDescription: "Low-dose CT screening study", IsRequired: true, DefaultDueOffsetDays: days(14)},
		},
		navigation.StageDiagnosis: {
			{StepKey: "pet_ct", StepName: "PET-CT", StepDescription: "Whole-body PET-CT for staging", IsRequired: true, DefaultDueOffsetDays: days(14)},
			{StepKey: "bronchoscopy", StepName: "Bronchoscopy", StepDescription: "Bronchoscopic biopsy", IsRequired: true, DefaultDueOffsetDays: days(21)},
			{StepKey: "molecular_panel", StepName: "Molecular panel", StepDescription: "EGFR/ALK/PD-L1 molecular testing", IsRequired: true, DefaultDueOffsetDays: days(28)},
		},
	}

	colorectal := map[navigation.JourneyStage][]navigation.StepDefinition{
		navigation.StageScreening: {
			{StepKey: "initial_consult", StepName: "Initial consultation", StepDescription: "First visit with the care team", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "colonoscopy", StepName: "Colonoscopy", StepDescription: "Screening colonoscopy", IsRequired: true, DefaultDueOffsetDays: days(21)},
		},
		navigation.StageDiagnosis: {
			{StepKey: "cea_baseline", StepName: "CEA baseline", StepDescription: "Baseline CEA tumor marker", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "staging_ct", StepName: "Staging CT", StepDescription: "Chest/abdomen/pelvis CT", IsRequired: true, DefaultDueOffsetDays: days(14)},
			{StepKey: "pathology_review", StepName: "Pathology review", StepDescription: "Pathology report reviewed with patient", IsRequired: true, DefaultDueOffsetDays: days(21)},
		},
	}

	cervical := map[navigation.JourneyStage][]navigation.StepDefinition{
		navigation.StageScreening: {
			{StepKey: "initial_consult", StepName: "Initial consultation", StepDescription: "First visit with the care team", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "pap_smear", StepName: "Pap smear", StepDescription: "Cervical cytology", IsRequired: true, DefaultDueOffsetDays: days(14)},
			{StepKey: "hpv_test", StepName: "HPV test", StepDescription: "High-risk HPV testing", IsRequired: true, DefaultDueOffsetDays: days(14)},
		},
		navigation.StageDiagnosis: {
			{StepKey: "colposcopy", StepName: "Colposcopy", StepDescription: "Colposcopic evaluation with biopsy", IsRequired: true, DefaultDueOffsetDays: days(21)},
			{StepKey: "pathology_review", StepName: "Pathology review", StepDescription: "Pathology report reviewed with patient", IsRequired: true, DefaultDueOffsetDays: days(28)},
		},
	}

	prostate := map[navigation.JourneyStage][]navigation.StepDefinition{
		navigation.StageScreening: {
			{StepKey: "initial_consult", StepName: "Initial consultation", StepDescription: "First visit with the care team", IsRequired: true, DefaultDueOffsetDays: days(7)},
			{StepKey: "psa_test", StepName: "PSA test", StepDescription: "Prostate-specific antigen test", IsRequired: true, DefaultDueOffsetDays: days(14)},
		},
		navigation.StageDiagnosis: {
			{StepKey: "prostate_mri", StepName: "Prostate MRI", StepDescription: "Multiparametric MRI", IsRequired: true, DefaultDueOffsetDays: days(21)},
			{StepKey: "prostate_biopsy", StepName: "Prostate biopsy", StepDescription: "MRI-fusion biopsy", IsRequired: true, DefaultDueOffsetDays: days(28)},
			{StepKey: "gleason_review", StepName: "Gleason review", StepDescription: "Gleason score reviewed with patient", IsRequired: true, DefaultDueOffsetDays: days(35)},
		},
	}

	return New(map[string]map[navigation.JourneyStage][]navigation.StepDefinition{
		GenericKey:   generic,
		"breast":     breast,
		"lung":       lung,
		"colorectal": colorectal,
		"cervical":   cervical,
		"prostate":   prostate,
	})
}
