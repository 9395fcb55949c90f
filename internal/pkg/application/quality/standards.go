package quality

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/quality"
	"github.com/diwise/farm-operations/pkg/types"
)

type StandardFields struct {
	Name                *string                 `json:"name,omitempty"`
	Category            *types.StandardCategory `json:"category,omitempty"`
	Description         *string                 `json:"description,omitempty"`
	CropType            *types.CropType         `json:"cropType,omitempty"`
	Criteria            *types.Criteria         `json:"criteria,omitempty"`
	InspectionFrequency *string                 `json:"inspectionFrequency,omitempty"`
	IsMandatory         *bool                   `json:"isMandatory,omitempty"`
}

// Evaluation lists every criterion of a standard that a check does not meet.
type Evaluation struct {
	CheckID    string   `json:"checkId"`
	StandardID string   `json:"standardId"`
	Version    string   `json:"version"`
	Meets      bool     `json:"meets"`
	Violations []string `json:"violations"`
}

func validateStandard(standard models.QualityStandard) error {
	switch {
	case standard.OrganizationID == "":
		return application.Invalid("quality standard has no organization")
	case strings.TrimSpace(standard.Name) == "":
		return application.Invalid("name is required")
	case !standard.Category.Valid():
		return application.Invalid("unknown standard category %q", standard.Category)
	case standard.CropType != "" && !standard.CropType.Valid():
		return application.Invalid("unknown crop type %q", standard.CropType)
	case standard.Status != "" && !standard.Status.Valid():
		return application.Invalid("unknown standard status %q", standard.Status)
	}

	_, err := standard.CriteriaValues()
	if err != nil {
		return application.Invalid("criteria could not be read: %s", err.Error())
	}

	return nil
}

// NextVersion bumps the minor part of a major.minor version.
func NextVersion(version string) string {
	major, minor, found := strings.Cut(version, ".")
	if !found {
		return version + ".1"
	}

	n, err := strconv.Atoi(minor)
	if err != nil {
		return version + ".1"
	}

	return fmt.Sprintf("%s.%d", major, n+1)
}

func (svc *qualitySvc) CreateStandard(ctx context.Context, standard models.QualityStandard) (models.QualityStandard, error) {
	standard.Status = types.StandardDraft
	standard.Version = "1.0"
	standard.RevisionHistory = nil
	standard.ApprovedBy = ""
	standard.ApprovedAt = nil

	err := validateStandard(standard)
	if err != nil {
		return models.QualityStandard{}, err
	}

	if standard.Code == "" {
		standard.Code, err = svc.storage.NextStandardCode(ctx, standard.OrganizationID)
		if err != nil {
			return models.QualityStandard{}, err
		}
	}

	standard.ID = ""

	err = svc.storage.SaveStandard(ctx, &standard)
	if err != nil {
		return models.QualityStandard{}, err
	}

	return standard, nil
}

func (svc *qualitySvc) GetStandard(ctx context.Context, standardID string, tenants []string) (models.QualityStandard, error) {
	return svc.storage.GetStandard(ctx, standardID, tenants...)
}

func (svc *qualitySvc) QueryStandards(ctx context.Context, params repository.StandardQuery, tenants []string) (types.Collection[models.QualityStandard], error) {
	return svc.storage.QueryStandards(ctx, params, tenants...)
}

// UpdateStandard stores the previous version in the revision history and bumps
// the version. An active standard goes back under review.
func (svc *qualitySvc) UpdateStandard(ctx context.Context, standardID string, fields StandardFields, changedBy string, tenants []string) (models.QualityStandard, error) {
	standard, err := svc.storage.GetStandard(ctx, standardID, tenants...)
	if err != nil {
		return models.QualityStandard{}, err
	}

	if standard.Status == types.StandardArchived || standard.Status == types.StandardExpired {
		return models.QualityStandard{}, application.Transition("quality standard", standard.Status, "updated")
	}

	if fields.Name != nil {
		standard.Name = *fields.Name
	}
	if fields.Category != nil {
		standard.Category = *fields.Category
	}
	if fields.Description != nil {
		standard.Description = *fields.Description
	}
	if fields.CropType != nil {
		standard.CropType = *fields.CropType
	}
	if fields.Criteria != nil {
		standard.Criteria = models.ToJSON(*fields.Criteria)
	}
	if fields.InspectionFrequency != nil {
		standard.InspectionFrequency = *fields.InspectionFrequency
	}
	if fields.IsMandatory != nil {
		standard.IsMandatory = *fields.IsMandatory
	}

	history, err := models.FromJSON[[]models.Revision](standard.RevisionHistory)
	if err != nil {
		return models.QualityStandard{}, err
	}
	history = append(history, models.Revision{Version: standard.Version, ChangedAt: application.Now(), ChangedBy: changedBy})

	standard.RevisionHistory = models.ToJSON(history)
	standard.Version = NextVersion(standard.Version)
	if standard.Status == types.StandardActive {
		standard.Status = types.StandardUnderReview
	}

	err = validateStandard(standard)
	if err != nil {
		return models.QualityStandard{}, err
	}

	err = svc.storage.SaveStandard(ctx, &standard)
	if err != nil {
		return models.QualityStandard{}, err
	}

	return standard, nil
}

func (svc *qualitySvc) ApproveStandard(ctx context.Context, standardID, approvedBy string, tenants []string) (models.QualityStandard, error) {
	standard, err := svc.storage.GetStandard(ctx, standardID, tenants...)
	if err != nil {
		return models.QualityStandard{}, err
	}

	if standard.Status != types.StandardDraft && standard.Status != types.StandardUnderReview {
		return models.QualityStandard{}, application.Transition("quality standard", standard.Status, types.StandardActive)
	}

	standard.Status = types.StandardActive
	standard.ApprovedBy = approvedBy
	standard.ApprovedAt = application.Ptr(application.Now())

	err = svc.storage.SaveStandard(ctx, &standard)
	if err != nil {
		return models.QualityStandard{}, err
	}

	return standard, nil
}

func (svc *qualitySvc) ArchiveStandard(ctx context.Context, standardID string, tenants []string) (models.QualityStandard, error) {
	standard, err := svc.storage.GetStandard(ctx, standardID, tenants...)
	if err != nil {
		return models.QualityStandard{}, err
	}

	if standard.Status == types.StandardArchived {
		return standard, nil
	}

	standard.Status = types.StandardArchived

	err = svc.storage.SaveStandard(ctx, &standard)
	if err != nil {
		return models.QualityStandard{}, err
	}

	return standard, nil
}

// DuplicateStandard copies a standard into a new draft with its own code.
func (svc *qualitySvc) DuplicateStandard(ctx context.Context, standardID, name, ownerID string, tenants []string) (models.QualityStandard, error) {
	source, err := svc.storage.GetStandard(ctx, standardID, tenants...)
	if err != nil {
		return models.QualityStandard{}, err
	}

	if name == "" {
		name = source.Name + " (copy)"
	}

	return svc.CreateStandard(ctx, models.QualityStandard{
		OrganizationID:      source.OrganizationID,
		OwnerID:             ownerID,
		Name:                name,
		Category:            source.Category,
		Description:         source.Description,
		CropType:            source.CropType,
		Criteria:            source.Criteria,
		InspectionFrequency: source.InspectionFrequency,
		IsMandatory:         source.IsMandatory,
	})
}

func (svc *qualitySvc) Evaluate(ctx context.Context, checkID, standardID string, tenants []string) (Evaluation, error) {
	check, err := svc.storage.GetCheck(ctx, checkID, tenants...)
	if err != nil {
		return Evaluation{}, err
	}

	standard, err := svc.storage.GetStandard(ctx, standardID, tenants...)
	if err != nil {
		return Evaluation{}, err
	}

	criteria, err := standard.CriteriaValues()
	if err != nil {
		return Evaluation{}, err
	}

	appearance, err := check.AppearanceScores()
	if err != nil {
		return Evaluation{}, err
	}

	physical, err := check.PhysicalMeasurements()
	if err != nil {
		return Evaluation{}, err
	}

	violations := EvaluateCriteria(check, criteria, appearance, physical)

	return Evaluation{
		CheckID:    check.ID,
		StandardID: standard.ID,
		Version:    standard.Version,
		Meets:      len(violations) == 0,
		Violations: violations,
	}, nil
}

// EvaluateCriteria returns a description of every limit in criteria that the
// check breaks. Measurements a limit refers to but the check lacks count as
// violations.
func EvaluateCriteria(check models.QualityCheck, criteria types.Criteria, appearance, physical map[string]float64) []string {
	violations := []string{}

	if criteria.MaxDefectRate != nil && check.DefectRate != nil && *check.DefectRate > *criteria.MaxDefectRate {
		violations = append(violations, fmt.Sprintf("defect rate %v%% is above %v%%", *check.DefectRate, *criteria.MaxDefectRate))
	}

	if criteria.MaxCriticalDefects != nil {
		critical := 0
		for _, d := range check.Defects {
			if d.Severity == types.DefectCritical {
				critical++
			}
		}
		if critical > *criteria.MaxCriticalDefects {
			violations = append(violations, fmt.Sprintf("%d critical defects, at most %d allowed", critical, *criteria.MaxCriticalDefects))
		}
	}

	if criteria.MinQualityScore != nil {
		if check.QualityScore == nil {
			violations = append(violations, "quality score is missing")
		} else if *check.QualityScore < *criteria.MinQualityScore {
			violations = append(violations, fmt.Sprintf("quality score %d is below %d", *check.QualityScore, *criteria.MinQualityScore))
		}
	}

	violations = append(violations, outside("appearance", criteria.Appearance, appearance)...)
	violations = append(violations, outside("physical", criteria.Physical, physical)...)

	return violations
}

func outside(group string, limits map[string]types.Threshold, values map[string]float64) []string {
	names := make([]string, 0, len(limits))
	for name := range limits {
		names = append(names, name)
	}
	sort.Strings(names)

	violations := []string{}

	for _, name := range names {
		limit := limits[name]

		v, ok := values[name]
		if !ok {
			violations = append(violations, fmt.Sprintf("%s.%s was not measured", group, name))
			continue
		}
		if limit.Min != nil && v < *limit.Min {
			violations = append(violations, fmt.Sprintf("%s.%s %v%s is below %v%s", group, name, v, limit.Unit, *limit.Min, limit.Unit))
		}
		if limit.Max != nil && v > *limit.Max {
			violations = append(violations, fmt.Sprintf("%s.%s %v%s is above %v%s", group, name, v, limit.Unit, *limit.Max, limit.Unit))
		}
	}

	return violations
}
