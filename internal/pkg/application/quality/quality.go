package quality

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/metrics"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/models"
	repository "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/quality"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
)

const EventQualityCheck string = "quality.check"

//go:generate moq -rm -out qualityservice_mock.go . QualityService

type QualityService interface {
	CreateCheck(ctx context.Context, check models.QualityCheck) (models.QualityCheck, error)
	GetCheck(ctx context.Context, checkID string, tenants []string) (models.QualityCheck, error)
	QueryChecks(ctx context.Context, params repository.CheckQuery, tenants []string) (types.Collection[models.QualityCheck], error)
	UpdateCheck(ctx context.Context, checkID string, fields CheckFields, tenants []string) (models.QualityCheck, error)
	ReviewCheck(ctx context.Context, checkID string, review Review, tenants []string) (models.QualityCheck, error)
	DeleteCheck(ctx context.Context, checkID string, tenants []string) error
	Stats(ctx context.Context, params repository.CheckQuery, tenants []string) (Stats, error)

	AddDefect(ctx context.Context, checkID string, defect models.Defect, tenants []string) (models.Defect, error)
	UpdateDefectAction(ctx context.Context, defectID string, action DefectAction, tenants []string) (models.Defect, error)
	DeleteDefect(ctx context.Context, checkID, defectID string, tenants []string) error
	QueryDefects(ctx context.Context, params repository.DefectQuery, tenants []string) (types.Collection[models.Defect], error)
	DefectAnalysis(ctx context.Context, params repository.DefectQuery, tenants []string) (DefectAnalysis, error)

	CreateStandard(ctx context.Context, standard models.QualityStandard) (models.QualityStandard, error)
	GetStandard(ctx context.Context, standardID string, tenants []string) (models.QualityStandard, error)
	QueryStandards(ctx context.Context, params repository.StandardQuery, tenants []string) (types.Collection[models.QualityStandard], error)
	UpdateStandard(ctx context.Context, standardID string, fields StandardFields, changedBy string, tenants []string) (models.QualityStandard, error)
	ApproveStandard(ctx context.Context, standardID, approvedBy string, tenants []string) (models.QualityStandard, error)
	ArchiveStandard(ctx context.Context, standardID string, tenants []string) (models.QualityStandard, error)
	DuplicateStandard(ctx context.Context, standardID, name, ownerID string, tenants []string) (models.QualityStandard, error)
	Evaluate(ctx context.Context, checkID, standardID string, tenants []string) (Evaluation, error)
}

type CheckFields struct {
	OverallGrade       *types.InspectionGrade `json:"overallGrade,omitempty"`
	PassStatus         *types.PassStatus      `json:"passStatus,omitempty"`
	QualityScore       *int                   `json:"qualityScore,omitempty"`
	SampleSize         *float64               `json:"sampleSize,omitempty"`
	DefectRate         *float64               `json:"defectRate,omitempty"`
	Appearance         map[string]float64     `json:"appearance,omitempty"`
	PhysicalProperties map[string]float64     `json:"physicalProperties,omitempty"`
	Notes              *string                `json:"notes,omitempty"`
	Recommendations    *string                `json:"recommendations,omitempty"`
	CorrectiveActions  *string                `json:"correctiveActions,omitempty"`
	RequiresFollowUp   *bool                  `json:"requiresFollowUp,omitempty"`
	FollowUpDate       *time.Time             `json:"followUpDate,omitempty"`
	FollowUpCompleted  *bool                  `json:"followUpCompleted,omitempty"`
}

type Review struct {
	Status     types.CheckStatus `json:"status"`
	Notes      string            `json:"notes,omitempty"`
	ReviewedBy string            `json:"-"`
}

type DefectAction struct {
	Status           types.ActionStatus `json:"status"`
	CorrectiveAction *string            `json:"correctiveAction,omitempty"`
	DueDate          *time.Time         `json:"dueDate,omitempty"`
}

type Stats struct {
	TotalChecks       int                           `json:"totalChecks"`
	Passed            int                           `json:"passed"`
	ConditionalPassed int                           `json:"conditionalPassed"`
	Failed            int                           `json:"failed"`
	PassRate          float64                       `json:"passRate"`
	AverageScore      *float64                      `json:"averageScore,omitempty"`
	AverageDefectRate *float64                      `json:"averageDefectRate,omitempty"`
	Grades            map[types.InspectionGrade]int `json:"grades"`
	CheckTypes        map[types.CheckType]int       `json:"checkTypes"`
	PendingFollowUps  int                           `json:"pendingFollowUps"`
}

type DefectTypeCount struct {
	DefectType string `json:"defectType"`
	Count      int    `json:"count"`
}

type DefectAnalysis struct {
	TotalDefects int                          `json:"totalDefects"`
	BySeverity   map[types.DefectSeverity]int `json:"bySeverity"`
	ByCategory   map[types.DefectCategory]int `json:"byCategory"`
	TopTypes     []DefectTypeCount            `json:"topTypes"`
	OpenActions  int                          `json:"openActions"`
	Overdue      int                          `json:"overdueActions"`
}

// TopDefectTypes is how many defect types DefectAnalysis ranks.
const TopDefectTypes int = 10

type qualitySvc struct {
	storage repository.QualityRepository
	alerts  application.AlertRaiser
	feed    application.Broadcaster
}

func New(r repository.QualityRepository, alerts application.AlertRaiser, feed application.Broadcaster) QualityService {
	return &qualitySvc{
		storage: r,
		alerts:  alerts,
		feed:    feed,
	}
}

// Score computes a 0-100 quality score. The defect rate, a percentage, costs
// half a point per percent. When appearance scores are present they make up a
// quarter of the result.
func Score(defectRate *float64, appearance map[string]float64) int {
	score := 100.0
	if defectRate != nil {
		score -= *defectRate * 0.5
	}

	if len(appearance) > 0 {
		sum := 0.0
		for _, v := range appearance {
			sum += v
		}
		score = score*0.75 + (sum/float64(len(appearance)))*0.25
	}

	return int(math.Round(math.Max(0, math.Min(100, score))))
}

// Grade fills in the score, grade and pass status of a check that lacks them.
func Grade(check *models.QualityCheck) error {
	if check.QualityScore == nil {
		appearance, err := check.AppearanceScores()
		if err != nil {
			return application.Invalid("appearance must map names to scores")
		}
		check.QualityScore = application.Ptr(Score(check.DefectRate, appearance))
	}

	if check.OverallGrade == "" {
		check.OverallGrade = types.GradeForScore(*check.QualityScore)
	}

	if check.PassStatus == "" {
		switch check.OverallGrade {
		case types.InspectionReject:
			check.PassStatus = types.Fail
		case types.InspectionC:
			check.PassStatus = types.ConditionalPass
		default:
			check.PassStatus = types.Pass
		}
	}

	return nil
}

func validate(check models.QualityCheck) error {
	switch {
	case check.OrganizationID == "":
		return application.Invalid("quality check has no organization")
	case !check.CheckType.Valid():
		return application.Invalid("unknown check type %q", check.CheckType)
	case strings.TrimSpace(check.InspectorName) == "":
		return application.Invalid("inspector name is required")
	case check.OverallGrade != "" && !check.OverallGrade.Valid():
		return application.Invalid("unknown grade %q", check.OverallGrade)
	case check.PassStatus != "" && !check.PassStatus.Valid():
		return application.Invalid("unknown pass status %q", check.PassStatus)
	case check.QualityScore != nil && (*check.QualityScore < 0 || *check.QualityScore > 100):
		return application.Invalid("quality score must be between 0 and 100")
	case check.DefectRate != nil && (*check.DefectRate < 0 || *check.DefectRate > 100):
		return application.Invalid("defect rate must be between 0 and 100")
	case check.SampleSize != nil && *check.SampleSize < 0:
		return application.Invalid("sample size cannot be negative")
	case check.Status != "" && !check.Status.Valid():
		return application.Invalid("unknown check status %q", check.Status)
	}
	return nil
}

func (svc *qualitySvc) CreateCheck(ctx context.Context, check models.QualityCheck) (models.QualityCheck, error) {
	if check.CheckDate.IsZero() {
		check.CheckDate = application.Now()
	}
	if check.Status == "" || check.Status.IsFinal() {
		check.Status = types.CheckSubmitted
	}

	err := validate(check)
	if err != nil {
		return models.QualityCheck{}, err
	}

	err = Grade(&check)
	if err != nil {
		return models.QualityCheck{}, err
	}

	check.ID = ""
	check.DefectCount = 0
	check.Defects = nil
	check.ReviewedBy = ""
	check.ReviewedAt = nil

	err = svc.storage.SaveCheck(ctx, &check)
	if err != nil {
		return models.QualityCheck{}, err
	}

	metrics.QualityChecks.WithLabelValues(string(check.CheckType), string(check.PassStatus)).Inc()

	if check.PassStatus == types.Fail {
		svc.raiseFailed(ctx, check)
	}

	svc.publish(ctx, check)

	return check, nil
}

func (svc *qualitySvc) GetCheck(ctx context.Context, checkID string, tenants []string) (models.QualityCheck, error) {
	return svc.storage.GetCheck(ctx, checkID, tenants...)
}

func (svc *qualitySvc) QueryChecks(ctx context.Context, params repository.CheckQuery, tenants []string) (types.Collection[models.QualityCheck], error) {
	return svc.storage.QueryChecks(ctx, params, tenants...)
}

// UpdateCheck edits a check until it has been approved or rejected. Changing
// the defect rate or appearance recomputes score, grade and pass status unless
// they are given as well.
func (svc *qualitySvc) UpdateCheck(ctx context.Context, checkID string, fields CheckFields, tenants []string) (models.QualityCheck, error) {
	check, err := svc.storage.GetCheck(ctx, checkID, tenants...)
	if err != nil {
		return models.QualityCheck{}, err
	}

	if check.Status.IsFinal() {
		return models.QualityCheck{}, application.Transition("quality check", check.Status, "updated")
	}

	rescore := false
	if fields.DefectRate != nil {
		check.DefectRate = fields.DefectRate
		rescore = true
	}
	if fields.Appearance != nil {
		check.Appearance = models.ToJSON(fields.Appearance)
		rescore = true
	}
	if rescore {
		check.QualityScore = nil
		check.OverallGrade = ""
		check.PassStatus = ""
	}

	if fields.QualityScore != nil {
		check.QualityScore = fields.QualityScore
	}
	if fields.OverallGrade != nil {
		check.OverallGrade = *fields.OverallGrade
	}
	if fields.PassStatus != nil {
		check.PassStatus = *fields.PassStatus
	}
	if fields.SampleSize != nil {
		check.SampleSize = fields.SampleSize
	}
	if fields.PhysicalProperties != nil {
		check.PhysicalProperties = models.ToJSON(fields.PhysicalProperties)
	}
	if fields.Notes != nil {
		check.Notes = *fields.Notes
	}
	if fields.Recommendations != nil {
		check.Recommendations = *fields.Recommendations
	}
	if fields.CorrectiveActions != nil {
		check.CorrectiveActions = *fields.CorrectiveActions
	}
	if fields.RequiresFollowUp != nil {
		check.RequiresFollowUp = *fields.RequiresFollowUp
	}
	if fields.FollowUpDate != nil {
		check.FollowUpDate = fields.FollowUpDate
	}
	if fields.FollowUpCompleted != nil {
		check.FollowUpCompleted = *fields.FollowUpCompleted
	}

	err = validate(check)
	if err != nil {
		return models.QualityCheck{}, err
	}

	err = Grade(&check)
	if err != nil {
		return models.QualityCheck{}, err
	}

	err = svc.storage.SaveCheck(ctx, &check)
	if err != nil {
		return models.QualityCheck{}, err
	}

	svc.publish(ctx, check)

	return check, nil
}

// ReviewCheck records a reviewer decision. Approved and rejected checks are
// closed for further edits and reviews.
func (svc *qualitySvc) ReviewCheck(ctx context.Context, checkID string, review Review, tenants []string) (models.QualityCheck, error) {
	switch review.Status {
	case types.CheckReviewed, types.CheckApproved, types.CheckRejected:
	default:
		return models.QualityCheck{}, application.Invalid("a review must end in reviewed, approved or rejected, not %q", review.Status)
	}

	check, err := svc.storage.GetCheck(ctx, checkID, tenants...)
	if err != nil {
		return models.QualityCheck{}, err
	}

	if check.Status.IsFinal() || check.Status == types.CheckDraft {
		return models.QualityCheck{}, application.Transition("quality check", check.Status, review.Status)
	}

	check.Status = review.Status
	check.ReviewedBy = review.ReviewedBy
	check.ReviewedAt = application.Ptr(application.Now())
	check.ReviewNotes = review.Notes

	err = svc.storage.SaveCheck(ctx, &check)
	if err != nil {
		return models.QualityCheck{}, err
	}

	svc.publish(ctx, check)

	return check, nil
}

func (svc *qualitySvc) DeleteCheck(ctx context.Context, checkID string, tenants []string) error {
	return svc.storage.DeleteCheck(ctx, checkID, tenants...)
}

func (svc *qualitySvc) Stats(ctx context.Context, params repository.CheckQuery, tenants []string) (Stats, error) {
	params.Offset, params.Limit = 0, 0

	result, err := svc.storage.QueryChecks(ctx, params, tenants...)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Grades:     map[types.InspectionGrade]int{},
		CheckTypes: map[types.CheckType]int{},
	}

	scores, scored := 0, 0
	rates, rated := 0.0, 0

	for _, check := range result.Data {
		stats.TotalChecks++
		stats.Grades[check.OverallGrade]++
		stats.CheckTypes[check.CheckType]++

		switch check.PassStatus {
		case types.Pass:
			stats.Passed++
		case types.ConditionalPass:
			stats.ConditionalPassed++
		case types.Fail:
			stats.Failed++
		}

		if check.QualityScore != nil {
			scores += *check.QualityScore
			scored++
		}
		if check.DefectRate != nil {
			rates += *check.DefectRate
			rated++
		}
		if check.RequiresFollowUp && !check.FollowUpCompleted {
			stats.PendingFollowUps++
		}
	}

	if stats.TotalChecks > 0 {
		stats.PassRate = application.Round2(float64(stats.Passed+stats.ConditionalPassed) / float64(stats.TotalChecks) * 100)
	}
	if scored > 0 {
		stats.AverageScore = application.Ptr(application.Round2(float64(scores) / float64(scored)))
	}
	if rated > 0 {
		stats.AverageDefectRate = application.Ptr(application.Round2(rates / float64(rated)))
	}

	return stats, nil
}

func (svc *qualitySvc) AddDefect(ctx context.Context, checkID string, defect models.Defect, tenants []string) (models.Defect, error) {
	check, err := svc.storage.GetCheck(ctx, checkID, tenants...)
	if err != nil {
		return models.Defect{}, err
	}

	if check.Status.IsFinal() {
		return models.Defect{}, application.Transition("quality check", check.Status, "updated")
	}

	if defect.Marketability == "" {
		defect.Marketability = types.Marketable
	}
	if defect.ActionStatus == "" {
		defect.ActionStatus = types.ActionPending
	}

	switch {
	case strings.TrimSpace(defect.DefectType) == "":
		return models.Defect{}, application.Invalid("defect type is required")
	case strings.TrimSpace(defect.Description) == "":
		return models.Defect{}, application.Invalid("description is required")
	case !defect.Severity.Valid():
		return models.Defect{}, application.Invalid("unknown severity %q", defect.Severity)
	case !defect.Category.Valid():
		return models.Defect{}, application.Invalid("unknown defect category %q", defect.Category)
	case !defect.Marketability.Valid():
		return models.Defect{}, application.Invalid("unknown marketability %q", defect.Marketability)
	case !defect.ActionStatus.Valid():
		return models.Defect{}, application.Invalid("unknown action status %q", defect.ActionStatus)
	case defect.AffectedPercentage != nil && (*defect.AffectedPercentage < 0 || *defect.AffectedPercentage > 100):
		return models.Defect{}, application.Invalid("affected percentage must be between 0 and 100")
	}

	defect.ID = ""
	defect.OrganizationID = check.OrganizationID
	defect.QualityCheckID = check.ID

	err = svc.storage.AddDefect(ctx, &defect)
	if err != nil {
		return models.Defect{}, err
	}

	return defect, nil
}

func (svc *qualitySvc) UpdateDefectAction(ctx context.Context, defectID string, action DefectAction, tenants []string) (models.Defect, error) {
	if !action.Status.Valid() {
		return models.Defect{}, application.Invalid("unknown action status %q", action.Status)
	}

	defect, err := svc.storage.GetDefect(ctx, defectID, tenants...)
	if err != nil {
		return models.Defect{}, err
	}

	if defect.ActionStatus == types.ActionVerified && action.Status != types.ActionVerified {
		return models.Defect{}, application.Transition("corrective action", defect.ActionStatus, action.Status)
	}

	if action.CorrectiveAction != nil {
		defect.CorrectiveAction = *action.CorrectiveAction
	}
	if action.DueDate != nil {
		defect.ActionDueDate = action.DueDate
	}

	switch action.Status {
	case types.ActionCompleted, types.ActionVerified:
		if defect.ActionCompletedDate == nil {
			defect.ActionCompletedDate = application.Ptr(application.Now())
		}
	default:
		defect.ActionCompletedDate = nil
	}
	defect.ActionStatus = action.Status

	err = svc.storage.SaveDefect(ctx, &defect)
	if err != nil {
		return models.Defect{}, err
	}

	return defect, nil
}

func (svc *qualitySvc) DeleteDefect(ctx context.Context, checkID, defectID string, tenants []string) error {
	return svc.storage.DeleteDefect(ctx, checkID, defectID, tenants...)
}

func (svc *qualitySvc) QueryDefects(ctx context.Context, params repository.DefectQuery, tenants []string) (types.Collection[models.Defect], error) {
	return svc.storage.QueryDefects(ctx, params, tenants...)
}

func (svc *qualitySvc) DefectAnalysis(ctx context.Context, params repository.DefectQuery, tenants []string) (DefectAnalysis, error) {
	params.Offset, params.Limit = 0, 0

	result, err := svc.storage.QueryDefects(ctx, params, tenants...)
	if err != nil {
		return DefectAnalysis{}, err
	}

	now := application.Now()
	analysis := DefectAnalysis{
		BySeverity: map[types.DefectSeverity]int{},
		ByCategory: map[types.DefectCategory]int{},
		TopTypes:   []DefectTypeCount{},
	}
	perType := map[string]int{}

	for _, d := range result.Data {
		analysis.TotalDefects++
		analysis.BySeverity[d.Severity]++
		analysis.ByCategory[d.Category]++
		perType[d.DefectType]++

		if d.ActionStatus == types.ActionPending || d.ActionStatus == types.ActionInProgress {
			analysis.OpenActions++
			if d.ActionDueDate != nil && d.ActionDueDate.Before(now) {
				analysis.Overdue++
			}
		}
	}

	for defectType, count := range perType {
		analysis.TopTypes = append(analysis.TopTypes, DefectTypeCount{DefectType: defectType, Count: count})
	}
	sort.Slice(analysis.TopTypes, func(i, j int) bool {
		if analysis.TopTypes[i].Count != analysis.TopTypes[j].Count {
			return analysis.TopTypes[i].Count > analysis.TopTypes[j].Count
		}
		return analysis.TopTypes[i].DefectType < analysis.TopTypes[j].DefectType
	})
	if len(analysis.TopTypes) > TopDefectTypes {
		analysis.TopTypes = analysis.TopTypes[:TopDefectTypes]
	}

	return analysis, nil
}

func (svc *qualitySvc) raiseFailed(ctx context.Context, check models.QualityCheck) {
	_, err := svc.alerts.Raise(ctx, models.Alert{
		OrganizationID: check.OrganizationID,
		Type:           types.AlertQuality,
		Severity:       types.SeverityHigh,
		Title:          fmt.Sprintf("%s check failed", strings.ReplaceAll(string(check.CheckType), "_", " ")),
		Message:        fmt.Sprintf("Graded %s with a score of %d by %s.", check.OverallGrade, *check.QualityScore, check.InspectorName),
		ZoneID:         check.ZoneID,
		BatchID:        check.BatchID,
		Metadata:       models.ToJSON(map[string]any{"qualityCheckId": check.ID}),
	})
	if err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Str("checkID", check.ID).Msg("failed to raise quality alert")
	}
}

func (svc *qualitySvc) publish(ctx context.Context, check models.QualityCheck) {
	if svc.feed == nil {
		return
	}

	if err := svc.feed.Publish(EventQualityCheck, check); err != nil {
		logger := logging.GetFromContext(ctx)
		logger.Error().Err(err).Msg("failed to push quality check to live feed")
	}
}
