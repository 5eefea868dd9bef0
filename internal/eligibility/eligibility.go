// Package eligibility computes the exams a student is currently permitted
// to attempt, grouped into the fixed menu categories.
package eligibility

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"proctor/pkg/interfaces"
	"proctor/pkg/types"
)

// Menu category titles, in the order they are offered.
const (
	CourseExamsTitle    = "Course Exams"
	TutorialExamsTitle  = "Tutorial Exams"
	PlacementExamsTitle = "Placement Exams"
)

// ExamSource is the slice of the database layer the providers query.
type ExamSource interface {
	ListCourseExams(ctx context.Context, studentID string, now time.Time) ([]types.ExamEntry, error)
	ListTutorialExams(ctx context.Context, studentID string) ([]types.ExamEntry, error)
	ListPlacementExams(ctx context.Context, studentID string) ([]types.ExamEntry, error)
}

// CourseExamProvider lists exams in courses whose testing window is open
// for the student.
type CourseExamProvider struct {
	source ExamSource
}

func NewCourseExamProvider(source ExamSource) *CourseExamProvider {
	return &CourseExamProvider{source: source}
}

func (p *CourseExamProvider) Title() string { return CourseExamsTitle }

func (p *CourseExamProvider) ListEligibleExams(ctx context.Context, studentID string, now time.Time) ([]types.ExamEntry, error) {
	return p.source.ListCourseExams(ctx, studentID, now)
}

// TutorialExamProvider lists tutorial exams, which carry no registration
// requirement.
type TutorialExamProvider struct {
	source ExamSource
}

func NewTutorialExamProvider(source ExamSource) *TutorialExamProvider {
	return &TutorialExamProvider{source: source}
}

func (p *TutorialExamProvider) Title() string { return TutorialExamsTitle }

func (p *TutorialExamProvider) ListEligibleExams(ctx context.Context, studentID string, now time.Time) ([]types.ExamEntry, error) {
	return p.source.ListTutorialExams(ctx, studentID)
}

// PlacementExamProvider lists placement exams the student still has
// proctored attempts remaining on.
type PlacementExamProvider struct {
	source ExamSource
}

func NewPlacementExamProvider(source ExamSource) *PlacementExamProvider {
	return &PlacementExamProvider{source: source}
}

func (p *PlacementExamProvider) Title() string { return PlacementExamsTitle }

func (p *PlacementExamProvider) ListEligibleExams(ctx context.Context, studentID string, now time.Time) ([]types.ExamEntry, error) {
	return p.source.ListPlacementExams(ctx, studentID)
}

// DefaultProviders returns the providers in the fixed category order:
// course exams, then tutorial exams, then placement exams.
func DefaultProviders(source ExamSource) []interfaces.EligibilityProvider {
	return []interfaces.EligibilityProvider{
		NewCourseExamProvider(source),
		NewTutorialExamProvider(source),
		NewPlacementExamProvider(source),
	}
}

// BuildMenu assembles the eligible-exam menu for a student. Providers are
// consulted in order; a category with no exams is omitted, and a provider
// query failure fails the whole menu.
func BuildMenu(ctx context.Context, providers []interfaces.EligibilityProvider, studentID string, now time.Time, logger *zap.Logger) ([]types.ExamCategory, error) {
	var categories []types.ExamCategory

	for _, provider := range providers {
		entries, err := provider.ListEligibleExams(ctx, studentID, now)
		if err != nil {
			logger.Error("eligibility lookup failed",
				zap.String("category", provider.Title()),
				zap.String("student_id", studentID),
				zap.Error(err))
			return nil, fmt.Errorf("eligibility lookup for %s failed: %w", provider.Title(), err)
		}
		if len(entries) == 0 {
			continue
		}
		categories = append(categories, types.ExamCategory{
			Title: provider.Title(),
			Exams: entries,
		})
	}

	return categories, nil
}
