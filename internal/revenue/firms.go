package revenue

import (
	"fmt"

	"ze-dashboard/internal/models"
)

// AssessFirms classifies each firm's historical revenue and attaches the
// rule-based recommendation shown on the dashboard. Input order is kept.
func AssessFirms(firms []models.Firm, t ThreeWay) []models.FirmAssessment {
	result := make([]models.FirmAssessment, 0, len(firms))
	for _, f := range firms {
		category := t.Categorize(f.HistoricalRevenue)
		result = append(result, models.FirmAssessment{
			Firm:           f,
			Category:       category,
			Recommendation: recommendation(f.Name, category),
		})
	}
	return result
}

func recommendation(name string, c models.Category) string {
	switch c {
	case models.CategoryUnderperforming:
		return fmt.Sprintf("%s is underperforming against historical revenue.", name)
	case models.CategoryStrong:
		return fmt.Sprintf("%s has strong historical performance. Consider a price increase.", name)
	default:
		return fmt.Sprintf("%s is performing within expected range.", name)
	}
}
