package optimiser

import (
	"math/rand"
	"testing"

	"github.com/lidarprod/buildingvalidator/internal/validator"
)

// TestScenarioOptimiserEndToEnd mirrors spec.md §8 scenario 6: a labelled
// reference tile with 15 clusters, 40% of which are pure non-building,
// cleanly separable by building_proba/db_overlay so a feasible trial exists
// at precision/recall/automation == 1.0.
func TestScenarioOptimiserEndToEnd(t *testing.T) {
	const groupsCount = 15
	const groupNoBuildings = 0.4 // 6 of 15 clusters are pure non-building
	numNonBuilding := int(groupsCount * groupNoBuildings)
	numBuilding := groupsCount - numNonBuilding

	var infos []ClusterInfo
	for i := 0; i < numBuilding; i++ {
		infos = append(infos, perfectInfo(validator.FinalBuilding, 0.97, 1, 0.0, 40))
	}
	for i := 0; i < numNonBuilding; i++ {
		infos = append(infos, perfectInfo(validator.FinalNotBuilding, 0.02, 0, 0.0, 40))
	}

	if len(infos) != groupsCount {
		t.Fatalf("groups_count = %d, want %d", len(infos), groupsCount)
	}
	gotFrac := float64(numNonBuilding) / float64(len(infos))
	if gotFrac != groupNoBuildings {
		t.Fatalf("group_no_buildings = %f, want %f", gotFrac, groupNoBuildings)
	}

	constraints := Constraints{MinPrecision: 1.0, MinRecall: 1.0, MinAutomation: 1.0}
	rnd := rand.New(rand.NewSource(99))

	best, _, err := RunSearch(infos, DefaultSearchSpace(), constraints, 300, rnd)
	if err != nil {
		t.Fatalf("RunSearch: unexpected error on separable reference tile: %v", err)
	}
	if best.Metrics.Precision < 1.0 {
		t.Fatalf("precision = %f, want >= 1.0", best.Metrics.Precision)
	}
	if best.Metrics.Recall < 1.0 {
		t.Fatalf("recall = %f, want >= 1.0", best.Metrics.Recall)
	}
	if best.Metrics.Automation < 1.0 {
		t.Fatalf("automation = %f, want >= 1.0", best.Metrics.Automation)
	}

	c := buildConfusion(infos, best.Thresholds)
	m := computeMetrics(c)
	if m != best.Metrics {
		t.Fatalf("re-evaluating the saved thresholds gave %+v, want %+v (decision stability, invariant 5)", m, best.Metrics)
	}
}
