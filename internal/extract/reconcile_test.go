package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

func pinnedReconciler() *Reconciler {
	r := NewReconciler()
	r.now = func() time.Time {
		return time.Date(2024, 9, 20, 12, 0, 0, 0, time.UTC)
	}
	return r
}

func TestMerge_HigherTierWins(t *testing.T) {
	r := pinnedReconciler()

	primary := &models.FieldSet{TruckReg: "ABC123"}
	secondary := &models.FieldSet{TruckReg: "XYZ999", TrailerReg: "TRL456"}

	merged := r.Merge(primary, secondary)

	assert.Equal(t, "ABC123", merged.TruckReg)
	assert.Equal(t, "TRL456", merged.TrailerReg)
}

func TestMerge_FillsGapsOnly(t *testing.T) {
	r := pinnedReconciler()

	primary := &models.FieldSet{Sender: "Karoo Lamb Farm", Date: "2024-09-15"}
	secondary := &models.FieldSet{
		Sender:   "KAROO LMB FRM",
		Receiver: "Highveld Feedlot",
		StartKm:  184230,
		EndKm:    184695,
	}

	merged := r.Merge(primary, secondary)

	assert.Equal(t, "Karoo Lamb Farm", merged.Sender)
	assert.Equal(t, "Highveld Feedlot", merged.Receiver)
	assert.Equal(t, "2024-09-15", merged.Date)
	assert.Equal(t, 184230, merged.StartKm)
	assert.Equal(t, 184695, merged.EndKm)
}

func TestMerge_NilCandidates(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(nil, &models.FieldSet{Receiver: "Karan Beef"}, nil)

	require.NotNil(t, merged)
	assert.Equal(t, "Karan Beef", merged.Receiver)
}

func TestMerge_FirstTableWinsWhole(t *testing.T) {
	r := pinnedReconciler()

	primary := &models.FieldSet{
		Table: []models.LineItem{{Packages: "32", Description: "Lambs"}},
	}
	secondary := &models.FieldSet{
		Table: []models.LineItem{
			{Packages: "32", Description: "Lamps"},
			{Packages: "4", Description: "Crates"},
		},
	}

	merged := r.Merge(primary, secondary)

	require.Len(t, merged.Table, 1)
	assert.Equal(t, "Lambs", merged.Table[0].Description)
}

func TestMerge_FirstNonZeroConfidence(t *testing.T) {
	r := pinnedReconciler()

	primary := &models.FieldSet{}
	secondary := &models.FieldSet{Confidence: 70}
	tertiary := &models.FieldSet{Confidence: 40}

	merged := r.Merge(primary, secondary, tertiary)

	assert.Equal(t, 70.0, merged.Confidence)
}

func TestNormalizeDate_TwoDigitYearPivot(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{Date: "24-09-15"})
	assert.Equal(t, "2024-09-15", merged.Date)

	merged = r.Merge(&models.FieldSet{Date: "71-01-02"})
	assert.Equal(t, "1971-01-02", merged.Date)

	merged = r.Merge(&models.FieldSet{Date: "49-12-31"})
	assert.Equal(t, "2049-12-31", merged.Date)

	merged = r.Merge(&models.FieldSet{Date: "50-06-01"})
	assert.Equal(t, "1950-06-01", merged.Date)
}

func TestNormalizeDate_ISOPassthrough(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{Date: "2023-11-05"})
	assert.Equal(t, "2023-11-05", merged.Date)
}

func TestNormalizeDate_UnparseableBecomesToday(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{Date: "Sept 15th"})
	assert.Equal(t, "2024-09-20", merged.Date)
}

func TestNormalizeDate_EmptyStaysEmpty(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{})
	assert.Empty(t, merged.Date)
}

func TestNormalize_InvertedOdometerDiscarded(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{StartKm: 120000, EndKm: 119500})

	assert.Zero(t, merged.StartKm)
	assert.Zero(t, merged.EndKm)
}

func TestNormalize_ValidOdometerKept(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{StartKm: 184230, EndKm: 184695})

	assert.Equal(t, 184230, merged.StartKm)
	assert.Equal(t, 184695, merged.EndKm)
	assert.Equal(t, 465, merged.TotalKm())
}

func TestNormalize_RegistrationsTrimmed(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{TruckReg: " ABC 123 GP ", TrailerReg: "XYZ 789 GP\t"})

	assert.Equal(t, "ABC 123 GP", merged.TruckReg)
	assert.Equal(t, "XYZ 789 GP", merged.TrailerReg)
}

func TestNormalize_TableAmounts(t *testing.T) {
	r := pinnedReconciler()

	merged := r.Merge(&models.FieldSet{
		Table: []models.LineItem{
			{Packages: "120", Description: "Weaner Calves", Gross: "28,400.00", Volume: "14.20"},
			{Packages: "4", Description: "Crates", Gross: "", Volume: "n/a"},
		},
	})

	require.Len(t, merged.Table, 2)
	assert.Equal(t, "28400.00", merged.Table[0].Gross)
	assert.Equal(t, "14.20", merged.Table[0].Volume)
	assert.Empty(t, merged.Table[1].Gross)
	assert.Equal(t, "n/a", merged.Table[1].Volume)
}
