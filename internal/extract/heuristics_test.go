package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

const sampleSlip = `DELIVERY NOTE
Date: 15/09/24
SENDER: Karoo Lamb Farm
Somerset East
CELL NO: 082 555 1234
RECEIVER: KARAN BEEF
Pietermaritzburg Depot
Truck Reg. No.: ABC 123 GP
Trailer Reg No: XYZ 789 GP
LOADING: ARRIVED 08:15 COMPLETED 09:30
OFF LOADING: ARRIVED 14:05 DEPARTED 15:20
32 Lambs Grade A 1250.50 14.2
START KM 184230
END KM 184695`

func TestExtract_FullSlip(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	fs := e.Extract(sampleSlip)
	require.NotNil(t, fs)

	assert.Equal(t, "Karoo Lamb Farm, Somerset East", fs.Sender)
	assert.Equal(t, "KARAN BEEF, Pietermaritzburg Depot", fs.Receiver)
	assert.Equal(t, "24-09-15", fs.Date)
	assert.Equal(t, "ABC 123 GP", fs.TruckReg)
	assert.Equal(t, "XYZ 789 GP", fs.TrailerReg)
	assert.Equal(t, 184230, fs.StartKm)
	assert.Equal(t, 184695, fs.EndKm)
	assert.Equal(t, "08:15", fs.LoadingArrived)
	assert.Equal(t, "09:30", fs.LoadingCompleted)
	assert.Equal(t, "14:05", fs.OffloadingArrived)
	assert.Equal(t, "15:20", fs.OffloadingCompleted)

	require.Len(t, fs.Table, 1)
	assert.Equal(t, "32", fs.Table[0].Packages)
	assert.Equal(t, "Lambs Grade A", fs.Table[0].Description)
	assert.Equal(t, "1250.50", fs.Table[0].Gross)
	assert.Equal(t, "14.2", fs.Table[0].Volume)
}

func TestExtract_EmptyText(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	fs := e.Extract("")
	require.NotNil(t, fs)

	assert.Empty(t, fs.Sender)
	assert.Empty(t, fs.Receiver)
	assert.Empty(t, fs.Date)
	assert.Empty(t, fs.TruckReg)
	assert.Empty(t, fs.TrailerReg)
	assert.Zero(t, fs.StartKm)
	assert.Zero(t, fs.EndKm)
	assert.Empty(t, fs.Table)
}

func TestExtractParties_SectionTerminators(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	text := `SENDER: Mooi River Abattoir
CELL NO: 083 111 2222
Somerset East
RECEIVER: Highveld Feedlot`

	fs := e.Extract(text)

	// CELL NO closes the sender block; Somerset East belongs to nobody
	assert.Equal(t, "Mooi River Abattoir", fs.Sender)
	assert.Equal(t, "Highveld Feedlot", fs.Receiver)
}

func TestExtractParties_SkipsImplausibleLines(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	text := `SENDER: Bergplaas Boerdery
ref 4417/a
Somerset East`

	fs := e.Extract(text)

	assert.Equal(t, "Bergplaas Boerdery, Somerset East", fs.Sender)
}

func TestExtractOdometer_WholeDocumentFallback(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	// Readings sit mid-document, outside the bottom window
	text := `TRIP SHEET
Odometer out 120500 back 121900
cargo details
line
line
line
line
line
line
line`

	fs := e.Extract(text)

	assert.Equal(t, 120500, fs.StartKm)
	assert.Equal(t, 121900, fs.EndKm)
}

func TestExtractOdometer_IncompletePairFallsBack(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	// The bottom window holds only one reading; the document as a whole
	// still carries a usable pair.
	text := `TRIP SHEET
Odometer out 120500 back 121900
cargo details
line
line
line
line
line
line
184230`

	fs := e.Extract(text)

	assert.Equal(t, 121900, fs.StartKm)
	assert.Equal(t, 184230, fs.EndKm)
}

func TestExtractOdometer_SkipsNoiseLines(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	text := `line
line
line
line
line
line
line
INVOICE 784512
184230
184695`

	fs := e.Extract(text)

	assert.Equal(t, 184230, fs.StartKm)
	assert.Equal(t, 184695, fs.EndKm)
}

func TestExtractOdometer_OutOfRangeIgnored(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	fs := e.Extract("weights 1250 and 4400 only")

	assert.Zero(t, fs.StartKm)
	assert.Zero(t, fs.EndKm)
}

func TestExtractRegistrations_LabelVariants(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	cases := []struct {
		name    string
		text    string
		truck   string
		trailer string
	}{
		{
			name:    "dotted labels",
			text:    "Truck Reg. No.: HXT 401 GP\nTrailer Reg. No.: JKL 889 FS",
			truck:   "HXT 401 GP",
			trailer: "JKL 889 FS",
		},
		{
			name:    "horse label",
			text:    "HORSE REG NO: CFR 221 EC",
			truck:   "CFR 221 EC",
			trailer: "",
		},
		{
			name:    "bare reg no goes to trailer slot",
			text:    "REG NO: DDK 305 NW",
			truck:   "",
			trailer: "DDK 305 NW",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := e.Extract(tc.text)
			assert.Equal(t, tc.truck, fs.TruckReg)
			assert.Equal(t, tc.trailer, fs.TrailerReg)
		})
	}
}

func TestExtractBruteForce_RegLines(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	fs := e.ExtractBruteForce("vehicle reg HXT4031GP JKL889FS")

	assert.Equal(t, "HXT4031GP", fs.TruckReg)
	assert.Equal(t, "JKL889FS", fs.TrailerReg)
}

func TestExtractBruteForce_PlateShapes(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	// No "reg" label anywhere; only the plate shape itself survives
	fs := e.ExtractBruteForce("horse CA 123-456 loaded at depot")

	assert.Equal(t, "CA 123-456", fs.TruckReg)
	assert.Empty(t, fs.TrailerReg)
}

func TestExtractBruteForce_NothingFound(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	fs := e.ExtractBruteForce("no plates on this page at all")

	assert.Empty(t, fs.TruckReg)
	assert.Empty(t, fs.TrailerReg)
}

func TestExtractDate_Formats(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Date: 15/09/24", "24-09-15"},
		{"Date: 15-9-24", "24-09-15"},
		{"Date: 2024/09/15", "2024-09-15"},
		{"Date: 15 09 2024", "2024-09-15"},
		{"Date: 15/13/24", ""},
		{"CELL 082 555 1234", ""},
		{"nothing here", ""},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, extractDate(tc.text), "text: %s", tc.text)
	}
}

func TestExtractTimes_NoOffloadingBlock(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	fs := e.Extract("LOADING: ARRIVED 07:45 COMPLETED 08:50")

	assert.Equal(t, "07:45", fs.LoadingArrived)
	assert.Equal(t, "08:50", fs.LoadingCompleted)
	assert.Empty(t, fs.OffloadingArrived)
	assert.Empty(t, fs.OffloadingCompleted)
}

func TestExtractTable_MultipleRows(t *testing.T) {
	e := NewExtractor(models.HeuristicsConfig{})

	text := `120 Weaner Calves 28400.00 0
32 Lambs Grade A 1250.50 14.2`

	fs := e.Extract(text)

	require.Len(t, fs.Table, 2)
	assert.Equal(t, "120", fs.Table[0].Packages)
	assert.Equal(t, "Weaner Calves", fs.Table[0].Description)
	assert.Equal(t, "28400.00", fs.Table[0].Gross)
}
