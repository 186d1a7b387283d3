package models

// FieldSet is the canonical extraction output for one delivery document.
// The JSON names (sender, receiver, date, truckReg, trailerReg, startKm,
// endKm, table) are consumed verbatim by the approval-workflow frontend
// and must not change.
type FieldSet struct {
	Sender   string `json:"sender,omitempty"`
	Receiver string `json:"receiver,omitempty"`

	// Date is raw extractor output until normalized, then YYYY-MM-DD.
	Date string `json:"date,omitempty"`

	TruckReg   string `json:"truckReg,omitempty"`
	TrailerReg string `json:"trailerReg,omitempty"`

	// Odometer readings. Zero means not found; plausible readings start
	// at 50 000 so zero never collides with a real value.
	StartKm int `json:"startKm,omitempty"`
	EndKm   int `json:"endKm,omitempty"`

	LoadingArrived      string `json:"loadingArrived,omitempty"`
	LoadingCompleted    string `json:"loadingCompleted,omitempty"`
	OffloadingArrived   string `json:"offloadingArrived,omitempty"`
	OffloadingCompleted string `json:"offloadingCompleted,omitempty"`

	Table []LineItem `json:"table"`

	// Confidence is the recognizer's reported text quality (0-100).
	// Zero when the result came from a purely structured remote response.
	Confidence float64 `json:"confidence"`
}

// TotalKm returns the trip distance, or 0 when either reading is missing.
func (f *FieldSet) TotalKm() int {
	if f.StartKm > 0 && f.EndKm > f.StartKm {
		return f.EndKm - f.StartKm
	}
	return 0
}

// HasRegistration reports whether at least one registration was found.
func (f *FieldSet) HasRegistration() bool {
	return f.TruckReg != "" || f.TrailerReg != ""
}

// LineItem is one row of the delivery slip's load table.
type LineItem struct {
	Packages    string `json:"packages,omitempty"`
	Description string `json:"description,omitempty"`
	Gross       string `json:"gross,omitempty"`
	Volume      string `json:"volume,omitempty"`
	R           string `json:"r,omitempty"`
	C           string `json:"c,omitempty"`
}

// RawResult is the output of one recognition attempt. A structured remote
// attempt fills Fields (and possibly Table and Text from raw_text); a local
// text attempt fills Text and Confidence only.
type RawResult struct {
	// Fields holds already-named candidate values keyed by the canonical
	// camelCase names (sender, receiver, date, truckReg, trailerReg).
	Fields map[string]string

	// Table rows supplied verbatim by a structured result.
	Table []LineItem

	// Text is the free-form recognized text block.
	Text string

	// Confidence is the recognizer's quality score in [0,100].
	Confidence float64

	// Source is "remote" or "local".
	Source string
}

// Approval chain stages for a delivery document.
const (
	StageUploaded = "uploaded"
	StageChecked  = "checked"
	StageApproved = "approved"
	StageInvoiced = "invoiced"
	StageArchived = "archived"
)

// stageOrder defines the forward direction of the approval chain.
var stageOrder = map[string]int{
	StageUploaded: 0,
	StageChecked:  1,
	StageApproved: 2,
	StageInvoiced: 3,
	StageArchived: 4,
}

// ValidStage reports whether s names a known approval stage.
func ValidStage(s string) bool {
	_, ok := stageOrder[s]
	return ok
}

// CanTransition reports whether a document may move from one stage to the
// next. Only single forward steps are allowed; rejection resets to uploaded.
func CanTransition(from, to string) bool {
	f, okF := stageOrder[from]
	t, okT := stageOrder[to]
	if !okF || !okT {
		return false
	}
	return t == f+1 || (to == StageUploaded && from != StageUploaded)
}
