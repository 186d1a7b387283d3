package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

// Reconciler merges candidate field sets from different tiers and
// normalizes the merged values into their canonical forms.
type Reconciler struct {
	now func() time.Time
}

// NewReconciler creates a reconciler using the wall clock.
func NewReconciler() *Reconciler {
	return &Reconciler{now: time.Now}
}

// Merge combines candidates ordered highest-to-lowest priority. A
// lower-priority candidate only fills fields the higher tiers left empty;
// it never overwrites a present value. The first non-empty table wins as
// a whole; rows are never merged across candidates. The result is
// normalized before being returned.
func (r *Reconciler) Merge(candidates ...*models.FieldSet) *models.FieldSet {
	merged := &models.FieldSet{Table: []models.LineItem{}}

	for _, c := range candidates {
		if c == nil {
			continue
		}
		fillString(&merged.Sender, c.Sender)
		fillString(&merged.Receiver, c.Receiver)
		fillString(&merged.Date, c.Date)
		fillString(&merged.TruckReg, c.TruckReg)
		fillString(&merged.TrailerReg, c.TrailerReg)
		fillString(&merged.LoadingArrived, c.LoadingArrived)
		fillString(&merged.LoadingCompleted, c.LoadingCompleted)
		fillString(&merged.OffloadingArrived, c.OffloadingArrived)
		fillString(&merged.OffloadingCompleted, c.OffloadingCompleted)
		if merged.StartKm == 0 {
			merged.StartKm = c.StartKm
		}
		if merged.EndKm == 0 {
			merged.EndKm = c.EndKm
		}
		if len(merged.Table) == 0 && len(c.Table) > 0 {
			merged.Table = c.Table
		}
		if merged.Confidence == 0 {
			merged.Confidence = c.Confidence
		}
	}

	r.normalize(merged)
	return merged
}

func fillString(dst *string, value string) {
	if *dst == "" && value != "" {
		*dst = value
	}
}

var (
	isoDateRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	shortDateRe = regexp.MustCompile(`^(\d{2})-(\d{1,2})-(\d{1,2})$`)
)

// normalize canonicalizes the merged values in place. A FieldSet is never
// left partially normalized.
func (r *Reconciler) normalize(fs *models.FieldSet) {
	fs.Date = r.normalizeDate(fs.Date)
	fs.TruckReg = strings.TrimSpace(fs.TruckReg)
	fs.TrailerReg = strings.TrimSpace(fs.TrailerReg)

	// Inverted readings mean at least one was misread; discarding both
	// beats guessing which.
	if fs.StartKm != 0 && fs.EndKm != 0 && fs.StartKm >= fs.EndKm {
		fs.StartKm = 0
		fs.EndKm = 0
	}

	for i := range fs.Table {
		fs.Table[i].Gross = normalizeAmount(fs.Table[i].Gross)
		fs.Table[i].Volume = normalizeAmount(fs.Table[i].Volume)
	}
}

// normalizeDate canonicalizes a raw date into ISO YYYY-MM-DD. Two-digit
// years pivot at 50: yy < 50 becomes 20yy, else 19yy. A raw value of any
// other shape is replaced with the current date since downstream always
// persists a date; an absent date stays absent.
func (r *Reconciler) normalizeDate(raw string) string {
	if raw == "" {
		return ""
	}
	if isoDateRe.MatchString(raw) {
		return raw
	}
	if m := shortDateRe.FindStringSubmatch(raw); m != nil {
		yy, _ := strconv.Atoi(m[1])
		century := 1900
		if yy < 50 {
			century = 2000
		}
		return fmt.Sprintf("%d-%s-%s", century+yy, pad2(m[2]), pad2(m[3]))
	}
	return r.now().Format("2006-01-02")
}

// normalizeAmount strips thousands separators from a table amount and
// re-renders it canonically. Unparseable values are left as recognized.
func normalizeAmount(raw string) string {
	if raw == "" {
		return ""
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return raw
	}
	return d.String()
}
