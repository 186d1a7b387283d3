package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/loadlane/delivery-ocr-service/internal/models"
)

// Extractor pulls named fields out of a free-form recognized text block
// with ordered pattern rules. Pure function of text in, field set out.
type Extractor struct {
	cfg models.HeuristicsConfig
}

// NewExtractor creates a heuristic extractor with the given thresholds.
func NewExtractor(cfg models.HeuristicsConfig) *Extractor {
	return &Extractor{cfg: cfg.WithDefaults()}
}

// Extract runs every field rule over the text and returns a candidate
// field set. Dates are left in raw Y-M-D form for the normalizer.
func (e *Extractor) Extract(text string) *models.FieldSet {
	lines := splitLines(text)
	fs := &models.FieldSet{Table: []models.LineItem{}}

	e.extractParties(lines, fs)
	e.extractOdometer(lines, fs)
	extractRegistrations(lines, fs)
	fs.Date = extractDate(text)
	extractTimes(text, fs)
	extractTable(lines, fs)

	return fs
}

// ExtractBruteForce is the tertiary pass: registration recovery for slips
// whose labels were mangled by recognition. It scans "reg" lines for mixed
// alphanumeric runs and, when that yields nothing, matches generic
// plate-like shapes anywhere in the text.
func (e *Extractor) ExtractBruteForce(text string) *models.FieldSet {
	lines := splitLines(text)
	fs := &models.FieldSet{Table: []models.LineItem{}}

	fs.TruckReg, fs.TrailerReg = bruteForceRegistrations(lines)
	if fs.TruckReg == "" && fs.TrailerReg == "" {
		fs.TruckReg, fs.TrailerReg = plateShapeRegistrations(text)
	}

	return fs
}

func splitLines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

// --- Sender / Receiver ---

// section is the state of the line scanner walking the consignor and
// consignee blocks.
type section int

const (
	sectionNone section = iota
	sectionSender
	sectionReceiver
)

var (
	senderLabelRe   = regexp.MustCompile(`(?i)^\s*SENDER\s*:\s*(.*)$`)
	receiverLabelRe = regexp.MustCompile(`(?i)^\s*RECEIVER\s*:\s*(.*)$`)
)

// sectionTerminators close an open sender/receiver section; whatever
// follows one of these belongs to another part of the slip.
var sectionTerminators = []string{"CELL NO", "LOADING:", "OFF LOADING:"}

// nameShapeRules accept lines that look like party names: capitalized word
// pairs ("Somerset East") or all-caps comma lists ("KARAN BEEF, PMB").
var nameShapeRules = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[A-Z][a-z]+)+$`),
	regexp.MustCompile(`^[A-Z][A-Z0-9 ,.&'()/-]+$`),
}

// nameDomainTokens accept lines carrying known consignor/consignee
// vocabulary regardless of shape.
var nameDomainTokens = []string{"FARM", "BOERDERY", "ABATTOIR", "FEEDLOT", "DEPOT", "TRUST"}

func (e *Extractor) extractParties(lines []string, fs *models.FieldSet) {
	state := sectionNone
	var sender, receiver []string

	appendTo := func(value string) {
		if state == sectionSender {
			sender = append(sender, value)
		} else {
			receiver = append(receiver, value)
		}
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if m := senderLabelRe.FindStringSubmatch(trimmed); m != nil {
			state = sectionSender
			if rest := strings.TrimSpace(m[1]); rest != "" {
				appendTo(rest)
			}
			continue
		}
		if m := receiverLabelRe.FindStringSubmatch(trimmed); m != nil {
			state = sectionReceiver
			if rest := strings.TrimSpace(m[1]); rest != "" {
				appendTo(rest)
			}
			continue
		}

		if state == sectionNone {
			continue
		}
		if trimmed == "" {
			state = sectionNone
			continue
		}

		upper := strings.ToUpper(trimmed)
		if isTerminator(upper) {
			state = sectionNone
			continue
		}
		if plausibleName(trimmed, upper) {
			appendTo(trimmed)
		}
	}

	fs.Sender = strings.Join(sender, ", ")
	fs.Receiver = strings.Join(receiver, ", ")
}

func isTerminator(upper string) bool {
	for _, t := range sectionTerminators {
		if strings.Contains(upper, t) {
			return true
		}
	}
	return false
}

func plausibleName(line, upper string) bool {
	for _, re := range nameShapeRules {
		if re.MatchString(line) {
			return true
		}
	}
	for _, tok := range nameDomainTokens {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	return false
}

// --- Odometer pair ---

var (
	kmWindowRe   = regexp.MustCompile(`\b\d{4,7}\b`)
	kmFallbackRe = regexp.MustCompile(`\b\d{5,7}\b`)
)

// extractOdometer looks for the handwritten KM pair in the bottom window
// of the document, skipping boilerplate lines. If the window does not
// yield a full pair, every in-range 5-7 digit number in the document is
// collected and the last two are taken as the pair, trusting document
// order.
func (e *Extractor) extractOdometer(lines []string, fs *models.FieldSet) {
	window := len(lines) - int(float64(len(lines))*e.cfg.BottomWindowFraction)
	if window < 0 {
		window = 0
	}

	var first, second int
	for _, line := range lines[window:] {
		if e.noisyLine(line) {
			continue
		}
		for _, raw := range kmWindowRe.FindAllString(line, -1) {
			n, _ := strconv.Atoi(raw)
			if n < e.cfg.OdometerMin || n > e.cfg.OdometerMax {
				continue
			}
			if first == 0 {
				first = n
				continue
			}
			if n != first {
				second = n
				break
			}
		}
		if first != 0 && second != 0 {
			break
		}
	}

	if first == 0 || second == 0 {
		var all []int
		for _, line := range lines {
			for _, raw := range kmFallbackRe.FindAllString(line, -1) {
				n, _ := strconv.Atoi(raw)
				if n >= e.cfg.OdometerMin && n <= e.cfg.OdometerMax {
					all = append(all, n)
				}
			}
		}
		if len(all) >= 2 {
			first, second = all[len(all)-2], all[len(all)-1]
		} else if first == 0 {
			return
		}
	}

	fs.StartKm = first
	fs.EndKm = second
}

func (e *Extractor) noisyLine(line string) bool {
	upper := strings.ToUpper(line)
	for _, tok := range e.cfg.NoiseTokens {
		if strings.Contains(upper, tok) {
			return true
		}
	}
	return false
}

// --- Registrations ---

const plateCapture = `([A-Za-z0-9][A-Za-z0-9 /-]{2,11}[A-Za-z0-9])`

// Label-anchored rules, tried in order per line; first match wins. New
// slip layouts become new entries, not new branches.
var truckRegRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)TRUCK\s+REG\.?\s*NO\.?\s*:?\s*` + plateCapture),
	regexp.MustCompile(`(?i)TRUCK\s+REG\.?\s*:?\s*` + plateCapture),
	regexp.MustCompile(`(?i)TRUCK\s+NO\.?\s*:?\s*` + plateCapture),
	regexp.MustCompile(`(?i)HORSE\s+REG\.?\s*(?:NO\.?)?\s*:?\s*` + plateCapture),
}

var trailerRegRules = []*regexp.Regexp{
	regexp.MustCompile(`(?i)TRAILER\s+REG\.?\s*NO\.?\s*:?\s*` + plateCapture),
	regexp.MustCompile(`(?i)TRAILER\s+REG\.?\s*:?\s*` + plateCapture),
	regexp.MustCompile(`(?i)TRAILER\s+NO\.?\s*:?\s*` + plateCapture),
	// Generic label on slips that only print one unlabeled registration box.
	regexp.MustCompile(`(?i)^\s*REG\.?\s*NO\.?\s*:?\s*` + plateCapture),
}

func extractRegistrations(lines []string, fs *models.FieldSet) {
	for _, line := range lines {
		if fs.TruckReg == "" {
			for _, re := range truckRegRules {
				if m := re.FindStringSubmatch(line); m != nil {
					fs.TruckReg = strings.TrimSpace(m[1])
					break
				}
			}
		}
		if fs.TrailerReg == "" {
			for _, re := range trailerRegRules {
				if m := re.FindStringSubmatch(line); m != nil {
					fs.TrailerReg = strings.TrimSpace(m[1])
					break
				}
			}
		}
		if fs.TruckReg != "" && fs.TrailerReg != "" {
			return
		}
	}
}

var alnumRunRe = regexp.MustCompile(`[A-Za-z0-9]{4,10}`)

// bruteForceRegistrations scans every line containing "reg" for
// alphanumeric runs that mix letters and digits; the first candidate is
// taken as the truck, the second as the trailer.
func bruteForceRegistrations(lines []string) (truck, trailer string) {
	for _, line := range lines {
		if !strings.Contains(strings.ToLower(line), "reg") {
			continue
		}
		for _, run := range alnumRunRe.FindAllString(line, -1) {
			if !hasDigit(run) || !hasLetter(run) {
				continue
			}
			if truck == "" {
				truck = run
				continue
			}
			if run != truck {
				return truck, run
			}
		}
	}
	return truck, trailer
}

// plateShapeRules match plate-like letter/digit runs with or without
// separators, including space- or hyphen-joined triplets.
var plateShapeRules = []*regexp.Regexp{
	regexp.MustCompile(`\b[A-Z]{2,3}[ -]?\d{3}[ -]?\d{3}\b`),
	regexp.MustCompile(`\b[A-Z]{2,3}[ -]?\d{3,4}[ -]?[A-Z]{0,3}\b`),
	regexp.MustCompile(`\b\d{2,3}[ -]?[A-Z]{2,3}[ -]?\d{2,4}\b`),
}

func plateShapeRegistrations(text string) (truck, trailer string) {
	for _, re := range plateShapeRules {
		for _, match := range re.FindAllString(text, -1) {
			if !hasLetter(match) {
				// all-digit runs are odometer or phone noise
				continue
			}
			match = strings.Trim(match, " -")
			if truck == "" {
				truck = match
				continue
			}
			// later rules re-match fragments of the first plate
			if match != truck && !strings.Contains(truck, match) && !strings.Contains(match, truck) {
				return truck, match
			}
		}
	}
	return truck, trailer
}

func hasDigit(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' }) >= 0
}

func hasLetter(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
	}) >= 0
}

// --- Date ---

var (
	dateSepRe   = regexp.MustCompile(`\b(\d{1,4})[./-](\d{1,2})[./-](\d{1,4})\b`)
	dateSpaceRe = regexp.MustCompile(`\b(\d{1,2})\s+(\d{1,2})\s+(\d{2,4})\b`)
)

// extractDate returns the first date-shaped substring reordered into raw
// Y-M-D form. Two-digit years are kept as-is for the century pivot.
func extractDate(text string) string {
	for _, m := range dateSepRe.FindAllStringSubmatch(text, -1) {
		if raw := rawDate(m[1], m[2], m[3]); raw != "" {
			return raw
		}
	}
	for _, m := range dateSpaceRe.FindAllStringSubmatch(text, -1) {
		if raw := rawDate(m[1], m[2], m[3]); raw != "" {
			return raw
		}
	}
	return ""
}

// rawDate reorders a D-M-Y (or Y-M-D when the first group is a 4-digit
// year) capture into Y-M-D, rejecting implausible day/month values so
// phone numbers do not read as dates.
func rawDate(a, b, c string) string {
	month, _ := strconv.Atoi(b)
	if month < 1 || month > 12 {
		return ""
	}
	if len(a) == 4 {
		day, _ := strconv.Atoi(c)
		if day < 1 || day > 31 {
			return ""
		}
		return a + "-" + pad2(b) + "-" + pad2(c)
	}
	if len(c) == 3 {
		return ""
	}
	day, _ := strconv.Atoi(a)
	if day < 1 || day > 31 {
		return ""
	}
	return c + "-" + pad2(b) + "-" + pad2(a)
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// --- Loading / offloading timestamps ---

var (
	offLoadingSplitRe = regexp.MustCompile(`(?i)OFF[ -]?LOADING`)
	arrivedTimeRe     = regexp.MustCompile(`(?i)ARRIV\w*\D{0,10}?(\d{1,2}:\d{2})`)
	completedTimeRe   = regexp.MustCompile(`(?i)(?:COMPLET|DEPART)\w*\D{0,10}?(\d{1,2}:\d{2})`)
)

// extractTimes splits the text at the OFF LOADING label and pulls the
// first arrived/completed HH:MM out of each half independently.
func extractTimes(text string, fs *models.FieldSet) {
	loading := text
	offloading := ""
	if loc := offLoadingSplitRe.FindStringIndex(text); loc != nil {
		loading = text[:loc[0]]
		offloading = text[loc[0]:]
	}

	if m := arrivedTimeRe.FindStringSubmatch(loading); m != nil {
		fs.LoadingArrived = m[1]
	}
	if m := completedTimeRe.FindStringSubmatch(loading); m != nil {
		fs.LoadingCompleted = m[1]
	}
	if m := arrivedTimeRe.FindStringSubmatch(offloading); m != nil {
		fs.OffloadingArrived = m[1]
	}
	if m := completedTimeRe.FindStringSubmatch(offloading); m != nil {
		fs.OffloadingCompleted = m[1]
	}
}

// --- Line-item table ---

// One generic row shape: <int> <words> <decimal?> <decimal?>.
var tableRowRe = regexp.MustCompile(`^\s*(\d+)\s+([A-Za-z][A-Za-z0-9 .,/()'&-]*?)(?:\s+(\d+(?:\.\d+)?))?(?:\s+(\d+(?:\.\d+)?))?\s*$`)

func extractTable(lines []string, fs *models.FieldSet) {
	for _, line := range lines {
		m := tableRowRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		fs.Table = append(fs.Table, models.LineItem{
			Packages:    m[1],
			Description: strings.TrimSpace(m[2]),
			Gross:       m[3],
			Volume:      m[4],
		})
	}
}
