package dictionary

import (
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/clinscribe/backend/pkg/utils"
)

const fuzzyCutoff = 0.6

// Dictionary is the static tier of the spell-check pipeline: curated
// canonical terms with their known misspellings and lay synonyms.
type Dictionary struct {
	mu      sync.RWMutex
	terms   map[string][]string
	reverse map[string]string
}

var seedTerms = map[string][]string{
	// medications
	"acetaminophen": {"acitaminohen", "acetominofen", "acetaminofen", "tylenol"},
	"ibuprofen":     {"ibuprofin", "ibuprophen", "advil", "motrin"},
	"aspirin":       {"asprin", "aspirine", "asiprin"},
	"amoxicillin":   {"amoxicilin", "amoxacillin", "amoxycillin"},
	"metformin":     {"metaformin", "metformine", "glucophage"},
	"lisinopril":    {"lisinoprill", "lysinopril", "lisnopril"},
	"atorvastatin":  {"lipitor", "atorvastatine"},
	"levothyroxine": {"levothyroxin", "synthroid"},
	"omeprazole":    {"omeprazol", "prilosec"},
	"simvastatin":   {"simvastatine", "zocor"},

	// symptoms
	"cough":        {"cof", "cogh", "coughf", "coughing"},
	"fever":        {"fevar", "feaver", "pyrexia"},
	"headache":     {"hedache", "headach", "cephalalgia"},
	"nausea":       {"nausia", "naushea"},
	"vomiting":     {"vomitting", "emesis"},
	"diarrhea":     {"diarhea", "diarreah"},
	"constipation": {"constipaton"},
	"fatigue":      {"fatique", "fatige", "tiredness"},
	"dizziness":    {"dizzyness", "dizzines", "vertigo"},
	"dyspnea":      {"dispnea", "dyspnoea", "shortness of breath"},

	// conditions
	"hypertension":      {"hipertension", "high blood pressure", "htn"},
	"diabetes":          {"diabetis", "diabeties", "dm"},
	"diabetes mellitus": {"diabetic"},
	"mellitus":          {"melletus", "melitus", "mellitis"},
	"hyperglycemia":     {"hyperglycaemia", "hyperglycemic", "hyperglycaemic", "high blood sugar"},
	"hypoglycemia":      {"hypoglycaemia", "hypoglycemic", "hypoglycaemic", "low blood sugar"},
	"blood sugar":       {"blood glucose", "sugar level"},
	"asthma":            {"asma", "athsma"},
	"pneumonia":         {"pnuemonia", "neumonia"},
	"bronchitis":        {"bronchitus", "bronkitis"},
	"sinusitis":         {"sinusitus", "synusitis", "sinus infection"},
	"migraine":          {"migrane", "migriane"},
	"arthritis":         {"arthrites", "arthritus"},
	"osteoporosis":      {"osteoporoses"},
	"depression":        {"depresion", "deppression"},

	// procedures
	"echocardiogram":             {"ecocardiogram", "echo", "echocardiography"},
	"electrocardiogram":          {"ekg", "ecg", "electrocardiograph"},
	"magnetic resonance imaging": {"mri", "magnetic resonance"},
	"computed tomography":        {"ct scan", "cat scan", "ct"},
	"x-ray":                      {"xray", "radiograph", "x ray"},
	"ultrasound":                 {"ultra sound", "sonography"},
	"colonoscopy":                {"colonscopy"},
	"endoscopy":                  {"gastroscopy"},
	"biopsy":                     {"byopsy"},
	"angiography":                {"angiogram"},

	// laboratory tests
	"hba1c":         {"a1c", "hemoglobin a1c", "glycated hemoglobin"},
	"hemoglobin":    {"haemoglobin", "hgb", "hb"},
	"cholesterol":   {"cholestrol", "lipid panel", "lipids"},
	"triglycerides": {"tryglicerides", "tg", "trigs"},
	"creatinine":    {"creatinin", "serum creatinine"},
	"glucose":       {"glucos", "fasting glucose"},
	"thyroid":       {"thyriod", "tsh", "thyroid function"},

	// anatomy
	"abdomen":  {"abdomin", "abdoman", "belly"},
	"thorax":   {"thoracks", "chest"},
	"cervical": {"cervicle"},
	"lumbar":   {"lower back", "lumbr"},
	"femur":    {"femer", "thigh bone"},
	"tibia":    {"tibea", "shin bone"},
	"humerus":  {"humerous", "upper arm bone"},
	"cranium":  {"craneum", "skull"},
	"clavicle": {"clavical", "collar bone"},
	"sternum":  {"sternam", "breast bone"},
}

func New() *Dictionary {
	d := &Dictionary{
		terms:   make(map[string][]string, len(seedTerms)),
		reverse: make(map[string]string),
	}
	for canonical, misspellings := range seedTerms {
		d.addLocked(canonical, misspellings)
	}
	return d
}

func (d *Dictionary) addLocked(canonical string, misspellings []string) {
	canonical = utils.NormalizeTerm(canonical)
	d.terms[canonical] = append(d.terms[canonical], misspellings...)
	d.reverse[canonical] = canonical
	for _, m := range misspellings {
		d.reverse[utils.NormalizeTerm(m)] = canonical
	}
}

// IsKnown reports whether the term appears as a canonical entry or a known
// misspelling.
func (d *Dictionary) IsKnown(term string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.reverse[utils.NormalizeTerm(term)]
	return ok
}

// IsCanonical reports whether the term itself is a correctly spelled entry.
func (d *Dictionary) IsCanonical(term string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.terms[utils.NormalizeTerm(term)]
	return ok
}

// CorrectSpelling resolves a term to its canonical spelling. The second
// return is false when the term is unknown.
func (d *Dictionary) CorrectSpelling(term string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	canonical, ok := d.reverse[utils.NormalizeTerm(term)]
	return canonical, ok
}

// Suggestions returns up to maxSuggestions canonical terms near the input.
// A known misspelling's canonical form always ranks first, followed by fuzzy
// matches at or above the similarity cutoff.
func (d *Dictionary) Suggestions(term string, maxSuggestions int) []string {
	if maxSuggestions <= 0 {
		maxSuggestions = 5
	}

	normalized := utils.NormalizeTerm(term)

	d.mu.RLock()
	defer d.mu.RUnlock()

	var suggestions []string
	seen := make(map[string]bool)

	if canonical, ok := d.reverse[normalized]; ok && canonical != normalized {
		suggestions = append(suggestions, canonical)
		seen[canonical] = true
	}

	type scored struct {
		term  string
		score float64
	}
	var matches []scored
	for canonical := range d.terms {
		if seen[canonical] || canonical == normalized {
			continue
		}
		score := Similarity(normalized, canonical)
		if score >= fuzzyCutoff*100 {
			matches = append(matches, scored{canonical, score})
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].term < matches[j].term
	})

	for _, m := range matches {
		if len(suggestions) >= maxSuggestions {
			break
		}
		suggestions = append(suggestions, m.term)
	}
	return suggestions
}

// AddTerm registers a new canonical term with optional misspellings.
func (d *Dictionary) AddTerm(canonical string, misspellings ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addLocked(canonical, misspellings)
}

func (d *Dictionary) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.terms)
}

// Similarity scores two terms on a 0-100 scale from their Levenshtein
// distance relative to the longer term.
func Similarity(a, b string) float64 {
	a = utils.NormalizeTerm(a)
	b = utils.NormalizeTerm(b)
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 100
	}

	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0
	}

	distance := matchr.Levenshtein(a, b)
	score := 100 * (1 - float64(distance)/float64(longest))
	if score < 0 {
		return 0
	}
	return score
}
