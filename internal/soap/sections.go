package soap

import (
	"fmt"
	"strings"
)

type Sections map[string]any

var subjectiveAliases = map[string]string{
	"cc":                         "chief_complaint",
	"chief complaint":            "chief_complaint",
	"chiefcomplaint":             "chief_complaint",
	"hpi":                        "history_of_present_illness",
	"history of present illness": "history_of_present_illness",
	"pmh":                        "past_medical_history",
	"past medical history":       "past_medical_history",
	"fh":                         "family_history",
	"family history":             "family_history",
	"sh":                         "social_history",
	"social history":             "social_history",
	"meds":                       "medications",
	"medications":                "medications",
	"allergy":                    "allergies",
	"allergies":                  "allergies",
}

var objectiveAliases = map[string]string{
	"vitals":        "vital_signs",
	"vital signs":   "vital_signs",
	"pe":            "physical_exam",
	"exam":          "physical_exam",
	"physical exam": "physical_exam",
}

var assessmentAliases = map[string]string{
	"dx":                   "diagnosis",
	"diagnosis":            "diagnosis",
	"impression":           "diagnosis",
	"assessment/diagnosis": "diagnosis",
	"risks":                "risk_factors",
	"risk factors":         "risk_factors",
}

var planAliases = map[string]string{
	"rx":                     "medications_prescribed",
	"medications":            "medications_prescribed",
	"medications prescribed": "medications_prescribed",
	"orders":                 "procedures_or_tests",
	"tests":                  "procedures_or_tests",
	"labs":                   "procedures_or_tests",
	"imaging":                "procedures_or_tests",
	"procedures":             "procedures_or_tests",
	"procedures or tests":    "procedures_or_tests",
	"education":              "patient_education",
	"patient education":      "patient_education",
	"follow up":              "follow_up_instructions",
	"follow-up":              "follow_up_instructions",
	"followup":               "follow_up_instructions",
	"follow up instructions": "follow_up_instructions",
	"instructions":           "follow_up_instructions",
}

var vitalHints = []string{
	"temp", "temperature", "bp", "blood pressure", "hr", "heart rate",
	"rr", "respiratory rate", "spo2", "oxygen", "o2",
}

func keyNorm(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	k = strings.ReplaceAll(k, "-", " ")
	return strings.ReplaceAll(k, "_", " ")
}

func ensureString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func normalizeMedication(item map[string]any) map[string]string {
	return map[string]string{
		"name":      ensureString(item["name"]),
		"dosage":    ensureString(item["dosage"]),
		"frequency": ensureString(item["frequency"]),
		"route":     ensureString(item["route"]),
		"duration":  ensureString(item["duration"]),
	}
}

func normalizeVitals(v any) map[string]string {
	vitals, _ := v.(map[string]any)
	return map[string]string{
		"temperature":       ensureString(vitals["temperature"]),
		"blood_pressure":    ensureString(vitals["blood_pressure"]),
		"heart_rate":        ensureString(vitals["heart_rate"]),
		"respiratory_rate":  ensureString(vitals["respiratory_rate"]),
		"oxygen_saturation": ensureString(vitals["oxygen_saturation"]),
	}
}

func toMedicationList(v any) ([]map[string]string, bool) {
	var items []any
	switch t := v.(type) {
	case map[string]any:
		items = []any{t}
	case []any:
		items = t
	case nil:
		return nil, true
	default:
		return nil, false
	}

	var meds []map[string]string
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			meds = append(meds, normalizeMedication(m))
		}
	}
	return meds, true
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			return []string{t}
		}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, ensureString(item))
		}
		return out
	}
	return nil
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// Normalize enforces canonical section keys and schemas while preserving
// every unknown key, so nothing the model produced is dropped. Aliases like
// "HPI" or "rx" are folded onto their canonical names, medication entries
// are coerced onto the fixed schema, and vital signs always carry the full
// standard key set.
func Normalize(sections Sections) Sections {
	subjIn := asMap(sections["subjective"])
	objIn := asMap(sections["objective"])
	assessIn := asMap(sections["assessment"])
	planIn := asMap(sections["plan"])

	subjOut := map[string]any{
		"chief_complaint":            "",
		"history_of_present_illness": "",
		"past_medical_history":       "",
		"family_history":             "",
		"social_history":             "",
		"medications":                []map[string]string{},
		"allergies":                  []string{},
	}
	for k, v := range subjIn {
		switch subjectiveAliases[keyNorm(k)] {
		case "medications":
			if meds, ok := toMedicationList(v); ok {
				subjOut["medications"] = append(subjOut["medications"].([]map[string]string), meds...)
			} else {
				subjOut[k] = v
			}
		case "allergies":
			subjOut["allergies"] = append(subjOut["allergies"].([]string), toStringList(v)...)
		case "":
			subjOut[k] = v
		default:
			subjOut[subjectiveAliases[keyNorm(k)]] = ensureString(v)
		}
	}

	objOut := map[string]any{
		"vital_signs":   normalizeVitals(nil),
		"physical_exam": "",
	}
	vitalsSeen := false
	for k, v := range objIn {
		switch objectiveAliases[keyNorm(k)] {
		case "vital_signs":
			objOut["vital_signs"] = normalizeVitals(v)
			vitalsSeen = true
		case "physical_exam":
			objOut["physical_exam"] = ensureString(v)
		default:
			if !vitalsSeen && looksLikeVitals(v) {
				objOut["vital_signs"] = normalizeVitals(v)
				vitalsSeen = true
			} else {
				objOut[k] = v
			}
		}
	}

	assessOut := map[string]any{
		"diagnosis":    "",
		"risk_factors": []string{},
	}
	for k, v := range assessIn {
		switch assessmentAliases[keyNorm(k)] {
		case "diagnosis":
			assessOut["diagnosis"] = ensureString(v)
		case "risk_factors":
			assessOut["risk_factors"] = append(assessOut["risk_factors"].([]string), toStringList(v)...)
		default:
			assessOut[k] = v
		}
	}

	planOut := map[string]any{
		"medications_prescribed": []map[string]string{},
		"procedures_or_tests":    []string{},
		"patient_education":      "",
		"follow_up_instructions": "",
	}
	for k, v := range planIn {
		switch planAliases[keyNorm(k)] {
		case "medications_prescribed":
			if meds, ok := toMedicationList(v); ok {
				planOut["medications_prescribed"] = append(planOut["medications_prescribed"].([]map[string]string), meds...)
			} else {
				planOut[k] = v
			}
		case "procedures_or_tests":
			planOut["procedures_or_tests"] = append(planOut["procedures_or_tests"].([]string), toStringList(v)...)
		case "patient_education":
			planOut["patient_education"] = ensureString(v)
		case "follow_up_instructions":
			planOut["follow_up_instructions"] = ensureString(v)
		default:
			planOut[k] = v
		}
	}

	return Sections{
		"subjective": subjOut,
		"objective":  objOut,
		"assessment": assessOut,
		"plan":       planOut,
	}
}

func looksLikeVitals(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	for k := range m {
		kn := keyNorm(k)
		for _, hint := range vitalHints {
			if strings.Contains(kn, hint) {
				return true
			}
		}
	}
	return false
}

// IsComplete reports whether the note carries enough substance to return:
// a subjective narrative plus at least one of exam findings, a diagnosis, or
// plan content.
func IsComplete(sections Sections) bool {
	if len(sections) == 0 {
		return false
	}

	subj := asMap(sections["subjective"])
	hpi := strings.TrimSpace(ensureString(subj["history_of_present_illness"]))
	cc := strings.TrimSpace(ensureString(subj["chief_complaint"]))
	if hpi == "" && cc == "" {
		return false
	}

	obj := asMap(sections["objective"])
	if strings.TrimSpace(ensureString(obj["physical_exam"])) != "" {
		return true
	}

	assess := asMap(sections["assessment"])
	if strings.TrimSpace(ensureString(assess["diagnosis"])) != "" {
		return true
	}

	plan := asMap(sections["plan"])
	if meds, ok := plan["medications_prescribed"].([]map[string]string); ok && len(meds) > 0 {
		return true
	}
	if tests, ok := plan["procedures_or_tests"].([]string); ok && len(tests) > 0 {
		return true
	}
	return false
}
