package classifier

import (
	"context"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	rediscache "github.com/clinscribe/backend/internal/cache/redis"
	"github.com/clinscribe/backend/internal/llm"
	"github.com/clinscribe/backend/internal/spellcheck/dictionary"
	"github.com/clinscribe/backend/internal/spellcheck/vocabulary"
	"github.com/clinscribe/backend/pkg/logger"
)

const minCandidateLength = 3

// Candidate is a span of dictated text flagged as a likely medical term.
type Candidate struct {
	Term     string
	Start    int
	End      int
	Category string
}

var (
	labTestPattern   = regexp.MustCompile(`(?i)\b(?:HbA1c|A1C|CBC|BMP|CMP|TSH|PSA|ESR|CRP|INR|PTT)\b`)
	vitalPattern     = regexp.MustCompile(`(?i)\b(?:BP|HR|RR|O2|SpO2)\b`)
	imagingPattern   = regexp.MustCompile(`(?i)\b(?:CT|MRI|ECG|EKG|EEG|EMG|PET|X-ray|ultrasound)\b`)
	dosagePattern    = regexp.MustCompile(`(?i)\b\d+\s*(?:mg|mcg|g|ml|cc|units?|IU|mEq|mmol)\b`)
	suffixPattern    = regexp.MustCompile(`(?i)\b\w+(?:ology|itis|osis|emia|oma|pathy|algia|rrhagia|rrhea|scopy|tomy|ectomy)\b`)
	drugNamePattern  = regexp.MustCompile(`(?i)\b\w+(?:cillin|mycin|statin|pril|sartan|olol|azole|prazole|formin|oxetine|azepam|dipine)\b`)
	frequencyPattern = regexp.MustCompile(`(?i)\b(?:BID|TID|QID|PRN|QD|QHS|PO|IV|IM|SubQ)\b`)
	wordPattern      = regexp.MustCompile(`[A-Za-z][A-Za-z0-9'-]*`)
)

var morphologySuffixes = []string{
	"itis", "osis", "emia", "oma", "pathy", "algia", "scopy", "tomy", "ectomy",
}

var stoplist = map[string]bool{
	"the": true, "and": true, "with": true, "for": true, "was": true,
	"this": true, "that": true, "patient": true, "presents": true,
	"history": true, "complains": true, "reports": true, "denies": true,
	"today": true, "morning": true, "follow": true, "normal": true,
	"good": true, "well": true, "also": true, "noted": true,
}

// Classifier finds candidate medical terms in free dictation. The LLM path is
// preferred; when it is unavailable or fails, a local NLP pass over nouns
// with medical morphology takes over. Pattern matches are merged into either
// path so abbreviations and dosages are never missed.
type Classifier struct {
	llm   *llm.Client
	redis *rediscache.Client
	dict  *dictionary.Dictionary
	vocab *vocabulary.Vocabulary
}

func New(llmClient *llm.Client, redisClient *rediscache.Client, dict *dictionary.Dictionary, vocab *vocabulary.Vocabulary) *Classifier {
	return &Classifier{llm: llmClient, redis: redisClient, dict: dict, vocab: vocab}
}

// ExtractCandidates returns deduplicated candidate spans sorted by position.
// The llmIdentified flag on the result is implicit: candidates carry a
// category assigned by whichever stage found them.
func (c *Classifier) ExtractCandidates(ctx context.Context, text string) ([]Candidate, bool) {
	var candidates []Candidate
	llmUsed := false

	if c.llm != nil {
		if extracted, ok := c.extractWithLLM(ctx, text); ok {
			candidates = extracted
			llmUsed = true
		}
	}
	if !llmUsed {
		candidates = c.extractWithNLP(text)
	}

	candidates = append(candidates, c.patternMatches(text)...)
	candidates = append(candidates, c.knownWordMatches(text)...)

	candidates = c.filter(candidates)
	candidates = dedupeOverlaps(candidates)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Start < candidates[j].Start })

	return candidates, llmUsed
}

func (c *Classifier) extractWithLLM(ctx context.Context, text string) ([]Candidate, bool) {
	var terms []llm.IdentifiedTerm

	if cached, ok := c.redis.GetExtraction(ctx, text); ok {
		if err := json.Unmarshal([]byte(cached), &terms); err == nil {
			return c.locate(text, terms), true
		}
	}

	terms, err := c.llm.IdentifyMedicalTerms(ctx, text)
	if err != nil {
		logger.Warn("LLM term extraction failed, falling back to NLP", zap.Error(err))
		return nil, false
	}

	if payload, err := json.Marshal(terms); err == nil {
		c.redis.SetExtraction(ctx, text, string(payload))
	}

	return c.locate(text, terms), true
}

// locate maps extracted terms back to their character offsets. A term that
// no longer appears in the text (the model paraphrased it) is dropped.
func (c *Classifier) locate(text string, terms []llm.IdentifiedTerm) []Candidate {
	var candidates []Candidate
	for _, t := range terms {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(t.Term) + `\b`)
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringIndex(text, -1) {
			candidates = append(candidates, Candidate{
				Term:     text[loc[0]:loc[1]],
				Start:    loc[0],
				End:      loc[1],
				Category: t.Category,
			})
		}
	}
	return candidates
}

func (c *Classifier) extractWithNLP(text string) []Candidate {
	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		logger.Warn("NLP document parse failed", zap.Error(err))
		return nil
	}

	var candidates []Candidate
	offset := 0
	for _, tok := range doc.Tokens() {
		idx := strings.Index(text[offset:], tok.Text)
		if idx < 0 {
			continue
		}
		start := offset + idx
		offset = start + len(tok.Text)

		if tok.Tag != "NN" && tok.Tag != "NNS" && tok.Tag != "NNP" && tok.Tag != "NNPS" {
			continue
		}
		if !hasMedicalMorphology(tok.Text) && len(tok.Text) <= 6 {
			continue
		}

		candidates = append(candidates, Candidate{
			Term:     tok.Text,
			Start:    start,
			End:      start + len(tok.Text),
			Category: "potential_medical",
		})
	}

	for _, ent := range doc.Entities() {
		if idx := strings.Index(text, ent.Text); idx >= 0 {
			candidates = append(candidates, Candidate{
				Term:     ent.Text,
				Start:    idx,
				End:      idx + len(ent.Text),
				Category: "entity",
			})
		}
	}

	return candidates
}

func hasMedicalMorphology(word string) bool {
	lower := strings.ToLower(word)
	for _, suffix := range morphologySuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func (c *Classifier) patternMatches(text string) []Candidate {
	var candidates []Candidate

	add := func(re *regexp.Regexp, category string) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			candidates = append(candidates, Candidate{
				Term:     text[loc[0]:loc[1]],
				Start:    loc[0],
				End:      loc[1],
				Category: category,
			})
		}
	}

	add(labTestPattern, "lab_test")
	add(vitalPattern, "vital_sign")
	add(imagingPattern, "imaging")
	add(dosagePattern, "dosage")
	add(frequencyPattern, "frequency")
	add(suffixPattern, "medical")
	add(drugNamePattern, "medication")

	return candidates
}

// knownWordMatches sweeps every word against the static dictionary and the
// learned vocabulary so terms those tiers can resolve are always surfaced,
// even when both the LLM and the NLP pass miss them.
func (c *Classifier) knownWordMatches(text string) []Candidate {
	var candidates []Candidate
	for _, loc := range wordPattern.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		known := c.dict != nil && c.dict.IsKnown(word)
		if !known && c.vocab != nil {
			known = c.vocab.Contains(word)
		}
		if !known && c.vocab != nil {
			if isMedical, _, found := c.vocab.GetCachedClassification(word); found && isMedical {
				known = true
			}
		}
		if !known {
			continue
		}
		candidates = append(candidates, Candidate{
			Term:     word,
			Start:    loc[0],
			End:      loc[1],
			Category: "known_term",
		})
	}
	return candidates
}

func (c *Classifier) filter(candidates []Candidate) []Candidate {
	out := candidates[:0]
	for _, cand := range candidates {
		term := strings.TrimSpace(cand.Term)
		if len(term) < minCandidateLength && !dosagePattern.MatchString(term) &&
			!vitalPattern.MatchString(term) && !imagingPattern.MatchString(term) {
			continue
		}
		if stoplist[strings.ToLower(term)] {
			continue
		}
		if c.vocab != nil {
			if isMedical, _, found := c.vocab.GetCachedClassification(term); found && !isMedical {
				continue
			}
		}
		out = append(out, cand)
	}
	return out
}

// dedupeOverlaps drops any candidate overlapping a kept one by more than
// half of the shorter span. First seen wins.
func dedupeOverlaps(candidates []Candidate) []Candidate {
	var kept []Candidate
	for _, cand := range candidates {
		overlaps := false
		for _, existing := range kept {
			start := max(cand.Start, existing.Start)
			end := min(cand.End, existing.End)
			overlap := end - start
			if overlap <= 0 {
				continue
			}
			shorter := min(cand.End-cand.Start, existing.End-existing.Start)
			if float64(overlap) > 0.5*float64(shorter) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, cand)
		}
	}
	return kept
}
