// Package classifier implements a deterministic, rule-driven classification
// of an inbound prompt into a Result the router uses to pick a model and the
// cache uses to pick a TTL. It is a pure function of its input: the same
// prompt always yields the same Result, with no external calls.
//
// The output schema is fixed so that a rules-based implementation (this one),
// an ML-backed one, or an LLM-backed one are interchangeable behind the same
// Classify signature.
package classifier

import (
	"math"
	"strings"
	"unicode"
)

// Type is the classified intent category. Precedence when multiple keyword
// sets match is fixed: Code > Creative > Analytical > Factual > Mathematical
// > Conversational > General.
type Type string

const (
	TypeGeneral       Type = "general"
	TypeCode          Type = "code"
	TypeCreative      Type = "creative"
	TypeFactual       Type = "factual"
	TypeAnalytical    Type = "analytical"
	TypeMathematical  Type = "mathematical"
	TypeConversational Type = "conversational"
)

// Complexity buckets prompt length (adjusted upward for long average
// sentence length) into a coarse effort estimate.
type Complexity string

const (
	ComplexitySimple      Complexity = "simple"
	ComplexityMedium      Complexity = "medium"
	ComplexityComplex     Complexity = "complex"
	ComplexityVeryComplex Complexity = "very-complex"
)

// Priority is a coarse scheduling hint derived from complexity.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Feature is a capability tag a model must (or should) support to serve a
// classified prompt well. Feature tags double as the capability vocabulary
// ModelInfo.Capabilities is drawn from.
const (
	FeatureTextGeneration   = "text-generation"
	FeatureCodeGeneration   = "code-generation"
	FeatureReasoning        = "reasoning"
	FeatureKnowledgeRetrieval = "knowledge-retrieval"
	FeatureEquationSolving  = "equation-solving"
	FeatureSummarization    = "summarization"
	FeatureStepByStep       = "step-by-step"
)

// TokenEstimate carries the classifier's best-effort token accounting for a
// prompt, used to size requests and to populate a degraded response's usage
// when no real call was made.
type TokenEstimate struct {
	Estimated  int `json:"estimated"`
	Completion int `json:"completion"`
}

// Result is the classifier's fixed output schema.
type Result struct {
	Type       Type           `json:"type"`
	Complexity Complexity     `json:"complexity"`
	Features   []string       `json:"features"`
	Priority   Priority       `json:"priority"`
	Confidence float64        `json:"confidence"`
	Domain     string         `json:"domain,omitempty"`
	Language   string         `json:"language,omitempty"`
	Tokens     TokenEstimate  `json:"tokens"`
}

// defaultResult is returned verbatim (modulo token counts) for empty input,
// per the "must classify any input including the empty string" invariant.
func defaultResult() *Result {
	return &Result{
		Type:       TypeGeneral,
		Complexity: ComplexitySimple,
		Features:   []string{FeatureTextGeneration},
		Priority:   PriorityLow,
		Confidence: 0.5,
		Tokens:     TokenEstimate{Estimated: 0, Completion: 0},
	}
}

// keyword tables, consulted in Type's fixed precedence order. Longer, more
// specific phrases are listed alongside short ones deliberately — this is a
// flat substring scan, not a tokenizer, so over-eager short tokens (e.g.
// "run") are avoided in favor of phrases that rarely false-positive.
var keywordsByType = map[Type][]string{
	TypeCode: {
		"```", "code", "function", "bug", "debug", "compile", "syntax error",
		"stack trace", "refactor", "implement", "algorithm", "programming",
		"variable", "api endpoint", "script", "regex", "unit test",
		"python", "golang", "javascript", "typescript", "sql query",
		"class ", "struct ", "pull request", "git ", "exception",
	},
	TypeCreative: {
		"write a story", "write a poem", "poem about", "short story",
		"once upon a time", "imagine a", "creative writing", "fiction",
		"novel", "song lyrics", "write lyrics", "screenplay", "metaphor",
	},
	TypeAnalytical: {
		"analyze", "analyse", "compare", "comparison", "evaluate",
		"pros and cons", "trade-off", "tradeoff", "assess", "breakdown",
		"root cause", "what are the implications",
	},
	TypeFactual: {
		"what is", "who is", "who was", "when did", "when was",
		"where is", "define ", "definition of", "what does", "fact about",
		"how many", "capital of",
	},
	TypeMathematical: {
		"calculate", "solve for", "equation", "derivative", "integral",
		"proof that", "theorem", "factorize", "square root", "algebra",
		"geometry problem", "probability of",
	},
	TypeConversational: {
		"hello", "hi there", "how are you", "good morning", "good evening",
		"thanks", "thank you", "let's chat", "just chatting", "nice to meet you",
	},
}

// typePrecedence is the fixed resolution order when more than one type's
// keywords match.
var typePrecedence = []Type{
	TypeCode, TypeCreative, TypeAnalytical, TypeFactual, TypeMathematical, TypeConversational,
}

// Classify turns prompt into a Result. It never errors and never returns
// nil — the empty string yields defaultResult() with its token counts
// recomputed (both zero).
func Classify(prompt string) *Result {
	if strings.TrimSpace(prompt) == "" {
		return defaultResult()
	}

	lower := strings.ToLower(prompt)

	classifiedType := TypeGeneral
	confidence := 0.5
	for _, t := range typePrecedence {
		if matchesAny(lower, keywordsByType[t]) {
			classifiedType = t
			confidence = 0.8
			break
		}
	}

	complexity := classifyComplexity(prompt)
	priority := priorityFor(complexity)
	features := featuresFor(classifiedType, lower)
	estimated := int(math.Ceil(float64(len(prompt)) / 4))
	completion := completionEstimate(classifiedType, estimated)

	return &Result{
		Type:       classifiedType,
		Complexity: complexity,
		Features:   features,
		Priority:   priority,
		Confidence: confidence,
		Domain:     domainFor(lower),
		Language:   languageFor(prompt),
		Tokens:     TokenEstimate{Estimated: estimated, Completion: completion},
	}
}

func matchesAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// classifyComplexity buckets by character length, then bumps one tier up
// when the average sentence is long (verbose, clause-heavy prompts cost more
// to reason over than their raw length alone suggests).
func classifyComplexity(prompt string) Complexity {
	n := len(prompt)

	var base Complexity
	switch {
	case n < 100:
		base = ComplexitySimple
	case n < 500:
		base = ComplexityMedium
	case n < 1000:
		base = ComplexityComplex
	default:
		base = ComplexityVeryComplex
	}

	if averageSentenceLength(prompt) > 150 {
		return bumpComplexity(base)
	}
	return base
}

func bumpComplexity(c Complexity) Complexity {
	switch c {
	case ComplexitySimple:
		return ComplexityMedium
	case ComplexityMedium:
		return ComplexityComplex
	case ComplexityComplex:
		return ComplexityVeryComplex
	default:
		return ComplexityVeryComplex
	}
}

func averageSentenceLength(prompt string) float64 {
	sentences := strings.FieldsFunc(prompt, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	if len(sentences) == 0 {
		return float64(len(prompt))
	}
	total := 0
	for _, s := range sentences {
		total += len(strings.TrimSpace(s))
	}
	return float64(total) / float64(len(sentences))
}

func priorityFor(c Complexity) Priority {
	switch c {
	case ComplexitySimple:
		return PriorityLow
	case ComplexityMedium:
		return PriorityMedium
	default:
		return PriorityHigh
	}
}

func featuresFor(t Type, lower string) []string {
	features := []string{FeatureTextGeneration}

	switch t {
	case TypeCode:
		features = append(features, FeatureCodeGeneration)
	case TypeAnalytical:
		features = append(features, FeatureReasoning)
	case TypeFactual:
		features = append(features, FeatureKnowledgeRetrieval)
	case TypeMathematical:
		features = append(features, FeatureReasoning, FeatureEquationSolving)
	}

	if strings.Contains(lower, "summarize") || strings.Contains(lower, "summary") || strings.Contains(lower, "tl;dr") {
		features = append(features, FeatureSummarization)
	}
	if strings.Contains(lower, "step by step") || strings.Contains(lower, "step-by-step") || strings.Contains(lower, "walk me through") {
		features = append(features, FeatureStepByStep)
	}

	return dedupe(features)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// completionEstimate applies the "creative > code > other" heuristic: a
// creative-writing reply tends to run longer than the prompt that asked for
// it, code responses moderately so, and everything else trails off below the
// prompt's own token count.
func completionEstimate(t Type, estimated int) int {
	var factor float64
	switch t {
	case TypeCreative:
		factor = 2.0
	case TypeCode:
		factor = 1.5
	case TypeAnalytical, TypeMathematical:
		factor = 1.2
	default:
		factor = 0.8
	}
	out := int(math.Ceil(float64(estimated) * factor))
	if out < 1 && estimated > 0 {
		out = 1
	}
	return out
}

// domainFor applies a small set of best-effort domain tags. Unmatched
// prompts carry no domain — it is explicitly optional per the schema.
func domainFor(lower string) string {
	domains := map[string][]string{
		"legal":    {"contract", "lawsuit", "liability", "plaintiff", "statute"},
		"medical":  {"diagnosis", "symptom", "treatment", "patient", "dosage"},
		"finance":  {"portfolio", "equity", "dividend", "balance sheet", "valuation"},
		"devops":   {"kubernetes", "docker", "ci/cd", "terraform", "deployment pipeline"},
	}
	for domain, keywords := range domains {
		if matchesAny(lower, keywords) {
			return domain
		}
	}
	return ""
}

// languageFor is a best-effort ISO tag: "en" when the prompt is
// overwhelmingly ASCII letters/punctuation, empty otherwise (no language
// model is invoked here — true language ID is out of scope for a pure
// keyword classifier).
func languageFor(prompt string) string {
	letters, nonASCIILetters := 0, 0
	for _, r := range prompt {
		if unicode.IsLetter(r) {
			letters++
			if r > unicode.MaxASCII {
				nonASCIILetters++
			}
		}
	}
	if letters == 0 {
		return ""
	}
	if float64(nonASCIILetters)/float64(letters) > 0.3 {
		return ""
	}
	return "en"
}
