package advisor

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/jwtly10/stratsim/internal/logging"
	"github.com/jwtly10/stratsim/internal/types"
)

const (
	DefaultConfidence = 50.0
	DefaultReasoning  = "unable to parse"
)

var ErrUnparseable = errors.New("advisor response could not be parsed")

var parseLog = logging.New("advisor")

// Advice is the parsed advisor opinion. Confidence is on a 0..100 scale.
type Advice struct {
	Action     types.Action `json:"action"`
	Confidence float64      `json:"confidence"`
	Reasoning  string       `json:"reasoning"`
	// ConfidenceGiven is false when the reply carried no usable confidence
	// and Confidence holds the default.
	ConfidenceGiven bool `json:"confidenceGiven"`
	// Method names the parser that produced the advice.
	Method string `json:"method"`
}

type parser interface {
	Name() string
	Parse(raw string) (Advice, bool)
}

// parsers are tried in order; the first success wins.
var parsers = []parser{strictParser{}, repairParser{}, extractParser{}}

// ParseAdvice reads {action, confidence, reasoning} out of a model reply.
// Malformed JSON is repaired and re-parsed, and as a last resort the fields
// are pulled out individually with defaults for whatever is missing.
func ParseAdvice(raw string) (Advice, error) {
	for _, p := range parsers {
		adv, ok := p.Parse(raw)
		if !ok {
			parseLog.Debug("Parser rejected advisor reply", "parser", p.Name())
			continue
		}
		adv.Method = p.Name()
		return adv, nil
	}
	return Advice{}, ErrUnparseable
}

type adviceJSON struct {
	Action     string `json:"action"`
	Confidence any    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

func (a adviceJSON) advice() (Advice, bool) {
	action, ok := parseAction(a.Action)
	if !ok {
		return Advice{}, false
	}

	conf, given := DefaultConfidence, false
	switch v := a.Confidence.(type) {
	case float64:
		conf, given = v, true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64); err == nil {
			conf, given = f, true
		}
	}
	if given && math.IsNaN(conf) {
		conf, given = DefaultConfidence, false
	}

	reasoning := strings.TrimSpace(a.Reasoning)
	if reasoning == "" {
		reasoning = DefaultReasoning
	}

	return Advice{
		Action:          action,
		Confidence:      normaliseConfidence(conf),
		Reasoning:       reasoning,
		ConfidenceGiven: given,
	}, true
}

type strictParser struct{}

func (strictParser) Name() string { return "strict" }

func (strictParser) Parse(raw string) (Advice, bool) {
	body, ok := jsonObject(stripFences(raw))
	if !ok {
		return Advice{}, false
	}
	var a adviceJSON
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return Advice{}, false
	}
	return a.advice()
}

var (
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	missingCommaRe  = regexp.MustCompile(`("|\d|true|false|null)(\s+)("[A-Za-z_][A-Za-z0-9_]*"\s*:)`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

type repairParser struct{}

func (repairParser) Name() string { return "repaired" }

func (repairParser) Parse(raw string) (Advice, bool) {
	fixed, ok := repairJSON(raw)
	if !ok {
		return Advice{}, false
	}
	var a adviceJSON
	if err := json.Unmarshal([]byte(fixed), &a); err != nil {
		return Advice{}, false
	}
	return a.advice()
}

// repairJSON normalises the usual ways models break JSON: code fences, bare
// or single quoted keys, missing and trailing commas, and unclosed braces.
func repairJSON(raw string) (string, bool) {
	s := stripFences(raw)
	start := strings.Index(s, "{")
	if start < 0 {
		return "", false
	}
	s = s[start:]
	if end := strings.LastIndex(s, "}"); end >= 0 && strings.Count(s, "{") == strings.Count(s[:end+1], "{") {
		s = s[:end+1]
	}

	s = requoteSingle(s)
	s = bareKeyRe.ReplaceAllString(s, `$1"$2":`)
	s = missingCommaRe.ReplaceAllString(s, `$1,$2$3`)

	if strings.Count(s, `"`)%2 == 1 {
		s += `"`
	}
	if open := strings.Count(s, "{") - strings.Count(s, "}"); open > 0 {
		s += strings.Repeat("}", open)
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")

	return s, true
}

// requoteSingle turns 'single quoted' tokens into JSON strings. Text inside
// double quoted strings is left alone, so apostrophes in values survive.
func requoteSingle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inDouble, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inDouble:
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
		case c == '"':
			inDouble = true
			b.WriteByte(c)
		case c == '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				b.WriteByte(c)
				continue
			}
			b.WriteString(strconv.Quote(s[i+1 : i+1+end]))
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var (
	actionRe     = regexp.MustCompile(`(?i)["']?action["']?\s*[:=]\s*["']?\s*(buy|sell|hold)\b`)
	confidenceRe = regexp.MustCompile(`(?i)["']?confidence["']?\s*[:=]\s*["']?\s*(\d+(?:\.\d+)?)`)
	// The value runs to the matching quote, so "it's" keeps its apostrophe.
	reasoningRe = regexp.MustCompile(`(?is)["']?reason(?:ing)?["']?\s*[:=]\s*(?:"([^"]*)|'([^']*))`)
)

type extractParser struct{}

func (extractParser) Name() string { return "extracted" }

func (extractParser) Parse(raw string) (Advice, bool) {
	adv := Advice{Action: types.HOLD, Confidence: DefaultConfidence, Reasoning: DefaultReasoning}
	found := false

	if m := actionRe.FindStringSubmatch(raw); m != nil {
		adv.Action, _ = parseAction(m[1])
		found = true
	}
	if m := confidenceRe.FindStringSubmatch(raw); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			adv.Confidence = normaliseConfidence(f)
			adv.ConfidenceGiven = true
			found = true
		}
	}
	if m := reasoningRe.FindStringSubmatch(raw); m != nil {
		if r := strings.TrimSpace(m[1] + m[2]); r != "" {
			adv.Reasoning = r
			found = true
		}
	}

	return adv, found
}

func parseAction(s string) (types.Action, bool) {
	a := types.Action(strings.ToLower(strings.TrimSpace(s)))
	return a, a.Valid()
}

// normaliseConfidence maps fractions below 1 onto 0..100 and clamps the
// result. A whole 1 is read as 1 on the 0..100 scale.
func normaliseConfidence(c float64) float64 {
	if math.IsNaN(c) {
		return DefaultConfidence
	}
	if c > 0 && c < 1 {
		c *= 100
	}
	return math.Max(0, math.Min(100, c))
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "```") {
		return s
	}
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	return strings.TrimSpace(strings.ReplaceAll(s, "```", ""))
}

// jsonObject returns the text from the first '{' to the last '}'.
func jsonObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
