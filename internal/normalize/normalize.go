// Package normalize extracts a canonical job status from the untyped JSON
// returned by third-party status endpoints.
//
// Extraction is a list of independent rules applied in order to the decoded
// document. Each rule only reads the document and fills in its own part of
// the Result, so supporting a new vendor shape means adding a rule or a key,
// not touching the reconciliation state machine.
package normalize

import (
	"encoding/json"
	"strings"

	"github.com/hassaanshafqatt/reels-ui-sub000/internal/domain"
)

// Result is the information recovered from one status payload. Empty
// strings mean the field was absent.
type Result struct {
	// Status is the canonical status, empty when none was found or the
	// reported value is not a known synonym.
	Status domain.Status
	// RawStatus is the lowercased status string as reported.
	RawStatus string
	ResultURL string
	Caption   string
	Error     string
}

// Doc is a decoded JSON object.
type Doc map[string]any

// Rule fills part of a Result from a document.
type Rule func(doc Doc, r *Result)

var (
	// StatusKeys are probed in order for the job status.
	StatusKeys = []string{"status", "state", "job_status"}
	// ResultURLKeys are probed in order for the result artifact.
	ResultURLKeys = []string{
		"reelUrl", "reel_url",
		"videoUrl", "videoURL", "video_url",
		"downloadUrl", "download_url",
		"outputUrl", "output_url",
		"url", "link",
	}
	CaptionKeys = []string{"caption"}
)

// DefaultRules is the rule list used by Normalize.
var DefaultRules = []Rule{ErrorRule, StatusRule, ResultURLRule, CaptionRule}

// Normalizer applies an ordered rule list.
type Normalizer struct {
	Rules []Rule
}

// New returns a Normalizer over DefaultRules followed by extra.
func New(extra ...Rule) *Normalizer {
	rules := make([]Rule, 0, len(DefaultRules)+len(extra))
	rules = append(rules, DefaultRules...)
	rules = append(rules, extra...)
	return &Normalizer{Rules: rules}
}

var std = New()

// Normalize runs the default rules over raw.
func Normalize(raw []byte) Result { return std.Normalize(raw) }

// Normalize decodes raw and applies every rule. It never fails: anything
// that is not a JSON object yields an empty Result. An error signal always
// suppresses the status.
func (n *Normalizer) Normalize(raw []byte) Result {
	var r Result
	doc, ok := decode(raw)
	if !ok {
		return r
	}
	for _, rule := range n.Rules {
		rule(doc, &r)
	}
	if r.Error != "" {
		r.Status, r.RawStatus = "", ""
	}
	return r
}

func decode(raw []byte) (Doc, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return Doc(m), ok
}

// ErrorRule flags an error when the document carries a non-empty "error"
// field or a "message" containing "error" in any case.
func ErrorRule(doc Doc, r *Result) {
	if v, ok := doc["error"]; ok {
		if msg := errorText(v); msg != "" {
			r.Error = msg
			return
		}
	}
	if msg, ok := doc["message"].(string); ok && strings.Contains(strings.ToLower(msg), "error") {
		r.Error = msg
	}
}

func errorText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case bool:
		if t {
			return "external service reported an error"
		}
		return ""
	case string:
		return strings.TrimSpace(t)
	case map[string]any:
		if msg, ok := t["message"].(string); ok && msg != "" {
			return msg
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "external service reported an error"
	}
	return string(b)
}

// StatusRule takes the first string among StatusKeys, lowercased, and maps it
// through the synonym table.
func StatusRule(doc Doc, r *Result) {
	s, ok := firstString(doc, StatusKeys)
	if !ok {
		return
	}
	r.RawStatus = strings.ToLower(s)
	r.Status, _ = Canonical(r.RawStatus)
}

func ResultURLRule(doc Doc, r *Result) {
	if s, ok := firstString(doc, ResultURLKeys); ok {
		r.ResultURL = s
	}
}

func CaptionRule(doc Doc, r *Result) {
	if s, ok := firstString(doc, CaptionKeys); ok {
		r.Caption = s
	}
}

// firstString returns the first key holding a non-empty string. Keys present
// with another type are skipped.
func firstString(doc Doc, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := doc[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}
