package decision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// ParseResponse extracts a Proposal from model output. The JSON may be
// bare or inside a fenced code block, optionally surrounded by prose.
func ParseResponse(content string) (*Proposal, error) {
	body := strings.TrimSpace(content)
	if m := fencedJSON.FindStringSubmatch(body); m != nil {
		body = m[1]
	} else if start, end := strings.Index(body, "{"), strings.LastIndex(body, "}"); start >= 0 && end > start {
		body = body[start : end+1]
	}

	var p Proposal
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrInvalidProposal, err)
	}
	return &p, nil
}
