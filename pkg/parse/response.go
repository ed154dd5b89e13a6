// Package parse splits a model answer into the prose shown to the user and the chart
// code to execute.
package parse

import (
	"strings"
)

type ChartResponse struct {
	// DisplayText is the prose before the first fence, or the whole answer when it has
	// no code.
	DisplayText string
	// Code is the trimmed body of the first fenced block, "" when there is none.
	Code string
	// Language is the lowercased fence info string, informational only.
	Language string
}

func (r ChartResponse) HasCode() bool {
	return r.Code != ""
}

// ParseChartResponse never fails: an answer without a usable fenced block is plain text.
func ParseChartResponse(raw string) ChartResponse {
	blocks := ExtractCodeBlocks(raw)
	if len(blocks) == 0 {
		return ChartResponse{DisplayText: strings.TrimSpace(raw)}
	}
	first := blocks[0]
	code := strings.TrimSpace(first.Code)
	if code == "" {
		return ChartResponse{DisplayText: strings.TrimSpace(raw)}
	}

	cut := len(raw)
	for _, marker := range []string{"```", "~~~"} {
		if idx := strings.Index(raw, marker); idx >= 0 && idx < cut {
			cut = idx
		}
	}
	display := raw[:cut]
	return ChartResponse{
		DisplayText: strings.TrimSpace(display),
		Code:        code,
		Language:    first.Language,
	}
}
