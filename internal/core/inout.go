package core

import (
	"strings"

	"github.com/elyra-ai/kfp-notebook/pkg/api"
)

// SplitList splits a separator delimited list, trimming entries and dropping empty ones.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, api.Separator) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
