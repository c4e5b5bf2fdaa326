package session

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

const requestPreview = 80

// Tally counts outcomes of one tool across evicted turns.
type Tally struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Summary is the digest of turns that fell out of the history window.
type Summary struct {
	Evicted  int               `json:"evicted"`
	Requests []string          `json:"requests,omitempty"` // most recent last
	Tools    map[string]*Tally `json:"tools,omitempty"`
}

// Fold adds an evicted turn, keeping at most keep recent requests.
func (s *Summary) Fold(t ports.Turn, keep int) {
	s.Evicted++
	if keep > 0 {
		s.Requests = append(s.Requests, preview(t.UserMessage))
		if len(s.Requests) > keep {
			s.Requests = s.Requests[len(s.Requests)-keep:]
		}
	}
	if s.Tools == nil {
		s.Tools = map[string]*Tally{}
	}
	for _, c := range t.ToolCalls {
		tally, ok := s.Tools[c.ToolName]
		if !ok {
			tally = &Tally{}
			s.Tools[c.ToolName] = tally
		}
		if c.Status == "succeeded" {
			tally.Succeeded++
		} else {
			tally.Failed++
		}
	}
}

// Render formats the digest for the system prompt. Empty when nothing
// was evicted.
func (s *Summary) Render() string {
	if s.Evicted == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Önceki %d mesaj özetlendi.", s.Evicted)
	if len(s.Requests) > 0 {
		fmt.Fprintf(&b, " Son istekler: %s.", strings.Join(s.Requests, "; "))
	}
	if len(s.Tools) > 0 {
		names := make([]string, 0, len(s.Tools))
		for name := range s.Tools {
			names = append(names, name)
		}
		slices.Sort(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			t := s.Tools[name]
			parts = append(parts, fmt.Sprintf("%s (%d başarılı, %d başarısız)", name, t.Succeeded, t.Failed))
		}
		fmt.Fprintf(&b, " Kullanılan araçlar: %s.", strings.Join(parts, ", "))
	}
	return b.String()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= requestPreview {
		return s
	}
	r := []rune(s)
	return string(r[:requestPreview]) + "…"
}
