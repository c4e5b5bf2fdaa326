package inference

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	toolCodeOpen  = "<|begin_of_tool_code|>"
	toolCodeClose = "<|end_of_tool_code|>"
)

// Rule maps keywords in the user message to one tool call.
type Rule struct {
	Tool     string
	Keywords []string // any of, already lowercased
	Excludes []string // rule is skipped if any of these occur
	Args     func(msg string, meta map[string]string) []Arg
}

// Arg is one rendered keyword argument.
type Arg struct {
	Key   string
	Value any
}

// ScriptedProvider is a deterministic keyword-driven Provider used for
// mock mode, demos and tests. It emits tool-code fragments in the order
// the keywords appear in the message.
type ScriptedProvider struct {
	rules    []Rule
	fallback string
	lower    cases.Caser
}

// NewScriptedProvider creates a provider with the given rules, or the
// built-in telecom rules when none are passed.
func NewScriptedProvider(rules ...Rule) *ScriptedProvider {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &ScriptedProvider{
		rules:    rules,
		fallback: "Merhaba! Fatura, paket, kalan kullanım ve arıza işlemlerinizde size yardımcı olabilirim.",
		lower:    cases.Lower(language.Turkish),
	}
}

func (p *ScriptedProvider) Name() string { return "scripted" }

// Normalize lowercases with Turkish rules so "FATURA" and "İNTERNET" match.
func (p *ScriptedProvider) Normalize(s string) string {
	return strings.Join(strings.Fields(p.lower.String(s)), " ")
}

type match struct {
	at   int
	rule Rule
}

func (p *ScriptedProvider) Complete(ctx context.Context, prompt ports.Prompt) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	msg := p.Normalize(prompt.LastUserMessage())

	var matches []match
	for _, r := range p.rules {
		if containsAny(msg, r.Excludes) >= 0 {
			continue
		}
		if at := containsAny(msg, r.Keywords); at >= 0 {
			matches = append(matches, match{at: at, rule: r})
		}
	}
	if len(matches) == 0 {
		return p.fallback, nil
	}
	slices.SortStableFunc(matches, func(a, b match) int { return a.at - b.at })

	var b strings.Builder
	b.WriteString(toolCodeOpen + "\n")
	for _, m := range matches {
		var args []Arg
		if m.rule.Args != nil {
			args = m.rule.Args(msg, prompt.Meta)
		}
		fmt.Fprintf(&b, "print(%s(%s))\n", m.rule.Tool, renderArgs(args))
	}
	b.WriteString(toolCodeClose)
	return b.String(), nil
}

// containsAny returns the earliest index of any keyword, or -1.
func containsAny(s string, keywords []string) int {
	best := -1
	for _, k := range keywords {
		if i := strings.Index(s, k); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func renderArgs(args []Arg) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		var v string
		switch t := a.Value.(type) {
		case string:
			v = strconv.Quote(t)
		case bool:
			v = strconv.FormatBool(t)
		default:
			v = fmt.Sprint(t)
		}
		parts = append(parts, a.Key+"="+v)
	}
	return strings.Join(parts, ", ")
}

func withUser(meta map[string]string, rest ...Arg) []Arg {
	var args []Arg
	if id := meta["user_id"]; id != "" {
		args = append(args, Arg{Key: "user_id", Value: id})
	}
	return append(args, rest...)
}

func userOnly(_ string, meta map[string]string) []Arg { return withUser(meta) }

var (
	packageNames = []string{"mega internet", "süper konuşma", "full paket", "öğrenci dostu tarife", "esnaf paketi", "yurt dışı avantaj"}
	packageTitle = map[string]string{
		"mega internet":        "Mega İnternet",
		"süper konuşma":        "Süper Konuşma",
		"full paket":           "Full Paket",
		"öğrenci dostu tarife": "Öğrenci Dostu Tarife",
		"esnaf paketi":         "Esnaf Paketi",
		"yurt dışı avantaj":    "Yurt Dışı Avantaj",
	}
	regionNames = []string{"marmara", "ege", "akdeniz", "iç anadolu", "karadeniz", "doğu anadolu", "güneydoğu anadolu"}
	regionTitle = map[string]string{
		"marmara":           "Marmara",
		"ege":               "Ege",
		"akdeniz":           "Akdeniz",
		"iç anadolu":        "İç Anadolu",
		"karadeniz":         "Karadeniz",
		"doğu anadolu":      "Doğu Anadolu",
		"güneydoğu anadolu": "Güneydoğu Anadolu",
	}
)

// firstOf returns the title of the longest known name found in msg.
func firstOf(msg string, names []string, titles map[string]string) string {
	found := ""
	for _, n := range names {
		if strings.Contains(msg, n) && len(n) > len(found) {
			found = n
		}
	}
	return titles[found]
}

func toggle(msg string) bool {
	return containsAny(msg, []string{"kapat", "iptal", "durdur"}) < 0
}

// DefaultRules are the built-in telecom keyword rules.
func DefaultRules() []Rule {
	return []Rule{
		{
			Tool:     "get_bill_history",
			Keywords: []string{"geçmiş fatura", "önceki fatura", "eski fatura", "fatura geçmiş"},
			Args: func(msg string, meta map[string]string) []Arg {
				return withUser(meta, Arg{Key: "limit", Value: 6})
			},
		},
		{
			Tool:     "get_current_bill",
			Keywords: []string{"fatura"},
			Excludes: []string{"geçmiş", "önceki", "eski", "otomatik"},
			Args:     userOnly,
		},
		{
			Tool:     "get_payment_history",
			Keywords: []string{"ödeme geçmiş", "ödemelerim"},
			Args:     userOnly,
		},
		{
			Tool:     "setup_autopay",
			Keywords: []string{"otomatik ödeme"},
			Args: func(msg string, meta map[string]string) []Arg {
				return withUser(meta, Arg{Key: "status", Value: toggle(msg)})
			},
		},
		{
			Tool:     "change_package",
			Keywords: []string{"paketimi değiştir", "paket değiştir", "pakete geç"},
			Args: func(msg string, meta map[string]string) []Arg {
				return withUser(meta, Arg{Key: "new_package_name", Value: firstOf(msg, packageNames, packageTitle)})
			},
		},
		{
			Tool:     "get_customer_package",
			Keywords: []string{"paketim", "tarifem", "mevcut paket"},
			Excludes: []string{"değiştir", "geç"},
			Args:     userOnly,
		},
		{
			Tool:     "get_available_packages",
			Keywords: []string{"paketler", "hangi paket", "tarifeler"},
		},
		{
			Tool:     "get_remaining_quotas",
			Keywords: []string{"kalan", "kota"},
			Args:     userOnly,
		},
		{
			Tool:     "enable_roaming",
			Keywords: []string{"roaming", "yurt dışı kullanım"},
			Args: func(msg string, meta map[string]string) []Arg {
				return withUser(meta, Arg{Key: "status", Value: toggle(msg)})
			},
		},
		{
			Tool:     "test_internet_speed",
			Keywords: []string{"hız test", "internet hız", "internetim yavaş"},
			Args:     userOnly,
		},
		{
			Tool:     "check_network_status",
			Keywords: []string{"şebeke", "kapsama", "sinyal"},
			Args: func(msg string, meta map[string]string) []Arg {
				region := firstOf(msg, regionNames, regionTitle)
				if region == "" {
					region = "Marmara"
				}
				return []Arg{{Key: "region", Value: region}}
			},
		},
		{
			Tool:     "create_fault_ticket",
			Keywords: []string{"arıza kaydı", "arıza bildir", "şikayet"},
			Args: func(msg string, meta map[string]string) []Arg {
				return withUser(meta, Arg{Key: "issue_description", Value: msg})
			},
		},
		{
			Tool:     "get_system_health",
			Keywords: []string{"sistem durumu"},
		},
	}
}

var _ ports.Provider = (*ScriptedProvider)(nil)
