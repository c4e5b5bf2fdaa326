package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func succeeded(t *testing.T, reg *Registry, name string) *ToolCall {
	t.Helper()
	def, err := reg.Lookup(name)
	require.NoError(t, err)
	call := NewToolCall(ToolFragment{Name: name})
	require.NoError(t, call.Validate(def, map[string]any{}))
	require.NoError(t, call.Start())
	require.NoError(t, call.Succeed("ok"))
	return call
}

func failed(name string, kind ErrorKind, msg string) *ToolCall {
	call := NewToolCall(ToolFragment{Name: name})
	_ = call.Fail(&CallError{Kind: kind, Message: msg})
	return call
}

func TestComposeSuccessLines(t *testing.T) {
	reg := defaultRegistry(t)
	c := NewComposer(nil)

	reply := c.Compose("", []*ToolCall{succeeded(t, reg, "get_bill_history")})
	assert.Equal(t, "Geçmiş faturalarınızı inceledim.", reply)

	reply = c.Compose("Tabii, bakıyorum.", []*ToolCall{
		succeeded(t, reg, "get_current_bill"),
		failed("get_past_bills", KindUnknownTool, `unknown tool "get_past_bills"`),
	})
	assert.Equal(t, "Tabii, bakıyorum.\n\nGüncel faturanızı kontrol ettim.\nget_past_bills işlemi tamamlanamadı: unknown tool \"get_past_bills\"", reply)
}

func TestComposeFallbacks(t *testing.T) {
	c := NewComposer(nil)

	assert.Equal(t, greetingReply, c.Compose("  ", nil))
	assert.Equal(t, "Merhaba!", c.Compose("Merhaba!", nil))

	reply := c.Compose("", []*ToolCall{failed("get_current_bill", KindMissingParameter, "required parameter is missing")})
	assert.Equal(t, apologyReply+"\n\nget_current_bill işlemi tamamlanamadı: required parameter is missing", reply)
	assert.Equal(t, apologyReply, c.Apology())
}

func TestComposeSkipsNonTerminalCalls(t *testing.T) {
	reg := defaultRegistry(t)
	def, err := reg.Lookup("get_current_bill")
	require.NoError(t, err)
	pending := NewToolCall(ToolFragment{Name: "get_current_bill"})
	require.NoError(t, pending.Validate(def, map[string]any{}))

	c := NewComposer(nil)
	assert.Equal(t, "Bir saniye.", c.Compose("Bir saniye.", []*ToolCall{pending}))
}

func TestGuardrails(t *testing.T) {
	g := NewGuardrails("get_current_bill")
	assert.Nil(t, g.AllowTool("get_current_bill"))

	cerr := g.AllowTool("pay_bill")
	require.NotNil(t, cerr)
	assert.Equal(t, KindToolNotAllowed, cerr.Kind)

	assert.Nil(t, NewGuardrails().AllowTool("pay_bill"), "empty allowlist allows everything")

	out := g.SanitizeOutput("api_key=abc123 kart 4111 1111 1111 1111 tamam")
	assert.Equal(t, "[REDACTED] kart [REDACTED] tamam", out)
}
