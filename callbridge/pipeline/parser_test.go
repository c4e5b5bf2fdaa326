package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleToolCode(t *testing.T) {
	out := "<|begin_of_tool_code|>\nprint(get_bill_history(user_id=\"1234\", limit=6))\n<|end_of_tool_code|>"

	res := Parse(out)
	assert.Empty(t, res.Diagnostics)
	assert.Empty(t, res.Prose())

	frags := res.Fragments()
	require.Len(t, frags, 1)
	assert.Equal(t, "get_bill_history", frags[0].Name)
	assert.Equal(t, map[string]any{"user_id": "1234", "limit": int64(6)}, frags[0].Args)
	assert.Equal(t, []string{"user_id", "limit"}, frags[0].ArgOrder)
}

func TestParseProseAndCalls(t *testing.T) {
	out := `Hemen kontrol ediyorum.
<|begin_of_tool_code|>
get_current_bill(user_id='1234')
get_remaining_quotas(user_id="1234"); test_internet_speed(user_id="1234",)
<|end_of_tool_code|>
Başka bir isteğiniz var mı?<|eot_id|>`

	res := Parse(out)
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "Hemen kontrol ediyorum.\nBaşka bir isteğiniz var mı?", res.Prose())

	var names []string
	for _, f := range res.Fragments() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"get_current_bill", "get_remaining_quotas", "test_internet_speed"}, names)

	kinds := make([]SegmentKind, 0, len(res.Segments))
	for _, s := range res.Segments {
		kinds = append(kinds, s.Kind)
	}
	assert.Equal(t, []SegmentKind{SegmentProse, SegmentTool, SegmentTool, SegmentTool, SegmentProse}, kinds)
}

func TestParseLiterals(t *testing.T) {
	out := `<|begin_of_tool_code|>print(f(a=True, b=none_value, c=2.5, d=None, e={"k": [1, 2]}, f="x\"y", g=-3))<|end_of_tool_code|>`

	frags := Parse(out).Fragments()
	require.Len(t, frags, 1)
	args := frags[0].Args
	assert.Equal(t, true, args["a"])
	assert.Equal(t, "none_value", args["b"])
	assert.Equal(t, 2.5, args["c"])
	assert.Nil(t, args["d"])
	assert.Equal(t, map[string]any{"k": []any{int64(1), int64(2)}}, args["e"])
	assert.Equal(t, `x"y`, args["f"])
	assert.Equal(t, int64(-3), args["g"])
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g"}, frags[0].ArgOrder)
}

func TestParseLeadingZeroStaysText(t *testing.T) {
	out := `<|begin_of_tool_code|>print(get_current_bill(user_id=0123, a=0, b=0.5, c=-007))<|end_of_tool_code|>`

	frags := Parse(out).Fragments()
	require.Len(t, frags, 1)
	args := frags[0].Args
	assert.Equal(t, "0123", args["user_id"])
	assert.Equal(t, int64(0), args["a"])
	assert.Equal(t, 0.5, args["b"])
	assert.Equal(t, "-007", args["c"])
}

func TestLeadingZeroUserIDSurvivesValidation(t *testing.T) {
	reg := defaultRegistry(t)
	def, err := reg.Lookup("get_current_bill")
	require.NoError(t, err)

	frags := Parse(`<|begin_of_tool_code|>get_current_bill(user_id=0123)<|end_of_tool_code|>`).Fragments()
	require.Len(t, frags, 1)

	args, _, err := Validate(def, frags[0].Args)
	require.NoError(t, err)
	assert.Equal(t, "0123", args["user_id"])
}

func TestParseMalformedKeepsGoing(t *testing.T) {
	out := "<|begin_of_tool_code|>\nget_current_bill(1234)\nget_remaining_quotas(user_id=\"1234\")\n<|end_of_tool_code|>"

	res := Parse(out)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, DiagParse, res.Diagnostics[0].Kind)
	assert.Equal(t, "get_current_bill(1234)", res.Diagnostics[0].Snippet)

	frags := res.Fragments()
	require.Len(t, frags, 1)
	assert.Equal(t, "get_remaining_quotas", frags[0].Name)
	assert.Equal(t, SegmentMalformed, res.Segments[0].Kind)
}

func TestParseUnterminatedBlock(t *testing.T) {
	out := "Bakıyorum. <|begin_of_tool_code|>print(get_current_bill(user_id=\"1234\"))"

	res := Parse(out)
	assert.Empty(t, res.Fragments())
	require.Len(t, res.Diagnostics, 1)
	assert.Contains(t, res.Diagnostics[0].Message, "unterminated")
	assert.Equal(t, len("Bakıyorum. "), res.Diagnostics[0].Offset)
	assert.Equal(t, "Bakıyorum.", res.Prose())
}

func TestParseToolCallJSON(t *testing.T) {
	tests := []struct {
		name  string
		out   string
		args  map[string]any
		order []string
	}{
		{
			name:  "object arguments",
			out:   `<tool_call>{"name": "get_bill_history", "arguments": {"user_id": "1234", "limit": 3}}</tool_call>`,
			args:  map[string]any{"user_id": "1234", "limit": int64(3)},
			order: []string{"user_id", "limit"},
		},
		{
			name:  "encoded string arguments",
			out:   `<tool_call>{"name": "get_bill_history", "arguments": "{\"limit\": 2, \"user_id\": \"1234\"}"}</tool_call>`,
			args:  map[string]any{"user_id": "1234", "limit": int64(2)},
			order: []string{"limit", "user_id"},
		},
		{
			name:  "repaired JSON",
			out:   "<tool_call>\n{'name': 'get_bill_history', 'arguments': {'user_id': '1234', 'limit': 1,},}\n</tool_call>",
			args:  map[string]any{"user_id": "1234", "limit": int64(1)},
			order: []string{"user_id", "limit"},
		},
		{
			name:  "repaired JSON keeps apostrophes",
			out:   "<tool_call>{'name': 'get_bill_history', 'arguments': {'user_id': '1234', 'note': \"Telekom'un faturası\", 'title': 'Ayşe'nin hattı',}}</tool_call>",
			args:  map[string]any{"user_id": "1234", "note": "Telekom'un faturası", "title": "Ayşe'nin hattı"},
			order: []string{"user_id", "note", "title"},
		},
		{
			name: "no arguments",
			out:  `<tool_call>{"name": "get_bill_history"}</tool_call>`,
			args: map[string]any{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.out)
			require.Empty(t, res.Diagnostics)
			frags := res.Fragments()
			require.Len(t, frags, 1)
			assert.Equal(t, "get_bill_history", frags[0].Name)
			assert.Equal(t, tt.args, frags[0].Args)
			assert.Equal(t, tt.order, frags[0].ArgOrder)
		})
	}
}

func TestFixJSON(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{'a': 'b'}`, `{"a": "b"}`},
		{`{"a": "Telekom'un"}`, `{"a": "Telekom'un"}`},
		{`{'a': 'Telekom'un'}`, `{"a": "Telekom'un"}`},
		{`{'a': 'say "hi"'}`, `{"a": "say \"hi\""}`},
		{`{'a': 'it\'s'}`, `{"a": "it's"}`},
		{`{a: 1,}`, `{"a": 1}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fixJSON(tt.in), tt.in)
	}
}

func TestParseToolCallJSONMalformed(t *testing.T) {
	for _, out := range []string{
		`<tool_call>{"arguments": {}}</tool_call>`,
		`<tool_call>not json at all</tool_call>`,
		`<tool_call>{"name": "x", "arguments": [1, 2]}</tool_call>`,
	} {
		res := Parse(out)
		assert.Empty(t, res.Fragments(), out)
		assert.Len(t, res.Diagnostics, 1, out)
	}
}

func TestParseMixedFormatsInOrder(t *testing.T) {
	out := `<tool_call>{"name": "b", "arguments": {}}</tool_call> ara metin <|begin_of_tool_code|>a()<|end_of_tool_code|>`
	frags := Parse(out).Fragments()
	require.Len(t, frags, 2)
	assert.Equal(t, "b", frags[0].Name)
	assert.Equal(t, "a", frags[1].Name)
	assert.Less(t, frags[0].Offset, frags[1].Offset)
}

func TestScannerIsLazyAndResettable(t *testing.T) {
	sc := NewScanner("önce <|begin_of_tool_code|>a()\nb()<|end_of_tool_code|> sonra")

	seg, ok := sc.Next()
	require.True(t, ok)
	assert.Equal(t, SegmentProse, seg.Kind)
	assert.Equal(t, "önce", seg.Text)

	seg, ok = sc.Next()
	require.True(t, ok)
	assert.Equal(t, "a", seg.Fragment.Name)

	sc.Reset()
	count := 0
	for {
		if _, ok := sc.Next(); !ok {
			break
		}
		count++
	}
	assert.Equal(t, 4, count)

	_, ok = sc.Next()
	assert.False(t, ok, "exhausted scanner stays exhausted")
}

func TestParsePlainProse(t *testing.T) {
	res := Parse("Merhaba! Size nasıl yardımcı olabilirim?")
	assert.Empty(t, res.Fragments())
	assert.Empty(t, res.Diagnostics)
	assert.Equal(t, "Merhaba! Size nasıl yardımcı olabilirim?", res.Prose())

	assert.Empty(t, Parse("").Segments)
}
