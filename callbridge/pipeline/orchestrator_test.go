package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/callbridge/callbridge/backend"
	"github.com/ZanzyTHEbar/callbridge/callbridge/inference"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func toolCode(calls ...string) string {
	return "<|begin_of_tool_code|>\n" + strings.Join(calls, "\n") + "\n<|end_of_tool_code|>"
}

type OrchestratorTestSuite struct {
	suite.Suite
	store   *memStore
	inferer *stubInferer
	orch    *Orchestrator
}

func TestOrchestratorSuite(t *testing.T) {
	suite.Run(t, new(OrchestratorTestSuite))
}

func (s *OrchestratorTestSuite) SetupTest() {
	s.store = newMemStore()
	s.inferer = &stubInferer{}
	s.orch = s.newOrchestrator(NewGuardrails())
}

func (s *OrchestratorTestSuite) newOrchestrator(guard *Guardrails) *Orchestrator {
	reg, err := NewRegistry(DefaultEntries(), backend.NewService(zerolog.Nop()))
	s.Require().NoError(err)
	return NewOrchestrator(
		reg, s.inferer, s.store,
		NewPromptBuilder("sys", 4, 0),
		guard, DefaultConfidencePolicy(), DefaultPolicy(),
		nil, nil, zerolog.Nop(),
	)
}

func (s *OrchestratorTestSuite) turn(msg string) *Result {
	res, err := s.orch.HandleTurn(context.Background(), TurnRequest{Message: msg, UserID: "1234", SessionID: "SESSION_test"})
	s.Require().NoError(err)
	return res
}

func (s *OrchestratorTestSuite) TestBillHistory() {
	s.inferer.replies = []string{toolCode(`print(get_bill_history(user_id="1234", limit=6))`)}

	res := s.turn("Geçmiş faturalarımı görmek istiyorum")

	s.Equal(StateCompleted, res.State)
	s.Equal(FailureNone, res.FailureKind)
	s.Require().Len(res.ToolCalls, 1)
	call := res.ToolCalls[0]
	s.Equal(StatusSucceeded, call.Status)
	s.Equal(map[string]any{"user_id": "1234", "limit": int64(6)}, call.Arguments)
	history, ok := call.Result.(backend.BillHistory)
	s.Require().True(ok)
	s.Len(history.Bills, 6)
	s.Equal("Geçmiş faturalarınızı inceledim.", res.ReplyText)
	s.InDelta(0.95, res.Confidence, 1e-9)

	turns := s.store.turns("SESSION_test")
	s.Require().Len(turns, 1)
	s.Equal("Geçmiş faturalarımı görmek istiyorum", turns[0].UserMessage)
	s.Equal(res.ReplyText, turns[0].AssistantMessage)
	s.Require().Len(turns[0].ToolCalls, 1)
	s.Equal("succeeded", turns[0].ToolCalls[0].Status)
	s.NotEmpty(turns[0].ID)
}

func (s *OrchestratorTestSuite) TestUnknownTool() {
	s.inferer.replies = []string{toolCode(`print(get_past_bills(user_id="1234"))`)}

	res := s.turn("faturalarım")

	s.Equal(StateCompleted, res.State)
	s.Require().Len(res.ToolCalls, 1)
	s.Equal(StatusFailed, res.ToolCalls[0].Status)
	s.Equal(KindUnknownTool, res.ToolCalls[0].Error.Kind)
	s.True(strings.HasPrefix(res.ReplyText, apologyReply))
	s.Contains(res.ReplyText, "get_past_bills işlemi tamamlanamadı")
	s.InDelta(0.6, res.Confidence, 1e-9)
}

func (s *OrchestratorTestSuite) TestPartialFailure() {
	s.inferer.replies = []string{toolCode(
		`print(get_current_bill())`,
		`print(get_remaining_quotas(user_id="1234"))`,
	)}

	res := s.turn("faturam ve kalan kotam")

	s.Equal(StateCompleted, res.State)
	s.Require().Len(res.ToolCalls, 2)
	s.Equal(StatusFailed, res.ToolCalls[0].Status)
	s.Equal(KindMissingParameter, res.ToolCalls[0].Error.Kind)
	s.Equal("user_id", res.ToolCalls[0].Error.Param)
	s.Equal(StatusSucceeded, res.ToolCalls[1].Status)
	s.Contains(res.ReplyText, "Kalan kullanım haklarınızı kontrol ettim.")
	s.Contains(res.ReplyText, "get_current_bill işlemi tamamlanamadı")
	s.NotContains(res.ReplyText, apologyReply)
	s.InDelta(0.775, res.Confidence, 1e-9)
}

func (s *OrchestratorTestSuite) TestRetryLowersConfidence() {
	s.inferer.replies = []string{toolCode(`print(get_current_bill(user_id="1234"))`)}
	clean := s.turn("faturam")

	s.inferer.attempts = 2
	retried := s.turn("faturam")

	s.Equal(StateCompleted, retried.State)
	s.Equal(2, retried.Attempts)
	s.Less(retried.Confidence, clean.Confidence)
}

func (s *OrchestratorTestSuite) TestInferenceUnavailable() {
	s.inferer.attempts = 3
	s.inferer.err = fmt.Errorf("%w: stub after 3 attempt(s)", inference.ErrInferenceUnavailable)

	res := s.turn("faturam")

	s.Equal(StateFailed, res.State)
	s.Equal(FailureInferenceUnavailable, res.FailureKind)
	s.Equal(apologyReply, res.ReplyText)
	s.Empty(res.ToolCalls)
	s.Equal(3, res.Attempts)
	s.InDelta(DefaultConfidencePolicy().FailureScore, res.Confidence, 1e-9)
	s.Empty(s.store.turns("SESSION_test"))
}

func (s *OrchestratorTestSuite) TestParseDiagnosticsSurface() {
	s.inferer.replies = []string{"Bakıyorum. " + toolCode(`get_current_bill(1234)`)}

	res := s.turn("faturam")

	s.Equal(StateCompleted, res.State)
	s.Empty(res.ToolCalls)
	s.Require().Len(res.Diagnostics, 1)
	s.Equal(DiagParse, res.Diagnostics[0].Kind)
	s.Equal("Bakıyorum.", res.ReplyText)
	s.InDelta(0.9, res.Confidence, 1e-9)
}

func (s *OrchestratorTestSuite) TestProseOnly() {
	s.inferer.replies = []string{"Merhaba! Size nasıl yardımcı olabilirim?"}

	res := s.turn("selam")

	s.Equal(StateCompleted, res.State)
	s.Empty(res.ToolCalls)
	s.Equal("Merhaba! Size nasıl yardımcı olabilirim?", res.ReplyText)
}

func (s *OrchestratorTestSuite) TestAllowlist() {
	s.orch = s.newOrchestrator(NewGuardrails("get_current_bill"))
	s.inferer.replies = []string{toolCode(`print(get_bill_history(user_id="1234"))`)}

	res := s.turn("geçmiş faturalar")

	s.Require().Len(res.ToolCalls, 1)
	s.Equal(KindToolNotAllowed, res.ToolCalls[0].Error.Kind)
}

func (s *OrchestratorTestSuite) TestBackendError() {
	s.inferer.replies = []string{toolCode(`print(get_current_bill(user_id="12"))`)}

	res := s.turn("faturam")

	s.Require().Len(res.ToolCalls, 1)
	s.Equal(StatusFailed, res.ToolCalls[0].Status)
	s.Equal(KindBackendExecutionError, res.ToolCalls[0].Error.Kind)
	s.Contains(res.ToolCalls[0].Error.Message, backend.ErrInvalidUser.Error())
}

func (s *OrchestratorTestSuite) TestSessionHistoryReachesPrompt() {
	s.inferer.replies = []string{"Merhaba!"}
	s.turn("ilk mesaj")
	s.turn("ikinci mesaj")

	p := s.inferer.lastPrompt()
	s.Require().Len(p.Messages, 3)
	s.Equal("ilk mesaj", p.Messages[0].Content)
	s.Equal("Merhaba!", p.Messages[1].Content)
	s.Equal("1234", p.Meta["user_id"])
	s.Equal("SESSION_test", p.Meta["session_id"])
	s.Contains(p.System, "get_bill_history")
}

func (s *OrchestratorTestSuite) TestAppendFailure() {
	s.store.appendErr = errors.New("disk full")
	s.inferer.replies = []string{"Merhaba!"}

	res := s.turn("selam")

	s.Equal(StateFailed, res.State)
	s.Equal(FailureSession, res.FailureKind)
}

func (s *OrchestratorTestSuite) TestInvalidRequests() {
	ctx := context.Background()
	for _, req := range []TurnRequest{
		{Message: "   ", UserID: "1234"},
		{Message: strings.Repeat("a", 1001), UserID: "1234"},
		{Message: "selam", UserID: " "},
	} {
		res, err := s.orch.HandleTurn(ctx, req)
		s.ErrorIs(err, ErrInvalidRequest)
		s.Nil(res)
	}

	// length is counted in characters, not bytes
	s.inferer.replies = []string{"tamam"}
	_, err := s.orch.HandleTurn(ctx, TurnRequest{Message: strings.Repeat("ş", 1000), UserID: "1234"})
	s.NoError(err)
}

func (s *OrchestratorTestSuite) TestGeneratesSessionID() {
	s.inferer.replies = []string{"tamam"}
	res, err := s.orch.HandleTurn(context.Background(), TurnRequest{Message: "selam", UserID: "1234"})
	s.Require().NoError(err)
	s.Regexp(`^SESSION_[0-9a-f]{8}$`, res.SessionID)
}

func (s *OrchestratorTestSuite) TestSameSessionTurnsAreSerialized() {
	s.inferer.replies = []string{"tamam"}

	const n = 8
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.orch.HandleTurn(context.Background(), TurnRequest{
				Message:   fmt.Sprintf("mesaj %d", i),
				UserID:    "1234",
				SessionID: "SESSION_shared",
			})
			s.NoError(err)
		}()
	}
	wg.Wait()

	s.Len(s.store.turns("SESSION_shared"), n)
	s.Equal(int32(1), s.inferer.peak.Load())
}

// customOrchestrator wires a registry over arbitrary backend funcs.
func customOrchestrator(t *testing.T, inferer Inferer, store ports.SessionStore, policy Policy, b funcBackend, entries ...ToolEntry) *Orchestrator {
	t.Helper()
	reg, err := NewRegistry(entries, b)
	require.NoError(t, err)
	return NewOrchestrator(reg, inferer, store, NewPromptBuilder("", 0, 0), nil,
		DefaultConfidencePolicy(), policy, nil, nil, zerolog.Nop())
}

func TestCancellationStopsRemainingCalls(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var afterRan bool

	b := funcBackend{
		"slow": func(ctx context.Context, _ map[string]any) (any, error) {
			close(started)
			<-release
			return "done", ctx.Err()
		},
		"after": func(context.Context, map[string]any) (any, error) {
			afterRan = true
			return nil, nil
		},
	}
	store := newMemStore()
	inferer := &stubInferer{replies: []string{toolCode("slow()", "after()")}}
	orch := customOrchestrator(t, inferer, store, DefaultPolicy(), b,
		ToolEntry{Name: "slow", Binding: "slow"},
		ToolEntry{Name: "after", Binding: "after"},
	)

	ctx, cancel := context.WithCancel(context.Background())
	type out struct {
		res *Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := orch.HandleTurn(ctx, TurnRequest{Message: "x", UserID: "1234", SessionID: "SESSION_c"})
		done <- out{res, err}
	}()

	<-started
	cancel()
	close(release)
	got := <-done

	require.ErrorIs(t, got.err, ErrTurnCancelled)
	assert.ErrorIs(t, got.err, context.Canceled)
	require.NotNil(t, got.res)
	assert.Equal(t, StateFailed, got.res.State)
	assert.Equal(t, FailureCancelled, got.res.FailureKind)
	require.Len(t, got.res.ToolCalls, 2)
	assert.Equal(t, StatusSucceeded, got.res.ToolCalls[0].Status, "in-flight call is not interrupted")
	assert.Equal(t, StatusValidated, got.res.ToolCalls[1].Status)
	assert.False(t, afterRan)
	assert.Empty(t, store.turns("SESSION_c"))
}

func TestToolTimeoutAndPanic(t *testing.T) {
	b := funcBackend{
		"hang": func(context.Context, map[string]any) (any, error) {
			time.Sleep(time.Second)
			return nil, nil
		},
		"boom": func(context.Context, map[string]any) (any, error) {
			panic("backend exploded")
		},
		"fine": echo,
	}
	inferer := &stubInferer{replies: []string{toolCode("hang()", "boom()", `fine(x="1")`)}}
	policy := Policy{ToolTimeout: 20 * time.Millisecond}
	orch := customOrchestrator(t, inferer, newMemStore(), policy, b,
		ToolEntry{Name: "hang", Binding: "hang"},
		ToolEntry{Name: "boom", Binding: "boom"},
		ToolEntry{Name: "fine", Binding: "fine", Params: []ParamSpec{{Name: "x", Type: TypeString}}},
	)

	res, err := orch.HandleTurn(context.Background(), TurnRequest{Message: "x", UserID: "1234"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, res.State)
	require.Len(t, res.ToolCalls, 3)

	assert.Equal(t, KindBackendExecutionError, res.ToolCalls[0].Error.Kind)
	assert.Contains(t, res.ToolCalls[0].Error.Message, "timed out")
	assert.Equal(t, KindBackendExecutionError, res.ToolCalls[1].Error.Kind)
	assert.Contains(t, res.ToolCalls[1].Error.Message, "backend exploded")
	assert.Equal(t, StatusSucceeded, res.ToolCalls[2].Status)
	assert.Equal(t, map[string]any{"x": "1"}, res.ToolCalls[2].Result)
}
