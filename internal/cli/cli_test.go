package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"missioncontrol/internal/account"
	"missioncontrol/internal/chat"
	"missioncontrol/internal/common"
	"missioncontrol/internal/config"
	"missioncontrol/internal/errors"
	"missioncontrol/internal/formatters"
	"missioncontrol/internal/panels"
	"missioncontrol/internal/types"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIIdentity(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want account.Identity
	}{
		{
			name: "local fallback",
			cfg:  config.Config{Mission: config.MissionConfig{DefaultUserEmail: "me@example.com", DefaultUserName: "Me"}},
			want: account.Identity{ID: localIdentity, Email: "me@example.com", Name: "Me"},
		},
		{
			name: "dev identity",
			cfg: config.Config{
				Auth:    config.AuthConfig{DevIdentity: "dev_1", DevEmail: "dev@example.com"},
				Mission: config.MissionConfig{DefaultUserEmail: "me@example.com"},
			},
			want: account.Identity{ID: "dev_1", Email: "dev@example.com"},
		},
		{
			name: "dev identity without email",
			cfg: config.Config{
				Auth:    config.AuthConfig{DevIdentity: "dev_1"},
				Mission: config.MissionConfig{DefaultUserEmail: "me@example.com"},
			},
			want: account.Identity{ID: "dev_1", Email: "me@example.com"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cliIdentity(&tt.cfg))
		})
	}
}

func TestPanelRenderer(t *testing.T) {
	result := &types.OptimizationResult{
		ATS: &types.ATSSection{GapAnalysis: &types.GapAnalysis{
			ATSScoreBefore: types.Float(40),
			ATSScoreAfter:  types.Float(70),
		}},
	}

	render, err := panelRenderer("ATS")
	require.NoError(t, err)
	ats, ok := render("r1", nil, nil, result).(panels.ATSView)
	require.True(t, ok)
	assert.Equal(t, "40", ats.ScoreBefore)

	render, err = panelRenderer("affiliate")
	require.NoError(t, err)
	aff, ok := render("r1", nil, nil, result).(panels.AffiliateView)
	require.True(t, ok)
	assert.True(t, aff.Empty)

	render, err = panelRenderer("ghostwriter")
	require.NoError(t, err)
	_, ok = render("r1", nil, nil, result).(panels.GhostwriterView)
	assert.True(t, ok)

	_, err = panelRenderer("radar")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

type scriptedChatter struct {
	replies []string
	fail    map[string]bool
	seen    []types.ChatRequest
}

func (s *scriptedChatter) Chat(_ context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	s.seen = append(s.seen, req)
	if s.fail[req.Message] {
		return nil, errors.NewNetworkError(errors.ErrCodeBackendUnavailable, "backend is down", nil)
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &types.ChatResponse{SessionID: "s1", Agent: "INTERVIEWER", Message: reply}, nil
}

func TestChatLoop(t *testing.T) {
	chatter := &scriptedChatter{
		replies: []string{"Tell me about a hard bug.", "Good."},
		fail:    map[string]bool{"break": true},
	}
	session := chat.NewSession(chatter, boundResume("r1"), errors.Nop())

	in := strings.NewReader("practice interview\n\nbreak\nanswer\n/exit\nignored\n")
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), session, in, &out, errors.Nop()))

	text := out.String()
	assert.Contains(t, text, "try: ")
	assert.Contains(t, text, "The Interviewer: Tell me about a hard bug.")
	assert.Contains(t, text, chat.ConnectionLost)
	assert.Contains(t, text, "The Interviewer: Good.")
	assert.NotContains(t, text, "ignored")

	require.Len(t, chatter.seen, 3)
	assert.Equal(t, "r1", chatter.seen[0].ResumeID)
	assert.Empty(t, chatter.seen[0].SessionID)
	assert.Equal(t, "s1", chatter.seen[2].SessionID, "the session id from the first reply is reused")
}

func TestChatLoopEndsAtEOF(t *testing.T) {
	session := chat.NewSession(&scriptedChatter{}, nil, errors.Nop())
	var out bytes.Buffer
	require.NoError(t, chatLoop(context.Background(), session, strings.NewReader(""), &out, errors.Nop()))
	assert.Contains(t, out.String(), "Career Companion: ")
}

func TestApplyServeFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "serve"}
	addServeFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "9090", "--tls-mode", "server"}))

	cfg := &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: "8080"}}
	applyServeFlags(cmd, cfg)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host, "unset flags keep the configured value")
	assert.Equal(t, "server", cfg.Server.TLS.Mode)
}

type countingNotifier struct{ calls int }

func (c *countingNotifier) Notify(context.Context, string, *types.SpyglassStats, *types.SpyglassStats) error {
	c.calls++
	return fmt.Errorf("notify %d failed", c.calls)
}

func TestSpyglassWatchNotifiers(t *testing.T) {
	var out bytes.Buffer
	p := &printer{
		panel:     panels.NewSpyglassPanel(),
		output:    common.NewOutputHandlerTo(&out, errors.Nop(), formatters.NewFormatterRegistry()),
		cmdConfig: common.CommandConfig{OutputFormat: "json"},
	}
	counter := &countingNotifier{}
	f := fanout{p, counter}

	first := &types.SpyglassStats{ResumeID: "r1", TotalViews: 1, UniqueViewers: 1}
	err := f.Notify(context.Background(), "r1", nil, first)
	require.Error(t, err, "a failing notifier is reported")
	assert.Equal(t, 1, counter.calls, "every notifier is called")
	assert.Contains(t, out.String(), `"total_views": 1`)

	out.Reset()
	same := &types.SpyglassStats{ResumeID: "r1", TotalViews: 1, UniqueViewers: 1}
	require.NoError(t, p.Notify(context.Background(), "r1", first, same))
	assert.Empty(t, out.String(), "unchanged counts are not printed again")

	more := &types.SpyglassStats{ResumeID: "r1", TotalViews: 2, UniqueViewers: 1}
	require.NoError(t, p.Notify(context.Background(), "r1", same, more))
	assert.NotEmpty(t, out.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"upload", "optimize", "grade", "questions", "post", "courses",
		"spyglass", "chat", "account", "health", "mcp", "version", "serve"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}
