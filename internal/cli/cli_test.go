package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "finchat/api/v1"
	"finchat/internal/compaction"
	"finchat/internal/config"
	"finchat/internal/server"
)

// isolate points configuration and data at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	t.Setenv("FINCHAT_LOG_LEVEL", "error")
	t.Setenv("FINCHAT_STORAGE_PATH", filepath.Join(home, "finchat.db"))
	t.Setenv("FINCHAT_SUMMARIZER_KIND", "truncate")
	return home
}

func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestVersionCmd(t *testing.T) {
	out, _, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "finchat dev")

	out, _, err = execute(t, "", "version", "--json")
	require.NoError(t, err)
	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestDecodeTranscript(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []compaction.Message
		wantErr bool
	}{
		{
			name:  "list",
			input: "- role: user\n  text: hi\n- role: assistant\n  text: hello\n",
			want: []compaction.Message{
				{Role: compaction.RoleUser, Text: "hi"},
				{Role: compaction.RoleAssistant, Text: "hello"},
			},
		},
		{
			name:  "mapping",
			input: "messages:\n  - role: user\n    text: what is my balance\n",
			want:  []compaction.Message{{Role: compaction.RoleUser, Text: "what is my balance"}},
		},
		{name: "empty", input: ""},
		{name: "scalar", input: "just text\n", wantErr: true},
		{name: "bad role", input: "- role: system\n  text: x\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeTranscript(strings.NewReader(tt.input))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func transcriptYAML(cycles int) string {
	var sb strings.Builder
	sb.WriteString("messages:\n")
	for i := range cycles {
		sb.WriteString("  - role: user\n    text: question " + strings.Repeat("x", 40) + " " + string(rune('a'+i)) + "\n")
		sb.WriteString("  - role: assistant\n    text: answer " + strings.Repeat("y", 40) + " " + string(rune('a'+i)) + "\n")
	}
	return sb.String()
}

func TestCompactCmd(t *testing.T) {
	isolate(t)
	path := writeFile(t, "chat.yaml", transcriptYAML(8))

	out, errOut, err := execute(t, "", "compact", "--file", path, "--stats")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, compaction.CompressedHistoryHeader))
	assert.Contains(t, out, compaction.RecentConversationHeader)
	assert.Contains(t, out, "answer "+strings.Repeat("y", 40)+" h")
	assert.Contains(t, errOut, "STAT")
	assert.Contains(t, errOut, "fallback:disabled")

	out, _, err = execute(t, "", "compact", "--file", path, "--json", "--budget", "40")
	require.NoError(t, err)
	var result compaction.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 8, result.Stats.TotalCycles)
	assert.Equal(t, 1, result.Stats.LayerCount)
	assert.Positive(t, result.Stats.MergeCount)
}

func TestCompactCmd_Stdin(t *testing.T) {
	isolate(t)

	out, errOut, err := execute(t, "- role: user\n  text: hi\n- role: assistant\n  text: hello\n", "compact", "-f", "-")
	require.NoError(t, err)
	assert.Equal(t, compaction.RecentConversationHeader+"\nUser: hi\nAssistant: hello\n", out)
	assert.Empty(t, errOut)
}

func TestCompactCmd_Errors(t *testing.T) {
	isolate(t)

	_, _, err := execute(t, "", "compact")
	assert.Error(t, err)

	_, _, err = execute(t, "", "compact", "--file", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := writeFile(t, "chat.yaml", transcriptYAML(2))
	_, _, err = execute(t, "", "compact", "--file", path, "--summarizer", "magic")
	assert.Error(t, err)
}

func TestConfigCmd(t *testing.T) {
	home := isolate(t)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-secret-1234")

	out, _, err := execute(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml"), strings.TrimSpace(out))

	out, _, err = execute(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "max_token_budget: 4000")
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "sk-ant-secret")

	_, _, err = execute(t, "", "config", "init")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, "config.yaml"))

	_, _, err = execute(t, "", "config", "init")
	assert.Error(t, err)
	_, _, err = execute(t, "", "config", "init", "--force")
	assert.NoError(t, err)
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Storage.Path = filepath.Join(t.TempDir(), "server.db")
	cfg.Compaction.VerbatimTailSize = 1
	cfg.Compaction.LayerGroupSize = 1

	srv, err := server.New(server.Options{Config: cfg, Logger: zerolog.Nop(), Version: "test"})
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(context.Background()) })
	require.Eventually(t, srv.IsReady, 2*time.Second, 10*time.Millisecond)
	return "http://" + srv.Addr()
}

func TestSessionCmds(t *testing.T) {
	isolate(t)
	url := startServer(t)

	out, _, err := execute(t, "", "session", "create", "--url", url, "--id", "march", "--title", "March budget")
	require.NoError(t, err)
	assert.Equal(t, "march", strings.TrimSpace(out))

	_, _, err = execute(t, "", "session", "create", "--url", url, "--id", "march")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONFLICT")

	_, _, err = execute(t, "", "session", "append", "--url", url, "march", "How much on rent?")
	require.NoError(t, err)
	_, _, err = execute(t, "", "session", "append", "--url", url, "--role", "assistant", "march")
	require.Error(t, err, "empty stdin is an empty turn")
	_, _, err = execute(t, "950 EUR\n", "session", "append", "--url", url, "-r", "assistant", "march")
	require.NoError(t, err)
	_, _, err = execute(t, "", "session", "append", "--url", url, "march", "And groceries?")
	require.NoError(t, err)
	_, _, err = execute(t, "", "session", "append", "--url", url, "-r", "assistant", "march", "412 EUR")
	require.NoError(t, err)

	out, _, err = execute(t, "", "session", "list", "--url", url)
	require.NoError(t, err)
	assert.Contains(t, out, "March budget")

	out, _, err = execute(t, "", "session", "messages", "--url", url, "march", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "assistant: 412 EUR")
	assert.NotContains(t, out, "rent")

	out, errOut, err := execute(t, "", "session", "context", "--url", url, "march")
	require.NoError(t, err)
	assert.Contains(t, out, "[Cycles 1-1 | depth 1")
	assert.Contains(t, out, "Assistant: 412 EUR")
	assert.Contains(t, errOut, "2 cycles")

	out, _, err = execute(t, "", "session", "context", "--url", url, "march", "--cached", "--json")
	require.NoError(t, err)
	var ctxResp v1.ContextResponse
	require.NoError(t, json.Unmarshal([]byte(out), &ctxResp))
	assert.Equal(t, 4, ctxResp.MessageCount)

	_, _, err = execute(t, "", "session", "delete", "--url", url, "march")
	require.NoError(t, err)
	_, _, err = execute(t, "", "session", "context", "--url", url, "march")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestSessionCmd_ServerDown(t *testing.T) {
	isolate(t)
	_, _, err := execute(t, "", "session", "list", "--url", "http://127.0.0.1:1", "--timeout", "1s")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finchat serve")
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "****wxyz", maskSecret("abcdefghijklmnopqrstuvwxyz"))
}
