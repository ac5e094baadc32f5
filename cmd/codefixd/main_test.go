package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/codefixd/internal/config"
	"github.com/fyrsmithlabs/codefixd/internal/logging"
	"github.com/fyrsmithlabs/codefixd/internal/metrics"
)

// keywordTEI serves a TEI /embed endpoint whose vectors score "sql" and
// "path" mentions.
func keywordTEI(t *testing.T) *httptest.Server {
	t.Helper()
	embed := func(text string) []float32 {
		lower := strings.ToLower(text)
		v := []float32{0.1, 0, 0}
		if strings.Contains(lower, "sql") {
			v[1] = 1
		}
		if strings.Contains(lower, "path") {
			v[2] = 1
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		n := float32(math.Sqrt(norm))
		for i := range v {
			v[i] /= n
		}
		return v
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Inputs json.RawMessage `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var texts []string
		if err := json.Unmarshal(req.Inputs, &texts); err != nil {
			var one string
			if err := json.Unmarshal(req.Inputs, &one); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			texts = []string{one}
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = embed(text)
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// setupEnv points configuration at temporary directories and a fake TEI
// server.
func setupEnv(t *testing.T, recipes map[string]string) string {
	t.Helper()
	configPath = ""

	dir := t.TempDir()
	recipeDir := filepath.Join(dir, "recipes")
	require.NoError(t, os.MkdirAll(recipeDir, 0o755))
	for name, text := range recipes {
		require.NoError(t, os.WriteFile(filepath.Join(recipeDir, name), []byte(text), 0o644))
	}

	t.Setenv("CODEFIX_EMBEDDINGS_PROVIDER", "tei")
	t.Setenv("CODEFIX_EMBEDDINGS_BASE_URL", keywordTEI(t).URL)
	t.Setenv("CODEFIX_RECIPES_DIR", recipeDir)
	t.Setenv("CODEFIX_LOGS_DIR", filepath.Join(dir, "logs"))
	return dir
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "codefixd by Fyrsmith Labs")
	assert.Contains(t, out, "Version:    "+version)
}

func TestRetrieveCommand(t *testing.T) {
	dir := setupEnv(t, map[string]string{
		"cwe-89-sql.txt":  "Use parameterized SQL queries.\n",
		"cwe-22-path.txt": "Clean the file path and check it stays under the base directory.\n",
	})

	out, err := execute(t, "cur.execute(\"SELECT * FROM users WHERE id=\" + uid)  # sql",
		"retrieve", "--language", "python", "--cwe", "CWE-89", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cwe-89-sql.txt\n\n"), out)
	assert.Contains(t, out, "Use parameterized SQL queries.")

	// Retrieval-only runs still log to the service log.
	_, err = os.Stat(filepath.Join(dir, "logs", serviceLogName))
	assert.NoError(t, err)
}

func TestRetrieveCommand_FromFile(t *testing.T) {
	dir := setupEnv(t, map[string]string{
		"cwe-89-sql.txt":  "Use parameterized SQL queries.\n",
		"cwe-22-path.txt": "Clean the file path.\n",
	})
	snippet := filepath.Join(dir, "handler.go")
	require.NoError(t, os.WriteFile(snippet, []byte("os.Open(filepath.Join(base, userPath))"), 0o644))

	out, err := execute(t, "", "retrieve", "--language", "go", "--cwe", "CWE-22", snippet)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cwe-22-path.txt\n\n"), out)
}

func TestRetrieveCommand_NoRecipes(t *testing.T) {
	setupEnv(t, nil)

	out, err := execute(t, "x", "retrieve", "--language", "go", "--cwe", "CWE-22")
	require.NoError(t, err)
	assert.Equal(t, "no recipe available\n", out)
}

func TestRetrieveCommand_MissingFile(t *testing.T) {
	setupEnv(t, nil)

	_, err := execute(t, "", "retrieve", filepath.Join(t.TempDir(), "missing.py"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestReadSnippet(t *testing.T) {
	got, err := readSnippet(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = readSnippet(strings.NewReader("dash"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "dash", got)
}

func TestLoggingConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Level = "trace"
	cfg.Logs.Dir = "/var/log/codefixd"

	lc, err := loggingConfig(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, logging.TraceLevel, lc.Level)
	assert.True(t, lc.Output.Stdout)
	assert.Equal(t, filepath.Join("/var/log/codefixd", "service.log"), lc.Output.File)

	lc, err = loggingConfig(cfg, false)
	require.NoError(t, err)
	assert.False(t, lc.Output.Stdout, "stdio transports must not log to stdout")

	cfg.Logging.Level = "loud"
	_, err = loggingConfig(cfg, true)
	require.Error(t, err)

	cfg.Logging.Level = "warn"
	cfg.Logging.Stdout = false
	lc, err = loggingConfig(cfg, true)
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, lc.Level)
	assert.False(t, lc.Output.Stdout)
}

func TestNewSink(t *testing.T) {
	cfg := config.Default()
	cfg.Logs.Dir = t.TempDir()

	sink, err := newSink(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	fan, ok := sink.(metrics.Fanout)
	require.True(t, ok)
	assert.Len(t, fan, 2)

	require.NoError(t, sink.Write(context.Background(), metrics.Record{Language: "go", CWE: "CWE-22", ModelUsed: "m"}))
	require.NoError(t, sink.Close())

	_, err = os.Stat(filepath.Join(cfg.Logs.Dir, metrics.CSVFileName))
	assert.NoError(t, err)
}

func TestNewSink_WithNATS(t *testing.T) {
	ns, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	require.True(t, ns.ReadyForConnections(5*time.Second))
	t.Cleanup(ns.Shutdown)

	cfg := config.Default()
	cfg.Logs.Dir = t.TempDir()
	cfg.Metrics.NATSURL = ns.ClientURL()

	sink, err := newSink(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sink.Close() })

	fan, ok := sink.(metrics.Fanout)
	require.True(t, ok)
	require.Len(t, fan, 3)
	_, ok = fan[2].(*metrics.NATSSink)
	assert.True(t, ok)
}

func TestNewSink_WithSQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Logs.Dir = t.TempDir()
	cfg.Metrics.SQLitePath = filepath.Join(cfg.Logs.Dir, "metrics.db")

	sink, err := newSink(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	fan := sink.(metrics.Fanout)
	require.Len(t, fan, 3)
	require.NoError(t, sink.Write(context.Background(), metrics.Record{Language: "go", CWE: "CWE-22", ModelUsed: "m"}))
	require.NoError(t, sink.Close())
}

func TestStatsCommand(t *testing.T) {
	configPath = ""
	dbPath := filepath.Join(t.TempDir(), "metrics.db")
	t.Setenv("CODEFIX_METRICS_SQLITE_PATH", dbPath)

	sink, err := metrics.OpenSQLiteSink(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, sink.Write(ctx, metrics.Record{Language: "python", CWE: "CWE-89", ModelUsed: "m", InputTokens: 100, OutputTokens: 20, LatencyMS: 300}))
	require.NoError(t, sink.Write(ctx, metrics.Record{Language: "java", CWE: "CWE-89", ModelUsed: "m", InputTokens: 50, OutputTokens: 10, LatencyMS: 100}))
	require.NoError(t, sink.Close())

	out, err := execute(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "CWE-89")
	assert.Contains(t, out, "200.0")
}

func TestStatsCommand_NotConfigured(t *testing.T) {
	configPath = ""
	t.Setenv("CODEFIX_METRICS_SQLITE_PATH", "")

	_, err := execute(t, "", "stats")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sqlite_path")
}

func TestAppClose_ReverseOrder(t *testing.T) {
	a := &app{}
	var order []int
	for i := 0; i < 3; i++ {
		a.onClose(func(context.Context) error {
			order = append(order, i)
			if i == 1 {
				return errors.New("close failed")
			}
			return nil
		})
	}

	err := a.close(context.Background())
	require.Error(t, err)
	assert.Equal(t, []int{2, 1, 0}, order)
	assert.NoError(t, a.close(context.Background()), "closers run once")
}
