package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/axiomhq/axiom-go/axiom"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct{ events []axiom.Event }

func (c *captureSink) Send(ev axiom.Event) { c.events = append(c.events, ev) }

func TestInitWritesJSONToStdoutAndFile(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var out bytes.Buffer
	file := filepath.Join(t.TempDir(), "nested", "app.log")
	require.NoError(t, Init(Options{Level: "debug", File: file, MaxSizeMB: 1, Stdout: &out}))

	log.Info().Str("job_id", "j1").Msg("job created")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "job created", line["message"])
	assert.Equal(t, "j1", line["job_id"])
	assert.Equal(t, "pdfsuite", line["service"])

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), "job created")
}

func TestInitFallsBackToInfo(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var out bytes.Buffer
	require.NoError(t, Init(Options{Level: "chatty", Stdout: &out}))
	assert.Equal(t, zerolog.InfoLevel, log.Logger.GetLevel())
	log.Debug().Msg("hidden")
	assert.Zero(t, out.Len())
}

func TestAxiomWriterDropsDebug(t *testing.T) {
	sink := &captureSink{}
	w := &axiomWriter{sink: sink}

	n, err := w.Write([]byte(`{"level":"debug","message":"noise"}`))
	require.NoError(t, err)
	assert.Positive(t, n)
	assert.Empty(t, sink.events)

	_, err = w.Write([]byte(`{"level":"warn","message":"slow store"}`))
	require.NoError(t, err)
	_, err = w.Write([]byte("not json"))
	require.NoError(t, err)

	require.Len(t, sink.events, 2)
	assert.Equal(t, "slow store", sink.events[0]["message"])
	assert.Equal(t, "pdfsuite", sink.events[0]["service"])
	assert.Contains(t, sink.events[0], "_time")
	assert.Equal(t, "not json", sink.events[1]["message"])
}
