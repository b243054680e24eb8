package factory

import (
	"context"
	"testing"

	"FlowChains/internal/config"
	core "FlowChains/internal/core/model"
	"FlowChains/internal/logging"
	"FlowChains/internal/model"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubWriter struct{ closed bool }

func (s *stubWriter) Write(context.Context, *core.FlowRecord) error { return nil }
func (s *stubWriter) Close() error                                  { s.closed = true; return nil }

func TestCreate(t *testing.T) {
	var made []*stubWriter
	RegisterWriter("stub-ok", func(*config.Config, config.WriterConfig, logging.Logger) (model.Writer, error) {
		w := &stubWriter{}
		made = append(made, w)
		return w, nil
	})
	RegisterWriter("stub-broken", func(*config.Config, config.WriterConfig, logging.Logger) (model.Writer, error) {
		return nil, errors.New("boom")
	})
	assert.Subset(t, Registered(), []string{"stub-ok", "stub-broken"})

	cfg := config.Default()
	cfg.Writers = []config.WriterConfig{{Type: "stub-ok"}, {Type: "stub-ok"}}
	writers, err := Create(cfg, logging.NewTestLogger(t))
	require.NoError(t, err)
	assert.Len(t, writers, 2)

	made = nil
	cfg.Writers = []config.WriterConfig{{Type: "stub-ok"}, {Type: "stub-broken"}}
	_, err = Create(cfg, logging.NewTestLogger(t))
	require.Error(t, err)
	require.Len(t, made, 1)
	assert.True(t, made[0].closed)

	cfg.Writers = []config.WriterConfig{{Type: "nope"}}
	_, err = Create(cfg, logging.NewTestLogger(t))
	assert.Error(t, err)

	assert.Panics(t, func() { RegisterWriter("stub-ok", nil) })
}
