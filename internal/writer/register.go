package writer

import (
	"os"

	"FlowChains/internal/config"
	"FlowChains/internal/factory"
	"FlowChains/internal/logging"
	"FlowChains/internal/model"

	"github.com/pkg/errors"
)

func init() {
	factory.RegisterWriter("text", func(_ *config.Config, wc config.WriterConfig, _ logging.Logger) (model.Writer, error) {
		if wc.Text.Output == "" || wc.Text.Output == "stdout" {
			return NewTextWriter(os.Stdout, wc.Text.PayloadPreview), nil
		}
		f, err := os.Create(wc.Text.Output)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create text output")
		}
		return NewTextWriter(f, wc.Text.PayloadPreview), nil
	})
	factory.RegisterWriter("file", func(_ *config.Config, wc config.WriterConfig, _ logging.Logger) (model.Writer, error) {
		return NewFileWriter(wc.File.Path)
	})
	factory.RegisterWriter("nats", func(cfg *config.Config, wc config.WriterConfig, _ logging.Logger) (model.Writer, error) {
		return NewNATSWriter(cfg.NATS.URL, wc.NATS.Subject)
	})
	factory.RegisterWriter("clickhouse", func(_ *config.Config, wc config.WriterConfig, logger logging.Logger) (model.Writer, error) {
		return NewClickHouseWriter(wc.ClickHouse, logger)
	})
}
