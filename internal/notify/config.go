package notify

import (
	"io"

	"github.com/tOgg1/inboxsync/internal/config"
)

// FromConfig builds the configured sinks. The log sink is always present.
// The returned closer releases any network connection.
func FromConfig(cfg config.NotifyConfig, bell io.Writer) ([]Sink, func(), error) {
	sinks := []Sink{NewLogSink()}
	closer := func() {}

	if cfg.Bell && bell != nil {
		sinks = append(sinks, NewBellSink(bell))
	}
	if cfg.NATSURL != "" {
		sink, err := DialNATS(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return nil, closer, err
		}
		sinks = append(sinks, sink)
		closer = sink.Close
	}
	return sinks, closer, nil
}
