package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/marazzai/scoreboard/go/internal/command"
	"github.com/marazzai/scoreboard/go/internal/match"
)

// Config holds NATS relay settings.
type Config struct {
	URL           string
	StateSubject  string
	CmdSubject    string
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultConfig returns the stock relay configuration.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		StateSubject:  "scoreboard.state",
		CmdSubject:    "scoreboard.cmd",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
	}
}

// Publisher mirrors snapshots and one-shot commands onto NATS subjects so
// out-of-process consumers (stream overlays, match loggers) can follow the
// match without holding a WebSocket to the hub. Publish failures are
// logged and swallowed, same policy as persistence: the live path never
// depends on the relay.
type Publisher struct {
	nc     *nats.Conn
	config Config
}

// NewPublisher connects to NATS with self-healing client options.
func NewPublisher(config Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &Publisher{nc: nc, config: config}, nil
}

// PublishState mirrors a snapshot. Registered as a store subscriber, so it
// only hands the message to the client's outbound buffer.
func (p *Publisher) PublishState(s match.State) {
	data, err := json.Marshal(s)
	if err != nil {
		log.Error().Err(err).Msg("marshal state for relay")
		return
	}
	if err := p.nc.Publish(p.config.StateSubject, data); err != nil {
		log.Error().Err(err).Str("subject", p.config.StateSubject).Msg("relay state publish failed")
	}
}

// PublishCommand mirrors a one-shot command.
func (p *Publisher) PublishCommand(cmd command.Command) {
	data, err := json.Marshal(cmd)
	if err != nil {
		log.Error().Err(err).Str("cmd", cmd.Cmd).Msg("marshal command for relay")
		return
	}
	if err := p.nc.Publish(p.config.CmdSubject, data); err != nil {
		log.Error().Err(err).Str("subject", p.config.CmdSubject).Msg("relay command publish failed")
	}
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
