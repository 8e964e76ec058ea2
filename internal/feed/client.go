package feed

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/net/websocket"

	"github.com/angeloszaimis/uptime-monitor/internal/window"
)

const DefaultReconnectDelay = 2 * time.Second

type Options struct {
	URL            string
	Origin         string
	EndpointID     int
	ReconnectDelay time.Duration
	WindowSize     int
}

// Client keeps a websocket connection to the feed open and folds incoming
// samples into a rolling window.
type Client struct {
	config     *websocket.Config
	endpointID int
	delay      time.Duration
	window     *window.Window
	state      atomic.Int32
	logger     *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Client, error) {
	config, err := websocket.NewConfig(opts.URL, opts.Origin)
	if err != nil {
		return nil, err
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}

	c := &Client{
		config:     config,
		endpointID: opts.EndpointID,
		delay:      opts.ReconnectDelay,
		window:     window.New(opts.WindowSize),
		logger:     logger.With(slog.String("feed", opts.URL)),
	}
	c.state.Store(int32(StateClosed))

	return c, nil
}

// Run connects and reads samples until ctx is cancelled, reconnecting after
// the configured delay whenever the connection drops. It returns nil once ctx
// is done.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)
		err := c.session(ctx)
		c.setState(StateClosed)

		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn("Feed connection closed, reconnecting",
			slog.String("error", errString(err)),
			slog.Duration("delay", c.delay))

		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) session(ctx context.Context) error {
	conn, err := c.config.DialContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer stop()

	c.setState(StateOpen)
	c.logger.Info("Feed connected")

	for {
		var msg string
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			return err
		}

		v, err := ParseSample(msg)
		if err != nil {
			c.logger.Debug("Ignoring feed message", slog.String("error", err.Error()))
			continue
		}
		c.window.Add(v, time.Now())
	}
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) State() State {
	return State(c.state.Load())
}

// EndpointID is the endpoint the feed reports on.
func (c *Client) EndpointID() int {
	return c.endpointID
}

func (c *Client) Summary() window.Summary {
	return c.window.Summary()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
