package stream

import (
	"context"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
)

const (
	// Binance USD-M futures stream endpoints.
	binancePublicURL  = "wss://fstream.binance.com/stream"
	binanceAccountURL = "wss://fstream.binance.com/ws/"
)

// wsConn adapts a gorilla connection to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *wsConn) WriteJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}

func (c *wsConn) Ping() error {
	c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	Dialer *websocket.Dialer
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

// binanceCredentials drives the futures user-stream listen key.
type binanceCredentials struct {
	client *futures.Client
}

func (c *binanceCredentials) Obtain(ctx context.Context) (string, error) {
	return c.client.NewStartUserStreamService().Do(ctx)
}

// Renew keeps the current listen key alive; the exchange does not rotate it.
func (c *binanceCredentials) Renew(ctx context.Context, token string) (string, error) {
	if err := c.client.NewKeepaliveUserStreamService().ListenKey(token).Do(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// NewBinanceManager builds a session manager for the Binance USD-M futures
// public and account streams.
func NewBinanceManager(apiKey, apiSecret string, opts Options) *Manager {
	creds := &binanceCredentials{client: futures.NewClient(apiKey, apiSecret)}
	accountURL := func(token string) string { return binanceAccountURL + token }
	return NewManager(&WebsocketDialer{}, creds, binancePublicURL, accountURL, opts)
}
