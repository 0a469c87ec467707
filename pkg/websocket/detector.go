package websocketPkg

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotConfigured = errors.New("DETECTOR_WS_URL not configured")
	ErrNotConnected  = errors.New("not connected to detector service")
)

// Box is one raw detector output in pixel coordinates of the submitted image.
type Box struct {
	Class      int        `json:"cls"`
	Confidence float64    `json:"conf"`
	XYXY       [4]float64 `json:"xyxy"`
}

type IDetector interface {
	Run(ctx context.Context, images [][]byte) ([][]Box, error)
	LabelFor(class int) string
	IsConnected() bool
	Reconnect() error
	CloseConnections()
}

type inferenceRequest struct {
	Images []string `json:"images"`
}

type inferenceResponse struct {
	Names   map[int]string `json:"names"`
	Results [][]Box        `json:"results"`
	Error   string         `json:"error,omitempty"`
}

type detectorClient struct {
	url          string
	conn         *websocket.Conn
	names        map[int]string
	mu           sync.Mutex
	reqMu        sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration
	log          *logrus.Logger
}

func NewDetectorClient(log *logrus.Logger) (IDetector, error) {
	url := os.Getenv("DETECTOR_WS_URL")
	if url == "" {
		return nil, ErrNotConfigured
	}

	client := newClient(url, log)
	go client.connectInBackground()

	return client, nil
}

func newClient(url string, log *logrus.Logger) *detectorClient {
	return &detectorClient{
		url:          url,
		names:        map[int]string{},
		pingInterval: 30 * time.Second,
		readTimeout:  2 * time.Minute,
		writeTimeout: 10 * time.Second,
		log:          log,
	}
}

func (c *detectorClient) connectInBackground() {
	if err := c.Reconnect(); err != nil {
		c.log.WithError(err).Warn("Initial connection to detector failed, will retry on demand")
		return
	}
	c.log.WithField("url", c.url).Info("Connected to detector service")
}

func (c *detectorClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *detectorClient) Reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}
	conn.SetReadLimit(64 << 20)

	conn.SetPingHandler(func(appData string) error {
		if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout)); err != nil {
			c.log.WithError(err).Debug("Error sending pong")
		}
		return nil
	})

	c.conn = conn
	go c.keepAlive(conn)

	return nil
}

func (c *detectorClient) CloseConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *detectorClient) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}

		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.WithError(err).Warn("Ping failed for detector, marking connection as dead")
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *detectorClient) getConnection() (*websocket.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}

func (c *detectorClient) dropConnection(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == conn {
		c.conn = nil
	}
	conn.Close()
}

// Run submits the whole batch as one request and returns one box list per
// input image, in input order. Requests on a connection are serialized.
func (c *detectorClient) Run(ctx context.Context, images [][]byte) ([][]Box, error) {
	if len(images) == 0 {
		return [][]Box{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	conn, err := c.getConnection()
	if err != nil {
		if err := c.Reconnect(); err != nil {
			return nil, fmt.Errorf("cannot connect to detector service: %w", err)
		}
		if conn, err = c.getConnection(); err != nil {
			return nil, err
		}
	}

	payload := inferenceRequest{Images: make([]string, len(images))}
	for i, img := range images {
		payload.Images[i] = base64.StdEncoding.EncodeToString(img)
	}
	body, err := jsoniter.Marshal(payload)
	if err != nil {
		return nil, err
	}

	// The read deadline is set before the cancel hook so a cancellation
	// is never overwritten by it.
	readDeadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(readDeadline) {
		readDeadline = d
	}
	_ = conn.SetReadDeadline(readDeadline)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_ = conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	c.log.WithField("images", len(images)).Debug("Sending batch to detector")
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		c.dropConnection(conn)
		return nil, fmt.Errorf("error sending batch: %w", err)
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		c.dropConnection(conn)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("error reading detector response: %w", err)
	}

	_ = conn.SetReadDeadline(time.Time{})
	_ = conn.SetWriteDeadline(time.Time{})

	var resp inferenceResponse
	if err := jsoniter.Unmarshal(message, &resp); err != nil {
		return nil, fmt.Errorf("error unmarshaling detector response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("detector error: %s", resp.Error)
	}

	if len(resp.Names) > 0 {
		c.mu.Lock()
		for k, v := range resp.Names {
			c.names[k] = v
		}
		c.mu.Unlock()
	}

	return resp.Results, nil
}

// LabelFor maps a class index to the name the model reported for it.
func (c *detectorClient) LabelFor(class int) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if name, ok := c.names[class]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("class_%d", class)
}
