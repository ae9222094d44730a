package ami

import (
    "bufio"
    "context"
    "fmt"
    "net"
    "strings"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"

    "github.com/rudilee/OrangeServer/pkg/errors"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

// Client maintains the management connection to Asterisk. Responses are
// correlated with actions strictly by ActionID; events fan out to the
// event channel and registered handlers.
type Client struct {
    config Config

    mu        sync.RWMutex
    conn      net.Conn
    reader    *bufio.Reader
    writer    *bufio.Writer
    connected bool
    loggedIn  bool

    // Event handling
    eventChan     chan Event
    eventHandlers map[string][]EventHandler

    // Action correlation
    pendingMu sync.Mutex
    pending   map[string]chan result

    // Connection management
    shutdown      chan struct{}
    reconnectChan chan struct{}
    closeOnce     sync.Once
    wg            sync.WaitGroup

    totalActions uint64
    totalEvents  uint64
}

type Config struct {
    Host              string
    Port              int
    Username          string
    Secret            string
    ReconnectInterval time.Duration
    ActionTimeout     time.Duration
    ConnectTimeout    time.Duration
    BufferSize        int
}

type EventHandler func(event Event)

type result struct {
    event Event
    err   error
}

func NewClient(config Config) *Client {
    if config.Port == 0 {
        config.Port = 5038
    }
    if config.ReconnectInterval == 0 {
        config.ReconnectInterval = 15 * time.Second
    }
    if config.ActionTimeout == 0 {
        config.ActionTimeout = 10 * time.Second
    }
    if config.ConnectTimeout == 0 {
        config.ConnectTimeout = 10 * time.Second
    }
    if config.BufferSize == 0 {
        config.BufferSize = 1000
    }

    return &Client{
        config:        config,
        eventChan:     make(chan Event, config.BufferSize),
        eventHandlers: make(map[string][]EventHandler),
        pending:       make(map[string]chan result),
        shutdown:      make(chan struct{}),
        reconnectChan: make(chan struct{}, 1),
    }
}

// Connect dials Asterisk, consumes the banner line and logs in. The reader
// and reconnect goroutines are started on first success.
func (c *Client) Connect(ctx context.Context) error {
    c.mu.Lock()

    if c.connected {
        c.mu.Unlock()
        return nil
    }

    addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
    logger.WithField("addr", addr).Info("Connecting to Asterisk AMI")

    dialer := net.Dialer{Timeout: c.config.ConnectTimeout}

    conn, err := dialer.DialContext(ctx, "tcp", addr)
    if err != nil {
        c.mu.Unlock()
        return errors.Wrap(err, errors.ErrAmiDisconnected, "failed to connect to AMI")
    }

    c.conn = conn
    c.reader = bufio.NewReader(conn)
    c.writer = bufio.NewWriter(conn)

    // The first line is the vendor greeting, discarded
    conn.SetReadDeadline(time.Now().Add(5 * time.Second))
    banner, err := c.reader.ReadString('\n')
    if err != nil {
        conn.Close()
        c.mu.Unlock()
        return errors.Wrap(err, errors.ErrAmiDisconnected, "failed to read AMI banner")
    }
    conn.SetReadDeadline(time.Time{})

    logger.WithField("banner", strings.TrimSpace(banner)).Debug("AMI banner received")

    c.connected = true

    c.wg.Add(1)
    go c.readLoop()
    c.mu.Unlock()

    response, err := c.Send(ctx, Action{
        Name: "Login",
        Headers: map[string]string{
            "Username": c.config.Username,
            "Secret":   c.config.Secret,
        },
    })
    if err == nil && response["Response"] != "Success" {
        err = errors.New(errors.ErrAmiAction, response["Message"])
    }

    c.mu.Lock()
    defer c.mu.Unlock()

    if err != nil {
        c.connected = false
        c.conn.Close()
        return errors.Wrap(err, errors.ErrAmiAction, "AMI login failed")
    }

    c.loggedIn = true
    logger.Info("Connected to Asterisk AMI")

    return nil
}

// Run keeps the uplink alive: it connects, then reconnects with the fixed
// backoff whenever the reader loop reports a failure, until ctx is done.
func (c *Client) Run(ctx context.Context) {
    c.wg.Add(1)
    go func() {
        defer c.wg.Done()

        for {
            select {
            case <-ctx.Done():
                return
            case <-c.shutdown:
                return
            case <-c.reconnectChan:
                logger.Info("AMI reconnection triggered")

                c.mu.Lock()
                c.connected = false
                c.loggedIn = false
                if c.conn != nil {
                    c.conn.Close()
                }
                c.mu.Unlock()

                select {
                case <-time.After(c.config.ReconnectInterval):
                case <-ctx.Done():
                    return
                case <-c.shutdown:
                    return
                }

                if err := c.Connect(ctx); err != nil {
                    logger.WithError(err).Error("AMI reconnection failed")
                    select {
                    case c.reconnectChan <- struct{}{}:
                    default:
                    }
                }
            }
        }
    }()
}

func (c *Client) Close() {
    c.closeOnce.Do(func() {
        close(c.shutdown)
    })

    c.mu.Lock()
    c.connected = false
    c.loggedIn = false
    if c.conn != nil {
        c.conn.Close()
    }
    c.mu.Unlock()

    c.failPending(errors.New(errors.ErrAmiDisconnected, "AMI client closed"))

    done := make(chan struct{})
    go func() {
        c.wg.Wait()
        close(done)
    }()

    select {
    case <-done:
        logger.Info("AMI client closed")
    case <-time.After(5 * time.Second):
        logger.Warn("AMI client close timeout")
    }
}

// Send writes an action with a fresh ActionID and blocks until the
// response frame with the matching id arrives, the timeout fires, or the
// link drops.
func (c *Client) Send(ctx context.Context, action Action) (Event, error) {
    c.mu.RLock()
    if !c.connected {
        c.mu.RUnlock()
        return nil, errors.New(errors.ErrAmiDisconnected, "not connected to AMI")
    }
    if action.Name != "Login" && !c.loggedIn {
        c.mu.RUnlock()
        return nil, errors.New(errors.ErrAmiDisconnected, "not logged in to AMI")
    }
    c.mu.RUnlock()

    actionID := uuid.NewString()

    slot := make(chan result, 1)
    c.pendingMu.Lock()
    c.pending[actionID] = slot
    c.pendingMu.Unlock()

    defer func() {
        c.pendingMu.Lock()
        delete(c.pending, actionID)
        c.pendingMu.Unlock()
    }()

    frame := marshalAction(action, actionID)

    c.mu.Lock()
    _, err := c.writer.WriteString(frame)
    if err == nil {
        err = c.writer.Flush()
    }
    c.mu.Unlock()

    if err != nil {
        return nil, errors.Wrap(err, errors.ErrAmiDisconnected, "failed to write AMI action")
    }

    atomic.AddUint64(&c.totalActions, 1)

    timer := time.NewTimer(c.config.ActionTimeout)
    defer timer.Stop()

    select {
    case res := <-slot:
        return res.event, res.err
    case <-timer.C:
        return nil, errors.New(errors.ErrAmiTimeout, "AMI action timed out").
            WithContext("action", action.Name)
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-c.shutdown:
        return nil, errors.New(errors.ErrAmiDisconnected, "AMI client shutting down")
    }
}

// readLoop frames inbound lines and classifies each completed frame:
// Response fulfils a pending slot, Event publishes, anything else is
// discarded with a warning.
func (c *Client) readLoop() {
    defer c.wg.Done()

    for {
        event, err := c.readFrame()
        if err != nil {
            select {
            case <-c.shutdown:
                return
            default:
            }

            if !strings.Contains(err.Error(), "use of closed network connection") {
                logger.WithError(err).Error("AMI read failed")
            }

            c.failPending(errors.New(errors.ErrAmiDisconnected, "AMI connection lost"))

            select {
            case c.reconnectChan <- struct{}{}:
            default:
            }
            return
        }

        atomic.AddUint64(&c.totalEvents, 1)

        switch {
        case event["Response"] != "":
            c.fulfil(event)
        case event["Event"] != "":
            c.publish(event)
        default:
            logger.WithField("headers", fmt.Sprintf("%v", event)).
                Warn("Discarding unclassifiable AMI frame")
        }
    }
}

func (c *Client) readFrame() (Event, error) {
    event := make(Event)

    for {
        line, err := c.reader.ReadString('\n')
        if err != nil {
            return nil, err
        }

        line = strings.TrimRight(line, "\r\n")

        // Blank line terminates the frame
        if line == "" {
            if len(event) > 0 {
                return event, nil
            }
            continue
        }

        if key, value, ok := parseLine(line); ok {
            event[key] = value
        }
    }
}

func (c *Client) fulfil(event Event) {
    actionID := event["ActionID"]

    c.pendingMu.Lock()
    slot, exists := c.pending[actionID]
    if exists {
        delete(c.pending, actionID)
    }
    c.pendingMu.Unlock()

    if !exists {
        logger.WithField("action_id", actionID).Warn("AMI response without pending action")
        return
    }

    slot <- result{event: event}
}

func (c *Client) failPending(err error) {
    c.pendingMu.Lock()
    defer c.pendingMu.Unlock()

    for actionID, slot := range c.pending {
        select {
        case slot <- result{err: err}:
        default:
        }
        delete(c.pending, actionID)
    }
}

func (c *Client) publish(event Event) {
    select {
    case c.eventChan <- event:
    default:
        logger.Warn("AMI event channel full, dropping event")
    }

    c.mu.RLock()
    handlers := c.eventHandlers[event["Event"]]
    c.mu.RUnlock()

    for _, handler := range handlers {
        go func(h EventHandler) {
            defer func() {
                if r := recover(); r != nil {
                    logger.WithField("panic", r).Error("AMI event handler panic")
                }
            }()
            h(event)
        }(handler)
    }
}

func (c *Client) IsConnected() bool {
    c.mu.RLock()
    defer c.mu.RUnlock()
    return c.connected
}

func (c *Client) RegisterEventHandler(eventType string, handler EventHandler) {
    c.mu.Lock()
    defer c.mu.Unlock()
    c.eventHandlers[eventType] = append(c.eventHandlers[eventType], handler)
}

// EventChannel returns the raw event stream
func (c *Client) EventChannel() <-chan Event {
    return c.eventChan
}

// Ping is used by the health readiness check
func (c *Client) Ping(ctx context.Context) error {
    _, err := c.Send(ctx, Action{Name: "Ping"})
    return err
}
