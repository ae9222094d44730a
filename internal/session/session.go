package session

import (
    "context"
    "net"
    "time"

    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/internal/store"
    "github.com/rudilee/OrangeServer/internal/worker"
    "github.com/rudilee/OrangeServer/internal/xmlstream"
    "github.com/rudilee/OrangeServer/pkg/errors"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

type State int

const (
    StatePreAuth State = iota
    StateAuthenticated
    StateClosing
)

// Events is the subscriber surface for everything a session publishes.
// All callbacks run on the session's worker; implementations must reach
// other sessions through their own Submit.
type Events interface {
    // UserLoggedIn may veto the login (duplicate username); on error the
    // session force-logs-out with the error message as the reason.
    UserLoggedIn(s *Session) error
    UserLoggedOut(s *Session)
    PhoneStatusChanged(s *Session)
    AskDialAuthorization(s *Session, destination, customerID, campaign string) (string, error)
    SpyAgentPhone(s *Session, agentUsername string) error
    ChangeAgentStatus(s *Session, status models.AgentStatus, outbound bool, extension string) error
    SocketClosed(s *Session, reason error)
}

type Config struct {
    ServerName           string
    HeartbeatTimeout     time.Duration
    SingleQuoteHandshake bool
}

// Session owns one accepted desktop socket. Its state is only ever
// touched on its pinned worker.
type Session struct {
    cfg    Config
    conn   net.Conn
    reader *xmlstream.Reader
    writer *xmlstream.Writer
    worker *worker.Worker
    events Events
    store  store.Store
    log    *logger.Logger

    address string
    state   State

    agent      *models.Agent
    skills     []models.Skill
    groups     []string
    extension  string
    extenMapID int64

    status    models.AgentStatus
    phone     models.Phone
    handle    int
    abandoned int

    sessionLogID int64
    statusLogID  int64

    heartbeat *time.Timer
}

func New(conn net.Conn, w *worker.Worker, events Events, st store.Store, cfg Config) *Session {
    if cfg.HeartbeatTimeout == 0 {
        cfg.HeartbeatTimeout = 20 * time.Second
    }
    if cfg.ServerName == "" {
        cfg.ServerName = "CTI Server v1.0"
    }

    address := conn.RemoteAddr().String()
    if host, _, err := net.SplitHostPort(address); err == nil {
        address = host
    }

    return &Session{
        cfg:     cfg,
        conn:    conn,
        reader:  xmlstream.NewReader(conn),
        writer:  xmlstream.NewWriter(conn, cfg.SingleQuoteHandshake),
        worker:  w,
        events:  events,
        store:   st,
        log:     logger.WithField("client", address),
        address: address,
    }
}

// Start binds the socket: handshake, heartbeat watchdog, reader goroutine
func (s *Session) Start() {
    s.worker.Submit(func() {
        if err := s.sendHandshake(); err != nil {
            s.log.WithError(err).Warn("Handshake write failed")
            s.close(errors.Wrap(err, errors.ErrPeerDisconnect, "handshake failed"))
            return
        }

        s.heartbeat = time.AfterFunc(s.cfg.HeartbeatTimeout, func() {
            s.worker.Submit(s.onHeartbeatExpired)
        })

        go s.readLoop()
    })
}

// Submit schedules work on this session's worker; the only safe way in
// from another session's handler.
func (s *Session) Submit(task func()) {
    s.worker.Submit(task)
}

// Accessors below are safe on the owning worker only

func (s *Session) Address() string             { return s.address }
func (s *Session) State() State                { return s.state }
func (s *Session) Username() string            { return s.agent.Username }
func (s *Session) Fullname() string            { return s.agent.Fullname }
func (s *Session) Level() models.Level         { return s.agent.Level }
func (s *Session) AgentID() int64              { return s.agent.ID }
func (s *Session) Status() models.AgentStatus  { return s.status }
func (s *Session) Phone() models.Phone         { return s.phone }
func (s *Session) Groups() []string            { return s.groups }
func (s *Session) Extension() string           { return s.extension }
func (s *Session) Handle() int                 { return s.handle }
func (s *Session) Abandoned() int              { return s.abandoned }

// Snapshot captures what the group broker delivers to entitled receivers
func (s *Session) Snapshot() models.AgentSnapshot {
    group := ""
    if len(s.groups) > 0 {
        group = s.groups[0]
    }

    return models.AgentSnapshot{
        Username:  s.agent.Username,
        Fullname:  s.agent.Fullname,
        Handle:    s.handle,
        Abandoned: s.abandoned,
        Phone:     s.phone,
        Group:     group,
        Address:   s.address,
        Extension: s.extension,
    }
}

func (s *Session) readLoop() {
    for {
        message, err := s.reader.Next()
        if err != nil {
            s.worker.Submit(func() {
                if errors.Is(err, errors.ErrPeerDisconnect) {
                    s.close(err)
                } else {
                    s.close(errors.Wrap(err, errors.ErrPeerDisconnect, "socket read failed"))
                }
            })
            return
        }

        s.worker.Submit(func() {
            s.handleMessage(message)
        })
    }
}

func (s *Session) handleMessage(message *xmlstream.Message) {
    if s.state == StateClosing {
        return
    }

    switch message.Name {
    case "beat":
        s.resetHeartbeat()
    case "authentication":
        if s.state != StatePreAuth {
            s.log.Warn("Authentication frame after login, dropping")
            return
        }
        s.checkAuthentication(message.Text, message.Attr("type") == "encrypted")
    case "action":
        if s.state != StateAuthenticated {
            s.log.Warn("Action frame before login, dropping")
            return
        }
        s.dispatchAction(message.Attr("type"), message.FirstChild())
    default:
        s.log.WithField("element", message.Name).Warn("Unknown frame, dropping")
    }
}

func (s *Session) resetHeartbeat() {
    if s.heartbeat != nil {
        s.heartbeat.Reset(s.cfg.HeartbeatTimeout)
    }
}

func (s *Session) onHeartbeatExpired() {
    if s.state == StateClosing {
        return
    }

    s.log.Warn("Heartbeat timed out")
    s.writer.WriteRaw("-ERR Timeout\n")
    s.close(errors.New(errors.ErrHeartbeatTimeout, "heartbeat timed out"))
}

// ForceLogout writes the force-logout frame and closes. The frame is the
// last thing the peer receives. Safe to call from any goroutine.
func (s *Session) ForceLogout(reason string) {
    s.worker.Submit(func() {
        if s.state == StateClosing {
            return
        }

        s.writer.WriteElement(
            xmlstream.NewElement("authentication").
                Attr("id", "force-logout").
                Child(xmlstream.NewElement("status").SetText(reason)))

        s.close(errors.New(errors.ErrDuplicateLogin, reason))
    })
}

// close drives the session through Closing exactly once: journaling is
// finished, subscribers are told, then the socket dies.
func (s *Session) close(reason error) {
    if s.state == StateClosing {
        return
    }

    wasAuthenticated := s.state == StateAuthenticated
    s.state = StateClosing

    if s.heartbeat != nil {
        s.heartbeat.Stop()
        s.heartbeat = nil
    }

    if wasAuthenticated {
        s.endLogging()
        s.status = models.StatusLogout
        s.events.UserLoggedOut(s)
    }

    s.events.SocketClosed(s, reason)

    s.writer.Close()
    s.conn.Close()

    s.log.WithField("reason", reason.Error()).Info("Client disconnected")
}

func (s *Session) journalContext() (context.Context, context.CancelFunc) {
    return context.WithTimeout(context.Background(), 5*time.Second)
}
