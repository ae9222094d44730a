package server

import (
    "context"
    "fmt"
    "net"
    "sync"
    "time"

    "github.com/rudilee/OrangeServer/internal/ami"
    "github.com/rudilee/OrangeServer/internal/config"
    "github.com/rudilee/OrangeServer/internal/group"
    "github.com/rudilee/OrangeServer/internal/metrics"
    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/internal/session"
    "github.com/rudilee/OrangeServer/internal/store"
    "github.com/rudilee/OrangeServer/internal/worker"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

// Switch is the slice of the Asterisk manager client the server invokes
type Switch interface {
    Originate(ctx context.Context, req ami.OriginateRequest) (ami.Event, error)
    EventChannel() <-chan ami.Event
    IsConnected() bool
}

// Server accepts desktop sockets, pins each to a worker and keeps the
// who-is-where registries: one session per desktop address, one login per
// username, one username per extension.
type Server struct {
    cfg      config.OrangeConfig
    store    store.Store
    asterisk Switch
    pool     *worker.Pool
    broker   *group.Broker
    metrics  *metrics.PrometheusMetrics

    mu          sync.Mutex
    sessions    map[string]*session.Session
    loggedIn    map[string]*loginRecord
    byExtension map[string]string

    listener  net.Listener
    shutdown  chan struct{}
    closeOnce sync.Once
}

// loginRecord caches the immutable facts of a login so that supervisor
// requests never read another worker's session state.
type loginRecord struct {
    sess      *session.Session
    address   string
    extension string
    level     models.Level
    loginTime time.Time
}

func New(cfg config.OrangeConfig, st store.Store, asterisk Switch, pm *metrics.PrometheusMetrics) *Server {
    return &Server{
        cfg:         cfg,
        store:       st,
        asterisk:    asterisk,
        pool:        worker.NewPool(cfg.WorkerCount),
        broker:      group.NewBroker(),
        metrics:     pm,
        sessions:    make(map[string]*session.Session),
        loggedIn:    make(map[string]*loginRecord),
        byExtension: make(map[string]string),
        shutdown:    make(chan struct{}),
    }
}

// Start binds the listener and spins up the workers, the accept loop and
// the switch event bridge.
func (srv *Server) Start() error {
    listener, err := net.Listen("tcp", fmt.Sprintf(":%d", srv.cfg.Port))
    if err != nil {
        return err
    }
    srv.listener = listener

    srv.pool.Start()

    go srv.acceptLoop()
    if srv.asterisk != nil {
        go srv.runEventBridge()
    }

    logger.WithField("addr", listener.Addr().String()).Info("Orange server listening")

    return nil
}

// Stop force-logs-out every connected desktop, then stops the workers.
// The force-logout frame is the last thing each peer receives.
func (srv *Server) Stop() {
    srv.closeOnce.Do(func() {
        close(srv.shutdown)

        if srv.listener != nil {
            srv.listener.Close()
        }

        srv.mu.Lock()
        sessions := make([]*session.Session, 0, len(srv.sessions))
        for _, s := range srv.sessions {
            sessions = append(sessions, s)
        }
        srv.mu.Unlock()

        for _, s := range sessions {
            s.ForceLogout("server stop services")
        }

        srv.pool.Stop()

        logger.Info("Orange server stopped")
    })
}

// Addr returns the bound listener address, for tests binding port 0
func (srv *Server) Addr() net.Addr {
    return srv.listener.Addr()
}

func (srv *Server) acceptLoop() {
    for {
        conn, err := srv.listener.Accept()
        if err != nil {
            select {
            case <-srv.shutdown:
                return
            default:
            }
            logger.WithError(err).Error("Accept failed")
            continue
        }

        srv.handleConnection(conn)
    }
}

func (srv *Server) handleConnection(conn net.Conn) {
    s := session.New(conn, srv.pool.Next(), srv, srv.store, session.Config{
        HeartbeatTimeout:     srv.cfg.HeartbeatTimeout,
        SingleQuoteHandshake: srv.cfg.SingleQuoteHandshake,
    })

    srv.mu.Lock()
    if _, exists := srv.sessions[s.Address()]; exists {
        logger.WithField("client", s.Address()).Warn("Replacing session for address")
    }
    srv.sessions[s.Address()] = s
    active := len(srv.sessions)
    srv.mu.Unlock()

    srv.gauge("orange_sessions_active", float64(active))

    s.Start()
}

func (srv *Server) count(name string, labels map[string]string) {
    if srv.metrics != nil {
        srv.metrics.IncrementCounter(name, labels)
    }
}

func (srv *Server) gauge(name string, value float64) {
    if srv.metrics != nil {
        srv.metrics.SetGauge(name, value, nil)
    }
}

func (srv *Server) observe(name string, value float64, labels map[string]string) {
    if srv.metrics != nil {
        srv.metrics.ObserveHistogram(name, value, labels)
    }
}
