package session

import (
    "context"
    "crypto/md5"
    "encoding/base64"
    "fmt"
    "net"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/internal/worker"
    "github.com/rudilee/OrangeServer/internal/xmlstream"
    "github.com/rudilee/OrangeServer/pkg/errors"
)

type recordingEvents struct {
    mu            sync.Mutex
    loggedIn      int
    loggedOut     int
    statusChanges int
    closed        int
    closeReason   error
    vetoLogin     error
}

func (r *recordingEvents) UserLoggedIn(s *Session) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    if r.vetoLogin != nil {
        return r.vetoLogin
    }
    r.loggedIn++
    return nil
}

func (r *recordingEvents) UserLoggedOut(s *Session) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.loggedOut++
}

func (r *recordingEvents) PhoneStatusChanged(s *Session) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.statusChanges++
}

func (r *recordingEvents) AskDialAuthorization(s *Session, destination, customerID, campaign string) (string, error) {
    return destination, nil
}

func (r *recordingEvents) SpyAgentPhone(s *Session, agentUsername string) error { return nil }

func (r *recordingEvents) ChangeAgentStatus(s *Session, status models.AgentStatus, outbound bool, extension string) error {
    return nil
}

func (r *recordingEvents) SocketClosed(s *Session, reason error) {
    r.mu.Lock()
    defer r.mu.Unlock()
    r.closed++
    r.closeReason = reason
}

func (r *recordingEvents) snapshot() (int, int, int, int) {
    r.mu.Lock()
    defer r.mu.Unlock()
    return r.loggedIn, r.loggedOut, r.statusChanges, r.closed
}

// memStore is a single-agent store with in-memory journaling
type memStore struct {
    mu        sync.Mutex
    username  string
    statusLog []models.AgentStatus
    nextID    int64
}

func (m *memStore) FindAgent(ctx context.Context, username, passwordMD5 string) (*models.Agent, error) {
    expected := fmt.Sprintf("%x", md5.Sum([]byte("s3cret")))
    if username != m.username || passwordMD5 != expected {
        return nil, errors.New(errors.ErrNotFound, "agent not found")
    }
    return &models.Agent{ID: 1, Username: username, Fullname: "Test Agent"}, nil
}

func (m *memStore) FindExtensionForAddress(ctx context.Context, ip string) (int64, string, error) {
    return 0, "", errors.New(errors.ErrNotFound, "no extension mapped to address")
}

func (m *memStore) ListSkills(ctx context.Context, agentID int64) ([]models.Skill, error) {
    return nil, nil
}

func (m *memStore) ListGroups(ctx context.Context, agentID int64) ([]string, error) {
    return []string{"sales"}, nil
}

func (m *memStore) OpenSessionLog(ctx context.Context, agentID, extenMapID int64, now time.Time) (int64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.nextID++
    return m.nextID, nil
}

func (m *memStore) CloseSessionLog(ctx context.Context, sessionLogID int64, now time.Time) error {
    return nil
}

func (m *memStore) OpenStatusLog(ctx context.Context, sessionLogID int64, status models.AgentStatus, now time.Time) (int64, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.nextID++
    m.statusLog = append(m.statusLog, status)
    return m.nextID, nil
}

func (m *memStore) CloseStatusLog(ctx context.Context, statusLogID int64, now time.Time) error {
    return nil
}

func (m *memStore) statuses() []models.AgentStatus {
    m.mu.Lock()
    defer m.mu.Unlock()
    return append([]models.AgentStatus(nil), m.statusLog...)
}

type harness struct {
    events *recordingEvents
    store  *memStore
    conn   net.Conn
    reader *xmlstream.Reader
}

func startSession(t *testing.T, cfg Config) *harness {
    t.Helper()

    listener, err := net.Listen("tcp", "127.0.0.1:0")
    require.NoError(t, err)
    t.Cleanup(func() { listener.Close() })

    pool := worker.NewPool(1)
    pool.Start()
    t.Cleanup(pool.Stop)

    h := &harness{
        events: &recordingEvents{},
        store:  &memStore{username: "alice"},
    }

    accepted := make(chan net.Conn, 1)
    go func() {
        conn, err := listener.Accept()
        if err == nil {
            accepted <- conn
        }
    }()

    clientConn, err := net.Dial("tcp", listener.Addr().String())
    require.NoError(t, err)
    t.Cleanup(func() { clientConn.Close() })

    serverConn := <-accepted
    t.Cleanup(func() { serverConn.Close() })

    s := New(serverConn, pool.Next(), h.events, h.store, cfg)
    s.Start()

    h.conn = clientConn
    h.reader = xmlstream.NewReader(clientConn)

    _, err = clientConn.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><stream>`))
    require.NoError(t, err)

    return h
}

func (h *harness) send(t *testing.T, frame string) {
    t.Helper()
    _, err := h.conn.Write([]byte(frame + "\n"))
    require.NoError(t, err)
}

func (h *harness) expect(t *testing.T, name string) *xmlstream.Message {
    t.Helper()

    h.conn.SetReadDeadline(time.Now().Add(3 * time.Second))
    message, err := h.reader.Next()
    require.NoError(t, err, "waiting for <%s>", name)
    require.Equal(t, name, message.Name)
    return message
}

func findChild(m *xmlstream.Message, name string) *xmlstream.Message {
    for _, c := range m.Children {
        if c.Name == name {
            return c
        }
    }
    return nil
}

func TestEncryptedAuthentication(t *testing.T) {
    h := startSession(t, Config{})

    h.expect(t, "welcome")
    h.expect(t, "authentication")

    credentials := base64.StdEncoding.EncodeToString([]byte("alice:s3cret"))
    h.send(t, fmt.Sprintf(`<authentication type="encrypted">%s</authentication>`, credentials))

    verdict := h.expect(t, "authentication")
    require.Equal(t, "status", verdict.Attr("id"))
    assert.Equal(t, "ok", findChild(verdict, "status").Text)

    h.expect(t, "transfer")

    loggedIn, _, _, _ := h.events.snapshot()
    assert.Equal(t, 1, loggedIn)
}

func TestMalformedCredentialsRejected(t *testing.T) {
    h := startSession(t, Config{})

    h.expect(t, "welcome")
    h.expect(t, "authentication")

    h.send(t, `<authentication type="encrypted">!!not-base64!!</authentication>`)

    verdict := h.expect(t, "authentication")
    assert.Equal(t, "failed", findChild(verdict, "status").Text)

    h.send(t, `<authentication type="plain">nocolon</authentication>`)

    verdict = h.expect(t, "authentication")
    assert.Equal(t, "failed", findChild(verdict, "status").Text)
}

func TestBeatKeepsSessionAlive(t *testing.T) {
    h := startSession(t, Config{HeartbeatTimeout: 200 * time.Millisecond})

    h.expect(t, "welcome")
    h.expect(t, "authentication")

    // Outlive several timeout windows on beats alone
    deadline := time.Now().Add(700 * time.Millisecond)
    for time.Now().Before(deadline) {
        h.send(t, `<beat/>`)
        time.Sleep(50 * time.Millisecond)
    }

    _, _, _, closed := h.events.snapshot()
    assert.Zero(t, closed, "session must survive while beats arrive")

    // Stop beating and the watchdog fires
    require.Eventually(t, func() bool {
        _, _, _, closed := h.events.snapshot()
        return closed == 1
    }, 2*time.Second, 20*time.Millisecond)

    h.events.mu.Lock()
    reason := h.events.closeReason
    h.events.mu.Unlock()
    assert.True(t, errors.Is(reason, errors.ErrHeartbeatTimeout))
}

func TestReadyModesJournalStatus(t *testing.T) {
    h := startSession(t, Config{})

    h.expect(t, "welcome")
    h.expect(t, "authentication")
    h.send(t, `<authentication type="plain">alice:s3cret</authentication>`)
    h.expect(t, "authentication")
    h.expect(t, "transfer")

    h.send(t, `<action type="ready"><ready value="false" mode="aux"/></action>`)
    h.send(t, `<action type="ready"><ready value="true"/></action>`)
    h.send(t, `<action type="ready"><ready value="false" mode="acw" outbound="true"/></action>`)

    require.Eventually(t, func() bool {
        return len(h.store.statuses()) >= 4
    }, 2*time.Second, 10*time.Millisecond)

    statuses := h.store.statuses()
    assert.Equal(t, []models.AgentStatus{
        models.StatusLogin, models.StatusAUX, models.StatusReady, models.StatusACW,
    }, statuses[:4])
}

func TestUnknownFramesDropped(t *testing.T) {
    h := startSession(t, Config{})

    h.expect(t, "welcome")
    h.expect(t, "authentication")
    h.send(t, `<bogus/>`)
    h.send(t, `<authentication type="plain">alice:s3cret</authentication>`)

    verdict := h.expect(t, "authentication")
    assert.Equal(t, "ok", findChild(verdict, "status").Text)
}

func TestLoginVetoForcesLogoutWithoutJournaling(t *testing.T) {
    h := startSession(t, Config{})
    h.events.vetoLogin = errors.New(errors.ErrDuplicateLogin, "same user login")

    h.expect(t, "welcome")
    h.expect(t, "authentication")
    h.send(t, `<authentication type="plain">alice:s3cret</authentication>`)

    verdict := h.expect(t, "authentication")
    require.Equal(t, "force-logout", verdict.Attr("id"))
    assert.Equal(t, "same user login", findChild(verdict, "status").Text)

    require.Eventually(t, func() bool {
        _, _, _, closed := h.events.snapshot()
        return closed == 1
    }, 2*time.Second, 10*time.Millisecond)

    _, loggedOut, _, _ := h.events.snapshot()
    assert.Zero(t, loggedOut, "vetoed login never logs out")
    assert.Empty(t, h.store.statuses(), "vetoed login never journals")
}

func TestPeerStreamCloseEndsSession(t *testing.T) {
    h := startSession(t, Config{})

    h.expect(t, "welcome")
    h.expect(t, "authentication")
    h.send(t, `<authentication type="plain">alice:s3cret</authentication>`)
    h.expect(t, "authentication")
    h.expect(t, "transfer")

    h.send(t, `</stream>`)

    require.Eventually(t, func() bool {
        _, loggedOut, _, closed := h.events.snapshot()
        return closed == 1 && loggedOut == 1
    }, 2*time.Second, 10*time.Millisecond)
}
