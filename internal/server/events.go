package server

import (
    "context"
    "fmt"
    "strings"
    "time"

    "github.com/rudilee/OrangeServer/internal/ami"
    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/internal/session"
    "github.com/rudilee/OrangeServer/pkg/errors"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

// Server implements session.Events. Every callback runs on the calling
// session's worker; other sessions are only reached through their own
// Submit-based entry points.

// UserLoggedIn rejects a username that is already logged in elsewhere.
// Group enrolment is deferred to the session's queue so the join
// broadcasts land after the auth reply and skill transfer frames.
func (srv *Server) UserLoggedIn(s *session.Session) error {
    username := s.Username()

    srv.mu.Lock()
    if _, exists := srv.loggedIn[username]; exists {
        srv.mu.Unlock()
        srv.count("orange_auth_failures", map[string]string{"reason": "duplicate"})
        return errors.New(errors.ErrDuplicateLogin, "same user login")
    }

    record := &loginRecord{
        sess:      s,
        address:   s.Address(),
        extension: s.Extension(),
        level:     s.Level(),
        loginTime: time.Now(),
    }
    srv.loggedIn[username] = record
    if record.extension != "" {
        srv.byExtension[record.extension] = username
    }
    total := len(srv.loggedIn)
    srv.mu.Unlock()

    srv.count("orange_logins", map[string]string{"level": fmt.Sprintf("%d", s.Level())})
    srv.gauge("orange_agents_logged_in", float64(total))

    s.Submit(func() {
        // The session may already be closing (auth reply write failed)
        // by the time this runs; enrolling it would leave a ghost member.
        if s.State() != session.StateAuthenticated {
            return
        }
        srv.broker.Join(s)
    })

    return nil
}

func (srv *Server) UserLoggedOut(s *session.Session) {
    username := s.Username()

    srv.broker.Logout(s)

    srv.mu.Lock()
    record, exists := srv.loggedIn[username]
    if exists && record.sess == s {
        delete(srv.loggedIn, username)
        if record.extension != "" && srv.byExtension[record.extension] == username {
            delete(srv.byExtension, record.extension)
        }
    }
    total := len(srv.loggedIn)
    srv.mu.Unlock()

    srv.gauge("orange_agents_logged_in", float64(total))
    if exists {
        srv.observe("orange_session_duration",
            time.Since(record.loginTime).Seconds(), nil)
    }
}

func (srv *Server) PhoneStatusChanged(s *session.Session) {
    srv.broker.UpdateStatus(s)
    srv.count("orange_status_broadcasts", nil)
}

// AskDialAuthorization normalizes the destination into a dialable number.
// Every outbound request is granted once the number parses; the campaign
// and customer id only feed the audit log.
func (srv *Server) AskDialAuthorization(s *session.Session, destination, customerID, campaign string) (string, error) {
    formatted := normalizeNumber(destination)
    if formatted == "" {
        return "", errors.New(errors.ErrProtocol, "destination is not a dialable number").
            WithContext("destination", destination)
    }

    logger.WithFields(map[string]interface{}{
        "username":   s.Username(),
        "number":     formatted,
        "customerid": customerID,
        "campaign":   campaign,
    }).Info("Dial authorized")

    return formatted, nil
}

// normalizeNumber strips the separators desktops paste in. Anything left
// besides digits (and one leading plus) disqualifies the destination.
func normalizeNumber(destination string) string {
    var b strings.Builder
    for i, r := range destination {
        switch {
        case r >= '0' && r <= '9':
            b.WriteRune(r)
        case r == '+' && i == 0:
            b.WriteRune(r)
        case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
            // separator, dropped
        default:
            return ""
        }
    }

    formatted := b.String()
    if formatted == "" || formatted == "+" {
        return ""
    }
    return formatted
}

// SpyAgentPhone bridges the supervisor's phone onto the agent's active
// channel with ChanSpy. The originate runs off-worker; a switch refusal
// only surfaces in the log.
func (srv *Server) SpyAgentPhone(s *session.Session, agentUsername string) error {
    if s.Extension() == "" {
        return errors.New(errors.ErrNotAuthorized, "spy requires a bound extension")
    }

    srv.mu.Lock()
    record := srv.loggedIn[agentUsername]
    srv.mu.Unlock()

    if record == nil {
        return errors.New(errors.ErrNotFound, "agent is not logged in")
    }
    if record.extension == "" {
        return errors.New(errors.ErrNotFound, "agent has no bound extension")
    }
    if s.Level() <= record.level {
        return errors.New(errors.ErrNotAuthorized, "cannot spy a peer or superior")
    }
    if !srv.broker.Intersects(s.Username(), agentUsername) {
        return errors.New(errors.ErrNotAuthorized, "agent is outside your groups")
    }

    supervisorChannel := "SIP/" + s.Extension()
    spyData := "SIP/" + record.extension + ",q"

    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
        defer cancel()

        _, err := srv.asterisk.Originate(ctx, ami.OriginateRequest{
            Channel:     supervisorChannel,
            Application: "ChanSpy",
            Data:        spyData,
            CallerID:    agentUsername,
            Timeout:     30000,
            Async:       true,
        })

        status := "ok"
        if err != nil {
            status = "failed"
            logger.WithError(err).WithFields(map[string]interface{}{
                "supervisor": supervisorChannel,
                "spied":      spyData,
            }).Error("Spy originate failed")
        }
        srv.count("ami_actions", map[string]string{"action": "Originate", "status": status})
    }()

    logger.WithFields(map[string]interface{}{
        "username": s.Username(),
        "agent":    agentUsername,
    }).Info("Spy requested")

    return nil
}

// ChangeAgentStatus forces the status of whoever holds the extension.
// The requester must outrank the target and share a group with it.
func (srv *Server) ChangeAgentStatus(s *session.Session, status models.AgentStatus, outbound bool, extension string) error {
    srv.mu.Lock()
    username, bound := srv.byExtension[extension]
    record := srv.loggedIn[username]
    srv.mu.Unlock()

    if !bound || record == nil {
        return errors.New(errors.ErrNotFound, "no agent at extension").
            WithContext("extension", extension)
    }
    if s.Level() <= record.level {
        return errors.New(errors.ErrNotAuthorized, "cannot force a peer or superior")
    }
    if !srv.broker.Intersects(s.Username(), username) {
        return errors.New(errors.ErrNotAuthorized, "agent is outside your groups")
    }

    record.sess.ForceStatus(status, outbound)

    logger.WithFields(map[string]interface{}{
        "username": s.Username(),
        "agent":    username,
        "status":   int(status),
    }).Info("Agent status forced")

    return nil
}

func (srv *Server) SocketClosed(s *session.Session, reason error) {
    srv.mu.Lock()
    if srv.sessions[s.Address()] == s {
        delete(srv.sessions, s.Address())
    }
    active := len(srv.sessions)
    srv.mu.Unlock()

    srv.gauge("orange_sessions_active", float64(active))

    if errors.Is(reason, errors.ErrHeartbeatTimeout) {
        srv.count("orange_heartbeat_timeouts", nil)
    }
}
