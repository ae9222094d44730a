package server

import (
    "strings"

    "github.com/rudilee/OrangeServer/internal/ami"
    "github.com/rudilee/OrangeServer/internal/session"
)

// The event bridge feeds switch-side telephony state back into the
// desktop sessions: channel state becomes the phone snapshot the group
// broker fans out, queue events bump the handled/abandoned counters.

func (srv *Server) runEventBridge() {
    events := srv.asterisk.EventChannel()

    for {
        select {
        case <-srv.shutdown:
            return
        case event := <-events:
            srv.handleSwitchEvent(event)
        }
    }
}

func (srv *Server) handleSwitchEvent(event ami.Event) {
    name := event["Event"]
    srv.count("ami_events", map[string]string{"event": name})

    switch name {
    case "Newstate":
        s := srv.sessionForChannel(event["Channel"])
        if s == nil {
            return
        }

        state := strings.ToLower(event["ChannelStateDesc"])
        dnis := event["Exten"]
        if dnis == "" {
            dnis = event["ConnectedLineNum"]
        }

        s.SetPhoneStatus(state, event["Channel"], state == "up", false, dnis)

    case "Hangup":
        s := srv.sessionForChannel(event["Channel"])
        if s == nil {
            return
        }

        s.SetPhoneStatus("hangup", event["Channel"], false, false, "")

    case "AgentConnect":
        if s := srv.sessionForChannel(event["Interface"]); s != nil {
            s.AddHandled()
        }

    case "AgentRingNoAnswer":
        if s := srv.sessionForChannel(event["Interface"]); s != nil {
            s.AddAbandoned()
        }
    }
}

// sessionForChannel resolves "SIP/1001-00000abc" to whoever is logged in
// behind extension 1001.
func (srv *Server) sessionForChannel(channel string) *session.Session {
    extension := extensionFromChannel(channel)
    if extension == "" {
        return nil
    }

    srv.mu.Lock()
    defer srv.mu.Unlock()

    username, bound := srv.byExtension[extension]
    if !bound {
        return nil
    }
    if record := srv.loggedIn[username]; record != nil {
        return record.sess
    }
    return nil
}

func extensionFromChannel(channel string) string {
    _, rest, found := strings.Cut(channel, "/")
    if !found {
        return ""
    }
    if idx := strings.LastIndex(rest, "-"); idx >= 0 {
        rest = rest[:idx]
    }
    return rest
}
