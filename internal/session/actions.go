package session

import (
    "time"

    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/internal/xmlstream"
)

// dispatchAction routes a post-auth <action type="X"> frame. Unknown
// types are a protocol error: logged, dropped, session kept.
func (s *Session) dispatchAction(actionType string, payload *xmlstream.Message) {
    if payload == nil {
        s.log.WithField("action", actionType).Warn("Action without payload, dropping")
        return
    }

    switch actionType {
    case "ready":
        s.handleReady(payload)
    case "ask-dial-authorization":
        s.handleAskDialAuthorization(payload)
    case "spy":
        s.handleSpy(payload)
    case "status":
        s.handleChangeAgentStatus(payload)
    default:
        s.log.WithField("action", actionType).Warn("Unknown action, dropping")
    }
}

// handleReady transitions the agent's own availability. value=true means
// Ready; otherwise mode selects the not-ready substate.
func (s *Session) handleReady(payload *xmlstream.Message) {
    status := models.StatusReady
    if payload.Attr("value") != "true" {
        mode, ok := models.StatusFromMode(payload.Attr("mode"))
        if !ok {
            s.log.WithField("mode", payload.Attr("mode")).Warn("Unknown ready mode, dropping")
            return
        }
        status = mode
    }

    s.applyStatus(status, payload.Attr("outbound") == "true")
}

// applyStatus is shared between the agent's own ready action and a
// supervisor-forced change.
func (s *Session) applyStatus(status models.AgentStatus, outbound bool) {
    s.changeStatus(status)

    s.phone.Time = time.Now()
    s.phone.Outbound = outbound

    s.events.PhoneStatusChanged(s)
}

func (s *Session) handleAskDialAuthorization(payload *xmlstream.Message) {
    destination := payload.Attr("destination")

    formatted, err := s.events.AskDialAuthorization(s,
        destination, payload.Attr("customerid"), payload.Attr("campaign"))
    if err != nil {
        s.log.WithError(err).Warn("Dial authorization refused")
        return
    }

    s.writer.WriteElement(xmlElement("dialer").Attr("formatted-number", formatted))
}

func (s *Session) handleSpy(payload *xmlstream.Message) {
    if s.agent.Level <= models.LevelAgent {
        s.log.Warn("Spy requested by non-supervisor, dropping")
        return
    }

    if err := s.events.SpyAgentPhone(s, payload.Attr("agent")); err != nil {
        s.log.WithError(err).Warn("Spy request failed")
    }
}

// handleChangeAgentStatus forces the status of the agent at the given
// extension; the registry applies the group-intersection rule.
func (s *Session) handleChangeAgentStatus(payload *xmlstream.Message) {
    if s.agent.Level <= models.LevelAgent {
        s.log.Warn("Forced status change requested by non-supervisor, dropping")
        return
    }

    status := models.StatusReady
    if payload.Attr("ready") != "true" {
        status = models.StatusNotReady
    }

    err := s.events.ChangeAgentStatus(s,
        status, payload.Attr("outbound") == "true", payload.Attr("extension"))
    if err != nil {
        s.log.WithError(err).Warn("Forced status change refused")
    }
}

// ForceStatus applies a supervisor-forced transition as if the agent had
// sent ready itself. Safe to call from any goroutine.
func (s *Session) ForceStatus(status models.AgentStatus, outbound bool) {
    s.worker.Submit(func() {
        if s.state != StateAuthenticated {
            return
        }
        s.applyStatus(status, outbound)
    })
}

// SetPhoneStatus updates the phone snapshot from the Asterisk event
// bridge. Safe to call from any goroutine.
func (s *Session) SetPhoneStatus(status, channel string, active, outbound bool, dnis string) {
    s.worker.Submit(func() {
        if s.state != StateAuthenticated {
            return
        }

        s.phone = models.Phone{
            Time:     time.Now(),
            Status:   status,
            Channel:  channel,
            Active:   active,
            Outbound: outbound,
            DNIS:     dnis,
        }

        s.events.PhoneStatusChanged(s)
    })
}

// AddHandled bumps the handled-calls counter; AddAbandoned the abandoned
// one. Both originate from the AMI event bridge.
func (s *Session) AddHandled() {
    s.worker.Submit(func() {
        s.handle++
    })
}

func (s *Session) AddAbandoned() {
    s.worker.Submit(func() {
        s.abandoned++
    })
}
