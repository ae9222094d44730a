package session

import (
    "fmt"
    "time"

    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/internal/xmlstream"
)

func xmlElement(name string) *xmlstream.Element {
    return xmlstream.NewElement(name)
}

func boolText(b bool) string {
    if b {
        return "true"
    }
    return "false"
}

// SendAgentSnapshot delivers another agent's status frame to this
// session's desktop. Safe to call from any goroutine.
func (s *Session) SendAgentSnapshot(snap models.AgentSnapshot) {
    s.worker.Submit(func() {
        if s.state != StateAuthenticated {
            return
        }

        phone := xmlElement("phone").
            Attr("time", snap.Phone.Time.Format(time.RFC3339)).
            Attr("status", snap.Phone.Status).
            Attr("channel", snap.Phone.Channel).
            Attr("active", boolText(snap.Phone.Active)).
            Attr("outbound", boolText(snap.Phone.Outbound)).
            Attr("dnis", snap.Phone.DNIS)

        agent := xmlElement("agent").
            Child(xmlElement("username").SetText(snap.Username)).
            Child(xmlElement("fullname").SetText(snap.Fullname)).
            Child(xmlElement("handle").SetText(fmt.Sprintf("%d", snap.Handle))).
            Child(xmlElement("abandoned").SetText(fmt.Sprintf("%d", snap.Abandoned))).
            Child(phone).
            Child(xmlElement("group").SetText(snap.Group)).
            Child(xmlElement("address").SetText(snap.Address)).
            Child(xmlElement("extension").SetText(snap.Extension))

        s.writer.WriteElement(agent)
    })
}

// SendAgentLogout notifies this session that a subordinate logged out.
// Safe to call from any goroutine.
func (s *Session) SendAgentLogout(username, extension, group, address string) {
    s.worker.Submit(func() {
        if s.state != StateAuthenticated {
            return
        }

        s.writer.WriteElement(
            xmlElement("agent").
                Child(xmlElement("username").SetText(username)).
                Child(xmlElement("extension").SetText(extension)).
                Child(xmlElement("group").SetText(group)).
                Child(xmlElement("address").SetText(address)).
                Child(xmlElement("logout")))
    })
}
