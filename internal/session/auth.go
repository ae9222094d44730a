package session

import (
    "crypto/md5"
    "encoding/base64"
    "fmt"
    "strings"

    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/pkg/errors"
)

// sendHandshake opens the stream and offers the authentication types
func (s *Session) sendHandshake() error {
    if err := s.writer.Open(); err != nil {
        return err
    }

    welcome := xmlElement("welcome").
        Attr("name", s.cfg.ServerName).
        Child(xmlElement("note").SetText("Welcome to Orange CTI Server"))

    if err := s.writer.WriteElement(welcome); err != nil {
        return err
    }

    prompt := xmlElement("authentication").
        Attr("id", "prompt").
        Child(xmlElement("type").
            Attr("id", "plain").
            Child(xmlElement("note").SetText("username:password"))).
        Child(xmlElement("type").
            Attr("id", "encrypted").
            Child(xmlElement("note").SetText("base64(username:password)")))

    return s.writer.WriteElement(prompt)
}

// checkAuthentication validates the credential payload against the agent
// table. A failure keeps the session in PreAuth; the attempt count is not
// bounded, the heartbeat watchdog reaps idle offenders.
func (s *Session) checkAuthentication(payload string, encrypted bool) {
    credentials := payload
    if encrypted {
        decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
        if err != nil {
            s.sendAuthFailed("malformed credentials")
            return
        }
        credentials = string(decoded)
    }

    username, password, found := strings.Cut(credentials, ":")
    if !found || username == "" {
        s.sendAuthFailed("malformed credentials")
        return
    }

    passwordMD5 := fmt.Sprintf("%x", md5.Sum([]byte(password)))

    ctx, cancel := s.journalContext()
    defer cancel()

    agent, err := s.store.FindAgent(ctx, username, passwordMD5)
    if err != nil {
        if errors.Is(err, errors.ErrNotFound) {
            s.log.WithField("username", username).Info("Authentication failed")
            s.sendAuthFailed("invalid username or password")
        } else {
            s.log.WithError(err).Error("Authentication lookup failed")
            s.sendAuthFailed("authentication unavailable")
        }
        return
    }

    s.agent = agent
    s.log = s.log.WithField("username", agent.Username)

    s.retrieveExtension()
    s.retrieveSkills()
    s.retrieveGroups()

    s.state = StateAuthenticated
    s.status = models.StatusLogin

    // The registry gets the first say: a duplicate username is rejected
    // before anything is journaled or acknowledged.
    if err := s.events.UserLoggedIn(s); err != nil {
        s.state = StatePreAuth
        s.agent = nil
        s.ForceLogout(errors.Reason(err))
        return
    }

    if err := s.sendAuthStatus(); err != nil {
        s.close(errors.Wrap(err, errors.ErrPeerDisconnect, "auth reply failed"))
        return
    }
    if err := s.sendSkillTransfer(); err != nil {
        s.close(errors.Wrap(err, errors.ErrPeerDisconnect, "skill transfer failed"))
        return
    }

    s.startSession()
    s.startStatus(models.StatusLogin)

    s.log.Info("Agent logged in")
}

// retrieveExtension binds the phone endpoint mapped to this desktop's IP.
// No mapping is fine, the agent just has no physical phone bound.
func (s *Session) retrieveExtension() {
    if s.extension != "" {
        return
    }

    ctx, cancel := s.journalContext()
    defer cancel()

    mapID, extension, err := s.store.FindExtensionForAddress(ctx, s.address)
    if err != nil {
        if !errors.Is(err, errors.ErrNotFound) {
            s.log.WithError(err).Error("Extension lookup failed")
        }
        return
    }

    s.extenMapID = mapID
    s.extension = extension
}

func (s *Session) retrieveSkills() {
    ctx, cancel := s.journalContext()
    defer cancel()

    skills, err := s.store.ListSkills(ctx, s.agent.ID)
    if err != nil {
        s.log.WithError(err).Error("Skill lookup failed")
        return
    }
    s.skills = skills
}

func (s *Session) retrieveGroups() {
    ctx, cancel := s.journalContext()
    defer cancel()

    groups, err := s.store.ListGroups(ctx, s.agent.ID)
    if err != nil {
        s.log.WithError(err).Error("Group lookup failed")
        return
    }
    s.groups = groups
}

func (s *Session) sendAuthFailed(message string) {
    s.writer.WriteElement(
        xmlElement("authentication").
            Attr("id", "status").
            Child(xmlElement("status").SetText("failed")).
            Child(xmlElement("message").SetText(message)))
}

func (s *Session) sendAuthStatus() error {
    status := xmlElement("authentication").
        Attr("id", "status").
        Child(xmlElement("level").SetText(fmt.Sprintf("%d", s.agent.Level))).
        Child(xmlElement("login").SetText(s.agent.Username))

    if s.extension != "" {
        status.Child(xmlElement("extension").SetText(s.extension))
    }

    status.Child(xmlElement("status").SetText("ok"))

    return s.writer.WriteElement(status)
}

func (s *Session) sendSkillTransfer() error {
    transfer := xmlElement("transfer")
    for _, skill := range s.skills {
        transfer.Child(xmlElement("skill").
            Attr("name", skill.Name).
            Attr("id", fmt.Sprintf("%d", skill.ID)))
    }

    return s.writer.WriteElement(transfer)
}
