package session

import (
    "time"

    "github.com/rudilee/OrangeServer/internal/models"
)

// Status journaling discipline: at most one open status row per session.
// Every transition closes the open row before inserting the next one.
// Database failures are logged and swallowed; the in-memory state is the
// source of truth for live agents.

func (s *Session) startSession() {
    ctx, cancel := s.journalContext()
    defer cancel()

    id, err := s.store.OpenSessionLog(ctx, s.agent.ID, s.extenMapID, time.Now())
    if err != nil {
        s.log.WithError(err).Error("Failed to open session log")
        return
    }
    s.sessionLogID = id
}

func (s *Session) startStatus(status models.AgentStatus) {
    if s.sessionLogID == 0 {
        return
    }

    ctx, cancel := s.journalContext()
    defer cancel()

    id, err := s.store.OpenStatusLog(ctx, s.sessionLogID, status, time.Now())
    if err != nil {
        s.log.WithError(err).Error("Failed to open status log")
        return
    }
    s.statusLogID = id
}

func (s *Session) endStatus() {
    if s.statusLogID == 0 {
        return
    }

    ctx, cancel := s.journalContext()
    defer cancel()

    if err := s.store.CloseStatusLog(ctx, s.statusLogID, time.Now()); err != nil {
        s.log.WithError(err).Error("Failed to close status log")
    }
    s.statusLogID = 0
}

func (s *Session) endSession() {
    if s.sessionLogID == 0 {
        return
    }

    ctx, cancel := s.journalContext()
    defer cancel()

    if err := s.store.CloseSessionLog(ctx, s.sessionLogID, time.Now()); err != nil {
        s.log.WithError(err).Error("Failed to close session log")
    }
    s.sessionLogID = 0
}

// changeStatus journals the transition and updates the in-memory state
func (s *Session) changeStatus(status models.AgentStatus) {
    if status == s.status {
        return
    }

    s.endStatus()
    s.startStatus(status)
    s.status = status
}

// endLogging closes the open status row, then the session row
func (s *Session) endLogging() {
    s.endStatus()
    s.endSession()
}
