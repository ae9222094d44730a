package models

import (
    "time"
)

// Level is the agent privilege level. Higher levels see their
// subordinates' statuses.
type Level int

const (
    LevelAgent Level = iota
    LevelSupervisor
    LevelManager
)

func (l Level) String() string {
    switch l {
    case LevelAgent:
        return "agent"
    case LevelSupervisor:
        return "supervisor"
    case LevelManager:
        return "manager"
    }
    return "unknown"
}

// AgentStatus values match the acd_log_agent_status rows written since the
// Qt era, so the numbering starts at 1.
type AgentStatus int

const (
    StatusLogin AgentStatus = iota + 1
    StatusReady
    StatusNotReady
    StatusLogout
    StatusAUX
    StatusACW
)

func (s AgentStatus) String() string {
    switch s {
    case StatusLogin:
        return "login"
    case StatusReady:
        return "ready"
    case StatusNotReady:
        return "not-ready"
    case StatusLogout:
        return "logout"
    case StatusAUX:
        return "aux"
    case StatusACW:
        return "acw"
    }
    return "unknown"
}

// StatusFromMode maps the "mode" attribute of the ready action to the
// not-ready substate it selects.
func StatusFromMode(mode string) (AgentStatus, bool) {
    switch mode {
    case "not-ready":
        return StatusNotReady, true
    case "acw":
        return StatusACW, true
    case "aux":
        return StatusAUX, true
    }
    return 0, false
}

// Agent is a row of acd_agent
type Agent struct {
    ID       int64  `db:"id"`
    Username string `db:"name"`
    Fullname string `db:"fullname"`
    Level    Level  `db:"level"`
}

// Skill is a row of acd_skill joined through acd_agent_skill
type Skill struct {
    ID   int64  `db:"id"`
    Name string `db:"name"`
}

// Phone is the last known snapshot of the telephony endpoint bound to a
// session's desktop.
type Phone struct {
    Time     time.Time
    Status   string
    Channel  string
    Active   bool
    Outbound bool
    DNIS     string
}

// AgentSnapshot is what the group broker delivers to entitled receivers on
// join and on every phone-status change.
type AgentSnapshot struct {
    Username  string
    Fullname  string
    Handle    int
    Abandoned int
    Phone     Phone
    Group     string
    Address   string
    Extension string
}
