package group

import (
    "sync"

    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

// Member is the slice of a session the broker needs. The snapshot
// accessors must be called on the member's own worker; the Send methods
// are safe from anywhere.
type Member interface {
    Username() string
    Level() models.Level
    Groups() []string
    Snapshot() models.AgentSnapshot
    SendAgentSnapshot(snap models.AgentSnapshot)
    SendAgentLogout(username, extension, group, address string)
}

// Broker owns every queue group and the username→queues membership index.
// Groups are created lazily on first member insertion and live until
// process exit. Delivery always goes through the receiving session's
// worker, so holding the group lock while fanning out is safe.
type Broker struct {
    mu          sync.Mutex
    groups      map[string]*Group
    memberships map[string][]string
}

// Group is a named bag of authenticated sessions keyed by username
type Group struct {
    queue string

    mu      sync.Mutex
    members map[string]*member
}

// member caches the session's level and last snapshot so that join-time
// replay never reads another worker's session state.
type member struct {
    sess     Member
    level    models.Level
    snapshot models.AgentSnapshot
}

func NewBroker() *Broker {
    return &Broker{
        groups:      make(map[string]*Group),
        memberships: make(map[string][]string),
    }
}

func (b *Broker) group(queue string) *Group {
    g, exists := b.groups[queue]
    if !exists {
        g = &Group{queue: queue, members: make(map[string]*member)}
        b.groups[queue] = g
        logger.WithField("group", queue).Info("Group created")
    }
    return g
}

// Join enrols the session into each of its queues. Must run on the
// session's worker.
func (b *Broker) Join(s Member) {
    queues := s.Groups()
    m := &member{
        sess:     s,
        level:    s.Level(),
        snapshot: s.Snapshot(),
    }

    b.mu.Lock()
    b.memberships[s.Username()] = append([]string(nil), queues...)
    groups := make([]*Group, 0, len(queues))
    for _, queue := range queues {
        groups = append(groups, b.group(queue))
    }
    b.mu.Unlock()

    for _, g := range groups {
        g.join(m)
    }
}

// UpdateStatus refreshes the member's cached snapshot and broadcasts it.
// Must run on the session's worker.
func (b *Broker) UpdateStatus(s Member) {
    snapshot := s.Snapshot()
    username := s.Username()

    for _, g := range b.groupsOf(username) {
        g.updateStatus(username, snapshot)
    }
}

// Logout removes the member and notifies its superiors. Must run on the
// session's worker.
func (b *Broker) Logout(s Member) {
    username := s.Username()
    groups := b.groupsOf(username)

    b.mu.Lock()
    delete(b.memberships, username)
    b.mu.Unlock()

    for _, g := range groups {
        g.logout(username)
    }
}

// Intersects reports whether two logged-in agents share a queue
func (b *Broker) Intersects(usernameA, usernameB string) bool {
    b.mu.Lock()
    defer b.mu.Unlock()

    queuesB := make(map[string]bool, len(b.memberships[usernameB]))
    for _, queue := range b.memberships[usernameB] {
        queuesB[queue] = true
    }

    for _, queue := range b.memberships[usernameA] {
        if queuesB[queue] {
            return true
        }
    }
    return false
}

func (b *Broker) groupsOf(username string) []*Group {
    b.mu.Lock()
    defer b.mu.Unlock()

    groups := make([]*Group, 0, len(b.memberships[username]))
    for _, queue := range b.memberships[username] {
        if g, exists := b.groups[queue]; exists {
            groups = append(groups, g)
        }
    }
    return groups
}

// join broadcasts the newcomer to its superiors, then replays every
// member the newcomer is entitled to see.
func (g *Group) join(m *member) {
    g.mu.Lock()
    defer g.mu.Unlock()

    // A leftover entry from a session that died before its logout
    // reached the group is superseded by the newcomer.
    delete(g.members, m.snapshot.Username)

    for _, other := range g.members {
        if other.level > m.level {
            other.sess.SendAgentSnapshot(m.snapshot)
        }
    }

    for _, other := range g.members {
        if m.level > other.level {
            m.sess.SendAgentSnapshot(other.snapshot)
        }
    }

    g.members[m.snapshot.Username] = m

    logger.WithFields(map[string]interface{}{
        "group":    g.queue,
        "username": m.snapshot.Username,
    }).Info("Member joined group")
}

func (g *Group) updateStatus(username string, snapshot models.AgentSnapshot) {
    g.mu.Lock()
    defer g.mu.Unlock()

    m, exists := g.members[username]
    if !exists {
        return
    }
    m.snapshot = snapshot

    for _, other := range g.members {
        if other != m && other.level > m.level {
            other.sess.SendAgentSnapshot(snapshot)
        }
    }
}

func (g *Group) logout(username string) {
    g.mu.Lock()
    defer g.mu.Unlock()

    m, exists := g.members[username]
    if !exists {
        return
    }
    delete(g.members, username)

    for _, other := range g.members {
        if other.level > m.level {
            other.sess.SendAgentLogout(
                m.snapshot.Username, m.snapshot.Extension, g.queue, m.snapshot.Address)
        }
    }

    logger.WithFields(map[string]interface{}{
        "group":    g.queue,
        "username": username,
    }).Info("Member left group")
}
