package group

import (
    "sync"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/rudilee/OrangeServer/internal/models"
)

type fakeMember struct {
    username string
    level    models.Level
    groups   []string
    status   string

    mu        sync.Mutex
    snapshots []models.AgentSnapshot
    logouts   []string
}

func (f *fakeMember) Username() string    { return f.username }
func (f *fakeMember) Level() models.Level { return f.level }
func (f *fakeMember) Groups() []string    { return f.groups }

func (f *fakeMember) Snapshot() models.AgentSnapshot {
    return models.AgentSnapshot{
        Username: f.username,
        Phone:    models.Phone{Status: f.status},
    }
}

func (f *fakeMember) SendAgentSnapshot(snap models.AgentSnapshot) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.snapshots = append(f.snapshots, snap)
}

func (f *fakeMember) SendAgentLogout(username, extension, group, address string) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.logouts = append(f.logouts, username)
}

func (f *fakeMember) received() []string {
    f.mu.Lock()
    defer f.mu.Unlock()

    var usernames []string
    for _, snap := range f.snapshots {
        usernames = append(usernames, snap.Username)
    }
    return usernames
}

func TestJoinBroadcastsToSuperiorsOnly(t *testing.T) {
    broker := NewBroker()

    agent := &fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales"}}
    peer := &fakeMember{username: "bob", level: models.LevelAgent, groups: []string{"sales"}}
    supervisor := &fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales"}}

    broker.Join(supervisor)
    broker.Join(agent)
    broker.Join(peer)

    assert.ElementsMatch(t, []string{"alice", "bob"}, supervisor.received())
    assert.Empty(t, agent.received(), "agents must not see peers")
    assert.Empty(t, peer.received(), "agents must not see peers")
}

func TestJoinReplaysSubordinatesToLateSupervisor(t *testing.T) {
    broker := NewBroker()

    agent := &fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales"}}
    supervisor := &fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales"}}

    broker.Join(agent)
    broker.Join(supervisor)

    assert.Equal(t, []string{"alice"}, supervisor.received())
    assert.Empty(t, agent.received())
}

func TestUpdateStatusReachesEntitledMembers(t *testing.T) {
    broker := NewBroker()

    agent := &fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales"}}
    supervisor := &fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales"}}
    manager := &fakeMember{username: "dave", level: models.LevelManager, groups: []string{"sales"}}

    broker.Join(agent)
    broker.Join(supervisor)
    broker.Join(manager)

    agent.status = "talking"
    broker.UpdateStatus(agent)

    require.NotEmpty(t, supervisor.snapshots)
    assert.Equal(t, "talking", supervisor.snapshots[len(supervisor.snapshots)-1].Phone.Status)
    require.NotEmpty(t, manager.snapshots)
    assert.Equal(t, "talking", manager.snapshots[len(manager.snapshots)-1].Phone.Status)
    assert.Empty(t, agent.received(), "sender never receives its own status")
}

func TestSupervisorUpdateInvisibleToManagerOfHigherRank(t *testing.T) {
    broker := NewBroker()

    supervisor := &fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales"}}
    manager := &fakeMember{username: "dave", level: models.LevelManager, groups: []string{"sales"}}

    broker.Join(supervisor)
    broker.Join(manager)

    // Join replay already delivered carol once
    assert.Equal(t, []string{"carol"}, manager.received())

    supervisor.status = "paused"
    broker.UpdateStatus(supervisor)

    assert.Equal(t, []string{"carol", "carol"}, manager.received())
    require.NotEmpty(t, manager.snapshots)
    assert.Equal(t, "paused", manager.snapshots[len(manager.snapshots)-1].Phone.Status)

    manager.status = "busy"
    broker.UpdateStatus(manager)

    assert.Empty(t, supervisor.received(), "supervisors must not see superiors")
}

func TestLogoutNotifiesSuperiors(t *testing.T) {
    broker := NewBroker()

    agent := &fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales"}}
    peer := &fakeMember{username: "bob", level: models.LevelAgent, groups: []string{"sales"}}
    supervisor := &fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales"}}

    broker.Join(agent)
    broker.Join(peer)
    broker.Join(supervisor)

    broker.Logout(agent)

    assert.Equal(t, []string{"alice"}, supervisor.logouts)
    assert.Empty(t, peer.logouts)
    assert.False(t, broker.Intersects("alice", "carol"), "membership index cleared")
}

func TestRejoinReplacesStaleMember(t *testing.T) {
    broker := NewBroker()

    supervisor := &fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales"}}
    broker.Join(supervisor)

    // A session that died before its logout reached the broker
    stale := &fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales"}, status: "idle"}
    broker.Join(stale)

    fresh := &fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales"}, status: "login"}
    broker.Join(fresh)

    assert.Equal(t, []string{"alice", "alice"}, supervisor.received())

    // Updates flow through the fresh member, not the stale one
    fresh.status = "talking"
    broker.UpdateStatus(fresh)

    require.Len(t, supervisor.snapshots, 3)
    assert.Equal(t, "talking", supervisor.snapshots[2].Phone.Status)

    broker.Logout(fresh)
    assert.Equal(t, []string{"alice"}, supervisor.logouts)
    assert.Empty(t, stale.received(), "stale member must not shadow the new session")
}

func TestMultiGroupFanOut(t *testing.T) {
    broker := NewBroker()

    agent := &fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales", "support"}}
    salesSup := &fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales"}}
    supportSup := &fakeMember{username: "erin", level: models.LevelSupervisor, groups: []string{"support"}}

    broker.Join(salesSup)
    broker.Join(supportSup)
    broker.Join(agent)

    assert.Equal(t, []string{"alice"}, salesSup.received())
    assert.Equal(t, []string{"alice"}, supportSup.received())

    broker.UpdateStatus(agent)

    assert.Len(t, salesSup.snapshots, 2)
    assert.Len(t, supportSup.snapshots, 2)
}

func TestIntersects(t *testing.T) {
    broker := NewBroker()

    broker.Join(&fakeMember{username: "alice", level: models.LevelAgent, groups: []string{"sales"}})
    broker.Join(&fakeMember{username: "carol", level: models.LevelSupervisor, groups: []string{"sales", "support"}})
    broker.Join(&fakeMember{username: "erin", level: models.LevelSupervisor, groups: []string{"billing"}})

    assert.True(t, broker.Intersects("carol", "alice"))
    assert.False(t, broker.Intersects("erin", "alice"))
    assert.False(t, broker.Intersects("carol", "mallory"), "unknown agent shares nothing")
}
