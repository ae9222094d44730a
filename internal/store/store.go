package store

import (
    "context"
    "database/sql"
    "time"

    "github.com/rudilee/OrangeServer/internal/models"
    "github.com/rudilee/OrangeServer/pkg/errors"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

// Store is the narrow persistence surface the session engine journals
// through. Implementations are called on the owning session's worker; all
// failures are reported, none abort the protocol.
type Store interface {
    FindAgent(ctx context.Context, username, passwordMD5 string) (*models.Agent, error)
    FindExtensionForAddress(ctx context.Context, ip string) (extenMapID int64, extension string, err error)
    ListSkills(ctx context.Context, agentID int64) ([]models.Skill, error)
    ListGroups(ctx context.Context, agentID int64) ([]string, error)

    OpenSessionLog(ctx context.Context, agentID, extenMapID int64, now time.Time) (int64, error)
    CloseSessionLog(ctx context.Context, sessionLogID int64, now time.Time) error
    OpenStatusLog(ctx context.Context, sessionLogID int64, status models.AgentStatus, now time.Time) (int64, error)
    CloseStatusLog(ctx context.Context, statusLogID int64, now time.Time) error
}

type pgStore struct {
    db    *DB
    cache *Cache
}

func New(db *DB, cache *Cache) Store {
    return &pgStore{db: db, cache: cache}
}

func (s *pgStore) FindAgent(ctx context.Context, username, passwordMD5 string) (*models.Agent, error) {
    agent := &models.Agent{}

    err := s.db.QueryRowContext(ctx,
        `SELECT id, name, fullname, level FROM acd_agent WHERE name = $1 AND password = $2`,
        username, passwordMD5,
    ).Scan(&agent.ID, &agent.Username, &agent.Fullname, &agent.Level)

    if err == sql.ErrNoRows {
        return nil, errors.New(errors.ErrNotFound, "agent not found").
            WithContext("username", username)
    }
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "find agent")
    }

    return agent, nil
}

func (s *pgStore) FindExtensionForAddress(ctx context.Context, ip string) (int64, string, error) {
    var id int64
    var extension string

    err := s.db.QueryRowContext(ctx,
        `SELECT id, extension FROM acd_agent_exten_map WHERE ip_address = $1`,
        ip,
    ).Scan(&id, &extension)

    if err == sql.ErrNoRows {
        return 0, "", errors.New(errors.ErrNotFound, "no extension mapped to address").
            WithContext("ip", ip)
    }
    if err != nil {
        return 0, "", errors.Wrap(err, errors.ErrDatabase, "find extension for address")
    }

    return id, extension, nil
}

func (s *pgStore) ListSkills(ctx context.Context, agentID int64) ([]models.Skill, error) {
    var skills []models.Skill
    if s.cache.GetSkills(ctx, agentID, &skills) {
        return skills, nil
    }

    rows, err := s.db.QueryContext(ctx,
        `SELECT s.name, s.id
           FROM acd_skill s
           JOIN acd_agent_skill ags ON ags.skill_id = s.id
          WHERE ags.agent_id = $1
          ORDER BY s.name`,
        agentID,
    )
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "list skills")
    }
    defer rows.Close()

    for rows.Next() {
        var skill models.Skill
        if err := rows.Scan(&skill.Name, &skill.ID); err != nil {
            return nil, errors.Wrap(err, errors.ErrDatabase, "scan skill")
        }
        skills = append(skills, skill)
    }
    if err := rows.Err(); err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "list skills")
    }

    s.cache.SetSkills(ctx, agentID, skills)
    return skills, nil
}

func (s *pgStore) ListGroups(ctx context.Context, agentID int64) ([]string, error) {
    var groups []string
    if s.cache.GetGroups(ctx, agentID, &groups) {
        return groups, nil
    }

    rows, err := s.db.QueryContext(ctx,
        `SELECT q.name
           FROM acd_queue q
           JOIN acd_agent_group ag ON ag.queue_id = q.id
          WHERE ag.agent_id = $1
          ORDER BY q.name`,
        agentID,
    )
    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "list groups")
    }
    defer rows.Close()

    for rows.Next() {
        var name string
        if err := rows.Scan(&name); err != nil {
            return nil, errors.Wrap(err, errors.ErrDatabase, "scan group")
        }
        groups = append(groups, name)
    }
    if err := rows.Err(); err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "list groups")
    }

    s.cache.SetGroups(ctx, agentID, groups)
    return groups, nil
}

func (s *pgStore) OpenSessionLog(ctx context.Context, agentID, extenMapID int64, now time.Time) (int64, error) {
    var mapID interface{}
    if extenMapID != 0 {
        mapID = extenMapID
    }

    var id int64
    err := s.queryRowRetry(ctx,
        `INSERT INTO acd_log_agent_session (agent_id, exten_map_id, login_time)
         VALUES ($1, $2, $3) RETURNING id`,
        []interface{}{agentID, mapID, now}, &id)
    if err != nil {
        return 0, errors.Wrap(err, errors.ErrDatabase, "open session log")
    }

    return id, nil
}

func (s *pgStore) CloseSessionLog(ctx context.Context, sessionLogID int64, now time.Time) error {
    _, err := s.db.ExecContext(ctx,
        `UPDATE acd_log_agent_session SET logout_time = $1 WHERE id = $2`,
        now, sessionLogID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "close session log")
    }
    return nil
}

func (s *pgStore) OpenStatusLog(ctx context.Context, sessionLogID int64, status models.AgentStatus, now time.Time) (int64, error) {
    var id int64
    err := s.queryRowRetry(ctx,
        `INSERT INTO acd_log_agent_status (session_id, status, start_time)
         VALUES ($1, $2, $3) RETURNING id`,
        []interface{}{sessionLogID, int(status), now}, &id)
    if err != nil {
        return 0, errors.Wrap(err, errors.ErrDatabase, "open status log")
    }

    return id, nil
}

func (s *pgStore) CloseStatusLog(ctx context.Context, statusLogID int64, now time.Time) error {
    _, err := s.db.ExecContext(ctx,
        `UPDATE acd_log_agent_status SET finish_time = $1 WHERE id = $2`,
        now, statusLogID)
    if err != nil {
        return errors.Wrap(err, errors.ErrDatabase, "close status log")
    }
    return nil
}

// queryRowRetry runs a single-row query once more when the failure looks
// transient. Journaling is best-effort; one retry keeps short network
// blips out of the logs without stalling the session.
func (s *pgStore) queryRowRetry(ctx context.Context, query string, args []interface{}, dest ...interface{}) error {
    err := s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
    if err == nil || !isRetryableError(err) {
        return err
    }

    logger.WithError(err).Warn("Retrying journaling query")

    select {
    case <-ctx.Done():
        return ctx.Err()
    case <-time.After(s.db.cfg.RetryDelay):
    }

    return s.db.QueryRowContext(ctx, query, args...).Scan(dest...)
}
