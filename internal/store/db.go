package store

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "sync"
    "time"

    _ "github.com/jackc/pgx/v5/stdlib"

    "github.com/rudilee/OrangeServer/internal/config"
    "github.com/rudilee/OrangeServer/pkg/errors"
    "github.com/rudilee/OrangeServer/pkg/logger"
)

// DB wraps the PostgreSQL pool with retrying connect and a background
// health probe.
type DB struct {
    *sql.DB
    cfg    config.DatabaseConfig
    mu     sync.RWMutex
    health bool
    stop   chan struct{}
}

func Open(cfg config.DatabaseConfig) (*DB, error) {
    dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
        cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Name)

    var db *sql.DB
    var err error

    for i := 0; i <= cfg.RetryAttempts; i++ {
        db, err = sql.Open("pgx", dsn)
        if err == nil {
            err = db.Ping()
            if err == nil {
                break
            }
        }

        if i < cfg.RetryAttempts {
            logger.WithField("attempt", i+1).WithError(err).Warn("Database connection failed, retrying...")
            time.Sleep(cfg.RetryDelay * time.Duration(i+1))
        }
    }

    if err != nil {
        return nil, errors.Wrap(err, errors.ErrDatabase, "failed to connect to database")
    }

    db.SetMaxOpenConns(cfg.MaxOpenConns)
    db.SetMaxIdleConns(cfg.MaxIdleConns)
    db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

    wrapper := &DB{
        DB:     db,
        cfg:    cfg,
        health: true,
        stop:   make(chan struct{}),
    }

    go wrapper.healthCheck()

    logger.Info("Database connection established")
    return wrapper, nil
}

func (db *DB) Close() error {
    close(db.stop)
    return db.DB.Close()
}

func (db *DB) healthCheck() {
    ticker := time.NewTicker(30 * time.Second)
    defer ticker.Stop()

    for {
        select {
        case <-db.stop:
            return
        case <-ticker.C:
        }

        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        err := db.PingContext(ctx)
        cancel()

        if changed, healthy := db.setHealth(err); changed {
            if healthy {
                logger.Info("Database connection recovered")
            } else {
                logger.WithError(err).Error("Database connection lost")
            }
        }
    }
}

// setHealth records the probe outcome and reports whether it flipped
func (db *DB) setHealth(err error) (changed, healthy bool) {
    db.mu.Lock()
    defer db.mu.Unlock()

    healthy = err == nil
    changed = db.health != healthy
    db.health = healthy
    return changed, healthy
}

func (db *DB) IsHealthy() bool {
    db.mu.RLock()
    defer db.mu.RUnlock()
    return db.health
}

func isRetryableError(err error) bool {
    if err == nil {
        return false
    }

    errStr := strings.ToLower(err.Error())
    retryableErrors := []string{
        "connection refused",
        "connection reset",
        "broken pipe",
        "timeout",
        "deadlock",
    }

    for _, e := range retryableErrors {
        if strings.Contains(errStr, e) {
            return true
        }
    }

    return false
}
