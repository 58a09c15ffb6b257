package store

import (
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/cesargomez89/keepoffline/internal/constants"
)

// SettingsRepo holds user preferences consulted by the engine on every tick.
type SettingsRepo struct {
	db *DB
}

func NewSettingsRepo(db *DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) Get(key string) (string, error) {
	var value string
	err := r.db.Get(&value, "SELECT value FROM settings WHERE key = ?", key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (r *SettingsRepo) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now())
	return err
}

// ActiveProfile falls back to the default profile until one is chosen.
func (r *SettingsRepo) ActiveProfile() (string, error) {
	v, err := r.Get(constants.SettingActiveProfile)
	if err != nil {
		return "", err
	}
	if v == "" {
		return constants.DefaultProfile, nil
	}
	return v, nil
}

func (r *SettingsRepo) SetActiveProfile(profileID string) error {
	return r.Set(constants.SettingActiveProfile, profileID)
}

// AllowMetered defaults to false.
func (r *SettingsRepo) AllowMetered() (bool, error) {
	v, err := r.Get(constants.SettingAllowMetered)
	if err != nil || v == "" {
		return false, err
	}
	allowed, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return allowed, nil
}

func (r *SettingsRepo) SetAllowMetered(allowed bool) error {
	return r.Set(constants.SettingAllowMetered, strconv.FormatBool(allowed))
}
