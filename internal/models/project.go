package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ProjectStatus enumerates project lifecycle states.
type ProjectStatus string

const (
	ProjectStatusDraft      ProjectStatus = "draft"
	ProjectStatusProcessing ProjectStatus = "processing"
	ProjectStatusCompleted  ProjectStatus = "completed"
	ProjectStatusFailed     ProjectStatus = "failed"
)

// PromptChoice selects a prompt template for one feature key.
type PromptChoice struct {
	Type    string `json:"type"` // "official" or "user"
	KeyOrID string `json:"key_or_id"`
}

// PromptSelection maps feature keys to prompt choices. Stored as JSON.
type PromptSelection map[string]PromptChoice

func (p PromptSelection) Value() (driver.Value, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

func (p *PromptSelection) Scan(value any) error {
	if value == nil {
		*p = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported prompt_selection column type %T", value)
	}
	return json.Unmarshal(data, p)
}

// ScriptColumn persists a Script as a JSON column.
type ScriptColumn struct {
	Script *Script
}

func (s ScriptColumn) Value() (driver.Value, error) {
	if s.Script == nil {
		return nil, nil
	}
	return json.Marshal(s.Script)
}

func (s *ScriptColumn) Scan(value any) error {
	if value == nil {
		s.Script = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported script column type %T", value)
	}
	if len(data) == 0 {
		s.Script = nil
		return nil
	}
	s.Script = &Script{}
	return json.Unmarshal(data, s.Script)
}

// Project is a stored production project.
type Project struct {
	ID              string          `gorm:"primaryKey" json:"id"`
	Name            string          `gorm:"not null;index" json:"name"`
	VideoPath       string          `json:"video_path"`
	SubtitlePath    string          `json:"subtitle_path"`
	AudioPath       string          `json:"audio_path"`
	Script          ScriptColumn    `gorm:"type:text" json:"script"`
	OutputVideoPath string          `json:"output_video_path"`
	Status          ProjectStatus   `gorm:"default:draft;index" json:"status"`
	PromptSelection PromptSelection `gorm:"type:text" json:"prompt_selection"`
	ScriptLength    string          `json:"script_length"`
	OriginalRatio   int             `gorm:"default:70" json:"original_ratio"`
	ScriptLanguage  string          `gorm:"default:zh" json:"script_language"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName sets the table name for GORM.
func (Project) TableName() string { return "projects" }

// HasScript reports whether a script has been saved.
func (p *Project) HasScript() bool {
	return p.Script.Script != nil && len(p.Script.Script.Segments) > 0
}
