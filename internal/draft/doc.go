package draft

import (
	"path/filepath"
	"time"
)

// The structures below mirror the editor's project file schema. Only
// the fields the editor actually reads on import are populated; all
// durations and offsets are microseconds.

type timerange struct {
	Start    int64 `json:"start"`
	Duration int64 `json:"duration"`
}

type videoMaterial struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Path     string `json:"path"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Duration int64  `json:"duration"`
}

type audioMaterial struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Path     string `json:"path"`
	Duration int64  `json:"duration"`
}

type speedMaterial struct {
	ID    string  `json:"id"`
	Type  string  `json:"type"`
	Mode  int     `json:"mode"`
	Speed float64 `json:"speed"`
}

type draftMaterials struct {
	Videos []videoMaterial `json:"videos"`
	Audios []audioMaterial `json:"audios"`
	Speeds []speedMaterial `json:"speeds"`
}

type trackSegment struct {
	ID                string    `json:"id"`
	MaterialID        string    `json:"material_id"`
	SourceTimerange   timerange `json:"source_timerange"`
	TargetTimerange   timerange `json:"target_timerange"`
	ExtraMaterialRefs []string  `json:"extra_material_refs,omitempty"`
	Volume            float64   `json:"volume"`
	Visible           bool      `json:"visible"`
}

type track struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Segments []trackSegment `json:"segments"`
}

type canvasConfig struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Ratio  string `json:"ratio"`
}

type draftDoc struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Version      string         `json:"version"`
	Platform     string         `json:"platform"`
	CanvasConfig canvasConfig   `json:"canvas_config"`
	FPS          float64        `json:"fps"`
	Duration     int64          `json:"duration"`
	Materials    draftMaterials `json:"materials"`
	Tracks       []track        `json:"tracks"`
	CreateTime   int64          `json:"create_time"`
	UpdateTime   int64          `json:"update_time"`
}

const draftSchemaVersion = "13.0.0"

// buildDraftDoc assembles the project document from the resolved
// placements. The video track plays the source clip window per
// segment; segments carrying external narration are muted and their
// audio lands on the audio track at the same timeline position.
func buildDraftDoc(name string, canvas canvasInfo, videoRel string, videoDurUs int64, placements []placement) *draftDoc {
	now := time.Now().UnixMicro()

	videoMat := videoMaterial{
		ID:       newID(),
		Type:     "video",
		Path:     filepath.ToSlash(videoRel),
		Width:    canvas.Width,
		Height:   canvas.Height,
		Duration: videoDurUs,
	}

	doc := &draftDoc{
		ID:       newID(),
		Name:     name,
		Version:  draftSchemaVersion,
		Platform: "voxcut",
		CanvasConfig: canvasConfig{
			Width:  canvas.Width,
			Height: canvas.Height,
			Ratio:  "original",
		},
		FPS:        canvas.FPS,
		Materials:  draftMaterials{Videos: []videoMaterial{videoMat}},
		CreateTime: now,
		UpdateTime: now,
	}

	videoTrack := track{ID: newID(), Type: "video"}
	audioTrack := track{ID: newID(), Type: "audio"}

	var total int64
	for _, pl := range placements {
		speed := speedMaterial{ID: newID(), Type: "speed", Mode: 0, Speed: 1.0}
		doc.Materials.Speeds = append(doc.Materials.Speeds, speed)

		volume := 1.0
		if pl.Muted {
			volume = 0.0
		}
		videoTrack.Segments = append(videoTrack.Segments, trackSegment{
			ID:                newID(),
			MaterialID:        videoMat.ID,
			SourceTimerange:   timerange{Start: pl.SourceStartUs, Duration: pl.DurationUs},
			TargetTimerange:   timerange{Start: pl.TimelineUs, Duration: pl.DurationUs},
			ExtraMaterialRefs: []string{speed.ID},
			Volume:            volume,
			Visible:           true,
		})

		if pl.AudioRel != "" {
			audioMat := audioMaterial{
				ID:       newID(),
				Type:     "extract_music",
				Path:     filepath.ToSlash(pl.AudioRel),
				Duration: pl.AudioDurUs,
			}
			doc.Materials.Audios = append(doc.Materials.Audios, audioMat)
			audioTrack.Segments = append(audioTrack.Segments, trackSegment{
				ID:              newID(),
				MaterialID:      audioMat.ID,
				SourceTimerange: timerange{Start: 0, Duration: pl.AudioDurUs},
				TargetTimerange: timerange{Start: pl.TimelineUs, Duration: pl.AudioDurUs},
				Volume:          1.0,
				Visible:         true,
			})
		}

		if end := pl.TimelineUs + pl.DurationUs; end > total {
			total = end
		}
	}
	doc.Duration = total

	doc.Tracks = []track{videoTrack}
	if len(audioTrack.Segments) > 0 {
		doc.Tracks = append(doc.Tracks, audioTrack)
	}
	return doc
}

// writeCompanions emits the sibling JSON files the editor expects next
// to draft_info.json. Their content is mostly fixed bookkeeping.
func (b *Builder) writeCompanions(draftDir string, doc *draftDoc, projectName string) error {
	meta := map[string]any{
		"draft_id":                      doc.ID,
		"draft_name":                    projectName,
		"draft_root_path":               filepath.ToSlash(draftDir),
		"draft_fold_path":               filepath.ToSlash(draftDir),
		"tm_draft_create":               doc.CreateTime,
		"tm_draft_modified":             doc.UpdateTime,
		"draft_timeline_materials_size": 0,
	}
	companions := map[string]any{
		"draft_meta_info.json":      meta,
		"draft_agency_config.json":  map[string]any{"marterials": []any{}},
		"draft_biz_config.json":     map[string]any{"draft_id": doc.ID, "biz_type": 0},
		"attachment_pc_common.json": map[string]any{"import_res_info": []any{}},
		"performance_opt_info.json": map[string]any{
			"enable_opt":          true,
			"proxy_video_enable":  false,
			"combination_preview": false,
		},
	}
	for name, content := range companions {
		if err := writeJSON(filepath.Join(draftDir, name), content); err != nil {
			return err
		}
	}
	return nil
}
