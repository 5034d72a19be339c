package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vinakademin/vinakademin-backend/models"
)

// MuxSignatureTolerance is how old a signed webhook may be.
const MuxSignatureTolerance = 5 * time.Minute

// MuxClient creates direct uploads through the Mux Video API.
type MuxClient struct {
	http *resty.Client
}

func NewMuxClient(baseURL, tokenID, tokenSecret string) *MuxClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(tokenID, tokenSecret).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second).
		SetRetryCount(2)
	return &MuxClient{http: c}
}

// Mux is set at startup. It is nil when Mux credentials are missing.
var Mux *MuxClient

type MuxUpload struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type muxUploadResponse struct {
	Data MuxUpload `json:"data"`
}

// CreateDirectUpload asks Mux for a one-off upload URL. The lesson id travels
// as passthrough so the asset can be matched back to the lesson.
func (m *MuxClient) CreateDirectUpload(ctx context.Context, lessonID uuid.UUID, corsOrigin string) (*MuxUpload, error) {
	body := map[string]interface{}{
		"cors_origin": corsOrigin,
		"new_asset_settings": map[string]interface{}{
			"playback_policy": []string{"public"},
			"passthrough":     lessonID.String(),
		},
	}

	var out muxUploadResponse
	resp, err := m.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/video/v1/uploads")
	if err != nil {
		return nil, fmt.Errorf("mux: create upload: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("mux: create upload: status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.Data.ID == "" || out.Data.URL == "" {
		return nil, errors.New("mux: create upload: empty response")
	}
	return &out.Data, nil
}

// VerifyMuxSignature checks a Mux-Signature header of the form
// "t=<unix>,v1=<hex>" against body.
func VerifyMuxSignature(header string, body []byte, secret string, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return fmt.Errorf("%w: malformed header", ErrInvalidSignature)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > MuxSignatureTolerance || age < -MuxSignatureTolerance {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	expected := SignMuxPayload(ts, body, secret)
	for _, s := range sigs {
		if hmac.Equal([]byte(s), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("%w: signature mismatch", ErrInvalidSignature)
}

// SignMuxPayload returns the hex HMAC-SHA256 of "timestamp.body".
func SignMuxPayload(timestamp string, body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// MuxEvent is the envelope of a Mux webhook.
type MuxEvent struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type muxAssetData struct {
	ID          string  `json:"id"`
	UploadID    string  `json:"upload_id"`
	Passthrough string  `json:"passthrough"`
	Duration    float64 `json:"duration"`
	PlaybackIDs []struct {
		ID     string `json:"id"`
		Policy string `json:"policy"`
	} `json:"playback_ids"`
}

type muxUploadData struct {
	ID      string `json:"id"`
	AssetID string `json:"asset_id"`
}

// ProcessMuxEvent updates the lesson a video event refers to. Events for
// unknown lessons are acknowledged and skipped.
func ProcessMuxEvent(ctx context.Context, db *gorm.DB, event MuxEvent, logger *zap.Logger) error {
	logger = logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	db = db.WithContext(ctx)

	switch event.Type {
	case "video.upload.asset_created":
		var d muxUploadData
		if err := json.Unmarshal(event.Data, &d); err != nil {
			return fmt.Errorf("unmarshal upload: %w", err)
		}
		res := db.Model(&models.Lesson{}).
			Where("mux_upload_id = ?", d.ID).
			Updates(map[string]interface{}{"mux_asset_id": d.AssetID, "video_status": models.VideoPreparing})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			logger.Warn("No lesson for Mux upload", zap.String("upload_id", d.ID))
		}
		return nil

	case "video.asset.ready", "video.asset.errored", "video.asset.deleted":
		var d muxAssetData
		if err := json.Unmarshal(event.Data, &d); err != nil {
			return fmt.Errorf("unmarshal asset: %w", err)
		}
		lesson, err := findLessonForAsset(db, &d)
		if err != nil {
			return err
		}
		if lesson == nil {
			logger.Warn("No lesson for Mux asset", zap.String("asset_id", d.ID))
			return nil
		}
		return applyAssetEvent(db, lesson, event.Type, &d, logger)
	}

	logger.Debug("Unhandled Mux event type")
	return nil
}

func findLessonForAsset(db *gorm.DB, d *muxAssetData) (*models.Lesson, error) {
	var lesson models.Lesson
	err := db.Where("mux_asset_id = ?", d.ID).First(&lesson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) && d.UploadID != "" {
		err = db.Where("mux_upload_id = ?", d.UploadID).First(&lesson).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, perr := uuid.Parse(d.Passthrough)
		if perr != nil {
			return nil, nil
		}
		err = db.First(&lesson, "id = ?", id).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lesson, nil
}

func applyAssetEvent(db *gorm.DB, lesson *models.Lesson, eventType string, d *muxAssetData, logger *zap.Logger) error {
	logger = logger.With(zap.String("lesson_id", lesson.ID.String()))

	switch eventType {
	case "video.asset.ready":
		playbackID := ""
		for _, p := range d.PlaybackIDs {
			if p.Policy == "public" || playbackID == "" {
				playbackID = p.ID
			}
		}
		if lesson.VideoStatus == models.VideoReady && lesson.MuxPlaybackID != nil && *lesson.MuxPlaybackID == playbackID {
			logger.Debug("Lesson video already ready")
			return nil
		}
		updates := map[string]interface{}{
			"mux_asset_id": d.ID,
			"video_status": models.VideoReady,
			"duration_sec": int(d.Duration + 0.5),
		}
		if playbackID != "" {
			updates["mux_playback_id"] = playbackID
		}
		if err := db.Model(lesson).Updates(updates).Error; err != nil {
			return err
		}
		logger.Info("Lesson video ready", zap.String("playback_id", playbackID))

	case "video.asset.errored":
		if err := db.Model(lesson).Update("video_status", models.VideoErrored).Error; err != nil {
			return err
		}
		logger.Warn("Lesson video failed processing")

	case "video.asset.deleted":
		// a newer asset may already have replaced the deleted one
		if lesson.MuxAssetID != nil && *lesson.MuxAssetID != d.ID {
			return nil
		}
		err := db.Model(lesson).Updates(map[string]interface{}{
			"mux_asset_id":    nil,
			"mux_playback_id": nil,
			"video_status":    models.VideoNone,
			"duration_sec":    0,
		}).Error
		if err != nil {
			return err
		}
		logger.Info("Lesson video removed")
	}
	return nil
}
