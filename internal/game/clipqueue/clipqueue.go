// Package clipqueue implements the viewer clip queue: chat submits YouTube
// links with !clip, the streamer curates the resulting playlist. There are
// no phases; the queue is always live, gated only by its settings.
package clipqueue

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/mstrand/partyhub/internal/game"
)

// Admin command names.
const (
	CmdRemoveClip     = "RemoveClipFromQueue"
	CmdUpdateSettings = "UpdateSettings"
	CmdResetQueue     = "ResetQueue"
)

// Event type names.
const (
	EventClipAdded       = "ClipAdded"
	EventClipRemoved     = "ClipRemoved"
	EventSettingsChanged = "SettingsChanged"
	EventQueueReset      = "QueueReset"
	EventClipRejected    = "ClipSubmissionRejected"
)

// Rejection reasons carried in ClipSubmissionRejected events.
const (
	RejectEmptyInput        = "empty input"
	RejectSubmissionsClosed = "submissions are closed"
	RejectInvalidID         = "not a valid YouTube video"
	RejectRemovedByAdmin    = "clip was removed by the streamer"
	RejectDuplicate         = "clip is already in the queue"
	RejectTooLong           = "clip is longer than the allowed maximum"
	RejectUnavailable       = "clip is unavailable or not embeddable"
)

// ErrNotFound is returned by resolvers for IDs that do not exist or cannot
// be embedded.
var ErrNotFound = errors.New("video not found")

// ClipMeta is the metadata a Resolver returns for a video ID.
type ClipMeta struct {
	Title           string
	ChannelTitle    string
	DurationISO8601 string
	ThumbnailURL    string
}

// Resolver looks up video metadata. The live implementation calls the
// YouTube Data API; tests and keyless deployments use PassthroughResolver.
type Resolver interface {
	Resolve(videoID string) (ClipMeta, error)
}

// PassthroughResolver accepts every well-formed ID without network lookups.
type PassthroughResolver struct{}

// Resolve implements Resolver.
func (PassthroughResolver) Resolve(videoID string) (ClipMeta, error) {
	return ClipMeta{Title: "YouTube clip " + videoID, DurationISO8601: "PT0S"}, nil
}

// ClipInfo is one queued clip.
type ClipInfo struct {
	VideoID         string    `json:"video_id"`
	Title           string    `json:"title"`
	ChannelTitle    string    `json:"channel_title"`
	DurationISO8601 string    `json:"duration_iso8601"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	SubmittedBy     string    `json:"submitted_by_username"`
	SubmittedAt     time.Time `json:"submitted_at_timestamp"`
}

// Settings gates what chat may submit.
type Settings struct {
	SubmissionsOpen        bool `json:"submissions_open"`
	AllowDuplicates        bool `json:"allow_duplicates"`
	MaxClipDurationSeconds int  `json:"max_clip_duration_seconds"`
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		SubmissionsOpen:        true,
		AllowDuplicates:        false,
		MaxClipDurationSeconds: 600,
	}
}

// ParseConfig decodes lobby-creation config into Settings.
func ParseConfig(raw json.RawMessage) (Settings, error) {
	s := DefaultSettings()
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, &game.ConfigError{Field: "config", Reason: "malformed JSON"}
	}
	return s, validateSettings(s)
}

func validateSettings(s Settings) error {
	if s.MaxClipDurationSeconds < 1 {
		return &game.ConfigError{Field: "max_clip_duration_seconds", Reason: "must be at least 1"}
	}
	return nil
}

// RejectedData is the payload of a ClipSubmissionRejected event.
type RejectedData struct {
	SubmittedBy string `json:"submitted_by_username"`
	InputText   string `json:"input_text"`
	Reason      string `json:"reason"`
}

// ClipAddedData is the payload of a ClipAdded event.
type ClipAddedData struct {
	Clip ClipInfo `json:"clip"`
}

// ClipRemovedData is the payload of a ClipRemoved event.
type ClipRemovedData struct {
	VideoID string `json:"video_id"`
}

// SettingsChangedData is the payload of a SettingsChanged event.
type SettingsChangedData struct {
	Settings Settings `json:"settings"`
}

// State is the full client-visible snapshot.
type State struct {
	Queue            []ClipInfo `json:"clip_queue"`
	RemovedByAdminID []string   `json:"removed_by_admin_clip_ids"`
	Settings         Settings   `json:"settings"`
}

// Engine holds the mutable queue state. Not safe for concurrent use.
type Engine struct {
	now      func() time.Time
	resolver Resolver

	queue    []ClipInfo
	removed  map[string]bool
	settings Settings
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSettings overrides the default settings.
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// New returns an empty queue using resolver for metadata lookups.
func New(resolver Resolver, opts ...Option) *Engine {
	e := &Engine{
		resolver: resolver,
		removed:  map[string]bool{},
		settings: DefaultSettings(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.resolver == nil {
		e.resolver = PassthroughResolver{}
	}
	return e
}

// TypeID implements game.Engine.
func (e *Engine) TypeID() string { return game.TypeClipQueue }

// ApplyAdmin implements game.Engine.
func (e *Engine) ApplyAdmin(raw json.RawMessage) ([]game.Event, error) {
	cmd, err := game.DecodeAdminCommand(raw)
	if err != nil {
		return nil, err
	}
	switch cmd.Name {
	case CmdRemoveClip:
		var p struct {
			VideoID string `json:"video_id"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil || p.VideoID == "" {
			return nil, &game.IllegalTransitionError{Command: cmd.Name, Reason: "malformed payload"}
		}
		return e.removeClip(p.VideoID)
	case CmdUpdateSettings:
		var p struct {
			NewSettings Settings `json:"new_settings"`
		}
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			return nil, &game.IllegalTransitionError{Command: cmd.Name, Reason: "malformed payload"}
		}
		if err := validateSettings(p.NewSettings); err != nil {
			return nil, &game.IllegalTransitionError{Command: cmd.Name, Reason: err.Error()}
		}
		e.settings = p.NewSettings
		return []game.Event{{Type: EventSettingsChanged, Data: SettingsChangedData{Settings: e.settings}}}, nil
	case CmdResetQueue:
		e.queue = nil
		e.removed = map[string]bool{}
		return []game.Event{{Type: EventQueueReset, Data: struct{}{}}}, nil
	default:
		return nil, &game.IllegalTransitionError{Command: cmd.Name, Reason: game.ErrUnknownCommand.Error()}
	}
}

func (e *Engine) removeClip(videoID string) ([]game.Event, error) {
	idx := slices.IndexFunc(e.queue, func(c ClipInfo) bool { return c.VideoID == videoID })
	if idx < 0 {
		return nil, &game.IllegalTransitionError{Command: CmdRemoveClip, Reason: "clip is not in the queue"}
	}
	e.queue = append(e.queue[:idx], e.queue[idx+1:]...)
	e.removed[videoID] = true
	return []game.Event{{Type: EventClipRemoved, Data: ClipRemovedData{VideoID: videoID}}}, nil
}

// ApplyChat implements game.Engine. Only "!clip ..." messages are
// meaningful; everything else is ignored. A recognized submission that
// cannot be queued produces a ClipSubmissionRejected event rather than an
// error, so the streamer's overlay can show why. Callers that dispatch
// without a preparation step get the prepare and apply halves back to back.
func (e *Engine) ApplyChat(username, text string) ([]game.Event, error) {
	apply, err := e.PrepareChat(username, text)
	if err != nil {
		return nil, err
	}
	return apply()
}

// PrepareChat implements game.ChatPreparer. The metadata lookup may hit the
// network, so it happens here, outside the lobby's dispatch lock; queue and
// settings checks wait for the returned closure, which runs serialized with
// the other mutations.
func (e *Engine) PrepareChat(username, text string) (func() ([]game.Event, error), error) {
	arg, ok := ParseClipCommand(text)
	if !ok {
		return nil, game.ErrIgnored
	}
	if arg == "" {
		return func() ([]game.Event, error) {
			return e.reject(username, text, RejectEmptyInput), nil
		}, nil
	}
	videoID, ok := ExtractVideoID(arg)
	if !ok {
		return func() ([]game.Event, error) {
			if !e.settings.SubmissionsOpen {
				return e.reject(username, text, RejectSubmissionsClosed), nil
			}
			return e.reject(username, text, RejectInvalidID), nil
		}, nil
	}

	meta, resolveErr := e.resolver.Resolve(videoID)
	return func() ([]game.Event, error) {
		return e.applySubmission(username, text, videoID, meta, resolveErr)
	}, nil
}

func (e *Engine) applySubmission(username, text, videoID string, meta ClipMeta, resolveErr error) ([]game.Event, error) {
	if !e.settings.SubmissionsOpen {
		return e.reject(username, text, RejectSubmissionsClosed), nil
	}
	if e.removed[videoID] {
		return e.reject(username, text, RejectRemovedByAdmin), nil
	}
	if !e.settings.AllowDuplicates {
		if slices.ContainsFunc(e.queue, func(c ClipInfo) bool { return c.VideoID == videoID }) {
			return e.reject(username, text, RejectDuplicate), nil
		}
	}
	if resolveErr != nil {
		return e.reject(username, text, RejectUnavailable), nil
	}
	if secs, ok := ParseISO8601Duration(meta.DurationISO8601); ok && secs > e.settings.MaxClipDurationSeconds {
		return e.reject(username, text, RejectTooLong), nil
	}

	clip := ClipInfo{
		VideoID:         videoID,
		Title:           meta.Title,
		ChannelTitle:    meta.ChannelTitle,
		DurationISO8601: meta.DurationISO8601,
		ThumbnailURL:    meta.ThumbnailURL,
		SubmittedBy:     username,
		SubmittedAt:     e.now(),
	}
	e.queue = append(e.queue, clip)
	return []game.Event{{Type: EventClipAdded, Data: ClipAddedData{Clip: clip}}}, nil
}

func (e *Engine) reject(username, text, reason string) []game.Event {
	return []game.Event{{
		Type: EventClipRejected,
		Data: RejectedData{SubmittedBy: username, InputText: text, Reason: reason},
	}}
}

// Snapshot implements game.Engine.
func (e *Engine) Snapshot() any {
	st := State{
		Queue:            make([]ClipInfo, len(e.queue)),
		RemovedByAdminID: make([]string, 0, len(e.removed)),
		Settings:         e.settings,
	}
	copy(st.Queue, e.queue)
	for id := range e.removed {
		st.RemovedByAdminID = append(st.RemovedByAdminID, id)
	}
	slices.Sort(st.RemovedByAdminID)
	return st
}
