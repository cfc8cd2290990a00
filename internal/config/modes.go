package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tdkkdt/EvoS-sub002/pkg/matchmaker"
)

var (
	ErrInvalidModeConfig = errors.New("invalid mode configuration")
	ErrUnknownMode       = errors.New("unknown game mode")
)

// MatchmakingFile is the on-disk form of a matchmaking configuration. Durations are seconds.
// Omitted fields keep the casual or ranked default.
type MatchmakingFile struct {
	MaxTeamEloDifferenceStart           *float64 `json:"maxTeamEloDifferenceStart"`
	MaxTeamEloDifference                *float64 `json:"maxTeamEloDifference"`
	MaxTeamEloDifferenceWaitTimeSeconds *float64 `json:"maxTeamEloDifferenceWaitTimeSeconds"`
	TeamEloDifferenceWeight             *float64 `json:"teamEloDifferenceWeight"`
	TeammateEloDifferenceWeight         *float64 `json:"teammateEloDifferenceWeight"`
	WaitingTimeWeight                   *float64 `json:"waitingTimeWeight"`
	TeammateEloDifferenceWeightCap      *float64 `json:"teammateEloDifferenceWeightCap"`
	WaitingTimeWeightCapSeconds         *float64 `json:"waitingTimeWeightCapSeconds"`
	FallbackTimeSeconds                 *float64 `json:"fallbackTimeSeconds"`
}

type ModeDefinition struct {
	matchmaker.Mode
	Matchmaking *MatchmakingFile `json:"matchmaking,omitempty"`
}

type modesFile struct {
	Modes []ModeDefinition `json:"modes"`
}

type modeEntry struct {
	mode   matchmaker.Mode
	config matchmaker.Configuration
}

// ModeRegistry holds game modes and their matchmaking configuration.
// It implements matchmaker.ConfigProvider and can be reloaded while the driver runs.
type ModeRegistry struct {
	path string

	mu    sync.RWMutex
	modes map[string]modeEntry
	order []string
}

// DefaultModes 설정 파일이 없을 때 사용하는 모드
func DefaultModes() []ModeDefinition {
	return []ModeDefinition{
		{Mode: matchmaker.Mode{Name: "pvp", TeamAPlayers: 4, TeamBPlayers: 4, RatingKey: "pvp", MaxGroupSize: 4}},
		{Mode: matchmaker.Mode{Name: "ranked", TeamAPlayers: 4, TeamBPlayers: 4, RatingKey: "ranked", Ranked: true, MaxGroupSize: 2}},
		{Mode: matchmaker.Mode{Name: "coop", TeamAPlayers: 4, TeamBPlayers: 4, RatingKey: "coop", MaxGroupSize: 4}},
	}
}

// NewModeRegistry builds a registry from definitions.
func NewModeRegistry(defs []ModeDefinition) (*ModeRegistry, error) {
	r := &ModeRegistry{}
	if err := r.apply(defs); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadModeRegistry 파일에서 모드 로드. path가 비어 있으면 기본 모드를 쓴다.
func LoadModeRegistry(path string) (*ModeRegistry, error) {
	r := &ModeRegistry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload 설정 파일 재적용. 실패하면 기존 설정을 유지한다.
func (r *ModeRegistry) Reload() error {
	if r.path == "" {
		return r.apply(DefaultModes())
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("failed to read modes file: %w", err)
	}
	defs, err := ParseModes(data)
	if err != nil {
		return err
	}
	return r.apply(defs)
}

// ParseModes decodes and validates a modes document.
func ParseModes(data []byte) ([]ModeDefinition, error) {
	var file modesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidModeConfig, err)
	}
	if len(file.Modes) == 0 {
		return nil, fmt.Errorf("%w: no modes defined", ErrInvalidModeConfig)
	}
	return file.Modes, nil
}

func (r *ModeRegistry) apply(defs []ModeDefinition) error {
	modes := make(map[string]modeEntry, len(defs))
	order := make([]string, 0, len(defs))

	for _, def := range defs {
		if err := validateMode(def.Mode); err != nil {
			return err
		}
		if _, dup := modes[def.Name]; dup {
			return fmt.Errorf("%w: duplicate mode %q", ErrInvalidModeConfig, def.Name)
		}
		cfg, err := def.configuration()
		if err != nil {
			return fmt.Errorf("mode %q: %w", def.Name, err)
		}
		modes[def.Name] = modeEntry{mode: def.Mode, config: cfg}
		order = append(order, def.Name)
	}

	r.mu.Lock()
	r.modes = modes
	r.order = order
	r.mu.Unlock()
	return nil
}

func validateMode(m matchmaker.Mode) error {
	if m.Name == "" {
		return fmt.Errorf("%w: mode name is empty", ErrInvalidModeConfig)
	}
	if m.TeamAPlayers <= 0 || m.TeamBPlayers <= 0 {
		return fmt.Errorf("%w: mode %q team sizes must be positive", ErrInvalidModeConfig, m.Name)
	}
	if m.MaxGroupSize < 0 {
		return fmt.Errorf("%w: mode %q max group size is negative", ErrInvalidModeConfig, m.Name)
	}
	return nil
}

func (d ModeDefinition) configuration() (matchmaker.Configuration, error) {
	cfg := matchmaker.DefaultConfiguration()
	if d.Ranked {
		cfg = matchmaker.DefaultRankedConfiguration()
	}
	f := d.Matchmaking
	if f == nil {
		return cfg, nil
	}

	setFloat(&cfg.MaxTeamEloDifferenceStart, f.MaxTeamEloDifferenceStart)
	setFloat(&cfg.MaxTeamEloDifference, f.MaxTeamEloDifference)
	setFloat(&cfg.TeamEloDifferenceWeight, f.TeamEloDifferenceWeight)
	setFloat(&cfg.TeammateEloDifferenceWeight, f.TeammateEloDifferenceWeight)
	setFloat(&cfg.WaitingTimeWeight, f.WaitingTimeWeight)
	setFloat(&cfg.TeammateEloDifferenceWeightCap, f.TeammateEloDifferenceWeightCap)
	setSeconds(&cfg.MaxTeamEloDifferenceWaitTime, f.MaxTeamEloDifferenceWaitTimeSeconds)
	setSeconds(&cfg.WaitingTimeWeightCap, f.WaitingTimeWeightCapSeconds)
	setSeconds(&cfg.FallbackTime, f.FallbackTimeSeconds)

	return cfg, validateConfiguration(cfg)
}

func validateConfiguration(c matchmaker.Configuration) error {
	switch {
	case c.MaxTeamEloDifferenceStart < 0 || c.MaxTeamEloDifference < 0:
		return fmt.Errorf("%w: elo difference bounds must be non-negative", ErrInvalidModeConfig)
	case c.MaxTeamEloDifferenceStart > c.MaxTeamEloDifference:
		return fmt.Errorf("%w: maxTeamEloDifferenceStart exceeds maxTeamEloDifference", ErrInvalidModeConfig)
	case c.TeamEloDifferenceWeight < 0 || c.TeammateEloDifferenceWeight < 0 || c.WaitingTimeWeight < 0:
		return fmt.Errorf("%w: weights must be non-negative", ErrInvalidModeConfig)
	case c.TeammateEloDifferenceWeightCap < 0 || c.WaitingTimeWeightCap < 0:
		return fmt.Errorf("%w: caps must be non-negative", ErrInvalidModeConfig)
	case c.MaxTeamEloDifferenceWaitTime < 0 || c.FallbackTime < 0:
		return fmt.Errorf("%w: durations must be non-negative", ErrInvalidModeConfig)
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setSeconds(dst *time.Duration, v *float64) {
	if v != nil {
		*dst = time.Duration(*v * float64(time.Second))
	}
}

// Modes 등록 순서대로 모드 목록 반환
func (r *ModeRegistry) Modes() []matchmaker.Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	modes := make([]matchmaker.Mode, 0, len(r.order))
	for _, name := range r.order {
		modes = append(modes, r.modes[name].mode)
	}
	return modes
}

// Mode 이름으로 모드 조회
func (r *ModeRegistry) Mode(name string) (matchmaker.Mode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.modes[name]
	if !ok {
		return matchmaker.Mode{}, fmt.Errorf("%w: %s", ErrUnknownMode, name)
	}
	return entry.mode, nil
}

// MatchmakingConfiguration implements matchmaker.ConfigProvider.
// Modes missing from the registry get the casual or ranked default.
func (r *ModeRegistry) MatchmakingConfiguration(mode matchmaker.Mode) matchmaker.Configuration {
	r.mu.RLock()
	entry, ok := r.modes[mode.Name]
	r.mu.RUnlock()

	if ok {
		return entry.config
	}
	if mode.Ranked {
		return matchmaker.DefaultRankedConfiguration()
	}
	return matchmaker.DefaultConfiguration()
}
