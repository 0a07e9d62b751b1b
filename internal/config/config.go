// Package config loads server configuration from a yaml file with
// environment-variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/nightcouncil/werewolf-server/internal/agent"
	"github.com/nightcouncil/werewolf-server/internal/match"
	"github.com/nightcouncil/werewolf-server/internal/repository"
)

// Config is the root configuration for the server binary.
type Config struct {
	Server   ServerConfig              `mapstructure:"server"`
	Logging  LoggingConfig             `mapstructure:"logging"`
	Database repository.DatabaseConfig `mapstructure:"database"`
	Agent    agent.HTTPConfig          `mapstructure:"agent"`
	Game     GameConfig                `mapstructure:"game"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GameConfig holds the rule tunables.
type GameConfig struct {
	LobbyDuration         time.Duration `mapstructure:"lobby_duration"`
	NightDuration         time.Duration `mapstructure:"night_duration"`
	DayAnnounceDuration   time.Duration `mapstructure:"day_announce_duration"`
	DayOpeningDuration    time.Duration `mapstructure:"day_opening_duration"`
	DayDiscussionDuration time.Duration `mapstructure:"day_discussion_duration"`
	DayVoteDuration       time.Duration `mapstructure:"day_vote_duration"`
	DayResolutionDuration time.Duration `mapstructure:"day_resolution_duration"`

	MaxMatchDuration        time.Duration `mapstructure:"max_match_duration"`
	MissedResponseThreshold int           `mapstructure:"missed_response_threshold"`
	PublicSpeechCooldown    time.Duration `mapstructure:"public_speech_cooldown"`
	WolfChatCooldown        time.Duration `mapstructure:"wolf_chat_cooldown"`
	MaxMessageLength        int           `mapstructure:"max_message_length"`

	NightRounds      int `mapstructure:"night_rounds"`
	OpeningRounds    int `mapstructure:"opening_rounds"`
	DiscussionRounds int `mapstructure:"discussion_rounds"`
	VoteRounds       int `mapstructure:"vote_rounds"`

	AgentWorkers      int           `mapstructure:"agent_workers"`
	AgentCallTimeout  time.Duration `mapstructure:"agent_call_timeout"`
	RecentEventWindow int           `mapstructure:"recent_event_window"`
}

// Load reads configuration from path, applying defaults and WEREWOLF_*
// environment overrides. A missing file is not an error; defaults and the
// environment then fully describe the configuration.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("WEREWOLF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("agent.base_url", "https://api.openai.com/v1")
	v.SetDefault("agent.model", "gpt-4o-mini")
	v.SetDefault("agent.timeout", 30*time.Second)

	def := match.DefaultConfig()
	v.SetDefault("game.lobby_duration", def.PhaseDurations[match.PhaseLobby])
	v.SetDefault("game.night_duration", def.PhaseDurations[match.PhaseNight])
	v.SetDefault("game.day_announce_duration", def.PhaseDurations[match.PhaseDayAnnounce])
	v.SetDefault("game.day_opening_duration", def.PhaseDurations[match.PhaseDayOpening])
	v.SetDefault("game.day_discussion_duration", def.PhaseDurations[match.PhaseDayDiscussion])
	v.SetDefault("game.day_vote_duration", def.PhaseDurations[match.PhaseDayVote])
	v.SetDefault("game.day_resolution_duration", def.PhaseDurations[match.PhaseDayResolution])
	v.SetDefault("game.max_match_duration", def.MaxMatchDuration)
	v.SetDefault("game.missed_response_threshold", def.MissedResponseThreshold)
	v.SetDefault("game.public_speech_cooldown", def.PublicSpeechCooldown)
	v.SetDefault("game.wolf_chat_cooldown", def.WolfChatCooldown)
	v.SetDefault("game.max_message_length", def.MaxMessageLength)
	v.SetDefault("game.night_rounds", def.RoundsPerPhase[match.PhaseNight])
	v.SetDefault("game.opening_rounds", def.RoundsPerPhase[match.PhaseDayOpening])
	v.SetDefault("game.discussion_rounds", def.RoundsPerPhase[match.PhaseDayDiscussion])
	v.SetDefault("game.vote_rounds", def.RoundsPerPhase[match.PhaseDayVote])
	v.SetDefault("game.agent_workers", 4)
	v.SetDefault("game.agent_call_timeout", 20*time.Second)
	v.SetDefault("game.recent_event_window", 40)
}

func (c *Config) validate() error {
	if c.Game.AgentWorkers < 1 {
		return fmt.Errorf("game.agent_workers must be at least 1")
	}
	if c.Game.NightRounds < 1 {
		return fmt.Errorf("game.night_rounds must be at least 1")
	}
	if c.Game.MissedResponseThreshold < 1 {
		return fmt.Errorf("game.missed_response_threshold must be at least 1")
	}
	return nil
}

// MatchConfig projects the game section into the rule-engine tunables.
func (c *Config) MatchConfig() match.Config {
	return match.Config{
		PhaseDurations: map[match.Phase]time.Duration{
			match.PhaseLobby:         c.Game.LobbyDuration,
			match.PhaseNight:         c.Game.NightDuration,
			match.PhaseDayAnnounce:   c.Game.DayAnnounceDuration,
			match.PhaseDayOpening:    c.Game.DayOpeningDuration,
			match.PhaseDayDiscussion: c.Game.DayDiscussionDuration,
			match.PhaseDayVote:       c.Game.DayVoteDuration,
			match.PhaseDayResolution: c.Game.DayResolutionDuration,
		},
		MaxMatchDuration:        c.Game.MaxMatchDuration,
		MissedResponseThreshold: c.Game.MissedResponseThreshold,
		PublicSpeechCooldown:    c.Game.PublicSpeechCooldown,
		WolfChatCooldown:        c.Game.WolfChatCooldown,
		MaxMessageLength:        c.Game.MaxMessageLength,
		RoundsPerPhase: map[match.Phase]int{
			match.PhaseNight:         c.Game.NightRounds,
			match.PhaseDayOpening:    c.Game.OpeningRounds,
			match.PhaseDayDiscussion: c.Game.DiscussionRounds,
			match.PhaseDayVote:       c.Game.VoteRounds,
		},
	}
}
