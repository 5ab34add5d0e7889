package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/Conference/internal/core"
	"github.com/dkeye/Conference/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CONF"

type Camera struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	Position string `mapstructure:"position"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`
	LogLevel   string        `mapstructure:"log_level"`

	// Token authenticates clients against the room service.
	Token          string        `mapstructure:"token"`
	UserName       string        `mapstructure:"user_name"`
	RoomKind       string        `mapstructure:"room_kind"`
	MaxSubscribers int           `mapstructure:"max_subscribers"`
	FrameInterval  time.Duration `mapstructure:"frame_interval"`
	Cameras        []Camera      `mapstructure:"cameras"`
	ICEServers     []string      `mapstructure:"ice_servers"`

	ActionLimit    int           `mapstructure:"action_limit"`
	ActionInterval time.Duration `mapstructure:"action_interval"`
	EventBuffer    int           `mapstructure:"event_buffer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("log_level", "info")

	v.SetDefault("token", "")
	v.SetDefault("user_name", "guest")
	v.SetDefault("room_kind", "mesh")
	v.SetDefault("max_subscribers", 99)
	v.SetDefault("frame_interval", "33ms")
	v.SetDefault("cameras", []map[string]string{
		{"id": "front", "name": "Front Camera", "position": "front"},
		{"id": "back", "name": "Back Camera", "position": "back"},
	})
	v.SetDefault("ice_servers", []string{})

	v.SetDefault("action_limit", 10)
	v.SetDefault("action_interval", "10s")
	v.SetDefault("event_buffer", 32)
}

// Load reads config/config.<CONFIG_ENV>.yaml over the defaults, then applies
// CONF_* environment variables and flags, in increasing priority.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

// bindFlags binds every flag to the key with its dashes turned into
// underscores, so --max-subscribers sets max_subscribers.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		err = v.BindPFlag(strings.ReplaceAll(f.Name, "-", "_"), f)
	})
	return err
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := domain.ParseRoomKind(c.RoomKind); err != nil {
		errs = append(errs, err)
	}
	if c.MaxSubscribers < 0 {
		errs = append(errs, errors.New("max_subscribers must not be negative"))
	}
	if c.EventBuffer < 1 {
		errs = append(errs, errors.New("event_buffer must be positive"))
	}
	if c.ActionLimit < 1 || c.ActionInterval <= 0 {
		errs = append(errs, errors.New("action_limit and action_interval must be positive"))
	}
	for _, cam := range c.Cameras {
		if _, err := parsePosition(cam.Position); err != nil {
			errs = append(errs, fmt.Errorf("camera %q: %w", cam.ID, err))
		}
	}
	return errors.Join(errs...)
}

// DefaultRoomKind is the room kind used when a request names none.
func (c *Config) DefaultRoomKind() domain.RoomKind {
	kind, err := domain.ParseRoomKind(c.RoomKind)
	if err != nil {
		return domain.RoomMesh
	}
	return kind
}

func (c *Config) CameraDevices() []core.CameraDevice {
	out := make([]core.CameraDevice, 0, len(c.Cameras))
	for _, cam := range c.Cameras {
		pos, _ := parsePosition(cam.Position)
		out = append(out, core.CameraDevice{ID: cam.ID, Name: cam.Name, Position: pos})
	}
	return out
}

func parsePosition(s string) (core.CameraPosition, error) {
	switch strings.ToLower(s) {
	case "front":
		return core.CameraFront, nil
	case "back":
		return core.CameraBack, nil
	case "", "unspecified":
		return core.CameraUnspecified, nil
	}
	return core.CameraUnspecified, fmt.Errorf("unknown camera position %q", s)
}
