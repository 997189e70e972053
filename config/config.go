package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Selection SelectionConfig `mapstructure:"selection"`
	Detection DetectionConfig `mapstructure:"detection"`
	Mask      MaskConfig      `mapstructure:"mask"`
}

type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type UploadConfig struct {
	MaxSize      int64    `mapstructure:"max_size"`
	AllowedTypes []string `mapstructure:"allowed_types"`
}

// EngineConfig 控制同时运行的几何计算数量
type EngineConfig struct {
	MaxConcurrent int    `mapstructure:"max_concurrent"`
	QueueTimeout  int    `mapstructure:"queue_timeout"`
	Ordering      string `mapstructure:"ordering"` // angular 或 contour
}

// SelectionConfig 颜色选区参数
type SelectionConfig struct {
	Tolerance       float64 `mapstructure:"tolerance"`
	Vertices        int     `mapstructure:"vertices"`
	MinVertices     int     `mapstructure:"min_vertices"`
	MaxVertices     int     `mapstructure:"max_vertices"`
	MinRegion       int     `mapstructure:"min_region"`
	SimplifyEpsilon float64 `mapstructure:"simplify_epsilon"`
}

// DetectionConfig 检测后处理参数。SimplifyEpsilon 以原型图像素计，MinPointDistance 以源图像素计。
type DetectionConfig struct {
	InferenceURL     string        `mapstructure:"inference_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	InputSize        int           `mapstructure:"input_size"`
	ConfThreshold    float64       `mapstructure:"conf_threshold"`
	IoUThreshold     float64       `mapstructure:"iou_threshold"`
	MaskThreshold    float64       `mapstructure:"mask_threshold"`
	Vertices         int           `mapstructure:"vertices"`
	SimplifyEpsilon  float64       `mapstructure:"simplify_epsilon"`
	MinPointDistance float64       `mapstructure:"min_point_distance"`
	ExpandPercent    float64       `mapstructure:"expand_percent"`
	KeepLargest      bool          `mapstructure:"keep_largest"`
}

// MaskConfig 掩码栅格化参数
type MaskConfig struct {
	Feather      float64 `mapstructure:"feather"`
	MaxFeather   float64 `mapstructure:"max_feather"`
	MaxDimension int     `mapstructure:"max_dimension"`
}

// Load 从 YAML 文件加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 设置默认值
	setDefaults(v)

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// New 使用默认配置路径加载配置
func New() *Config {
	cfg, err := Load("config.yaml")
	if err != nil {
		// 如果加载失败，返回默认配置
		return Default()
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("upload.allowed_types", []string{"image/jpeg", "image/png", "image/jpg", "image/webp"})

	v.SetDefault("engine.max_concurrent", 4)
	v.SetDefault("engine.queue_timeout", 30)
	v.SetDefault("engine.ordering", "angular")

	v.SetDefault("selection.tolerance", 0.1)
	v.SetDefault("selection.vertices", 32)
	v.SetDefault("selection.min_vertices", 6)
	v.SetDefault("selection.max_vertices", 128)
	v.SetDefault("selection.min_region", 9)
	v.SetDefault("selection.simplify_epsilon", 1.0)

	v.SetDefault("detection.inference_url", "http://localhost:5000/predict")
	v.SetDefault("detection.timeout", 30*time.Second)
	v.SetDefault("detection.input_size", 640)
	v.SetDefault("detection.conf_threshold", 0.25)
	v.SetDefault("detection.iou_threshold", 0.45)
	v.SetDefault("detection.mask_threshold", 0.5)
	v.SetDefault("detection.vertices", 24)
	v.SetDefault("detection.simplify_epsilon", 2.0)
	v.SetDefault("detection.min_point_distance", 1.0)
	v.SetDefault("detection.expand_percent", 0.0)
	v.SetDefault("detection.keep_largest", false)

	v.SetDefault("mask.feather", 0.0)
	v.SetDefault("mask.max_feather", 100.0)
	v.SetDefault("mask.max_dimension", 8192)
}

// Default 返回内置默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			TTL:      24 * time.Hour,
		},
		Upload: UploadConfig{
			MaxSize:      10 * 1024 * 1024,
			AllowedTypes: []string{"image/jpeg", "image/png", "image/jpg", "image/webp"},
		},
		Engine: EngineConfig{
			MaxConcurrent: 4,
			QueueTimeout:  30,
			Ordering:      "angular",
		},
		Selection: SelectionConfig{
			Tolerance:       0.1,
			Vertices:        32,
			MinVertices:     6,
			MaxVertices:     128,
			MinRegion:       9,
			SimplifyEpsilon: 1.0,
		},
		Detection: DetectionConfig{
			InferenceURL:     "http://localhost:5000/predict",
			Timeout:          30 * time.Second,
			InputSize:        640,
			ConfThreshold:    0.25,
			IoUThreshold:     0.45,
			MaskThreshold:    0.5,
			Vertices:         24,
			SimplifyEpsilon:  2.0,
			MinPointDistance: 1.0,
		},
		Mask: MaskConfig{
			MaxFeather:   100,
			MaxDimension: 8192,
		},
	}
}
