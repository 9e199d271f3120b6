package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	AWS      AWSConfig      `mapstructure:"aws"`
	Queues   QueuesConfig   `mapstructure:"queues"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Fleet    FleetConfig    `mapstructure:"fleet"`
	Manager  ManagerConfig  `mapstructure:"manager"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AWSConfig struct {
	Region    string `mapstructure:"region"`
	Profile   string `mapstructure:"profile"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// QueuesConfig names the four channels. Values may be queue names or full URLs.
type QueuesConfig struct {
	Driver            string `mapstructure:"driver"`
	AppToManager      string `mapstructure:"app_to_manager"`
	ManagerToApp      string `mapstructure:"manager_to_app"`
	ManagerToWorker   string `mapstructure:"manager_to_worker"`
	WorkerToManager   string `mapstructure:"worker_to_manager"`
	VisibilityTimeout int    `mapstructure:"visibility_timeout"`
}

type StorageConfig struct {
	Driver    string `mapstructure:"driver"`
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	PublicURL string `mapstructure:"public_url"`
}

type FleetConfig struct {
	Driver          string `mapstructure:"driver"`
	HardCap         int    `mapstructure:"hard_cap"`
	WorkerRole      string `mapstructure:"worker_role"`
	ManagerRole     string `mapstructure:"manager_role"`
	ImageID         string `mapstructure:"image_id"`
	InstanceType    string `mapstructure:"instance_type"`
	KeyName         string `mapstructure:"key_name"`
	SecurityGroupID string `mapstructure:"security_group_id"`
	InstanceProfile string `mapstructure:"instance_profile"`
	WorkerUserData  string `mapstructure:"worker_user_data"`
	ManagerUserData string `mapstructure:"manager_user_data"`
	DockerImage     string `mapstructure:"docker_image"`
	DockerNetwork   string `mapstructure:"docker_network"`
}

type ManagerConfig struct {
	JobBatch        int           `mapstructure:"job_batch"`
	TaskBatch       int           `mapstructure:"task_batch"`
	WaitSeconds     int           `mapstructure:"wait_seconds"`
	IdleInterval    time.Duration `mapstructure:"idle_interval"`
	DispatchPool    int           `mapstructure:"dispatch_pool"`
	DispatchRate    float64       `mapstructure:"dispatch_rate"`
	TaskDeadline    time.Duration `mapstructure:"task_deadline"`
	MaxRedispatch   int           `mapstructure:"max_redispatch"`
	DeleteMalformed bool          `mapstructure:"delete_malformed"`
	ReportName      string        `mapstructure:"report_name"`
}

type WorkerConfig struct {
	WaitSeconds  int           `mapstructure:"wait_seconds"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

type ServerConfig struct {
	Enabled bool       `mapstructure:"enabled"`
	Port    int        `mapstructure:"port"`
	Mode    string     `mapstructure:"mode"`
	CORS    CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Driver          string        `mapstructure:"driver"`
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	FileOnly   bool   `mapstructure:"file_only"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from an optional file, .env and the environment.
// Parameters:
//   - configPath: explicit config file; empty searches ./configs and . for config.yaml.
// Returns:
//   - *Config: populated configuration.
//   - error: non-nil if the file exists but cannot be parsed.
func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for credentials and queue endpoints
	v.BindEnv("aws.region", "AWS_REGION")
	v.BindEnv("aws.profile", "AWS_PROFILE")
	v.BindEnv("aws.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("aws.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("queues.app_to_manager", "APP_TO_MANAGER_QUEUE")
	v.BindEnv("queues.manager_to_app", "MANAGER_TO_APP_QUEUE")
	v.BindEnv("queues.manager_to_worker", "MANAGER_TO_WORKER_QUEUE")
	v.BindEnv("queues.worker_to_manager", "WORKER_TO_MANAGER_QUEUE")
	v.BindEnv("database.dsn", "DATABASE_URL")
	v.BindEnv("logging.level", "LOG_LEVEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aws.region", "us-east-1")

	v.SetDefault("queues.driver", "sqs")
	v.SetDefault("queues.app_to_manager", "app-to-manager")
	v.SetDefault("queues.manager_to_app", "manager-to-app")
	v.SetDefault("queues.manager_to_worker", "manager-to-worker")
	v.SetDefault("queues.worker_to_manager", "worker-to-manager")
	v.SetDefault("queues.visibility_timeout", 300)

	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.bucket", "textfleet")
	v.SetDefault("storage.use_ssl", true)

	v.SetDefault("fleet.driver", "ec2")
	v.SetDefault("fleet.hard_cap", 19)
	v.SetDefault("fleet.worker_role", "Worker")
	v.SetDefault("fleet.manager_role", "Manager")
	v.SetDefault("fleet.instance_type", "t3.micro")
	v.SetDefault("fleet.docker_image", "textfleet:latest")

	v.SetDefault("manager.job_batch", 5)
	v.SetDefault("manager.task_batch", 5)
	v.SetDefault("manager.wait_seconds", 5)
	v.SetDefault("manager.idle_interval", 500*time.Millisecond)
	v.SetDefault("manager.dispatch_pool", 10)
	v.SetDefault("manager.dispatch_rate", 0)
	v.SetDefault("manager.task_deadline", time.Duration(0))
	v.SetDefault("manager.max_redispatch", 2)
	v.SetDefault("manager.delete_malformed", false)
	v.SetDefault("manager.report_name", "summary.html")

	v.SetDefault("worker.wait_seconds", 10)
	v.SetDefault("worker.fetch_timeout", 60*time.Second)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/textfleet.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
	v.SetDefault("logging.compress", true)
}

// Validate rejects settings the coordinator cannot run with.
func (c *Config) Validate() error {
	if c.Fleet.HardCap < 1 {
		return fmt.Errorf("fleet.hard_cap must be positive, got %d", c.Fleet.HardCap)
	}
	if c.Manager.DispatchPool < 1 {
		return fmt.Errorf("manager.dispatch_pool must be positive, got %d", c.Manager.DispatchPool)
	}
	if c.Manager.JobBatch < 1 || c.Manager.TaskBatch < 1 {
		return fmt.Errorf("manager batch sizes must be positive")
	}
	if c.Manager.WaitSeconds < 0 || c.Worker.WaitSeconds < 0 {
		return fmt.Errorf("wait seconds must not be negative")
	}
	if c.Manager.ReportName == "" {
		return fmt.Errorf("manager.report_name must not be empty")
	}
	return nil
}
