package config

import (
	"github.com/spf13/viper"
)

// Configuration comes from environment variables so the same binary runs in
// EKS and against the local docker-compose stack unchanged.

type Config struct {
	DBHost             string  `mapstructure:"DB_HOST"`
	DBPort             string  `mapstructure:"DB_PORT"`
	DBUser             string  `mapstructure:"DB_USER"`
	DBPassword         string  `mapstructure:"DB_PASSWORD"`
	DBName             string  `mapstructure:"DB_NAME"`
	ServerPort         string  `mapstructure:"SERVER_PORT"`
	AWSRegion          string  `mapstructure:"AWS_REGION"`
	PayrollSQSQueueURL string  `mapstructure:"PAYROLL_SQS_QUEUE_URL"`
	EmailSQSQueueURL   string  `mapstructure:"EMAIL_SQS_QUEUE_URL"`
	EmailSender        string  `mapstructure:"EMAIL_SENDER"`
	AWSEndpoint        string  `mapstructure:"AWS_ENDPOINT"`
	PayrollAPIURL      string  `mapstructure:"PAYROLL_API_URL"`
	FaceAPIURL         string  `mapstructure:"FACE_API_URL"`
	OfficeLatitude     float64 `mapstructure:"OFFICE_LATITUDE"`
	OfficeLongitude    float64 `mapstructure:"OFFICE_LONGITUDE"`
	OfficeRadiusMeters float64 `mapstructure:"OFFICE_RADIUS_METERS"`
	PunchFreshnessSecs int     `mapstructure:"PUNCH_FRESHNESS_SECONDS"`
	ReferenceTimezone  string  `mapstructure:"REFERENCE_TIMEZONE"`
	IsLocalDev         bool    `mapstructure:"IS_LOCAL_DEV"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (config Config, err error) {
	viper.SetDefault("DB_HOST", "db")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "attendance_db")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("AWS_REGION", "us-east-1") // Default region for AWS services
	viper.SetDefault("PAYROLL_SQS_QUEUE_URL", "http://localstack:4566/000000000000/payroll-queue")
	viper.SetDefault("EMAIL_SQS_QUEUE_URL", "http://localstack:4566/000000000000/email-queue")
	viper.SetDefault("EMAIL_SENDER", "no-reply@company.com")
	viper.SetDefault("AWS_ENDPOINT", "http://localstack:4566")
	viper.SetDefault("PAYROLL_API_URL", "http://localhost:8081/")
	viper.SetDefault("FACE_API_URL", "http://localhost:8082")
	viper.SetDefault("OFFICE_LATITUDE", 40.748817)
	viper.SetDefault("OFFICE_LONGITUDE", -73.985428)
	viper.SetDefault("OFFICE_RADIUS_METERS", 200.0)
	viper.SetDefault("PUNCH_FRESHNESS_SECONDS", 300)
	viper.SetDefault("REFERENCE_TIMEZONE", "UTC")
	viper.SetDefault("IS_LOCAL_DEV", false)

	// Read in environment variables that match the keys.
	viper.AutomaticEnv()

	err = viper.Unmarshal(&config)
	return
}
