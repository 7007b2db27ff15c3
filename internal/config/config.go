package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config структура конфигурации
type Config struct {
	TelegramBotToken string
	JWTSecret        string
	DatabaseURL      string
	DatabaseConfig   DatabaseConfig
	CloudinaryConfig CloudinaryConfig
	SchedulerConfig  SchedulerConfig
	GamificationURL  string
	TxRetryAttempts  int
	AppEnv           string
}

// DatabaseConfig содержит конфигурацию базы данных
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// CloudinaryConfig содержит конфигурацию для Cloudinary
type CloudinaryConfig struct {
	CloudName    string
	APIKey       string
	APISecret    string
	UploadPreset string
}

// SchedulerConfig — дедлайны протокола завершения и период планировщика
type SchedulerConfig struct {
	// RemindAfter — через сколько после заявки на завершение слать напоминание
	RemindAfter time.Duration
	// CompleteAfter — через сколько принудительно завершать обмен
	CompleteAfter time.Duration
	// Interval — период запуска планировщика (0 отключает фоновый цикл)
	Interval time.Duration
}

// LoadConfig загружает переменные из .env
func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("⚠️ .env файл не найден, используем переменные окружения")
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnv("PGPORT", "5432"),
		User:     getEnv("PGUSER", "skillswap_user"),
		Password: getEnv("PGPASSWORD", "skillswap_pass"),
		Name:     getEnv("PGDATABASE", "skillswap"),
		SSLMode:  getEnv("PGSSLMODE", "disable"),
	}

	// Формируем строку подключения к базе данных
	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbConfig.User, dbConfig.Password, dbConfig.Host, dbConfig.Port, dbConfig.Name, dbConfig.SSLMode)

	cloudinaryConfig := CloudinaryConfig{
		CloudName:    getEnv("CLOUDINARY_CLOUD_NAME", ""),
		APIKey:       getEnv("CLOUDINARY_API_KEY", ""),
		APISecret:    getEnv("CLOUDINARY_API_SECRET", ""),
		UploadPreset: getEnv("CLOUDINARY_UPLOAD_PRESET", "skillswap_evidence"),
	}

	schedulerConfig := SchedulerConfig{
		RemindAfter:   time.Duration(getEnvInt("REMINDER_AFTER_DAYS", 7)) * 24 * time.Hour,
		CompleteAfter: time.Duration(getEnvInt("AUTO_COMPLETE_AFTER_DAYS", 14)) * 24 * time.Hour,
		Interval:      time.Duration(getEnvInt("SCHEDULER_INTERVAL_MINUTES", 60)) * time.Minute,
	}

	cfg := &Config{
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		DatabaseURL:      dbURL,
		DatabaseConfig:   dbConfig,
		CloudinaryConfig: cloudinaryConfig,
		SchedulerConfig:  schedulerConfig,
		GamificationURL:  getEnv("GAMIFICATION_URL", ""),
		TxRetryAttempts:  getEnvInt("TX_RETRY_ATTEMPTS", 3),
		AppEnv:           getEnv("APP_ENV", "production"),
	}

	if cfg.TelegramBotToken == "" || cfg.JWTSecret == "" {
		log.Fatal("❌ Ошибка: Не заданы обязательные переменные окружения")
	}
	if cfg.SchedulerConfig.RemindAfter >= cfg.SchedulerConfig.CompleteAfter {
		log.Fatal("❌ Ошибка: REMINDER_AFTER_DAYS должен быть меньше AUTO_COMPLETE_AFTER_DAYS")
	}

	return cfg
}

// getEnv получает переменную окружения или использует дефолтное значение
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt получает числовую переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("⚠️ Переменная %s имеет неверный формат, используем значение по умолчанию %d", key, defaultValue)
	}
	return defaultValue
}
