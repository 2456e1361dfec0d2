package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	HTTPAddr string
	DataDir  string
	DBPath   string
	WebDir   string

	// AllowedOrigins is a comma separated allow-list for websocket
	// origins. Empty means same-origin only.
	AllowedOrigins []string

	// GoogleClientID enables identity verification when set.
	GoogleClientID string

	LLMProvider string
	LLMModel    string
	LLMAPIKey   string

	ToolsConfigPath string
	TokenizerModel  string
}

func Load() Config {
	loadDotEnv(".env")
	dataDir := getEnv("CHATWIRE_DATA_DIR", "data")
	return Config{
		HTTPAddr: getEnv("CHATWIRE_HTTP_ADDR", ":3000"),
		DataDir:  dataDir,
		DBPath:   getEnv("CHATWIRE_DB_PATH", filepath.Join(dataDir, "chatwire.db")),
		WebDir:   getEnv("CHATWIRE_WEB_DIR", "web"),

		AllowedOrigins: splitList(getEnv("CHATWIRE_ALLOWED_ORIGINS", "")),
		GoogleClientID: getEnv("CHATWIRE_GOOGLE_CLIENT_ID", ""),

		LLMProvider: getEnv("CHATWIRE_LLM_PROVIDER", "google"),
		LLMModel:    getEnv("CHATWIRE_LLM_MODEL", "gemini-2.5-flash"),
		LLMAPIKey:   getEnv("CHATWIRE_LLM_API_KEY", ""),

		ToolsConfigPath: getEnv("CHATWIRE_TOOLS_CONFIG", "tools.yaml"),
		TokenizerModel:  getEnv("CHATWIRE_TOKENIZER_MODEL", "gemini-2.5-flash"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
