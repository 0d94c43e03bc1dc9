package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout = 60 * time.Second
	AIRequestTimeout   = 3 * time.Minute
	AITestTimeout      = 1 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days
)

// Trivia generation constants
const (
	// DefaultQuestionBatchSize is the number of questions requested per generation
	DefaultQuestionBatchSize = 3

	// DefaultGenerationLimit is the number of generation requests allowed per rolling window
	DefaultGenerationLimit = 3

	// DefaultGenerationWindow is the size of the rolling quota window
	DefaultGenerationWindow = 24 * time.Hour

	// Difficulty bounds for generated questions
	MinDifficulty = 1
	MaxDifficulty = 10
)

// DefaultCategories is the pool of categories trivia questions are drawn from
var DefaultCategories = []string{
	"Pop Culture",
	"World Cuisine",
	"Strange But True",
	"Legendary Creatures",
	"Internet History",
	"Musical Mashups",
	"Movie Quotes",
	"Hidden Talents of Celebrities",
	"Unusual Inventions",
	"Global Festivals",
	"Ancient Civilizations",
	"Science in Everyday Life",
	"Art Heists",
	"Memes & Viral Moments",
	"Space Oddities",
	"Mythology Mix",
	"Famous Firsts",
	"Fictional Worlds",
	"Historical Underdogs",
	"Language Twists",
	"Tech Through Time",
	"Animal Kingdom Quirks",
	"Sports Scandals",
	"Fashion Through the Ages",
	"Board Games & Beyond",
}

// Session configuration constants
const (
	// Session settings
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	// Session name
	SessionName = "trivia-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:; media-src 'self' blob: data:;"
)
