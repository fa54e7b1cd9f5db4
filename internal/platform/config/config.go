package config

import (
	"os"
	"strings"
	"time"
)

// Backend selects the persistence implementation at startup.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendXML      Backend = "xml"
	BackendPostgres Backend = "postgres"
)

// Server captures process level configuration.
type Server struct {
	Addr string

	Backend     Backend
	XMLPath     string
	PostgresDSN string

	// SMLEnabled switches the locator hook on; without it directory
	// registration is managed out-of-band and the hook is a no-op.
	SMLEnabled bool
	SMLBaseURL string
	SMLTimeout time.Duration

	// KafkaBrokers is empty when audit events stay local.
	KafkaBrokers []string
	KafkaTopic   string

	// AllowUnverifiedSchemes admits identifiers with unregistered schemes.
	AllowUnverifiedSchemes bool

	// WritableAPI gates all mutating REST routes.
	WritableAPI bool
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("SMP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	backend := Backend(os.Getenv("SMP_BACKEND"))
	switch backend {
	case BackendMemory, BackendXML, BackendPostgres:
	default:
		backend = BackendMemory
	}

	xmlPath := os.Getenv("SMP_XML_PATH")
	if xmlPath == "" {
		xmlPath = "smp-registry.xml"
	}

	smlTimeout := 30 * time.Second
	if v := os.Getenv("SMP_SML_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			smlTimeout = d
		}
	}

	var brokers []string
	if v := os.Getenv("SMP_KAFKA_BROKERS"); v != "" {
		brokers = strings.Split(v, ",")
	}
	topic := os.Getenv("SMP_KAFKA_TOPIC")
	if topic == "" {
		topic = "smp.audit"
	}

	return Server{
		Addr:                   addr,
		Backend:                backend,
		XMLPath:                xmlPath,
		PostgresDSN:            os.Getenv("SMP_POSTGRES_DSN"),
		SMLEnabled:             os.Getenv("SMP_SML_ENABLED") == "true",
		SMLBaseURL:             os.Getenv("SMP_SML_URL"),
		SMLTimeout:             smlTimeout,
		KafkaBrokers:           brokers,
		KafkaTopic:             topic,
		AllowUnverifiedSchemes: os.Getenv("SMP_ALLOW_UNVERIFIED_SCHEMES") == "true",
		WritableAPI:            os.Getenv("SMP_WRITABLE_API_DISABLED") != "true",
	}
}
