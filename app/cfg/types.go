package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Application configuration
	SourcesDir    string
	Port          string
	CycleInterval int
	WorkerCount   int
	APIAccessKey  string

	// Read-later target configuration
	TargetURL   string
	TargetToken string

	// Application metadata
	UserAgent   string
	HTTPTimeout int
	Timezone    string
	Debug       bool
	Version     string
}
