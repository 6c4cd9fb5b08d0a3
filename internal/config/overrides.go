package config

// RuntimeOverrides holds configuration values that can be overridden at runtime
// via CLI flags or other means
type RuntimeOverrides struct {
	Model         *string
	Endpoint      *string
	Temperature   *float64
	Stream        *bool
	EnableSearch  *bool
	MaxRoundTrips *int
	SystemMessage *string
	LogLevel      *string
	LogFile       *string
}

// Apply copies every set override into cfg.
func (o *RuntimeOverrides) Apply(cfg *ConfigSchema) {
	if o == nil || cfg == nil {
		return
	}
	if o.Model != nil {
		cfg.Provider.Model = *o.Model
	}
	if o.Endpoint != nil {
		cfg.Provider.Endpoint = *o.Endpoint
	}
	if o.Temperature != nil {
		t := *o.Temperature
		cfg.Provider.Temperature = &t
	}
	if o.Stream != nil {
		cfg.Provider.Stream = *o.Stream
	}
	if o.EnableSearch != nil {
		cfg.Provider.EnableSearch = *o.EnableSearch
	}
	if o.MaxRoundTrips != nil {
		cfg.Agent.MaxRoundTrips = *o.MaxRoundTrips
	}
	if o.SystemMessage != nil {
		cfg.Agent.SystemMessage = *o.SystemMessage
	}
	if o.LogLevel != nil {
		cfg.Log.LogLevel = *o.LogLevel
	}
	if o.LogFile != nil {
		cfg.Log.LogFile = *o.LogFile
	}
}
