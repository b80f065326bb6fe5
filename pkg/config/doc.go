// Package config provides configuration management for the Emarsys tap.
//
// A single TapConfig structure carries everything a sync run needs:
//
//	type TapConfig struct {
//		Name          string              `yaml:"name"`
//		Credentials   CredentialsConfig   `yaml:"credentials"`
//		Sync          SyncConfig          `yaml:"sync"`
//		Reliability   ReliabilityConfig   `yaml:"reliability"`
//		Timeouts      TimeoutConfig       `yaml:"timeouts"`
//		State         StateConfig         `yaml:"state"`
//		Output        OutputConfig        `yaml:"output"`
//		Observability ObservabilityConfig `yaml:"observability"`
//	}
//
// # Usage
//
//	cfg, err := config.LoadTapConfig("tap.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//
// NewTapConfig returns the production defaults: a 61 second metric job
// window, five job creation attempts, ten result polls five seconds apart,
// contact pages of 1000 and a file checkpoint at state.json.
//
// # Environment Variable Substitution
//
//	# tap.yaml
//	credentials:
//	  username: ${EMARSYS_USERNAME}
//	  secret: ${EMARSYS_SECRET}
//	sync:
//	  start_date: ${START_DATE:-2021-01-01}
package config
