// Package config loads the runtime configuration for FleetGuard Core.
//
// Values layer in order: built-in defaults, the YAML file, then
// FLEETGUARD_* environment variables. Validation runs last and
// reports every problem at once. Secrets (broker password, InfluxDB
// token) belong in the environment, not in config.yaml, and the file
// itself should be 0600.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	probeEvery := cfg.GetProbeInterval()
package config
