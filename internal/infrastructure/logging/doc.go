// Package logging builds the process logger on top of log/slog.
//
// Every record carries the service name and version; subsystems add a
// component attribute via With. Output format, level and destination
// come from the logging section of config.yaml:
//
//	logging:
//	  level: info    # debug, info, warn, error
//	  format: json   # json or text
//	  output: stdout # stdout or stderr
//
// json is the production format; text reads better during local
// development. Secrets (broker passwords, InfluxDB tokens) must never
// appear in log attributes.
package logging
